package sign

import (
	"encoding/base64"
	"path/filepath"
	"testing"

	coreerrors "github.com/davidahmann/contextos/core/errors"
)

func TestLoadSigningKeyDev(t *testing.T) {
	kp, warnings, err := LoadSigningKey(KeyConfig{Mode: "DEV"})
	if err != nil {
		t.Fatalf("load signing key: %v", err)
	}
	if len(warnings) != 1 || warnings[0] != DevKeyWarning {
		t.Fatalf("expected dev warning, got %v", warnings)
	}
	if len(kp.Private) == 0 || len(kp.Public) == 0 {
		t.Fatalf("expected generated keypair")
	}
	if _, _, err := LoadSigningKey(KeyConfig{Mode: ModeDev, PrivateKeyEnv: "CONTEXTOS_PRIVATE_KEY"}); coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("expected config error for dev mode with explicit keys, got %v", err)
	}
}

func TestLoadSigningKeyProd(t *testing.T) {
	if _, _, err := LoadSigningKey(KeyConfig{}); coreerrors.CategoryOf(err) != coreerrors.CategoryDependencyMissing {
		t.Fatalf("expected missing key, got %v", err)
	}

	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	t.Setenv("CONTEXTOS_PRIVATE_KEY", base64.StdEncoding.EncodeToString(kp.Private))
	t.Setenv("CONTEXTOS_PUBLIC_KEY", base64.StdEncoding.EncodeToString(kp.Public))
	loaded, warnings, err := LoadSigningKey(KeyConfig{
		Mode:          ModeProd,
		PrivateKeyEnv: "CONTEXTOS_PRIVATE_KEY",
		PublicKeyEnv:  "CONTEXTOS_PUBLIC_KEY",
	})
	if err != nil {
		t.Fatalf("load prod key: %v", err)
	}
	if len(warnings) != 0 || !loaded.Public.Equal(kp.Public) {
		t.Fatalf("unexpected prod key load: warnings=%v", warnings)
	}

	other, _ := GenerateKeyPair()
	t.Setenv("CONTEXTOS_PUBLIC_KEY", base64.StdEncoding.EncodeToString(other.Public))
	if _, _, err := LoadSigningKey(KeyConfig{PrivateKeyEnv: "CONTEXTOS_PRIVATE_KEY", PublicKeyEnv: "CONTEXTOS_PUBLIC_KEY"}); err == nil {
		t.Fatalf("expected mismatched public key to fail")
	}
	if _, _, err := LoadSigningKey(KeyConfig{Mode: "staging"}); err == nil {
		t.Fatalf("expected unsupported mode to fail")
	}
}

func TestWriteKeyPairAndLoadFromFiles(t *testing.T) {
	workDir := t.TempDir()
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	privatePath := filepath.Join(workDir, "keys", "contextos.key")
	publicPath := filepath.Join(workDir, "keys", "contextos.pub")
	if err := WriteKeyPair(kp, privatePath, publicPath); err != nil {
		t.Fatalf("write keypair: %v", err)
	}
	loaded, _, err := LoadSigningKey(KeyConfig{PrivateKeyPath: privatePath, PublicKeyPath: publicPath})
	if err != nil {
		t.Fatalf("load from files: %v", err)
	}
	if !loaded.Private.Equal(kp.Private) {
		t.Fatalf("private key did not round trip")
	}
	verifyKey, err := LoadVerifyKey(KeyConfig{PublicKeyPath: publicPath})
	if err != nil || !verifyKey.Equal(kp.Public) {
		t.Fatalf("load verify key: %v", err)
	}
	derived, err := LoadVerifyKey(KeyConfig{PrivateKeyPath: privatePath})
	if err != nil || !derived.Equal(kp.Public) {
		t.Fatalf("derive verify key: %v", err)
	}
}

func TestLoadVerifyKeyErrors(t *testing.T) {
	if _, err := LoadVerifyKey(KeyConfig{}); coreerrors.CategoryOf(err) != coreerrors.CategoryDependencyMissing {
		t.Fatalf("expected missing key, got %v", err)
	}
	if _, err := LoadVerifyKey(KeyConfig{PublicKeyPath: "a", PublicKeyEnv: "B"}); coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("expected ambiguous source error, got %v", err)
	}
	if _, err := LoadVerifyKey(KeyConfig{PublicKeyPath: filepath.Join(t.TempDir(), "missing.pub")}); coreerrors.CategoryOf(err) != coreerrors.CategoryDependencyMissing {
		t.Fatalf("expected missing file error, got %v", err)
	}
	t.Setenv("CONTEXTOS_BAD_KEY", "not-base64")
	if _, err := LoadVerifyKey(KeyConfig{PublicKeyEnv: "CONTEXTOS_BAD_KEY"}); coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("expected invalid key, got %v", err)
	}
}
