package sign

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/davidahmann/contextos/core/fsx"
)

type KeyMode string

const (
	ModeDev  KeyMode = "dev"
	ModeProd KeyMode = "prod"
)

const DevKeyWarning = "dev mode: ephemeral keypair generated; recipe signatures will not verify in another process"

const codeKeyUnavailable = "signing_key_unavailable"

type KeyConfig struct {
	Mode           KeyMode
	PrivateKeyPath string
	PublicKeyPath  string
	PrivateKeyEnv  string
	PublicKeyEnv   string
}

// LoadSigningKey resolves the signing key pair. Dev mode returns an
// ephemeral pair plus a warning; prod mode needs a private key source and,
// when given, a matching public key.
func LoadSigningKey(cfg KeyConfig) (KeyPair, []string, error) {
	mode := KeyMode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeProd
	}
	switch mode {
	case ModeDev:
		if cfg.hasAnyKeySource() {
			return KeyPair{}, nil, keyConfigError(fmt.Errorf("dev mode does not accept explicit key sources"))
		}
		kp, err := GenerateKeyPair()
		if err != nil {
			return KeyPair{}, nil, err
		}
		return kp, []string{DevKeyWarning}, nil
	case ModeProd:
		if !cfg.hasPrivateSource() {
			return KeyPair{}, nil, keyUnavailable(fmt.Errorf("prod mode requires a private key source"))
		}
		priv, err := loadPrivateKey(cfg)
		if err != nil {
			return KeyPair{}, nil, err
		}
		pub := priv.Public().(ed25519.PublicKey)
		if cfg.hasPublicSource() {
			loaded, err := loadPublicKey(cfg)
			if err != nil {
				return KeyPair{}, nil, err
			}
			if !loaded.Equal(pub) {
				return KeyPair{}, nil, keyConfigError(fmt.Errorf("public key does not match private key"))
			}
		}
		return KeyPair{Public: pub, Private: priv}, nil, nil
	default:
		return KeyPair{}, nil, keyConfigError(fmt.Errorf("unsupported key mode: %q", cfg.Mode))
	}
}

// LoadVerifyKey prefers the public key source and falls back to deriving it
// from the private key.
func LoadVerifyKey(cfg KeyConfig) (ed25519.PublicKey, error) {
	if cfg.hasPublicSource() {
		return loadPublicKey(cfg)
	}
	if cfg.hasPrivateSource() {
		priv, err := loadPrivateKey(cfg)
		if err != nil {
			return nil, err
		}
		return priv.Public().(ed25519.PublicKey), nil
	}
	return nil, keyUnavailable(fmt.Errorf("public key not configured"))
}

// WriteKeyPair stores a base64 key pair at the given paths with private
// permissions.
func WriteKeyPair(kp KeyPair, privatePath, publicPath string) error {
	if err := fsx.WriteFileAtomic(privatePath, []byte(base64.StdEncoding.EncodeToString(kp.Private)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := fsx.WriteFileAtomic(publicPath, []byte(base64.StdEncoding.EncodeToString(kp.Public)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

func (cfg KeyConfig) hasPrivateSource() bool {
	return cfg.PrivateKeyPath != "" || cfg.PrivateKeyEnv != ""
}

func (cfg KeyConfig) hasPublicSource() bool {
	return cfg.PublicKeyPath != "" || cfg.PublicKeyEnv != ""
}

func (cfg KeyConfig) hasAnyKeySource() bool {
	return cfg.hasPrivateSource() || cfg.hasPublicSource()
}

func loadPrivateKey(cfg KeyConfig) (ed25519.PrivateKey, error) {
	switch {
	case cfg.PrivateKeyPath != "" && cfg.PrivateKeyEnv != "":
		return nil, keyConfigError(fmt.Errorf("private key source: set either path or env"))
	case cfg.PrivateKeyPath != "":
		priv, err := LoadPrivateKeyBase64(cfg.PrivateKeyPath)
		if err != nil {
			return nil, keyUnavailable(err)
		}
		return priv, nil
	default:
		encoded, ok := readEnvValue(cfg.PrivateKeyEnv)
		if !ok {
			return nil, keyUnavailable(fmt.Errorf("private key env not set: %s", cfg.PrivateKeyEnv))
		}
		priv, err := ParsePrivateKeyBase64(encoded)
		if err != nil {
			return nil, keyConfigError(err)
		}
		return priv, nil
	}
}

func loadPublicKey(cfg KeyConfig) (ed25519.PublicKey, error) {
	switch {
	case cfg.PublicKeyPath != "" && cfg.PublicKeyEnv != "":
		return nil, keyConfigError(fmt.Errorf("public key source: set either path or env"))
	case cfg.PublicKeyPath != "":
		pub, err := LoadPublicKeyBase64(cfg.PublicKeyPath)
		if err != nil {
			return nil, keyUnavailable(err)
		}
		return pub, nil
	default:
		encoded, ok := readEnvValue(cfg.PublicKeyEnv)
		if !ok {
			return nil, keyUnavailable(fmt.Errorf("public key env not set: %s", cfg.PublicKeyEnv))
		}
		pub, err := ParsePublicKeyBase64(encoded)
		if err != nil {
			return nil, keyConfigError(err)
		}
		return pub, nil
	}
}

func readEnvValue(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	val, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return "", false
	}
	return val, true
}

func keyUnavailable(err error) error {
	return coreerrors.Wrap(err, coreerrors.CategoryDependencyMissing, codeKeyUnavailable, "configure signing.private_key or signing.private_key_env", false)
}

func keyConfigError(err error) error {
	return coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "invalid_signing_config", "check the signing section of the project config", false)
}
