package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/davidahmann/contextos/core/sign"
	"github.com/davidahmann/contextos/core/store"
	"github.com/spf13/cobra"
)

type verifyOutput struct {
	OK       bool   `json:"ok"`
	RecipeID string `json:"recipe_id"`
	KeyID    string `json:"key_id"`
	Digest   string `json:"digest"`
}

func (o verifyOutput) lines() []string {
	return []string{
		fmt.Sprintf("recipe %s: signature verified", o.RecipeID),
		"key id: " + o.KeyID,
	}
}

type keysInitOutput struct {
	OK             bool   `json:"ok"`
	KeyID          string `json:"key_id"`
	PrivateKeyPath string `json:"private_key_path"`
	PublicKeyPath  string `json:"public_key_path"`
}

func (o keysInitOutput) lines() []string {
	return []string{
		"key id: " + o.KeyID,
		"private key: " + o.PrivateKeyPath,
		"public key: " + o.PublicKeyPath,
	}
}

func newVerifyCommand(invocation *cli) *cobra.Command {
	var recipeID, publicKeyPath string
	command := &cobra.Command{
		Use:   "verify",
		Short: "Verify the signature on a recorded recipe",
		Long: `Verify the ed25519 signature on a recorded recipe against the configured
public key. Exits 2 when the recipe is unsigned, altered or signed by another key.`,
		Args: cobra.NoArgs,
		RunE: invocation.handler("verify", func(cmd *cobra.Command, _ []string) (reporter, int, error) {
			if strings.TrimSpace(recipeID) == "" {
				return nil, exitInvalidInput, usageError(fmt.Errorf("verify requires --recipe"))
			}
			env, err := invocation.environment()
			if err != nil {
				return nil, exitInternalFailure, err
			}
			keys := env.signingKeys()
			if strings.TrimSpace(publicKeyPath) != "" {
				keys = sign.KeyConfig{PublicKeyPath: publicKeyPath}
			}
			publicKey, err := sign.LoadVerifyKey(keys)
			if err != nil {
				return nil, exitMissingDependency, err
			}
			stored, err := store.LoadRecipe(cmd.Context(), env.store, recipeID)
			if err != nil {
				return nil, exitMissingDependency, err
			}
			if err := sign.VerifyRecipe(publicKey, stored); err != nil {
				return nil, exitVerifyFailed, err
			}
			return verifyOutput{
				OK:       true,
				RecipeID: stored.ID,
				KeyID:    stored.Signature.KeyID,
				Digest:   stored.Signature.SignedDigest,
			}, exitOK, nil
		}),
	}
	command.Flags().StringVar(&recipeID, "recipe", "", "recipe id")
	command.Flags().StringVar(&publicKeyPath, "public-key", "", "public key path (default: signing config)")
	return command
}

func newKeysCommand(invocation *cli) *cobra.Command {
	command := &cobra.Command{
		Use:   "keys",
		Short: "Manage recipe signing keys",
	}
	var outDir, prefix string
	initCommand := &cobra.Command{
		Use:   "init",
		Short: "Generate an ed25519 keypair for recipe signing",
		Args:  cobra.NoArgs,
		RunE: invocation.handler("keys init", func(_ *cobra.Command, _ []string) (reporter, int, error) {
			if strings.TrimSpace(prefix) == "" {
				return nil, exitInvalidInput, usageError(fmt.Errorf("keys init requires a non-empty --prefix"))
			}
			keyPair, err := sign.GenerateKeyPair()
			if err != nil {
				return nil, exitInternalFailure, err
			}
			privatePath := filepath.Join(outDir, prefix+"_private.key")
			publicPath := filepath.Join(outDir, prefix+"_public.key")
			if err := sign.WriteKeyPair(keyPair, privatePath, publicPath); err != nil {
				return nil, exitInternalFailure, err
			}
			return keysInitOutput{
				OK:             true,
				KeyID:          sign.KeyID(keyPair.Public),
				PrivateKeyPath: privatePath,
				PublicKeyPath:  publicPath,
			}, exitOK, nil
		}),
	}
	initCommand.Flags().StringVar(&outDir, "out-dir", ".contextos/keys", "output directory")
	initCommand.Flags().StringVar(&prefix, "prefix", "contextos", "key file name prefix")
	command.AddCommand(initCommand)
	return command
}
