package sign

import (
	"crypto/ed25519"
	"fmt"

	"github.com/davidahmann/contextos/core/digest"
	coreerrors "github.com/davidahmann/contextos/core/errors"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
)

const (
	CodeRecipeUnsigned  = "recipe_unsigned"
	CodeDigestMismatch  = "signed_digest_mismatch"
	CodeSignatureFailed = "signature_invalid"
)

// RecipeDigest is the canonical digest of recipe with its signature cleared.
func RecipeDigest(recipe schemarecipe.Recipe) (string, error) {
	recipe.Signature = nil
	return digest.HashValue(recipe)
}

// SignRecipe returns a copy of recipe carrying a signature over its digest.
func SignRecipe(priv ed25519.PrivateKey, recipe schemarecipe.Recipe) (schemarecipe.Recipe, error) {
	recipeDigest, err := RecipeDigest(recipe)
	if err != nil {
		return schemarecipe.Recipe{}, fmt.Errorf("digest recipe: %w", err)
	}
	sig, err := SignDigest(priv, recipeDigest)
	if err != nil {
		return schemarecipe.Recipe{}, err
	}
	recipe.Signature = &sig
	return recipe, nil
}

// VerifyRecipe checks that the signature covers the recipe as it is now.
// Failures are classified as verification errors.
func VerifyRecipe(pub ed25519.PublicKey, recipe schemarecipe.Recipe) error {
	if recipe.Signature == nil {
		return verificationError(fmt.Errorf("recipe %s is not signed", recipe.ID), CodeRecipeUnsigned)
	}
	recipeDigest, err := RecipeDigest(recipe)
	if err != nil {
		return fmt.Errorf("digest recipe: %w", err)
	}
	if recipe.Signature.SignedDigest != recipeDigest {
		return verificationError(fmt.Errorf("recipe %s: signed_digest mismatch", recipe.ID), CodeDigestMismatch)
	}
	ok, err := VerifyDigest(pub, *recipe.Signature)
	if err != nil {
		return verificationError(fmt.Errorf("recipe %s: %w", recipe.ID, err), CodeSignatureFailed)
	}
	if !ok {
		return verificationError(fmt.Errorf("recipe %s: signature does not verify", recipe.ID), CodeSignatureFailed)
	}
	return nil
}

func verificationError(err error, code string) error {
	return coreerrors.Wrap(err, coreerrors.CategoryVerification, code, "re-sign the recipe or check the verify key", false)
}
