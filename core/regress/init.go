package regress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/davidahmann/contextos/core/digest"
	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/davidahmann/contextos/core/fsx"
	schemaregress "github.com/davidahmann/contextos/core/schema/v1/regress"
	"github.com/davidahmann/contextos/core/schema/validate"
	"github.com/davidahmann/contextos/core/store"
	"github.com/goccy/go-yaml"
)

const (
	profilesDirName  = ".contextos/regress"
	profileExtension = ".yaml"
)

var profileNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// DefaultThresholds tolerate moderate island and token movement but fail on
// any anchor loss.
var DefaultThresholds = schemaregress.DriftThresholds{
	IslandShift:            0.5,
	TokenDistributionShift: 0.25,
	AnchorLoss:             0,
}

type InitOptions struct {
	Store                  store.Store
	BaselineRecipeID       string
	ProfileName            string
	WorkDir                string
	Thresholds             *schemaregress.DriftThresholds
	InvariantsExpectedPass []string
	Description            string
}

type InitResult struct {
	Profile      schemaregress.Profile
	ProfilePath  string
	NextCommands []string
}

// InitProfile captures a stored recipe as a regression baseline and writes
// its profile under .contextos/regress.
func InitProfile(ctx context.Context, opts InitOptions) (InitResult, error) {
	if opts.Store == nil {
		return InitResult{}, fmt.Errorf("store is required")
	}
	baselineID := strings.TrimSpace(opts.BaselineRecipeID)
	if baselineID == "" {
		return InitResult{}, coreerrors.InvalidInput(fmt.Errorf("baseline recipe id is required"), coreerrors.CodeInvalidProfile)
	}
	recipe, plan, err := store.LoadRecipeWithPlan(ctx, opts.Store, baselineID)
	if err != nil {
		return InitResult{}, err
	}
	planHash, err := digest.HashPlan(plan)
	if err != nil {
		return InitResult{}, fmt.Errorf("hash baseline plan: %w", err)
	}

	profileName := strings.TrimSpace(opts.ProfileName)
	if profileName == "" {
		profileName = sanitizeProfileName(recipe.ID)
	}
	if !profileNamePattern.MatchString(profileName) {
		return InitResult{}, coreerrors.InvalidInput(fmt.Errorf("invalid profile name: %s", profileName), coreerrors.CodeInvalidProfile)
	}
	thresholds := DefaultThresholds
	if opts.Thresholds != nil {
		thresholds = *opts.Thresholds
	}
	profile := schemaregress.Profile{
		BaselineRecipeID:       recipe.ID,
		BaselinePlanHash:       planHash,
		InvariantsExpectedPass: uniqueStrings(opts.InvariantsExpectedPass),
		DriftThresholds:        thresholds,
		Description:            strings.TrimSpace(opts.Description),
	}
	if len(profile.InvariantsExpectedPass) == 0 {
		profile.InvariantsExpectedPass = nil
	}

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = "."
	}
	relativePath := filepath.Join(profilesDirName, profileName+profileExtension)
	if err := WriteProfile(filepath.Join(workDir, relativePath), profile); err != nil {
		return InitResult{}, err
	}
	return InitResult{
		Profile:      profile,
		ProfilePath:  filepath.ToSlash(relativePath),
		NextCommands: []string{"contextos regress run --profile " + filepath.ToSlash(relativePath) + " --candidate <recipe_id> --json"},
	}, nil
}

// LoadProfile reads a YAML profile and checks it against the embedded
// regress_profile schema.
func LoadProfile(path string) (schemaregress.Profile, error) {
	// #nosec G304 -- profile path is provided by the caller.
	content, err := os.ReadFile(path)
	if err != nil {
		return schemaregress.Profile{}, coreerrors.Wrap(fmt.Errorf("read profile: %w", err), coreerrors.CategoryIOFailure, "profile_unreadable", "check the profile path", false)
	}
	var profile schemaregress.Profile
	if err := yaml.Unmarshal(content, &profile); err != nil {
		return schemaregress.Profile{}, coreerrors.InvalidInput(fmt.Errorf("parse profile %s: %w", path, err), coreerrors.CodeInvalidProfile)
	}
	if err := validate.ValidateValue(validate.SchemaRegressProfile, profile); err != nil {
		return schemaregress.Profile{}, coreerrors.InvalidInput(fmt.Errorf("profile %s: %w", path, err), coreerrors.CodeInvalidProfile)
	}
	return profile, nil
}

func WriteProfile(path string, profile schemaregress.Profile) error {
	if err := validate.ValidateValue(validate.SchemaRegressProfile, profile); err != nil {
		return coreerrors.InvalidInput(fmt.Errorf("profile: %w", err), coreerrors.CodeInvalidProfile)
	}
	encoded, err := yaml.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := fsx.WriteFileAtomic(path, encoded, 0o600); err != nil {
		return coreerrors.Wrap(fmt.Errorf("write profile: %w", err), coreerrors.CategoryIOFailure, "profile_unwritable", "check the profile directory permissions", false)
	}
	return nil
}

func sanitizeProfileName(value string) string {
	lower := strings.ToLower(value)
	var out strings.Builder
	out.Grow(len(lower))
	lastDash := false
	for _, char := range lower {
		switch {
		case char >= 'a' && char <= 'z', char >= '0' && char <= '9', char == '.' || char == '_' || char == '-':
			out.WriteRune(char)
			lastDash = false
		default:
			if !lastDash {
				out.WriteRune('-')
				lastDash = true
			}
		}
	}
	candidate := strings.Trim(out.String(), "-._")
	if candidate == "" {
		return "baseline"
	}
	return candidate
}
