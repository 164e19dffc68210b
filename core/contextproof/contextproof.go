// Package contextproof loads, fingerprints and redacts candidate pools so a
// plan can later be tied back to the exact inputs it was computed from.
package contextproof

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/davidahmann/contextos/core/digest"
	coreerrors "github.com/davidahmann/contextos/core/errors"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	"github.com/davidahmann/contextos/core/store"
)

const (
	MaxCandidateBytes = int64(8 * 1024 * 1024)

	PrivacyModeMetadata = "metadata"
	PrivacyModeHashes   = "hashes"
	PrivacyModeRaw      = "raw"

	SnapshotVerified     = "verified"
	SnapshotTampered     = "snapshot_tampered"
	SnapshotPlanMismatch = "plan_mismatch"
)

func ParseCandidates(payload []byte) (schemacontext.Selection, error) {
	var candidates schemacontext.Selection
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&candidates); err != nil {
		return schemacontext.Selection{}, coreerrors.InvalidInput(fmt.Errorf("parse candidate pool: %w", err), coreerrors.CodeInvalidCandidates)
	}
	return NormalizeCandidates(candidates)
}

func LoadCandidates(path string) (schemacontext.Selection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return schemacontext.Selection{}, coreerrors.Wrap(fmt.Errorf("stat candidate pool: %w", err), coreerrors.CategoryIOFailure, "candidates_unreadable", "check the candidate pool path", false)
	}
	if info.Size() > MaxCandidateBytes {
		return schemacontext.Selection{}, coreerrors.InvalidInput(fmt.Errorf("candidate pool exceeds size limit (%d bytes)", MaxCandidateBytes), coreerrors.CodeInvalidCandidates)
	}
	// #nosec G304 -- path is explicit local user input.
	payload, err := os.ReadFile(path)
	if err != nil {
		return schemacontext.Selection{}, coreerrors.Wrap(fmt.Errorf("read candidate pool: %w", err), coreerrors.CategoryIOFailure, "candidates_unreadable", "check the candidate pool path", false)
	}
	return ParseCandidates(payload)
}

// NormalizeCandidates trims identifiers and replaces nil pools with empty
// ones. Item order, types and scores are left untouched.
func NormalizeCandidates(input schemacontext.Selection) (schemacontext.Selection, error) {
	var output schemacontext.Selection
	pools := []struct {
		name  string
		items []schemacontext.ContextItem
		out   *[]schemacontext.ContextItem
	}{
		{schemacontext.SectionAnchors, input.Anchors, &output.Anchors},
		{schemacontext.SectionStream, input.Stream, &output.Stream},
		{schemacontext.SectionIslands, input.Islands, &output.Islands},
		{schemacontext.SectionMemory, input.Memory, &output.Memory},
		{schemacontext.SectionRag, input.Rag, &output.Rag},
	}
	for _, pool := range pools {
		items := make([]schemacontext.ContextItem, 0, len(pool.items))
		for _, item := range pool.items {
			item.ID = strings.TrimSpace(item.ID)
			item.Source = strings.TrimSpace(item.Source)
			if item.ID == "" {
				return schemacontext.Selection{}, coreerrors.InvalidInput(fmt.Errorf("candidate pool %s has an item without id", pool.name), coreerrors.CodeInvalidCandidates)
			}
			if item.Tokens != nil && *item.Tokens < 0 {
				return schemacontext.Selection{}, coreerrors.InvalidInput(fmt.Errorf("candidate %s in pool %s has negative tokens", item.ID, pool.name), coreerrors.CodeInvalidCandidates)
			}
			items = append(items, item)
		}
		*pool.out = items
	}
	return output, nil
}

// Snapshot records candidates under planID together with their canonical
// digest.
func Snapshot(planID string, candidates schemacontext.Selection) (store.CandidateSnapshot, error) {
	if strings.TrimSpace(planID) == "" {
		return store.CandidateSnapshot{}, coreerrors.InvalidInput(fmt.Errorf("plan id is required for a candidate snapshot"), coreerrors.CodeInvalidPlan)
	}
	hash, err := digest.HashCandidates(candidates)
	if err != nil {
		return store.CandidateSnapshot{}, fmt.Errorf("digest candidate pool: %w", err)
	}
	return store.CandidateSnapshot{PlanID: planID, Hash: hash, Candidates: candidates}, nil
}

// VerifySnapshot recomputes the snapshot digest and checks it against both
// the stored hash and the hash the plan recorded.
func VerifySnapshot(snapshot store.CandidateSnapshot, plan schemacontext.ContextPlan) (string, error) {
	recomputed, err := digest.HashCandidates(snapshot.Candidates)
	if err != nil {
		return "", fmt.Errorf("digest candidate pool: %w", err)
	}
	switch {
	case recomputed != snapshot.Hash:
		return SnapshotTampered, nil
	case snapshot.PlanID != plan.PlanID || plan.InputsSnapshot.CandidateHash != recomputed:
		return SnapshotPlanMismatch, nil
	default:
		return SnapshotVerified, nil
	}
}

func NormalizePrivacyMode(mode string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "" {
		return PrivacyModeMetadata, nil
	}
	switch normalized {
	case PrivacyModeMetadata, PrivacyModeHashes, PrivacyModeRaw:
		return normalized, nil
	default:
		return "", coreerrors.InvalidInput(fmt.Errorf("privacy mode must be one of: metadata, hashes, raw"), coreerrors.CodeInvalidCandidates)
	}
}

// RedactCandidates strips item content for export. metadata clears content,
// hashes replaces it with its sha256, raw keeps it.
func RedactCandidates(candidates schemacontext.Selection, mode string) (schemacontext.Selection, error) {
	normalizedMode, err := NormalizePrivacyMode(mode)
	if err != nil {
		return schemacontext.Selection{}, err
	}
	redact := func(items []schemacontext.ContextItem) []schemacontext.ContextItem {
		output := append([]schemacontext.ContextItem{}, items...)
		for i := range output {
			switch normalizedMode {
			case PrivacyModeMetadata:
				output[i].Content = ""
			case PrivacyModeHashes:
				sum := sha256.Sum256([]byte(output[i].Content))
				output[i].Content = "sha256:" + hex.EncodeToString(sum[:])
			case PrivacyModeRaw:
			}
		}
		return output
	}
	return schemacontext.Selection{
		Anchors: redact(candidates.Anchors),
		Stream:  redact(candidates.Stream),
		Islands: redact(candidates.Islands),
		Memory:  redact(candidates.Memory),
		Rag:     redact(candidates.Rag),
	}, nil
}
