package contextproof

import (
	"fmt"

	"github.com/davidahmann/contextos/core/digest"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
)

const (
	DriftNone        = "none"
	DriftScoringOnly = "scoring_only"
	DriftSemantic    = "semantic"
)

// ClassifyCandidateDrift compares two candidate pools. scoring_only means the
// same items with the same content were offered with different scores or
// token counts; semantic means the items themselves changed.
func ClassifyCandidateDrift(left, right schemacontext.Selection) (string, error) {
	leftFull, err := digest.HashCandidates(left)
	if err != nil {
		return "", fmt.Errorf("digest left pool: %w", err)
	}
	rightFull, err := digest.HashCandidates(right)
	if err != nil {
		return "", fmt.Errorf("digest right pool: %w", err)
	}
	if leftFull == rightFull {
		return DriftNone, nil
	}
	leftContent, err := digest.HashCandidates(contentComparable(left))
	if err != nil {
		return "", fmt.Errorf("digest left content: %w", err)
	}
	rightContent, err := digest.HashCandidates(contentComparable(right))
	if err != nil {
		return "", fmt.Errorf("digest right content: %w", err)
	}
	if leftContent == rightContent {
		return DriftScoringOnly, nil
	}
	return DriftSemantic, nil
}

func contentComparable(candidates schemacontext.Selection) schemacontext.Selection {
	strip := func(items []schemacontext.ContextItem) []schemacontext.ContextItem {
		output := append([]schemacontext.ContextItem{}, items...)
		for i := range output {
			output[i].Score = nil
			output[i].Tokens = nil
		}
		return output
	}
	return schemacontext.Selection{
		Anchors: strip(candidates.Anchors),
		Stream:  strip(candidates.Stream),
		Islands: strip(candidates.Islands),
		Memory:  strip(candidates.Memory),
		Rag:     strip(candidates.Rag),
	}
}
