package digest

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/davidahmann/contextos/core/jcs"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
)

type messageDigest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
	ToolRef string `json:"tool_ref,omitempty"`
}

type sectionDigest struct {
	ID    string                      `json:"id"`
	Items []schemacontext.ContextItem `json:"items"`
}

type planDigest struct {
	Sections       []sectionDigest              `json:"sections"`
	StableAnchors  []schemacontext.Anchor       `json:"stable_anchors"`
	TokenReport    schemacontext.TokenReport    `json:"token_report"`
	DroppedItems   []schemacontext.DroppedItem  `json:"dropped_items"`
	InputsSnapshot schemacontext.InputsSnapshot `json:"inputs_snapshot"`
}

// HashValue is the canonical digest of any JSON-encodable value.
func HashValue(value any) (string, error) {
	return jcs.DigestValue(value)
}

// HashText digests a newline-normalized string.
func HashText(value string) string {
	sum := sha256.Sum256([]byte(jcs.NormalizeNewlines(value)))
	return hex.EncodeToString(sum[:])
}

// HashMessages digests the role, content, name and tool reference of each
// message in order.
func HashMessages(messages []schemarecipe.ModelMessage) (string, error) {
	digests := make([]messageDigest, 0, len(messages))
	for _, message := range messages {
		digests = append(digests, messageDigest{
			Role:    message.Role,
			Content: message.Content,
			Name:    message.Name,
			ToolRef: message.ToolRef,
		})
	}
	return jcs.DigestValue(digests)
}

// HashPlan digests the deterministic content of a plan. Plan id, request id
// and planner version are excluded.
func HashPlan(plan schemacontext.ContextPlan) (string, error) {
	sections := make([]sectionDigest, 0, len(plan.SelectedSections))
	for _, section := range plan.SelectedSections {
		items := section.Items
		if items == nil {
			items = []schemacontext.ContextItem{}
		}
		sections = append(sections, sectionDigest{ID: section.ID, Items: items})
	}
	stable := plan.StableAnchors
	if stable == nil {
		stable = []schemacontext.Anchor{}
	}
	dropped := plan.DroppedItems
	if dropped == nil {
		dropped = []schemacontext.DroppedItem{}
	}
	return jcs.DigestValue(planDigest{
		Sections:       sections,
		StableAnchors:  stable,
		TokenReport:    plan.TokenReport,
		DroppedItems:   dropped,
		InputsSnapshot: plan.InputsSnapshot,
	})
}

// HashCandidates digests a candidate pool. Nil and empty sections hash the same.
func HashCandidates(candidates schemacontext.Selection) (string, error) {
	return jcs.DigestValue(normalizeSelection(candidates))
}

func normalizeSelection(selection schemacontext.Selection) schemacontext.Selection {
	orEmpty := func(items []schemacontext.ContextItem) []schemacontext.ContextItem {
		if items == nil {
			return []schemacontext.ContextItem{}
		}
		return items
	}
	return schemacontext.Selection{
		Anchors: orEmpty(selection.Anchors),
		Stream:  orEmpty(selection.Stream),
		Islands: orEmpty(selection.Islands),
		Memory:  orEmpty(selection.Memory),
		Rag:     orEmpty(selection.Rag),
	}
}
