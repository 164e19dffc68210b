package context

import "time"

type ItemType string

const (
	ItemAnchor ItemType = "anchor"
	ItemStream ItemType = "stream"
	ItemIsland ItemType = "island"
	ItemMemory ItemType = "memory"
	ItemRag    ItemType = "rag"
)

// Section ids, in planning order.
const (
	SectionAnchors = "anchors"
	SectionStream  = "stream"
	SectionIslands = "islands"
	SectionMemory  = "memory"
	SectionRag     = "rag"
)

type DropReason string

const (
	DropBudgetExceeded DropReason = "budget_exceeded"
	DropDeniedByPolicy DropReason = "denied_by_policy"
	DropLowScore       DropReason = "low_score"
	DropDuplicate      DropReason = "duplicate"
	DropInvalidSource  DropReason = "invalid_source"
)

type ContextItem struct {
	ID      string   `json:"id"`
	Type    ItemType `json:"type"`
	Content string   `json:"content"`
	Source  string   `json:"source"`
	Score   *float64 `json:"score,omitempty"`
	Tokens  *int     `json:"tokens,omitempty"`
}

// Selection is a candidate pool (planner input) or a selected-context
// snapshot (recipe field); the shape is the same.
type Selection struct {
	Anchors []ContextItem `json:"anchors"`
	Stream  []ContextItem `json:"stream"`
	Islands []ContextItem `json:"islands"`
	Memory  []ContextItem `json:"memory"`
	Rag     []ContextItem `json:"rag"`
}

type Anchor struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Content   string    `json:"content"`
	Scope     string    `json:"scope"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Weights struct {
	Anchors float64 `json:"anchors" yaml:"anchors"`
	Stream  float64 `json:"stream" yaml:"stream"`
	Islands float64 `json:"islands" yaml:"islands"`
	Memory  float64 `json:"memory" yaml:"memory"`
	Rag     float64 `json:"rag" yaml:"rag"`
}

type Window struct {
	StreamRecent int `json:"stream_recent" yaml:"stream_recent"`
	StreamMiddle int `json:"stream_middle" yaml:"stream_middle"`
}

type DroppedItem struct {
	ID          string     `json:"id"`
	Type        ItemType   `json:"type"`
	Source      string     `json:"source"`
	Score       *float64   `json:"score,omitempty"`
	DropReason  DropReason `json:"drop_reason"`
	ReasonNotes []string   `json:"reason_notes,omitempty"`
}

type Section struct {
	ID            string        `json:"id"`
	Label         string        `json:"label"`
	Items         []ContextItem `json:"items"`
	TokenEstimate int           `json:"token_estimate"`
	Budget        int           `json:"budget"`
}

type BucketUsage struct {
	Budget int `json:"budget"`
	Used   int `json:"used"`
}

type TokenReport struct {
	BudgetTotal int                    `json:"budget_total"`
	UsedTotal   int                    `json:"used_total"`
	ByBucket    map[string]BucketUsage `json:"by_bucket"`
}

type CandidateCounts struct {
	Anchors int `json:"anchors"`
	Stream  int `json:"stream"`
	Islands int `json:"islands"`
	Memory  int `json:"memory"`
	Rag     int `json:"rag"`
}

type Thresholds struct {
	LowScore float64 `json:"low_score"`
}

type InputsSnapshot struct {
	CandidateCounts CandidateCounts `json:"candidate_counts"`
	Weights         Weights         `json:"weights"`
	Window          Window          `json:"window"`
	Thresholds      Thresholds      `json:"thresholds"`
	CandidateHash   string          `json:"candidate_hash,omitempty"`
}

type ContextPlan struct {
	PlanID           string         `json:"plan_id"`
	RequestID        string         `json:"request_id"`
	PlannerVersion   string         `json:"planner_version"`
	SelectedSections []Section      `json:"selected_sections"`
	StableAnchors    []Anchor       `json:"stable_anchors"`
	TokenReport      TokenReport    `json:"token_report"`
	DroppedItems     []DroppedItem  `json:"dropped_items"`
	InputsSnapshot   InputsSnapshot `json:"inputs_snapshot"`
}

// SectionItems returns the items selected for section id, or nil.
func (p ContextPlan) SectionItems(id string) []ContextItem {
	for _, section := range p.SelectedSections {
		if section.ID == id {
			return section.Items
		}
	}
	return nil
}
