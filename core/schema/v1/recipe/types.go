package recipe

import (
	"time"

	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
)

const (
	KVPolicyDefault = "default"
	KVPolicyCache   = "cache"
	KVPolicyNoCache = "no_cache"

	SafetyStandard = "standard"
	SafetyStrict   = "strict"

	ModeNormal  = "normal"
	ModeReplay  = "replay"
	ModeCompare = "compare"
)

type ModelMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
	ToolRef string `json:"tool_ref,omitempty"`
}

type ModelCallPlan struct {
	ModelID     string         `json:"model_id"`
	Temperature float64        `json:"temperature"`
	Messages    []ModelMessage `json:"messages"`
	Tools       []string       `json:"tools"`
	KVPolicy    string         `json:"kv_policy"`
	Safety      string         `json:"safety"`
}

type RuntimeSnapshot struct {
	Temperature      float64 `json:"temperature"`
	AllowTools       bool    `json:"allow_tools"`
	AllowRag         bool    `json:"allow_rag"`
	AllowMemoryWrite bool    `json:"allow_memory_write"`
	KVPolicy         string  `json:"kv_policy"`
}

type TokenUsage struct {
	Budget int `json:"budget"`
	Used   int `json:"used"`
}

type Decisions struct {
	Notes []string `json:"notes"`
}

type Diagnostics struct {
	Mode                  string   `json:"mode,omitempty"`
	CandidateSnapshotHash string   `json:"candidate_snapshot_hash,omitempty"`
	ExpectedPlanHash      string   `json:"expected_plan_hash,omitempty"`
	OverrideDenied        []string `json:"override_denied,omitempty"`
}

type Signature struct {
	Alg          string `json:"alg"`
	KeyID        string `json:"key_id"`
	Sig          string `json:"sig"`
	SignedDigest string `json:"signed_digest,omitempty"`
}

type Recipe struct {
	ID              string                  `json:"id"`
	RequestID       string                  `json:"request_id"`
	Revision        int                     `json:"revision"`
	ParentRecipeID  string                  `json:"parent_recipe_id,omitempty"`
	Timestamp       time.Time               `json:"timestamp"`
	ViewID          string                  `json:"view_id"`
	ViewVersion     string                  `json:"view_version"`
	ViewWeights     schemacontext.Weights   `json:"view_weights"`
	PlannerVersion  string                  `json:"planner_version"`
	ContextPlanID   string                  `json:"context_plan_id"`
	RuntimePolicy   RuntimeSnapshot         `json:"runtime_policy"`
	SelectedContext schemacontext.Selection `json:"selected_context"`
	TokenUsage      TokenUsage              `json:"token_usage"`
	ModelPlan       ModelCallPlan           `json:"model_plan"`
	Decisions       Decisions               `json:"decisions"`
	Diagnostics     *Diagnostics            `json:"diagnostics,omitempty"`
	Signature       *Signature              `json:"signature,omitempty"`
}

// DiagnosticMode returns the diagnostics mode, or ModeNormal when unset.
func (r Recipe) DiagnosticMode() string {
	if r.Diagnostics == nil || r.Diagnostics.Mode == "" {
		return ModeNormal
	}
	return r.Diagnostics.Mode
}
