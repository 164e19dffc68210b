package view

import schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"

type Definition struct {
	ID          string  `json:"id" yaml:"id"`
	Version     string  `json:"version" yaml:"version"`
	Label       string  `json:"label" yaml:"label"`
	Description string  `json:"description" yaml:"description"`
	Prompt      string  `json:"prompt" yaml:"prompt"`
	Freeze      *Freeze `json:"freeze,omitempty" yaml:"freeze,omitempty"`
	Policy      Policy  `json:"policy" yaml:"policy"`
}

// Freeze flags are honored by the orchestrating caller before it plans with
// overridden weights or exclusions.
type Freeze struct {
	Planner        bool     `json:"planner,omitempty" yaml:"planner,omitempty"`
	ContextSources []string `json:"context_sources,omitempty" yaml:"context_sources,omitempty"`
	Runtime        []string `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

type Policy struct {
	Context ContextPolicy `json:"context" yaml:"context"`
	Runtime RuntimePolicy `json:"runtime" yaml:"runtime"`
}

type ContextPolicy struct {
	MaxTokens int                   `json:"max_tokens" yaml:"max_tokens"`
	Weights   schemacontext.Weights `json:"weights" yaml:"weights"`
}

type RuntimePolicy struct {
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	AllowTools       bool    `json:"allow_tools" yaml:"allow_tools"`
	AllowRag         bool    `json:"allow_rag" yaml:"allow_rag"`
	AllowMemoryWrite bool    `json:"allow_memory_write" yaml:"allow_memory_write"`
}

type Index struct {
	Views []Definition `json:"views" yaml:"views"`
}
