package prompt

import (
	"fmt"
	"strings"

	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	schemaview "github.com/davidahmann/contextos/core/schema/v1/view"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"

	DefaultModelID = "mock-llm"
	DefaultTool    = "mock-tool"
)

var sectionTitles = []struct {
	id    string
	title string
}{
	{schemacontext.SectionAnchors, "Anchors"},
	{schemacontext.SectionStream, "Stream"},
	{schemacontext.SectionIslands, "Islands"},
	{schemacontext.SectionMemory, "Memory"},
	{schemacontext.SectionRag, "RAG"},
}

type ModelOptions struct {
	ModelID  string
	Tools    []string
	KVPolicy string
	Safety   string
}

// Messages renders the selected plan sections into a system message followed
// by the user message.
func Messages(view schemaview.Definition, plan schemacontext.ContextPlan, userMessage string) []schemarecipe.ModelMessage {
	blocks := []string{
		fmt.Sprintf("View: %s (%s@%s)", view.Label, view.ID, view.Version),
		view.Prompt,
	}
	for _, section := range sectionTitles {
		blocks = append(blocks, renderSection(section.title, plan.SectionItems(section.id)))
	}
	return []schemarecipe.ModelMessage{
		{Role: RoleSystem, Content: strings.Join(blocks, "\n\n")},
		{Role: RoleUser, Content: userMessage},
	}
}

// ModelPlan builds the call plan for a rendered prompt. Tools are attached
// only when the view allows them.
func ModelPlan(view schemaview.Definition, messages []schemarecipe.ModelMessage, opts ModelOptions) schemarecipe.ModelCallPlan {
	modelID := strings.TrimSpace(opts.ModelID)
	if modelID == "" {
		modelID = DefaultModelID
	}
	tools := []string{}
	if view.Policy.Runtime.AllowTools {
		tools = opts.Tools
		if len(tools) == 0 {
			tools = []string{DefaultTool}
		}
	}
	kvPolicy := opts.KVPolicy
	if kvPolicy == "" {
		kvPolicy = schemarecipe.KVPolicyDefault
	}
	safety := opts.Safety
	if safety == "" {
		safety = schemarecipe.SafetyStandard
	}
	return schemarecipe.ModelCallPlan{
		ModelID:     modelID,
		Temperature: view.Policy.Runtime.Temperature,
		Messages:    messages,
		Tools:       tools,
		KVPolicy:    kvPolicy,
		Safety:      safety,
	}
}

// UserMessage returns the content of the first user message, or "".
func UserMessage(messages []schemarecipe.ModelMessage) string {
	for _, message := range messages {
		if message.Role == RoleUser {
			return message.Content
		}
	}
	return ""
}

func renderSection(title string, items []schemacontext.ContextItem) string {
	if len(items) == 0 {
		return title + ": (none)"
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "- "+item.Content)
	}
	return title + ":\n" + strings.Join(lines, "\n")
}
