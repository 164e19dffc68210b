package diff

import (
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
)

type ViewRef struct {
	ID      string                `json:"id"`
	Version string                `json:"version"`
	Weights schemacontext.Weights `json:"weights"`
}

type ViewChange struct {
	Previous ViewRef `json:"previous"`
	Next     ViewRef `json:"next"`
}

type StreamWindowChange struct {
	PreviousCount int `json:"previous_count"`
	NextCount     int `json:"next_count"`
}

type ContextSelectionChange struct {
	AddedIslands       []string           `json:"added_islands"`
	RemovedIslands     []string           `json:"removed_islands"`
	AddedAnchors       []string           `json:"added_anchors"`
	RemovedAnchors     []string           `json:"removed_anchors"`
	StreamWindowChange StreamWindowChange `json:"stream_window_change"`
}

type TokenReportChange struct {
	Previous schemacontext.TokenReport `json:"previous"`
	Next     schemacontext.TokenReport `json:"next"`
}

// DroppedItemsChange is keyed by item id only: an item dropped in both runs
// for different reasons does not appear here.
type DroppedItemsChange struct {
	Added   []schemacontext.DroppedItem `json:"added"`
	Removed []schemacontext.DroppedItem `json:"removed"`
}

type RuntimePolicyChange struct {
	Previous schemarecipe.RuntimeSnapshot `json:"previous"`
	Next     schemarecipe.RuntimeSnapshot `json:"next"`
}

type RecipeDiff struct {
	PreviousRecipeID    string                 `json:"previous_recipe_id"`
	NextRecipeID        string                 `json:"next_recipe_id"`
	ViewChange          ViewChange             `json:"view_change"`
	ContextSelection    ContextSelectionChange `json:"context_selection"`
	TokenReportChange   TokenReportChange      `json:"token_report_change"`
	DroppedItemsChange  DroppedItemsChange     `json:"dropped_items_change"`
	RuntimePolicyChange RuntimePolicyChange    `json:"runtime_policy_change"`
}
