package drift

type SignalType string

const (
	SignalViewChange             SignalType = "view_change"
	SignalTokenDistributionShift SignalType = "token_distribution_shift"
	SignalIslandShift            SignalType = "island_shift"
	SignalAnchorLoss             SignalType = "anchor_loss"
)

type Layer string

const (
	LayerLogicEngine    Layer = "logic-engine"
	LayerOrchestrator   Layer = "orchestrator"
	LayerDomainServices Layer = "domain-services"
)

type Signal struct {
	Type        SignalType `json:"type"`
	Magnitude   float64    `json:"magnitude"`
	Description string     `json:"description"`
}

type Report struct {
	ReferenceRecipeID string   `json:"reference_recipe_id"`
	CurrentRecipeID   string   `json:"current_recipe_id"`
	DriftSignals      []Signal `json:"drift_signals"`
	SuspectedLayers   []Layer  `json:"suspected_layers"`
	Confidence        float64  `json:"confidence"`
}
