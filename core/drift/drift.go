package drift

import (
	"fmt"
	"math"
	"sort"

	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemadrift "github.com/davidahmann/contextos/core/schema/v1/drift"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	"github.com/davidahmann/contextos/core/schema/validate"
)

// Detect quantifies how far current has moved from reference. Each signal is
// in [0,1] and only reported when non-zero.
func Detect(reference, current schemarecipe.Recipe, referencePlan, currentPlan schemacontext.ContextPlan) (schemadrift.Report, error) {
	for _, recipe := range []schemarecipe.Recipe{reference, current} {
		if err := validate.Recipe(recipe); err != nil {
			return schemadrift.Report{}, err
		}
	}
	for _, plan := range []schemacontext.ContextPlan{referencePlan, currentPlan} {
		if err := validate.Plan(plan); err != nil {
			return schemadrift.Report{}, err
		}
	}

	report := schemadrift.Report{
		ReferenceRecipeID: reference.ID,
		CurrentRecipeID:   current.ID,
		DriftSignals:      []schemadrift.Signal{},
		SuspectedLayers:   []schemadrift.Layer{},
	}
	seenLayers := map[schemadrift.Layer]struct{}{}
	emit := func(signalType schemadrift.SignalType, magnitude float64, layer schemadrift.Layer, description string) {
		if magnitude <= 0 {
			return
		}
		report.DriftSignals = append(report.DriftSignals, schemadrift.Signal{
			Type:        signalType,
			Magnitude:   magnitude,
			Description: description,
		})
		if _, ok := seenLayers[layer]; !ok {
			seenLayers[layer] = struct{}{}
			report.SuspectedLayers = append(report.SuspectedLayers, layer)
		}
	}

	if reference.ViewID != current.ViewID || reference.ViewVersion != current.ViewVersion {
		emit(schemadrift.SignalViewChange, 1, schemadrift.LayerOrchestrator,
			fmt.Sprintf("View changed from %s@%s to %s@%s", reference.ViewID, reference.ViewVersion, current.ViewID, current.ViewVersion))
	}

	tokenShift := TokenDistributionShift(referencePlan.TokenReport, currentPlan.TokenReport)
	emit(schemadrift.SignalTokenDistributionShift, tokenShift, schemadrift.LayerLogicEngine,
		fmt.Sprintf("Token distribution shifted by %s", percent(tokenShift)))

	islandShift := IslandShift(reference.SelectedContext.Islands, current.SelectedContext.Islands)
	emit(schemadrift.SignalIslandShift, islandShift, schemadrift.LayerDomainServices,
		fmt.Sprintf("Selected islands changed by %s", percent(islandShift)))

	anchorLoss := AnchorLoss(reference.SelectedContext.Anchors, current.SelectedContext.Anchors)
	emit(schemadrift.SignalAnchorLoss, anchorLoss, schemadrift.LayerLogicEngine,
		fmt.Sprintf("Anchor loss at %s", percent(anchorLoss)))

	if len(report.DriftSignals) > 0 {
		sum := 0.0
		for _, signal := range report.DriftSignals {
			sum += signal.Magnitude
		}
		report.Confidence = clamp(sum / float64(len(report.DriftSignals)))
	}
	return report, nil
}

// TokenDistributionShift is half the L1 distance between the per-bucket
// fractions of each report's used total.
func TokenDistributionShift(reference, current schemacontext.TokenReport) float64 {
	left := bucketFractions(reference)
	right := bucketFractions(current)
	keys := make([]string, 0, len(left)+len(right))
	for key := range left {
		keys = append(keys, key)
	}
	for key := range right {
		if _, ok := left[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	sum := 0.0
	for _, key := range keys {
		sum += math.Abs(left[key] - right[key])
	}
	return clamp(sum / 2)
}

// IslandShift is 1 - Jaccard similarity of the island id sets, 0 when both
// are empty.
func IslandShift(reference, current []schemacontext.ContextItem) float64 {
	left := idSet(reference)
	right := idSet(current)
	union := len(left)
	intersection := 0
	for id := range right {
		if _, ok := left[id]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return clamp(1 - float64(intersection)/float64(union))
}

// AnchorLoss is the fraction of reference anchor ids missing from current.
func AnchorLoss(reference, current []schemacontext.ContextItem) float64 {
	left := idSet(reference)
	if len(left) == 0 {
		return 0
	}
	right := idSet(current)
	lost := 0
	for id := range left {
		if _, ok := right[id]; !ok {
			lost++
		}
	}
	return clamp(float64(lost) / float64(len(left)))
}

func bucketFractions(report schemacontext.TokenReport) map[string]float64 {
	total := float64(report.UsedTotal)
	if total == 0 {
		total = 1
	}
	fractions := make(map[string]float64, len(report.ByBucket))
	for key, usage := range report.ByBucket {
		fractions[key] = float64(usage.Used) / total
	}
	return fractions
}

func idSet(items []schemacontext.ContextItem) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item.ID] = struct{}{}
	}
	return set
}

func percent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

func clamp(value float64) float64 {
	return math.Max(0, math.Min(1, value))
}
