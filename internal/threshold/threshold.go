// Package threshold maps a normalized query and current latency health to a
// similarity-acceptance threshold and target result count.
package threshold

import (
	"github.com/medicsearch/medic-search/internal/domain"
)

// Floor is the absolute minimum similarity threshold. No policy may go
// below it, degraded mode included.
const Floor float32 = 0.45

// Base thresholds per intent. Medication dosing demands the highest
// precision; general queries tolerate the loosest matches.
var baseThresholds = map[domain.Intent]float32{
	domain.IntentMedicationDosing: 0.72,
	domain.IntentContraindication: 0.68,
	domain.IntentProcedureSteps:   0.62,
	domain.IntentGeneral:          0.55,
}

// Target counts per intent before any degradation.
var baseTargetCounts = map[domain.Intent]int{
	domain.IntentMedicationDosing: 8,
	domain.IntentContraindication: 8,
	domain.IntentProcedureSteps:   10,
	domain.IntentGeneral:          10,
}

// degradedStep is how far the threshold drops toward the floor when the
// pipeline is over its latency budget.
const degradedStep float32 = 0.10

// degradedMinTarget is the smallest target count degradation may produce.
const degradedMinTarget = 3

// HealthReader is the read-only view of the latency monitor the selector
// consults. Reads are snapshots; the selector never mutates monitor state.
type HealthReader interface {
	IsDegraded() bool
}

// Selection is the selector's decision for one request.
type Selection struct {
	// Threshold is the minimum acceptable similarity score.
	Threshold float32

	// TargetCount is how many results retrieval should aim for.
	TargetCount int

	// Degraded is true when the selection was relaxed because recent
	// latency exceeded budget. Callers and the result cache need this.
	Degraded bool
}

// Select returns the threshold policy for a normalized query. Pure given
// its inputs: the same query and the same monitor snapshot always produce
// the same selection.
func Select(nq domain.NormalizedQuery, health HealthReader) Selection {
	base, ok := baseThresholds[nq.Intent]
	if !ok {
		base = baseThresholds[domain.IntentGeneral]
	}
	target, ok := baseTargetCounts[nq.Intent]
	if !ok {
		target = baseTargetCounts[domain.IntentGeneral]
	}

	sel := Selection{
		Threshold:   base,
		TargetCount: target,
	}

	if health != nil && health.IsDegraded() {
		sel.Degraded = true
		sel.Threshold = base - degradedStep
		if sel.Threshold < Floor {
			sel.Threshold = Floor
		}
		sel.TargetCount = target / 2
		if sel.TargetCount < degradedMinTarget {
			sel.TargetCount = degradedMinTarget
		}
	}

	return sel
}
