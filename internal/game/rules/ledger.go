package rules

import "github.com/projectcards/project-game-server/internal/catalog"

// Resources are the scarce budget and time plus the accrued value score.
type Resources struct {
	Budget int `json:"budget"`
	Time   int `json:"time"`
	Value  int `json:"value"`
}

// Apply returns r with the bundle's deltas applied. Budget and time are
// floored at zero; value is unbounded in both directions.
func Apply(r Resources, effect catalog.EffectBundle) Resources {
	return Resources{
		Budget: floorZero(r.Budget + effect.BudgetDelta),
		Time:   floorZero(r.Time + effect.TimeDelta),
		Value:  r.Value + effect.ValueDelta,
	}
}

// Delta reports the change actually applied between two resource states,
// which differs from the requested bundle when clamping occurred.
func Delta(before, after Resources) catalog.EffectBundle {
	return catalog.EffectBundle{
		BudgetDelta: after.Budget - before.Budget,
		TimeDelta:   after.Time - before.Time,
		ValueDelta:  after.Value - before.Value,
	}
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
