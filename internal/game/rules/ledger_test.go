package rules

import (
	"testing"

	"github.com/projectcards/project-game-server/internal/catalog"
	"github.com/stretchr/testify/assert"
)

func TestApplyClampsBudgetAndTime(t *testing.T) {
	r := Resources{Budget: 5, Time: 3, Value: 0}

	out := Apply(r, catalog.EffectBundle{BudgetDelta: -1000})
	assert.Equal(t, 0, out.Budget)
	assert.Equal(t, 3, out.Time)

	out = Apply(r, catalog.EffectBundle{TimeDelta: -4})
	assert.Equal(t, 0, out.Time)
}

func TestApplyValueUnbounded(t *testing.T) {
	out := Apply(Resources{Value: 1}, catalog.EffectBundle{ValueDelta: -5})
	assert.Equal(t, -4, out.Value)

	out = Apply(out, catalog.EffectBundle{ValueDelta: 100})
	assert.Equal(t, 96, out.Value)
}

func TestApplyIsPure(t *testing.T) {
	r := Resources{Budget: 10, Time: 10, Value: 10}
	_ = Apply(r, catalog.EffectBundle{BudgetDelta: -3})
	assert.Equal(t, Resources{Budget: 10, Time: 10, Value: 10}, r)
}

func TestDeltaReportsClampedChange(t *testing.T) {
	before := Resources{Budget: 5, Time: 5}
	after := Apply(before, catalog.EffectBundle{BudgetDelta: -8, TimeDelta: 2, ValueDelta: 1})

	assert.Equal(t, catalog.EffectBundle{BudgetDelta: -5, TimeDelta: 2, ValueDelta: 1}, Delta(before, after))
}
