package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPhases(t *testing.T) *Phases {
	t.Helper()
	phases, err := NewPhases([]PhaseConfig{
		{Name: "execution", Order: 3, CardLimits: KindCounts{Action: 2}},
		{
			Name:               "initiation",
			Order:              1,
			CardLimits:         KindCounts{Action: 1, Event: 1},
			RequiredCardTitles: []string{"Charter"},
			Penalty:            Penalty{Time: 2, Budget: 10, Message: "Incomplete"},
		},
		{Name: "planning", Order: 2, CardLimits: KindCounts{Action: 2, Event: 1, Quiz: 1}},
	})
	require.NoError(t, err)
	return phases
}

func TestPhasesOrdering(t *testing.T) {
	phases := testPhases(t)

	assert.Equal(t, []string{"initiation", "planning", "execution"}, phases.Names())
	assert.Equal(t, "initiation", phases.First().Name)

	next, ok := phases.Next("initiation")
	require.True(t, ok)
	assert.Equal(t, "planning", next.Name)

	_, ok = phases.Next("execution")
	assert.False(t, ok)

	cfg, ok := phases.Get("planning")
	require.True(t, ok)
	assert.Equal(t, 4, cfg.TotalTurns())
}

func TestNewPhasesRejectsDuplicates(t *testing.T) {
	_, err := NewPhases([]PhaseConfig{{Name: "a", Order: 1}, {Name: "a", Order: 2}})
	assert.Error(t, err)

	_, err = NewPhases([]PhaseConfig{{Name: "a", Order: 1}, {Name: "b", Order: 1}})
	assert.Error(t, err)

	_, err = NewPhases(nil)
	assert.Error(t, err)
}

func TestComputeMilestoneMissingRequirement(t *testing.T) {
	phases := testPhases(t)
	initiation, _ := phases.Get("initiation")
	next, _ := phases.Next("initiation")

	m := ComputeMilestone(initiation, []string{"Risk Plan"}, &next, "Well done")

	assert.False(t, m.Success)
	assert.Equal(t, []string{"Charter"}, m.Missing)
	assert.Equal(t, 2, m.Penalty.Time)
	assert.Equal(t, 10, m.Penalty.Budget)
	assert.Contains(t, m.Penalty.Message, "Charter")
	assert.Contains(t, m.Penalty.Message, "Incomplete")
	assert.Equal(t, "planning", m.NextPhase)
	assert.False(t, m.Final)
}

func TestComputeMilestoneSuccess(t *testing.T) {
	phases := testPhases(t)
	initiation, _ := phases.Get("initiation")
	next, _ := phases.Next("initiation")

	m := ComputeMilestone(initiation, []string{"Charter"}, &next, "Well done")

	assert.True(t, m.Success)
	assert.Empty(t, m.Missing)
	assert.Equal(t, Penalty{Message: "Well done"}, m.Penalty)
	assert.True(t, m.Penalty.Effect().IsZero())
}

func TestComputeMilestoneFinalPhase(t *testing.T) {
	phases := testPhases(t)
	execution, _ := phases.Get("execution")

	m := ComputeMilestone(execution, nil, nil, "done")
	assert.True(t, m.Final)
	assert.Empty(t, m.NextPhase)
	assert.True(t, m.Success)
}

func TestMissingTitles(t *testing.T) {
	assert.Equal(t, []string{"B", "C"}, MissingTitles([]string{"A", "B", "C", "B"}, []string{"A"}))
	assert.Nil(t, MissingTitles(nil, []string{"A"}))
}

func TestPenaltyMessage(t *testing.T) {
	assert.Equal(t, "Missing required cards: A, B", PenaltyMessage("", []string{"A", "B"}))
	assert.Equal(t, "Incomplete (missing: A)", PenaltyMessage("Incomplete", []string{"A"}))
}

func TestPenaltyEffectDeducts(t *testing.T) {
	effect := Penalty{Time: 2, Budget: 10}.Effect()
	assert.Equal(t, -10, effect.BudgetDelta)
	assert.Equal(t, -2, effect.TimeDelta)
}

func TestPhaseStatusText(t *testing.T) {
	data, err := json.Marshal(StatusMilestonePending)
	require.NoError(t, err)
	assert.Equal(t, `"MILESTONE_PENDING"`, string(data))

	var s PhaseStatus
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, StatusMilestonePending, s)

	assert.Error(t, s.UnmarshalText([]byte("BOGUS")))
	assert.Equal(t, "STATUS_9", PhaseStatus(9).String())
}
