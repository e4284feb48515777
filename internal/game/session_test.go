package game

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/projectcards/project-game-server/internal/catalog"
	"github.com/projectcards/project-game-server/internal/definition"
	apperrors "github.com/projectcards/project-game-server/internal/errors"
	"github.com/projectcards/project-game-server/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func loadGame(t *testing.T) *definition.Definition {
	t.Helper()
	def, err := definition.Load("../definition/testdata/game.json")
	require.NoError(t, err)
	return def
}

func parseGame(t *testing.T, doc string) *definition.Definition {
	t.Helper()
	def, err := definition.Parse([]byte(doc), definition.FormatYAML)
	require.NoError(t, err)
	return def
}

func newTestSession(t *testing.T, def *definition.Definition, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithSeed(42)}, opts...)
	s, err := NewSession(def, opts...)
	require.NoError(t, err)
	return s
}

func requireCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.CodeOf(err), "error: %v", err)
}

func TestNewSessionStartsAtFirstPhase(t *testing.T) {
	s := newTestSession(t, loadGame(t), WithID("fixed"))

	st := s.State()
	assert.Equal(t, "fixed", s.ID())
	assert.Equal(t, 100, st.Budget)
	assert.Equal(t, 50, st.Time)
	assert.Equal(t, 0, st.Value)
	assert.Equal(t, "initiation", st.CurrentPhase)
	assert.Equal(t, rules.KindCounts{}, st.CardUsage)
	assert.Equal(t, rules.KindCounts{Action: 1, Event: 1}, st.CardLimits)
	assert.Equal(t, 2, st.RemainingTurns)
	assert.Equal(t, rules.StatusInPhase, st.Status)
	assert.Nil(t, st.PendingNextPhase)
	assert.Nil(t, st.PendingPenalty)
	assert.Nil(t, st.FinalScore)
	assert.Empty(t, s.Board())
}

func TestNewSessionRejectsIncompleteDefinition(t *testing.T) {
	_, err := NewSession(nil)
	requireCode(t, err, apperrors.CodeInvalidConfiguration)

	_, err = NewSession(&definition.Definition{})
	requireCode(t, err, apperrors.CodeInvalidConfiguration)
}

// Charter then the single initiation event: milestone succeeds and the
// next phase starts with no penalty.
func TestMilestoneSuccessAdvancesPhase(t *testing.T) {
	s := newTestSession(t, loadGame(t))

	play, err := s.PlayCard("charter")
	require.NoError(t, err)
	assert.True(t, play.Accepted)
	assert.NotEmpty(t, play.InstanceID)
	require.NotNil(t, play.Effect)
	assert.Equal(t, catalog.EffectBundle{ValueDelta: 1}, play.Effect.Applied)
	assert.Nil(t, play.Milestone)
	assert.Equal(t, rules.KindCounts{Action: 1}, play.State.CardUsage)
	assert.Equal(t, []string{"charter"}, s.Board())

	draw, err := s.DrawRandomCard(catalog.KindEvent)
	require.NoError(t, err)
	assert.Equal(t, "sponsor-visit", draw.Card.ID)
	require.NotNil(t, draw.Effect)
	assert.True(t, draw.Effect.Matched)
	assert.Equal(t, 2, draw.Effect.Applied.ValueDelta)
	assert.Equal(t, "The sponsor is pleased.", draw.Effect.Message)

	require.NotNil(t, draw.Milestone)
	assert.True(t, draw.Milestone.Success)
	assert.Empty(t, draw.Milestone.Missing)
	assert.Equal(t, "planning", draw.Milestone.NextPhase)
	assert.Equal(t, rules.StatusMilestonePending, draw.State.Status)
	require.NotNil(t, draw.State.PendingNextPhase)
	assert.Equal(t, "planning", *draw.State.PendingNextPhase)
	require.NotNil(t, draw.State.PendingPenalty)
	assert.Equal(t, 0, draw.State.PendingPenalty.Budget)
	assert.Equal(t, "Milestone reached with every deliverable in place.", draw.State.PendingPenalty.Message)

	st, err := s.ConfirmMilestone()
	require.NoError(t, err)
	assert.Equal(t, "planning", st.CurrentPhase)
	assert.Equal(t, rules.StatusInPhase, st.Status)
	assert.Equal(t, rules.KindCounts{}, st.CardUsage)
	assert.Equal(t, rules.KindCounts{Action: 2, Event: 1, Quiz: 1}, st.CardLimits)
	assert.Equal(t, 100, st.Budget)
	assert.Equal(t, 50, st.Time)
	assert.Equal(t, 3, st.Value)
	assert.Nil(t, st.PendingPenalty)

	// The board carries across phases.
	assert.Equal(t, []string{"charter"}, s.Board())
}

func TestMilestoneFailureAppliesPenalty(t *testing.T) {
	s := newTestSession(t, loadGame(t))

	_, err := s.PlayCard("stakeholders")
	require.NoError(t, err)
	draw, err := s.DrawRandomCard(catalog.KindEvent)
	require.NoError(t, err)
	require.NotNil(t, draw.Effect)
	assert.True(t, draw.Effect.Matched)
	assert.Equal(t, "The sponsor requests rework.", draw.Effect.Message)
	assert.Equal(t, -3, draw.Effect.Applied.TimeDelta)

	require.NotNil(t, draw.Milestone)
	assert.False(t, draw.Milestone.Success)
	assert.Equal(t, []string{"Charter"}, draw.Milestone.Missing)
	assert.Equal(t, rules.Penalty{Time: 2, Budget: 10, Message: "Incomplete (missing: Charter)"}, draw.Milestone.Penalty)

	before := s.State()
	assert.Equal(t, 95, before.Budget)
	assert.Equal(t, 46, before.Time)

	st, err := s.ConfirmMilestone()
	require.NoError(t, err)
	assert.Equal(t, 85, st.Budget)
	assert.Equal(t, 44, st.Time)
	assert.Equal(t, 2, st.Value)
	assert.Equal(t, "planning", st.CurrentPhase)
}

func TestFullGameCompletes(t *testing.T) {
	s := newTestSession(t, loadGame(t))

	_, err := s.PlayCard("charter")
	require.NoError(t, err)
	_, err = s.DrawRandomCard(catalog.KindEvent)
	require.NoError(t, err)
	_, err = s.ConfirmMilestone()
	require.NoError(t, err)

	_, err = s.PlayCard("risk-plan")
	require.NoError(t, err)
	_, err = s.PlayCard("stakeholders")
	require.NoError(t, err)

	storm, err := s.DrawRandomCard(catalog.KindEvent)
	require.NoError(t, err)
	assert.Equal(t, "storm", storm.Card.ID)
	require.NotNil(t, storm.Effect)
	assert.True(t, storm.Effect.Matched)
	assert.Equal(t, "Fully prepared.", storm.Effect.Message)
	assert.True(t, storm.Effect.Applied.IsZero())

	quiz, err := s.DrawRandomCard(catalog.KindQuiz)
	require.NoError(t, err)
	assert.Equal(t, "quiz-wbs", quiz.Card.ID)
	assert.Nil(t, quiz.Effect)
	require.NotNil(t, quiz.Milestone)
	assert.True(t, quiz.Milestone.Final)
	assert.True(t, quiz.Milestone.Success)
	assert.Nil(t, quiz.State.PendingNextPhase)

	// The quiz stays answerable while the final milestone is pending.
	answer, err := s.SubmitQuizAnswer(0)
	require.NoError(t, err)
	assert.True(t, answer.Correct)
	assert.True(t, answer.Rewarded)
	assert.Equal(t, "The WBS decomposes the scope.", answer.Comment)

	st, err := s.ConfirmMilestone()
	require.NoError(t, err)
	assert.Equal(t, rules.StatusCompleted, st.Status)
	assert.True(t, st.Completed())
	require.NotNil(t, st.FinalScore)
	assert.Equal(t, 3+3+2+2, *st.FinalScore)
	assert.Equal(t, 85, st.Budget)
	assert.Equal(t, 49, st.Time)

	_, err = s.PlayCard("risk-plan")
	requireCode(t, err, apperrors.CodeGameCompleted)
	assert.True(t, errors.Is(err, apperrors.ErrGameCompleted))
	_, err = s.DrawRandomCard(catalog.KindEvent)
	requireCode(t, err, apperrors.CodeGameCompleted)
	_, err = s.TriggerMilestone()
	requireCode(t, err, apperrors.CodeGameCompleted)
	_, err = s.ConfirmMilestone()
	requireCode(t, err, apperrors.CodeInvalidTransition)
}

func TestConfirmMilestoneTwice(t *testing.T) {
	s := newTestSession(t, loadGame(t))

	_, err := s.ConfirmMilestone()
	requireCode(t, err, apperrors.CodeInvalidTransition)

	_, err = s.PlayCard("charter")
	require.NoError(t, err)
	_, err = s.DrawRandomCard(catalog.KindEvent)
	require.NoError(t, err)

	first, err := s.ConfirmMilestone()
	require.NoError(t, err)
	_, err = s.ConfirmMilestone()
	requireCode(t, err, apperrors.CodeInvalidTransition)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	assert.Equal(t, first, s.State())
}

func TestPlayCardValidation(t *testing.T) {
	s := newTestSession(t, loadGame(t))

	_, err := s.PlayCard("ghost")
	requireCode(t, err, apperrors.CodeCardNotFound)

	_, err = s.PlayCard("risk-plan")
	requireCode(t, err, apperrors.CodeCardNotEligible)

	_, err = s.PlayCard("quiz-wbs")
	requireCode(t, err, apperrors.CodeCardNotEligible)

	_, err = s.PlayCard("charter")
	require.NoError(t, err)

	_, err = s.PlayCard("stakeholders")
	requireCode(t, err, apperrors.CodeCardLimitReached)
	assert.True(t, errors.Is(err, apperrors.ErrCardLimitReached))

	// Rejected plays leave state untouched.
	st := s.State()
	assert.Equal(t, rules.KindCounts{Action: 1}, st.CardUsage)
	assert.Equal(t, 1, st.Value)
	assert.Equal(t, []string{"charter"}, s.Board())
}

func TestPlayCardAlreadyOnBoard(t *testing.T) {
	s := newTestSession(t, loadGame(t))

	_, err := s.PlayCard("stakeholders")
	require.NoError(t, err)
	_, err = s.DrawRandomCard(catalog.KindEvent)
	require.NoError(t, err)
	_, err = s.ConfirmMilestone()
	require.NoError(t, err)

	_, err = s.PlayCard("stakeholders")
	requireCode(t, err, apperrors.CodeCardAlreadyOnBoard)
	assert.Equal(t, 0, s.State().CardUsage.Action)
}

func TestPlayEventDirectly(t *testing.T) {
	s := newTestSession(t, loadGame(t))

	res, err := s.PlayCard("sponsor-visit")
	require.NoError(t, err)
	require.NotNil(t, res.Effect)
	assert.Equal(t, -3, res.Effect.Applied.TimeDelta)
	assert.Empty(t, s.Board())
	assert.Equal(t, map[string][]string{"event": {"sponsor-visit"}}, s.DrawHistory())

	// Drawn events never return to the pool.
	_, err = s.DrawRandomCard(catalog.KindEvent)
	requireCode(t, err, apperrors.CodeCardLimitReached)
}

func TestPlayWhileMilestonePending(t *testing.T) {
	s := newTestSession(t, loadGame(t))

	_, err := s.PlayCard("charter")
	require.NoError(t, err)
	_, err = s.DrawRandomCard(catalog.KindEvent)
	require.NoError(t, err)

	_, err = s.PlayCard("stakeholders")
	requireCode(t, err, apperrors.CodeInvalidTransition)
	_, err = s.DrawRandomCard(catalog.KindEvent)
	requireCode(t, err, apperrors.CodeInvalidTransition)
}

func TestDrawRandomCardValidation(t *testing.T) {
	s := newTestSession(t, loadGame(t))

	_, err := s.DrawRandomCard(catalog.KindAction)
	requireCode(t, err, apperrors.CodeInvalidCardKind)

	_, err = s.DrawRandomCard(catalog.Kind("spell"))
	requireCode(t, err, apperrors.CodeInvalidCardKind)

	// No quiz turns in initiation.
	_, err = s.DrawRandomCard(catalog.KindQuiz)
	requireCode(t, err, apperrors.CodeCardLimitReached)
}

const exhaustionDoc = `
gameInfo: {title: exhaustion}
gameSettings: {initialBudget: 10, initialTime: 10}
phases:
  - {name: one, cardLimits: {action: 0, event: 3, quiz: 0}}
  - {name: two, cardLimits: {action: 0, event: 1, quiz: 0}}
cards:
  - {id: e1, type: event, phases: [one, two], title: E1, description: d}
  - {id: e2, type: event, phases: [one], title: E2, description: d}
`

func TestDrawPoolExhaustion(t *testing.T) {
	s := newTestSession(t, parseGame(t, exhaustionDoc))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		res, err := s.DrawRandomCard(catalog.KindEvent)
		require.NoError(t, err)
		seen[res.Card.ID] = true
	}
	assert.Equal(t, map[string]bool{"e1": true, "e2": true}, seen)

	_, err := s.DrawRandomCard(catalog.KindEvent)
	requireCode(t, err, apperrors.CodePoolExhausted)
	assert.True(t, errors.Is(err, rules.ErrPoolEmpty))

	// The failed draw consumed no turn.
	st := s.State()
	assert.Equal(t, 2, st.CardUsage.Event)
	assert.Equal(t, 1, st.RemainingTurns)

	_, err = s.TriggerMilestone()
	requireCode(t, err, apperrors.CodeInvalidTransition)
}

func TestDrawHistorySpansPhases(t *testing.T) {
	s := newTestSession(t, parseGame(t, `
gameInfo: {title: spans}
gameSettings: {initialBudget: 10, initialTime: 10}
phases:
  - {name: one, cardLimits: {action: 0, event: 1, quiz: 0}}
  - {name: two, cardLimits: {action: 0, event: 1, quiz: 0}}
cards:
  - {id: e1, type: event, phases: [one, two], title: E1, description: d}
`))

	_, err := s.DrawRandomCard(catalog.KindEvent)
	require.NoError(t, err)
	_, err = s.ConfirmMilestone()
	require.NoError(t, err)

	_, err = s.DrawRandomCard(catalog.KindEvent)
	requireCode(t, err, apperrors.CodePoolExhausted)
}

func TestDrawIsDeterministicForSeed(t *testing.T) {
	def := parseGame(t, exhaustionDoc)
	order := func() []string {
		s := newTestSession(t, def, WithRand(rand.New(rand.NewSource(7))))
		var ids []string
		for i := 0; i < 2; i++ {
			res, err := s.DrawRandomCard(catalog.KindEvent)
			require.NoError(t, err)
			ids = append(ids, res.Card.ID)
		}
		return ids
	}
	assert.Equal(t, order(), order())
}

func TestResourcesClampAtZero(t *testing.T) {
	s := newTestSession(t, parseGame(t, `
gameInfo: {title: clamp}
gameSettings: {initialBudget: 3, initialTime: 1, initialValue: 0}
phases:
  - {name: p, cardLimits: {action: 2, event: 0, quiz: 0}}
cards:
  - {id: big, type: action, phases: [p], title: Big, description: d, costBudget: 10, costTime: 4, valueDelta: -2}
`))

	res, err := s.PlayCard("big")
	require.NoError(t, err)
	require.NotNil(t, res.Effect)
	assert.Equal(t, catalog.EffectBundle{BudgetDelta: -10, TimeDelta: -4, ValueDelta: -2}, res.Effect.Requested)
	assert.Equal(t, catalog.EffectBundle{BudgetDelta: -3, TimeDelta: -1, ValueDelta: -2}, res.Effect.Applied)

	st := s.State()
	assert.Equal(t, 0, st.Budget)
	assert.Equal(t, 0, st.Time)
	assert.Equal(t, -2, st.Value)
}

func TestConditionEvaluatedBeforePlacement(t *testing.T) {
	s := newTestSession(t, parseGame(t, `
gameInfo: {title: self}
gameSettings: {initialBudget: 10, initialTime: 10}
phases:
  - {name: p, cardLimits: {action: 1, event: 0, quiz: 0}}
cards:
  - id: a
    type: action
    phases: [p]
    title: A
    description: d
    conditions:
      - {type: presence, cardId: a, expectedPresent: true, effect: {valueDelta: 100}}
      - {type: presence, cardId: ghost, expectedPresent: false, effect: {valueDelta: 1}}
`))

	res, err := s.PlayCard("a")
	require.NoError(t, err)
	require.NotNil(t, res.Effect)
	assert.True(t, res.Effect.Matched)
	assert.Equal(t, 1, res.Effect.Applied.ValueDelta)
}

const zeroTurnDoc = `
gameInfo: {title: zero}
gameSettings: {initialBudget: 10, initialTime: 10}
phases:
  - {name: gate, cardLimits: {action: 0, event: 0, quiz: 0}, requiredCardTitles: [Plan], penalty: {budget: 4}}
  - {name: work, cardLimits: {action: 1, event: 0, quiz: 0}}
cards:
  - {id: plan, type: action, phases: [work], title: Plan, description: d}
`

func TestTriggerMilestoneOnZeroTurnPhase(t *testing.T) {
	s := newTestSession(t, parseGame(t, zeroTurnDoc))

	st := s.State()
	assert.Equal(t, 0, st.RemainingTurns)
	assert.Equal(t, rules.StatusInPhase, st.Status)

	m, err := s.TriggerMilestone()
	require.NoError(t, err)
	assert.False(t, m.Success)
	assert.Equal(t, "Missing required cards: Plan", m.Penalty.Message)

	// A second trigger is a no-op.
	again, err := s.TriggerMilestone()
	require.NoError(t, err)
	assert.Equal(t, m, again)

	pending, ok := s.PendingMilestone()
	require.True(t, ok)
	assert.Equal(t, m, pending)

	st, err = s.ConfirmMilestone()
	require.NoError(t, err)
	assert.Equal(t, "work", st.CurrentPhase)
	assert.Equal(t, 6, st.Budget)
}

func TestTriggerMilestoneWithTurnsLeft(t *testing.T) {
	s := newTestSession(t, loadGame(t))
	_, err := s.TriggerMilestone()
	requireCode(t, err, apperrors.CodeInvalidTransition)
	assert.Equal(t, rules.StatusInPhase, s.State().Status)
}

const quizDoc = `
gameInfo: {title: quiz}
gameSettings: {initialBudget: 10, initialTime: 10, quizReward: 5}
phases:
  - {name: p, cardLimits: {action: 0, event: 0, quiz: 2}}
cards:
  - {id: q1, type: quiz, phases: [p], title: Q1, description: d, options: [a, b, c], correctAnswer: 2, comment: because}
  - {id: q2, type: quiz, phases: [p], title: Q2, description: d, options: [a, b], correctAnswer: 1, valueDelta: 9}
`

func TestSubmitQuizAnswer(t *testing.T) {
	s := newTestSession(t, parseGame(t, quizDoc))

	_, err := s.SubmitQuizAnswer(0)
	requireCode(t, err, apperrors.CodeNoActiveQuiz)

	drawn, err := s.DrawRandomCard(catalog.KindQuiz)
	require.NoError(t, err)
	assert.Nil(t, drawn.Effect)
	assert.Equal(t, 0, drawn.State.Value)

	inst, card, ok := s.ActiveQuiz()
	require.True(t, ok)
	assert.Equal(t, drawn.InstanceID, inst.InstanceID)
	assert.Equal(t, drawn.Card.ID, card.ID)

	_, err = s.SubmitQuizAnswer(len(card.Options))
	requireCode(t, err, apperrors.CodeInvalidAnswer)
	_, err = s.SubmitQuizAnswer(-1)
	requireCode(t, err, apperrors.CodeInvalidAnswer)

	res, err := s.SubmitQuizAnswer(card.CorrectAnswer)
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.True(t, res.Rewarded)
	want := card.ValueDelta
	if want == 0 {
		want = 5
	}
	assert.Equal(t, want, res.State.Value)

	// Resubmitting never pays twice.
	again, err := s.SubmitQuizAnswer(card.CorrectAnswer)
	require.NoError(t, err)
	assert.True(t, again.Correct)
	assert.False(t, again.Rewarded)
	assert.Equal(t, want, again.State.Value)
}

func TestWrongQuizAnswerIsFinal(t *testing.T) {
	s := newTestSession(t, parseGame(t, quizDoc))

	_, err := s.DrawRandomCard(catalog.KindQuiz)
	require.NoError(t, err)
	_, card, ok := s.ActiveQuiz()
	require.True(t, ok)

	wrong := (card.CorrectAnswer + 1) % len(card.Options)
	res, err := s.SubmitQuizAnswer(wrong)
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.False(t, res.Rewarded)
	assert.Equal(t, card.CorrectAnswer, res.CorrectAnswer)

	res, err = s.SubmitQuizAnswer(card.CorrectAnswer)
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.False(t, res.Rewarded)
	assert.Equal(t, 0, s.State().Value)
}

func TestQuizExpiresAtPhaseConfirm(t *testing.T) {
	s := newTestSession(t, parseGame(t, `
gameInfo: {title: expire}
gameSettings: {initialBudget: 10, initialTime: 10, quizReward: 1}
phases:
  - {name: one, cardLimits: {action: 0, event: 0, quiz: 1}}
  - {name: two, cardLimits: {action: 0, event: 0, quiz: 1}}
cards:
  - {id: q, type: quiz, phases: [one], title: Q, description: d, options: [a, b], correctAnswer: 0}
`))

	_, err := s.DrawRandomCard(catalog.KindQuiz)
	require.NoError(t, err)
	_, err = s.ConfirmMilestone()
	require.NoError(t, err)

	_, err = s.SubmitQuizAnswer(0)
	requireCode(t, err, apperrors.CodeNoActiveQuiz)
}

func TestRemoveFromBoardKeepsHistory(t *testing.T) {
	s := newTestSession(t, loadGame(t))

	_, err := s.PlayCard("charter")
	require.NoError(t, err)
	require.NoError(t, s.RemoveFromBoard("charter"))

	assert.Empty(t, s.Board())
	assert.Equal(t, []string{"charter"}, s.DrawHistory()["action"])

	err = s.RemoveFromBoard("charter")
	requireCode(t, err, apperrors.CodeCardNotFound)
}

func TestRestart(t *testing.T) {
	s := newTestSession(t, loadGame(t))

	_, err := s.PlayCard("stakeholders")
	require.NoError(t, err)
	_, err = s.DrawRandomCard(catalog.KindEvent)
	require.NoError(t, err)

	id := s.ID()
	st := s.Restart()
	assert.Equal(t, id, s.ID())
	assert.Equal(t, "initiation", st.CurrentPhase)
	assert.Equal(t, 100, st.Budget)
	assert.Equal(t, rules.StatusInPhase, st.Status)
	assert.Empty(t, s.Board())
	assert.Empty(t, s.DrawHistory())
	assert.Empty(t, s.Played())
}

func TestGlobalDrawScope(t *testing.T) {
	def := parseGame(t, `
gameInfo: {title: scope}
gameSettings: {initialBudget: 10, initialTime: 10}
phases:
  - {name: p, cardLimits: {action: 1, event: 1, quiz: 0}}
cards:
  - {id: a, type: action, phases: [p], title: A, description: d}
`)
	s := newTestSession(t, def, WithDrawScope(rules.DrawScopeGlobal))
	_, err := s.PlayCard("a")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"*": {"a"}}, s.DrawHistory())
}

func TestObserverReceivesOutcomes(t *testing.T) {
	var (
		mu       sync.Mutex
		outcomes []Outcome
		s        *Session
	)
	s = newTestSession(t, loadGame(t), WithID("observed"), WithObserver(func(o Outcome) {
		// Reading back from the session must not deadlock.
		_ = s.State()
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}))

	_, err := s.PlayCard("charter")
	require.NoError(t, err)
	_, err = s.PlayCard("ghost")
	require.Error(t, err)
	_, err = s.DrawRandomCard(catalog.KindEvent)
	require.NoError(t, err)
	_, err = s.ConfirmMilestone()
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 3)
	assert.Equal(t, OpPlay, outcomes[0].Operation)
	assert.Equal(t, "charter", outcomes[0].CardID)
	assert.Equal(t, "observed", outcomes[0].SessionID)
	assert.Equal(t, OpDraw, outcomes[1].Operation)
	assert.NotNil(t, outcomes[1].Milestone)
	assert.Equal(t, OpConfirmMilestone, outcomes[2].Operation)
	assert.Equal(t, "planning", outcomes[2].State.CurrentPhase)
}

func TestConcurrentPlaysRespectLimits(t *testing.T) {
	s := newTestSession(t, parseGame(t, `
gameInfo: {title: race}
gameSettings: {initialBudget: 100, initialTime: 100}
phases:
  - {name: p, cardLimits: {action: 3, event: 0, quiz: 0}}
cards:
  - {id: a1, type: action, phases: [p], title: A1, description: d, costBudget: 1}
  - {id: a2, type: action, phases: [p], title: A2, description: d, costBudget: 1}
  - {id: a3, type: action, phases: [p], title: A3, description: d, costBudget: 1}
  - {id: a4, type: action, phases: [p], title: A4, description: d, costBudget: 1}
  - {id: a5, type: action, phases: [p], title: A5, description: d, costBudget: 1}
`))

	var wg sync.WaitGroup
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = s.PlayCard(id)
		}(id)
	}
	wg.Wait()

	st := s.State()
	assert.Equal(t, 3, st.CardUsage.Action)
	assert.Equal(t, 97, st.Budget)
	assert.Len(t, s.Board(), 3)
	assert.Equal(t, rules.StatusMilestonePending, st.Status)
}

func TestSecondQuizWaitsForAnswer(t *testing.T) {
	s := newTestSession(t, parseGame(t, quizDoc))

	first, err := s.DrawRandomCard(catalog.KindQuiz)
	require.NoError(t, err)

	_, err = s.DrawRandomCard(catalog.KindQuiz)
	requireCode(t, err, apperrors.CodeInvalidTransition)
	other := "q1"
	if first.Card.ID == other {
		other = "q2"
	}
	_, err = s.PlayCard(other)
	requireCode(t, err, apperrors.CodeInvalidTransition)
	assert.Equal(t, 1, s.State().CardUsage.Quiz)

	_, err = s.SubmitQuizAnswer(0)
	require.NoError(t, err)

	second, err := s.DrawRandomCard(catalog.KindQuiz)
	require.NoError(t, err)
	assert.Equal(t, other, second.Card.ID)
	inst, _, ok := s.ActiveQuiz()
	require.True(t, ok)
	assert.Equal(t, second.InstanceID, inst.InstanceID)
}

func TestOutcomeCarriesSnapshotOfChange(t *testing.T) {
	var outcomes []Outcome
	s := newTestSession(t, loadGame(t), WithObserver(func(o Outcome) {
		outcomes = append(outcomes, o)
	}))

	_, err := s.PlayCard("charter")
	require.NoError(t, err)
	_, err = s.DrawRandomCard(catalog.KindEvent)
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	require.NotNil(t, outcomes[0].Snapshot)
	assert.Equal(t, []string{"charter"}, outcomes[0].Snapshot.Board)
	assert.Equal(t, 1, outcomes[0].Snapshot.State.RemainingTurns)
	assert.Equal(t, uint64(1), outcomes[0].Snapshot.Revision)
	assert.Equal(t, uint64(2), outcomes[1].Snapshot.Revision)
	assert.Equal(t, rules.StatusMilestonePending, outcomes[1].Snapshot.State.Status)
	assert.True(t, outcomes[1].Snapshot.VerifyChecksum())
}
