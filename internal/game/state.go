package game

import (
	"github.com/projectcards/project-game-server/internal/catalog"
	"github.com/projectcards/project-game-server/internal/game/rules"
)

// GameState is the read-only projection of a session handed to callers.
type GameState struct {
	Budget           int               `json:"budget"`
	Time             int               `json:"time"`
	Value            int               `json:"value"`
	CurrentPhase     string            `json:"currentPhase"`
	CardUsage        rules.KindCounts  `json:"cardUsage"`
	CardLimits       rules.KindCounts  `json:"cardLimits"`
	RemainingTurns   int               `json:"remainingTurns"`
	Status           rules.PhaseStatus `json:"status"`
	PendingNextPhase *string           `json:"pendingNextPhase"`
	PendingPenalty   *rules.Penalty    `json:"pendingPenalty"`
	FinalScore       *int              `json:"finalScore,omitempty"`
}

// Resources returns the budget, time and value triple.
func (s GameState) Resources() rules.Resources {
	return rules.Resources{Budget: s.Budget, Time: s.Time, Value: s.Value}
}

// Completed reports whether the game has ended.
func (s GameState) Completed() bool {
	return s.Status == rules.StatusCompleted
}

// PlayedCard is one played or drawn instance of a catalog card. The resolved
// effect is derived at play time and is not part of the catalog entry.
type PlayedCard struct {
	InstanceID     string               `json:"instanceId"`
	CardID         string               `json:"cardId"`
	Kind           catalog.Kind         `json:"kind"`
	Phase          string               `json:"phase"`
	ResolvedEffect catalog.EffectBundle `json:"resolvedEffect"`
	AppliedEffect  catalog.EffectBundle `json:"appliedEffect"`
	Matched        bool                 `json:"matched"`

	// Quiz only.
	Answered bool `json:"answered,omitempty"`
	Answer   int  `json:"answer,omitempty"`
	Correct  bool `json:"correct,omitempty"`
	Awarded  bool `json:"awarded,omitempty"`
}

// Effect is the structured result of applying a card. The presentation
// layer decides if and how to animate it.
type Effect struct {
	CardID string `json:"cardId"`
	// Requested is the bundle before clamping; Applied is what actually
	// changed on the ledger.
	Requested catalog.EffectBundle `json:"requested"`
	Applied   catalog.EffectBundle `json:"applied"`
	Message   string               `json:"message,omitempty"`
	// Matched is false when the card declared conditions and none applied.
	Matched bool `json:"matched"`
}

// PlayResult is returned by PlayCard.
type PlayResult struct {
	Accepted   bool             `json:"accepted"`
	InstanceID string           `json:"instanceId"`
	Card       catalog.Card     `json:"card"`
	Effect     *Effect          `json:"effect,omitempty"`
	Milestone  *rules.Milestone `json:"milestone,omitempty"`
	State      GameState        `json:"state"`
}

// DrawResult is returned by DrawRandomCard. Effect is nil for quiz cards,
// whose reward is settled by SubmitQuizAnswer.
type DrawResult struct {
	InstanceID string           `json:"instanceId"`
	Card       catalog.Card     `json:"card"`
	Effect     *Effect          `json:"effect,omitempty"`
	Milestone  *rules.Milestone `json:"milestone,omitempty"`
	State      GameState        `json:"state"`
}

// QuizResult is returned by SubmitQuizAnswer.
type QuizResult struct {
	Correct       bool      `json:"correct"`
	Rewarded      bool      `json:"rewarded"`
	CorrectAnswer int       `json:"correctAnswer"`
	Comment       string    `json:"comment,omitempty"`
	Effect        *Effect   `json:"effect,omitempty"`
	State         GameState `json:"state"`
}

// Operation names the engine call that produced an Outcome.
type Operation string

const (
	OpStart            Operation = "start"
	OpPlay             Operation = "play"
	OpDraw             Operation = "draw"
	OpQuizAnswer       Operation = "quiz_answer"
	OpTriggerMilestone Operation = "trigger_milestone"
	OpConfirmMilestone Operation = "confirm_milestone"
	OpRemoveFromBoard  Operation = "remove_from_board"
	OpRestart          Operation = "restart"
)

// Outcome is delivered to the session observer after every state-changing
// operation.
type Outcome struct {
	SessionID string           `json:"sessionId"`
	Operation Operation        `json:"operation"`
	CardID    string           `json:"cardId,omitempty"`
	Effect    *Effect          `json:"effect,omitempty"`
	Milestone *rules.Milestone `json:"milestone,omitempty"`
	State     GameState        `json:"state"`
	// Snapshot is taken under the session lock together with the change.
	Snapshot *Snapshot `json:"-"`
}

// Observer receives outcomes. It runs after the session lock is released and
// may call back into the session.
type Observer func(Outcome)
