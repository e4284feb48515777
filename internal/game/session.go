package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/projectcards/project-game-server/internal/catalog"
	"github.com/projectcards/project-game-server/internal/definition"
	apperrors "github.com/projectcards/project-game-server/internal/errors"
	"github.com/projectcards/project-game-server/internal/game/rules"
	"go.uber.org/zap"
)

// Session owns one game's state. Every exported operation runs to completion
// under the session mutex, so readers never observe an effect applied
// without its turn usage recorded.
type Session struct {
	mu sync.Mutex

	id       string
	def      *definition.Definition
	logger   *zap.Logger
	rng      *rand.Rand
	scope    rules.DrawScope
	observer Observer

	resources  rules.Resources
	phase      rules.PhaseConfig
	turns      *rules.TurnBudget
	status     rules.PhaseStatus
	milestone  *rules.Milestone
	finalScore int

	board      []string
	boardSet   rules.CardSet
	history    *rules.DrawHistory
	played     []PlayedCard
	activeQuiz int

	// revision counts committed state changes. Restart keeps counting.
	revision uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRand sets the random source used for draws.
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithSeed seeds the draw source deterministically.
func WithSeed(seed int64) Option {
	return func(s *Session) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithDrawScope overrides the document's draw-history scope.
func WithDrawScope(scope rules.DrawScope) Option {
	return func(s *Session) {
		if scope != "" {
			s.scope = scope
		}
	}
}

// WithObserver registers a callback for state-changing operations.
func WithObserver(observer Observer) Option {
	return func(s *Session) {
		s.observer = observer
	}
}

// WithID sets the session id. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// NewSession starts a game at the first configured phase.
func NewSession(def *definition.Definition, opts ...Option) (*Session, error) {
	if def == nil || def.Phases == nil || def.Catalog == nil {
		return nil, apperrors.New(apperrors.CodeInvalidConfiguration, "definition is incomplete")
	}
	s := &Session{
		id:     uuid.NewString(),
		def:    def,
		logger: zap.NewNop(),
		scope:  def.Settings.DrawScope,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.scope == "" {
		s.scope = rules.DrawScopeKind
	}
	s.reset()

	s.logger.Info("session started",
		zap.String("session_id", s.id),
		zap.String("game", def.Info.Title),
		zap.String("phase", s.phase.Name),
		zap.String("draw_scope", string(s.scope)),
	)
	return s, nil
}

func (s *Session) reset() {
	s.resources = rules.Resources{
		Budget: s.def.Settings.InitialBudget,
		Time:   s.def.Settings.InitialTime,
		Value:  s.def.Settings.InitialValue,
	}
	s.phase = s.def.Phases.First()
	s.turns = rules.NewTurnBudget(s.phase.CardLimits)
	s.status = rules.StatusInPhase
	s.milestone = nil
	s.finalScore = 0
	s.board = nil
	s.boardSet = rules.NewCardSet()
	s.history = rules.NewDrawHistory(s.scope)
	s.played = nil
	s.activeQuiz = -1
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Definition returns the game definition the session runs.
func (s *Session) Definition() *definition.Definition {
	return s.def
}

// State returns the current read-only state projection.
func (s *Session) State() GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() GameState {
	st := GameState{
		Budget:         s.resources.Budget,
		Time:           s.resources.Time,
		Value:          s.resources.Value,
		CurrentPhase:   s.phase.Name,
		CardUsage:      s.turns.Usage(),
		CardLimits:     s.turns.Limits(),
		RemainingTurns: s.turns.Remaining(),
		Status:         s.status,
	}
	if s.milestone != nil {
		penalty := s.milestone.Penalty
		st.PendingPenalty = &penalty
		if !s.milestone.Final {
			next := s.milestone.NextPhase
			st.PendingNextPhase = &next
		}
	}
	if s.status == rules.StatusCompleted {
		score := s.finalScore
		st.FinalScore = &score
	}
	return st
}

// Board returns the ids of Action cards on the board in placement order.
func (s *Session) Board() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.board...)
}

// DrawHistory returns every id drawn or played, keyed by history scope.
func (s *Session) DrawHistory() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Export()
}

// Played returns the played instances in order.
func (s *Session) Played() []PlayedCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PlayedCard(nil), s.played...)
}

// PendingMilestone returns the computed milestone awaiting confirmation.
func (s *Session) PendingMilestone() (rules.Milestone, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.milestone == nil {
		return rules.Milestone{}, false
	}
	return *s.milestone, true
}

// ActiveQuiz returns the quiz instance awaiting or holding an answer.
func (s *Session) ActiveQuiz() (PlayedCard, catalog.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeQuiz < 0 {
		return PlayedCard{}, catalog.Card{}, false
	}
	inst := s.played[s.activeQuiz]
	card, _ := s.def.Catalog.Get(inst.CardID)
	return inst, card, true
}

// PlayCard places a card selected by the player. Action cards join the
// board; Event and Quiz cards are recorded in draw history.
func (s *Session) PlayCard(cardID string) (PlayResult, error) {
	s.mu.Lock()
	res, err := s.playCard(cardID)
	var snap *Snapshot
	if err == nil {
		snap = s.commitLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return PlayResult{}, err
	}
	s.notify(Outcome{Operation: OpPlay, CardID: cardID, Effect: res.Effect, Milestone: res.Milestone, State: res.State, Snapshot: snap})
	return res, nil
}

func (s *Session) playCard(cardID string) (PlayResult, error) {
	if err := s.requireInPhase(); err != nil {
		return PlayResult{}, err
	}
	card, ok := s.def.Catalog.Get(cardID)
	if !ok {
		return PlayResult{}, s.reject("play", cardID, apperrors.WithMetadata(apperrors.CodeCardNotFound,
			fmt.Sprintf("card %q is not in the catalog", cardID), map[string]string{"card_id": cardID}))
	}
	if err := s.checkPlayable(card); err != nil {
		return PlayResult{}, s.reject("play", cardID, err)
	}
	if card.Kind == catalog.KindQuiz {
		if err := s.requireNoOpenQuiz(); err != nil {
			return PlayResult{}, s.reject("play", cardID, err)
		}
	}
	switch card.Kind {
	case catalog.KindAction:
		if s.boardSet.Contains(card.ID) {
			return PlayResult{}, s.reject("play", cardID, apperrors.WithMetadata(apperrors.CodeCardAlreadyOnBoard,
				fmt.Sprintf("card %q is already on the board", card.Title), map[string]string{"card_id": card.ID}))
		}
	default:
		if s.history.Contains(card.Kind, card.ID) {
			return PlayResult{}, s.reject("play", cardID, apperrors.WithMetadata(apperrors.CodeCardNotEligible,
				fmt.Sprintf("card %q was already drawn", card.Title), map[string]string{"card_id": card.ID}))
		}
	}

	// Conditions are evaluated against the board before the card is placed.
	var effect *Effect
	if card.Kind != catalog.KindQuiz {
		e := s.applyCard(card)
		effect = &e
	}
	inst := s.record(card, effect)
	if card.Kind == catalog.KindAction {
		s.board = append(s.board, card.ID)
		s.boardSet.Add(card.ID)
	}
	s.history.Add(card.Kind, card.ID)
	milestone := s.consumeTurn(card.Kind)

	return PlayResult{
		Accepted:   true,
		InstanceID: inst.InstanceID,
		Card:       card,
		Effect:     effect,
		Milestone:  milestone,
		State:      s.stateLocked(),
	}, nil
}

// DrawRandomCard draws an undrawn Event or Quiz card eligible in the
// current phase. Event effects apply immediately; a Quiz becomes the active
// quiz awaiting SubmitQuizAnswer.
func (s *Session) DrawRandomCard(kind catalog.Kind) (DrawResult, error) {
	s.mu.Lock()
	res, err := s.drawRandomCard(kind)
	var snap *Snapshot
	if err == nil {
		snap = s.commitLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return DrawResult{}, err
	}
	s.notify(Outcome{Operation: OpDraw, CardID: res.Card.ID, Effect: res.Effect, Milestone: res.Milestone, State: res.State, Snapshot: snap})
	return res, nil
}

func (s *Session) drawRandomCard(kind catalog.Kind) (DrawResult, error) {
	if err := s.requireInPhase(); err != nil {
		return DrawResult{}, err
	}
	if kind != catalog.KindEvent && kind != catalog.KindQuiz {
		return DrawResult{}, s.reject("draw", string(kind), apperrors.WithMetadata(apperrors.CodeInvalidCardKind,
			fmt.Sprintf("%q cards cannot be drawn at random", kind), map[string]string{"kind": string(kind)}))
	}
	if !s.turns.CanPlay(kind) {
		return DrawResult{}, s.reject("draw", string(kind), s.limitError(kind))
	}
	if kind == catalog.KindQuiz {
		if err := s.requireNoOpenQuiz(); err != nil {
			return DrawResult{}, s.reject("draw", string(kind), err)
		}
	}

	card, err := rules.Draw(s.rng, kind, s.phase.Name, s.def.Catalog, s.history)
	if err != nil {
		return DrawResult{}, s.reject("draw", string(kind), apperrors.Wrap(apperrors.CodePoolExhausted,
			fmt.Sprintf("no undrawn %s cards left in phase %q", kind, s.phase.Name), err))
	}

	var effect *Effect
	if kind == catalog.KindEvent {
		e := s.applyCard(card)
		effect = &e
	}
	inst := s.record(card, effect)
	milestone := s.consumeTurn(kind)

	s.logger.Debug("card drawn",
		zap.String("session_id", s.id),
		zap.String("card_id", card.ID),
		zap.String("kind", string(kind)),
		zap.String("phase", s.phase.Name),
	)

	return DrawResult{
		InstanceID: inst.InstanceID,
		Card:       card,
		Effect:     effect,
		Milestone:  milestone,
		State:      s.stateLocked(),
	}, nil
}

// SubmitQuizAnswer settles the active quiz. The reward is granted at most
// once per quiz instance; later submissions report correctness only.
func (s *Session) SubmitQuizAnswer(answer int) (QuizResult, error) {
	s.mu.Lock()
	res, changed, err := s.submitQuizAnswer(answer)
	var snap *Snapshot
	if err == nil && changed {
		snap = s.commitLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return QuizResult{}, err
	}
	if changed {
		s.notify(Outcome{Operation: OpQuizAnswer, Effect: res.Effect, State: res.State, Snapshot: snap})
	}
	return res, nil
}

func (s *Session) submitQuizAnswer(answer int) (QuizResult, bool, error) {
	if s.activeQuiz < 0 {
		return QuizResult{}, false, apperrors.New(apperrors.CodeNoActiveQuiz, "no quiz is awaiting an answer")
	}
	inst := &s.played[s.activeQuiz]
	card, _ := s.def.Catalog.Get(inst.CardID)
	if answer < 0 || answer >= len(card.Options) {
		return QuizResult{}, false, apperrors.WithMetadata(apperrors.CodeInvalidAnswer,
			fmt.Sprintf("answer %d is not one of the %d options", answer, len(card.Options)),
			map[string]string{"card_id": card.ID})
	}

	res := QuizResult{
		Correct:       answer == card.CorrectAnswer,
		CorrectAnswer: card.CorrectAnswer,
		Comment:       card.Comment,
	}
	if inst.Answered {
		res.State = s.stateLocked()
		return res, false, nil
	}

	inst.Answered = true
	inst.Answer = answer
	inst.Correct = res.Correct
	if res.Correct && !inst.Awarded {
		reward := card.ValueDelta
		if reward == 0 {
			reward = s.def.Settings.QuizReward
		}
		requested := catalog.EffectBundle{ValueDelta: reward, Message: card.Comment}
		before := s.resources
		s.resources = rules.Apply(before, requested)
		inst.Awarded = true
		inst.ResolvedEffect = requested
		inst.AppliedEffect = rules.Delta(before, s.resources)
		res.Rewarded = true
		res.Effect = &Effect{
			CardID:    card.ID,
			Requested: requested,
			Applied:   inst.AppliedEffect,
			Message:   card.Comment,
			Matched:   true,
		}
	}

	s.logger.Info("quiz answered",
		zap.String("session_id", s.id),
		zap.String("card_id", card.ID),
		zap.Bool("correct", res.Correct),
		zap.Bool("rewarded", res.Rewarded),
	)
	res.State = s.stateLocked()
	return res, true, nil
}

// TriggerMilestone is the manual "skip to milestone" action. It is only
// permitted once the phase has no turns left and is a no-op while a
// milestone is already pending.
func (s *Session) TriggerMilestone() (rules.Milestone, error) {
	s.mu.Lock()
	m, changed, err := s.triggerMilestone()
	state := s.stateLocked()
	var snap *Snapshot
	if err == nil && changed {
		snap = s.commitLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return rules.Milestone{}, err
	}
	if changed {
		s.notify(Outcome{Operation: OpTriggerMilestone, Milestone: &m, State: state, Snapshot: snap})
	}
	return m, nil
}

func (s *Session) triggerMilestone() (rules.Milestone, bool, error) {
	switch s.status {
	case rules.StatusCompleted:
		return rules.Milestone{}, false, s.completedError()
	case rules.StatusMilestonePending:
		return *s.milestone, false, nil
	}
	if remaining := s.turns.Remaining(); remaining > 0 {
		return rules.Milestone{}, false, apperrors.WithMetadata(apperrors.CodeInvalidTransition,
			fmt.Sprintf("phase %q still has %d turns left", s.phase.Name, remaining),
			map[string]string{"phase": s.phase.Name})
	}
	return *s.enterMilestone(), true, nil
}

// ConfirmMilestone applies the pending outcome. With a next phase, the
// penalty is applied, usage resets and the next phase begins. Without one,
// the game completes with the current value as final score.
func (s *Session) ConfirmMilestone() (GameState, error) {
	s.mu.Lock()
	state, err := s.confirmMilestone()
	var snap *Snapshot
	if err == nil {
		snap = s.commitLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return GameState{}, err
	}
	s.notify(Outcome{Operation: OpConfirmMilestone, State: state, Snapshot: snap})
	return state, nil
}

func (s *Session) confirmMilestone() (GameState, error) {
	if s.status != rules.StatusMilestonePending || s.milestone == nil {
		s.logger.Error("milestone confirmed while not pending",
			zap.String("session_id", s.id),
			zap.String("status", s.status.String()),
		)
		return GameState{}, apperrors.WithMetadata(apperrors.CodeInvalidTransition,
			fmt.Sprintf("no milestone is pending (status %s)", s.status),
			map[string]string{"status": s.status.String()})
	}
	m := s.milestone

	if m.Final {
		s.status = rules.StatusCompleted
		s.finalScore = s.resources.Value
		s.milestone = nil
		s.activeQuiz = -1
		s.logger.Info("game completed",
			zap.String("session_id", s.id),
			zap.Int("final_score", s.finalScore),
		)
		return s.stateLocked(), nil
	}

	next, ok := s.def.Phases.Get(m.NextPhase)
	if !ok {
		return GameState{}, apperrors.New(apperrors.CodeInvalidTransition,
			fmt.Sprintf("next phase %q is not configured", m.NextPhase))
	}
	s.resources = rules.Apply(s.resources, m.Penalty.Effect())
	s.phase = next
	s.turns.Reset(next.CardLimits)
	s.status = rules.StatusInPhase
	s.milestone = nil
	s.activeQuiz = -1

	s.logger.Info("phase started",
		zap.String("session_id", s.id),
		zap.String("phase", next.Name),
		zap.Int("turns", next.TotalTurns()),
		zap.Int("budget", s.resources.Budget),
		zap.Int("time", s.resources.Time),
	)
	return s.stateLocked(), nil
}

// RemoveFromBoard takes an Action card off the board. Its draw history
// entry is kept so it cannot be drawn again.
func (s *Session) RemoveFromBoard(cardID string) error {
	s.mu.Lock()
	if !s.boardSet.Contains(cardID) {
		s.mu.Unlock()
		return apperrors.WithMetadata(apperrors.CodeCardNotFound,
			fmt.Sprintf("card %q is not on the board", cardID), map[string]string{"card_id": cardID})
	}
	s.boardSet.Remove(cardID)
	for i, id := range s.board {
		if id == cardID {
			s.board = append(s.board[:i], s.board[i+1:]...)
			break
		}
	}
	state := s.stateLocked()
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(Outcome{Operation: OpRemoveFromBoard, CardID: cardID, State: state, Snapshot: snap})
	return nil
}

// Restart discards all progress and starts again at the first phase.
func (s *Session) Restart() GameState {
	s.mu.Lock()
	s.reset()
	state := s.stateLocked()
	snap := s.commitLocked()
	s.mu.Unlock()

	s.logger.Info("session restarted", zap.String("session_id", s.id))
	s.notify(Outcome{Operation: OpRestart, State: state, Snapshot: snap})
	return state
}

func (s *Session) requireInPhase() error {
	switch s.status {
	case rules.StatusCompleted:
		return s.completedError()
	case rules.StatusMilestonePending:
		return apperrors.WithMetadata(apperrors.CodeInvalidTransition,
			fmt.Sprintf("milestone for phase %q is pending confirmation", s.phase.Name),
			map[string]string{"phase": s.phase.Name})
	}
	return nil
}

// requireNoOpenQuiz rejects a new quiz while the active one is unanswered.
func (s *Session) requireNoOpenQuiz() error {
	if s.activeQuiz < 0 || s.played[s.activeQuiz].Answered {
		return nil
	}
	open := s.played[s.activeQuiz]
	return apperrors.WithMetadata(apperrors.CodeInvalidTransition,
		fmt.Sprintf("quiz %q is still awaiting an answer", open.CardID),
		map[string]string{"card_id": open.CardID, "instance_id": open.InstanceID})
}

func (s *Session) completedError() error {
	return apperrors.New(apperrors.CodeGameCompleted, "the game is completed; no further plays are accepted")
}

func (s *Session) checkPlayable(card catalog.Card) error {
	if !card.EligibleIn(s.phase.Name) {
		return apperrors.WithMetadata(apperrors.CodeCardNotEligible,
			fmt.Sprintf("card %q is not playable in phase %q", card.Title, s.phase.Name),
			map[string]string{"card_id": card.ID, "phase": s.phase.Name})
	}
	if !s.turns.CanPlay(card.Kind) {
		return s.limitError(card.Kind)
	}
	return nil
}

func (s *Session) limitError(kind catalog.Kind) error {
	return apperrors.WithMetadata(apperrors.CodeCardLimitReached,
		fmt.Sprintf("no %s plays left in phase %q", kind, s.phase.Name),
		map[string]string{
			"kind":  string(kind),
			"limit": fmt.Sprint(s.turns.Limits().Get(kind)),
			"phase": s.phase.Name,
		})
}

func (s *Session) reject(op, subject string, err error) error {
	s.logger.Debug("play rejected",
		zap.String("session_id", s.id),
		zap.String("operation", op),
		zap.String("subject", subject),
		zap.String("code", string(apperrors.CodeOf(err))),
		zap.Error(err),
	)
	return err
}

// applyCard resolves the card's effect against the board and applies it to
// the ledger exactly once.
func (s *Session) applyCard(card catalog.Card) Effect {
	s.logUnknownReferences(card)

	requested := card.DirectEffect()
	matched := true
	if card.HasConditions() {
		bundle, ok := rules.Resolve(card.Conditions, s.boardSet)
		if ok {
			requested = requested.Combine(bundle)
		} else {
			matched = false
		}
	}

	before := s.resources
	s.resources = rules.Apply(before, requested)

	message := requested.Message
	if message == "" && !matched {
		message = card.Description
	}
	return Effect{
		CardID:    card.ID,
		Requested: requested,
		Applied:   rules.Delta(before, s.resources),
		Message:   message,
		Matched:   matched,
	}
}

func (s *Session) logUnknownReferences(card catalog.Card) {
	for _, ref := range card.References() {
		if s.def.Catalog.Has(ref) {
			continue
		}
		s.logger.Warn("condition references unknown card; treating as absent",
			zap.String("session_id", s.id),
			zap.String("card_id", card.ID),
			zap.String("reference", ref),
			zap.String("code", string(apperrors.CodeUnknownCardReference)),
		)
	}
}

func (s *Session) record(card catalog.Card, effect *Effect) PlayedCard {
	inst := PlayedCard{
		InstanceID: uuid.NewString(),
		CardID:     card.ID,
		Kind:       card.Kind,
		Phase:      s.phase.Name,
	}
	if effect != nil {
		inst.ResolvedEffect = effect.Requested
		inst.AppliedEffect = effect.Applied
		inst.Matched = effect.Matched
	}
	s.played = append(s.played, inst)
	if card.Kind == catalog.KindQuiz {
		s.activeQuiz = len(s.played) - 1
	}
	return inst
}

// consumeTurn records the play and, when the phase budget is exhausted,
// computes the pending milestone.
func (s *Session) consumeTurn(kind catalog.Kind) *rules.Milestone {
	if !s.turns.Record(kind) {
		return nil
	}
	m := *s.enterMilestone()
	return &m
}

func (s *Session) enterMilestone() *rules.Milestone {
	if s.milestone != nil {
		return s.milestone
	}
	titles := make([]string, 0, len(s.board))
	for _, id := range s.board {
		if card, ok := s.def.Catalog.Get(id); ok {
			titles = append(titles, card.Title)
		}
	}
	var next *rules.PhaseConfig
	if cfg, ok := s.def.Phases.Next(s.phase.Name); ok {
		next = &cfg
	}
	m := rules.ComputeMilestone(s.phase, titles, next, s.def.Settings.SuccessMessage)
	s.milestone = &m
	s.status = rules.StatusMilestonePending

	s.logger.Info("milestone reached",
		zap.String("session_id", s.id),
		zap.String("phase", m.Phase),
		zap.Bool("success", m.Success),
		zap.Strings("missing", m.Missing),
		zap.String("next_phase", m.NextPhase),
		zap.Bool("final", m.Final),
	)
	return s.milestone
}

// commitLocked bumps the revision and captures the snapshot observers
// persist. Callers hold s.mu.
func (s *Session) commitLocked() *Snapshot {
	s.revision++
	return s.snapshotLocked()
}

func (s *Session) notify(outcome Outcome) {
	if s.observer == nil {
		return
	}
	outcome.SessionID = s.id
	s.observer(outcome)
}
