package rules

import (
	"fmt"

	"github.com/projectcards/project-game-server/internal/catalog"
)

// KindCounts holds one non-negative counter per card kind. It is used both
// for configured per-phase limits and for cards played so far.
type KindCounts struct {
	Action int `json:"action" yaml:"action"`
	Event  int `json:"event" yaml:"event"`
	Quiz   int `json:"quiz" yaml:"quiz"`
}

// Get returns the counter for kind.
func (k KindCounts) Get(kind catalog.Kind) int {
	switch kind {
	case catalog.KindAction:
		return k.Action
	case catalog.KindEvent:
		return k.Event
	case catalog.KindQuiz:
		return k.Quiz
	default:
		return 0
	}
}

// Total sums all counters.
func (k KindCounts) Total() int {
	return k.Action + k.Event + k.Quiz
}

func (k KindCounts) String() string {
	return fmt.Sprintf("action=%d event=%d quiz=%d", k.Action, k.Event, k.Quiz)
}

// CanPlay reports whether another card of kind fits in the phase quota.
func CanPlay(kind catalog.Kind, usage, limits KindCounts) bool {
	return usage.Get(kind) < limits.Get(kind)
}

// RecordPlay increments exactly one counter.
func RecordPlay(kind catalog.Kind, usage KindCounts) KindCounts {
	switch kind {
	case catalog.KindAction:
		usage.Action++
	case catalog.KindEvent:
		usage.Event++
	case catalog.KindQuiz:
		usage.Quiz++
	}
	return usage
}

// Remaining returns the turns left in the phase. Plays beyond a limit are
// rejected before recording, so the result never goes below zero.
func Remaining(usage, limits KindCounts) int {
	remaining := limits.Total() - usage.Total()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TurnBudget tracks the plays of one phase against its limits.
type TurnBudget struct {
	limits KindCounts
	usage  KindCounts
}

// NewTurnBudget creates a tracker with zero usage.
func NewTurnBudget(limits KindCounts) *TurnBudget {
	return &TurnBudget{limits: limits}
}

// RestoreTurnBudget creates a tracker with existing usage.
func RestoreTurnBudget(limits, usage KindCounts) *TurnBudget {
	return &TurnBudget{limits: limits, usage: usage}
}

// Limits returns the configured limits.
func (tb *TurnBudget) Limits() KindCounts {
	return tb.limits
}

// Usage returns the plays recorded so far.
func (tb *TurnBudget) Usage() KindCounts {
	return tb.usage
}

// CanPlay reports whether kind still has quota.
func (tb *TurnBudget) CanPlay(kind catalog.Kind) bool {
	return CanPlay(kind, tb.usage, tb.limits)
}

// Record consumes one turn of kind and reports whether the phase budget is
// now exhausted, which is the milestone trigger.
func (tb *TurnBudget) Record(kind catalog.Kind) (exhausted bool) {
	tb.usage = RecordPlay(kind, tb.usage)
	return tb.Remaining() == 0
}

// Remaining returns the turns left.
func (tb *TurnBudget) Remaining() int {
	return Remaining(tb.usage, tb.limits)
}

// Reset zeroes usage and installs the limits of a new phase.
func (tb *TurnBudget) Reset(limits KindCounts) {
	tb.limits = limits
	tb.usage = KindCounts{}
}
