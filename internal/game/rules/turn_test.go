package rules

import (
	"testing"

	"github.com/projectcards/project-game-server/internal/catalog"
)

func TestTurnBudgetExhaustion(t *testing.T) {
	limits := KindCounts{Action: 2, Event: 1, Quiz: 1}
	tb := NewTurnBudget(limits)

	if tb.Remaining() != 4 {
		t.Fatalf("expected 4 turns, got %d", tb.Remaining())
	}

	plays := []catalog.Kind{catalog.KindAction, catalog.KindAction, catalog.KindEvent, catalog.KindQuiz}
	for i, kind := range plays {
		if !tb.CanPlay(kind) {
			t.Fatalf("play %d: expected %s to be playable", i, kind)
		}
		exhausted := tb.Record(kind)
		if exhausted != (i == len(plays)-1) {
			t.Fatalf("play %d: unexpected exhausted=%t", i, exhausted)
		}
	}

	if tb.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", tb.Remaining())
	}
	if tb.CanPlay(catalog.KindAction) {
		t.Fatal("expected action quota to be exhausted")
	}
}

func TestCanPlayPerKind(t *testing.T) {
	limits := KindCounts{Action: 1, Event: 0, Quiz: 2}
	usage := KindCounts{}

	if CanPlay(catalog.KindEvent, usage, limits) {
		t.Fatal("expected zero event limit to reject plays")
	}

	usage = RecordPlay(catalog.KindAction, usage)
	if CanPlay(catalog.KindAction, usage, limits) {
		t.Fatal("expected action limit reached")
	}
	if !CanPlay(catalog.KindQuiz, usage, limits) {
		t.Fatal("expected quiz still playable")
	}
	if usage != (KindCounts{Action: 1}) {
		t.Fatalf("expected only action counter incremented, got %s", usage)
	}
	if got := Remaining(usage, limits); got != 2 {
		t.Fatalf("expected 2 remaining, got %d", got)
	}
}

func TestTurnBudgetReset(t *testing.T) {
	tb := RestoreTurnBudget(KindCounts{Action: 1}, KindCounts{Action: 1})
	if tb.Remaining() != 0 {
		t.Fatalf("expected restored budget exhausted, got %d", tb.Remaining())
	}

	tb.Reset(KindCounts{Action: 2, Event: 1})
	if tb.Usage() != (KindCounts{}) {
		t.Fatalf("expected usage reset, got %s", tb.Usage())
	}
	if tb.Remaining() != 3 {
		t.Fatalf("expected 3 remaining after reset, got %d", tb.Remaining())
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	if got := Remaining(KindCounts{Action: 5}, KindCounts{Action: 1}); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
