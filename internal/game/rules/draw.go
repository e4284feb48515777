package rules

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/projectcards/project-game-server/internal/catalog"
)

// DrawScope selects how draw history excludes repeats.
type DrawScope string

const (
	// DrawScopeKind keeps one history per card kind.
	DrawScopeKind DrawScope = "kind"
	// DrawScopeGlobal keeps a single history across all kinds.
	DrawScopeGlobal DrawScope = "global"
)

// ParseDrawScope validates a scope name. Empty selects DrawScopeKind.
func ParseDrawScope(s string) (DrawScope, error) {
	switch DrawScope(s) {
	case "", DrawScopeKind:
		return DrawScopeKind, nil
	case DrawScopeGlobal:
		return DrawScopeGlobal, nil
	default:
		return "", fmt.Errorf("unknown draw scope %q", s)
	}
}

const globalScopeKey = "*"

// DrawHistory records every card id ever drawn or played in a session. It
// is independent of the board: removing a card from the board leaves its
// history entry in place.
type DrawHistory struct {
	scope DrawScope
	sets  map[string]CardSet
}

// NewDrawHistory creates an empty history.
func NewDrawHistory(scope DrawScope) *DrawHistory {
	if scope == "" {
		scope = DrawScopeKind
	}
	return &DrawHistory{scope: scope, sets: make(map[string]CardSet)}
}

// Scope returns the exclusion policy.
func (h *DrawHistory) Scope() DrawScope {
	return h.scope
}

func (h *DrawHistory) key(kind catalog.Kind) string {
	if h.scope == DrawScopeGlobal {
		return globalScopeKey
	}
	return string(kind)
}

// Contains reports whether id was already drawn within kind's scope.
func (h *DrawHistory) Contains(kind catalog.Kind, id string) bool {
	return h.sets[h.key(kind)].Contains(id)
}

// Add records id under kind's scope.
func (h *DrawHistory) Add(kind catalog.Kind, id string) {
	key := h.key(kind)
	set, ok := h.sets[key]
	if !ok {
		set = make(CardSet)
		h.sets[key] = set
	}
	set.Add(id)
}

// Export returns the history keyed by scope ("action", "event", "quiz" or
// "*" for the global scope) with sorted ids.
func (h *DrawHistory) Export() map[string][]string {
	out := make(map[string][]string, len(h.sets))
	for key, set := range h.sets {
		if len(set) > 0 {
			out[key] = set.Sorted()
		}
	}
	return out
}

// ImportDrawHistory rebuilds a history from Export output.
func ImportDrawHistory(scope DrawScope, entries map[string][]string) *DrawHistory {
	h := NewDrawHistory(scope)
	for key, ids := range entries {
		set := make(CardSet, len(ids))
		for _, id := range ids {
			set.Add(id)
		}
		h.sets[key] = set
	}
	return h
}

// Clone deep-copies the history.
func (h *DrawHistory) Clone() *DrawHistory {
	return ImportDrawHistory(h.scope, h.Export())
}

// Pool returns the cards of kind eligible in phase that history has not
// seen yet, in catalog order.
func Pool(kind catalog.Kind, phase string, cat *catalog.Catalog, history *DrawHistory) []catalog.Card {
	var pool []catalog.Card
	for _, card := range cat.Filter(kind, phase) {
		if !history.Contains(kind, card.ID) {
			pool = append(pool, card)
		}
	}
	return pool
}

// ErrPoolEmpty is returned by Draw when no eligible card remains.
var ErrPoolEmpty = errors.New("draw pool empty")

// Draw selects uniformly at random from the pool and records the selection
// in history. history is left untouched when the pool is empty.
func Draw(rng *rand.Rand, kind catalog.Kind, phase string, cat *catalog.Catalog, history *DrawHistory) (catalog.Card, error) {
	pool := Pool(kind, phase, cat, history)
	if len(pool) == 0 {
		return catalog.Card{}, fmt.Errorf("%s cards in %s: %w", kind, phase, ErrPoolEmpty)
	}
	card := pool[rng.Intn(len(pool))]
	history.Add(kind, card.ID)
	return card, nil
}
