package rules

import (
	"sort"

	"github.com/projectcards/project-game-server/internal/catalog"
)

// Board answers membership queries about the Action cards currently active.
type Board interface {
	Contains(cardID string) bool
}

// CardSet is a set of card ids. It implements Board.
type CardSet map[string]struct{}

// NewCardSet builds a set from ids.
func NewCardSet(ids ...string) CardSet {
	s := make(CardSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s CardSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id; it reports whether id was newly added.
func (s CardSet) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Remove deletes id.
func (s CardSet) Remove(id string) {
	delete(s, id)
}

// Sorted returns the ids in lexical order.
func (s CardSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone copies the set.
func (s CardSet) Clone() CardSet {
	out := make(CardSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Resolve returns the effect of the first condition, in declared order, that
// matches the board. Conditions are not cumulative. ok is false when no
// condition matches; callers treat that as "no effect".
//
// A check referencing an id that is not on the board is simply absent, so
// ids unknown to the catalog never raise an error here.
func Resolve(conditions []catalog.Condition, board Board) (effect catalog.EffectBundle, ok bool) {
	for _, cond := range conditions {
		if Matches(cond, board) {
			return cond.Effect, true
		}
	}
	return catalog.EffectBundle{}, false
}

// Matches evaluates a single condition against the board.
func Matches(cond catalog.Condition, board Board) bool {
	switch cond.Type {
	case catalog.ConditionDefault:
		return true
	case catalog.ConditionPresence:
		return checkPresence(cond.Check, board)
	case catalog.ConditionCompound:
		return checkCompound(cond.Operator, cond.Checks, board)
	default:
		return false
	}
}

func checkPresence(check catalog.PresenceCheck, board Board) bool {
	return board.Contains(check.CardID) == check.ExpectedPresent
}

func checkCompound(op catalog.Operator, checks []catalog.PresenceCheck, board Board) bool {
	if len(checks) == 0 {
		return false
	}
	switch op {
	case catalog.OperatorAnd:
		for _, check := range checks {
			if !checkPresence(check, board) {
				return false
			}
		}
		return true
	case catalog.OperatorOr:
		for _, check := range checks {
			if checkPresence(check, board) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
