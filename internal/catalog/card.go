package catalog

import (
	"fmt"
	"strings"
)

// Kind is the category of a card. Each kind has its own per-phase quota.
type Kind string

const (
	KindAction Kind = "action"
	KindEvent  Kind = "event"
	KindQuiz   Kind = "quiz"
)

// Kinds lists every card kind in display order.
var Kinds = []Kind{KindAction, KindEvent, KindQuiz}

// ParseKind converts a case-insensitive kind name.
func ParseKind(s string) (Kind, error) {
	want := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Kinds {
		if k == want {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown card kind %q", s)
}

func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// EffectBundle is a set of resource deltas plus an optional message.
type EffectBundle struct {
	BudgetDelta int    `json:"budgetDelta,omitempty"`
	TimeDelta   int    `json:"timeDelta,omitempty"`
	ValueDelta  int    `json:"valueDelta,omitempty"`
	Message     string `json:"message,omitempty"`
}

// IsZero reports whether the bundle changes no resource.
func (e EffectBundle) IsZero() bool {
	return e.BudgetDelta == 0 && e.TimeDelta == 0 && e.ValueDelta == 0
}

// Combine adds the deltas of other to e. Messages are joined with a space.
func (e EffectBundle) Combine(other EffectBundle) EffectBundle {
	out := EffectBundle{
		BudgetDelta: e.BudgetDelta + other.BudgetDelta,
		TimeDelta:   e.TimeDelta + other.TimeDelta,
		ValueDelta:  e.ValueDelta + other.ValueDelta,
	}
	switch {
	case e.Message == "":
		out.Message = other.Message
	case other.Message == "":
		out.Message = e.Message
	default:
		out.Message = e.Message + " " + other.Message
	}
	return out
}

// Card is an immutable catalog entry.
type Card struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	Domain      string      `json:"domain,omitempty"`
	Phases      []string    `json:"phases"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	CostBudget  int         `json:"costBudget,omitempty"`
	CostTime    int         `json:"costTime,omitempty"`
	ValueDelta  int         `json:"valueDelta,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty"`

	// Quiz only.
	Options       []string `json:"options,omitempty"`
	CorrectAnswer int      `json:"correctAnswer,omitempty"`
	Comment       string   `json:"comment,omitempty"`
}

// EligibleIn reports whether the card may be played or drawn in phase.
func (c Card) EligibleIn(phase string) bool {
	for _, p := range c.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// DirectEffect returns the card's own deltas. Costs are deducted.
func (c Card) DirectEffect() EffectBundle {
	return EffectBundle{
		BudgetDelta: -c.CostBudget,
		TimeDelta:   -c.CostTime,
		ValueDelta:  c.ValueDelta,
	}
}

// HasConditions reports whether the card declares conditional effects.
func (c Card) HasConditions() bool {
	return len(c.Conditions) > 0
}

// References returns every card id referenced by the card's conditions.
func (c Card) References() []string {
	var refs []string
	for _, cond := range c.Conditions {
		refs = append(refs, cond.References()...)
	}
	return refs
}

func (c Card) clone() Card {
	out := c
	out.Phases = append([]string(nil), c.Phases...)
	out.Options = append([]string(nil), c.Options...)
	if c.Conditions != nil {
		out.Conditions = make([]Condition, len(c.Conditions))
		for i, cond := range c.Conditions {
			out.Conditions[i] = cond.clone()
		}
	}
	return out
}
