package catalog

import (
	"fmt"
	"strings"
)

// ConditionType tags the variant held by a Condition.
type ConditionType string

const (
	ConditionPresence ConditionType = "presence"
	ConditionCompound ConditionType = "compound"
	ConditionDefault  ConditionType = "default"
)

// Operator combines the checks of a compound condition.
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// ParseOperator converts a case-insensitive operator name.
func ParseOperator(s string) (Operator, error) {
	switch Operator(strings.ToUpper(strings.TrimSpace(s))) {
	case OperatorAnd:
		return OperatorAnd, nil
	case OperatorOr:
		return OperatorOr, nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// PresenceCheck matches iff (CardID on board) == ExpectedPresent.
type PresenceCheck struct {
	CardID          string `json:"cardId"`
	ExpectedPresent bool   `json:"expectedPresent"`
}

// Condition is a tagged variant evaluated against the board. Only the
// fields relevant to Type are meaningful.
type Condition struct {
	Type ConditionType `json:"type"`

	// Presence.
	Check PresenceCheck `json:"check,omitempty"`

	// Compound.
	Operator Operator        `json:"operator,omitempty"`
	Checks   []PresenceCheck `json:"checks,omitempty"`

	Effect EffectBundle `json:"effect"`
}

// Presence builds a single presence condition.
func Presence(cardID string, expectedPresent bool, effect EffectBundle) Condition {
	return Condition{
		Type:   ConditionPresence,
		Check:  PresenceCheck{CardID: cardID, ExpectedPresent: expectedPresent},
		Effect: effect,
	}
}

// Compound builds an AND/OR condition over presence checks.
func Compound(op Operator, checks []PresenceCheck, effect EffectBundle) Condition {
	return Condition{
		Type:     ConditionCompound,
		Operator: op,
		Checks:   append([]PresenceCheck(nil), checks...),
		Effect:   effect,
	}
}

// Default builds the always-matching fallback condition.
func Default(effect EffectBundle) Condition {
	return Condition{Type: ConditionDefault, Effect: effect}
}

// References returns the card ids the condition inspects.
func (c Condition) References() []string {
	switch c.Type {
	case ConditionPresence:
		return []string{c.Check.CardID}
	case ConditionCompound:
		refs := make([]string, 0, len(c.Checks))
		for _, check := range c.Checks {
			refs = append(refs, check.CardID)
		}
		return refs
	default:
		return nil
	}
}

func (c Condition) clone() Condition {
	out := c
	out.Checks = append([]PresenceCheck(nil), c.Checks...)
	return out
}
