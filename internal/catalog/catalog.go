// Package catalog holds the immutable card definitions of a loaded game.
package catalog

import (
	"fmt"
	"sort"
)

// Catalog is an immutable, id-indexed collection of cards. Lookups return
// copies so callers cannot mutate catalog entries.
type Catalog struct {
	cards []Card
	byID  map[string]int
}

// New builds a catalog preserving the given order. Duplicate ids and unknown
// kinds are rejected.
func New(cards []Card) (*Catalog, error) {
	c := &Catalog{
		cards: make([]Card, 0, len(cards)),
		byID:  make(map[string]int, len(cards)),
	}
	for _, card := range cards {
		if card.ID == "" {
			return nil, fmt.Errorf("card %q has no id", card.Title)
		}
		if !card.Kind.Valid() {
			return nil, fmt.Errorf("card %q has unknown kind %q", card.ID, card.Kind)
		}
		if _, dup := c.byID[card.ID]; dup {
			return nil, fmt.Errorf("duplicate card id %q", card.ID)
		}
		c.byID[card.ID] = len(c.cards)
		c.cards = append(c.cards, card.clone())
	}
	return c, nil
}

// Len returns the number of cards.
func (c *Catalog) Len() int {
	return len(c.cards)
}

// Get returns the card with the given id.
func (c *Catalog) Get(id string) (Card, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Card{}, false
	}
	return c.cards[idx].clone(), true
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// All returns every card in catalog order.
func (c *Catalog) All() []Card {
	return c.collect(func(Card) bool { return true })
}

// ByKind returns the cards of one kind.
func (c *Catalog) ByKind(kind Kind) []Card {
	return c.collect(func(card Card) bool { return card.Kind == kind })
}

// ByPhase returns the cards eligible in phase.
func (c *Catalog) ByPhase(phase string) []Card {
	return c.collect(func(card Card) bool { return card.EligibleIn(phase) })
}

// Filter returns the cards of kind eligible in phase.
func (c *Catalog) Filter(kind Kind, phase string) []Card {
	return c.collect(func(card Card) bool {
		return card.Kind == kind && card.EligibleIn(phase)
	})
}

// ByTitle returns the first card with the given title.
func (c *Catalog) ByTitle(title string) (Card, bool) {
	for _, card := range c.cards {
		if card.Title == title {
			return card.clone(), true
		}
	}
	return Card{}, false
}

// UnknownReferences maps card id to the condition references it makes to
// ids missing from the catalog.
func (c *Catalog) UnknownReferences() map[string][]string {
	unknown := make(map[string][]string)
	for _, card := range c.cards {
		for _, ref := range card.References() {
			if !c.Has(ref) {
				unknown[card.ID] = append(unknown[card.ID], ref)
			}
		}
	}
	for id := range unknown {
		sort.Strings(unknown[id])
	}
	return unknown
}

func (c *Catalog) collect(keep func(Card) bool) []Card {
	var out []Card
	for _, card := range c.cards {
		if keep(card) {
			out = append(out, card.clone())
		}
	}
	return out
}
