package definition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/projectcards/project-game-server/internal/catalog"
	"github.com/projectcards/project-game-server/internal/game/rules"
)

type normalizer struct {
	problems []string
	warnings []string
}

func (n *normalizer) fail(format string, args ...any) {
	n.problems = append(n.problems, fmt.Sprintf(format, args...))
}

func (n *normalizer) normalize(root object) *Definition {
	def := &Definition{}

	info, ok := root.child("gameInfo", "game_info", "info")
	if !ok {
		n.fail("gameInfo is required")
	} else {
		def.Info = GameInfo{
			Title:       info.str("title", "name"),
			Description: info.str("description"),
			Version:     info.str("version"),
		}
	}

	settings, ok := root.child("gameSettings", "game_settings", "settings")
	if !ok {
		n.fail("gameSettings is required")
	} else {
		def.Settings = n.settings(settings)
	}

	configs := n.phases(root)
	phaseNames := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		phaseNames[cfg.Name] = true
	}
	if len(configs) > 0 && len(n.problems) == 0 {
		phases, err := rules.NewPhases(configs)
		if err != nil {
			n.fail("phases: %v", err)
		}
		def.Phases = phases
	}

	cards := n.cards(root, phaseNames)
	if len(n.problems) == 0 {
		cat, err := catalog.New(cards)
		if err != nil {
			n.fail("cards: %v", err)
		} else {
			def.Catalog = cat
			n.checkRequiredTitles(configs, cat)
			n.checkReferences(cat)
		}
	}

	def.Warnings = n.warnings
	return def
}

func (n *normalizer) settings(o object) Settings {
	s := Settings{SuccessMessage: DefaultSuccessMessage}
	s.InitialBudget = n.nonNegative(o, "gameSettings.initialBudget", "initialBudget", "budget", "startBudget")
	s.InitialTime = n.nonNegative(o, "gameSettings.initialTime", "initialTime", "time", "startTime")
	if v, _, err := o.integer("initialValue", "value"); err != nil {
		n.fail("gameSettings.initialValue: %v", err)
	} else {
		s.InitialValue = v
	}
	if v, _, err := o.integer("quizReward", "quizBonus"); err != nil {
		n.fail("gameSettings.quizReward: %v", err)
	} else {
		s.QuizReward = v
	}
	if msg := o.str("successMessage", "milestoneSuccessMessage"); msg != "" {
		s.SuccessMessage = msg
	}
	scope, err := rules.ParseDrawScope(o.str("drawScope", "draw_scope"))
	if err != nil {
		n.fail("gameSettings.drawScope: %v", err)
	}
	s.DrawScope = scope
	return s
}

func (n *normalizer) nonNegative(o object, label string, keys ...string) int {
	v, _, err := o.integer(keys...)
	if err != nil {
		n.fail("%s: %v", label, err)
		return 0
	}
	if v < 0 {
		n.fail("%s must not be negative", label)
		return 0
	}
	return v
}

func (n *normalizer) phases(root object) []rules.PhaseConfig {
	items, ok := root.list("phases")
	if !ok {
		n.fail("phases is required")
		return nil
	}
	if len(items) == 0 {
		n.fail("phases must not be empty")
		return nil
	}

	configs := make([]rules.PhaseConfig, 0, len(items))
	names := make(map[string]int, len(items))
	orders := make(map[int]int, len(items))
	for i, item := range items {
		o, ok := asObject(item)
		if !ok {
			n.fail("phases[%d]: must be an object", i)
			continue
		}
		cfg := n.phase(i, o)
		if cfg.Name != "" {
			if first, dup := names[cfg.Name]; dup {
				n.fail("phases[%d]: duplicate name %q (first defined at phases[%d])", i, cfg.Name, first)
			} else {
				names[cfg.Name] = i
			}
		}
		if first, dup := orders[cfg.Order]; dup {
			n.fail("phases[%d]: order %d already used by phases[%d]", i, cfg.Order, first)
		} else {
			orders[cfg.Order] = i
		}
		configs = append(configs, cfg)
	}
	return configs
}

func (n *normalizer) phase(i int, o object) rules.PhaseConfig {
	cfg := rules.PhaseConfig{Name: o.str("name", "id")}
	label := fmt.Sprintf("phases[%d]", i)
	if cfg.Name == "" {
		n.fail("%s: name is required", label)
	} else {
		label = fmt.Sprintf("phases[%d] %q", i, cfg.Name)
	}

	order, present, err := o.integer("order", "index")
	switch {
	case err != nil:
		n.fail("%s: order: %v", label, err)
	case present:
		cfg.Order = order
	default:
		cfg.Order = i + 1
	}

	limits, ok := o.child("cardLimits", "limits", "card_limits")
	if !ok {
		n.fail("%s: cardLimits is required", label)
	} else {
		cfg.CardLimits = rules.KindCounts{
			Action: n.limit(label, limits, "action", "actions"),
			Event:  n.limit(label, limits, "event", "events"),
			Quiz:   n.limit(label, limits, "quiz", "quizzes", "quizes"),
		}
	}

	cfg.RequiredCardTitles = o.stringList("requiredCardTitles", "requiredCards", "required")

	if p, ok := o.child("penalty"); ok {
		cfg.Penalty = rules.Penalty{
			Time:    n.nonNegative(p, label+": penalty.time", "time"),
			Budget:  n.nonNegative(p, label+": penalty.budget", "budget"),
			Message: p.str("message"),
		}
	}
	return cfg
}

func (n *normalizer) limit(label string, o object, keys ...string) int {
	v, present, err := o.integer(keys...)
	switch {
	case err != nil:
		n.fail("%s: cardLimits.%s: %v", label, keys[0], err)
	case !present:
		n.fail("%s: cardLimits.%s is required", label, keys[0])
	case v < 0:
		n.fail("%s: cardLimits.%s must not be negative", label, keys[0])
	default:
		return v
	}
	return 0
}

func (n *normalizer) cards(root object, phaseNames map[string]bool) []catalog.Card {
	items, ok := root.list("cards")
	if !ok {
		n.fail("cards is required")
		return nil
	}

	seen := make(map[string]int, len(items))
	cards := make([]catalog.Card, 0, len(items))
	for i, item := range items {
		o, ok := asObject(item)
		if !ok {
			n.fail("cards[%d]: must be an object", i)
			continue
		}
		card := n.card(i, o, phaseNames)
		if card.ID != "" {
			if first, dup := seen[card.ID]; dup {
				n.fail("cards[%d]: duplicate id %q (first defined at cards[%d])", i, card.ID, first)
				continue
			}
			seen[card.ID] = i
		}
		cards = append(cards, card)
	}
	return cards
}

func (n *normalizer) card(i int, o object, phaseNames map[string]bool) catalog.Card {
	card := catalog.Card{
		ID:          o.str("id"),
		Title:       o.str("title", "name"),
		Description: o.str("description"),
		Domain:      o.str("domain", "category"),
		Comment:     o.str("comment", "explanation"),
	}
	label := fmt.Sprintf("cards[%d]", i)
	if card.ID == "" {
		n.fail("%s: id is required", label)
	} else {
		label = fmt.Sprintf("cards[%d] %q", i, card.ID)
	}
	if card.Title == "" {
		n.fail("%s: title is required", label)
	}
	if card.Description == "" {
		n.fail("%s: description is required", label)
	}

	kindName := o.str("type", "kind")
	if kindName == "" {
		n.fail("%s: type is required", label)
	} else if kind, err := catalog.ParseKind(kindName); err != nil {
		n.fail("%s: %v", label, err)
	} else {
		card.Kind = kind
	}

	card.Phases = o.stringList("phases", "phase")
	if len(card.Phases) == 0 {
		n.fail("%s: at least one phase is required", label)
	}
	for _, p := range card.Phases {
		if len(phaseNames) > 0 && !phaseNames[p] {
			n.fail("%s: phase %q is not defined", label, p)
		}
	}

	cost, _ := o.child("cost")
	card.CostBudget = n.delta(label+": costBudget", o, cost, []string{"costBudget", "budget", "cost_budget"}, "budget")
	card.CostTime = n.delta(label+": costTime", o, cost, []string{"costTime", "time", "cost_time"}, "time")
	card.ValueDelta = n.delta(label+": valueDelta", o, nil, []string{"valueDelta", "value", "value_delta"}, "")

	if items, ok := o.list("conditions", "effects"); ok {
		card.Conditions = n.conditions(label, items)
	}

	if card.Kind == catalog.KindQuiz {
		n.quiz(label, o, &card)
	}
	return card
}

// delta reads an integer from the card itself or, failing that, from a
// nested object such as "cost".
func (n *normalizer) delta(label string, o, nested object, keys []string, nestedKey string) int {
	v, present, err := o.integer(keys...)
	if err != nil {
		n.fail("%s: %v", label, err)
		return 0
	}
	if present || nested == nil || nestedKey == "" {
		return v
	}
	v, _, err = nested.integer(nestedKey)
	if err != nil {
		n.fail("%s: %v", label, err)
		return 0
	}
	return v
}

func (n *normalizer) quiz(label string, o object, card *catalog.Card) {
	card.Options = o.stringList("options", "answers", "choices")
	if len(card.Options) == 0 {
		n.fail("%s: quiz options are required", label)
		return
	}

	raw, ok := o.lookup("correctAnswer", "answer", "correct")
	if !ok {
		n.fail("%s: correctAnswer is required", label)
		return
	}
	if idx, ok := toInt(raw); ok {
		if idx < 0 || idx >= len(card.Options) {
			n.fail("%s: correctAnswer %d is out of range", label, idx)
			return
		}
		card.CorrectAnswer = idx
		return
	}
	text := strings.TrimSpace(fmt.Sprint(raw))
	for idx, option := range card.Options {
		if option == text {
			card.CorrectAnswer = idx
			return
		}
	}
	n.fail("%s: correctAnswer %q does not match any option", label, text)
}

func (n *normalizer) conditions(label string, items []any) []catalog.Condition {
	out := make([]catalog.Condition, 0, len(items))
	defaults := 0
	for j, item := range items {
		clabel := fmt.Sprintf("%s: conditions[%d]", label, j)
		o, ok := asObject(item)
		if !ok {
			n.fail("%s: must be an object", clabel)
			continue
		}
		cond, ok := n.condition(clabel, o)
		if !ok {
			continue
		}
		if cond.Type == catalog.ConditionDefault {
			defaults++
			if defaults > 1 {
				n.fail("%s: only one default condition is allowed", clabel)
			}
			if j != len(items)-1 {
				n.fail("%s: default condition must be last", clabel)
			}
		}
		out = append(out, cond)
	}
	return out
}

func (n *normalizer) condition(label string, o object) (catalog.Condition, bool) {
	effect := n.effect(label, o)

	typ := strings.ToLower(o.str("type", "kind"))
	if typ == "" {
		switch {
		case o.has("checks", "cards"):
			typ = string(catalog.ConditionCompound)
		case o.has("cardId", "card", "card_id"):
			typ = string(catalog.ConditionPresence)
		default:
			typ = string(catalog.ConditionDefault)
		}
	}

	switch typ {
	case string(catalog.ConditionDefault), "else", "fallback":
		return catalog.Default(effect), true

	case string(catalog.ConditionPresence), "card":
		check, ok := n.check(label, o)
		if !ok {
			return catalog.Condition{}, false
		}
		return catalog.Condition{Type: catalog.ConditionPresence, Check: check, Effect: effect}, true

	case string(catalog.ConditionCompound), "and", "or":
		opName := o.str("operator", "op")
		if opName == "" && typ != string(catalog.ConditionCompound) {
			opName = typ
		}
		op, err := catalog.ParseOperator(opName)
		if err != nil {
			n.fail("%s: %v", label, err)
			return catalog.Condition{}, false
		}
		items, _ := o.list("checks", "cards")
		if len(items) == 0 {
			n.fail("%s: compound condition requires checks", label)
			return catalog.Condition{}, false
		}
		checks := make([]catalog.PresenceCheck, 0, len(items))
		for k, item := range items {
			co, ok := asObject(item)
			if !ok {
				n.fail("%s: checks[%d]: must be an object", label, k)
				continue
			}
			check, ok := n.check(fmt.Sprintf("%s: checks[%d]", label, k), co)
			if ok {
				checks = append(checks, check)
			}
		}
		return catalog.Compound(op, checks, effect), true

	default:
		n.fail("%s: unknown condition type %q", label, typ)
		return catalog.Condition{}, false
	}
}

func (n *normalizer) check(label string, o object) (catalog.PresenceCheck, bool) {
	id := o.str("cardId", "card", "card_id")
	if id == "" {
		n.fail("%s: cardId is required", label)
		return catalog.PresenceCheck{}, false
	}
	present, err := o.boolean(true, "expectedPresent", "present", "isPresent")
	if err != nil {
		n.fail("%s: expectedPresent: %v", label, err)
		return catalog.PresenceCheck{}, false
	}
	return catalog.PresenceCheck{CardID: id, ExpectedPresent: present}, true
}

// effect reads the bundle either from a nested "effect" object or from
// deltas written inline on the condition.
func (n *normalizer) effect(label string, o object) catalog.EffectBundle {
	src := o
	if nested, ok := o.child("effect", "effects", "result"); ok {
		src = nested
	}
	read := func(name string, keys ...string) int {
		v, _, err := src.integer(keys...)
		if err != nil {
			n.fail("%s: %s: %v", label, name, err)
		}
		return v
	}
	return catalog.EffectBundle{
		BudgetDelta: read("budgetDelta", "budgetDelta", "budget"),
		TimeDelta:   read("timeDelta", "timeDelta", "time"),
		ValueDelta:  read("valueDelta", "valueDelta", "value"),
		Message:     src.str("message", "text"),
	}
}

func (n *normalizer) checkRequiredTitles(configs []rules.PhaseConfig, cat *catalog.Catalog) {
	for _, cfg := range configs {
		for _, title := range cfg.RequiredCardTitles {
			card, ok := cat.ByTitle(title)
			if !ok {
				n.warnings = append(n.warnings, fmt.Sprintf("phase %q requires %q but no card has that title", cfg.Name, title))
				continue
			}
			if card.Kind != catalog.KindAction {
				n.warnings = append(n.warnings, fmt.Sprintf("phase %q requires %q which is not an action card", cfg.Name, title))
			}
		}
	}
}

func (n *normalizer) checkReferences(cat *catalog.Catalog) {
	unknown := cat.UnknownReferences()
	ids := make([]string, 0, len(unknown))
	for id := range unknown {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n.warnings = append(n.warnings, fmt.Sprintf("card %q references unknown cards: %s", id, strings.Join(unknown[id], ", ")))
	}
}
