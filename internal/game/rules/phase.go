package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/projectcards/project-game-server/internal/catalog"
)

// PhaseStatus is the state of the phase progression machine.
type PhaseStatus int

const (
	StatusInPhase PhaseStatus = iota
	StatusMilestonePending
	StatusCompleted
)

var statusNames = map[PhaseStatus]string{
	StatusInPhase:          "IN_PHASE",
	StatusMilestonePending: "MILESTONE_PENDING",
	StatusCompleted:        "COMPLETED",
}

func (s PhaseStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_%d", int(s))
}

// MarshalText encodes the status by name.
func (s PhaseStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *PhaseStatus) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown phase status %q", string(text))
}

// Penalty is deducted at a milestone whose requirements were not met.
// Time and Budget are amounts removed, not signed deltas.
type Penalty struct {
	Time    int    `json:"time"`
	Budget  int    `json:"budget"`
	Message string `json:"message,omitempty"`
}

// Effect converts the penalty into a ledger bundle.
func (p Penalty) Effect() catalog.EffectBundle {
	return catalog.EffectBundle{
		BudgetDelta: -p.Budget,
		TimeDelta:   -p.Time,
		Message:     p.Message,
	}
}

// PhaseConfig describes one phase of the game.
type PhaseConfig struct {
	Name               string     `json:"name"`
	Order              int        `json:"order"`
	CardLimits         KindCounts `json:"cardLimits"`
	RequiredCardTitles []string   `json:"requiredCardTitles,omitempty"`
	Penalty            Penalty    `json:"penalty"`
}

// TotalTurns is the phase's turn budget.
func (p PhaseConfig) TotalTurns() int {
	return p.CardLimits.Total()
}

// Phases is the ordered list of configured phases.
type Phases struct {
	list []PhaseConfig
}

// NewPhases sorts configs by order. Names and orders must be unique.
func NewPhases(configs []PhaseConfig) (*Phases, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("at least one phase is required")
	}
	names := make(map[string]bool, len(configs))
	orders := make(map[int]string, len(configs))
	list := make([]PhaseConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("phase with order %d has no name", cfg.Order)
		}
		if names[cfg.Name] {
			return nil, fmt.Errorf("duplicate phase name %q", cfg.Name)
		}
		if other, dup := orders[cfg.Order]; dup {
			return nil, fmt.Errorf("phases %q and %q share order %d", other, cfg.Name, cfg.Order)
		}
		names[cfg.Name] = true
		orders[cfg.Order] = cfg.Name
		cfg.RequiredCardTitles = append([]string(nil), cfg.RequiredCardTitles...)
		list = append(list, cfg)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Order < list[j].Order })
	return &Phases{list: list}, nil
}

// First returns the phase with the lowest order.
func (p *Phases) First() PhaseConfig {
	return p.list[0]
}

// Get looks a phase up by name.
func (p *Phases) Get(name string) (PhaseConfig, bool) {
	for _, cfg := range p.list {
		if cfg.Name == name {
			return cfg, true
		}
	}
	return PhaseConfig{}, false
}

// Next returns the phase with the next-higher order. ok is false when name
// is the last phase.
func (p *Phases) Next(name string) (PhaseConfig, bool) {
	for i, cfg := range p.list {
		if cfg.Name == name && i+1 < len(p.list) {
			return p.list[i+1], true
		}
	}
	return PhaseConfig{}, false
}

// Names lists phase names in order.
func (p *Phases) Names() []string {
	names := make([]string, len(p.list))
	for i, cfg := range p.list {
		names[i] = cfg.Name
	}
	return names
}

// All returns the phases in order.
func (p *Phases) All() []PhaseConfig {
	return append([]PhaseConfig(nil), p.list...)
}

// Milestone is the computed outcome of an end-of-phase checkpoint.
type Milestone struct {
	Phase     string   `json:"phase"`
	Success   bool     `json:"success"`
	Missing   []string `json:"missing,omitempty"`
	Penalty   Penalty  `json:"penalty"`
	NextPhase string   `json:"nextPhase,omitempty"`
	Final     bool     `json:"final"`
}

// ComputeMilestone evaluates required-card fulfillment for phase given the
// titles of the Action cards on the board. next is the following phase, if
// any.
func ComputeMilestone(phase PhaseConfig, boardTitles []string, next *PhaseConfig, successMessage string) Milestone {
	m := Milestone{Phase: phase.Name}
	if next != nil {
		m.NextPhase = next.Name
	} else {
		m.Final = true
	}

	m.Missing = MissingTitles(phase.RequiredCardTitles, boardTitles)
	if len(m.Missing) == 0 {
		m.Success = true
		m.Penalty = Penalty{Message: successMessage}
		return m
	}

	m.Penalty = Penalty{
		Time:    phase.Penalty.Time,
		Budget:  phase.Penalty.Budget,
		Message: PenaltyMessage(phase.Penalty.Message, m.Missing),
	}
	return m
}

// MissingTitles returns required minus played, in required order without
// duplicates.
func MissingTitles(required, played []string) []string {
	have := make(map[string]bool, len(played))
	for _, title := range played {
		have[title] = true
	}
	var missing []string
	seen := make(map[string]bool, len(required))
	for _, title := range required {
		if have[title] || seen[title] {
			continue
		}
		seen[title] = true
		missing = append(missing, title)
	}
	return missing
}

// PenaltyMessage appends the missing titles to the configured message.
func PenaltyMessage(base string, missing []string) string {
	list := strings.Join(missing, ", ")
	if strings.TrimSpace(base) == "" {
		return "Missing required cards: " + list
	}
	return fmt.Sprintf("%s (missing: %s)", base, list)
}
