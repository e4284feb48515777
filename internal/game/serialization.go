package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/projectcards/project-game-server/internal/catalog"
	"github.com/projectcards/project-game-server/internal/definition"
	apperrors "github.com/projectcards/project-game-server/internal/errors"
	"github.com/projectcards/project-game-server/internal/game/rules"
	"go.uber.org/zap"
)

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

// Snapshot is a self-contained copy of a session's mutable state. Together
// with the definition it was taken against, it is enough to resume play.
type Snapshot struct {
	Version     int                 `json:"version"`
	Revision    uint64              `json:"revision,omitempty"`
	SessionID   string              `json:"sessionId"`
	Game        string              `json:"game"`
	State       GameState           `json:"state"`
	Board       []string            `json:"board"`
	DrawScope   rules.DrawScope     `json:"drawScope"`
	DrawHistory map[string][]string `json:"drawHistory"`
	Played      []PlayedCard        `json:"played"`
	ActiveQuiz  int                 `json:"activeQuiz"`
	Milestone   *rules.Milestone    `json:"milestone,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
	Checksum    string              `json:"checksum,omitempty"`
}

// Snapshot captures the session state.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Version:     SnapshotVersion,
		Revision:    s.revision,
		SessionID:   s.id,
		Game:        s.def.Info.Title,
		State:       s.stateLocked(),
		Board:       append([]string(nil), s.board...),
		DrawScope:   s.scope,
		DrawHistory: s.history.Export(),
		Played:      append([]PlayedCard(nil), s.played...),
		ActiveQuiz:  s.activeQuiz,
		Timestamp:   time.Now().UTC(),
	}
	if s.milestone != nil {
		m := *s.milestone
		m.Missing = append([]string(nil), s.milestone.Missing...)
		snap.Milestone = &m
	}
	snap.Checksum = snap.ComputeChecksum()
	return snap
}

// RestoreSession rebuilds a session from a snapshot taken against def.
// References to phases or cards def does not know are rejected.
func RestoreSession(def *definition.Definition, snap *Snapshot, opts ...Option) (*Session, error) {
	if snap == nil {
		return nil, apperrors.New(apperrors.CodeInvalidConfiguration, "snapshot is nil")
	}
	if snap.Version != SnapshotVersion {
		return nil, apperrors.New(apperrors.CodeInvalidConfiguration,
			fmt.Sprintf("unsupported snapshot version %d", snap.Version))
	}

	// The history keys depend on the scope it was recorded under, so the
	// snapshot's scope wins over any caller override.
	opts = append([]Option{WithID(snap.SessionID)}, opts...)
	s, err := NewSession(def, append(opts, WithDrawScope(snap.DrawScope))...)
	if err != nil {
		return nil, err
	}

	phase, ok := def.Phases.Get(snap.State.CurrentPhase)
	if !ok {
		return nil, apperrors.New(apperrors.CodeInvalidConfiguration,
			fmt.Sprintf("snapshot phase %q is not configured", snap.State.CurrentPhase))
	}
	for _, id := range snap.Board {
		if !def.Catalog.Has(id) {
			return nil, apperrors.New(apperrors.CodeInvalidConfiguration,
				fmt.Sprintf("snapshot board card %q is not in the catalog", id))
		}
	}
	if snap.ActiveQuiz >= len(snap.Played) || snap.ActiveQuiz < -1 {
		return nil, apperrors.New(apperrors.CodeInvalidConfiguration,
			fmt.Sprintf("snapshot active quiz index %d is out of range", snap.ActiveQuiz))
	}
	if snap.State.Status == rules.StatusMilestonePending && snap.Milestone == nil {
		return nil, apperrors.New(apperrors.CodeInvalidConfiguration, "snapshot is pending a milestone it does not carry")
	}

	s.resources = snap.State.Resources()
	s.phase = phase
	s.turns = rules.RestoreTurnBudget(snap.State.CardLimits, snap.State.CardUsage)
	s.status = snap.State.Status
	if snap.Milestone != nil && snap.State.Status == rules.StatusMilestonePending {
		m := *snap.Milestone
		s.milestone = &m
	}
	if snap.State.FinalScore != nil {
		s.finalScore = *snap.State.FinalScore
	}
	s.board = append([]string(nil), snap.Board...)
	s.boardSet = rules.NewCardSet(snap.Board...)
	s.history = rules.ImportDrawHistory(s.scope, snap.DrawHistory)
	s.played = append([]PlayedCard(nil), snap.Played...)
	s.activeQuiz = snap.ActiveQuiz
	s.revision = snap.Revision

	s.logger.Info("session restored",
		zap.String("session_id", s.id),
		zap.String("phase", phase.Name),
		zap.String("status", s.status.String()),
		zap.Int("played", len(s.played)),
	)
	return s, nil
}

// ComputeChecksum returns a SHA-256 over the deterministic fields of the
// snapshot. Timestamp and the stored checksum are excluded.
func (snap *Snapshot) ComputeChecksum() string {
	sum := sha256.Sum256([]byte(snap.canonical()))
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum reports whether the stored checksum matches the content.
func (snap *Snapshot) VerifyChecksum() bool {
	return snap.Checksum != "" && snap.Checksum == snap.ComputeChecksum()
}

func (snap *Snapshot) canonical() string {
	var buf bytes.Buffer
	st := snap.State

	fmt.Fprintf(&buf, "SESSION:%d|%s|%s|%s\n", snap.Version, snap.SessionID, snap.Game, snap.DrawScope)
	if snap.Revision > 0 {
		fmt.Fprintf(&buf, "REVISION:%d\n", snap.Revision)
	}
	fmt.Fprintf(&buf, "STATE:%d|%d|%d|%s|%s|%s|%s|%d\n",
		st.Budget, st.Time, st.Value, st.CurrentPhase, st.Status, st.CardUsage, st.CardLimits, st.RemainingTurns)
	if st.PendingNextPhase != nil {
		fmt.Fprintf(&buf, "NEXT:%s\n", *st.PendingNextPhase)
	}
	if st.PendingPenalty != nil {
		fmt.Fprintf(&buf, "PENALTY:%d|%d|%s\n", st.PendingPenalty.Time, st.PendingPenalty.Budget, st.PendingPenalty.Message)
	}
	if st.FinalScore != nil {
		fmt.Fprintf(&buf, "FINAL:%d\n", *st.FinalScore)
	}

	// Board order is placement order and is significant.
	buf.WriteString("BOARD:")
	buf.WriteString(strings.Join(snap.Board, ","))
	buf.WriteString("\n")

	keys := make([]string, 0, len(snap.DrawHistory))
	for key := range snap.DrawHistory {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		ids := append([]string(nil), snap.DrawHistory[key]...)
		sort.Strings(ids)
		fmt.Fprintf(&buf, "HISTORY:%s=%s\n", key, strings.Join(ids, ","))
	}

	for i, p := range snap.Played {
		fmt.Fprintf(&buf, "PLAYED:%d|%s|%s|%s|%s|%s|%s|%t|%t|%d|%t|%t\n",
			i, p.InstanceID, p.CardID, p.Kind, p.Phase,
			bundleKey(p.ResolvedEffect), bundleKey(p.AppliedEffect),
			p.Matched, p.Answered, p.Answer, p.Correct, p.Awarded)
	}
	fmt.Fprintf(&buf, "QUIZ:%d\n", snap.ActiveQuiz)

	if m := snap.Milestone; m != nil {
		fmt.Fprintf(&buf, "MILESTONE:%s|%t|%s|%d|%d|%s|%s|%t\n",
			m.Phase, m.Success, strings.Join(m.Missing, ","),
			m.Penalty.Time, m.Penalty.Budget, m.Penalty.Message, m.NextPhase, m.Final)
	}
	return buf.String()
}

func bundleKey(e catalog.EffectBundle) string {
	return fmt.Sprintf("%d/%d/%d/%s", e.BudgetDelta, e.TimeDelta, e.ValueDelta, e.Message)
}

// EncodeSnapshot serializes a snapshot to JSON, stamping its checksum.
// Snapshots shared with observers already carry a valid checksum and are
// left untouched.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	if sum := snap.ComputeChecksum(); snap.Checksum != sum {
		snap.Checksum = sum
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses JSON produced by EncodeSnapshot and verifies the
// checksum.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if !snap.VerifyChecksum() {
		return nil, apperrors.New(apperrors.CodeInvalidConfiguration,
			fmt.Sprintf("snapshot %q failed checksum verification", snap.SessionID))
	}
	return &snap, nil
}

// ValidateSerializationRoundtrip encodes and decodes a snapshot and checks
// that nothing deterministic was lost.
func ValidateSerializationRoundtrip(snap *Snapshot) error {
	original := snap.ComputeChecksum()

	data, err := EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("failed to serialize: %w", err)
	}
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("failed to deserialize: %w", err)
	}
	if got := decoded.ComputeChecksum(); got != original {
		return fmt.Errorf("checksum mismatch: original=%s, deserialized=%s", original, got)
	}
	return nil
}
