package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/projectcards/project-game-server/internal/definition"
	apperrors "github.com/projectcards/project-game-server/internal/errors"
	"github.com/projectcards/project-game-server/internal/game"
	"github.com/projectcards/project-game-server/internal/game/rules"
	"github.com/projectcards/project-game-server/internal/storage"
	"go.uber.org/zap"
)

const persistTimeout = 5 * time.Second

// ManagerOptions tune the sessions a Manager creates.
type ManagerOptions struct {
	// DrawScope overrides the definition's scope when non-empty.
	DrawScope rules.DrawScope
	// Seed fixes every session's draw source; 0 seeds from the clock.
	Seed int64
	// Recorder, when set, keeps a replay of every live session.
	Recorder *game.ReplayRecorder
	// Hub, when set, receives every outcome.
	Hub *Hub
}

// Manager owns the live sessions of one game definition. Each session
// serializes its own operations; the manager lock only guards the map.
type Manager struct {
	def      *definition.Definition
	store    storage.Store
	opts     ManagerOptions
	sessions map[string]*game.Session
	mu       sync.RWMutex
	logger   *zap.Logger

	saves  map[string]*saveState
	saveMu sync.Mutex
}

// saveState orders snapshot writes for one session. Writes with a revision
// at or below the last stored one are dropped.
type saveState struct {
	mu       sync.Mutex
	revision uint64
	stored   bool
}

// NewManager creates a manager persisting snapshots to store.
func NewManager(def *definition.Definition, store storage.Store, logger *zap.Logger, opts ManagerOptions) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &Manager{
		def:      def,
		store:    store,
		opts:     opts,
		sessions: make(map[string]*game.Session),
		logger:   logger,
		saves:    make(map[string]*saveState),
	}
}

// Definition returns the definition sessions are built from.
func (m *Manager) Definition() *definition.Definition {
	return m.def
}

func (m *Manager) sessionOptions(id string, target **game.Session) []game.Option {
	opts := []game.Option{
		game.WithID(id),
		game.WithLogger(m.logger),
		game.WithObserver(func(outcome game.Outcome) {
			m.observe(*target, outcome)
		}),
	}
	if m.opts.DrawScope != "" {
		opts = append(opts, game.WithDrawScope(m.opts.DrawScope))
	}
	if m.opts.Seed != 0 {
		opts = append(opts, game.WithSeed(m.opts.Seed))
	}
	return opts
}

// Create starts a new session and persists its initial snapshot.
func (m *Manager) Create(ctx context.Context) (*game.Session, error) {
	var session *game.Session
	session, err := game.NewSession(m.def, m.sessionOptions(uuid.NewString(), &session)...)
	if err != nil {
		return nil, err
	}

	if err := m.persist(ctx, session.Snapshot()); err != nil {
		return nil, fmt.Errorf("persist new session: %w", err)
	}

	if rec := m.opts.Recorder; rec != nil {
		rec.StartRecording(session.ID())
		rec.Record(session.ID(), game.Frame{Operation: game.OpStart, Snapshot: session.Snapshot()})
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session_id", session.ID()),
		zap.String("game", m.def.Info.Title),
	)
	return session, nil
}

// Get returns a live session, restoring it from the store on first use.
func (m *Manager) Get(ctx context.Context, id string) (*game.Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return session, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[id]; ok {
		return session, nil
	}

	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	var restored *game.Session
	restored, err = game.RestoreSession(m.def, snap, m.sessionOptions(id, &restored)...)
	if err != nil {
		return nil, fmt.Errorf("restore session %s: %w", id, err)
	}
	m.sessions[id] = restored

	m.logger.Info("session restored",
		zap.String("session_id", id),
		zap.String("phase", snap.State.CurrentPhase),
	)
	return restored, nil
}

// List returns the ids of every stored session.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// ActiveCount returns the number of sessions held in memory.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Delete drops a session from memory and the store. A recorded replay is
// saved first.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	m.saveMu.Lock()
	delete(m.saves, id)
	m.saveMu.Unlock()

	m.finishReplay(id)

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("session removed", zap.String("session_id", id))
	return nil
}

// Replay returns the recorded frames of a session, in memory or on disk.
func (m *Manager) Replay(id string) (*game.Replay, error) {
	rec := m.opts.Recorder
	if rec == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "replay recording is disabled")
	}
	if replay, ok := rec.GetReplay(id); ok {
		return replay, nil
	}
	replay, err := rec.LoadReplay(id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("no replay for session %s", id), err)
	}
	return replay, nil
}

// Close saves every replay still being recorded.
func (m *Manager) Close() error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.saveReplay(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// observe runs after every state-changing operation on a managed session.
func (m *Manager) observe(session *game.Session, outcome game.Outcome) {
	if outcome.Snapshot == nil {
		outcome.Snapshot = session.Snapshot()
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.persist(ctx, outcome.Snapshot); err != nil {
		m.logger.Error("failed to persist session snapshot",
			zap.String("session_id", outcome.SessionID),
			zap.String("operation", string(outcome.Operation)),
			zap.Error(err),
		)
	}

	if rec := m.opts.Recorder; rec != nil {
		if outcome.Operation == game.OpRestart {
			rec.StartRecording(outcome.SessionID)
		}
		rec.Observe(outcome)
	}

	if hub := m.opts.Hub; hub != nil {
		hub.Publish(Message{Type: MessageOutcome, SessionID: outcome.SessionID, Data: outcome})
	}

	if outcome.State.Completed() {
		m.logger.Info("session completed",
			zap.String("session_id", outcome.SessionID),
			zap.Int("final_score", outcome.State.Value),
		)
		m.finishReplay(outcome.SessionID)
	}
}

// persist writes snap unless a newer revision of the session is already
// stored.
func (m *Manager) persist(ctx context.Context, snap *game.Snapshot) error {
	m.saveMu.Lock()
	st, ok := m.saves[snap.SessionID]
	if !ok {
		st = &saveState{}
		m.saves[snap.SessionID] = st
	}
	m.saveMu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stored && snap.Revision <= st.revision {
		m.logger.Debug("dropping stale snapshot",
			zap.String("session_id", snap.SessionID),
			zap.Uint64("revision", snap.Revision),
			zap.Uint64("stored_revision", st.revision),
		)
		return nil
	}
	if err := m.store.Save(ctx, snap); err != nil {
		return err
	}
	st.revision = snap.Revision
	st.stored = true
	return nil
}

func (m *Manager) finishReplay(id string) {
	if err := m.saveReplay(id); err != nil {
		m.logger.Warn("failed to save replay", zap.String("session_id", id), zap.Error(err))
	}
}

func (m *Manager) saveReplay(id string) error {
	rec := m.opts.Recorder
	if rec == nil || !rec.IsRecording(id) {
		return nil
	}
	return rec.SaveReplay(id)
}
