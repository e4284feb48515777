package game

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const replayVersion = 1

// Frame is one recorded step of a session: the operation that ran and the
// state it left behind.
type Frame struct {
	Operation Operation `json:"operation"`
	CardID    string    `json:"cardId,omitempty"`
	Snapshot  *Snapshot `json:"snapshot"`
}

// Replay is the ordered list of frames recorded for a session, with a
// cursor for stepping through them.
type Replay struct {
	SessionID string
	Frames    []Frame
	cursor    int
	mu        sync.RWMutex
}

// NewReplay creates an empty replay.
func NewReplay(sessionID string) *Replay {
	return &Replay{SessionID: sessionID}
}

// Record adds a frame, keeping frames ordered by snapshot revision.
func (r *Replay) Record(frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := len(r.Frames)
	for i > 0 && frame.Snapshot != nil && r.Frames[i-1].Snapshot != nil &&
		r.Frames[i-1].Snapshot.Revision > frame.Snapshot.Revision {
		i--
	}
	r.Frames = append(r.Frames, Frame{})
	copy(r.Frames[i+1:], r.Frames[i:])
	r.Frames[i] = frame
}

// Start rewinds the cursor.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cursor = 0
}

// Next returns the frame at the cursor and advances it.
func (r *Replay) Next() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor >= len(r.Frames) {
		return Frame{}, false
	}
	frame := r.Frames[r.cursor]
	r.cursor++
	return frame, true
}

// Previous steps the cursor back and returns that frame.
func (r *Replay) Previous() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor == 0 {
		return Frame{}, false
	}
	r.cursor--
	return r.Frames[r.cursor], true
}

// Skip moves the cursor by count frames, clamped to the recorded range.
func (r *Replay) Skip(count int) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.Frames) == 0 {
		return Frame{}, false
	}
	idx := r.cursor + count
	if idx >= len(r.Frames) {
		idx = len(r.Frames) - 1
	}
	if idx < 0 {
		idx = 0
	}
	r.cursor = idx
	return r.Frames[idx], true
}

// Size returns the number of frames.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.Frames)
}

// FrameAt returns the frame at index.
func (r *Replay) FrameAt(index int) (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= len(r.Frames) {
		return Frame{}, false
	}
	return r.Frames[index], true
}

type replayHeader struct {
	SessionID  string    `json:"sessionId"`
	Timestamp  time.Time `json:"timestamp"`
	Version    int       `json:"version"`
	FrameCount int       `json:"frameCount"`
}

func replayPath(directory, sessionID string) string {
	return filepath.Join(directory, sessionID+".replay")
}

// SaveToFile writes the replay as a gzipped JSON stream: a header followed
// by one value per frame.
func (r *Replay) SaveToFile(directory string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(replayPath(directory, r.SessionID))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	zw := gzip.NewWriter(file)
	enc := json.NewEncoder(zw)

	header := replayHeader{
		SessionID:  r.SessionID,
		Timestamp:  time.Now().UTC(),
		Version:    replayVersion,
		FrameCount: len(r.Frames),
	}
	if err := enc.Encode(&header); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	for i := range r.Frames {
		if err := enc.Encode(&r.Frames[i]); err != nil {
			return fmt.Errorf("failed to encode frame %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush replay: %w", err)
	}
	return nil
}

// LoadReplayFromFile reads a replay written by SaveToFile. Every frame's
// snapshot checksum is verified.
func LoadReplayFromFile(directory, sessionID string) (*Replay, error) {
	file, err := os.Open(replayPath(directory, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer zr.Close()
	dec := json.NewDecoder(zr)

	var header replayHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	if header.Version != replayVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", header.Version)
	}

	replay := NewReplay(header.SessionID)
	for i := 0; i < header.FrameCount; i++ {
		var frame Frame
		if err := dec.Decode(&frame); err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", i, err)
		}
		if frame.Snapshot == nil || !frame.Snapshot.VerifyChecksum() {
			return nil, fmt.Errorf("frame %d failed checksum verification", i)
		}
		replay.Frames = append(replay.Frames, frame)
	}
	return replay, nil
}

// ReplayRecorder keeps replays for many sessions and persists them on
// request.
type ReplayRecorder struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	replays map[string]*Replay
	enabled map[string]bool
	saveDir string
}

// NewReplayRecorder creates a recorder that saves under saveDir.
func NewReplayRecorder(logger *zap.Logger, saveDir string) *ReplayRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayRecorder{
		logger:  logger,
		replays: make(map[string]*Replay),
		enabled: make(map[string]bool),
		saveDir: saveDir,
	}
}

// StartRecording begins a fresh replay for sessionID.
func (rr *ReplayRecorder) StartRecording(sessionID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	rr.replays[sessionID] = NewReplay(sessionID)
	rr.enabled[sessionID] = true
	rr.logger.Info("started replay recording", zap.String("session_id", sessionID))
}

// StopRecording stops appending frames; recorded frames are kept.
func (rr *ReplayRecorder) StopRecording(sessionID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	rr.enabled[sessionID] = false
	rr.logger.Info("stopped replay recording", zap.String("session_id", sessionID))
}

// Observe records the snapshot carried by outcome. It is meant to be
// called from a session observer.
func (rr *ReplayRecorder) Observe(outcome Outcome) {
	if outcome.Snapshot == nil {
		return
	}
	rr.Record(outcome.SessionID, Frame{
		Operation: outcome.Operation,
		CardID:    outcome.CardID,
		Snapshot:  outcome.Snapshot,
	})
}

// Record appends a frame if recording is enabled for sessionID.
func (rr *ReplayRecorder) Record(sessionID string, frame Frame) {
	rr.mu.RLock()
	enabled := rr.enabled[sessionID]
	replay := rr.replays[sessionID]
	rr.mu.RUnlock()

	if !enabled || replay == nil {
		return
	}
	replay.Record(frame)
	rr.logger.Debug("recorded replay frame",
		zap.String("session_id", sessionID),
		zap.String("operation", string(frame.Operation)),
		zap.Int("frame_count", replay.Size()),
	)
}

// GetReplay returns the in-memory replay for sessionID.
func (rr *ReplayRecorder) GetReplay(sessionID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	replay, ok := rr.replays[sessionID]
	return replay, ok
}

// SaveReplay writes the replay to disk and drops it from memory.
func (rr *ReplayRecorder) SaveReplay(sessionID string) error {
	rr.mu.Lock()
	replay, ok := rr.replays[sessionID]
	if !ok {
		rr.mu.Unlock()
		return fmt.Errorf("no replay found for session %s", sessionID)
	}
	delete(rr.replays, sessionID)
	delete(rr.enabled, sessionID)
	rr.mu.Unlock()

	if err := replay.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}
	rr.logger.Info("saved replay to disk",
		zap.String("session_id", sessionID),
		zap.Int("frame_count", replay.Size()),
		zap.String("directory", rr.saveDir),
	)
	return nil
}

// LoadReplay reads a saved replay from disk.
func (rr *ReplayRecorder) LoadReplay(sessionID string) (*Replay, error) {
	replay, err := LoadReplayFromFile(rr.saveDir, sessionID)
	if err != nil {
		return nil, err
	}
	rr.logger.Info("loaded replay from disk",
		zap.String("session_id", sessionID),
		zap.Int("frame_count", replay.Size()),
	)
	return replay, nil
}

// ClearReplay drops a replay without saving it.
func (rr *ReplayRecorder) ClearReplay(sessionID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	delete(rr.replays, sessionID)
	delete(rr.enabled, sessionID)
	rr.logger.Debug("cleared replay from memory", zap.String("session_id", sessionID))
}

// IsRecording reports whether frames are being appended for sessionID.
func (rr *ReplayRecorder) IsRecording(sessionID string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	return rr.enabled[sessionID]
}
