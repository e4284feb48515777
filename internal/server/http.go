package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/projectcards/project-game-server/internal/catalog"
	"github.com/projectcards/project-game-server/internal/definition"
	apperrors "github.com/projectcards/project-game-server/internal/errors"
	"github.com/projectcards/project-game-server/internal/game"
	"github.com/projectcards/project-game-server/internal/game/rules"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// API serves the session JSON API and the WebSocket push endpoint.
type API struct {
	manager *Manager
	hub     *Hub
	logger  *zap.Logger
}

// NewAPI creates the HTTP API. hub may be nil, disabling the ws route.
func NewAPI(manager *Manager, hub *Hub, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{manager: manager, hub: hub, logger: logger}
}

// Handler returns the routed, logged handler.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /api/definition", a.handleDefinition)
	mux.HandleFunc("POST /api/definitions/validate", a.handleValidateDefinition)

	mux.HandleFunc("POST /api/sessions", a.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", a.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", a.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/snapshot", a.handleSnapshot)
	mux.HandleFunc("GET /api/sessions/{id}/replay", a.handleReplay)

	mux.HandleFunc("POST /api/sessions/{id}/play", a.handlePlay)
	mux.HandleFunc("POST /api/sessions/{id}/draw", a.handleDraw)
	mux.HandleFunc("POST /api/sessions/{id}/quiz", a.handleQuiz)
	mux.HandleFunc("POST /api/sessions/{id}/milestone", a.handleTriggerMilestone)
	mux.HandleFunc("POST /api/sessions/{id}/milestone/confirm", a.handleConfirmMilestone)
	mux.HandleFunc("DELETE /api/sessions/{id}/board/{cardId}", a.handleRemoveFromBoard)
	mux.HandleFunc("POST /api/sessions/{id}/restart", a.handleRestart)

	if a.hub != nil {
		mux.HandleFunc("GET /api/sessions/{id}/ws", a.handleWebSocket)
	}

	return a.logRequests(mux)
}

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Code    apperrors.Code    `json:"code"`
	Message string            `json:"message"`
	Details []string          `json:"details,omitempty"`
	Meta    map[string]string `json:"metadata,omitempty"`
}

// sessionView is the full read model of a session.
type sessionView struct {
	ID          string              `json:"id"`
	Game        string              `json:"game"`
	State       game.GameState      `json:"state"`
	Board       []string            `json:"board"`
	DrawHistory map[string][]string `json:"drawHistory"`
	Played      []game.PlayedCard   `json:"played"`
	Milestone   *rules.Milestone    `json:"milestone,omitempty"`
	ActiveQuiz  *quizView           `json:"activeQuiz,omitempty"`
}

// quizView hides the correct answer of the active quiz.
type quizView struct {
	InstanceID  string   `json:"instanceId"`
	CardID      string   `json:"cardId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
	Answered    bool     `json:"answered"`
}

type definitionView struct {
	Info     definition.GameInfo `json:"gameInfo"`
	Settings definition.Settings `json:"gameSettings"`
	Phases   []rules.PhaseConfig `json:"phases"`
	Cards    []catalog.Card      `json:"cards"`
	Warnings []string            `json:"warnings,omitempty"`
}

type replayView struct {
	SessionID string       `json:"sessionId"`
	Frames    []game.Frame `json:"frames"`
}

type validationView struct {
	Valid    bool     `json:"valid"`
	Title    string   `json:"title,omitempty"`
	Phases   int      `json:"phases"`
	Cards    int      `json:"cards"`
	Warnings []string `json:"warnings,omitempty"`
}

func viewOf(s *game.Session) sessionView {
	view := sessionView{
		ID:          s.ID(),
		Game:        s.Definition().Info.Title,
		State:       s.State(),
		Board:       s.Board(),
		DrawHistory: s.DrawHistory(),
		Played:      s.Played(),
	}
	if m, ok := s.PendingMilestone(); ok {
		view.Milestone = &m
	}
	if played, card, ok := s.ActiveQuiz(); ok {
		view.ActiveQuiz = &quizView{
			InstanceID:  played.InstanceID,
			CardID:      card.ID,
			Title:       card.Title,
			Description: card.Description,
			Options:     card.Options,
			Answered:    played.Answered,
		}
	}
	return view
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": a.manager.ActiveCount(),
	})
}

func (a *API) handleDefinition(w http.ResponseWriter, r *http.Request) {
	def := a.manager.Definition()
	a.writeJSON(w, http.StatusOK, definitionView{
		Info:     def.Info,
		Settings: def.Settings,
		Phases:   def.Phases.All(),
		Cards:    def.Catalog.All(),
		Warnings: def.Warnings,
	})
}

func (a *API) handleValidateDefinition(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.writeError(w, apperrors.Wrap(apperrors.CodeInvalidConfiguration, "read definition body", err))
		return
	}
	def, err := definition.Parse(data, requestFormat(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, validationView{
		Valid:    true,
		Title:    def.Info.Title,
		Phases:   len(def.Phases.All()),
		Cards:    def.Catalog.Len(),
		Warnings: def.Warnings,
	})
}

// requestFormat picks YAML from ?format=yaml or a yaml content type.
func requestFormat(r *http.Request) definition.Format {
	if f := strings.ToLower(r.URL.Query().Get("format")); f == "yaml" || f == "yml" {
		return definition.FormatYAML
	}
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "yaml") {
		return definition.FormatYAML
	}
	return definition.FormatJSON
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.manager.Create(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, viewOf(s))
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := a.manager.List(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	a.writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.writeJSON(w, http.StatusOK, viewOf(s))
}

func (a *API) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Delete(r.Context(), r.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.writeJSON(w, http.StatusOK, s.Snapshot())
}

func (a *API) handleReplay(w http.ResponseWriter, r *http.Request) {
	replay, err := a.manager.Replay(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	view := replayView{SessionID: replay.SessionID, Frames: make([]game.Frame, 0, replay.Size())}
	for i := 0; i < replay.Size(); i++ {
		if frame, ok := replay.FrameAt(i); ok {
			view.Frames = append(view.Frames, frame)
		}
	}
	a.writeJSON(w, http.StatusOK, view)
}

func (a *API) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CardID string `json:"cardId"`
	}
	s, ok := a.sessionWithBody(w, r, &req)
	if !ok {
		return
	}
	result, err := s.PlayCard(req.CardID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *API) handleDraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
	}
	s, ok := a.sessionWithBody(w, r, &req)
	if !ok {
		return
	}
	kind, err := catalog.ParseKind(req.Kind)
	if err != nil {
		a.writeError(w, apperrors.Wrap(apperrors.CodeInvalidCardKind, err.Error(), err))
		return
	}
	result, err := s.DrawRandomCard(kind)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *API) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answer *int `json:"answer"`
	}
	s, ok := a.sessionWithBody(w, r, &req)
	if !ok {
		return
	}
	if req.Answer == nil {
		a.writeError(w, apperrors.New(apperrors.CodeInvalidAnswer, "answer is required"))
		return
	}
	result, err := s.SubmitQuizAnswer(*req.Answer)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *API) handleTriggerMilestone(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	m, err := s.TriggerMilestone()
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"milestone": m, "state": s.State()})
}

func (a *API) handleConfirmMilestone(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	state, err := s.ConfirmMilestone()
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, state)
}

func (a *API) handleRemoveFromBoard(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := s.RemoveFromBoard(r.PathValue("cardId")); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, viewOf(s))
}

func (a *API) handleRestart(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.writeJSON(w, http.StatusOK, s.Restart())
}

func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.hub.Serve(w, r, s.ID(), &Message{Type: MessageState, SessionID: s.ID(), Data: viewOf(s)})
}

func (a *API) session(w http.ResponseWriter, r *http.Request) (*game.Session, bool) {
	s, err := a.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return nil, false
	}
	return s, true
}

func (a *API) sessionWithBody(w http.ResponseWriter, r *http.Request, dst any) (*game.Session, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.writeError(w, &apperrors.Error{
			Code:    apperrors.CodeInvalidArgument,
			Message: fmt.Sprintf("invalid request body: %v", err),
			Cause:   err,
		})
		return nil, false
	}
	return a.session(w, r)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var de *apperrors.Error
	if !errors.As(err, &de) {
		a.logger.Error("request failed", zap.Error(err))
		a.writeJSON(w, http.StatusInternalServerError, errorBody{
			Code:    apperrors.CodeUnknown,
			Message: err.Error(),
		})
		return
	}
	status := de.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", zap.String("code", string(de.Code)), zap.Error(err))
	}
	a.writeJSON(w, status, errorBody{
		Code:    de.Code,
		Message: de.Message,
		Details: de.Details,
		Meta:    de.Metadata,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
