package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"mitsi/recorder/internal/config"
	"mitsi/recorder/internal/events"
	"mitsi/recorder/internal/health"
	"mitsi/recorder/internal/recorder"
	"mitsi/recorder/internal/registry"
	"mitsi/recorder/internal/types"
)

// RecordingService is what the HTTP layer needs from the orchestrator.
type RecordingService interface {
	Start(ctx context.Context, req recorder.StartRequest) (types.Session, error)
	Stop(ctx context.Context, sessionID string) (types.Session, error)
	Status(sessionID string) (recorder.StatusResult, error)
	Purge(sessionID string) error
	Events(sessionID string) ([]events.Event, error)
}

type Handlers struct {
	cfg     config.Config
	svc     RecordingService
	events  *events.Store
	log     zerolog.Logger
	started time.Time
}

func NewHandlers(cfg config.Config, svc RecordingService, ev *events.Store, log zerolog.Logger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		svc:     svc,
		events:  ev,
		log:     log.With().Str("component", "api").Logger(),
		started: time.Now().UTC(),
	}
}

type stopRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req recorder.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := h.svc.Start(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID,
		"status":     "started",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	sess, err := h.svc.Stop(r.Context(), req.SessionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"status":     "stopped",
		"video_path": sess.VideoPath,
		"audio_path": sess.AudioPath,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	res, err := h.svc.Status(sessionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": res.Session.ID,
		"meeting_id": res.Session.MeetingID,
		"mode":       res.Session.Mode,
		"status":     res.Session.Status,
		"duration":   res.Duration.Seconds(),
	})
}

func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	if err := h.svc.Purge(sessionID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	evs, err := h.svc.Events(sessionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"events":     evs,
	})
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    int(time.Since(h.started).Seconds()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	st := health.CheckAll(h.cfg.Recording.Dir)
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

// writeServiceError maps domain errors onto distinguishable status codes:
// unknown sessions are 404, duplicates and purge-too-early 409, bad requests
// 400, backend failures 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrDuplicateSession):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, recorder.ErrNotTerminal):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, recorder.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"status_code": code,
		"message":     msg,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}
