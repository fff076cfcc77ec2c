package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mitsi/recorder/internal/clock"
	"mitsi/recorder/internal/config"
	"mitsi/recorder/internal/events"
	"mitsi/recorder/internal/merge"
	"mitsi/recorder/internal/registry"
	"mitsi/recorder/internal/types"
)

var (
	ErrValidation   = errors.New("invalid request")
	ErrBackendStart = errors.New("failed to start recording")
	ErrBackendStop  = errors.New("failed to stop recording")
	ErrNotTerminal  = errors.New("session is not in a terminal status")
)

// VideoBackend is the browser-driven video capture contract.
type VideoBackend interface {
	CreateContext(sessionID string) error
	OpenPage(sessionID string) error
	JoinMeeting(sessionID, meetingID, userID string) error
	MarkStreaming(sessionID string) error
	// CloseContext tears down the session's capture and returns the recorded
	// video path, best effort.
	CloseContext(sessionID string) (string, error)
	Shutdown()
}

// AudioBackend is the subprocess audio capture contract.
type AudioBackend interface {
	Start(sessionID string, browserPID int) (string, error)
	Stop(sessionID string) error
	AudioPath(sessionID string) string
}

// StreamBackend is the subprocess stream relay contract.
type StreamBackend interface {
	Start(sessionID, streamURL string) error
	Stop(sessionID string) error
}

// Cleaner removes session artifacts, now or later.
type Cleaner interface {
	CleanupSession(sessionID string)
	Schedule(sessionID string, delay time.Duration)
	CancelAll()
}

// Service sequences the start/stop workflows across the capture backends,
// owns the per-session duration watchdogs, and is the only writer of session
// state transitions.
type Service struct {
	cfg     config.Config
	reg     *registry.Registry
	video   VideoBackend
	audio   AudioBackend
	stream  StreamBackend
	cleaner Cleaner
	merger  merge.Client
	events  *events.Store
	clk     clock.Clock
	log     zerolog.Logger

	mu        sync.Mutex
	watchdogs map[string]clock.Timer
}

func New(cfg config.Config, reg *registry.Registry, video VideoBackend, audio AudioBackend, stream StreamBackend, cleaner Cleaner, merger merge.Client, ev *events.Store, clk clock.Clock, log zerolog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		reg:       reg,
		video:     video,
		audio:     audio,
		stream:    stream,
		cleaner:   cleaner,
		merger:    merger,
		events:    ev,
		clk:       clk,
		log:       log.With().Str("component", "recorder").Logger(),
		watchdogs: make(map[string]clock.Timer),
	}
}

type StartRequest struct {
	MeetingID string     `json:"meeting_id"`
	UserID    string     `json:"user_id"`
	Mode      types.Mode `json:"mode"`
	StreamURL string     `json:"stream_url,omitempty"`
}

// Start runs the start workflow: session creation, video context and page,
// audio capture, meeting join, stream relay, ACTIVE, watchdog. Validation
// happens before anything is created, so a bad request mutates nothing. Any
// backend failure marks the session ERROR, tears down whatever was started
// and removes the artifacts, then surfaces a start failure.
func (s *Service) Start(ctx context.Context, req StartRequest) (types.Session, error) {
	if req.MeetingID == "" {
		return types.Session{}, fmt.Errorf("%w: meeting id is required", ErrValidation)
	}
	if req.UserID == "" {
		return types.Session{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !req.Mode.Valid() {
		return types.Session{}, fmt.Errorf("%w: unknown mode %q", ErrValidation, req.Mode)
	}
	if req.Mode.IncludesStream() && req.StreamURL == "" {
		return types.Session{}, fmt.Errorf("%w: stream URL is required for streaming mode", ErrValidation)
	}

	sess, err := s.reg.Create(req.MeetingID, req.UserID, req.Mode, req.StreamURL)
	if err != nil {
		return types.Session{}, err
	}
	s.log.Info().Str("session_id", sess.ID).Str("meeting_id", req.MeetingID).Str("mode", string(req.Mode)).Msg("starting recording")
	s.events.Append(sess.ID, "session_created", map[string]any{"meeting_id": req.MeetingID, "mode": string(req.Mode)})
	started := s.clk.Now()

	if err := s.video.CreateContext(sess.ID); err != nil {
		return s.failStart(sess.ID, err)
	}
	if err := s.video.OpenPage(sess.ID); err != nil {
		return s.failStart(sess.ID, err)
	}
	if req.Mode.IncludesAudio() {
		if _, err := s.audio.Start(sess.ID, os.Getpid()); err != nil {
			return s.failStart(sess.ID, err)
		}
	}
	if err := s.video.JoinMeeting(sess.ID, req.MeetingID, req.UserID); err != nil {
		return s.failStart(sess.ID, err)
	}
	if req.Mode.IncludesStream() {
		if err := s.stream.Start(sess.ID, req.StreamURL); err != nil {
			return s.failStart(sess.ID, err)
		}
		if err := s.video.MarkStreaming(sess.ID); err != nil {
			return s.failStart(sess.ID, err)
		}
	}

	active, err := s.reg.Update(sess.ID, registry.StatusPatch(types.StatusActive))
	if err != nil {
		return s.failStart(sess.ID, err)
	}
	sess = active
	s.armWatchdog(sess.ID)

	metricSessionsStarted.Inc()
	metricActiveSessions.Inc()
	metricStartDuration.Observe(s.clk.Now().Sub(started).Seconds())
	s.events.Append(sess.ID, "recording_started", nil)
	s.log.Info().Str("session_id", sess.ID).Msg("recording started")
	return sess, nil
}

// failStart records the error on the session, tears down any backend the
// workflow already started (all stops are defensive no-ops when nothing is
// registered) and removes the session artifacts.
func (s *Service) failStart(sessionID string, cause error) (types.Session, error) {
	s.log.Error().Str("session_id", sessionID).Err(cause).Msg("failed to start recording")
	if _, err := s.reg.Update(sessionID, registry.ErrorPatch(cause.Error())); err != nil {
		s.log.Error().Str("session_id", sessionID).Err(err).Msg("could not record start failure")
	}
	s.events.Append(sessionID, "start_failed", map[string]any{"error": cause.Error()})

	if err := s.stream.Stop(sessionID); err != nil {
		s.log.Warn().Str("session_id", sessionID).Err(err).Msg("stream teardown failed")
	}
	if err := s.audio.Stop(sessionID); err != nil {
		s.log.Warn().Str("session_id", sessionID).Err(err).Msg("audio teardown failed")
	}
	if _, err := s.video.CloseContext(sessionID); err != nil {
		s.log.Warn().Str("session_id", sessionID).Err(err).Msg("video teardown failed")
	}
	s.cleaner.CleanupSession(sessionID)

	metricStartFailures.Inc()
	return types.Session{}, fmt.Errorf("%w: %w", ErrBackendStart, cause)
}

// Stop runs the stop workflow in reverse start order. A failure marks the
// session ERROR and surfaces, but artifacts are deliberately left in place
// so a failed stop can be inspected.
func (s *Service) Stop(ctx context.Context, sessionID string) (types.Session, error) {
	sess, err := s.reg.Get(sessionID)
	if err != nil {
		return types.Session{}, err
	}
	s.log.Info().Str("session_id", sessionID).Msg("stopping recording")
	wasActive := sess.Status == types.StatusActive
	wasTerminal := sess.Status.Terminal()
	if _, err := s.reg.Update(sessionID, registry.StatusPatch(types.StatusStopping)); err != nil {
		return types.Session{}, err
	}
	stopStarted := s.clk.Now()

	if sess.Mode.IncludesStream() {
		if err := s.stream.Stop(sessionID); err != nil {
			return s.failStop(sessionID, err)
		}
	}
	if sess.Mode.IncludesAudio() {
		if err := s.audio.Stop(sessionID); err != nil {
			return s.failStop(sessionID, err)
		}
	}

	videoPath, err := s.video.CloseContext(sessionID)
	if err != nil {
		return s.failStop(sessionID, err)
	}
	audioPath := s.audio.AudioPath(sessionID)

	end := s.clk.Now()
	st := types.StatusStopped
	patch := registry.Patch{Status: &st}
	// A repeated stop resolves no paths once the handles are gone; keep the
	// recorded ones and the frozen end time.
	if !wasTerminal {
		patch.EndTime = &end
		patch.AudioPath = &audioPath
		if videoPath != "" {
			patch.VideoPath = &videoPath
		}
	}
	sess, err = s.reg.Update(sessionID, patch)
	if err != nil {
		return s.failStop(sessionID, err)
	}

	s.cancelWatchdog(sessionID)

	if err := s.merger.Merge(ctx, merge.Request{
		SessionID: sessionID,
		MeetingID: sess.MeetingID,
		VideoPath: sess.VideoPath,
		AudioPath: sess.AudioPath,
	}); err != nil {
		// merge is best effort until the merge service exists
		s.log.Warn().Str("session_id", sessionID).Err(err).Msg("merge request failed")
	}

	if s.cfg.Recording.CleanupAfterStop {
		s.cleaner.Schedule(sessionID, s.cfg.Recording.CleanupDelay)
		s.events.Append(sessionID, "cleanup_scheduled", nil)
	}

	metricSessionsStopped.Inc()
	if wasActive {
		metricActiveSessions.Dec()
	}
	metricStopDuration.Observe(s.clk.Now().Sub(stopStarted).Seconds())
	s.events.Append(sessionID, "recording_stopped", map[string]any{"video_path": sess.VideoPath, "audio_path": sess.AudioPath})
	s.log.Info().Str("session_id", sessionID).Msg("recording stopped")
	return sess, nil
}

func (s *Service) failStop(sessionID string, cause error) (types.Session, error) {
	s.log.Error().Str("session_id", sessionID).Err(cause).Msg("failed to stop recording")
	if _, err := s.reg.Update(sessionID, registry.ErrorPatch(cause.Error())); err != nil {
		s.log.Error().Str("session_id", sessionID).Err(err).Msg("could not record stop failure")
	}
	s.events.Append(sessionID, "stop_failed", map[string]any{"error": cause.Error()})
	metricStopFailures.Inc()
	return types.Session{}, fmt.Errorf("%w: %w", ErrBackendStop, cause)
}

// StatusResult is a session summary with its live-computed duration.
type StatusResult struct {
	Session  types.Session
	Duration time.Duration
}

// Status returns the session and its duration, (endTime ?? now) − startTime,
// computed fresh on every call.
func (s *Service) Status(sessionID string) (StatusResult, error) {
	sess, err := s.reg.Get(sessionID)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Session: sess, Duration: sess.Duration(s.clk.Now())}, nil
}

// Purge deletes a terminal session's record and artifacts.
func (s *Service) Purge(sessionID string) error {
	sess, err := s.reg.Get(sessionID)
	if err != nil {
		return err
	}
	if !sess.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, sessionID, sess.Status)
	}
	if err := s.reg.Delete(sessionID); err != nil {
		return err
	}
	s.cleaner.CleanupSession(sessionID)
	s.events.Append(sessionID, "session_purged", nil)
	return nil
}

// Events returns the session's lifecycle event log.
func (s *Service) Events(sessionID string) ([]events.Event, error) {
	if _, err := s.reg.Get(sessionID); err != nil {
		return nil, err
	}
	return s.events.List(sessionID), nil
}

func (s *Service) armWatchdog(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.watchdogs[sessionID]; ok {
		t.Stop()
	}
	s.watchdogs[sessionID] = s.clk.AfterFunc(s.cfg.Recording.MaxDuration, func() {
		s.watchdogFired(sessionID)
	})
}

// cancelWatchdog is idempotent; stopping a fired or already-cancelled timer
// is a no-op.
func (s *Service) cancelWatchdog(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.watchdogs[sessionID]; ok {
		t.Stop()
		delete(s.watchdogs, sessionID)
	}
}

// watchdogFired forces the stop workflow once the maximum session duration
// elapses. There is no caller to surface errors to, so they are only logged.
func (s *Service) watchdogFired(sessionID string) {
	s.mu.Lock()
	delete(s.watchdogs, sessionID)
	s.mu.Unlock()

	s.log.Warn().Str("session_id", sessionID).Msg("max session duration exceeded")
	s.events.Append(sessionID, "watchdog_fired", nil)
	metricWatchdogStops.Inc()
	if _, err := s.Stop(context.Background(), sessionID); err != nil {
		s.log.Error().Str("session_id", sessionID).Err(err).Msg("failed to auto-stop session")
	}
}

// Shutdown cancels every watchdog and pending cleanup, then runs the stop
// workflow for each ACTIVE session sequentially. Individual failures are
// logged so every session gets its stop attempt.
func (s *Service) Shutdown(ctx context.Context) {
	s.log.Info().Msg("shutting down recording service")

	s.mu.Lock()
	for id, t := range s.watchdogs {
		t.Stop()
		delete(s.watchdogs, id)
	}
	s.mu.Unlock()
	s.cleaner.CancelAll()

	for _, sess := range s.reg.InStatus(types.StatusActive) {
		if _, err := s.Stop(ctx, sess.ID); err != nil {
			s.log.Error().Str("session_id", sess.ID).Err(err).Msg("failed to stop session on shutdown")
		}
	}
	s.video.Shutdown()
}
