package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// StreamRelay pushes the session's capture to an external stream URL through
// an ffmpeg subprocess, supervised the same way as audio capture.
type StreamRelay struct {
	root  string
	size  string
	grace time.Duration
	spawn SpawnFunc
	log   zerolog.Logger

	procs *procTable
}

func NewStreamRelay(root, size string, grace time.Duration, spawn SpawnFunc, log zerolog.Logger) *StreamRelay {
	return &StreamRelay{
		root:  root,
		size:  size,
		grace: grace,
		spawn: spawn,
		log:   log.With().Str("component", "streaming").Logger(),
		procs: newProcTable(),
	}
}

// Start spawns the relay process pushing to streamURL. The URL must already
// have been validated by the caller; an empty one is still rejected here so
// the adapter can never spawn a relay with nowhere to push.
func (s *StreamRelay) Start(sessionID, streamURL string) error {
	if streamURL == "" {
		return fmt.Errorf("stream URL is required for streaming mode")
	}
	dir := filepath.Join(s.root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stream dir: %w", err)
	}

	if !s.procs.reserve(sessionID) {
		return fmt.Errorf("stream relay already running for session %s", sessionID)
	}

	args := []string{
		"-f", "lavfi",
		"-i", "color=c=black:s=" + s.size + ":d=21600",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", "2000k",
		"-f", "flv",
		streamURL,
	}
	p, err := s.spawn("ffmpeg", args...)
	if err != nil {
		s.procs.release(sessionID)
		return fmt.Errorf("spawn stream relay: %w", err)
	}
	s.procs.set(sessionID, p)
	s.log.Info().Str("session_id", sessionID).Str("stream_url", streamURL).Msg("stream relay started")
	return nil
}

// Stop terminates the relay and returns once the process has exited. A
// session with no relay running is a no-op.
func (s *StreamRelay) Stop(sessionID string) error {
	p, ok := s.procs.take(sessionID)
	if !ok || p == nil {
		return nil
	}
	stopProcess(p, s.grace)
	s.log.Info().Str("session_id", sessionID).Msg("stream relay stopped")
	return nil
}
