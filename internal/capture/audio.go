package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const audioFileName = "audio.webm"

// AudioCapture records meeting audio through an ffmpeg subprocess, one per
// session. It owns the per-session process handles exclusively; the
// orchestrator only ever calls Start/Stop.
type AudioCapture struct {
	root    string
	codec   string
	bitrate string
	grace   time.Duration
	spawn   SpawnFunc
	log     zerolog.Logger

	procs *procTable
}

func NewAudioCapture(root, codec, bitrate string, grace time.Duration, spawn SpawnFunc, log zerolog.Logger) *AudioCapture {
	return &AudioCapture{
		root:    root,
		codec:   codec,
		bitrate: bitrate,
		grace:   grace,
		spawn:   spawn,
		log:     log.With().Str("component", "audio").Logger(),
		procs:   newProcTable(),
	}
}

// Start spawns the audio capture process for the session and returns the
// output path. Starting twice without an intervening Stop fails fast. A
// spawn failure releases the reserved slot so nothing leaks.
func (a *AudioCapture) Start(sessionID string, browserPID int) (string, error) {
	dir := filepath.Join(a.root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	out := filepath.Join(dir, audioFileName)

	if !a.procs.reserve(sessionID) {
		return "", fmt.Errorf("audio capture already running for session %s", sessionID)
	}

	args := []string{
		"-f", "pulse",
		"-i", "default",
		"-c:a", a.codec,
		"-b:a", a.bitrate,
		"-t", "21600",
		out,
	}
	p, err := a.spawn("ffmpeg", args...)
	if err != nil {
		a.procs.release(sessionID)
		return "", fmt.Errorf("spawn audio capture: %w", err)
	}
	a.procs.set(sessionID, p)
	a.log.Info().Str("session_id", sessionID).Int("browser_pid", browserPID).Str("path", out).Msg("audio capture started")
	return out, nil
}

// Stop terminates the session's capture process and returns once the process
// has exited. Stopping a session with no process is a no-op.
func (a *AudioCapture) Stop(sessionID string) error {
	p, ok := a.procs.take(sessionID)
	if !ok || p == nil {
		return nil
	}
	stopProcess(p, a.grace)
	a.log.Info().Str("session_id", sessionID).Msg("audio capture stopped")
	return nil
}

// AudioPath resolves the session's audio output path from the session id
// alone, independent of process state.
func (a *AudioCapture) AudioPath(sessionID string) string {
	return filepath.Join(a.root, sessionID, audioFileName)
}
