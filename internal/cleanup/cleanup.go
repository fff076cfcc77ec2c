package cleanup

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mitsi/recorder/internal/clock"
)

// Manager removes on-disk session artifacts, immediately or on a schedule.
// Removal is always best effort: cleanup must never be the reason a start or
// stop workflow fails, so failures are logged and swallowed.
type Manager struct {
	root  string
	clock clock.Clock
	log   zerolog.Logger

	mu      sync.Mutex
	pending map[string]clock.Timer
}

func NewManager(root string, c clock.Clock, log zerolog.Logger) *Manager {
	return &Manager{
		root:    root,
		clock:   c,
		log:     log.With().Str("component", "cleanup").Logger(),
		pending: make(map[string]clock.Timer),
	}
}

// CleanupSession removes the session's artifact directory. A missing
// directory is not an error.
func (m *Manager) CleanupSession(sessionID string) {
	dir := filepath.Join(m.root, sessionID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		m.log.Error().Str("session_id", sessionID).Err(err).Msg("cleanup failed")
		return
	}
	m.log.Info().Str("session_id", sessionID).Msg("cleaned up session directory")
}

// Schedule queues CleanupSession after the delay, replacing any earlier
// schedule for the same session. The delay leaves trailing readers of the
// artifacts time to finish.
func (m *Manager) Schedule(sessionID string, delay time.Duration) {
	m.mu.Lock()
	if t, ok := m.pending[sessionID]; ok {
		t.Stop()
	}
	m.pending[sessionID] = m.clock.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.pending, sessionID)
		m.mu.Unlock()
		m.CleanupSession(sessionID)
	})
	m.mu.Unlock()
}

// CancelAll stops every pending scheduled cleanup.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.pending {
		t.Stop()
		delete(m.pending, id)
	}
}

// CleanupOldSessions removes any session directory whose last-modified age
// exceeds maxAge. Meant to be run periodically from the cleanup command.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Error().Err(err).Msg("scan recording root failed")
		}
		return
	}

	now := m.clock.Now()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		full := filepath.Join(m.root, e.Name())
		info, err := e.Info()
		if err != nil {
			m.log.Error().Str("dir", full).Err(err).Msg("stat failed")
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			if err := os.RemoveAll(full); err != nil {
				m.log.Error().Str("dir", full).Err(err).Msg("remove failed")
				continue
			}
			m.log.Info().Str("dir", e.Name()).Msg("cleaned up old session")
		}
	}
}
