package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Adapter supervises one recording context and page per session on top of a
// Driver. Handles are owned here exclusively; the orchestrator only calls the
// start/stop contract.
type Adapter struct {
	driver       Driver
	root         string
	clientURL    string
	readyTimeout time.Duration
	joinTimeout  time.Duration
	log          zerolog.Logger

	mu       sync.Mutex
	contexts map[string]RecordingContext
	pages    map[string]Page
}

func NewAdapter(driver Driver, root, clientURL string, readyTimeout, joinTimeout time.Duration, log zerolog.Logger) *Adapter {
	return &Adapter{
		driver:       driver,
		root:         root,
		clientURL:    clientURL,
		readyTimeout: readyTimeout,
		joinTimeout:  joinTimeout,
		log:          log.With().Str("component", "browser").Logger(),
		contexts:     make(map[string]RecordingContext),
		pages:        make(map[string]Page),
	}
}

// CreateContext mints the session's isolated recording context over its
// artifact directory. Creating twice without a close fails fast.
func (a *Adapter) CreateContext(sessionID string) error {
	dir := filepath.Join(a.root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}

	// Reserve the slot before calling the driver so racing creates for the
	// same session cannot both pass the check and leak a context.
	a.mu.Lock()
	if _, exists := a.contexts[sessionID]; exists {
		a.mu.Unlock()
		return fmt.Errorf("recording context already exists for session %s", sessionID)
	}
	a.contexts[sessionID] = nil
	a.mu.Unlock()

	rc, err := a.driver.NewRecordingContext(dir)
	if err != nil {
		a.mu.Lock()
		delete(a.contexts, sessionID)
		a.mu.Unlock()
		return fmt.Errorf("create recording context: %w", err)
	}

	a.mu.Lock()
	a.contexts[sessionID] = rc
	a.mu.Unlock()
	return nil
}

// OpenPage opens the capture client page inside the session's context and
// waits for it to be ready. A page that fails the ready wait is closed before
// the error is returned so no handle leaks.
func (a *Adapter) OpenPage(sessionID string) error {
	a.mu.Lock()
	rc, ok := a.contexts[sessionID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("recording context for session %s not found", sessionID)
	}

	page, err := rc.OpenPage(a.clientURL, a.readyTimeout)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.pages[sessionID] = page
	a.mu.Unlock()
	return nil
}

// JoinMeeting passes the meeting parameters into the capture client and
// waits for the joined flag, bounded by the join timeout.
func (a *Adapter) JoinMeeting(sessionID, meetingID, userID string) error {
	a.mu.Lock()
	page, ok := a.pages[sessionID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("page for session %s not found", sessionID)
	}

	script := fmt.Sprintf("window.mitsiConfig = { meetingId: %q, userId: %q, autoJoin: true }", meetingID, userID)
	if err := page.Evaluate(script); err != nil {
		return fmt.Errorf("inject meeting config: %w", err)
	}
	if err := page.WaitFor("window.mitsiJoined === true", a.joinTimeout); err != nil {
		return fmt.Errorf("join meeting %s: %w", meetingID, err)
	}
	a.log.Info().Str("session_id", sessionID).Str("meeting_id", meetingID).Msg("joined meeting")
	return nil
}

// MarkStreaming flips the capture client into streaming mode.
func (a *Adapter) MarkStreaming(sessionID string) error {
	a.mu.Lock()
	page, ok := a.pages[sessionID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("page for session %s not found", sessionID)
	}
	return page.Evaluate("window.streamingActive = true")
}

// CloseContext tears down the session's page and context and returns the
// recorded video path. Resolving the path is best effort; a session with no
// context is a no-op. Both are intentional so stop can always be called
// defensively.
func (a *Adapter) CloseContext(sessionID string) (string, error) {
	a.mu.Lock()
	rc, hasCtx := a.contexts[sessionID]
	page, hasPage := a.pages[sessionID]
	delete(a.contexts, sessionID)
	delete(a.pages, sessionID)
	a.mu.Unlock()

	if !hasCtx && !hasPage {
		return "", nil
	}

	var videoPath string
	if hasPage {
		if p, err := page.VideoPath(); err != nil {
			a.log.Warn().Str("session_id", sessionID).Err(err).Msg("could not resolve video path")
		} else {
			videoPath = p
		}
		if err := page.Close(); err != nil {
			a.log.Warn().Str("session_id", sessionID).Err(err).Msg("page close failed")
		}
	}
	if hasCtx && rc != nil {
		if err := rc.Close(); err != nil {
			return videoPath, fmt.Errorf("close recording context: %w", err)
		}
	}
	return videoPath, nil
}

// Shutdown closes every remaining context.
func (a *Adapter) Shutdown() {
	a.mu.Lock()
	ids := make([]string, 0, len(a.contexts))
	for id := range a.contexts {
		ids = append(ids, id)
	}
	a.mu.Unlock()
	for _, id := range ids {
		if _, err := a.CloseContext(id); err != nil {
			a.log.Warn().Str("session_id", id).Err(err).Msg("context close on shutdown failed")
		}
	}
}
