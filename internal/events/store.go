package events

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Store keeps the lifecycle event log per session and fans new events out to
// live subscribers.
type Store struct {
	mu     sync.RWMutex
	bySess map[string][]Event
	subs   map[string][]chan Event
}

func NewStore() *Store {
	return &Store{
		bySess: make(map[string][]Event),
		subs:   make(map[string][]chan Event),
	}
}

func (s *Store) Append(sessionID, typ string, payload map[string]any) Event {
	evt := Event{
		ID:        randomID(),
		SessionID: sessionID,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	s.mu.Lock()
	s.bySess[sessionID] = append(s.bySess[sessionID], evt)
	// fan out under the lock so a concurrent unsubscribe cannot close a
	// channel mid-send; drop rather than block a slow subscriber
	for _, ch := range s.subs[sessionID] {
		select {
		case ch <- evt:
		default:
		}
	}
	s.mu.Unlock()
	return evt
}

func (s *Store) List(sessionID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.bySess[sessionID]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// Subscribe returns a buffered channel of future events for the session and
// a cancel func that unsubscribes and closes it.
func (s *Store) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, 32)
	s.mu.Lock()
	s.subs[sessionID] = append(s.subs[sessionID], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		subs := s.subs[sessionID]
		for i, c := range subs {
			if c == ch {
				s.subs[sessionID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

func randomID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
