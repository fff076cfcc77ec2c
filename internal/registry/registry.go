package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"mitsi/recorder/internal/types"
)

var (
	ErrDuplicateSession = errors.New("meeting already has an active session")
	ErrSessionNotFound  = errors.New("session not found")
)

// Registry is the authoritative in-memory record of recording sessions. The
// meeting index maps each meeting to its current session and is what enforces
// at-most-one non-terminal session per meeting. Both maps are reachable only
// through Registry methods; callers always receive copies.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*types.Session
	meetingIndex map[string]string
}

func New() *Registry {
	return &Registry{
		sessions:     make(map[string]*types.Session),
		meetingIndex: make(map[string]string),
	}
}

// Create mints a new STARTING session for the meeting. The duplicate check
// and the insert happen under one lock so two racing creates for the same
// meeting cannot both pass. A terminal predecessor is superseded in the
// meeting index but stays in the session map until deleted.
func (r *Registry) Create(meetingID, userID string, mode types.Mode, streamURL string) (types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prevID, ok := r.meetingIndex[meetingID]; ok {
		if prev, ok := r.sessions[prevID]; ok && !prev.Status.Terminal() {
			return types.Session{}, ErrDuplicateSession
		}
	}

	sess := &types.Session{
		ID:        uuid.New().String(),
		MeetingID: meetingID,
		UserID:    userID,
		Mode:      mode,
		Status:    types.StatusStarting,
		StartTime: time.Now().UTC(),
		StreamURL: streamURL,
	}
	r.sessions[sess.ID] = sess
	r.meetingIndex[meetingID] = sess.ID
	return *sess, nil
}

func (r *Registry) Get(id string) (types.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return types.Session{}, ErrSessionNotFound
	}
	return *sess, nil
}

// Patch is the closed set of fields a transition may change. Nil fields are
// left untouched; set fields win over the current value.
type Patch struct {
	Status    *types.Status
	EndTime   *time.Time
	VideoPath *string
	AudioPath *string
	Error     *string
}

// Update applies the patch to the session and returns the updated copy.
func (r *Registry) Update(id string, p Patch) (types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return types.Session{}, ErrSessionNotFound
	}
	if p.Status != nil {
		sess.Status = *p.Status
	}
	if p.EndTime != nil {
		sess.EndTime = p.EndTime
	}
	if p.VideoPath != nil {
		sess.VideoPath = *p.VideoPath
	}
	if p.AudioPath != nil {
		sess.AudioPath = *p.AudioPath
	}
	if p.Error != nil {
		sess.Error = *p.Error
	}
	return *sess, nil
}

// Delete removes the session record. The meeting index entry is removed only
// if it still points at this session; a superseding session keeps its slot.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	if r.meetingIndex[sess.MeetingID] == id {
		delete(r.meetingIndex, sess.MeetingID)
	}
	return nil
}

// GetByMeetingID is the non-erroring lookup through the meeting index.
func (r *Registry) GetByMeetingID(meetingID string) (types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.meetingIndex[meetingID]
	if !ok {
		return types.Session{}, false
	}
	sess, ok := r.sessions[id]
	if !ok {
		return types.Session{}, false
	}
	return *sess, true
}

func (r *Registry) IsSessionActive(meetingID string) bool {
	sess, ok := r.GetByMeetingID(meetingID)
	return ok && sess.Status == types.StatusActive
}

// InStatus returns a snapshot of all sessions currently in one of the given
// statuses. Shutdown draining uses this instead of reaching into the maps.
func (r *Registry) InStatus(statuses ...types.Status) []types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.Session
	for _, sess := range r.sessions {
		for _, st := range statuses {
			if sess.Status == st {
				out = append(out, *sess)
				break
			}
		}
	}
	return out
}

// StatusPatch is shorthand for a patch that only moves the status.
func StatusPatch(st types.Status) Patch {
	return Patch{Status: &st}
}

// ErrorPatch marks the session failed with the given message.
func ErrorPatch(msg string) Patch {
	st := types.StatusError
	return Patch{Status: &st, Error: &msg}
}
