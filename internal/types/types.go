package types

import (
	"fmt"
	"time"
)

// Mode selects which capture backends a session drives.
type Mode string

const (
	ModeRecord       Mode = "record"
	ModeStream       Mode = "stream"
	ModeRecordStream Mode = "record_stream"
)

// Valid reports whether m is one of the known capture modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeRecord, ModeStream, ModeRecordStream:
		return true
	}
	return false
}

// IncludesAudio reports whether the mode records audio locally.
func (m Mode) IncludesAudio() bool {
	return m == ModeRecord || m == ModeRecordStream
}

// IncludesStream reports whether the mode relays a live stream.
func (m Mode) IncludesStream() bool {
	return m == ModeStream || m == ModeRecordStream
}

// Status is the lifecycle state of a session.
// STARTING and STOPPING are transient; STOPPED and ERROR are terminal.
type Status string

const (
	StatusStarting Status = "STARTING"
	StatusActive   Status = "ACTIVE"
	StatusStopping Status = "STOPPING"
	StatusStopped  Status = "STOPPED"
	StatusError    Status = "ERROR"
)

// Terminal reports whether no further automatic transitions happen from s.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusError
}

// Session is one recording/streaming attempt bound to exactly one meeting.
// The registry owns the canonical record; everything else works on copies.
type Session struct {
	ID        string     `json:"session_id"`
	MeetingID string     `json:"meeting_id"`
	UserID    string     `json:"user_id"`
	Mode      Mode       `json:"mode"`
	Status    Status     `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	VideoPath string     `json:"video_path,omitempty"`
	AudioPath string     `json:"audio_path,omitempty"`
	StreamURL string     `json:"stream_url,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Duration is the wall-clock length of the session as of now. Once the
// session has an end time the value is frozen.
func (s Session) Duration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return end.Sub(s.StartTime)
}

func (s Session) String() string {
	return fmt.Sprintf("session %s meeting=%s mode=%s status=%s", s.ID, s.MeetingID, s.Mode, s.Status)
}
