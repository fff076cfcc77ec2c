package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mitsi/recorder/internal/clock"
	"mitsi/recorder/internal/config"
	"mitsi/recorder/internal/events"
	"mitsi/recorder/internal/merge"
	"mitsi/recorder/internal/registry"
	"mitsi/recorder/internal/types"
)

type fakeVideo struct {
	createErr error
	openErr   error
	joinErr   error
	closeErr  error
	videoPath string
	calls     []string

	// oneShotClose mimics the real adapter: once a session's handles are
	// removed, a further close resolves no path.
	oneShotClose bool
	closed       map[string]bool
}

func (v *fakeVideo) CreateContext(id string) error {
	v.calls = append(v.calls, "create")
	return v.createErr
}

func (v *fakeVideo) OpenPage(id string) error {
	v.calls = append(v.calls, "open")
	return v.openErr
}

func (v *fakeVideo) JoinMeeting(id, meetingID, userID string) error {
	v.calls = append(v.calls, "join")
	return v.joinErr
}

func (v *fakeVideo) MarkStreaming(id string) error {
	v.calls = append(v.calls, "mark_streaming")
	return nil
}

func (v *fakeVideo) CloseContext(id string) (string, error) {
	v.calls = append(v.calls, "close")
	if v.oneShotClose {
		if v.closed == nil {
			v.closed = make(map[string]bool)
		}
		if v.closed[id] {
			return "", v.closeErr
		}
		v.closed[id] = true
	}
	return v.videoPath, v.closeErr
}

func (v *fakeVideo) Shutdown() { v.calls = append(v.calls, "shutdown") }

type fakeAudio struct {
	startErr error
	stopErr  error
	calls    []string
}

func (a *fakeAudio) Start(id string, pid int) (string, error) {
	a.calls = append(a.calls, "start")
	return "/rec/" + id + "/audio.webm", a.startErr
}

func (a *fakeAudio) Stop(id string) error {
	a.calls = append(a.calls, "stop")
	return a.stopErr
}

func (a *fakeAudio) AudioPath(id string) string { return "/rec/" + id + "/audio.webm" }

type fakeStream struct {
	startErr error
	stopErr  error
	calls    []string
}

func (s *fakeStream) Start(id, url string) error {
	s.calls = append(s.calls, "start")
	return s.startErr
}

func (s *fakeStream) Stop(id string) error {
	s.calls = append(s.calls, "stop")
	return s.stopErr
}

type fakeCleaner struct {
	cleaned   []string
	scheduled []string
}

func (c *fakeCleaner) CleanupSession(id string)                { c.cleaned = append(c.cleaned, id) }
func (c *fakeCleaner) Schedule(id string, delay time.Duration) { c.scheduled = append(c.scheduled, id) }
func (c *fakeCleaner) CancelAll()                              {}

type env struct {
	svc     *Service
	reg     *registry.Registry
	video   *fakeVideo
	audio   *fakeAudio
	stream  *fakeStream
	cleaner *fakeCleaner
	clk     *clock.Fake
}

func newEnv(t *testing.T, mutate func(c *config.Config)) *env {
	t.Helper()
	cfg := config.Load()
	if mutate != nil {
		mutate(&cfg)
	}
	e := &env{
		reg:     registry.New(),
		video:   &fakeVideo{videoPath: "/rec/video.webm"},
		audio:   &fakeAudio{},
		stream:  &fakeStream{},
		cleaner: &fakeCleaner{},
		clk:     clock.NewFake(time.Now()),
	}
	e.svc = New(cfg, e.reg, e.video, e.audio, e.stream, e.cleaner, merge.Disabled{}, events.NewStore(), e.clk, zerolog.Nop())
	return e
}

func TestStartStopRecordMode(t *testing.T) {
	e := newEnv(t, nil)

	sess, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.Status != types.StatusActive {
		t.Fatalf("status = %s, want ACTIVE", sess.Status)
	}
	if len(e.stream.calls) != 0 {
		t.Fatalf("record mode must not touch the stream backend: %v", e.stream.calls)
	}

	stopped, err := e.svc.Stop(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != types.StatusStopped {
		t.Fatalf("status = %s, want STOPPED", stopped.Status)
	}
	if stopped.VideoPath == "" || stopped.AudioPath == "" {
		t.Fatalf("expected both paths, got video=%q audio=%q", stopped.VideoPath, stopped.AudioPath)
	}
	if stopped.EndTime == nil {
		t.Fatalf("end time not set")
	}
}

func TestStartStreamModeWithoutURLIsValidationError(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeStream})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(e.video.calls)+len(e.audio.calls)+len(e.stream.calls) != 0 {
		t.Fatalf("no backend may be touched on validation failure")
	}
	// no session was minted, so the meeting is still free
	if _, ok := e.reg.GetByMeetingID("m1"); ok {
		t.Fatalf("validation failure must not leave a session behind")
	}
}

func TestStartDuplicateMeeting(t *testing.T) {
	e := newEnv(t, nil)
	if _, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u2", Mode: types.ModeRecord})
	if !errors.Is(err, registry.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestStartFailureMarksErrorAndCleansUp(t *testing.T) {
	e := newEnv(t, nil)
	e.video.joinErr = errors.New("join timed out")

	_, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord})
	if !errors.Is(err, ErrBackendStart) {
		t.Fatalf("expected ErrBackendStart, got %v", err)
	}

	sess, ok := e.reg.GetByMeetingID("m1")
	if !ok {
		t.Fatalf("session should exist")
	}
	if sess.Status != types.StatusError {
		t.Fatalf("status = %s, want ERROR", sess.Status)
	}
	if sess.Error == "" {
		t.Fatalf("error message not recorded")
	}
	if len(e.cleaner.cleaned) != 1 || e.cleaner.cleaned[0] != sess.ID {
		t.Fatalf("cleanup not invoked: %v", e.cleaner.cleaned)
	}
	// audio started before join failed, so teardown must have stopped it
	if len(e.audio.calls) != 2 || e.audio.calls[1] != "stop" {
		t.Fatalf("audio teardown missing: %v", e.audio.calls)
	}
	// meeting is free again: the failed session is terminal
	e.video.joinErr = nil
	if _, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord}); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
}

func TestStopFailureMarksErrorWithoutCleanup(t *testing.T) {
	e := newEnv(t, nil)
	sess, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	e.video.closeErr = errors.New("capture context wedged")

	_, err = e.svc.Stop(context.Background(), sess.ID)
	if !errors.Is(err, ErrBackendStop) {
		t.Fatalf("expected ErrBackendStop, got %v", err)
	}
	got, _ := e.reg.Get(sess.ID)
	if got.Status != types.StatusError || got.Error == "" {
		t.Fatalf("session = %+v, want ERROR with message", got)
	}
	if len(e.cleaner.cleaned) != 0 {
		t.Fatalf("stop failure must not remove artifacts: %v", e.cleaner.cleaned)
	}
}

func TestRepeatedStopKeepsRecordedPaths(t *testing.T) {
	e := newEnv(t, nil)
	e.video.oneShotClose = true

	sess, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	first, err := e.svc.Stop(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if first.VideoPath == "" {
		t.Fatalf("first stop should record a video path")
	}

	e.clk.Advance(time.Minute)
	second, err := e.svc.Stop(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if second.Status != types.StatusStopped {
		t.Fatalf("status = %s, want STOPPED", second.Status)
	}
	if second.VideoPath != first.VideoPath {
		t.Fatalf("second stop wiped video path: %q -> %q", first.VideoPath, second.VideoPath)
	}
	if second.AudioPath != first.AudioPath {
		t.Fatalf("second stop changed audio path: %q -> %q", first.AudioPath, second.AudioPath)
	}
	if second.EndTime == nil || !second.EndTime.Equal(*first.EndTime) {
		t.Fatalf("second stop moved the end time: %v -> %v", first.EndTime, second.EndTime)
	}
}

func TestStopUnknownSession(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.svc.Stop(context.Background(), "nope")
	if !errors.Is(err, registry.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStreamModeBackendOrder(t *testing.T) {
	e := newEnv(t, nil)
	sess, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecordStream, StreamURL: "rtmp://x/live"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(e.stream.calls) != 1 || e.stream.calls[0] != "start" {
		t.Fatalf("stream calls = %v", e.stream.calls)
	}
	if _, err := e.svc.Stop(context.Background(), sess.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(e.stream.calls) != 2 || e.stream.calls[1] != "stop" {
		t.Fatalf("stream stop missing: %v", e.stream.calls)
	}
	// stream stops before audio
	if e.audio.calls[len(e.audio.calls)-1] != "stop" {
		t.Fatalf("audio stop missing: %v", e.audio.calls)
	}
}

func TestWatchdogForcesStop(t *testing.T) {
	e := newEnv(t, func(c *config.Config) {
		c.Recording.MaxDuration = 30 * time.Second
	})
	sess, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	e.clk.Advance(31 * time.Second)

	got, _ := e.reg.Get(sess.ID)
	if got.Status != types.StatusStopped {
		t.Fatalf("status = %s, want STOPPED after watchdog", got.Status)
	}
}

func TestExplicitStopCancelsWatchdog(t *testing.T) {
	e := newEnv(t, func(c *config.Config) {
		c.Recording.MaxDuration = 30 * time.Second
	})
	sess, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.svc.Stop(context.Background(), sess.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	closes := len(e.video.calls)

	e.clk.Advance(time.Minute)

	if len(e.video.calls) != closes {
		t.Fatalf("watchdog ran after explicit stop: %v", e.video.calls)
	}
}

func TestStatusDurationMonotoneThenFrozen(t *testing.T) {
	e := newEnv(t, nil)
	sess, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := e.svc.Status(sess.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	e.clk.Advance(10 * time.Second)
	second, _ := e.svc.Status(sess.ID)
	if second.Duration < first.Duration {
		t.Fatalf("duration went backwards: %v -> %v", first.Duration, second.Duration)
	}

	if _, err := e.svc.Stop(context.Background(), sess.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	frozen, _ := e.svc.Status(sess.ID)
	e.clk.Advance(time.Hour)
	after, _ := e.svc.Status(sess.ID)
	if frozen.Duration != after.Duration {
		t.Fatalf("duration not frozen after stop: %v != %v", frozen.Duration, after.Duration)
	}
}

func TestCleanupAfterStopSchedulesDelayedCleanup(t *testing.T) {
	e := newEnv(t, func(c *config.Config) {
		c.Recording.CleanupAfterStop = true
	})
	sess, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.svc.Stop(context.Background(), sess.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(e.cleaner.scheduled) != 1 || e.cleaner.scheduled[0] != sess.ID {
		t.Fatalf("cleanup not scheduled: %v", e.cleaner.scheduled)
	}
	if len(e.cleaner.cleaned) != 0 {
		t.Fatalf("cleanup must be deferred, not synchronous")
	}
}

func TestShutdownStopsActiveSessions(t *testing.T) {
	e := newEnv(t, nil)
	a, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord})
	if err != nil {
		t.Fatalf("start a: %v", err)
	}
	b, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m2", UserID: "u1", Mode: types.ModeRecord})
	if err != nil {
		t.Fatalf("start b: %v", err)
	}

	e.svc.Shutdown(context.Background())

	for _, id := range []string{a.ID, b.ID} {
		got, _ := e.reg.Get(id)
		if got.Status != types.StatusStopped {
			t.Fatalf("session %s = %s, want STOPPED", id, got.Status)
		}
	}
	if e.video.calls[len(e.video.calls)-1] != "shutdown" {
		t.Fatalf("video backend not shut down: %v", e.video.calls)
	}
}

func TestShutdownContinuesPastFailures(t *testing.T) {
	e := newEnv(t, nil)
	if _, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord}); err != nil {
		t.Fatalf("start a: %v", err)
	}
	b, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m2", UserID: "u1", Mode: types.ModeRecord})
	if err != nil {
		t.Fatalf("start b: %v", err)
	}
	// every close fails; shutdown must still have attempted both sessions
	e.video.closeErr = errors.New("wedged")

	e.svc.Shutdown(context.Background())

	got, _ := e.reg.Get(b.ID)
	if got.Status != types.StatusError {
		t.Fatalf("second session not attempted, status = %s", got.Status)
	}
}

func TestPurge(t *testing.T) {
	e := newEnv(t, nil)
	sess, err := e.svc.Start(context.Background(), StartRequest{MeetingID: "m1", UserID: "u1", Mode: types.ModeRecord})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.svc.Purge(sess.ID); !errors.Is(err, ErrNotTerminal) {
		t.Fatalf("purging an active session should fail, got %v", err)
	}
	if _, err := e.svc.Stop(context.Background(), sess.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := e.svc.Purge(sess.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := e.reg.Get(sess.ID); !errors.Is(err, registry.ErrSessionNotFound) {
		t.Fatalf("session should be gone, got %v", err)
	}
	if len(e.cleaner.cleaned) == 0 || e.cleaner.cleaned[len(e.cleaner.cleaned)-1] != sess.ID {
		t.Fatalf("purge should remove artifacts: %v", e.cleaner.cleaned)
	}
}
