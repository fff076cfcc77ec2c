package capture

import (
	"bufio"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Process is the supervision handle over one capture subprocess. Done is
// closed once the OS process has actually exited, so waiting on it is the
// only way to know the process released its files.
type Process interface {
	// Terminate asks the process to exit gracefully (SIGTERM).
	Terminate() error
	// Kill forcibly ends the process.
	Kill() error
	Done() <-chan struct{}
}

// SpawnFunc starts a subprocess and returns its supervision handle. Adapters
// take it as a dependency so tests can substitute fake processes.
type SpawnFunc func(name string, args ...string) (Process, error)

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// Spawner returns a SpawnFunc backed by os/exec. The subprocess's stderr is
// streamed line by line into the logger at debug level (ffmpeg writes its
// progress there).
func Spawner(log zerolog.Logger) SpawnFunc {
	return func(name string, args ...string) (Process, error) {
		cmd := exec.Command(name, args...)
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		p := &execProcess{cmd: cmd, done: make(chan struct{})}
		go streamLines(log, name, stderr)
		go func() {
			_ = cmd.Wait()
			close(p.done)
		}()
		return p, nil
	}
}

func (p *execProcess) Terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

// stopProcess runs the graceful-then-forced shutdown protocol: SIGTERM, wait
// up to grace for exit, then SIGKILL and wait for the exit to be confirmed.
// It returns only after Done is closed.
func stopProcess(p Process, grace time.Duration) {
	_ = p.Terminate()
	select {
	case <-p.Done():
		return
	case <-time.After(grace):
	}
	_ = p.Kill()
	<-p.Done()
}

// procTable tracks at most one live process per session. Reserve-then-set
// keeps two racing Starts from both spawning (the second reserve fails).
type procTable struct {
	mu    sync.Mutex
	procs map[string]Process
}

func newProcTable() *procTable {
	return &procTable{procs: make(map[string]Process)}
}

func (t *procTable) reserve(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.procs[sessionID]; exists {
		return false
	}
	t.procs[sessionID] = nil
	return true
}

func (t *procTable) set(sessionID string, p Process) {
	t.mu.Lock()
	t.procs[sessionID] = p
	t.mu.Unlock()
}

func (t *procTable) release(sessionID string) {
	t.mu.Lock()
	delete(t.procs, sessionID)
	t.mu.Unlock()
}

func (t *procTable) take(sessionID string) (Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[sessionID]
	if ok {
		delete(t.procs, sessionID)
	}
	return p, ok
}

func streamLines(log zerolog.Logger, name string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug().Str("proc", name).Msg(scanner.Text())
	}
}
