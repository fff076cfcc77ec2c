package health

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

type CheckResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type Status struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (s Status) String() string {
	status := "OK"
	if !s.OK {
		status = "FAIL"
	}
	out := fmt.Sprintf("Health: %s\n", status)
	for _, c := range s.Checks {
		mark := "ok"
		if !c.OK {
			mark = "FAIL"
		}
		out += fmt.Sprintf("  [%s] %s", mark, c.Name)
		if c.Error != "" {
			out += " - " + c.Error
		}
		out += "\n"
	}
	return out
}

// CheckAll runs every readiness check: the artifact root must be writable and
// ffmpeg must be on PATH, otherwise no capture backend can start.
func CheckAll(recordingDir string) Status {
	checks := []CheckResult{
		checkRecordingDir(recordingDir),
		checkFFmpeg(),
	}
	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}
	return Status{OK: allOK, Checks: checks, CheckedAt: time.Now().UTC()}
}

func checkRecordingDir(dir string) CheckResult {
	result := CheckResult{Name: "recording_dir"}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Error = fmt.Sprintf("create %s: %v", dir, err)
		return result
	}
	probe := filepath.Join(dir, ".health-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		result.Error = fmt.Sprintf("write probe: %v", err)
		return result
	}
	_ = os.Remove(probe)
	result.OK = true
	return result
}

func checkFFmpeg() CheckResult {
	result := CheckResult{Name: "ffmpeg"}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		result.Error = "ffmpeg not found on PATH"
		return result
	}
	result.OK = true
	return result
}
