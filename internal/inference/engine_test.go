//go:build unix

package inference_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"vidsurvey/internal/inference"
	"vidsurvey/internal/services"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestInvokePassesWorkDirAndScores(t *testing.T) {
	script := writeScript(t, `printf '{"dir":"%s","scores":%s}' "$1" "$2"`+"\n")
	workDir := t.TempDir()
	engine := &inference.Engine{Command: script, Timeout: 10 * time.Second}

	out, err := engine.Invoke(context.Background(), workDir, []int{1, 0, 3})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	want := `{"dir":"` + workDir + `","scores":[1,0,3]}`
	if string(out) != want {
		t.Fatalf("unexpected output %s, want %s", out, want)
	}
}

func TestInvokePrefixArgs(t *testing.T) {
	script := writeScript(t, `echo "$1|$2"`+"\n")
	workDir := t.TempDir()
	engine := &inference.Engine{Command: script, Args: []string{"analyze.py"}, Timeout: 10 * time.Second}
	out, err := engine.Invoke(context.Background(), workDir, []int{2})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != "analyze.py|"+workDir {
		t.Fatalf("expected prefix arg before work dir, got %q", got)
	}
}

func TestInvokeNonZeroExitIsCrash(t *testing.T) {
	script := writeScript(t, "echo 'model file missing' >&2\nexit 3\n")
	engine := &inference.Engine{Command: script, Timeout: 10 * time.Second}

	_, err := engine.Invoke(context.Background(), t.TempDir(), []int{1})
	if !errors.Is(err, services.ErrInferenceCrashed) {
		t.Fatalf("expected crash error, got %v", err)
	}
	if !strings.Contains(err.Error(), "code 3") || !strings.Contains(err.Error(), "model file missing") {
		t.Fatalf("expected exit code and stderr tail in %q", err)
	}
}

func TestInvokeTimeoutKillsProcessGroup(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	script := writeScript(t, "sleep 30 &\necho $! > "+pidFile+"\nwait\n")
	engine := &inference.Engine{Command: script, Timeout: 300 * time.Millisecond}

	started := time.Now()
	_, err := engine.Invoke(context.Background(), t.TempDir(), []int{1})
	if !errors.Is(err, services.ErrInferenceTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("invoke blocked for %s", elapsed)
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("read child pid: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse child pid: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for !processGone(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("grandchild %d survived the group kill", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// processGone treats unreaped zombies as gone; reaping orphans is up to init.
func processGone(pid int) bool {
	if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
		return true
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return os.IsNotExist(err)
	}
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func TestInvokeOutputCap(t *testing.T) {
	script := writeScript(t, "head -c 4096 /dev/zero\n")
	engine := &inference.Engine{Command: script, Timeout: 10 * time.Second, MaxOutput: 100}
	_, err := engine.Invoke(context.Background(), t.TempDir(), []int{1})
	if !errors.Is(err, services.ErrInferenceMalformed) {
		t.Fatalf("expected malformed error for oversized output, got %v", err)
	}
}

func TestInvokeRequiresConfiguration(t *testing.T) {
	engine := &inference.Engine{Command: "", Timeout: time.Second}
	if _, err := engine.Invoke(context.Background(), t.TempDir(), nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	engine = &inference.Engine{Command: "/bin/true"}
	if _, err := engine.Invoke(context.Background(), t.TempDir(), nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without timeout, got %v", err)
	}
}
