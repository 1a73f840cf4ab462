package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func writePIDFile(t *testing.T, pid int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "server.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644); err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}
	return path
}

func TestStartAlreadyRunningIsNoOp(t *testing.T) {
	// The test process itself stands in for a running server
	pidFile := writePIDFile(t, os.Getpid())

	// The binary path is bogus on purpose; a no-op must never try to launch it
	if err := start(pidFile, "/nonexistent/server-binary", "config.yaml"); err != nil {
		t.Errorf("Expected no-op for already-running server, got error: %v", err)
	}

	// The existing PID file is left untouched
	pid, err := readPID(pidFile)
	if err != nil {
		t.Fatalf("readPID failed: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("Expected PID file to still report %d, got %d", os.Getpid(), pid)
	}
}

func TestStopWithoutPIDFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "server.pid")

	if err := stop(pidFile); !errors.Is(err, errNotRunning) {
		t.Errorf("Expected errNotRunning, got %v", err)
	}
}

func TestStopStalePIDFile(t *testing.T) {
	// A PID far beyond any plausible pid_max
	pidFile := writePIDFile(t, 1<<30)

	if err := stop(pidFile); !errors.Is(err, errNotRunning) {
		t.Errorf("Expected errNotRunning for stale PID file, got %v", err)
	}

	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("Expected stale PID file to be removed")
	}
}

func TestReadPIDInvalidContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")
	if err := os.WriteFile(path, []byte("not a pid"), 0644); err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}

	if _, err := readPID(path); err == nil {
		t.Error("Expected error for invalid PID file contents")
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("Expected own process to be alive")
	}
	if processAlive(1 << 30) {
		t.Error("Expected absurd PID to be dead")
	}
}
