// Command sttctl manages a locally running STT server instance through a
// PID file: start, stop, restart and status.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	defaultPIDFile  = "/tmp/mlx-stt-server.pid"
	stopGracePeriod = 10 * time.Second
	stopPollEvery   = 200 * time.Millisecond
)

var errNotRunning = errors.New("server not running")

func main() {
	pidFile := flag.String("pid-file", defaultPIDFile, "Path to the PID file")
	binary := flag.String("binary", "stt-server", "Server binary to launch")
	configPath := flag.String("config", "configs/config.yaml", "Configuration file passed to the server")
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	var err error
	switch flag.Arg(0) {
	case "start":
		err = start(*pidFile, *binary, *configPath)
	case "stop":
		err = stop(*pidFile)
	case "restart":
		err = stop(*pidFile)
		if err == nil || errors.Is(err, errNotRunning) {
			err = start(*pidFile, *binary, *configPath)
		}
	case "status":
		err = status(*pidFile)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] start|stop|restart|status\n", filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}

func start(pidFile, binary, configPath string) error {
	// Starting an already-running server is a no-op reporting the existing PID
	if pid, err := readPID(pidFile); err == nil && processAlive(pid) {
		fmt.Printf("Server already running with PID %d\n", pid)
		return nil
	}

	cmd := exec.Command(binary, "-config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", binary, err)
	}

	pid := cmd.Process.Pid
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0644); err != nil {
		cmd.Process.Kill()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// Detach; the server handles its own lifecycle from here
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to release process: %w", err)
	}

	fmt.Printf("Server started with PID %d\n", pid)
	return nil
}

func stop(pidFile string) error {
	pid, err := readPID(pidFile)
	if err != nil {
		return fmt.Errorf("%w: %v", errNotRunning, err)
	}

	if !processAlive(pid) {
		os.Remove(pidFile)
		return fmt.Errorf("%w (stale PID file removed)", errNotRunning)
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal PID %d: %w", pid, err)
	}

	deadline := time.Now().Add(stopGracePeriod)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			os.Remove(pidFile)
			fmt.Printf("Server stopped (PID %d)\n", pid)
			return nil
		}
		time.Sleep(stopPollEvery)
	}

	// Graceful shutdown did not finish in time
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill PID %d: %w", pid, err)
	}

	os.Remove(pidFile)
	fmt.Printf("Server force-killed (PID %d)\n", pid)
	return nil
}

func status(pidFile string) error {
	pid, err := readPID(pidFile)
	if err != nil {
		fmt.Println("Server is not running")
		return nil
	}

	if processAlive(pid) {
		fmt.Printf("Server is running with PID %d\n", pid)
	} else {
		fmt.Printf("Server is not running (stale PID file %s)\n", pidFile)
	}

	return nil
}

func readPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file contents: %w", err)
	}

	return pid, nil
}

// processAlive reports whether a process with the given PID exists.
// Signal 0 performs the existence check without delivering anything.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
