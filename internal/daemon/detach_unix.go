//go:build unix

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/joshuafuller/lnsd/internal/lnserr"
)

// reexecMarker is set in the child's environment so it knows not to detach
// again — Go cannot safely fork() after the runtime has started extra
// goroutines/threads, so "detach" here means re-exec the current binary
// with stdio redirected and the parent exiting, not a classic double-fork.
const reexecMarker = "LNSD_DETACHED=1"

// Daemonize re-execs the current process in the background, redirecting
// stdout/stderr to logFile and recording the child's pid at pidFile, then
// causes the parent to exit. Call this before opening any sockets: the
// child inherits none of the parent's file descriptors.
func Daemonize(pidFile, logFile string) error {
	if os.Getenv("LNSD_DETACHED") == "1" {
		return nil
	}

	out, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &lnserr.NetworkError{Operation: "open daemon log file", Err: err}
	}
	defer out.Close()

	exe, err := os.Executable()
	if err != nil {
		return &lnserr.NetworkError{Operation: "resolve executable path", Err: err}
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), reexecMarker)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return &lnserr.NetworkError{Operation: "re-exec for daemonize", Err: err}
	}

	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", cmd.Process.Pid)), 0o644); err != nil {
		return &lnserr.NetworkError{Operation: "write pid file", Err: err}
	}

	os.Exit(0)
	return nil
}

// ReadPID reads back a pid file written by Daemonize, used by tooling that
// wants to signal a running daemon.
func ReadPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, &lnserr.NetworkError{Operation: "read pid file", Err: err}
	}
	pid, err := strconv.Atoi(string(trimNewline(data)))
	if err != nil {
		return 0, &lnserr.ValidationError{Field: "pid file", Value: string(data), Reason: "not an integer"}
	}
	return pid, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
