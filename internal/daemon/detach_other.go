//go:build windows

package daemon

import (
	"errors"

	"github.com/joshuafuller/lnsd/internal/lnserr"
)

var errUnsupported = errors.New("daemonize unsupported on this platform")

// Daemonize is not supported on Windows: there is no POSIX fork/exec-detach
// equivalent worth faking, and Windows services are configured through the
// Service Control Manager instead. The -D/--daemonize flag reports this
// error rather than silently running in the foreground.
func Daemonize(pidFile, logFile string) error {
	return &lnserr.NetworkError{Operation: "daemonize", Details: "not supported on windows; run as a Windows service instead", Err: errUnsupported}
}
