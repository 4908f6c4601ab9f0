//go:build unix

package announce

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/joshuafuller/lnsd/internal/lnserr"
)

// enableBroadcast sets SO_BROADCAST on the socket underlying conn and
// returns its raw file descriptor for reactor registration.
func enableBroadcast(conn *net.UDPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, &lnserr.NetworkError{Operation: "syscall conn", Err: err}
	}

	var fd int
	var setErr error
	ctrlErr := raw.Control(func(sysfd uintptr) {
		fd = int(sysfd)
		setErr = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if ctrlErr != nil {
		return 0, &lnserr.NetworkError{Operation: "syscall conn control", Err: ctrlErr}
	}
	if setErr != nil {
		return 0, &lnserr.NetworkError{Operation: "setsockopt SO_BROADCAST", Err: setErr}
	}
	return fd, nil
}
