//go:build windows

package announce

import (
	"net"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/joshuafuller/lnsd/internal/lnserr"
)

// enableBroadcast sets SO_BROADCAST on the socket underlying conn and
// returns its raw handle (as an int) for reactor registration.
func enableBroadcast(conn *net.UDPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, &lnserr.NetworkError{Operation: "syscall conn", Err: err}
	}

	var fd int
	var setErr error
	ctrlErr := raw.Control(func(sysfd uintptr) {
		fd = int(sysfd)
		on := int32(1)
		setErr = windows.Setsockopt(windows.Handle(sysfd), windows.SOL_SOCKET,
			windows.SO_BROADCAST, (*byte)(unsafe.Pointer(&on)), int32(unsafe.Sizeof(on)))
	})
	if ctrlErr != nil {
		return 0, &lnserr.NetworkError{Operation: "syscall conn control", Err: ctrlErr}
	}
	if setErr != nil {
		return 0, &lnserr.NetworkError{Operation: "setsockopt SO_BROADCAST", Err: setErr}
	}
	return fd, nil
}
