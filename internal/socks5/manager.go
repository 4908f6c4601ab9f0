package socks5

import (
	"net"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/joshuafuller/lnsd/internal/lnserr"
	"github.com/joshuafuller/lnsd/internal/reactor"
)

// SessionManager owns its own poller and accept loop, independent of the
// daemon's main reactor — the SOCKS5 proxy is an optional variant that runs
// on its own OS thread per spec §5.
type SessionManager struct {
	reactor  reactor.Reactor
	listener *net.TCPListener
	listenFd int
	peers    peerLookup
	log      zerolog.Logger
	port     int
}

// NewSessionManager constructs a manager bound to peers for ".lan"
// resolution. Open must be called before it accepts connections.
func NewSessionManager(peers peerLookup, port int, log zerolog.Logger) (*SessionManager, error) {
	r, err := reactor.New()
	if err != nil {
		return nil, err
	}
	return &SessionManager{
		reactor: r,
		peers:   peers,
		log:     log.With().Str("component", "socks5").Logger(),
		port:    port,
	}, nil
}

// Open binds the SOCKS5 listener to loopback and begins accepting.
func (m *SessionManager) Open() error {
	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: m.port})
	if err != nil {
		return &lnserr.NetworkError{Operation: "bind socks5 listener", Err: err}
	}
	fd, err := rawFd(ln)
	if err != nil {
		_ = ln.Close()
		return err
	}

	m.listener = ln
	m.listenFd = fd
	m.reactor.Bind(fd, []reactor.Event{reactor.Readable}, func(int) { m.onAcceptable() })
	return nil
}

// Close stops accepting and tears down the listener. In-flight sessions are
// left to close on their own EOF since each owns its own fds.
func (m *SessionManager) Close() error {
	if m.listener == nil {
		return nil
	}
	m.reactor.Unbind(m.listenFd)
	return m.listener.Close()
}

// Run drives the manager's poller until the reactor has no bound clients
// left to service; cmd/lnsd runs it on its own goroutine.
func (m *SessionManager) Run() error {
	for m.reactor.HasClients() {
		if err := m.reactor.Poll(-1); err != nil {
			return err
		}
	}
	return nil
}

func (m *SessionManager) onAcceptable() {
	conn, err := m.listener.AcceptTCP()
	if err != nil {
		m.log.Debug().Err(err).Msg("socks5 accept failed")
		return
	}
	fd, err := rawFd(conn)
	if err != nil {
		m.log.Warn().Err(err).Msg("cannot obtain socks5 client fd")
		_ = conn.Close()
		return
	}

	ps := &preSession{mgr: m, conn: conn, fd: fd}
	m.reactor.Bind(fd, []reactor.Event{reactor.Readable}, func(int) { ps.onReadable() })
}

// fdHaver is satisfied by *net.TCPListener, *net.TCPConn and *net.UDPConn.
type fdHaver interface {
	SyscallConn() (syscall.RawConn, error)
}

// rawFd extracts the raw file descriptor for reactor registration, the same
// technique the announce and control engines use.
func rawFd(v fdHaver) (int, error) {
	raw, err := v.SyscallConn()
	if err != nil {
		return 0, &lnserr.NetworkError{Operation: "syscall conn", Err: err}
	}
	var fd int
	if err := raw.Control(func(sysfd uintptr) { fd = int(sysfd) }); err != nil {
		return 0, &lnserr.NetworkError{Operation: "syscall conn control", Err: err}
	}
	return fd, nil
}
