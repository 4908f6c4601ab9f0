package control

import (
	"net"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/joshuafuller/lnsd/internal/announce"
	"github.com/joshuafuller/lnsd/internal/lnserr"
	"github.com/joshuafuller/lnsd/internal/reactor"
	"github.com/joshuafuller/lnsd/internal/txbuf"
)

// recvBufSize is how much a single readable-client callback reads at once;
// it has no bearing on the maximum frame size, only on syscall batching.
const recvBufSize = 4096

// peerQuery is the subset of the announce engine the control engine needs,
// kept as an interface so tests can supply a fake peer map without standing
// up a real broadcast socket.
type peerQuery interface {
	QueryIP(ip string) (string, bool)
	QueryHost(hostname string) []string
	HostIPMap() map[string][]string
}

var _ peerQuery = (*announce.Engine)(nil)

// client is the per-connection state the control engine tracks between
// readable events: the socket, its reactor fd, and its partial-frame
// receive buffer.
type client struct {
	conn net.Conn
	fd   int
	buf  *txbuf.Buffer
}

// Engine is the control-protocol listener: it accepts loopback TCP clients
// and answers peer-map queries dispatched from their frames.
type Engine struct {
	reactor  reactor.Reactor
	peers    peerQuery
	port     int
	log      zerolog.Logger
	listener *net.TCPListener
	listenFd int
	clients  map[int]*client
	done     bool
}

// New constructs a control Engine. Open must be called before it can accept
// connections.
func New(r reactor.Reactor, peers peerQuery, port int, log zerolog.Logger) *Engine {
	return &Engine{
		reactor: r,
		peers:   peers,
		port:    port,
		log:     log.With().Str("component", "control").Logger(),
		clients: make(map[int]*client),
	}
}

// Open binds the control listener to loopback and registers it on the
// reactor. The listen backlog is left to the OS default; net.ListenTCP
// doesn't expose the reference implementation's fixed backlog of 5, and the
// control port is loopback-only so queue depth is never a real concern.
func (e *Engine) Open() error {
	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: e.port})
	if err != nil {
		return &lnserr.NetworkError{Operation: "bind control listener", Err: err}
	}
	fd, err := rawFd(ln)
	if err != nil {
		_ = ln.Close()
		return err
	}

	e.listener = ln
	e.listenFd = fd
	e.reactor.Bind(fd, []reactor.Event{reactor.Readable}, func(int) { e.onAcceptable() })
	return nil
}

// IsRunning reports whether the supervisor's poll loop should keep going:
// false once a client has sent Quit.
func (e *Engine) IsRunning() bool {
	return !e.done
}

// Close tears down every client connection, then the listener, unregistering
// each from the reactor as it goes.
func (e *Engine) Close() error {
	for fd, c := range e.clients {
		e.reactor.Unbind(fd)
		_ = c.conn.Close()
		delete(e.clients, fd)
	}
	if e.listener == nil {
		return nil
	}
	e.reactor.Unbind(e.listenFd)
	return e.listener.Close()
}

func (e *Engine) onAcceptable() {
	conn, err := e.listener.AcceptTCP()
	if err != nil {
		e.log.Debug().Err(err).Msg("accept failed")
		return
	}
	fd, err := rawFd(conn)
	if err != nil {
		e.log.Warn().Err(err).Msg("cannot obtain client fd, dropping connection")
		_ = conn.Close()
		return
	}

	c := &client{conn: conn, fd: fd, buf: txbuf.New()}
	e.clients[fd] = c
	e.reactor.Bind(fd, []reactor.Event{reactor.Readable}, func(int) { e.onReadable(c) })
}

func (e *Engine) onReadable(c *client) {
	tmp := make([]byte, recvBufSize)
	n, err := c.conn.Read(tmp)
	if n == 0 || err != nil {
		e.closeClient(c)
		return
	}

	c.buf.Write(tmp[:n])
	e.drainFrames(c)
}

func (e *Engine) closeClient(c *client) {
	e.reactor.Unbind(c.fd)
	_ = c.conn.Close()
	delete(e.clients, c.fd)
}

// drainFrames extracts and dispatches as many complete frames as the
// client's buffer currently holds, stopping as soon as the remainder is too
// short to contain the next one.
func (e *Engine) drainFrames(c *client) {
	for {
		txn := c.buf.Begin()
		header := txn.Read(HeaderLen)
		if len(header) < HeaderLen {
			txn.Abort()
			c.buf.Compact()
			return
		}
		length := FrameLen(header)
		body := txn.Read(length)
		if len(body) < length {
			txn.Abort()
			c.buf.Compact()
			return
		}
		txn.Commit()

		msg, err := DecodeBody(body)
		if err != nil {
			e.log.Debug().Err(err).Msg("dropping malformed control frame")
			continue
		}
		e.dispatch(c, msg)
	}
}

// dispatch answers a single parsed request. Requests with no valid reply
// (a malformed IP query, an unrecognized type already rejected by
// DecodeBody) are silently ignored rather than closing the connection.
func (e *Engine) dispatch(c *client, msg Message) {
	switch m := msg.(type) {
	case Name:
		if m.Hostname == nil {
			return
		}
		ips := e.peers.QueryHost(*m.Hostname)
		e.reply(c, IP{Addrs: ips})
	case IP:
		if len(m.Addrs) != 1 {
			return
		}
		name, ok := e.peers.QueryIP(m.Addrs[0])
		if !ok {
			e.reply(c, Name{Hostname: nil})
			return
		}
		e.reply(c, Name{Hostname: &name})
	case GetAll:
		e.reply(c, NameIPMapping{NameIPs: e.peers.HostIPMap()})
	case Quit:
		e.done = true
	}
}

func (e *Engine) reply(c *client, msg Message) {
	frame, err := Encode(msg)
	if err != nil {
		e.log.Error().Err(err).Msg("cannot encode control reply")
		return
	}
	if _, err := c.conn.Write(frame); err != nil {
		e.log.Debug().Err(err).Msg("control reply write failed")
	}
}

// fdHaver is satisfied by both *net.TCPListener and *net.TCPConn.
type fdHaver interface {
	SyscallConn() (syscall.RawConn, error)
}

// rawFd extracts the raw file descriptor behind a TCP listener or
// connection for reactor registration, mirroring the technique used by the
// announce engine's broadcast socket.
func rawFd(v fdHaver) (int, error) {
	raw, err := v.SyscallConn()
	if err != nil {
		return 0, &lnserr.NetworkError{Operation: "syscall conn", Err: err}
	}

	var fd int
	ctrlErr := raw.Control(func(sysfd uintptr) { fd = int(sysfd) })
	if ctrlErr != nil {
		return 0, &lnserr.NetworkError{Operation: "syscall conn control", Err: ctrlErr}
	}
	return fd, nil
}
