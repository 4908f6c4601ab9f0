package announce

import (
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/joshuafuller/lnsd/internal/reactor"
	"github.com/joshuafuller/lnsd/internal/txbuf"
)

const (
	// Alarm is how often the engine re-broadcasts its own Announce frame.
	Alarm = 10 * time.Second
	// TTL is how long a peer can go without announcing before it's evicted.
	TTL = 30 * time.Second
)

// Engine is the announce-protocol state machine: it owns the UDP broadcast
// socket, the bidirectional peer map, and the heartbeat/TTL step callback
// registered on the reactor.
type Engine struct {
	reactor  reactor.Reactor
	sock     *socket
	port     int
	hostname string
	log      zerolog.Logger

	peers *peerMap

	buffersMu sync.Mutex
	buffers   map[string]*txbuf.Buffer

	// lastAnnounce is guarded implicitly by the reactor's single-threaded
	// dispatch: only the step callback and Open touch it, and both run on
	// the reactor goroutine.
	lastAnnounce time.Time

	// peerSeen tracks the last-announce timestamp per peer with a TTL
	// equal to the eviction window. Its OnEvicted hook prunes the peer
	// map and receive buffer. The heartbeat step callback sweeps expired
	// entries on every tick; go-cache's janitor also sweeps them in the
	// background.
	peerSeen *cache.Cache

	alarm time.Duration
	ttl   time.Duration
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

// WithAlarm overrides the heartbeat interval, restoring the original CLI's
// `-a`/`--heartbeat` override (dropped from the distilled wire spec, which
// fixes ANNOUNCE_ALARM at 10s).
func WithAlarm(d time.Duration) Option {
	return func(e *Engine) { e.alarm = d }
}

// WithTTL overrides the peer eviction window, restoring the original CLI's
// `-t`/`--ttl` override.
func WithTTL(d time.Duration) Option {
	return func(e *Engine) { e.ttl = d }
}

// New constructs an Engine bound to the given reactor. Open must be called
// before the engine does any network I/O.
func New(r reactor.Reactor, hostname string, port int, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		reactor:  r,
		port:     port,
		hostname: hostname,
		log:      log.With().Str("component", "announce").Logger(),
		peers:    newPeerMap(),
		buffers:  make(map[string]*txbuf.Buffer),
		alarm:    Alarm,
		ttl:      TTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.peerSeen = cache.New(e.ttl, e.ttl/2)
	e.peerSeen.OnEvicted(e.onPeerExpired)
	return e
}

// Open binds the broadcast socket, registers it for READABLE on the
// reactor, installs the heartbeat step callback, and sends an immediate
// first Announce so the daemon appears on the network without delay.
func (e *Engine) Open() error {
	sock, err := openBroadcastSocket(e.port)
	if err != nil {
		return err
	}
	e.sock = sock

	e.reactor.Bind(sock.fd, []reactor.Event{reactor.Readable}, func(int) { e.onReadable() })
	e.reactor.AddStepCallback(e.onAnnounceTimeout)

	e.onAnnounceTimeout()
	return nil
}

// Close releases the broadcast socket.
func (e *Engine) Close() error {
	if e.sock == nil {
		return nil
	}
	e.reactor.Unbind(e.sock.fd)
	return e.sock.Close()
}

// onAnnounceTimeout is the heartbeat step callback: it (re-)broadcasts this
// host's own Announce frame, throttled to at most once per Alarm interval
// so the engine's own broadcasts — which it also receives — can never
// amplify into a storm, and it evicts every peer whose TTL has lapsed.
func (e *Engine) onAnnounceTimeout() {
	now := time.Now()
	if e.lastAnnounce.IsZero() || now.Sub(e.lastAnnounce) >= e.alarm {
		frame, err := Encode(Announce{Hostname: e.hostname})
		if err != nil {
			e.log.Error().Err(err).Msg("cannot encode own hostname")
		} else if err := e.sock.sendBroadcast(frame, e.port); err != nil {
			// Transient network-down errors are swallowed so the loop
			// keeps retrying on the next tick; the socket stays open.
			e.log.Warn().Err(err).Msg("broadcast send failed, will retry")
		}
		e.lastAnnounce = now
	}
	e.peerSeen.DeleteExpired()
}

// GetTimeUntilNextAnnounce returns how long the supervisor should pass as
// the reactor's poll timeout so the loop wakes exactly in time for the next
// heartbeat.
func (e *Engine) GetTimeUntilNextAnnounce() time.Duration {
	if e.lastAnnounce.IsZero() {
		return 0
	}
	remaining := e.alarm - time.Since(e.lastAnnounce)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// onReadable drains exactly one datagram from the broadcast socket and
// hands it to the sender's per-peer buffer for frame extraction.
func (e *Engine) onReadable() {
	buf := make([]byte, FrameSize)
	n, senderIP, err := e.sock.recv(buf)
	if err != nil {
		e.log.Debug().Err(err).Msg("recvfrom failed")
		return
	}

	peerBuf := e.bufferFor(senderIP)
	peerBuf.Write(buf[:n])
	e.drainFrames(senderIP, peerBuf)
}

// bufferFor returns (creating if necessary) the receive buffer for a peer.
func (e *Engine) bufferFor(ip string) *txbuf.Buffer {
	e.buffersMu.Lock()
	defer e.buffersMu.Unlock()
	b, ok := e.buffers[ip]
	if !ok {
		b = txbuf.New()
		e.buffers[ip] = b
	}
	return b
}

// drainFrames extracts as many complete 512-byte frames as are currently
// buffered for ip, tolerant of the buffer holding a truncated tail frame
// (left for the next datagram to complete).
func (e *Engine) drainFrames(ip string, buf *txbuf.Buffer) {
	for {
		txn := buf.Begin()
		frame := txn.Read(FrameSize)
		if len(frame) < FrameSize {
			txn.Abort()
			buf.Compact()
			return
		}
		txn.Commit()

		a, err := Decode(frame)
		if err != nil {
			// A corrupt frame (or data from some other protocol sharing
			// the port) is silently dropped; the loop continues.
			continue
		}
		e.observe(ip, a.Hostname)
	}
}

// observe records that ip is alive and currently announcing hostname.
func (e *Engine) observe(ip, hostname string) {
	e.peers.set(ip, hostname)
	e.peerSeen.SetDefault(ip, time.Now())
}

// onPeerExpired is go-cache's eviction hook, invoked from the heartbeat
// step callback's sweep or from go-cache's background janitor goroutine.
// It prunes every structure the spec says must forget a
// peer once its TTL lapses.
func (e *Engine) onPeerExpired(ip string, _ interface{}) {
	e.peers.remove(ip)

	e.buffersMu.Lock()
	delete(e.buffers, ip)
	e.buffersMu.Unlock()

	e.log.Debug().Str("peer", ip).Msg("peer TTL expired")
}

// QueryIP returns the hostname currently associated with ip, if any.
func (e *Engine) QueryIP(ip string) (string, bool) {
	return e.peers.queryIP(ip)
}

// QueryHost returns every IP currently announcing hostname. The result is
// always a (possibly empty) slice, never nil.
func (e *Engine) QueryHost(hostname string) []string {
	ips := e.peers.queryHost(hostname)
	if ips == nil {
		return []string{}
	}
	return ips
}

// HostIPMap returns the full hostname→IPs mapping, omitting hostnames with
// no live IPs.
func (e *Engine) HostIPMap() map[string][]string {
	return e.peers.snapshot()
}
