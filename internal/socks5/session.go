package socks5

import (
	"context"
	"net"
	"strconv"

	"github.com/joshuafuller/lnsd/internal/reactor"
)

// relayChunkSize bounds a single relay read, matching the reference
// implementation's CHUNK constant.
const relayChunkSize = 1024 * 1024

// preSession handles the SOCKS5 greeting and request for one freshly
// accepted client, then hands it off to a CONNECT/BIND/ASSOCIATE session.
type preSession struct {
	mgr           *SessionManager
	conn          net.Conn
	fd            int
	authenticated bool
}

func (ps *preSession) onReadable() {
	if !ps.authenticated {
		ps.authenticate()
		return
	}
	ps.handleRequest()
}

func (ps *preSession) authenticate() {
	ok, err := readGreeting(ps.conn)
	if err != nil {
		ps.fail()
		return
	}
	if err := writeMethodSelection(ps.conn, ok); err != nil || !ok {
		ps.fail()
		return
	}
	ps.authenticated = true
}

func (ps *preSession) handleRequest() {
	req, err := readRequest(ps.conn)
	if err != nil {
		ps.fail()
		return
	}

	// Hand off the client fd to the session type without closing it.
	ps.mgr.reactor.Unbind(ps.fd)

	switch req.Command {
	case CmdConnect:
		newConnectSession(ps.mgr, ps.conn, ps.fd, req.Addr, req.Port)
	case CmdBind:
		newBindSession(ps.mgr, ps.conn, ps.fd)
	case CmdAssociate:
		newAssociateSession(ps.mgr, ps.conn, ps.fd)
	default:
		_ = writeReply(ps.conn, ReplyCmdNotSupported, nil)
		_ = ps.conn.Close()
	}
}

func (ps *preSession) fail() {
	ps.mgr.reactor.Unbind(ps.fd)
	_ = ps.conn.Close()
}

// relayLoop binds a and b's fds so data read from either is written to the
// other, tearing both down the moment one side hits EOF or an error —
// RFC 1928's "the proxy MUST close both connections" rule for relay errors.
func relayLoop(r reactor.Reactor, aFd, bFd int, a, b net.Conn) {
	teardown := func() {
		r.Unbind(aFd)
		r.Unbind(bFd)
		_ = a.Close()
		_ = b.Close()
	}

	pump := func(src, dst net.Conn) {
		buf := make([]byte, relayChunkSize)
		n, err := src.Read(buf)
		if n == 0 || err != nil {
			teardown()
			return
		}
		_, _ = dst.Write(buf[:n])
	}

	r.Bind(aFd, []reactor.Event{reactor.Readable}, func(int) { pump(a, b) })
	r.Bind(bFd, []reactor.Event{reactor.Readable}, func(int) { pump(b, a) })
}

// newConnectSession implements the CONNECT command: dial the destination
// (resolving ".lan" names against the peer map first) and relay.
func newConnectSession(mgr *SessionManager, client net.Conn, clientFd int, addr string, port uint16) {
	target, err := dialTarget(context.Background(), mgr.peers, addr, port)
	if err != nil {
		_ = writeReply(client, replyForError(err), nil)
		_ = client.Close()
		return
	}

	targetFd, err := rawFd(target.(fdHaver))
	if err != nil {
		_ = writeReply(client, ReplyGeneralFailure, nil)
		_ = client.Close()
		_ = target.Close()
		return
	}

	if err := writeReply(client, ReplySucceeded, target.LocalAddr()); err != nil {
		_ = client.Close()
		_ = target.Close()
		return
	}

	relayLoop(mgr.reactor, clientFd, targetFd, client, target)
}

// newBindSession implements the BIND command: listen on an ephemeral port,
// report it, accept exactly one connection, report its peer, then relay.
func newBindSession(mgr *SessionManager, client net.Conn, clientFd int) {
	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		_ = writeReply(client, ReplyGeneralFailure, nil)
		_ = client.Close()
		return
	}
	listenFd, err := rawFd(ln)
	if err != nil {
		_ = writeReply(client, ReplyGeneralFailure, nil)
		_ = client.Close()
		_ = ln.Close()
		return
	}

	if err := writeReply(client, ReplySucceeded, ln.Addr()); err != nil {
		_ = client.Close()
		_ = ln.Close()
		return
	}

	mgr.reactor.Bind(listenFd, []reactor.Event{reactor.Readable}, func(int) {
		peer, err := ln.AcceptTCP()
		mgr.reactor.Unbind(listenFd)
		_ = ln.Close()
		if err != nil {
			_ = client.Close()
			return
		}

		peerFd, err := rawFd(peer)
		if err != nil {
			_ = client.Close()
			_ = peer.Close()
			return
		}
		if err := writeReply(client, ReplySucceeded, peer.RemoteAddr()); err != nil {
			_ = client.Close()
			_ = peer.Close()
			return
		}

		relayLoop(mgr.reactor, clientFd, peerFd, client, peer)
	})
}

// newAssociateSession implements UDP ASSOCIATE: a single relay socket is
// opened for the lifetime of the association (per the REDESIGN FLAGS —
// not rebound per datagram), and the association ends the moment the
// control TCP connection closes.
func newAssociateSession(mgr *SessionManager, client net.Conn, clientFd int) {
	relay, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		_ = writeReply(client, ReplyGeneralFailure, nil)
		_ = client.Close()
		return
	}
	relayFd, err := rawFd(relay)
	if err != nil {
		_ = writeReply(client, ReplyGeneralFailure, nil)
		_ = client.Close()
		_ = relay.Close()
		return
	}

	if err := writeReply(client, ReplySucceeded, relay.LocalAddr()); err != nil {
		_ = client.Close()
		_ = relay.Close()
		return
	}

	sourceIP, _, _ := net.SplitHostPort(client.RemoteAddr().String())

	teardown := func() {
		mgr.reactor.Unbind(clientFd)
		mgr.reactor.Unbind(relayFd)
		_ = client.Close()
		_ = relay.Close()
	}

	// A UDP association terminates when its control connection closes —
	// any readable event on the client socket (data or EOF) ends it, since
	// the client is never expected to send anything over it.
	mgr.reactor.Bind(clientFd, []reactor.Event{reactor.Readable}, func(int) { teardown() })

	mgr.reactor.Bind(relayFd, []reactor.Event{reactor.Readable}, func(int) {
		handleRelayDatagram(mgr, relay, sourceIP)
	})
}

// handleRelayDatagram reads one UDP-ASSOCIATE-framed datagram and forwards
// its payload to its SOCKS5 destination from the association's relay socket.
func handleRelayDatagram(mgr *SessionManager, relay *net.UDPConn, sourceIP string) {
	buf := make([]byte, relayChunkSize)
	n, sender, err := relay.ReadFromUDP(buf)
	if err != nil {
		return
	}
	if sender.IP.String() != sourceIP {
		return
	}

	payload, addr, port, err := parseUDPRelayHeader(buf[:n])
	if err != nil {
		return
	}

	dest, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(resolveHost(mgr.peers, addr), strconv.Itoa(int(port))))
	if err != nil {
		return
	}
	_, _ = relay.WriteToUDP(payload, dest)
}
