package announce

import (
	"net"

	"github.com/joshuafuller/lnsd/internal/lnserr"
)

// socket wraps the UDP broadcast endpoint the announce engine sends and
// receives on. It exposes the raw file descriptor for reactor registration
// while keeping net.UDPConn for the actual datagram I/O — the two don't
// conflict: the reactor only decides *when* to call ReadFromUDP/WriteTo,
// never reads or writes the fd itself.
type socket struct {
	conn *net.UDPConn
	fd   int
}

// openBroadcastSocket binds a UDP socket to 0.0.0.0:port with broadcast
// sends enabled.
//
// Binding to 0.0.0.0, not 255.255.255.255, per the REDESIGN FLAGS: the
// historical variant that bound to the broadcast address directly isn't a
// valid bind address on most network stacks.
func openBroadcastSocket(port int) (*socket, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, &lnserr.NetworkError{
			Operation: "bind announce socket",
			Err:       err,
		}
	}

	fd, err := enableBroadcast(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &socket{conn: conn, fd: fd}, nil
}

func (s *socket) Close() error {
	return s.conn.Close()
}

// sendBroadcast retries partial writes, mirroring sendto_all from the
// original: socket.sendto never need be called more than once for a
// datagram under 512 bytes, but the loop costs nothing and matches the
// reference behavior exactly.
func (s *socket) sendBroadcast(payload []byte, port int) error {
	dest := &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	for len(payload) > 0 {
		n, err := s.conn.WriteToUDP(payload, dest)
		if err != nil {
			return &lnserr.NetworkError{Operation: "sendto", Err: err}
		}
		payload = payload[n:]
	}
	return nil
}

// recv reads a single datagram, returning the sender's IPv4 text address.
func (s *socket) recv(buf []byte) (n int, senderIP string, err error) {
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, "", &lnserr.NetworkError{Operation: "recvfrom", Err: err}
	}
	return n, addr.IP.String(), nil
}
