package socks5

import (
	"context"
	"net"
	"strconv"
	"strings"
)

// lanSuffix is the pseudo-TLD this proxy resolves against the announce
// engine's peer map instead of the system resolver.
const lanSuffix = ".lan"

// peerLookup is the slice of the announce engine the resolver needs.
type peerLookup interface {
	QueryHost(hostname string) []string
}

// resolveHost turns a SOCKS5 destination address into something
// net.Dial/net.Listen can use: a ".lan" name is looked up against the peer
// map and replaced by its first known IP, falling back to the address
// unchanged (and ultimately the system resolver) when there's no match.
func resolveHost(peers peerLookup, host string) string {
	name, ok := strings.CutSuffix(host, lanSuffix)
	if !ok {
		return host
	}
	ips := peers.QueryHost(name)
	if len(ips) == 0 {
		return host
	}
	return ips[0]
}

// dialTarget resolves host (applying the .lan hook) and dials it over TCP.
func dialTarget(ctx context.Context, peers peerLookup, host string, port uint16) (net.Conn, error) {
	var d net.Dialer
	real := resolveHost(peers, host)
	return d.DialContext(ctx, "tcp", net.JoinHostPort(real, strconv.Itoa(int(port))))
}
