package socks5

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeLookup struct {
	hostIPs map[string][]string
}

func (f fakeLookup) QueryHost(hostname string) []string {
	return f.hostIPs[hostname]
}

func TestResolveHost_RewritesKnownLanName(t *testing.T) {
	peers := fakeLookup{hostIPs: map[string][]string{"box": {"10.0.0.5"}}}
	assert.Equal(t, "10.0.0.5", resolveHost(peers, "box.lan"))
}

func TestResolveHost_PassesThroughUnknownLanName(t *testing.T) {
	peers := fakeLookup{hostIPs: map[string][]string{}}
	assert.Equal(t, "unknown.lan", resolveHost(peers, "unknown.lan"))
}

func TestResolveHost_PassesThroughNonLanName(t *testing.T) {
	peers := fakeLookup{hostIPs: map[string][]string{"box": {"10.0.0.5"}}}
	assert.Equal(t, "example.com", resolveHost(peers, "example.com"))
}
