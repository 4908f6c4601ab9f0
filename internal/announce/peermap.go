package announce

import "sync"

// peerMap is the bidirectional ip↔hostname relation owned by the engine.
// Every write happens under mu, and every read takes the same lock, so the
// invariants in the data model hold even for callers on other goroutines
// than the engine's own reactor thread (the SOCKS5 .lan resolver, and
// go-cache's janitor when it evicts a peer).
//
// Invariants enforced by every mutating method:
//   - an IP maps to at most one hostname at a time;
//   - a hostname may map to any number of IPs;
//   - every (ip, name) pair in ipToHost has ip present in hostToIPs[name];
//   - an emptied reverse set is pruned rather than left as an empty entry.
type peerMap struct {
	mu        sync.Mutex
	ipToHost  map[string]string
	hostToIPs map[string]map[string]struct{}
}

func newPeerMap() *peerMap {
	return &peerMap{
		ipToHost:  make(map[string]string),
		hostToIPs: make(map[string]map[string]struct{}),
	}
}

// set records that ip is now announcing hostname, removing any previous
// association for ip first. It takes mu itself; setLocked is the variant
// for callers that already hold it.
func (m *peerMap) set(ip, hostname string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(ip, hostname)
}

func (m *peerMap) setLocked(ip, hostname string) {
	if old, had := m.ipToHost[ip]; had {
		if old == hostname {
			return
		}
		m.removeIPFromHostLocked(old, ip)
	}
	m.ipToHost[ip] = hostname
	if m.hostToIPs[hostname] == nil {
		m.hostToIPs[hostname] = make(map[string]struct{})
	}
	m.hostToIPs[hostname][ip] = struct{}{}
}

// remove drops ip and its hostname association entirely, used on TTL
// eviction.
func (m *peerMap) remove(ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(ip)
}

func (m *peerMap) removeLocked(ip string) {
	name, had := m.ipToHost[ip]
	if !had {
		return
	}
	delete(m.ipToHost, ip)
	m.removeIPFromHostLocked(name, ip)
}

func (m *peerMap) removeIPFromHostLocked(name, ip string) {
	set, ok := m.hostToIPs[name]
	if !ok {
		return
	}
	delete(set, ip)
	if len(set) == 0 {
		delete(m.hostToIPs, name)
	}
}

// queryIP returns the hostname currently associated with ip, if any.
func (m *peerMap) queryIP(ip string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.ipToHost[ip]
	return name, ok
}

// queryHost returns a fresh slice of every IP currently announcing
// hostname. Order is unspecified.
func (m *peerMap) queryHost(hostname string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.hostToIPs[hostname]
	out := make([]string, 0, len(set))
	for ip := range set {
		out = append(out, ip)
	}
	return out
}

// snapshot returns a deep copy of the full hostname→IPs mapping, containing
// only hostnames with at least one IP.
func (m *peerMap) snapshot() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.hostToIPs))
	for name, set := range m.hostToIPs {
		if len(set) == 0 {
			continue
		}
		ips := make([]string, 0, len(set))
		for ip := range set {
			ips = append(ips, ip)
		}
		out[name] = ips
	}
	return out
}
