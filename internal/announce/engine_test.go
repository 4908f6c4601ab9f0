package announce

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/lnsd/internal/reactor"
	"github.com/joshuafuller/lnsd/internal/txbuf"
)

func TestEngine_DrainFramesObservesValidAnnounce(t *testing.T) {
	e := New(nil, "self", 0, zerolog.Nop())

	frame, err := Encode(Announce{Hostname: "peer1"})
	require.NoError(t, err)

	buf := txbuf.New()
	buf.Write(frame)
	e.drainFrames("10.0.0.2", buf)

	name, ok := e.QueryIP("10.0.0.2")
	require.True(t, ok)
	assert.Equal(t, "peer1", name)
}

func TestEngine_DrainFramesSkipsCorruptFrameButKeepsDraining(t *testing.T) {
	e := New(nil, "self", 0, zerolog.Nop())

	corrupt := make([]byte, FrameSize)
	corrupt[0] = 0x02 // wrong header
	valid, err := Encode(Announce{Hostname: "peer2"})
	require.NoError(t, err)

	buf := txbuf.New()
	buf.Write(corrupt)
	buf.Write(valid)
	e.drainFrames("10.0.0.3", buf)

	name, ok := e.QueryIP("10.0.0.3")
	require.True(t, ok)
	assert.Equal(t, "peer2", name)
}

func TestEngine_DrainFramesLeavesTruncatedTailForNextRead(t *testing.T) {
	e := New(nil, "self", 0, zerolog.Nop())

	frame, err := Encode(Announce{Hostname: "peer3"})
	require.NoError(t, err)

	buf := txbuf.New()
	buf.Write(frame[:FrameSize-10])
	e.drainFrames("10.0.0.4", buf)

	_, ok := e.QueryIP("10.0.0.4")
	assert.False(t, ok, "a truncated frame must not be observed yet")
	assert.Equal(t, FrameSize-10, buf.Len(), "the short tail must remain buffered")

	buf.Write(frame[FrameSize-10:])
	e.drainFrames("10.0.0.4", buf)

	name, ok := e.QueryIP("10.0.0.4")
	require.True(t, ok)
	assert.Equal(t, "peer3", name)
}

func TestEngine_RenameMovesIPBetweenHosts(t *testing.T) {
	e := New(nil, "self", 0, zerolog.Nop())

	e.observe("10.0.0.5", "beta")
	assert.Equal(t, []string{"10.0.0.5"}, e.QueryHost("beta"))

	e.observe("10.0.0.5", "gamma")
	assert.Empty(t, e.QueryHost("beta"))
	assert.Equal(t, []string{"10.0.0.5"}, e.QueryHost("gamma"))
	name, _ := e.QueryIP("10.0.0.5")
	assert.Equal(t, "gamma", name)
}

func TestEngine_SharedHostnameAcrossTwoIPs(t *testing.T) {
	e := New(nil, "self", 0, zerolog.Nop())

	e.observe("10.0.0.6", "shared")
	e.observe("10.0.0.7", "shared")

	assert.ElementsMatch(t, []string{"10.0.0.6", "10.0.0.7"}, e.QueryHost("shared"))
}

func TestEngine_TTLEvictionRemovesExpiredPeer(t *testing.T) {
	e := New(nil, "self", 0, zerolog.Nop(), WithTTL(40*time.Millisecond))

	e.observe("10.0.0.8", "ephemeral")
	_, ok := e.QueryIP("10.0.0.8")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, stillThere := e.QueryIP("10.0.0.8")
		return !stillThere
	}, 2*time.Second, 10*time.Millisecond, "peer was never TTL-evicted")

	assert.Empty(t, e.QueryHost("ephemeral"))
}

func TestEngine_HeartbeatThrottleSuppressesRapidReannounce(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	e := New(r, "self", 0, zerolog.Nop(), WithAlarm(200*time.Millisecond))
	require.NoError(t, e.Open())
	t.Cleanup(func() { _ = e.Close() })

	first := e.lastAnnounce
	require.False(t, first.IsZero(), "Open should perform an immediate first announce")

	e.onAnnounceTimeout()
	assert.Equal(t, first, e.lastAnnounce, "a second tick inside the alarm window must not re-announce")

	remaining := e.GetTimeUntilNextAnnounce()
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 200*time.Millisecond)
}

func TestEngine_GetTimeUntilNextAnnounceZeroBeforeFirstAnnounce(t *testing.T) {
	e := New(nil, "self", 0, zerolog.Nop())
	assert.Equal(t, time.Duration(0), e.GetTimeUntilNextAnnounce())
}

func TestEngine_HostIPMapOmitsHostsWithNoIPs(t *testing.T) {
	e := New(nil, "self", 0, zerolog.Nop())
	e.observe("10.0.0.9", "alpha")
	e.observe("10.0.0.9", "beta") // alpha's set becomes empty and is pruned

	m := e.HostIPMap()
	_, hasAlpha := m["alpha"]
	assert.False(t, hasAlpha)
	assert.Equal(t, []string{"10.0.0.9"}, m["beta"])
}
