package reactor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestReactor returns the platform-preferred backend, matching how every
// engine in this daemon constructs one.
func newTestReactor(t *testing.T) Reactor {
	t.Helper()
	r, err := New()
	require.NoError(t, err)
	return r
}

func TestReactor_ReadableFiresOnData(t *testing.T) {
	r := newTestReactor(t)

	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()
	defer wr.Close()

	fired := 0
	r.Bind(int(rd.Fd()), []Event{Readable}, func(int) { fired++ })

	_, err = wr.Write([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, r.Poll(1))
	require.Equal(t, 1, fired)
}

func TestReactor_UnbindStopsCallbacks(t *testing.T) {
	r := newTestReactor(t)

	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()
	defer wr.Close()

	fired := 0
	fd := int(rd.Fd())
	r.Bind(fd, []Event{Readable}, func(int) { fired++ })
	r.Unbind(fd)

	_, err = wr.Write([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, r.Poll(0))
	require.Equal(t, 0, fired)
}

func TestReactor_StepCallbackRunsOncePerPoll(t *testing.T) {
	r := newTestReactor(t)

	steps := 0
	r.AddStepCallback(func() { steps++ })

	require.NoError(t, r.Poll(0))
	require.Equal(t, 1, steps)

	require.NoError(t, r.Poll(0))
	require.Equal(t, 2, steps)
}

func TestReactor_StepCallbackRunsEvenWithNoFds(t *testing.T) {
	r := newTestReactor(t)

	steps := 0
	r.AddStepCallback(func() { steps++ })

	require.NoError(t, r.Poll(0))
	require.Equal(t, 1, steps)
	require.False(t, r.HasClients())
}

func TestReactor_ReadableAndWritableOnSeparateFdsEachFireOnce(t *testing.T) {
	r := newTestReactor(t)

	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()
	defer wr.Close()

	readFired, writeFired := 0, 0
	fd := int(rd.Fd())
	wfd := int(wr.Fd())
	r.Bind(fd, []Event{Readable}, func(int) { readFired++ })
	r.Bind(wfd, []Event{Writable}, func(int) { writeFired++ })

	_, err = wr.Write([]byte("y"))
	require.NoError(t, err)

	require.NoError(t, r.Poll(1))
	require.Equal(t, 1, readFired)
	require.Equal(t, 1, writeFired)
}

func TestReactor_PollZeroReturnsImmediately(t *testing.T) {
	r := newTestReactor(t)
	require.NoError(t, r.Poll(0))
}

func TestReactor_HasClientsReflectsBindings(t *testing.T) {
	r := newTestReactor(t)
	require.False(t, r.HasClients())

	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()
	defer wr.Close()

	fd := int(rd.Fd())
	r.Bind(fd, []Event{Readable}, func(int) {})
	require.True(t, r.HasClients())

	r.Unbind(fd)
	require.False(t, r.HasClients())
}
