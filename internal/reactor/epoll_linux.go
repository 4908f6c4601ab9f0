//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/joshuafuller/lnsd/internal/lnserr"
)

// epollReactor is the preferred backend on Linux: level-triggered epoll via
// golang.org/x/sys/unix, registered once per fd and kept in sync with
// EPOLL_CTL_MOD/DEL as interest changes.
type epollReactor struct {
	epfd      int
	callbacks map[fdEvent]Callback
	interest  map[int]eventSet
	steps     []StepCallback
}

type fdEvent struct {
	fd    int
	event Event
}

// New returns the Reactor backend preferred for the running platform. On
// Linux this is always the epoll backend.
func New() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, &lnserr.NetworkError{Operation: "epoll_create1", Err: err}
	}
	return &epollReactor{
		epfd:      epfd,
		callbacks: make(map[fdEvent]Callback),
		interest:  make(map[int]eventSet),
	}, nil
}

func (r *epollReactor) epollFlags(s eventSet) uint32 {
	var flags uint32
	if s&setReadable != 0 {
		flags |= unix.EPOLLIN
	}
	if s&setWritable != 0 {
		flags |= unix.EPOLLOUT
	}
	// EPOLLERR and EPOLLHUP are always reported by the kernel regardless of
	// the requested event mask, so ERR needs no bit of its own here.
	return flags
}

func (r *epollReactor) Bind(fd int, events []Event, cb Callback) {
	want := toEventSetExplicit(events)

	existing, had := r.interest[fd]
	merged := existing | want

	if !had {
		r.interest[fd] = merged
		ev := &unix.EpollEvent{Events: r.epollFlags(merged), Fd: int32(fd)}
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev)
	} else if merged != existing {
		r.interest[fd] = merged
		ev := &unix.EpollEvent{Events: r.epollFlags(merged), Fd: int32(fd)}
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, ev)
	}

	for _, e := range setEvents(want) {
		r.callbacks[fdEvent{fd, e}] = cb
	}
}

func (r *epollReactor) Unbind(fd int, events ...Event) {
	drop := toEventSet(events)
	existing, had := r.interest[fd]
	if !had {
		return
	}

	remaining := existing &^ drop
	if remaining == 0 {
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(r.interest, fd)
	} else {
		r.interest[fd] = remaining
		ev := &unix.EpollEvent{Events: r.epollFlags(remaining), Fd: int32(fd)}
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, ev)
	}

	for _, e := range setEvents(drop & existing) {
		delete(r.callbacks, fdEvent{fd, e})
	}
}

func (r *epollReactor) AddStepCallback(cb StepCallback) {
	r.steps = append(r.steps, cb)
}

func (r *epollReactor) HasClients() bool {
	return len(r.interest) > 0
}

func (r *epollReactor) Poll(timeoutSeconds float64) error {
	msec := toMillis(timeoutSeconds)

	events := make([]unix.EpollEvent, 64)
	n, err := unix.EpollWait(r.epfd, events, msec)
	if err != nil {
		if err == unix.EINTR {
			n = 0
		} else {
			return &lnserr.NetworkError{Operation: "epoll_wait", Err: err}
		}
	}

	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		flags := events[i].Events

		if flags&unix.EPOLLIN != 0 {
			r.dispatch(fd, Readable)
		}
		if flags&unix.EPOLLOUT != 0 {
			r.dispatch(fd, Writable)
		}
		if flags&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			r.dispatch(fd, Err)
		}
	}

	for _, step := range r.steps {
		step()
	}
	return nil
}

func (r *epollReactor) dispatch(fd int, e Event) {
	cb, ok := r.callbacks[fdEvent{fd, e}]
	if !ok || cb == nil {
		noopCallback(fd)
		return
	}
	cb(fd)
}

func toMillis(timeoutSeconds float64) int {
	if timeoutSeconds < 0 {
		return -1
	}
	return int(timeoutSeconds * float64(time.Second/time.Millisecond))
}

// toEventSetExplicit is like toEventSet but never substitutes "all events"
// for an empty slice — Bind with an empty event list is a caller mistake,
// not a request to watch everything.
func toEventSetExplicit(events []Event) eventSet {
	var s eventSet
	for _, e := range events {
		s |= eventBit(e)
	}
	return s
}

func setEvents(s eventSet) []Event {
	var out []Event
	if s&setReadable != 0 {
		out = append(out, Readable)
	}
	if s&setWritable != 0 {
		out = append(out, Writable)
	}
	if s&setErr != 0 {
		out = append(out, Err)
	}
	return out
}
