//go:build !linux && unix

package reactor

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/joshuafuller/lnsd/internal/lnserr"
)

func sleep(msec int) {
	time.Sleep(time.Duration(msec) * time.Millisecond)
}

// pollReactor backs the Reactor interface on POSIX platforms without epoll
// (the BSDs, macOS) using unix.Poll. Unlike epoll, poll(2) takes the full fd
// list on every call, so Bind/Unbind just maintain that list instead of
// talking to a kernel-side interest set incrementally.
type pollReactor struct {
	callbacks map[fdEvent]Callback
	interest  map[int]eventSet
	steps     []StepCallback
}

type fdEvent struct {
	fd    int
	event Event
}

// New returns the Reactor backend preferred for the running platform.
func New() (Reactor, error) {
	return &pollReactor{
		callbacks: make(map[fdEvent]Callback),
		interest:  make(map[int]eventSet),
	}, nil
}

func (r *pollReactor) Bind(fd int, events []Event, cb Callback) {
	var want eventSet
	for _, e := range events {
		want |= eventBit(e)
	}
	r.interest[fd] |= want
	for _, e := range events {
		r.callbacks[fdEvent{fd, e}] = cb
	}
}

func (r *pollReactor) Unbind(fd int, events ...Event) {
	drop := toEventSet(events)
	existing, had := r.interest[fd]
	if !had {
		return
	}
	remaining := existing &^ drop
	if remaining == 0 {
		delete(r.interest, fd)
	} else {
		r.interest[fd] = remaining
	}
	for _, e := range setEvents(drop & existing) {
		delete(r.callbacks, fdEvent{fd, e})
	}
}

func (r *pollReactor) AddStepCallback(cb StepCallback) {
	r.steps = append(r.steps, cb)
}

func (r *pollReactor) HasClients() bool {
	return len(r.interest) > 0
}

func (r *pollReactor) Poll(timeoutSeconds float64) error {
	msec := toMillis(timeoutSeconds)

	fds := make([]unix.PollFd, 0, len(r.interest))
	order := make([]int, 0, len(r.interest))
	for fd, s := range r.interest {
		var ev int16
		if s&setReadable != 0 {
			ev |= unix.POLLIN
		}
		if s&setWritable != 0 {
			ev |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: ev})
		order = append(order, fd)
	}

	if len(fds) == 0 {
		if msec < 0 {
			r.runSteps()
			return nil
		}
		sleep(msec)
		r.runSteps()
		return nil
	}

	_, err := unix.Poll(fds, msec)
	if err != nil && err != unix.EINTR {
		return &lnserr.NetworkError{Operation: "poll", Err: err}
	}

	for i, pfd := range fds {
		fd := order[i]
		if pfd.Revents&unix.POLLIN != 0 {
			r.dispatch(fd, Readable)
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			r.dispatch(fd, Writable)
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			r.dispatch(fd, Err)
		}
	}

	r.runSteps()
	return nil
}

func (r *pollReactor) runSteps() {
	for _, step := range r.steps {
		step()
	}
}

func (r *pollReactor) dispatch(fd int, e Event) {
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
	return int(timeoutSeconds * 1000)
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
