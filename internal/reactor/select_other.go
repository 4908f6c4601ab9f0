//go:build !linux && !unix

package reactor

import (
	"time"

	"golang.org/x/sys/windows"

	"github.com/joshuafuller/lnsd/internal/lnserr"
)

// selectReactor is the reactor of last resort, used on platforms lacking
// epoll or poll. It keeps three independent fd→callback maps (one per
// event) rather than a combined interest set, mirroring select(2)'s own
// three fd_sets.
type selectReactor struct {
	readers map[int]Callback
	writers map[int]Callback
	errors  map[int]Callback
	steps   []StepCallback
}

// New returns the Reactor backend preferred for the running platform.
func New() (Reactor, error) {
	return &selectReactor{
		readers: make(map[int]Callback),
		writers: make(map[int]Callback),
		errors:  make(map[int]Callback),
	}, nil
}

func (r *selectReactor) Bind(fd int, events []Event, cb Callback) {
	for _, e := range events {
		switch e {
		case Readable:
			r.readers[fd] = cb
		case Writable:
			r.writers[fd] = cb
		case Err:
			r.errors[fd] = cb
		}
	}
}

func (r *selectReactor) Unbind(fd int, events ...Event) {
	if len(events) == 0 {
		delete(r.readers, fd)
		delete(r.writers, fd)
		delete(r.errors, fd)
		return
	}
	for _, e := range events {
		switch e {
		case Readable:
			delete(r.readers, fd)
		case Writable:
			delete(r.writers, fd)
		case Err:
			delete(r.errors, fd)
		}
	}
}

func (r *selectReactor) AddStepCallback(cb StepCallback) {
	r.steps = append(r.steps, cb)
}

func (r *selectReactor) HasClients() bool {
	return len(r.readers) > 0 || len(r.writers) > 0 || len(r.errors) > 0
}

// Poll special-cases the empty-fd-set condition: calling select() with no
// descriptors at all makes some platforms reject the call outright, so an
// idle reactor just sleeps out the timeout and runs its step callbacks,
// exactly as the reactor this module reimplements does.
func (r *selectReactor) Poll(timeoutSeconds float64) error {
	if !r.HasClients() {
		if timeoutSeconds < 0 {
			r.runSteps()
			return nil
		}
		time.Sleep(time.Duration(timeoutSeconds * float64(time.Second)))
		r.runSteps()
		return nil
	}

	var rset, wset, eset windows.FdSet
	maxFd := 0
	for fd := range r.readers {
		addFd(&rset, fd)
		if fd > maxFd {
			maxFd = fd
		}
	}
	for fd := range r.writers {
		addFd(&wset, fd)
		if fd > maxFd {
			maxFd = fd
		}
	}
	for fd := range r.errors {
		addFd(&eset, fd)
		if fd > maxFd {
			maxFd = fd
		}
	}

	var tv *windows.Timeval
	if timeoutSeconds >= 0 {
		tv = &windows.Timeval{
			Sec:  int32(timeoutSeconds),
			Usec: int32((timeoutSeconds - float64(int64(timeoutSeconds))) * 1e6),
		}
	}

	_, err := windows.Select(maxFd+1, &rset, &wset, &eset, tv)
	if err != nil {
		return &lnserr.NetworkError{Operation: "select", Err: err}
	}

	for fd, cb := range r.readers {
		if fdSet(&rset, fd) {
			callOrNoop(cb, fd)
		}
	}
	for fd, cb := range r.writers {
		if fdSet(&wset, fd) {
			callOrNoop(cb, fd)
		}
	}
	for fd, cb := range r.errors {
		if fdSet(&eset, fd) {
			callOrNoop(cb, fd)
		}
	}

	r.runSteps()
	return nil
}

func (r *selectReactor) runSteps() {
	for _, step := range r.steps {
		step()
	}
}

func callOrNoop(cb Callback, fd int) {
	if cb == nil {
		noopCallback(fd)
		return
	}
	cb(fd)
}

func addFd(set *windows.FdSet, fd int) {
	set.Count++
	set.Array[set.Count-1] = uintptr(fd)
}

func fdSet(set *windows.FdSet, fd int) bool {
	for i := uint32(0); i < set.Count; i++ {
		if int(set.Array[i]) == fd {
			return true
		}
	}
	return false
}
