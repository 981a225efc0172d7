package eventloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"legate/internal/logging"
)

// Mask describes the readiness conditions delivered to a source callback.
type Mask uint32

const (
	// Readable means the descriptor has data to read.
	Readable Mask = 1 << iota
	// Hangup means the peer closed its end.
	Hangup
	// Error means the descriptor is in an error state.
	Error
)

// FDHandler is invoked with the readiness mask of its source.
type FDHandler func(mask Mask)

// Source is a registered file-descriptor watch. Remove deregisters it;
// the loop never closes the descriptor itself.
type Source struct {
	loop    *Loop
	fd      int
	events  Mask
	handler FDHandler
	removed bool
}

// Remove deregisters the source from its loop.
func (s *Source) Remove() {
	s.loop.mu.Lock()
	defer s.loop.mu.Unlock()
	s.removed = true
}

func (s *Source) isRemoved() bool {
	s.loop.mu.Lock()
	defer s.loop.mu.Unlock()
	return s.removed
}

// Loop is a poll-based dispatcher with a one-shot idle task queue.
type Loop struct {
	logger *slog.Logger

	mu      sync.Mutex
	sources []*Source
	idle    []func()

	wakeRead  int
	wakeWrite int
}

// New creates a loop with its wakeup pipe already armed.
func New(logger *slog.Logger) (*Loop, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("create wakeup pipe: %w", err)
	}
	return &Loop{
		logger:    logging.NewComponentLogger(logger, "eventloop"),
		wakeRead:  pipe[0],
		wakeWrite: pipe[1],
	}, nil
}

// Close releases the wakeup pipe. Registered sources are not closed.
func (l *Loop) Close() error {
	err := unix.Close(l.wakeRead)
	if cerr := unix.Close(l.wakeWrite); err == nil {
		err = cerr
	}
	return err
}

// AddFD registers fd for the given readiness conditions. Hangup and Error
// are always reported regardless of the requested mask.
func (l *Loop) AddFD(fd int, events Mask, handler FDHandler) (*Source, error) {
	if handler == nil {
		return nil, fmt.Errorf("add fd %d: nil handler", fd)
	}
	src := &Source{loop: l, fd: fd, events: events, handler: handler}
	l.mu.Lock()
	l.sources = append(l.sources, src)
	l.mu.Unlock()
	return src, nil
}

// AddIdle queues fn to run exactly once, before the next poll.
func (l *Loop) AddIdle(fn func()) {
	l.mu.Lock()
	l.idle = append(l.idle, fn)
	l.mu.Unlock()
}

// Wake interrupts a blocking Dispatch. Safe from any goroutine. A full
// pipe is fine: it already guarantees a pending wakeup.
func (l *Loop) Wake() {
	_, _ = unix.Write(l.wakeWrite, []byte{0})
}

// Dispatch flushes the idle queue, polls once, and invokes the callbacks
// of every ready source. A negative timeout blocks until activity.
func (l *Loop) Dispatch(timeout time.Duration) error {
	l.flushIdle()

	l.mu.Lock()
	live := make([]*Source, 0, len(l.sources))
	for _, src := range l.sources {
		if !src.removed {
			live = append(live, src)
		}
	}
	l.sources = live
	fds := make([]unix.PollFd, 0, len(live)+1)
	fds = append(fds, unix.PollFd{Fd: int32(l.wakeRead), Events: unix.POLLIN})
	for _, src := range live {
		var events int16
		if src.events&Readable != 0 {
			events |= unix.POLLIN
		}
		fds = append(fds, unix.PollFd{Fd: int32(src.fd), Events: events})
	}
	l.mu.Unlock()

	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	for {
		if _, err := unix.Poll(fds, ms); err == unix.EINTR {
			continue
		} else if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		break
	}

	if fds[0].Revents&unix.POLLIN != 0 {
		l.drainWakeups()
	}
	for i, src := range live {
		revents := fds[i+1].Revents
		if revents == 0 || src.isRemoved() {
			continue
		}
		var mask Mask
		if revents&unix.POLLIN != 0 {
			mask |= Readable
		}
		if revents&unix.POLLHUP != 0 {
			mask |= Hangup
		}
		if revents&unix.POLLERR != 0 {
			mask |= Error
		}
		if mask != 0 {
			src.handler(mask)
		}
	}
	return nil
}

// Run dispatches until ctx is done. Cancellation wakes a blocking poll.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, l.Wake)
	defer stop()
	for {
		if err := ctx.Err(); err != nil {
			l.logger.Debug("event loop stopping", logging.Error(err))
			return err
		}
		if err := l.Dispatch(-1); err != nil {
			return err
		}
	}
}

func (l *Loop) flushIdle() {
	l.mu.Lock()
	tasks := l.idle
	l.idle = nil
	l.mu.Unlock()
	for _, fn := range tasks {
		fn()
	}
}

func (l *Loop) drainWakeups() {
	var buf [64]byte
	for {
		n, err := unix.Read(l.wakeRead, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
