package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"
)

// closeGrace bounds how long Close waits for a job that is still executing.
const closeGrace = 250 * time.Millisecond

// Loop runs jobs one at a time on the goroutine of a goja_nodejs event loop.
// Every mutation of a window's document (component renders, timer callbacks)
// goes through it, so the tree is never touched by two goroutines at once.
// Jobs are plain Go functions; the loop's JS runtime is never handed out.
type Loop struct {
	logger *zap.Logger
	events *eventloop.EventLoop

	mu      sync.Mutex
	queued  int
	running bool
	halted  bool
	closed  bool
	idle    chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewLoop starts an event loop. Callers must Close it.
func NewLoop(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		logger: logger.Named("loop"),
		events: eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		done:   make(chan struct{}),
	}
	l.events.Start()
	return l
}

// Post queues job for execution. It reports false when the loop no longer
// accepts work because it was halted or closed.
func (l *Loop) Post(job func()) bool {
	l.mu.Lock()
	if l.halted || l.closed {
		l.mu.Unlock()
		return false
	}
	l.queued++
	l.mu.Unlock()

	ok := l.events.RunOnLoop(func(*goja.Runtime) {
		l.mu.Lock()
		if l.queued > 0 {
			l.queued--
		}
		l.mu.Unlock()
		l.exec(job)
	})
	if !ok {
		l.mu.Lock()
		if l.queued > 0 {
			l.queued--
		}
		l.mu.Unlock()
	}
	return ok
}

// Halt stops the loop from starting any further job and discards the queue.
// It waits for a job that is already executing to return, or for ctx to end.
func (l *Loop) Halt(ctx context.Context) error {
	l.mu.Lock()
	l.halted = true
	l.queued = 0
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	if l.idle == nil {
		l.idle = make(chan struct{})
	}
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("loop still busy after halt: %w", ctx.Err())
	}
}

// Halted reports whether Halt or Close has been called.
func (l *Loop) Halted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted || l.closed
}

// Busy reports whether a job is executing right now.
func (l *Loop) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Pending returns the number of queued jobs.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queued
}

// Close terminates the event loop along with its timers. A job still
// executing is given closeGrace to finish; Close returns regardless once
// that elapses.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.queued = 0
		l.mu.Unlock()

		go func() {
			l.events.Terminate()
			close(l.done)
		}()

		select {
		case <-l.done:
		case <-time.After(closeGrace):
			l.logger.Warn("Loop closed while a job was still running.")
		}
	})
}

// Done is closed once the event loop has terminated.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// exec runs one job on the loop goroutine unless the loop was halted in the
// meantime, containing any panic so the loop survives it.
func (l *Loop) exec(job func()) {
	l.mu.Lock()
	if l.halted || l.closed {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Recovered panic in loop job.", zap.Any("panic", r))
		}
		l.mu.Lock()
		l.running = false
		if l.idle != nil {
			close(l.idle)
			l.idle = nil
		}
		l.mu.Unlock()
	}()
	job()
}
