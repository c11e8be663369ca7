// Package loop runs every state transition of the client on a single goroutine.
//
// Transport callbacks, timers and user input never touch flow state directly:
// they post closures here, and the loop executes them one at a time in the
// order they arrived.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const defaultQueueSize = 64

var ErrStopped = errors.New("event loop is stopped")

// Timer is a fire-once countdown bound to the loop.
type Timer interface {
	// Stop prevents the callback from running. It reports false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

type Loop struct {
	clock clock.Clock
	tasks chan func()

	done     chan struct{}
	stopOnce sync.Once
}

func New(clk clock.Clock, queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Loop{
		clock: clk,
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
}

// Run - executes posted tasks until ctx is canceled.
func (that *Loop) Run(ctx context.Context) {
	defer that.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-that.tasks:
			task()
		}
	}
}

// Post queues task for execution on the loop goroutine. It reports false once the loop has stopped.
func (that *Loop) Post(task func()) bool {
	select {
	case <-that.done:
		return false
	default:
	}

	select {
	case <-that.done:
		return false
	case that.tasks <- task:
		return true
	}
}

// Call posts task and waits for it to finish. Must not be called from the loop goroutine.
func (that *Loop) Call(ctx context.Context, task func()) error {
	finished := make(chan struct{})

	if !that.Post(func() {
		defer close(finished)
		task()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-that.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc runs fn on the loop once d has elapsed on the loop's clock.
func (that *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &timer{}

	t.inner = that.clock.AfterFunc(d, func() {
		that.Post(func() {
			if t.stopped.Swap(true) {
				return
			}

			fn()
		})
	})

	return t
}

func (that *Loop) Done() <-chan struct{} {
	return that.done
}

func (that *Loop) stop() {
	that.stopOnce.Do(func() {
		close(that.done)
	})
}

type timer struct {
	inner   *clock.Timer
	stopped atomic.Bool
}

func (that *timer) Stop() bool {
	if that.stopped.Swap(true) {
		return false
	}

	that.inner.Stop()

	return true
}
