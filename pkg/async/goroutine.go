package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// run executes fn with a timeout, logging its error or panic instead of propagating it
func run(parentCtx context.Context, logger *logrus.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.WithFields(logrus.Fields{
				"task":  taskName,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("panic in background task")
		}
	}()

	if err := fn(ctx); err != nil && logger != nil {
		logger.WithError(err).WithField("task", taskName).Warn("background task failed")
	}
}

// Dispatcher runs fire-and-forget tasks with a bound on how many run at once.
// When every slot is busy new tasks are dropped rather than queued, so callers never block.
type Dispatcher struct {
	logger  *logrus.Logger
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher allowing maxInFlight concurrent tasks, each bounded by timeout
func NewDispatcher(logger *logrus.Logger, maxInFlight int, timeout time.Duration) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Dispatcher{
		logger:  logger,
		timeout: timeout,
		slots:   make(chan struct{}, maxInFlight),
	}
}

// Go starts fn unless the dispatcher is saturated or closed. It reports whether fn was
// started. Tasks are detached from ctx cancellation but keep its values.
func (d *Dispatcher) Go(ctx context.Context, taskName string, fn func(context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(taskName, "dispatcher closed, dropping task")
		return false
	}
	select {
	case d.slots <- struct{}{}:
	default:
		d.drop(taskName, "dispatcher saturated, dropping task")
		return false
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()
		run(context.WithoutCancel(ctx), d.logger, d.timeout, taskName, fn)
	}()
	return true
}

func (d *Dispatcher) drop(taskName, msg string) {
	n := d.dropped.Add(1)
	if d.logger != nil {
		d.logger.WithFields(logrus.Fields{"task": taskName, "dropped_total": n}).Warn(msg)
	}
}

// Dropped returns the number of tasks dropped because the dispatcher was saturated
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting tasks and waits up to timeout for running ones. It is safe to
// call while other goroutines are still calling Go.
func (d *Dispatcher) Close(timeout time.Duration) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Wait(timeout)
}

// Wait blocks until running tasks finish or timeout elapses. It must not race with Go;
// use Close when tasks may still be submitted.
func (d *Dispatcher) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("dispatcher wait timed out after %v", timeout)
	}
}
