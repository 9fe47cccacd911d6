// SPDX-License-Identifier: MIT
//
// Package control runs every non-realtime mutation on one goroutine. Timers,
// gestures and analysis ticks post closures onto a Loop; the Loop executes
// them in order, so schedulers and bus automation never see a second writer.
package control

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"handbeat/internal/log"
)

var (
	// ErrClosed is returned once the loop has been closed.
	ErrClosed = errors.New("control: loop closed")
	// ErrRunning is returned when Run is entered twice.
	ErrRunning = errors.New("control: loop already running")
)

// DefaultQueue is the command buffer length used when New is given zero.
const DefaultQueue = 256

var logger = log.For("Control")

// Executor is what the engine needs from a control thread: a way to post
// work onto it and to arm repeating work on it.
type Executor interface {
	Post(fn func()) bool
	Every(interval time.Duration, fn func()) *Task
}

// Loop is a single-goroutine command queue.
type Loop struct {
	cmds      chan func()
	doneChan  chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	running   atomic.Bool
	dropped   atomic.Uint64

	mu    sync.Mutex
	tasks map[*Task]struct{}
}

// New returns a loop with a command buffer of queue entries.
func New(queue int) *Loop {
	if queue <= 0 {
		queue = DefaultQueue
	}
	return &Loop{
		cmds:     make(chan func(), queue),
		doneChan: make(chan struct{}),
		tasks:    make(map[*Task]struct{}),
	}
}

// Run executes posted commands until ctx is done or Close is called. It
// returns ctx.Err() on cancellation and nil on Close.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)
	logger.Debugf("loop started (queue %d)", cap(l.cmds))
	for {
		select {
		case fn := <-l.cmds:
			fn()
		case <-ctx.Done():
			logger.Debugf("loop stopped: %v", ctx.Err())
			return ctx.Err()
		case <-l.doneChan:
			logger.Debugf("loop closed")
			return nil
		}
	}
}

// Post queues fn without blocking. It returns false when the loop is closed
// or the queue is full; a full queue means the loop is stalled and the
// command is dropped.
func (l *Loop) Post(fn func()) bool {
	if fn == nil || l.closed.Load() {
		return false
	}
	select {
	case l.cmds <- fn:
		return true
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Warnf("command queue full, %d commands dropped", n)
		}
		return false
	}
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from the loop goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if l.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case l.cmds <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.doneChan:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.doneChan:
		return ErrClosed
	}
}

// Every posts fn onto the loop every interval until the returned Task is
// stopped. Ticks that find the queue full are dropped, never bunched up.
func (l *Loop) Every(interval time.Duration, fn func()) *Task {
	if interval <= 0 {
		interval = 25 * time.Millisecond
	}
	t := &Task{
		interval: interval,
		ticker:   time.NewTicker(interval),
		doneChan: make(chan struct{}),
		release:  l.forget,
	}
	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		t.ticker.Stop()
		t.stopped.Store(true)
		return t
	}
	l.tasks[t] = struct{}{}
	l.mu.Unlock()

	tick := func() {
		if !t.stopped.Load() {
			fn()
		}
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.ticker.C:
				l.Post(tick)
			case <-t.doneChan:
				return
			}
		}
	}()
	return t
}

// Timer adapts Every to the cancel-func shape schedulers expect.
func (l *Loop) Timer(interval time.Duration, fn func()) func() {
	return l.Every(interval, fn).Stop
}

func (l *Loop) forget(t *Task) {
	l.mu.Lock()
	delete(l.tasks, t)
	l.mu.Unlock()
}

// Close stops every task and ends Run. Commands still queued are discarded.
// It is safe to call Close more than once.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed.Store(true)
		tasks := make([]*Task, 0, len(l.tasks))
		for t := range l.tasks {
			tasks = append(tasks, t)
		}
		l.mu.Unlock()
		for _, t := range tasks {
			t.Stop()
		}
		close(l.doneChan)
		logger.Debugf("closed (%d tasks stopped, %d commands dropped)", len(tasks), l.dropped.Load())
	})
	return nil
}

// Running reports whether Run is executing commands.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Dropped reports how many posted commands were discarded on a full queue.
func (l *Loop) Dropped() uint64 {
	return l.dropped.Load()
}

var _ Executor = (*Loop)(nil)
var _ interface{ Close() error } = (*Loop)(nil)

// Task is a cancellable repeating job.
type Task struct {
	interval time.Duration
	stopped  atomic.Bool

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	release  func(*Task)
}

// Stop cancels the task. A tick already queued on the loop is skipped.
// Safe to call from any goroutine, including the loop, and more than once.
func (t *Task) Stop() {
	t.stopped.Store(true)
	t.stopOnce.Do(func() {
		if t.ticker != nil {
			t.ticker.Stop()
		}
		if t.doneChan != nil {
			close(t.doneChan)
		}
	})
	t.wg.Wait()
	if t.release != nil {
		t.release(t)
	}
}

// Stopped reports whether Stop has been called.
func (t *Task) Stopped() bool {
	return t.stopped.Load()
}

// Interval returns the tick period.
func (t *Task) Interval() time.Duration {
	return t.interval
}
