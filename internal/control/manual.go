// SPDX-License-Identifier: MIT
package control

import (
	"slices"
	"time"
)

// Manual is an Executor driven by a virtual clock. Posted commands run
// immediately on the caller's goroutine and repeating tasks fire from
// Advance. Offline rendering and tests use it in place of a Loop.
type Manual struct {
	now   time.Duration
	tasks []*manualTask
}

type manualTask struct {
	task *Task
	next time.Duration
	fn   func()
}

// NewManual returns a Manual at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

// Post runs fn synchronously.
func (m *Manual) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Every registers fn to run each interval of virtual time.
func (m *Manual) Every(interval time.Duration, fn func()) *Task {
	if interval <= 0 {
		interval = 25 * time.Millisecond
	}
	t := &Task{interval: interval}
	m.tasks = append(m.tasks, &manualTask{task: t, next: m.now + interval, fn: fn})
	return t
}

// Timer adapts Every to the cancel-func shape schedulers expect.
func (m *Manual) Timer(interval time.Duration, fn func()) func() {
	return m.Every(interval, fn).Stop
}

// Now returns the virtual time.
func (m *Manual) Now() time.Duration {
	return m.now
}

// Advance moves virtual time forward by d, firing every due tick in time
// order. Tasks armed or stopped by a tick take effect for later ticks.
func (m *Manual) Advance(d time.Duration) {
	end := m.now + d
	for {
		m.tasks = slices.DeleteFunc(m.tasks, func(mt *manualTask) bool {
			return mt.task.Stopped()
		})
		var due *manualTask
		for _, mt := range m.tasks {
			if mt.next <= end && (due == nil || mt.next < due.next) {
				due = mt
			}
		}
		if due == nil {
			break
		}
		m.now = due.next
		due.next += due.task.interval
		due.fn()
	}
	m.now = end
}

// Pending reports how many tasks are armed.
func (m *Manual) Pending() int {
	n := 0
	for _, mt := range m.tasks {
		if !mt.task.Stopped() {
			n++
		}
	}
	return n
}

var _ Executor = (*Manual)(nil)
