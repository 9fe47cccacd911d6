// SPDX-License-Identifier: MIT
package control

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		l.Close()
		<-errc
	})
	return l, cancel
}

func TestLoopRunsCommandsInOrder(t *testing.T) {
	l, _ := startLoop(t)
	var got []int
	for i := range 5 {
		if !l.Post(func() { got = append(got, i) }) {
			t.Fatalf("Post %d rejected", i)
		}
	}
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("ran %d commands", len(got))
	}
}

func TestLoopPostDropsWhenFull(t *testing.T) {
	l := New(2)
	for range 2 {
		if !l.Post(func() {}) {
			t.Fatal("Post rejected with room in the queue")
		}
	}
	if l.Post(func() {}) {
		t.Error("Post accepted on a full queue")
	}
	if l.Dropped() != 1 {
		t.Errorf("dropped = %d", l.Dropped())
	}
	if l.Post(nil) {
		t.Error("Post accepted nil")
	}
}

func TestLoopClose(t *testing.T) {
	l := New(4)
	errc := make(chan error, 1)
	go func() { errc <- l.Run(context.Background()) }()

	l.Close()
	l.Close()
	if err := <-errc; err != nil {
		t.Errorf("Run after Close = %v", err)
	}
	if l.Post(func() {}) {
		t.Error("Post accepted after Close")
	}
	if err := l.Do(context.Background(), func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Do after Close = %v", err)
	}
	if task := l.Every(time.Millisecond, func() {}); !task.Stopped() {
		t.Error("Every after Close armed a task")
	}
}

func TestLoopRunTwice(t *testing.T) {
	l, _ := startLoop(t)
	// Make sure the first Run is in its select loop.
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}
	if err := l.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("second Run = %v", err)
	}
}

func TestLoopRunCancelled(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v", err)
	}
}

func TestEveryTicksOnLoopUntilStopped(t *testing.T) {
	l, _ := startLoop(t)
	var n atomic.Int32
	fired := make(chan struct{}, 16)
	task := l.Every(2*time.Millisecond, func() {
		n.Add(1)
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	for range 3 {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("task never fired")
		}
	}
	if err := l.Do(context.Background(), task.Stop); err != nil {
		t.Fatal(err)
	}
	after := n.Load()
	time.Sleep(10 * time.Millisecond)
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}
	if n.Load() != after {
		t.Errorf("task fired %d times after Stop", n.Load()-after)
	}
	task.Stop()
	if !task.Stopped() {
		t.Error("Stopped() = false")
	}
}

func TestLoopTimerAdapter(t *testing.T) {
	l, _ := startLoop(t)
	fired := make(chan struct{}, 1)
	cancel := l.Timer(time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	cancel()
}

func TestManualAdvance(t *testing.T) {
	m := NewManual()
	var trace []string
	fast := m.Every(10*time.Millisecond, func() { trace = append(trace, "fast") })
	m.Every(25*time.Millisecond, func() { trace = append(trace, "slow") })

	m.Advance(50 * time.Millisecond)
	want := []string{"fast", "fast", "slow", "fast", "fast", "fast", "slow"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v", trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
	if m.Now() != 50*time.Millisecond {
		t.Errorf("now = %v", m.Now())
	}

	fast.Stop()
	trace = trace[:0]
	m.Advance(50 * time.Millisecond)
	if len(trace) != 2 || m.Pending() != 1 {
		t.Errorf("after Stop: trace %v, pending %d", trace, m.Pending())
	}
}

func TestManualTaskArmedFromTick(t *testing.T) {
	m := NewManual()
	var inner int
	var outer *Task
	outer = m.Every(10*time.Millisecond, func() {
		m.Every(5*time.Millisecond, func() { inner++ })
		outer.Stop()
	})
	m.Advance(30 * time.Millisecond)
	// Armed at 10 ms, fires at 15, 20, 25, 30.
	if inner != 4 {
		t.Errorf("inner fired %d times", inner)
	}
}

func TestManualPostRunsInline(t *testing.T) {
	m := NewManual()
	ran := false
	if !m.Post(func() { ran = true }) || !ran {
		t.Error("Post did not run inline")
	}
}
