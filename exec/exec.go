// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package exec models the two external collaborators spec.md §6 treats as
// opaque: a task executor ("execute now" / "defer; report whether
// accepted") and a timer facility (tick-counted, one tick per subframe).
// Neither slotclock nor metricsagg depends on a concrete implementation;
// both take these as constructor arguments rather than reaching out for
// them.
package exec

import (
	"sync"
	"sync/atomic"
	"time"
)

// Executor models "execute f now" and "defer f for later; return whether
// it was accepted". A real implementation backs this with a per-cell
// goroutine and a bounded work queue; Defer returning false models a full
// queue (the transient failure case of spec.md §7), never a panic or
// block.
type Executor interface {
	Execute(f func())
	Defer(f func()) bool
}

// Timer is a single schedulable callback, matching timer_manager's
// unique_timer: Run arms it to fire once after the tick duration given to
// NewTimer (as measured by the owning TimerManager), Stop cancels it.
type Timer interface {
	Run()
	Stop()
}

// TimerManager models the opaque timer_manager of spec.md §6: Tick()
// advances the shared tick count by one (one tick == one millisecond by
// convention), Now() reads it, and NewTimer allocates a Timer that fires
// callback after the configured duration once Run is called.
type TimerManager interface {
	Tick()
	Now() uint64
	NewTimer(d TickDuration, callback func()) Timer
}

// TickDuration is a duration expressed in ticks (milliseconds, by
// convention) rather than time.Duration, matching the tick-counted timer
// facility the core assumes.
type TickDuration uint64

// InlineExecutor runs Execute and Defer synchronously on the caller's
// goroutine. It never rejects a Defer. Useful for deterministic tests and
// for single-goroutine embeddings of the core.
type InlineExecutor struct{}

// Execute implements Executor.
func (InlineExecutor) Execute(f func()) { f() }

// Defer implements Executor.
func (InlineExecutor) Defer(f func()) bool {
	f()
	return true
}

// BoundedExecutor is a minimal test/demo Executor backed by a fixed-size
// work queue: Defer fails (returns false) once the queue is full, the
// transient-failure path spec.md §7 requires callers to tolerate.
type BoundedExecutor struct {
	q chan func()
}

// NewBoundedExecutor returns a BoundedExecutor whose Defer queue holds up
// to `capacity` pending tasks, drained by a single worker goroutine
// started by Run.
func NewBoundedExecutor(capacity int) *BoundedExecutor {
	return &BoundedExecutor{q: make(chan func(), capacity)}
}

// Execute implements Executor by running f synchronously.
func (e *BoundedExecutor) Execute(f func()) { f() }

// Defer implements Executor: it enqueues f without blocking, returning
// false if the queue is full.
func (e *BoundedExecutor) Defer(f func()) bool {
	select {
	case e.q <- f:
		return true
	default:
		return false
	}
}

// Run drains the work queue until it is closed, meant to be started in
// its own goroutine as the "tick-executor" or "control executor".
func (e *BoundedExecutor) Run() {
	for f := range e.q {
		f()
	}
}

// Close stops accepting new work by closing the queue; Run's goroutine
// exits once it has drained whatever was pending.
func (e *BoundedExecutor) Close() { close(e.q) }

// ManualTimerManager is a deterministic TimerManager for tests: Tick must
// be called explicitly (no wall-clock goroutine), and timers fire
// synchronously from within Tick once their deadline elapses.
type ManualTimerManager struct {
	now    atomic.Uint64
	timers []*manualTimer
}

// NewManualTimerManager returns a TimerManager with Now()==0.
func NewManualTimerManager() *ManualTimerManager {
	return &ManualTimerManager{}
}

// Tick implements TimerManager: advances Now() by one and fires any timer
// whose deadline has elapsed.
func (m *ManualTimerManager) Tick() {
	n := m.now.Add(1)
	for _, t := range m.timers {
		if t.running && n >= t.deadline {
			t.running = false
			t.callback()
		}
	}
}

// Now implements TimerManager.
func (m *ManualTimerManager) Now() uint64 { return m.now.Load() }

// NewTimer implements TimerManager.
func (m *ManualTimerManager) NewTimer(d TickDuration, callback func()) Timer {
	t := &manualTimer{mgr: m, duration: d, callback: callback}
	m.timers = append(m.timers, t)
	return t
}

type manualTimer struct {
	mgr      *ManualTimerManager
	duration TickDuration
	deadline uint64
	running  bool
	callback func()
}

func (t *manualTimer) Run() {
	t.deadline = t.mgr.Now() + uint64(t.duration)
	t.running = true
}

func (t *manualTimer) Stop() { t.running = false }

// WallClockTimerManager is a real-time TimerManager for production
// embeddings: a goroutine started by Run calls Tick() once per
// millisecond until Close is called.
type WallClockTimerManager struct {
	now    atomic.Uint64
	mu     sync.Mutex
	timers []*wallClockTimer
	stop   chan struct{}
}

// NewWallClockTimerManager returns a TimerManager whose Run method drives
// Tick() off a real time.Ticker.
func NewWallClockTimerManager() *WallClockTimerManager {
	return &WallClockTimerManager{stop: make(chan struct{})}
}

// Run blocks, ticking once per millisecond, until Close is called. Meant
// to be started in its own goroutine.
func (m *WallClockTimerManager) Run() {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Tick()
		case <-m.stop:
			return
		}
	}
}

// Close stops the Run goroutine.
func (m *WallClockTimerManager) Close() { close(m.stop) }

// Tick implements TimerManager.
func (m *WallClockTimerManager) Tick() {
	n := m.now.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.timers {
		if t.running.Load() && n >= t.deadline.Load() {
			t.running.Store(false)
			t.callback()
		}
	}
}

// Now implements TimerManager.
func (m *WallClockTimerManager) Now() uint64 { return m.now.Load() }

// NewTimer implements TimerManager.
func (m *WallClockTimerManager) NewTimer(d TickDuration, callback func()) Timer {
	t := &wallClockTimer{mgr: m, duration: d, callback: callback}
	m.mu.Lock()
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return t
}

type wallClockTimer struct {
	mgr      *WallClockTimerManager
	duration TickDuration
	deadline atomic.Uint64
	running  atomic.Bool
	callback func()
}

func (t *wallClockTimer) Run() {
	t.deadline.Store(t.mgr.Now() + uint64(t.duration))
	t.running.Store(true)
}

func (t *wallClockTimer) Stop() { t.running.Store(false) }
