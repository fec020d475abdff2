// Package clock abstracts time, timer scheduling, and randomness so that
// every delay in the protocol engine (probe intervals, response spreading,
// tiebreak backoff) is injectable and tests never sleep.
package clock

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Timer is a handle to a scheduled callback. Cancel reports whether the
// callback was prevented from running.
type Timer interface {
	Cancel() bool
}

// Scheduler arms one-shot timers. Real timers run detached: they never keep
// the process alive, and a fired callback runs outside any scheduler lock.
type Scheduler interface {
	Schedule(d time.Duration, f func()) Timer
}

// Rand yields uniform floats in [0, 1) for randomized protocol delays.
type Rand interface {
	Float64() float64
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// RealScheduler arms timers with time.AfterFunc.
type RealScheduler struct{}

func (RealScheduler) Schedule(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct {
	t *time.Timer
}

func (t realTimer) Cancel() bool {
	return t.t.Stop()
}

// RealRand draws from the shared math/rand/v2 source.
type RealRand struct{}

func (RealRand) Float64() float64 {
	return rand.Float64()
}

// MockClock is a manually advanced clock for tests. Advancing it through a
// linked MockScheduler fires due timers in order.
type MockClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CurrentTime
}

func (c *MockClock) set(t time.Time) {
	c.mu.Lock()
	c.CurrentTime = t
	c.mu.Unlock()
}

// MockScheduler collects scheduled callbacks and fires them when the linked
// clock is advanced past their due time. Callbacks run outside the internal
// lock, so a firing callback may schedule further timers.
type MockScheduler struct {
	mu    sync.Mutex
	clk   *MockClock
	tasks []*mockTimer
}

// NewMockScheduler returns a scheduler driving (and driven by) clk.
func NewMockScheduler(clk *MockClock) *MockScheduler {
	return &MockScheduler{clk: clk}
}

func (s *MockScheduler) Schedule(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &mockTimer{sched: s, due: s.clk.Now().Add(d), f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that comes due,
// in due order. Timers scheduled by fired callbacks participate if they fall
// within the window.
func (s *MockScheduler) Advance(d time.Duration) {
	deadline := s.clk.Now().Add(d)
	for {
		t := s.popDue(deadline)
		if t == nil {
			break
		}
		s.clk.set(t.due)
		t.f()
	}
	s.clk.set(deadline)
}

// Pending returns the number of armed timers.
func (s *MockScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// popDue removes and returns the earliest timer due at or before deadline.
func (s *MockScheduler) popDue(deadline time.Time) *mockTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.SliceStable(s.tasks, func(i, j int) bool {
		return s.tasks[i].due.Before(s.tasks[j].due)
	})
	if len(s.tasks) == 0 || s.tasks[0].due.After(deadline) {
		return nil
	}
	t := s.tasks[0]
	s.tasks = s.tasks[1:]
	return t
}

type mockTimer struct {
	sched *MockScheduler
	due   time.Time
	f     func()
}

func (t *mockTimer) Cancel() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	for i, other := range t.sched.tasks {
		if other == t {
			t.sched.tasks = append(t.sched.tasks[:i], t.sched.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// MockRand replays a fixed sequence of values, cycling when exhausted.
// An empty sequence yields zero.
type MockRand struct {
	mu     sync.Mutex
	Values []float64
	next   int
}

func (r *MockRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Values) == 0 {
		return 0
	}
	v := r.Values[r.next%len(r.Values)]
	r.next++
	return v
}
