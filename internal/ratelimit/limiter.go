// Package ratelimit throttles inbound bot updates per sender using a
// sliding window, so a single chat cannot flood the verification flow.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks request timestamps per sender. The sliding window
// avoids the burst-at-boundary problem of fixed counters.
type Limiter struct {
	mu      sync.Mutex
	senders map[int64][]time.Time
	limit   int
	window  time.Duration
	exempt  map[int64]struct{}
	clock   func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) { l.clock = clock }
}

// WithExempt marks senders that are never throttled.
func WithExempt(senders ...int64) Option {
	return func(l *Limiter) {
		for _, s := range senders {
			l.exempt[s] = struct{}{}
		}
	}
}

// New creates a limiter allowing limit events per window per sender.
// A non-positive limit disables throttling entirely.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		senders: make(map[int64][]time.Time),
		limit:   limit,
		window:  window,
		exempt:  make(map[int64]struct{}),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records one event for sender and reports whether it fits the
// window. Denied events are not recorded, so a flooding sender regains
// capacity as soon as old events age out.
func (l *Limiter) Allow(sender int64) bool {
	if l.limit <= 0 {
		return true
	}
	if _, ok := l.exempt[sender]; ok {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	events := l.trim(sender, now)
	if len(events) >= l.limit {
		return false
	}
	l.senders[sender] = append(events, now)
	return true
}

// Remaining reports how many events sender may still make in the
// current window.
func (l *Limiter) Remaining(sender int64) int {
	if l.limit <= 0 {
		return l.limit
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit - len(l.trim(sender, l.clock()))
}

// Reset forgets all recorded events for sender.
func (l *Limiter) Reset(sender int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.senders, sender)
}

// trim drops events older than the window and stores the survivors.
// Callers must hold l.mu.
func (l *Limiter) trim(sender int64, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	events := l.senders[sender]
	i := 0
	for ; i < len(events); i++ {
		if events[i].After(cutoff) {
			break
		}
	}
	events = events[i:]
	if len(events) == 0 {
		delete(l.senders, sender)
		return nil
	}
	l.senders[sender] = events
	return events
}
