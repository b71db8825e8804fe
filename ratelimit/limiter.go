// Package ratelimit spaces calls to each venue by that venue's minimum call interval.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter tracks the last call time per venue. Waiting and recording happen
// under the venue's own mutex, so concurrent callers for one venue queue up
// while other venues proceed independently.
type Limiter struct {
	mu    sync.RWMutex
	slots map[string]*slot
	now   func() time.Time
}

type slot struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	called   bool
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter with the given per-venue intervals
func New(intervals map[string]time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		slots: make(map[string]*slot, len(intervals)),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	for venue, interval := range intervals {
		l.slots[venue] = &slot{interval: interval}
	}
	return l
}

func (l *Limiter) slot(venue string) *slot {
	l.mu.RLock()
	s, ok := l.slots[venue]
	l.mu.RUnlock()
	if ok {
		return s
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok = l.slots[venue]; !ok {
		s = &slot{}
		l.slots[venue] = s
	}
	return s
}

// SetInterval sets the minimum spacing between calls to venue
func (l *Limiter) SetInterval(venue string, interval time.Duration) {
	s := l.slot(venue)
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()
}

// Interval returns the configured spacing for venue
func (l *Limiter) Interval(venue string) time.Duration {
	s := l.slot(venue)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// RecordCall stores t as the last call time for venue
func (l *Limiter) RecordCall(venue string, t time.Time) {
	s := l.slot(venue)
	s.mu.Lock()
	s.record(t)
	s.mu.Unlock()
}

// LastCall returns the last recorded call time, if any
func (l *Limiter) LastCall(venue string) (time.Time, bool) {
	s := l.slot(venue)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.called
}

// WaitTime returns max(0, last+interval-now), or 0 when venue was never called.
func (l *Limiter) WaitTime(venue string, now time.Time) time.Duration {
	s := l.slot(venue)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitTime(now)
}

// Wait blocks until venue may be called again, then records the call.
// It returns ctx.Err() without recording when ctx is done first.
func (l *Limiter) Wait(ctx context.Context, venue string) error {
	s := l.slot(venue)
	s.mu.Lock()
	defer s.mu.Unlock()

	if d := s.waitTime(l.now()); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	s.record(l.now())
	return nil
}

func (s *slot) waitTime(now time.Time) time.Duration {
	if !s.called {
		return 0
	}
	d := s.last.Add(s.interval).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (s *slot) record(t time.Time) {
	s.last = t
	s.called = true
}
