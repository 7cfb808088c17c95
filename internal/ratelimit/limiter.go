// Package ratelimit implements a per-user sliding-window request limiter.
//
// Each user owns a window of request instants guarded by its own mutex, so
// checks for one user are linearizable while different users never contend
// beyond the short map lookup.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/pavelc4/aether-fetch/pkg/logger"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Status struct {
	Used      int
	Remaining int
	ResetIn   time.Duration
}

type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

type Limiter struct {
	maxRequests int
	period      time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	windows map[int64]*window
}

type window struct {
	mu     sync.Mutex
	stamps []time.Time
	// dead is set once the window has been removed from the map; a caller
	// holding a stale pointer must look the user up again.
	dead bool
}

func New(maxRequests int, period time.Duration, opts ...Option) *Limiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	l := &Limiter{
		maxRequests: maxRequests,
		period:      period,
		now:         time.Now,
		windows:     make(map[int64]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Check(userID int64) Decision {
	w := l.lockWindow(userID)
	defer w.mu.Unlock()

	now := l.now()
	w.purge(now.Add(-l.period))

	if len(w.stamps) < l.maxRequests {
		w.stamps = append(w.stamps, now)
		return Decision{Allowed: true}
	}

	retry := l.period - now.Sub(w.stamps[0])
	if retry < 0 {
		retry = 0
	}
	return Decision{RetryAfter: retry}
}

// Status reports the user's current usage without recording a request.
func (l *Limiter) Status(userID int64) Status {
	l.mu.RLock()
	w, ok := l.windows[userID]
	l.mu.RUnlock()
	if !ok {
		return Status{Remaining: l.maxRequests}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	w.purge(now.Add(-l.period))

	st := Status{Used: len(w.stamps), Remaining: l.maxRequests - len(w.stamps)}
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	if len(w.stamps) > 0 {
		st.ResetIn = l.period - now.Sub(w.stamps[0])
	}
	return st
}

func (l *Limiter) Reset(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w, ok := l.windows[userID]; ok {
		w.mu.Lock()
		w.dead = true
		w.mu.Unlock()
		delete(l.windows, userID)
	}
}

// Sweep drops windows whose newest request is older than maxIdle and
// returns how many were removed.
func (l *Limiter) Sweep(maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		w.mu.Lock()
		if len(w.stamps) == 0 || w.stamps[len(w.stamps)-1].Before(cutoff) {
			w.dead = true
			delete(l.windows, id)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Run sweeps idle windows every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval, maxIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := l.Sweep(maxIdle); n > 0 {
				logger.Debug("Rate windows swept", "removed", n, "tracked", l.Tracked())
			}
		}
	}
}

func (l *Limiter) Tracked() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.windows)
}

func (l *Limiter) Limits() (int, time.Duration) {
	return l.maxRequests, l.period
}

// lockWindow returns the user's live window with its mutex held.
func (l *Limiter) lockWindow(userID int64) *window {
	for {
		w := l.window(userID)
		w.mu.Lock()
		if !w.dead {
			return w
		}
		w.mu.Unlock()
	}
}

func (l *Limiter) window(userID int64) *window {
	l.mu.RLock()
	w, ok := l.windows[userID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[userID]; !ok {
		w = &window{}
		l.windows[userID] = w
	}
	return w
}

// purge removes instants at or before cutoff. Stamps are appended in order,
// so the expired ones are always a prefix.
func (w *window) purge(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
