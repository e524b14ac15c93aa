// Package ratelimit implements the per-identity sliding window applied to
// chat messages. Limits are process-wide: an identity connected to several
// rooms shares one window.
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultMaxMessages = 10
	DefaultWindow      = 60 * time.Second
)

// Config controls the window size and capacity.
type Config struct {
	MaxMessages int
	Window      time.Duration
	Clock       func() time.Time
}

// Limiter tracks accepted send times per identity. Each identity has its own
// lock so a busy sender never blocks checks for anyone else.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	mu    sync.Mutex
	times []time.Time
	// dead marks a window removed from the map; holders must look it up again.
	dead bool
}

// New constructs a Limiter, falling back to the defaults for unset fields.
func New(cfg Config) *Limiter {
	l := &Limiter{
		max:     cfg.MaxMessages,
		window:  cfg.Window,
		now:     cfg.Clock,
		windows: make(map[string]*window),
	}
	if l.max <= 0 {
		l.max = DefaultMaxMessages
	}
	if l.window <= 0 {
		l.window = DefaultWindow
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Allow records an attempt for identityID and reports whether it is accepted.
func (l *Limiter) Allow(identityID string) bool {
	for {
		if live, accepted := l.admit(l.windowFor(identityID), l.now()); live {
			return accepted
		}
	}
}

// admit applies one attempt at now to w. It reports live=false when w was
// retired by Prune or Forget after the caller looked it up.
func (l *Limiter) admit(w *window, now time.Time) (live, accepted bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dead {
		return false, false
	}
	w.evict(now.Add(-l.window))
	if len(w.times) >= l.max {
		return true, false
	}
	w.times = append(w.times, now)
	return true, true
}

// Remaining returns how many more messages identityID may send right now.
func (l *Limiter) Remaining(identityID string) int {
	l.mu.Lock()
	w, ok := l.windows[identityID]
	l.mu.Unlock()
	if !ok {
		return l.max
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dead {
		return l.max
	}
	w.evict(l.now().Add(-l.window))
	return l.max - len(w.times)
}

// Forget drops the window for identityID.
func (l *Limiter) Forget(identityID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identityID]
	if !ok {
		return
	}
	w.mu.Lock()
	w.dead = true
	w.mu.Unlock()
	delete(l.windows, identityID)
}

// Prune drops windows whose newest entry is older than the window length and
// returns how many were removed.
func (l *Limiter) Prune() int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		w.mu.Lock()
		w.evict(cutoff)
		idle := len(w.times) == 0
		if idle {
			w.dead = true
		}
		w.mu.Unlock()
		if idle {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of identities with a live window.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Limit returns the configured capacity and window.
func (l *Limiter) Limit() (int, time.Duration) {
	return l.max, l.window
}

func (l *Limiter) windowFor(identityID string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[identityID]
	if !ok {
		w = &window{}
		l.windows[identityID] = w
	}
	return w
}

// evict drops timestamps at or before cutoff from the front.
func (w *window) evict(cutoff time.Time) {
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}
