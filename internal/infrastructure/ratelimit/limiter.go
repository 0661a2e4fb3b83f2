package ratelimit

import (
	"math"
	"sync"
	"time"

	"appgen/internal/infrastructure/metrics"
)

const (
	DefaultWindow      = 300 * time.Second
	DefaultMaxRequests = 2
)

// Decision is the outcome of one Check call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below 1 for a denial.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

type record struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window request counter keyed by client identity. It is safe for
// concurrent use; one instance is shared by every request handler in the process.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record
	window  time.Duration
	max     int
	now     func() time.Time
}

// New builds a limiter allowing max requests per window. A nil clock uses time.Now.
func New(window time.Duration, max int, now func() time.Time) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		records: make(map[string]*record),
		window:  window,
		max:     max,
		now:     now,
	}
}

func (l *Limiter) Window() time.Duration { return l.window }

func (l *Limiter) MaxRequests() int { return l.max }

// Check counts one request for key. The record is (re)started on first use and once the
// window has passed; otherwise the request is denied when the window is already full.
func (l *Limiter) Check(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok || now.After(rec.resetAt) {
		rec = &record{count: 1, resetAt: now.Add(l.window)}
		l.records[key] = rec
		metrics.IncRateLimitDecision(true)
		return Decision{Allowed: true, Remaining: l.max - 1, ResetAt: rec.resetAt}
	}

	if rec.count >= l.max {
		metrics.IncRateLimitDecision(false)
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: rec.resetAt.Sub(now),
			ResetAt:    rec.resetAt,
		}
	}

	rec.count++
	metrics.IncRateLimitDecision(true)
	return Decision{Allowed: true, Remaining: l.max - rec.count, ResetAt: rec.resetAt}
}

// Prune drops records whose window has passed and returns how many were removed.
func (l *Limiter) Prune() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, rec := range l.records {
		if now.After(rec.resetAt) {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked client keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
