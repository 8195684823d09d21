// Package ratelimit implements fixed-window request limiting keyed by an
// arbitrary identifier.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of a single Check
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether another request for identifier fits in the
// current window. Check never fails; backends that can error fail open.
type Limiter interface {
	Check(ctx context.Context, identifier string, max int, window time.Duration) Result
}

// Policy is a named limit applied to a route
type Policy struct {
	Scope   string
	Max     int
	Window  time.Duration
	Message string // client-facing text when the limit is hit
}

// Route policies
var (
	PolicyLogin          = Policy{"login", 5, time.Minute, "Too many login attempts. Please try again later."}
	PolicyRegister       = Policy{"register", 3, 5 * time.Minute, "Too many registration attempts. Please try again later."}
	PolicyForgotPassword = Policy{"forgot-password", 3, 10 * time.Minute, "Too many password reset attempts. Please try again later."}
	PolicyResetPassword  = Policy{"reset-password", 5, 10 * time.Minute, "Too many reset attempts. Please try again later."}
	PolicyVerifyEmail    = Policy{"verify-email", 10, 10 * time.Minute, "Too many verification attempts. Please try again later."}
	PolicySendCode       = Policy{"send-code", 5, 10 * time.Minute, "Too many code requests. Please try again later."}
	PolicyVerifyCode     = Policy{"verify-code", 10, 10 * time.Minute, "Too many code attempts. Please try again later."}
	PolicyCheckEmail     = Policy{"check-email", 10, time.Minute, "Too many requests. Please try again later."}
	PolicyOAuth          = Policy{"oauth", 20, time.Minute, "Too many sign-in attempts. Please try again later."}
)

// Identifier builds the limiter key for a client under this policy.
func (p Policy) Identifier(client string) string {
	return p.Scope + ":" + client
}

type record struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps windows in a mutex-guarded map. Expired records are
// discarded on access and by a periodic sweep.
type MemoryLimiter struct {
	mu           sync.Mutex
	records      map[string]*record
	now          func() time.Time
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

// NewMemoryLimiter creates a limiter. A positive sweepInterval starts the
// background sweeper; call Stop to end it.
func NewMemoryLimiter(sweepInterval time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		records:     make(map[string]*record),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go l.startCleanup(sweepInterval)
	}
	return l
}

// Check records a request for identifier and reports whether it is allowed
func (l *MemoryLimiter) Check(_ context.Context, identifier string, max int, window time.Duration) Result {
	now := l.now()
	if max <= 0 {
		return Result{Allowed: false, Remaining: 0, ResetAt: now.Add(window)}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[identifier]
	if ok && now.After(rec.resetAt) {
		delete(l.records, identifier)
		ok = false
	}

	if !ok {
		rec = &record{count: 1, resetAt: now.Add(window)}
		l.records[identifier] = rec
		return Result{Allowed: true, Remaining: max - 1, ResetAt: rec.resetAt}
	}

	if rec.count >= max {
		return Result{Allowed: false, Remaining: 0, ResetAt: rec.resetAt}
	}

	rec.count++
	return Result{Allowed: true, Remaining: max - rec.count, ResetAt: rec.resetAt}
}

// Sweep deletes expired records and returns how many were removed
func (l *MemoryLimiter) Sweep() int {
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

// Len returns the number of tracked identifiers
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Stop ends the background sweeper
func (l *MemoryLimiter) Stop() {
	l.shutdownOnce.Do(func() {
		close(l.stopCleanup)
	})
}

func (l *MemoryLimiter) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stopCleanup:
			return
		}
	}
}
