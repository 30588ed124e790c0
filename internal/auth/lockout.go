package auth

import (
	"sync"
	"time"
)

// Lockout counts failed sign-ins per username and locks the username once
// maxAttempts is reached. A maxAttempts of 0 disables it.
type Lockout struct {
	maxAttempts int
	duration    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	attempts map[string]*lockoutEntry
}

type lockoutEntry struct {
	count    int
	lockedAt time.Time
}

// NewLockout creates a Lockout.
func NewLockout(maxAttempts int, duration time.Duration) *Lockout {
	return &Lockout{
		maxAttempts: maxAttempts,
		duration:    duration,
		now:         time.Now,
		attempts:    make(map[string]*lockoutEntry),
	}
}

func (l *Lockout) enabled() bool {
	return l != nil && l.maxAttempts > 0
}

// entry returns the live entry for username, dropping it if its lock expired.
// Callers hold l.mu.
func (l *Lockout) entry(username string) *lockoutEntry {
	e, ok := l.attempts[username]
	if !ok {
		return nil
	}
	if !e.lockedAt.IsZero() && l.now().Sub(e.lockedAt) >= l.duration {
		delete(l.attempts, username)
		return nil
	}
	return e
}

// Remaining returns how long username stays locked, or 0 if it is not.
func (l *Lockout) Remaining(username string) time.Duration {
	if !l.enabled() {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(username)
	if e == nil || e.lockedAt.IsZero() {
		return 0
	}
	return l.duration - l.now().Sub(e.lockedAt)
}

// IsLocked reports whether username is currently locked.
func (l *Lockout) IsLocked(username string) bool {
	return l.Remaining(username) > 0
}

// RecordFailure counts a failed sign-in and reports whether it locked username.
func (l *Lockout) RecordFailure(username string) bool {
	if !l.enabled() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(username)
	if e == nil {
		e = &lockoutEntry{}
		l.attempts[username] = e
	}
	e.count++
	if e.count >= l.maxAttempts && e.lockedAt.IsZero() {
		e.lockedAt = l.now()
		return true
	}
	return false
}

// RecordSuccess forgets earlier failures.
func (l *Lockout) RecordSuccess(username string) {
	if !l.enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, username)
}

// RemainingAttempts returns the failures left before a lock, or -1 when disabled.
func (l *Lockout) RemainingAttempts(username string) int {
	if !l.enabled() {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(username)
	if e == nil {
		return l.maxAttempts
	}
	return max(l.maxAttempts-e.count, 0)
}
