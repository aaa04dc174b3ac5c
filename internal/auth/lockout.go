package auth

import (
	"sync"
	"time"
)

// LockoutPolicy is the hook point for throttling repeated credential
// failures. Implementations decide when a principal is locked; the validator
// only consults the policy and reports outcomes to it.
type LockoutPolicy interface {
	IsLocked(principal string) bool
	// RecordFailure notes a failed attempt and reports whether the principal
	// is now locked.
	RecordFailure(principal string) bool
	RecordSuccess(principal string)
}

// LockoutService is an in-memory LockoutPolicy that locks a principal after
// a number of consecutive failures.
type LockoutService struct {
	maxAttempts int
	duration    time.Duration
	attempts    map[string]*lockoutEntry
	mu          sync.RWMutex
}

type lockoutEntry struct {
	count    int
	lockedAt time.Time
}

// NewLockoutService creates a new LockoutService.
// maxAttempts: number of failed attempts before lockout (0 = disabled)
// duration: how long the principal stays locked
func NewLockoutService(maxAttempts int, duration time.Duration) *LockoutService {
	return &LockoutService{
		maxAttempts: maxAttempts,
		duration:    duration,
		attempts:    make(map[string]*lockoutEntry),
	}
}

// IsLocked checks if a principal is currently locked.
func (s *LockoutService) IsLocked(principal string) bool {
	if s.maxAttempts <= 0 {
		return false // Lockout disabled
	}

	s.mu.RLock()
	entry, exists := s.attempts[principal]
	s.mu.RUnlock()

	if !exists {
		return false
	}

	if !entry.lockedAt.IsZero() && time.Since(entry.lockedAt) < s.duration {
		return true
	}

	return false
}

// RecordFailure records a failed attempt and returns true if the principal
// is now locked.
func (s *LockoutService) RecordFailure(principal string) bool {
	if s.maxAttempts <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.attempts[principal]
	if !exists {
		entry = &lockoutEntry{}
		s.attempts[principal] = entry
	}

	// If previously locked but expired, reset
	if !entry.lockedAt.IsZero() && time.Since(entry.lockedAt) >= s.duration {
		entry.count = 0
		entry.lockedAt = time.Time{}
	}

	entry.count++

	if entry.count >= s.maxAttempts {
		entry.lockedAt = time.Now()
		return true
	}

	return false
}

// RecordSuccess clears failed attempts for a principal.
func (s *LockoutService) RecordSuccess(principal string) {
	if s.maxAttempts <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.attempts, principal)
}

// RemainingAttempts returns the number of attempts left before lockout.
func (s *LockoutService) RemainingAttempts(principal string) int {
	if s.maxAttempts <= 0 {
		return -1
	}

	s.mu.RLock()
	entry, exists := s.attempts[principal]
	s.mu.RUnlock()

	if !exists {
		return s.maxAttempts
	}

	if !entry.lockedAt.IsZero() && time.Since(entry.lockedAt) >= s.duration {
		return s.maxAttempts
	}

	remaining := s.maxAttempts - entry.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// LockoutRemaining returns the time until the principal is unlocked.
// Returns 0 if not locked.
func (s *LockoutService) LockoutRemaining(principal string) time.Duration {
	if s.maxAttempts <= 0 {
		return 0
	}

	s.mu.RLock()
	entry, exists := s.attempts[principal]
	s.mu.RUnlock()

	if !exists || entry.lockedAt.IsZero() {
		return 0
	}

	remaining := s.duration - time.Since(entry.lockedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
