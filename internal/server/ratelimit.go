package server

import (
	"sync"
	"time"

	"github.com/lawnchairsociety/combatsim/internal/config"
)

// AuthRateLimiter tracks failed API token checks per IP and locks out
// repeat offenders with exponential backoff.
type AuthRateLimiter struct {
	mu              sync.Mutex
	attempts        map[string]*attemptInfo
	maxAttempts     int
	lockout         time.Duration
	maxLockout      time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

type attemptInfo struct {
	failedAttempts int
	lockedUntil    time.Time
	lockoutCount   int // Lockouts so far, drives the backoff
}

// NewAuthRateLimiter creates a limiter and starts its cleanup goroutine.
func NewAuthRateLimiter(cfg config.RateLimitConfig) *AuthRateLimiter {
	rl := &AuthRateLimiter{
		attempts:        make(map[string]*attemptInfo),
		maxAttempts:     cfg.MaxAttempts,
		lockout:         time.Duration(cfg.LockoutSeconds) * time.Second,
		maxLockout:      time.Duration(cfg.MaxLockoutSeconds) * time.Second,
		cleanupInterval: 5 * time.Minute,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
	}

	if rl.maxAttempts <= 0 {
		rl.maxAttempts = 5
	}
	if rl.lockout <= 0 {
		rl.lockout = 30 * time.Second
	}
	if rl.maxLockout < rl.lockout {
		rl.maxLockout = 10 * rl.lockout
	}

	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup goroutine.
func (rl *AuthRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// IsLocked reports whether ip is locked out and for how much longer.
func (rl *AuthRateLimiter) IsLocked(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	info, exists := rl.attempts[ip]
	if !exists {
		return false, 0
	}
	if now := rl.now(); now.Before(info.lockedUntil) {
		return true, info.lockedUntil.Sub(now)
	}
	return false, 0
}

// RecordFailure counts a failed check. It returns true with the lockout
// duration when ip is now locked.
func (rl *AuthRateLimiter) RecordFailure(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	info, exists := rl.attempts[ip]
	if !exists {
		info = &attemptInfo{}
		rl.attempts[ip] = info
	}

	now := rl.now()
	if now.Before(info.lockedUntil) {
		return true, info.lockedUntil.Sub(now)
	}

	info.failedAttempts++
	if info.failedAttempts < rl.maxAttempts {
		return false, 0
	}

	info.lockoutCount++
	d := rl.backoff(info.lockoutCount)
	info.lockedUntil = now.Add(d)
	info.failedAttempts = 0
	return true, d
}

// backoff doubles the base lockout per previous lockout, capped at maxLockout
func (rl *AuthRateLimiter) backoff(lockouts int) time.Duration {
	d := rl.lockout
	for i := 1; i < lockouts; i++ {
		if d >= rl.maxLockout/2 {
			return rl.maxLockout
		}
		d *= 2
	}
	return min(d, rl.maxLockout)
}

// RecordSuccess clears the failure history of ip.
func (rl *AuthRateLimiter) RecordSuccess(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, ip)
}

// Attempts returns the failures recorded for ip since its last lockout.
func (rl *AuthRateLimiter) Attempts(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if info, exists := rl.attempts[ip]; exists {
		return info.failedAttempts
	}
	return 0
}

func (rl *AuthRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops entries unlocked for at least 10 minutes with no pending failures.
func (rl *AuthRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-10 * time.Minute)
	for ip, info := range rl.attempts {
		if info.lockedUntil.Before(cutoff) && info.failedAttempts == 0 {
			delete(rl.attempts, ip)
		}
	}
}
