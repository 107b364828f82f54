package realtime

import (
	"sync"
	"time"
)

// RateLimiter caps inbound events per user with a minute-granular window.
type RateLimiter struct {
	mu        sync.Mutex
	perMinute int
	clients   map[string]*clientWindow
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing perMinute events per user.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		clients:   make(map[string]*clientWindow),
	}
}

// Allow reports whether the user may send another event right now.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	window, exists := rl.clients[userID]
	if !exists {
		rl.clients[userID] = &clientWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(window.windowStart) >= time.Minute {
		window.count = 1
		window.windowStart = now
		return true
	}

	if window.count >= rl.perMinute {
		return false
	}

	window.count++
	return true
}

// Forget drops a user's window state, typically on disconnect.
func (rl *RateLimiter) Forget(userID string) {
	rl.mu.Lock()
	delete(rl.clients, userID)
	rl.mu.Unlock()
}
