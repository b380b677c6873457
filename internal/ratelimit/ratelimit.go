// Package ratelimit caps AI summary calls with a rolling daily budget.
package ratelimit

import (
	"sync"
	"time"
)

// DailyLimiter counts calls against a per-day maximum. Zero max means
// unlimited. The window resets 24h after the first counted call.
type DailyLimiter struct {
	mu    sync.Mutex
	count int
	max   int
	reset time.Time
}

func NewDailyLimiter(max int) *DailyLimiter {
	return &DailyLimiter{
		max:   max,
		reset: time.Now().Add(24 * time.Hour),
	}
}

// Allow reports whether another call fits in today's budget.
func (l *DailyLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()
	return l.max <= 0 || l.count < l.max
}

// Record counts one completed call.
func (l *DailyLimiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()
	l.count++
}

// Used returns how many calls were counted in the current window.
func (l *DailyLimiter) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()
	return l.count
}

func (l *DailyLimiter) checkReset() {
	if time.Now().After(l.reset) {
		l.count = 0
		l.reset = time.Now().Add(24 * time.Hour)
	}
}
