// Package ratelimit bounds how many batches a source agent may submit
// per minute and per hour.
package ratelimit

import (
	"sync"

	"github.com/aescanero/bago/internal/config"
	"golang.org/x/time/rate"
)

// Limiter applies per-source-agent token buckets. When disabled, every
// submission is allowed.
type Limiter struct {
	cfg config.RateLimitConfig

	mu     sync.Mutex
	agents map[string]*agentLimiter
}

// agentLimiter holds the minute and hour buckets for one source agent.
type agentLimiter struct {
	minute *rate.Limiter
	hour   *rate.Limiter
}

// NewLimiter creates a batch submission limiter from the rate limit
// configuration.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		cfg:    cfg,
		agents: make(map[string]*agentLimiter),
	}
}

// Allow reports whether agentID may submit another batch now. Both the
// per-minute and per-hour budgets must have a token available.
func (l *Limiter) Allow(agentID string) bool {
	if !l.cfg.Enabled {
		return true
	}

	entry := l.entry(agentID)

	// A denied hour check forfeits the already-taken minute token.
	if !entry.minute.Allow() {
		return false
	}
	if !entry.hour.Allow() {
		return false
	}
	return true
}

func (l *Limiter) entry(agentID string) *agentLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.agents[agentID]
	if !ok {
		entry = &agentLimiter{
			minute: rate.NewLimiter(rate.Limit(float64(l.cfg.PerMinute)/60.0), l.cfg.BurstSize),
			hour:   rate.NewLimiter(rate.Limit(float64(l.cfg.PerHour)/3600.0), l.cfg.BurstSize),
		}
		l.agents[agentID] = entry
	}
	return entry
}
