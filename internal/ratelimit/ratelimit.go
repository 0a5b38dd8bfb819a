package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Decision is the outcome of an admission check
type Decision struct {
	Allowed bool
	Wait    time.Duration
}

// WaitSeconds returns the remaining wait rounded up to whole seconds
func (d Decision) WaitSeconds() int {
	if d.Allowed || d.Wait <= 0 {
		return 0
	}
	return int((d.Wait + time.Second - 1) / time.Second)
}

// Limiter enforces a minimum interval between admitted actions per principal.
// Admit records now as the last action time only when the action is admitted.
type Limiter interface {
	Admit(ctx context.Context, principal int64, now time.Time) (Decision, error)
}

// Memory is a process-local limiter
type Memory struct {
	interval time.Duration

	mu       sync.Mutex
	lastSeen map[int64]time.Time
}

// NewMemory creates an in-memory limiter
func NewMemory(interval time.Duration) *Memory {
	return &Memory{
		interval: interval,
		lastSeen: make(map[int64]time.Time),
	}
}

// Admit checks and records the action atomically
func (m *Memory) Admit(ctx context.Context, principal int64, now time.Time) (Decision, error) {
	if m.interval <= 0 {
		return Decision{Allowed: true}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastSeen[principal]; ok {
		if elapsed := now.Sub(last); elapsed < m.interval {
			return Decision{Wait: m.interval - elapsed}, nil
		}
	}
	m.lastSeen[principal] = now
	return Decision{Allowed: true}, nil
}

// Gate applies a Limiter to everyone except the owner
type Gate struct {
	ownerID int64
	limiter Limiter
	logger  *zap.Logger
}

// NewGate creates a gate exempting ownerID
func NewGate(ownerID int64, limiter Limiter, logger *zap.Logger) *Gate {
	return &Gate{ownerID: ownerID, limiter: limiter, logger: logger}
}

// Admit decides whether principal may start a new top-level action.
// Limiter failures admit the action.
func (g *Gate) Admit(ctx context.Context, principal int64, now time.Time) Decision {
	if principal == g.ownerID {
		return Decision{Allowed: true}
	}

	decision, err := g.limiter.Admit(ctx, principal, now)
	if err != nil {
		g.logger.Error("Rate limiter failed, admitting action",
			zap.Int64("user_id", principal),
			zap.Error(err),
		)
		return Decision{Allowed: true}
	}

	if !decision.Allowed {
		g.logger.Warn("Rate limit",
			zap.Int64("user_id", principal),
			zap.Duration("wait", decision.Wait),
		)
	}
	return decision
}
