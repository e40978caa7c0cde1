package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roblox-funapp/internal/config"
)

// SessionSweeper drops sessions that have been idle too long
type SessionSweeper interface {
	SweepIdle(maxIdle time.Duration) int
	Len() int
}

// Janitor periodically evicts idle game sessions from the store
type Janitor struct {
	sessions SessionSweeper
	config   *config.SessionConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewJanitor creates a new session janitor
func NewJanitor(sessions SessionSweeper, cfg *config.SessionConfig, logger *slog.Logger) *Janitor {
	return &Janitor{
		sessions: sessions,
		config:   cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background sweep
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.mu.Unlock()

	j.logger.Info("session janitor started",
		"interval", j.config.SweepInterval,
		"idle_ttl", j.config.IdleTTL,
	)

	go j.run(ctx)
	return nil
}

// Stop stops the background sweep
func (j *Janitor) Stop() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.mu.Unlock()

	close(j.stopCh)
	<-j.doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()

	j.logger.Info("session janitor stopped")
	return nil
}

// run is the main worker loop
func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// RunOnce runs a single sweep and returns the number of sessions removed
func (j *Janitor) RunOnce() int {
	removed := j.sessions.SweepIdle(j.config.IdleTTL)
	if removed > 0 {
		j.logger.Info("swept idle sessions",
			"removed", removed,
			"remaining", j.sessions.Len(),
		)
	}
	return removed
}

// IsRunning returns whether the janitor is currently running
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}
