/*
scheduler.go - Idle simulation eviction

PURPOSE:
  Open simulations live in memory until closed. The janitor periodically
  closes the ones nobody has touched for longer than the TTL so an
  abandoned browser tab doesn't pin an orchestrator forever. Saved
  simulations are unaffected; they can be restored at any time.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Evicts sessions whose last use is older than now - TTL
  - A TTL of zero disables the janitor

USAGE:
  janitor := NewSessionJanitor(handler, 2*time.Hour, logger)
  janitor.Start()
  // ... later
  janitor.Stop()

SEE ALSO:
  - handlers.go: Handler.EvictIdle
  - config/config.go: SessionTTL
*/
package api

import (
	"log/slog"
	"sync"
	"time"
)

// SessionJanitor closes idle simulations.
type SessionJanitor struct {
	Handler       *Handler
	TTL           time.Duration
	CheckInterval time.Duration
	Logger        *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSessionJanitor creates a janitor checking every TTL/4, at least once a minute.
func NewSessionJanitor(handler *Handler, ttl time.Duration, logger *slog.Logger) *SessionJanitor {
	if logger == nil {
		logger = slog.Default()
	}
	interval := ttl / 4
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	return &SessionJanitor{
		Handler:       handler,
		TTL:           ttl,
		CheckInterval: interval,
		Logger:        logger,
	}
}

// Start begins the janitor.
func (j *SessionJanitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.TTL <= 0 {
		j.Logger.Info("session janitor disabled")
		return
	}
	if j.ticker != nil {
		return
	}

	j.ticker = time.NewTicker(j.CheckInterval)
	j.stop = make(chan struct{})
	j.wg.Add(1)
	go j.run()

	j.Logger.Info("session janitor started", "ttl", j.TTL, "interval", j.CheckInterval)
}

// Stop stops the janitor and waits for a running sweep to finish.
func (j *SessionJanitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ticker != nil {
		j.ticker.Stop()
		close(j.stop)
		j.wg.Wait()
		j.ticker = nil
		j.Logger.Info("session janitor stopped")
	}
}

func (j *SessionJanitor) run() {
	defer j.wg.Done()
	for {
		select {
		case now := <-j.ticker.C:
			j.Sweep(now)
		case <-j.stop:
			return
		}
	}
}

// Sweep evicts sessions idle at now and returns how many were closed.
func (j *SessionJanitor) Sweep(now time.Time) int {
	evicted := j.Handler.EvictIdle(now.Add(-j.TTL))
	for _, id := range evicted {
		j.Logger.Info("simulation evicted", "simulation", id, "ttl", j.TTL)
	}
	return len(evicted)
}
