package orchestrator

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/raghavared/agent-maestro/internal/session"
)

// StartJanitor runs a background sweep that stops sessions idle past the
// timeout. Timeouts live here, outside the command path: expiry goes
// through the ordinary validated Stop so every invariant and broadcast
// still applies. A timeout <= 0 disables the janitor entirely.
func (m *Manager) StartJanitor(ctx context.Context, interval, idleTimeout time.Duration) {
	if idleTimeout <= 0 {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.stopIdle(ctx, idleTimeout)
			}
		}
	}()
}

func (m *Manager) stopIdle(ctx context.Context, idleTimeout time.Duration) {
	now := time.Now().UTC()

	m.mu.RLock()
	candidates := make([]string, 0, len(m.runtimes))
	for id, rt := range m.runtimes {
		rt.mu.Lock()
		idle := !rt.sess.Status.Terminal() && now.Sub(rt.sess.LastActivityAt) >= idleTimeout
		rt.mu.Unlock()
		if idle {
			candidates = append(candidates, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range candidates {
		if _, err := m.StopSession(ctx, id, "stopped by janitor: idle timeout"); err != nil {
			if errors.Is(err, session.ErrTerminalState) {
				continue
			}
			log.Printf("orchestrator: janitor stop session %s: %v", id, err)
		}
	}
}
