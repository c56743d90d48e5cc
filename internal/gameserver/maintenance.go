package gameserver

import (
	"time"

	"go.uber.org/zap"
)

// Maintenance periodically turns silent connections into disconnects and
// reaps sessions whose reconnect window has closed. It implements the
// server lifecycle Service interface.
type Maintenance struct {
	handler  *Handler
	interval time.Duration
	quit     chan struct{}
	done     chan struct{}
}

// NewMaintenance creates the liveness sweeper. The interval should be a
// fraction of the liveness window so a dead connection is noticed promptly.
//
// Precondition: handler must be non-nil; interval must be positive.
func NewMaintenance(handler *Handler, interval time.Duration) *Maintenance {
	return &Maintenance{
		handler:  handler,
		interval: interval,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (m *Maintenance) Start() error {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return nil
		case <-ticker.C:
			m.handler.sweep()
		}
	}
}

// Stop terminates the sweep loop and waits for it to exit.
func (m *Maintenance) Stop() {
	close(m.quit)
	<-m.done
}

// sweep runs one maintenance pass. A stale session's connection is closed;
// the handler's normal teardown then cancels its seek and notifies its
// game, so the disconnect path is the same whether the socket died or went
// silent.
func (h *Handler) sweep() {
	stale := h.sessions.SweepStale(h.cfg.LivenessWindow)
	for _, sess := range stale {
		h.mu.Lock()
		conn := h.conns[sess.ID]
		h.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	}

	reaped := h.sessions.ReapDisconnected(h.cfg.DisconnectGrace)
	if len(stale) > 0 || len(reaped) > 0 {
		h.logger.Info("maintenance sweep",
			zap.Int("stale", len(stale)),
			zap.Int("reaped", len(reaped)),
		)
	}
}
