package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stationmgr/backend/services/station-manager/internal/models"
)

// PollStats describes the health of the monitoring loop.
type PollStats struct {
	Cycles              uint64 `json:"cycles"`
	Failures            uint64 `json:"failures"`
	ConsecutiveFailures uint64 `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
}

// StartPolling launches the reconciliation loop. Calls after the first are no-ops. The
// loop runs one cycle every PollDelay, whatever the outcome, until ctx is cancelled.
func (m *Manager) StartPolling(ctx context.Context) {
	m.pollStarted.Do(func() {
		go m.pollLoop(ctx)
	})
}

func (m *Manager) pollLoop(ctx context.Context) {
	m.logger.Info("livestatus polling started", zap.Duration("delay", m.opts.PollDelay))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("livestatus polling stopped")
			return
		case <-timer.C:
		}

		m.pollCycle(ctx)
		timer.Reset(m.opts.PollDelay)
	}
}

func (m *Manager) pollCycle(ctx context.Context) {
	m.cycles.Add(1)

	err := m.PollOnce(ctx)
	if err == nil {
		if n := m.consecutive.Swap(0); n > 0 {
			m.logger.Info("livestatus polling recovered", zap.Uint64("failed_cycles", n))
		}
		return
	}

	m.failures.Add(1)
	n := m.consecutive.Add(1)
	if !m.opts.DigestAcrossCycles {
		n = 1
	}

	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()

	digest := uint64(m.opts.ErrorDigestSize)
	switch {
	case n == 1:
		m.logger.Warn("livestatus polling failed", zap.Error(err))
	case n%digest == 0:
		m.logger.Error("repeated livestatus polling errors", zap.Uint64("times", digest), zap.Error(err))
		m.mu.Lock()
		m.log.Append(models.LogWarning, nil, fmt.Sprintf("Repeated MKLivestatus polling errors (%d times)", digest))
		m.mu.Unlock()
		m.signalUpdate()
	}
}

// PollOnce queries the monitor and merges the rows into known stations. On failure no
// station is touched. One notification is emitted if any station changed.
func (m *Manager) PollOnce(ctx context.Context) error {
	rows, err := m.monitor.State(ctx)
	if err != nil {
		return err
	}

	changed := false
	m.mu.Lock()
	for _, row := range rows {
		if st, ok := m.index[row.ID]; ok && st.UpdateFromLivestatus(row) {
			changed = true
		}
	}
	m.lastDump = rows
	m.mu.Unlock()

	if changed {
		m.signalUpdate()
	}
	return nil
}

// PollStats returns counters of the reconciliation loop.
func (m *Manager) PollStats() PollStats {
	m.mu.Lock()
	lastErr := m.lastErr
	m.mu.Unlock()

	return PollStats{
		Cycles:              m.cycles.Load(),
		Failures:            m.failures.Load(),
		ConsecutiveFailures: m.consecutive.Load(),
		LastError:           lastErr,
	}
}
