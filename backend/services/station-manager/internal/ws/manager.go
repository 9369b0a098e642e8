package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"stationmgr/backend/services/station-manager/internal/notify"
)

// UpdateMessage is pushed to clients whenever station data changed.
type UpdateMessage struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
}

// Manager tracks dashboard connections and fans hub events out to them.
type Manager struct {
	mu          sync.RWMutex
	connections map[uint64]*Connection
	logger      *zap.Logger
}

// NewManager builds connection manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		connections: make(map[uint64]*Connection),
		logger:      logger.Named("ws"),
	}
}

// Add registers new connection.
func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID()] = conn
}

// Remove removes connection.
func (m *Manager) Remove(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, id)
}

// Count returns the number of connected clients.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Broadcast sends msg to every connection without blocking.
func (m *Manager) Broadcast(msg []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.connections {
		conn.Send(msg)
	}
}

// Run forwards hub events to all clients until ctx is done or the subscription closes.
func (m *Manager) Run(ctx context.Context, sub *notify.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			msg, err := json.Marshal(UpdateMessage{Type: "stationUpdate", Seq: ev.Seq})
			if err != nil {
				m.logger.Error("failed to encode update", zap.Error(err))
				continue
			}
			m.Broadcast(msg)
		}
	}
}
