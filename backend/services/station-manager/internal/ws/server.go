package ws

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP connections to WebSockets for dashboard clients.
type Server struct {
	ctx          context.Context
	manager      *Manager
	logger       *zap.Logger
	writeTimeout time.Duration
	pingInterval time.Duration
	nextID       atomic.Uint64
	upgrader     websocket.Upgrader
}

// NewServer builds ws server. Connections are closed when ctx is done.
func NewServer(ctx context.Context, manager *Manager, writeTimeout, pingInterval time.Duration, logger *zap.Logger) *Server {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Server{
		ctx:          ctx,
		manager:      manager,
		logger:       logger.Named("ws"),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is HTTP handler for /ws endpoint.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	connection := NewConnection(s.nextID.Add(1), conn, s.writeTimeout, s.pingInterval, s.logger, func(id uint64) {
		s.manager.Remove(id)
		cancel()
	})
	s.manager.Add(connection)

	go connection.Start(ctx)
	s.logger.Info("client connected", zap.Uint64("conn_id", connection.ID()), zap.String("remote", r.RemoteAddr))
}
