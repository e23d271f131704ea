package inmemory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sharetube/watchsync/internal/repository/connection"
)

type repo struct {
	conns  map[string]connection.Sender
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		conns:  make(map[string]connection.Sender),
		logger: logger,
	}
}

func (r *repo) Add(ctx context.Context, connectionId string, conn connection.Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.DebugContext(ctx, "called", "connection_id", connectionId)
	if _, ok := r.conns[connectionId]; ok {
		return connection.ErrAlreadyExists
	}

	r.conns[connectionId] = conn
	return nil
}

// Remove forgets the connection and returns it so the caller decides whether to close it.
func (r *repo) Remove(ctx context.Context, connectionId string) (connection.Sender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.DebugContext(ctx, "called", "connection_id", connectionId)
	conn, ok := r.conns[connectionId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	delete(r.conns, connectionId)
	return conn, nil
}

func (r *repo) GetConn(connectionId string) (connection.Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connectionId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// CloseAll closes and forgets every connection. Used on shutdown; hijacked
// websocket connections are not tracked by http.Server.
func (r *repo) CloseAll(ctx context.Context) {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]connection.Sender)
	r.mu.Unlock()

	for connectionId, conn := range conns {
		if err := conn.Close(); err != nil {
			r.logger.DebugContext(ctx, "failed to close connection", "connection_id", connectionId, "error", err)
		}
	}
}
