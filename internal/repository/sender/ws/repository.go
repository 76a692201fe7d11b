// Package ws sends outbound messages over gorilla websocket connections.
// Gorilla allows only one concurrent writer per connection, so every
// connection gets its own write lock.
package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/syncroom/server/internal/domain"
)

type Repo struct {
	locks  map[*websocket.Conn]*sync.Mutex
	mu     sync.Mutex
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *Repo {
	return &Repo{
		locks:  make(map[*websocket.Conn]*sync.Mutex),
		logger: logger,
	}
}

func (r *Repo) lockFor(conn *websocket.Conn) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[conn]
	if !ok {
		l = &sync.Mutex{}
		r.locks[conn] = l
	}

	return l
}

func (r *Repo) Send(ctx context.Context, conn *websocket.Conn, msg *domain.Message) error {
	return r.SendRaw(ctx, conn, msg)
}

// SendRaw writes an arbitrary value under the connection's write lock. It
// exists for callers outside the room protocol, like router error replies.
func (r *Repo) SendRaw(ctx context.Context, conn *websocket.Conn, v any) error {
	l := r.lockFor(conn)
	l.Lock()
	defer l.Unlock()

	return conn.WriteJSON(v)
}

// Broadcast delivers msg to every conn. A failing connection is logged and
// skipped so one dead peer cannot block the rest of the room.
func (r *Repo) Broadcast(ctx context.Context, conns []*websocket.Conn, msg *domain.Message) error {
	for _, conn := range conns {
		if err := r.Send(ctx, conn, msg); err != nil {
			r.logger.InfoContext(ctx, "failed to send message", "type", msg.Type, "error", err)
		}
	}

	return nil
}

// Forget drops the write lock of a closed connection.
func (r *Repo) Forget(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.locks, conn)
}
