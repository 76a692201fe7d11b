package inmemory

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/syncroom/server/internal/repository/connection"
)

type repo struct {
	sessions map[*websocket.Conn]connection.Session
	conns    map[string]*websocket.Conn
	mu       sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		sessions: make(map[*websocket.Conn]connection.Session),
		conns:    make(map[string]*websocket.Conn),
	}
}

func (r *repo) Add(conn *websocket.Conn, session connection.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[conn]; ok {
		return connection.ErrAlreadyExists
	}

	r.sessions[conn] = session
	r.conns[session.MemberId] = conn

	return nil
}

func (r *repo) GetByConn(conn *websocket.Conn) (connection.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[conn]
	if !ok {
		return connection.Session{}, connection.ErrNotFound
	}

	return session, nil
}

func (r *repo) GetConn(memberId string) (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[memberId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) RemoveByConn(conn *websocket.Conn) (connection.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[conn]
	if !ok {
		return connection.Session{}, connection.ErrNotFound
	}

	delete(r.sessions, conn)
	delete(r.conns, session.MemberId)

	return session, nil
}
