package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/syncroom/server/internal/domain"
	"github.com/syncroom/server/internal/repository/connection"
	"github.com/syncroom/server/pkg/randstr"
)

var (
	ErrMembersLimitReached = errors.New("members limit reached")
	ErrRoomNotFound        = errors.New("room not found")
)

type iSender interface {
	Send(ctx context.Context, conn *websocket.Conn, msg *domain.Message) error
	Broadcast(ctx context.Context, conns []*websocket.Conn, msg *domain.Message) error
	Forget(conn *websocket.Conn)
}

type iResolver interface {
	Resolve(ctx context.Context, url string, startFrom float64) (*domain.MediaSource, error)
}

type iSegmentProvider interface {
	GetSegments(ctx context.Context, contentId string, categories []string) ([]domain.Segment, error)
}

type iConnRepo interface {
	Add(conn *websocket.Conn, session connection.Session) error
	GetByConn(conn *websocket.Conn) (connection.Session, error)
	RemoveByConn(conn *websocket.Conn) (connection.Session, error)
}

// Clock abstracts time.Now so playback-position math is testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Config struct {
	// MembersLimit caps members per room; zero means unlimited.
	MembersLimit int
	// QueueLimit caps pending queue entries per room; zero means unlimited.
	QueueLimit int
	// DefaultPermission is the bitset granted to non-host joiners.
	DefaultPermission domain.Permission
	// SegmentCategories is the full category list requested from the
	// segment metadata provider; rooms filter by their own blocked set.
	SegmentCategories []string
	// BlockedCategories is the initially enforced category set per room.
	BlockedCategories []string
	// TimeRequestTimeout bounds how long resync waits on each member.
	TimeRequestTimeout time.Duration
	// ResolveTimeout bounds a single content resolution.
	ResolveTimeout time.Duration
	// EmptyRoomTTL and CleanupInterval drive eviction of rooms that stayed
	// empty. CleanupInterval zero disables the worker.
	EmptyRoomTTL    time.Duration
	CleanupInterval time.Duration
}

type deps struct {
	sender    iSender
	resolver  iResolver
	segments  iSegmentProvider
	clock     Clock
	generator *randstr.Generator
	logger    *slog.Logger
	cfg       *Config
}

type service struct {
	rooms    map[string]*Room
	mu       sync.RWMutex
	connRepo iConnRepo
	deps     *deps
}

func NewService(sender iSender, resolver iResolver, segments iSegmentProvider, connRepo iConnRepo, cfg *Config, logger *slog.Logger) *service {
	if cfg.TimeRequestTimeout <= 0 {
		cfg.TimeRequestTimeout = 3 * time.Second
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 15 * time.Second
	}

	letterBytes := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

	s := &service{
		rooms:    make(map[string]*Room),
		connRepo: connRepo,
		deps: &deps{
			sender:    sender,
			resolver:  resolver,
			segments:  segments,
			clock:     realClock{},
			generator: randstr.New(letterBytes),
			logger:    logger,
			cfg:       cfg,
		},
	}

	if cfg.CleanupInterval > 0 {
		go s.cleanupLoop(cfg.CleanupInterval, cfg.EmptyRoomTTL)
	}

	return s
}

func (s *service) getOrCreateRoom(ctx context.Context, roomId string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomId]
	if !ok {
		s.deps.logger.InfoContext(ctx, "creating room", "room_id", roomId)
		r = newRoom(roomId, s.deps)
		s.rooms[roomId] = r
	}

	return r
}

func (s *service) getRoom(roomId string) *Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rooms[roomId]
}

// cleanupLoop evicts rooms that held zero members for longer than ttl.
func (s *service) cleanupLoop(interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		now := s.deps.clock.Now()

		s.mu.Lock()
		for id, r := range s.rooms {
			if emptySince, empty := r.emptySince(); empty && now.Sub(emptySince) >= ttl {
				r.close()
				delete(s.rooms, id)
				s.deps.logger.Info("evicted empty room", "room_id", id)
			}
		}
		s.mu.Unlock()
	}
}

type JoinRoomParams struct {
	Conn   *websocket.Conn
	RoomId string
	Name   string
}

// JoinRoom adds the connection to the room, creating the room on first join,
// and returns the full state snapshot for the reply.
func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (State, error) {
	// a connection participates in one room at a time
	if session, err := s.connRepo.RemoveByConn(params.Conn); err == nil {
		if prev := s.getRoom(session.RoomId); prev != nil {
			prev.Leave(ctx, params.Conn)
		}
	}

	r := s.getOrCreateRoom(ctx, params.RoomId)
	state, memberId, err := r.Join(ctx, params.Conn, params.Name)
	if err != nil {
		return State{}, err
	}

	if err := s.connRepo.Add(params.Conn, connection.Session{
		MemberId: memberId,
		RoomId:   params.RoomId,
	}); err != nil {
		s.deps.logger.InfoContext(ctx, "failed to track connection", "room_id", params.RoomId, "error", err)
	}

	return state, nil
}

func (s *service) LeaveRoom(ctx context.Context, conn *websocket.Conn, roomId string) {
	if _, err := s.connRepo.RemoveByConn(conn); err != nil && !errors.Is(err, connection.ErrNotFound) {
		s.deps.logger.InfoContext(ctx, "failed to remove connection", "error", err)
	}

	if r := s.getRoom(roomId); r != nil {
		r.Leave(ctx, conn)
	}
}

// Disconnect handles a dropped connection: the member leaves whatever room
// they were in and the sender forgets the connection.
func (s *service) Disconnect(ctx context.Context, conn *websocket.Conn) {
	defer s.deps.sender.Forget(conn)

	session, err := s.connRepo.RemoveByConn(conn)
	if err != nil {
		return
	}

	if r := s.getRoom(session.RoomId); r != nil {
		r.Leave(ctx, conn)
	}
}

type PlayContentParams struct {
	Conn      *websocket.Conn
	RoomId    string
	Source    string
	StartFrom float64
	Secret    string
}

func (s *service) PlayContent(ctx context.Context, params *PlayContentParams) {
	if r := s.getRoom(params.RoomId); r != nil {
		r.PlayContent(ctx, params.Conn, params.Source, params.StartFrom, params.Secret)
	}
}

func (s *service) Loaded(ctx context.Context, conn *websocket.Conn, roomId string) {
	if r := s.getRoom(roomId); r != nil {
		r.Loaded(ctx, conn)
	}
}

func (s *service) Finished(ctx context.Context, conn *websocket.Conn, roomId string) {
	if r := s.getRoom(roomId); r != nil {
		r.Finished(ctx, conn)
	}
}

type PauseParams struct {
	Conn    *websocket.Conn
	RoomId  string
	Seconds *float64
	Secret  string
}

func (s *service) Pause(ctx context.Context, params *PauseParams) {
	if r := s.getRoom(params.RoomId); r != nil {
		r.Pause(ctx, params.Conn, params.Seconds, params.Secret)
	}
}

func (s *service) Resume(ctx context.Context, conn *websocket.Conn, roomId, secret string) {
	if r := s.getRoom(roomId); r != nil {
		r.Resume(ctx, conn, secret)
	}
}

type SeekToParams struct {
	Conn    *websocket.Conn
	RoomId  string
	Seconds float64
	Secret  string
}

func (s *service) SeekTo(ctx context.Context, params *SeekToParams) {
	if r := s.getRoom(params.RoomId); r != nil {
		r.SeekTo(ctx, params.Conn, params.Seconds, params.Secret)
	}
}

func (s *service) Resync(ctx context.Context, conn *websocket.Conn, roomId string) {
	if r := s.getRoom(roomId); r != nil {
		r.Resync(ctx, conn)
	}
}

func (s *service) ReportTime(ctx context.Context, conn *websocket.Conn, roomId string, seconds float64) {
	if r := s.getRoom(roomId); r != nil {
		r.ReportTime(conn, seconds)
	}
}

type PlaybackErrorParams struct {
	Conn    *websocket.Conn
	RoomId  string
	Reason  string
	Seconds float64
}

func (s *service) PlaybackError(ctx context.Context, params *PlaybackErrorParams) {
	if r := s.getRoom(params.RoomId); r != nil {
		r.PlaybackError(ctx, params.Conn, params.Reason, params.Seconds)
	}
}

type PermissionParams struct {
	RoomId         string
	Secret         string
	MemberId       string
	Permission     domain.Permission
	ApplyToDefault bool
}

func (s *service) GrantPermission(ctx context.Context, params *PermissionParams) {
	if r := s.getRoom(params.RoomId); r != nil {
		r.GrantPermission(ctx, params.Secret, params.MemberId, params.Permission, params.ApplyToDefault)
	}
}

func (s *service) RevokePermission(ctx context.Context, params *PermissionParams) {
	if r := s.getRoom(params.RoomId); r != nil {
		r.RevokePermission(ctx, params.Secret, params.MemberId, params.Permission, params.ApplyToDefault)
	}
}

type QueueParams struct {
	Conn      *websocket.Conn
	RoomId    string
	Source    string
	StartFrom float64
	Secret    string
}

func (s *service) AddQueue(ctx context.Context, params *QueueParams) {
	if r := s.getRoom(params.RoomId); r != nil {
		r.AddQueue(ctx, params.Conn, params.Source, params.StartFrom, params.Secret)
	}
}

func (s *service) ClearQueue(ctx context.Context, conn *websocket.Conn, roomId, secret string) {
	if r := s.getRoom(roomId); r != nil {
		r.ClearQueue(ctx, conn, secret)
	}
}

type PlayQueuedParams struct {
	Conn   *websocket.Conn
	RoomId string
	Index  int
	Remove bool
	Secret string
}

func (s *service) PlayQueued(ctx context.Context, params *PlayQueuedParams) {
	if r := s.getRoom(params.RoomId); r != nil {
		r.PlayQueued(ctx, params.Conn, params.Index, params.Remove, params.Secret)
	}
}

func (s *service) SetLooping(ctx context.Context, conn *websocket.Conn, roomId string, looping bool, secret string) {
	if r := s.getRoom(roomId); r != nil {
		r.SetLooping(ctx, conn, looping, secret)
	}
}

func (s *service) ToggleBlocked(ctx context.Context, conn *websocket.Conn, roomId, category, secret string) {
	if r := s.getRoom(roomId); r != nil {
		r.ToggleBlocked(ctx, conn, category, secret)
	}
}

func (s *service) SetPlaybackSpeed(ctx context.Context, conn *websocket.Conn, roomId string, speed float64, secret string) {
	if r := s.getRoom(roomId); r != nil {
		r.SetPlaybackSpeed(ctx, conn, speed, secret)
	}
}

func (s *service) SendMessage(ctx context.Context, conn *websocket.Conn, roomId, text string) {
	if r := s.getRoom(roomId); r != nil {
		r.SendMessage(ctx, conn, text)
	}
}
