package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/syncroom/server/internal/repository/connection"
	"github.com/syncroom/server/internal/service/room"
	"github.com/syncroom/server/pkg/validator"
)

type iRoomService interface {
	JoinRoom(ctx context.Context, params *room.JoinRoomParams) (room.State, error)
	LeaveRoom(ctx context.Context, conn *websocket.Conn, roomId string)
	Disconnect(ctx context.Context, conn *websocket.Conn)
	PlayContent(ctx context.Context, params *room.PlayContentParams)
	Loaded(ctx context.Context, conn *websocket.Conn, roomId string)
	Finished(ctx context.Context, conn *websocket.Conn, roomId string)
	Pause(ctx context.Context, params *room.PauseParams)
	Resume(ctx context.Context, conn *websocket.Conn, roomId, secret string)
	SeekTo(ctx context.Context, params *room.SeekToParams)
	Resync(ctx context.Context, conn *websocket.Conn, roomId string)
	ReportTime(ctx context.Context, conn *websocket.Conn, roomId string, seconds float64)
	PlaybackError(ctx context.Context, params *room.PlaybackErrorParams)
	GrantPermission(ctx context.Context, params *room.PermissionParams)
	RevokePermission(ctx context.Context, params *room.PermissionParams)
	AddQueue(ctx context.Context, params *room.QueueParams)
	ClearQueue(ctx context.Context, conn *websocket.Conn, roomId, secret string)
	PlayQueued(ctx context.Context, params *room.PlayQueuedParams)
	SetLooping(ctx context.Context, conn *websocket.Conn, roomId string, looping bool, secret string)
	ToggleBlocked(ctx context.Context, conn *websocket.Conn, roomId, category, secret string)
	SetPlaybackSpeed(ctx context.Context, conn *websocket.Conn, roomId string, speed float64, secret string)
	SendMessage(ctx context.Context, conn *websocket.Conn, roomId, text string)
}

type iConnRepo interface {
	GetByConn(conn *websocket.Conn) (connection.Session, error)
}

// iSender shares the per-connection write lock with the room broadcast path.
type iSender interface {
	SendRaw(ctx context.Context, conn *websocket.Conn, v any) error
}

type controller struct {
	roomService iRoomService
	connRepo    iConnRepo
	sender      iSender
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	logger      *slog.Logger
}

func NewController(roomService iRoomService, connRepo iConnRepo, sender iSender, logger *slog.Logger) *controller {
	return &controller{
		roomService: roomService,
		connRepo:    connRepo,
		sender:      sender,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.NewValidator(),
		logger:   logger,
	}
}
