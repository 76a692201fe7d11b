package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/syncroom/server/internal/domain"
	"github.com/syncroom/server/internal/service/room"
	"github.com/syncroom/server/pkg/ctxlogger"
	"github.com/syncroom/server/pkg/wsrouter"
)

var errNotInRoom = errors.New("not in a room")

func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(ctx, "failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()
	defer c.roomService.Disconnect(ctx, conn)

	if err := c.getWSRouter().ServeConn(ctx, conn); err != nil {
		c.logger.DebugContext(ctx, "connection closed", "error", err)
	}
}

// sessionMw resolves the connection's room session into the context so
// handlers never carry room ids over the wire.
func (c controller) sessionMw(next wsrouter.HandlerFunc) wsrouter.HandlerFunc {
	return func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
		if session, err := c.connRepo.GetByConn(conn); err == nil {
			ctx = context.WithValue(ctx, roomIdCtxKey, session.RoomId)
			ctx = context.WithValue(ctx, memberIdCtxKey, session.MemberId)
			ctx = ctxlogger.AppendCtx(ctx, slog.String("room_id", session.RoomId))
			ctx = ctxlogger.AppendCtx(ctx, slog.String("member_id", session.MemberId))
		}

		return next(ctx, conn, payload)
	}
}

func decode[T any](c controller, payload json.RawMessage, input *T) error {
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, input); err != nil {
			return fmt.Errorf("malformed payload: %w", err)
		}
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("validation error: %v", validationErrors)
	}

	return nil
}

func (c controller) roomIdFromCtx(ctx context.Context) (string, error) {
	roomId := c.getRoomIdFromCtx(ctx)
	if roomId == "" {
		return "", errNotInRoom
	}

	return roomId, nil
}

type JoinRoomInput struct {
	RoomId string `json:"room_id" validate:"required,min=1,max=64"`
	Name   string `json:"name" validate:"required,min=1,max=32"`
}

func (c controller) handleJoinRoom(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input JoinRoomInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	state, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		Conn:   conn,
		RoomId: input.RoomId,
		Name:   input.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	// the joiner gets the room snapshot as a direct reply
	if err := c.sender.SendRaw(ctx, conn, &domain.Message{Type: "state", Payload: state}); err != nil {
		return fmt.Errorf("failed to send join reply: %w", err)
	}

	return nil
}

func (c controller) handleLeaveRoom(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	c.roomService.LeaveRoom(ctx, conn, roomId)

	return nil
}

type PlayContentInput struct {
	Source    string  `json:"source" validate:"required,url"`
	StartFrom float64 `json:"start_from" validate:"gte=0"`
	Secret    string  `json:"secret"`
}

func (c controller) handlePlayContent(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input PlayContentInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.PlayContent(ctx, &room.PlayContentParams{
		Conn:      conn,
		RoomId:    roomId,
		Source:    input.Source,
		StartFrom: input.StartFrom,
		Secret:    input.Secret,
	})

	return nil
}

type QueueInput struct {
	Source    string  `json:"source" validate:"required,url"`
	StartFrom float64 `json:"start_from" validate:"gte=0"`
	Secret    string  `json:"secret"`
}

func (c controller) handleQueue(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input QueueInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.AddQueue(ctx, &room.QueueParams{
		Conn:      conn,
		RoomId:    roomId,
		Source:    input.Source,
		StartFrom: input.StartFrom,
		Secret:    input.Secret,
	})

	return nil
}

type SecretInput struct {
	Secret string `json:"secret"`
}

func (c controller) handleClearQueue(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input SecretInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.ClearQueue(ctx, conn, roomId, input.Secret)

	return nil
}

type PlayQueuedInput struct {
	Index  int    `json:"index" validate:"gte=0"`
	Secret string `json:"secret"`
}

func (c controller) handlePlayQueued(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input PlayQueuedInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.PlayQueued(ctx, &room.PlayQueuedParams{
		Conn:   conn,
		RoomId: roomId,
		Index:  input.Index,
		Remove: false,
		Secret: input.Secret,
	})

	return nil
}

func (c controller) handleRemoveQueued(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input PlayQueuedInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.PlayQueued(ctx, &room.PlayQueuedParams{
		Conn:   conn,
		RoomId: roomId,
		Index:  input.Index,
		Remove: true,
		Secret: input.Secret,
	})

	return nil
}

func (c controller) handleLoaded(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	c.roomService.Loaded(ctx, conn, roomId)

	return nil
}

func (c controller) handleFinished(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	c.roomService.Finished(ctx, conn, roomId)

	return nil
}

type PauseInput struct {
	Seconds *float64 `json:"seconds"`
	Secret  string   `json:"secret"`
}

func (c controller) handlePause(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input PauseInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.Pause(ctx, &room.PauseParams{
		Conn:    conn,
		RoomId:  roomId,
		Seconds: input.Seconds,
		Secret:  input.Secret,
	})

	return nil
}

func (c controller) handleResume(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input SecretInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.Resume(ctx, conn, roomId, input.Secret)

	return nil
}

type SeekToInput struct {
	Seconds float64 `json:"seconds" validate:"gte=0"`
	Secret  string  `json:"secret"`
}

func (c controller) handleSeekTo(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input SeekToInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.SeekTo(ctx, &room.SeekToParams{
		Conn:    conn,
		RoomId:  roomId,
		Seconds: input.Seconds,
		Secret:  input.Secret,
	})

	return nil
}

func (c controller) handleResync(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	c.roomService.Resync(ctx, conn, roomId)

	return nil
}

type ReportTimeInput struct {
	Seconds float64 `json:"seconds" validate:"gte=0"`
}

func (c controller) handleReportTime(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input ReportTimeInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.ReportTime(ctx, conn, roomId, input.Seconds)

	return nil
}

type PlaybackErrorInput struct {
	Reason  string  `json:"reason" validate:"max=256"`
	Seconds float64 `json:"seconds" validate:"gte=0"`
}

func (c controller) handlePlaybackError(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input PlaybackErrorInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.PlaybackError(ctx, &room.PlaybackErrorParams{
		Conn:    conn,
		RoomId:  roomId,
		Reason:  input.Reason,
		Seconds: input.Seconds,
	})

	return nil
}

type PermissionInput struct {
	MemberId       string            `json:"member_id" validate:"required"`
	Permission     domain.Permission `json:"permission"`
	ApplyToDefault bool              `json:"apply_to_default"`
	Secret         string            `json:"secret" validate:"required"`
}

func (c controller) handleGivePermission(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input PermissionInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.GrantPermission(ctx, &room.PermissionParams{
		RoomId:         roomId,
		Secret:         input.Secret,
		MemberId:       input.MemberId,
		Permission:     input.Permission,
		ApplyToDefault: input.ApplyToDefault,
	})

	return nil
}

func (c controller) handleRemovePermission(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input PermissionInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.RevokePermission(ctx, &room.PermissionParams{
		RoomId:         roomId,
		Secret:         input.Secret,
		MemberId:       input.MemberId,
		Permission:     input.Permission,
		ApplyToDefault: input.ApplyToDefault,
	})

	return nil
}

type LoopInput struct {
	Looping bool   `json:"looping"`
	Secret  string `json:"secret"`
}

func (c controller) handleLoop(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input LoopInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.SetLooping(ctx, conn, roomId, input.Looping, input.Secret)

	return nil
}

type BlockedToggleInput struct {
	Category string `json:"category" validate:"required,max=64"`
	Secret   string `json:"secret"`
}

func (c controller) handleBlockedToggle(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input BlockedToggleInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.ToggleBlocked(ctx, conn, roomId, input.Category, input.Secret)

	return nil
}

type ChangePlaybackSpeedInput struct {
	Speed  float64 `json:"speed" validate:"gt=0"`
	Secret string  `json:"secret"`
}

func (c controller) handleChangePlaybackSpeed(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input ChangePlaybackSpeedInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.SetPlaybackSpeed(ctx, conn, roomId, input.Speed, input.Secret)

	return nil
}

type MessageInput struct {
	Text string `json:"text" validate:"required,min=1,max=1000"`
}

func (c controller) handleMessage(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	roomId, err := c.roomIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var input MessageInput
	if err := decode(c, payload, &input); err != nil {
		return err
	}

	c.roomService.SendMessage(ctx, conn, roomId, input.Text)

	return nil
}
