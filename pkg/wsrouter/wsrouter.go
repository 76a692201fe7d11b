package wsrouter

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error

type Middleware func(next HandlerFunc) HandlerFunc

// ReplyFunc writes a value back to the connection. Callers that write to the
// same connection from other goroutines must pass a ReplyFunc sharing their
// write synchronization; gorilla/websocket allows only one concurrent writer.
type ReplyFunc func(ctx context.Context, conn *websocket.Conn, v any) error

type WSRouter struct {
	routes      map[string]HandlerFunc
	middlewares []Middleware
	reply       ReplyFunc
}

func New(reply ReplyFunc) *WSRouter {
	if reply == nil {
		reply = func(_ context.Context, conn *websocket.Conn, v any) error {
			return conn.WriteJSON(v)
		}
	}
	return &WSRouter{routes: make(map[string]HandlerFunc), reply: reply}
}

func (r *WSRouter) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *WSRouter) Handle(messageType string, handler HandlerFunc) {
	r.routes[messageType] = handler
}

// ServeConn reads messages from conn until a read error and dispatches each
// to its registered handler. Handler errors are reported back to the sender
// on the connection; they do not terminate the loop.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		handler, exists := r.routes[msg.Type]
		if !exists {
			r.reply(ctx, conn, map[string]string{"error": "unknown message type"})
			continue
		}

		for i := len(r.middlewares) - 1; i >= 0; i-- {
			handler = r.middlewares[i](handler)
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)
		if err := handler(msgCtx, conn, msg.Payload); err != nil {
			r.reply(msgCtx, conn, map[string]string{"error": err.Error()})
		}
	}
}
