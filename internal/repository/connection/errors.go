package connection

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Session ties a live websocket connection to the member it represents and
// the room that member joined.
type Session struct {
	MemberId string
	RoomId   string
}
