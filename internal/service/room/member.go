package room

import (
	"crypto/subtle"

	"github.com/gorilla/websocket"
	"github.com/syncroom/server/internal/domain"
)

type member struct {
	id         string
	name       string
	permission domain.Permission
	conn       *websocket.Conn

	// barrier flags: whether this member still owes a loaded/finished
	// signal for the current source
	loading bool
	playing bool

	// timeCh receives this member's reply to an outstanding requestTime
	timeCh chan float64
}

func (r *Room) memberByConnLocked(conn *websocket.Conn) *member {
	for _, m := range r.members {
		if m.conn == conn {
			return m
		}
	}

	return nil
}

func (r *Room) memberByIdLocked(memberId string) *member {
	for _, m := range r.members {
		if m.id == memberId {
			return m
		}
	}

	return nil
}

// secretValidLocked compares the supplied secret against the room's host
// secret in constant time.
func (r *Room) secretValidLocked(secret string) bool {
	if secret == "" || r.hostSecret == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(secret), []byte(r.hostSecret)) == 1
}

// authorizeLocked resolves the acting member and decides whether the command
// may proceed. The host secret overrides any permission bits; a member
// holding the Host bit passes every check. On failure the command is
// dropped without an error reply.
func (r *Room) authorizeLocked(conn *websocket.Conn, secret string, required domain.Permission) (*member, bool) {
	m := r.memberByConnLocked(conn)

	if r.secretValidLocked(secret) {
		return m, true
	}

	if m == nil {
		return nil, false
	}

	if m.permission.Has(domain.PermissionHost) {
		return m, true
	}

	return m, m.permission.Has(required)
}
