package room

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/syncroom/server/internal/domain"
)

// ReportTime delivers one member's playback position to a pending time
// request. Unsolicited reports are dropped.
func (r *Room) ReportTime(conn *websocket.Conn, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.memberByConnLocked(conn)
	if m == nil || m.timeCh == nil {
		return
	}

	select {
	case m.timeCh <- seconds:
	default:
	}
}

// requestTimes asks every member except the requester for their current
// position and averages the replies. Each member gets its own timeout; a
// member that never answers just contributes nothing, and a member that
// leaves mid-poll unblocks its wait. Returns false when no sample arrived.
func (r *Room) requestTimes(ctx context.Context, requester *websocket.Conn) (float64, bool) {
	r.mu.Lock()

	polled := make([]*member, 0, len(r.members))
	chans := make([]chan float64, 0, len(r.members))
	for _, m := range r.members {
		if m.conn == requester {
			continue
		}
		m.timeCh = make(chan float64, 1)
		polled = append(polled, m)
		chans = append(chans, m.timeCh)
		r.sendLocked(ctx, m.conn, &domain.Message{Type: msgRequestTime})
	}
	r.mu.Unlock()

	timeout := r.deps.cfg.TimeRequestTimeout

	var sum float64
	var count int
	for _, ch := range chans {
		select {
		case seconds, ok := <-ch:
			if ok {
				sum += seconds
				count++
			}
		case <-time.After(timeout):
		case <-ctx.Done():
		}
	}

	r.mu.Lock()
	for _, m := range polled {
		m.timeCh = nil
	}
	r.mu.Unlock()

	if count == 0 {
		return 0, false
	}

	return sum / float64(count), true
}
