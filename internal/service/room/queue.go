package room

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/syncroom/server/internal/domain"
)

// queueItem starts resolving the moment it is enqueued; done is closed when
// resolution settles, so playing it later never re-resolves.
type queueItem struct {
	url       string
	startFrom float64
	done      chan struct{}

	// written once before done is closed
	source *domain.MediaSource
	err    error
}

func newQueueItem(url string, startFrom float64) *queueItem {
	return &queueItem{
		url:       url,
		startFrom: startFrom,
		done:      make(chan struct{}),
	}
}

// queue preserves submission order regardless of resolution order.
type queue struct {
	items []*queueItem
}

func (q *queue) len() int {
	return len(q.items)
}

func (q *queue) add(item *queueItem) {
	q.items = append(q.items, item)
}

func (q *queue) popFront() (*queueItem, bool) {
	return q.removeAt(0)
}

func (q *queue) removeAt(index int) (*queueItem, bool) {
	if index < 0 || index >= len(q.items) {
		return nil, false
	}

	item := q.items[index]
	q.items = append(q.items[:index], q.items[index+1:]...)

	return item, true
}

func (q *queue) contains(item *queueItem) bool {
	for _, it := range q.items {
		if it == item {
			return true
		}
	}

	return false
}

func (q *queue) clear() {
	q.items = nil
}

func (q *queue) snapshot() []QueueEntry {
	entries := make([]QueueEntry, 0, len(q.items))
	for _, item := range q.items {
		entry := QueueEntry{URL: item.url}
		select {
		case <-item.done:
			if item.err == nil {
				entry.Title = item.source.Title
				entry.Resolved = true
			}
		default:
		}
		entries = append(entries, entry)
	}

	return entries
}

// AddQueue enqueues a URL and kicks off its resolution in the background.
func (r *Room) AddQueue(ctx context.Context, conn *websocket.Conn, source string, startFrom float64, secret string) {
	r.mu.Lock()

	m, ok := r.authorizeLocked(conn, secret, domain.PermissionQueueControl)
	if !ok {
		r.log.DebugContext(ctx, "permission denied", "op", "queue")
		r.mu.Unlock()
		return
	}

	if limit := r.deps.cfg.QueueLimit; limit > 0 && r.queue.len() >= limit {
		r.log.InfoContext(ctx, "queue limit reached", "limit", limit)
		r.mu.Unlock()
		return
	}

	item := newQueueItem(source, startFrom)
	r.queue.add(item)

	r.notifyLocked(ctx, m, domain.EventQueue, &domain.NotificationDetail{Source: source})
	r.broadcastStateLocked(ctx)
	r.mu.Unlock()

	go r.resolveQueued(item)
}

func (r *Room) resolveQueued(item *queueItem) {
	ctx, cancel := context.WithTimeout(context.Background(), r.deps.cfg.ResolveTimeout)
	defer cancel()

	item.source, item.err = r.deps.resolver.Resolve(ctx, item.url, item.startFrom)
	close(item.done)

	r.mu.Lock()
	defer r.mu.Unlock()

	// refresh the resolved title for everyone, unless the entry is gone
	if r.queue.contains(item) {
		r.broadcastStateLocked(ctx)
	}
}

// PlayQueued pulls the entry at index out of the queue and either plays it
// or, with remove set, just discards it.
func (r *Room) PlayQueued(ctx context.Context, conn *websocket.Conn, index int, remove bool, secret string) {
	r.mu.Lock()

	m, ok := r.authorizeLocked(conn, secret, domain.PermissionQueueControl)
	if !ok {
		r.log.DebugContext(ctx, "permission denied", "op", "playQueued")
		r.mu.Unlock()
		return
	}

	item, found := r.queue.removeAt(index)
	if !found {
		r.log.InfoContext(ctx, "queue index out of range", "index", index)
		r.mu.Unlock()
		return
	}

	if remove {
		r.notifyLocked(ctx, m, domain.EventRemoveQueued, &domain.NotificationDetail{Index: &index})
		r.broadcastStateLocked(ctx)
		r.mu.Unlock()
		return
	}

	r.notifyLocked(ctx, m, domain.EventPlayQueued, &domain.NotificationDetail{Index: &index})
	r.resolveGen++
	gen := r.resolveGen
	r.broadcastStateLocked(ctx)
	r.mu.Unlock()

	go r.playQueueItem(gen, item)
}

func (r *Room) ClearQueue(ctx context.Context, conn *websocket.Conn, secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.authorizeLocked(conn, secret, domain.PermissionQueueControl)
	if !ok {
		r.log.DebugContext(ctx, "permission denied", "op", "clearQueue")
		return
	}
	if r.queue.len() == 0 {
		return
	}

	r.queue.clear()
	r.notifyLocked(ctx, m, domain.EventClearQueue, nil)
	r.broadcastStateLocked(ctx)
}
