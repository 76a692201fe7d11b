package room

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/syncroom/server/internal/domain"
)

const secretLength = 32

// Room is an isolated playback session. All state mutations are serialized
// by the room mutex; asynchronous work (content resolution, segment
// metadata, time fan-out) never holds the lock while awaiting and
// re-validates loadGen before applying its result, because the room may
// have moved on in the meantime.
type Room struct {
	id string
	mu sync.Mutex

	paused        bool
	lastSeekedTo  float64
	resumedAt     time.Time
	playbackSpeed float64
	looping       bool
	source        *domain.MediaSource

	members        []*member
	membersLoading int
	membersPlaying int

	defaultPermission domain.Permission
	hostSecret        string

	queue             queue
	blockedCategories map[string]bool

	segmentTimers []*time.Timer
	// segGen invalidates timers armed before the latest reschedule,
	// loadGen invalidates async results targeting a replaced source,
	// resolveGen invalidates in-flight resolutions a newer load superseded
	segGen     uint64
	loadGen    uint64
	resolveGen uint64

	lastEmptyAt time.Time

	deps *deps
	log  *slog.Logger
}

func newRoom(id string, d *deps) *Room {
	blocked := make(map[string]bool, len(d.cfg.BlockedCategories))
	for _, c := range d.cfg.BlockedCategories {
		blocked[c] = true
	}

	return &Room{
		id:                id,
		paused:            true,
		playbackSpeed:     1,
		defaultPermission: d.cfg.DefaultPermission,
		blockedCategories: blocked,
		lastEmptyAt:       d.clock.Now(),
		deps:              d,
		log:               d.logger.With("room_id", id),
	}
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.members)
}

func (r *Room) emptySince() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) > 0 {
		return time.Time{}, false
	}

	return r.lastEmptyAt, true
}

func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelSegmentTimersLocked()
}

// Join appends the member and returns the state snapshot for the reply. The
// first joiner becomes host and receives a freshly generated secret,
// delivered only to them.
func (r *Room) Join(ctx context.Context, conn *websocket.Conn, name string) (State, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit := r.deps.cfg.MembersLimit; limit > 0 && len(r.members) >= limit {
		return State{}, "", ErrMembersLimitReached
	}

	perm := r.defaultPermission
	first := len(r.members) == 0
	if first {
		perm |= domain.PermissionHost
	}

	m := &member{
		id:         uuid.NewString(),
		name:       name,
		permission: perm,
		conn:       conn,
	}
	r.members = append(r.members, m)

	if first {
		r.hostSecret = r.deps.generator.GenerateRandomString(secretLength)
		r.sendLocked(ctx, conn, &domain.Message{Type: msgSecret, Payload: r.hostSecret})
	}

	r.notifyLocked(ctx, m, domain.EventJoin, nil)
	r.broadcastStateLocked(ctx)

	return r.stateLocked(), m.id, nil
}

// Leave removes the member. A host leaving hands the room to the first
// remaining member with a new secret; the last member leaving forces the
// room paused. Leaving a room one is not in is a no-op.
func (r *Room) Leave(ctx context.Context, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, m := range r.members {
		if m.conn == conn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	m := r.members[idx]
	r.members = append(r.members[:idx], r.members[idx+1:]...)

	r.notifyLocked(ctx, m, domain.EventLeave, nil)

	if m.timeCh != nil {
		// unblocks a time poll still waiting on the leaver
		close(m.timeCh)
		m.timeCh = nil
	}

	if m.loading {
		r.membersLoading--
		// the leaver was blocking the readiness barrier
		if r.membersLoading <= 0 && r.source != nil && r.paused {
			r.resumeLocked(ctx)
		}
	}
	if m.playing {
		r.membersPlaying--
		// the leaver was the last member still owing a finished signal
		if r.membersPlaying <= 0 && r.source != nil && len(r.members) > 0 {
			r.advanceLocked(ctx)
		}
	}

	if len(r.members) == 0 {
		r.paused = true
		r.cancelSegmentTimersLocked()
		r.hostSecret = ""
		r.lastEmptyAt = r.deps.clock.Now()
		return
	}

	if m.permission.Has(domain.PermissionHost) {
		successor := r.members[0]
		successor.permission |= domain.PermissionHost
		r.hostSecret = r.deps.generator.GenerateRandomString(secretLength)
		r.sendLocked(ctx, successor.conn, &domain.Message{Type: msgSecret, Payload: r.hostSecret})
	}

	r.broadcastStateLocked(ctx)
}

// PlayContent resolves the submitted URL off the critical path and applies
// the result once resolution finishes.
func (r *Room) PlayContent(ctx context.Context, conn *websocket.Conn, source string, startFrom float64, secret string) {
	r.mu.Lock()
	m, ok := r.authorizeLocked(conn, secret, domain.PermissionQueueControl)
	if !ok {
		r.log.DebugContext(ctx, "permission denied", "op", "playContent")
		r.mu.Unlock()
		return
	}

	r.notifyLocked(ctx, m, domain.EventPlayContent, &domain.NotificationDetail{
		Source:  source,
		Seconds: &startFrom,
	})
	r.resolveGen++
	gen := r.resolveGen
	r.mu.Unlock()

	go r.resolveAndPlay(gen, source, startFrom)
}

func (r *Room) resolveAndPlay(gen uint64, url string, startFrom float64) {
	ctx, cancel := context.WithTimeout(context.Background(), r.deps.cfg.ResolveTimeout)
	defer cancel()

	source, err := r.deps.resolver.Resolve(ctx, url, startFrom)
	if err != nil {
		r.log.InfoContext(ctx, "content resolution failed", "url", url, "error", err)
		r.applySource(ctx, gen, nil, 0)
		return
	}

	r.applySource(ctx, gen, source, startFrom)
}

// applySource is the re-entry point for resolution results. A result whose
// generation was superseded by a newer load request is dropped, including
// its failure branch.
func (r *Room) applySource(ctx context.Context, gen uint64, source *domain.MediaSource, startFrom float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.resolveGen {
		r.log.DebugContext(ctx, "stale resolution discarded", "room_id", r.id)
		return
	}
	r.applySourceLocked(ctx, source, startFrom)
}

func (r *Room) applySourceLocked(ctx context.Context, source *domain.MediaSource, startFrom float64) {
	if source != nil && r.source != nil && source.ContentId == r.source.ContentId {
		// re-submitting the currently loaded content is a plain seek and
		// resume, never a reload
		r.seekLocked(ctx, startFrom)
		r.resumeLocked(ctx)
		return
	}

	r.loadGen++
	r.cancelSegmentTimersLocked()
	r.source = source
	r.paused = true

	if source == nil {
		r.lastSeekedTo = 0
		r.membersLoading = 0
		r.membersPlaying = 0
		for _, m := range r.members {
			m.loading, m.playing = false, false
		}
		r.broadcastLocked(ctx, &domain.Message{Type: msgSource})
		r.broadcastStateLocked(ctx)
		return
	}

	r.lastSeekedTo = startFrom
	r.membersLoading = len(r.members)
	r.membersPlaying = len(r.members)
	for _, m := range r.members {
		m.loading, m.playing = true, true
	}

	r.broadcastLocked(ctx, &domain.Message{Type: msgSource, Payload: source})
	r.broadcastStateLocked(ctx)

	if source.Platform == domain.PlatformYouTube && len(source.Segments) == 0 {
		go r.fetchSegments(r.loadGen, source.ContentId)
	}
}

// fetchSegments requests skip-segment metadata off the critical path and
// merges it into the live source only if the source is still current.
func (r *Room) fetchSegments(gen uint64, contentId string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.deps.cfg.ResolveTimeout)
	defer cancel()

	segments, err := r.deps.segments.GetSegments(ctx, contentId, r.deps.cfg.SegmentCategories)
	if err != nil {
		r.log.InfoContext(ctx, "segment fetch failed", "content_id", contentId, "error", err)
		return
	}
	if len(segments) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadGen != gen || r.source == nil || r.source.ContentId != contentId {
		// the room moved on while the fetch was in flight
		return
	}

	r.source.Segments = segments

	if !r.paused {
		pos := r.positionLocked()
		if corrected := r.skipForwardLocked(pos); corrected != pos {
			r.seekLocked(ctx, corrected)
			return
		}
	}

	r.rescheduleSegmentsLocked()
}

// Loaded is the readiness barrier: once every member signaled readiness for
// the newly loaded source, playback resumes for the whole room.
func (r *Room) Loaded(ctx context.Context, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.memberByConnLocked(conn)
	if m == nil || !m.loading {
		return
	}

	m.loading = false
	r.membersLoading--

	if r.membersLoading <= 0 && r.source != nil {
		r.resumeLocked(ctx)
	}

	r.broadcastStateLocked(ctx)
}

// Finished counts down end-of-content signals; once every member finished,
// the room loops, advances the queue, or goes idle.
func (r *Room) Finished(ctx context.Context, conn *websocket.Conn) {
	r.mu.Lock()

	m := r.memberByConnLocked(conn)
	if m == nil || !m.playing {
		r.mu.Unlock()
		return
	}

	m.playing = false
	r.membersPlaying--

	if r.membersPlaying > 0 {
		r.mu.Unlock()
		return
	}

	r.advanceLocked(ctx)
	r.mu.Unlock()
}

// advanceLocked moves the room past end-of-content: loop the current source,
// play the next queued entry, or go idle.
func (r *Room) advanceLocked(ctx context.Context) {
	if r.looping && r.source != nil {
		r.membersPlaying = len(r.members)
		for _, m := range r.members {
			m.playing = true
		}
		r.seekLocked(ctx, 0)
		r.resumeLocked(ctx)
		return
	}

	item, ok := r.queue.popFront()
	if !ok {
		r.applySourceLocked(ctx, nil, 0)
		return
	}

	r.resolveGen++
	r.broadcastStateLocked(ctx)

	go r.playQueueItem(r.resolveGen, item)
}

func (r *Room) playQueueItem(gen uint64, item *queueItem) {
	<-item.done

	ctx := context.Background()
	if item.err != nil {
		r.log.InfoContext(ctx, "queued content resolution failed", "url", item.url, "error", item.err)
		r.applySource(ctx, gen, nil, 0)
		return
	}

	r.applySource(ctx, gen, item.source, item.source.StartFrom)
}

func (r *Room) Pause(ctx context.Context, conn *websocket.Conn, seconds *float64, secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.authorizeLocked(conn, secret, domain.PermissionPlaybackControl)
	if !ok {
		r.log.DebugContext(ctx, "permission denied", "op", "pause")
		return
	}

	r.notifyLocked(ctx, m, domain.EventPause, nil)
	r.pauseLocked(ctx)
	if seconds != nil {
		r.seekLocked(ctx, *seconds)
	}
}

func (r *Room) Resume(ctx context.Context, conn *websocket.Conn, secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.authorizeLocked(conn, secret, domain.PermissionPlaybackControl)
	if !ok {
		r.log.DebugContext(ctx, "permission denied", "op", "resume")
		return
	}

	r.notifyLocked(ctx, m, domain.EventResume, nil)
	r.resumeLocked(ctx)
}

func (r *Room) SeekTo(ctx context.Context, conn *websocket.Conn, seconds float64, secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.authorizeLocked(conn, secret, domain.PermissionPlaybackControl)
	if !ok {
		r.log.DebugContext(ctx, "permission denied", "op", "seekTo")
		return
	}

	r.notifyLocked(ctx, m, domain.EventSeekTo, &domain.NotificationDetail{Seconds: &seconds})
	r.seekLocked(ctx, seconds)
}

// Resync is the explicit drift-correction path: pause, estimate the
// consensus position from the other members, seek there, resume. With no
// usable samples the seek is skipped rather than jumping to zero.
func (r *Room) Resync(ctx context.Context, conn *websocket.Conn) {
	r.mu.Lock()
	m := r.memberByConnLocked(conn)
	if m == nil {
		r.mu.Unlock()
		return
	}

	r.notifyLocked(ctx, m, domain.EventResync, nil)
	r.pauseLocked(ctx)
	r.mu.Unlock()

	estimate, ok := r.requestTimes(ctx, conn)

	r.mu.Lock()
	defer r.mu.Unlock()

	if ok {
		r.seekLocked(ctx, estimate)
	}
	r.resumeLocked(ctx)
}

// PlaybackError pauses the room and pulls everyone to the reported position
// as a safety fallback when one client fails locally.
func (r *Room) PlaybackError(ctx context.Context, conn *websocket.Conn, reason string, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.memberByConnLocked(conn)
	if m == nil {
		return
	}

	r.notifyLocked(ctx, m, domain.EventPlaybackError, &domain.NotificationDetail{
		Reason:  reason,
		Seconds: &seconds,
	})
	r.pauseLocked(ctx)
	r.seekLocked(ctx, seconds)
}

// GrantPermission sets bit on the target member and optionally on the
// room's default set. Host-secret gated; granting an already-held bit is a
// no-op. The Host bit itself only moves via host promotion.
func (r *Room) GrantPermission(ctx context.Context, secret, memberId string, permission domain.Permission, applyToDefault bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.secretValidLocked(secret) {
		r.log.DebugContext(ctx, "permission denied", "op", "grantPermission")
		return
	}

	permission &^= domain.PermissionHost

	changed := false
	if applyToDefault && !r.defaultPermission.Has(permission) {
		r.defaultPermission |= permission
		changed = true
	}

	m := r.memberByIdLocked(memberId)
	if m == nil && memberId != "" {
		r.log.InfoContext(ctx, "grant target not found", "member_id", memberId)
	}
	if m != nil && !m.permission.Has(permission) {
		m.permission |= permission
		changed = true
	}

	if !changed {
		return
	}

	r.notifyLocked(ctx, m, domain.EventPermission, &domain.NotificationDetail{
		TargetId:   memberId,
		Permission: &permission,
	})
	r.broadcastStateLocked(ctx)
}

func (r *Room) RevokePermission(ctx context.Context, secret, memberId string, permission domain.Permission, applyToDefault bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.secretValidLocked(secret) {
		r.log.DebugContext(ctx, "permission denied", "op", "revokePermission")
		return
	}

	permission &^= domain.PermissionHost

	changed := false
	if applyToDefault && r.defaultPermission&permission != 0 {
		r.defaultPermission &^= permission
		changed = true
	}

	m := r.memberByIdLocked(memberId)
	if m == nil && memberId != "" {
		r.log.InfoContext(ctx, "revoke target not found", "member_id", memberId)
	}
	if m != nil && m.permission&permission != 0 {
		m.permission &^= permission
		changed = true
	}

	if !changed {
		return
	}

	r.notifyLocked(ctx, m, domain.EventPermission, &domain.NotificationDetail{
		TargetId:   memberId,
		Permission: &permission,
	})
	r.broadcastStateLocked(ctx)
}

func (r *Room) SetLooping(ctx context.Context, conn *websocket.Conn, looping bool, secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.authorizeLocked(conn, secret, domain.PermissionPlaybackControl)
	if !ok {
		r.log.DebugContext(ctx, "permission denied", "op", "loop")
		return
	}
	if r.looping == looping {
		return
	}

	r.looping = looping
	r.notifyLocked(ctx, m, domain.EventLoop, &domain.NotificationDetail{Looping: &looping})
	r.broadcastStateLocked(ctx)
}

// ToggleBlocked flips enforcement of a segment category. Newly blocking a
// category the playhead currently sits in skips forward immediately.
func (r *Room) ToggleBlocked(ctx context.Context, conn *websocket.Conn, category, secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.authorizeLocked(conn, secret, domain.PermissionPlaybackControl)
	if !ok {
		r.log.DebugContext(ctx, "permission denied", "op", "blockedToggle")
		return
	}

	r.blockedCategories[category] = !r.blockedCategories[category]

	r.notifyLocked(ctx, m, domain.EventBlocked, &domain.NotificationDetail{Category: category})
	r.broadcastStateLocked(ctx)

	if r.paused {
		return
	}

	pos := r.positionLocked()
	if corrected := r.skipForwardLocked(pos); corrected != pos {
		r.seekLocked(ctx, corrected)
		return
	}

	r.rescheduleSegmentsLocked()
}

func (r *Room) SetPlaybackSpeed(ctx context.Context, conn *websocket.Conn, speed float64, secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if speed <= 0 {
		return
	}

	m, ok := r.authorizeLocked(conn, secret, domain.PermissionPlaybackControl)
	if !ok {
		r.log.DebugContext(ctx, "permission denied", "op", "changePlaybackSpeed")
		return
	}

	// commit the current estimated position so timer math stays anchored
	if !r.paused {
		r.lastSeekedTo = r.positionLocked()
		r.resumedAt = r.deps.clock.Now()
	}
	r.playbackSpeed = speed

	r.rescheduleSegmentsLocked()
	r.notifyLocked(ctx, m, domain.EventSpeed, &domain.NotificationDetail{Speed: &speed})
	r.broadcastStateLocked(ctx)
}

func (r *Room) SendMessage(ctx context.Context, conn *websocket.Conn, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.memberByConnLocked(conn)
	if m == nil {
		return
	}

	r.broadcastLocked(ctx, &domain.Message{Type: msgMessage, Payload: domain.ChatMessage{
		MemberId: m.id,
		Name:     m.name,
		Text:     text,
	}})
}

// State returns the current snapshot; exposed for tests and the join reply.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stateLocked()
}

// internal helpers, lock held

func (r *Room) pauseLocked(ctx context.Context) {
	r.paused = true
	r.cancelSegmentTimersLocked()
	r.broadcastLocked(ctx, &domain.Message{Type: msgPause})
}

func (r *Room) resumeLocked(ctx context.Context) {
	r.paused = false
	r.resumedAt = r.deps.clock.Now()
	r.rescheduleSegmentsLocked()
	r.broadcastLocked(ctx, &domain.Message{Type: msgResume})
}

// seekLocked commits and broadcasts a seek. The target is corrected through
// the segment scheduler first so clients never observably land inside a
// blocked segment.
func (r *Room) seekLocked(ctx context.Context, seconds float64) {
	corrected := r.skipForwardLocked(seconds)

	r.lastSeekedTo = corrected
	r.resumedAt = r.deps.clock.Now()
	r.rescheduleSegmentsLocked()

	r.broadcastLocked(ctx, &domain.Message{Type: msgSeekTo, Payload: corrected})
}

// positionLocked estimates the current playback position.
func (r *Room) positionLocked() float64 {
	if r.paused {
		return r.lastSeekedTo
	}

	return r.lastSeekedTo + r.deps.clock.Now().Sub(r.resumedAt).Seconds()*r.playbackSpeed
}

func (r *Room) connsLocked() []*websocket.Conn {
	conns := make([]*websocket.Conn, 0, len(r.members))
	for _, m := range r.members {
		conns = append(conns, m.conn)
	}

	return conns
}

func (r *Room) sendLocked(ctx context.Context, conn *websocket.Conn, msg *domain.Message) {
	if err := r.deps.sender.Send(ctx, conn, msg); err != nil {
		r.log.InfoContext(ctx, "failed to send message", "type", msg.Type, "error", err)
	}
}

func (r *Room) broadcastLocked(ctx context.Context, msg *domain.Message) {
	if err := r.deps.sender.Broadcast(ctx, r.connsLocked(), msg); err != nil {
		r.log.InfoContext(ctx, "failed to broadcast message", "type", msg.Type, "error", err)
	}
}

func (r *Room) notifyLocked(ctx context.Context, m *member, event domain.Event, detail *domain.NotificationDetail) {
	notification := domain.Notification{Event: event, Detail: detail}
	if m != nil {
		notification.MemberId = m.id
		notification.Name = m.name
	}

	r.broadcastLocked(ctx, &domain.Message{Type: msgNotify, Payload: notification})
	r.log.InfoContext(ctx, "room event", "event", string(event), "member", notification.Name)
}

func (r *Room) broadcastStateLocked(ctx context.Context) {
	r.broadcastLocked(ctx, &domain.Message{Type: msgState, Payload: r.stateLocked()})
}

func (r *Room) stateLocked() State {
	members := make([]MemberState, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, MemberState{
			Id:         m.id,
			Name:       m.name,
			Permission: m.permission,
		})
	}

	blocked := make([]string, 0, len(r.blockedCategories))
	for category, on := range r.blockedCategories {
		if on {
			blocked = append(blocked, category)
		}
	}
	sort.Strings(blocked)

	return State{
		Paused:            r.paused,
		LastSeekedTo:      r.lastSeekedTo,
		Source:            r.source,
		Queue:             r.queue.snapshot(),
		Members:           members,
		MembersLoading:    r.membersLoading,
		DefaultPermission: r.defaultPermission,
		PlaybackSpeed:     r.playbackSpeed,
		Looping:           r.looping,
		BlockedCategories: blocked,
	}
}
