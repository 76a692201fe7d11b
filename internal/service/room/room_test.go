package room

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncroom/server/internal/domain"
	"github.com/syncroom/server/pkg/randstr"
)

type sentMessage struct {
	conn *websocket.Conn
	msg  *domain.Message
}

type fakeSender struct {
	mu         sync.Mutex
	unicasts   []sentMessage
	broadcasts []*domain.Message
}

func (f *fakeSender) Send(_ context.Context, conn *websocket.Conn, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unicasts = append(f.unicasts, sentMessage{conn: conn, msg: msg})
	return nil
}

func (f *fakeSender) Broadcast(_ context.Context, _ []*websocket.Conn, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, msg)
	return nil
}

func (f *fakeSender) Forget(*websocket.Conn) {}

func (f *fakeSender) broadcastCount(msgType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, msg := range f.broadcasts {
		if msg.Type == msgType {
			count++
		}
	}
	return count
}

func (f *fakeSender) lastBroadcast(msgType string) (*domain.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.broadcasts) - 1; i >= 0; i-- {
		if f.broadcasts[i].Type == msgType {
			return f.broadcasts[i], true
		}
	}
	return nil, false
}

func (f *fakeSender) unicastsTo(conn *websocket.Conn, msgType string) []*domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var msgs []*domain.Message
	for _, sent := range f.unicasts {
		if sent.conn == conn && sent.msg.Type == msgType {
			msgs = append(msgs, sent.msg)
		}
	}
	return msgs
}

type fakeResolver struct {
	mu      sync.Mutex
	sources map[string]*domain.MediaSource
	gates   map[string]chan struct{}
	err     error
}

func (f *fakeResolver) Resolve(_ context.Context, url string, startFrom float64) (*domain.MediaSource, error) {
	f.mu.Lock()
	gate := f.gates[url]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	source := domain.MediaSource{
		ContentId:   url,
		Platform:    domain.PlatformOther,
		Title:       "title of " + url,
		OriginalURL: url,
	}
	if preset, ok := f.sources[url]; ok {
		source = *preset
	}
	source.StartFrom = startFrom
	return &source, nil
}

type fakeSegments struct {
	mu       sync.Mutex
	segments []domain.Segment
	err      error
}

func (f *fakeSegments) GetSegments(context.Context, string, []string) ([]domain.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.segments, f.err
}

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type roomFixture struct {
	room     *Room
	sender   *fakeSender
	resolver *fakeResolver
	segments *fakeSegments
	clock    *mockClock
}

func newRoomFixture(t *testing.T, cfg *Config) *roomFixture {
	t.Helper()

	if cfg == nil {
		cfg = &Config{DefaultPermission: domain.DefaultMemberPermission}
	}
	if cfg.TimeRequestTimeout == 0 {
		cfg.TimeRequestTimeout = 100 * time.Millisecond
	}
	if cfg.ResolveTimeout == 0 {
		cfg.ResolveTimeout = time.Second
	}

	f := &roomFixture{
		sender:   &fakeSender{},
		resolver: &fakeResolver{sources: map[string]*domain.MediaSource{}, gates: map[string]chan struct{}{}},
		segments: &fakeSegments{},
		clock:    &mockClock{now: time.Unix(1700000000, 0)},
	}

	f.room = newRoom("test-room", &deps{
		sender:    f.sender,
		resolver:  f.resolver,
		segments:  f.segments,
		clock:     f.clock,
		generator: randstr.New([]byte("abcdefghijklmnopqrstuvwxyz")),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:       cfg,
	})
	return f
}

func (f *roomFixture) join(t *testing.T, name string) *websocket.Conn {
	t.Helper()
	conn := &websocket.Conn{}
	_, _, err := f.room.Join(context.Background(), conn, name)
	require.NoError(t, err)
	return conn
}

// play loads a source and drives every member through the readiness barrier
// so the room ends up playing.
func (f *roomFixture) play(t *testing.T, conn *websocket.Conn, url string, conns ...*websocket.Conn) {
	t.Helper()
	ctx := context.Background()

	f.room.PlayContent(ctx, conn, url, 0, "")
	require.Eventually(t, func() bool {
		state := f.room.State()
		return state.Source != nil && state.Source.ContentId == url
	}, time.Second, 5*time.Millisecond)

	f.room.Loaded(ctx, conn)
	for _, c := range conns {
		f.room.Loaded(ctx, c)
	}
	require.False(t, f.room.State().Paused)
}

func (f *roomFixture) hostSecret(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	msgs := f.sender.unicastsTo(conn, msgSecret)
	require.NotEmpty(t, msgs)
	secret, ok := msgs[len(msgs)-1].Payload.(string)
	require.True(t, ok)
	return secret
}

func TestJoin_FirstMemberBecomesHost(t *testing.T) {
	f := newRoomFixture(t, nil)

	alice := f.join(t, "alice")
	state := f.room.State()
	require.Len(t, state.Members, 1)
	assert.True(t, state.Members[0].Permission.Has(domain.PermissionHost))
	assert.NotEmpty(t, f.hostSecret(t, alice))

	bob := f.join(t, "bob")
	state = f.room.State()
	require.Len(t, state.Members, 2)
	assert.Equal(t, domain.DefaultMemberPermission, state.Members[1].Permission)
	assert.Empty(t, f.sender.unicastsTo(bob, msgSecret))
}

func TestJoin_MembersLimit(t *testing.T) {
	f := newRoomFixture(t, &Config{MembersLimit: 1})

	f.join(t, "alice")
	_, _, err := f.room.Join(context.Background(), &websocket.Conn{}, "bob")
	assert.ErrorIs(t, err, ErrMembersLimitReached)
}

func TestLeave_HostPromotion(t *testing.T) {
	f := newRoomFixture(t, nil)

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	oldSecret := f.hostSecret(t, alice)

	f.room.Leave(context.Background(), alice)

	state := f.room.State()
	require.Len(t, state.Members, 1)
	assert.True(t, state.Members[0].Permission.Has(domain.PermissionHost))

	newSecret := f.hostSecret(t, bob)
	assert.NotEqual(t, oldSecret, newSecret)
}

func TestLeave_LastMemberPausesRoom(t *testing.T) {
	f := newRoomFixture(t, nil)

	alice := f.join(t, "alice")
	f.play(t, alice, "https://example.com/a")

	f.room.Leave(context.Background(), alice)

	assert.True(t, f.room.State().Paused)
	_, empty := f.room.emptySince()
	assert.True(t, empty)
}

func TestLeave_UnknownConnIsNoop(t *testing.T) {
	f := newRoomFixture(t, nil)
	f.join(t, "alice")

	f.room.Leave(context.Background(), &websocket.Conn{})

	assert.Len(t, f.room.State().Members, 1)
}

func TestLoaded_BarrierHoldsUntilEveryoneIsReady(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")

	f.room.PlayContent(ctx, alice, "https://example.com/a", 0, "")
	require.Eventually(t, func() bool {
		return f.room.State().Source != nil
	}, time.Second, 5*time.Millisecond)

	state := f.room.State()
	assert.True(t, state.Paused)
	assert.Equal(t, 2, state.MembersLoading)

	f.room.Loaded(ctx, alice)
	assert.True(t, f.room.State().Paused)

	f.room.Loaded(ctx, bob)
	state = f.room.State()
	assert.False(t, state.Paused)
	assert.Equal(t, 0, state.MembersLoading)
	assert.Equal(t, 1, f.sender.broadcastCount(msgResume))

	// duplicate loaded must not disturb anything
	f.room.Loaded(ctx, bob)
	assert.Equal(t, 1, f.sender.broadcastCount(msgResume))
}

func TestLeave_ReleasesLoadingBarrier(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")

	f.room.PlayContent(ctx, alice, "https://example.com/a", 0, "")
	require.Eventually(t, func() bool {
		return f.room.State().Source != nil
	}, time.Second, 5*time.Millisecond)

	f.room.Loaded(ctx, alice)
	f.room.Leave(ctx, bob)

	assert.False(t, f.room.State().Paused)
}

func TestLeave_ReleasesFinishedBarrier(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	f.play(t, alice, "https://example.com/a", bob)
	f.room.AddQueue(ctx, alice, "https://example.com/b", 0, "")

	f.room.Finished(ctx, alice)
	require.Equal(t, "https://example.com/a", f.room.State().Source.ContentId)

	// bob leaves while still owing a finished signal
	f.room.Leave(ctx, bob)

	require.Eventually(t, func() bool {
		state := f.room.State()
		return state.Source != nil && state.Source.ContentId == "https://example.com/b"
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.room.State().Queue)
}

func TestLeave_LastFinishedHoldoutGoesIdle(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	f.play(t, alice, "https://example.com/a", bob)

	f.room.Finished(ctx, alice)
	f.room.Leave(ctx, bob)

	state := f.room.State()
	assert.Nil(t, state.Source)
	assert.True(t, state.Paused)
}

func TestPlayContent_SameContentSeeksInsteadOfReloading(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	f.play(t, alice, "https://example.com/a")
	sourceBroadcasts := f.sender.broadcastCount(msgSource)

	f.room.PlayContent(ctx, alice, "https://example.com/a", 42, "")
	require.Eventually(t, func() bool {
		return f.room.State().LastSeekedTo == 42
	}, time.Second, 5*time.Millisecond)

	state := f.room.State()
	assert.False(t, state.Paused)
	assert.Equal(t, 0, state.MembersLoading)
	assert.Equal(t, sourceBroadcasts, f.sender.broadcastCount(msgSource))
}

func TestPlayContent_ResolutionFailureClearsSource(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	f.play(t, alice, "https://example.com/a")

	f.resolver.mu.Lock()
	f.resolver.err = errors.New("resolution broke")
	f.resolver.mu.Unlock()

	f.room.PlayContent(ctx, alice, "https://example.com/b", 0, "")
	require.Eventually(t, func() bool {
		return f.room.State().Source == nil
	}, time.Second, 5*time.Millisecond)

	assert.True(t, f.room.State().Paused)
}

func TestPlayContent_SlowResolutionCannotOverrideNewerLoad(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	gate := make(chan struct{})
	f.resolver.mu.Lock()
	f.resolver.gates["https://example.com/slow"] = gate
	f.resolver.mu.Unlock()

	f.room.PlayContent(ctx, alice, "https://example.com/slow", 0, "")
	f.room.PlayContent(ctx, alice, "https://example.com/fast", 0, "")

	require.Eventually(t, func() bool {
		state := f.room.State()
		return state.Source != nil && state.Source.ContentId == "https://example.com/fast"
	}, time.Second, 5*time.Millisecond)

	// the first resolution finishes late; its result must not win
	close(gate)

	require.Never(t, func() bool {
		state := f.room.State()
		return state.Source == nil || state.Source.ContentId != "https://example.com/fast"
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestPlayContent_StaleFailureKeepsNewerSource(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	gate := make(chan struct{})
	f.resolver.mu.Lock()
	f.resolver.gates["https://example.com/slow"] = gate
	f.resolver.mu.Unlock()

	f.room.PlayContent(ctx, alice, "https://example.com/slow", 0, "")
	f.room.PlayContent(ctx, alice, "https://example.com/fast", 0, "")

	require.Eventually(t, func() bool {
		state := f.room.State()
		return state.Source != nil && state.Source.ContentId == "https://example.com/fast"
	}, time.Second, 5*time.Millisecond)

	f.resolver.mu.Lock()
	f.resolver.err = errors.New("resolution broke")
	f.resolver.mu.Unlock()
	close(gate)

	require.Never(t, func() bool {
		return f.room.State().Source == nil
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestPause_WithoutPermissionIsSilentlyDropped(t *testing.T) {
	f := newRoomFixture(t, &Config{DefaultPermission: domain.PermissionQueueControl})
	ctx := context.Background()

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	f.play(t, alice, "https://example.com/a", bob)

	f.room.Pause(ctx, bob, nil, "")

	assert.False(t, f.room.State().Paused)
	assert.Equal(t, 0, f.sender.broadcastCount(msgPause))
}

func TestPause_HostSecretOverridesMissingPermission(t *testing.T) {
	f := newRoomFixture(t, &Config{DefaultPermission: domain.PermissionQueueControl})
	ctx := context.Background()

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	f.play(t, alice, "https://example.com/a", bob)

	f.room.Pause(ctx, bob, nil, f.hostSecret(t, alice))

	assert.True(t, f.room.State().Paused)
}

func TestPause_CommitsReportedPosition(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	f.play(t, alice, "https://example.com/a")

	seconds := 12.5
	f.room.Pause(ctx, alice, &seconds, "")

	state := f.room.State()
	assert.True(t, state.Paused)
	assert.Equal(t, 12.5, state.LastSeekedTo)
}

func TestSeekTo_WhilePlayingKeepsPlaying(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	f.play(t, alice, "https://example.com/a")

	f.room.SeekTo(ctx, alice, 90, "")

	state := f.room.State()
	assert.Equal(t, float64(90), state.LastSeekedTo)
	assert.False(t, state.Paused)
}

func TestPlaybackError_PausesAndPullsEveryoneBack(t *testing.T) {
	f := newRoomFixture(t, &Config{DefaultPermission: 0})
	ctx := context.Background()

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	f.play(t, alice, "https://example.com/a", bob)

	// no permission required to report a local failure
	f.room.PlaybackError(ctx, bob, "decode stalled", 17.5)

	state := f.room.State()
	assert.True(t, state.Paused)
	assert.Equal(t, 17.5, state.LastSeekedTo)

	msg, ok := f.sender.lastBroadcast(msgNotify)
	require.True(t, ok)
	notification, ok := msg.Payload.(domain.Notification)
	require.True(t, ok)
	assert.Equal(t, domain.EventPlaybackError, notification.Event)
	assert.Equal(t, "bob", notification.Name)
	assert.Equal(t, "decode stalled", notification.Detail.Reason)
}

func TestGrantPermission_RequiresSecret(t *testing.T) {
	f := newRoomFixture(t, &Config{DefaultPermission: 0})
	ctx := context.Background()

	alice := f.join(t, "alice")
	f.join(t, "bob")
	bobId := f.room.State().Members[1].Id

	f.room.GrantPermission(ctx, "wrong-secret", bobId, domain.PermissionPlaybackControl, false)
	assert.Equal(t, domain.Permission(0), f.room.State().Members[1].Permission)

	f.room.GrantPermission(ctx, f.hostSecret(t, alice), bobId, domain.PermissionPlaybackControl, false)
	assert.True(t, f.room.State().Members[1].Permission.Has(domain.PermissionPlaybackControl))
}

func TestGrantPermission_IsIdempotentAndNeverGrantsHost(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	f.join(t, "bob")
	secret := f.hostSecret(t, alice)
	bobId := f.room.State().Members[1].Id
	notifies := f.sender.broadcastCount(msgNotify)

	// bob already holds QueueControl through the default set
	f.room.GrantPermission(ctx, secret, bobId, domain.PermissionQueueControl, false)
	assert.Equal(t, notifies, f.sender.broadcastCount(msgNotify))

	f.room.GrantPermission(ctx, secret, bobId, domain.PermissionHost, false)
	assert.False(t, f.room.State().Members[1].Permission.Has(domain.PermissionHost))
	assert.Equal(t, notifies, f.sender.broadcastCount(msgNotify))
}

func TestRevokePermission_UpdatesMemberAndDefault(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	f.join(t, "bob")
	secret := f.hostSecret(t, alice)
	bobId := f.room.State().Members[1].Id

	f.room.RevokePermission(ctx, secret, bobId, domain.PermissionPlaybackControl, true)

	state := f.room.State()
	assert.False(t, state.Members[1].Permission.Has(domain.PermissionPlaybackControl))
	assert.False(t, state.DefaultPermission.Has(domain.PermissionPlaybackControl))

	// a fresh joiner picks up the narrowed default
	f.join(t, "carol")
	assert.Equal(t, domain.PermissionQueueControl, f.room.State().Members[2].Permission)
}

func TestFinished_AdvancesQueue(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	f.play(t, alice, "https://example.com/a")

	f.room.AddQueue(ctx, alice, "https://example.com/b", 0, "")
	f.room.Finished(ctx, alice)

	require.Eventually(t, func() bool {
		state := f.room.State()
		return state.Source != nil && state.Source.ContentId == "https://example.com/b"
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.room.State().Queue)
}

func TestFinished_EmptyQueueGoesIdle(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	f.play(t, alice, "https://example.com/a")

	f.room.Finished(ctx, alice)

	state := f.room.State()
	assert.Nil(t, state.Source)
	assert.True(t, state.Paused)
	assert.Equal(t, float64(0), state.LastSeekedTo)
}

func TestFinished_LoopingRestartsFromZero(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	f.play(t, alice, "https://example.com/a")
	f.room.SetLooping(ctx, alice, true, "")
	f.room.SeekTo(ctx, alice, 120, "")

	f.room.Finished(ctx, alice)

	state := f.room.State()
	require.NotNil(t, state.Source)
	assert.Equal(t, float64(0), state.LastSeekedTo)
	assert.False(t, state.Paused)

	// the barrier resets so the next playthrough loops again
	f.room.Finished(ctx, alice)
	assert.Equal(t, float64(0), f.room.State().LastSeekedTo)
	assert.False(t, f.room.State().Paused)
}

func TestFinished_WaitsForEveryMember(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	f.play(t, alice, "https://example.com/a", bob)

	f.room.Finished(ctx, alice)
	assert.NotNil(t, f.room.State().Source)

	f.room.Finished(ctx, bob)
	assert.Nil(t, f.room.State().Source)
}

func TestResync_SeeksToAverageOfReportedTimes(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	carol := f.join(t, "carol")
	f.play(t, alice, "https://example.com/a", bob, carol)

	done := make(chan struct{})
	go func() {
		f.room.Resync(ctx, alice)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(f.sender.unicastsTo(bob, msgRequestTime)) == 1 &&
			len(f.sender.unicastsTo(carol, msgRequestTime)) == 1
	}, time.Second, 5*time.Millisecond)

	f.room.ReportTime(bob, 10)
	f.room.ReportTime(carol, 20)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resync did not finish")
	}

	state := f.room.State()
	assert.Equal(t, float64(15), state.LastSeekedTo)
	assert.False(t, state.Paused)
}

func TestResync_NoSamplesSkipsTheSeek(t *testing.T) {
	f := newRoomFixture(t, &Config{TimeRequestTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	f.play(t, alice, "https://example.com/a", bob)
	f.room.SeekTo(ctx, alice, 50, "")
	seeks := f.sender.broadcastCount(msgSeekTo)

	// bob never answers the time request
	f.room.Resync(ctx, alice)

	state := f.room.State()
	assert.Equal(t, float64(50), state.LastSeekedTo)
	assert.False(t, state.Paused)
	assert.Equal(t, seeks, f.sender.broadcastCount(msgSeekTo))
}

func TestResync_LeaverDoesNotStallTimePoll(t *testing.T) {
	f := newRoomFixture(t, &Config{TimeRequestTimeout: 2 * time.Second})
	ctx := context.Background()

	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	carol := f.join(t, "carol")
	f.play(t, alice, "https://example.com/a", bob, carol)

	done := make(chan struct{})
	go func() {
		f.room.Resync(ctx, alice)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(f.sender.unicastsTo(bob, msgRequestTime)) == 1 &&
			len(f.sender.unicastsTo(carol, msgRequestTime)) == 1
	}, time.Second, 5*time.Millisecond)

	f.room.ReportTime(carol, 30)
	f.room.Leave(ctx, bob)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resync kept waiting on the member that left")
	}

	assert.Equal(t, float64(30), f.room.State().LastSeekedTo)
}

func TestReportTime_UnsolicitedIsDropped(t *testing.T) {
	f := newRoomFixture(t, nil)

	alice := f.join(t, "alice")
	f.room.ReportTime(alice, 33)

	assert.Equal(t, float64(0), f.room.State().LastSeekedTo)
}

func TestSetPlaybackSpeed_AnchorsPosition(t *testing.T) {
	f := newRoomFixture(t, nil)
	ctx := context.Background()

	alice := f.join(t, "alice")
	f.play(t, alice, "https://example.com/a")

	f.clock.Advance(10 * time.Second)
	f.room.SetPlaybackSpeed(ctx, alice, 2, "")

	state := f.room.State()
	assert.Equal(t, float64(2), state.PlaybackSpeed)
	assert.InDelta(t, 10, state.LastSeekedTo, 0.01)

	f.clock.Advance(5 * time.Second)
	f.room.mu.Lock()
	position := f.room.positionLocked()
	f.room.mu.Unlock()
	assert.InDelta(t, 20, position, 0.01)
}

func TestSetPlaybackSpeed_RejectsNonPositive(t *testing.T) {
	f := newRoomFixture(t, nil)

	alice := f.join(t, "alice")
	f.room.SetPlaybackSpeed(context.Background(), alice, 0, "")
	f.room.SetPlaybackSpeed(context.Background(), alice, -1, "")

	assert.Equal(t, float64(1), f.room.State().PlaybackSpeed)
}

func TestSendMessage_BroadcastsChat(t *testing.T) {
	f := newRoomFixture(t, nil)

	alice := f.join(t, "alice")
	f.room.SendMessage(context.Background(), alice, "hello there")

	msg, ok := f.sender.lastBroadcast(msgMessage)
	require.True(t, ok)
	chat, ok := msg.Payload.(domain.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "alice", chat.Name)
	assert.Equal(t, "hello there", chat.Text)
}

func TestSendMessage_NonMemberIsDropped(t *testing.T) {
	f := newRoomFixture(t, nil)
	f.join(t, "alice")

	f.room.SendMessage(context.Background(), &websocket.Conn{}, "spoofed")

	assert.Equal(t, 0, f.sender.broadcastCount(msgMessage))
}
