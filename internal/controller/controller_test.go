package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.client/internal/model"
	"sudooom.im.client/internal/store"
	"sudooom.im.client/internal/transport"
	appErrors "sudooom.im.client/shared/errors"
)

const (
	selfID  int64 = 1001
	peerP   int64 = 2001
	peerQ   int64 = 3001
	convA         = "p:2001"
	convB         = "p:3001"
	groupG        = "g:9"
	timeout       = 2 * time.Second
)

type fixture struct {
	t   *testing.T
	mem *transport.Memory
	st  *store.Store
	ctl *Controller
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mem := transport.NewMemory()
	st := store.New()
	ctl := New(Config{SelfID: selfID, CommandTimeout: time.Second, FetchTimeout: time.Second}, st, mem, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = ctl.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	f := &fixture{t: t, mem: mem, st: st, ctl: ctl}
	f.flush()
	return f
}

func (f *fixture) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	f.t.Cleanup(cancel)
	return ctx
}

func (f *fixture) flush() {
	f.t.Helper()
	require.NoError(f.t, f.ctl.Flush(f.ctx()))
}

func (f *fixture) pushList(full bool, convs ...model.Conversation) {
	f.t.Helper()
	f.mem.PushConversationList(model.ConversationList{Full: full, Conversations: convs})
	f.flush()
}

func (f *fixture) pushMessages(convID string, msgs ...model.Message) {
	f.t.Helper()
	f.mem.PushMessages(convID, msgs...)
	f.flush()
}

func (f *fixture) open(convID string) error {
	f.t.Helper()
	err := f.ctl.OpenConversation(f.ctx(), convID)
	f.flush()
	return err
}

func (f *fixture) unread(convID string) int {
	return f.st.UnreadCounts()[convID]
}

func privateConv(peer int64, unread int) model.Conversation {
	return model.Conversation{
		ID:          model.PeerConversationID(peer),
		UnreadCount: unread,
		Participants: []model.Participant{
			{Person: model.Person{UserID: selfID}, Role: model.RoleSelf},
			{Person: model.Person{UserID: peer}, Role: model.RoleOther},
		},
	}
}

func groupConv(unread int) model.Conversation {
	return model.Conversation{
		ID:          groupG,
		UnreadCount: unread,
		Participants: []model.Participant{
			{Person: model.Person{UserID: selfID}, Role: model.RoleSelf},
			{Person: model.Person{UserID: peerP}, Role: model.RoleOther},
			{Person: model.Person{UserID: peerQ}, Role: model.RoleOther},
		},
	}
}

func message(id, sender int64, convID string) model.Message {
	return model.Message{ID: id, ConversationID: convID, SenderID: sender, Content: []byte("m"), CreatedAt: 1_700_000_000_000 + id}
}

func logIDs(log []model.Message) []int64 {
	out := make([]int64, 0, len(log))
	for _, m := range log {
		out = append(out, m.ID)
	}
	return out
}

func TestOpenConversation_ResetsUnreadMarksSeenAndObserves(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 0))
	f.pushMessages(convA, message(1, peerP, convA), message(2, peerP, convA))
	require.Equal(t, 2, f.unread(convA))

	f.pushMessages(convA, message(3, peerP, convA))
	assert.Equal(t, 3, f.unread(convA))
	assert.Empty(t, f.mem.CommandsOf(transport.CommandMarkSeen))
	assert.False(t, f.st.Online())

	require.NoError(t, f.ctl.OpenConversation(f.ctx(), convA))
	// 返回时未读已同步清零
	assert.Equal(t, 0, f.unread(convA))
	f.flush()

	cmds := f.mem.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, transport.CommandSetActive, cmds[0].Kind)
	assert.Equal(t, convA, cmds[0].ConversationID)
	assert.Equal(t, transport.CommandMarkSeen, cmds[1].Kind)
	assert.Equal(t, int64(3), cmds[1].MsgID)

	assert.True(t, f.mem.PresenceSubscribed(peerP))
	assert.Equal(t, convA, f.st.ActiveConversationID())
	assert.Equal(t, []int64{1, 2, 3}, logIDs(f.st.ActiveMessages()))
}

func TestOpenConversation_LastFromSelfSkipsMarkSeen(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 0))
	f.pushMessages(convA, message(1, peerP, convA), message(2, selfID, convA))

	require.NoError(t, f.open(convA))
	assert.Empty(t, f.mem.CommandsOf(transport.CommandMarkSeen))
	assert.Len(t, f.mem.CommandsOf(transport.CommandSetActive), 1)
}

func TestSendMessage_EchoDedupedAndUnreadStaysZero(t *testing.T) {
	f := newFixture(t)
	f.mem.EnableEcho(selfID)
	f.pushList(true, privateConv(peerP, 0))
	require.NoError(t, f.open(convA))

	require.NoError(t, f.ctl.SendMessage(f.ctx(), []byte("hello")))
	f.flush()

	sends := f.mem.CommandsOf(transport.CommandSend)
	require.Len(t, sends, 1)
	assert.Equal(t, convA, sends[0].ConversationID)
	assert.Equal(t, "hello", string(sends[0].Content))

	log := f.st.ActiveMessages()
	require.Len(t, log, 1)
	assert.Equal(t, "hello", log[0].Text())

	// 服务端重复回显
	f.pushMessages(convA, log[0])
	assert.Len(t, f.st.ActiveMessages(), 1)
	assert.Equal(t, 0, f.unread(convA))
}

func TestListRefresh_ServerUnreadThenOpenResets(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 0), privateConv(peerQ, 0))
	require.NoError(t, f.open(convA))

	f.pushList(true, privateConv(peerP, 0), privateConv(peerQ, 5))
	assert.Equal(t, 5, f.unread(convB))

	require.NoError(t, f.open(convB))
	assert.Equal(t, 0, f.unread(convB))
}

func TestListRefresh_ActiveForcedZero(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 0))
	require.NoError(t, f.open(convA))

	f.pushList(true, privateConv(peerP, 7))
	assert.Equal(t, 0, f.unread(convA))

	f.mem.PushConversationList(model.ConversationList{Conversations: []model.Conversation{privateConv(peerP, 4)}})
	f.flush()
	assert.Equal(t, 0, f.unread(convA))
}

func TestReplay_NoChangesNoMarkSeen(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 0), privateConv(peerQ, 0))
	batch := []model.Message{message(1, peerP, convA), message(2, peerP, convA), message(3, peerP, convA)}
	f.pushMessages(convA, batch...)
	require.Equal(t, 3, f.unread(convA))
	before := f.st.Snapshot()

	f.pushMessages(convA, batch...)
	assert.Equal(t, 3, f.unread(convA))
	assert.Len(t, f.st.Messages(convA), 3)
	assert.Equal(t, before.Version, f.st.Snapshot().Version)

	require.NoError(t, f.open(convA))
	f.mem.ResetCommands()

	f.pushMessages(convA, batch...)
	assert.Len(t, f.st.Messages(convA), 3)
	assert.Empty(t, f.mem.CommandsOf(transport.CommandMarkSeen))
}

func TestInboundWhileActive_MarksSeenPerMessage(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 0))
	require.NoError(t, f.open(convA))
	f.mem.ResetCommands()

	f.pushMessages(convA, message(10, peerP, convA), message(11, selfID, convA), message(12, peerP, convA))

	seen := f.mem.CommandsOf(transport.CommandMarkSeen)
	require.Len(t, seen, 2)
	assert.Equal(t, int64(10), seen[0].MsgID)
	assert.Equal(t, int64(12), seen[1].MsgID)
	assert.Equal(t, 0, f.unread(convA))
}

func TestSelfMessagesNeverIncrement(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 0), privateConv(peerQ, 1))

	f.pushMessages(convA, message(1, selfID, convA))
	f.pushMessages(convB, message(2, selfID, convB), message(3, selfID, convB))

	assert.Equal(t, 0, f.unread(convA))
	assert.Equal(t, 1, f.unread(convB))
}

func TestInboundReordersList(t *testing.T) {
	f := newFixture(t)
	a := privateConv(peerP, 0)
	a.LastActivity = 2
	b := privateConv(peerQ, 0)
	b.LastActivity = 1
	f.pushList(true, a, b)
	require.Equal(t, convA, f.st.Conversations()[0].ID)

	f.pushMessages(convB, message(5, peerQ, convB))

	convs := f.st.Conversations()
	assert.Equal(t, convB, convs[0].ID)
	assert.Equal(t, int64(5), convs[0].LastMsgID)
}

func TestPresence_SingleObserver(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 0), privateConv(peerQ, 0), groupConv(0))

	require.NoError(t, f.open(convA))
	f.mem.PushPresence(peerP, true)
	f.flush()
	assert.True(t, f.st.Online())

	require.NoError(t, f.open(convB))
	assert.False(t, f.st.Online())
	assert.True(t, f.mem.PresenceSubscribed(peerQ))
	assert.False(t, f.mem.PresenceSubscribed(peerP))

	// 已释放订阅的迟到事件
	f.ctl.presences <- presenceEvent(peerP, true)
	f.flush()
	assert.False(t, f.st.Online())

	f.mem.PushPresence(peerQ, true)
	f.flush()
	assert.True(t, f.st.Online())

	require.NoError(t, f.open(groupG))
	assert.Equal(t, 0, f.mem.LivePresenceSubscriptions())
	assert.False(t, f.st.Online())
	assert.Equal(t, 1, f.mem.MaxLivePresenceSubscriptions())
}

func TestPresence_ReopenKeepsOnlineFlag(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 0), privateConv(peerQ, 0))

	require.NoError(t, f.open(convA))
	f.mem.PushPresence(peerP, true)
	f.flush()
	require.True(t, f.st.Online())

	// 再次点击当前会话，订阅保持，在线标记不丢
	require.NoError(t, f.open(convA))
	assert.True(t, f.st.Online())
	assert.Equal(t, 1, f.mem.LivePresenceSubscriptions())

	f.mem.PushPresence(peerP, true)
	f.flush()
	assert.True(t, f.st.Online())

	f.mem.PushPresence(peerP, false)
	f.flush()
	assert.False(t, f.st.Online())

	require.NoError(t, f.open(convA))
	assert.False(t, f.st.Online())
	f.mem.PushPresence(peerP, true)
	f.flush()
	assert.True(t, f.st.Online())
}

func TestGuards(t *testing.T) {
	f := newFixture(t)

	err := f.open("p:404")
	assert.True(t, appErrors.Is(err, appErrors.ErrConversationNotFound))

	err = f.ctl.SendMessage(f.ctx(), []byte("hi"))
	assert.True(t, appErrors.Is(err, appErrors.ErrNoActiveConversation))

	f.pushList(true, privateConv(peerP, 0))
	require.NoError(t, f.open(convA))
	f.mem.ResetCommands()

	err = f.ctl.SendMessage(f.ctx(), []byte("  \n\t "))
	assert.True(t, appErrors.Is(err, appErrors.ErrEmptyContent))

	f.mem.SetConnected(false)
	err = f.ctl.SendMessage(f.ctx(), []byte("hello"))
	assert.True(t, appErrors.Is(err, appErrors.ErrTransportUnavailable))
	assert.True(t, appErrors.Is(f.st.Err(), appErrors.ErrTransportUnavailable))
	f.flush()

	assert.Empty(t, f.mem.Commands())
	assert.Equal(t, convA, f.st.ActiveConversationID())
}

func TestCommandFailureSetsErrOnly(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 0))
	f.pushMessages(convA, message(1, peerP, convA))
	f.mem.FailCommand(transport.CommandMarkSeen, errors.New("nats timeout"))

	require.NoError(t, f.open(convA))

	assert.True(t, appErrors.Is(f.st.Err(), appErrors.ErrTransport))
	assert.Equal(t, convA, f.st.ActiveConversationID())
	assert.Equal(t, 0, f.unread(convA))
	assert.Equal(t, []int64{1}, logIDs(f.st.ActiveMessages()))
}

func TestToggleConversationView(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 2))

	require.NoError(t, f.ctl.ToggleConversationView(f.ctx()))
	assert.True(t, f.st.Snapshot().ViewOpen)
	require.NoError(t, f.ctl.ToggleConversationView(f.ctx()))
	assert.False(t, f.st.Snapshot().ViewOpen)
	assert.Equal(t, 2, f.unread(convA))
	assert.Equal(t, "", f.st.ActiveConversationID())
}

type stubListing struct {
	mu    sync.Mutex
	convs []model.Conversation
	err   error
	calls int
}

func (s *stubListing) FetchConversations(ctx context.Context) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.convs, s.err
}

func (s *stubListing) set(convs []model.Conversation, err error) {
	s.mu.Lock()
	s.convs, s.err = convs, err
	s.mu.Unlock()
}

func (s *stubListing) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestToggleChat_OpenFetchesList(t *testing.T) {
	listing := &stubListing{convs: []model.Conversation{privateConv(peerP, 4), privateConv(peerQ, 0)}}
	f := newFixture(t, WithListing(listing))

	require.NoError(t, f.ctl.ToggleChat(f.ctx()))
	assert.True(t, f.st.Snapshot().ChatOpen)
	f.flush()

	snap := f.st.Snapshot()
	assert.False(t, snap.Loading)
	assert.Len(t, snap.Conversations, 2)
	assert.Equal(t, 4, snap.UnreadCounts[convA])
	assert.Equal(t, []string{convA, convB}, f.mem.MessageSubscriptions())
	assert.Equal(t, 1, listing.count())
}

func TestToggleChat_ListingFailureKeepsState(t *testing.T) {
	listing := &stubListing{convs: []model.Conversation{privateConv(peerP, 1)}}
	f := newFixture(t, WithListing(listing))
	require.NoError(t, f.ctl.ToggleChat(f.ctx()))
	f.flush()
	require.NoError(t, f.ctl.ToggleChat(f.ctx()))

	listing.set(nil, errors.New("redis down"))
	require.NoError(t, f.ctl.ToggleChat(f.ctx()))
	f.flush()

	snap := f.st.Snapshot()
	assert.True(t, appErrors.Is(f.st.Err(), appErrors.ErrListingFailed))
	assert.False(t, snap.Loading)
	assert.Len(t, snap.Conversations, 1)
	assert.Equal(t, 1, snap.UnreadCounts[convA])
}

func TestToggleChat_CloseDeactivates(t *testing.T) {
	listing := &stubListing{convs: []model.Conversation{privateConv(peerP, 0)}}
	f := newFixture(t, WithListing(listing))
	require.NoError(t, f.ctl.ToggleChat(f.ctx()))
	f.flush()
	require.NoError(t, f.open(convA))
	f.mem.ResetCommands()

	require.NoError(t, f.ctl.ToggleChat(f.ctx()))
	f.flush()

	snap := f.st.Snapshot()
	assert.False(t, snap.ChatOpen)
	assert.Equal(t, "", snap.ActiveConversationID)
	assert.Equal(t, 0, f.mem.LivePresenceSubscriptions())
	cmds := f.mem.CommandsOf(transport.CommandSetActive)
	require.Len(t, cmds, 1)
	assert.Equal(t, "", cmds[0].ConversationID)

	// 消息订阅保持，未读继续累计
	assert.Equal(t, []string{convA}, f.mem.MessageSubscriptions())
	f.pushMessages(convA, message(7, peerP, convA))
	assert.Equal(t, 1, f.unread(convA))
}

func TestListDelta_RemovesActive(t *testing.T) {
	f := newFixture(t)
	f.pushList(true, privateConv(peerP, 0), privateConv(peerQ, 0))
	require.NoError(t, f.open(convA))
	f.mem.ResetCommands()

	f.mem.PushConversationList(model.ConversationList{Removed: []string{convA}})
	f.flush()

	assert.Equal(t, "", f.st.ActiveConversationID())
	assert.Equal(t, 0, f.mem.LivePresenceSubscriptions())
	assert.Equal(t, []string{convB}, f.mem.MessageSubscriptions())
	cmds := f.mem.CommandsOf(transport.CommandSetActive)
	require.Len(t, cmds, 1)
	assert.Equal(t, "", cmds[0].ConversationID)
}

func TestUnknownConversationTriggersRefresh(t *testing.T) {
	listing := &stubListing{convs: []model.Conversation{privateConv(peerP, 0), privateConv(peerQ, 0)}}
	f := newFixture(t, WithListing(listing))
	f.pushList(true, privateConv(peerP, 0))

	f.ctl.messages <- messageBatch{conversationID: convB, messages: []model.Message{message(1, peerQ, "")}}
	f.flush()

	assert.Equal(t, 1, listing.count())
	assert.Len(t, f.st.Conversations(), 2)
	assert.Equal(t, 0, f.unread(convB))
	assert.Equal(t, []int64{1}, logIDs(f.st.Messages(convB)))
}

type stubHistory struct {
	messages map[string][]model.Message
}

func (s *stubHistory) Recent(ctx context.Context, self int64, conversationID string, limit int) ([]model.Message, error) {
	if s.messages == nil {
		return nil, errors.New("db down")
	}
	return s.messages[conversationID], nil
}

func TestHistory_BackfillsBeforeLiveMessages(t *testing.T) {
	history := &stubHistory{messages: map[string][]model.Message{
		convA: {message(1, peerP, convA), message(2, selfID, convA), message(3, peerP, convA)},
	}}
	f := newFixture(t, WithHistory(history))
	f.pushList(true, privateConv(peerP, 0))
	f.pushMessages(convA, message(3, peerP, convA), message(4, peerP, convA))

	require.NoError(t, f.open(convA))

	assert.Equal(t, []int64{1, 2, 3, 4}, logIDs(f.st.ActiveMessages()))
	assert.Equal(t, 0, f.unread(convA))
	seen := f.mem.CommandsOf(transport.CommandMarkSeen)
	require.Len(t, seen, 1)
	assert.Equal(t, int64(4), seen[0].MsgID)
}

func TestHistory_MarksNewLastSeen(t *testing.T) {
	history := &stubHistory{messages: map[string][]model.Message{
		convA: {message(1, peerP, convA), message(2, peerP, convA)},
	}}
	f := newFixture(t, WithHistory(history))
	f.pushList(true, privateConv(peerP, 0))

	require.NoError(t, f.open(convA))

	assert.Equal(t, []int64{1, 2}, logIDs(f.st.ActiveMessages()))
	seen := f.mem.CommandsOf(transport.CommandMarkSeen)
	require.Len(t, seen, 1)
	assert.Equal(t, int64(2), seen[0].MsgID)

	// 再次打开不会重复拉取
	require.NoError(t, f.open(convA))
	assert.Len(t, f.st.ActiveMessages(), 2)
}

func TestHistory_FailureSetsErr(t *testing.T) {
	f := newFixture(t, WithHistory(&stubHistory{}))
	f.pushList(true, privateConv(peerP, 0))

	require.NoError(t, f.open(convA))
	assert.True(t, appErrors.Is(f.st.Err(), appErrors.ErrHistoryFailed))
	assert.Equal(t, convA, f.st.ActiveConversationID())
}

func TestSubscribeFailureSetsErr(t *testing.T) {
	f := newFixture(t)
	f.mem.FailSubscribe(errors.New("no route"))
	f.pushList(true, privateConv(peerP, 0))

	assert.True(t, appErrors.Is(f.st.Err(), appErrors.ErrSubscribeFailed))
	assert.Len(t, f.st.Conversations(), 1)
}

func TestActionsAfterStop(t *testing.T) {
	mem := transport.NewMemory()
	ctl := New(Config{SelfID: selfID}, store.New(), mem)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctl.Run(ctx) }()
	cancel()
	<-done

	err := ctl.OpenConversation(context.Background(), convA)
	assert.True(t, appErrors.Is(err, appErrors.ErrControllerDown))
}

func TestStep_NonBlockingDrainsQueuedEventsOnly(t *testing.T) {
	st := store.New()
	ctl := New(Config{SelfID: selfID}, st, transport.NewMemory())
	t.Cleanup(ctl.dispatcher.Shutdown)
	ctx := context.Background()

	assert.False(t, ctl.step(ctx, false))

	ctl.presences <- presenceEvent(peerP, true)
	ctl.failures <- commandFailure{name: "send", err: errors.New("boom")}
	assert.Equal(t, 2, ctl.queued())

	assert.True(t, ctl.step(ctx, false))
	assert.True(t, ctl.step(ctx, false))
	assert.False(t, ctl.step(ctx, false))
	assert.Equal(t, 0, ctl.queued())
	assert.True(t, appErrors.Is(st.Err(), appErrors.ErrTransport))

	// 排空时不接收动作，避免在动作内部嵌套执行动作
	actionCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- ctl.do(actionCtx, func(context.Context) error { return nil })
	}()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ctl.step(ctx, false))
	assert.ErrorIs(t, <-errCh, context.DeadlineExceeded)
}
