package transport

import (
	"context"
	"sort"
	"sync"
	"time"

	"sudooom.im.client/internal/model"
	appErrors "sudooom.im.client/shared/errors"
)

// CommandKind 上行命令类型
type CommandKind string

const (
	CommandSend      CommandKind = "send"
	CommandMarkSeen  CommandKind = "mark_seen"
	CommandSetActive CommandKind = "set_active"
	CommandPresence  CommandKind = "presence"
)

// Command 记录的上行命令
type Command struct {
	Kind           CommandKind
	ConversationID string
	Content        []byte
	MsgID          int64
	Online         bool
}

// Memory 进程内推送通道，用于测试和本地模式。
// 开启回显后 Send 会分配服务端ID并把消息推回对应会话。
type Memory struct {
	mu        sync.Mutex
	connected bool
	nextSub   uint64
	nextMsgID int64

	msgSubs      map[string]map[uint64]MessageHandler
	presenceSubs map[int64]map[uint64]PresenceHandler
	listSubs     map[uint64]ConversationListHandler

	commands    []Command
	failures    map[CommandKind]error
	subErr      error
	echoSelfID  int64
	maxPresence int
}

// NewMemory 创建进程内推送通道（默认已连接）
func NewMemory() *Memory {
	return &Memory{
		connected:    true,
		nextMsgID:    1_000_000,
		msgSubs:      make(map[string]map[uint64]MessageHandler),
		presenceSubs: make(map[int64]map[uint64]PresenceHandler),
		listSubs:     make(map[uint64]ConversationListHandler),
		failures:     make(map[CommandKind]error),
	}
}

// EnableEcho 开启发送回显，selfID 为回显消息的发送者
func (m *Memory) EnableEcho(selfID int64) {
	m.mu.Lock()
	m.echoSelfID = selfID
	m.mu.Unlock()
}

// SetConnected 设置连接状态
func (m *Memory) SetConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
}

// FailCommand 让指定类型的命令返回错误，err 为 nil 时恢复
func (m *Memory) FailCommand(kind CommandKind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, kind)
		return
	}
	m.failures[kind] = err
}

// FailSubscribe 让后续订阅返回错误，err 为 nil 时恢复
func (m *Memory) FailSubscribe(err error) {
	m.mu.Lock()
	m.subErr = err
	m.mu.Unlock()
}

func (m *Memory) SubscribeMessages(conversationID string, h MessageHandler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return nil, m.subErr
	}
	id := m.nextSub
	m.nextSub++
	if m.msgSubs[conversationID] == nil {
		m.msgSubs[conversationID] = make(map[uint64]MessageHandler)
	}
	m.msgSubs[conversationID][id] = h
	return NewSubscription(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.msgSubs[conversationID], id)
		if len(m.msgSubs[conversationID]) == 0 {
			delete(m.msgSubs, conversationID)
		}
		return nil
	}), nil
}

func (m *Memory) SubscribePresence(userID int64, h PresenceHandler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return nil, m.subErr
	}
	id := m.nextSub
	m.nextSub++
	if m.presenceSubs[userID] == nil {
		m.presenceSubs[userID] = make(map[uint64]PresenceHandler)
	}
	m.presenceSubs[userID][id] = h
	if live := m.livePresenceLocked(); live > m.maxPresence {
		m.maxPresence = live
	}
	return NewSubscription(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.presenceSubs[userID], id)
		if len(m.presenceSubs[userID]) == 0 {
			delete(m.presenceSubs, userID)
		}
		return nil
	}), nil
}

func (m *Memory) SubscribeConversationList(h ConversationListHandler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return nil, m.subErr
	}
	id := m.nextSub
	m.nextSub++
	m.listSubs[id] = h
	return NewSubscription(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listSubs, id)
		return nil
	}), nil
}

func (m *Memory) Send(ctx context.Context, conversationID string, content []byte) error {
	if err := m.record(Command{Kind: CommandSend, ConversationID: conversationID, Content: append([]byte(nil), content...)}); err != nil {
		return err
	}

	m.mu.Lock()
	selfID := m.echoSelfID
	m.nextMsgID++
	msgID := m.nextMsgID
	m.mu.Unlock()

	if selfID > 0 {
		m.PushMessages(conversationID, model.Message{
			ID:             msgID,
			ConversationID: conversationID,
			SenderID:       selfID,
			MsgType:        model.MessageTypeText,
			Content:        append([]byte(nil), content...),
			CreatedAt:      time.Now().UnixMilli(),
		})
	}
	return nil
}

func (m *Memory) MarkSeen(ctx context.Context, conversationID string, msgID int64) error {
	return m.record(Command{Kind: CommandMarkSeen, ConversationID: conversationID, MsgID: msgID})
}

func (m *Memory) SetActiveConversation(ctx context.Context, conversationID string) error {
	return m.record(Command{Kind: CommandSetActive, ConversationID: conversationID})
}

// PublishPresence 记录自身在线状态
func (m *Memory) PublishPresence(ctx context.Context, online bool) error {
	return m.record(Command{Kind: CommandPresence, Online: online})
}

func (m *Memory) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Memory) record(cmd Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return appErrors.ErrTransportUnavailable
	}
	if err := m.failures[cmd.Kind]; err != nil {
		return err
	}
	m.commands = append(m.commands, cmd)
	return nil
}

// PushMessages 向会话订阅者推送消息批次
func (m *Memory) PushMessages(conversationID string, messages ...model.Message) {
	m.mu.Lock()
	handlers := make([]MessageHandler, 0, len(m.msgSubs[conversationID]))
	for _, id := range sortedKeys(m.msgSubs[conversationID]) {
		handlers = append(handlers, m.msgSubs[conversationID][id])
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(append([]model.Message(nil), messages...))
	}
}

// PushPresence 推送在线状态
func (m *Memory) PushPresence(userID int64, online bool) {
	m.mu.Lock()
	handlers := make([]PresenceHandler, 0, len(m.presenceSubs[userID]))
	for _, id := range sortedKeys(m.presenceSubs[userID]) {
		handlers = append(handlers, m.presenceSubs[userID][id])
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(userID, online)
	}
}

// PushConversationList 推送会话列表事件
func (m *Memory) PushConversationList(list model.ConversationList) {
	m.mu.Lock()
	handlers := make([]ConversationListHandler, 0, len(m.listSubs))
	for _, id := range sortedKeys(m.listSubs) {
		handlers = append(handlers, m.listSubs[id])
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(list)
	}
}

// Commands 已记录的上行命令
func (m *Memory) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.commands...)
}

// CommandsOf 指定类型的上行命令
func (m *Memory) CommandsOf(kind CommandKind) []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Command
	for _, c := range m.commands {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// ResetCommands 清空命令记录
func (m *Memory) ResetCommands() {
	m.mu.Lock()
	m.commands = nil
	m.mu.Unlock()
}

// LivePresenceSubscriptions 当前存活的在线状态订阅数
func (m *Memory) LivePresenceSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.livePresenceLocked()
}

// MaxLivePresenceSubscriptions 历史上同时存活的在线状态订阅数峰值
func (m *Memory) MaxLivePresenceSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxPresence
}

// PresenceSubscribed 是否订阅了该用户的在线状态
func (m *Memory) PresenceSubscribed(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.presenceSubs[userID]) > 0
}

// MessageSubscriptions 已订阅消息的会话ID（排序后）
func (m *Memory) MessageSubscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.msgSubs))
	for id := range m.msgSubs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) livePresenceLocked() int {
	n := 0
	for _, subs := range m.presenceSubs {
		n += len(subs)
	}
	return n
}

func sortedKeys[V any](in map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
