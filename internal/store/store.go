package store

import (
	"sync"

	"sudooom.im.client/internal/model"
)

// State 会话状态，只由同步控制器通过 Store.Update 修改
type State struct {
	Conversations []model.Conversation
	ActiveID      string
	Logs          map[string][]model.Message
	Online        bool
	Loading       bool
	Err           error
	ChatOpen      bool
	ViewOpen      bool
}

// Index 查找会话下标
func (st *State) Index(id string) int {
	for i := range st.Conversations {
		if st.Conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// Conversation 按ID获取会话
func (st *State) Conversation(id string) (model.Conversation, bool) {
	if i := st.Index(id); i >= 0 {
		return st.Conversations[i], true
	}
	return model.Conversation{}, false
}

// Put 更新已存在的会话并重新排序
func (st *State) Put(conv model.Conversation) {
	if i := st.Index(conv.ID); i >= 0 {
		st.Conversations[i] = conv
		SortConversations(st.Conversations)
	}
}

// Log 会话消息日志
func (st *State) Log(id string) []model.Message {
	return st.Logs[id]
}

// SetLog 替换会话消息日志
func (st *State) SetLog(id string, log []model.Message) {
	if st.Logs == nil {
		st.Logs = make(map[string][]model.Message)
	}
	st.Logs[id] = log
}

// Snapshot 对外暴露的完整只读快照
type Snapshot struct {
	Version              uint64               `json:"version" yaml:"version"`
	Conversations        []model.Conversation `json:"conversations" yaml:"conversations"`
	ActiveConversationID string               `json:"activeConversationId" yaml:"activeConversationId"`
	ActiveMessages       []model.Message      `json:"activeMessages" yaml:"activeMessages"`
	UnreadCounts         map[string]int       `json:"unreadCounts" yaml:"unreadCounts"`
	Online               bool                 `json:"online" yaml:"online"`
	Loading              bool                 `json:"loading" yaml:"loading"`
	Error                string               `json:"error,omitempty" yaml:"error,omitempty"`
	ChatOpen             bool                 `json:"chatOpen" yaml:"chatOpen"`
	ViewOpen             bool                 `json:"viewOpen" yaml:"viewOpen"`
}

// Store 会话存储，UI 读取的唯一数据源
// 写入在写锁内完整执行，读取返回拷贝，读者不会看到合并到一半的状态
type Store struct {
	mu      sync.RWMutex
	state   State
	version uint64

	watchMu  sync.Mutex
	watchers map[uint64]chan Snapshot
	nextID   uint64
}

// New 创建会话存储
func New() *Store {
	return &Store{
		state:    State{Logs: make(map[string][]model.Message)},
		watchers: make(map[uint64]chan Snapshot),
	}
}

// Update 在写锁内修改状态，完成后通知订阅者
func (s *Store) Update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

// View 在读锁内读取状态，fn 不得修改 State。
// 日志切片只会被整体替换，取出后可在锁外只读使用。
func (s *Store) View(fn func(st *State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.state)
}

// Snapshot 当前完整快照
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Conversations 会话列表
func (s *Store) Conversations() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConversations(s.state.Conversations)
}

// Conversation 按ID获取会话
func (s *Store) Conversation(id string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.state.Conversation(id)
	return conv.Clone(), ok
}

// ConversationCount 会话数
func (s *Store) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.Conversations)
}

// ActiveConversationID 当前激活会话ID，没有时为空
func (s *Store) ActiveConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ActiveID
}

// ActiveMessages 当前激活会话的消息日志
func (s *Store) ActiveMessages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.state.Logs[s.state.ActiveID])
}

// Messages 指定会话的消息日志
func (s *Store) Messages(id string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.state.Logs[id])
}

// UnreadCounts 各会话未读数
func (s *Store) UnreadCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return unreadCounts(s.state.Conversations)
}

// Online 当前会话对方是否在线
func (s *Store) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Online
}

// Loading 是否正在加载会话列表
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

// Err 最近一次传输错误
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Err
}

// Watch 订阅状态变化。通道容量为 1，消费慢时只保留最新快照。
func (s *Store) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	// 持有 watchMu 时取快照，之后的更新一定会被推送
	s.watchMu.Lock()
	ch <- s.Snapshot()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.watchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, id)
			s.watchMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) publish(snap Snapshot) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for _, ch := range s.watchers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// 丢弃未被消费的旧快照
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:              s.version,
		Conversations:        cloneConversations(s.state.Conversations),
		ActiveConversationID: s.state.ActiveID,
		ActiveMessages:       cloneMessages(s.state.Logs[s.state.ActiveID]),
		UnreadCounts:         unreadCounts(s.state.Conversations),
		Online:               s.state.Online,
		Loading:              s.state.Loading,
		ChatOpen:             s.state.ChatOpen,
		ViewOpen:             s.state.ViewOpen,
	}
	if s.state.Err != nil {
		snap.Error = s.state.Err.Error()
	}
	return snap
}

func cloneConversations(list []model.Conversation) []model.Conversation {
	out := make([]model.Conversation, len(list))
	for i, c := range list {
		out[i] = c.Clone()
	}
	return out
}

func cloneMessages(log []model.Message) []model.Message {
	if len(log) == 0 {
		return []model.Message{}
	}
	return append([]model.Message(nil), log...)
}

func unreadCounts(list []model.Conversation) map[string]int {
	counts := make(map[string]int, len(list))
	for _, c := range list {
		counts[c.ID] = c.UnreadCount
	}
	return counts
}
