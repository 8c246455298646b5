package proto

// ============== 上行命令 (Client -> Logic) ==============

// UpstreamMessage 上行命令封装，同一时刻只有一个载荷字段非空
type UpstreamMessage struct {
	UserId             int64               `json:"UserId"`
	DeviceId           string              `json:"DeviceId"`
	UserMessage        *UserMessage        `json:"UserMessage,omitempty"`
	ConversationRead   *ConversationRead   `json:"ConversationRead,omitempty"`
	ConversationActive *ConversationActive `json:"ConversationActive,omitempty"`
}

// UserMessage 用户消息
type UserMessage struct {
	ClientMsgId string `json:"ClientMsgId"`
	FromUserId  int64  `json:"FromUserId"`
	ToUserId    int64  `json:"ToUserId"`
	ToGroupId   int64  `json:"ToGroupId"`
	MsgType     int32  `json:"MsgType"`
	Content     []byte `json:"Content"`
	Timestamp   int64  `json:"Timestamp"`
}

// ConversationRead 会话已读（最后已读的服务端消息ID）
type ConversationRead struct {
	ConversationId string `json:"ConversationId"`
	LastReadMsgId  int64  `json:"LastReadMsgId"`
}

// ConversationActive 当前激活会话，ConversationId 为空表示没有激活会话
type ConversationActive struct {
	ConversationId string `json:"ConversationId"`
}

// ============== 下行推送 (Logic -> Client) ==============

// PushMessage 推送消息
type PushMessage struct {
	ServerMsgId int64  `json:"ServerMsgId"`
	FromUserId  int64  `json:"FromUserId"`
	ToUserId    int64  `json:"ToUserId"`
	ToGroupId   int64  `json:"ToGroupId"`
	MsgType     int32  `json:"MsgType"`
	Content     []byte `json:"Content"`
	Timestamp   int64  `json:"Timestamp"`
}

// MessageBatch 会话消息批次
type MessageBatch struct {
	ConversationId string        `json:"ConversationId"`
	Messages       []PushMessage `json:"Messages"`
}

// PresenceEvent 在线状态事件
type PresenceEvent struct {
	UserId    int64 `json:"UserId"`
	Online    bool  `json:"Online"`
	Timestamp int64 `json:"Timestamp"`
}

// PersonInfo 会话参与者信息
type PersonInfo struct {
	UserId   int64  `json:"UserId"`
	Username string `json:"Username"`
	Nickname string `json:"Nickname"`
	Avatar   string `json:"Avatar"`
}

// ConversationInfo 会话摘要
type ConversationInfo struct {
	ConversationId string       `json:"ConversationId"`
	Participants   []PersonInfo `json:"Participants"`
	UnreadCount    int          `json:"UnreadCount"`
	LastMsgId      int64        `json:"LastMsgId"`
	UpdateAt       int64        `json:"UpdateAt"`
	IsPinned       bool         `json:"IsPinned"`
	IsMuted        bool         `json:"IsMuted"`
}

// ConversationListPush 会话列表推送（Full 为全量快照，否则为增量）
type ConversationListPush struct {
	Full          bool               `json:"Full"`
	Conversations []ConversationInfo `json:"Conversations"`
	Removed       []string           `json:"Removed,omitempty"`
}
