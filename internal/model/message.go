package model

// MessageType 消息类型
type MessageType int32

const (
	MessageTypeText  MessageType = 1 // 文本
	MessageTypeImage MessageType = 2 // 图片
	MessageTypeVoice MessageType = 3 // 语音
	MessageTypeVideo MessageType = 4 // 视频
	MessageTypeFile  MessageType = 5 // 文件
)

// Message 消息（ID 为服务端分配的 ServerMsgId，用于去重）
type Message struct {
	ID             int64       `json:"id" yaml:"id"`
	ConversationID string      `json:"conversationId" yaml:"conversationId"`
	SenderID       int64       `json:"senderId" yaml:"senderId"`
	MsgType        MessageType `json:"msgType" yaml:"msgType"`
	Content        []byte      `json:"content" yaml:"content"`
	CreatedAt      int64       `json:"createdAt" yaml:"createdAt"` // 毫秒
}

// Text 文本内容
func (m Message) Text() string {
	return string(m.Content)
}
