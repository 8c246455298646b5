package nats

import "strconv"

// NATS Subject 常量定义
const (
	// SubjectLogicUpstream Client -> Logic 上行命令（发送消息、已读、激活会话）
	SubjectLogicUpstream = "im.logic.upstream"

	// SubjectClientPrefix Logic -> Client 下行前缀
	// 会话消息: im.client.{self}.conv.{conv}.messages
	// 会话列表: im.client.{self}.conversations
	SubjectClientPrefix = "im.client."

	// SubjectPresencePrefix 在线状态前缀
	// 完整格式: im.presence.{user_id}
	SubjectPresencePrefix = "im.presence."
)

// BuildClientMessagesSubject 构建会话消息 Subject
func BuildClientMessagesSubject(selfID int64, conversationID string) string {
	return SubjectClientPrefix + strconv.FormatInt(selfID, 10) + ".conv." + conversationID + ".messages"
}

// BuildClientConversationsSubject 构建会话列表 Subject
func BuildClientConversationsSubject(selfID int64) string {
	return SubjectClientPrefix + strconv.FormatInt(selfID, 10) + ".conversations"
}

// BuildPresenceSubject 构建在线状态 Subject
func BuildPresenceSubject(userID int64) string {
	return SubjectPresencePrefix + strconv.FormatInt(userID, 10)
}
