package transport

import (
	"encoding/json"
	"fmt"

	"sudooom.im.client/internal/model"
	"sudooom.im.client/shared/proto"
)

// DecodeMessageBatch 解析会话消息批次。批次未携带会话ID时使用订阅的会话ID，再退回按收发方推导。
func DecodeMessageBatch(data []byte, selfID int64, conversationID string) ([]model.Message, error) {
	var batch proto.MessageBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decode message batch: %w", err)
	}

	convID := batch.ConversationId
	if convID == "" {
		convID = conversationID
	}

	messages := make([]model.Message, 0, len(batch.Messages))
	for _, pm := range batch.Messages {
		if pm.ServerMsgId <= 0 {
			continue
		}
		id := convID
		if id == "" {
			id = model.ConversationIDForMessage(selfID, pm.FromUserId, pm.ToUserId, pm.ToGroupId)
		}
		messages = append(messages, model.Message{
			ID:             pm.ServerMsgId,
			ConversationID: id,
			SenderID:       pm.FromUserId,
			MsgType:        model.MessageType(pm.MsgType),
			Content:        pm.Content,
			CreatedAt:      pm.Timestamp,
		})
	}
	return messages, nil
}

// EncodeMessageBatch 编码会话消息批次
func EncodeMessageBatch(conversationID string, messages []model.Message) ([]byte, error) {
	batch := proto.MessageBatch{
		ConversationId: conversationID,
		Messages:       make([]proto.PushMessage, 0, len(messages)),
	}
	for _, m := range messages {
		batch.Messages = append(batch.Messages, proto.PushMessage{
			ServerMsgId: m.ID,
			FromUserId:  m.SenderID,
			MsgType:     int32(m.MsgType),
			Content:     m.Content,
			Timestamp:   m.CreatedAt,
		})
	}
	return json.Marshal(&batch)
}

// DecodePresence 解析在线状态事件
func DecodePresence(data []byte) (int64, bool, error) {
	var ev proto.PresenceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return 0, false, fmt.Errorf("decode presence: %w", err)
	}
	return ev.UserId, ev.Online, nil
}

// DecodeConversationList 解析会话列表推送
func DecodeConversationList(data []byte, selfID int64) (model.ConversationList, error) {
	var push proto.ConversationListPush
	if err := json.Unmarshal(data, &push); err != nil {
		return model.ConversationList{}, fmt.Errorf("decode conversation list: %w", err)
	}

	list := model.ConversationList{
		Full:          push.Full,
		Conversations: make([]model.Conversation, 0, len(push.Conversations)),
		Removed:       push.Removed,
	}
	for _, info := range push.Conversations {
		if info.ConversationId == "" {
			continue
		}
		list.Conversations = append(list.Conversations, ConversationFromInfo(info, selfID))
	}
	return list, nil
}

// ConversationFromInfo 会话摘要转换为会话，单聊缺少参与者时按会话ID补齐
func ConversationFromInfo(info proto.ConversationInfo, selfID int64) model.Conversation {
	conv := model.Conversation{
		ID:           info.ConversationId,
		UnreadCount:  info.UnreadCount,
		LastMsgID:    info.LastMsgId,
		LastActivity: info.UpdateAt,
		Pinned:       info.IsPinned,
		Muted:        info.IsMuted,
	}

	for _, p := range info.Participants {
		role := model.RoleOther
		if p.UserId == selfID {
			role = model.RoleSelf
		}
		conv.Participants = append(conv.Participants, model.Participant{
			Person: model.Person{
				UserID:   p.UserId,
				Username: p.Username,
				Nickname: p.Nickname,
				Avatar:   p.Avatar,
			},
			Role: role,
		})
	}

	if len(conv.Participants) == 0 {
		conv.Participants = DefaultParticipants(conv.ID, selfID)
	}
	return conv
}

// DefaultParticipants 仅凭会话ID构造参与者：自己 + 单聊对方
func DefaultParticipants(conversationID string, selfID int64) []model.Participant {
	participants := []model.Participant{{Person: model.Person{UserID: selfID}, Role: model.RoleSelf}}
	if kind, peer := model.ParseConversationID(conversationID); kind == model.ConversationPrivate {
		participants = append(participants, model.Participant{Person: model.Person{UserID: peer}, Role: model.RoleOther})
	}
	return participants
}

// NewUserMessage 构造上行用户消息
func NewUserMessage(selfID int64, conversationID, clientMsgID string, content []byte, timestamp int64) (*proto.UserMessage, error) {
	msg := &proto.UserMessage{
		ClientMsgId: clientMsgID,
		FromUserId:  selfID,
		MsgType:     int32(model.MessageTypeText),
		Content:     content,
		Timestamp:   timestamp,
	}
	switch kind, target := model.ParseConversationID(conversationID); kind {
	case model.ConversationPrivate:
		msg.ToUserId = target
	case model.ConversationGroup:
		msg.ToGroupId = target
	default:
		return nil, fmt.Errorf("invalid conversation id %q", conversationID)
	}
	return msg, nil
}
