package transport

import (
	"context"
	"sync"

	"sudooom.im.client/internal/model"
)

// Subscription 订阅句柄，Close 可重复调用
type Subscription interface {
	Close() error
}

// MessageHandler 会话消息批次回调
type MessageHandler func(messages []model.Message)

// PresenceHandler 在线状态回调
type PresenceHandler func(userID int64, online bool)

// ConversationListHandler 会话列表快照/增量回调
type ConversationListHandler func(list model.ConversationList)

// Channel 推送通道：三类下行事件流和三类上行命令
type Channel interface {
	SubscribeMessages(conversationID string, h MessageHandler) (Subscription, error)
	SubscribePresence(userID int64, h PresenceHandler) (Subscription, error)
	SubscribeConversationList(h ConversationListHandler) (Subscription, error)

	Send(ctx context.Context, conversationID string, content []byte) error
	MarkSeen(ctx context.Context, conversationID string, msgID int64) error
	SetActiveConversation(ctx context.Context, conversationID string) error

	Connected() bool
}

// PresencePublisher 发布自身在线状态
type PresencePublisher interface {
	PublishPresence(ctx context.Context, online bool) error
}

// subscriptionFunc 把关闭函数包装成只执行一次的订阅句柄
type subscriptionFunc struct {
	once sync.Once
	fn   func() error
	err  error
}

// NewSubscription 创建订阅句柄，fn 最多执行一次
func NewSubscription(fn func() error) Subscription {
	return &subscriptionFunc{fn: fn}
}

func (s *subscriptionFunc) Close() error {
	s.once.Do(func() {
		if s.fn != nil {
			s.err = s.fn()
		}
	})
	return s.err
}
