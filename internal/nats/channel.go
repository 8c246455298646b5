package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"sudooom.im.client/internal/transport"
	appErrors "sudooom.im.client/shared/errors"
	sharedNats "sudooom.im.client/shared/nats"
	"sudooom.im.client/shared/proto"
	"sudooom.im.client/shared/snowflake"
)

// Channel 基于 NATS 的推送通道
// 下行: im.client.{self}.conv.{conv}.messages / im.presence.{user} / im.client.{self}.conversations
// 上行: im.logic.upstream
type Channel struct {
	nc       *nats.Conn
	selfID   int64
	deviceID string
	ids      *snowflake.Node
	logger   *slog.Logger
}

// NewChannel 创建 NATS 推送通道
func NewChannel(nc *nats.Conn, selfID int64, deviceID string, ids *snowflake.Node) *Channel {
	return &Channel{
		nc:       nc,
		selfID:   selfID,
		deviceID: deviceID,
		ids:      ids,
		logger:   slog.Default(),
	}
}

func (c *Channel) SubscribeMessages(conversationID string, h transport.MessageHandler) (transport.Subscription, error) {
	subject := sharedNats.BuildClientMessagesSubject(c.selfID, conversationID)
	return c.subscribe(subject, func(msg *nats.Msg) {
		messages, err := transport.DecodeMessageBatch(msg.Data, c.selfID, conversationID)
		if err != nil {
			c.logger.Error("Failed to unmarshal message batch", "subject", msg.Subject, "error", err)
			return
		}
		if len(messages) > 0 {
			h(messages)
		}
	})
}

func (c *Channel) SubscribePresence(userID int64, h transport.PresenceHandler) (transport.Subscription, error) {
	subject := sharedNats.BuildPresenceSubject(userID)
	return c.subscribe(subject, func(msg *nats.Msg) {
		uid, online, err := transport.DecodePresence(msg.Data)
		if err != nil {
			c.logger.Error("Failed to unmarshal presence", "subject", msg.Subject, "error", err)
			return
		}
		if uid == 0 {
			uid = userID
		}
		h(uid, online)
	})
}

func (c *Channel) SubscribeConversationList(h transport.ConversationListHandler) (transport.Subscription, error) {
	subject := sharedNats.BuildClientConversationsSubject(c.selfID)
	return c.subscribe(subject, func(msg *nats.Msg) {
		list, err := transport.DecodeConversationList(msg.Data, c.selfID)
		if err != nil {
			c.logger.Error("Failed to unmarshal conversation list", "subject", msg.Subject, "error", err)
			return
		}
		h(list)
	})
}

func (c *Channel) subscribe(subject string, cb nats.MsgHandler) (transport.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, cb)
	if err != nil {
		return nil, appErrors.ErrSubscribeFailed.Wrap(err)
	}
	c.logger.Debug("NATS subscribed", "subject", subject)
	return transport.NewSubscription(func() error {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed && err != nats.ErrBadSubscription {
			return err
		}
		return nil
	}), nil
}

func (c *Channel) Send(ctx context.Context, conversationID string, content []byte) error {
	msg, err := transport.NewUserMessage(c.selfID, conversationID, c.ids.Generate().String(), content, time.Now().UnixMilli())
	if err != nil {
		return appErrors.ErrInvalidParams.Wrap(err)
	}
	return c.publish(ctx, sharedNats.SubjectLogicUpstream, c.upstream(func(m *proto.UpstreamMessage) {
		m.UserMessage = msg
	}))
}

func (c *Channel) MarkSeen(ctx context.Context, conversationID string, msgID int64) error {
	return c.publish(ctx, sharedNats.SubjectLogicUpstream, c.upstream(func(m *proto.UpstreamMessage) {
		m.ConversationRead = &proto.ConversationRead{ConversationId: conversationID, LastReadMsgId: msgID}
	}))
}

func (c *Channel) SetActiveConversation(ctx context.Context, conversationID string) error {
	return c.publish(ctx, sharedNats.SubjectLogicUpstream, c.upstream(func(m *proto.UpstreamMessage) {
		m.ConversationActive = &proto.ConversationActive{ConversationId: conversationID}
	}))
}

// PublishPresence 发布自身在线状态
func (c *Channel) PublishPresence(ctx context.Context, online bool) error {
	ev := &proto.PresenceEvent{UserId: c.selfID, Online: online, Timestamp: time.Now().UnixMilli()}
	return c.publish(ctx, sharedNats.BuildPresenceSubject(c.selfID), ev)
}

func (c *Channel) Connected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

func (c *Channel) upstream(fill func(m *proto.UpstreamMessage)) *proto.UpstreamMessage {
	m := &proto.UpstreamMessage{UserId: c.selfID, DeviceId: c.deviceID}
	fill(m)
	return m
}

// publish 发布后 flush 等待服务端确认（ctx 带超时时）
func (c *Channel) publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.Connected() {
		return appErrors.ErrTransportUnavailable
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", "error", err)
		return appErrors.ErrTransport.Wrap(err)
	}

	if err := c.nc.Publish(subject, data); err != nil {
		c.logger.Error("Failed to publish", "subject", subject, "error", err)
		return appErrors.ErrTransport.Wrap(err)
	}
	if _, ok := ctx.Deadline(); ok {
		if err := c.nc.FlushWithContext(ctx); err != nil {
			return appErrors.ErrTransport.Wrap(err)
		}
	}

	c.logger.Debug("Published upstream", "subject", subject)
	return nil
}
