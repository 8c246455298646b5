package controller

import (
	"bytes"
	"context"

	"sudooom.im.client/internal/model"
	"sudooom.im.client/internal/store"
	appErrors "sudooom.im.client/shared/errors"
)

// OpenConversation 打开会话
// 顺序: 切换激活会话并清零未读 -> 通知服务端激活会话 -> 标记最后一条对方消息已读 -> 观察对方在线状态
func (c *Controller) OpenConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.openConversation(conversationID)
	})
}

func (c *Controller) openConversation(conversationID string) error {
	var (
		conv  model.Conversation
		found bool
		log   []model.Message
	)
	c.store.View(func(st *store.State) {
		conv, found = st.Conversation(conversationID)
		log = st.Log(conversationID)
	})
	if !found {
		c.logger.Info("Open unknown conversation ignored", "conversationId", conversationID)
		return appErrors.ErrConversationNotFound
	}

	c.store.Update(func(st *store.State) {
		st.ActiveID = conversationID
		st.Online = false
		if i := st.Index(conversationID); i >= 0 {
			st.Conversations[i].UnreadCount = 0
		}
	})

	c.dispatchSetActive(conversationID)

	if n := len(log); n > 0 && log[n-1].SenderID != c.cfg.SelfID {
		c.dispatchMarkSeen(conversationID, log[n-1].ID)
	}

	if other, ok := conv.Other(); ok {
		if err := c.tracker.Observe(other.UserID); err != nil {
			c.setErr(err)
		}
	} else {
		c.tracker.Stop()
	}
	// 重复打开同一对方时订阅保持，在线标记以 tracker 为准
	if online := c.tracker.Online(); online {
		c.store.Update(func(st *store.State) {
			st.Online = online
		})
	}

	c.ensureMessageSubscription(conversationID)
	c.fetchHistory(conversationID)

	c.logger.Debug("Conversation opened",
		"conversationId", conversationID,
		"logSize", len(log))
	return nil
}

// SendMessage 向当前会话发送消息。日志只在服务端回显后更新。
// 连接断开时直接拒绝，不排队。
func (c *Controller) SendMessage(ctx context.Context, content []byte) error {
	return c.do(ctx, func(ctx context.Context) error {
		activeID := c.store.ActiveConversationID()
		if activeID == "" {
			return appErrors.ErrNoActiveConversation
		}
		if len(bytes.TrimSpace(content)) == 0 {
			return appErrors.ErrEmptyContent
		}
		if !c.channel.Connected() {
			c.setErr(appErrors.ErrTransportUnavailable)
			return appErrors.ErrTransportUnavailable
		}

		c.store.Update(func(st *store.State) {
			if i := st.Index(activeID); i >= 0 {
				st.Conversations[i].UnreadCount = 0
			}
		})

		payload := append([]byte(nil), content...)
		c.dispatch("send", func(ctx context.Context) error {
			return c.channel.Send(ctx, activeID, payload)
		})
		return nil
	})
}

// ToggleConversationView 切换会话视图，不影响未读和激活会话
func (c *Controller) ToggleConversationView(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		c.store.Update(func(st *store.State) {
			st.ViewOpen = !st.ViewOpen
		})
		return nil
	})
}

// ToggleChat 打开或关闭聊天窗口
// 打开时重新拉取会话列表作为同步基线；关闭时取消激活会话并停止在线状态观察，消息订阅保持
func (c *Controller) ToggleChat(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		var opening bool
		c.store.View(func(st *store.State) {
			opening = !st.ChatOpen
		})

		if opening {
			c.store.Update(func(st *store.State) {
				st.ChatOpen = true
			})
			c.refreshConversations()
			return nil
		}

		var hadActive bool
		c.store.Update(func(st *store.State) {
			hadActive = st.ActiveID != ""
			st.ChatOpen = false
			st.ActiveID = ""
			st.Online = false
		})
		c.tracker.Stop()
		if hadActive {
			c.dispatchSetActive("")
		}
		return nil
	})
}

// RefreshConversations 主动重新拉取会话列表
func (c *Controller) RefreshConversations(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		c.refreshConversations()
		return nil
	})
}
