package controller

import (
	"context"

	"sudooom.im.client/internal/model"
	"sudooom.im.client/internal/presence"
	"sudooom.im.client/internal/store"
	appErrors "sudooom.im.client/shared/errors"
)

// handleMessages 会话消息批次：去重 -> 未读计数 -> 标记已读 -> 更新最后消息并重排
func (c *Controller) handleMessages(b messageBatch) {
	var (
		existing []model.Message
		conv     model.Conversation
		known    bool
		activeID string
	)
	c.store.View(func(st *store.State) {
		existing = st.Log(b.conversationID)
		conv, known = st.Conversation(b.conversationID)
		activeID = st.ActiveID
	})

	incoming := make([]model.Message, 0, len(b.messages))
	for _, m := range b.messages {
		m.ConversationID = b.conversationID
		incoming = append(incoming, m)
	}

	newLog, appended := store.MergeMessages(existing, incoming)
	if len(appended) == 0 {
		c.logger.Debug("Duplicate message batch ignored",
			"conversationId", b.conversationID,
			"count", len(b.messages))
		return
	}

	if !known {
		c.logger.Warn("Messages for unknown conversation",
			"conversationId", b.conversationID,
			"count", len(appended))
		c.store.Update(func(st *store.State) {
			st.SetLog(b.conversationID, newLog)
		})
		c.refreshConversations()
		return
	}

	active := activeID == b.conversationID
	updated, seen := store.ApplyUnread(conv, appended, c.cfg.SelfID, active)
	updated = store.ApplyActivity(updated, appended)

	c.store.Update(func(st *store.State) {
		st.SetLog(b.conversationID, newLog)
		st.Put(updated)
	})

	for _, id := range seen {
		c.dispatchMarkSeen(b.conversationID, id)
	}
}

func (c *Controller) handlePresence(ev presence.Event) {
	if !c.tracker.Handle(ev) {
		return
	}
	online := c.tracker.Online()
	c.store.Update(func(st *store.State) {
		st.Online = online
	})
}

// handleList 会话列表快照或增量
func (c *Controller) handleList(list model.ConversationList) {
	var (
		diff        store.ListDiff
		ids         []string
		deactivated bool
	)
	c.store.Update(func(st *store.State) {
		st.Conversations, diff = store.MergeConversationList(st.Conversations, list, st.ActiveID)
		for _, id := range diff.Removed {
			delete(st.Logs, id)
			if id == st.ActiveID {
				st.ActiveID = ""
				st.Online = false
				deactivated = true
			}
		}
		ids = make([]string, 0, len(st.Conversations))
		for _, conv := range st.Conversations {
			ids = append(ids, conv.ID)
		}
	})

	for _, id := range diff.Removed {
		c.closeMessageSubscription(id)
		delete(c.historyFetched, id)
		delete(c.lastSeenSent, id)
	}
	for _, id := range ids {
		c.ensureMessageSubscription(id)
	}

	if deactivated {
		c.tracker.Stop()
		c.dispatchSetActive("")
	}

	c.logger.Debug("Conversation list merged",
		"full", list.Full,
		"total", len(ids),
		"added", len(diff.Added),
		"removed", len(diff.Removed))
}

func (c *Controller) handleListing(r listingResult) {
	if r.seq != c.listingSeq {
		return
	}
	c.listingBusy = false

	if r.err != nil {
		c.logger.Warn("Failed to fetch conversations", "error", r.err)
		c.store.Update(func(st *store.State) {
			st.Loading = false
			st.Err = appErrors.ErrListingFailed.Wrap(r.err)
		})
		return
	}

	c.store.Update(func(st *store.State) {
		st.Loading = false
		st.Err = nil
	})
	c.handleList(model.ConversationList{Full: true, Conversations: r.conversations})
}

// handleHistory 历史消息回填在已有日志之前，不影响未读
func (c *Controller) handleHistory(r historyResult) {
	if r.err != nil {
		c.logger.Warn("Failed to fetch history",
			"conversationId", r.conversationID,
			"error", r.err)
		delete(c.historyFetched, r.conversationID)
		c.setErr(appErrors.ErrHistoryFailed.Wrap(r.err))
		return
	}

	var (
		existing []model.Message
		conv     model.Conversation
		known    bool
		activeID string
	)
	c.store.View(func(st *store.State) {
		existing = st.Log(r.conversationID)
		conv, known = st.Conversation(r.conversationID)
		activeID = st.ActiveID
	})
	if !known {
		return
	}

	history := make([]model.Message, 0, len(r.messages))
	for _, m := range r.messages {
		m.ConversationID = r.conversationID
		history = append(history, m)
	}
	base, _ := store.MergeMessages(nil, history)
	newLog, _ := store.MergeMessages(base, existing)
	if len(newLog) == len(existing) {
		return
	}

	last := newLog[len(newLog)-1]
	if last.ID > conv.LastMsgID {
		conv.LastMsgID = last.ID
	}
	if last.CreatedAt > conv.LastActivity {
		conv.LastActivity = last.CreatedAt
	}

	c.store.Update(func(st *store.State) {
		st.SetLog(r.conversationID, newLog)
		st.Put(conv)
	})

	if activeID == r.conversationID && last.SenderID != c.cfg.SelfID && c.lastSeenSent[r.conversationID] != last.ID {
		c.dispatchMarkSeen(r.conversationID, last.ID)
	}
}

// handleFailure 上行命令失败只设置错误标记
func (c *Controller) handleFailure(f commandFailure) {
	err := f.err
	if !appErrors.Is(err, appErrors.ErrTransportUnavailable) {
		err = appErrors.ErrTransport.Wrap(err)
	}
	c.logger.Warn("Command failed",
		"command", f.name,
		"error", f.err)
	c.setErr(err)
}

func (c *Controller) ensureMessageSubscription(conversationID string) {
	if _, ok := c.msgSubs[conversationID]; ok {
		return
	}
	sub, err := c.channel.SubscribeMessages(conversationID, func(messages []model.Message) {
		post(c, c.messages, messageBatch{conversationID: conversationID, messages: messages})
	})
	if err != nil {
		c.logger.Warn("Failed to subscribe messages",
			"conversationId", conversationID,
			"error", err)
		c.setErr(appErrors.ErrSubscribeFailed.Wrap(err))
		return
	}
	c.msgSubs[conversationID] = sub
}

func (c *Controller) closeMessageSubscription(conversationID string) {
	sub, ok := c.msgSubs[conversationID]
	if !ok {
		return
	}
	delete(c.msgSubs, conversationID)
	if err := sub.Close(); err != nil {
		c.logger.Warn("Failed to close message subscription",
			"conversationId", conversationID,
			"error", err)
	}
}

// refreshConversations 异步拉取会话列表，同一时刻只保留最新一次请求的结果
func (c *Controller) refreshConversations() {
	if c.listing == nil {
		return
	}
	if c.listingBusy {
		return
	}
	c.listingBusy = true
	c.listingSeq++
	seq := c.listingSeq

	c.store.Update(func(st *store.State) {
		st.Loading = true
	})

	c.async.Add(1)
	go func() {
		defer c.async.Done()
		ctx, cancel := context.WithTimeout(c.baseContext(), c.cfg.FetchTimeout)
		defer cancel()

		convs, err := c.listing.FetchConversations(ctx)
		post(c, c.listings, listingResult{seq: seq, conversations: convs, err: err})
	}()
}

// fetchHistory 会话日志首次打开时异步拉取历史
func (c *Controller) fetchHistory(conversationID string) {
	if c.history == nil || c.historyFetched[conversationID] {
		return
	}
	c.historyFetched[conversationID] = true

	c.async.Add(1)
	go func() {
		defer c.async.Done()
		ctx, cancel := context.WithTimeout(c.baseContext(), c.cfg.FetchTimeout)
		defer cancel()

		messages, err := c.history.Recent(ctx, c.cfg.SelfID, conversationID, c.cfg.HistoryLimit)
		post(c, c.histories, historyResult{conversationID: conversationID, messages: messages, err: err})
	}()
}

func (c *Controller) baseContext() context.Context {
	if c.runCtx != nil {
		return c.runCtx
	}
	return context.Background()
}
