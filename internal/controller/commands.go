package controller

import (
	"context"

	"sudooom.im.client/internal/workerpool"
	appErrors "sudooom.im.client/shared/errors"
)

// dispatch 提交上行命令，不等待结果
func (c *Controller) dispatch(name string, run func(ctx context.Context) error) {
	if !c.dispatcher.TrySubmit(workerpool.Task{Name: name, Run: run}) {
		c.logger.Warn("Command dropped", "command", name)
		c.setErr(appErrors.ErrTransport.Wrap(errQueueFull))
	}
}

func (c *Controller) dispatchSetActive(conversationID string) {
	c.dispatch("set_active", func(ctx context.Context) error {
		return c.channel.SetActiveConversation(ctx, conversationID)
	})
}

func (c *Controller) dispatchMarkSeen(conversationID string, msgID int64) {
	c.lastSeenSent[conversationID] = msgID
	c.dispatch("mark_seen", func(ctx context.Context) error {
		return c.channel.MarkSeen(ctx, conversationID, msgID)
	})
}
