package store

import "sudooom.im.client/internal/model"

// ApplyUnread 按顺序对新追加的消息做未读计数：
// 自己发的不计数；会话激活时清零并返回需要标记已读的消息ID；未激活时加一。
func ApplyUnread(conv model.Conversation, appended []model.Message, selfID int64, active bool) (model.Conversation, []int64) {
	var seen []int64
	for _, m := range appended {
		if m.SenderID == selfID {
			continue
		}
		if active {
			conv.UnreadCount = 0
			seen = append(seen, m.ID)
			continue
		}
		conv.UnreadCount++
	}
	if active {
		conv.UnreadCount = 0
	}
	return conv, seen
}

// ApplyActivity 用新追加的消息刷新会话的最后消息和活跃时间
func ApplyActivity(conv model.Conversation, appended []model.Message) model.Conversation {
	if len(appended) == 0 {
		return conv
	}
	last := appended[len(appended)-1]
	conv.LastMsgID = last.ID
	for _, m := range appended {
		if m.CreatedAt > conv.LastActivity {
			conv.LastActivity = m.CreatedAt
		}
	}
	return conv
}
