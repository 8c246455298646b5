package store

import (
	"sort"

	"sudooom.im.client/internal/model"
)

// ListDiff 会话列表合并前后的成员变化
type ListDiff struct {
	Added   []string
	Removed []string
}

// MergeConversationList 按会话ID合并列表事件。
// 全量快照替换成员集合，增量只做 upsert 和删除；未读数以服务端为准，激活会话强制为 0。
// 本地已有的参与者展示信息和更晚的活跃时间会被保留。
func MergeConversationList(current []model.Conversation, incoming model.ConversationList, activeID string) ([]model.Conversation, ListDiff) {
	var diff ListDiff

	byID := make(map[string]int, len(current))
	for i, c := range current {
		byID[c.ID] = i
	}

	merged := make([]model.Conversation, 0, len(current)+len(incoming.Conversations))
	kept := make(map[string]struct{}, len(current)+len(incoming.Conversations))

	upsert := func(in model.Conversation) {
		if in.ID == "" {
			return
		}
		in = in.Clone()
		if in.UnreadCount < 0 {
			in.UnreadCount = 0
		}
		if _, ok := kept[in.ID]; ok {
			for j := range merged {
				if merged[j].ID == in.ID {
					merged[j] = mergeConversation(merged[j], in)
				}
			}
			return
		}
		if i, ok := byID[in.ID]; ok {
			in = mergeConversation(current[i], in)
		} else {
			diff.Added = append(diff.Added, in.ID)
		}
		kept[in.ID] = struct{}{}
		merged = append(merged, in)
	}

	if incoming.Full {
		for _, in := range incoming.Conversations {
			upsert(in)
		}
		for _, c := range current {
			if _, ok := kept[c.ID]; !ok {
				diff.Removed = append(diff.Removed, c.ID)
			}
		}
	} else {
		removed := make(map[string]struct{}, len(incoming.Removed))
		for _, id := range incoming.Removed {
			removed[id] = struct{}{}
		}
		for _, c := range current {
			if _, ok := removed[c.ID]; ok {
				diff.Removed = append(diff.Removed, c.ID)
				continue
			}
			kept[c.ID] = struct{}{}
			merged = append(merged, c.Clone())
		}
		// 已存在的会话原地更新，新会话追加
		for _, in := range incoming.Conversations {
			if _, ok := removed[in.ID]; ok {
				continue
			}
			upsert(in)
		}
	}

	if activeID != "" {
		for i := range merged {
			if merged[i].ID == activeID {
				merged[i].UnreadCount = 0
			}
		}
	}

	SortConversations(merged)
	return merged, diff
}

// mergeConversation 服务端记录覆盖本地记录，但补齐缺失的展示信息并保留更新的活跃进度
func mergeConversation(local, remote model.Conversation) model.Conversation {
	if remote.LastActivity < local.LastActivity {
		remote.LastActivity = local.LastActivity
	}
	if remote.LastMsgID < local.LastMsgID {
		remote.LastMsgID = local.LastMsgID
	}
	if len(remote.Participants) == 0 {
		remote.Participants = append([]model.Participant(nil), local.Participants...)
		return remote
	}
	for i, p := range remote.Participants {
		for _, lp := range local.Participants {
			if lp.UserID != p.UserID {
				continue
			}
			if p.Username == "" {
				remote.Participants[i].Username = lp.Username
			}
			if p.Nickname == "" {
				remote.Participants[i].Nickname = lp.Nickname
			}
			if p.Avatar == "" {
				remote.Participants[i].Avatar = lp.Avatar
			}
		}
	}
	return remote
}

// SortConversations 按最后活跃时间倒序（稳定排序）
func SortConversations(list []model.Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastActivity > list[j].LastActivity
	})
}
