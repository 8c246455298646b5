package model

import (
	"strconv"
	"strings"
)

// ConversationKind 会话类型
type ConversationKind int

const (
	ConversationUnknown ConversationKind = iota
	ConversationPrivate                  // 单聊 p:{peerId}
	ConversationGroup                    // 群聊 g:{groupId}
)

// Role 参与者角色
type Role int

const (
	RoleOther Role = iota // 对方
	RoleSelf              // 自己
)

func (r Role) String() string {
	if r == RoleSelf {
		return "self"
	}
	return "other"
}

// Person 用户信息
type Person struct {
	UserID   int64  `json:"userId" yaml:"userId"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Nickname string `json:"nickname,omitempty" yaml:"nickname,omitempty"`
	Avatar   string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// Participant 会话参与者
type Participant struct {
	Person `yaml:",inline"`
	Role   Role `json:"role" yaml:"role"`
}

// Conversation 会话
type Conversation struct {
	ID           string        `json:"id" yaml:"id"`
	Participants []Participant `json:"participants" yaml:"participants"`
	UnreadCount  int           `json:"unreadCount" yaml:"unreadCount"`
	LastMsgID    int64         `json:"lastMsgId" yaml:"lastMsgId"`
	LastActivity int64         `json:"lastActivity" yaml:"lastActivity"` // 毫秒，仅用于排序
	Pinned       bool          `json:"pinned" yaml:"pinned"`
	Muted        bool          `json:"muted" yaml:"muted"`
}

// ConversationList 会话列表事件：Full 为全量快照，否则为增量（Conversations 为 upsert）
type ConversationList struct {
	Full          bool           `json:"full"`
	Conversations []Conversation `json:"conversations"`
	Removed       []string       `json:"removed,omitempty"`
}

// PeerConversationID 单聊会话ID
func PeerConversationID(peerID int64) string {
	return "p:" + strconv.FormatInt(peerID, 10)
}

// GroupConversationID 群聊会话ID
func GroupConversationID(groupID int64) string {
	return "g:" + strconv.FormatInt(groupID, 10)
}

// ParseConversationID 解析会话ID，返回类型和对方用户ID/群ID
func ParseConversationID(id string) (ConversationKind, int64) {
	if len(id) < 3 || id[1] != ':' {
		return ConversationUnknown, 0
	}
	target, err := strconv.ParseInt(id[2:], 10, 64)
	if err != nil || target <= 0 {
		return ConversationUnknown, 0
	}
	switch id[0] {
	case 'p':
		return ConversationPrivate, target
	case 'g':
		return ConversationGroup, target
	}
	return ConversationUnknown, 0
}

// ConversationIDForMessage 根据推送消息的收发方推导会话ID
func ConversationIDForMessage(selfID, fromUserID, toUserID, toGroupID int64) string {
	if toGroupID > 0 {
		return GroupConversationID(toGroupID)
	}
	if fromUserID == selfID {
		return PeerConversationID(toUserID)
	}
	return PeerConversationID(fromUserID)
}

// Other 返回需要追踪在线状态的对方参与者；群聊或没有对方时 ok 为 false
func (c *Conversation) Other() (Participant, bool) {
	if kind, _ := ParseConversationID(c.ID); kind == ConversationGroup {
		return Participant{}, false
	}
	var found Participant
	n := 0
	for _, p := range c.Participants {
		if p.Role == RoleOther {
			found = p
			n++
		}
	}
	if n != 1 {
		return Participant{}, false
	}
	return found, true
}

// IsSelf 判断用户是否为会话中的自己
func (c *Conversation) IsSelf(userID int64) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p.Role == RoleSelf
		}
	}
	return false
}

// Title 会话显示名称
func (c *Conversation) Title() string {
	if other, ok := c.Other(); ok {
		if other.Nickname != "" {
			return other.Nickname
		}
		if other.Username != "" {
			return other.Username
		}
		return strconv.FormatInt(other.UserID, 10)
	}
	names := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.Role == RoleOther && p.Nickname != "" {
			names = append(names, p.Nickname)
		}
	}
	if len(names) == 0 {
		return c.ID
	}
	return strings.Join(names, ", ")
}

// Clone 深拷贝
func (c Conversation) Clone() Conversation {
	if c.Participants != nil {
		c.Participants = append([]Participant(nil), c.Participants...)
	}
	return c
}
