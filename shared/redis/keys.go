package redis

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// UserLocationKeyPrefix 用户位置 Redis Key 前缀
	UserLocationKeyPrefix = "im:user:location:"

	// ConversationIndexKeyPrefix 会话索引（ZSet，score 为更新时间）
	ConversationIndexKeyPrefix = "im:conv:idx:"

	// ConversationKeyPrefix 会话详情（Hash）
	ConversationKeyPrefix = "im:conv:"

	// LocationTTL 用户位置 TTL
	LocationTTL = 24 * time.Hour
)

// 会话 Hash 字段
const (
	FieldLastMsgID   = "last_msg_id"
	FieldUnreadCount = "unread_count"
	FieldUpdateAt    = "update_at"
	FieldIsPinned    = "is_pinned"
	FieldIsMuted     = "is_muted"
)

// AllPlatforms 支持的所有平台列表
var AllPlatforms = []string{"android", "ios", "web", "desktop", "wechat"}

// BuildUserLocationKeyWithPlatform 构建用户位置 Key（按平台）
// Key: im:user:location:{userId}:{platform}
func BuildUserLocationKeyWithPlatform(userId int64, platform string) string {
	return fmt.Sprintf("%s%d:%s", UserLocationKeyPrefix, userId, platform)
}

// BuildConversationIndexKey 构建会话索引 Key
// Key: im:conv:idx:{userId}
func BuildConversationIndexKey(userId int64) string {
	return fmt.Sprintf("%s%d", ConversationIndexKeyPrefix, userId)
}

// BuildConversationPeerMember 单聊会话索引成员 p:{peerId}
func BuildConversationPeerMember(peerId int64) string {
	return "p:" + strconv.FormatInt(peerId, 10)
}

// BuildConversationGroupMember 群聊会话索引成员 g:{groupId}
func BuildConversationGroupMember(groupId int64) string {
	return "g:" + strconv.FormatInt(groupId, 10)
}

// BuildConversationKey 由索引成员构建会话详情 Key
// Key: im:conv:{userId}:{member}
func BuildConversationKey(userId int64, member string) string {
	return fmt.Sprintf("%s%d:%s", ConversationKeyPrefix, userId, member)
}

// BuildConversationPeerKey 构建单聊会话详情 Key
func BuildConversationPeerKey(userId, peerId int64) string {
	return BuildConversationKey(userId, BuildConversationPeerMember(peerId))
}

// BuildConversationGroupKey 构建群聊会话详情 Key
func BuildConversationGroupKey(userId, groupId int64) string {
	return BuildConversationKey(userId, BuildConversationGroupMember(groupId))
}
