package redis

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"sudooom.im.client/internal/model"
	"sudooom.im.client/internal/transport"
	appErrors "sudooom.im.client/shared/errors"
	sharedRedis "sudooom.im.client/shared/redis"
)

const defaultListingLimit = 200

// ConversationListing 从服务端维护的会话索引拉取会话列表
// 索引成员（p:{peerId} / g:{groupId}）即会话ID
type ConversationListing struct {
	redisClient *redis.Client
	selfID      int64
	limit       int64
	logger      *slog.Logger
}

// NewConversationListing 创建会话列表拉取服务，limit <= 0 时使用默认值
func NewConversationListing(redisClient *redis.Client, selfID int64, limit int64) *ConversationListing {
	if limit <= 0 {
		limit = defaultListingLimit
	}
	return &ConversationListing{
		redisClient: redisClient,
		selfID:      selfID,
		limit:       limit,
		logger:      slog.Default(),
	}
}

// FetchConversations 获取会话列表（按更新时间倒序）
func (l *ConversationListing) FetchConversations(ctx context.Context) ([]model.Conversation, error) {
	idxKey := sharedRedis.BuildConversationIndexKey(l.selfID)

	members, err := l.redisClient.ZRevRangeWithScores(ctx, idxKey, 0, l.limit-1).Result()
	if err != nil {
		return nil, appErrors.ErrListingFailed.Wrap(err)
	}
	if len(members) == 0 {
		return []model.Conversation{}, nil
	}

	// Pipeline 批量获取会话详情
	pipe := l.redisClient.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, z := range members {
		member, _ := z.Member.(string)
		cmds[i] = pipe.HGetAll(ctx, sharedRedis.BuildConversationKey(l.selfID, member))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, appErrors.ErrListingFailed.Wrap(err)
	}

	conversations := make([]model.Conversation, 0, len(members))
	for i, cmd := range cmds {
		member, _ := members[i].Member.(string)
		if kind, _ := model.ParseConversationID(member); kind == model.ConversationUnknown {
			l.logger.Warn("Unknown conversation member skipped", "member", member)
			continue
		}

		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		conv := model.Conversation{
			ID:           member,
			Participants: transport.DefaultParticipants(member, l.selfID),
			LastMsgID:    parseInt64(data[sharedRedis.FieldLastMsgID]),
			UnreadCount:  int(parseInt64(data[sharedRedis.FieldUnreadCount])),
			LastActivity: parseInt64(data[sharedRedis.FieldUpdateAt]),
			Pinned:       data[sharedRedis.FieldIsPinned] == "1",
			Muted:        data[sharedRedis.FieldIsMuted] == "1",
		}
		if conv.LastActivity == 0 {
			conv.LastActivity = int64(members[i].Score)
		}
		if conv.UnreadCount < 0 {
			conv.UnreadCount = 0
		}
		conversations = append(conversations, conv)
	}

	return conversations, nil
}

func parseInt64(str string) int64 {
	v, _ := strconv.ParseInt(str, 10, 64)
	return v
}
