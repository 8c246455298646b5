package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	sharedRedis "sudooom.im.client/shared/redis"
)

// PresenceProbe 通过用户位置 Key 判断对方当前是否在线
// 接入层在用户登录时写入 im:user:location:{userId}:{platform}，任一平台存在即视为在线
type PresenceProbe struct {
	redisClient *redis.Client
	platforms   []string
}

// NewPresenceProbe 创建在线状态探测
func NewPresenceProbe(redisClient *redis.Client) *PresenceProbe {
	return &PresenceProbe{
		redisClient: redisClient,
		platforms:   sharedRedis.AllPlatforms,
	}
}

// Online 查询用户是否在任一平台在线
func (p *PresenceProbe) Online(ctx context.Context, userID int64) (bool, error) {
	keys := make([]string, len(p.platforms))
	for i, platform := range p.platforms {
		keys[i] = sharedRedis.BuildUserLocationKeyWithPlatform(userID, platform)
	}

	results, err := p.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return false, err
	}

	for _, result := range results {
		if s, ok := result.(string); ok && s != "" {
			return true, nil
		}
	}
	return false, nil
}
