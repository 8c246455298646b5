package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"sudooom.im.client/internal/config"
)

// Client Redis 客户端
type Client struct {
	client *redis.Client
	logger *slog.Logger
}

// NewClient 创建 Redis 客户端
func NewClient(cfg config.RedisConfig) *Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	return &Client{
		client: client,
		logger: slog.Default(),
	}
}

// Ping 检查连接
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.client.Close()
}

// GetClient 获取原生 Redis 客户端
func (c *Client) GetClient() *redis.Client {
	return c.client
}
