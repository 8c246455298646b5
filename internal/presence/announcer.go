package presence

import (
	"context"
	"log/slog"
	"time"

	"sudooom.im.client/internal/transport"
)

// Announcer 自身在线状态广播：启动时上线，按间隔续约，停止时下线
type Announcer struct {
	publisher transport.PresencePublisher
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	onError   func(err error) // 发布失败回调
}

// NewAnnouncer 创建在线状态广播器
func NewAnnouncer(publisher transport.PresencePublisher, interval time.Duration, logger *slog.Logger, onError func(err error)) *Announcer {
	// 设置默认值
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Announcer{
		publisher: publisher,
		interval:  interval,
		timeout:   5 * time.Second,
		logger:    logger,
		onError:   onError,
	}
}

// Start 启动广播（阻塞，应在 goroutine 中调用），ctx 取消后发布下线
func (a *Announcer) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("Presence announcer started",
		"interval", a.interval)

	a.publish(ctx, true)

	for {
		select {
		case <-ctx.Done():
			// ctx 已取消，下线通知使用独立的超时 context
			offCtx, cancel := context.WithTimeout(context.Background(), a.timeout)
			a.publish(offCtx, false)
			cancel()
			a.logger.Info("Presence announcer stopped")
			return
		case <-ticker.C:
			a.publish(ctx, true)
		}
	}
}

func (a *Announcer) publish(ctx context.Context, online bool) {
	pubCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.publisher.PublishPresence(pubCtx, online); err != nil {
		a.logger.Debug("Failed to publish presence",
			"online", online,
			"error", err)
		if a.onError != nil {
			a.onError(err)
		}
	}
}
