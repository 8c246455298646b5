package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sudooom.im.client/internal/transport"
	appErrors "sudooom.im.client/shared/errors"
)

// Subscriber 在线状态订阅方
type Subscriber interface {
	SubscribePresence(userID int64, h transport.PresenceHandler) (transport.Subscription, error)
}

// Probe 在线状态探测（订阅建立时用于初始化标记）
type Probe interface {
	Online(ctx context.Context, userID int64) (bool, error)
}

// Event 在线状态事件。Probe 为 true 表示来自探测，收到过实时事件后探测结果会被忽略。
type Event struct {
	UserID int64
	Online bool
	Probe  bool
}

// Tracker 追踪当前会话对方的在线状态
// 状态: 未观察 / 观察(userID)，任意时刻最多一个存活订阅
type Tracker struct {
	mu           sync.Mutex
	subscriber   Subscriber
	probe        Probe
	probeTimeout time.Duration
	emit         func(Event)
	logger       *slog.Logger

	observed int64
	online   bool
	live     bool
	handle   transport.Subscription
}

// Option 追踪器选项
type Option func(*Tracker)

// WithProbe 设置在线探测
func WithProbe(probe Probe, timeout time.Duration) Option {
	return func(t *Tracker) {
		t.probe = probe
		if timeout > 0 {
			t.probeTimeout = timeout
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker 创建在线状态追踪器，emit 负责把事件送回串行处理循环
func NewTracker(subscriber Subscriber, emit func(Event), opts ...Option) *Tracker {
	t := &Tracker{
		subscriber:   subscriber,
		emit:         emit,
		probeTimeout: 2 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe 切换观察对象：先释放旧订阅，再订阅新用户，标记重置为离线
func (t *Tracker) Observe(userID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if userID <= 0 {
		t.stopLocked()
		return nil
	}
	if t.observed == userID && t.handle != nil {
		return nil
	}

	t.stopLocked()
	t.observed = userID

	handle, err := t.subscriber.SubscribePresence(userID, func(uid int64, online bool) {
		t.emit(Event{UserID: uid, Online: online})
	})
	if err != nil {
		if handle != nil {
			_ = handle.Close()
		}
		t.logger.Warn("Failed to subscribe presence",
			"userId", userID,
			"error", err)
		return appErrors.ErrSubscribeFailed.Wrap(err)
	}
	t.handle = handle

	if t.probe != nil {
		go t.runProbe(userID)
	}
	return nil
}

// Stop 停止观察并释放订阅
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Handle 处理事件，返回在线标记是否变化。非当前观察对象的事件视为过期丢弃。
func (t *Tracker) Handle(ev Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.observed == 0 || ev.UserID != t.observed {
		return false
	}
	if ev.Probe {
		if t.live {
			return false
		}
	} else {
		t.live = true
	}
	changed := t.online != ev.Online
	t.online = ev.Online
	return changed
}

// Observed 当前观察对象
func (t *Tracker) Observed() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observed, t.observed != 0
}

// Online 当前观察对象是否在线，未观察或从未收到事件时为离线
func (t *Tracker) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

func (t *Tracker) stopLocked() {
	if t.handle != nil {
		if err := t.handle.Close(); err != nil {
			t.logger.Warn("Failed to close presence subscription",
				"userId", t.observed,
				"error", err)
		}
		t.handle = nil
	}
	t.observed = 0
	t.online = false
	t.live = false
}

func (t *Tracker) runProbe(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), t.probeTimeout)
	defer cancel()

	online, err := t.probe.Online(ctx, userID)
	if err != nil {
		t.logger.Debug("Presence probe failed",
			"userId", userID,
			"error", err)
		return
	}
	t.emit(Event{UserID: userID, Online: online, Probe: true})
}
