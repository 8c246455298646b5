package controller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sudooom.im.client/internal/model"
	"sudooom.im.client/internal/presence"
	"sudooom.im.client/internal/store"
	"sudooom.im.client/internal/transport"
	"sudooom.im.client/internal/workerpool"
	appErrors "sudooom.im.client/shared/errors"
)

// ListingService 会话列表拉取
type ListingService interface {
	FetchConversations(ctx context.Context) ([]model.Conversation, error)
}

// HistorySource 历史消息拉取，按时间正序返回
type HistorySource interface {
	Recent(ctx context.Context, selfID int64, conversationID string, limit int) ([]model.Message, error)
}

// Config 同步控制器配置
type Config struct {
	SelfID         int64
	QueueSize      int           // 每个事件源的入口队列大小
	CommandQueue   int           // 上行命令队列大小
	CommandTimeout time.Duration // 单个上行命令超时
	FetchTimeout   time.Duration // 列表和历史拉取超时
	HistoryLimit   int
	ProbeTimeout   time.Duration
}

// Option 控制器选项
type Option func(*Controller)

// WithListing 设置会话列表服务
func WithListing(listing ListingService) Option {
	return func(c *Controller) { c.listing = listing }
}

// WithHistory 设置历史消息来源
func WithHistory(history HistorySource) Option {
	return func(c *Controller) { c.history = history }
}

// WithPresenceProbe 设置在线状态探测
func WithPresenceProbe(probe presence.Probe) Option {
	return func(c *Controller) { c.probe = probe }
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

type messageBatch struct {
	conversationID string
	messages       []model.Message
}

type listingResult struct {
	seq           uint64
	conversations []model.Conversation
	err           error
}

type historyResult struct {
	conversationID string
	messages       []model.Message
	err            error
}

type commandFailure struct {
	name string
	err  error
}

type action struct {
	fn    func(ctx context.Context) error
	reply chan error
}

// Controller 同步控制器：所有状态修改的唯一串行化入口
// 每个事件源一个入口队列，Run 中的单个循环逐个处理到底
type Controller struct {
	cfg        Config
	store      *store.Store
	channel    transport.Channel
	listing    ListingService
	history    HistorySource
	probe      presence.Probe
	tracker    *presence.Tracker
	dispatcher *workerpool.Dispatcher
	logger     *slog.Logger

	messages  chan messageBatch
	presences chan presence.Event
	lists     chan model.ConversationList
	listings  chan listingResult
	histories chan historyResult
	failures  chan commandFailure
	actions   chan action

	// 以下字段只在循环内访问
	runCtx         context.Context
	listSub        transport.Subscription
	msgSubs        map[string]transport.Subscription
	historyFetched map[string]bool
	lastSeenSent   map[string]int64
	listingSeq     uint64
	listingBusy    bool

	async   sync.WaitGroup
	running atomic.Bool
	done    chan struct{}
}

// New 创建同步控制器
func New(cfg Config, st *store.Store, channel transport.Channel, opts ...Option) *Controller {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}

	c := &Controller{
		cfg:            cfg,
		store:          st,
		channel:        channel,
		logger:         slog.Default(),
		messages:       make(chan messageBatch, cfg.QueueSize),
		presences:      make(chan presence.Event, cfg.QueueSize),
		lists:          make(chan model.ConversationList, cfg.QueueSize),
		listings:       make(chan listingResult, 4),
		histories:      make(chan historyResult, cfg.QueueSize),
		failures:       make(chan commandFailure, cfg.QueueSize),
		actions:        make(chan action),
		msgSubs:        make(map[string]transport.Subscription),
		historyFetched: make(map[string]bool),
		lastSeenSent:   make(map[string]int64),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	trackerOpts := []presence.Option{presence.WithLogger(c.logger)}
	if c.probe != nil {
		trackerOpts = append(trackerOpts, presence.WithProbe(c.probe, cfg.ProbeTimeout))
	}
	c.tracker = presence.NewTracker(channel, func(ev presence.Event) {
		post(c, c.presences, ev)
	}, trackerOpts...)

	c.dispatcher = workerpool.New(cfg.CommandQueue, cfg.CommandTimeout, c.logger, func(name string, err error) {
		post(c, c.failures, commandFailure{name: name, err: err})
	})

	return c
}

// post 把事件送入入口队列，控制器停止后丢弃
func post[T any](c *Controller, ch chan T, v T) {
	select {
	case ch <- v:
	case <-c.done:
	}
}

// Run 运行事件循环（阻塞），ctx 取消后释放所有订阅并返回
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return appErrors.ErrServerError.Wrap(errAlreadyRunning)
	}
	c.runCtx = ctx

	c.logger.Info("Sync controller started",
		"selfId", c.cfg.SelfID,
		"queue_size", c.cfg.QueueSize)

	sub, err := c.channel.SubscribeConversationList(func(list model.ConversationList) {
		post(c, c.lists, list)
	})
	if err != nil {
		c.logger.Error("Failed to subscribe conversation list", "error", err)
		c.setErr(appErrors.ErrSubscribeFailed.Wrap(err))
	} else {
		c.listSub = sub
	}

	for c.step(ctx, true) {
	}
	c.shutdown()
	return ctx.Err()
}

// step 处理一个事件。block 为 false 时只处理已入队的事件，不接收动作，队列为空立即返回 false
func (c *Controller) step(ctx context.Context, block bool) bool {
	actions := c.actions
	if !block {
		// 事件循环是入口队列唯一的消费者，队列非空时下面的 select 不会阻塞
		if c.queued() == 0 {
			return false
		}
		actions = nil
	}

	select {
	case <-ctx.Done():
		return false
	case a := <-actions:
		a.reply <- a.fn(ctx)
	case b := <-c.messages:
		c.handleMessages(b)
	case ev := <-c.presences:
		c.handlePresence(ev)
	case list := <-c.lists:
		c.handleList(list)
	case r := <-c.listings:
		c.handleListing(r)
	case r := <-c.histories:
		c.handleHistory(r)
	case f := <-c.failures:
		c.handleFailure(f)
	}
	return true
}

// queued 入口队列中待处理的事件数，新增事件源时需同时加到 step 和这里
func (c *Controller) queued() int {
	return len(c.messages) + len(c.presences) + len(c.lists) +
		len(c.listings) + len(c.histories) + len(c.failures)
}

func (c *Controller) shutdown() {
	close(c.done)

	c.tracker.Stop()
	for id, sub := range c.msgSubs {
		if err := sub.Close(); err != nil {
			c.logger.Warn("Failed to close message subscription",
				"conversationId", id,
				"error", err)
		}
	}
	c.msgSubs = map[string]transport.Subscription{}
	if c.listSub != nil {
		_ = c.listSub.Close()
		c.listSub = nil
	}

	c.dispatcher.Shutdown()
	c.async.Wait()
	c.logger.Info("Sync controller stopped")
}

// Done 控制器停止后关闭
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Store 会话存储
func (c *Controller) Store() *store.Store {
	return c.store
}

// do 把动作交给事件循环执行并等待结果
func (c *Controller) do(ctx context.Context, fn func(ctx context.Context) error) error {
	a := action{fn: fn, reply: make(chan error, 1)}
	select {
	case c.actions <- a:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return appErrors.ErrControllerDown
	}
	select {
	case err := <-a.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return appErrors.ErrControllerDown
	}
}

// Flush 等待已到达的事件、已提交的命令和进行中的拉取全部处理完成
func (c *Controller) Flush(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		for round := 0; round < 3; round++ {
			c.drain(ctx)
			if err := c.barrier(ctx); err != nil {
				return err
			}
			c.async.Wait()
			c.drain(ctx)
		}
		return nil
	})
}

func (c *Controller) drain(ctx context.Context) {
	for c.step(ctx, false) {
	}
}

// barrier 等待此前提交的上行命令执行完成
func (c *Controller) barrier(ctx context.Context) error {
	reached := make(chan struct{})
	if !c.dispatcher.Submit(workerpool.Task{Name: "barrier", Run: func(context.Context) error {
		close(reached)
		return nil
	}}) {
		return appErrors.ErrControllerDown
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) setErr(err error) {
	c.store.Update(func(st *store.State) {
		st.Err = err
	})
}
