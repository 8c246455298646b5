package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sudooom.im.client/internal/transport"
	appErrors "sudooom.im.client/shared/errors"
	sharedNats "sudooom.im.client/shared/nats"
	"sudooom.im.client/shared/proto"
	"sudooom.im.client/shared/snowflake"
)

const (
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

// Config WebSocket 通道配置
type Config struct {
	URL           string
	Token         string
	PingInterval  time.Duration
	WriteTimeout  time.Duration
	ReconnectWait time.Duration
}

// Channel 基于网关 WebSocket 的推送通道，断线后自动重连并恢复订阅
type Channel struct {
	cfg      Config
	pongWait time.Duration
	selfID   int64
	deviceID string
	ids      *snowflake.Node
	dialer   *websocket.Dialer
	logger   *slog.Logger

	connected atomic.Bool

	mu      sync.Mutex
	out     chan []byte
	topics  map[string]map[uint64]func(payload []byte)
	pending map[string]chan error
	nextID  uint64
}

// NewChannel 创建 WebSocket 推送通道，需调用 Run 建立连接
func NewChannel(cfg Config, selfID int64, deviceID string, ids *snowflake.Node) *Channel {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	return &Channel{
		cfg:      cfg,
		pongWait: cfg.PingInterval * 10 / 9,
		selfID:   selfID,
		deviceID: deviceID,
		ids:      ids,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:   slog.Default(),
		topics:   make(map[string]map[uint64]func(payload []byte)),
		pending:  make(map[string]chan error),
	}
}

// Run 保持连接（阻塞），ctx 取消后返回
func (c *Channel) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("Gateway connection lost, reconnecting",
			"url", c.cfg.URL,
			"wait", c.cfg.ReconnectWait,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectWait):
		}
	}
}

// session 一次连接的完整生命周期
func (c *Channel) session(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	out := make(chan []byte, sendBufferSize)
	done := make(chan struct{})
	go c.writePump(conn, out, done)

	c.mu.Lock()
	c.out = out
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	c.connected.Store(true)

	c.logger.Info("Gateway connected", "url", c.cfg.URL, "topics", len(topics))
	for _, topic := range topics {
		c.trySend(out, Frame{Type: FrameSubscribe, Topic: topic})
	}

	err = c.readPump(conn)

	c.connected.Store(false)
	c.mu.Lock()
	c.out = nil
	for id, wait := range c.pending {
		select {
		case wait <- appErrors.ErrTransportUnavailable:
		default:
		}
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(done)

	return err
}

func (c *Channel) writePump(conn *websocket.Conn, out <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("Failed to write frame", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("Failed to send ping", "error", err)
				return
			}
		}
	}
}

func (c *Channel) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Error("Failed to unmarshal frame", "error", err)
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Channel) handleFrame(frame Frame) {
	switch frame.Type {
	case FrameEvent:
		c.mu.Lock()
		handlers := make([]func([]byte), 0, len(c.topics[frame.Topic]))
		for _, h := range c.topics[frame.Topic] {
			handlers = append(handlers, h)
		}
		c.mu.Unlock()
		for _, h := range handlers {
			h(frame.Payload)
		}
	case FrameAck, FrameError:
		c.mu.Lock()
		wait, ok := c.pending[frame.ReqID]
		delete(c.pending, frame.ReqID)
		c.mu.Unlock()
		if !ok {
			return
		}
		var err error
		if frame.Type == FrameError {
			err = appErrors.ErrTransport.Wrap(errors.New(frame.Error))
		}
		wait <- err
	default:
		c.logger.Debug("Unknown frame ignored", "type", frame.Type)
	}
}

func (c *Channel) trySend(out chan []byte, frame Frame) {
	data, err := json.Marshal(&frame)
	if err != nil {
		return
	}
	select {
	case out <- data:
	default:
		c.logger.Warn("Send buffer full, frame dropped", "type", frame.Type, "topic", frame.Topic)
	}
}

// subscribe 注册 topic 回调，连接建立（或重连）时向网关订阅
func (c *Channel) subscribe(topic string, h func(payload []byte)) (transport.Subscription, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	first := len(c.topics[topic]) == 0
	if first {
		c.topics[topic] = make(map[uint64]func([]byte))
	}
	c.topics[topic][id] = h
	out := c.out
	c.mu.Unlock()

	if first && out != nil {
		c.trySend(out, Frame{Type: FrameSubscribe, Topic: topic})
	}

	return transport.NewSubscription(func() error {
		c.mu.Lock()
		delete(c.topics[topic], id)
		last := len(c.topics[topic]) == 0
		if last {
			delete(c.topics, topic)
		}
		out := c.out
		c.mu.Unlock()

		if last && out != nil {
			c.trySend(out, Frame{Type: FrameUnsubscribe, Topic: topic})
		}
		return nil
	}), nil
}

func (c *Channel) SubscribeMessages(conversationID string, h transport.MessageHandler) (transport.Subscription, error) {
	return c.subscribe(sharedNats.BuildClientMessagesSubject(c.selfID, conversationID), func(payload []byte) {
		messages, err := transport.DecodeMessageBatch(payload, c.selfID, conversationID)
		if err != nil {
			c.logger.Error("Failed to unmarshal message batch", "conversationId", conversationID, "error", err)
			return
		}
		if len(messages) > 0 {
			h(messages)
		}
	})
}

func (c *Channel) SubscribePresence(userID int64, h transport.PresenceHandler) (transport.Subscription, error) {
	return c.subscribe(sharedNats.BuildPresenceSubject(userID), func(payload []byte) {
		uid, online, err := transport.DecodePresence(payload)
		if err != nil {
			c.logger.Error("Failed to unmarshal presence", "userId", userID, "error", err)
			return
		}
		if uid == 0 {
			uid = userID
		}
		h(uid, online)
	})
}

func (c *Channel) SubscribeConversationList(h transport.ConversationListHandler) (transport.Subscription, error) {
	return c.subscribe(sharedNats.BuildClientConversationsSubject(c.selfID), func(payload []byte) {
		list, err := transport.DecodeConversationList(payload, c.selfID)
		if err != nil {
			c.logger.Error("Failed to unmarshal conversation list", "error", err)
			return
		}
		h(list)
	})
}

func (c *Channel) Send(ctx context.Context, conversationID string, content []byte) error {
	msg, err := transport.NewUserMessage(c.selfID, conversationID, c.ids.Generate().String(), content, time.Now().UnixMilli())
	if err != nil {
		return appErrors.ErrInvalidParams.Wrap(err)
	}
	return c.request(ctx, sharedNats.SubjectLogicUpstream, &proto.UpstreamMessage{
		UserId:      c.selfID,
		DeviceId:    c.deviceID,
		UserMessage: msg,
	})
}

func (c *Channel) MarkSeen(ctx context.Context, conversationID string, msgID int64) error {
	return c.request(ctx, sharedNats.SubjectLogicUpstream, &proto.UpstreamMessage{
		UserId:           c.selfID,
		DeviceId:         c.deviceID,
		ConversationRead: &proto.ConversationRead{ConversationId: conversationID, LastReadMsgId: msgID},
	})
}

func (c *Channel) SetActiveConversation(ctx context.Context, conversationID string) error {
	return c.request(ctx, sharedNats.SubjectLogicUpstream, &proto.UpstreamMessage{
		UserId:             c.selfID,
		DeviceId:           c.deviceID,
		ConversationActive: &proto.ConversationActive{ConversationId: conversationID},
	})
}

// PublishPresence 发布自身在线状态
func (c *Channel) PublishPresence(ctx context.Context, online bool) error {
	return c.request(ctx, sharedNats.BuildPresenceSubject(c.selfID), &proto.PresenceEvent{
		UserId:    c.selfID,
		Online:    online,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// request 发送 publish 帧并等待网关 ack
func (c *Channel) request(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return appErrors.ErrTransport.Wrap(err)
	}
	reqID := uuid.NewString()
	data, err := json.Marshal(&Frame{Type: FramePublish, ReqID: reqID, Topic: topic, Payload: payload})
	if err != nil {
		return appErrors.ErrTransport.Wrap(err)
	}

	wait := make(chan error, 1)
	c.mu.Lock()
	out := c.out
	if out == nil {
		c.mu.Unlock()
		return appErrors.ErrTransportUnavailable
	}
	c.pending[reqID] = wait
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	select {
	case out <- data:
	case <-ctx.Done():
		return appErrors.ErrTransport.Wrap(ctx.Err())
	}

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return appErrors.ErrTransport.Wrap(ctx.Err())
	}
}
