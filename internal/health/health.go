package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusConnected     = "connected"
	statusDisconnected  = "disconnected"
	statusNotConfigured = "not configured"
	statusRunning       = "running"
	statusStopped       = "stopped"
)

// Status 健康状态
type Status struct {
	Service       string `json:"service"`
	Transport     string `json:"transport"`
	Redis         string `json:"redis"`
	Database      string `json:"database"`
	Controller    string `json:"controller"`
	Conversations int    `json:"conversations"`
}

// Connector 推送通道连接状态
type Connector interface {
	Connected() bool
}

// Runner 同步控制器运行状态
type Runner interface {
	Done() <-chan struct{}
}

// ConversationCounter 会话数
type ConversationCounter interface {
	ConversationCount() int
}

// Checker 健康检查器，未配置的依赖传 nil
type Checker struct {
	transport   Connector
	redisClient *redis.Client
	db          *pgxpool.Pool
	runner      Runner
	counter     ConversationCounter
}

// NewChecker 创建健康检查器
func NewChecker(transport Connector, redisClient *redis.Client, db *pgxpool.Pool, runner Runner, counter ConversationCounter) *Checker {
	return &Checker{
		transport:   transport,
		redisClient: redisClient,
		db:          db,
		runner:      runner,
		counter:     counter,
	}
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		Service: "im-client",
	}

	if h.transport != nil && h.transport.Connected() {
		status.Transport = statusConnected
	} else {
		status.Transport = statusDisconnected
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// 检查 Redis
	switch {
	case h.redisClient == nil:
		status.Redis = statusNotConfigured
	case h.redisClient.Ping(ctx).Err() == nil:
		status.Redis = statusConnected
	default:
		status.Redis = statusDisconnected
	}

	// 检查 PostgreSQL
	switch {
	case h.db == nil:
		status.Database = statusNotConfigured
	case h.db.Ping(ctx) == nil:
		status.Database = statusConnected
	default:
		status.Database = statusDisconnected
	}

	status.Controller = statusRunning
	if h.runner != nil {
		select {
		case <-h.runner.Done():
			status.Controller = statusStopped
		default:
		}
	}

	if h.counter != nil {
		status.Conversations = h.counter.ConversationCount()
	}

	return status
}

// IsHealthy 控制器运行中即为健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).Controller == statusRunning
}

// IsReady 控制器运行且推送通道已连接
func (h *Checker) IsReady(ctx context.Context) bool {
	status := h.Check(ctx)
	return status.Controller == statusRunning && status.Transport == statusConnected
}

// ServeHTTP HTTP 健康检查端点
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, h.IsHealthy)
}

// Ready 就绪检查端点
func (h *Checker) Ready() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.write(w, r, h.IsReady)
	})
}

func (h *Checker) write(w http.ResponseWriter, r *http.Request, ok func(context.Context) bool) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if ok(r.Context()) {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
