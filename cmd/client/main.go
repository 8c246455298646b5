package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"sudooom.im.client/internal/config"
	"sudooom.im.client/internal/controller"
	"sudooom.im.client/internal/handler"
	"sudooom.im.client/internal/health"
	imNats "sudooom.im.client/internal/nats"
	"sudooom.im.client/internal/presence"
	imRedis "sudooom.im.client/internal/redis"
	"sudooom.im.client/internal/repository"
	"sudooom.im.client/internal/router"
	"sudooom.im.client/internal/store"
	"sudooom.im.client/internal/transport"
	"sudooom.im.client/internal/ws"
	"sudooom.im.client/shared/jwt"
	"sudooom.im.client/shared/snowflake"
)

// pushChannel 推送通道，同时用于发布自身在线状态
type pushChannel interface {
	transport.Channel
	transport.PresencePublisher
}

func main() {
	// 加载配置
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	identity, err := jwt.ParseIdentity(cfg.Auth.Token, cfg.Auth.Secret)
	if err != nil {
		logger.Error("Invalid access token", "error", err)
		os.Exit(1)
	}
	logger.Info("Identity resolved",
		"userId", identity.UserID,
		"deviceId", identity.DeviceID,
		"platform", identity.Platform)

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ids := snowflake.NewNode(snowflake.NodeIDFromDevice(identity.DeviceID))

	// 推送通道
	var channel pushChannel
	switch cfg.Transport.Kind {
	case config.TransportNATS:
		natsClient, err := imNats.NewClient(cfg.NATS, cfg.App.Name, nil)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
		channel = imNats.NewChannel(natsClient.Conn(), identity.UserID, identity.DeviceID, ids)
	case config.TransportWebSocket:
		wsChannel := ws.NewChannel(ws.Config{
			URL:           cfg.Transport.URL,
			Token:         cfg.Auth.Token,
			PingInterval:  cfg.Transport.PingInterval,
			WriteTimeout:  cfg.Transport.WriteTimeout,
			ReconnectWait: cfg.Transport.ReconnectWait,
		}, identity.UserID, identity.DeviceID, ids)
		go func() {
			if err := wsChannel.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Gateway connection stopped", "error", err)
			}
		}()
		channel = wsChannel
	default:
		memory := transport.NewMemory()
		memory.EnableEcho(identity.UserID)
		channel = memory
		logger.Warn("Using in-memory transport, nothing leaves this process")
	}

	var opts []controller.Option
	opts = append(opts, controller.WithLogger(logger))

	// 连接 Redis（会话列表与在线探测）
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		client := imRedis.NewClient(cfg.Redis)
		defer client.Close()
		redisClient = client.GetClient()
		opts = append(opts,
			controller.WithListing(imRedis.NewConversationListing(redisClient, identity.UserID, cfg.Redis.ListingLimit)),
			controller.WithPresenceProbe(imRedis.NewPresenceProbe(redisClient)))
		logger.Info("Connected to Redis", "addr", cfg.Redis.Addr())
	}

	// 连接数据库（历史消息回填）
	var db *pgxpool.Pool
	if cfg.History.Enabled {
		db, err = repository.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		opts = append(opts, controller.WithHistory(repository.NewMessageRepository(db)))
		logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)
	}

	// 同步控制器
	st := store.New()
	ctrl := controller.New(controller.Config{
		SelfID:         identity.UserID,
		QueueSize:      cfg.Dispatcher.IngressSize,
		CommandQueue:   cfg.Dispatcher.QueueSize,
		CommandTimeout: cfg.Dispatcher.CommandTimeout,
		FetchTimeout:   cfg.History.FetchTimeout,
		HistoryLimit:   cfg.History.Limit,
		ProbeTimeout:   cfg.Presence.ProbeTimeout,
	}, st, channel, opts...)

	ctrlDone := make(chan struct{})
	go func() {
		defer close(ctrlDone)
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Sync controller stopped", "error", err)
		}
	}()

	// 自身在线状态
	announcer := presence.NewAnnouncer(channel, cfg.Presence.AnnounceInterval, logger, nil)
	announceDone := make(chan struct{})
	go func() {
		defer close(announceDone)
		announcer.Start(ctx)
	}()

	// 本地 HTTP 接口
	checker := health.NewChecker(channel, redisClient, db, ctrl, st)
	engine := router.SetupRouter(cfg.HTTP, handler.NewChatHandler(ctrl, st), checker, logger)
	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: engine,
	}
	go func() {
		logger.Info("HTTP server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	logger.Info("IM client started", "name", cfg.App.Name, "transport", cfg.Transport.Kind)

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}

	cancel()
	<-announceDone
	<-ctrlDone
	logger.Info("IM client stopped")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
