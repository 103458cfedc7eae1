package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/api"
	"github.com/qs3c/site_compare_server/internal/api/handler"
	"github.com/qs3c/site_compare_server/internal/browser/playwright"
	"github.com/qs3c/site_compare_server/internal/database"
	"github.com/qs3c/site_compare_server/internal/orchestrator"
	"github.com/qs3c/site_compare_server/internal/pkg/cron"
	"github.com/qs3c/site_compare_server/internal/pkg/oss"
	"github.com/qs3c/site_compare_server/internal/pkg/logger"
	"github.com/qs3c/site_compare_server/internal/pkg/pubsub"
	"github.com/qs3c/site_compare_server/internal/pkg/queue"
	"github.com/qs3c/site_compare_server/internal/pkg/ws"
	"github.com/qs3c/site_compare_server/internal/repository"
	"github.com/qs3c/site_compare_server/internal/runner"
	"github.com/qs3c/site_compare_server/internal/service"
)

func main() {
	// .env 可选
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger.Setup(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect database: %v", err)
	}
	logrus.WithField("driver", cfg.Database.Driver).Info("Database connected")

	// 初始化浏览器，driver 不可用时服务仍然启动
	rt, err := playwright.NewRuntime(cfg.Browser)
	if err != nil {
		logrus.WithError(err).Error("Browser runtime unavailable, every site will fail")
		rt = playwright.Unavailable()
	}
	defer rt.Close()

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub()

	// 初始化 Redis（可选）：异步批次队列 + worker 事件转发
	var batchQueue *queue.Queue
	if cfg.Redis.Enabled() {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			logrus.Fatalf("Failed to connect redis: %v", err)
		}
		defer rdb.Close()
		logrus.Info("Redis connected")

		batchQueue = queue.NewQueue(rdb, cfg.Queue.BatchQueue)
		subscriber := pubsub.NewSubscriber(rdb)
		go func() {
			if err := subscriber.Subscribe(ctx, wsHub.Forward); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Error("Event subscriber stopped")
			}
		}()
	} else {
		logrus.Info("Redis not configured, async batches disabled")
	}

	// 初始化 Repository / Service
	batchRepo := repository.NewBatchRepository(db)
	orch := orchestrator.New(runner.New(rt, cfg.Analysis))
	batchService := service.NewBatchService(orch, batchRepo, batchQueue, cfg)

	// 定时清理
	cronService := cron.NewService(batchRepo, cfg.Retention.ReportDir, cfg.Retention.ExpireHours)
	if cfg.OSS.Enabled() {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			logrus.WithError(err).Warn("Failed to init OSS client, remote reports are kept")
		} else {
			cronService.WithRemover(ossClient)
		}
	}
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Handler / Router
	router := api.NewRouter(
		handler.NewStreamHandler(batchService),
		handler.NewExportHandler(batchService),
		handler.NewBatchHandler(batchService),
		handler.NewWebSocketHandler(wsHub),
		handler.NewHealthHandler(wsHub, batchQueue),
		cfg,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.Setup(),
		// 事件流是长连接，不设置 WriteTimeout
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		logrus.Infof("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logrus.Info("Received shutdown signal")

	// 取消进行中的批次，事件流随之发送 done 并结束
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Server shutdown incomplete")
	}
	logrus.Info("Server stopped")
}
