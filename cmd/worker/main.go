package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/browser/playwright"
	"github.com/qs3c/site_compare_server/internal/database"
	"github.com/qs3c/site_compare_server/internal/orchestrator"
	"github.com/qs3c/site_compare_server/internal/pkg/logger"
	"github.com/qs3c/site_compare_server/internal/pkg/oss"
	"github.com/qs3c/site_compare_server/internal/pkg/pubsub"
	"github.com/qs3c/site_compare_server/internal/pkg/queue"
	"github.com/qs3c/site_compare_server/internal/repository"
	"github.com/qs3c/site_compare_server/internal/runner"
	"github.com/qs3c/site_compare_server/internal/service"
	"github.com/qs3c/site_compare_server/internal/worker"
)

func main() {
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

	if !cfg.Redis.Enabled() {
		logrus.Fatal("Worker requires redis, set redis.host")
	}

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect database: %v", err)
	}
	logrus.Info("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		logrus.Fatalf("Failed to connect redis: %v", err)
	}
	defer rdb.Close()
	logrus.Info("Redis connected")

	// 初始化浏览器
	rt, err := playwright.NewRuntime(cfg.Browser)
	if err != nil {
		logrus.Fatalf("Failed to start browser runtime: %v", err)
	}
	defer rt.Close()

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化 OSS（可选）
	var uploader worker.ReportUploader
	if cfg.OSS.Enabled() {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			logrus.WithError(err).Warn("Failed to init OSS client, reports stay local")
		} else {
			uploader = ossClient
			logrus.Info("OSS client initialized")
		}
	}

	batchQueue := queue.NewQueue(rdb, cfg.Queue.BatchQueue)
	publisher := pubsub.NewPublisher(rdb)

	batchRepo := repository.NewBatchRepository(db)
	orch := orchestrator.New(runner.New(rt, cfg.Analysis))
	batchService := service.NewBatchService(orch, batchRepo, nil, cfg)
	processor := worker.NewProcessor(batchService, batchRepo, uploader, publisher, cfg)

	if uploader != nil {
		go worker.NewReuploader(batchRepo, uploader).Start(ctx)
	}

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Received shutdown signal")
		cancel()
	}()

	logrus.WithField("max_workers", cfg.Queue.MaxWorkers).Info("Worker started")
	worker.RunPool(ctx, batchQueue, processor, cfg.Queue.MaxWorkers)
	logrus.Info("Worker shutdown complete")
}
