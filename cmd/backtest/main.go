// 回测执行核心服务入口。
// 生成摘要：
// 1) 装配配置、日志、指标、数据库、Kafka 与回测编排器
// 2) 调度器与控制消息消费者在独立 goroutine 中运行
// 3) 信号触发优雅关停，等待在途任务完结后退出
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/stockbacktest/internal/backtest/application"
	"github.com/wyfcoding/stockbacktest/internal/backtest/domain"
	"github.com/wyfcoding/stockbacktest/internal/backtest/infrastructure/persistence/mysql"
	"github.com/wyfcoding/stockbacktest/internal/backtest/infrastructure/publisher"
	"github.com/wyfcoding/stockbacktest/internal/backtest/interfaces/consumer"
	"github.com/wyfcoding/stockbacktest/internal/sandbox"
	"github.com/wyfcoding/stockbacktest/pkg/config"
	"github.com/wyfcoding/stockbacktest/pkg/db"
	"github.com/wyfcoding/stockbacktest/pkg/logger"
	"github.com/wyfcoding/stockbacktest/pkg/metrics"
	"github.com/wyfcoding/stockbacktest/pkg/mq"
	"github.com/wyfcoding/stockbacktest/pkg/utils"
)

func main() {
	configPath := flag.String("config", config.GetEnv("APP_CONFIG_PATH", "configs/config.toml"), "path to config file")
	nodeID := flag.Int64("node", 1, "snowflake node id")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(ctx, "Failed to load config", "path", *configPath, "error", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		logger.Fatal(ctx, "Failed to init logger", "error", err)
	}
	logger.Info(ctx, "Service starting",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	if cfg.Backtest.WorkerPoolSize > cfg.Database.MaxOpenConns {
		logger.Warn(ctx, "Worker pool larger than database connection pool, combinations may block on connections",
			"worker_pool_size", cfg.Backtest.WorkerPoolSize,
			"max_open_conns", cfg.Database.MaxOpenConns,
		)
	}

	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		logger.Fatal(ctx, "Failed to register metrics", "error", err)
	}
	if cfg.Metrics.Enabled {
		if err := m.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Fatal(ctx, "Failed to start metrics server", "error", err)
		}
	}

	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to init database", "error", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(
		&domain.BacktestJob{},
		&domain.BacktestResult{},
		&domain.StrategyDefinition{},
		&domain.MarketBar{},
		&domain.AdjustmentFactor{},
		&domain.Instrument{},
	); err != nil {
		logger.Fatal(ctx, "Failed to migrate tables", "error", err)
	}

	kafkaCfg := mq.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
		RetryBackoff:   cfg.Kafka.RetryBackoff,
	}
	producer, err := mq.NewProducer(kafkaCfg)
	if err != nil {
		logger.Fatal(ctx, "Failed to create Kafka producer", "error", err)
	}
	defer producer.Close()

	controlConsumer, err := mq.NewConsumer(kafkaCfg, cfg.Backtest.ControlTopic)
	if err != nil {
		logger.Fatal(ctx, "Failed to create Kafka consumer", "error", err)
	}
	defer controlConsumer.Close()

	// 依赖装配
	jobRepo := mysql.NewJobRepository(database.DB)
	resultRepo := mysql.NewResultRepository(database.DB)
	strategyRepo := mysql.NewStrategyRepository(database.DB)
	marketDataRepo := mysql.NewMarketDataRepository(database.DB, m)
	combinationWriter := mysql.NewCombinationWriter(database)
	events := publisher.NewKafkaEventPublisher(producer, cfg.Backtest.EventsTopic)
	box := sandbox.New()
	idGen := utils.NewSnowflakeID(*nodeID)

	orchestrator := application.NewOrchestrator(
		jobRepo, combinationWriter, strategyRepo, marketDataRepo,
		events, box, m, idGen, cfg.Backtest,
	)
	commands := application.NewCommandService(jobRepo, resultRepo, strategyRepo, box, orchestrator, idGen)
	scheduler := application.NewScheduler(jobRepo, orchestrator, cfg.Backtest)
	controlHandler := consumer.NewJobControlHandler(commands, controlConsumer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return controlHandler.Run(gctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error(ctx, "Service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info(context.Background(), "Service stopped")
}
