package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tasks-api/internal/api"
	"tasks-api/internal/config"
	"tasks-api/internal/observability/alerting"
	"tasks-api/internal/storage/database"
	"tasks-api/internal/task"
	"tasks-api/pkg/logger"
)

// main 是 tasksd 服务的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("tasksd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		AddSource:   cfg.Logging.AddSource,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	appLog := logger.Named("tasksd")

	store, err := createStore(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, err := createPublisher(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return err
	}

	svc := task.NewService(store, task.WithPublisher(publisher))
	defer func() {
		if err := svc.Close(); err != nil {
			appLog.Warn("释放资源失败", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, svc,
		api.WithAllowedOrigins(cfg.Server.CORS.AllowedOrigins),
		api.WithTimeouts(cfg.Server.ReadHeaderTimeout(), cfg.Server.ShutdownTimeout()),
		api.WithAlerting(alerting.NewFanout(&alerting.LogNotifier{})),
	)

	appLog.Info("tasksd 启动",
		slog.String("addr", cfg.Server.Address),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("events", cfg.Events.Driver),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	appLog.Info("tasksd 已停止")
	return nil
}

func createStore(ctx context.Context, cfg *config.Config) (task.Store, error) {
	if cfg.Storage.Driver == "memory" {
		return task.NewMemoryStore(), nil
	}

	db, err := database.Open(ctx, database.Config{
		Driver:           cfg.Storage.Driver,
		DSN:              cfg.Storage.DSN,
		MaxOpenConns:     cfg.Storage.MaxOpenConns,
		MaxIdleConns:     cfg.Storage.MaxIdleConns,
		ConnMaxLifetime:  cfg.Storage.ConnMaxLifetime(),
		ConnMaxIdleTime:  cfg.Storage.ConnMaxIdleTime(),
		StatementTimeout: cfg.Storage.StatementTimeout(),
	})
	if err != nil {
		return nil, err
	}

	store := task.NewSQLStore(db)
	if cfg.Storage.SchemaAutoCreate() {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

func createPublisher(ctx context.Context, cfg *config.Config) (task.Publisher, error) {
	switch cfg.Events.Driver {
	case "none":
		return task.NopPublisher{}, nil
	case "memory":
		return task.NewMemoryPublisher(1024), nil
	case "redis":
		return task.NewRedisPublisher(ctx, task.RedisPublisherConfig{
			Address:  cfg.Events.Redis.Address,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
			Channel:  cfg.Events.Redis.Channel,
		})
	case "rabbitmq":
		return task.NewRabbitMQPublisher(task.RabbitMQConfig{
			URL:        cfg.Events.RabbitMQ.URL,
			Exchange:   cfg.Events.RabbitMQ.Exchange,
			RoutingKey: cfg.Events.RabbitMQ.RoutingKey,
			Durable:    cfg.Events.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("不支持的事件驱动 %q", cfg.Events.Driver)
	}
}
