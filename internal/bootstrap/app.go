package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"portalchat/internal/ai"
	"portalchat/internal/app"
	"portalchat/internal/cache"
	"portalchat/internal/config"
	"portalchat/internal/logger"
	"portalchat/internal/metrics"
	"portalchat/internal/notify"
	"portalchat/internal/platform/database"
	rabbitmqClient "portalchat/internal/platform/rabbitmq"
	redisClient "portalchat/internal/platform/redis"
	"portalchat/internal/realtime"
	"portalchat/internal/repository"
	"portalchat/internal/schema"
	"portalchat/internal/worker"
)

// App owns every long-lived resource of one server instance.
type App struct {
	Config     *config.Config
	Log        zerolog.Logger
	InstanceID string

	DB          *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Metrics     *metrics.Metrics
	Store       *app.ChatService
	Realtime    *realtime.Server
	RelayWorker *worker.BroadcastRelayWorker

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		Config:     cfg,
		Log:        log,
		InstanceID: cfg.App.InstanceID,
		Metrics:    metrics.New(),
		StartedAt:  time.Now(),
	}
	if a.InstanceID == "" {
		a.InstanceID = uuid.NewString()
	}

	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	db, err := database.New(ctx, database.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	a.DB = db

	if err := a.prepareSchema(ctx); err != nil {
		return err
	}

	var historyCache app.HistoryCache
	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			ClientName: cfg.App.Name + "-" + a.InstanceID,
		})
		if err != nil {
			return err
		}
		historyCache = cache.NewHistoryCache(a.Redis, time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second)
	}

	var notifier app.SupportNotifier
	if cfg.Telegram.Enabled {
		b, err := notify.NewTelegramBot(cfg.Telegram.BotToken)
		if err != nil {
			return err
		}
		notifier = notify.NewTelegramNotifier(b, cfg.Telegram.ChatID, cfg.Telegram.TopicID, logger.Component(a.Log, "telegram"))
	}

	a.Store = app.NewChatService(
		repository.NewSessionRepository(db),
		repository.NewMessageRepository(db),
		repository.NewSupportMessageRepository(db),
		historyCache,
		notifier,
		a.Metrics,
		logger.Component(a.Log, "store"),
	)

	rtLog := logger.Component(a.Log, "realtime")
	a.Realtime = realtime.NewServer(
		a.Store,
		realtime.NewHub(a.Metrics, rtLog),
		realtime.Options{
			SendBuffer:      cfg.Realtime.SendBuffer,
			MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
			WriteWait:       cfg.WriteWait(),
			PongWait:        cfg.PongWait(),
			AllowedOrigins:  cfg.CORS.AllowedOrigins,
		},
		a.Metrics,
		rtLog,
	)

	if cfg.Assistant.Enabled {
		a.Realtime.SetResponder(ai.NewAssistant(ai.Config{
			BaseURL:      cfg.Assistant.BaseURL,
			APIKey:       cfg.Assistant.APIKey,
			Model:        cfg.Assistant.Model,
			SystemPrompt: cfg.Assistant.SystemPrompt,
			MaxContext:   cfg.Assistant.MaxContext,
		}, a.Store))
	}

	if cfg.RabbitMQ.Enabled {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.BroadcastExchange)
		if err != nil {
			return err
		}
		a.Realtime.SetRelay(rabbitmqClient.NewBroadcastPublisher(a.MQConn, cfg.RabbitMQ.BroadcastExchange, a.InstanceID))

		a.RelayWorker = worker.NewBroadcastRelayWorker(
			a.MQConn,
			cfg.RabbitMQ.BroadcastExchange,
			a.InstanceID,
			a.Realtime,
			a.Metrics,
			logger.Component(a.Log, "relay"),
		)
		if err := a.RelayWorker.Start(ctx); err != nil {
			return fmt.Errorf("start relay worker failed: %w", err)
		}
	}

	a.Log.Info().
		Str("instance_id", a.InstanceID).
		Str("db_driver", cfg.Database.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Bool("rabbitmq", cfg.RabbitMQ.Enabled).
		Bool("telegram", cfg.Telegram.Enabled).
		Bool("assistant", cfg.Assistant.Enabled).
		Msg("application initialized")
	return nil
}

func (a *App) prepareSchema(ctx context.Context) error {
	cfg := a.Config.Database
	log := logger.Component(a.Log, "schema")

	switch cfg.MigrationMode {
	case config.MigrationModeAuto:
		if err := schema.CreateTables(ctx, a.DB); err != nil {
			return err
		}
	case config.MigrationModeVersioned:
		if err := schema.RunMigrations(cfg.DSN, log); err != nil {
			return err
		}
	case config.MigrationModeNone:
		log.Info().Msg("schema management disabled")
	}

	if cfg.SeedOnStartup {
		if err := schema.CreateSeedData(ctx, a.DB); err != nil {
			return err
		}
		log.Info().Msg("seed data ensured")
	}
	return nil
}

// HealthChecks returns one probe per configured dependency.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"database": func(ctx context.Context) error {
			return database.Ping(ctx, a.DB)
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	if a.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if a.MQConn.IsClosed() {
				return fmt.Errorf("connection closed")
			}
			return nil
		}
	}
	return checks
}

// Shutdown disconnects realtime clients before resources are closed.
func (a *App) Shutdown(ctx context.Context) error {
	if a.Realtime == nil {
		return nil
	}
	return a.Realtime.Shutdown(ctx)
}

func (a *App) Close() error {
	var closeErr error
	if a.RelayWorker != nil {
		a.RelayWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
