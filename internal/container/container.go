package container

import (
	"context"

	"remindme/internal/bot"
	"remindme/internal/cache"
	"remindme/internal/config"
	"remindme/internal/database"
	"remindme/internal/handlers"
	"remindme/internal/logger"
	"remindme/internal/parser"
	"remindme/internal/repository"
	"remindme/internal/scheduler"
	"remindme/internal/services"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent

type Container struct {
	DB              *pgxpool.Pool
	Redis           *redis.Client
	Logger          *logrus.Logger
	Session         *discordgo.Session
	Bot             *bot.Bot
	Handler         *bot.Handler
	ReminderService *services.ReminderService
	Scheduler       *scheduler.Scheduler
}

// New connects the database (running migrations) and, if configured, Redis,
// then wires the reminder service, Discord handler and scheduler. Nothing is
// started; the caller opens the session and starts the scheduler.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	// Initialize logger first
	logger := logger.Get()

	// Initialize database
	db, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize database")
	}
	if err := database.Migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	// Initialize Redis
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisURL, logger)
		if err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to initialize redis")
		}
	} else {
		logger.Info("REDIS_URL not set, running without dispatch claims and sweep lock")
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		closeAll(db, redisClient)
		return nil, errors.Wrap(err, "failed to create discord session")
	}
	session.Identify.Intents = intents

	// Initialize services
	discordBot := bot.NewBot(session, rate.NewLimiter(rate.Limit(cfg.SendRatePerSecond), 1), logger)

	serviceConfig := &services.ReminderServiceConfig{
		Store:     repository.NewReminderRepository(db, cfg.Location),
		Transport: discordBot,
		Parser:    parser.New(cfg.Location),
		Logger:    logger,
	}
	schedulerConfig := scheduler.Config{
		Interval: cfg.SweepInterval,
		Logger:   logger,
	}
	if redisClient != nil {
		serviceConfig.Guard = cache.NewDispatchClaims(redisClient, cache.DefaultClaimTTL)
		schedulerConfig.Locker = cache.NewSweepLock(redisClient, cache.SweepLockTTL(cfg.SweepInterval))
	}

	reminderService := services.NewReminderService(serviceConfig)
	schedulerConfig.Sweeper = reminderService

	handler := bot.NewHandler(reminderService, discordBot, logger)
	session.AddHandler(handler.OnMessageCreate)

	return &Container{
		DB:              db,
		Redis:           redisClient,
		Logger:          logger,
		Session:         session,
		Bot:             discordBot,
		Handler:         handler,
		ReminderService: reminderService,
		Scheduler:       scheduler.New(schedulerConfig),
	}, nil
}

// HealthChecks returns the dependency checks served on /healthz.
func (c *Container) HealthChecks() map[string]handlers.Check {
	checks := map[string]handlers.Check{
		"postgres": c.DB.Ping,
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

func (c *Container) Close() {
	if c.Session != nil {
		if err := c.Session.Close(); err != nil {
			c.Logger.WithError(err).Warn("Failed to close discord session")
		} else {
			c.Logger.Info("Discord session closed")
		}
	}
	if c.Redis != nil {
		c.Redis.Close()
		c.Logger.Info("Redis connection closed")
	}
	if c.DB != nil {
		c.DB.Close()
		c.Logger.Info("Database connection closed")
	}
}

func closeAll(db *pgxpool.Pool, redisClient *redis.Client) {
	if redisClient != nil {
		redisClient.Close()
	}
	db.Close()
}
