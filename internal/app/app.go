// Package app assembles the services shared by the HTTP server and the
// worker CLI from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/clock"
	"github.com/spec-kit/sla-guard/internal/config"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/escalation"
	"github.com/spec-kit/sla-guard/internal/events"
	"github.com/spec-kit/sla-guard/internal/notify"
	"github.com/spec-kit/sla-guard/internal/observability"
	"github.com/spec-kit/sla-guard/internal/persistence"
	"github.com/spec-kit/sla-guard/internal/repository"
	"github.com/spec-kit/sla-guard/internal/repository/memory"
	"github.com/spec-kit/sla-guard/internal/service"
	"github.com/spec-kit/sla-guard/internal/sla"
	"github.com/spec-kit/sla-guard/internal/worker"
)

const (
	riskLevelsKey  = "sla-guard:risk-levels"
	retryQueueKey  = "sla-guard:notify:retry"
	webhookTimeout = 5 * time.Second
)

// Repositories groups the storage ports.
type Repositories struct {
	Tickets       repository.TicketStore
	Activity      repository.ActivityLogRepository
	Users         repository.UserRepository
	Comments      repository.CommentRepository
	Notifications repository.NotificationRepository
	SLAConfig     repository.SLAConfigRepository
}

// Container holds the wired services.
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	Clock         clock.Clock
	Postgres      *persistence.Postgres
	Redis         *persistence.Redis
	Repos         Repositories
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Sink          *notify.Reliable
	Engine        *escalation.Engine
	Tickets       *service.TicketService
	Comments      *service.CommentService
	Notifications *service.NotificationService
	SLA           *service.SLAService
	Analytics     *service.AnalyticsService
	Auth          *service.AuthService
	Staff         *service.StaffService

	closers []func()
}

// Build connects the configured backends and wires every service. Without a
// Postgres DSN all repositories live in memory; without Redis the risk-level
// tracker and retry queue do too.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Clock: clock.Real(), Metrics: observability.NewMetrics()}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.Postgres = pg
	c.closers = append(c.closers, pg.Close)

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, persistence.DefaultMigrationsDir, logger); err != nil {
			c.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	c.Redis = rdb
	c.closers = append(c.closers, rdb.Close)

	c.Repos = c.repositories()

	limits, err := sla.NewConfig(map[domain.TicketPriority]float64{
		domain.TicketPriorityCritical: cfg.SLA.CriticalHours,
		domain.TicketPriorityHigh:     cfg.SLA.HighHours,
		domain.TicketPriorityMedium:   cfg.SLA.MediumHours,
		domain.TicketPriorityLow:      cfg.SLA.LowHours,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.SLA = service.NewSLAService(limits, c.Repos.SLAConfig, logger.Named("sla"))
	if err := c.SLA.Load(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("load sla overrides: %w", err)
	}

	c.Dispatcher = events.NewInMemoryDispatcher(logger.Named("events"))
	c.Metrics.Observe(c.Dispatcher, observability.EventTypes()...)

	transports, err := c.transports()
	if err != nil {
		c.Close()
		return nil, err
	}
	var queue notify.RetryQueue
	if rdb.Enabled() {
		queue = notify.NewRedisRetryQueue(rdb.Client, retryQueueKey)
	}
	c.Sink = notify.NewReliable(notify.ReliableDependencies{
		Transports:  transports,
		Queue:       queue,
		Clock:       c.Clock,
		Logger:      logger.Named("notify"),
		MaxAttempts: cfg.Notification.MaxAttempts,
	})

	c.Notifications = service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:       c.Dispatcher,
		Sink:             c.Sink,
		NotificationRepo: c.Repos.Notifications,
		UserRepo:         c.Repos.Users,
		Logger:           logger.Named("notifications"),
	})
	worker.StartNotificationWorker(c.Notifications)
	c.Tickets = service.NewTicketService(service.TicketDependencies{
		TicketStore:  c.Repos.Tickets,
		ActivityRepo: c.Repos.Activity,
		UserRepo:     c.Repos.Users,
		SLAConfig:    limits,
		Dispatcher:   c.Dispatcher,
		Clock:        c.Clock,
		Logger:       logger.Named("tickets"),
	})

	var tracker escalation.LevelTracker
	if rdb.Enabled() {
		tracker = escalation.NewRedisLevelTracker(rdb.Client, riskLevelsKey)
	}
	c.Engine = escalation.NewEngine(escalation.EngineDependencies{
		Policy: escalation.Policy{
			AutoEscalatePercent: cfg.SLA.AutoEscalatePercent,
			WarningPercent:      cfg.SLA.WarningPercent,
		},
		Tracker:    tracker,
		Escalator:  c.Tickets,
		Source:     c.Tickets,
		Dispatcher: c.Dispatcher,
		Clock:      c.Clock,
		Logger:     logger.Named("escalation"),
	})
	c.Tickets.UseEscalation(c.Engine)

	c.Comments = service.NewCommentService(service.CommentDependencies{
		CommentRepo: c.Repos.Comments,
		TicketStore: c.Repos.Tickets,
		Dispatcher:  c.Dispatcher,
		Clock:       c.Clock,
		Logger:      logger.Named("comments"),
	})
	c.Analytics = service.NewAnalyticsService(c.Tickets, c.Repos.Users)
	c.Auth = service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo: c.Repos.Users,
		Clock:    c.Clock,
		Logger:   logger.Named("auth"),
	})
	c.Staff = service.NewStaffService(c.Repos.Users)
	return c, nil
}

// Workers returns the background jobs: the escalation sweep and the
// notification redelivery pass.
func (c *Container) Workers() []*worker.Periodic {
	return []*worker.Periodic{
		worker.NewEscalationSweeper(c.Engine, c.Config.SLA.SweepInterval(), c.Clock, c.Logger.Named("sweeper")),
		worker.NewNotificationRetrier(c.Sink, c.Config.Notification.RetryInterval(), c.Clock, c.Logger.Named("retrier")),
	}
}

// Close releases backend connections in reverse order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *Container) repositories() Repositories {
	if !c.Postgres.Enabled() {
		tickets := memory.NewTicketStore()
		return Repositories{
			Tickets:       tickets,
			Activity:      tickets,
			Users:         memory.NewUserRepository(),
			Comments:      memory.NewCommentRepository(),
			Notifications: memory.NewNotificationRepository(),
			SLAConfig:     memory.NewSLAConfigRepository(),
		}
	}
	pool := c.Postgres.Pool
	timeout := c.Config.Store.Timeout()
	return Repositories{
		Tickets:       repository.NewTicketStore(pool, timeout),
		Activity:      repository.NewActivityLogRepository(pool, timeout),
		Users:         repository.NewUserRepository(pool, timeout),
		Comments:      repository.NewCommentRepository(pool, timeout),
		Notifications: repository.NewNotificationRepository(pool, timeout),
		SLAConfig:     repository.NewSLAConfigRepository(pool, timeout),
	}
}

func (c *Container) transports() ([]notify.Transport, error) {
	cfg := c.Config.Notification
	transports := []notify.Transport{notify.NewInboxTransport(c.Repos.Notifications)}

	if cfg.WebhookURL != "" {
		transports = append(transports, notify.NewWebhookTransport(cfg.WebhookURL, webhookTimeout))
	}
	if cfg.RedisChannel != "" && c.Redis.Enabled() {
		transports = append(transports, notify.NewRedisTransport(c.Redis.Client, cfg.RedisChannel))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := notify.NewKafkaTransport(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("kafka transport: %w", err)
		}
		transports = append(transports, kafka)
		c.closers = append(c.closers, kafka.Close)
	}

	names := make([]string, 0, len(transports))
	for _, t := range transports {
		names = append(names, t.Name())
	}
	c.Logger.Info("notification transports", zap.Strings("transports", names))
	return transports, nil
}
