package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-guard/internal/api/http"
	"github.com/spec-kit/sla-guard/internal/api/http/handlers"
	"github.com/spec-kit/sla-guard/internal/app"
	"github.com/spec-kit/sla-guard/internal/auth"
	"github.com/spec-kit/sla-guard/internal/config"
	"github.com/spec-kit/sla-guard/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer container.Close()

	authMiddleware := auth.NewAuthMiddleware(container.Auth.TokenManager(), container.Repos.Users)

	server := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(server, logger, container.Metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
		"postgres": container.Postgres,
		"redis":    container.Redis,
	}, container.Metrics)

	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         healthHandler,
		Users:          handlers.NewUsersHandler(container.Auth, container.Staff),
		Tickets:        handlers.NewTicketsHandler(container.Tickets),
		TicketActions:  handlers.NewTicketActionsHandler(container.Tickets),
		Comments:       handlers.NewCommentsHandler(container.Comments),
		Notifications:  handlers.NewNotificationsHandler(container.Notifications),
		SLA:            handlers.NewSLAHandler(container.SLA),
		Analytics:      handlers.NewAnalyticsHandler(container.Analytics),
		AuthMiddleware: authMiddleware,
	})

	var wg sync.WaitGroup
	if cfg.App.EmbeddedWorkers {
		for _, w := range container.Workers() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Run(ctx)
			}()
		}
	}

	go func() {
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = server.Shutdown()
	wg.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
