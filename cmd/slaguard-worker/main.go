package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/app"
	"github.com/spec-kit/sla-guard/internal/config"
	"github.com/spec-kit/sla-guard/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "slaguard-worker",
	Short: "Background escalation sweep and notification redelivery",
	Long: `Runs the SLA escalation sweep and notification redelivery loops outside
the API process, or performs a single pass of either.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sweepOnceCmd)
	rootCmd.AddCommand(retryOnceCmd)
	rootCmd.AddCommand(pendingCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sweep and redelivery loops until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(ctx context.Context, c *app.Container) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var wg sync.WaitGroup
			for _, w := range c.Workers() {
				wg.Add(1)
				go func() {
					defer wg.Done()
					w.Run(ctx)
				}()
			}
			<-ctx.Done()
			c.Logger.Info("shutting down workers")
			wg.Wait()
			return nil
		})
	},
}

var sweepOnceCmd = &cobra.Command{
	Use:   "sweep-once",
	Short: "Evaluate every unresolved ticket once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(ctx context.Context, c *app.Container) error {
			stats, err := c.Engine.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "evaluated=%d escalated=%d notified=%d failed=%d\n",
				stats.Evaluated, stats.Escalated, stats.Notified, stats.Failed)
			return nil
		})
	},
}

var retryOnceCmd = &cobra.Command{
	Use:   "retry",
	Short: "Redeliver queued notifications once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(ctx context.Context, c *app.Container) error {
			stats, err := c.Sink.Redeliver(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delivered=%d requeued=%d dropped=%d\n",
				stats.Delivered, stats.Requeued, stats.Dropped)
			return nil
		})
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Print the number of notifications waiting for redelivery",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(ctx context.Context, c *app.Container) error {
			n, err := c.Sink.Pending(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		})
	},
}

func withContainer(fn func(ctx context.Context, c *app.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", zap.Error(err))
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}
