package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wpsync/internal/broker"
	"wpsync/internal/dispatch"
	"wpsync/internal/scheduler"
	"wpsync/internal/storage/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run periodic full syncs and consume sync commands",
	Long: `Run the synchronizer as a service. Every sync.interval a full pass
over all content types is scheduled; commands from the RabbitMQ command
queue are scheduled as they arrive.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	version, err := postgres.Migrate(a.db)
	if err != nil {
		return err
	}
	a.logger.Info("database schema ready", "version", version)

	sched := scheduler.New(scheduler.Config{
		Workers:        a.cfg.Scheduler.Workers,
		QueueSize:      a.cfg.Scheduler.QueueSize,
		MaxRetries:     a.cfg.Scheduler.MaxRetries,
		InitialBackoff: a.cfg.Scheduler.InitialBackoff,
		MaxBackoff:     a.cfg.Scheduler.MaxBackoff,
		JobTimeout:     a.cfg.Scheduler.JobTimeout,
		Interval:       a.cfg.Sync.Interval,
	}, a.reconciler, a.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			a.logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if !a.cfg.RabbitMQ.Disabled && a.cfg.RabbitMQ.CommandQueue != "" {
		consumer, err := broker.NewConsumer(broker.ConsumerConfig{
			URL:   a.cfg.RabbitMQ.URL,
			Queue: a.cfg.RabbitMQ.CommandQueue,
		}, dispatch.New(a.reconciler, sched, a.logger), a.logger)
		if err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		defer consumer.Close()

		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("consumer error", "error", err)
				cancel()
			}
		}()
	} else {
		a.logger.Info("command queue disabled")
	}

	a.logger.Info("starting wordpress syncer",
		"base_url", a.cfg.API.BaseURL,
		"interval", a.cfg.Sync.Interval,
		"max_pages", a.cfg.Sync.MaxPages,
	)

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}
