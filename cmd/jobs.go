package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Saaiiikrishna/msd-th-sub005/app/bus"
	"github.com/Saaiiikrishna/msd-th-sub005/app/factory"
	"github.com/Saaiiikrishna/msd-th-sub005/app/service"
)

var (
	workerMode bool
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Run outbox-related commands",
}

var outboxDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Publish unprocessed outbox events to the message bus",
	Run: func(_ *cobra.Command, _ []string) {
		cfg, settlement, cleanup := mustCreateSettlement()
		defer cleanup()

		publisher, err := bus.NewRabbitMQPublisher(cfg.Bus.URL, cfg.Bus.Exchange)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to message bus")
		}
		defer publisher.Close()

		outbox := service.NewOutboxPublisher(
			settlement.store,
			publisher,
			cfg.Outbox.PollInterval,
			cfg.Outbox.BatchSize,
			factory.NewModuleLogger("outbox-publisher"),
		)

		runCommand("outbox_dispatch", cfg.Outbox.PollInterval, func(ctx context.Context) error {
			return outbox.PublishBatch(ctx)
		})
	},
}

var payoutsCmd = &cobra.Command{
	Use:   "payouts",
	Short: "Run payout-related commands",
}

var payoutsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-dispatch stale INIT payouts whose gateway call was lost",
	Run: func(_ *cobra.Command, _ []string) {
		cfg, settlement, cleanup := mustCreateSettlement()
		defer cleanup()

		runCommand("payouts_sweep", cfg.Payouts.SweepInterval, func(ctx context.Context) error {
			return settlement.engine.RunSweepBatch(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(payoutsCmd)
	outboxCmd.AddCommand(outboxDispatchCmd)
	payoutsCmd.AddCommand(payoutsSweepCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(name string, interval time.Duration, fn func(ctx context.Context) error) {
	if workerMode {
		runWorker(name, interval, fn)
		return
	}

	runJob(name, func() error { return fn(context.Background()) })
}

func runWorker(name string, interval time.Duration, fn func(ctx context.Context) error) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
