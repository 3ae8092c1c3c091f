package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"photomigrate/internal/backfill"
	"photomigrate/internal/cdn"
	"photomigrate/internal/config"
	"photomigrate/internal/filestack"
	"photomigrate/internal/lock"
	"photomigrate/internal/logger"
	"photomigrate/internal/maintenance"
	"photomigrate/internal/metrics"
	"photomigrate/internal/queue"
	"photomigrate/internal/server"
	"photomigrate/internal/storage"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "photomigrate",
	Short: "Migrate photo image references from the transform CDN to object storage",
	Long: `Batch migration of photo documents: legacy CDN-hosted originals are
copied to S3, thumbnail references are rewritten to fetch-proxy URLs,
and every change is recorded in an immutable migration log. Work is
partitioned by creation date and driven through a durable Redis queue.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().Int("batch-size", 25, "Records migrated in parallel per batch")
	rootCmd.PersistentFlags().Int64("max-records-per-day", 20000, "Upper bound on records fetched per date")
	rootCmd.PersistentFlags().Bool("dry-run", true, "Log intended changes without moving objects or writing documents")
	rootCmd.PersistentFlags().Int("concurrency", 4, "Worker pool size for date jobs")
	rootCmd.PersistentFlags().Int("max-active-jobs", 8, "Queue capacity target for the backfill scheduler")
	rootCmd.PersistentFlags().Duration("lock-ttl", 0, "Date lock expiry (0 disables expiry)")
	rootCmd.PersistentFlags().String("handle-index", "", "Path to the filestack handle-to-path CSV")
	rootCmd.PersistentFlags().Int("port", 5000, "Job API port")
	rootCmd.PersistentFlags().String("metrics-addr", ":9090", "Prometheus metrics listen address")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug/info/warn/error)")

	rootCmd.AddCommand(serveCmd, workerCmd, backfillCmd, unlockCmd, archiveCmd, purgeCmd)
}

// setup loads config and builds the logger shared by every subcommand.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}

func redisClient(cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, gracefully stopping...")
		cancel()
	}()

	return ctx, cancel
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		rdb, err := redisClient(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		client, err := queue.NewClient(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()

		flags := queue.NewFlags(rdb)
		status, err := queue.NewStatusReader(cfg.Redis.URL, flags)
		if err != nil {
			return err
		}
		defer status.Close()

		srv := server.New(client, status, flags, log)

		ctx, cancel := signalContext(log)
		defer cancel()

		errChan := make(chan error, 1)
		go func() {
			log.Info("job API listening", zap.Int("port", cfg.Server.Port))
			errChan <- srv.Start(cfg.Server.Port)
		}()

		select {
		case err := <-errChan:
			return err
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		}
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the date-job worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		rdb, err := redisClient(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		store, err := storage.NewS3Client(storage.Config{
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			Endpoint:      cfg.Storage.Endpoint,
			Secure:        cfg.Storage.Secure,
			DefaultRegion: cfg.Storage.DefaultRegion,
			BucketRegions: cfg.Storage.BucketRegions,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}

		cdnClient := cdn.New(cdn.Config{
			CloudName:       cfg.CDN.CloudName,
			APIKey:          cfg.CDN.APIKey,
			APISecret:       cfg.CDN.APISecret,
			AdminRatePerSec: cfg.CDN.AdminRatePerSec,
		}, log)

		index := filestack.NewIndex(cfg.Migration.HandleIndex)

		collector := metrics.New()
		go func() {
			if err := collector.StartServer(cfg.Server.MetricsAddr); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()

		runner := queue.NewRunner(cfg, rdb, store, cdnClient, index, collector, log)

		opt, err := asynq.ParseRedisURI(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}

		srv := asynq.NewServer(opt, asynq.Config{
			Concurrency: cfg.Migration.Concurrency,
			Queues:      map[string]int{queue.QueueName: 1},
		})

		mux := asynq.NewServeMux()
		mux.Handle(queue.TypeMigrateDate, runner)

		log.Info("worker pool starting",
			zap.Int("concurrency", cfg.Migration.Concurrency),
			zap.Bool("dry_run", cfg.Migration.DryRun))

		// Run blocks and drains in-flight jobs on SIGINT/SIGTERM.
		return srv.Run(mux)
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Top up the queue with the days preceding the earliest queued date",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		client, err := queue.NewClient(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()

		scheduler, err := backfill.New(cfg.Redis.URL, client, cfg.Migration.MaxActiveJobs, log)
		if err != nil {
			return err
		}
		defer scheduler.Close()

		ctx, cancel := signalContext(log)
		defer cancel()

		dates, err := scheduler.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %d date(s)\n", len(dates))
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <date>",
	Short: "Force-release the lock for a date",
	Long: `Deletes the date lock regardless of its holder. Only for recovery
after a crashed job; never run it while a job for that date is active.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		date := args[0]
		if !queue.ValidDate(date) {
			return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
		}

		rdb, err := redisClient(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		ctx, cancel := signalContext(log)
		defer cancel()

		n, err := lock.New(rdb, 0, log).Release(ctx, date)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Printf("no lock held for %s\n", date)
		} else {
			fmt.Printf("released lock for %s\n", date)
		}
		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Copy pending CDN assets to the archive bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		if cfg.Storage.ArchiveBucket == "" {
			return fmt.Errorf("archive bucket is required")
		}

		rdb, err := redisClient(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		store, err := storage.NewS3Client(storage.Config{
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			Endpoint:      cfg.Storage.Endpoint,
			Secure:        cfg.Storage.Secure,
			DefaultRegion: cfg.Storage.DefaultRegion,
			BucketRegions: cfg.Storage.BucketRegions,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}

		cdnClient := cdn.New(cdn.Config{
			CloudName:       cfg.CDN.CloudName,
			APIKey:          cfg.CDN.APIKey,
			APISecret:       cfg.CDN.APISecret,
			AdminRatePerSec: cfg.CDN.AdminRatePerSec,
		}, log)

		ctx, cancel := signalContext(log)
		defer cancel()

		archiver := maintenance.NewArchiver(rdb, cdnClient, store, cfg.Storage.ArchiveBucket,
			cfg.Maintenance.BatchSize, cfg.Maintenance.MaxItems, log)
		archived, failed, err := archiver.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("archived %d, failed %d\n", archived, failed)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete already-archived assets from the CDN",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		rdb, err := redisClient(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		cdnClient := cdn.New(cdn.Config{
			CloudName:       cfg.CDN.CloudName,
			APIKey:          cfg.CDN.APIKey,
			APISecret:       cfg.CDN.APISecret,
			AdminRatePerSec: cfg.CDN.AdminRatePerSec,
		}, log)

		ctx, cancel := signalContext(log)
		defer cancel()

		purger := maintenance.NewPurger(rdb, cdnClient, cfg.Maintenance.BatchSize, cfg.Maintenance.MaxItems, log)
		purged, failed, err := purger.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("purged %d, failed %d\n", purged, failed)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
