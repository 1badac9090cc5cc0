package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vidshare/internal/app"
	"vidshare/internal/config"
	"vidshare/internal/jobs"
	"vidshare/internal/media"
	"vidshare/internal/video"
)

func printUsage() {
	fmt.Println("Usage: ./worker [OPTIONS] METADATA_TYPE METADATA_OPTIONS CONTENT_TYPE CONTENT_OPTIONS")
	fmt.Println()
	fmt.Println("Consumes trim and merge jobs from SQS_QUEUE_URL. The backends must match")
	fmt.Println("the ones the web server was started with.")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	tempDir := flag.String("temp-dir", "", "Directory for staging job files (default: system temp dir)")
	flag.Usage = printUsage
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if len(flag.Args()) != 4 {
		printUsage()
		os.Exit(2)
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.WorkerFromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Args(), *tempDir); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, args []string, tempDir string) error {
	backends := &app.Backends{Config: cfg}

	db, err := backends.OpenMetadata(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to create metadata service: %w", err)
	}
	defer db.Close()

	videos, err := video.NewSQLMetadataService(ctx, db)
	if err != nil {
		return err
	}
	store, err := backends.OpenContent(ctx, args[2], args[3])
	if err != nil {
		return fmt.Errorf("failed to create content service: %w", err)
	}
	jobStore, err := backends.OpenJobStore(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to create job store: %w", err)
	}
	client, err := backends.SQSClient(ctx)
	if err != nil {
		return err
	}

	runner := &jobs.Runner{
		Videos:    videos,
		Content:   store,
		Processor: media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath),
		Jobs:      jobStore,
		TempDir:   tempDir,
	}

	slog.Info("worker polling", "queue_url", cfg.SQSQueueURL)
	return jobs.NewSQSConsumer(client, cfg.SQSQueueURL, runner.Run).Run(ctx)
}
