package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vidshare/internal/app"
	"vidshare/internal/auth"
	"vidshare/internal/config"
	"vidshare/internal/jobs"
	"vidshare/internal/media"
	"vidshare/internal/sharetoken"
	"vidshare/internal/video"
	"vidshare/internal/web"
)

// printUsage prints the usage information for the application
func printUsage() {
	fmt.Println("Usage: ./web [OPTIONS] METADATA_TYPE METADATA_OPTIONS CONTENT_TYPE CONTENT_OPTIONS")
	fmt.Println()
	fmt.Println("Arguments:")
	fmt.Println("  METADATA_TYPE         Metadata service type (sqlite, postgres)")
	fmt.Println("  METADATA_OPTIONS      Options for metadata service (db path or DSN)")
	fmt.Println("  CONTENT_TYPE          Content service type (fs, s3, minio)")
	fmt.Println("  CONTENT_OPTIONS       Options for content service (base dir, bucket, or endpoint/bucket)")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Example: ./web sqlite db.db fs /path/to/videos")
}

func main() {
	port := flag.Int("port", 8080, "Port number for the web server")
	host := flag.String("host", "localhost", "Host address for the web server")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")

	flag.Usage = printUsage
	flag.Parse()

	if len(flag.Args()) != 4 {
		fmt.Println("Error: Incorrect number of arguments")
		printUsage()
		os.Exit(2)
	}
	if *port <= 0 {
		fmt.Println("Error: Invalid port number:", *port)
		printUsage()
		os.Exit(2)
	}

	if err := run(*host, *port, *envFile, flag.Args()); err != nil {
		slog.Error("web server failed", "error", err)
		os.Exit(1)
	}
}

func run(host string, port int, envFile string, args []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends := &app.Backends{Config: cfg}
	metadataType, metadataOptions := args[0], args[1]
	contentType, contentOptions := args[2], args[3]

	slog.Info("creating metadata service", "type", metadataType)
	db, err := backends.OpenMetadata(ctx, metadataType, metadataOptions)
	if err != nil {
		return fmt.Errorf("failed to create metadata service: %w", err)
	}
	defer db.Close()

	videos, err := video.NewSQLMetadataService(ctx, db)
	if err != nil {
		return err
	}
	users, err := auth.NewSQLUserStore(ctx, db)
	if err != nil {
		return err
	}

	slog.Info("creating content service", "type", contentType, "options", contentOptions)
	store, err := backends.OpenContent(ctx, contentType, contentOptions)
	if err != nil {
		return fmt.Errorf("failed to create content service: %w", err)
	}

	jobStore, err := backends.OpenJobStore(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to create job store: %w", err)
	}

	tokens, err := auth.NewTokenManager([]byte(cfg.JWTSecret), 0, 0)
	if err != nil {
		return err
	}
	codec, err := sharetoken.New([]byte(cfg.ShareSecret), sharetoken.DefaultSalt)
	if err != nil {
		return err
	}

	processor := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	runner := &jobs.Runner{
		Videos:    videos,
		Content:   store,
		Processor: processor,
		Jobs:      jobStore,
	}

	// Jobs go to SQS when a queue is configured, otherwise to in-process workers.
	var queue jobs.Queue
	var local *jobs.LocalQueue
	if cfg.ProcessingMode == config.ModeAsync {
		if cfg.SQSQueueURL != "" {
			client, err := backends.SQSClient(ctx)
			if err != nil {
				return err
			}
			queue = jobs.NewSQSQueue(client, cfg.SQSQueueURL)
			slog.Info("jobs dispatched to sqs", "queue_url", cfg.SQSQueueURL)
		} else {
			local = jobs.NewLocalQueue(runner.Run, jobs.LocalOptions{Workers: cfg.Workers})
			queue = local
			slog.Info("jobs dispatched to local workers", "workers", cfg.Workers)
		}
	}

	server := web.NewServer(web.Deps{
		Videos:          videos,
		Content:         store,
		Processor:       processor,
		Jobs:            jobStore,
		Queue:           queue,
		Runner:          runner,
		Auth:            &auth.Service{Users: users, Tokens: tokens},
		Share:           codec,
		ShareMaxAge:     cfg.ShareMaxAge,
		PublicBaseURL:   cfg.PublicBaseURL,
		Sync:            cfg.ProcessingMode == config.ModeSync,
		EnforceDuration: cfg.EnforceDuration,
		UploadMinBytes:  cfg.UploadMinBytes,
		UploadMaxBytes:  cfg.UploadMaxBytes,
		MinDuration:     cfg.MinDuration,
		MaxDuration:     cfg.MaxDuration,
	})

	listenAddr := fmt.Sprintf("%s:%d", host, port)
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("starting web server", "addr", listenAddr, "mode", cfg.ProcessingMode)
		errc <- server.Start(lis)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if local != nil {
		if err := local.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain job queue: %w", err))
		}
	}
	return errors.Join(errs...)
}
