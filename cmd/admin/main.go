package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"vidshare/internal/app"
	"vidshare/internal/auth"
	"vidshare/internal/config"
	"vidshare/internal/sharetoken"
	"vidshare/internal/video"
)

func main() {
	if len(os.Args) < 2 {
		printUsageAndExit()
	}
	if err := config.LoadDotEnv(""); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "share-link":
		if len(args) != 1 {
			fmt.Println("Usage: share-link <video_id>")
			os.Exit(1)
		}
		err = shareLink(cfg, args[0])
	case "verify-link":
		if len(args) != 2 {
			fmt.Println("Usage: verify-link <video_id> <token>")
			os.Exit(1)
		}
		err = verifyLink(cfg, args[0], args[1])
	case "create-user":
		if len(args) != 4 {
			fmt.Println("Usage: create-user <metadata_type> <metadata_options> <username> <email>")
			os.Exit(1)
		}
		err = createUser(ctx, cfg, args)
	case "job":
		if len(args) != 3 {
			fmt.Println("Usage: job <metadata_type> <metadata_options> <job_id>")
			os.Exit(1)
		}
		err = showJob(ctx, cfg, args)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsageAndExit()
	}
	if err != nil {
		slog.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func printUsageAndExit() {
	fmt.Println("Usage:")
	fmt.Println("  share-link <video_id>                                         - Print a share link")
	fmt.Println("  verify-link <video_id> <token>                                - Check a share token")
	fmt.Println("  create-user <metadata_type> <metadata_options> <user> <email> - Create an account (password on stdin)")
	fmt.Println("  job <metadata_type> <metadata_options> <job_id>               - Show a trim/merge job")
	os.Exit(1)
}

func shareLink(cfg *config.Config, id string) error {
	if _, err := video.ParseId(id); err != nil {
		return err
	}
	codec, err := sharetoken.New([]byte(cfg.ShareSecret), sharetoken.DefaultSalt)
	if err != nil {
		return err
	}
	token, err := codec.Issue(id)
	if err != nil {
		return err
	}
	fmt.Printf("%s/stream/%s/%s\n", cfg.PublicBaseURL, id, token)
	return nil
}

func verifyLink(cfg *config.Config, id, token string) error {
	codec, err := sharetoken.New([]byte(cfg.ShareSecret), sharetoken.DefaultSalt)
	if err != nil {
		return err
	}
	payload, err := codec.Verify(token, id, cfg.ShareMaxAge)
	switch {
	case errors.Is(err, sharetoken.ErrSignatureExpired):
		return errors.New("token expired")
	case errors.Is(err, sharetoken.ErrAccessDenied):
		return errors.New("valid signature, but for a different video")
	case err != nil:
		return errors.New("invalid signature")
	}
	fmt.Printf("valid: video %s, issued %s\n", payload.VideoId, payload.IssuedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func createUser(ctx context.Context, cfg *config.Config, args []string) error {
	backends := &app.Backends{Config: cfg}
	db, err := backends.OpenMetadata(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	defer db.Close()

	users, err := auth.NewSQLUserStore(ctx, db)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && password == "" {
		return fmt.Errorf("failed to read password: %w", err)
	}

	svc := &auth.Service{Users: users}
	u, err := svc.Register(ctx, auth.Registration{
		Username: args[2],
		Email:    args[3],
		Password: strings.TrimRight(password, "\r\n"),
	})
	var ve *auth.ValidationError
	if errors.As(err, &ve) {
		for field, msg := range ve.Fields {
			fmt.Printf("%s: %s\n", field, msg)
		}
		return errors.New("user not created")
	}
	if err != nil {
		return err
	}
	fmt.Printf("Created user %s (id %d)\n", u.Username, u.Id)
	return nil
}

func showJob(ctx context.Context, cfg *config.Config, args []string) error {
	backends := &app.Backends{Config: cfg}
	db, err := backends.OpenMetadata(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := backends.OpenJobStore(ctx, db)
	if err != nil {
		return err
	}
	job, err := store.Get(ctx, args[2])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}
