// Package config reads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeAsync = "async"
	ModeSync  = "sync"

	JobStoreSQL      = "sql"
	JobStoreDynamoDB = "dynamodb"

	MiB = 1 << 20
)

type Config struct {
	ShareSecret   string
	JWTSecret     string
	PublicBaseURL string
	ShareMaxAge   time.Duration

	ProcessingMode  string
	EnforceDuration bool
	UploadMinBytes  int64
	UploadMaxBytes  int64
	MinDuration     float64
	MaxDuration     float64

	Workers     int
	SQSQueueURL string
	JobStore    string
	JobsTable   string

	MinioAccessKey string
	MinioSecretKey string
	MinioSecure    bool

	FFmpegPath  string
	FFprobePath string

	LogLevel slog.Level
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// FromEnv builds a Config from os.Getenv.
func FromEnv() (*Config, error) {
	return Load(os.Getenv)
}

// WorkerFromEnv builds a worker Config from os.Getenv.
func WorkerFromEnv() (*Config, error) {
	return LoadWorker(os.Getenv)
}

// Load builds a Config using getenv for lookups. Both secrets are required.
func Load(getenv func(string) string) (*Config, error) {
	c, err := parse(getenv)
	if err != nil {
		return nil, err
	}
	if err := errors.Join(c.validateSecrets(), c.validate()); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadWorker builds the Config of a queue worker. Workers never sign or check
// tokens, so the secrets are optional, but SQS_QUEUE_URL is required.
func LoadWorker(getenv func(string) string) (*Config, error) {
	c, err := parse(getenv)
	if err != nil {
		return nil, err
	}
	var errs []error
	if c.SQSQueueURL == "" {
		errs = append(errs, errors.New("SQS_QUEUE_URL is required"))
	}
	if err := errors.Join(append(errs, c.validate())...); err != nil {
		return nil, err
	}
	return c, nil
}

func parse(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}
	c := &Config{
		ShareSecret:   p.str("SHARE_SECRET_KEY", ""),
		JWTSecret:     p.str("JWT_SECRET_KEY", ""),
		PublicBaseURL: strings.TrimRight(p.str("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		ShareMaxAge:   p.seconds("SHARE_MAX_AGE", time.Hour),

		ProcessingMode:  strings.ToLower(p.str("PROCESSING_MODE", ModeAsync)),
		EnforceDuration: p.boolean("ENFORCE_DURATION", false),
		UploadMinBytes:  p.integer("UPLOAD_MIN_BYTES", 5*MiB),
		UploadMaxBytes:  p.integer("UPLOAD_MAX_BYTES", 25*MiB),
		MinDuration:     p.float("MIN_DURATION", 5),
		MaxDuration:     p.float("MAX_DURATION", 25),

		Workers:     int(p.integer("WORKERS", 2)),
		SQSQueueURL: p.str("SQS_QUEUE_URL", ""),
		JobStore:    strings.ToLower(p.str("JOB_STORE", JobStoreSQL)),
		JobsTable:   p.str("JOBS_TABLE", ""),

		MinioAccessKey: p.str("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: p.str("MINIO_SECRET_KEY", ""),
		MinioSecure:    p.boolean("MINIO_SECURE", false),

		FFmpegPath:  p.str("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: p.str("FFPROBE_PATH", "ffprobe"),

		LogLevel: p.level("LOG_LEVEL", slog.LevelInfo),
	}
	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return c, nil
}

func (c *Config) validateSecrets() error {
	var errs []error
	if c.ShareSecret == "" {
		errs = append(errs, errors.New("SHARE_SECRET_KEY is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) validate() error {
	var errs []error
	if c.ProcessingMode != ModeAsync && c.ProcessingMode != ModeSync {
		errs = append(errs, fmt.Errorf("PROCESSING_MODE must be %q or %q, got %q", ModeAsync, ModeSync, c.ProcessingMode))
	}
	if c.JobStore != JobStoreSQL && c.JobStore != JobStoreDynamoDB {
		errs = append(errs, fmt.Errorf("JOB_STORE must be %q or %q, got %q", JobStoreSQL, JobStoreDynamoDB, c.JobStore))
	}
	if c.JobStore == JobStoreDynamoDB && c.JobsTable == "" {
		errs = append(errs, errors.New("JOBS_TABLE is required when JOB_STORE=dynamodb"))
	}
	if c.UploadMinBytes < 0 || c.UploadMaxBytes < c.UploadMinBytes {
		errs = append(errs, fmt.Errorf("invalid upload size range %d-%d", c.UploadMinBytes, c.UploadMaxBytes))
	}
	if c.MinDuration < 0 || c.MaxDuration < c.MinDuration {
		errs = append(errs, fmt.Errorf("invalid duration range %g-%g", c.MinDuration, c.MaxDuration))
	}
	if c.ShareMaxAge <= 0 {
		errs = append(errs, errors.New("SHARE_MAX_AGE must be positive"))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("WORKERS must be at least 1"))
	}
	return errors.Join(errs...)
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int64) int64 {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

// seconds accepts either a bare number of seconds or a Go duration string.
func (p *parser) seconds(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) level(key string, def slog.Level) slog.Level {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return l
}
