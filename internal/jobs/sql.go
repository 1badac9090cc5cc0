package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vidshare/internal/sqldb"
)

var schema = map[string][]string{
	sqldb.DriverSQLite: {`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			video_id INTEGER NOT NULL DEFAULT 0,
			start_sec REAL NOT NULL DEFAULT 0,
			end_sec REAL NOT NULL DEFAULT 0,
			video_ids TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			result_video_id INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	},
	sqldb.DriverPostgres: {`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			video_id BIGINT NOT NULL DEFAULT 0,
			start_sec DOUBLE PRECISION NOT NULL DEFAULT 0,
			end_sec DOUBLE PRECISION NOT NULL DEFAULT 0,
			video_ids TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			result_video_id BIGINT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
	},
}

const jobColumns = "id, kind, video_id, start_sec, end_sec, video_ids, status, attempts, result_video_id, error, created_at, updated_at"

// SQLStore keeps jobs next to the videos table.
type SQLStore struct {
	db *sqldb.DB
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(ctx context.Context, db *sqldb.DB) (*SQLStore, error) {
	if err := db.Migrate(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create jobs table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Create(ctx context.Context, job *Job) error {
	ids, err := json.Marshal(job.VideoIds)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		"INSERT INTO jobs ("+jobColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		job.Id, string(job.Kind), job.VideoId, job.Start, job.End, string(ids), string(job.Status),
		job.Attempts, job.ResultVideoId, job.Error, job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	)
	if err != nil {
		if sqldb.IsUniqueViolation(err) {
			return fmt.Errorf("job %s already exists", job.Id)
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+jobColumns+" FROM jobs WHERE id = ?"), id)

	var (
		j           Job
		kind, state string
		ids         string
	)
	err := row.Scan(&j.Id, &kind, &j.VideoId, &j.Start, &j.End, &ids, &state,
		&j.Attempts, &j.ResultVideoId, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to read job: %w", err)
	}
	j.Kind = Kind(kind)
	j.Status = Status(state)
	if err := json.Unmarshal([]byte(ids), &j.VideoIds); err != nil {
		return nil, fmt.Errorf("failed to decode video ids: %w", err)
	}
	return &j, nil
}

// Update persists the mutable fields of job and bumps updated_at.
func (s *SQLStore) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE jobs SET status = ?, attempts = ?, result_video_id = ?, error = ?, updated_at = ?
		 WHERE id = ?`),
		string(job.Status), job.Attempts, job.ResultVideoId, job.Error, job.UpdatedAt, job.Id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
