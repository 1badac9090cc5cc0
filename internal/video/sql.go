package video

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vidshare/internal/sqldb"
)

var schema = map[string][]string{
	sqldb.DriverSQLite: {`
		CREATE TABLE IF NOT EXISTS videos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			video_file TEXT NOT NULL,
			file_size INTEGER NOT NULL DEFAULT 0,
			duration REAL NOT NULL DEFAULT 0,
			is_merged BOOLEAN NOT NULL DEFAULT 0,
			is_trimmed BOOLEAN NOT NULL DEFAULT 0,
			uploaded_at DATETIME NOT NULL
		)`,
	},
	sqldb.DriverPostgres: {`
		CREATE TABLE IF NOT EXISTS videos (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			video_file TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			duration DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_merged BOOLEAN NOT NULL DEFAULT FALSE,
			is_trimmed BOOLEAN NOT NULL DEFAULT FALSE,
			uploaded_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`, `
		CREATE INDEX IF NOT EXISTS idx_videos_uploaded_at
		ON videos(uploaded_at DESC)`,
	},
}

const videoColumns = "id, title, video_file, file_size, duration, is_merged, is_trimmed, uploaded_at"

// SQLMetadataService implements MetadataService on SQLite or PostgreSQL.
type SQLMetadataService struct {
	db  *sqldb.DB
	now func() time.Time
}

var _ MetadataService = (*SQLMetadataService)(nil)

func NewSQLMetadataService(ctx context.Context, db *sqldb.DB) (*SQLMetadataService, error) {
	if err := db.Migrate(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create videos table: %w", err)
	}
	return &SQLMetadataService{db: db, now: time.Now}, nil
}

func (s *SQLMetadataService) Create(ctx context.Context, v NewVideo) (*Video, error) {
	id, err := s.db.InsertReturningId(ctx,
		`INSERT INTO videos (title, video_file, file_size, duration, is_merged, is_trimmed, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.Title, v.File, v.FileSize, v.Duration, v.IsMerged, v.IsTrimmed, s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert video: %w", err)
	}
	return s.Read(ctx, id)
}

func (s *SQLMetadataService) Read(ctx context.Context, id int64) (*Video, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		"SELECT "+videoColumns+" FROM videos WHERE id = ?"), id)
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read video: %w", err)
	}
	return v, nil
}

func (s *SQLMetadataService) ReadByFile(ctx context.Context, file string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		"SELECT "+videoColumns+" FROM videos WHERE video_file = ? ORDER BY id DESC LIMIT 1"), file)
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read video: %w", err)
	}
	return v, nil
}

func (s *SQLMetadataService) List(ctx context.Context) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+videoColumns+" FROM videos ORDER BY uploaded_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	result := []Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

func (s *SQLMetadataService) UpdateTitle(ctx context.Context, id int64, title string) (*Video, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE videos SET title = ? WHERE id = ?"), title, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update video: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Read(ctx, id)
}

func (s *SQLMetadataService) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM videos WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; the pool is shared and closed by its owner.
func (s *SQLMetadataService) Close() error {
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner) (*Video, error) {
	var v Video
	if err := row.Scan(&v.Id, &v.Title, &v.File, &v.FileSize, &v.Duration,
		&v.IsMerged, &v.IsTrimmed, &v.UploadedAt); err != nil {
		return nil, err
	}
	return &v, nil
}
