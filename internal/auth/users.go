package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vidshare/internal/sqldb"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("a user with that username already exists")
	ErrEmailTaken    = errors.New("a user with that email already exists")
)

type User struct {
	Id           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserStore interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)
	UserByUsername(ctx context.Context, username string) (*User, error)
	UserById(ctx context.Context, id int64) (*User, error)
}

var schema = map[string][]string{
	sqldb.DriverSQLite: {`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
	},
	sqldb.DriverPostgres: {`
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(150) NOT NULL UNIQUE,
			email VARCHAR(254) NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
	},
}

type SQLUserStore struct {
	db *sqldb.DB
}

var _ UserStore = (*SQLUserStore)(nil)

func NewSQLUserStore(ctx context.Context, db *sqldb.DB) (*SQLUserStore, error) {
	if err := db.Migrate(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}
	return &SQLUserStore{db: db}, nil
}

// CreateUser inserts a user. Username and email clashes are reported as
// ErrUsernameTaken and ErrEmailTaken.
func (s *SQLUserStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	if taken, err := s.exists(ctx, "username", username); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}
	if taken, err := s.exists(ctx, "email", email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}

	id, err := s.db.InsertReturningId(ctx,
		"INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		username, email, passwordHash, time.Now().UTC(),
	)
	if err != nil {
		// lost a race with a concurrent registration
		if sqldb.IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return s.UserById(ctx, id)
}

func (s *SQLUserStore) exists(ctx context.Context, column, value string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.db.Rebind(
		"SELECT COUNT(*) FROM users WHERE LOWER("+column+") = LOWER(?)"), value).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", column, err)
	}
	return n > 0, nil
}

func (s *SQLUserStore) UserByUsername(ctx context.Context, username string) (*User, error) {
	return s.one(ctx, "username = ?", username)
}

func (s *SQLUserStore) UserById(ctx context.Context, id int64) (*User, error) {
	return s.one(ctx, "id = ?", id)
}

func (s *SQLUserStore) one(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		"SELECT id, username, email, password_hash, created_at FROM users WHERE "+where), arg)
	var u User
	if err := row.Scan(&u.Id, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	return &u, nil
}
