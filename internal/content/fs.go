package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FSStore implements Store using the local filesystem.
type FSStore struct {
	baseDir string
}

var _ Store = (*FSStore)(nil)

func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

func (s *FSStore) path(name string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(name)), nil
}

// Write stores r under name. The data goes to a temp file first and is
// renamed into place, so readers never observe a partial object.
func (s *FSStore) Write(ctx context.Context, name string, r io.Reader, size int64) error {
	full, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write video file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("failed to move video file into place: %w", err)
	}
	return nil
}

func (s *FSStore) Open(ctx context.Context, name string) (*Object, error) {
	full, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &Object{Body: f, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes name. Deleting a missing object is not an error.
func (s *FSStore) Delete(ctx context.Context, name string) error {
	full, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete video file: %w", err)
	}
	return nil
}
