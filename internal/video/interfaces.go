package video

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrNotFound is returned when no video has the requested id.
var ErrNotFound = errors.New("video not found")

type Video struct {
	Id         int64     `json:"id"`
	Title      string    `json:"title"`
	File       string    `json:"video_file"`
	FileSize   int64     `json:"file_size"`
	Duration   float64   `json:"duration"`
	IsMerged   bool      `json:"is_merged"`
	IsTrimmed  bool      `json:"is_trimmed"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ShareId is the canonical string form of the id carried in share tokens.
func (v *Video) ShareId() string {
	return FormatId(v.Id)
}

// NewVideo holds the fields a caller supplies on creation; id and
// uploaded_at are assigned by the store.
type NewVideo struct {
	Title     string
	File      string
	FileSize  int64
	Duration  float64
	IsMerged  bool
	IsTrimmed bool
}

type MetadataService interface {
	Create(ctx context.Context, v NewVideo) (*Video, error)
	Read(ctx context.Context, id int64) (*Video, error)
	// ReadByFile returns the newest video stored under the object name file.
	ReadByFile(ctx context.Context, file string) (*Video, error)
	List(ctx context.Context) ([]Video, error)
	UpdateTitle(ctx context.Context, id int64, title string) (*Video, error)
	Delete(ctx context.Context, id int64) error
	Close() error
}

func FormatId(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseId parses a path segment into a video id. Only positive ids are valid.
func ParseId(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid video id")
	}
	return id, nil
}
