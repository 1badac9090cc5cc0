// Package content stores the video files themselves. Objects are addressed
// by a slash-separated name such as "videos/<id>_clip.mp4".
package content

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotExist is returned by Open when the object is missing.
var ErrNotExist = errors.New("content object does not exist")

// Object is an open stored file. Body may also implement io.Seeker, in which
// case callers can serve byte ranges. Body must always be closed.
type Object struct {
	Body    io.ReadCloser
	Size    int64
	ModTime time.Time
}

type Store interface {
	Write(ctx context.Context, name string, r io.Reader, size int64) error
	Open(ctx context.Context, name string) (*Object, error)
	Delete(ctx context.Context, name string) error
}

// UploadPrefix is where uploaded and generated videos live.
const UploadPrefix = "videos"

// ObjectName builds a store name under UploadPrefix from a unique prefix and
// the client-supplied filename, dropping any directory components.
func ObjectName(unique, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	if base == "." || base == "/" || base == "" {
		base = "video.mp4"
	}
	return UploadPrefix + "/" + unique + "_" + base
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// ContentType guesses the MIME type from the object name.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	}
	return "application/octet-stream"
}
