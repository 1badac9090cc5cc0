package web

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"vidshare/internal/config"
	"vidshare/internal/content"
	"vidshare/internal/video"
)

const (
	maxTitleLength = 255

	// multipart framing on top of the file itself
	uploadOverhead  = 1 << 20
	multipartMemory = 8 << 20
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.UploadMaxBytes + uploadOverhead
	if r.ContentLength > limit {
		s.sendValidationError(w, map[string]string{"video_file": s.sizeMessage()})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendValidationError(w, map[string]string{"video_file": s.sizeMessage()})
			return
		}
		s.sendJSONError(w, "invalid form data", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video_file")
	if err != nil {
		s.sendValidationError(w, map[string]string{"video_file": "No file was submitted."})
		return
	}
	defer file.Close()

	fields := map[string]string{}
	if header.Size < s.UploadMinBytes || header.Size > s.UploadMaxBytes {
		fields["video_file"] = s.sizeMessage()
	}
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		fields["title"] = fmt.Sprintf("Ensure this field has no more than %d characters.", maxTitleLength)
	}
	if len(fields) > 0 {
		s.sendValidationError(w, fields)
		return
	}

	var body io.Reader = file
	var duration float64
	if s.Processor != nil {
		spooled, err := s.spool(file, header.Filename)
		if err != nil {
			slog.Error("failed to spool upload", "filename", header.Filename, "error", err)
			s.sendJSONError(w, "failed to save uploaded file", http.StatusInternalServerError)
			return
		}
		defer func() {
			spooled.Close()
			os.Remove(spooled.Name())
		}()

		duration, err = s.Processor.Probe(r.Context(), spooled.Name())
		switch {
		case err != nil && s.EnforceDuration:
			slog.Warn("could not read upload duration", "filename", header.Filename, "error", err)
			s.sendValidationError(w, map[string]string{"video_file": "Could not read video duration."})
			return
		case err != nil:
			slog.Warn("could not read upload duration", "filename", header.Filename, "error", err)
			duration = 0
		case s.EnforceDuration && (duration < s.MinDuration || duration > s.MaxDuration):
			s.sendValidationError(w, map[string]string{
				"video_file": fmt.Sprintf("Video duration must be between %g and %g seconds.", s.MinDuration, s.MaxDuration),
			})
			return
		}
		body = spooled
	}

	name := content.ObjectName(uuid.NewString(), header.Filename)
	if err := s.Content.Write(r.Context(), name, body, header.Size); err != nil {
		slog.Error("failed to store upload", "file", name, "error", err)
		s.sendJSONError(w, "failed to save uploaded file", http.StatusInternalServerError)
		return
	}

	v, err := s.Videos.Create(r.Context(), video.NewVideo{
		Title:    title,
		File:     name,
		FileSize: header.Size,
		Duration: duration,
	})
	if err != nil {
		slog.Error("failed to save metadata", "file", name, "error", err)
		if derr := s.Content.Delete(r.Context(), name); derr != nil {
			slog.Warn("failed to remove orphaned upload", "file", name, "error", derr)
		}
		s.sendJSONError(w, "failed to save video metadata", http.StatusInternalServerError)
		return
	}

	slog.Info("video uploaded", "video_id", v.Id, "file", v.File, "size", v.FileSize, "duration", v.Duration, "user", userFrom(r.Context()))
	s.sendJSON(w, v, http.StatusCreated)
}

// spool copies the upload to a temp file so it can be probed, and leaves it
// rewound for storing.
func (s *Server) spool(r io.Reader, filename string) (*os.File, error) {
	f, err := os.CreateTemp(s.TempDir, "upload-*"+filepath.Ext(path.Base(filename)))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to copy upload: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to rewind upload: %w", err)
	}
	return f, nil
}

func (s *Server) sizeMessage() string {
	return fmt.Sprintf("File size must be between %s and %s.", formatBytes(s.UploadMinBytes), formatBytes(s.UploadMaxBytes))
}

func formatBytes(n int64) string {
	if n >= config.MiB && n%config.MiB == 0 {
		return fmt.Sprintf("%dMB", n/config.MiB)
	}
	return fmt.Sprintf("%d bytes", n)
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.Videos.List(r.Context())
	if err != nil {
		slog.Error("failed to list videos", "error", err)
		s.sendJSONError(w, "failed to list videos", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, videos, http.StatusOK)
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	v, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, v, http.StatusOK)
}

func (s *Server) handleUpdateVideo(w http.ResponseWriter, r *http.Request) {
	v, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}

	var body struct {
		Title *string `json:"title"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.sendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Title == nil {
		if r.Method == http.MethodPatch {
			s.sendJSON(w, v, http.StatusOK)
			return
		}
		s.sendValidationError(w, map[string]string{"title": "This field is required."})
		return
	}

	title := strings.TrimSpace(*body.Title)
	switch {
	case title == "":
		s.sendValidationError(w, map[string]string{"title": "This field may not be blank."})
		return
	case utf8.RuneCountInString(title) > maxTitleLength:
		s.sendValidationError(w, map[string]string{
			"title": fmt.Sprintf("Ensure this field has no more than %d characters.", maxTitleLength),
		})
		return
	}

	updated, err := s.Videos.UpdateTitle(r.Context(), v.Id, title)
	if errors.Is(err, video.ErrNotFound) {
		s.sendJSONError(w, "video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to update video", "video_id", v.Id, "error", err)
		s.sendJSONError(w, "failed to update video", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, updated, http.StatusOK)
}

func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	v, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}

	if err := s.Videos.Delete(r.Context(), v.Id); err != nil {
		if errors.Is(err, video.ErrNotFound) {
			s.sendJSONError(w, "video not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to delete video metadata", "video_id", v.Id, "error", err)
		s.sendJSONError(w, "failed to delete video metadata", http.StatusInternalServerError)
		return
	}

	// The record is gone; a leftover file is only logged.
	if err := s.Content.Delete(r.Context(), v.File); err != nil {
		slog.Warn("failed to delete video content from storage", "video_id", v.Id, "file", v.File, "error", err)
	}

	slog.Info("video deleted", "video_id", v.Id)
	w.WriteHeader(http.StatusNoContent)
}
