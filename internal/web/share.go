package web

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"vidshare/internal/content"
	"vidshare/internal/sharetoken"
)

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	v, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	token, err := s.Share.Issue(v.ShareId())
	if err != nil {
		slog.Error("failed to issue share token", "video_id", v.Id, "error", err)
		s.sendJSONError(w, "failed to create share link", http.StatusInternalServerError)
		return
	}
	link := fmt.Sprintf("%s/stream/%s/%s", s.PublicBaseURL, v.ShareId(), token)
	s.sendJSON(w, map[string]string{"link": link}, http.StatusOK)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.serveShared(w, r, "inline")
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.serveShared(w, r, "attachment")
}

// serveShared checks the share token against the path id before touching the
// store, then writes the file with the given disposition.
func (s *Server) serveShared(w http.ResponseWriter, r *http.Request, disposition string) {
	id := r.PathValue("id")
	if _, err := s.Share.Verify(r.PathValue("token"), id, s.ShareMaxAge); err != nil {
		slog.Info("share token rejected", "video_id", id, "error", err)
		if errors.Is(err, sharetoken.ErrAccessDenied) {
			s.sendJSONError(w, "Invalid access", http.StatusForbidden)
			return
		}
		s.sendJSONError(w, "Invalid or expired token", http.StatusForbidden)
		return
	}

	v, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}

	obj, err := s.Content.Open(r.Context(), v.File)
	if errors.Is(err, content.ErrNotExist) {
		slog.Warn("video file missing from storage", "video_id", v.Id, "file", v.File)
		s.sendJSONError(w, "video file not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to open video content", "video_id", v.Id, "error", err)
		s.sendJSONError(w, "failed to read video content", http.StatusInternalServerError)
		return
	}
	defer obj.Body.Close()

	name := path.Base(v.File)
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, name))

	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, obj.ModTime, rs)
		return
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Debug("stream interrupted", "video_id", v.Id, "error", err)
	}
}
