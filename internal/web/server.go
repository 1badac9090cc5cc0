package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"vidshare/internal/auth"
	"vidshare/internal/content"
	"vidshare/internal/jobs"
	"vidshare/internal/media"
	"vidshare/internal/sharetoken"
	"vidshare/internal/video"
)

// Deps are the collaborators and knobs the handlers are built from.
type Deps struct {
	Videos    video.MetadataService
	Content   content.Store
	Processor media.Processor // optional; without it uploads are not probed
	Jobs      jobs.Store
	Queue     jobs.Queue // used when Sync is false
	Runner    *jobs.Runner
	Auth      *auth.Service
	Share     *sharetoken.Codec

	ShareMaxAge   time.Duration
	PublicBaseURL string

	// Sync runs trim and merge inside the request instead of queueing them.
	Sync bool

	EnforceDuration bool
	UploadMinBytes  int64
	UploadMaxBytes  int64
	MinDuration     float64
	MaxDuration     float64

	TempDir string
}

type Server struct {
	Deps

	mux *http.ServeMux
	srv *http.Server
}

func NewServer(deps Deps) *Server {
	if deps.ShareMaxAge <= 0 {
		deps.ShareMaxAge = sharetoken.DefaultMaxAge
	}
	s := &Server{Deps: deps, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Accounts
	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("POST /token/refresh", s.handleRefresh)

	// Videos (session required)
	s.mux.HandleFunc("POST /upload", s.requireUser(s.handleUpload))
	s.mux.HandleFunc("GET /videos", s.requireUser(s.handleListVideos))
	s.mux.HandleFunc("GET /videos/{id}", s.requireUser(s.handleGetVideo))
	s.mux.HandleFunc("PUT /videos/{id}", s.requireUser(s.handleUpdateVideo))
	s.mux.HandleFunc("PATCH /videos/{id}", s.requireUser(s.handleUpdateVideo))
	s.mux.HandleFunc("DELETE /videos/{id}", s.requireUser(s.handleDeleteVideo))

	// Processing
	s.mux.HandleFunc("POST /trim/{id}", s.requireUser(s.handleTrim))
	s.mux.HandleFunc("POST /merge", s.requireUser(s.handleMerge))
	s.mux.HandleFunc("GET /jobs/{id}", s.requireUser(s.handleGetJob))

	// Sharing; stream and download are gated by the share token alone
	s.mux.HandleFunc("GET /share/{id}", s.requireUser(s.handleShare))
	s.mux.HandleFunc("GET /stream/{id}/{token}", s.handleStream)
	s.mux.HandleFunc("GET /download/{id}/{token}", s.handleDownload)
}

// Handler returns the routed handler wrapped with logging and CORS.
func (s *Server) Handler() http.Handler {
	return s.logMiddleware(s.corsMiddleware(s.mux))
}

func (s *Server) Start(lis net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type apiErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Helper functions for JSON responses
func (s *Server) sendJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) sendJSONError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, apiErrorResponse{Error: message}, status)
}

func (s *Server) sendValidationError(w http.ResponseWriter, fields map[string]string) {
	s.sendJSON(w, apiErrorResponse{Error: "invalid request", Fields: fields}, http.StatusBadRequest)
}

// decodeJSON reads a small JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// videoFromPath resolves the {id} path value, writing a 404 when the id is
// malformed or unknown.
func (s *Server) videoFromPath(w http.ResponseWriter, r *http.Request) (*video.Video, bool) {
	id, err := video.ParseId(r.PathValue("id"))
	if err != nil {
		s.sendJSONError(w, "video not found", http.StatusNotFound)
		return nil, false
	}
	v, err := s.Videos.Read(r.Context(), id)
	if errors.Is(err, video.ErrNotFound) {
		s.sendJSONError(w, "video not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		slog.Error("failed to read video metadata", "video_id", id, "error", err)
		s.sendJSONError(w, "failed to read video metadata", http.StatusInternalServerError)
		return nil, false
	}
	return v, true
}
