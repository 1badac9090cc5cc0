package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"vidshare/internal/auth"
)

type userKey struct{}

// userFrom returns the name of the authenticated user stored by requireUser,
// or "" on public routes.
func userFrom(ctx context.Context) string {
	if u, ok := ctx.Value(userKey{}).(*auth.User); ok {
		return u.Username
	}
	return ""
}

// requireUser rejects requests without a valid bearer access token.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			s.sendJSONError(w, "authentication credentials were not provided", http.StatusUnauthorized)
			return
		}
		u, err := s.Auth.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				slog.Error("failed to authenticate request", "error", err)
			}
			s.sendJSONError(w, "given token not valid for any token type", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body auth.Registration
	if err := decodeJSON(r, &body); err != nil {
		s.sendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	u, err := s.Auth.Register(r.Context(), body)
	var ve *auth.ValidationError
	if errors.As(err, &ve) {
		s.sendValidationError(w, ve.Fields)
		return
	}
	if err != nil {
		slog.Error("failed to register user", "username", body.Username, "error", err)
		s.sendJSONError(w, "failed to register user", http.StatusInternalServerError)
		return
	}

	slog.Info("user registered", "user_id", u.Id, "username", u.Username)
	s.sendJSON(w, map[string]any{
		"id":       u.Id,
		"username": u.Username,
		"email":    u.Email,
	}, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.sendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	fields := map[string]string{}
	if body.Username == "" {
		fields["username"] = "This field is required."
	}
	if body.Password == "" {
		fields["password"] = "This field is required."
	}
	if len(fields) > 0 {
		s.sendValidationError(w, fields)
		return
	}

	pair, err := s.Auth.Login(r.Context(), body.Username, body.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.sendJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if err != nil {
		slog.Error("failed to log in", "username", body.Username, "error", err)
		s.sendJSONError(w, "failed to log in", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, pair, http.StatusOK)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Refresh == "" {
		s.sendValidationError(w, map[string]string{"refresh": "This field is required."})
		return
	}
	access, err := s.Auth.Tokens.Refresh(body.Refresh)
	if err != nil {
		s.sendJSONError(w, "token is invalid or expired", http.StatusUnauthorized)
		return
	}
	s.sendJSON(w, map[string]string{"access": access}, http.StatusOK)
}
