package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	MaxUsernameLength = 150
	MinPasswordLength = 8

	// bcrypt only uses the first 72 bytes
	maxPasswordBytes = 72
)

var (
	ErrInvalidCredentials = errors.New("no active account found with the given credentials")

	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@+-]+$`)
)

// ValidationError maps request fields to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return "invalid registration: " + strings.Join(parts, "; ")
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks field presence and format. Uniqueness is checked by the
// store.
func (r *Registration) Validate() error {
	fields := map[string]string{}

	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)

	switch {
	case r.Username == "":
		fields["username"] = "This field is required."
	case len(r.Username) > MaxUsernameLength:
		fields["username"] = fmt.Sprintf("Ensure this field has no more than %d characters.", MaxUsernameLength)
	case !usernamePattern.MatchString(r.Username):
		fields["username"] = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	}

	if r.Email == "" {
		fields["email"] = "This field is required."
	} else if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		fields["email"] = "Enter a valid email address."
	}

	if r.Password == "" {
		fields["password"] = "This field is required."
	} else if len(r.Password) < MinPasswordLength {
		fields["password"] = fmt.Sprintf("Ensure this field has at least %d characters.", MinPasswordLength)
	} else if len(r.Password) > maxPasswordBytes {
		fields["password"] = fmt.Sprintf("Ensure this field has no more than %d bytes.", maxPasswordBytes)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Service ties the user store to password hashing and session tokens.
type Service struct {
	Users      UserStore
	Tokens     *TokenManager
	BcryptCost int
}

func (s *Service) Register(ctx context.Context, r Registration) (*User, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	cost := s.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u, err := s.Users.CreateUser(ctx, r.Username, r.Email, string(hash))
	switch {
	case errors.Is(err, ErrUsernameTaken):
		return nil, &ValidationError{Fields: map[string]string{"username": err.Error()}}
	case errors.Is(err, ErrEmailTaken):
		return nil, &ValidationError{Fields: map[string]string{"email": err.Error()}}
	case err != nil:
		return nil, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	u, err := s.Users.UserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.Tokens.IssuePair(u)
}

// Authenticate resolves an access token to its user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	claims, err := s.Tokens.Parse(accessToken, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	id, _ := claims.UserId()
	u, err := s.Users.UserById(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: user no longer exists", ErrInvalidToken)
	}
	return u, err
}
