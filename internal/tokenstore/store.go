// Package tokenstore persists the credentials of one admin session.
//
// The Store keeps three independent entries (access token, refresh token and a
// JSON-serialized user) in a swappable Backend. Every operation is best-effort:
// backend failures are reported on the logger and never returned to the caller,
// so "unavailable" looks the same whether the entry is missing or the medium failed.
package tokenstore

import (
	"encoding/json"

	"github.com/felixgeelhaar/tirecode/internal/log"
)

// DefaultPrefix namespaces the keys so they do not collide with unrelated
// data in a shared backend.
const DefaultPrefix = "tirecode"

// User is the identity attached to a session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Backend is a synchronous string key/value medium.
//
// Get returns ok=false for a missing key. Implementations must be safe for
// concurrent use.
type Backend interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// Store is the session token store.
type Store struct {
	backend Backend
	prefix  string
	logger  *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithLogger sets the diagnostic channel for backend failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store over backend. A nil backend behaves like a context with
// no persistence medium: reads are absent and writes are no-ops.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		prefix:  DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger).With("component", "tokenstore")
	return s
}

// AccessTokenKey returns the backend key of the access token.
func (s *Store) AccessTokenKey() string { return s.prefix + "_access_token" }

// RefreshTokenKey returns the backend key of the refresh token.
func (s *Store) RefreshTokenKey() string { return s.prefix + "_refresh_token" }

// UserKey returns the backend key of the serialized user.
func (s *Store) UserKey() string { return s.prefix + "_user" }

// Backend returns the medium the store writes to.
func (s *Store) Backend() Backend { return s.backend }

// SetAuth writes all three session fields. On the first backend failure it
// stops and logs; entries written before the failure are left in place.
func (s *Store) SetAuth(accessToken, refreshToken string, user User) {
	if s.backend == nil {
		return
	}

	userData, err := json.Marshal(user)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode user")
		return
	}

	writes := []struct{ key, value string }{
		{s.AccessTokenKey(), accessToken},
		{s.RefreshTokenKey(), refreshToken},
		{s.UserKey(), string(userData)},
	}
	for _, w := range writes {
		if err := s.backend.Set(w.key, w.value); err != nil {
			s.logger.WithError(err).Error("failed to save auth data", "key", w.key)
			return
		}
	}
}

// AccessToken returns the stored access token.
func (s *Store) AccessToken() (string, bool) {
	return s.get(s.AccessTokenKey())
}

// RefreshToken returns the stored refresh token.
func (s *Store) RefreshToken() (string, bool) {
	return s.get(s.RefreshTokenKey())
}

// User returns the stored user. A malformed payload is reported as absent.
func (s *Store) User() (User, bool) {
	raw, ok := s.get(s.UserKey())
	if !ok {
		return User{}, false
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Debug("ignoring malformed stored user", "error", err.Error())
		return User{}, false
	}
	return user, true
}

// ClearAuth removes the three session entries and nothing else. It keeps going
// past individual failures so as much as possible is removed.
func (s *Store) ClearAuth() {
	if s.backend == nil {
		return
	}

	for _, key := range []string{s.AccessTokenKey(), s.RefreshTokenKey(), s.UserKey()} {
		if err := s.backend.Delete(key); err != nil {
			s.logger.WithError(err).Error("failed to clear auth data", "key", key)
		}
	}
}

// IsAuthenticated reports whether a non-empty access token is stored.
func (s *Store) IsAuthenticated() bool {
	token, ok := s.AccessToken()
	return ok && token != ""
}

func (s *Store) get(key string) (string, bool) {
	if s.backend == nil {
		return "", false
	}

	value, ok, err := s.backend.Get(key)
	if err != nil {
		s.logger.Debug("token store read failed", "key", key, "error", err.Error())
		return "", false
	}
	if !ok {
		return "", false
	}
	return value, true
}
