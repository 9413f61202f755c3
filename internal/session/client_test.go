package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/tirecode/internal/errors"
	"github.com/felixgeelhaar/tirecode/internal/log"
	"github.com/felixgeelhaar/tirecode/internal/metrics"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func grantBody(prefix string) map[string]any {
	return map[string]any{
		"accessToken":  prefix + "-access",
		"refreshToken": prefix + "-refresh",
		"expiresIn":    3600,
		"user":         map[string]string{"id": "u-1", "email": "admin@example.com"},
	}
}

func newAuthServer(t *testing.T, route func(r chi.Router)) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	route(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, opts ...ClientOption) *Client {
	all := append([]ClientOption{WithClientLogger(log.Discard())}, opts...)
	return NewClient(srv.URL, all...)
}

func TestClient_LoginSuccess(t *testing.T) {
	var got map[string]string
	srv := newAuthServer(t, func(r chi.Router) {
		r.Post(LoginPath, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
			assert.Contains(t, r.Header.Get("User-Agent"), "tirecode/")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeJSON(w, http.StatusOK, grantBody("login"))
		})
	})

	grant, err := newTestClient(srv).Login(context.Background(), "admin@example.com", "secret")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"email": "admin@example.com", "password": "secret"}, got)
	assert.Equal(t, "login-access", grant.AccessToken)
	assert.Equal(t, "login-refresh", grant.RefreshToken)
	assert.Equal(t, int64(3600), grant.ExpiresIn)
	assert.Equal(t, testUser, grant.User)
}

func TestClient_LoginErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     any
		header   map[string]string
		wantCode errors.ErrorCode
		wantMsg  string
	}{
		{
			name:     "unauthorized with server message",
			status:   http.StatusUnauthorized,
			body:     map[string]any{"error": map[string]string{"code": "INVALID_CREDENTIALS", "message": "Invalid email or password"}},
			wantCode: errors.ErrCodeInvalidCredentials,
			wantMsg:  "Invalid email or password",
		},
		{
			name:     "unauthorized without body",
			status:   http.StatusUnauthorized,
			wantCode: errors.ErrCodeInvalidCredentials,
			wantMsg:  "invalid credentials",
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			header:   map[string]string{"Retry-After": "30"},
			wantCode: errors.ErrCodeRateLimited,
			wantMsg:  "retry after: 30s",
		},
		{
			name:     "server error",
			status:   http.StatusBadGateway,
			wantCode: errors.ErrCodeServerUnavailable,
			wantMsg:  "status 502",
		},
		{
			name:     "unexpected status",
			status:   http.StatusBadRequest,
			body:     map[string]any{"error": map[string]string{"message": "email is required"}},
			wantCode: errors.ErrCodeLoginFailed,
			wantMsg:  "email is required",
		},
		{
			name:     "success without token",
			status:   http.StatusOK,
			body:     map[string]any{"user": map[string]string{"id": "1"}},
			wantCode: errors.ErrCodeLoginFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newAuthServer(t, func(r chi.Router) {
				r.Post(LoginPath, func(w http.ResponseWriter, r *http.Request) {
					for k, v := range tt.header {
						w.Header().Set(k, v)
					}
					if tt.body == nil {
						w.WriteHeader(tt.status)
						return
					}
					writeJSON(w, tt.status, tt.body)
				})
			})

			_, err := newTestClient(srv).Login(context.Background(), "admin@example.com", "secret")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestClient_LoginUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, WithClientLogger(log.Discard())).Login(context.Background(), "a@b.c", "pw")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnreachable))
	assert.Contains(t, err.Error(), "cannot connect to server at "+url)
}

func TestClient_LoginCanceledByCaller(t *testing.T) {
	srv := newAuthServer(t, func(r chi.Router) {
		r.Post(LoginPath, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(srv).Login(ctx, "a@b.c", "pw")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, errors.CodeOf(err))
}

func TestClient_LoginBodyStallIsUnreachable(t *testing.T) {
	srv := newAuthServer(t, func(r chi.Router) {
		r.Post(LoginPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"accessToken":`))
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		})
	})

	_, err := newTestClient(srv, WithTimeout(50*time.Millisecond)).Login(context.Background(), "a@b.c", "pw")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnreachable), "got %v", errors.CodeOf(err))
	assert.NotEqual(t, errors.ErrCodeLoginFailed, errors.CodeOf(err))
}

func TestClient_LoginWithoutTokenIsLoginFailure(t *testing.T) {
	srv := newAuthServer(t, func(r chi.Router) {
		r.Post(LoginPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"user":{}}`))
		})
	})

	_, err := newTestClient(srv).Login(context.Background(), "a@b.c", "pw")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeLoginFailed))
}

func TestClient_RefreshOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode errors.ErrorCode
	}{
		{"unauthorized is terminal", http.StatusUnauthorized, errors.ErrCodeSessionExpired},
		{"forbidden is terminal", http.StatusForbidden, errors.ErrCodeSessionExpired},
		{"server error is transient", http.StatusInternalServerError, errors.ErrCodeRefreshUnavailable},
		{"bad gateway is transient", http.StatusBadGateway, errors.ErrCodeRefreshUnavailable},
		{"bad request is transient", http.StatusBadRequest, errors.ErrCodeRefreshUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newAuthServer(t, func(r chi.Router) {
				r.Post(RefreshPath, func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
				})
			})

			_, err := newTestClient(srv).Refresh(context.Background(), "r-1")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}
}

func TestClient_RefreshSuccess(t *testing.T) {
	var got map[string]string
	srv := newAuthServer(t, func(r chi.Router) {
		r.Post(RefreshPath, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeJSON(w, http.StatusOK, grantBody("refreshed"))
		})
	})

	grant, err := newTestClient(srv).Refresh(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"refreshToken": "r-1"}, got)
	assert.Equal(t, "refreshed-access", grant.AccessToken)
}

func TestClient_RefreshTimeoutIsTransient(t *testing.T) {
	srv := newAuthServer(t, func(r chi.Router) {
		r.Post(RefreshPath, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		})
	})

	_, err := newTestClient(srv, WithTimeout(20*time.Millisecond)).Refresh(context.Background(), "r-1")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRefreshUnavailable))
}

func TestClient_RefreshMalformedBodyIsTransient(t *testing.T) {
	srv := newAuthServer(t, func(r chi.Router) {
		r.Post(RefreshPath, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>gateway</html>"))
		})
	})

	_, err := newTestClient(srv).Refresh(context.Background(), "r-1")
	assert.True(t, errors.HasCode(err, errors.ErrCodeRefreshUnavailable))
}

func TestClient_Logout(t *testing.T) {
	var auth atomic.Value
	var calls atomic.Int32
	srv := newAuthServer(t, func(r chi.Router) {
		r.Post(LogoutPath, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			auth.Store(r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		})
	})
	c := newTestClient(srv)

	require.NoError(t, c.Logout(context.Background(), ""))
	assert.Equal(t, int32(0), calls.Load())

	require.NoError(t, c.Logout(context.Background(), "a-1"))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "Bearer a-1", auth.Load())
}

func TestClient_LogoutFailure(t *testing.T) {
	srv := newAuthServer(t, func(r chi.Router) {
		r.Post(LogoutPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
	})

	err := newTestClient(srv).Logout(context.Background(), "a-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_Metrics(t *testing.T) {
	srv := newAuthServer(t, func(r chi.Router) {
		r.Post(LoginPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		r.Post(RefreshPath, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, grantBody("r"))
		})
	})
	m := metrics.NewMetrics(prometheus.NewRegistry())
	c := newTestClient(srv, WithClientMetrics(m))

	_, _ = c.Login(context.Background(), "a@b.c", "pw")
	_, _ = c.Refresh(context.Background(), "r-1")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionRequests.WithLabelValues("login", metrics.OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionRequests.WithLabelValues("refresh", metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues(string(errors.ErrCodeInvalidCredentials), "session")))
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("http://localhost:3000/")

	assert.Equal(t, "http://localhost:3000", c.BaseURL())
	assert.Equal(t, DefaultTimeout, c.Timeout())

	c = NewClient("http://api", WithTimeout(0), WithHTTPClient(nil))
	assert.Equal(t, DefaultTimeout, c.Timeout())
	assert.NotNil(t, c.httpClient)
}
