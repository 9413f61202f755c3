package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/tirecode/internal/api"
	"github.com/felixgeelhaar/tirecode/internal/session"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "secret"
)

// fakeBackend serves the auth, lookup and admin endpoints.
type fakeBackend struct {
	mu          sync.Mutex
	logins      int
	refreshes   int
	logouts     []string
	adminBearer []string
	mappings    []api.Mapping
	deleted     []string
	uploads     int
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(code, message string) map[string]any {
	return map[string]any{"error": map[string]string{"code": code, "message": message}}
}

func grant(prefix string) map[string]any {
	return map[string]any{
		"accessToken":  prefix + "-access",
		"refreshToken": prefix + "-refresh",
		"expiresIn":    3600,
		"user":         map[string]string{"id": "u-1", "email": testEmail},
	}
}

func (f *fakeBackend) routes(r chi.Router) {
	r.Post(session.LoginPath, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != testEmail || body["password"] != testPassword {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		f.mu.Lock()
		f.logins++
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, grant("login"))
	})

	r.Post(session.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.refreshes++
		n := f.refreshes
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, grant(fmt.Sprintf("refresh%d", n)))
	})

	r.Post(session.LogoutPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts = append(f.logouts, r.Header.Get("Authorization"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get(api.LookupPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("code") == "100":
			writeJSON(w, http.StatusOK, map[string]any{"code": "100", "sizeNormalized": "205/55R16", "sizeRaw": "205/55 R16"})
		case q.Get("size") == "205/55R16":
			writeJSON(w, http.StatusOK, map[string]any{"code": "100", "sizeNormalized": "205/55R16", "sizeRaw": "205/55R16"})
		default:
			writeJSON(w, http.StatusNotFound, apiError(api.BackendTireCodeNotFound, "not found"))
		}
	})

	r.Get(api.SuggestionsPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"sizeNormalized": "205/55R16", "searchCount": 12}})
	})

	r.Group(func(r chi.Router) {
		r.Use(f.requireBearer)

		r.Get(api.MappingsPath, func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			writeJSON(w, http.StatusOK, f.mappings)
		})
		r.Delete(api.MappingsPath+"/{id}", func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.deleted = append(f.deleted, chi.URLParam(r, "id"))
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post(api.ImportPath, func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.uploads++
			f.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]any{"jobId": "job-1", "message": "queued", "rowCount": 2})
		})
		r.Get(api.ImportPath+"/{jobId}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"id":       chi.URLParam(r, "jobId"),
				"state":    api.ImportCompleted,
				"progress": map[string]int{"current": 2, "total": 2},
				"result":   map[string]any{"processed": 2, "errors": []string{}},
			})
		})

		r.Get(api.TopSearchesPath, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []map[string]any{
				{"query": "205/55R16", "queryType": "size", "resultFound": true, "count": 9},
			})
		})
	})
}

// counts returns logins, refreshes and uploads.
func (f *fakeBackend) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.refreshes, f.uploads
}

func (f *fakeBackend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, apiError("UNAUTHORIZED", "missing token"))
			return
		}
		f.mu.Lock()
		f.adminBearer = append(f.adminBearer, auth)
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// newCLIEnv starts a fake backend and isolates HOME, the working directory
// and the environment for one test.
func newCLIEnv(t *testing.T) (*fakeBackend, string) {
	t.Helper()

	f := &fakeBackend{}
	r := chi.NewRouter()
	f.routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(home)
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "TIRECODE_") || name == "NEXT_PUBLIC_API_URL" {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
	t.Setenv("TIRECODE_API_URL", srv.URL)
	t.Setenv("CI", "true")

	return f, home
}

// runCLI executes one command line and returns its stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root, a := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	a.finish(err)
	return stdout.String(), stderr.String(), err
}

func login(t *testing.T) {
	t.Helper()
	if _, _, err := runCLI(t, "auth", "login", "--email", testEmail, "--password", testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func credentialsPath(home string) string {
	return filepath.Join(home, ".tirecode", "credentials.json")
}
