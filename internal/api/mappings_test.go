package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/tirecode/internal/errors"
)

// fakeMappings is an in-memory mappings backend.
type fakeMappings struct {
	mu    sync.Mutex
	items map[string]Mapping
	next  int
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{items: map[string]Mapping{
		"m-1": {ID: "m-1", CodePublic: "100", SizeRaw: "205/55 R16", SizeNormalized: "205/55R16"},
	}, next: 2}
}

func (f *fakeMappings) routes(r chi.Router) {
	r.Route(MappingsPath, func(r chi.Router) {
		r.Get("/", f.list)
		r.Post("/", f.create)
		r.Get("/{id}", f.get)
		r.Patch("/{id}", f.update)
		r.Delete("/{id}", f.delete)
	})
}

func (f *fakeMappings) list(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Mapping, 0, len(f.items))
	for _, m := range f.items {
		out = append(out, m)
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *fakeMappings) get(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[chi.URLParam(r, "id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError("MAPPING_NOT_FOUND", "mapping not found"))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (f *fakeMappings) create(w http.ResponseWriter, r *http.Request) {
	var req CreateMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError(BackendMissingFields, "bad body"))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.items {
		if m.SizeRaw == req.SizeRaw {
			writeJSON(w, http.StatusConflict, apiError(BackendTireSizeExists, "size already exists"))
			return
		}
	}
	id := fmt.Sprintf("m-%d", f.next)
	m := Mapping{ID: id, CodePublic: fmt.Sprintf("%d", 99+f.next), SizeRaw: req.SizeRaw, SizeNormalized: req.SizeRaw}
	f.next++
	f.items[id] = m
	writeJSON(w, http.StatusCreated, m)
}

func (f *fakeMappings) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError(BackendMissingFields, "bad body"))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[chi.URLParam(r, "id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError("MAPPING_NOT_FOUND", "mapping not found"))
		return
	}
	if req.SizeRaw != nil {
		m.SizeRaw = *req.SizeRaw
		m.SizeNormalized = *req.SizeRaw
	}
	f.items[m.ID] = m
	writeJSON(w, http.StatusOK, m)
}

func (f *fakeMappings) delete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	if _, ok := f.items[id]; !ok {
		writeJSON(w, http.StatusNotFound, apiError("MAPPING_NOT_FOUND", "mapping not found"))
		return
	}
	delete(f.items, id)
	w.WriteHeader(http.StatusNoContent)
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestMappings_CRUD(t *testing.T) {
	fake := newFakeMappings()
	c := newTestClient(newAPIServer(t, fake.routes))
	ctx := context.Background()

	list, err := c.ListMappings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	created, err := c.CreateMapping(ctx, CreateMappingRequest{SizeRaw: " 225/45R17 ", LoadIndex: intPtr(94), SpeedIndex: "W"})
	require.NoError(t, err)
	assert.Equal(t, "225/45R17", created.SizeRaw)

	got, err := c.GetMapping(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, *created, *got)

	updated, err := c.UpdateMapping(ctx, created.ID, UpdateMappingRequest{SizeRaw: strPtr("225/40R18")})
	require.NoError(t, err)
	assert.Equal(t, "225/40R18", updated.SizeRaw)

	require.NoError(t, c.DeleteMapping(ctx, created.ID))

	_, err = c.GetMapping(ctx, created.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	assert.Equal(t, "MAPPING_NOT_FOUND", BackendCode(err))
}

func TestMappings_CreateConflict(t *testing.T) {
	c := newTestClient(newAPIServer(t, newFakeMappings().routes))

	_, err := c.CreateMapping(context.Background(), CreateMappingRequest{SizeRaw: "205/55 R16"})

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "a mapping for 205/55 R16 already exists")
	assert.Equal(t, BackendTireSizeExists, BackendCode(err))
}

func TestMappings_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateMappingRequest
		wantErr string
	}{
		{"missing size", CreateMappingRequest{}, "sizeRaw is required"},
		{"blank size", CreateMappingRequest{SizeRaw: "   "}, "sizeRaw is required"},
		{"load index too low", CreateMappingRequest{SizeRaw: "205/55R16", LoadIndex: intPtr(0)}, "loadIndex must be at least 1"},
		{"load index too high", CreateMappingRequest{SizeRaw: "205/55R16", LoadIndex: intPtr(1000)}, "loadIndex must be at most 999"},
		{"lowercase speed index", CreateMappingRequest{SizeRaw: "205/55R16", SpeedIndex: "v"}, "speedIndex must be a single uppercase letter"},
		{"long speed index", CreateMappingRequest{SizeRaw: "205/55R16", SpeedIndex: "VR"}, "speedIndex must be a single uppercase letter"},
	}

	c := NewClient("http://127.0.0.1:1")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateMapping(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMappings_UpdateValidation(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	ctx := context.Background()

	_, err := c.UpdateMapping(ctx, "m-1", UpdateMappingRequest{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
	assert.Contains(t, err.Error(), "nothing to update")

	_, err = c.UpdateMapping(ctx, "m-1", UpdateMappingRequest{SpeedIndex: strPtr("vv")})
	assert.Contains(t, err.Error(), "speedIndex must be a single uppercase letter")

	_, err = c.UpdateMapping(ctx, "", UpdateMappingRequest{SizeRaw: strPtr("x")})
	assert.Contains(t, err.Error(), "mapping id is required")

	assert.True(t, errors.HasCode(c.DeleteMapping(ctx, " "), errors.ErrCodeValidation))
}

func TestMappings_RequireAuth(t *testing.T) {
	srv := newAPIServer(t, func(r chi.Router) {
		r.Get(MappingsPath, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, apiError("UNAUTHORIZED", "token expired"))
		})
	})

	_, err := newTestClient(srv).ListMappings(context.Background())

	var te *errors.TirecodeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, errors.ErrCodeUnauthorized, te.Code)
	assert.Contains(t, te.Suggestions, "Run 'tirecode auth login' to sign in again")
}
