package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/tirecode/internal/api"
	"github.com/felixgeelhaar/tirecode/internal/errors"
	"github.com/felixgeelhaar/tirecode/internal/exitcode"
	"github.com/felixgeelhaar/tirecode/internal/version"
)

func TestLookup_Single(t *testing.T) {
	newCLIEnv(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"100", []string{"Code 100 → 205/55R16", "Raw size: 205/55 R16"}},
		{"205/55R16", []string{"Size 205/55R16 → code 100"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			out, _, err := runCLI(t, "lookup", tt.query)
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestLookup_NotFound(t *testing.T) {
	newCLIEnv(t)

	_, _, err := runCLI(t, "lookup", "999")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	assert.Equal(t, exitcode.NotFound, exitcode.DetermineExitCode(err))
}

func TestLookup_InvalidQuery(t *testing.T) {
	newCLIEnv(t)

	_, _, err := runCLI(t, "lookup", "not-a-tire")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}

func TestLookup_NeedsQuery(t *testing.T) {
	newCLIEnv(t)

	_, _, err := runCLI(t, "lookup")
	require.Error(t, err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(err))
}

func TestLookup_BatchFromFile(t *testing.T) {
	_, home := newCLIEnv(t)

	file := filepath.Join(home, "queries.txt")
	require.NoError(t, os.WriteFile(file, []byte("# sizes\n100\n\n999\n"), 0o644))

	out, _, err := runCLI(t, "lookup", "205/55R16", "--file", file, "-o", "json")
	require.Error(t, err)
	assert.Equal(t, "1 of 3 lookups failed", err.Error())

	var views []batchView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 3)
	assert.Equal(t, "205/55R16", views[0].Query)
	assert.Equal(t, "100", views[1].Result.Code)
	assert.Equal(t, "999", views[2].Query)
	assert.Equal(t, string(errors.ErrCodeNotFound), views[2].Code)
	assert.Equal(t, "tire code not found: 999", views[2].Error)
}

func TestLookup_MissingFile(t *testing.T) {
	newCLIEnv(t)

	_, _, err := runCLI(t, "lookup", "--file", "nope.txt")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.CodeOf(err))
}

func TestLookup_Suggest(t *testing.T) {
	newCLIEnv(t)

	out, _, err := runCLI(t, "lookup", "suggest", "205")
	require.NoError(t, err)
	assert.Contains(t, out, "205/55R16")
	assert.Contains(t, out, "12")
}

func TestMappings_RequireLogin(t *testing.T) {
	backend, _ := newCLIEnv(t)

	_, _, err := runCLI(t, "mappings", "list")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotAuthenticated, errors.CodeOf(err))
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(err))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.adminBearer, "no admin call without a session")
}

func TestMappings_List(t *testing.T) {
	backend, _ := newCLIEnv(t)
	backend.mappings = []api.Mapping{
		{ID: "m-1", CodePublic: "100", SizeRaw: "205/55 R16", SizeNormalized: "205/55R16"},
		{ID: "m-2", CodePublic: "101", SizeRaw: "195/65R15", SizeNormalized: "195/65R15"},
	}
	login(t)

	out, _, err := runCLI(t, "mappings", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "m-1")
	assert.Contains(t, out, "195/65R15")
	assert.Contains(t, out, "2 mapping(s)")

	out, _, err = runCLI(t, "mappings", "list", "-o", "yaml")
	require.NoError(t, err)
	var got []api.Mapping
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, backend.mappings, got)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.NotEmpty(t, backend.adminBearer)
	assert.Equal(t, "Bearer refresh2-access", backend.adminBearer[len(backend.adminBearer)-1])
}

func TestMappings_DeleteNeedsConfirmation(t *testing.T) {
	backend, _ := newCLIEnv(t)
	login(t)

	_, _, err := runCLI(t, "mappings", "delete", "m-1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	out, _, err := runCLI(t, "mappings", "delete", "m-1", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted mapping m-1")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []string{"m-1"}, backend.deleted)
}

func TestMappings_CreateValidatesLocally(t *testing.T) {
	newCLIEnv(t)
	login(t)

	_, _, err := runCLI(t, "mappings", "create", "--size", "205/55R16", "--speed-index", "vv")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}

func TestImport_Wait(t *testing.T) {
	backend, home := newCLIEnv(t)
	login(t)

	csv := filepath.Join(home, "mappings.csv")
	require.NoError(t, os.WriteFile(csv, []byte("size\n205/55R16\n195/65R15\n"), 0o644))

	out, stderr, err := runCLI(t, "import", csv, "--wait", "--interval", "10ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Job job-1: completed")
	assert.Contains(t, out, "Processed: 2")
	assert.Contains(t, stderr, "completed 2/2")

	_, _, uploads := backend.counts()
	assert.Equal(t, 1, uploads)
}

func TestImport_NoWait(t *testing.T) {
	_, home := newCLIEnv(t)
	login(t)

	csv := filepath.Join(home, "mappings.csv")
	require.NoError(t, os.WriteFile(csv, []byte("size\n205/55R16\n"), 0o644))

	out, _, err := runCLI(t, "import", csv)
	require.NoError(t, err)
	assert.Contains(t, out, "job job-1")
	assert.Contains(t, out, "tirecode import status job-1")
}

func TestImportError(t *testing.T) {
	assert.NoError(t, importError(&api.ImportStatus{ID: "j", State: api.ImportCompleted}))

	err := importError(&api.ImportStatus{
		ID:     "j",
		State:  api.ImportFailed,
		Result: &api.ImportResult{Errors: []string{"1", "2", "3", "4", "5", "6", "7"}},
	})
	require.Error(t, err)

	var te *errors.TirecodeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, errors.ErrCodeRequest, te.Code)
	assert.Len(t, te.Suggestions, maxShownImportErrors)
	assert.Equal(t, "1; 2; 3; 4; 5; 6; 7", te.Detail("errors"))
}

func TestAnalytics_Top(t *testing.T) {
	newCLIEnv(t)
	login(t)

	out, _, err := runCLI(t, "analytics", "top", "-o", "json")
	require.NoError(t, err)

	var got []api.TopSearch
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 9, got[0].Count)
}

func TestConfig_SetPathShow(t *testing.T) {
	_, home := newCLIEnv(t)
	path := filepath.Join(home, ".tirecode", "config.yaml")

	out, _, err := runCLI(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+" (not created yet)\n", out)

	out, _, err = runCLI(t, "config", "set", "log.level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "Set log.level in "+path)

	out, _, err = runCLI(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	out, _, err = runCLI(t, "config", "show", "-o", "json")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "debug", doc["log"].(map[string]any)["level"])
}

func TestConfig_SetUnknownKey(t *testing.T) {
	newCLIEnv(t)

	_, _, err := runCLI(t, "config", "set", "nope", "x")
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitcode.DetermineExitCode(err))
}

func TestConfig_InvalidFlagOverride(t *testing.T) {
	newCLIEnv(t)

	_, _, err := runCLI(t, "lookup", "100", "--api-url", "ftp://example.com")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))
}

func TestVersion(t *testing.T) {
	newCLIEnv(t)

	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tirecode "+version.Version+"\n", out)

	out, _, err = runCLI(t, "version", "-o", "json")
	require.NoError(t, err)
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestVersion_IgnoresBrokenConfig(t *testing.T) {
	_, home := newCLIEnv(t)
	cfg := filepath.Join(home, "broken.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("api: [\n"), 0o644))

	_, _, err := runCLI(t, "version", "--config", cfg)
	require.NoError(t, err)

	_, _, err = runCLI(t, "lookup", "100", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitcode.DetermineExitCode(err))
}

func TestUnknownOutputFormat(t *testing.T) {
	newCLIEnv(t)

	_, _, err := runCLI(t, "version", "-o", "xml")
	require.Error(t, err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(err))
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, errors.NewNotAuthenticatedError())
	out := buf.String()
	assert.Contains(t, out, "Error [AUTH-008]:")
	assert.Contains(t, out, "tirecode auth login")

	buf.Reset()
	PrintError(&buf, assert.AnError)
	assert.True(t, strings.HasSuffix(buf.String(), assert.AnError.Error()+"\n"))
}
