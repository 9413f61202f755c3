package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/tirecode/internal/errors"
)

// Import job states reported by the server.
const (
	ImportCompleted = "completed"
	ImportFailed    = "failed"
)

// HashHeader carries the BLAKE3 digest of an uploaded file.
const HashHeader = "X-Content-BLAKE3"

// DefaultPollInterval is the import status polling period.
const DefaultPollInterval = 2 * time.Second

const importRoute = ImportPath + "/{jobId}"

// ImportJob is the server's answer to an upload.
type ImportJob struct {
	JobID    string `json:"jobId" yaml:"jobId"`
	Message  string `json:"message" yaml:"message"`
	RowCount int    `json:"rowCount" yaml:"rowCount"`

	// Digest is the BLAKE3 hex digest sent in HashHeader.
	Digest string `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// ImportProgress reports rows handled so far.
type ImportProgress struct {
	Current int `json:"current" yaml:"current"`
	Total   int `json:"total" yaml:"total"`
}

// ImportResult summarizes a finished job.
type ImportResult struct {
	Processed int      `json:"processed" yaml:"processed"`
	Errors    []string `json:"errors" yaml:"errors"`
}

// ImportStatus is the state of an import job.
type ImportStatus struct {
	ID       string          `json:"id" yaml:"id"`
	State    string          `json:"state" yaml:"state"`
	Progress *ImportProgress `json:"progress,omitempty" yaml:"progress,omitempty"`
	Result   *ImportResult   `json:"result,omitempty" yaml:"result,omitempty"`
}

// Done reports whether the job reached a final state.
func (s ImportStatus) Done() bool {
	return s.State == ImportCompleted || s.State == ImportFailed
}

// UploadCSV uploads a mapping CSV as multipart field "file".
func (c *Client) UploadCSV(ctx context.Context, path string) (*ImportJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "cannot read "+path, err)
	}

	h := blake3.New()
	_, _ = h.Write(data)
	digest := hex.EncodeToString(h.Sum(nil))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(csvPartHeader(filepath.Base(path)))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	cl := call{
		method:      http.MethodPost,
		route:       ImportPath,
		path:        ImportPath,
		body:        &body,
		contentType: mw.FormDataContentType(),
		header:      http.Header{HashHeader: []string{digest}},
		admin:       true,
	}

	var job ImportJob
	if err := c.do(ctx, cl, &job); err != nil {
		return nil, err
	}
	job.Digest = digest
	return &job, nil
}

func csvPartHeader(filename string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", "text/csv")
	return h
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// ImportStatus returns the state of job jobID.
func (c *Client) ImportStatus(ctx context.Context, jobID string) (*ImportStatus, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.NewValidationError("job id is required")
	}
	cl := call{method: http.MethodGet, route: importRoute, path: ImportPath + "/" + url.PathEscape(jobID), admin: true}

	var out ImportStatus
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitForImport polls jobID every interval until it completes or fails.
// onUpdate, when set, sees every status. Unavailable-class errors are
// logged and polling continues; other errors end the wait.
func (c *Client) WaitForImport(ctx context.Context, jobID string, interval time.Duration, onUpdate func(ImportStatus)) (*ImportStatus, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.ImportStatus(ctx, jobID)
		switch {
		case err == nil:
			if onUpdate != nil {
				onUpdate(*status)
			}
			if status.Done() {
				return status, nil
			}
		case errors.HasCode(err, errors.ErrCodeUnavailable):
			c.logger.Debug("import status unavailable, polling again", "job", jobID, "error", err.Error())
		default:
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
