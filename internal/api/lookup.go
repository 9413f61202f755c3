package api

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/time/rate"

	"github.com/felixgeelhaar/tirecode/internal/errors"
)

// QueryType is the kind of a lookup query.
type QueryType int

const (
	QueryInvalid QueryType = iota
	QueryCode
	QuerySize
)

func (t QueryType) String() string {
	switch t {
	case QueryCode:
		return "code"
	case QuerySize:
		return "size"
	default:
		return "invalid"
	}
}

var (
	tireSizePattern    = regexp.MustCompile(`^\d{3}/\d{2}[rR]\d{2}`)
	tireCodePattern    = regexp.MustCompile(`^\d+$`)
	tireVariantPattern = regexp.MustCompile(`\s+(\d{2,3})([A-Z])$`)
)

// Query is a parsed lookup query. "205/55R16 91V" has Term "205/55R16",
// LoadIndex "91" and SpeedIndex "V".
type Query struct {
	Raw        string
	Term       string
	Type       QueryType
	LoadIndex  string
	SpeedIndex string
}

// HasVariant reports whether the query names a load and speed index.
func (q Query) HasVariant() bool {
	return q.LoadIndex != "" && q.SpeedIndex != ""
}

// ClassifyQuery reports whether q is a tire code or a tire size.
func ClassifyQuery(q string) QueryType {
	trimmed := strings.TrimSpace(q)
	switch {
	case trimmed == "":
		return QueryInvalid
	case tireCodePattern.MatchString(trimmed):
		return QueryCode
	case tireSizePattern.MatchString(trimmed):
		return QuerySize
	default:
		return QueryInvalid
	}
}

// ParseQuery splits an optional variant suffix off q and classifies the rest.
func ParseQuery(q string) Query {
	trimmed := strings.TrimSpace(q)
	out := Query{Raw: q, Term: trimmed}

	if m := tireVariantPattern.FindStringSubmatch(trimmed); m != nil {
		out.Term = strings.TrimSpace(strings.Replace(trimmed, m[0], "", 1))
		out.LoadIndex = m[1]
		out.SpeedIndex = m[2]
	}
	out.Type = ClassifyQuery(out.Term)
	return out
}

// Values returns the query string for the lookup endpoint.
func (q Query) Values() url.Values {
	v := url.Values{}
	switch q.Type {
	case QueryCode:
		v.Set("code", q.Term)
	case QuerySize:
		v.Set("size", q.Term)
	}
	if q.HasVariant() {
		v.Set("li", q.LoadIndex)
		v.Set("si", q.SpeedIndex)
	}
	return v
}

// Variant is one load/speed index combination of a size.
type Variant struct {
	LoadIndex  *int    `json:"loadIndex" yaml:"loadIndex"`
	SpeedIndex *string `json:"speedIndex" yaml:"speedIndex"`
}

// MatchedVariant is the variant selected by a query suffix.
type MatchedVariant struct {
	LoadIndex  int    `json:"loadIndex" yaml:"loadIndex"`
	SpeedIndex string `json:"speedIndex" yaml:"speedIndex"`
}

// LookupResult is the answer to a lookup.
type LookupResult struct {
	Code           string          `json:"code" yaml:"code"`
	SizeNormalized string          `json:"sizeNormalized" yaml:"sizeNormalized"`
	SizeRaw        string          `json:"sizeRaw" yaml:"sizeRaw"`
	Variant        *MatchedVariant `json:"variant,omitempty" yaml:"variant,omitempty"`
	Variants       []Variant       `json:"variants,omitempty" yaml:"variants,omitempty"`
	Warning        string          `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// Suggestion is a frequently searched size.
type Suggestion struct {
	SizeNormalized string `json:"sizeNormalized" yaml:"sizeNormalized"`
	SearchCount    int    `json:"searchCount" yaml:"searchCount"`
}

// Lookup resolves a tire code to its size or a size to its code.
func (c *Client) Lookup(ctx context.Context, q string) (*LookupResult, error) {
	query := ParseQuery(q)
	if query.Type == QueryInvalid {
		return nil, errors.NewValidationError("invalid search input: enter a tire code (e.g. 100) or a tire size (e.g. 205/55R16)").
			WithDetail("query", q)
	}

	cl := call{method: http.MethodGet, route: LookupPath, path: LookupPath, query: query.Values()}

	var result LookupResult
	if err := c.do(ctx, cl, &result); err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, notFoundFor(query, err)
		}
		return nil, err
	}
	return &result, nil
}

// notFoundFor rewrites a 404 into a code- or size-specific message.
func notFoundFor(q Query, cause error) error {
	msg, backend := "tire size not found: "+q.Term, BackendTireSizeNotFound
	if q.Type == QueryCode {
		msg, backend = "tire code not found: "+q.Term, BackendTireCodeNotFound
	}
	if code := BackendCode(cause); code != "" {
		backend = code
	}
	if backend == BackendVariantNotFound {
		msg = "no variant " + q.LoadIndex + q.SpeedIndex + " for " + q.Term
	}

	return errors.Wrap(errors.ErrCodeNotFound, msg, cause).
		WithDetail("backend_code", backend).
		WithSuggestion("Try 'tirecode lookup suggest' for known sizes")
}

// Suggestions returns popular sizes matching prefix.
func (c *Client) Suggestions(ctx context.Context, prefix string) ([]Suggestion, error) {
	cl := call{
		method: http.MethodGet,
		route:  SuggestionsPath,
		path:   SuggestionsPath,
		query:  url.Values{"q": []string{strings.TrimSpace(prefix)}},
	}

	var out []Suggestion
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BatchResult is the outcome of one query in a batch.
type BatchResult struct {
	Query  string        `json:"query" yaml:"query"`
	Result *LookupResult `json:"result,omitempty" yaml:"result,omitempty"`
	Err    error         `json:"-" yaml:"-"`
}

// LookupBatch looks up queries in order, at most rps per second. A
// non-positive rps means no limit. Results keep the input order; once ctx is
// done the remaining queries carry its error.
func (c *Client) LookupBatch(ctx context.Context, queries []string, rps float64) []BatchResult {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	limiter := rate.NewLimiter(limit, 1)

	results := make([]BatchResult, len(queries))
	for i, q := range queries {
		results[i].Query = q
		if err := limiter.Wait(ctx); err != nil {
			for j := i; j < len(queries); j++ {
				results[j] = BatchResult{Query: queries[j], Err: err}
			}
			break
		}
		results[i].Result, results[i].Err = c.Lookup(ctx, q)
	}
	return results
}

// Ping checks that the backend answers on the public API. Client errors
// count as an answer.
func (c *Client) Ping(ctx context.Context) error {
	cl := call{
		method: http.MethodGet,
		route:  SuggestionsPath,
		path:   SuggestionsPath,
		query:  url.Values{"q": []string{"1"}},
	}

	err := c.do(ctx, cl, nil)
	switch errors.CodeOf(err) {
	case "", errors.ErrCodeServer, errors.ErrCodeUnavailable:
		return err
	default:
		return nil
	}
}
