package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Analytics defaults.
const (
	DefaultAnalyticsDays = 7
	DefaultTopLimit      = 10
)

// TypeCount counts searches of one query type.
type TypeCount struct {
	Type  string `json:"type" yaml:"type"`
	Count int    `json:"count" yaml:"count"`
}

// RecentSearch is one logged search.
type RecentSearch struct {
	Query       string `json:"query" yaml:"query"`
	QueryType   string `json:"queryType" yaml:"queryType"`
	ResultFound bool   `json:"resultFound" yaml:"resultFound"`
	CreatedAt   string `json:"createdAt" yaml:"createdAt"`
}

// Overview is the analytics summary for a period.
type Overview struct {
	TotalSearches      int            `json:"totalSearches" yaml:"totalSearches"`
	SuccessfulSearches int            `json:"successfulSearches" yaml:"successfulSearches"`
	FailedSearches     int            `json:"failedSearches" yaml:"failedSearches"`
	SuccessRate        string         `json:"successRate" yaml:"successRate"`
	SearchesByType     []TypeCount    `json:"searchesByType" yaml:"searchesByType"`
	RecentSearches     []RecentSearch `json:"recentSearches" yaml:"recentSearches"`
}

// TopSearch is a frequently searched query.
type TopSearch struct {
	Query       string `json:"query" yaml:"query"`
	QueryType   string `json:"queryType" yaml:"queryType"`
	ResultFound bool   `json:"resultFound" yaml:"resultFound"`
	Count       int    `json:"count" yaml:"count"`
}

// Overview returns the search summary for the last days days.
func (c *Client) Overview(ctx context.Context, days int) (*Overview, error) {
	if days <= 0 {
		days = DefaultAnalyticsDays
	}
	cl := call{
		method: http.MethodGet,
		route:  AnalyticsOverviewPath,
		path:   AnalyticsOverviewPath,
		query:  url.Values{"days": []string{strconv.Itoa(days)}},
		admin:  true,
	}

	var out Overview
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TopSearches returns the limit most frequent queries of the last days days.
func (c *Client) TopSearches(ctx context.Context, days, limit int) ([]TopSearch, error) {
	if days <= 0 {
		days = DefaultAnalyticsDays
	}
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	cl := call{
		method: http.MethodGet,
		route:  TopSearchesPath,
		path:   TopSearchesPath,
		query: url.Values{
			"days":  []string{strconv.Itoa(days)},
			"limit": []string{strconv.Itoa(limit)},
		},
		admin: true,
	}

	var out []TopSearch
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return out, nil
}
