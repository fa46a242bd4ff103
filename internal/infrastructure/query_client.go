package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"addash/internal/domain"
	"addash/pkg/logger"
	"addash/pkg/metrics"

	"golang.org/x/time/rate"
)

// implements domain.QueryClient against the dashboard query service
type QueryClient struct {
	client      *http.Client
	baseURL     string
	credentials domain.CredentialSource
	transport   *Transport
	logger      *logger.Logger
	metrics     *metrics.Metrics
	rateLimiter *rate.Limiter
}

// creates a new query service client
func NewQueryClient(baseURL string, credentials domain.CredentialSource, transport *Transport, timeout time.Duration, rateLimit int, logger *logger.Logger, metrics *metrics.Metrics) *QueryClient {
	return &QueryClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:     strings.TrimRight(baseURL, "/"),
		credentials: credentials,
		transport:   transport,
		logger:      logger,
		metrics:     metrics,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), 10),
	}
}

// FetchLevel fetches aggregated rows for one dimension level.
func (c *QueryClient) FetchLevel(ctx context.Context, q domain.LevelQuery) (*domain.LevelResult, error) {
	params := url.Values{}
	params.Set("start_date", q.DateRange.StartString())
	params.Set("end_date", q.DateRange.EndString())
	params.Set("group_by", string(q.GroupBy))
	if len(q.Filters) > 0 {
		encoded, err := json.Marshal(q.Filters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filters: %w", err)
		}
		params.Set("filters", string(encoded))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var result domain.LevelResult
	err := c.transport.Do(ctx, "level", func(ctx context.Context) error {
		return c.getJSON(ctx, "/api/dashboard/data", params, &result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch level data: %w", err)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"group_by":   q.GroupBy,
		"filters":    len(q.Filters),
		"date_range": q.DateRange.String(),
		"rows":       len(result.Rows),
	}).Info("Fetched level data")

	return &result, nil
}

// FetchHierarchy fetches the full nested tree for the active dimension set.
func (c *QueryClient) FetchHierarchy(ctx context.Context, q domain.HierarchyQuery) (*domain.Hierarchy, error) {
	names := make([]string, len(q.Dimensions))
	for i, d := range q.Dimensions {
		names[i] = string(d)
	}

	params := url.Values{}
	params.Set("start_date", q.DateRange.StartString())
	params.Set("end_date", q.DateRange.EndString())
	params.Set("dimensions", strings.Join(names, ","))

	var result domain.Hierarchy
	err := c.transport.Do(ctx, "hierarchy", func(ctx context.Context) error {
		return c.getJSON(ctx, "/api/dashboard/hierarchy", params, &result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hierarchy: %w", err)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"dimensions": names,
		"date_range": q.DateRange.String(),
		"top_nodes":  len(result.Nodes),
	}).Info("Fetched hierarchy")

	return &result, nil
}

// FetchDaily fetches the per-day series for one drill path.
func (c *QueryClient) FetchDaily(ctx context.Context, q domain.DailyQuery) ([]domain.DailyMetric, error) {
	encoded, err := json.Marshal(q.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}

	params := url.Values{}
	params.Set("start_date", q.DateRange.StartString())
	params.Set("end_date", q.DateRange.EndString())
	params.Set("filters", string(encoded))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var result []domain.DailyMetric
	err = c.transport.Do(ctx, "daily", func(ctx context.Context) error {
		return c.getJSON(ctx, "/api/dashboard/daily", params, &result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily breakdown: %w", err)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"filters":    len(q.Filters),
		"date_range": q.DateRange.String(),
		"days":       len(result),
	}).Info("Fetched daily breakdown")

	return result, nil
}

// getJSON performs one authenticated GET attempt and decodes the body.
func (c *QueryClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	token, err := c.credentials.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotAuthenticated, err)
	}
	if token == "" {
		return fmt.Errorf("%w: no bearer credential available", domain.ErrNotAuthenticated)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("query request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: HTTP 401", domain.ErrNotAuthenticated)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// StaticCredentials supplies a fixed bearer token from configuration.
type StaticCredentials struct {
	BearerToken string
}

func (s StaticCredentials) Token(ctx context.Context) (string, error) {
	return s.BearerToken, nil
}
