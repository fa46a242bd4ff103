package domain

import (
	"context"
	"errors"
	"fmt"
)

// LevelQuery asks for aggregated rows at one dimension level.
type LevelQuery struct {
	DateRange DateRange
	GroupBy   Dimension
	Filters   []DimensionFilter
	Limit     int
}

// LevelResult is the flat per-level response.
type LevelResult struct {
	Rows  []Row `json:"data"`
	Total int   `json:"total"`
}

// HierarchyQuery asks for the full nested tree below the date range.
type HierarchyQuery struct {
	DateRange  DateRange
	Dimensions []Dimension
}

// DailyQuery asks for the per-day time series of one drill path.
type DailyQuery struct {
	DateRange DateRange
	Filters   []DimensionFilter
	Limit     int
}

// QueryClient is the outbound contract against the query service.
type QueryClient interface {
	FetchLevel(ctx context.Context, q LevelQuery) (*LevelResult, error)
	FetchHierarchy(ctx context.Context, q HierarchyQuery) (*Hierarchy, error)
	FetchDaily(ctx context.Context, q DailyQuery) ([]DailyMetric, error)
}

// CredentialSource supplies the bearer credential for outbound requests.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// ConnectionStatus is the transport's global health as seen by the UI.
type ConnectionStatus string

const (
	StatusConnected ConnectionStatus = "connected"
	StatusRetrying  ConnectionStatus = "retrying"
	StatusFailed    ConnectionStatus = "failed"
)

// ErrNotAuthenticated marks a missing or rejected bearer credential.
// It is never retried.
var ErrNotAuthenticated = errors.New("not authenticated")

// StatusError is a non-2xx response from the query service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("query service returned HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("query service returned HTTP %d", e.StatusCode)
}

// Retryable reports whether the status code marks a transient failure.
// 408 and 429 are the only retryable 4xx codes.
func (e *StatusError) Retryable() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == 408 || e.StatusCode == 429:
		return true
	default:
		return false
	}
}
