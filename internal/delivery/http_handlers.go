package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"addash/internal/domain"
	"addash/internal/infrastructure"
	"addash/internal/usecase"
	"addash/pkg/logger"
	"addash/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handles HTTP requests
type HTTPHandlers struct {
	loader    *usecase.LoaderService
	transport *infrastructure.Transport
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// creates new HTTP handlers
func NewHTTPHandlers(
	loader *usecase.LoaderService,
	transport *infrastructure.Transport,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *HTTPHandlers {
	return &HTTPHandlers{
		loader:    loader,
		transport: transport,
		logger:    logger,
		metrics:   metrics,
	}
}

// GetData returns aggregated rows for the next dimension level below the
// given filters.
func (h *HTTPHandlers) GetData(c *gin.Context) {
	start := time.Now()
	h.metrics.IncHTTPRequestsInFlight()
	defer h.metrics.DecHTTPRequestsInFlight()

	requestID := uuid.New().String()
	ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)

	params, err := h.parseDataParams(c)
	if err != nil {
		h.metrics.RecordHTTPRequest("GET", "/dashboard/data", "400", time.Since(start))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Invalid parameters",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	rows, err := h.loader.LoadTop(ctx, params.dimensions, params.filters, params.dateRange)
	if err != nil {
		h.respondLoadError(c, ctx, "/dashboard/data", requestID, start, err)
		return
	}

	h.metrics.RecordHTTPRequest("GET", "/dashboard/data", "200", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"data":  rows,
		"total": len(rows),
		"dateRange": gin.H{
			"start_date": params.dateRange.StartString(),
			"end_date":   params.dateRange.EndString(),
		},
		"request_id": requestID,
	})
}

// GetChildren returns rows one level below a parent row. The filters
// parameter must already include the parent's accumulated path.
func (h *HTTPHandlers) GetChildren(c *gin.Context) {
	start := time.Now()
	h.metrics.IncHTTPRequestsInFlight()
	defer h.metrics.DecHTTPRequestsInFlight()

	requestID := uuid.New().String()
	ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)

	params, err := h.parseDataParams(c)
	if err != nil {
		h.metrics.RecordHTTPRequest("GET", "/dashboard/children", "400", time.Since(start))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Invalid parameters",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	rows, err := h.loader.LoadChildren(ctx, params.dimensions, params.filters, params.dateRange, c.Query("parent_id"))
	if err != nil {
		h.respondLoadError(c, ctx, "/dashboard/children", requestID, start, err)
		return
	}

	h.metrics.RecordHTTPRequest("GET", "/dashboard/children", "200", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"data":       rows,
		"total":      len(rows),
		"request_id": requestID,
	})
}

// GetDaily returns the per-day breakdown for one drill path.
func (h *HTTPHandlers) GetDaily(c *gin.Context) {
	start := time.Now()
	h.metrics.IncHTTPRequestsInFlight()
	defer h.metrics.DecHTTPRequestsInFlight()

	requestID := uuid.New().String()
	ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)

	dateRange, err := parseDateRange(c)
	if err != nil {
		h.metrics.RecordHTTPRequest("GET", "/dashboard/daily", "400", time.Since(start))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Invalid date range",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	filters, err := parseFilters(c.Query("filters"))
	if err != nil || len(filters) == 0 {
		h.metrics.RecordHTTPRequest("GET", "/dashboard/daily", "400", time.Since(start))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Invalid parameters",
			"message":    "filters are required for daily breakdown",
			"request_id": requestID,
		})
		return
	}

	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, parseErr := strconv.Atoi(limitStr); parseErr == nil && parsed > 0 {
			limit = parsed
		}
	}

	days, err := h.loader.LoadDailyBreakdown(ctx, filters, dateRange, limit)
	if err != nil {
		h.respondLoadError(c, ctx, "/dashboard/daily", requestID, start, err)
		return
	}

	h.metrics.RecordHTTPRequest("GET", "/dashboard/daily", "200", time.Since(start))
	c.JSON(http.StatusOK, days)
}

// GetDimensions lists the dimensions available for grouping.
func (h *HTTPHandlers) GetDimensions(c *gin.Context) {
	start := time.Now()

	dimensions := make([]gin.H, 0, len(domain.AllDimensions()))
	for _, d := range domain.AllDimensions() {
		dimensions = append(dimensions, gin.H{"value": string(d), "label": d.Label()})
	}

	h.metrics.RecordHTTPRequest("GET", "/dashboard/dimensions", "200", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"dimensions": dimensions})
}

// GetMetricsInfo lists the metrics the table can display.
func (h *HTTPHandlers) GetMetricsInfo(c *gin.Context) {
	start := time.Now()

	metricsInfo := []gin.H{
		{"key": "spend", "label": "Spend", "type": "money", "group": "Basic"},
		{"key": "conversions", "label": "Conversions", "type": "number", "group": "Basic"},
		{"key": "revenue", "label": "Revenue", "type": "money", "group": "Basic"},
		{"key": "impressions", "label": "Impressions", "type": "number", "group": "Basic"},
		{"key": "clicks", "label": "Clicks", "type": "number", "group": "Basic"},
		{"key": "m_imp", "label": "m_imp", "type": "number", "group": "Basic"},
		{"key": "m_clicks", "label": "m_clicks", "type": "number", "group": "Basic"},
		{"key": "m_conv", "label": "m_conv", "type": "number", "group": "Basic"},
		{"key": "ctr", "label": "CTR", "type": "percent", "group": "Calculated"},
		{"key": "cvr", "label": "CVR", "type": "percent", "group": "Calculated"},
		{"key": "roi", "label": "ROI", "type": "percent", "group": "Calculated"},
		{"key": "cpa", "label": "CPA", "type": "money", "group": "Calculated"},
	}

	h.metrics.RecordHTTPRequest("GET", "/dashboard/metrics", "200", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"metrics": metricsInfo})
}

// GetConnectionStatus reports the transport health so the UI can tell
// "still trying" apart from "given up".
func (h *HTTPHandlers) GetConnectionStatus(c *gin.Context) {
	start := time.Now()

	h.metrics.RecordHTTPRequest("GET", "/dashboard/status", "200", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"status": h.transport.Status()})
}

// InvalidateCache drops cached answers, wholesale or by key pattern.
func (h *HTTPHandlers) InvalidateCache(c *gin.Context) {
	start := time.Now()
	requestID := uuid.New().String()

	pattern := c.Query("pattern")
	if pattern == "" {
		h.loader.InvalidateAll()
	} else {
		h.loader.InvalidatePattern(pattern)
	}

	h.metrics.RecordHTTPRequest("POST", "/cache/invalidate", "200", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"message":    "Cache invalidated",
		"pattern":    pattern,
		"request_id": requestID,
	})
}

// HealthCheck returns the health status of the service
func (h *HTTPHandlers) HealthCheck(c *gin.Context) {
	start := time.Now()

	health := gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"service":    "addash",
		"version":    "1.0.0",
		"connection": h.transport.Status(),
	}

	h.metrics.RecordHTTPRequest("GET", "/health", "200", time.Since(start))
	c.JSON(http.StatusOK, health)
}

// respondLoadError maps loader failures onto HTTP codes: authentication
// failures become 401, everything else 502 with the connection status the
// UI needs for its banner.
func (h *HTTPHandlers) respondLoadError(c *gin.Context, ctx context.Context, endpoint, requestID string, start time.Time, err error) {
	h.logger.WithContext(ctx).WithError(err).Error("Drill-down load failed")

	status := http.StatusBadGateway
	if errors.Is(err, domain.ErrNotAuthenticated) {
		status = http.StatusUnauthorized
	}

	h.metrics.RecordHTTPRequest("GET", endpoint, strconv.Itoa(status), time.Since(start))
	c.JSON(status, gin.H{
		"error":      "Failed to load data",
		"message":    err.Error(),
		"connection": h.transport.Status(),
		"request_id": requestID,
	})
}

type dataParams struct {
	dateRange  domain.DateRange
	dimensions []domain.Dimension
	filters    []domain.DimensionFilter
}

// parseDataParams parses the shared query parameters of the data endpoints.
func (h *HTTPHandlers) parseDataParams(c *gin.Context) (*dataParams, error) {
	dateRange, err := parseDateRange(c)
	if err != nil {
		return nil, err
	}

	groupBy := c.Query("group_by")
	if groupBy == "" {
		return nil, errors.New("group_by parameter is required")
	}

	var dimensions []domain.Dimension
	for _, name := range strings.Split(groupBy, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		dim := domain.Dimension(name)
		if !dim.IsValid() {
			return nil, errors.New("unknown dimension: " + name)
		}
		dimensions = append(dimensions, dim)
	}
	if len(dimensions) == 0 {
		return nil, errors.New("at least one dimension required in group_by")
	}

	filters, err := parseFilters(c.Query("filters"))
	if err != nil {
		return nil, err
	}

	return &dataParams{
		dateRange:  dateRange,
		dimensions: dimensions,
		filters:    filters,
	}, nil
}

func parseDateRange(c *gin.Context) (domain.DateRange, error) {
	startDate, err := time.ParseInLocation("2006-01-02", c.Query("start_date"), time.Local)
	if err != nil {
		return domain.DateRange{}, errors.New("start_date must be in YYYY-MM-DD format")
	}

	endDate, err := time.ParseInLocation("2006-01-02", c.Query("end_date"), time.Local)
	if err != nil {
		return domain.DateRange{}, errors.New("end_date must be in YYYY-MM-DD format")
	}

	return domain.DateRange{Start: startDate, End: endDate}, nil
}

func parseFilters(raw string) ([]domain.DimensionFilter, error) {
	if raw == "" {
		return nil, nil
	}

	var filters []domain.DimensionFilter
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, errors.New("filters must be a JSON array of {dimension, value}")
	}

	return filters, nil
}
