package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"addash/internal/domain"
	"addash/internal/infrastructure"
	"addash/pkg/logger"
	"addash/pkg/metrics"
)

// cache key prefixes, one per query family
const (
	levelKeyPrefix     = "level:"
	hierarchyKeyPrefix = "hierarchy:"
	dailyKeyPrefix     = "daily:"
)

// LoaderService resolves drill-down requests for the pivot table. A request
// for rows at a filter path is answered, in order, from the exact per-level
// cache, from a cached whole hierarchy, or by a fresh per-level fetch that
// also schedules a background hierarchy prefetch for the next drill.
type LoaderService struct {
	queryClient domain.QueryClient
	cache       *infrastructure.Cache
	scheduler   Scheduler
	logger      *logger.Logger
	metrics     *metrics.Metrics

	dataTTL      time.Duration
	dailyTTL     time.Duration
	defaultLimit int
}

// creates a new drill-down loader
func NewLoaderService(
	queryClient domain.QueryClient,
	cache *infrastructure.Cache,
	scheduler Scheduler,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	dataTTL, dailyTTL time.Duration,
	defaultLimit int,
) *LoaderService {
	return &LoaderService{
		queryClient:  queryClient,
		cache:        cache,
		scheduler:    scheduler,
		logger:       logger,
		metrics:      metrics,
		dataTTL:      dataTTL,
		dailyTTL:     dailyTTL,
		defaultLimit: defaultLimit,
	}
}

// LoadTop returns the rows for the next dimension level below the given
// filters. At the terminal drill level (every dimension already filtered)
// there is nothing left to group by and the result is empty, not an error.
func (s *LoaderService) LoadTop(ctx context.Context, dims []domain.Dimension, filters []domain.DimensionFilter, dateRange domain.DateRange) ([]domain.Row, error) {
	return s.loadLevel(ctx, "load_top", dims, filters, dateRange)
}

// LoadChildren returns the rows one dimension below a parent row. The
// filter list must already include the parent's accumulated path; the
// caller only invokes this for rows whose hasChild was true.
func (s *LoaderService) LoadChildren(ctx context.Context, dims []domain.Dimension, filters []domain.DimensionFilter, dateRange domain.DateRange, parentID string) ([]domain.Row, error) {
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"parent_id": parentID,
		"depth":     len(filters),
	}).Debug("Loading children")

	return s.loadLevel(ctx, "load_children", dims, filters, dateRange)
}

func (s *LoaderService) loadLevel(ctx context.Context, operation string, dims []domain.Dimension, filters []domain.DimensionFilter, dateRange domain.DateRange) ([]domain.Row, error) {
	groupBy, ok := domain.NextDimension(dims, filters)
	if !ok {
		s.metrics.RecordLoaderRequest(operation, "terminal")
		return []domain.Row{}, nil
	}

	key := s.levelKey(dims, filters, dateRange)

	if value, hit := s.cache.Get(key); hit {
		if rows, castOK := value.([]domain.Row); castOK {
			s.metrics.RecordCacheHit("level")
			s.metrics.RecordLoaderRequest(operation, "cache")
			return rows, nil
		}
	}
	s.metrics.RecordCacheMiss("level")

	// a cached whole hierarchy can answer any level under its date range
	if rows, found := s.rowsFromHierarchy(dims, filters, dateRange); found {
		s.cache.SetTTL(key, rows, s.dataTTL)
		s.metrics.RecordLoaderRequest(operation, "hierarchy")
		return rows, nil
	}

	result, err := s.queryClient.FetchLevel(ctx, domain.LevelQuery{
		DateRange: dateRange,
		GroupBy:   groupBy,
		Filters:   filters,
		Limit:     s.defaultLimit,
	})
	if err != nil {
		return nil, err
	}

	rows := s.prepareRows(result.Rows, dims, filters, groupBy)
	s.cache.SetTTL(key, rows, s.dataTTL)
	s.metrics.RecordLoaderRequest(operation, "fetch")

	s.schedulePrefetch(dims, dateRange)

	return rows, nil
}

// LoadDailyBreakdown returns up to limit per-day buckets for one drill
// path. Daily data is cached in its own family with the short TTL, since a
// human may be editing it concurrently.
func (s *LoaderService) LoadDailyBreakdown(ctx context.Context, filters []domain.DimensionFilter, dateRange domain.DateRange, limit int) ([]domain.DailyMetric, error) {
	key := s.dailyKey(filters, dateRange, limit)

	if value, hit := s.cache.Get(key); hit {
		if days, castOK := value.([]domain.DailyMetric); castOK {
			s.metrics.RecordCacheHit("daily")
			s.metrics.RecordLoaderRequest("load_daily", "cache")
			return days, nil
		}
	}
	s.metrics.RecordCacheMiss("daily")

	days, err := s.queryClient.FetchDaily(ctx, domain.DailyQuery{
		DateRange: dateRange,
		Filters:   filters,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	s.cache.SetTTL(key, days, s.dailyTTL)
	s.metrics.RecordLoaderRequest("load_daily", "fetch")

	return days, nil
}

// InvalidateAll drops every cached answer, used on date-range changes.
func (s *LoaderService) InvalidateAll() {
	s.cache.Clear()
}

// InvalidatePattern drops one query family, e.g. dailyKeyPrefix.
func (s *LoaderService) InvalidatePattern(pattern string) {
	s.cache.ClearPattern(pattern)
}

// rowsFromHierarchy answers the level from a cached whole hierarchy, if one
// covers this dimension set and date range. An empty traversal result means
// the hierarchy does not contain this branch and the caller must fall back
// to a fresh fetch.
func (s *LoaderService) rowsFromHierarchy(dims []domain.Dimension, filters []domain.DimensionFilter, dateRange domain.DateRange) ([]domain.Row, bool) {
	value, hit := s.cache.Get(s.hierarchyKey(dims, dateRange))
	if !hit {
		return nil, false
	}

	hierarchy, castOK := value.(*domain.Hierarchy)
	if !castOK {
		return nil, false
	}

	rows := hierarchy.RowsAtPath(filters)
	if len(rows) == 0 {
		s.metrics.RecordHierarchyWalk("branch_missing")
		return nil, false
	}

	s.metrics.RecordHierarchyWalk("hit")
	return rows, true
}

// prepareRows augments flat query-service rows with hasChild, the filter
// path, and locally recomputed ratios before they reach the renderer.
func (s *LoaderService) prepareRows(rows []domain.Row, dims []domain.Dimension, filters []domain.DimensionFilter, groupBy domain.Dimension) []domain.Row {
	level := len(filters)
	lastLevel := len(dims) - 1

	prefix := make([]string, 0, level)
	for _, f := range filters {
		prefix = append(prefix, f.Value)
	}

	prepared := make([]domain.Row, len(rows))
	for i, row := range rows {
		row.Level = level
		row.HasChild = level < lastLevel
		if row.DimensionType == "" {
			row.DimensionType = groupBy
		}
		if row.ID == "" {
			row.ID = strings.Join(append(append([]string{}, prefix...), row.Name), "|")
		}
		if len(row.FilterPath) == 0 {
			path := make([]domain.DimensionFilter, 0, level+1)
			path = append(path, filters...)
			path = append(path, domain.DimensionFilter{Dimension: groupBy, Value: row.Name})
			row.FilterPath = path
		}
		row.Recompute()
		prepared[i] = row
	}

	return prepared
}

// schedulePrefetch fires a detached hierarchy fetch so later drill-downs in
// this date range resolve from cache. It never blocks the triggering call
// and its failures are swallowed; prefetch is pure optimization.
func (s *LoaderService) schedulePrefetch(dims []domain.Dimension, dateRange domain.DateRange) {
	dimsCopy := append([]domain.Dimension{}, dims...)
	key := s.hierarchyKey(dimsCopy, dateRange)

	s.scheduler.Schedule(func() {
		if _, hit := s.cache.Get(key); hit {
			s.metrics.RecordPrefetch("already_cached")
			return
		}

		hierarchy, err := s.queryClient.FetchHierarchy(context.Background(), domain.HierarchyQuery{
			DateRange:  dateRange,
			Dimensions: dimsCopy,
		})
		if err != nil {
			s.metrics.RecordPrefetch("failed")
			s.logger.WithError(err).WithField("date_range", dateRange.String()).Debug("Hierarchy prefetch failed")
			return
		}

		s.cache.SetTTL(key, hierarchy, s.dataTTL)
		s.metrics.RecordPrefetch("stored")
	})
}

type levelKeyParams struct {
	Start      string                   `json:"start"`
	End        string                   `json:"end"`
	Dimensions []domain.Dimension       `json:"dimensions"`
	Filters    []domain.DimensionFilter `json:"filters"`
	Limit      int                      `json:"limit"`
}

type hierarchyKeyParams struct {
	Start      string             `json:"start"`
	End        string             `json:"end"`
	Dimensions []domain.Dimension `json:"dimensions"`
}

type dailyKeyParams struct {
	Start   string                   `json:"start"`
	End     string                   `json:"end"`
	Filters []domain.DimensionFilter `json:"filters"`
	Limit   int                      `json:"limit"`
}

// Cache keys are the query-kind prefix plus the JSON of every parameter in
// struct declaration order, so semantically identical requests always
// collide on the same key.
func (s *LoaderService) levelKey(dims []domain.Dimension, filters []domain.DimensionFilter, dateRange domain.DateRange) string {
	encoded, _ := json.Marshal(levelKeyParams{
		Start:      dateRange.StartString(),
		End:        dateRange.EndString(),
		Dimensions: dims,
		Filters:    filters,
		Limit:      s.defaultLimit,
	})
	return levelKeyPrefix + string(encoded)
}

func (s *LoaderService) hierarchyKey(dims []domain.Dimension, dateRange domain.DateRange) string {
	encoded, _ := json.Marshal(hierarchyKeyParams{
		Start:      dateRange.StartString(),
		End:        dateRange.EndString(),
		Dimensions: dims,
	})
	return hierarchyKeyPrefix + string(encoded)
}

func (s *LoaderService) dailyKey(filters []domain.DimensionFilter, dateRange domain.DateRange, limit int) string {
	encoded, _ := json.Marshal(dailyKeyParams{
		Start:   dateRange.StartString(),
		End:     dateRange.EndString(),
		Filters: filters,
		Limit:   limit,
	})
	return dailyKeyPrefix + string(encoded)
}

// DailyKeyPrefix exposes the daily cache-key family for targeted
// invalidation by the delivery layer.
func DailyKeyPrefix() string { return dailyKeyPrefix }
