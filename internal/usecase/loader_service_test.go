package usecase

import (
	"context"
	"testing"
	"time"

	"addash/internal/domain"
	"addash/internal/infrastructure"
	"addash/pkg/logger"
	"addash/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueryClient implements domain.QueryClient with canned responses.
type fakeQueryClient struct {
	levelQueries     []domain.LevelQuery
	hierarchyQueries []domain.HierarchyQuery
	dailyQueries     []domain.DailyQuery

	levelRows []domain.Row
	hierarchy *domain.Hierarchy
	daily     []domain.DailyMetric

	levelErr     error
	hierarchyErr error
	dailyErr     error
}

func (f *fakeQueryClient) FetchLevel(_ context.Context, q domain.LevelQuery) (*domain.LevelResult, error) {
	f.levelQueries = append(f.levelQueries, q)
	if f.levelErr != nil {
		return nil, f.levelErr
	}
	rows := append([]domain.Row{}, f.levelRows...)
	return &domain.LevelResult{Rows: rows, Total: len(rows)}, nil
}

func (f *fakeQueryClient) FetchHierarchy(_ context.Context, q domain.HierarchyQuery) (*domain.Hierarchy, error) {
	f.hierarchyQueries = append(f.hierarchyQueries, q)
	if f.hierarchyErr != nil {
		return nil, f.hierarchyErr
	}
	return f.hierarchy, nil
}

func (f *fakeQueryClient) FetchDaily(_ context.Context, q domain.DailyQuery) ([]domain.DailyMetric, error) {
	f.dailyQueries = append(f.dailyQueries, q)
	if f.dailyErr != nil {
		return nil, f.dailyErr
	}
	return append([]domain.DailyMetric{}, f.daily...), nil
}

// inlineScheduler runs prefetch tasks synchronously inside Schedule.
type inlineScheduler struct{ scheduled int }

func (s *inlineScheduler) Schedule(task func()) {
	s.scheduled++
	task()
}

// droppingScheduler swallows tasks, for tests that want no prefetch.
type droppingScheduler struct{ scheduled int }

func (s *droppingScheduler) Schedule(func()) { s.scheduled++ }

var testDims = []domain.Dimension{domain.DimensionPlatform, domain.DimensionOffer, domain.DimensionCampaign}

func testDateRange() domain.DateRange {
	return domain.DateRange{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
	}
}

func testTree() *domain.Hierarchy {
	return &domain.Hierarchy{
		Dimensions: testDims,
		Nodes: map[string]*domain.HierarchyNode{
			"Facebook": {
				Dimension: domain.DimensionPlatform,
				Metrics:   domain.Metrics{Impressions: 1000, Clicks: 50, Spend: 20, Revenue: 40, Conversions: 5},
				Children: map[string]*domain.HierarchyNode{
					"Sweeps": {
						Dimension: domain.DimensionOffer,
						Metrics:   domain.Metrics{Impressions: 600, Clicks: 30, Spend: 12, Revenue: 30, Conversions: 3},
						Children: map[string]*domain.HierarchyNode{
							"Camp_A": {
								Dimension: domain.DimensionCampaign,
								Metrics:   domain.Metrics{Impressions: 300, Clicks: 20, Spend: 8, Revenue: 21, Conversions: 2},
							},
						},
					},
				},
			},
		},
	}
}

func newTestLoader(t *testing.T, client *fakeQueryClient, scheduler Scheduler) *LoaderService {
	t.Helper()
	log := logger.New("error")
	m := metrics.NewWith(prometheus.NewRegistry())
	cache := infrastructure.NewCache(10*time.Minute, log, m)
	return NewLoaderService(client, cache, scheduler, log, m, 10*time.Minute, 30*time.Second, 1000)
}

func TestLoadTop_TerminalDrillLevel(t *testing.T) {
	client := &fakeQueryClient{}
	loader := newTestLoader(t, client, &droppingScheduler{})

	filters := []domain.DimensionFilter{
		{Dimension: domain.DimensionPlatform, Value: "Facebook"},
		{Dimension: domain.DimensionOffer, Value: "Sweeps"},
		{Dimension: domain.DimensionCampaign, Value: "Camp_A"},
	}

	rows, err := loader.LoadTop(context.Background(), testDims, filters, testDateRange())

	require.NoError(t, err)
	assert.Empty(t, rows, "nothing left to group by is the leaf state, not an error")
	assert.Empty(t, client.levelQueries)
}

func TestLoadTop_FetchesCachesAndPrefetches(t *testing.T) {
	client := &fakeQueryClient{
		levelRows: []domain.Row{{Name: "Facebook", Metrics: domain.Metrics{Impressions: 1000, Clicks: 50, Spend: 20, Revenue: 40}}},
		hierarchy: testTree(),
	}
	scheduler := &inlineScheduler{}
	loader := newTestLoader(t, client, scheduler)

	rows, err := loader.LoadTop(context.Background(), testDims, nil, testDateRange())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, domain.DimensionPlatform, row.DimensionType)
	assert.Equal(t, "Facebook", row.ID)
	assert.Equal(t, 0, row.Level)
	assert.True(t, row.HasChild)
	assert.Equal(t, 0.05, row.CTR, "ratios recomputed before rows are handed back")
	assert.Equal(t, 1.0, row.ROI)
	require.Len(t, row.FilterPath, 1)

	require.Len(t, client.levelQueries, 1)
	assert.Equal(t, domain.DimensionPlatform, client.levelQueries[0].GroupBy)
	assert.Equal(t, 1000, client.levelQueries[0].Limit)

	// a hierarchy prefetch fired once the level answer was ready
	assert.Equal(t, 1, scheduler.scheduled)
	require.Len(t, client.hierarchyQueries, 1)
	assert.Equal(t, testDims, client.hierarchyQueries[0].Dimensions)

	// the second identical call is served from the per-level cache
	again, err := loader.LoadTop(context.Background(), testDims, nil, testDateRange())
	require.NoError(t, err)
	assert.Equal(t, rows, again)
	assert.Len(t, client.levelQueries, 1)
}

func TestLoadChildren_ServedFromPrefetchedHierarchy(t *testing.T) {
	client := &fakeQueryClient{
		levelRows: []domain.Row{{Name: "Facebook"}},
		hierarchy: testTree(),
	}
	loader := newTestLoader(t, client, &inlineScheduler{})

	_, err := loader.LoadTop(context.Background(), testDims, nil, testDateRange())
	require.NoError(t, err)
	require.Len(t, client.levelQueries, 1)

	filters := []domain.DimensionFilter{{Dimension: domain.DimensionPlatform, Value: "Facebook"}}
	rows, err := loader.LoadChildren(context.Background(), testDims, filters, testDateRange(), "Facebook")
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, "Sweeps", rows[0].Name)
	assert.Equal(t, "Facebook|Sweeps", rows[0].ID)
	assert.Equal(t, 1, rows[0].Level)
	assert.True(t, rows[0].HasChild)
	assert.Len(t, client.levelQueries, 1, "children came from the cached hierarchy, not the network")
}

func TestLoadChildren_MissingBranchFallsBackToFetch(t *testing.T) {
	client := &fakeQueryClient{
		levelRows: []domain.Row{{Name: "Tiny_Source"}},
		hierarchy: testTree(),
	}
	loader := newTestLoader(t, client, &inlineScheduler{})

	_, err := loader.LoadTop(context.Background(), testDims, nil, testDateRange())
	require.NoError(t, err)

	// the cached hierarchy has no such branch, e.g. it was too small to
	// appear; that is a cache-miss signal, not an error
	filters := []domain.DimensionFilter{{Dimension: domain.DimensionPlatform, Value: "Tiny_Source"}}
	rows, err := loader.LoadChildren(context.Background(), testDims, filters, testDateRange(), "Tiny_Source")
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Len(t, client.levelQueries, 2)
	assert.Equal(t, domain.DimensionOffer, client.levelQueries[1].GroupBy)
	assert.Equal(t, filters, client.levelQueries[1].Filters)
}

func TestDrillPathConsistency(t *testing.T) {
	client := &fakeQueryClient{levelRows: []domain.Row{{Name: "X"}}}
	loader := newTestLoader(t, client, &droppingScheduler{})

	ctx := context.Background()
	dateRange := testDateRange()
	var filters []domain.DimensionFilter

	rows, err := loader.LoadTop(ctx, testDims, filters, dateRange)
	require.NoError(t, err)

	for level := 1; level < len(testDims); level++ {
		require.Len(t, rows, 1)
		filters = append(filters, domain.DimensionFilter{Dimension: testDims[level-1], Value: rows[0].Name})
		require.Len(t, filters, level, "filter count equals completed drill levels")

		rows, err = loader.LoadChildren(ctx, testDims, filters, dateRange, rows[0].ID)
		require.NoError(t, err)
	}

	// each fetch grouped by exactly the dimension at position len(filters)
	require.Len(t, client.levelQueries, len(testDims))
	for i, q := range client.levelQueries {
		assert.Equal(t, testDims[i], q.GroupBy)
		assert.Len(t, q.Filters, i)
	}

	// last level rows cannot drill further
	require.Len(t, rows, 1)
	assert.False(t, rows[0].HasChild)
}

func TestLoadDailyBreakdown_CachedSeparately(t *testing.T) {
	client := &fakeQueryClient{
		daily: []domain.DailyMetric{
			{Date: "2026-08-25", Spend: 5, Revenue: 9},
			{Date: "2026-08-24", Spend: 4, Revenue: 7},
		},
	}
	loader := newTestLoader(t, client, &droppingScheduler{})

	filters := []domain.DimensionFilter{{Dimension: domain.DimensionPlatform, Value: "Facebook"}}

	days, err := loader.LoadDailyBreakdown(context.Background(), filters, testDateRange(), 100)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-08-25", days[0].Date)
	require.Len(t, client.dailyQueries, 1)
	assert.Equal(t, 100, client.dailyQueries[0].Limit)

	// second call hits the daily cache family
	_, err = loader.LoadDailyBreakdown(context.Background(), filters, testDateRange(), 100)
	require.NoError(t, err)
	assert.Len(t, client.dailyQueries, 1)

	// invalidating only the daily family forces a refetch
	loader.InvalidatePattern(DailyKeyPrefix())
	_, err = loader.LoadDailyBreakdown(context.Background(), filters, testDateRange(), 100)
	require.NoError(t, err)
	assert.Len(t, client.dailyQueries, 2)
}

func TestLoadTop_ErrorsPropagate(t *testing.T) {
	client := &fakeQueryClient{levelErr: &domain.StatusError{StatusCode: 503}}
	loader := newTestLoader(t, client, &droppingScheduler{})

	_, err := loader.LoadTop(context.Background(), testDims, nil, testDateRange())
	require.Error(t, err)

	var statusErr *domain.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 503, statusErr.StatusCode)
}

func TestPrefetch_FailuresAreSwallowed(t *testing.T) {
	client := &fakeQueryClient{
		levelRows:    []domain.Row{{Name: "Facebook"}},
		hierarchyErr: &domain.StatusError{StatusCode: 503},
	}
	loader := newTestLoader(t, client, &inlineScheduler{})

	rows, err := loader.LoadTop(context.Background(), testDims, nil, testDateRange())
	require.NoError(t, err, "prefetch failure never surfaces to the caller")
	assert.Len(t, rows, 1)
	assert.Len(t, client.hierarchyQueries, 1)
}

func TestPrefetch_SkippedWhenHierarchyCached(t *testing.T) {
	client := &fakeQueryClient{
		levelRows: []domain.Row{{Name: "Facebook"}},
		hierarchy: testTree(),
	}
	scheduler := &inlineScheduler{}
	loader := newTestLoader(t, client, scheduler)

	_, err := loader.LoadTop(context.Background(), testDims, nil, testDateRange())
	require.NoError(t, err)
	require.Len(t, client.hierarchyQueries, 1)

	// force another flat fetch with a different filter path; the scheduled
	// prefetch finds the hierarchy already cached and does nothing
	filters := []domain.DimensionFilter{{Dimension: domain.DimensionPlatform, Value: "Nowhere"}}
	_, err = loader.LoadChildren(context.Background(), testDims, filters, testDateRange(), "Nowhere")
	require.NoError(t, err)

	assert.Equal(t, 2, scheduler.scheduled)
	assert.Len(t, client.hierarchyQueries, 1, "no duplicate hierarchy fetch")
}

func TestInvalidateAll(t *testing.T) {
	client := &fakeQueryClient{levelRows: []domain.Row{{Name: "Facebook"}}}
	loader := newTestLoader(t, client, &droppingScheduler{})

	_, err := loader.LoadTop(context.Background(), testDims, nil, testDateRange())
	require.NoError(t, err)
	require.Len(t, client.levelQueries, 1)

	// date-range changes flush everything
	loader.InvalidateAll()

	_, err = loader.LoadTop(context.Background(), testDims, nil, testDateRange())
	require.NoError(t, err)
	assert.Len(t, client.levelQueries, 2)
}
