package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/broker-verify/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	m := NewManager(repo)
	m.now = func() time.Time { return fixedNow }
	return m, repo
}

func TestDefaultScore(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		domain string
		want   float64
	}{
		{"fca.org.uk", 10},
		{"www.FCA.org.uk", 10},
		{"forexpeacearmy.com", 8},
		{"uk.reuters.com", 8},
		{"pepperstone.com", 6},
		{"example.gov", 9},
		{"mit.edu", 7},
		{"example.org", 6},
		{"bestbroker.net", 5},
		{"tradingplace.net", 5},
		{"random.net", 4},
		{"", 4},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, table.DefaultScore(tt.domain))
		})
	}
}

func TestCategorize(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, model.CategoryRegulatory, table.Categorize("fca.org.uk"))
	assert.Equal(t, model.CategoryRegulatory, table.Categorize("agency.gov"))
	assert.Equal(t, model.CategoryReview, table.Categorize("trustpilot.com"))
	assert.Equal(t, model.CategoryNews, table.Categorize("financemagnates.com"))
	assert.Equal(t, model.CategoryAnalysis, table.Categorize("babypips.com"))
	assert.Equal(t, model.CategoryBrokerOfficial, table.Categorize("somebroker.com"))
}

func TestDisplayName(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, "Forex Peace Army", table.DisplayName("www.forexpeacearmy.com"))
	assert.Equal(t, "CySEC", table.DisplayName("cysec.gov.cy"))
	assert.Equal(t, "EXAMPLE", table.DisplayName("example.com"))
}

func TestLoadTable_InvalidYAML(t *testing.T) {
	_, err := LoadTable([]byte("sources: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reliability: parse defaults")
}

func TestSeed(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Seed(ctx))
	require.NoError(t, m.Seed(ctx))

	all, err := repo.ListSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	fca, err := repo.GetSource(ctx, "fca.org.uk")
	require.NoError(t, err)
	require.NotNil(t, fca)
	assert.Equal(t, 10.0, fca.ReliabilityScore)
	assert.Equal(t, 0.95, fca.SuccessRate)
	assert.Equal(t, 0, fca.TotalChecks)
	assert.Equal(t, model.CategoryRegulatory, fca.Category)
	assert.True(t, fca.IsActive)
}

func TestGetSourceReliability(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Seed(ctx))

	assert.Equal(t, 8.0, m.GetSourceReliability(ctx, "forexpeacearmy.com"))
	assert.Equal(t, 4.0, m.GetSourceReliability(ctx, "unknown.net"))
}

type failingRepo struct{}

func (failingRepo) GetSource(context.Context, string) (*model.DataSource, error) {
	return nil, errors.New("db down")
}
func (failingRepo) UpsertSource(context.Context, model.DataSource) error { return errors.New("db down") }
func (failingRepo) ListSources(context.Context) ([]model.DataSource, error) {
	return nil, errors.New("db down")
}
func (failingRepo) RecordVerification(context.Context, model.SourceVerification) error {
	return errors.New("db down")
}

func TestGetSourceReliability_RepositoryFailure(t *testing.T) {
	m := NewManager(failingRepo{})
	assert.Equal(t, 10.0, m.GetSourceReliability(context.Background(), "fca.org.uk"))
}

func TestUpdateSourceReliability_Accurate(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	src, err := m.UpdateSourceReliability(ctx, "Example.com", true, 0.9, Outcome{BrokerID: "b1", Field: "minDeposit"})
	require.NoError(t, err)

	assert.Equal(t, "example.com", src.Domain)
	assert.Equal(t, 1, src.TotalChecks)
	assert.Equal(t, 1, src.SuccessfulChecks)
	assert.Equal(t, 1.0, src.SuccessRate)
	assert.Equal(t, 9.7, src.ReliabilityScore)
	assert.Equal(t, fixedNow, src.LastReviewed)

	audit := repo.Verifications()
	require.Len(t, audit, 1)
	assert.Equal(t, "b1", audit[0].BrokerID)
	assert.Equal(t, "minDeposit", audit[0].Field)
	assert.Equal(t, 4.0, audit[0].ScoreBefore)
	assert.Equal(t, 9.7, audit[0].ScoreAfter)
	assert.NotEmpty(t, audit[0].ID)
}

func TestUpdateSourceReliability_Inaccurate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Seed(ctx))

	src, err := m.UpdateSourceReliability(ctx, "fca.org.uk", false, 0.9, Outcome{HadDiscrepancy: true})
	require.NoError(t, err)
	assert.Equal(t, 1, src.TotalChecks)
	assert.Equal(t, 0, src.SuccessfulChecks)
	assert.Equal(t, 1.0, src.ReliabilityScore)
}

func TestUpdateSourceReliability_LowConfidenceNotCounted(t *testing.T) {
	m, _ := newTestManager(t)

	src, err := m.UpdateSourceReliability(context.Background(), "example.com", true, 0.4, Outcome{})
	require.NoError(t, err)
	assert.Equal(t, 1, src.TotalChecks)
	assert.Equal(t, 0, src.SuccessfulChecks)
	assert.Equal(t, 0.0, src.SuccessRate)
	assert.Equal(t, 4.0, src.ReliabilityScore, "accurate feedback never lowers the score")
}

func TestUpdateSourceReliability_RepeatedLowConfidenceKeepsScore(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		src, err := m.UpdateSourceReliability(ctx, "example.com", true, 0.3, Outcome{})
		require.NoError(t, err)
		assert.Equal(t, 4.0, src.ReliabilityScore)
	}
}

func TestUpdateSourceReliability_EmptyDomain(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.UpdateSourceReliability(context.Background(), "  ", true, 0.9, Outcome{})
	require.Error(t, err)
}

func TestUpdateSourceReliability_RepositoryFailure(t *testing.T) {
	m := NewManager(failingRepo{})
	_, err := m.UpdateSourceReliability(context.Background(), "example.com", true, 0.9, Outcome{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reliability: load example.com")
}

func TestUpdateSourceReliability_Concurrent(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.UpdateSourceReliability(ctx, "example.com", true, 0.9, Outcome{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	src, err := repo.GetSource(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, n, src.TotalChecks)
	assert.Equal(t, n, src.SuccessfulChecks)
	assert.Len(t, repo.Verifications(), n)
}

func TestNextScore(t *testing.T) {
	tests := []struct {
		name        string
		current     float64
		successRate float64
		total       int
		accurate    bool
		confidence  float64
		want        float64
	}{
		{"first accurate check", 4, 1, 1, true, 0.9, 9.7},
		{"accurate never lowers", 8, 0.3, 10, true, 0.9, 8},
		{"inaccurate never raises", 2, 1, 10, false, 0.9, 2},
		{"clamped high", 10, 1, 20, true, 0.9, 10},
		{"clamped low", 1, 0, 20, false, 0.9, 1},
		{"seasoned blend", 5, 0.8, 20, true, 0.6, 5.7},
		{"low confidence accurate holds", 4, 0, 1, true, 0.3, 4},
		{"low confidence accurate seasoned", 6, 0.2, 30, true, 0.5, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextScore(tt.current, tt.successRate, tt.total, tt.accurate, tt.confidence))
		})
	}
}

func TestGetRecommendedSources(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Seed(ctx))

	require.NoError(t, repo.UpsertSource(ctx, model.DataSource{
		Domain: "weak-review.com", Category: model.CategoryReview, ReliabilityScore: 5, IsActive: true,
	}))
	require.NoError(t, repo.UpsertSource(ctx, model.DataSource{
		Domain: "retired-news.com", Category: model.CategoryNews, ReliabilityScore: 9, IsActive: false,
	}))

	reg, err := m.GetRecommendedSources(ctx, PurposeRegulation)
	require.NoError(t, err)
	assert.Equal(t, []string{"fca.org.uk"}, domains(reg))

	review, err := m.GetRecommendedSources(ctx, PurposeReview)
	require.NoError(t, err)
	assert.Equal(t, []string{"forexpeacearmy.com", "fxempire.com"}, domains(review))

	pricing, err := m.GetRecommendedSources(ctx, PurposePricing)
	require.NoError(t, err)
	assert.Equal(t, []string{"forexpeacearmy.com", "fxempire.com"}, domains(pricing))

	unknown, err := m.GetRecommendedSources(ctx, Purpose("gossip"))
	require.NoError(t, err)
	assert.Equal(t, domains(review), domains(unknown))
}

func TestGetRecommendedSources_Limit(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		require.NoError(t, repo.UpsertSource(ctx, model.DataSource{
			Domain:           string(rune('a'+i)) + "-review.com",
			Category:         model.CategoryReview,
			ReliabilityScore: 7,
			IsActive:         true,
		}))
	}
	out, err := m.GetRecommendedSources(ctx, PurposeReview)
	require.NoError(t, err)
	assert.Len(t, out, recommendedLimit)
}

func TestGetSourcesByCategoryAndDeactivate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Seed(ctx))

	reviews, err := m.GetSourcesByCategory(ctx, model.CategoryReview)
	require.NoError(t, err)
	assert.Equal(t, []string{"forexpeacearmy.com"}, domains(reviews))

	require.NoError(t, m.DeactivateSource(ctx, "www.forexpeacearmy.com"))

	reviews, err = m.GetSourcesByCategory(ctx, model.CategoryReview)
	require.NoError(t, err)
	assert.Empty(t, reviews)

	all, err := m.GetAllSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	err = m.DeactivateSource(ctx, "nowhere.com")
	require.Error(t, err)
}

func TestGetAllSources_Sorted(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Seed(ctx))

	all, err := m.GetAllSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fca.org.uk", "forexpeacearmy.com", "fxempire.com"}, domains(all))
}

func TestGetReliabilityMetrics_Empty(t *testing.T) {
	m, _ := newTestManager(t)
	metrics, err := m.GetReliabilityMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.TotalSources)
	assert.Equal(t, 0.0, metrics.AverageReliability)
	assert.Empty(t, metrics.TopReliable)
	assert.Empty(t, metrics.BottomReliable)
}

func TestGetReliabilityMetrics(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		updated := fixedNow.Add(-time.Hour)
		if i%2 == 0 {
			updated = fixedNow.Add(-30 * 24 * time.Hour)
		}
		require.NoError(t, repo.UpsertSource(ctx, model.DataSource{
			Domain:           string(rune('a'+i)) + ".com",
			Category:         model.CategoryAnalysis,
			ReliabilityScore: 1 + float64(i)*0.5,
			TotalChecks:      6,
			IsActive:         true,
			UpdatedAt:        updated,
		}))
	}
	require.NoError(t, repo.UpsertSource(ctx, model.DataSource{
		Domain: "fresh.gov", Category: model.CategoryRegulatory, ReliabilityScore: 9, TotalChecks: 1, IsActive: true,
	}))

	metrics, err := m.GetReliabilityMetrics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 13, metrics.TotalSources)
	// (sum 1..6.5 step 0.5 = 45) + 9 = 54 over 13
	assert.Equal(t, 4.15, metrics.AverageReliability)
	require.Len(t, metrics.TopReliable, 10)
	assert.Equal(t, 6.5, metrics.TopReliable[0].ReliabilityScore)
	require.Len(t, metrics.BottomReliable, 10)
	assert.Equal(t, 1.0, metrics.BottomReliable[0].ReliabilityScore)
	assert.Equal(t, 12, metrics.CategoryBreakdown[model.CategoryAnalysis].Count)
	assert.Equal(t, 3.75, metrics.CategoryBreakdown[model.CategoryAnalysis].AverageScore)
	assert.Equal(t, 1, metrics.CategoryBreakdown[model.CategoryRegulatory].Count)
	assert.Equal(t, 6, metrics.RecentUpdates)
}

func domains(sources []model.DataSource) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Domain)
	}
	return out
}
