// Package reliability tracks how trustworthy each source domain has proven to
// be across verification runs.
package reliability

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/broker-verify/internal/model"
)

const (
	minScore               = 1.0
	maxScore               = 10.0
	recommendedMinScore    = 6.0
	recommendedLimit       = 10
	metricsMinChecks       = 5
	metricsListSize        = 10
	recentUpdatesWindow    = 7 * 24 * time.Hour
	recentWeightDivisor    = 20.0
	recentWeightCap        = 0.8
	accurateConfidence     = 0.5
	highAccurateConfidence = 0.7
)

// Purpose selects which source categories suit a lookup.
type Purpose string

const (
	PurposeRegulation Purpose = "regulation"
	PurposePricing    Purpose = "pricing"
	PurposeReview     Purpose = "review"
)

var purposeCategories = map[Purpose][]model.SourceCategory{
	PurposeRegulation: {model.CategoryRegulatory, model.CategoryNews},
	PurposePricing:    {model.CategoryBrokerOfficial, model.CategoryAnalysis, model.CategoryReview},
	PurposeReview:     {model.CategoryReview, model.CategoryAnalysis, model.CategoryNews},
}

// Outcome describes the verification that produced a reliability update.
type Outcome struct {
	BrokerID       string
	Field          string
	HadDiscrepancy bool
}

// CategoryStats summarizes the sources of one category.
type CategoryStats struct {
	Count        int     `json:"count"`
	AverageScore float64 `json:"average_score"`
}

// Metrics is a snapshot of the reliability table.
type Metrics struct {
	TotalSources       int                                    `json:"total_sources"`
	AverageReliability float64                                `json:"average_reliability"`
	TopReliable        []model.DataSource                     `json:"top_reliable"`
	BottomReliable     []model.DataSource                     `json:"bottom_reliable"`
	CategoryBreakdown  map[model.SourceCategory]CategoryStats `json:"category_breakdown"`
	RecentUpdates      int                                    `json:"recent_updates"`
}

// Manager reads and updates source reliability scores.
type Manager struct {
	repo  Repository
	table *Table
	locks keyedMutex
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTable replaces the embedded defaults table.
func WithTable(t *Table) Option {
	return func(m *Manager) { m.table = t }
}

// NewManager creates a Manager backed by repo.
func NewManager(repo Repository, opts ...Option) *Manager {
	m := &Manager{
		repo:  repo,
		table: DefaultTable(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Seed inserts the first-run sources that are not yet known.
func (m *Manager) Seed(ctx context.Context) error {
	now := m.now().UTC()
	for _, s := range m.table.Seeds {
		domain := NormalizeDomain(s.Domain)
		existing, err := m.repo.GetSource(ctx, domain)
		if err != nil {
			return eris.Wrapf(err, "reliability: seed %s", domain)
		}
		if existing != nil {
			continue
		}
		src := m.newSource(domain, now)
		src.SuccessRate = s.SuccessRate
		if err := m.repo.UpsertSource(ctx, src); err != nil {
			return eris.Wrapf(err, "reliability: seed %s", domain)
		}
	}
	return nil
}

func (m *Manager) newSource(domain string, now time.Time) model.DataSource {
	return model.DataSource{
		Domain:           domain,
		Name:             m.table.DisplayName(domain),
		Category:         m.table.Categorize(domain),
		ReliabilityScore: m.table.DefaultScore(domain),
		LastReviewed:     now,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// GetSourceReliability returns the 1-10 score for domain. Unknown domains and
// repository failures fall back to the default table.
func (m *Manager) GetSourceReliability(ctx context.Context, domain string) float64 {
	domain = NormalizeDomain(domain)
	src, err := m.repo.GetSource(ctx, domain)
	if err != nil {
		zap.L().Warn("reliability: lookup failed, using default score",
			zap.String("domain", domain), zap.Error(err))
		return m.table.DefaultScore(domain)
	}
	if src == nil {
		return m.table.DefaultScore(domain)
	}
	return src.ReliabilityScore
}

// UpdateSourceReliability folds one verification outcome into the domain's
// score. Updates for the same domain are serialized.
func (m *Manager) UpdateSourceReliability(ctx context.Context, domain string, isAccurate bool, confidence float64, outcome Outcome) (model.DataSource, error) {
	domain = NormalizeDomain(domain)
	if domain == "" {
		return model.DataSource{}, eris.New("reliability: empty domain")
	}

	unlock := m.locks.lock(domain)
	defer unlock()

	now := m.now().UTC()
	existing, err := m.repo.GetSource(ctx, domain)
	if err != nil {
		return model.DataSource{}, eris.Wrapf(err, "reliability: load %s", domain)
	}
	var src model.DataSource
	if existing != nil {
		src = *existing
	} else {
		src = m.newSource(domain, now)
	}

	before := src.ReliabilityScore
	src.TotalChecks++
	if isAccurate && confidence > accurateConfidence {
		src.SuccessfulChecks++
	}
	src.SuccessRate = float64(src.SuccessfulChecks) / float64(src.TotalChecks)
	src.ReliabilityScore = nextScore(before, src.SuccessRate, src.TotalChecks, isAccurate, confidence)
	src.LastReviewed = now
	src.UpdatedAt = now

	if err := m.repo.UpsertSource(ctx, src); err != nil {
		return model.DataSource{}, eris.Wrapf(err, "reliability: save %s", domain)
	}

	audit := model.SourceVerification{
		ID:             uuid.NewString(),
		Domain:         domain,
		BrokerID:       outcome.BrokerID,
		Field:          outcome.Field,
		IsAccurate:     isAccurate,
		Confidence:     confidence,
		HadDiscrepancy: outcome.HadDiscrepancy,
		ScoreBefore:    before,
		ScoreAfter:     src.ReliabilityScore,
		CreatedAt:      now,
	}
	if err := m.repo.RecordVerification(ctx, audit); err != nil {
		zap.L().Warn("reliability: audit row not recorded",
			zap.String("domain", domain), zap.Error(err))
	}

	zap.L().Debug("reliability: score updated",
		zap.String("domain", domain),
		zap.Float64("before", before),
		zap.Float64("after", src.ReliabilityScore),
		zap.Bool("accurate", isAccurate),
	)
	return src, nil
}

// nextScore blends the long-run success rate with the current score nudged by
// this outcome. The result never moves against the direction of the feedback.
func nextScore(current, successRate float64, totalChecks int, isAccurate bool, confidence float64) float64 {
	recentWeight := math.Min(float64(totalChecks)/recentWeightDivisor, recentWeightCap)

	var impact float64
	switch {
	case isAccurate && confidence > highAccurateConfidence:
		impact = 0.2
	case isAccurate && confidence > accurateConfidence:
		impact = 0.1
	case !isAccurate:
		impact = -0.3
	}

	next := (1-recentWeight)*successRate*maxScore + recentWeight*(current+impact)
	if isAccurate {
		next = math.Max(next, current)
	} else {
		next = math.Min(next, current)
	}
	next = math.Max(minScore, math.Min(maxScore, next))
	return math.Round(next*10) / 10
}

// GetRecommendedSources returns active sources suited to purpose, best first.
// Unknown purposes are treated as review lookups.
func (m *Manager) GetRecommendedSources(ctx context.Context, purpose Purpose) ([]model.DataSource, error) {
	cats, ok := purposeCategories[purpose]
	if !ok {
		cats = purposeCategories[PurposeReview]
	}
	all, err := m.GetAllSources(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.DataSource
	for _, src := range all {
		if !src.IsActive || src.ReliabilityScore < recommendedMinScore {
			continue
		}
		if !slices.Contains(cats, src.Category) {
			continue
		}
		out = append(out, src)
		if len(out) == recommendedLimit {
			break
		}
	}
	return out, nil
}

// GetAllSources lists every known source sorted by score, highest first.
func (m *Manager) GetAllSources(ctx context.Context) ([]model.DataSource, error) {
	all, err := m.repo.ListSources(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reliability: list sources")
	}
	sortByScore(all)
	return all, nil
}

// GetSourcesByCategory lists the active sources of one category, best first.
func (m *Manager) GetSourcesByCategory(ctx context.Context, category model.SourceCategory) ([]model.DataSource, error) {
	all, err := m.GetAllSources(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.DataSource
	for _, src := range all {
		if src.IsActive && src.Category == category {
			out = append(out, src)
		}
	}
	return out, nil
}

// DeactivateSource marks a known domain inactive. Sources are never deleted.
func (m *Manager) DeactivateSource(ctx context.Context, domain string) error {
	domain = NormalizeDomain(domain)
	unlock := m.locks.lock(domain)
	defer unlock()

	src, err := m.repo.GetSource(ctx, domain)
	if err != nil {
		return eris.Wrapf(err, "reliability: load %s", domain)
	}
	if src == nil {
		return eris.Errorf("reliability: unknown source %s", domain)
	}
	src.IsActive = false
	src.UpdatedAt = m.now().UTC()
	if err := m.repo.UpsertSource(ctx, *src); err != nil {
		return eris.Wrapf(err, "reliability: save %s", domain)
	}
	return nil
}

// GetReliabilityMetrics summarizes the reliability table.
func (m *Manager) GetReliabilityMetrics(ctx context.Context) (*Metrics, error) {
	all, err := m.GetAllSources(ctx)
	if err != nil {
		return nil, err
	}

	metrics := &Metrics{
		TotalSources:      len(all),
		TopReliable:       []model.DataSource{},
		BottomReliable:    []model.DataSource{},
		CategoryBreakdown: make(map[model.SourceCategory]CategoryStats),
	}

	var sum float64
	sums := make(map[model.SourceCategory]float64)
	cutoff := m.now().Add(-recentUpdatesWindow)
	var seasoned []model.DataSource
	for _, src := range all {
		sum += src.ReliabilityScore
		stats := metrics.CategoryBreakdown[src.Category]
		stats.Count++
		metrics.CategoryBreakdown[src.Category] = stats
		sums[src.Category] += src.ReliabilityScore
		if src.UpdatedAt.After(cutoff) {
			metrics.RecentUpdates++
		}
		if src.TotalChecks > metricsMinChecks {
			seasoned = append(seasoned, src)
		}
	}
	if len(all) > 0 {
		metrics.AverageReliability = round2(sum / float64(len(all)))
	}
	for cat, stats := range metrics.CategoryBreakdown {
		stats.AverageScore = round2(sums[cat] / float64(stats.Count))
		metrics.CategoryBreakdown[cat] = stats
	}

	metrics.TopReliable = append(metrics.TopReliable, seasoned[:min(metricsListSize, len(seasoned))]...)
	bottom := seasoned[max(0, len(seasoned)-metricsListSize):]
	for i := len(bottom) - 1; i >= 0; i-- {
		metrics.BottomReliable = append(metrics.BottomReliable, bottom[i])
	}
	return metrics, nil
}

func sortByScore(sources []model.DataSource) {
	slices.SortStableFunc(sources, func(a, b model.DataSource) int {
		switch {
		case a.ReliabilityScore > b.ReliabilityScore:
			return -1
		case a.ReliabilityScore < b.ReliabilityScore:
			return 1
		}
		if a.Domain < b.Domain {
			return -1
		}
		if a.Domain > b.Domain {
			return 1
		}
		return 0
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
