// Package verify cross-checks a stored broker record against corroborating
// web sources and regulator registers.
package verify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/broker-verify/internal/alert"
	"github.com/sells-group/broker-verify/internal/fieldrule"
	"github.com/sells-group/broker-verify/internal/model"
	"github.com/sells-group/broker-verify/internal/reliability"
)

// Searcher finds candidate pages about a broker.
type Searcher interface {
	SearchBrokerInfo(ctx context.Context, brokerName, infoType string) *model.SearchResponse
	SearchReliableSources(ctx context.Context, query string) *model.SearchResponse
}

// PageScraper extracts broker data from search results. Failed pages are
// omitted from the returned slice.
type PageScraper interface {
	ScrapeMultiple(ctx context.Context, results []model.SearchResult, brokerName string) []model.ScrapedBrokerData
}

// RegulatoryVerifier checks claimed regulators.
type RegulatoryVerifier interface {
	VerifyBrokerRegulation(ctx context.Context, brokerName string, regulators []string, licenses map[string]string) *model.RegulatoryResult
}

// ReliabilityTracker scores source domains and learns from outcomes.
type ReliabilityTracker interface {
	GetSourceReliability(ctx context.Context, domain string) float64
	UpdateSourceReliability(ctx context.Context, domain string, isAccurate bool, confidence float64, outcome reliability.Outcome) (model.DataSource, error)
}

// DiscrepancyStore persists discrepancies found in a run.
type DiscrepancyStore interface {
	SaveDiscrepancies(ctx context.Context, brokerID string, discrepancies []model.FieldDiscrepancy) (int, error)
}

// Deps are the collaborators of a Verifier. Search, Scraper, Regulatory and
// Store may be nil; the run then degrades instead of failing.
type Deps struct {
	Search      Searcher
	Scraper     PageScraper
	Regulatory  RegulatoryVerifier
	Reliability ReliabilityTracker
	Rules       *fieldrule.Validator
	Store       DiscrepancyStore
	Notifier    alert.Notifier
}

// Verifier orchestrates verification runs.
type Verifier struct {
	deps    Deps
	weights Weights
	now     func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithWeights overrides the scoring constants.
func WithWeights(w Weights) Option {
	return func(v *Verifier) { v.weights = w }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// New returns a Verifier. Missing reliability, rules and notifier
// collaborators get in-memory defaults.
func New(deps Deps, opts ...Option) *Verifier {
	if deps.Reliability == nil {
		deps.Reliability = reliability.NewManager(reliability.NewMemoryRepository())
	}
	if deps.Rules == nil {
		deps.Rules = fieldrule.New()
	}
	if deps.Notifier == nil {
		deps.Notifier = alert.LogNotifier{}
	}
	v := &Verifier{deps: deps, weights: DefaultWeights(), now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Weights returns the scoring constants in use.
func (v *Verifier) Weights() Weights { return v.weights }

// VerifyBroker runs one verification. The error is non-nil only when the
// broker or options are malformed, before any I/O. Every other failure,
// including panics in collaborators, produces a result with status failed.
func (v *Verifier) VerifyBroker(ctx context.Context, broker model.Broker, opts Options) (res *model.VerificationResult, err error) {
	if strings.TrimSpace(broker.Name) == "" {
		return nil, eris.New("verify: broker name is required")
	}
	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}

	start := v.now()
	log := zap.L().With(zap.String("broker", broker.Name), zap.String("broker_id", broker.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("verify: panic during verification",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			res = v.failed(broker, start, fmt.Errorf("panic: %v", r))
			err = nil
		}
	}()

	log.Info("verify: starting verification")
	res, runErr := v.run(ctx, broker, opts, start)
	if runErr != nil {
		log.Error("verify: verification failed", zap.Error(runErr))
		return v.failed(broker, start, runErr), nil
	}
	log.Info("verify: verification complete",
		zap.String("status", string(res.Status)),
		zap.Float64("confidence", res.OverallConfidence),
		zap.Int("discrepancies", res.DiscrepanciesFound),
		zap.Int("sources", len(res.Sources)),
		zap.Duration("elapsed", res.ProcessingTime),
	)
	return res, nil
}

func (v *Verifier) run(ctx context.Context, broker model.Broker, opts Options, start time.Time) (*model.VerificationResult, error) {
	var (
		g   errgroup.Group
		reg *model.RegulatoryResult
	)
	if !opts.SkipRegulatory && v.deps.Regulatory != nil && len(broker.Regulation.Regulators) > 0 {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = eris.Errorf("verify: regulatory check panicked: %v", r)
				}
			}()
			reg = v.deps.Regulatory.VerifyBrokerRegulation(ctx, broker.Name, broker.Regulation.Regulators, broker.Regulation.Licenses)
			return nil
		})
	}

	sources := v.gatherSources(ctx, &broker, opts)
	discrepancies := v.compareFields(ctx, &broker, sources, opts)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "verify: canceled")
	}

	confidence := overallConfidence(sources, discrepancies, v.weights)
	res := &model.VerificationResult{
		BrokerID:           broker.ID,
		BrokerName:         broker.Name,
		Timestamp:          start.UTC(),
		OverallConfidence:  confidence,
		FieldsChecked:      len(opts.fields()),
		DiscrepanciesFound: len(discrepancies),
		Discrepancies:      discrepancies,
		Sources:            sources,
		Regulatory:         reg,
		Recommendations:    recommendations(discrepancies, len(sources), reg),
		Status:             classify(discrepancies, confidence, opts.ConfidenceThreshold, v.weights),
	}

	var warnings []string
	if opts.SaveDiscrepancies && len(discrepancies) > 0 {
		if w := v.persist(ctx, &broker, discrepancies); w != "" {
			warnings = append(warnings, w)
		}
	}
	if opts.EnableAlerts {
		if w := v.notify(ctx, res); w != "" {
			warnings = append(warnings, w)
		}
	}
	res.Warnings = warnings
	res.ProcessingTime = v.now().Sub(start)
	return res, nil
}

// gatherSources searches, scrapes and ranks up to opts.MaxSources sources.
func (v *Verifier) gatherSources(ctx context.Context, broker *model.Broker, opts Options) []model.VerificationSource {
	sources := []model.VerificationSource{}
	if v.deps.Search == nil || v.deps.Scraper == nil {
		zap.L().Warn("verify: search or scraper not configured, no web sources", zap.String("broker", broker.Name))
		return sources
	}

	general := v.deps.Search.SearchBrokerInfo(ctx, broker.Name, "review")
	trusted := v.deps.Search.SearchReliableSources(ctx, broker.Name+" broker")

	var candidates []model.SearchResult
	seen := make(map[string]bool)
	for _, resp := range []*model.SearchResponse{general, trusted} {
		if resp == nil {
			continue
		}
		for i, r := range resp.Results {
			if i >= 3 {
				break
			}
			if seen[r.Link] {
				continue
			}
			seen[r.Link] = true
			candidates = append(candidates, r)
		}
	}
	if len(candidates) > opts.MaxSources {
		candidates = candidates[:opts.MaxSources]
	}
	if len(candidates) == 0 {
		return sources
	}

	titles := make(map[string]string, len(candidates))
	for _, c := range candidates {
		titles[c.Link] = c.Title
	}

	for _, d := range v.deps.Scraper.ScrapeMultiple(ctx, candidates, broker.Name) {
		if d.Confidence <= v.weights.MinSourceConfidence {
			continue
		}
		score := v.deps.Reliability.GetSourceReliability(ctx, d.Domain)
		sources = append(sources, model.VerificationSource{
			Domain:         d.Domain,
			URL:            d.SourceURL,
			Title:          titles[d.SourceURL],
			Data:           d,
			Confidence:     d.Confidence,
			Reliability:    score / 10,
			RelevanceScore: relevance(&d, broker.Name),
			ExtractedAt:    d.ScrapedAt,
		})
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return v.weights.rank(&sources[i]) > v.weights.rank(&sources[j])
	})
	if len(sources) > opts.MaxSources {
		sources = sources[:opts.MaxSources]
	}
	zap.L().Debug("verify: sources gathered",
		zap.String("broker", broker.Name),
		zap.Int("candidates", len(candidates)),
		zap.Int("sources", len(sources)),
	)
	return sources
}

// compareFields compares every requested field in order and feeds each
// contributing source's accuracy back into the reliability tracker.
func (v *Verifier) compareFields(ctx context.Context, broker *model.Broker, sources []model.VerificationSource, opts Options) []model.FieldDiscrepancy {
	discrepancies := []model.FieldDiscrepancy{}
	for _, field := range opts.fields() {
		dbVal := brokerValue(broker, field)

		var values []sourcedValue
		for i := range sources {
			if wv := webValue(&sources[i].Data, field); wv != nil {
				values = append(values, sourcedValue{value: wv, source: &sources[i]})
			}
		}
		if len(values) == 0 {
			continue
		}

		agg := aggregate(values, v.weights)
		cmp := v.deps.Rules.CompareFieldValues(field, dbVal, agg)
		mismatch := !cmp.IsMatch || cmp.ToleranceExceeded

		if mismatch {
			var rule *fieldrule.Rule
			if r, ok := v.deps.Rules.Rule(field); ok {
				rule = &r
			}
			sev := severity(rule, cmp)
			d := model.FieldDiscrepancy{
				Field:             field,
				DBValue:           dbVal,
				AggregatedValue:   agg,
				Confidence:        cmp.Confidence,
				ToleranceExceeded: cmp.ToleranceExceeded,
				RecommendedAction: v.weights.action(cmp.Confidence, sev),
				Severity:          sev,
				Reasoning:         reasoning(cmp),
			}
			for _, sv := range values {
				d.WebValues = append(d.WebValues, sv.value)
				d.Sources = append(d.Sources, sv.source.Domain)
			}
			discrepancies = append(discrepancies, d)
		}

		if dbVal != nil {
			v.feedback(ctx, broker, field, dbVal, values, mismatch)
		}
	}
	return discrepancies
}

// feedback judges each source by its own value, not the aggregate.
func (v *Verifier) feedback(ctx context.Context, broker *model.Broker, field string, dbVal any, values []sourcedValue, mismatch bool) {
	for _, sv := range values {
		own := v.deps.Rules.CompareFieldValues(field, dbVal, sv.value)
		accurate := own.IsMatch && !own.ToleranceExceeded
		_, err := v.deps.Reliability.UpdateSourceReliability(ctx, sv.source.Domain, accurate, sv.source.Confidence, reliability.Outcome{
			BrokerID:       broker.ID,
			Field:          field,
			HadDiscrepancy: mismatch,
		})
		if err != nil {
			zap.L().Warn("verify: reliability update failed",
				zap.String("domain", sv.source.Domain),
				zap.String("field", field),
				zap.Error(err),
			)
		}
	}
}

func (v *Verifier) persist(ctx context.Context, broker *model.Broker, discrepancies []model.FieldDiscrepancy) string {
	if v.deps.Store == nil {
		zap.L().Debug("verify: no store configured, skipping discrepancy save", zap.String("broker", broker.Name))
		return ""
	}
	n, err := v.deps.Store.SaveDiscrepancies(ctx, broker.ID, discrepancies)
	if err != nil {
		zap.L().Warn("verify: failed to save discrepancies", zap.String("broker", broker.Name), zap.Error(err))
		return "save discrepancies: " + err.Error()
	}
	zap.L().Info("verify: discrepancies saved", zap.String("broker", broker.Name), zap.Int("count", n))
	return ""
}

func (v *Verifier) notify(ctx context.Context, res *model.VerificationResult) string {
	a := alert.Evaluate(res, v.weights.Alert)
	if a == nil {
		return ""
	}
	if err := v.deps.Notifier.Notify(ctx, *a); err != nil {
		zap.L().Warn("verify: failed to send alert", zap.String("broker", res.BrokerName), zap.Error(err))
		return "send alert: " + err.Error()
	}
	return ""
}

func (v *Verifier) failed(broker model.Broker, start time.Time, cause error) *model.VerificationResult {
	return &model.VerificationResult{
		BrokerID:        broker.ID,
		BrokerName:      broker.Name,
		Timestamp:       start.UTC(),
		Discrepancies:   []model.FieldDiscrepancy{},
		Sources:         []model.VerificationSource{},
		Recommendations: []string{fmt.Sprintf("Verification failed: %v", cause)},
		Status:          model.StatusFailed,
		ProcessingTime:  v.now().Sub(start),
	}
}
