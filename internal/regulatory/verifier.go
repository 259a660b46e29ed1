// Package regulatory checks claimed broker licences against regulator
// registers and derives an overall regulatory status.
package regulatory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/broker-verify/internal/cache"
	"github.com/sells-group/broker-verify/internal/model"
)

const (
	defaultCheckInterval = time.Second
	defaultCacheTTL      = 24 * time.Hour
	defaultCacheEntries  = 200
	lowConfidence        = 0.5
	highConfidence       = 0.7
)

// Stats reports verifier activity.
type Stats struct {
	RequestCount         int64    `json:"request_count"`
	CacheSize            int      `json:"cache_size"`
	SupportedAuthorities []string `json:"supported_authorities"`
}

// Verifier runs authority checks for a broker's claimed regulators.
type Verifier struct {
	checkers map[string]Checker
	cache    cache.Cache
	cacheTTL time.Duration
	limiter  *rate.Limiter
	requests atomic.Int64
	now      func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithCheckers replaces the default checkers.
func WithCheckers(checkers ...Checker) Option {
	return func(v *Verifier) {
		v.checkers = make(map[string]Checker, len(checkers))
		for _, c := range checkers {
			v.checkers[strings.ToUpper(c.Authority())] = c
		}
	}
}

// WithCache sets the result cache.
func WithCache(c cache.Cache) Option {
	return func(v *Verifier) { v.cache = c }
}

// WithCacheTTL sets how long a check result is reused.
func WithCacheTTL(d time.Duration) Option {
	return func(v *Verifier) { v.cacheTTL = d }
}

// WithCheckInterval sets the minimum delay between register checks. Zero
// disables pacing.
func WithCheckInterval(d time.Duration) Option {
	return func(v *Verifier) {
		if d <= 0 {
			v.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		v.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewVerifier creates a Verifier with the embedded register checkers, a
// 200-entry memory cache and a one second check interval.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		cache:    cache.NewMemory(defaultCacheEntries),
		cacheTTL: defaultCacheTTL,
		limiter:  rate.NewLimiter(rate.Every(defaultCheckInterval), 1),
		now:      time.Now,
	}
	WithCheckers(DefaultCheckers()...)(v)
	for _, o := range opts {
		o(v)
	}
	return v
}

// VerifyBrokerRegulation checks every claimed regulator in order. It always
// returns a result: checker failures become checks with status error.
func (v *Verifier) VerifyBrokerRegulation(ctx context.Context, brokerName string, regulators []string, licenses map[string]string) *model.RegulatoryResult {
	log := zap.L().With(zap.String("broker", brokerName))
	start := v.now()

	checks := make([]model.RegulatoryCheck, 0, len(regulators))
	for _, authority := range regulators {
		license := licenseFor(licenses, authority)
		check, err := v.checkAuthority(ctx, brokerName, authority, license)
		if err != nil {
			log.Warn("regulatory: check failed",
				zap.String("authority", authority), zap.Error(err))
			check = model.RegulatoryCheck{
				Authority:     authority,
				LicenseNumber: license,
				Status:        model.LicenseError,
				Confidence:    0,
				LastChecked:   v.now().UTC(),
				Error:         err.Error(),
			}
		}
		checks = append(checks, check)
	}

	result := &model.RegulatoryResult{
		BrokerName:      brokerName,
		Checks:          checks,
		OverallStatus:   OverallStatus(checks),
		ConfidenceScore: meanConfidence(checks),
		Recommendations: Recommendations(checks),
		Timestamp:       v.now().UTC(),
	}
	log.Info("regulatory: verification complete",
		zap.String("status", string(result.OverallStatus)),
		zap.Int("checks", len(checks)),
		zap.Duration("elapsed", v.now().Sub(start)),
	)
	return result
}

func (v *Verifier) checkAuthority(ctx context.Context, brokerName, authority, license string) (check model.RegulatoryCheck, err error) {
	key := cacheKey(brokerName, authority, license)
	if cached, ok, cerr := cache.GetJSON[model.RegulatoryCheck](ctx, v.cache, key); cerr != nil {
		zap.L().Debug("regulatory: cache read failed", zap.String("key", key), zap.Error(cerr))
	} else if ok {
		return cached, nil
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return model.RegulatoryCheck{}, eris.Wrap(err, "regulatory: wait for check slot")
	}

	checker, ok := v.checkers[strings.ToUpper(authority)]
	if !ok {
		checker = NewGenericChecker(authority)
	}

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("regulatory: %s checker panicked: %v", authority, r)
		}
	}()
	check, err = checker.Check(ctx, brokerName, license)
	v.requests.Add(1)
	if err != nil {
		return model.RegulatoryCheck{}, err
	}

	if serr := cache.SetJSON(ctx, v.cache, key, check, v.cacheTTL); serr != nil {
		zap.L().Debug("regulatory: cache write failed", zap.String("key", key), zap.Error(serr))
	}
	return check, nil
}

// Stats returns request and cache counters.
func (v *Verifier) Stats(ctx context.Context) Stats {
	size, err := v.cache.Len(ctx)
	if err != nil {
		zap.L().Debug("regulatory: cache size unavailable", zap.Error(err))
	}
	authorities := make([]string, 0, len(v.checkers))
	for _, c := range v.checkers {
		authorities = append(authorities, c.Authority())
	}
	slices.Sort(authorities)
	return Stats{
		RequestCount:         v.requests.Load(),
		CacheSize:            size,
		SupportedAuthorities: authorities,
	}
}

// ClearCache drops all cached check results.
func (v *Verifier) ClearCache(ctx context.Context) error {
	if err := v.cache.Clear(ctx); err != nil {
		return eris.Wrap(err, "regulatory: clear cache")
	}
	return nil
}

// OverallStatus derives the aggregate status. Any suspended or revoked
// licence wins over active ones.
func OverallStatus(checks []model.RegulatoryCheck) model.RegulatoryStatus {
	var active int
	for _, c := range checks {
		if c.Status == model.LicenseSuspended || c.Status == model.LicenseRevoked {
			return model.RegulatoryIssuesFound
		}
		if c.Status == model.LicenseActive {
			active++
		}
	}
	switch {
	case active > 0 && active == len(checks):
		return model.RegulatoryVerified
	case active > 0:
		return model.RegulatoryPartiallyVerified
	}
	return model.RegulatoryNotVerified
}

// Recommendations turns check outcomes into reviewer guidance.
func Recommendations(checks []model.RegulatoryCheck) []string {
	if len(checks) == 0 {
		return []string{"No regulators claimed. Manual verification needed."}
	}

	var failed, flagged, low int
	allHigh := true
	for _, c := range checks {
		switch c.Status {
		case model.LicenseNotFound, model.LicenseError:
			failed++
		case model.LicenseSuspended, model.LicenseRevoked:
			flagged++
		}
		if c.Confidence < lowConfidence {
			low++
		}
		if c.Confidence <= highConfidence {
			allHigh = false
		}
	}

	var recs []string
	if flagged > 0 {
		recs = append(recs, fmt.Sprintf("CRITICAL: Found %d suspended/revoked licenses. Immediate review required.", flagged))
	}
	if float64(failed) > float64(len(checks))*0.5 {
		recs = append(recs, "More than half of regulatory checks failed. Manual verification needed.")
	}
	if low > 0 {
		recs = append(recs, fmt.Sprintf("%d checks have low confidence. Consider manual verification.", low))
	}
	if allHigh {
		recs = append(recs, "All regulatory checks passed with high confidence.")
	}
	if len(recs) == 0 {
		recs = append(recs, "No specific recommendations. Regular monitoring suggested.")
	}
	return recs
}

func meanConfidence(checks []model.RegulatoryCheck) float64 {
	if len(checks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range checks {
		sum += c.Confidence
	}
	return math.Round(sum/float64(len(checks))*100) / 100
}

func licenseFor(licenses map[string]string, authority string) string {
	if l, ok := licenses[authority]; ok {
		return l
	}
	for k, l := range licenses {
		if strings.EqualFold(k, authority) {
			return l
		}
	}
	return ""
}

func cacheKey(brokerName, authority, license string) string {
	if license == "" {
		license = "no-license"
	}
	return "regulatory:" + strings.ToLower(brokerName) + "_" + strings.ToUpper(authority) + "_" + license
}
