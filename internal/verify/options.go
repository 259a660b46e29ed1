package verify

import (
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/broker-verify/internal/alert"
	"github.com/sells-group/broker-verify/internal/model"
)

// DefaultFields are the broker fields checked when Options.Fields is empty.
var DefaultFields = []string{"name", "minDeposit", "regulators", "foundingYear", "headquarters"}

// Options control one verification run. Start from DefaultOptions.
type Options struct {
	Fields              []string `json:"fields_to_check" validate:"dive,required"`
	SkipRegulatory      bool     `json:"skip_regulatory"`
	MaxSources          int      `json:"max_sources" validate:"min=1,max=20"`
	ConfidenceThreshold float64  `json:"confidence_threshold" validate:"min=0,max=1"`
	EnableAlerts        bool     `json:"enable_alerts"`
	SaveDiscrepancies   bool     `json:"save_discrepancies"`
}

// DefaultOptions returns the standard run options.
func DefaultOptions() Options {
	return Options{
		Fields:              slices.Clone(DefaultFields),
		MaxSources:          5,
		ConfidenceThreshold: 0.6,
		EnableAlerts:        true,
		SaveDiscrepancies:   true,
	}
}

func (o Options) fields() []string {
	if len(o.Fields) == 0 {
		return DefaultFields
	}
	return o.Fields
}

// Weights are the tunable constants of source ranking, aggregation and
// scoring.
type Weights struct {
	// Source ranking: reliability, confidence and relevance.
	RankReliability float64 `json:"rank_reliability" mapstructure:"rank_reliability"`
	RankConfidence  float64 `json:"rank_confidence" mapstructure:"rank_confidence"`
	RankRelevance   float64 `json:"rank_relevance" mapstructure:"rank_relevance"`

	// Aggregation weight of one source's value.
	AggReliability float64 `json:"agg_reliability" mapstructure:"agg_reliability"`
	AggConfidence  float64 `json:"agg_confidence" mapstructure:"agg_confidence"`

	// Overall confidence penalty per discrepancy by severity.
	PenaltyCritical float64 `json:"penalty_critical" mapstructure:"penalty_critical"`
	PenaltyHigh     float64 `json:"penalty_high" mapstructure:"penalty_high"`
	PenaltyMedium   float64 `json:"penalty_medium" mapstructure:"penalty_medium"`
	PenaltyLow      float64 `json:"penalty_low" mapstructure:"penalty_low"`

	// MinSourceConfidence scrapes at or below are dropped.
	MinSourceConfidence float64 `json:"min_source_confidence" mapstructure:"min_source_confidence"`
	// UpdateConfidence and ReviewConfidence split recommended actions.
	UpdateConfidence float64 `json:"update_confidence" mapstructure:"update_confidence"`
	ReviewConfidence float64 `json:"review_confidence" mapstructure:"review_confidence"`
	// MaxHigh high severity discrepancies are tolerated before the run is
	// classified as discrepancies_found.
	MaxHigh int `json:"max_high" mapstructure:"max_high"`

	Alert alert.Thresholds `json:"alert" mapstructure:"alert"`
}

// DefaultWeights returns the standard constants.
func DefaultWeights() Weights {
	return Weights{
		RankReliability:     0.4,
		RankConfidence:      0.4,
		RankRelevance:       0.2,
		AggReliability:      0.6,
		AggConfidence:       0.4,
		PenaltyCritical:     0.3,
		PenaltyHigh:         0.2,
		PenaltyMedium:       0.1,
		PenaltyLow:          0.05,
		MinSourceConfidence: 0.1,
		UpdateConfidence:    0.8,
		ReviewConfidence:    0.5,
		MaxHigh:             2,
		Alert:               alert.DefaultThresholds(),
	}
}

func (w Weights) penalty(s model.Severity) float64 {
	switch s {
	case model.SeverityCritical:
		return w.PenaltyCritical
	case model.SeverityHigh:
		return w.PenaltyHigh
	case model.SeverityMedium:
		return w.PenaltyMedium
	case model.SeverityLow:
		return w.PenaltyLow
	}
	return 0
}

var optionsValidator = validator.New()

// ValidateOptions rejects malformed options and unknown field names.
func ValidateOptions(opts Options) error {
	if err := optionsValidator.Struct(opts); err != nil {
		return eris.Wrap(err, "verify: invalid options")
	}
	for _, f := range opts.Fields {
		if !IsKnownField(f) {
			return eris.Errorf("verify: unknown field %q", f)
		}
	}
	return nil
}
