package model

import "time"

// SourceCategory groups source domains by the kind of information they publish.
type SourceCategory string

const (
	CategoryRegulatory     SourceCategory = "regulatory"
	CategoryNews           SourceCategory = "news"
	CategoryReview         SourceCategory = "review"
	CategoryBrokerOfficial SourceCategory = "broker_official"
	CategoryAnalysis       SourceCategory = "analysis"
)

// DataSource is the persisted reliability state of one source domain.
type DataSource struct {
	Domain           string         `json:"domain"`
	Name             string         `json:"name"`
	Category         SourceCategory `json:"category"`
	ReliabilityScore float64        `json:"reliability_score"`
	SuccessRate      float64        `json:"success_rate"`
	TotalChecks      int            `json:"total_checks"`
	SuccessfulChecks int            `json:"successful_checks"`
	LastReviewed     time.Time      `json:"last_reviewed"`
	IsActive         bool           `json:"is_active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SourceVerification is an audit row written every time a source's
// reliability is updated from a verification outcome.
type SourceVerification struct {
	ID             string    `json:"id"`
	Domain         string    `json:"domain"`
	BrokerID       string    `json:"broker_id,omitempty"`
	Field          string    `json:"field,omitempty"`
	IsAccurate     bool      `json:"is_accurate"`
	Confidence     float64   `json:"confidence"`
	HadDiscrepancy bool      `json:"had_discrepancy"`
	ScoreBefore    float64   `json:"score_before"`
	ScoreAfter     float64   `json:"score_after"`
	CreatedAt      time.Time `json:"created_at"`
}

// StoredDiscrepancy is a persisted discrepancy row.
type StoredDiscrepancy struct {
	ID                string    `json:"id"`
	BrokerID          string    `json:"broker_id"`
	Field             string    `json:"field_name"`
	DBValue           []byte    `json:"db_value"`
	WebValue          []byte    `json:"web_value"`
	Confidence        float64   `json:"confidence_score"`
	SourcesChecked    []string  `json:"sources_checked"`
	ToleranceExceeded bool      `json:"tolerance_exceeded"`
	Severity          Severity  `json:"severity"`
	RecommendedAction Action    `json:"recommended_action"`
	CreatedAt         time.Time `json:"created_at"`
}
