package model

import "time"

// VerificationStatus is the outcome classification of one verification run.
type VerificationStatus string

const (
	StatusVerified           VerificationStatus = "verified"
	StatusDiscrepanciesFound VerificationStatus = "discrepancies_found"
	StatusNeedsReview        VerificationStatus = "needs_review"
	StatusFailed             VerificationStatus = "failed"
)

// Severity ranks a field discrepancy.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Action is the proposed follow-up for a discrepancy.
type Action string

const (
	ActionUpdate Action = "update"
	ActionReview Action = "review"
	ActionIgnore Action = "ignore"
)

// VerificationSource is one corroborating web document used in a run.
type VerificationSource struct {
	Domain         string            `json:"domain"`
	URL            string            `json:"url"`
	Title          string            `json:"title,omitempty"`
	Data           ScrapedBrokerData `json:"data"`
	Confidence     float64           `json:"confidence"`
	Reliability    float64           `json:"reliability"`
	RelevanceScore float64           `json:"relevance_score"`
	ExtractedAt    time.Time         `json:"extracted_at"`
}

// FieldDiscrepancy is one field where reconciled web data disagrees with
// the stored value.
type FieldDiscrepancy struct {
	Field             string   `json:"field"`
	DBValue           any      `json:"db_value"`
	WebValues         []any    `json:"web_values"`
	AggregatedValue   any      `json:"aggregated_value"`
	Confidence        float64  `json:"confidence"`
	ToleranceExceeded bool     `json:"tolerance_exceeded"`
	Sources           []string `json:"sources"`
	RecommendedAction Action   `json:"recommended_action"`
	Severity          Severity `json:"severity"`
	Reasoning         string   `json:"reasoning"`
}

// VerificationResult is the report produced by one verification run.
type VerificationResult struct {
	BrokerID           string               `json:"broker_id"`
	BrokerName         string               `json:"broker_name"`
	Timestamp          time.Time            `json:"timestamp"`
	OverallConfidence  float64              `json:"overall_confidence"`
	FieldsChecked      int                  `json:"fields_checked"`
	DiscrepanciesFound int                  `json:"discrepancies_found"`
	Discrepancies      []FieldDiscrepancy   `json:"discrepancies"`
	Sources            []VerificationSource `json:"sources"`
	Regulatory         *RegulatoryResult    `json:"regulatory,omitempty"`
	Recommendations    []string             `json:"recommendations"`
	Status             VerificationStatus   `json:"status"`
	ProcessingTime     time.Duration        `json:"processing_time"`
	Warnings           []string             `json:"warnings,omitempty"`
}

// CountBySeverity returns how many discrepancies carry severity s.
func (r *VerificationResult) CountBySeverity(s Severity) int {
	n := 0
	for _, d := range r.Discrepancies {
		if d.Severity == s {
			n++
		}
	}
	return n
}
