package model

import "time"

// LicenseStatus is the register status of a broker at one authority.
type LicenseStatus string

const (
	LicenseActive    LicenseStatus = "active"
	LicenseSuspended LicenseStatus = "suspended"
	LicenseRevoked   LicenseStatus = "revoked"
	LicenseNotFound  LicenseStatus = "not_found"
	LicenseError     LicenseStatus = "error"
)

// RegulatoryStatus is the aggregate status across all checked authorities.
type RegulatoryStatus string

const (
	RegulatoryVerified          RegulatoryStatus = "verified"
	RegulatoryPartiallyVerified RegulatoryStatus = "partially_verified"
	RegulatoryNotVerified       RegulatoryStatus = "not_verified"
	RegulatoryIssuesFound       RegulatoryStatus = "issues_found"
)

// AuthorityDetails holds register details for a matched broker.
type AuthorityDetails struct {
	OfficialName       string   `json:"official_name,omitempty"`
	AuthorizedServices []string `json:"authorized_services,omitempty"`
	BusinessAddress    string   `json:"business_address,omitempty"`
}

// RegulatoryCheck is the outcome of checking one authority.
type RegulatoryCheck struct {
	Authority     string            `json:"authority"`
	AuthorityName string            `json:"authority_name,omitempty"`
	LicenseNumber string            `json:"license_number,omitempty"`
	Status        LicenseStatus     `json:"status"`
	Confidence    float64           `json:"confidence"`
	Details       *AuthorityDetails `json:"details,omitempty"`
	LastChecked   time.Time         `json:"last_checked"`
	Notes         string            `json:"notes,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// RegulatoryResult aggregates authority checks for one broker.
type RegulatoryResult struct {
	BrokerName      string            `json:"broker_name"`
	Checks          []RegulatoryCheck `json:"checks"`
	OverallStatus   RegulatoryStatus  `json:"overall_status"`
	ConfidenceScore float64           `json:"confidence_score"`
	Recommendations []string          `json:"recommendations"`
	Timestamp       time.Time         `json:"timestamp"`
}
