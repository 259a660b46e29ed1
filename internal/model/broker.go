package model

// Broker is the stored broker record supplied by the broker CRUD layer.
// The verifier reads it and never writes it back.
type Broker struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Website           string            `json:"website_url,omitempty"`
	FoundingYear      *int              `json:"founding_year,omitempty"`
	Headquarters      string            `json:"headquarters,omitempty"`
	Description       string            `json:"description,omitempty"`
	LogoURL           string            `json:"logo_url,omitempty"`
	Score             *float64          `json:"score,omitempty"`
	Regulation        Regulation        `json:"regulation"`
	Accessibility     Accessibility     `json:"accessibility"`
	TradingConditions TradingConditions `json:"trading_conditions"`
	Technology        Technology        `json:"technology"`
}

// Regulation lists the regulators a broker claims and any license numbers
// keyed by regulator acronym.
type Regulation struct {
	Regulators []string          `json:"regulators,omitempty"`
	Licenses   map[string]string `json:"licenses,omitempty"`
}

// Accessibility holds account-opening attributes.
type Accessibility struct {
	MinDeposit *float64 `json:"min_deposit,omitempty"`
}

// TradingConditions holds pricing attributes.
type TradingConditions struct {
	Spreads     Spreads `json:"spreads"`
	MaxLeverage string  `json:"max_leverage,omitempty"`
}

// Spreads holds typical spreads in pips per instrument.
type Spreads struct {
	EURUSD *float64 `json:"eurusd,omitempty"`
}

// Technology holds the platforms offered.
type Technology struct {
	Platforms []string `json:"platforms,omitempty"`
}

// Float64 returns a pointer to v. Handy for building broker fixtures.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
