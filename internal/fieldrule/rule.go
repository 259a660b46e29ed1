// Package fieldrule holds the declarative rule table for broker fields and
// the pure comparison and validation logic built on it.
package fieldrule

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Type is the declared value type of a field.
type Type string

const (
	TypeString Type = "string"
	TypeNumber Type = "number"
	TypeArray  Type = "array"
	TypeBool   Type = "boolean"
)

// Priority drives discrepancy severity and the confidence nudge.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Category groups fields for reporting.
type Category string

const (
	CategoryCore       Category = "core"
	CategoryFinancial  Category = "financial"
	CategoryRegulatory Category = "regulatory"
	CategoryTechnical  Category = "technical"
	CategoryOptional   Category = "optional"
)

// Rule declares how one broker field is validated, normalized and compared.
type Rule struct {
	Field         string
	Type          Type
	Required      bool
	Min           *float64
	Max           *float64
	MinLength     int
	MaxLength     int
	Pattern       *regexp.Regexp
	AllowedValues []string
	Tolerance     float64
	Category      Category
	Priority      Priority

	// Normalize maps a canonical value (float64, string, []string, bool) to
	// its comparison form. Nil means identity.
	Normalize func(v any) any
	// Validate returns a non-empty message when the normalized value is invalid.
	Validate func(v any) string
}

func bound(v float64) *float64 { return &v }

var (
	nonWordRe     = regexp.MustCompile(`[^\w\s]`)
	urlRe         = regexp.MustCompile(`(?i)^https?://.+\..+`)
	leverageRe    = regexp.MustCompile(`^1:(\d+)$`)
	imageRe       = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|svg|gif)$`)
	trailSlashRe  = regexp.MustCompile(`/+$`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	punctuationRe = regexp.MustCompile(`[.,]`)
)

// KnownRegulators is the allowed-value list for the regulators field.
var KnownRegulators = []string{
	"FCA", "ASIC", "CYSEC", "ESMA", "FSA", "FINRA", "SEC", "CFTC", "NFA",
	"BAFIN", "AMF", "CONSOB", "AFM", "DFSA", "FSCA", "CMA", "CBB", "CBUAE",
	"JFSA", "FSC", "SFC", "MAS", "CSA", "IIROC", "OSC", "SRO",
}

// KnownPlatforms is the allowed-value list for the platforms field.
var KnownPlatforms = []string{
	"MetaTrader 4", "MetaTrader 5", "MT4", "MT5", "cTrader", "TradingView",
	"NinjaTrader", "ProRealTime", "Web Platform", "Mobile App", "Desktop App",
	"Proprietary Platform", "API", "FIX", "Multi-Asset Platform",
}

func mapString(fn func(string) string) func(any) any {
	return func(v any) any {
		if s, ok := v.(string); ok {
			return fn(s)
		}
		return v
	}
}

func mapSorted(fn func(string) string) func(any) any {
	return func(v any) any {
		items, ok := v.([]string)
		if !ok {
			return v
		}
		out := make([]string, len(items))
		for i, s := range items {
			out[i] = fn(s)
		}
		sort.Strings(out)
		return out
	}
}

// DefaultRules returns a fresh copy of the built-in rule table in field order.
func DefaultRules() []Rule {
	currentYear := float64(time.Now().Year())

	return []Rule{
		{
			Field: "name", Type: TypeString, Required: true, MinLength: 2, MaxLength: 255,
			Category: CategoryCore, Priority: PriorityCritical,
			Normalize: mapString(func(s string) string {
				return nonWordRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
			}),
			Validate: func(v any) string {
				if s, _ := v.(string); len(s) < 2 {
					return "Broker name too short"
				}
				return ""
			},
		},
		{
			Field: "websiteUrl", Type: TypeString, Required: true, Pattern: urlRe,
			Category: CategoryCore, Priority: PriorityHigh,
			Normalize: mapString(func(s string) string {
				return trailSlashRe.ReplaceAllString(strings.ToLower(s), "")
			}),
		},
		{
			Field: "foundingYear", Type: TypeNumber, Required: true,
			Min: bound(1900), Max: bound(currentYear), Tolerance: 1,
			Category: CategoryCore, Priority: PriorityHigh,
		},
		{
			Field: "headquarters", Type: TypeString, Required: true, MinLength: 3, MaxLength: 255,
			Category: CategoryCore, Priority: PriorityMedium,
			Normalize: mapString(func(s string) string {
				return strings.ToLower(punctuationRe.ReplaceAllString(strings.TrimSpace(s), ""))
			}),
		},
		{
			Field: "minDeposit", Type: TypeNumber, Required: true,
			Min: bound(0), Max: bound(50000), Tolerance: 50,
			Category: CategoryFinancial, Priority: PriorityHigh,
		},
		{
			Field: "eurUsdSpread", Type: TypeNumber, Required: true,
			Min: bound(0), Max: bound(10), Tolerance: 0.5,
			Category: CategoryFinancial, Priority: PriorityHigh,
		},
		{
			Field: "maxLeverage", Type: TypeString, Required: true, Pattern: leverageRe,
			Category: CategoryFinancial, Priority: PriorityMedium,
			Normalize: mapString(func(s string) string {
				return strings.ToLower(whitespaceRe.ReplaceAllString(s, ""))
			}),
			Validate: validateLeverage,
		},
		{
			Field: "regulators", Type: TypeArray, Required: true, MinLength: 1, MaxLength: 20,
			AllowedValues: KnownRegulators,
			Category:      CategoryRegulatory, Priority: PriorityCritical,
			Normalize: mapSorted(func(s string) string {
				return strings.ToUpper(strings.TrimSpace(s))
			}),
		},
		{
			Field: "platforms", Type: TypeArray, Required: true, MinLength: 1, MaxLength: 10,
			AllowedValues: KnownPlatforms,
			Category:      CategoryTechnical, Priority: PriorityMedium,
			Normalize:     mapSorted(strings.TrimSpace),
		},
		{
			Field: "score", Type: TypeNumber, Required: true,
			Min: bound(1), Max: bound(10), Tolerance: 0.5,
			Category: CategoryOptional, Priority: PriorityMedium,
		},
		{
			Field: "description", Type: TypeString, Required: true, MinLength: 50, MaxLength: 2000,
			Category: CategoryOptional, Priority: PriorityLow,
		},
		{
			Field: "logoUrl", Type: TypeString, Required: true, Pattern: imageRe,
			Category: CategoryOptional, Priority: PriorityLow,
			Validate: func(v any) string {
				if s, _ := v.(string); !imageRe.MatchString(s) {
					return "Logo URL must point to a valid image file"
				}
				return ""
			},
		},
	}
}

func validateLeverage(v any) string {
	s, _ := v.(string)
	m := leverageRe.FindStringSubmatch(s)
	if m == nil {
		return "Invalid leverage format (should be 1:XXX)"
	}
	var ratio int
	if _, err := fmt.Sscanf(m[1], "%d", &ratio); err != nil || ratio < 1 || ratio > 2000 {
		return "Leverage ratio should be between 1:1 and 1:2000"
	}
	return ""
}
