package fieldrule

import (
	"fmt"
	"math"
	"reflect"

	"github.com/agext/levenshtein"
)

// ComparisonResult is the outcome of comparing a stored value with a web value.
type ComparisonResult struct {
	Field             string   `json:"field"`
	DBValue           any      `json:"db_value"`
	WebValue          any      `json:"web_value"`
	NormalizedDB      any      `json:"normalized_db"`
	NormalizedWeb     any      `json:"normalized_web"`
	IsMatch           bool     `json:"is_match"`
	Difference        *float64 `json:"difference,omitempty"`
	ToleranceExceeded bool     `json:"tolerance_exceeded"`
	Confidence        float64  `json:"confidence"`
	Issues            []string `json:"issues"`
}

// CompareValues compares db and web under rule. It has no side effects and
// returns the same result for the same inputs. A nil rule compares raw
// canonical values with zero tolerance.
func CompareValues(rule *Rule, field string, db, web any) ComparisonResult {
	nDB, nWeb := normalize(rule, db), normalize(rule, web)
	res := ComparisonResult{
		Field:         field,
		DBValue:       db,
		WebValue:      web,
		NormalizedDB:  nDB,
		NormalizedWeb: nWeb,
		Issues:        []string{},
	}

	switch {
	case nDB == nil && nWeb == nil:
		res.IsMatch = true
		res.Confidence = 0.9
	case nDB == nil:
		res.Issues = append(res.Issues, "Database value is missing")
		res.Confidence = 0.1
	case nWeb == nil:
		res.Issues = append(res.Issues, "Web value is missing")
		res.Confidence = 0.3
	default:
		compareTyped(rule, nDB, nWeb, &res)
	}

	if rule != nil {
		switch rule.Priority {
		case PriorityCritical:
			res.Confidence *= 1.1
		case PriorityLow:
			res.Confidence *= 0.9
		}
	}
	res.Confidence = clamp01(res.Confidence)
	return res
}

func compareTyped(rule *Rule, db, web any, res *ComparisonResult) {
	switch a := db.(type) {
	case float64:
		if b, ok := web.(float64); ok {
			compareNumbers(rule, a, b, res)
			return
		}
	case string:
		if b, ok := web.(string); ok {
			compareStrings(a, b, res)
			return
		}
	case []string:
		if b, ok := web.([]string); ok {
			compareArrays(a, b, res)
			return
		}
	}

	res.IsMatch = reflect.DeepEqual(db, web)
	if res.IsMatch {
		res.Confidence = 1.0
	} else {
		res.Confidence = 0.2
		res.Issues = append(res.Issues, "Values are different")
	}
}

func compareNumbers(rule *Rule, a, b float64, res *ComparisonResult) {
	var tolerance float64
	if rule != nil {
		tolerance = rule.Tolerance
	}
	diff := math.Abs(a - b)
	res.Difference = &diff
	res.IsMatch = diff <= tolerance
	res.ToleranceExceeded = diff > tolerance

	switch {
	case diff == 0:
		res.Confidence = 1.0
	case diff <= tolerance:
		res.Confidence = 0.9 - (diff/tolerance)*0.3
	default:
		ratio := 2.0
		if tolerance > 0 {
			ratio = math.Min(diff/tolerance, 2)
		}
		res.Confidence = 0.4 - ratio*0.2
		res.Issues = append(res.Issues, fmt.Sprintf("Difference %g exceeds tolerance %g", diff, tolerance))
	}
}

func compareStrings(a, b string, res *ComparisonResult) {
	if a == b {
		res.IsMatch = true
		res.Confidence = 1.0
		return
	}
	sim := StringSimilarity(a, b)
	res.Confidence = sim * 0.8
	switch {
	case sim > 0.8:
		res.Issues = append(res.Issues, "Values are similar but not identical")
	case sim > 0.5:
		res.Issues = append(res.Issues, "Values have moderate similarity")
	default:
		res.Issues = append(res.Issues, "Values are significantly different")
	}
}

func compareArrays(a, b []string, res *ComparisonResult) {
	sim := Jaccard(a, b)
	res.IsMatch = sim >= 0.8
	if sim == 1 {
		res.Confidence = 1.0
		return
	}
	res.Confidence = sim * 0.9
	if sim < 0.8 {
		res.Issues = append(res.Issues, fmt.Sprintf("Arrays have %d%% similarity", int(math.Round(sim*100))))
	}
}

// StringSimilarity is 1 - levenshtein(a, b)/max(len(a), len(b)).
func StringSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	maxLen := max(len([]rune(a)), len([]rune(b)))
	dist := levenshtein.Distance(a, b, nil)
	return float64(maxLen-dist) / float64(maxLen)
}

// Jaccard is |a ∩ b| / |a ∪ b| over distinct elements.
func Jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[v] = struct{}{}
	}
	union := make(map[string]struct{}, len(a)+len(b))
	for k := range setA {
		union[k] = struct{}{}
	}
	inter := 0
	seenB := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, dup := seenB[v]; dup {
			continue
		}
		seenB[v] = struct{}{}
		union[v] = struct{}{}
		if _, ok := setA[v]; ok {
			inter++
		}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(inter) / float64(len(union))
}

func normalize(rule *Rule, v any) any {
	c := Canonical(v)
	if c == nil || rule == nil || rule.Normalize == nil {
		return c
	}
	return Canonical(rule.Normalize(c))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
