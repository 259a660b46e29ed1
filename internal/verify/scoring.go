package verify

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/broker-verify/internal/fieldrule"
	"github.com/sells-group/broker-verify/internal/model"
)

// sourcedValue pairs a web value with the source it came from.
type sourcedValue struct {
	value  any
	source *model.VerificationSource
}

func (w Weights) sourceWeight(s *model.VerificationSource) float64 {
	return s.Reliability*w.AggReliability + s.Confidence*w.AggConfidence
}

func (w Weights) rank(s *model.VerificationSource) float64 {
	return s.Reliability*w.RankReliability + s.Confidence*w.RankConfidence + s.RelevanceScore*w.RankRelevance
}

// aggregate reconciles values reported by several sources. Numbers are
// averaged by source weight, lists are merged, anything else goes to the
// heaviest weighted vote.
func aggregate(values []sourcedValue, w Weights) any {
	switch len(values) {
	case 0:
		return nil
	case 1:
		return values[0].value
	}

	allNumbers := true
	anyList := false
	for _, sv := range values {
		switch sv.value.(type) {
		case float64:
		case []string:
			allNumbers = false
			anyList = true
		default:
			allNumbers = false
		}
	}

	if allNumbers {
		var sum, total float64
		for _, sv := range values {
			weight := w.sourceWeight(sv.source)
			sum += sv.value.(float64) * weight
			total += weight
		}
		if total == 0 {
			return values[0].value
		}
		return sum / total
	}

	if anyList {
		var merged []string
		seen := make(map[string]bool)
		for _, sv := range values {
			items, ok := sv.value.([]string)
			if !ok {
				items = []string{fmt.Sprint(sv.value)}
			}
			for _, it := range items {
				if !seen[it] {
					seen[it] = true
					merged = append(merged, it)
				}
			}
		}
		return merged
	}

	tally := make(map[any]float64)
	best, bestWeight := values[0].value, -1.0
	for _, sv := range values {
		tally[sv.value] += w.sourceWeight(sv.source)
	}
	for _, sv := range values {
		if t := tally[sv.value]; t > bestWeight {
			best, bestWeight = sv.value, t
		}
	}
	return best
}

// relevance scores how on-topic scraped data is for the broker. Only text
// read from the page counts; the requested name is ignored.
func relevance(d *model.ScrapedBrokerData, brokerName string) float64 {
	score := 0.5
	name := strings.ToLower(strings.TrimSpace(brokerName))
	text := strings.ToLower(strings.Join([]string{
		d.BrokerName,
		d.Summary,
		d.Headquarters,
		strings.Join(d.Pros, " "),
		strings.Join(d.Cons, " "),
		strings.Join(d.Features, " "),
	}, " "))
	if name != "" && strings.Contains(text, name) {
		score += 0.3
	}
	if d.MinDeposit != nil {
		score += 0.1
	}
	if len(d.Regulation) > 0 {
		score += 0.2
	}
	if len(d.Platforms) > 0 {
		score += 0.1
	}
	if d.Rating != nil {
		score += 0.1
	}
	return math.Min(1, score)
}

// severity derives discrepancy severity from the rule priority, escalated
// when the tolerance was exceeded.
func severity(rule *fieldrule.Rule, cmp fieldrule.ComparisonResult) model.Severity {
	var p fieldrule.Priority
	if rule != nil {
		p = rule.Priority
	}
	switch {
	case p == fieldrule.PriorityCritical:
		return model.SeverityCritical
	case p == fieldrule.PriorityHigh || cmp.ToleranceExceeded:
		return model.SeverityHigh
	case p == fieldrule.PriorityMedium || cmp.Confidence < 0.5:
		return model.SeverityMedium
	}
	return model.SeverityLow
}

func (w Weights) action(confidence float64, sev model.Severity) model.Action {
	switch {
	case confidence > w.UpdateConfidence && sev != model.SeverityLow:
		return model.ActionUpdate
	case confidence > w.ReviewConfidence:
		return model.ActionReview
	}
	return model.ActionIgnore
}

func reasoning(cmp fieldrule.ComparisonResult) string {
	var reasons []string
	if cmp.ToleranceExceeded {
		reasons = append(reasons, "value difference exceeds acceptable tolerance")
	}
	if cmp.Confidence < 0.6 {
		reasons = append(reasons, "low confidence in web data")
	}
	reasons = append(reasons, cmp.Issues...)

	out := fmt.Sprintf("Database value %s differs from web data %s", display(cmp.DBValue), display(cmp.WebValue))
	if len(reasons) > 0 {
		out += ": " + strings.Join(reasons, ", ")
	}
	return out + "."
}

func display(v any) string {
	switch x := v.(type) {
	case nil:
		return "(missing)"
	case float64:
		return fmt.Sprintf("%q", fmt.Sprint(math.Round(x*100)/100))
	case []string:
		return fmt.Sprintf("%q", strings.Join(x, ", "))
	}
	return fmt.Sprintf("%q", fmt.Sprint(v))
}

// overallConfidence is the mean source confidence less the severity
// penalties, clamped to [0,1].
func overallConfidence(sources []model.VerificationSource, discrepancies []model.FieldDiscrepancy, w Weights) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += s.Confidence
	}
	conf := sum / float64(len(sources))
	for _, d := range discrepancies {
		conf -= w.penalty(d.Severity)
	}
	return math.Max(0, math.Min(1, conf))
}

func classify(discrepancies []model.FieldDiscrepancy, confidence, threshold float64, w Weights) model.VerificationStatus {
	critical, high := 0, 0
	for _, d := range discrepancies {
		switch d.Severity {
		case model.SeverityCritical:
			critical++
		case model.SeverityHigh:
			high++
		}
	}
	switch {
	case critical > 0:
		return model.StatusNeedsReview
	case high > w.MaxHigh || confidence < threshold:
		return model.StatusDiscrepanciesFound
	case len(discrepancies) == 0:
		return model.StatusVerified
	}
	return model.StatusDiscrepanciesFound
}

func recommendations(discrepancies []model.FieldDiscrepancy, sources int, reg *model.RegulatoryResult) []string {
	var critical, update, review int
	for _, d := range discrepancies {
		if d.Severity == model.SeverityCritical {
			critical++
		}
		switch d.RecommendedAction {
		case model.ActionUpdate:
			update++
		case model.ActionReview:
			review++
		}
	}

	var out []string
	if critical > 0 {
		out = append(out, fmt.Sprintf("Address %d critical data discrepancies immediately", critical))
	}
	if update > 0 {
		out = append(out, fmt.Sprintf("Consider updating %d fields with high-confidence web data", update))
	}
	if review > 0 {
		out = append(out, fmt.Sprintf("Manually review %d fields with moderate discrepancies", review))
	}
	if reg != nil && reg.OverallStatus == model.RegulatoryIssuesFound {
		out = append(out, "Critical: Regulatory verification found issues that require immediate attention")
	}
	if sources == 0 {
		out = append(out, "No usable web sources found. Verify this broker manually.")
	}
	if len(out) == 0 {
		out = append(out, "No significant issues found. Continue regular monitoring.")
	}
	return out
}
