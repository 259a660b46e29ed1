// Package report summarizes a batch of verification results.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rotisserie/eris"

	"github.com/sells-group/broker-verify/internal/model"
)

const (
	topBrokers          = 10
	lowConfidence       = 0.7
	highSeverityBacklog = 5
)

// Summary counts results by outcome.
type Summary struct {
	Total               int           `json:"total"`
	Verified            int           `json:"verified"`
	WithDiscrepancies   int           `json:"with_discrepancies"`
	NeedsReview         int           `json:"needs_review"`
	Failed              int           `json:"failed"`
	AverageConfidence   float64       `json:"average_confidence"`
	TotalProcessingTime time.Duration `json:"total_processing_time"`
}

// BrokerIssues is one entry of the problematic brokers list.
type BrokerIssues struct {
	Name       string  `json:"name"`
	Issues     int     `json:"issues"`
	Confidence float64 `json:"confidence"`
}

// Quality aggregates discrepancies across the batch.
type Quality struct {
	TotalDiscrepancies int            `json:"total_discrepancies"`
	Critical           int            `json:"critical_issues"`
	High               int            `json:"high_severity_issues"`
	ByField            map[string]int `json:"field_analysis"`
	TopProblematic     []BrokerIssues `json:"top_problematic_brokers"`
}

// Recommendations are grouped by urgency.
type Recommendations struct {
	Immediate []string `json:"immediate"`
	ShortTerm []string `json:"short_term"`
	LongTerm  []string `json:"long_term"`
}

// Report is the batch report.
type Report struct {
	GeneratedAt     time.Time                   `json:"generated_at"`
	Summary         Summary                     `json:"summary"`
	Quality         Quality                     `json:"quality"`
	Recommendations Recommendations             `json:"recommendations"`
	Results         []*model.VerificationResult `json:"results"`
}

// Build summarizes results. Nil entries are skipped.
func Build(results []*model.VerificationResult) Report {
	r := Report{
		GeneratedAt: time.Now().UTC(),
		Quality:     Quality{ByField: map[string]int{}, TopProblematic: []BrokerIssues{}},
		Results:     make([]*model.VerificationResult, 0, len(results)),
	}

	var confSum float64
	lowConf := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		r.Results = append(r.Results, res)
		r.Summary.Total++
		switch res.Status {
		case model.StatusVerified:
			r.Summary.Verified++
		case model.StatusDiscrepanciesFound:
			r.Summary.WithDiscrepancies++
		case model.StatusNeedsReview:
			r.Summary.NeedsReview++
		case model.StatusFailed:
			r.Summary.Failed++
		}
		confSum += res.OverallConfidence
		r.Summary.TotalProcessingTime += res.ProcessingTime
		if res.OverallConfidence < lowConfidence {
			lowConf++
		}

		r.Quality.TotalDiscrepancies += len(res.Discrepancies)
		r.Quality.Critical += res.CountBySeverity(model.SeverityCritical)
		r.Quality.High += res.CountBySeverity(model.SeverityHigh)
		for _, d := range res.Discrepancies {
			r.Quality.ByField[d.Field]++
		}
		if len(res.Discrepancies) > 0 {
			r.Quality.TopProblematic = append(r.Quality.TopProblematic, BrokerIssues{
				Name:       res.BrokerName,
				Issues:     len(res.Discrepancies),
				Confidence: res.OverallConfidence,
			})
		}
	}
	if r.Summary.Total > 0 {
		r.Summary.AverageConfidence = confSum / float64(r.Summary.Total)
	}

	sort.SliceStable(r.Quality.TopProblematic, func(i, j int) bool {
		return r.Quality.TopProblematic[i].Issues > r.Quality.TopProblematic[j].Issues
	})
	if len(r.Quality.TopProblematic) > topBrokers {
		r.Quality.TopProblematic = r.Quality.TopProblematic[:topBrokers]
	}

	r.Recommendations = recommend(r, lowConf)
	return r
}

func recommend(r Report, lowConf int) Recommendations {
	rec := Recommendations{Immediate: []string{}, ShortTerm: []string{}}
	if r.Quality.Critical > 0 {
		rec.Immediate = append(rec.Immediate, fmt.Sprintf("Address %d critical data discrepancies immediately", r.Quality.Critical))
	}
	if r.Summary.Failed > 0 {
		rec.Immediate = append(rec.Immediate, fmt.Sprintf("Investigate %d brokers that failed verification", r.Summary.Failed))
	}
	if r.Quality.High > highSeverityBacklog {
		rec.Immediate = append(rec.Immediate, fmt.Sprintf("Priority review needed for %d high-severity issues", r.Quality.High))
	}
	if lowConf > 0 {
		rec.ShortTerm = append(rec.ShortTerm, fmt.Sprintf("Review data sources for %d brokers with low confidence scores", lowConf))
	}
	rec.ShortTerm = append(rec.ShortTerm,
		"Schedule recurring verification for high-traffic brokers",
		"Route critical discrepancy alerts to a webhook",
	)
	rec.LongTerm = []string{
		"Add extractors for frequently cited review sites",
		"Track data quality targets per field over time",
		"Automate corrections for recurring high-confidence discrepancies",
	}
	return rec
}

// Write encodes the report as indented JSON.
func Write(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return eris.Wrap(err, "report: encode")
	}
	return nil
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	criticalStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// RenderTable writes a terminal summary of the report.
func RenderTable(w io.Writer, r Report) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Broker Verification Report") + "\n")
	b.WriteString(mutedStyle.Render(r.GeneratedAt.Format(time.RFC3339)) + "\n\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\n", headerStyle.Render("Outcome"), headerStyle.Render("Brokers"), headerStyle.Render("Share"))
	for _, row := range []struct {
		label string
		n     int
	}{
		{"Verified", r.Summary.Verified},
		{"With discrepancies", r.Summary.WithDiscrepancies},
		{"Needs review", r.Summary.NeedsReview},
		{"Failed", r.Summary.Failed},
		{"Total", r.Summary.Total},
	} {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", row.label, row.n, percent(row.n, r.Summary.Total))
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "report: flush summary")
	}

	fmt.Fprintf(&b, "\nAverage confidence: %.1f%%\n", r.Summary.AverageConfidence*100)
	fmt.Fprintf(&b, "Processing time: %s\n", r.Summary.TotalProcessingTime.Round(time.Millisecond))

	fmt.Fprintf(&b, "\n%s\n", headerStyle.Render("Data quality"))
	fmt.Fprintf(&b, "Discrepancies: %d\n", r.Quality.TotalDiscrepancies)
	critical := fmt.Sprintf("Critical: %d", r.Quality.Critical)
	if r.Quality.Critical > 0 {
		critical = criticalStyle.Render(critical)
	}
	b.WriteString(critical + "\n")
	fmt.Fprintf(&b, "High: %d\n", r.Quality.High)

	if len(r.Quality.ByField) > 0 {
		fields := make([]string, 0, len(r.Quality.ByField))
		for f := range r.Quality.ByField {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		fmt.Fprintf(&b, "\n%s\n", headerStyle.Render("By field"))
		tw = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		for _, f := range fields {
			fmt.Fprintf(tw, "%s\t%d\n", f, r.Quality.ByField[f])
		}
		if err := tw.Flush(); err != nil {
			return eris.Wrap(err, "report: flush fields")
		}
	}

	if len(r.Quality.TopProblematic) > 0 {
		fmt.Fprintf(&b, "\n%s\n", headerStyle.Render("Top problematic brokers"))
		for i, p := range r.Quality.TopProblematic {
			fmt.Fprintf(&b, "%2d. %s: %d issues (%.1f%% confidence)\n", i+1, p.Name, p.Issues, p.Confidence*100)
		}
	}

	writeList(&b, "Immediate", r.Recommendations.Immediate)
	writeList(&b, "Short term", r.Recommendations.ShortTerm)
	writeList(&b, "Long term", r.Recommendations.LongTerm)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "report: write table")
	}
	return nil
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n", headerStyle.Render(title))
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}

func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}
