package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/broker-verify/internal/model"
	"github.com/sells-group/broker-verify/internal/reliability"
)

var (
	sourcesPurpose  string
	sourcesCategory string
	sourcesLimit    int
	sourcesJSON     bool
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and manage source reliability",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known source, most reliable first",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initVerifier(cmd.Context(), "sources")
		if err != nil {
			return err
		}
		defer env.Close()

		var all []model.DataSource
		if sourcesCategory != "" {
			all, err = env.Reliability.GetSourcesByCategory(cmd.Context(), model.SourceCategory(sourcesCategory))
		} else {
			all, err = env.Reliability.GetAllSources(cmd.Context())
		}
		if err != nil {
			return err
		}
		return printSources(cmd.OutOrStdout(), all)
	},
}

var sourcesRecommendedCmd = &cobra.Command{
	Use:   "recommended",
	Short: "List the best sources for a purpose (regulation, pricing, review)",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initVerifier(cmd.Context(), "sources")
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Reliability.GetRecommendedSources(cmd.Context(), reliability.Purpose(sourcesPurpose))
		if err != nil {
			return err
		}
		return printSources(cmd.OutOrStdout(), recs)
	},
}

var sourcesMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarize the reliability table",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initVerifier(cmd.Context(), "sources")
		if err != nil {
			return err
		}
		defer env.Close()

		m, err := env.Reliability.GetReliabilityMetrics(cmd.Context())
		if err != nil {
			return err
		}
		return printMetrics(cmd.OutOrStdout(), m)
	},
}

var sourcesHistoryCmd = &cobra.Command{
	Use:   "history [domain]",
	Short: "Show recent reliability updates for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initVerifier(cmd.Context(), "sources")
		if err != nil {
			return err
		}
		defer env.Close()

		rows, err := env.Store.ListVerifications(cmd.Context(), reliability.NormalizeDomain(args[0]), sourcesLimit)
		if err != nil {
			return err
		}
		return printHistory(cmd.OutOrStdout(), rows)
	},
}

var sourcesImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Bulk load data sources from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		sources, err := decodeSources(raw, time.Now().UTC())
		if err != nil {
			return err
		}

		env, err := initVerifier(cmd.Context(), "sources")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.UpsertSources(cmd.Context(), sources)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d sources\n", n)
		return err
	},
}

var sourcesDeactivateCmd = &cobra.Command{
	Use:   "deactivate [domain]",
	Short: "Stop recommending a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initVerifier(cmd.Context(), "sources")
		if err != nil {
			return err
		}
		defer env.Close()
		return env.Reliability.DeactivateSource(cmd.Context(), args[0])
	},
}

// decodeSources parses an import file. Domains are normalized and missing
// timestamps set to now; imported sources are active unless stated.
func decodeSources(raw []byte, now time.Time) ([]model.DataSource, error) {
	var entries []struct {
		model.DataSource
		Active *bool `json:"is_active"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, eris.Wrap(err, "decode sources")
	}
	out := make([]model.DataSource, 0, len(entries))
	for i, e := range entries {
		src := e.DataSource
		src.Domain = reliability.NormalizeDomain(src.Domain)
		if src.Domain == "" {
			return nil, eris.Errorf("source %d has no domain", i)
		}
		if src.ReliabilityScore < 1 || src.ReliabilityScore > 10 {
			return nil, eris.Errorf("source %s: reliability_score must be between 1 and 10", src.Domain)
		}
		src.IsActive = e.Active == nil || *e.Active
		if src.CreatedAt.IsZero() {
			src.CreatedAt = now
		}
		if src.UpdatedAt.IsZero() {
			src.UpdatedAt = now
		}
		out = append(out, src)
	}
	return out, nil
}

func printSources(w io.Writer, sources []model.DataSource) error {
	if sourcesJSON {
		return writeJSON(w, sources)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("Domain"),
		headerStyle.Render("Category"),
		headerStyle.Render("Score"),
		headerStyle.Render("Success"),
		headerStyle.Render("Checks"),
		headerStyle.Render("Active"))
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
		strings.Repeat("─", 20), strings.Repeat("─", 15), strings.Repeat("─", 5),
		strings.Repeat("─", 7), strings.Repeat("─", 6), strings.Repeat("─", 6))
	for _, s := range sources {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.0f%%\t%d\t%t\n",
			s.Domain, s.Category, s.ReliabilityScore, s.SuccessRate*100, s.TotalChecks, s.IsActive)
	}
	return eris.Wrap(tw.Flush(), "flush sources table")
}

func printMetrics(w io.Writer, m *reliability.Metrics) error {
	if sourcesJSON {
		return writeJSON(w, m)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", headerStyle.Render("Source reliability"))
	fmt.Fprintf(&b, "Sources: %d\n", m.TotalSources)
	fmt.Fprintf(&b, "Average score: %.2f\n", m.AverageReliability)
	fmt.Fprintf(&b, "Updated in the last 7 days: %d\n", m.RecentUpdates)

	cats := make([]string, 0, len(m.CategoryBreakdown))
	for c := range m.CategoryBreakdown {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	fmt.Fprintf(&b, "\n%s\n", headerStyle.Render("By category"))
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, c := range cats {
		st := m.CategoryBreakdown[model.SourceCategory(c)]
		fmt.Fprintf(tw, "%s\t%d\t%.2f\n", c, st.Count, st.AverageScore)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "flush categories")
	}

	for _, list := range []struct {
		title   string
		sources []model.DataSource
	}{{"Most reliable", m.TopReliable}, {"Least reliable", m.BottomReliable}} {
		if len(list.sources) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", headerStyle.Render(list.title))
		for _, s := range list.sources {
			fmt.Fprintf(&b, "  %s (%.2f)\n", s.Domain, s.ReliabilityScore)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func printHistory(w io.Writer, rows []model.SourceVerification) error {
	if sourcesJSON {
		return writeJSON(w, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("When"),
		headerStyle.Render("Broker"),
		headerStyle.Render("Field"),
		headerStyle.Render("Accurate"),
		headerStyle.Render("Score"))
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%.2f -> %.2f\n",
			r.CreatedAt.Format(time.RFC3339), r.BrokerID, r.Field, r.IsAccurate, r.ScoreBefore, r.ScoreAfter)
	}
	return eris.Wrap(tw.Flush(), "flush history table")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}

func init() {
	sourcesCmd.PersistentFlags().BoolVar(&sourcesJSON, "json", false, "print JSON instead of a table")
	sourcesRecommendedCmd.Flags().StringVar(&sourcesPurpose, "purpose", "review", "regulation, pricing or review")
	sourcesListCmd.Flags().StringVar(&sourcesCategory, "category", "", "only list one category")
	sourcesHistoryCmd.Flags().IntVar(&sourcesLimit, "limit", 20, "max rows")
	sourcesCmd.AddCommand(sourcesListCmd, sourcesRecommendedCmd, sourcesMetricsCmd, sourcesHistoryCmd, sourcesImportCmd, sourcesDeactivateCmd)
	rootCmd.AddCommand(sourcesCmd)
}
