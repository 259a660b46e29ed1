//go:build property
// +build property

package reliability

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sells-group/broker-verify/internal/model"
)

func TestScoreFollowsFeedback(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("confident accurate feedback never lowers the score", prop.ForAll(
		func(start float64, total, successes, rounds int) bool {
			repo := NewMemoryRepository()
			m := NewManager(repo)
			ctx := context.Background()
			_ = repo.UpsertSource(ctx, model.DataSource{
				Domain:           "example.com",
				ReliabilityScore: start,
				TotalChecks:      total,
				SuccessfulChecks: min(successes, total),
				IsActive:         true,
			})
			prev := start
			for i := 0; i < rounds; i++ {
				src, err := m.UpdateSourceReliability(ctx, "example.com", true, 0.9, Outcome{})
				if err != nil || src.ReliabilityScore < prev {
					return false
				}
				prev = src.ReliabilityScore
			}
			return true
		},
		gen.Float64Range(1, 10).Map(func(v float64) float64 { return float64(int(v*10)) / 10 }),
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
		gen.IntRange(1, 15),
	))

	properties.Property("accurate feedback at any confidence never lowers the score", prop.ForAll(
		func(current, successRate, confidence float64, total int) bool {
			return nextScore(current, successRate, total, true, confidence) >= current
		},
		gen.Float64Range(1, 10).Map(func(v float64) float64 { return float64(int(v*10)) / 10 }),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.IntRange(1, 200),
	))

	properties.Property("inaccurate feedback never raises the score", prop.ForAll(
		func(current, successRate float64, total int) bool {
			return nextScore(current, successRate, total, false, 0.9) <= current
		},
		gen.Float64Range(1, 10).Map(func(v float64) float64 { return float64(int(v*10)) / 10 }),
		gen.Float64Range(0, 1),
		gen.IntRange(1, 200),
	))

	properties.Property("scores stay within bounds", prop.ForAll(
		func(current, successRate, confidence float64, total int, accurate bool) bool {
			s := nextScore(current, successRate, total, accurate, confidence)
			return s >= minScore && s <= maxScore
		},
		gen.Float64Range(1, 10),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.IntRange(1, 200),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
