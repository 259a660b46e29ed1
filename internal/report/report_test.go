package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/broker-verify/internal/model"
)

func result(name string, status model.VerificationStatus, conf float64, sevs ...model.Severity) *model.VerificationResult {
	res := &model.VerificationResult{
		BrokerName:        name,
		Status:            status,
		OverallConfidence: conf,
		ProcessingTime:    time.Second,
	}
	for i, s := range sevs {
		res.Discrepancies = append(res.Discrepancies, model.FieldDiscrepancy{
			Field:    []string{"minDeposit", "regulators", "headquarters"}[i%3],
			Severity: s,
		})
	}
	return res
}

func batch() []*model.VerificationResult {
	return []*model.VerificationResult{
		result("Pepperstone", model.StatusVerified, 0.9),
		result("Acme FX", model.StatusNeedsReview, 0.5, model.SeverityCritical, model.SeverityHigh),
		nil,
		result("Tickmill", model.StatusDiscrepanciesFound, 0.8, model.SeverityHigh, model.SeverityLow, model.SeverityMedium),
		result("Ghost", model.StatusFailed, 0),
	}
}

func TestBuild(t *testing.T) {
	r := Build(batch())

	assert.Equal(t, 4, r.Summary.Total)
	assert.Equal(t, 1, r.Summary.Verified)
	assert.Equal(t, 1, r.Summary.WithDiscrepancies)
	assert.Equal(t, 1, r.Summary.NeedsReview)
	assert.Equal(t, 1, r.Summary.Failed)
	assert.InDelta(t, 0.55, r.Summary.AverageConfidence, 1e-9)
	assert.Equal(t, 4*time.Second, r.Summary.TotalProcessingTime)

	assert.Equal(t, 5, r.Quality.TotalDiscrepancies)
	assert.Equal(t, 1, r.Quality.Critical)
	assert.Equal(t, 2, r.Quality.High)
	assert.Equal(t, map[string]int{"minDeposit": 2, "regulators": 2, "headquarters": 1}, r.Quality.ByField)
	assert.Equal(t, []BrokerIssues{
		{Name: "Tickmill", Issues: 3, Confidence: 0.8},
		{Name: "Acme FX", Issues: 2, Confidence: 0.5},
	}, r.Quality.TopProblematic)
	assert.Len(t, r.Results, 4)

	assert.Equal(t, []string{
		"Address 1 critical data discrepancies immediately",
		"Investigate 1 brokers that failed verification",
	}, r.Recommendations.Immediate)
	assert.Equal(t, "Review data sources for 2 brokers with low confidence scores", r.Recommendations.ShortTerm[0])
	assert.NotEmpty(t, r.Recommendations.LongTerm)
}

func TestBuild_Empty(t *testing.T) {
	r := Build(nil)
	assert.Zero(t, r.Summary.Total)
	assert.Zero(t, r.Summary.AverageConfidence)
	assert.Empty(t, r.Recommendations.Immediate)
	assert.NotNil(t, r.Quality.TopProblematic)
}

func TestBuild_TopProblematicCapped(t *testing.T) {
	var results []*model.VerificationResult
	for i := 0; i < 15; i++ {
		results = append(results, result("b", model.StatusDiscrepanciesFound, 0.8, model.SeverityHigh))
	}
	r := Build(results)
	assert.Len(t, r.Quality.TopProblematic, 10)
	assert.Contains(t, r.Recommendations.Immediate, "Priority review needed for 15 high-severity issues")
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Build(batch())))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	summary := decoded["summary"].(map[string]any)
	assert.Equal(t, 4.0, summary["total"])
	assert.Contains(t, decoded, "recommendations")
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderTable(&buf, Build(batch())))

	out := buf.String()
	assert.Contains(t, out, "Broker Verification Report")
	assert.Contains(t, out, "25.0%")
	assert.Contains(t, out, "Average confidence: 55.0%")
	assert.Contains(t, out, "Critical: 1")
	assert.Contains(t, out, "Tickmill: 3 issues (80.0% confidence)")
	assert.Contains(t, out, "Investigate 1 brokers that failed verification")
}
