package fieldrule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareFieldValues_Numbers(t *testing.T) {
	v := New()

	tests := []struct {
		name      string
		field     string
		db, web   any
		match     bool
		exceeded  bool
		wantConf  float64
	}{
		{"identical", "minDeposit", 100, 100.0, true, false, 1.0},
		{"at tolerance", "minDeposit", 100, 150, true, false, 0.6},
		{"inside tolerance", "minDeposit", 100, 125, true, false, 0.75},
		{"far outside", "minDeposit", 100, 500, false, true, 0.0},
		{"just outside", "minDeposit", 100, 175, false, true, 0.1},
		{"founding year off by one", "foundingYear", 2010, 2011, true, false, 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.CompareFieldValues(tt.field, tt.db, tt.web)
			assert.Equal(t, tt.match, res.IsMatch)
			assert.Equal(t, tt.exceeded, res.ToleranceExceeded)
			assert.InDelta(t, tt.wantConf, res.Confidence, 0.0001)
			require.NotNil(t, res.Difference)
		})
	}
}

func TestCompareFieldValues_ToleranceBoundary(t *testing.T) {
	v := New()

	at := v.CompareFieldValues("eurUsdSpread", 1.0, 1.5)
	assert.True(t, at.IsMatch)
	assert.False(t, at.ToleranceExceeded)

	over := v.CompareFieldValues("eurUsdSpread", 1.0, 1.5001)
	assert.False(t, over.IsMatch)
	assert.True(t, over.ToleranceExceeded)
}

func TestCompareFieldValues_Strings(t *testing.T) {
	v := New()

	res := v.CompareFieldValues("name", "Acme FX", "acme fx!")
	assert.True(t, res.IsMatch)
	assert.InDelta(t, 1.0, res.Confidence, 0.0001)
	assert.Equal(t, "acme fx", res.NormalizedDB)

	res = v.CompareFieldValues("headquarters", "London, UK", "london uk")
	assert.True(t, res.IsMatch)

	res = v.CompareFieldValues("headquarters", "London", "Londn")
	assert.False(t, res.IsMatch)
	assert.InDelta(t, (5.0/6.0)*0.8, res.Confidence, 0.0001)
	assert.Contains(t, res.Issues, "Values are similar but not identical")

	res = v.CompareFieldValues("headquarters", "London", "Sydney")
	assert.False(t, res.IsMatch)
	assert.Contains(t, res.Issues, "Values are significantly different")
}

func TestCompareFieldValues_Arrays(t *testing.T) {
	v := New()

	res := v.CompareFieldValues("regulators", []string{"FCA", "ASIC"}, []string{"fca"})
	assert.False(t, res.IsMatch)
	assert.InDelta(t, 0.5*0.9*1.1, res.Confidence, 0.0001)
	assert.Contains(t, res.Issues, "Arrays have 50% similarity")

	res = v.CompareFieldValues("regulators", []string{"ASIC", "FCA"}, []any{"fca ", "asic"})
	assert.True(t, res.IsMatch)
	assert.InDelta(t, 1.0, res.Confidence, 0.0001)

	res = v.CompareFieldValues("platforms", []string{"MT4", "MT5", "cTrader", "TradingView", "Web Platform"},
		[]string{"MT4", "MT5", "cTrader", "TradingView"})
	assert.True(t, res.IsMatch)
	assert.InDelta(t, 0.8*0.9, res.Confidence, 0.0001)
}

func TestCompareFieldValues_Missing(t *testing.T) {
	v := New()

	res := v.CompareFieldValues("headquarters", nil, "")
	assert.True(t, res.IsMatch)
	assert.InDelta(t, 0.9, res.Confidence, 0.0001)

	res = v.CompareFieldValues("headquarters", nil, "London")
	assert.False(t, res.IsMatch)
	assert.InDelta(t, 0.1, res.Confidence, 0.0001)
	assert.Contains(t, res.Issues, "Database value is missing")

	var missing *float64
	res = v.CompareFieldValues("minDeposit", 100, missing)
	assert.False(t, res.IsMatch)
	assert.InDelta(t, 0.3, res.Confidence, 0.0001)
	assert.Contains(t, res.Issues, "Web value is missing")
}

func TestCompareFieldValues_PriorityNudge(t *testing.T) {
	v := New()

	critical := v.CompareFieldValues("name", nil, nil)
	assert.InDelta(t, 0.99, critical.Confidence, 0.0001)

	low := v.CompareFieldValues("description", nil, nil)
	assert.InDelta(t, 0.81, low.Confidence, 0.0001)
}

func TestCompareFieldValues_MixedTypes(t *testing.T) {
	v := New()

	res := v.CompareFieldValues("unknownField", true, false)
	assert.False(t, res.IsMatch)
	assert.InDelta(t, 0.2, res.Confidence, 0.0001)

	res = v.CompareFieldValues("unknownField", true, true)
	assert.True(t, res.IsMatch)
	assert.InDelta(t, 1.0, res.Confidence, 0.0001)

	res = v.CompareFieldValues("unknownField", 3, 3)
	assert.True(t, res.IsMatch)
}

func TestCompareFieldValues_ZeroToleranceNumbers(t *testing.T) {
	res := CompareValues(nil, "custom", 1, 2)
	assert.False(t, res.IsMatch)
	assert.True(t, res.ToleranceExceeded)
	assert.InDelta(t, 0.0, res.Confidence, 0.0001)
}

func TestStringSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, StringSimilarity("abc", "abc"), 0.0001)
	assert.InDelta(t, 0.0, StringSimilarity("", "abc"), 0.0001)
	assert.InDelta(t, 2.0/3.0, StringSimilarity("abc", "abd"), 0.0001)
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a", "a"}), 0.0001)
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 0.0001)
	assert.InDelta(t, 0.0, Jaccard(nil, nil), 0.0001)
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, 5.0, Canonical(5))
	assert.Equal(t, 5.0, Canonical(int64(5)))
	assert.Equal(t, 2.5, Canonical(float32(2.5)))
	f := 12.0
	assert.Equal(t, 12.0, Canonical(&f))
	assert.Nil(t, Canonical((*int)(nil)))
	assert.Nil(t, Canonical(""))
	assert.Nil(t, Canonical([]string{}))
	assert.Equal(t, []string{"FCA", "1"}, Canonical([]any{"FCA", 1}))
}
