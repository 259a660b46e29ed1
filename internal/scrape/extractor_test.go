package scrape

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/broker-verify/internal/model"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

const fpaPage = `<html><body>
<div class="broker-rating">4.5</div>
<div class="regulatory-info">Regulated by FCA and ASIC</div>
<ul class="pros"><li>Low spreads</li><li> Fast   execution </li></ul>
<ul class="cons"><li>Limited products</li></ul>
<div class="review-summary">Pepperstone is an Australian broker with tight spreads, fast execution and good support.</div>
</body></html>`

func TestForexPeaceArmy(t *testing.T) {
	data := forexPeaceArmy{}.Extract(docFrom(t, fpaPage), nil, Target{BrokerName: "Pepperstone"})

	require.NotNil(t, data.Rating)
	assert.Equal(t, 4.5, *data.Rating)
	assert.Equal(t, []string{"FCA", "ASIC"}, data.Regulation)
	assert.Equal(t, []string{"Low spreads", "Fast execution"}, data.Pros)
	assert.Equal(t, []string{"Limited products"}, data.Cons)
	assert.Contains(t, data.Summary, "Australian broker")
	assert.InDelta(t, 1.0, data.Confidence, 1e-9)
}

func TestForexPeaceArmy_EmptyPage(t *testing.T) {
	data := forexPeaceArmy{}.Extract(docFrom(t, "<html><body></body></html>"), nil, Target{})
	assert.InDelta(t, 0.3, data.Confidence, 1e-9)
	assert.Nil(t, data.Rating)
}

const fxEmpirePage = `<html><body>
<span class="min-deposit">Minimum deposit: $1,000</span>
<table class="spread-info">
<tr><th>Pair</th><th>Spread</th></tr>
<tr><td>EUR/USD</td><td>0.6 pips</td></tr>
<tr><td>GBP/USD</td><td>n/a</td></tr>
</table>
<div class="trading-platforms">MT4, MT5 and cTrader</div>
</body></html>`

func TestFXEmpire(t *testing.T) {
	data := fxEmpire{}.Extract(docFrom(t, fxEmpirePage), nil, Target{BrokerName: "IC Markets"})

	require.NotNil(t, data.MinDeposit)
	assert.Equal(t, 1000.0, *data.MinDeposit)
	assert.Equal(t, []model.SpreadQuote{{Pair: "EUR/USD", Spread: 0.6}}, data.Spreads)
	assert.Equal(t, []string{"MT4", "MT5", "cTrader"}, data.Platforms)
	assert.InDelta(t, 0.9, data.Confidence, 1e-9)
}

func TestBabyPips(t *testing.T) {
	content := "OANDA is a long-standing broker. It has been around for decades and is known for transparent pricing. OANDA offers a demo account."
	html := `<html><body><div class="post-content">` + content + `</div>
<ul class="features-list">
<li>Demo account</li>
<li>Mobile app</li>
</ul></body></html>`

	data := babyPips{}.Extract(docFrom(t, html), nil, Target{BrokerName: "OANDA"})

	assert.Equal(t, "OANDA is a long-standing broker. OANDA offers a demo account", data.Summary)
	assert.Equal(t, []string{"demo account", "mobile app"}, data.Pros)
	assert.InDelta(t, 0.7, data.Confidence, 1e-9)
}

func TestDailyFX(t *testing.T) {
	content := strings.Repeat("Markets moved today. ", 5) + "IG reported record client numbers."
	html := `<html><body><div class="article-body">` + content + `</div></body></html>`

	data := dailyFX{}.Extract(docFrom(t, html), nil, Target{BrokerName: "IG"})
	assert.Equal(t, "IG reported record client numbers", data.Summary)
	assert.InDelta(t, 0.5, data.Confidence, 1e-9)

	empty := dailyFX{}.Extract(docFrom(t, "<html></html>"), nil, Target{BrokerName: "IG"})
	assert.InDelta(t, 0.3, empty.Confidence, 1e-9)
}

func TestGenericExtractor_Irrelevant(t *testing.T) {
	html := `<html><body>Pepperstone is mentioned once.</body></html>`
	data := genericExtractor{}.Extract(docFrom(t, html), &Page{URL: "https://example.com/x", Body: []byte(html)},
		Target{BrokerName: "Pepperstone", Result: model.SearchResult{Snippet: "Pepperstone $200 minimum deposit"}})

	assert.Equal(t, 0.0, data.Confidence)
	assert.Nil(t, data.MinDeposit)
}

func TestGenericExtractor_Relevant(t *testing.T) {
	html := `<html><body><article><p>Pepperstone review. Pepperstone supports MetaTrader 4 and cTrader.
Pepperstone is popular with scalpers.</p></article></body></html>`
	snippet := "Pepperstone offers a $200 minimum deposit and is regulated by the FCA and ASIC."

	data := genericExtractor{}.Extract(docFrom(t, html), &Page{URL: "https://example.com/review", Body: []byte(html)},
		Target{BrokerName: "Pepperstone", Result: model.SearchResult{Snippet: snippet}})

	require.NotNil(t, data.MinDeposit)
	assert.Equal(t, 200.0, *data.MinDeposit)
	assert.Equal(t, []string{"FCA", "ASIC"}, data.Regulation)
	assert.Equal(t, snippet, data.Summary)
	assert.Contains(t, data.Platforms, "cTrader")
	// 0.1 base + 3 mentions x 0.05 + deposit + regulation + summary
	assert.InDelta(t, 0.55, data.Confidence, 1e-9)
}

func TestGenericExtractor_CompanyFacts(t *testing.T) {
	html := `<html><body><p>About Tickmill. Tickmill was founded in 2014 and is headquartered in London, United Kingdom.</p></body></html>`
	data := genericExtractor{}.Extract(docFrom(t, html), nil, Target{BrokerName: "Tickmill"})

	require.NotNil(t, data.FoundingYear)
	assert.Equal(t, 2014, *data.FoundingYear)
	assert.Equal(t, "London, United Kingdom", data.Headquarters)
}

func TestGenericExtractor_MentionBonusCapped(t *testing.T) {
	html := "<html><body>" + strings.Repeat("XTB ", 20) + "</body></html>"
	data := genericExtractor{}.Extract(docFrom(t, html), nil, Target{BrokerName: "XTB"})
	assert.InDelta(t, 0.4, data.Confidence, 1e-9)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	ext, ok := r.Lookup("forexpeacearmy.com")
	require.True(t, ok)
	assert.Equal(t, "forexpeacearmy.com", ext.Domain())

	ext, ok = r.Lookup("uk.FXEmpire.com")
	require.True(t, ok)
	assert.Equal(t, "fxempire.com", ext.Domain())

	_, ok = r.Lookup("example.com")
	assert.False(t, ok)

	r.Register(stubExtractor{domain: "example.com", confidence: 0.9})
	_, ok = r.Lookup("example.com")
	assert.True(t, ok)
	assert.Len(t, r.Domains(), 5)
}

type stubExtractor struct {
	domain     string
	confidence float64
	panics     bool
}

func (s stubExtractor) Domain() string { return s.domain }

func (s stubExtractor) Extract(doc *goquery.Document, _ *Page, _ Target) model.ScrapedBrokerData {
	if s.panics {
		panic("selector exploded")
	}
	return model.ScrapedBrokerData{Summary: firstText(doc, "h1"), Confidence: s.confidence}
}
