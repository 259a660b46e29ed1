package scrape

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/sells-group/broker-verify/internal/model"
)

var regulationKeywords = []string{"regulated", "fca", "asic", "cysec", "license"}

// genericExtractor handles any site without a dedicated extractor. It only
// trusts pages that mention the broker at least twice.
type genericExtractor struct{}

func (genericExtractor) Domain() string { return "" }

func (genericExtractor) Extract(doc *goquery.Document, page *Page, target Target) model.ScrapedBrokerData {
	var data model.ScrapedBrokerData

	name := strings.ToLower(strings.TrimSpace(target.BrokerName))
	rawBody := doc.Find("body").Text()
	body := strings.ToLower(rawBody)
	mentions := 0
	if name != "" {
		mentions = strings.Count(body, name)
	}
	if mentions < 2 {
		return data
	}

	confidence := 0.1 + min(float64(mentions)*0.05, 0.3)
	snippet := target.Result.Snippet
	lowerSnippet := strings.ToLower(snippet)

	if v, ok := parseSnippetDeposit(snippet); ok {
		data.MinDeposit = model.Float64(v)
		confidence += 0.1
	}
	for _, kw := range regulationKeywords {
		if strings.Contains(lowerSnippet, kw) {
			data.Regulation = ExtractRegulators(snippet)
			confidence += 0.1
			break
		}
	}
	if len(snippet) > 50 {
		data.Summary = snippet
		confidence += 0.1
	}

	article := articleText(page)
	if data.Summary == "" && article != "" {
		data.Summary = truncate(RelevantSentences(article, target.BrokerName), maxSummaryRunes)
	}
	text := article
	if text == "" {
		text = rawBody
	}
	data.Platforms = ExtractPlatforms(text)
	if year, ok := ExtractFoundingYear(text); ok {
		data.FoundingYear = model.Int(year)
	}
	data.Headquarters = ExtractHeadquarters(text)

	data.Confidence = capConfidence(confidence)
	return data
}

// articleText returns the readable main text of page, or "" when none can
// be extracted.
func articleText(page *Page) string {
	if page == nil || len(page.Body) == 0 {
		return ""
	}
	parsedURL, err := url.Parse(page.URL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(page.Body), parsedURL)
	if err != nil {
		zap.L().Debug("scrape: readability failed", zap.String("url", page.URL), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}
