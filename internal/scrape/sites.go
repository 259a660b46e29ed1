package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/broker-verify/internal/model"
)

type forexPeaceArmy struct{}

func (forexPeaceArmy) Domain() string { return "forexpeacearmy.com" }

func (forexPeaceArmy) Extract(doc *goquery.Document, _ *Page, _ Target) model.ScrapedBrokerData {
	var data model.ScrapedBrokerData
	confidence := 0.3

	if v, ok := parseDecimal(firstText(doc, ".rating-value, .broker-rating")); ok {
		data.Rating = model.Float64(v)
		confidence += 0.2
	}
	if text := strings.TrimSpace(doc.Find(".regulation, .regulatory-info").Text()); text != "" {
		data.Regulation = ExtractRegulators(text)
		confidence += 0.2
	}
	if pros := listTexts(doc, ".pros li, .positive-features li"); len(pros) > 0 {
		data.Pros = pros
		confidence += 0.1
	}
	if cons := listTexts(doc, ".cons li, .negative-features li"); len(cons) > 0 {
		data.Cons = cons
		confidence += 0.1
	}
	if summary := firstText(doc, ".review-summary, .broker-overview"); len(summary) > 50 {
		data.Summary = truncate(collapseSpace(summary), maxSummaryRunes)
		confidence += 0.1
	}

	data.Confidence = capConfidence(confidence)
	return data
}

type fxEmpire struct{}

func (fxEmpire) Domain() string { return "fxempire.com" }

func (fxEmpire) Extract(doc *goquery.Document, _ *Page, _ Target) model.ScrapedBrokerData {
	var data model.ScrapedBrokerData
	confidence := 0.4

	if v, ok := parseAmount(doc.Find(".minimum-deposit, .min-deposit").Text()); ok {
		data.MinDeposit = model.Float64(v)
		confidence += 0.2
	}

	doc.Find(".spread-info tr, .trading-costs tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		pair := strings.TrimSpace(cells.Eq(0).Text())
		spread, ok := parseDecimal(cells.Eq(1).Text())
		if pair != "" && ok {
			data.Spreads = append(data.Spreads, model.SpreadQuote{Pair: pair, Spread: spread})
		}
	})
	if len(data.Spreads) > 0 {
		confidence += 0.2
	}

	if text := strings.TrimSpace(doc.Find(".platforms, .trading-platforms").Text()); text != "" {
		data.Platforms = ExtractPlatforms(text)
		confidence += 0.1
	}

	data.Confidence = capConfidence(confidence)
	return data
}

type babyPips struct{}

func (babyPips) Domain() string { return "babypips.com" }

func (babyPips) Extract(doc *goquery.Document, _ *Page, target Target) model.ScrapedBrokerData {
	var data model.ScrapedBrokerData
	confidence := 0.3

	if content := doc.Find(".post-content, .article-content").Text(); len(content) > 100 {
		data.Summary = truncate(RelevantSentences(content, target.BrokerName), maxSummaryRunes)
		confidence += 0.2
	}
	if text := doc.Find(".broker-features, .features-list").Text(); text != "" {
		if features := ExtractFeatures(text); len(features) > 0 {
			data.Pros = features
			data.Features = features
			confidence += 0.2
		}
	}

	data.Confidence = capConfidence(confidence)
	return data
}

type dailyFX struct{}

func (dailyFX) Domain() string { return "dailyfx.com" }

func (dailyFX) Extract(doc *goquery.Document, _ *Page, target Target) model.ScrapedBrokerData {
	var data model.ScrapedBrokerData
	confidence := 0.3

	if content := doc.Find(".article-body, .content-body").Text(); len(content) > 100 {
		data.Summary = truncate(RelevantSentences(content, target.BrokerName), maxSummaryRunes)
		confidence += 0.2
	}

	data.Confidence = capConfidence(confidence)
	return data
}
