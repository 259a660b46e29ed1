package verify

import (
	"github.com/sells-group/broker-verify/internal/fieldrule"
	"github.com/sells-group/broker-verify/internal/model"
)

// brokerFields maps a field name to its value on the stored record.
var brokerFields = map[string]func(b *model.Broker) any{
	"name":         func(b *model.Broker) any { return b.Name },
	"websiteUrl":   func(b *model.Broker) any { return b.Website },
	"foundingYear": func(b *model.Broker) any { return b.FoundingYear },
	"headquarters": func(b *model.Broker) any { return b.Headquarters },
	"description":  func(b *model.Broker) any { return b.Description },
	"logoUrl":      func(b *model.Broker) any { return b.LogoURL },
	"score":        func(b *model.Broker) any { return b.Score },
	"regulators":   func(b *model.Broker) any { return b.Regulation.Regulators },
	"minDeposit":   func(b *model.Broker) any { return b.Accessibility.MinDeposit },
	"eurUsdSpread": func(b *model.Broker) any { return b.TradingConditions.Spreads.EURUSD },
	"maxLeverage":  func(b *model.Broker) any { return b.TradingConditions.MaxLeverage },
	"platforms":    func(b *model.Broker) any { return b.Technology.Platforms },
}

// IsKnownField reports whether field can be read from a broker record.
func IsKnownField(field string) bool {
	_, ok := brokerFields[field]
	return ok
}

// brokerValue returns the canonical stored value of field, nil when unset.
func brokerValue(b *model.Broker, field string) any {
	get, ok := brokerFields[field]
	if !ok {
		return nil
	}
	return fieldrule.Canonical(get(b))
}

// webValue returns the canonical value of field in scraped data, nil when
// the page did not provide it.
func webValue(d *model.ScrapedBrokerData, field string) any {
	var v any
	switch field {
	case "name":
		v = d.BrokerName
	case "minDeposit":
		v = d.MinDeposit
	case "regulators":
		v = d.Regulation
	case "foundingYear":
		v = d.FoundingYear
	case "headquarters":
		v = d.Headquarters
	case "platforms":
		v = d.Platforms
	case "score":
		v = d.Rating
	case "eurUsdSpread":
		if s, ok := d.Spread("EUR/USD"); ok {
			v = s
		}
	}
	return fieldrule.Canonical(v)
}
