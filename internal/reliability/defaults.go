package reliability

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/broker-verify/internal/model"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type knownSource struct {
	Domain   string               `yaml:"domain"`
	Name     string               `yaml:"name"`
	Category model.SourceCategory `yaml:"category"`
	Score    float64              `yaml:"score"`
}

type seedSource struct {
	Domain      string  `yaml:"domain"`
	SuccessRate float64 `yaml:"success_rate"`
}

// Table is the static knowledge about source domains: default scores,
// display names, categories and first-run seeds.
type Table struct {
	Sources []knownSource `yaml:"sources"`
	Seeds   []seedSource  `yaml:"seeds"`
}

// LoadTable parses a defaults document in the embedded format.
func LoadTable(raw []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, eris.Wrap(err, "reliability: parse defaults")
	}
	for i := range t.Sources {
		t.Sources[i].Domain = NormalizeDomain(t.Sources[i].Domain)
	}
	return &t, nil
}

// DefaultTable returns the embedded table.
func DefaultTable() *Table {
	t, err := LoadTable(defaultsYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// lookup finds the known entry for domain: exact match first, then the
// first entry that contains or is contained by domain.
func (t *Table) lookup(domain string) (knownSource, bool) {
	if domain == "" {
		return knownSource{}, false
	}
	for _, s := range t.Sources {
		if s.Domain == domain {
			return s, true
		}
	}
	for _, s := range t.Sources {
		if strings.Contains(domain, s.Domain) || strings.Contains(s.Domain, domain) {
			return s, true
		}
	}
	return knownSource{}, false
}

// DefaultScore is the score an unseen domain starts with.
func (t *Table) DefaultScore(domain string) float64 {
	domain = NormalizeDomain(domain)
	if s, ok := t.lookup(domain); ok {
		return s.Score
	}
	switch {
	case strings.Contains(domain, ".gov"):
		return 9
	case strings.Contains(domain, ".edu"):
		return 7
	case strings.Contains(domain, ".org"):
		return 6
	case strings.Contains(domain, "broker"), strings.Contains(domain, "trading"):
		return 5
	}
	return 4
}

// Categorize assigns a category to domain.
func (t *Table) Categorize(domain string) model.SourceCategory {
	domain = NormalizeDomain(domain)
	if s, ok := t.lookup(domain); ok {
		return s.Category
	}
	switch {
	case strings.Contains(domain, ".gov"):
		return model.CategoryRegulatory
	case strings.Contains(domain, "trustpilot"):
		return model.CategoryReview
	}
	return model.CategoryBrokerOfficial
}

// DisplayName returns a human name for domain.
func (t *Table) DisplayName(domain string) string {
	domain = NormalizeDomain(domain)
	for _, s := range t.Sources {
		if s.Domain == domain {
			return s.Name
		}
	}
	return strings.ToUpper(strings.TrimSuffix(domain, ".com"))
}

// NormalizeDomain lowercases and strips a leading "www.".
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(d, "www.")
}
