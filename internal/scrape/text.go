package scrape

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const maxSummaryRunes = 500

var (
	knownRegulators = []string{"FCA", "ASIC", "CySEC", "ESMA", "FSA", "FINRA", "SEC", "BaFin", "AMF", "CONSOB"}
	knownPlatforms  = []string{"MetaTrader 4", "MetaTrader 5", "MT4", "MT5", "cTrader", "TradingView", "Web Platform"}
	knownFeatures   = []string{
		"low spreads", "competitive spreads", "no commission", "fast execution",
		"24/7 support", "demo account", "educational resources", "mobile app",
		"API access", "copy trading", "social trading", "automated trading",
	}

	regulatorRes = wordMatchers(knownRegulators)
	platformRes  = wordMatchers(knownPlatforms)
	featureRes   = wordMatchers(knownFeatures)

	amountRe         = regexp.MustCompile(`\$?(\d+(?:,\d{3})*)`)
	snippetDepositRe = regexp.MustCompile(`\$?(\d+(?:,\d{3})*)\s*(?:minimum|min|deposit)`)
	decimalRe        = regexp.MustCompile(`\d+(?:\.\d+)?`)
	sentenceSplitRe  = regexp.MustCompile(`[.!?]+`)
	spaceRe          = regexp.MustCompile(`\s+`)
	foundedRe        = regexp.MustCompile(`(?i)\b(?:founded|established|launched)\s+in\s+((?:19|20)\d{2})\b`)
	headquartersRe   = regexp.MustCompile(`\b(?i:headquartered|based|head office is)\s+in\s+([A-Z][A-Za-z]+(?:,? [A-Z][A-Za-z]+){0,2})`)
)

func wordMatchers(terms []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(terms))
	for i, t := range terms {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(t) + `\b`)
	}
	return out
}

func matchTerms(text string, terms []string, res []*regexp.Regexp) []string {
	var found []string
	for i, re := range res {
		if re.MatchString(text) {
			found = append(found, terms[i])
		}
	}
	return found
}

// ExtractRegulators lists the known regulator acronyms mentioned in text.
func ExtractRegulators(text string) []string {
	return matchTerms(text, knownRegulators, regulatorRes)
}

// ExtractPlatforms lists the known trading platforms mentioned in text.
func ExtractPlatforms(text string) []string {
	return matchTerms(text, knownPlatforms, platformRes)
}

// ExtractFeatures lists the known broker features mentioned in text.
func ExtractFeatures(text string) []string {
	return matchTerms(text, knownFeatures, featureRes)
}

// RelevantSentences joins up to three sentences of text that mention the
// broker.
func RelevantSentences(text, brokerName string) string {
	name := strings.ToLower(strings.TrimSpace(brokerName))
	if name == "" {
		return ""
	}
	var picked []string
	for _, s := range sentenceSplitRe.Split(text, -1) {
		if strings.Contains(strings.ToLower(s), name) {
			picked = append(picked, collapseSpace(s))
			if len(picked) == 3 {
				break
			}
		}
	}
	return strings.TrimSpace(strings.Join(picked, ". "))
}

// parseAmount reads the first dollar amount in text ("$1,000" -> 1000).
func parseAmount(text string) (float64, bool) {
	m := amountRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return atof(m[1])
}

// parseSnippetDeposit reads an amount followed by a deposit keyword.
func parseSnippetDeposit(snippet string) (float64, bool) {
	m := snippetDepositRe.FindStringSubmatch(strings.ToLower(snippet))
	if m == nil {
		return 0, false
	}
	return atof(m[1])
}

// parseDecimal reads the first decimal number in text ("0.6 pips" -> 0.6).
func parseDecimal(text string) (float64, bool) {
	m := decimalRe.FindString(text)
	if m == "" {
		return 0, false
	}
	return atof(m)
}

func atof(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// ExtractFoundingYear finds a "founded in YYYY" style year in text.
func ExtractFoundingYear(text string) (int, bool) {
	m := foundedRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil || year > time.Now().Year() {
		return 0, false
	}
	return year, true
}

// ExtractHeadquarters finds a "headquartered in City, Country" style
// location in text.
func ExtractHeadquarters(text string) string {
	m := headquartersRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
