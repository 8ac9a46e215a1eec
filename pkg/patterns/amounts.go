package patterns

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

const (
	amountBaseConfidence = 0.3
	amountCurrencyBonus  = 0.2
	amountNearBonus      = 0.3
	amountWindowBonus    = 0.15
	amountFormatBonus    = 0.1
	amountContextReach   = 20
)

var taxSuffix = regexp.MustCompile(`^\s?(?:ht|ttc|hors\s+taxes?|excl\.?\s+vat|incl\.?\s+vat)\b`)

// findAmounts returns monthly and annual amount candidates. Amounts with no
// period keyword in range are ignored, as are numbers that sit inside a date.
func (a *ruleAnalyzer) findAmounts(text string, dates []dateHit) (monthly, annual []models.AmountCandidate) {
	for _, m := range a.rules.amountExpr.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if overlapsDate(start, end, dates) {
			continue
		}

		currency := ""
		if m[2] >= 0 && m[3] > m[2] {
			currency = a.rules.currencies[text[m[2]:m[3]]]
		}
		if m[6] >= 0 && m[7] > m[6] {
			currency = a.rules.currencies[text[m[6]:m[7]]]
		}
		if currency == "" && !a.hasAmountContext(text, start, end) {
			continue
		}

		value, wellFormed, err := parseAmount(text[m[4]:m[5]])
		if err != nil || !value.IsPositive() {
			continue
		}

		monthlyDist := keywordDistance(text, start, end, a.rules.amountWindow, a.rules.monthlyKeywords)
		annualDist := keywordDistance(text, start, end, a.rules.amountWindow, a.rules.annualKeywords)
		if monthlyDist < 0 && annualDist < 0 {
			continue
		}

		kind, dist := models.FieldMonthlyAmount, monthlyDist
		if monthlyDist < 0 || (annualDist >= 0 && annualDist < monthlyDist) {
			kind, dist = models.FieldAnnualAmount, annualDist
		}

		conf := amountBaseConfidence
		if currency != "" {
			conf += amountCurrencyBonus
		}
		if dist <= a.rules.amountNear {
			conf += amountNearBonus
		} else {
			conf += amountWindowBonus
		}
		if wellFormed {
			conf += amountFormatBonus
		}

		c := models.AmountCandidate{
			Kind:       kind,
			Value:      value,
			Currency:   currency,
			Confidence: clamp01(round2(conf)),
			Span:       models.SourceSpan{Start: start, End: end, Text: strings.TrimSpace(text[start:end])},
		}
		if kind == models.FieldMonthlyAmount {
			monthly = append(monthly, c)
		} else {
			annual = append(annual, c)
		}
	}
	return monthly, annual
}

// hasAmountContext accepts a bare number as an amount when a pricing word
// precedes it or a tax marker follows it.
func (a *ruleAnalyzer) hasAmountContext(text string, start, end int) bool {
	if taxSuffix.MatchString(text[end:]) {
		return true
	}
	from := start - amountContextReach
	if from < 0 {
		from = 0
	}
	for _, kw := range a.rules.contextKeywords {
		if kw.MatchString(text[from:start]) {
			return true
		}
	}
	return false
}

// keywordDistance returns the gap between the amount and the closest
// keyword on either side within window, or -1.
func keywordDistance(text string, start, end, window int, keywords []*regexp.Regexp) int {
	from := start - window
	if from < 0 {
		from = 0
	}
	to := end + window
	if to > len(text) {
		to = len(text)
	}
	before := text[from:start]
	after := text[end:to]

	best := -1
	for _, kw := range keywords {
		if ms := kw.FindAllStringIndex(before, -1); len(ms) > 0 {
			d := len(before) - ms[len(ms)-1][1]
			if best < 0 || d < best {
				best = d
			}
		}
		if m := kw.FindStringIndex(after); m != nil {
			if best < 0 || m[0] < best {
				best = m[0]
			}
		}
	}
	return best
}

func overlapsDate(start, end int, dates []dateHit) bool {
	for _, d := range dates {
		if start < d.end && d.start < end {
			return true
		}
	}
	return false
}

// parseAmount reads French and English number formats. The last separator
// is decimal when followed by one or two digits; otherwise separators group
// thousands. wellFormed reports explicit cents or thousands grouping.
func parseAmount(raw string) (decimal.Decimal, bool, error) {
	s := strings.NewReplacer(" ", "", "'", "").Replace(raw)
	grouped := len(s) != len(raw)

	last := strings.LastIndexAny(s, ".,")
	intPart, fracPart := s, ""
	if last >= 0 {
		tail := s[last+1:]
		if len(tail) == 3 {
			grouped = true
		} else {
			intPart, fracPart = s[:last], tail
		}
	}
	if strings.ContainsAny(intPart, ".,") {
		grouped = true
		intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	}

	normalized := intPart
	if fracPart != "" {
		normalized += "." + fracPart
	}
	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return value, grouped || len(fracPart) == 2, nil
}
