package patterns

import (
	"sort"
	"strconv"
	"time"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

const (
	dateBaseConfidence      = 0.4
	dateNearBonus           = 0.35
	dateWindowBonus         = 0.2
	dateWrittenBonus        = 0.05
	dateUnlabeledConfidence = 0.3
)

type dateHit struct {
	start, end int
	value      time.Time
	written    bool
}

// findDates returns every valid calendar date in text, in document order,
// without overlaps.
func (a *ruleAnalyzer) findDates(text string) []dateHit {
	var hits []dateHit

	for _, m := range a.rules.dmyNumeric.FindAllStringSubmatchIndex(text, -1) {
		first, _ := strconv.Atoi(text[m[2]:m[3]])
		second, _ := strconv.Atoi(text[m[4]:m[5]])
		year, _ := strconv.Atoi(text[m[6]:m[7]])
		day, month := first, second
		if !a.settings.DayFirst {
			day, month = second, first
		}
		if month > 12 && day <= 12 {
			day, month = month, day
		}
		if t, ok := civilDate(year, month, day); ok {
			hits = append(hits, dateHit{start: m[0], end: m[1], value: t})
		}
	}

	for _, m := range a.rules.isoNumeric.FindAllStringSubmatchIndex(text, -1) {
		year, _ := strconv.Atoi(text[m[2]:m[3]])
		month, _ := strconv.Atoi(text[m[4]:m[5]])
		day, _ := strconv.Atoi(text[m[6]:m[7]])
		if t, ok := civilDate(year, month, day); ok {
			hits = append(hits, dateHit{start: m[0], end: m[1], value: t})
		}
	}

	for _, m := range a.rules.dayMonthWritten.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[m[2]:m[3]])
		month := a.rules.months[text[m[4]:m[5]]]
		year, _ := strconv.Atoi(text[m[6]:m[7]])
		if t, ok := civilDate(year, month, day); ok {
			hits = append(hits, dateHit{start: m[0], end: m[1], value: t, written: true})
		}
	}

	for _, m := range a.rules.monthDayWritten.FindAllStringSubmatchIndex(text, -1) {
		month := a.rules.months[text[m[2]:m[3]]]
		day, _ := strconv.Atoi(text[m[4]:m[5]])
		year, _ := strconv.Atoi(text[m[6]:m[7]])
		if t, ok := civilDate(year, month, day); ok {
			hits = append(hits, dateHit{start: m[0], end: m[1], value: t, written: true})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	out := hits[:0]
	lastEnd := -1
	for _, h := range hits {
		if h.start < lastEnd {
			continue
		}
		out = append(out, h)
		lastEnd = h.end
	}
	return out
}

// classifyDates labels each date as a start or end candidate using the
// nearest preceding keyword. Dates with no keyword in range become
// low-confidence candidates of both kinds.
func (a *ruleAnalyzer) classifyDates(text string, hits []dateHit) (starts, ends []models.DateCandidate) {
	for _, h := range hits {
		startDist := nearestKeyword(text, h.start, a.rules.dateWindow, a.rules.startKeywords)
		endDist := nearestKeyword(text, h.start, a.rules.dateWindow, a.rules.endKeywords)
		span := models.SourceSpan{Start: h.start, End: h.end, Text: text[h.start:h.end]}

		if startDist < 0 && endDist < 0 {
			starts = append(starts, models.DateCandidate{Kind: models.FieldStartDate, Value: h.value, Confidence: dateUnlabeledConfidence, Span: span})
			ends = append(ends, models.DateCandidate{Kind: models.FieldEndDate, Value: h.value, Confidence: dateUnlabeledConfidence, Span: span})
			continue
		}

		kind, dist := models.FieldStartDate, startDist
		if startDist < 0 || (endDist >= 0 && endDist < startDist) {
			kind, dist = models.FieldEndDate, endDist
		}

		conf := dateBaseConfidence
		if dist <= a.rules.dateNear {
			conf += dateNearBonus
		} else {
			conf += dateWindowBonus
		}
		if h.written {
			conf += dateWrittenBonus
		}
		c := models.DateCandidate{Kind: kind, Value: h.value, Confidence: clamp01(round2(conf)), Span: span}
		if kind == models.FieldStartDate {
			starts = append(starts, c)
		} else {
			ends = append(ends, c)
		}
	}
	return starts, ends
}

// nearestKeyword returns the distance in bytes between the end of the
// closest keyword preceding pos and pos, or -1 when none is in range.
func nearestKeyword(text string, pos, window int, keywords []compiledKeyword) int {
	from := pos - window
	if from < 0 {
		from = 0
	}
	segment := text[from:pos]

	best := -1
	for _, kw := range keywords {
		matches := kw.Expr.FindAllStringIndex(segment, -1)
		if len(matches) == 0 {
			continue
		}
		last := matches[len(matches)-1]
		dist := len(segment) - last[1]
		if kw.MaxDistance > 0 && dist > kw.MaxDistance {
			continue
		}
		if best < 0 || dist < best {
			best = dist
		}
	}
	return best
}

func civilDate(year, month, day int) (time.Time, bool) {
	if year < 1900 || year > 2200 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := models.NewDate(year, time.Month(month), day)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
