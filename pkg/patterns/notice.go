package patterns

import (
	"sort"
	"strconv"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

const (
	noticeAdjacentConfidence = 0.85
	noticeContextConfidence  = 0.6
	noticeBareConfidence     = 0.4
)

// findNotice returns notice period candidates in document order.
func (a *ruleAnalyzer) findNotice(text string) []models.NoticeCandidate {
	var out []models.NoticeCandidate
	taken := func(start, end int) bool {
		for _, c := range out {
			if start < c.Span.End && c.Span.Start < end {
				return true
			}
		}
		return false
	}

	for _, re := range a.rules.noticeAdjacent {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			days, ok := a.noticeDays(text[m[2]:m[3]], text[m[4]:m[5]])
			if !ok || taken(m[0], m[1]) {
				continue
			}
			out = append(out, models.NoticeCandidate{
				Days:       days,
				Confidence: noticeAdjacentConfidence,
				Span:       models.SourceSpan{Start: m[0], End: m[1], Text: text[m[0]:m[1]]},
			})
		}
	}

	for _, m := range a.rules.noticeBeforeTerm.FindAllStringSubmatchIndex(text, -1) {
		days, ok := a.noticeDays(text[m[2]:m[3]], text[m[4]:m[5]])
		if !ok || taken(m[0], m[1]) {
			continue
		}
		conf := noticeBareConfidence
		if a.noticeContext(text, m[0], m[1]) {
			conf = noticeContextConfidence
		}
		out = append(out, models.NoticeCandidate{
			Days:       days,
			Confidence: conf,
			Span:       models.SourceSpan{Start: m[0], End: m[1], Text: text[m[0]:m[1]]},
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Span.Start < out[j].Span.Start })
	return out
}

func (a *ruleAnalyzer) noticeDays(count, unit string) (int, bool) {
	n, err := strconv.Atoi(count)
	if err != nil {
		w, ok := a.rules.numberWords[count]
		if !ok {
			return 0, false
		}
		n = w
	}
	mult, ok := a.rules.units[unit]
	if !ok || n <= 0 {
		return 0, false
	}
	return n * mult, true
}

func (a *ruleAnalyzer) noticeContext(text string, start, end int) bool {
	from := start - a.rules.noticeWindow
	if from < 0 {
		from = 0
	}
	to := end + a.rules.noticeWindow
	if to > len(text) {
		to = len(text)
	}
	segment := text[from:to]
	for _, kw := range a.rules.noticeKeywords {
		if kw.MatchString(segment) {
			return true
		}
	}
	return false
}
