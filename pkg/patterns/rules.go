package patterns

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// RuleFile is the on-disk shape of a rule library.
type RuleFile struct {
	Renewal struct {
		Normalizer         int         `yaml:"normalizer"`
		DetectionThreshold int         `yaml:"detection_threshold"`
		Classes            []ClassSpec `yaml:"classes"`
	} `yaml:"renewal"`
	Dates struct {
		Window        int            `yaml:"window"`
		NearDistance  int            `yaml:"near_distance"`
		StartKeywords []KeywordSpec  `yaml:"start_keywords"`
		EndKeywords   []KeywordSpec  `yaml:"end_keywords"`
		Months        map[string]int `yaml:"months"`
	} `yaml:"dates"`
	Amounts struct {
		Window          int               `yaml:"window"`
		NearDistance    int               `yaml:"near_distance"`
		MonthlyKeywords []string          `yaml:"monthly_keywords"`
		AnnualKeywords  []string          `yaml:"annual_keywords"`
		ContextKeywords []string          `yaml:"context_keywords"`
		Currencies      map[string]string `yaml:"currencies"`
	} `yaml:"amounts"`
	Notice struct {
		Window      int            `yaml:"window"`
		Keywords    []string       `yaml:"keywords"`
		Units       map[string]int `yaml:"units"`
		NumberWords map[string]int `yaml:"number_words"`
	} `yaml:"notice"`
}

// ClassSpec is one weighted class of renewal phrasing.
type ClassSpec struct {
	Class  string     `yaml:"class"`
	Weight int        `yaml:"weight"`
	Rules  []RuleSpec `yaml:"rules"`
}

// RuleSpec is a single named expression.
type RuleSpec struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// KeywordSpec is a date-kind keyword. MaxDistance limits how far the
// keyword may sit from the date; zero means the whole window.
type KeywordSpec struct {
	Phrase      string `yaml:"phrase"`
	MaxDistance int    `yaml:"max_distance"`
}

// RuleSet is a compiled rule library.
type RuleSet struct {
	Normalizer         int
	DetectionThreshold int
	Classes            []compiledClass

	dateWindow       int
	dateNear         int
	startKeywords    []compiledKeyword
	endKeywords      []compiledKeyword
	months           map[string]int
	dmyNumeric       *regexp.Regexp
	isoNumeric       *regexp.Regexp
	dayMonthWritten  *regexp.Regexp
	monthDayWritten  *regexp.Regexp
	amountWindow     int
	amountNear       int
	monthlyKeywords  []*regexp.Regexp
	annualKeywords   []*regexp.Regexp
	contextKeywords  []*regexp.Regexp
	currencies       map[string]string
	amountExpr       *regexp.Regexp
	noticeWindow     int
	noticeKeywords   []*regexp.Regexp
	units            map[string]int
	numberWords      map[string]int
	noticeAdjacent   []*regexp.Regexp
	noticeBeforeTerm *regexp.Regexp
}

type compiledClass struct {
	Class  string
	Weight int
	Rules  []compiledRule
}

type compiledRule struct {
	Name string
	Expr *regexp.Regexp
}

type compiledKeyword struct {
	Phrase      string
	MaxDistance int
	Expr        *regexp.Regexp
}

// DefaultRules compiles the embedded rule library.
func DefaultRules() (*RuleSet, error) {
	return ParseRules(defaultRulesYAML)
}

// LoadRules compiles a rule library from a YAML file.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules compiles a rule library from YAML.
func ParseRules(data []byte) (*RuleSet, error) {
	var f RuleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return compile(&f)
}

func compile(f *RuleFile) (*RuleSet, error) {
	if f.Renewal.Normalizer <= 0 {
		return nil, fmt.Errorf("renewal.normalizer must be positive")
	}

	rs := &RuleSet{
		Normalizer:         f.Renewal.Normalizer,
		DetectionThreshold: f.Renewal.DetectionThreshold,
		dateWindow:         f.Dates.Window,
		dateNear:           f.Dates.NearDistance,
		months:             f.Dates.Months,
		amountWindow:       f.Amounts.Window,
		amountNear:         f.Amounts.NearDistance,
		currencies:         f.Amounts.Currencies,
		noticeWindow:       f.Notice.Window,
		units:              f.Notice.Units,
		numberWords:        f.Notice.NumberWords,
	}

	for _, c := range f.Renewal.Classes {
		cc := compiledClass{Class: c.Class, Weight: c.Weight}
		for _, r := range c.Rules {
			re, err := regexp.Compile(r.Expr)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", r.Name, err)
			}
			cc.Rules = append(cc.Rules, compiledRule{Name: r.Name, Expr: re})
		}
		rs.Classes = append(rs.Classes, cc)
	}

	rs.startKeywords = compileKeywords(f.Dates.StartKeywords)
	rs.endKeywords = compileKeywords(f.Dates.EndKeywords)
	rs.monthlyKeywords = compilePhrases(f.Amounts.MonthlyKeywords)
	rs.annualKeywords = compilePhrases(f.Amounts.AnnualKeywords)
	rs.contextKeywords = compilePhrases(f.Amounts.ContextKeywords)
	rs.noticeKeywords = compilePhrases(f.Notice.Keywords)

	months := alternation(keys(f.Dates.Months))
	rs.dmyNumeric = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})\b`)
	rs.isoNumeric = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	rs.dayMonthWritten = regexp.MustCompile(`\b(\d{1,2})(?:er|st|nd|rd|th)?\s+(` + months + `)\.?\s+(\d{4})\b`)
	rs.monthDayWritten = regexp.MustCompile(`\b(` + months + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)

	var symbols, words []string
	for k := range f.Amounts.Currencies {
		if r := []rune(k); len(r) > 0 && isWordRune(r[0]) {
			words = append(words, k)
		} else {
			symbols = append(symbols, k)
		}
	}
	prefix := `(?:(` + alternation(symbols) + `|\b(?:` + alternation(words) + `))\s?)?`
	suffix := `(?:\s?(` + alternation(symbols) + `|(?:` + alternation(words) + `)\b))?`
	number := `(\d{1,3}(?:[ .,']\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?)`
	rs.amountExpr = regexp.MustCompile(prefix + number + suffix)

	units := alternation(keys(f.Notice.Units))
	count := `(\d{1,3}|` + alternation(keys(f.Notice.NumberWords)) + `)`
	filler := `(?:\w+\s+)?\(?`
	rs.noticeAdjacent = []*regexp.Regexp{
		regexp.MustCompile(`\bpreavis\s+(?:d'au\s+moins\s+|minimum\s+de\s+|d'une\s+duree\s+de\s+|de\s+|d')?` + filler + count + `\)?\s*(` + units + `)\b`),
		regexp.MustCompile(`\b` + count + `\)?\s*(` + units + `)\s+(?:au\s+moins\s+)?de\s+preavis\b`),
		regexp.MustCompile(`\bnotice\s+period\s+of\s+(?:at\s+least\s+)?` + filler + count + `\)?\s*(` + units + `)\b`),
		regexp.MustCompile(`\b` + count + `\)?\s*(` + units + `)(?:'s|')?\s+(?:prior\s+)?(?:written\s+)?notice\b`),
	}
	rs.noticeBeforeTerm = regexp.MustCompile(`\b` + count + `\)?\s*(` + units + `)\s+(?:au\s+moins\s+|at\s+least\s+)?(?:avant|before|prior\s+to)\b`)

	return rs, nil
}

func compileKeywords(specs []KeywordSpec) []compiledKeyword {
	out := make([]compiledKeyword, 0, len(specs))
	for _, s := range specs {
		out = append(out, compiledKeyword{
			Phrase:      s.Phrase,
			MaxDistance: s.MaxDistance,
			Expr:        phraseRegex(s.Phrase),
		})
	}
	return out
}

func compilePhrases(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, phraseRegex(p))
	}
	return out
}

// phraseRegex matches a literal phrase on word boundaries where the phrase
// itself starts or ends with a word character.
func phraseRegex(phrase string) *regexp.Regexp {
	expr := regexp.QuoteMeta(phrase)
	runes := []rune(phrase)
	if len(runes) > 0 && isWordRune(runes[0]) {
		expr = `\b` + expr
	}
	if len(runes) > 0 && isWordRune(runes[len(runes)-1]) {
		expr += `\b`
	}
	return regexp.MustCompile(expr)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// alternation builds a non-capturing-safe alternation, longest first so
// that "euros" wins over "euro".
func alternation(words []string) string {
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
