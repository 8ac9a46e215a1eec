package prompts

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ContractAnalysisSystemMessage frames the model as a careful contract reader.
const ContractAnalysisSystemMessage = "You are a meticulous contract analyst. You read commercial contracts " +
	"in French or English and report renewal terms exactly as written. You never guess: when the " +
	"contract does not state a value, you return null and a low confidence. You answer with a single JSON object."

// ContractContext is what the model is told about the document.
type ContractContext struct {
	Title string
	Text  string
	// MaxChars truncates Text; zero keeps the full text.
	MaxChars int
	// PatternHints are findings of the rule-based analyzer, shown as hints.
	PatternHints []string
}

// BuildContractAnalysisPrompt creates the prompt for semantic contract
// analysis, including the JSON response format.
func BuildContractAnalysisPrompt(c ContractContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Contract Renewal Analysis\n\n")
	prompt.WriteString("Read the contract below and extract its renewal terms.\n\n")

	if c.Title != "" {
		prompt.WriteString(fmt.Sprintf("Title: %s\n\n", c.Title))
	}

	if len(c.PatternHints) > 0 {
		prompt.WriteString("## Hints from automatic clause detection\n\n")
		prompt.WriteString("These may be wrong; the contract text prevails.\n")
		for _, h := range c.PatternHints {
			prompt.WriteString(fmt.Sprintf("- %s\n", h))
		}
		prompt.WriteString("\n")
	}

	text, truncated := Truncate(c.Text, c.MaxChars)
	prompt.WriteString("## Contract text\n\n")
	prompt.WriteString("<contract>\n")
	prompt.WriteString(text)
	if truncated {
		prompt.WriteString("\n[... text truncated ...]")
	}
	prompt.WriteString("\n</contract>\n\n")

	prompt.WriteString("## Instructions\n\n")
	prompt.WriteString("1. is_tacit_renewal: true when the contract renews automatically unless a party terminates it.\n")
	prompt.WriteString("2. start_date / end_date: the current term, as YYYY-MM-DD. end_date is the date the contract renews or ends.\n")
	prompt.WriteString("3. notice_period_days: how many days before end_date notice must be given. Convert months to 30 days and weeks to 7.\n")
	prompt.WriteString("4. amount: the yearly price. Multiply a monthly price by 12. Use a decimal string and an ISO 4217 currency.\n")
	prompt.WriteString("5. Give every field its own confidence between 0 and 1. Use null values for anything not stated.\n")
	prompt.WriteString("6. confidence_score is your overall confidence in the reading.\n\n")

	prompt.WriteString("## Response format\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "is_tacit_renewal": {"value": true, "confidence": 0.9},
  "start_date": {"value": "2025-01-01", "confidence": 0.85},
  "end_date": {"value": "2025-12-31", "confidence": 0.85},
  "notice_period_days": {"value": 90, "confidence": 0.8},
  "amount": {"value": "1200.00", "currency": "EUR", "confidence": 0.75},
  "confidence_score": 0.85,
  "summary": "One or two sentences on how and when the contract renews.",
  "key_clauses": ["Verbatim renewal or termination clause"]
}`)
	prompt.WriteString("\n```\n")

	return prompt.String()
}

// Truncate cuts s to at most maxChars runes. It reports whether anything
// was cut.
func Truncate(s string, maxChars int) (string, bool) {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s, false
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i], true
		}
		n++
	}
	return s, false
}
