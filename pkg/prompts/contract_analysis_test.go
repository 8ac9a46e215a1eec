package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildContractAnalysisPrompt(t *testing.T) {
	prompt := BuildContractAnalysisPrompt(ContractContext{
		Title:        "Maintenance ascenseurs",
		Text:         "Le contrat est renouvelé par tacite reconduction.",
		PatternHints: []string{"tacit renewal phrasing detected"},
	})

	assert.Contains(t, prompt, "Title: Maintenance ascenseurs")
	assert.Contains(t, prompt, "<contract>\nLe contrat est renouvelé par tacite reconduction.\n</contract>")
	assert.Contains(t, prompt, "- tacit renewal phrasing detected")
	assert.Contains(t, prompt, `"notice_period_days"`)
	assert.NotContains(t, prompt, "truncated")
}

func TestBuildContractAnalysisPrompt_Truncates(t *testing.T) {
	prompt := BuildContractAnalysisPrompt(ContractContext{
		Text:     strings.Repeat("é", 50),
		MaxChars: 10,
	})

	assert.Contains(t, prompt, strings.Repeat("é", 10)+"\n[... text truncated ...]")
	assert.NotContains(t, prompt, strings.Repeat("é", 11))
	assert.NotContains(t, prompt, "## Hints")
}

func TestTruncate(t *testing.T) {
	got, cut := Truncate("préavis", 3)
	assert.Equal(t, "pré", got)
	assert.True(t, cut)

	got, cut = Truncate("préavis", 0)
	assert.Equal(t, "préavis", got)
	assert.False(t, cut)

	got, cut = Truncate("abc", 3)
	assert.Equal(t, "abc", got)
	assert.False(t, cut)
}
