package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"is_tacit_renewal": true}`, `{"is_tacit_renewal": true}`},
		{"nested", `{"amount": {"value": "1200.00", "currency": "EUR"}}`, `{"amount": {"value": "1200.00", "currency": "EUR"}}`},
		{"think tags", "<think>\nreading the clause\n</think>\n{\"summary\": \"ok\"}", `{"summary": "ok"}`},
		{"markdown fence", "```json\n{\"confidence_score\": 0.9}\n```", `{"confidence_score": 0.9}`},
		{"prose around", `Here is the analysis: {"a": 1} Hope this helps.`, `{"a": 1}`},
		{"brackets in strings", `{"clause": "see {article} [3]"}`, `{"clause": "see {article} [3]"}`},
		{"escaped quotes", `{"clause": "the \"Term\" renews"}`, `{"clause": "the \"Term\" renews"}`},
		{"array first", `[1, 2] then {"a": 1}`, `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_Errors(t *testing.T) {
	for _, input := range []string{"", "no json here", `{"unterminated": `} {
		_, err := ExtractJSON(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseJSONResponse(t *testing.T) {
	type reply struct {
		Summary    string  `json:"summary"`
		Confidence float64 `json:"confidence_score"`
	}

	got, err := ParseJSONResponse[reply](`<think>x</think>{"summary": "auto-renews", "confidence_score": 0.82}`)
	require.NoError(t, err)
	assert.Equal(t, "auto-renews", got.Summary)
	assert.Equal(t, 0.82, got.Confidence)
}

func TestParseJSONResponse_InvalidResponseKind(t *testing.T) {
	type reply struct {
		Confidence float64 `json:"confidence_score"`
	}

	_, err := ParseJSONResponse[reply]("sorry, I cannot help")
	assert.Equal(t, KindInvalidResponse, KindOf(err))

	_, err = ParseJSONResponse[reply](`{"confidence_score": "high"}`)
	assert.Equal(t, KindInvalidResponse, KindOf(err))
}
