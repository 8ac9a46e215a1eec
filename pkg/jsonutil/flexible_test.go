package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name  string
		input json.RawMessage
		want  string
	}{
		{
			name:  "string value",
			input: json.RawMessage(`"hello"`),
			want:  "hello",
		},
		{
			name:  "integer value",
			input: json.RawMessage(`42`),
			want:  "42",
		},
		{
			name:  "float value",
			input: json.RawMessage(`3.14`),
			want:  "3.14",
		},
		{
			name:  "boolean true",
			input: json.RawMessage(`true`),
			want:  "true",
		},
		{
			name:  "boolean false",
			input: json.RawMessage(`false`),
			want:  "false",
		},
		{
			name:  "null value",
			input: json.RawMessage(`null`),
			want:  "",
		},
		{
			name:  "empty raw message",
			input: json.RawMessage{},
			want:  "",
		},
		{
			name:  "nil raw message",
			input: nil,
			want:  "",
		},
		{
			name:  "large integer preserves precision",
			input: json.RawMessage(`9007199254740992`),
			want:  "9007199254740992",
		},
		{
			name:  "nested object falls back to raw string",
			input: json.RawMessage(`{"key":"value"}`),
			want:  `{"key":"value"}`,
		},
		{
			name:  "array falls back to raw string",
			input: json.RawMessage(`[1,2,3]`),
			want:  `[1,2,3]`,
		},
		{
			name:  "negative integer",
			input: json.RawMessage(`-7`),
			want:  "-7",
		},
		{
			name:  "zero",
			input: json.RawMessage(`0`),
			want:  "0",
		},
		{
			name:  "empty string",
			input: json.RawMessage(`""`),
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStringValue(tt.input)
			if got != tt.want {
				t.Errorf("FlexibleStringValue(%s) = %q, want %q", string(tt.input), got, tt.want)
			}
		})
	}
}

func TestFlexibleInt(t *testing.T) {
	tests := []struct {
		name   string
		input  json.RawMessage
		want   int
		wantOK bool
	}{
		{name: "number", input: json.RawMessage(`90`), want: 90, wantOK: true},
		{name: "numeric string", input: json.RawMessage(`"30"`), want: 30, wantOK: true},
		{name: "string with unit", input: json.RawMessage(`"60 days"`), want: 60, wantOK: true},
		{name: "fractional number", input: json.RawMessage(`1.5`), wantOK: false},
		{name: "word", input: json.RawMessage(`"three months"`), wantOK: false},
		{name: "null", input: json.RawMessage(`null`), wantOK: false},
		{name: "missing", input: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FlexibleInt(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("FlexibleInt(%s) = (%d, %v), want (%d, %v)", string(tt.input), got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFlexibleBool(t *testing.T) {
	tests := []struct {
		name   string
		input  json.RawMessage
		want   bool
		wantOK bool
	}{
		{name: "json true", input: json.RawMessage(`true`), want: true, wantOK: true},
		{name: "json false", input: json.RawMessage(`false`), want: false, wantOK: true},
		{name: "yes", input: json.RawMessage(`"Yes"`), want: true, wantOK: true},
		{name: "french no", input: json.RawMessage(`"non"`), want: false, wantOK: true},
		{name: "unknown word", input: json.RawMessage(`"maybe"`), wantOK: false},
		{name: "null", input: json.RawMessage(`null`), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FlexibleBool(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("FlexibleBool(%s) = (%v, %v), want (%v, %v)", string(tt.input), got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFlexibleDecimalString(t *testing.T) {
	tests := []struct {
		name    string
		input   json.RawMessage
		want    string
		wantErr bool
	}{
		{name: "number", input: json.RawMessage(`12000.5`), want: "12000.5"},
		{name: "plain string", input: json.RawMessage(`"12000.00"`), want: "12000.00"},
		{name: "comma grouping", input: json.RawMessage(`"1,200.00"`), want: "1200.00"},
		{name: "comma grouping without decimals", input: json.RawMessage(`"1,200"`), want: "1200"},
		{name: "decimal comma", input: json.RawMessage(`"1.234,56"`), want: "1234.56"},
		{name: "space grouping", input: json.RawMessage(`"12 000,50"`), want: "12000.50"},
		{name: "null", input: json.RawMessage(`null`), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FlexibleDecimalString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FlexibleDecimalString(%s) error = %v, wantErr %v", string(tt.input), err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FlexibleDecimalString(%s) = %q, want %q", string(tt.input), got, tt.want)
			}
		})
	}
}
