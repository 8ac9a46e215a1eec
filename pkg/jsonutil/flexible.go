// Package jsonutil reads loosely typed values out of model replies.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strings.TrimSpace(strVal)
	}

	var numVal json.Number
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal.String()
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return strconv.FormatBool(boolVal)
	}

	return string(raw)
}

// FlexibleInt reads an integer given as a number or a numeric string.
// A trailing unit word is ignored, so "30 days" reads as 30.
func FlexibleInt(raw json.RawMessage) (int, bool) {
	if isNull(raw) {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != float64(int64(f)) {
			return 0, false
		}
		return int(f), true
	}

	s := FlexibleStringValue(raw)
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FlexibleBool reads a boolean given as a JSON bool or a yes/no style string.
func FlexibleBool(raw json.RawMessage) (bool, bool) {
	if isNull(raw) {
		return false, false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}

	switch strings.ToLower(FlexibleStringValue(raw)) {
	case "true", "yes", "oui", "1":
		return true, true
	case "false", "no", "non", "0":
		return false, true
	}
	return false, false
}

// FlexibleDecimalString normalizes a monetary value given as a number or a
// string with grouping separators into a plain decimal string.
func FlexibleDecimalString(raw json.RawMessage) (string, error) {
	s := FlexibleStringValue(raw)
	if s == "" {
		return "", fmt.Errorf("empty amount")
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\'':
			return -1
		}
		return r
	}, s)
	// "1.234,56" and "1234,56" use a decimal comma.
	if i := strings.LastIndexByte(s, ','); i >= 0 && (!strings.Contains(s, ".") || i > strings.LastIndexByte(s, '.')) && len(s)-i-1 <= 2 {
		s = strings.ReplaceAll(s[:i], ".", "") + "." + s[i+1:]
	}
	return strings.ReplaceAll(s, ",", ""), nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
