// Package decode recovers a ParsedExpression from whatever the transcription
// service produced: a structured record, a JSON-encoded record, or loosely
// formatted text with SYMPY:, LATEX: and VAR: lines. Decoding never fails;
// missing or malformed fields fall back to defaults and strict validation is
// left to symbolic.Parse.
package decode

import (
	"encoding/json"
	"strings"
)

// DefaultVariable is used when no usable variable is present.
const DefaultVariable = "x"

// ParsedExpression is one decoded side of a check.
type ParsedExpression struct {
	Formula     string `json:"formula"`
	DisplayForm string `json:"display_form"`
	Variable    string `json:"variable"`

	// VariableExplicit is true when the payload itself carried a variable
	// with at least one letter in it.
	VariableExplicit bool `json:"-"`
}

var (
	formulaKeys  = []string{"expr_sympy", "formula"}
	displayKeys  = []string{"expr_latex", "display_form"}
	variableKeys = []string{"variable", "var"}
)

// Decode turns raw into a ParsedExpression. raw may be a string, []byte,
// json.RawMessage, map[string]any, map[string]string or a ParsedExpression;
// anything else decodes to the defaults.
func Decode(raw any) ParsedExpression {
	switch v := raw.(type) {
	case ParsedExpression:
		return build(v.Formula, v.DisplayForm, v.Variable)
	case *ParsedExpression:
		if v == nil {
			return build("", "", "")
		}
		return build(v.Formula, v.DisplayForm, v.Variable)
	case map[string]any:
		return fromRecord(v)
	case map[string]string:
		rec := make(map[string]any, len(v))
		for k, s := range v {
			rec[k] = s
		}
		return fromRecord(rec)
	case string:
		return fromString(v)
	case []byte:
		return fromString(string(v))
	case json.RawMessage:
		return fromString(string(v))
	}
	return build("", "", "")
}

// fromString decodes JSON at most once. A JSON string literal yields its
// content, which is read as free text and never decoded again.
func fromString(s string) ParsedExpression {
	body := stripFences(s)
	if strings.HasPrefix(body, "{") || strings.HasPrefix(body, `"`) {
		var decoded any
		if err := json.Unmarshal([]byte(body), &decoded); err == nil {
			switch v := decoded.(type) {
			case map[string]any:
				return fromRecord(v)
			case string:
				return fromText(v)
			}
		}
	}
	return fromText(body)
}

func fromRecord(rec map[string]any) ParsedExpression {
	lowered := make(map[string]any, len(rec))
	for k, v := range rec {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, dup := lowered[key]; !dup {
			lowered[key] = v
		}
	}
	lookup := func(keys []string) string {
		for _, k := range keys {
			if s, ok := lowered[k].(string); ok {
				return s
			}
		}
		return ""
	}
	return build(lookup(formulaKeys), lookup(displayKeys), lookup(variableKeys))
}

// fromText scans labelled lines. The first occurrence of each label wins and
// unlabelled lines are ignored.
func fromText(s string) ParsedExpression {
	var formula, display, variable string
	var seenFormula, seenDisplay, seenVariable bool
	for _, line := range strings.Split(stripFences(s), "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "-*•>#_` \t")
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimLeft(value, "*_ \t"), "` \t\r")
		switch strings.ToUpper(strings.TrimRight(label, "*_ \t")) {
		case "SYMPY":
			if !seenFormula {
				formula, seenFormula = value, true
			}
		case "LATEX":
			if !seenDisplay {
				display, seenDisplay = value, true
			}
		case "VAR":
			if !seenVariable {
				variable, seenVariable = value, true
			}
		}
	}
	return build(formula, display, variable)
}

func build(formula, display, variable string) ParsedExpression {
	formula = strings.TrimSpace(formula)
	display = strings.TrimSpace(display)
	if display == "" {
		display = formula
	}
	v, explicit := SanitizeVariable(variable)
	return ParsedExpression{
		Formula:          formula,
		DisplayForm:      display,
		Variable:         v,
		VariableExplicit: explicit,
	}
}

// SanitizeVariable keeps only ASCII letters from s and returns the first one.
// It reports false, with DefaultVariable, when s has no letters.
func SanitizeVariable(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return string(c), true
		}
	}
	return DefaultVariable, false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.Contains(s[:nl], ":") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
