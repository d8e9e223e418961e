package generator

import (
	"regexp"
	"strings"

	"github.com/aqakit/brain/pkg/diag"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractJSON pulls the plan document out of a model reply. It prefers a
// fenced code block; failing that it scans for the first balanced JSON
// object.
func ExtractJSON(text string) (string, error) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	if obj := balancedObject(text); obj != "" {
		return obj, nil
	}
	return "", diag.New(diag.CodeInvalidJSON, "response contains no JSON object")
}

// balancedObject returns the first {...} span with balanced braces, string
// literals and escapes respected.
func balancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
