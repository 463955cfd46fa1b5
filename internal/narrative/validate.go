package narrative

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/surveylens/internal/model"
)

var (
	fencePattern  = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")
	lineBreaks    = regexp.MustCompile(`\r?\n|•`)
	inlineMarkers = regexp.MustCompile(`\s+(?:[-*–—]|\d+[.)])\s+`)
	// A number marker must not be followed by a digit, so "3.5" survives.
	// The captured character after a tight marker ("1.First") is kept.
	leadingMarkers = regexp.MustCompile(`^(?:[-*–—]+\s*|\d+[.)](?:\s+|$|(\D)))`)
)

// Validate turns whatever a narrative backend returned into the canonical
// shape. It never fails:
//   - a JSON object is read field by field, with wrong types defaulting to empty;
//   - JSON wrapped in a ``` fence is unwrapped first;
//   - other valid JSON (arrays, scalars) yields an empty narrative;
//   - plain prose becomes the summary.
func Validate(raw []byte) model.Narrative {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return empty()
	}

	if obj, ok := decodeObject(text); ok {
		return FromMap(obj)
	}
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		if obj, ok := decodeObject(m[1]); ok {
			return FromMap(obj)
		}
	}
	if json.Valid([]byte(text)) {
		return empty()
	}

	n := empty()
	n.Summary = text
	return n
}

// FromMap reads a decoded narrative object
func FromMap(obj map[string]any) model.Narrative {
	n := model.Narrative{
		Similarities: NormalizeList(obj["similarities"]),
		Differences:  NormalizeList(obj["differences"]),
	}
	if s, ok := obj["summary"].(string); ok {
		n.Summary = strings.TrimSpace(s)
	}
	return n
}

// NormalizeList accepts a list or a delimited string and returns trimmed,
// non-empty items. Anything else yields an empty list.
func NormalizeList(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			var s string
			switch it := item.(type) {
			case string:
				s = it
			case float64, bool, json.Number:
				s = fmt.Sprint(it)
			default:
				continue
			}
			if s = strings.TrimSpace(leadingMarkers.ReplaceAllString(strings.TrimSpace(s), "${1}")); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return NormalizeList(toAny(val))
	case string:
		return SplitList(val)
	default:
		return []string{}
	}
}

// SplitList splits a delimited string on newlines, bullets, dashes and
// numbered-list markers. Dashes and numbers only count as markers at the
// start of a line or when surrounded by whitespace, so "well-known" and
// "3.5" survive intact.
func SplitList(s string) []string {
	out := []string{}
	for _, line := range lineBreaks.Split(s, -1) {
		for _, part := range inlineMarkers.Split(line, -1) {
			part = strings.TrimSpace(part)
			part = strings.TrimSpace(leadingMarkers.ReplaceAllString(part, "${1}"))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func decodeObject(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func empty() model.Narrative {
	return model.Narrative{Similarities: []string{}, Differences: []string{}}
}

func toAny(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
