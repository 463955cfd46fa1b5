package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/surveylens/internal/model"
)

// answerAliases maps lowercased, whitespace-collapsed answers to categories.
// Anything not listed is kept as a free-form literal.
var answerAliases = map[string]model.Category{
	"yes":            model.CategoryYes,
	"no":             model.CategoryNo,
	"not applicable": model.CategoryNotApplicable,
}

// ParseCategory classifies an answer string.
// Empty input is NoResponse; unrecognized text is Other.
func ParseCategory(answer string) model.Category {
	key := strings.ToLower(strings.Join(strings.Fields(answer), " "))
	if key == "" {
		return model.CategoryNoResponse
	}
	if c, ok := answerAliases[key]; ok {
		return c
	}
	return model.CategoryOther
}

// Normalize converts raw responses into canonical records, one per input,
// in input order. Records with missing or non-numeric ids are returned with
// Err set and must be dropped by consumers (see Valid).
func Normalize(raw []model.RawResponse) []model.NormalizedRecord {
	out := make([]model.NormalizedRecord, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalizeOne(r))
	}
	return out
}

// ClauseLookup resolves the clause owning a question; catalog.Index satisfies it
type ClauseLookup interface {
	ClauseOf(questionID int) (int, bool)
}

// NormalizeWithCatalog is Normalize, except that a record without a
// clause_id takes the clause of its question when the catalog knows it.
// Some /compare deployments omit clause_id.
func NormalizeWithCatalog(raw []model.RawResponse, lookup ClauseLookup) []model.NormalizedRecord {
	out := make([]model.NormalizedRecord, 0, len(raw))
	for _, r := range raw {
		if r.ClauseID == nil && lookup != nil {
			if q, ok := toID(r.QuestionID); ok {
				if c, ok := lookup.ClauseOf(q); ok {
					r.ClauseID = c
				}
			}
		}
		out = append(out, normalizeOne(r))
	}
	return out
}

func normalizeOne(r model.RawResponse) model.NormalizedRecord {
	answer := toText(r.Answer())
	rec := model.NormalizedRecord{
		Category: ParseCategory(answer),
		Answer:   answer,
		Comment:  toText(r.Comment),
		Date:     toDate(r.Date),
	}

	var bad []string
	var ok bool
	if rec.OrganizationID, ok = toID(r.OrganizationID); !ok {
		bad = append(bad, "organization_id")
	}
	if rec.ClauseID, ok = toID(r.ClauseID); !ok {
		bad = append(bad, "clause_id")
	}
	if rec.QuestionID, ok = toID(r.QuestionID); !ok {
		bad = append(bad, "question_id")
	}
	if len(bad) > 0 {
		rec.Err = fmt.Errorf("%w: missing or non-numeric %s", model.ErrInvalidInput, strings.Join(bad, ", "))
	}

	return rec
}

// Valid drops invalid records, keeping order, and reports how many were dropped
func Valid(records []model.NormalizedRecord) ([]model.NormalizedRecord, int) {
	valid := make([]model.NormalizedRecord, 0, len(records))
	invalid := 0
	for _, r := range records {
		if !r.Valid() {
			invalid++
			continue
		}
		valid = append(valid, r)
	}
	return valid, invalid
}

// toID accepts JSON numbers, Go integers and numeric strings.
// Fractional values are rejected.
func toID(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func toText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

func toDate(v any) string {
	switch d := v.(type) {
	case string:
		return strings.TrimSpace(d)
	case time.Time:
		return d.Format(time.DateOnly)
	default:
		return ""
	}
}
