package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/surveylens/internal/model"
)

// Request is an immutable set of comparison filters.
// An empty OrganizationIDs keeps nothing; it never means "all".
type Request struct {
	OrganizationIDs []int
	ClauseID        *int
	StartDate       string // inclusive, YYYY-MM-DD, empty for open
	EndDate         string // inclusive, YYYY-MM-DD, empty for open
}

// Validate checks the date range. Dates compare lexicographically,
// which is correct for the API's YYYY-MM-DD format.
func (r Request) Validate() error {
	if r.StartDate != "" && r.EndDate != "" && r.EndDate < r.StartDate {
		return fmt.Errorf("%w: end date %s is before start date %s", model.ErrInvalidRange, r.EndDate, r.StartDate)
	}
	return nil
}

// DateLayout is the only date format the survey API accepts
const DateLayout = "2006-01-02"

// ParseDate checks a user-supplied bound. Empty means open.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: date %q is not YYYY-MM-DD", model.ErrInvalidInput, s)
	}
	return t.Format(DateLayout), nil
}

// Scope converts the request for echoing in a report
func (r Request) Scope() model.Scope {
	ids := make([]int, len(r.OrganizationIDs))
	copy(ids, r.OrganizationIDs)
	return model.Scope{
		OrganizationIDs: ids,
		ClauseID:        r.ClauseID,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
	}
}

// Apply keeps the records matching every predicate, in input order.
// The range is validated before anything is filtered. Invalid records are dropped.
func Apply(records []model.NormalizedRecord, req Request) ([]model.NormalizedRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	orgs := make(map[int]struct{}, len(req.OrganizationIDs))
	for _, id := range req.OrganizationIDs {
		orgs[id] = struct{}{}
	}

	out := make([]model.NormalizedRecord, 0, len(records))
	if len(orgs) == 0 {
		return out, nil
	}

	for _, rec := range records {
		if !rec.Valid() {
			continue
		}
		if _, ok := orgs[rec.OrganizationID]; !ok {
			continue
		}
		if req.ClauseID != nil && rec.ClauseID != *req.ClauseID {
			continue
		}
		if req.StartDate != "" && rec.Date < req.StartDate {
			continue
		}
		if req.EndDate != "" && rec.Date > req.EndDate {
			continue
		}
		out = append(out, rec)
	}

	return out, nil
}
