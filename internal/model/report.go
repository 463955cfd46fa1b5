package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// ComparisonReport is the complete result of one comparison action.
// The numeric artifacts and the narrative fail independently, so either
// side may be empty with its error recorded next to it.
type ComparisonReport struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Scope       Scope     `json:"scope"`

	Organizations []Organization `json:"organizations"` // Compared organizations, request order
	Clause        *Clause        `json:"clause,omitempty"`

	Questions []Question       `json:"questions,omitempty"` // Catalog entries of the pivot rows, row order
	Pivot     []PivotRow       `json:"pivot"`
	Tally     []TallyRow       `json:"tally"`
	Narrative *NarrativeResult `json:"narrative,omitempty"`

	Diagnostics Diagnostics `json:"diagnostics"`

	NumericError   string `json:"numeric_error,omitempty"`
	NarrativeError string `json:"narrative_error,omitempty"`

	numericErr   error
	narrativeErr error
}

// SetNumericError records the failure of the pivot/tally branch
func (r *ComparisonReport) SetNumericError(err error) {
	r.numericErr = err
	if err != nil {
		r.NumericError = err.Error()
	}
}

// SetNarrativeError records the failure of the narrative branch
func (r *ComparisonReport) SetNarrativeError(err error) {
	r.narrativeErr = err
	if err != nil {
		r.NarrativeError = err.Error()
	}
}

// NumericErr returns the error of the pivot/tally branch, if any
func (r *ComparisonReport) NumericErr() error { return r.numericErr }

// NarrativeErr returns the error of the narrative branch, if any
func (r *ComparisonReport) NarrativeErr() error { return r.narrativeErr }

// Scope echoes the filters a report was computed under
type Scope struct {
	OrganizationIDs []int  `json:"organization_ids"`
	ClauseID        *int   `json:"clause_id,omitempty"`
	StartDate       string `json:"start_date,omitempty"`
	EndDate         string `json:"end_date,omitempty"`
}

// Diagnostics counts what happened to records on the way through
type Diagnostics struct {
	TotalRecords       int `json:"total_records"`
	InvalidRecords     int `json:"invalid_records"`
	FilteredRecords    int `json:"filtered_records"`
	ExpectedQuestions  int `json:"expected_questions"`
	MalformedResponses int `json:"malformed_responses,omitempty"`
}

// PivotCell is one organization's value for a question
type PivotCell struct {
	OrganizationID int
	Value          string
}

// PivotRow is one question with one cell per organization that answered it.
// Organizations without a record are absent, never zero-filled.
type PivotRow struct {
	QuestionID int
	Cells      []PivotCell
}

// ColumnKey returns the chart column name for an organization
func ColumnKey(orgID int) string {
	return "org_" + strconv.Itoa(orgID)
}

// Value returns the cell for an organization
func (r PivotRow) Value(orgID int) (string, bool) {
	for _, c := range r.Cells {
		if c.OrganizationID == orgID {
			return c.Value, true
		}
	}
	return "", false
}

// MarshalJSON flattens the row into {"question_id":..,"org_<id>":..}
// keeping column order stable for charting.
func (r PivotRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"question_id":`)
	buf.WriteString(strconv.Itoa(r.QuestionID))
	for _, c := range r.Cells {
		val, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"`)
		buf.WriteString(ColumnKey(c.OrganizationID))
		buf.WriteString(`":`)
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// TallyRow holds per-category counts for one organization
type TallyRow struct {
	OrganizationID int    `json:"organization_id"`
	Name           string `json:"name"`
	Yes            int    `json:"Yes"`
	No             int    `json:"No"`
	NotApplicable  int    `json:"NotApplicable"`
	Other          int    `json:"Other"`
	NoResponse     int    `json:"NoResponse"`
}

// Count returns the bucket for c
func (t TallyRow) Count(c Category) int {
	switch c {
	case CategoryYes:
		return t.Yes
	case CategoryNo:
		return t.No
	case CategoryNotApplicable:
		return t.NotApplicable
	case CategoryOther:
		return t.Other
	case CategoryNoResponse:
		return t.NoResponse
	}
	return 0
}

// Total sums every bucket
func (t TallyRow) Total() int {
	return t.Yes + t.No + t.NotApplicable + t.Other + t.NoResponse
}

// Narrative is the validated output of a narrative service
type Narrative struct {
	Similarities []string `json:"similarities"`
	Differences  []string `json:"differences"`
	Summary      string   `json:"summary"`
}

// NarrativeResult wraps a narrative with where it came from
type NarrativeResult struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Narrative
}

// ComparisonRequest is the payload handed to a narrative backend
type ComparisonRequest struct {
	Org1      OrganizationProfile `json:"org1"`
	Org2      OrganizationProfile `json:"org2"`
	ClauseID  *int                `json:"clause_id,omitempty"`
	Clause    string              `json:"clause,omitempty"`
	StartDate string              `json:"start_date,omitempty"`
	EndDate   string              `json:"end_date,omitempty"`
}

// OrganizationProfile is an organization plus its in-scope responses
type OrganizationProfile struct {
	Organization
	Responses []ResponseEntry `json:"responses"`
}

// ResponseEntry is a normalized record enriched with catalog text
type ResponseEntry struct {
	ClauseID   int      `json:"clause_id"`
	Clause     string   `json:"clause"`
	QuestionID int      `json:"question_id"`
	Question   string   `json:"question"`
	Category   Category `json:"category"`
	Answer     string   `json:"answer,omitempty"`
	Comment    string   `json:"comment,omitempty"`
	Date       string   `json:"date,omitempty"`
}
