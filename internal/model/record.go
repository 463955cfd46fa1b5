package model

// Category is the canonical answer classification
type Category string

const (
	CategoryYes           Category = "Yes"
	CategoryNo            Category = "No"
	CategoryNotApplicable Category = "NotApplicable"
	CategoryNoResponse    Category = "NoResponse"
	CategoryOther         Category = "Other" // Free-form legacy answer, literal kept in NormalizedRecord.Answer
)

// Categories lists every canonical category in display order
func Categories() []Category {
	return []Category{CategoryYes, CategoryNo, CategoryNotApplicable, CategoryOther, CategoryNoResponse}
}

// NormalizedRecord is the canonical, request-scoped form of a response
type NormalizedRecord struct {
	OrganizationID int      `json:"organization_id"`
	ClauseID       int      `json:"clause_id"`
	QuestionID     int      `json:"question_id"`
	Category       Category `json:"category"`
	Answer         string   `json:"answer,omitempty"` // Trimmed original answer text
	Comment        string   `json:"comment,omitempty"`
	Date           string   `json:"date,omitempty"` // Opaque YYYY-MM-DD string

	// Err is set when the raw record could not be normalized.
	// Such records never reach aggregation.
	Err error `json:"-"`
}

// Valid reports whether the record survived normalization
func (r NormalizedRecord) Valid() bool {
	return r.Err == nil
}

// Value returns what a chart cell shows for this record:
// the canonical label, or the literal answer for free-form categories.
func (r NormalizedRecord) Value() string {
	if r.Category == CategoryOther && r.Answer != "" {
		return r.Answer
	}
	return string(r.Category)
}
