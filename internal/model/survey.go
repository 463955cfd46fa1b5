package model

// Organization is a survey participant as served by the survey API
type Organization struct {
	ID                int    `json:"id" db:"id"`
	Name              string `json:"name" db:"name"`
	YearOfAssociation int    `json:"year_of_association" db:"year_of_association"`
	Details           string `json:"details,omitempty" db:"details"`
}

// Clause is a top-level grouping of questions (e.g. a regulatory section)
type Clause struct {
	ID    int    `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Title string `json:"title,omitempty" db:"title"`
}

// DisplayName returns the title, falling back to the name
func (c Clause) DisplayName() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Name
}

// Question is a single survey item owned by exactly one clause
type Question struct {
	ID       int    `json:"id" db:"id"`
	Text     string `json:"text" db:"text"`
	Title    string `json:"title,omitempty" db:"title"`
	ClauseID int    `json:"clause_id" db:"clause_id"`
}

// DisplayName returns the title, falling back to the question text
func (q Question) DisplayName() string {
	if q.Title != "" {
		return q.Title
	}
	return q.Text
}

// RawResponse is a response record exactly as received from a source.
// Fields are loosely typed because legacy rows may carry missing ids,
// numeric strings or free-form answers; the normalizer sorts that out.
type RawResponse struct {
	ID             any `json:"id,omitempty"`
	OrganizationID any `json:"organization_id"`
	ClauseID       any `json:"clause_id"`
	QuestionID     any `json:"question_id"`

	// The answer arrives under different keys depending on the endpoint:
	// response_type on /responses, response_text on /compare.
	ResponseType any `json:"response_type,omitempty"`
	ResponseText any `json:"response_text,omitempty"`
	Category     any `json:"category,omitempty"`

	Comment any `json:"comment,omitempty"`
	Date    any `json:"date,omitempty"`
}

// Answer returns the first non-nil answer field
func (r RawResponse) Answer() any {
	for _, v := range []any{r.ResponseType, r.ResponseText, r.Category} {
		if v != nil {
			return v
		}
	}
	return nil
}
