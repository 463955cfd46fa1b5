package aggregate

import (
	"fmt"

	"github.com/ppiankov/surveylens/internal/model"
)

// Labeler names organizations for tally rows
type Labeler interface {
	OrganizationName(id int) string
}

// LabelFunc adapts a function to Labeler
type LabelFunc func(id int) string

// OrganizationName implements Labeler
func (f LabelFunc) OrganizationName(id int) string { return f(id) }

// BuildTally counts categories per organization for bar-chart rendering.
//
// One row is produced per requested organization, in request order, whether
// or not it has any records. Free-form answers go to Other. NoResponse is
// whatever remains of expectedQuestions after the answered buckets, floored
// at zero; explicit empty answers therefore land there as well.
func BuildTally(records []model.NormalizedRecord, orgIDs []int, expectedQuestions int, labels Labeler) []model.TallyRow {
	if labels == nil {
		labels = LabelFunc(func(id int) string { return fmt.Sprintf("Organization %d", id) })
	}

	rows := make([]model.TallyRow, 0, len(orgIDs))
	pos := make(map[int]int, len(orgIDs))
	for _, id := range orgIDs {
		if _, dup := pos[id]; dup {
			continue
		}
		pos[id] = len(rows)
		rows = append(rows, model.TallyRow{OrganizationID: id, Name: labels.OrganizationName(id)})
	}

	for _, rec := range records {
		if !rec.Valid() {
			continue
		}
		i, ok := pos[rec.OrganizationID]
		if !ok {
			continue
		}
		switch rec.Category {
		case model.CategoryYes:
			rows[i].Yes++
		case model.CategoryNo:
			rows[i].No++
		case model.CategoryNotApplicable:
			rows[i].NotApplicable++
		case model.CategoryOther:
			rows[i].Other++
		}
	}

	for i := range rows {
		answered := rows[i].Yes + rows[i].No + rows[i].NotApplicable + rows[i].Other
		rows[i].NoResponse = max(expectedQuestions-answered, 0)
	}

	return rows
}
