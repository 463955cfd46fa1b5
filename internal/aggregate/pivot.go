package aggregate

import "github.com/ppiankov/surveylens/internal/model"

// BuildPivot groups records by question for line-chart rendering.
//
// Rows follow the order in which questions are first seen, and columns the
// order in which organizations are first seen within a row. Raw data is not
// deduplicated, so when an organization has several records for the same
// question the last one in input order wins the cell.
func BuildPivot(records []model.NormalizedRecord) []model.PivotRow {
	rows := make([]model.PivotRow, 0)
	rowPos := make(map[int]int)
	cellPos := make(map[[2]int]int)

	for _, rec := range records {
		if !rec.Valid() {
			continue
		}

		ri, ok := rowPos[rec.QuestionID]
		if !ok {
			ri = len(rows)
			rowPos[rec.QuestionID] = ri
			rows = append(rows, model.PivotRow{QuestionID: rec.QuestionID})
		}

		key := [2]int{rec.QuestionID, rec.OrganizationID}
		if ci, ok := cellPos[key]; ok {
			rows[ri].Cells[ci].Value = rec.Value()
			continue
		}
		cellPos[key] = len(rows[ri].Cells)
		rows[ri].Cells = append(rows[ri].Cells, model.PivotCell{
			OrganizationID: rec.OrganizationID,
			Value:          rec.Value(),
		})
	}

	return rows
}
