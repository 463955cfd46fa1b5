package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/surveylens/internal/filter"
	"github.com/ppiankov/surveylens/internal/model"
)

// SQLiteSource reads the survey backend's database file directly.
// The connection is query-only.
type SQLiteSource struct {
	db *sqlx.DB
}

// OpenSQLite opens the database at path
func OpenSQLite(path string) (*SQLiteSource, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite source requires source.sqlite_path")
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	return &SQLiteSource{db: db}, nil
}

// Close closes the database
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Organizations lists the organization catalog by id
func (s *SQLiteSource) Organizations(ctx context.Context) (Batch[model.Organization], error) {
	var orgs []model.Organization
	err := s.db.SelectContext(ctx, &orgs, `SELECT id, COALESCE(name, '') AS name,
		COALESCE(year_of_association, 0) AS year_of_association,
		COALESCE(details, '') AS details
		FROM organizations ORDER BY id`)
	if err != nil {
		return Batch[model.Organization]{}, queryError("organizations", err)
	}
	return Batch[model.Organization]{Items: nonNil(orgs)}, nil
}

// Clauses lists the clause catalog by id
func (s *SQLiteSource) Clauses(ctx context.Context) (Batch[model.Clause], error) {
	var clauses []model.Clause
	err := s.db.SelectContext(ctx, &clauses, `SELECT id, COALESCE(name, '') AS name,
		COALESCE(title, '') AS title
		FROM clauses ORDER BY id`)
	if err != nil {
		return Batch[model.Clause]{}, queryError("clauses", err)
	}
	return Batch[model.Clause]{Items: nonNil(clauses)}, nil
}

// Questions lists the question catalog by id. A question without a
// clause is reported with clause id 0.
func (s *SQLiteSource) Questions(ctx context.Context) (Batch[model.Question], error) {
	var questions []model.Question
	err := s.db.SelectContext(ctx, &questions, `SELECT id, COALESCE(text, '') AS text,
		COALESCE(title, '') AS title, COALESCE(clause_id, 0) AS clause_id
		FROM questions ORDER BY id`)
	if err != nil {
		return Batch[model.Question]{}, queryError("questions", err)
	}
	return Batch[model.Question]{Items: nonNil(questions)}, nil
}

type responseRow struct {
	ID             sql.NullInt64  `db:"id"`
	OrganizationID sql.NullInt64  `db:"organization_id"`
	ClauseID       sql.NullInt64  `db:"clause_id"`
	QuestionID     sql.NullInt64  `db:"question_id"`
	ResponseType   sql.NullString `db:"response_type"`
	Comment        sql.NullString `db:"comment"`
	Date           sql.NullString `db:"date"`
}

// raw maps NULL columns to missing fields so the normalizer sees them
// exactly as it would a sparse JSON record
func (r responseRow) raw() model.RawResponse {
	var out model.RawResponse
	if r.ID.Valid {
		out.ID = r.ID.Int64
	}
	if r.OrganizationID.Valid {
		out.OrganizationID = r.OrganizationID.Int64
	}
	if r.ClauseID.Valid {
		out.ClauseID = r.ClauseID.Int64
	}
	if r.QuestionID.Valid {
		out.QuestionID = r.QuestionID.Int64
	}
	if r.ResponseType.Valid {
		out.ResponseType = r.ResponseType.String
	}
	if r.Comment.Valid {
		out.Comment = r.Comment.String
	}
	if r.Date.Valid {
		out.Date = r.Date.String
	}
	return out
}

// date() normalizes whatever the ORM stored to YYYY-MM-DD text
const responseColumns = `SELECT id, organization_id, clause_id, question_id,
	response_type, comment, date(date) AS date FROM responses`

// Responses lists one organization's responses by id
func (s *SQLiteSource) Responses(ctx context.Context, organizationID int) (Batch[model.RawResponse], error) {
	return s.selectResponses(ctx, responseColumns+" WHERE organization_id = ? ORDER BY id", organizationID)
}

// Compare filters responses in SQL with the same predicates as filter.Apply
func (s *SQLiteSource) Compare(ctx context.Context, req filter.Request) (Batch[model.RawResponse], error) {
	if err := req.Validate(); err != nil {
		return Batch[model.RawResponse]{}, err
	}
	if len(req.OrganizationIDs) == 0 {
		return Batch[model.RawResponse]{Items: []model.RawResponse{}}, nil
	}

	where := []string{"organization_id IN (?)"}
	args := []any{req.OrganizationIDs}
	if req.ClauseID != nil {
		where = append(where, "clause_id = ?")
		args = append(args, *req.ClauseID)
	}
	if req.StartDate != "" {
		where = append(where, "date(date) >= ?")
		args = append(args, req.StartDate)
	}
	if req.EndDate != "" {
		where = append(where, "date(date) <= ?")
		args = append(args, req.EndDate)
	}

	query, args, err := sqlx.In(responseColumns+" WHERE "+strings.Join(where, " AND ")+" ORDER BY id", args...)
	if err != nil {
		return Batch[model.RawResponse]{}, fmt.Errorf("build compare query: %w", err)
	}
	return s.selectResponses(ctx, s.db.Rebind(query), args...)
}

func (s *SQLiteSource) selectResponses(ctx context.Context, query string, args ...any) (Batch[model.RawResponse], error) {
	var rows []responseRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return Batch[model.RawResponse]{}, queryError("responses", err)
	}

	out := make([]model.RawResponse, len(rows))
	for i, r := range rows {
		out[i] = r.raw()
	}
	return Batch[model.RawResponse]{Items: out}, nil
}

func queryError(table string, err error) error {
	return &model.ServiceError{Service: "sqlite", Endpoint: table, Err: err}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
