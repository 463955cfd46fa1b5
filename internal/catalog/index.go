package catalog

import (
	"fmt"

	"github.com/ppiankov/surveylens/internal/model"
)

// Sentinels returned for ids the catalog does not know about.
// Stale ids are common after catalog edits; rendering must not fail on them.
var (
	UnknownOrganization = model.Organization{Name: "Unknown organization"}
	UnknownClause       = model.Clause{Name: "Unknown clause"}
	UnknownQuestion     = model.Question{Text: "Unknown question"}
)

// Index is an immutable lookup structure over one catalog snapshot
type Index struct {
	organizations     []model.Organization
	organizationByID  map[int]model.Organization
	clauseByID        map[int]model.Clause
	questionByID      map[int]model.Question
	clauseOfQuestion  map[int]int
	questionsByClause map[int][]int
	questionOrder     []int
}

// Build indexes a catalog. Input order is preserved for every
// ordered view; the catalog source does not guarantee any sort order.
func Build(orgs []model.Organization, clauses []model.Clause, questions []model.Question) *Index {
	idx := &Index{
		organizationByID:  make(map[int]model.Organization, len(orgs)),
		clauseByID:        make(map[int]model.Clause, len(clauses)),
		questionByID:      make(map[int]model.Question, len(questions)),
		clauseOfQuestion:  make(map[int]int, len(questions)),
		questionsByClause: make(map[int][]int),
	}

	orgPos := make(map[int]int, len(orgs))
	for _, o := range orgs {
		if pos, seen := orgPos[o.ID]; seen {
			idx.organizations[pos] = o
		} else {
			orgPos[o.ID] = len(idx.organizations)
			idx.organizations = append(idx.organizations, o)
		}
		idx.organizationByID[o.ID] = o
	}
	for _, c := range clauses {
		idx.clauseByID[c.ID] = c
	}
	for _, q := range questions {
		if _, seen := idx.questionByID[q.ID]; !seen {
			idx.questionOrder = append(idx.questionOrder, q.ID)
			idx.questionsByClause[q.ClauseID] = append(idx.questionsByClause[q.ClauseID], q.ID)
		}
		idx.questionByID[q.ID] = q
		idx.clauseOfQuestion[q.ID] = q.ClauseID
	}

	return idx
}

// Organization returns the organization or UnknownOrganization
func (i *Index) Organization(id int) model.Organization {
	if o, ok := i.organizationByID[id]; ok {
		return o
	}
	return UnknownOrganization
}

// Organizations returns every organization in catalog order
func (i *Index) Organizations() []model.Organization {
	out := make([]model.Organization, len(i.organizations))
	copy(out, i.organizations)
	return out
}

// OrganizationIDs returns every organization id in catalog order
func (i *Index) OrganizationIDs() []int {
	ids := make([]int, len(i.organizations))
	for n, o := range i.organizations {
		ids[n] = o.ID
	}
	return ids
}

// OrganizationName labels an organization for display
func (i *Index) OrganizationName(id int) string {
	if o, ok := i.organizationByID[id]; ok && o.Name != "" {
		return o.Name
	}
	return fmt.Sprintf("Organization %d", id)
}

// Clause returns the clause or UnknownClause
func (i *Index) Clause(id int) model.Clause {
	if c, ok := i.clauseByID[id]; ok {
		return c
	}
	return UnknownClause
}

// HasClause reports whether the clause id exists
func (i *Index) HasClause(id int) bool {
	_, ok := i.clauseByID[id]
	return ok
}

// Question returns the question or UnknownQuestion
func (i *Index) Question(id int) model.Question {
	if q, ok := i.questionByID[id]; ok {
		return q
	}
	return UnknownQuestion
}

// ClauseOf returns the clause owning a question, or false for unknown questions
func (i *Index) ClauseOf(questionID int) (int, bool) {
	c, ok := i.clauseOfQuestion[questionID]
	return c, ok
}

// QuestionsByClause returns the question ids of a clause in catalog order
func (i *Index) QuestionsByClause(clauseID int) []int {
	ids := i.questionsByClause[clauseID]
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}

// QuestionCount returns how many questions are in scope:
// those of the given clause, or the whole catalog when clauseID is nil.
func (i *Index) QuestionCount(clauseID *int) int {
	if clauseID == nil {
		return len(i.questionOrder)
	}
	return len(i.questionsByClause[*clauseID])
}
