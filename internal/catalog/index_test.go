package catalog

import (
	"testing"

	"github.com/ppiankov/surveylens/internal/model"
)

func testCatalog() *Index {
	orgs := []model.Organization{
		{ID: 5, Name: "Acme"},
		{ID: 2, Name: "Globex"},
	}
	clauses := []model.Clause{
		{ID: 1, Name: "c1", Title: "Governance"},
		{ID: 2, Name: "c2"},
	}
	questions := []model.Question{
		{ID: 11, Text: "Second", ClauseID: 1},
		{ID: 10, Text: "First", ClauseID: 1},
		{ID: 20, Text: "Other clause", ClauseID: 2},
		{ID: 30, Text: "Dangling", ClauseID: 99},
	}
	return Build(orgs, clauses, questions)
}

func TestBuild_Lookups(t *testing.T) {
	idx := testCatalog()

	if got := idx.Clause(1).DisplayName(); got != "Governance" {
		t.Errorf("expected clause title, got %q", got)
	}
	if got := idx.Clause(2).DisplayName(); got != "c2" {
		t.Errorf("expected clause name fallback, got %q", got)
	}
	if got := idx.Question(10).Text; got != "First" {
		t.Errorf("unexpected question text %q", got)
	}
	if got := idx.OrganizationName(5); got != "Acme" {
		t.Errorf("unexpected organization name %q", got)
	}
}

func TestBuild_UnknownIDsReturnSentinels(t *testing.T) {
	idx := testCatalog()

	if idx.Clause(404) != UnknownClause {
		t.Error("expected UnknownClause for missing clause")
	}
	if idx.Question(404) != UnknownQuestion {
		t.Error("expected UnknownQuestion for missing question")
	}
	if idx.Organization(404) != UnknownOrganization {
		t.Error("expected UnknownOrganization for missing organization")
	}
	if got := idx.OrganizationName(404); got != "Organization 404" {
		t.Errorf("unexpected fallback label %q", got)
	}
}

func TestBuild_DanglingClauseTolerated(t *testing.T) {
	idx := testCatalog()

	clauseID, ok := idx.ClauseOf(30)
	if !ok || clauseID != 99 {
		t.Fatalf("expected question 30 to map to clause 99, got %d (ok=%v)", clauseID, ok)
	}
	if idx.HasClause(99) {
		t.Error("clause 99 should not exist")
	}
	if idx.Clause(clauseID) != UnknownClause {
		t.Error("dangling clause should resolve to UnknownClause")
	}
	if got := idx.QuestionsByClause(99); len(got) != 1 || got[0] != 30 {
		t.Errorf("expected dangling question grouped under 99, got %v", got)
	}
}

func TestQuestionsByClause_PreservesInsertionOrder(t *testing.T) {
	idx := testCatalog()

	got := idx.QuestionsByClause(1)
	want := []int{11, 10}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %d, got %d", i, want[i], got[i])
		}
	}

	// Returned slice is a copy
	got[0] = 999
	if idx.QuestionsByClause(1)[0] != 11 {
		t.Error("QuestionsByClause leaked internal state")
	}
}

func TestQuestionCount(t *testing.T) {
	idx := testCatalog()
	one, missing := 1, 404

	tests := []struct {
		name   string
		clause *int
		want   int
	}{
		{"all questions", nil, 4},
		{"clause scoped", &one, 2},
		{"unknown clause", &missing, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := idx.QuestionCount(tt.clause); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestOrganizationIDs_CatalogOrderDeduplicated(t *testing.T) {
	idx := Build([]model.Organization{{ID: 3}, {ID: 1}, {ID: 3, Name: "renamed"}}, nil, nil)

	ids := idx.OrganizationIDs()
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 1 {
		t.Errorf("expected [3 1], got %v", ids)
	}
	if idx.OrganizationName(3) != "renamed" {
		t.Errorf("expected later duplicate to win lookup, got %q", idx.OrganizationName(3))
	}
}
