package compare

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/surveylens/internal/catalog"
	"github.com/ppiankov/surveylens/internal/filter"
	"github.com/ppiankov/surveylens/internal/model"
	"github.com/ppiankov/surveylens/internal/narrative"
	"github.com/ppiankov/surveylens/internal/source"
)

type fakeSource struct {
	orgs      []model.Organization
	clauses   []model.Clause
	questions []model.Question
	responses []model.RawResponse

	compareErr error
	compareMal int

	// gate, when set, blocks Compare until closed
	gate chan struct{}

	calls        int32
	compareCalls int32
	listCalls    int32
	lastCompare  filter.Request
	mu           sync.Mutex
}

func (f *fakeSource) Organizations(context.Context) (source.Batch[model.Organization], error) {
	atomic.AddInt32(&f.calls, 1)
	return source.Batch[model.Organization]{Items: f.orgs}, nil
}

func (f *fakeSource) Clauses(context.Context) (source.Batch[model.Clause], error) {
	atomic.AddInt32(&f.calls, 1)
	return source.Batch[model.Clause]{Items: f.clauses}, nil
}

func (f *fakeSource) Questions(context.Context) (source.Batch[model.Question], error) {
	atomic.AddInt32(&f.calls, 1)
	return source.Batch[model.Question]{Items: f.questions}, nil
}

func (f *fakeSource) Responses(_ context.Context, orgID int) (source.Batch[model.RawResponse], error) {
	atomic.AddInt32(&f.calls, 1)
	atomic.AddInt32(&f.listCalls, 1)
	var out []model.RawResponse
	for _, r := range f.responses {
		if r.OrganizationID == orgID {
			out = append(out, r)
		}
	}
	return source.Batch[model.RawResponse]{Items: out}, nil
}

func (f *fakeSource) Compare(ctx context.Context, req filter.Request) (source.Batch[model.RawResponse], error) {
	atomic.AddInt32(&f.calls, 1)
	atomic.AddInt32(&f.compareCalls, 1)
	f.mu.Lock()
	f.lastCompare = req
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return source.Batch[model.RawResponse]{}, ctx.Err()
		case <-time.After(2 * time.Second):
			return source.Batch[model.RawResponse]{}, errors.New("gate never opened")
		}
	}
	if f.compareErr != nil {
		return source.Batch[model.RawResponse]{}, f.compareErr
	}
	return source.Batch[model.RawResponse]{Items: f.responses, Malformed: f.compareMal}, nil
}

func (f *fakeSource) Close() error { return nil }

type fakeNarrator struct {
	raw          string
	err          error
	selfSourcing bool
	onNarrate    func()

	mu       sync.Mutex
	received *model.ComparisonRequest
}

func (n *fakeNarrator) Name() string { return "fake" }

func (n *fakeNarrator) Narrate(_ context.Context, req model.ComparisonRequest) (*narrative.Response, error) {
	n.mu.Lock()
	n.received = &req
	n.mu.Unlock()
	if n.onNarrate != nil {
		n.onNarrate()
	}
	if n.err != nil {
		return nil, n.err
	}
	return &narrative.Response{Raw: []byte(n.raw), Model: "fake-1"}, nil
}

type selfSourcingNarrator struct{ *fakeNarrator }

func (selfSourcingNarrator) SelfSourcing() bool { return true }

func intPtr(v int) *int { return &v }

func sampleSource() *fakeSource {
	return &fakeSource{
		orgs: []model.Organization{
			{ID: 1, Name: "Acme", YearOfAssociation: 2019},
			{ID: 2, Name: "Globex"},
			{ID: 3, Name: "Initech"},
		},
		clauses: []model.Clause{{ID: 1, Name: "c1", Title: "Governance"}, {ID: 2, Name: "c2"}},
		questions: []model.Question{
			{ID: 10, Text: "Board oversight?", ClauseID: 1},
			{ID: 11, Text: "Risk register?", ClauseID: 1},
			{ID: 20, Text: "Retention?", ClauseID: 2},
		},
		responses: []model.RawResponse{
			{OrganizationID: 1, ClauseID: 1, QuestionID: 10, ResponseText: "Yes", Date: "2024-01-10"},
			{OrganizationID: 2, ClauseID: 1, QuestionID: 10, ResponseText: "No", Date: "2024-02-10"},
			{OrganizationID: 2, ClauseID: 1, QuestionID: 11, ResponseText: "Under review", Date: "2024-07-01"},
			{OrganizationID: 1, ClauseID: 2, QuestionID: 20, ResponseText: "Not applicable", Date: "2024-03-01"},
			{OrganizationID: 3, ClauseID: 1, QuestionID: 10, ResponseText: "Yes", Date: "2024-03-01"},
			{ClauseID: 1, QuestionID: 11, ResponseText: "Yes"},
		},
	}
}

func newTestEngine(src source.Source, n narrative.Narrator, opts ...Option) *Engine {
	e := NewEngine(src, n, opts...)
	e.newID = func() string { return "report-1" }
	e.now = func() time.Time { return time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestEngine_Compare_Numeric(t *testing.T) {
	src := sampleSource()
	e := newTestEngine(src, nil)

	report, err := e.Compare(context.Background(), Request{
		OrganizationIDs: []int{2, 1, 2},
		ClauseID:        intPtr(1),
		StartDate:       "2024-01-01",
		EndDate:         "2024-06-30",
	})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if report.ID != "report-1" || !report.GeneratedAt.Equal(time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected id/time %s %s", report.ID, report.GeneratedAt)
	}
	if len(report.Organizations) != 2 || report.Organizations[0].Name != "Globex" {
		t.Errorf("Expected organizations in request order, got %+v", report.Organizations)
	}
	if report.Clause == nil || report.Clause.DisplayName() != "Governance" {
		t.Errorf("Expected clause Governance, got %+v", report.Clause)
	}

	if len(report.Pivot) != 1 || report.Pivot[0].QuestionID != 10 {
		t.Fatalf("Expected one pivot row for q10, got %+v", report.Pivot)
	}
	if v, _ := report.Pivot[0].Value(2); v != "No" {
		t.Errorf("Expected org 2 = No, got %q", v)
	}

	if len(report.Tally) != 2 {
		t.Fatalf("Expected 2 tally rows, got %d", len(report.Tally))
	}
	globex := report.Tally[0]
	if globex.Name != "Globex" || globex.No != 1 || globex.NoResponse != 1 {
		t.Errorf("Unexpected Globex tally %+v", globex)
	}

	d := report.Diagnostics
	if d.TotalRecords != 6 || d.InvalidRecords != 1 || d.FilteredRecords != 2 || d.ExpectedQuestions != 2 {
		t.Errorf("Unexpected diagnostics %+v", d)
	}
	if src.lastCompare.StartDate != "2024-01-01" || len(src.lastCompare.OrganizationIDs) != 2 {
		t.Errorf("Expected deduplicated filters forwarded to the source, got %+v", src.lastCompare)
	}
}

func TestEngine_Compare_UnknownClauseGetsSentinel(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	report, err := newTestEngine(sampleSource(), nil, WithLogger(logger)).Compare(context.Background(), Request{
		OrganizationIDs: []int{1},
		ClauseID:        intPtr(99),
	})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if report.Clause == nil || report.Clause.ID != 99 || report.Clause.DisplayName() != catalog.UnknownClause.DisplayName() {
		t.Errorf("Expected the unknown clause sentinel, got %+v", report.Clause)
	}
	if !bytes.Contains(logs.Bytes(), []byte("clause not in catalog")) || !bytes.Contains(logs.Bytes(), []byte("clause_id=99")) {
		t.Errorf("Expected a warning for the unknown clause, got %q", logs.String())
	}
}

func TestEngine_Compare_ValidationBeforeIO(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		narrator narrative.Narrator
		want     error
	}{
		{"inverted range", Request{OrganizationIDs: []int{1}, StartDate: "2024-02-01", EndDate: "2024-01-01"}, nil, model.ErrInvalidRange},
		{"no organizations", Request{}, nil, model.ErrInvalidInput},
		{"narrative without provider", Request{OrganizationIDs: []int{1, 2}, Narrative: true}, nil, model.ErrInvalidInput},
		{"narrative of one", Request{OrganizationIDs: []int{1}, Narrative: true}, &fakeNarrator{}, model.ErrInvalidInput},
		{"narrative of the same organization", Request{OrganizationIDs: []int{4, 4}, Narrative: true}, &fakeNarrator{}, model.ErrInvalidInput},
		{"narrative of three", Request{OrganizationIDs: []int{1, 2, 3}, Narrative: true}, &fakeNarrator{}, model.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := sampleSource()
			report, err := newTestEngine(src, tt.narrator).Compare(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if report != nil {
				t.Error("Expected no report for an invalid request")
			}
			if atomic.LoadInt32(&src.calls) != 0 {
				t.Errorf("Expected no source calls, got %d", src.calls)
			}
		})
	}
}

func TestEngine_Compare_WithNarrative(t *testing.T) {
	src := sampleSource()
	n := &fakeNarrator{raw: `{"similarities": "- Both answered q10", "differences": ["Acme said yes"], "summary": "Mixed"}`}

	report, err := newTestEngine(src, n).Compare(context.Background(), Request{
		OrganizationIDs: []int{1, 2},
		StartDate:       "2024-01-01",
		EndDate:         "2024-06-30",
		Narrative:       true,
	})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if report.Narrative == nil {
		t.Fatal("Expected a narrative")
	}
	if report.Narrative.Provider != "fake" || report.Narrative.Model != "fake-1" {
		t.Errorf("Unexpected provenance %+v", report.Narrative)
	}
	if len(report.Narrative.Similarities) != 1 || report.Narrative.Similarities[0] != "Both answered q10" {
		t.Errorf("Expected validated list, got %q", report.Narrative.Similarities)
	}

	got := n.received
	if got.Org1.Name != "Acme" || got.Org2.Name != "Globex" {
		t.Errorf("Expected catalog names in payload, got %q/%q", got.Org1.Name, got.Org2.Name)
	}
	if len(got.Org1.Responses) != 2 || len(got.Org2.Responses) != 1 {
		t.Errorf("Expected in-window responses only, got %d/%d", len(got.Org1.Responses), len(got.Org2.Responses))
	}
	if got.Org1.Responses[0].Question != "Board oversight?" || got.StartDate != "2024-01-01" {
		t.Errorf("Expected enriched, scoped payload, got %+v", got)
	}
}

func TestEngine_Compare_NarrativeFailureKeepsNumbers(t *testing.T) {
	n := &fakeNarrator{err: &model.ServiceError{Service: "narrative", Endpoint: "fake", StatusCode: 503}}

	report, err := newTestEngine(sampleSource(), n).Compare(context.Background(), Request{OrganizationIDs: []int{1, 2}, Narrative: true})
	if err != nil {
		t.Fatalf("Expected partial success, got %v", err)
	}
	if len(report.Pivot) == 0 || len(report.Tally) != 2 {
		t.Error("Expected numeric artifacts despite the narrative failure")
	}
	if !errors.Is(report.NarrativeErr(), model.ErrServiceUnavailable) || report.NarrativeError == "" {
		t.Errorf("Expected narrative error recorded, got %v", report.NarrativeErr())
	}
	if report.Narrative != nil {
		t.Error("Expected no narrative")
	}
}

func TestEngine_Compare_NumericFailure(t *testing.T) {
	src := sampleSource()
	src.compareErr = &model.ServiceError{Service: "survey-api", Endpoint: "/compare", StatusCode: 500}

	report, err := newTestEngine(src, nil).Compare(context.Background(), Request{OrganizationIDs: []int{1, 2}})
	if !errors.Is(err, model.ErrServiceUnavailable) {
		t.Fatalf("Expected ErrServiceUnavailable, got %v", err)
	}
	if report == nil || report.NumericError == "" {
		t.Fatal("Expected a report carrying the numeric error")
	}
	if len(report.Organizations) != 2 || report.Organizations[1].Name != "Organization 2" {
		t.Errorf("Expected placeholder organizations, got %+v", report.Organizations)
	}
}

func TestEngine_Compare_SelfSourcingNarrativeRunsAlongside(t *testing.T) {
	src := sampleSource()
	src.gate = make(chan struct{})
	src.compareErr = &model.ServiceError{Service: "survey-api", Endpoint: "/compare", StatusCode: 502}

	n := selfSourcingNarrator{&fakeNarrator{
		raw:       `{"summary": "From the API"}`,
		onNarrate: func() { close(src.gate) },
	}}

	report, err := newTestEngine(src, n).Compare(context.Background(), Request{
		OrganizationIDs: []int{1, 2},
		ClauseID:        intPtr(1),
		Narrative:       true,
	})
	if err != nil {
		t.Fatalf("Expected the narrative to rescue the request, got %v", err)
	}
	if report.Narrative == nil || report.Narrative.Summary != "From the API" {
		t.Errorf("Expected narrative, got %+v", report.Narrative)
	}
	if !errors.Is(report.NumericErr(), model.ErrServiceUnavailable) {
		t.Errorf("Expected numeric failure recorded, got %v", report.NumericErr())
	}

	got := n.received
	if got.Org1.ID != 1 || got.Org2.ID != 2 || got.ClauseID == nil || *got.ClauseID != 1 {
		t.Errorf("Expected ids and scope in the self-sourced payload, got %+v", got)
	}
}

func TestEngine_Compare_LLMNarrativeFailsWithData(t *testing.T) {
	src := sampleSource()
	src.compareErr = &model.ServiceError{Service: "survey-api", Endpoint: "/compare", StatusCode: 502}
	n := &fakeNarrator{raw: `{}`}

	report, err := newTestEngine(src, n).Compare(context.Background(), Request{OrganizationIDs: []int{1, 2}, Narrative: true})
	if err == nil {
		t.Fatal("Expected an error when both branches fail")
	}
	if report.NumericError == "" || report.NarrativeError == "" {
		t.Errorf("Expected both errors recorded, got %q / %q", report.NumericError, report.NarrativeError)
	}
	if n.received != nil {
		t.Error("LLM narrator must not be called without records")
	}
}

func TestEngine_Compare_AllOrganizations(t *testing.T) {
	report, err := newTestEngine(sampleSource(), nil).Compare(context.Background(), Request{AllOrganizations: true})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if len(report.Tally) != 3 {
		t.Fatalf("Expected a tally row per catalog organization, got %d", len(report.Tally))
	}
	for _, row := range report.Tally {
		if row.Total() != 3 {
			t.Errorf("Expected buckets to sum to the 3 catalog questions, got %+v", row)
		}
	}
	if len(report.Scope.OrganizationIDs) != 3 {
		t.Errorf("Expected scope to list the catalog organizations, got %v", report.Scope.OrganizationIDs)
	}
}

func TestEngine_Compare_PerOrganizationListing(t *testing.T) {
	src := sampleSource()

	report, err := newTestEngine(src, nil, WithCompareEndpoint(false), WithWorkers(2)).Compare(context.Background(), Request{
		OrganizationIDs: []int{3, 1},
	})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if atomic.LoadInt32(&src.compareCalls) != 0 || atomic.LoadInt32(&src.listCalls) != 2 {
		t.Errorf("Expected 2 listings and no /compare call, got %d/%d", src.listCalls, src.compareCalls)
	}
	if v, _ := report.Pivot[0].Value(3); v != "Yes" {
		t.Errorf("Expected organization 3's records first, got %+v", report.Pivot)
	}
}

func TestEngine_Compare_BackfillsMissingClause(t *testing.T) {
	src := sampleSource()
	src.responses = []model.RawResponse{
		{OrganizationID: 1, QuestionID: 20, ResponseText: "No", Date: "2024-01-01"},
		{OrganizationID: 1, QuestionID: 10, ResponseText: "Yes", Date: "2024-01-01"},
	}

	report, err := newTestEngine(src, nil).Compare(context.Background(), Request{OrganizationIDs: []int{1}, ClauseID: intPtr(2)})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(report.Pivot) != 1 || report.Pivot[0].QuestionID != 20 {
		t.Errorf("Expected the clause filter to apply to backfilled records, got %+v", report.Pivot)
	}
	if report.Diagnostics.InvalidRecords != 0 {
		t.Errorf("Expected no invalid records, got %d", report.Diagnostics.InvalidRecords)
	}
}
