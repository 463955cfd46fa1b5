package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/surveylens/internal/aggregate"
	"github.com/ppiankov/surveylens/internal/catalog"
	"github.com/ppiankov/surveylens/internal/filter"
	"github.com/ppiankov/surveylens/internal/model"
	"github.com/ppiankov/surveylens/internal/narrative"
	"github.com/ppiankov/surveylens/internal/normalize"
	"github.com/ppiankov/surveylens/internal/source"
)

const tracerName = "github.com/ppiankov/surveylens/internal/compare"

// Request describes one comparison action
type Request struct {
	OrganizationIDs []int

	// AllOrganizations compares every organization in the catalog and
	// ignores OrganizationIDs
	AllOrganizations bool

	ClauseID  *int
	StartDate string
	EndDate   string

	// Narrative asks for a narrative of exactly two organizations
	Narrative bool
}

// Filter returns the filter request for ids
func (r Request) Filter(ids []int) filter.Request {
	return filter.Request{
		OrganizationIDs: ids,
		ClauseID:        r.ClauseID,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
	}
}

// Validate rejects requests that cannot succeed, before any I/O
func (r Request) Validate(narrativeEnabled bool) error {
	if err := r.Filter(nil).Validate(); err != nil {
		return err
	}
	if !r.AllOrganizations && len(r.OrganizationIDs) == 0 {
		return fmt.Errorf("%w: at least one organization is required", model.ErrInvalidInput)
	}
	if !r.Narrative {
		return nil
	}
	if !narrativeEnabled {
		return fmt.Errorf("%w: no narrative provider is configured", model.ErrInvalidInput)
	}
	ids := dedupe(r.OrganizationIDs)
	if r.AllOrganizations || len(ids) != 2 {
		return fmt.Errorf("%w: a narrative compares exactly two organizations", model.ErrInvalidInput)
	}
	return nil
}

// Engine runs comparisons against a source and an optional narrator
type Engine struct {
	source     source.Source
	narrator   narrative.Narrator
	logger     *slog.Logger
	tracer     trace.Tracer
	useCompare bool
	workers    int
	now        func() time.Time
	newID      func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCompareEndpoint selects between the numeric /compare endpoint and
// per-organization /responses listings
func WithCompareEndpoint(enabled bool) Option {
	return func(e *Engine) { e.useCompare = enabled }
}

// WithWorkers bounds concurrent per-organization listings
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// NewEngine creates an engine. narrator may be nil.
func NewEngine(src source.Source, narrator narrative.Narrator, opts ...Option) *Engine {
	e := &Engine{
		source:     src,
		narrator:   narrator,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		useCompare: true,
		workers:    4,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NarrativeEnabled reports whether a narrator is configured
func (e *Engine) NarrativeEnabled() bool {
	return e.narrator != nil
}

// dataset is the joined output of the catalog and records branches
type dataset struct {
	index     *catalog.Index
	orgIDs    []int
	records   []model.NormalizedRecord
	malformed int
}

// Compare runs one comparison.
//
// Validation errors return before any I/O with a nil report. Otherwise the
// numeric branch and the narrative branch run concurrently and fail
// independently; a branch failure is recorded on the report. The returned
// error is non-nil only when every requested branch failed.
func (e *Engine) Compare(ctx context.Context, req Request) (*model.ComparisonReport, error) {
	if err := req.Validate(e.narrator != nil); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "compare.Compare")
	defer span.End()

	report := &model.ComparisonReport{
		ID:          e.newID(),
		GeneratedAt: e.now().UTC(),
		Scope:       req.Filter(dedupe(req.OrganizationIDs)).Scope(),
		Pivot:       []model.PivotRow{},
		Tally:       []model.TallyRow{},
	}
	span.SetAttributes(
		attribute.String("report.id", report.ID),
		attribute.IntSlice("organization_ids", report.Scope.OrganizationIDs),
		attribute.Bool("narrative", req.Narrative),
	)

	logger := e.logger.With("report_id", report.ID)
	logger.DebugContext(ctx, "comparison started", "organizations", report.Scope.OrganizationIDs, "all", req.AllOrganizations)

	var (
		wg      sync.WaitGroup
		data    *dataset
		dataErr error
		ready   = make(chan struct{})
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(ready)
		data, dataErr = e.loadData(ctx, req)
	}()

	if req.Narrative {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := e.narrate(ctx, req, report.Scope, ready, func() (*dataset, error) { return data, dataErr })
			if err != nil {
				logger.WarnContext(ctx, "narrative failed", "provider", e.narrator.Name(), "error", err)
				report.SetNarrativeError(err)
				return
			}
			report.Narrative = result
		}()
	}

	wg.Wait()

	if dataErr != nil {
		logger.WarnContext(ctx, "numeric comparison failed", "error", dataErr)
		report.SetNumericError(dataErr)
	} else {
		e.aggregate(report, req, data)
	}

	if len(report.Organizations) == 0 {
		for _, id := range report.Scope.OrganizationIDs {
			report.Organizations = append(report.Organizations, model.Organization{ID: id, Name: fmt.Sprintf("Organization %d", id)})
		}
	}

	logger.InfoContext(ctx, "comparison finished",
		"pivot_rows", len(report.Pivot),
		"records", report.Diagnostics.FilteredRecords,
		"numeric_error", report.NumericError,
		"narrative_error", report.NarrativeError,
	)

	if report.NumericErr() != nil && (!req.Narrative || report.NarrativeErr() != nil) {
		err := errors.Join(report.NumericErr(), report.NarrativeErr())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	return report, nil
}

func (e *Engine) aggregate(report *model.ComparisonReport, req Request, data *dataset) {
	idx := data.index
	freq := req.Filter(data.orgIDs)

	valid, invalid := normalize.Valid(data.records)
	filtered, _ := filter.Apply(valid, freq)

	expected := idx.QuestionCount(req.ClauseID)

	report.Scope = freq.Scope()
	report.Pivot = aggregate.BuildPivot(filtered)
	report.Questions = make([]model.Question, 0, len(report.Pivot))
	for _, row := range report.Pivot {
		q := idx.Question(row.QuestionID)
		q.ID = row.QuestionID
		report.Questions = append(report.Questions, q)
	}
	report.Tally = aggregate.BuildTally(filtered, data.orgIDs, expected, idx)
	report.Organizations = make([]model.Organization, 0, len(data.orgIDs))
	for _, id := range data.orgIDs {
		org := idx.Organization(id)
		org.ID = id
		org.Name = idx.OrganizationName(id)
		report.Organizations = append(report.Organizations, org)
	}
	if req.ClauseID != nil {
		if !idx.HasClause(*req.ClauseID) {
			e.logger.Warn("clause not in catalog", "report_id", report.ID, "clause_id", *req.ClauseID)
		}
		clause := idx.Clause(*req.ClauseID)
		clause.ID = *req.ClauseID
		report.Clause = &clause
	}
	report.Diagnostics = model.Diagnostics{
		TotalRecords:       len(data.records),
		InvalidRecords:     invalid,
		FilteredRecords:    len(filtered),
		ExpectedQuestions:  expected,
		MalformedResponses: data.malformed,
	}
}

// narrate runs the narrative branch. Self-sourcing backends start at
// once; the others wait for the data branch and fail with it.
func (e *Engine) narrate(ctx context.Context, req Request, scope model.Scope, ready <-chan struct{}, data func() (*dataset, error)) (*model.NarrativeResult, error) {
	ctx, span := e.tracer.Start(ctx, "compare.narrate", trace.WithAttributes(attribute.String("provider", e.narrator.Name())))
	defer span.End()

	ids := dedupe(req.OrganizationIDs)
	var payload model.ComparisonRequest

	if narrative.IsSelfSourcing(e.narrator) {
		payload = narrative.WithScope(narrative.Assemble(ids[0], ids[1], nil, nil), scope, nil)
	} else {
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		d, err := data()
		if err != nil {
			return nil, fmt.Errorf("narrative needs the comparison records: %w", err)
		}
		valid, _ := normalize.Valid(d.records)
		filtered, err := filter.Apply(valid, req.Filter(ids))
		if err != nil {
			return nil, err
		}
		payload = narrative.WithScope(narrative.Assemble(ids[0], ids[1], filtered, d.index), scope, d.index)
	}

	resp, err := e.narrator.Narrate(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("tokens", resp.TokensUsed))
	return &model.NarrativeResult{
		Provider:  e.narrator.Name(),
		Model:     resp.Model,
		Narrative: narrative.Validate(resp.Raw),
	}, nil
}

// loadData fetches the catalog and the records concurrently. When every
// organization is requested the records wait for the catalog to name them.
func (e *Engine) loadData(ctx context.Context, req Request) (*dataset, error) {
	ctx, span := e.tracer.Start(ctx, "compare.loadData")
	defer span.End()

	var (
		wg        sync.WaitGroup
		idx       *catalog.Index
		malformed int
		catErr    error
		records   []model.RawResponse
		recMal    int
		recErr    error
	)

	catalogDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(catalogDone)
		idx, malformed, catErr = e.loadCatalog(ctx)
	}()

	ids := dedupe(req.OrganizationIDs)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if req.AllOrganizations {
			<-catalogDone
			if catErr != nil {
				return
			}
			ids = idx.OrganizationIDs()
		}
		records, recMal, recErr = e.loadRecords(ctx, req.Filter(ids))
	}()

	wg.Wait()

	if err := errors.Join(catErr, recErr); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &dataset{
		index:     idx,
		orgIDs:    ids,
		records:   normalize.NormalizeWithCatalog(records, idx),
		malformed: malformed + recMal,
	}, nil
}

func (e *Engine) loadCatalog(ctx context.Context) (*catalog.Index, int, error) {
	var (
		wg        sync.WaitGroup
		orgs      source.Batch[model.Organization]
		clauses   source.Batch[model.Clause]
		questions source.Batch[model.Question]
		errs      [3]error
	)

	wg.Add(3)
	go func() { defer wg.Done(); orgs, errs[0] = e.source.Organizations(ctx) }()
	go func() { defer wg.Done(); clauses, errs[1] = e.source.Clauses(ctx) }()
	go func() { defer wg.Done(); questions, errs[2] = e.source.Questions(ctx) }()
	wg.Wait()

	if err := errors.Join(errs[:]...); err != nil {
		return nil, 0, err
	}

	malformed := orgs.Malformed + clauses.Malformed + questions.Malformed
	return catalog.Build(orgs.Items, clauses.Items, questions.Items), malformed, nil
}

func (e *Engine) loadRecords(ctx context.Context, freq filter.Request) ([]model.RawResponse, int, error) {
	if len(freq.OrganizationIDs) == 0 {
		return nil, 0, nil
	}
	if e.useCompare {
		batch, err := e.source.Compare(ctx, freq)
		return batch.Items, batch.Malformed, err
	}
	return e.listResponses(ctx, freq.OrganizationIDs)
}

func dedupe(ids []int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
