package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/surveylens/internal/cache"
	"github.com/ppiankov/surveylens/internal/filter"
	"github.com/ppiankov/surveylens/internal/model"
	"github.com/ppiankov/surveylens/internal/util"
)

const tracerName = "github.com/ppiankov/surveylens/internal/source"

// HTTPSource reads the survey API. Catalog bodies are cached; response
// bodies never are, since they change between comparisons.
type HTTPSource struct {
	baseURL   string
	client    *http.Client
	limiter   Waiter
	cache     cache.Cache
	cacheTTL  time.Duration
	userAgent string
	maxBytes  int64
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewHTTPSource creates a source for the API at cfg.BaseURL
func NewHTTPSource(cfg model.APIConfig, cacheTTL time.Duration, opts Options) *HTTPSource {
	client := opts.Client
	if client == nil {
		client = util.NewHTTPClient(cfg)
	}
	c := opts.Cache
	if c == nil {
		c = cache.Noop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}

	return &HTTPSource{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		client:    client,
		limiter:   opts.Limiter,
		cache:     c,
		cacheTTL:  cacheTTL,
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Organizations lists the organization catalog
func (s *HTTPSource) Organizations(ctx context.Context) (Batch[model.Organization], error) {
	return fetchArray[model.Organization](ctx, s, "/organizations", nil, true)
}

// Clauses lists the clause catalog
func (s *HTTPSource) Clauses(ctx context.Context) (Batch[model.Clause], error) {
	return fetchArray[model.Clause](ctx, s, "/clauses", nil, true)
}

// Questions lists the question catalog
func (s *HTTPSource) Questions(ctx context.Context) (Batch[model.Question], error) {
	return fetchArray[model.Question](ctx, s, "/questions", nil, true)
}

// Responses lists one organization's responses
func (s *HTTPSource) Responses(ctx context.Context, organizationID int) (Batch[model.RawResponse], error) {
	params := url.Values{}
	params.Set("organization_id", strconv.Itoa(organizationID))
	return fetchArray[model.RawResponse](ctx, s, "/responses", params, false)
}

// Compare calls the numeric comparison endpoint. The range is checked
// before any request is made.
func (s *HTTPSource) Compare(ctx context.Context, req filter.Request) (Batch[model.RawResponse], error) {
	if err := req.Validate(); err != nil {
		return Batch[model.RawResponse]{}, err
	}
	if len(req.OrganizationIDs) == 0 {
		// The endpoint reads an empty list as "all organizations"
		return Batch[model.RawResponse]{Items: []model.RawResponse{}}, nil
	}

	params := url.Values{}
	for _, id := range req.OrganizationIDs {
		params.Add("organization_ids", strconv.Itoa(id))
	}
	if req.ClauseID != nil {
		params.Set("clause_id", strconv.Itoa(*req.ClauseID))
	}
	if req.StartDate != "" {
		params.Set("start_date", req.StartDate)
	}
	if req.EndDate != "" {
		params.Set("end_date", req.EndDate)
	}
	return fetchArray[model.RawResponse](ctx, s, "/compare", params, false)
}

// Close is a no-op; the HTTP client is shared
func (s *HTTPSource) Close() error {
	return nil
}

// fetchArray reads a JSON array endpoint element by element. A body that
// is not an array counts as one malformed response and yields no items;
// an element that does not decode into T is skipped and counted.
func fetchArray[T any](ctx context.Context, s *HTTPSource, path string, params url.Values, cacheable bool) (Batch[T], error) {
	endpoint := s.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	ctx, span := s.tracer.Start(ctx, "source.fetch "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("url.full", endpoint))

	var body []byte
	fresh := false
	key := cache.Key(endpoint)
	if cacheable {
		if cached, ok := s.cache.Get(key); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			body = cached
		}
	}

	if body == nil {
		var err error
		body, err = s.get(ctx, span, path, endpoint)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Batch[T]{}, err
		}
		fresh = true
	}

	elements, ok := splitArray(body)
	if !ok {
		s.logger.WarnContext(ctx, "unexpected response shape", "endpoint", path, "error", model.ErrMalformedResponse)
		return Batch[T]{Items: []T{}, Malformed: 1}, nil
	}

	batch := Batch[T]{Items: make([]T, 0, len(elements))}
	for _, raw := range elements {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			batch.Malformed++
			continue
		}
		var item T
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&item); err != nil {
			batch.Malformed++
			continue
		}
		batch.Items = append(batch.Items, item)
	}

	if cacheable && fresh {
		if err := s.cache.Set(key, body, s.cacheTTL); err != nil {
			s.logger.DebugContext(ctx, "cache write failed", "endpoint", path, "error", err)
		}
	}
	if batch.Malformed > 0 {
		s.logger.WarnContext(ctx, "skipped malformed elements", "endpoint", path, "count", batch.Malformed)
	}
	span.SetAttributes(attribute.Int("source.items", len(batch.Items)), attribute.Int("source.malformed", batch.Malformed))

	return batch, nil
}

func (s *HTTPSource) get(ctx context.Context, span trace.Span, path, endpoint string) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, endpoint); err != nil {
			return nil, &model.ServiceError{Service: "survey-api", Endpoint: path, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &model.ServiceError{Service: "survey-api", Endpoint: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return nil, &model.ServiceError{Service: "survey-api", Endpoint: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	s.logger.DebugContext(ctx, "survey api call", "endpoint", path, "status", resp.StatusCode, "bytes", len(body), "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.ServiceError{
			Service:    "survey-api",
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Detail:     util.ErrorDetail(body),
		}
	}

	return body, nil
}

// splitArray returns the raw elements of a JSON array body
func splitArray(body []byte) ([]json.RawMessage, bool) {
	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil || elements == nil {
		return nil, false
	}
	return elements, true
}
