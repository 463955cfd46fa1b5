package narrative

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/surveylens/internal/model"
	"github.com/ppiankov/surveylens/internal/util"
)

// Waiter throttles outbound requests; worker.Limiter satisfies it
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// RemoteNarrator calls the survey API's /ai/compare endpoint, which reads
// the responses itself and returns a loosely-typed narrative object.
type RemoteNarrator struct {
	baseURL    string
	httpClient *http.Client
	limiter    Waiter
	maxBytes   int64
}

// NewRemoteNarrator creates a narrator for the survey API at baseURL
func NewRemoteNarrator(config Config, client *http.Client, limiter Waiter) (*RemoteNarrator, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("remote narrative requires the survey API base URL")
	}
	if client == nil {
		timeout := time.Duration(config.Timeout) * time.Second
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &RemoteNarrator{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: client,
		limiter:    limiter,
		maxBytes:   2_000_000,
	}, nil
}

// Name returns the provider name
func (p *RemoteNarrator) Name() string {
	return "remote"
}

// SelfSourcing reports that the endpoint reads responses server-side
func (p *RemoteNarrator) SelfSourcing() bool {
	return true
}

// Narrate requests a narrative for the two organizations in req's scope
func (p *RemoteNarrator) Narrate(ctx context.Context, req model.ComparisonRequest) (*Response, error) {
	params := url.Values{}
	params.Set("org1_id", strconv.Itoa(req.Org1.ID))
	params.Set("org2_id", strconv.Itoa(req.Org2.ID))
	if req.ClauseID != nil {
		params.Set("clause_id", strconv.Itoa(*req.ClauseID))
	}
	if req.StartDate != "" {
		params.Set("start_date", req.StartDate)
	}
	if req.EndDate != "" {
		params.Set("end_date", req.EndDate)
	}
	endpoint := p.baseURL + "/ai/compare?" + params.Encode()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, endpoint); err != nil {
			return nil, &model.ServiceError{Service: "narrative", Endpoint: "/ai/compare", Err: err}
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &model.ServiceError{Service: "narrative", Endpoint: "/ai/compare", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes))
	if err != nil {
		return nil, &model.ServiceError{Service: "narrative", Endpoint: "/ai/compare", Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.ServiceError{
			Service:    "narrative",
			Endpoint:   "/ai/compare",
			StatusCode: resp.StatusCode,
			Detail:     util.ErrorDetail(body),
		}
	}

	return &Response{Raw: body}, nil
}
