package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/surveylens/internal/compare"
	"github.com/ppiankov/surveylens/internal/filter"
	"github.com/ppiankov/surveylens/internal/model"
)

// CompareRequest is the body of POST /api/compare
type CompareRequest struct {
	OrganizationIDs  []int  `json:"organization_ids"`
	AllOrganizations bool   `json:"all_organizations"`
	ClauseID         *int   `json:"clause_id"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	Narrative        bool   `json:"narrative"`
}

func (r CompareRequest) toRequest() (compare.Request, error) {
	start, err := filter.ParseDate(r.StartDate)
	if err != nil {
		return compare.Request{}, err
	}
	end, err := filter.ParseDate(r.EndDate)
	if err != nil {
		return compare.Request{}, err
	}
	return compare.Request{
		OrganizationIDs:  r.OrganizationIDs,
		AllOrganizations: r.AllOrganizations,
		ClauseID:         r.ClauseID,
		StartDate:        start,
		EndDate:          end,
		Narrative:        r.Narrative,
	}, nil
}

// compare runs a full comparison. Requests carrying a session header
// supersede that session's in-flight comparison. ?format=markdown|html
// renders the report instead of returning JSON.
func (s *Server) compare(c *gin.Context) {
	ctx := c.Request.Context()

	var body CompareRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.logger.WarnContext(ctx, "invalid request body", "error", err)
		s.metrics.comparisons.WithLabelValues("compare", outcomeInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := body.toRequest()
	if err != nil {
		s.fail(c, "compare", err, nil)
		return
	}

	run := s.engine.Compare
	if id := c.GetHeader(SessionHeader); id != "" {
		run = s.sessions.get(id).Compare
	}

	report, err := s.timed(ctx, "compare", req, run)
	if err != nil {
		s.fail(c, "compare", err, report)
		return
	}
	s.metrics.comparisons.WithLabelValues("compare", outcomeOf(report)).Inc()

	switch strings.ToLower(c.Query("format")) {
	case "", "json":
		c.JSON(http.StatusOK, report)
	case "md", "markdown":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(s.renderer.Markdown(report)))
	case "html":
		page, err := s.renderer.HTML(report)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format %q", c.Query("format"))})
	}
}

// pivot returns the line-chart rows for the query's scope
func (s *Server) pivot(c *gin.Context) {
	report, ok := s.numeric(c, "pivot", false)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"organizations": report.Organizations,
		"questions":     report.Questions,
		"rows":          report.Pivot,
	})
}

// tally returns the bar-chart rows for the query's scope
func (s *Server) tally(c *gin.Context) {
	report, ok := s.numeric(c, "tally", true)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"expected_questions": report.Diagnostics.ExpectedQuestions,
		"rows":               report.Tally,
	})
}

// numeric runs a narrative-free comparison from query parameters:
// organization_ids (repeated or comma-separated), clause_id, start_date, end_date.
// With defaultAll, a query naming no organizations covers the whole catalog.
func (s *Server) numeric(c *gin.Context, endpoint string, defaultAll bool) (*model.ComparisonReport, bool) {
	req, err := parseQuery(c)
	if err != nil {
		s.fail(c, endpoint, err, nil)
		return nil, false
	}
	if defaultAll && len(req.OrganizationIDs) == 0 {
		req.AllOrganizations = true
	}

	report, err := s.timed(c.Request.Context(), endpoint, req, s.engine.Compare)
	if err != nil {
		s.fail(c, endpoint, err, report)
		return nil, false
	}
	s.metrics.comparisons.WithLabelValues(endpoint, outcomeOf(report)).Inc()
	return report, true
}

func (s *Server) timed(ctx context.Context, endpoint string, req compare.Request, run func(context.Context, compare.Request) (*model.ComparisonReport, error)) (*model.ComparisonReport, error) {
	start := time.Now()
	defer func() {
		s.metrics.duration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()
	return run(ctx, req)
}

func parseQuery(c *gin.Context) (compare.Request, error) {
	var req compare.Request

	for _, raw := range c.QueryArray("organization_ids") {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.Atoi(part)
			if err != nil {
				return req, fmt.Errorf("%w: organization id %q", model.ErrInvalidInput, part)
			}
			req.OrganizationIDs = append(req.OrganizationIDs, id)
		}
	}
	req.AllOrganizations = c.Query("all") == "true"

	if raw := c.Query("clause_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("%w: clause id %q", model.ErrInvalidInput, raw)
		}
		req.ClauseID = &id
	}

	var err error
	if req.StartDate, err = filter.ParseDate(c.Query("start_date")); err != nil {
		return req, err
	}
	if req.EndDate, err = filter.ParseDate(c.Query("end_date")); err != nil {
		return req, err
	}
	return req, nil
}

// fail maps an error to a status. report is attached when the engine
// produced one, so clients can still show the recorded branch errors.
func (s *Server) fail(c *gin.Context, endpoint string, err error, report *model.ComparisonReport) {
	status, outcome := http.StatusInternalServerError, outcomeFailed
	switch {
	case errors.Is(err, model.ErrInvalidRange), errors.Is(err, model.ErrInvalidInput):
		status, outcome = http.StatusBadRequest, outcomeInvalid
	case errors.Is(err, compare.ErrSuperseded):
		status, outcome = http.StatusConflict, outcomeSuperseded
	case errors.Is(err, model.ErrServiceUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.metrics.comparisons.WithLabelValues(endpoint, outcome).Inc()

	if status >= 500 {
		s.logger.ErrorContext(c.Request.Context(), "comparison failed", "endpoint", endpoint, "error", err)
	}

	resp := gin.H{"error": err.Error()}
	if report != nil {
		resp["report"] = report
	}
	c.JSON(status, resp)
}

func outcomeOf(report *model.ComparisonReport) string {
	if report.NumericError != "" || report.NarrativeError != "" {
		return outcomePartial
	}
	return outcomeOK
}
