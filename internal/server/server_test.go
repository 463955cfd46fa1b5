package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/surveylens/internal/compare"
	"github.com/ppiankov/surveylens/internal/model"
	"github.com/ppiankov/surveylens/internal/pipeline"
	"github.com/ppiankov/surveylens/internal/server"
)

type fakeEngine struct {
	mu        sync.Mutex
	requests  []compare.Request
	narrative bool
	compareFn func(ctx context.Context, req compare.Request) (*model.ComparisonReport, error)
}

func (f *fakeEngine) Compare(ctx context.Context, req compare.Request) (*model.ComparisonReport, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.compareFn != nil {
		return f.compareFn(ctx, req)
	}
	return sampleReport(req), nil
}

func (f *fakeEngine) NarrativeEnabled() bool { return f.narrative }

func (f *fakeEngine) lastRequest() compare.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func sampleReport(req compare.Request) *model.ComparisonReport {
	report := &model.ComparisonReport{
		ID:        "r1",
		Scope:     model.Scope{OrganizationIDs: req.OrganizationIDs},
		Questions: []model.Question{{ID: 10, Text: "Board oversight?"}},
		Pivot:     []model.PivotRow{{QuestionID: 10, Cells: []model.PivotCell{{OrganizationID: 1, Value: "Yes"}}}},
		Tally:     []model.TallyRow{{OrganizationID: 1, Name: "Acme", Yes: 1, NoResponse: 1}},
		Diagnostics: model.Diagnostics{
			ExpectedQuestions: 2,
		},
	}
	for _, id := range req.OrganizationIDs {
		report.Organizations = append(report.Organizations, model.Organization{ID: id, Name: "Acme"})
	}
	return report
}

func postJSON(router http.Handler, path string, body any, headers ...string) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

var _ = Describe("Server", func() {
	var (
		engine *fakeEngine
		router http.Handler
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		engine = &fakeEngine{}
		srv := server.New(engine, pipeline.NewRenderer(false), server.Options{
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			Registry: prometheus.NewRegistry(),
		})
		router = srv.Handler()
	})

	It("reports health and narrative availability", func() {
		engine.narrative = true
		w := get(router, "/healthz")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"narrative":true`))
	})

	Describe("POST /api/compare", func() {
		It("returns the report as JSON", func() {
			w := postJSON(router, "/api/compare", map[string]any{
				"organization_ids": []int{1, 2},
				"clause_id":        3,
				"start_date":       "2024-01-01",
				"narrative":        true,
			})

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["id"]).To(Equal("r1"))

			req := engine.lastRequest()
			Expect(req.OrganizationIDs).To(Equal([]int{1, 2}))
			Expect(*req.ClauseID).To(Equal(3))
			Expect(req.StartDate).To(Equal("2024-01-01"))
			Expect(req.Narrative).To(BeTrue())
		})

		It("renders markdown and html on request", func() {
			w := postJSON(router, "/api/compare?format=markdown", map[string]any{"organization_ids": []int{1}})
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(HavePrefix("text/markdown"))
			Expect(w.Body.String()).To(ContainSubstring("| Q10 Board oversight? | Yes |"))

			w = postJSON(router, "/api/compare?format=html", map[string]any{"organization_ids": []int{1}})
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("<table>"))

			w = postJSON(router, "/api/compare?format=pdf", map[string]any{"organization_ids": []int{1}})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects malformed bodies and dates without calling the engine", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(`{`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusBadRequest))

			w = postJSON(router, "/api/compare", map[string]any{"organization_ids": []int{1}, "start_date": "01/02/2024"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(engine.requests).To(BeEmpty())
		})

		It("maps engine errors to statuses", func() {
			cases := []struct {
				err    error
				status int
			}{
				{model.ErrInvalidRange, http.StatusBadRequest},
				{model.ErrInvalidInput, http.StatusBadRequest},
				{&model.ServiceError{Service: "survey-api", StatusCode: 500}, http.StatusBadGateway},
				{compare.ErrSuperseded, http.StatusConflict},
				{errors.New("boom"), http.StatusInternalServerError},
			}
			for _, tc := range cases {
				engine.compareFn = func(context.Context, compare.Request) (*model.ComparisonReport, error) {
					return nil, tc.err
				}
				w := postJSON(router, "/api/compare", map[string]any{"organization_ids": []int{1}})
				Expect(w.Code).To(Equal(tc.status), tc.err.Error())
			}
		})

		It("attaches the report when every branch failed", func() {
			engine.compareFn = func(_ context.Context, req compare.Request) (*model.ComparisonReport, error) {
				report := sampleReport(req)
				report.SetNumericError(model.ErrServiceUnavailable)
				return report, model.ErrServiceUnavailable
			}
			w := postJSON(router, "/api/compare", map[string]any{"organization_ids": []int{1}})

			Expect(w.Code).To(Equal(http.StatusBadGateway))
			Expect(w.Body.String()).To(ContainSubstring(`"numeric_error":"service unavailable"`))
		})

		It("supersedes the in-flight comparison of the same session", func() {
			started := make(chan struct{}, 2)
			engine.compareFn = func(ctx context.Context, req compare.Request) (*model.ComparisonReport, error) {
				started <- struct{}{}
				if req.OrganizationIDs[0] == 1 {
					<-ctx.Done()
					return nil, ctx.Err()
				}
				return sampleReport(req), nil
			}

			first := make(chan *httptest.ResponseRecorder, 1)
			go func() {
				defer GinkgoRecover()
				first <- postJSON(router, "/api/compare", map[string]any{"organization_ids": []int{1}}, server.SessionHeader, "s1")
			}()
			Eventually(started).Should(Receive())

			second := postJSON(router, "/api/compare", map[string]any{"organization_ids": []int{2}}, server.SessionHeader, "s1")
			Expect(second.Code).To(Equal(http.StatusOK))

			var w *httptest.ResponseRecorder
			Eventually(first).Should(Receive(&w))
			Expect(w.Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("chart endpoints", func() {
		It("serves pivot rows from query parameters", func() {
			w := get(router, "/api/pivot?organization_ids=1,2&organization_ids=5&clause_id=4&end_date=2024-06-30")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"rows":[{"question_id":10,"org_1":"Yes"}]`))

			req := engine.lastRequest()
			Expect(req.OrganizationIDs).To(Equal([]int{1, 2, 5}))
			Expect(*req.ClauseID).To(Equal(4))
			Expect(req.EndDate).To(Equal("2024-06-30"))
			Expect(req.Narrative).To(BeFalse())
		})

		It("serves tally rows", func() {
			w := get(router, "/api/tally?organization_ids=1")

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp struct {
				Expected int              `json:"expected_questions"`
				Rows     []model.TallyRow `json:"rows"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Expected).To(Equal(2))
			Expect(resp.Rows).To(HaveLen(1))
			Expect(resp.Rows[0].NoResponse).To(Equal(1))
		})

		It("covers every organization when the tally names none", func() {
			Expect(get(router, "/api/tally").Code).To(Equal(http.StatusOK))
			Expect(engine.lastRequest().AllOrganizations).To(BeTrue())
		})

		It("rejects bad ids and dates", func() {
			Expect(get(router, "/api/tally?organization_ids=x").Code).To(Equal(http.StatusBadRequest))
			Expect(get(router, "/api/tally?organization_ids=1&clause_id=two").Code).To(Equal(http.StatusBadRequest))
			Expect(get(router, "/api/pivot?organization_ids=1&start_date=2024-13-01").Code).To(Equal(http.StatusBadRequest))
			Expect(engine.requests).To(BeEmpty())
		})
	})

	It("exposes prometheus metrics", func() {
		postJSON(router, "/api/compare", map[string]any{"organization_ids": []int{1}})
		w := get(router, "/metrics")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`surveylens_comparisons_total{endpoint="compare",outcome="ok"} 1`))
		Expect(w.Body.String()).To(ContainSubstring("surveylens_active_sessions"))
	})
})
