package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/surveylens/internal/cache"
	"github.com/ppiankov/surveylens/internal/compare"
	"github.com/ppiankov/surveylens/internal/model"
	"github.com/ppiankov/surveylens/internal/narrative"
	"github.com/ppiankov/surveylens/internal/source"
	"github.com/ppiankov/surveylens/internal/util"
	"github.com/ppiankov/surveylens/internal/worker"
)

// Pipeline wires a source, an optional narrator and the comparison engine
// from configuration
type Pipeline struct {
	source   source.Source
	engine   *compare.Engine
	renderer *Renderer
	config   *model.Config
	logger   *slog.Logger
}

// NewPipeline creates a pipeline with the given configuration.
// A narrator that fails to initialize is logged and left disabled.
func NewPipeline(cfg *model.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	limiter := worker.NewLimiterFromConfig(cfg.RateLimiting)

	src, err := source.New(cfg, source.Options{
		Client:  util.NewHTTPClient(cfg.API),
		Limiter: limiter,
		Cache:   cache.New(cfg.Cache),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	narrator, err := newNarrator(cfg, limiter)
	if err != nil {
		logger.Warn("narrative provider disabled", "provider", cfg.Narrative.Provider, "error", err)
		narrator = nil
	}

	engine := compare.NewEngine(src, narrator,
		compare.WithLogger(logger),
		compare.WithCompareEndpoint(cfg.API.UseCompareEndpoint),
		compare.WithWorkers(cfg.Concurrency.Workers),
	)

	return &Pipeline{
		source:   src,
		engine:   engine,
		renderer: NewRenderer(cfg.Output.IncludeFooter),
		config:   cfg,
		logger:   logger,
	}, nil
}

func newNarrator(cfg *model.Config, limiter *worker.Limiter) (narrative.Narrator, error) {
	nc := narrative.ConfigFromModel(cfg.Narrative, cfg.API.BaseURL)

	api := cfg.API
	if nc.Timeout > 0 {
		api.Timeout = time.Duration(nc.Timeout) * time.Second
	}
	return narrative.NewNarrator(nc, util.NewHTTPClient(api), limiter)
}

// Engine returns the comparison engine
func (p *Pipeline) Engine() *compare.Engine { return p.engine }

// Source returns the survey data source
func (p *Pipeline) Source() source.Source { return p.source }

// Renderer returns the report renderer
func (p *Pipeline) Renderer() *Renderer { return p.renderer }

// Close releases the source
func (p *Pipeline) Close() error {
	return p.source.Close()
}

// Compare runs one comparison
func (p *Pipeline) Compare(ctx context.Context, req compare.Request) (*model.ComparisonReport, error) {
	return p.engine.Compare(ctx, req)
}

// PairComparer adapts the pipeline for batch runs. Each pair is compared
// under template's clause and dates, with a narrative whenever a narrator
// is configured.
func (p *Pipeline) PairComparer(template compare.Request) worker.Comparer {
	return worker.ComparerFunc(func(ctx context.Context, pair worker.Pair) (*model.ComparisonReport, error) {
		req := template
		req.OrganizationIDs = []int{pair.Org1, pair.Org2}
		req.AllOrganizations = false
		req.Narrative = p.engine.NarrativeEnabled() && pair.Org1 != pair.Org2
		return p.engine.Compare(ctx, req)
	})
}

// Outputs names the files a report is rendered to. Empty paths are skipped.
type Outputs struct {
	JSON     string
	Markdown string
	HTML     string
}

// RenderReport renders the report to the specified outputs and prints a
// summary to w
func (p *Pipeline) RenderReport(report *model.ComparisonReport, out Outputs, w io.Writer, verbose bool) error {
	if out.JSON != "" {
		if err := p.renderer.RenderJSON(report, out.JSON); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(w, "✓ Wrote JSON: %s\n", out.JSON)
		}
	}

	if out.Markdown != "" {
		if err := p.renderer.RenderMarkdown(report, out.Markdown); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(w, "✓ Wrote Markdown: %s\n", out.Markdown)
		}
	}

	if out.HTML != "" {
		if err := p.renderer.RenderHTML(report, out.HTML); err != nil {
			return fmt.Errorf("render HTML: %w", err)
		}
		if verbose {
			fmt.Fprintf(w, "✓ Wrote HTML: %s\n", out.HTML)
		}
	}

	p.renderer.RenderSummary(w, report)
	return nil
}

// OutputsFor derives per-pair output paths inside dir, e.g. compare-3-vs-7.json
func OutputsFor(dir string, pair worker.Pair, formats []string) Outputs {
	base := fmt.Sprintf("%s/compare-%d-vs-%d", strings.TrimSuffix(dir, "/"), pair.Org1, pair.Org2)

	var out Outputs
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "json":
			out.JSON = base + ".json"
		case "md", "markdown":
			out.Markdown = base + ".md"
		case "html":
			out.HTML = base + ".html"
		}
	}
	return out
}
