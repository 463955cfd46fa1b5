package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/surveylens/internal/model"
	"github.com/ppiankov/surveylens/internal/pipeline"
	"github.com/ppiankov/surveylens/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	formats      string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Compare many organization pairs from a file in parallel",
	Long: `Batch compares organization pairs concurrently:
- Read pairs from the input file, one "org1 org2" (or "org1,org2") per line
- Lines starting with # and blank lines are ignored; duplicate pairs run once
- Compare pairs in parallel with a configurable worker count
- Generate a report per pair; a narrative is added when a provider is configured

Example:
  surveylens batch pairs.txt
  surveylens batch pairs.txt --concurrency 8 --output-dir ./reports --formats json,md,html
  surveylens batch pairs.txt --clause 2 --start 2024-01-01`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: concurrency.workers from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./surveylens-reports", "output directory for reports")
	batchCmd.Flags().StringVar(&formats, "formats", "json,md", "comma-separated report formats (json, md, html)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")

	addScopeFlags(batchCmd)
	addSourceFlags(batchCmd)
	addNarrativeFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	template, err := scopeRequest(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	cfg, logger, shutdown, err := startRuntime(ctx)
	if err != nil {
		return err
	}
	defer shutdown()
	applyFlags(cmd, cfg)

	workers := cfg.Concurrency.Workers
	if concurrency > 0 {
		workers = concurrency
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  SurveyLens Batch Comparison\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Source:       %s\n", describeSource(cfg))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	if cfg.Narrative.Provider != "" {
		fmt.Fprintf(os.Stderr, "  Narrative:    %s\n", cfg.Narrative.Provider)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	processor := worker.NewBatchProcessor(p.PairComparer(template), workers)

	fmt.Fprintf(os.Stderr, "⚙️  Reading pairs from file...\n")
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Processed %d pairs\n\n", len(results))

	renderer := p.Renderer()
	formatList := strings.Split(formats, ",")

	successCount, partialCount, failureCount := 0, 0, 0
	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Pair, result.Error)
			continue
		}

		report := result.Report
		out := pipeline.OutputsFor(outputDir, result.Pair, formatList)
		if err := writeOutputs(renderer, report, out); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Pair, err)
			continue
		}

		if report.NumericError != "" || report.NarrativeError != "" {
			partialCount++
			fmt.Fprintf(os.Stderr, "~ %s (partial: %s)\n", result.Pair, partialReason(report))
			continue
		}
		successCount++
		fmt.Fprintf(os.Stderr, "✓ %s (%d questions)\n", result.Pair, len(report.Pivot))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d pairs\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Partial:   %d\n", partialCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

func writeOutputs(r *pipeline.Renderer, report *model.ComparisonReport, out pipeline.Outputs) error {
	if out.JSON != "" {
		if err := r.RenderJSON(report, out.JSON); err != nil {
			return fmt.Errorf("failed to write JSON: %w", err)
		}
	}
	if out.Markdown != "" {
		if err := r.RenderMarkdown(report, out.Markdown); err != nil {
			return fmt.Errorf("failed to write Markdown: %w", err)
		}
	}
	if out.HTML != "" {
		if err := r.RenderHTML(report, out.HTML); err != nil {
			return fmt.Errorf("failed to write HTML: %w", err)
		}
	}
	return nil
}

func partialReason(report *model.ComparisonReport) string {
	var reasons []string
	if report.NumericError != "" {
		reasons = append(reasons, "data: "+report.NumericError)
	}
	if report.NarrativeError != "" {
		reasons = append(reasons, "narrative: "+report.NarrativeError)
	}
	return strings.Join(reasons, "; ")
}
