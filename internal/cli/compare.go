package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/surveylens/internal/compare"
	"github.com/ppiankov/surveylens/internal/filter"
	"github.com/ppiankov/surveylens/internal/model"
	"github.com/ppiankov/surveylens/internal/pipeline"
)

var (
	outJSON           string
	outMD             string
	outHTML           string
	timeout           time.Duration
	allOrgs           bool
	clauseID          int
	startDate         string
	endDate           string
	narrativeEnabled  bool
	narrativeProvider string
	narrativeModel    string
	perOrganization   bool
	noCache           bool
	noFooter          bool
	insecureTLS       bool
	httpProxy         string
	httpsProxy        string
)

// compareCmd represents the compare command
var compareCmd = &cobra.Command{
	Use:   "compare [org-id...]",
	Short: "Compare the survey responses of organizations",
	Long: `Compare loads the responses of the given organizations and produces:
- a pivot of every organization's answer per question
- a tally of Yes / No / NotApplicable / Other / NoResponse per organization
- optionally, a narrative of similarities and differences (exactly two organizations)

Example:
  surveylens compare 3 7
  surveylens compare 3 7 --clause 2 --start 2024-01-01 --end 2024-06-30
  surveylens compare 3 7 --narrative --narrative-provider openai --md report.md
  surveylens compare --all --clause 1 --json all.json`,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	addScopeFlags(compareCmd)
	compareCmd.Flags().BoolVar(&allOrgs, "all", false, "compare every organization in the catalog")

	// Output flags
	compareCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path")
	compareCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path")
	compareCmd.Flags().StringVar(&outHTML, "html", "", "output HTML path")

	addSourceFlags(compareCmd)
	compareCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall comparison timeout")

	// Narrative flags
	compareCmd.Flags().BoolVar(&narrativeEnabled, "narrative", false, "generate a narrative comparison (two organizations)")
	addNarrativeFlags(compareCmd)
}

func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&clauseID, "clause", 0, "restrict to one clause id (0 for all clauses)")
	cmd.Flags().StringVar(&startDate, "start", "", "inclusive start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&endDate, "end", "", "inclusive end date, YYYY-MM-DD")
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&perOrganization, "per-org", false, "list each organization's responses instead of using /compare")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the catalog cache")
	cmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	cmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification (use for self-signed certs)")
	cmd.Flags().StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	cmd.Flags().StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
}

func addNarrativeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&narrativeProvider, "narrative-provider", "", "narrative provider (remote, openai, anthropic, ollama); overrides config")
	cmd.Flags().StringVar(&narrativeModel, "narrative-model", "", "narrative model name; overrides config")
}

// applyFlags overlays command flags that were set explicitly
func applyFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("per-org") {
		cfg.API.UseCompareEndpoint = !perOrganization
	}
	if flags.Changed("no-cache") {
		cfg.Cache.Enabled = !noCache
	}
	if flags.Changed("no-footer") {
		cfg.Output.IncludeFooter = !noFooter
	}
	if flags.Changed("insecure") {
		cfg.API.InsecureTLS = insecureTLS
	}
	if httpProxy != "" {
		cfg.API.HTTPProxy = httpProxy
	}
	if httpsProxy != "" {
		cfg.API.HTTPSProxy = httpsProxy
	}
	if narrativeProvider != "" {
		cfg.Narrative.Provider = narrativeProvider
		applyProviderEnv(&cfg.Narrative)
	}
	if narrativeModel != "" {
		cfg.Narrative.Model = narrativeModel
	}
}

// scopeRequest builds the request scope from --clause, --start and --end
func scopeRequest(cmd *cobra.Command) (compare.Request, error) {
	var req compare.Request

	if cmd.Flags().Changed("clause") && clauseID > 0 {
		id := clauseID
		req.ClauseID = &id
	}

	var err error
	if req.StartDate, err = filter.ParseDate(startDate); err != nil {
		return req, fmt.Errorf("--start: %w", err)
	}
	if req.EndDate, err = filter.ParseDate(endDate); err != nil {
		return req, fmt.Errorf("--end: %w", err)
	}
	return req, nil
}

func parseOrgIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: organization id %q", model.ErrInvalidInput, arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	req, err := scopeRequest(cmd)
	if err != nil {
		return err
	}
	if req.OrganizationIDs, err = parseOrgIDs(args); err != nil {
		return err
	}
	req.AllOrganizations = allOrgs
	req.Narrative = narrativeEnabled

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cfg, logger, shutdown, err := startRuntime(ctx)
	if err != nil {
		return err
	}
	defer shutdown()
	applyFlags(cmd, cfg)

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "Source: %s\n", describeSource(cfg))
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintf(os.Stderr, "Cache: %v\n", cfg.Cache.Enabled)
		fmt.Fprintln(os.Stderr)
	}

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	fmt.Fprintf(os.Stderr, "⚙️  Comparing...\n")
	report, err := p.Compare(ctx, req)
	if report == nil {
		return fmt.Errorf("compare: %w", err)
	}

	if report.NumericError == "" {
		fmt.Fprintf(os.Stderr, "✓ Compared %d organizations over %d questions\n", len(report.Organizations), len(report.Pivot))
	}
	if report.Narrative != nil {
		fmt.Fprintf(os.Stderr, "✓ Generated narrative using %s\n", report.Narrative.Provider)
	}

	outputs := pipeline.Outputs{JSON: outJSON, Markdown: outMD, HTML: outHTML}
	if renderErr := p.RenderReport(report, outputs, os.Stdout, true); renderErr != nil {
		return renderErr
	}

	if err != nil {
		return fmt.Errorf("compare: %w", err)
	}
	return nil
}

func describeSource(cfg *model.Config) string {
	if cfg.Source.Kind == "sqlite" {
		return "sqlite " + cfg.Source.SQLitePath
	}
	return cfg.API.BaseURL
}
