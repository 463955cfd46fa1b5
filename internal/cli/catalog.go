package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/surveylens/internal/pipeline"
)

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:       "catalog [organizations|clauses|questions]",
	Short:     "List the survey catalog",
	Long:      `List organizations, clauses or questions with their ids, for use with compare and batch.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"organizations", "clauses", "questions"},
	RunE:      runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	addSourceFlags(catalogCmd)
}

func runCatalog(cmd *cobra.Command, args []string) error {
	kind := "organizations"
	if len(args) == 1 {
		kind = args[0]
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	cfg, logger, shutdown, err := startRuntime(ctx)
	if err != nil {
		return err
	}
	defer shutdown()
	applyFlags(cmd, cfg)

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	src := p.Source()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	switch kind {
	case "organizations":
		batch, err := src.Organizations(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tNAME\tSINCE")
		for _, o := range batch.Items {
			fmt.Fprintf(w, "%d\t%s\t%d\n", o.ID, o.Name, o.YearOfAssociation)
		}
	case "clauses":
		batch, err := src.Clauses(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tNAME\tTITLE")
		for _, c := range batch.Items {
			fmt.Fprintf(w, "%d\t%s\t%s\n", c.ID, c.Name, c.Title)
		}
	case "questions":
		batch, err := src.Questions(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tCLAUSE\tQUESTION")
		for _, q := range batch.Items {
			fmt.Fprintf(w, "%d\t%d\t%s\n", q.ID, q.ClauseID, q.DisplayName())
		}
	}

	return w.Flush()
}
