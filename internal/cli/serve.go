package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ppiankov/surveylens/internal/pipeline"
	"github.com/ppiankov/surveylens/internal/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve comparisons over HTTP for chart front-ends",
	Long: `Serve exposes the comparison engine over HTTP:

  POST /api/compare   full report (JSON, or ?format=markdown|html)
  GET  /api/pivot     line-chart rows  (?organization_ids=1,2&clause_id=&start_date=&end_date=)
  GET  /api/tally     bar-chart rows   (same parameters)
  GET  /healthz       liveness
  GET  /metrics       Prometheus metrics

Requests carrying an X-Session-ID header supersede that session's
in-flight comparison; the overtaken request receives 409.

Example:
  surveylens serve --addr :8080
  surveylens serve --sqlite survey.db`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")
	addSourceFlags(serveCmd)
	addNarrativeFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, shutdown, err := startRuntime(ctx)
	if err != nil {
		return err
	}
	defer shutdown()
	applyFlags(cmd, cfg)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	if !cfg.Output.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := server.New(p.Engine(), p.Renderer(), server.Options{
		SessionTTL:  cfg.Server.SessionTTL,
		Tracing:     cfg.Telemetry.Enabled(),
		ServiceName: cfg.Telemetry.ServiceName,
		Logger:      logger,
	})

	fmt.Fprintf(os.Stderr, "✓ Serving %s on %s\n", describeSource(cfg), addr)
	if err := srv.Run(ctx, addr); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
