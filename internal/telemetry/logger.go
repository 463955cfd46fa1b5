package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"
)

// LogOptions selects the slog handler
type LogOptions struct {
	Writer  io.Writer // defaults to os.Stderr
	Verbose bool
	JSON    bool

	// Export sends records to the global OTel logger provider instead of Writer
	Export      bool
	ServiceName string
}

// NewLogger builds a logger. Without Export, records carry the trace and
// span ids of the context they were logged with.
func NewLogger(opts LogOptions) *slog.Logger {
	if opts.Export {
		return slog.New(otelslog.NewHandler(
			opts.ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider()),
		))
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if opts.Verbose {
		hopts.Level = slog.LevelDebug
	}

	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(NewTraceHandler(h))
}

// TraceHandler adds trace ids and context attributes to every record
type TraceHandler struct {
	slog.Handler
}

// NewTraceHandler wraps h
func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

// Handle implements slog.Handler
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	r.AddAttrs(attrsFrom(ctx)...)

	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

type attrsKey struct{}

// WithAttrs returns a context whose log records carry attrs.
// Later calls append to what is already there.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	existing := attrsFrom(ctx)
	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

func attrsFrom(ctx context.Context) []slog.Attr {
	if attrs, ok := ctx.Value(attrsKey{}).([]slog.Attr); ok {
		return attrs
	}
	return nil
}
