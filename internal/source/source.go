package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ppiankov/surveylens/internal/cache"
	"github.com/ppiankov/surveylens/internal/filter"
	"github.com/ppiankov/surveylens/internal/model"
)

// Batch is what a read returns: the items that decoded, plus how many
// elements (or whole bodies) had an unexpected shape and were skipped.
type Batch[T any] struct {
	Items     []T
	Malformed int
}

// Source supplies the survey catalog and response records
type Source interface {
	Organizations(ctx context.Context) (Batch[model.Organization], error)
	Clauses(ctx context.Context) (Batch[model.Clause], error)
	Questions(ctx context.Context) (Batch[model.Question], error)

	// Responses lists every response of one organization
	Responses(ctx context.Context, organizationID int) (Batch[model.RawResponse], error)

	// Compare returns the responses matching req. Implementations may
	// filter loosely; callers re-apply filter.Apply.
	Compare(ctx context.Context, req filter.Request) (Batch[model.RawResponse], error)

	Close() error
}

// Waiter throttles outbound requests; worker.Limiter satisfies it
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Options carries the collaborators of an HTTP source
type Options struct {
	Client  *http.Client
	Limiter Waiter
	Cache   cache.Cache
	Logger  *slog.Logger
}

// New opens the source selected by cfg.Source
func New(cfg *model.Config, opts Options) (Source, error) {
	switch cfg.Source.Kind {
	case "", "http":
		return NewHTTPSource(cfg.API, cfg.Cache.MemoryTTL, opts), nil
	case "sqlite":
		return OpenSQLite(cfg.Source.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown source kind: %s (supported: http, sqlite)", cfg.Source.Kind)
	}
}
