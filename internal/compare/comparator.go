package compare

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/surveylens/internal/model"
)

// ErrSuperseded is returned to a comparison overtaken by a newer one
var ErrSuperseded = errors.New("comparison superseded by a newer request")

// Runner runs one comparison; *Engine satisfies it
type Runner interface {
	Compare(ctx context.Context, req Request) (*model.ComparisonReport, error)
}

// Comparator serializes the comparisons of one user session with
// last-request-wins semantics: starting a comparison cancels the one in
// flight, and a result that completes after being overtaken is dropped.
type Comparator struct {
	runner Runner

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewComparator wraps runner
func NewComparator(runner Runner) *Comparator {
	return &Comparator{runner: runner}
}

// Compare starts a comparison, cancelling any in-flight one. It returns
// ErrSuperseded when a newer Compare started before this one finished.
func (c *Comparator) Compare(ctx context.Context, req Request) (*model.ComparisonReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	report, err := c.runner.Compare(ctx, req)

	c.mu.Lock()
	current := c.gen == gen
	if current {
		c.cancel = nil
	}
	c.mu.Unlock()

	if !current {
		return nil, ErrSuperseded
	}
	return report, err
}

// Cancel aborts the in-flight comparison, if any. Its caller receives
// ErrSuperseded.
func (c *Comparator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
