package compare

import (
	"context"
	"errors"

	"github.com/ppiankov/surveylens/internal/model"
	"github.com/ppiankov/surveylens/internal/source"
	"github.com/ppiankov/surveylens/internal/worker"
)

type listJob struct {
	source         source.Source
	organizationID int
}

type listResult struct {
	batch source.Batch[model.RawResponse]
	err   error
}

func (r *listResult) GetError() error { return r.err }

func (j *listJob) Execute(ctx context.Context) worker.Result {
	batch, err := j.source.Responses(ctx, j.organizationID)
	return &listResult{batch: batch, err: err}
}

// listResponses reads each organization's responses on the worker pool,
// keeping organization order
func (e *Engine) listResponses(ctx context.Context, ids []int) ([]model.RawResponse, int, error) {
	pool := worker.NewPool(ctx, min(e.workers, len(ids)))
	pool.Start()

	for _, id := range ids {
		if err := pool.Submit(&listJob{source: e.source, organizationID: id}); err != nil {
			break
		}
	}

	var (
		records   []model.RawResponse
		malformed int
		errs      []error
	)
	for _, r := range pool.Wait() {
		if r == nil {
			err := ctx.Err()
			if err == nil {
				err = worker.ErrPoolClosed
			}
			errs = append(errs, err)
			continue
		}
		res := r.(*listResult)
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		records = append(records, res.batch.Items...)
		malformed += res.batch.Malformed
	}

	if err := errors.Join(errs...); err != nil {
		return nil, 0, err
	}
	return records, malformed, nil
}
