package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ppiankov/surveylens/internal/model"
)

// Pair is one organization pair of a batch
type Pair struct {
	Org1 int
	Org2 int
}

func (p Pair) String() string {
	return fmt.Sprintf("%d vs %d", p.Org1, p.Org2)
}

// Comparer compares one pair of organizations
type Comparer interface {
	ComparePair(ctx context.Context, pair Pair) (*model.ComparisonReport, error)
}

// ComparerFunc adapts a function to Comparer
type ComparerFunc func(ctx context.Context, pair Pair) (*model.ComparisonReport, error)

// ComparePair implements Comparer
func (f ComparerFunc) ComparePair(ctx context.Context, pair Pair) (*model.ComparisonReport, error) {
	return f(ctx, pair)
}

// PairJob compares one pair
type PairJob struct {
	Pair     Pair
	Comparer Comparer
}

// Execute runs the comparison
func (j *PairJob) Execute(ctx context.Context) Result {
	report, err := j.Comparer.ComparePair(ctx, j.Pair)
	return &PairResult{Pair: j.Pair, Report: report, Error: err}
}

// PairResult is the outcome of a PairJob
type PairResult struct {
	Pair   Pair
	Report *model.ComparisonReport
	Error  error
}

// GetError returns the request-level error, if any
func (r *PairResult) GetError() error {
	return r.Error
}

// BatchProcessor compares many pairs concurrently
type BatchProcessor struct {
	comparer    Comparer
	concurrency int
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(comparer Comparer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		comparer:    comparer,
		concurrency: concurrency,
	}
}

// ProcessPairs compares every pair and returns results in input order.
// Pairs not started before ctx is cancelled report ctx's error.
func (b *BatchProcessor) ProcessPairs(ctx context.Context, pairs []Pair) []*PairResult {
	if len(pairs) == 0 {
		return []*PairResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, pair := range pairs {
		if err := pool.Submit(&PairJob{Pair: pair, Comparer: b.comparer}); err != nil {
			pool.Shutdown()
			break
		}
	}

	results := pool.Wait()

	out := make([]*PairResult, len(pairs))
	for i, pair := range pairs {
		if i < len(results) && results[i] != nil {
			out[i] = results[i].(*PairResult)
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = ErrPoolClosed
		}
		out[i] = &PairResult{Pair: pair, Error: err}
	}
	return out
}

// ProcessFile reads pairs from a file and compares them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*PairResult, error) {
	pairs, err := ReadPairsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read pairs: %w", err)
	}

	return b.ProcessPairs(ctx, pairs), nil
}

// ReadPairsFromFile reads one "org1 org2" pair per line. Ids may be
// separated by whitespace or a comma. Blank lines and # comments are
// skipped and repeated pairs are read once.
func ReadPairsFromFile(filePath string) ([]Pair, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var pairs []Pair
	seen := make(map[Pair]bool)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		pair, err := parsePair(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !seen[pair] {
			seen[pair] = true
			pairs = append(pairs, pair)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return pairs, nil
}

func parsePair(line string) (Pair, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) != 2 {
		return Pair{}, fmt.Errorf("%w: expected two organization ids, got %q", model.ErrInvalidInput, line)
	}

	var ids [2]int
	for i, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return Pair{}, fmt.Errorf("%w: organization id %q is not a number", model.ErrInvalidInput, f)
		}
		ids[i] = id
	}
	return Pair{Org1: ids[0], Org2: ids[1]}, nil
}
