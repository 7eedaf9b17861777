package engine

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel lookups when Orchestrator.Concurrency
// is unset.
const DefaultConcurrency = 4

// Orchestrator fans lookups out over a bounded pool of workers.
type Orchestrator struct {
	Concurrency int

	// Abort reports whether err stops the whole run. Other errors are
	// recorded on the key's Result and the run continues.
	Abort func(err error) bool
}

// Result is the outcome of one lookup.
type Result[T any] struct {
	Key   string
	Value T
	Err   error
}

// Run calls fetch once per distinct non-blank key and returns results in key
// order. When Abort matches an error the remaining keys are not fetched and
// that error is returned alongside the results gathered so far.
func Run[T any](ctx context.Context, o *Orchestrator, keys []string, fetch func(ctx context.Context, key string) (T, error)) ([]Result[T], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fetch == nil {
		return nil, errors.New("fetch is required")
	}

	keys = normalizeKeys(keys)
	if len(keys) == 0 {
		return nil, nil
	}

	results := make([]Result[T], len(keys))
	done := make([]bool, len(keys))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.concurrency())

	for i, key := range keys {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return nil
			}
			value, err := fetch(groupCtx, key)
			results[i] = Result[T]{Key: key, Value: value, Err: err}
			done[i] = true
			if err != nil && o.abort(err) {
				return err
			}
			return nil
		})
	}
	runErr := group.Wait()

	completed := make([]Result[T], 0, len(keys))
	for i := range results {
		if done[i] {
			completed = append(completed, results[i])
		}
	}

	if runErr != nil {
		return completed, runErr
	}
	if err := ctx.Err(); err != nil && len(completed) < len(keys) {
		return completed, err
	}
	return completed, nil
}

func (o *Orchestrator) concurrency() int {
	if o == nil || o.Concurrency < 1 {
		return DefaultConcurrency
	}
	return o.Concurrency
}

func (o *Orchestrator) abort(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return o != nil && o.Abort != nil && o.Abort(err)
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		trimmed := strings.TrimSpace(key)
		lower := strings.ToLower(trimmed)
		if trimmed == "" || seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, trimmed)
	}
	return out
}
