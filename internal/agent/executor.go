package agent

import (
	"context"
	"sync"

	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// defaultParallelism bounds concurrent tool executions when the
// configured limit is zero or negative.
const defaultParallelism = 4

// ExecuteParallel runs every call concurrently, bounded by maxParallel,
// and returns results in the same order as the input calls regardless
// of completion order. A per-call failure occupies its slot as an
// error-status result; it never aborts sibling calls.
func (r *Registry) ExecuteParallel(ctx context.Context, calls []models.ToolCall, maxParallel int) []*models.ToolResult {
	if len(calls) == 0 {
		return nil
	}
	if maxParallel <= 0 {
		maxParallel = defaultParallelism
	}

	results := make([]*models.ToolResult, len(calls))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = r.Execute(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}
