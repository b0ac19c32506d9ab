package healthcheck

import "context"

// CheckerFunc adapts a single-result function to Checker.
type CheckerFunc func(ctx context.Context) CheckResult

// ListChecks calls f and wraps its result.
func (f CheckerFunc) ListChecks(ctx context.Context) []CheckResult {
	if f == nil {
		return []CheckResult{}
	}
	return []CheckResult{f(ctx)}
}
