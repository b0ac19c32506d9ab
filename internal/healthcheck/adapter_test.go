package healthcheck

import (
	"context"
	"testing"
)

type testChecker struct {
	items []CheckResult
}

func (c *testChecker) ListChecks(ctx context.Context) []CheckResult {
	return c.items
}

func TestCheckerFuncListChecks(t *testing.T) {
	t.Parallel()

	checker := CheckerFunc(func(ctx context.Context) CheckResult {
		return CheckResult{ID: "static", Type: "static", Status: StatusOK, Summary: "fine"}
	})
	items := checker.ListChecks(context.Background())
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].ID != "static" || items[0].Status != "ok" {
		t.Fatalf("unexpected item: %+v", items[0])
	}
}

func TestCheckerFuncNil(t *testing.T) {
	t.Parallel()

	var checker CheckerFunc
	if items := checker.ListChecks(context.Background()); len(items) != 0 {
		t.Fatalf("expected empty items, got %d", len(items))
	}
}

func TestRunFoldsStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		statuses []string
		want     string
		ready    bool
	}{
		{name: "empty", want: StatusOK, ready: true},
		{name: "all ok", statuses: []string{StatusOK, StatusOK}, want: StatusOK, ready: true},
		{name: "warn", statuses: []string{StatusOK, StatusWarn}, want: StatusWarn, ready: true},
		{name: "unknown", statuses: []string{StatusUnknown}, want: StatusWarn, ready: true},
		{name: "error wins", statuses: []string{StatusWarn, StatusError, StatusOK}, want: StatusError, ready: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			items := make([]CheckResult, 0, len(tc.statuses))
			for _, s := range tc.statuses {
				items = append(items, CheckResult{ID: s, Status: s})
			}
			report := Run(context.Background(), &testChecker{items: items}, nil)
			if report.Status != tc.want {
				t.Fatalf("status: want %s got %s", tc.want, report.Status)
			}
			if report.Ready() != tc.ready {
				t.Fatalf("ready: want %v got %v", tc.ready, report.Ready())
			}
			if len(report.Checks) != len(tc.statuses) {
				t.Fatalf("expected %d checks, got %d", len(tc.statuses), len(report.Checks))
			}
		})
	}
}
