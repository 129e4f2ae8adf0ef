package errors

import (
	"fmt"
	"testing"
)

func TestCategoryChecks(t *testing.T) {
	cases := []struct {
		err      error
		config   bool
		srcQuery bool
	}{
		{ErrInvalidConfig, true, false},
		{ErrMissingField, true, false},
		{ErrSourceQuery, false, true},
		{ErrMetricEmpty, false, true},
		{ErrInvalidMetric, false, true},
		{ErrNonMonotonic, false, false},
		// Plausibility warnings are neither a config nor a source failure.
		{ErrSuspiciousData, false, false},
		{fmt.Errorf("3 plausibility warnings: %w", ErrSuspiciousData), false, false},
	}
	for _, c := range cases {
		if got := IsConfig(c.err); got != c.config {
			t.Errorf("IsConfig(%v) = %v, want %v", c.err, got, c.config)
		}
		if got := IsSourceQuery(c.err); got != c.srcQuery {
			t.Errorf("IsSourceQuery(%v) = %v, want %v", c.err, got, c.srcQuery)
		}
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) != nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) != nil")
	}
}

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrap(ErrSourceQuery, "stats probe")
	if !Is(err, ErrSourceQuery) {
		t.Errorf("wrapped error lost sentinel: %v", err)
	}
}
