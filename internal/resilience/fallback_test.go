package resilience

import (
	"errors"
	"testing"
	"time"
)

func newStringGroup(cfg CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("coqui", "coqui", FallbackConfig{CircuitBreaker: cfg})
	fg.AddFallback("openai", "openai")
	return fg
}

func TestFallbackGroup_PrimaryWins(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	var called []string
	err := fg.Execute(func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(called) != 1 || called[0] != "coqui" {
		t.Fatalf("called = %v, want just the primary", called)
	}
}

func TestFallbackGroup_FailsOver(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	var served string
	err := fg.Execute(func(v string) error {
		if v == "coqui" {
			return errBackend
		}
		served = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "openai" {
		t.Fatalf("served by %q, want openai", served)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	err := fg.Execute(func(string) error { return errBackend })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenBreakerSkipsEntry(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	// Fail the primary until its breaker opens.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "coqui" {
				return errBackend
			}
			return nil
		})
	}

	var primaryCalled bool
	err := fg.Execute(func(v string) error {
		if v == "coqui" {
			primaryCalled = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if primaryCalled {
		t.Fatal("primary was called despite its open breaker")
	}
}

func TestExecuteWithResult(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		return "clip from " + v, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "clip from coqui" {
		t.Fatalf("result = %q", got)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "coqui" {
			return "", errBackend
		}
		return "clip from " + v, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "clip from openai" {
		t.Fatalf("result = %q, want the fallback's clip", got)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup("coqui", "coqui", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	got, err := ExecuteWithResult(fg, func(string) (string, error) {
		return "", errBackend
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if got != "" {
		t.Fatalf("result = %q, want zero value", got)
	}
}
