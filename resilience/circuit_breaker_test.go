package resilience

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func TestCircuitBreaker_Opens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "api", MaxFailures: 2, Timeout: time.Hour})
	fail := func() error { return errUpstream }

	for i := 0; i < 2; i++ {
		if err := cb.Execute(fail); !errors.Is(err, errUpstream) {
			t.Fatalf("Execute = %v", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("open circuit let the call through: %v", err)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "api",
		MaxFailures: 1,
		Timeout:     10 * time.Millisecond,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	_ = cb.Execute(func() error { return errUpstream })
	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: 10 * time.Millisecond})
	_ = cb.Execute(func() error { return errUpstream })
	time.Sleep(20 * time.Millisecond)
	_ = cb.Execute(func() error { return errUpstream })
	if cb.State() != StateOpen {
		t.Errorf("state = %s, want open", cb.State())
	}
}

func TestCircuitBreaker_IsFailure(t *testing.T) {
	notFound := errors.New("404")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		Timeout:     time.Hour,
		IsFailure:   func(err error) bool { return !errors.Is(err, notFound) },
	})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return notFound }); !errors.Is(err, notFound) {
			t.Fatalf("Execute = %v", err)
		}
	}
	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Errorf("ignored errors counted: state=%s failures=%d", cb.State(), cb.Failures())
	}
}

func TestCall(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("api"))
	got, err := Call(cb, func() (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Errorf("Call = %d, %v", got, err)
	}

	cb.Reset()
	if cb.State() != StateClosed || cb.Name() != "api" {
		t.Errorf("state=%s name=%s", cb.State(), cb.Name())
	}
}
