package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(retries int) Policy {
	return Policy{
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	v, err := Do(context.Background(), fastPolicy(3), func(_ context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "ok" || calls != 1 {
		t.Errorf("expected ok after 1 call, got %q after %d", v, calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	v, err := Do(context.Background(), fastPolicy(3), func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("unavailable"), 503)
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 7 || calls != 3 {
		t.Errorf("expected 7 after 3 calls, got %d after %d", v, calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	var retries []int
	p := fastPolicy(3)
	p.OnRetry = func(retry int, _ error) { retries = append(retries, retry) }

	_, err := Do(context.Background(), p, func(_ context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("always fails"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls (1 + 3 retries), got %d", calls)
	}
	if len(retries) != 3 || retries[0] != 1 || retries[2] != 3 {
		t.Errorf("unexpected retry callbacks: %v", retries)
	}
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	_, err := Do(context.Background(), fastPolicy(3), func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("status 404")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ZeroRetries(t *testing.T) {
	var calls int
	_, _ = Do(context.Background(), fastPolicy(0), func(_ context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("fail"), 500)
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	p := Policy{MaxRetries: 5, InitialBackoff: 20 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}

	_, err := Do(ctx, p, func(_ context.Context) (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls before cancel stopped retries, got %d", calls)
	}
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	p := fastPolicy(2)
	p.ShouldRetry = func(err error) bool { return err.Error() == "retry me" }

	_, err := Do(context.Background(), p, func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("retry me")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestBackoff_Capped(t *testing.T) {
	p := Policy{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, Multiplier: 2}.withDefaults()
	if d := p.backoff(0); d != time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", d)
	}
	if d := p.backoff(1); d != 2*time.Second {
		t.Errorf("attempt 1: expected 2s, got %v", d)
	}
	if d := p.backoff(5); d != 3*time.Second {
		t.Errorf("attempt 5: expected cap 3s, got %v", d)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", p.MaxRetries)
	}
}
