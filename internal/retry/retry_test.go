package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	cfg := Config{Attempts: 3, Delay: time.Millisecond, Backoff: 1}

	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	cfg := Config{Attempts: 2, Delay: time.Millisecond, Backoff: 1}

	wantErr := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do() = %v, want %v", err, wantErr)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	cfg := Config{Attempts: 5, Delay: time.Millisecond, Backoff: 1}

	wantErr := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return Permanent(wantErr)
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do() = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoUnwrapsPermanentMarker(t *testing.T) {
	wantErr := errors.New("inner")
	err := Do(context.Background(), Config{Attempts: 1}, func(ctx context.Context) error {
		return Permanent(wantErr)
	})
	if err == nil || err.Error() != "inner" {
		t.Fatalf("Do() = %v, want unwrapped inner error", err)
	}
}

func TestDoHonoursContextCancellation(t *testing.T) {
	cfg := Config{Attempts: 10, Delay: time.Hour, Backoff: 1}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestPermanentNilIsNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
}
