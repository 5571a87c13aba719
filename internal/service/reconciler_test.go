package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewReconcilerAppliesDefaults(t *testing.T) {
	t.Parallel()

	reconciler, err := NewReconciler(&fakeDeliveryRepo{}, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}
	if reconciler.interval != defaultReconcilerInterval {
		t.Fatalf("interval = %s, want %s", reconciler.interval, defaultReconcilerInterval)
	}
	if reconciler.staleAfter != defaultStalePendingAfter {
		t.Fatalf("staleAfter = %s, want %s", reconciler.staleAfter, defaultStalePendingAfter)
	}
}

func TestReconcilerSweepMarksStalePending(t *testing.T) {
	t.Parallel()

	var gotCutoff time.Time
	var gotReason string
	deliveries := &fakeDeliveryRepo{
		markStalePendingFailedFn: func(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
			gotCutoff = olderThan
			gotReason = reason
			return 3, nil
		},
	}

	reconciler, err := NewReconciler(deliveries, time.Minute, 15*time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}
	reconciler.now = func() time.Time { return testNow }

	if err := reconciler.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}

	wantCutoff := testNow.Add(-15 * time.Minute)
	if !gotCutoff.Equal(wantCutoff) {
		t.Fatalf("cutoff = %v, want %v", gotCutoff, wantCutoff)
	}
	if gotReason != stalePendingFailureMessage {
		t.Fatalf("reason = %q, want %q", gotReason, stalePendingFailureMessage)
	}
}

func TestReconcilerSweepRepositoryError(t *testing.T) {
	t.Parallel()

	deliveries := &fakeDeliveryRepo{
		markStalePendingFailedFn: func(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
			return 0, errors.New("db unavailable")
		},
	}

	reconciler, err := NewReconciler(deliveries, time.Minute, 15*time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}

	if err := reconciler.sweep(context.Background()); err == nil {
		t.Fatal("expected sweep() error")
	}
}

func TestReconcilerStartReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reconciler, err := NewReconciler(&fakeDeliveryRepo{}, time.Second, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}

	if err := reconciler.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}
