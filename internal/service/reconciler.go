package service

import (
	"context"
	"fmt"
	"time"

	"github.com/contesthub/mailing-engine/internal/observability"
	"github.com/contesthub/mailing-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultReconcilerInterval  = time.Minute
	defaultStalePendingAfter   = 15 * time.Minute
	stalePendingFailureMessage = "delivery interrupted"
)

// Reconciler sweeps delivery entries stuck in PENDING after a crashed or
// interrupted dispatch run. Interrupted deliveries are marked failed and
// never re-sent automatically: the mail may or may not have left the relay,
// and a duplicate send is worse than a false failure.
type Reconciler struct {
	deliveries repository.DeliveryRepository
	logger     *zap.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewReconciler(
	deliveries repository.DeliveryRepository,
	interval time.Duration,
	staleAfter time.Duration,
	logger *zap.Logger,
) (*Reconciler, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if interval <= 0 {
		interval = defaultReconcilerInterval
	}
	if staleAfter <= 0 {
		staleAfter = defaultStalePendingAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		deliveries: deliveries,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}, nil
}

func (r *Reconciler) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

func (r *Reconciler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("stale pending sweep failed", zap.Error(err))
			}
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) error {
	cutoff := r.now().UTC().Add(-r.staleAfter)
	swept, err := r.deliveries.MarkStalePendingFailed(ctx, cutoff, stalePendingFailureMessage)
	if err != nil {
		return fmt.Errorf("failed to mark stale pending deliveries: %w", err)
	}

	if swept > 0 {
		r.logger.Warn("stale pending deliveries marked failed",
			zap.Int64("count", swept),
			zap.Duration("staleAfter", r.staleAfter),
		)
		if r.metrics != nil {
			r.metrics.AddStalePendingReconciled(swept)
		}
	}

	return nil
}
