// Package dispatcher runs the send phase of a campaign: claim, resolve,
// fan out per-recipient deliveries, finalize.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/contesthub/mailing-engine/internal/domain"
	"github.com/contesthub/mailing-engine/internal/mailer"
	"github.com/contesthub/mailing-engine/internal/observability"
	"github.com/contesthub/mailing-engine/internal/queue"
	"github.com/contesthub/mailing-engine/internal/ratelimit"
	"github.com/contesthub/mailing-engine/internal/repository"
	"github.com/contesthub/mailing-engine/internal/resolver"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minSendConcurrency = 1

// RecipientResolver turns a campaign's targeting into the dispatch-time
// recipient set.
type RecipientResolver interface {
	Resolve(ctx context.Context, targeting domain.Targeting) ([]resolver.Recipient, error)
}

type Dispatcher struct {
	campaigns   repository.CampaignRepository
	deliveries  repository.DeliveryRepository
	resolver    RecipientResolver
	consumer    queue.Consumer
	mailer      mailer.Mailer
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewDispatcher(
	campaigns repository.CampaignRepository,
	deliveries repository.DeliveryRepository,
	recipientResolver RecipientResolver,
	consumer queue.Consumer,
	sender mailer.Mailer,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if campaigns == nil || deliveries == nil || recipientResolver == nil || sender == nil {
		return nil, fmt.Errorf("campaigns, deliveries, resolver and mailer are required")
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if concurrency < minSendConcurrency {
		concurrency = minSendConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		campaigns:   campaigns,
		deliveries:  deliveries,
		resolver:    recipientResolver,
		consumer:    consumer,
		mailer:      sender,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Start consumes the campaign trigger queue until context cancellation.
func (d *Dispatcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if d.consumer == nil {
		return fmt.Errorf("no consumer configured")
	}

	d.logger.Info("dispatcher started", zap.Int("concurrency", d.concurrency))
	return d.consumer.Consume(ctx, d.Dispatch)
}

// Dispatch runs one campaign's send. Both trigger paths, manual send and
// scheduler tick, end up here, so a campaign races its claim at most once:
// the loser observes a non-claimable state and acks without side effects.
func (d *Dispatcher) Dispatch(ctx context.Context, msg queue.CampaignMessage) error {
	campaign, err := d.campaigns.ClaimForSending(ctx, msg.CampaignID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			d.logger.Warn("campaign not found during claim, skipping",
				zap.String("campaignId", msg.CampaignID),
			)
			return nil
		}
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			d.logger.Info("campaign already claimed, skipping",
				zap.String("campaignId", msg.CampaignID),
			)
			return nil
		}
		return fmt.Errorf("failed to claim campaign for sending: %w", err)
	}

	if d.metrics != nil {
		d.metrics.IncCampaignDispatched(msg.Trigger)
		d.metrics.IncDispatchInFlight()
		defer d.metrics.DecDispatchInFlight()
	}

	recipients, err := d.resolver.Resolve(ctx, campaign.Targeting)
	if err != nil {
		// The claim already happened, so the campaign must still reach a
		// terminal state. An unresolvable target set finalizes empty.
		d.logger.Error("recipient resolution failed, finalizing empty",
			zap.String("campaignId", campaign.ID),
			zap.Error(err),
		)
		return d.finalize(ctx, campaign.ID, 0, 0)
	}

	if err := d.campaigns.SetTotalRecipients(ctx, campaign.ID, len(recipients)); err != nil {
		return fmt.Errorf("failed to set total recipients: %w", err)
	}

	if len(recipients) == 0 {
		d.logger.Info("campaign resolved to zero recipients",
			zap.String("campaignId", campaign.ID),
		)
		return d.finalize(ctx, campaign.ID, 0, 0)
	}

	d.logger.Info("campaign dispatch started",
		zap.String("campaignId", campaign.ID),
		zap.String("trigger", msg.Trigger),
		zap.Int("recipients", len(recipients)),
	)

	var sentCount, failedCount atomic.Int64

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i := range recipients {
		recipient := recipients[i]
		g.Go(func() error {
			return d.deliver(groupCtx, campaign, recipient, &sentCount, &failedCount)
		})
	}

	if err := g.Wait(); err != nil {
		// Entries still pending after an interrupted run are swept to
		// failed by the reconciler; the counts below cover only what
		// actually reached a terminal state here.
		d.logger.Error("campaign dispatch interrupted",
			zap.String("campaignId", campaign.ID),
			zap.Error(err),
		)
	}

	sent := int(sentCount.Load())
	failed := int(failedCount.Load())
	if err := d.finalize(ctx, campaign.ID, sent, failed); err != nil {
		return err
	}

	d.logger.Info("campaign dispatch finished",
		zap.String("campaignId", campaign.ID),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
	)
	return nil
}

func (d *Dispatcher) deliver(
	ctx context.Context,
	campaign *domain.Campaign,
	recipient resolver.Recipient,
	sentCount *atomic.Int64,
	failedCount *atomic.Int64,
) error {
	entry := &domain.DeliveryEntry{
		ID:            uuid.NewString(),
		CampaignID:    campaign.ID,
		Recipient:     recipient.Address,
		RecipientName: recipient.Name,
		TeamID:        recipient.TeamID,
		Status:        domain.DeliveryPending,
		AttemptedAt:   d.now().UTC(),
	}
	if err := d.deliveries.RecordAttempt(ctx, entry); err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}

	if err := d.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	sendStart := d.now()
	sendErr := d.mailer.Send(ctx, recipient.Address, campaign.Subject, campaign.Body)
	if d.metrics != nil {
		d.metrics.ObserveMailSendDuration(d.now().Sub(sendStart))
	}

	if sendErr == nil {
		if err := d.deliveries.RecordOutcome(ctx, entry.ID, domain.DeliverySent, nil); err != nil {
			return fmt.Errorf("failed to record sent outcome: %w", err)
		}
		sentCount.Add(1)
		if d.metrics != nil {
			d.metrics.IncDelivery("sent")
		}
		return nil
	}

	reason := sendErr.Error()
	if err := d.deliveries.RecordOutcome(ctx, entry.ID, domain.DeliveryFailed, &reason); err != nil {
		return fmt.Errorf("failed to record failed outcome: %w", err)
	}
	failedCount.Add(1)
	if d.metrics != nil {
		d.metrics.IncDelivery("failed")
	}

	d.logger.Warn("mail delivery failed",
		zap.String("campaignId", campaign.ID),
		zap.String("recipient", recipient.Address),
		zap.Error(sendErr),
	)
	return nil
}

func (d *Dispatcher) finalize(ctx context.Context, campaignID string, sent, failed int) error {
	if err := d.campaigns.Finalize(ctx, campaignID, sent, failed); err != nil {
		return fmt.Errorf("failed to finalize campaign: %w", err)
	}
	return nil
}
