package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/contesthub/mailing-engine/internal/domain"
	"github.com/contesthub/mailing-engine/internal/queue"
	"github.com/contesthub/mailing-engine/internal/repository"
	"github.com/contesthub/mailing-engine/internal/resolver"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecipientResolver previews the recipient set a targeting would currently
// select. The set at send time may differ; see the resolver package.
type RecipientResolver interface {
	Resolve(ctx context.Context, targeting domain.Targeting) ([]resolver.Recipient, error)
}

// CampaignStats summarizes one campaign's delivery log.
type CampaignStats struct {
	Campaign  *domain.Campaign
	Delivered repository.DeliveryAggregate
}

// EngineStats summarizes the whole delivery log across campaigns.
type EngineStats struct {
	Delivered repository.DeliveryAggregate
}

type CampaignService struct {
	campaigns  repository.CampaignRepository
	deliveries repository.DeliveryRepository
	resolver   RecipientResolver
	publisher  queue.Publisher
	logger     *zap.Logger
	now        func() time.Time
}

func NewCampaignService(
	campaigns repository.CampaignRepository,
	deliveries repository.DeliveryRepository,
	recipientResolver RecipientResolver,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*CampaignService, error) {
	if campaigns == nil || deliveries == nil || recipientResolver == nil || publisher == nil {
		return nil, fmt.Errorf("campaigns, deliveries, resolver and publisher are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CampaignService{
		campaigns:  campaigns,
		deliveries: deliveries,
		resolver:   recipientResolver,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Create validates and stores a new campaign. A future scheduled_at lands
// the campaign in SCHEDULED, otherwise it stays a DRAFT until triggered
// manually.
func (s *CampaignService) Create(ctx context.Context, campaign *domain.Campaign) (*domain.Campaign, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.prepareForCreate(campaign); err != nil {
		return nil, err
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, err
	}

	s.logger.Info("campaign created",
		zap.String("campaignId", campaign.ID),
		zap.String("state", campaign.State.String()),
		zap.String("targetMode", campaign.Targeting.Mode.String()),
	)
	return campaign, nil
}

func (s *CampaignService) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: campaign id is required", domain.ErrValidation)
	}
	return s.campaigns.GetByID(ctx, strings.TrimSpace(id))
}

func (s *CampaignService) List(
	ctx context.Context,
	params repository.CampaignListParams,
) ([]domain.Campaign, int64, error) {
	return s.campaigns.List(ctx, params)
}

// Delete removes a campaign and its delivery log. Sent campaigns may be
// deleted too; the log entries go with them.
func (s *CampaignService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: campaign id is required", domain.ErrValidation)
	}
	return s.campaigns.Delete(ctx, strings.TrimSpace(id))
}

// SendNow queues a campaign for immediate dispatch. The state check here is
// advisory; the dispatcher's claim is the authoritative gate, so a campaign
// raced into SENDING between this check and the claim is simply skipped
// there.
func (s *CampaignService) SendNow(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: campaign id is required", domain.ErrValidation)
	}

	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if campaign.State != domain.StateDraft && campaign.State != domain.StateScheduled {
		return fmt.Errorf("%w: campaign in state %s cannot be sent", domain.ErrConflict, campaign.State)
	}

	msg := queue.CampaignMessage{
		CampaignID: campaign.ID,
		Trigger:    queue.TriggerManual,
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error("failed to publish campaign trigger",
			zap.String("campaignId", campaign.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish campaign trigger: %w", err)
	}

	s.logger.Info("campaign queued for sending", zap.String("campaignId", campaign.ID))
	return nil
}

// PreviewRecipients resolves a campaign's targeting against the current
// registry without touching the campaign's state.
func (s *CampaignService) PreviewRecipients(ctx context.Context, id string) ([]resolver.Recipient, error) {
	campaign, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, campaign.Targeting)
}

func (s *CampaignService) ListDeliveries(
	ctx context.Context,
	params repository.DeliveryListParams,
) ([]domain.DeliveryEntry, int64, error) {
	return s.deliveries.List(ctx, params)
}

func (s *CampaignService) Stats(ctx context.Context, id string) (*CampaignStats, error) {
	campaign, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	agg, err := s.deliveries.Aggregate(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}

	return &CampaignStats{Campaign: campaign, Delivered: agg}, nil
}

func (s *CampaignService) OverallStats(ctx context.Context) (*EngineStats, error) {
	agg, err := s.deliveries.Aggregate(ctx, "")
	if err != nil {
		return nil, err
	}
	return &EngineStats{Delivered: agg}, nil
}

// ClearAll wipes every campaign and delivery log entry. Maintenance only.
func (s *CampaignService) ClearAll(ctx context.Context) error {
	if err := s.campaigns.DeleteAll(ctx); err != nil {
		return err
	}
	s.logger.Warn("all campaigns and delivery logs cleared")
	return nil
}

// ClearDeliveryLog wipes the delivery log while keeping campaigns.
func (s *CampaignService) ClearDeliveryLog(ctx context.Context) error {
	if err := s.deliveries.DeleteAll(ctx); err != nil {
		return err
	}
	s.logger.Warn("delivery log cleared")
	return nil
}

func (s *CampaignService) prepareForCreate(campaign *domain.Campaign) error {
	if campaign == nil {
		return fmt.Errorf("%w: campaign is required", domain.ErrValidation)
	}

	campaign.Name = strings.TrimSpace(campaign.Name)
	campaign.Subject = strings.TrimSpace(campaign.Subject)
	campaign.Body = strings.TrimSpace(campaign.Body)

	campaign.ID = strings.TrimSpace(campaign.ID)
	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}

	now := s.now().UTC()
	campaign.State = domain.StateDraft
	if campaign.ScheduledAt != nil {
		scheduledAt := campaign.ScheduledAt.UTC()
		if !scheduledAt.After(now) {
			return fmt.Errorf("%w: scheduled_at must be in the future", domain.ErrValidation)
		}
		campaign.ScheduledAt = &scheduledAt
		campaign.State = domain.StateScheduled
	}
	campaign.TotalRecipients = 0
	campaign.SentCount = 0
	campaign.FailedCount = 0
	campaign.SentAt = nil

	return campaign.Validate()
}
