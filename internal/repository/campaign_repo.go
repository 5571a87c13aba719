package repository

import (
	"context"
	"errors"
	"time"

	"github.com/contesthub/mailing-engine/internal/domain"
	"gorm.io/gorm"
)

type CampaignListParams struct {
	State    *domain.CampaignState
	Page     int
	PageSize int
}

type CampaignRepository interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, params CampaignListParams) ([]domain.Campaign, int64, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	ClaimForSending(ctx context.Context, id string) (*domain.Campaign, error)
	Finalize(ctx context.Context, id string, sentCount, failedCount int) error
	SetTotalRecipients(ctx context.Context, id string, total int) error
	GetDueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
}

type GormCampaignRepo struct {
	db *gorm.DB
}

func NewGormCampaignRepo(db *gorm.DB) *GormCampaignRepo {
	return &GormCampaignRepo{db: db}
}

func (r *GormCampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	model, err := campaignModelFromDomain(c)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if c != nil {
		restored, err := campaignModelToDomain(model)
		if err != nil {
			return err
		}
		*c = *restored
	}
	return nil
}

func (r *GormCampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var model CampaignModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return campaignModelToDomain(&model)
}

func (r *GormCampaignRepo) List(ctx context.Context, params CampaignListParams) ([]domain.Campaign, int64, error) {
	query := r.db.WithContext(ctx).Model(&CampaignModel{})

	if params.State != nil {
		query = query.Where("state = ?", *params.State)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []CampaignModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	campaigns := make([]domain.Campaign, 0, len(models))
	for i := range models {
		campaign, err := campaignModelToDomain(&models[i])
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, *campaign)
	}

	return campaigns, total, nil
}

func (r *GormCampaignRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Entries are owned by the campaign; remove them in the same
		// transaction so a partial delete never orphans the log.
		if err := tx.Where("campaign_id = ?", id).Delete(&DeliveryLogModel{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&CampaignModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *GormCampaignRepo) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&DeliveryLogModel{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&CampaignModel{}).Error
	})
}

// ClaimForSending grants exclusive right to run the campaign's send. The
// transition is a single conditional UPDATE so concurrent claims (scheduler
// tick racing a manual send) resolve to exactly one winner.
func (r *GormCampaignRepo) ClaimForSending(ctx context.Context, id string) (*domain.Campaign, error) {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND state IN ?", id, []domain.CampaignState{domain.StateDraft, domain.StateScheduled}).
		Update("state", domain.StateSending)
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		var model CampaignModel
		err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyClaimed
	}

	return r.GetByID(ctx, id)
}

// Finalize moves a sending campaign to sent with its terminal counts. A
// repeat call that finds the campaign already sent with the same counts is
// a no-op, so a restarted run can re-finalize safely.
func (r *GormCampaignRepo) Finalize(ctx context.Context, id string, sentCount, failedCount int) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND state = ?", id, domain.StateSending).
		Updates(map[string]any{
			"state":        domain.StateSent,
			"sent_count":   sentCount,
			"failed_count": failedCount,
			"sent_at":      now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return finalizeRepeatOutcome(existing, sentCount, failedCount)
}

// finalizeRepeatOutcome resolves a finalize whose conditional UPDATE matched
// no sending row. An identical already-sent campaign means an earlier run
// already finished and the repeat is a no-op; anything else conflicts.
func finalizeRepeatOutcome(existing *domain.Campaign, sentCount, failedCount int) error {
	if existing.State == domain.StateSent &&
		existing.SentCount == sentCount &&
		existing.FailedCount == failedCount {
		return nil
	}
	return domain.ErrConflict
}

func (r *GormCampaignRepo) SetTotalRecipients(ctx context.Context, id string, total int) error {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ?", id).
		Update("total_recipients", total)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormCampaignRepo) GetDueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	var models []CampaignModel
	err := r.db.WithContext(ctx).
		Where("state = ? AND scheduled_at <= ?", domain.StateScheduled, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	campaigns := make([]domain.Campaign, 0, len(models))
	for i := range models {
		campaign, err := campaignModelToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *campaign)
	}

	return campaigns, nil
}
