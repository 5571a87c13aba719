package repository

import (
	"context"
	"errors"
	"time"

	"github.com/contesthub/mailing-engine/internal/domain"
	"gorm.io/gorm"
)

type DeliveryListParams struct {
	CampaignID *string
	Status     *domain.DeliveryStatus
	Search     string
	Page       int
	PageSize   int
}

// DeliveryAggregate summarizes a campaign's delivery log by status.
type DeliveryAggregate struct {
	Total   int64
	Sent    int64
	Failed  int64
	Pending int64
}

type DeliveryRepository interface {
	RecordAttempt(ctx context.Context, e *domain.DeliveryEntry) error
	RecordOutcome(ctx context.Context, entryID string, status domain.DeliveryStatus, reason *string) error
	List(ctx context.Context, params DeliveryListParams) ([]domain.DeliveryEntry, int64, error)
	Aggregate(ctx context.Context, campaignID string) (DeliveryAggregate, error)
	MarkStalePendingFailed(ctx context.Context, olderThan time.Time, reason string) (int64, error)
	DeleteAll(ctx context.Context) error
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) RecordAttempt(ctx context.Context, e *domain.DeliveryEntry) error {
	model := deliveryModelFromDomain(e)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if e != nil {
		*e = *deliveryModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryRepo) RecordOutcome(ctx context.Context, entryID string, status domain.DeliveryStatus, reason *string) error {
	if !status.IsTerminal() {
		return domain.ErrValidation
	}

	// Only a pending entry may receive an outcome; this keeps the
	// one-terminal-entry-per-recipient invariant in the store itself.
	result := r.db.WithContext(ctx).
		Model(&DeliveryLogModel{}).
		Where("id = ? AND status = ?", entryID, domain.DeliveryPending).
		Updates(map[string]any{
			"status":       status,
			"error_reason": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var model DeliveryLogModel
		err := r.db.WithContext(ctx).First(&model, "id = ?", entryID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) List(ctx context.Context, params DeliveryListParams) ([]domain.DeliveryEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeliveryLogModel{})

	if params.CampaignID != nil {
		query = query.Where("campaign_id = ?", *params.CampaignID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Search != "" {
		query = query.Where("recipient ILIKE ?", "%"+params.Search+"%")
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

	var models []DeliveryLogModel
	err := query.
		Order("attempted_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	entries := make([]domain.DeliveryEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *deliveryModelToDomain(&models[i]))
	}

	return entries, total, nil
}

// Aggregate counts entries by status; an empty campaignID aggregates the
// whole log.
func (r *GormDeliveryRepo) Aggregate(ctx context.Context, campaignID string) (DeliveryAggregate, error) {
	type statusCount struct {
		Status domain.DeliveryStatus `gorm:"column:status"`
		Count  int64                 `gorm:"column:count"`
	}

	query := r.db.WithContext(ctx).Model(&DeliveryLogModel{})
	if campaignID != "" {
		query = query.Where("campaign_id = ?", campaignID)
	}

	var counts []statusCount
	err := query.
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return DeliveryAggregate{}, err
	}

	var agg DeliveryAggregate
	for _, c := range counts {
		agg.Total += c.Count
		switch c.Status {
		case domain.DeliverySent:
			agg.Sent = c.Count
		case domain.DeliveryFailed:
			agg.Failed = c.Count
		case domain.DeliveryPending:
			agg.Pending = c.Count
		}
	}

	return agg, nil
}

// MarkStalePendingFailed flips pending entries older than the cutoff to
// failed. Interrupted attempts are never re-sent automatically; the operator
// sees them as failures with the given reason.
func (r *GormDeliveryRepo) MarkStalePendingFailed(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryLogModel{}).
		Where("status = ? AND attempted_at < ?", domain.DeliveryPending, olderThan).
		Updates(map[string]any{
			"status":       domain.DeliveryFailed,
			"error_reason": reason,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormDeliveryRepo) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&DeliveryLogModel{}).Error
}
