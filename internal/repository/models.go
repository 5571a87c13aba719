package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/contesthub/mailing-engine/internal/domain"
)

// CampaignModel is the persistence model for the campaigns table. The three
// targeting variants share one row shape; the mode column tags which of the
// nullable targeting columns are meaningful.
type CampaignModel struct {
	ID              string               `gorm:"type:uuid;primaryKey"`
	Name            string               `gorm:"type:varchar(255);not null"`
	Subject         string               `gorm:"type:varchar(500);not null"`
	Body            string               `gorm:"type:text;not null"`
	TargetMode      domain.TargetingMode `gorm:"type:varchar(20);not null"`
	TargetCategory  *string              `gorm:"type:varchar(10)"`
	TargetSeasonID  *int64               `gorm:"type:bigint"`
	RecipientLimit  *int                 `gorm:"type:int"`
	CustomAddresses *string              `gorm:"type:text"`
	ScheduledAt     *time.Time           `gorm:"type:timestamptz"`
	State           domain.CampaignState `gorm:"type:varchar(10);not null"`
	TotalRecipients int                  `gorm:"not null;default:0"`
	SentCount       int                  `gorm:"not null;default:0"`
	FailedCount     int                  `gorm:"not null;default:0"`
	SentAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (CampaignModel) TableName() string {
	return "campaigns"
}

// DeliveryLogModel is the persistence model for delivery_logs.
type DeliveryLogModel struct {
	ID            string                `gorm:"type:uuid;primaryKey"`
	CampaignID    string                `gorm:"type:uuid;not null"`
	Recipient     string                `gorm:"type:varchar(255);not null"`
	RecipientName *string               `gorm:"type:varchar(255)"`
	TeamID        *int64                `gorm:"type:bigint"`
	Status        domain.DeliveryStatus `gorm:"type:varchar(10);not null"`
	ErrorReason   *string               `gorm:"type:text"`
	AttemptedAt   time.Time
}

func (DeliveryLogModel) TableName() string {
	return "delivery_logs"
}

// TeamModel maps the site-owned teams table the registry reads from.
type TeamModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(255);not null"`
	Email     string `gorm:"type:varchar(255);not null"`
	Status    string `gorm:"type:varchar(20);not null"`
	SeasonID  *int64 `gorm:"type:bigint"`
	CreatedAt time.Time
}

func (TeamModel) TableName() string {
	return "teams"
}

func campaignModelFromDomain(c *domain.Campaign) (*CampaignModel, error) {
	if c == nil {
		return nil, nil
	}

	m := &CampaignModel{
		ID:              c.ID,
		Name:            c.Name,
		Subject:         c.Subject,
		Body:            c.Body,
		TargetMode:      c.Targeting.Mode,
		TargetSeasonID:  c.Targeting.SeasonID,
		ScheduledAt:     c.ScheduledAt,
		State:           c.State,
		TotalRecipients: c.TotalRecipients,
		SentCount:       c.SentCount,
		FailedCount:     c.FailedCount,
		SentAt:          c.SentAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}

	switch c.Targeting.Mode {
	case domain.TargetByCategory, domain.TargetLimitedByCategory:
		category := c.Targeting.Category.String()
		m.TargetCategory = &category
		if c.Targeting.Mode == domain.TargetLimitedByCategory {
			limit := c.Targeting.Limit
			m.RecipientLimit = &limit
		}
	case domain.TargetCustomList:
		encoded, err := json.Marshal(c.Targeting.Addresses)
		if err != nil {
			return nil, fmt.Errorf("failed to encode custom address list: %w", err)
		}
		addresses := string(encoded)
		m.CustomAddresses = &addresses
	}

	return m, nil
}

func campaignModelToDomain(m *CampaignModel) (*domain.Campaign, error) {
	if m == nil {
		return nil, nil
	}

	targeting := domain.Targeting{
		Mode:     m.TargetMode,
		SeasonID: m.TargetSeasonID,
	}
	if m.TargetCategory != nil {
		targeting.Category = domain.TeamCategory(*m.TargetCategory)
	}
	if m.RecipientLimit != nil {
		targeting.Limit = *m.RecipientLimit
	}
	if m.CustomAddresses != nil {
		if err := json.Unmarshal([]byte(*m.CustomAddresses), &targeting.Addresses); err != nil {
			return nil, fmt.Errorf("failed to decode custom address list for campaign %s: %w", m.ID, err)
		}
	}

	return &domain.Campaign{
		ID:              m.ID,
		Name:            m.Name,
		Subject:         m.Subject,
		Body:            m.Body,
		Targeting:       targeting,
		ScheduledAt:     m.ScheduledAt,
		State:           m.State,
		TotalRecipients: m.TotalRecipients,
		SentCount:       m.SentCount,
		FailedCount:     m.FailedCount,
		SentAt:          m.SentAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}, nil
}

func deliveryModelFromDomain(e *domain.DeliveryEntry) *DeliveryLogModel {
	if e == nil {
		return nil
	}

	return &DeliveryLogModel{
		ID:            e.ID,
		CampaignID:    e.CampaignID,
		Recipient:     e.Recipient,
		RecipientName: e.RecipientName,
		TeamID:        e.TeamID,
		Status:        e.Status,
		ErrorReason:   e.ErrorReason,
		AttemptedAt:   e.AttemptedAt,
	}
}

func deliveryModelToDomain(m *DeliveryLogModel) *domain.DeliveryEntry {
	if m == nil {
		return nil
	}

	return &domain.DeliveryEntry{
		ID:            m.ID,
		CampaignID:    m.CampaignID,
		Recipient:     m.Recipient,
		RecipientName: m.RecipientName,
		TeamID:        m.TeamID,
		Status:        m.Status,
		ErrorReason:   m.ErrorReason,
		AttemptedAt:   m.AttemptedAt,
	}
}

func teamModelToDomain(m *TeamModel) *domain.Team {
	if m == nil {
		return nil
	}

	return &domain.Team{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		RegisteredAt: m.CreatedAt,
	}
}
