package repository

import (
	"context"

	"github.com/contesthub/mailing-engine/internal/domain"
	"gorm.io/gorm"
)

// Team registry statuses as stored by the site.
const (
	teamStatusApproved = "approved"
	teamStatusPending  = "pending"
)

// TeamRegistry is the read-only view of the site's team registry used by
// recipient resolution.
type TeamRegistry interface {
	ListTeams(ctx context.Context, category domain.TeamCategory, seasonID *int64) ([]domain.Team, error)
}

type GormTeamRegistry struct {
	db *gorm.DB
}

func NewGormTeamRegistry(db *gorm.DB) *GormTeamRegistry {
	return &GormTeamRegistry{db: db}
}

// ListTeams returns matching teams in registration order (oldest first).
func (r *GormTeamRegistry) ListTeams(ctx context.Context, category domain.TeamCategory, seasonID *int64) ([]domain.Team, error) {
	query := r.db.WithContext(ctx).Model(&TeamModel{})

	switch category {
	case domain.CategoryApproved:
		query = query.Where("status = ?", teamStatusApproved)
	case domain.CategoryPending:
		query = query.Where("status = ?", teamStatusPending)
	}
	if seasonID != nil {
		query = query.Where("season_id = ?", *seasonID)
	}

	var models []TeamModel
	if err := query.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	teams := make([]domain.Team, 0, len(models))
	for i := range models {
		teams = append(teams, *teamModelToDomain(&models[i]))
	}

	return teams, nil
}
