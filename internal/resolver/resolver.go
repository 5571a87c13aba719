// Package resolver turns a campaign's targeting into a concrete recipient
// list. Resolution runs at send time against the live registry, so the set
// an operator previewed can differ from the set actually dispatched when
// team data changed in between; the dispatch-time set is authoritative.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/contesthub/mailing-engine/internal/domain"
	"github.com/contesthub/mailing-engine/internal/repository"
)

// Recipient is one resolved delivery target.
type Recipient struct {
	Address string
	Name    *string
	TeamID  *int64
}

type Resolver struct {
	registry repository.TeamRegistry
}

func New(registry repository.TeamRegistry) (*Resolver, error) {
	if registry == nil {
		return nil, fmt.Errorf("team registry is required")
	}
	return &Resolver{registry: registry}, nil
}

// Resolve evaluates the targeting against the current registry snapshot and
// returns an ordered, address-deduplicated recipient list.
func (r *Resolver) Resolve(ctx context.Context, targeting domain.Targeting) ([]Recipient, error) {
	if err := targeting.Validate(); err != nil {
		return nil, err
	}

	switch targeting.Mode {
	case domain.TargetCustomList:
		return dedupe(customRecipients(targeting.Addresses)), nil
	case domain.TargetByCategory, domain.TargetLimitedByCategory:
		teams, err := r.registry.ListTeams(ctx, targeting.Category, targeting.SeasonID)
		if err != nil {
			return nil, fmt.Errorf("failed to list registry teams: %w", err)
		}
		if targeting.Mode == domain.TargetLimitedByCategory {
			teams = newestTeams(teams, targeting.Limit)
		}
		return dedupe(teamRecipients(teams)), nil
	}

	return nil, fmt.Errorf("%w: invalid targeting mode %q", domain.ErrValidation, targeting.Mode)
}

func customRecipients(addresses []string) []Recipient {
	recipients := make([]Recipient, 0, len(addresses))
	for _, addr := range addresses {
		recipients = append(recipients, Recipient{Address: strings.TrimSpace(addr)})
	}
	return recipients
}

func teamRecipients(teams []domain.Team) []Recipient {
	recipients := make([]Recipient, 0, len(teams))
	for i := range teams {
		team := teams[i]
		name := team.Name
		teamID := team.ID
		recipients = append(recipients, Recipient{
			Address: strings.TrimSpace(team.Email),
			Name:    &name,
			TeamID:  &teamID,
		})
	}
	return recipients
}

// newestTeams keeps the limit most-recently-registered teams, newest first.
func newestTeams(teams []domain.Team, limit int) []domain.Team {
	sorted := make([]domain.Team, len(teams))
	copy(sorted, teams)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RegisteredAt.After(sorted[j].RegisteredAt)
	})
	if limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted
}

// dedupe drops repeat addresses case-insensitively. The first occurrence
// keeps its position; the last occurrence's display name and team id win.
func dedupe(recipients []Recipient) []Recipient {
	result := make([]Recipient, 0, len(recipients))
	seen := make(map[string]int, len(recipients))

	for _, recipient := range recipients {
		if recipient.Address == "" {
			continue
		}
		key := strings.ToLower(recipient.Address)
		if idx, ok := seen[key]; ok {
			if recipient.Name != nil {
				result[idx].Name = recipient.Name
			}
			if recipient.TeamID != nil {
				result[idx].TeamID = recipient.TeamID
			}
			continue
		}
		seen[key] = len(result)
		result = append(result, recipient)
	}

	return result
}
