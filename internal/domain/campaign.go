package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// CampaignState represents the lifecycle state of a campaign.
type CampaignState string

const (
	StateDraft     CampaignState = "DRAFT"
	StateScheduled CampaignState = "SCHEDULED"
	StateSending   CampaignState = "SENDING"
	StateSent      CampaignState = "SENT"
)

func (s CampaignState) String() string { return string(s) }

func (s CampaignState) IsValid() bool {
	switch s {
	case StateDraft, StateScheduled, StateSending, StateSent:
		return true
	}
	return false
}

// IsTerminal reports whether the state admits no further transitions.
func (s CampaignState) IsTerminal() bool { return s == StateSent }

func ParseCampaignStateFromString(s string) (CampaignState, error) {
	st := CampaignState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid campaign state %q", ErrValidation, s)
	}
	return st, nil
}

// TeamCategory selects which registry teams a campaign targets.
type TeamCategory string

const (
	CategoryAll      TeamCategory = "ALL"
	CategoryApproved TeamCategory = "APPROVED"
	CategoryPending  TeamCategory = "PENDING"
)

func (c TeamCategory) String() string { return string(c) }

func (c TeamCategory) IsValid() bool {
	switch c {
	case CategoryAll, CategoryApproved, CategoryPending:
		return true
	}
	return false
}

func ParseTeamCategoryFromString(s string) (TeamCategory, error) {
	c := TeamCategory(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid team category %q", ErrValidation, s)
	}
	return c, nil
}

// TargetingMode tags which targeting variant a campaign carries.
type TargetingMode string

const (
	TargetByCategory        TargetingMode = "BY_CATEGORY"
	TargetCustomList        TargetingMode = "CUSTOM_LIST"
	TargetLimitedByCategory TargetingMode = "LIMITED_BY_CATEGORY"
)

func (m TargetingMode) String() string { return string(m) }

func (m TargetingMode) IsValid() bool {
	switch m {
	case TargetByCategory, TargetCustomList, TargetLimitedByCategory:
		return true
	}
	return false
}

func ParseTargetingModeFromString(s string) (TargetingMode, error) {
	m := TargetingMode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: invalid targeting mode %q", ErrValidation, s)
	}
	return m, nil
}

// Targeting is a closed variant over the three recipient selection rules.
// Exactly one shape is legal per mode; Validate rejects everything else, so
// a stored targeting always decodes back to one of the constructors below.
type Targeting struct {
	Mode      TargetingMode
	Category  TeamCategory
	SeasonID  *int64
	Limit     int
	Addresses []string
}

// NewCategoryTargeting targets every registry team in the category,
// optionally restricted to one season.
func NewCategoryTargeting(category TeamCategory, seasonID *int64) Targeting {
	return Targeting{
		Mode:     TargetByCategory,
		Category: category,
		SeasonID: seasonID,
	}
}

// NewLimitedCategoryTargeting targets the limit most-recently-registered
// teams in the category.
func NewLimitedCategoryTargeting(category TeamCategory, seasonID *int64, limit int) Targeting {
	return Targeting{
		Mode:     TargetLimitedByCategory,
		Category: category,
		SeasonID: seasonID,
		Limit:    limit,
	}
}

// NewCustomListTargeting targets an operator-supplied address list.
func NewCustomListTargeting(addresses []string) Targeting {
	return Targeting{
		Mode:      TargetCustomList,
		Addresses: addresses,
	}
}

func (t Targeting) Validate() error {
	if !t.Mode.IsValid() {
		return fmt.Errorf("%w: invalid targeting mode %q", ErrValidation, t.Mode)
	}

	switch t.Mode {
	case TargetByCategory, TargetLimitedByCategory:
		if !t.Category.IsValid() {
			return fmt.Errorf("%w: invalid team category %q", ErrValidation, t.Category)
		}
		if len(t.Addresses) > 0 {
			return fmt.Errorf("%w: category targeting does not accept a custom address list", ErrValidation)
		}
		if t.Mode == TargetLimitedByCategory && t.Limit < 1 {
			return fmt.Errorf("%w: recipient limit must be a positive integer", ErrValidation)
		}
		if t.Mode == TargetByCategory && t.Limit != 0 {
			return fmt.Errorf("%w: category targeting does not accept a recipient limit", ErrValidation)
		}
	case TargetCustomList:
		if t.Category != "" || t.SeasonID != nil || t.Limit != 0 {
			return fmt.Errorf("%w: custom list targeting does not accept category fields", ErrValidation)
		}
		if len(t.Addresses) == 0 {
			return fmt.Errorf("%w: custom list targeting requires at least one address", ErrValidation)
		}
		if invalid := InvalidAddresses(t.Addresses); len(invalid) > 0 {
			return fmt.Errorf("%w: invalid email addresses: %s", ErrValidation, strings.Join(invalid, ", "))
		}
	}

	return nil
}

// InvalidAddresses returns the subset of addresses failing a structural
// email-syntax check, preserving input order.
func InvalidAddresses(addresses []string) []string {
	var invalid []string
	for _, raw := range addresses {
		addr := strings.TrimSpace(raw)
		if addr == "" {
			invalid = append(invalid, raw)
			continue
		}
		parsed, err := mail.ParseAddress(addr)
		if err != nil || parsed.Address != addr {
			invalid = append(invalid, raw)
		}
	}
	return invalid
}

// Content limits.
const (
	MaxSubjectLength = 500
	MaxNameLength    = 255
)

// Campaign is a single mass-mailing unit: one subject and body delivered to
// one resolved recipient set.
type Campaign struct {
	ID              string
	Name            string
	Subject         string
	Body            string
	Targeting       Targeting
	ScheduledAt     *time.Time
	State           CampaignState
	TotalRecipients int
	SentCount       int
	FailedCount     int
	CreatedAt       time.Time
	SentAt          *time.Time
	UpdatedAt       time.Time
}

func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: campaign name is required", ErrValidation)
	}
	if len([]rune(c.Name)) > MaxNameLength {
		return fmt.Errorf("%w: campaign name exceeds %d characters", ErrValidation, MaxNameLength)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if len([]rune(c.Subject)) > MaxSubjectLength {
		return fmt.Errorf("%w: subject exceeds %d characters", ErrValidation, MaxSubjectLength)
	}
	if strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if !c.State.IsValid() {
		return fmt.Errorf("%w: invalid campaign state %q", ErrValidation, c.State)
	}
	if err := c.Targeting.Validate(); err != nil {
		return err
	}
	if c.SentCount+c.FailedCount > c.TotalRecipients {
		return fmt.Errorf("%w: sent and failed counts exceed total recipients", ErrValidation)
	}
	return nil
}
