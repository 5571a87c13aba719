package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus represents the outcome of one send attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryPending, DeliverySent, DeliveryFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status is a final outcome.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliverySent || s == DeliveryFailed
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// DeliveryEntry records the outcome of one (campaign, recipient) send.
// A PENDING entry exists only while an attempt is in flight; each pair gets
// at most one terminal entry.
type DeliveryEntry struct {
	ID            string
	CampaignID    string
	Recipient     string
	RecipientName *string
	TeamID        *int64
	Status        DeliveryStatus
	ErrorReason   *string
	AttemptedAt   time.Time
}

// Team is a registry record as seen by the recipient resolver. The registry
// itself is owned by the wider site; the engine only reads it.
type Team struct {
	ID           int64
	Name         string
	Email        string
	RegisteredAt time.Time
}
