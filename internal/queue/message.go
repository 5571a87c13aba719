package queue

import (
	"fmt"
	"strings"
)

// Trigger sources, recorded on the message for log correlation.
const (
	TriggerManual    = "manual"
	TriggerScheduler = "scheduler"
)

// CampaignMessage is the broker payload asking a worker to run a campaign's
// send.
type CampaignMessage struct {
	CampaignID string `json:"campaignId"`
	Trigger    string `json:"trigger,omitempty"`
}

func (m CampaignMessage) Validate() error {
	if strings.TrimSpace(m.CampaignID) == "" {
		return fmt.Errorf("campaignId is required")
	}
	switch m.Trigger {
	case "", TriggerManual, TriggerScheduler:
		return nil
	}
	return fmt.Errorf("invalid trigger %q", m.Trigger)
}
