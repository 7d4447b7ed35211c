package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

// CampaignEvent is the broker payload for a campaign status transition.
type CampaignEvent struct {
	EventID        string                `json:"eventId"`
	CampaignID     string                `json:"campaignId"`
	Status         domain.CampaignStatus `json:"status"`
	TotalCount     int                   `json:"totalCount"`
	ProcessedCount int                   `json:"processedCount"`
	ErrorCount     int                   `json:"errorCount"`
	FailureReason  *string               `json:"failureReason,omitempty"`
	CorrelationID  string                `json:"correlationId,omitempty"`
	OccurredAt     time.Time             `json:"occurredAt"`
}

// NewCampaignEvent snapshots c under status, which may differ from c.Status
// when the record was read before the transition.
func NewCampaignEvent(c *domain.Campaign, status domain.CampaignStatus, occurredAt time.Time) CampaignEvent {
	return CampaignEvent{
		EventID:        uuid.NewString(),
		CampaignID:     c.ID,
		Status:         status,
		TotalCount:     c.TotalCount,
		ProcessedCount: c.ProcessedCount,
		ErrorCount:     c.ErrorCount,
		FailureReason:  c.FailureReason,
		OccurredAt:     occurredAt.UTC(),
	}
}

func (e CampaignEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("eventId is required")
	}
	if strings.TrimSpace(e.CampaignID) == "" {
		return fmt.Errorf("campaignId is required")
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("invalid status %q", e.Status)
	}
	return nil
}
