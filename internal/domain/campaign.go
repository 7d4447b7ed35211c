package domain

import (
	"fmt"
	"strings"
	"time"
)

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "pending"
	CampaignStarted   CampaignStatus = "started"
	CampaignFinished  CampaignStatus = "finished"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

func (s CampaignStatus) String() string { return string(s) }

func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignPending, CampaignStarted, CampaignFinished, CampaignFailed, CampaignCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s CampaignStatus) IsTerminal() bool {
	switch s {
	case CampaignFinished, CampaignFailed, CampaignCancelled:
		return true
	}
	return false
}

func ParseCampaignStatus(s string) (CampaignStatus, error) {
	st := CampaignStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Outcome is the delivery result of a single number.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
)

func (o Outcome) String() string { return string(o) }

// Campaign limits.
const (
	MinNameLength   = 3
	MaxNameLength   = 100
	MaxMessageRunes = 4096
)

// NumberEntry is one recipient of a campaign. Outcome leaves pending exactly once.
type NumberEntry struct {
	Position    int
	PhoneNumber string
	Outcome     Outcome
	SentAt      *time.Time
	Error       *string
}

// Campaign is one bulk-send job.
type Campaign struct {
	ID              string
	Name            string
	Message         string
	Media           *Media
	MessagesPerHour int
	CategoryFilter  *string
	Status          CampaignStatus
	Numbers         []NumberEntry
	TotalCount      int
	ProcessedCount  int
	ErrorCount      int
	FailureReason   *string
	CreatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	UpdatedAt       time.Time
}

func (c *Campaign) Validate(maxMessagesPerHour int) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if n := len([]rune(name)); n < MinNameLength || n > MaxNameLength {
		return fmt.Errorf("%w: name must be between %d and %d characters", ErrValidation, MinNameLength, MaxNameLength)
	}
	if strings.TrimSpace(c.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if n := len([]rune(c.Message)); n > MaxMessageRunes {
		return fmt.Errorf("%w: message exceeds %d characters (got %d)", ErrValidation, MaxMessageRunes, n)
	}
	if c.MessagesPerHour <= 0 {
		return fmt.Errorf("%w: messages per hour must be positive", ErrValidation)
	}
	if maxMessagesPerHour > 0 && c.MessagesPerHour > maxMessagesPerHour {
		return fmt.Errorf("%w: messages per hour exceeds %d", ErrValidation, maxMessagesPerHour)
	}
	return nil
}

// PendingCount is TotalCount - ProcessedCount.
func (c *Campaign) PendingCount() int {
	pending := c.TotalCount - c.ProcessedCount
	if pending < 0 {
		return 0
	}
	return pending
}

// PacingInterval is the fixed gap between two sends of this campaign.
func (c *Campaign) PacingInterval() time.Duration {
	return PacingInterval(c.MessagesPerHour)
}

func PacingInterval(messagesPerHour int) time.Duration {
	if messagesPerHour <= 0 {
		return time.Hour
	}
	return time.Hour / time.Duration(messagesPerHour)
}

func (c *Campaign) SentNumbers() []NumberEntry {
	return c.numbersWithOutcome(OutcomeSent)
}

func (c *Campaign) FailedNumbers() []NumberEntry {
	return c.numbersWithOutcome(OutcomeFailed)
}

func (c *Campaign) numbersWithOutcome(outcome Outcome) []NumberEntry {
	out := make([]NumberEntry, 0)
	for _, n := range c.Numbers {
		if n.Outcome == outcome {
			out = append(out, n)
		}
	}
	return out
}
