package queue

import (
	"context"
	"strings"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

// Publisher publishes campaign lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event CampaignEvent) error
	Close() error
}

const (
	// EventsExchange is the topic exchange receiving every status transition.
	EventsExchange = "campaign.events"
	// AuditQueue keeps a durable copy of every event for downstream readers.
	AuditQueue = "campaign.events.audit"
	// AuditBinding matches every campaign routing key.
	AuditBinding = "campaign.*"
)

// RoutingKey returns the topic for a status, e.g. campaign.started.
// Creation is published under campaign.created.
func RoutingKey(status domain.CampaignStatus) string {
	if status == domain.CampaignPending {
		return "campaign.created"
	}
	return "campaign." + strings.ToLower(status.String())
}
