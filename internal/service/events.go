package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"go.uber.org/zap"
)

const eventPublishTimeout = 5 * time.Second

// eventEmitter publishes lifecycle events. Failures are logged and never
// affect the campaign.
type eventEmitter struct {
	publisher queue.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func newEventEmitter(publisher queue.Publisher, logger *zap.Logger) *eventEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &eventEmitter{publisher: publisher, logger: logger, now: time.Now}
}

func (e *eventEmitter) emit(ctx context.Context, c *domain.Campaign, status domain.CampaignStatus) {
	if e == nil || e.publisher == nil || c == nil {
		return
	}

	event := queue.NewCampaignEvent(c, status, e.now())
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		event.CorrelationID = correlationID
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if err := e.publisher.Publish(publishCtx, event); err != nil {
		observability.WithContextLogger(e.logger, ctx).Warn("failed to publish campaign event",
			zap.String("campaignId", c.ID),
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}
}
