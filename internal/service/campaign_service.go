package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/numberset"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

// Launcher hands started campaigns to the dispatcher.
type Launcher interface {
	Launch(ctx context.Context, campaignID string) error
	Stop(campaignID string)
}

// MediaUpload is an attachment as received from the client.
type MediaUpload struct {
	Filename string
	MimeType string
	Data     []byte
}

type CreateCampaignInput struct {
	Name            string
	Message         string
	MessagesPerHour int
	CategoryFilter  *string
	Media           *MediaUpload
	Numbers         numberset.Input
}

type StartResult struct {
	Campaign            *domain.Campaign
	EstimatedCompletion time.Time
}

type CampaignService struct {
	campaigns          repository.CampaignRepository
	launcher           Launcher
	events             *eventEmitter
	logger             *zap.Logger
	metrics            *observability.Metrics
	maxMessagesPerHour int
	maxMediaBytes      int64
	now                func() time.Time
	newID              func() string
}

func NewCampaignService(
	campaigns repository.CampaignRepository,
	launcher Launcher,
	publisher queue.Publisher,
	maxMessagesPerHour int,
	maxMediaBytes int64,
	logger *zap.Logger,
) (*CampaignService, error) {
	if campaigns == nil {
		return nil, errors.New("campaign repository is required")
	}
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CampaignService{
		campaigns:          campaigns,
		launcher:           launcher,
		events:             newEventEmitter(publisher, logger),
		logger:             logger,
		maxMessagesPerHour: maxMessagesPerHour,
		maxMediaBytes:      maxMediaBytes,
		now:                time.Now,
		newID:              uuid.NewString,
	}, nil
}

func (s *CampaignService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// Create freezes the number list and stores the campaign as pending.
func (s *CampaignService) Create(ctx context.Context, in CreateCampaignInput) (*domain.Campaign, numberset.Stats, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	campaign := &domain.Campaign{
		Name:            strings.TrimSpace(in.Name),
		Message:         in.Message,
		MessagesPerHour: in.MessagesPerHour,
		CategoryFilter:  normalizeOptional(in.CategoryFilter),
		Status:          domain.CampaignPending,
	}
	if err := campaign.Validate(s.maxMessagesPerHour); err != nil {
		return nil, numberset.Stats{}, err
	}

	media, err := s.buildMedia(in.Media)
	if err != nil {
		return nil, numberset.Stats{}, err
	}
	campaign.Media = media

	built, err := numberset.Build(in.Numbers)
	if err != nil {
		return nil, numberset.Stats{}, err
	}

	now := s.now().UTC()
	campaign.ID = s.newID()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	campaign.TotalCount = len(built.Numbers)
	campaign.Numbers = make([]domain.NumberEntry, 0, len(built.Numbers))
	for i, number := range built.Numbers {
		campaign.Numbers = append(campaign.Numbers, domain.NumberEntry{
			Position:    i,
			PhoneNumber: number,
			Outcome:     domain.OutcomePending,
		})
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, numberset.Stats{}, fmt.Errorf("failed to persist campaign: %w", err)
	}

	observability.WithContextLogger(s.logger, ctx).Info("campaign created",
		zap.String("campaignId", campaign.ID),
		zap.Int("numbers", campaign.TotalCount),
		zap.Int("messagesPerHour", campaign.MessagesPerHour),
	)
	s.events.emit(ctx, campaign, domain.CampaignPending)

	return campaign, built.Stats, nil
}

// Preview reports what Create would build without storing anything.
func (s *CampaignService) Preview(_ context.Context, in numberset.Input) (numberset.Stats, error) {
	return numberset.Preview(in)
}

// Start moves a pending campaign to started and hands it to the dispatcher.
func (s *CampaignService) Start(ctx context.Context, id string) (*StartResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.WithContextLogger(observability.CampaignLogger(s.logger, id), ctx)

	now := s.now().UTC()
	if err := s.campaigns.MarkStarted(ctx, id, now); err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Published before launching so it always precedes finished or failed.
	logger.Info("campaign started")
	s.events.emit(ctx, campaign, domain.CampaignStarted)

	// The campaign is already started; a failed launch is picked up by the
	// recovery scan.
	if err := s.launcher.Launch(ctx, id); err != nil {
		logger.Warn("campaign launch deferred to recovery", zap.Error(err))
	}

	pending := time.Duration(campaign.PendingCount()) * campaign.PacingInterval()
	return &StartResult{
		Campaign:            campaign,
		EstimatedCompletion: now.Add(pending),
	}, nil
}

// Cancel stops a pending or started campaign. At most the send already in
// flight completes after this returns.
func (s *CampaignService) Cancel(ctx context.Context, id string) (*domain.Campaign, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.campaigns.MarkCancelled(ctx, id, s.now().UTC()); err != nil {
		return nil, err
	}
	s.launcher.Stop(id)
	s.metrics.IncCampaignCompleted(domain.CampaignCancelled.String())

	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	observability.WithContextLogger(observability.CampaignLogger(s.logger, id), ctx).Info("campaign cancelled",
		zap.Int("processed", campaign.ProcessedCount),
		zap.Int("total", campaign.TotalCount),
	)
	s.events.emit(ctx, campaign, domain.CampaignCancelled)

	return campaign, nil
}

func (s *CampaignService) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.campaigns.GetByID(ctx, id)
}

func (s *CampaignService) List(ctx context.Context, params repository.ListParams) ([]domain.Campaign, int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, *params.Status)
	}
	return s.campaigns.List(ctx, params)
}

func (s *CampaignService) buildMedia(upload *MediaUpload) (*domain.Media, error) {
	if upload == nil || len(upload.Data) == 0 {
		return nil, nil
	}
	if s.maxMediaBytes > 0 && int64(len(upload.Data)) > s.maxMediaBytes {
		return nil, fmt.Errorf("%w: media exceeds %d bytes", domain.ErrValidation, s.maxMediaBytes)
	}
	return domain.NewMedia(upload.Filename, upload.MimeType, upload.Data)
}

func normalizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
