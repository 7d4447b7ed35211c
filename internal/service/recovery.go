package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRecoveryScanInterval = 30 * time.Second
	defaultRecoveryScanLimit    = 100
)

// RecoveryScanner relaunches campaigns that are started in the store but have
// no live dispatcher, e.g. after a restart.
type RecoveryScanner struct {
	campaigns repository.CampaignRepository
	launcher  Launcher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
}

func NewRecoveryScanner(
	campaigns repository.CampaignRepository,
	launcher Launcher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RecoveryScanner, error) {
	if campaigns == nil {
		return nil, errors.New("campaign repository is required")
	}
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if interval <= 0 {
		interval = defaultRecoveryScanInterval
	}
	if limit <= 0 {
		limit = defaultRecoveryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecoveryScanner{
		campaigns: campaigns,
		launcher:  launcher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
	}, nil
}

func (s *RecoveryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.Scan(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("recovery initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("recovery scan failed", zap.Error(err))
			}
		}
	}
}

// Scan launches every started campaign. Launch is a no-op for campaigns
// already running here and ErrLeaseHeld marks those running elsewhere.
func (s *RecoveryScanner) Scan(ctx context.Context) error {
	started, err := s.campaigns.ListByStatus(ctx, domain.CampaignStarted, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch started campaigns: %w", err)
	}

	for i := range started {
		campaignID := started[i].ID
		err := s.launcher.Launch(ctx, campaignID)
		switch {
		case err == nil:
		case errors.Is(err, ErrLeaseHeld):
			s.logger.Debug("campaign dispatched elsewhere", zap.String("campaignId", campaignID))
		case errors.Is(err, ErrDispatcherClosed):
			return nil
		default:
			s.logger.Error("failed to relaunch campaign",
				zap.String("campaignId", campaignID),
				zap.Error(err),
			)
		}
	}

	return nil
}
