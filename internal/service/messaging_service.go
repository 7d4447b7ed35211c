package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/gateway"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/ratelimit"
	"go.uber.org/zap"
)

const testMessageSource = "test"

type TestMessageInput struct {
	PhoneNumber string
	Message     string
	Media       *MediaUpload
}

// MessagingService sends one-off messages outside any campaign.
type MessagingService struct {
	gateway       gateway.Gateway
	limiter       ratelimit.RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics
	sendTimeout   time.Duration
	maxMediaBytes int64
	now           func() time.Time
}

func NewMessagingService(
	gw gateway.Gateway,
	limiter ratelimit.RateLimiter,
	sendTimeout time.Duration,
	maxMediaBytes int64,
	logger *zap.Logger,
) (*MessagingService, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MessagingService{
		gateway:       gw,
		limiter:       limiter,
		logger:        logger,
		sendTimeout:   sendTimeout,
		maxMediaBytes: maxMediaBytes,
		now:           time.Now,
	}, nil
}

func (s *MessagingService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// SendTest delivers a single message synchronously and reports the gateway result.
func (s *MessagingService) SendTest(ctx context.Context, in TestMessageInput) (*gateway.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	phone := domain.NormalizePhone(in.PhoneNumber)
	if !domain.IsValidPhone(phone) {
		return nil, fmt.Errorf("%w: phone number must be 11 digits starting with 7", domain.ErrValidation)
	}

	var media *domain.Media
	if in.Media != nil && len(in.Media.Data) > 0 {
		if s.maxMediaBytes > 0 && int64(len(in.Media.Data)) > s.maxMediaBytes {
			return nil, fmt.Errorf("%w: media exceeds %d bytes", domain.ErrValidation, s.maxMediaBytes)
		}
		var err error
		media, err = domain.NewMedia(in.Media.Filename, in.Media.MimeType, in.Media.Data)
		if err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(in.Message) == "" && media == nil {
		return nil, fmt.Errorf("%w: message or media is required", domain.ErrValidation)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, ratelimit.ScopeTestMessage)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if !allowed {
			s.metrics.IncTestMessageThrottled()
			return nil, fmt.Errorf("%w: too many test messages", domain.ErrRateLimited)
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	start := s.now()
	result, err := s.gateway.Send(sendCtx, gateway.Message{
		PhoneNumber: phone,
		Text:        in.Message,
		Media:       media,
	})
	s.metrics.ObserveMessageSendDuration(testMessageSource, s.now().Sub(start))

	logger := observability.WithContextLogger(s.logger, ctx)
	if err != nil {
		reason := gateway.ReasonOf(err)
		s.metrics.IncMessageFailed(testMessageSource, string(reason))
		logger.Warn("test message failed", zap.String("reason", string(reason)), zap.Error(err))
		if gateway.IsUnreachable(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnreachableGateway, err)
		}
		return nil, err
	}

	s.metrics.IncMessageSent(testMessageSource)
	logger.Info("test message sent", zap.String("messageId", result.MessageID))
	return result, nil
}
