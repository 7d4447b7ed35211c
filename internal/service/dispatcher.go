package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/gateway"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultSendTimeout      = 30 * time.Second
	defaultUnreachableAfter = 10 * time.Minute
	storeRetryDelay         = time.Second
	storeWriteTimeout       = 10 * time.Second
	maxRecordAttempts       = 3
	maxPacingSleep          = 30 * time.Second
	dispatchSource          = "campaign"
)

var (
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
	ErrLeaseHeld        = errors.New("campaign is dispatched by another instance")

	errCampaignCancelled  = errors.New("campaign cancelled")
	errDispatcherStopping = errors.New("dispatcher stopping")
)

// Lease guarantees a single dispatcher per campaign across instances.
type Lease interface {
	Acquire(ctx context.Context, campaignID string) (bool, error)
	Renew(ctx context.Context, campaignID string) (bool, error)
	Release(ctx context.Context, campaignID string) error
}

type DispatcherConfig struct {
	SendTimeout      time.Duration
	UnreachableAfter time.Duration
}

type run struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Dispatcher drives started campaigns through their pending numbers at the
// configured pace, one goroutine per campaign.
type Dispatcher struct {
	campaigns        repository.CampaignRepository
	gateway          gateway.Gateway
	lease            Lease
	events           *eventEmitter
	logger           *zap.Logger
	metrics          *observability.Metrics
	sendTimeout      time.Duration
	unreachableAfter time.Duration
	maxSleep         time.Duration
	now              func() time.Time
	sleep            func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	runs    map[string]*run
	wg      sync.WaitGroup
	baseCtx context.Context
	stopAll context.CancelCauseFunc
	closed  bool
}

func NewDispatcher(
	campaigns repository.CampaignRepository,
	gw gateway.Gateway,
	publisher queue.Publisher,
	cfg DispatcherConfig,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if campaigns == nil {
		return nil, errors.New("campaign repository is required")
	}
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.UnreachableAfter <= 0 {
		cfg.UnreachableAfter = defaultUnreachableAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseCtx, stopAll := context.WithCancelCause(context.Background())
	return &Dispatcher{
		campaigns:        campaigns,
		gateway:          gw,
		events:           newEventEmitter(publisher, logger),
		logger:           logger,
		sendTimeout:      cfg.SendTimeout,
		unreachableAfter: cfg.UnreachableAfter,
		maxSleep:         maxPacingSleep,
		now:              time.Now,
		sleep:            sleepWithContext,
		runs:             make(map[string]*run),
		baseCtx:          baseCtx,
		stopAll:          stopAll,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	d.metrics = metrics
}

// SetLease enables cross-instance exclusion. Without it the dispatcher only
// guards against duplicate runs inside this process. The lease is renewed at
// least three times per ttl.
func (d *Dispatcher) SetLease(lease Lease, ttl time.Duration) {
	d.lease = lease
	if renewEvery := ttl / 3; renewEvery > 0 && renewEvery < d.maxSleep {
		d.maxSleep = renewEvery
	}
}

// Launch starts the dispatch loop for a campaign. Launching a campaign that
// already runs here is a no-op.
func (d *Dispatcher) Launch(ctx context.Context, campaignID string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if _, ok := d.runs[campaignID]; ok {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	// The lease round trip happens outside d.mu so Stop never waits on Redis.
	if d.lease != nil {
		acquired, err := d.lease.Acquire(ctx, campaignID)
		if err != nil {
			return fmt.Errorf("acquire campaign lease: %w", err)
		}
		if !acquired {
			return ErrLeaseHeld
		}
	}

	d.mu.Lock()
	err := d.register(ctx, campaignID)
	d.mu.Unlock()

	if errors.Is(err, ErrDispatcherClosed) {
		d.releaseLease(campaignID)
	}
	return err
}

// register must be called with d.mu held.
func (d *Dispatcher) register(ctx context.Context, campaignID string) error {
	if d.closed {
		return ErrDispatcherClosed
	}
	// A concurrent Launch won the race and shares this instance's lease.
	if _, ok := d.runs[campaignID]; ok {
		return nil
	}

	runCtx, cancel := context.WithCancelCause(d.baseCtx)
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		runCtx = observability.WithCorrelationID(runCtx, correlationID)
	}

	r := &run{cancel: cancel, done: make(chan struct{})}
	d.runs[campaignID] = r
	d.wg.Add(1)
	d.metrics.IncActiveCampaigns()

	go d.loop(runCtx, campaignID, r)
	return nil
}

func (d *Dispatcher) releaseLease(campaignID string) {
	if d.lease == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()
	if err := d.lease.Release(ctx, campaignID); err != nil {
		d.logger.Warn("failed to release campaign lease",
			zap.String("campaignId", campaignID),
			zap.Error(err),
		)
	}
}

// Stop interrupts the local run of a campaign. A send already in flight
// still has its outcome recorded.
func (d *Dispatcher) Stop(campaignID string) {
	d.mu.Lock()
	r, ok := d.runs[campaignID]
	d.mu.Unlock()

	if ok {
		r.cancel(errCampaignCancelled)
	}
}

// Done returns a channel closed when the local run of the campaign exits, or
// nil when no run exists.
func (d *Dispatcher) Done(campaignID string) <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.runs[campaignID]; ok {
		return r.done
	}
	return nil
}

// Shutdown stops every run and waits for them to exit. Campaigns stay
// started so the recovery scan resumes them on the next boot.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.stopAll(errDispatcherStopping)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) loop(ctx context.Context, campaignID string, r *run) {
	logger := observability.WithContextLogger(observability.CampaignLogger(d.logger, campaignID), ctx)

	defer func() {
		d.releaseLease(campaignID)

		d.mu.Lock()
		delete(d.runs, campaignID)
		d.mu.Unlock()

		close(r.done)
		d.metrics.DecActiveCampaigns()
		d.wg.Done()
	}()

	campaign, err := d.loadCampaign(ctx, campaignID)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("failed to load campaign for dispatch", zap.Error(err))
		}
		return
	}

	interval := campaign.PacingInterval()
	msg := gateway.Message{Text: campaign.Message, Media: campaign.Media}
	logger.Info("campaign dispatch started",
		zap.Int("pending", campaign.PendingCount()),
		zap.Duration("interval", interval),
	)

	var nextSendAt, unreachableSince time.Time
	for {
		if ctx.Err() != nil {
			d.logStop(ctx, logger)
			return
		}

		status, err := d.campaigns.GetStatus(ctx, campaignID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Warn("failed to read campaign status", zap.Error(err))
			_ = d.sleep(ctx, storeRetryDelay)
			continue
		}
		if status != domain.CampaignStarted {
			logger.Info("campaign left started, dispatch stops", zap.String("status", status.String()))
			return
		}

		if d.lease != nil {
			held, err := d.lease.Renew(ctx, campaignID)
			if err != nil && ctx.Err() == nil {
				logger.Warn("failed to renew campaign lease", zap.Error(err))
			}
			if err == nil && !held {
				logger.Warn("campaign lease lost, dispatch stops")
				return
			}
		}

		entry, err := d.campaigns.NextPending(ctx, campaignID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Warn("failed to read next pending number", zap.Error(err))
			_ = d.sleep(ctx, storeRetryDelay)
			continue
		}
		if entry == nil {
			d.finish(ctx, logger, campaignID)
			return
		}

		if wait := nextSendAt.Sub(d.now()); wait > 0 {
			// Long intervals are slept in slices so the status check and
			// the lease renewal above keep running.
			_ = d.sleep(ctx, min(wait, d.maxSleep))
			continue
		}

		msg.PhoneNumber = entry.PhoneNumber
		sendStart := d.now()
		nextSendAt = sendStart.Add(interval)
		sendErr := d.send(ctx, msg)

		// Once the breaker has opened, systemic failures of half-open probes
		// keep the outage running and the number pending.
		outage := gateway.IsUnreachable(sendErr) || (!unreachableSince.IsZero() && gateway.IsSystemic(sendErr))
		if outage {
			if unreachableSince.IsZero() {
				unreachableSince = sendStart
			}
			if d.now().Sub(unreachableSince) >= d.unreachableAfter {
				d.fail(ctx, logger, campaignID, fmt.Sprintf("gateway unreachable since %s", unreachableSince.UTC().Format(time.RFC3339)))
				return
			}
			logger.Warn("gateway unreachable, number stays pending",
				zap.Int("position", entry.Position),
				zap.Error(sendErr),
			)
			continue
		}
		unreachableSince = time.Time{}

		if !d.record(ctx, logger, campaignID, entry, sendErr) {
			return
		}
	}
}

func (d *Dispatcher) loadCampaign(ctx context.Context, campaignID string) (*domain.Campaign, error) {
	for {
		campaign, err := d.campaigns.GetForDispatch(ctx, campaignID)
		if err == nil {
			return campaign, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if sleepErr := d.sleep(ctx, storeRetryDelay); sleepErr != nil {
			return nil, err
		}
	}
}

// send runs detached from the run context so a cancel never cuts a request
// in half; the per-send timeout bounds it instead.
func (d *Dispatcher) send(ctx context.Context, msg gateway.Message) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.sendTimeout)
	defer cancel()

	start := d.now()
	_, err := d.gateway.Send(sendCtx, msg)
	d.metrics.ObserveMessageSendDuration(dispatchSource, d.now().Sub(start))
	return err
}

// record reports false when the outcome could not be persisted; the run then
// stops so the same number is never sent twice by this loop.
func (d *Dispatcher) record(ctx context.Context, logger *zap.Logger, campaignID string, entry *domain.NumberEntry, sendErr error) bool {
	outcome := domain.OutcomeSent
	var errText *string
	if sendErr != nil {
		outcome = domain.OutcomeFailed
		text := sendErr.Error()
		errText = &text
	}

	writeCtx := context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= maxRecordAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(writeCtx, storeWriteTimeout)
		_, err = d.campaigns.RecordOutcome(attemptCtx, campaignID, entry.Position, outcome, errText, d.now())
		cancel()
		if err == nil {
			break
		}
		if attempt < maxRecordAttempts {
			_ = d.sleep(writeCtx, storeRetryDelay)
		}
	}
	if err != nil {
		logger.Error("failed to record outcome, dispatch stops",
			zap.Int("position", entry.Position),
			zap.String("outcome", outcome.String()),
			zap.Error(err),
		)
		return false
	}

	if sendErr != nil {
		d.metrics.IncMessageFailed(dispatchSource, string(gateway.ReasonOf(sendErr)))
		logger.Warn("message send failed",
			zap.Int("position", entry.Position),
			zap.String("reason", string(gateway.ReasonOf(sendErr))),
			zap.Error(sendErr),
		)
	} else {
		d.metrics.IncMessageSent(dispatchSource)
		logger.Debug("message sent", zap.Int("position", entry.Position))
	}
	return true
}

func (d *Dispatcher) finish(ctx context.Context, logger *zap.Logger, campaignID string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()

	finished, err := d.campaigns.MarkFinished(writeCtx, campaignID, d.now())
	if err != nil {
		logger.Error("failed to mark campaign finished", zap.Error(err))
		return
	}
	if !finished {
		logger.Info("campaign left started before it could finish")
		return
	}

	d.metrics.IncCampaignCompleted(domain.CampaignFinished.String())
	logger.Info("campaign finished")
	d.emit(writeCtx, logger, campaignID, domain.CampaignFinished)
}

func (d *Dispatcher) fail(ctx context.Context, logger *zap.Logger, campaignID string, reason string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()

	failed, err := d.campaigns.MarkFailed(writeCtx, campaignID, reason, d.now())
	if err != nil {
		logger.Error("failed to mark campaign failed", zap.Error(err))
		return
	}
	if !failed {
		return
	}

	d.metrics.IncCampaignCompleted(domain.CampaignFailed.String())
	logger.Error("campaign failed", zap.String("reason", reason))
	d.emit(writeCtx, logger, campaignID, domain.CampaignFailed)
}

func (d *Dispatcher) emit(ctx context.Context, logger *zap.Logger, campaignID string, status domain.CampaignStatus) {
	campaign, err := d.campaigns.GetForDispatch(ctx, campaignID)
	if err != nil {
		logger.Warn("failed to load campaign for event", zap.Error(err))
		return
	}
	d.events.emit(ctx, campaign, status)
}

func (d *Dispatcher) logStop(ctx context.Context, logger *zap.Logger) {
	if errors.Is(context.Cause(ctx), errCampaignCancelled) {
		logger.Info("campaign dispatch cancelled")
		return
	}
	logger.Info("campaign dispatch suspended, campaign stays started")
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
