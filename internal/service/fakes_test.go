package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/gateway"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
)

// memCampaignRepo mirrors the conditional updates of the gorm repository.
type memCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	createErr error
	statusErr error
}

func newMemCampaignRepo(campaigns ...*domain.Campaign) *memCampaignRepo {
	r := &memCampaignRepo{campaigns: make(map[string]*domain.Campaign)}
	for _, c := range campaigns {
		r.campaigns[c.ID] = cloneCampaign(c)
	}
	return r
}

func cloneCampaign(c *domain.Campaign) *domain.Campaign {
	out := *c
	out.Numbers = append([]domain.NumberEntry(nil), c.Numbers...)
	return &out
}

func (r *memCampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.campaigns[c.ID]; ok {
		return fmt.Errorf("duplicate campaign %s", c.ID)
	}
	r.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (r *memCampaignRepo) get(id string) (*domain.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (r *memCampaignRepo) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return cloneCampaign(c), nil
}

func (r *memCampaignRepo) GetForDispatch(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Numbers = nil
	return c, nil
}

func (r *memCampaignRepo) List(_ context.Context, params repository.ListParams) ([]domain.Campaign, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		if params.Status != nil && c.Status != *params.Status {
			continue
		}
		clone := cloneCampaign(c)
		clone.Numbers = nil
		out = append(out, *clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := int64(len(out))
	if params.Offset > len(out) {
		return []domain.Campaign{}, total, nil
	}
	out = out[params.Offset:]
	if params.Limit > 0 && params.Limit < len(out) {
		out = out[:params.Limit]
	}
	return out, total, nil
}

func (r *memCampaignRepo) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]domain.Campaign, error) {
	out, _, err := r.List(ctx, repository.ListParams{Status: &status, Limit: limit})
	return out, err
}

func (r *memCampaignRepo) GetStatus(_ context.Context, id string) (domain.CampaignStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.statusErr != nil {
		return "", r.statusErr
	}
	c, err := r.get(id)
	if err != nil {
		return "", err
	}
	return c.Status, nil
}

func (r *memCampaignRepo) transition(id string, target domain.CampaignStatus, from ...domain.CampaignStatus) (*domain.Campaign, error) {
	c, err := r.get(id)
	if err != nil {
		return nil, err
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = target
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: campaign is %s, cannot move to %s", domain.ErrInvalidState, c.Status, target)
}

func (r *memCampaignRepo) MarkStarted(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.transition(id, domain.CampaignStarted, domain.CampaignPending)
	if err != nil {
		return err
	}
	c.StartedAt = &at
	return nil
}

func (r *memCampaignRepo) MarkCancelled(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.transition(id, domain.CampaignCancelled, domain.CampaignPending, domain.CampaignStarted)
	if err != nil {
		return err
	}
	c.FinishedAt = &at
	return nil
}

func (r *memCampaignRepo) MarkFinished(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.transition(id, domain.CampaignFinished, domain.CampaignStarted)
	if err != nil {
		return false, nil
	}
	c.FinishedAt = &at
	return true, nil
}

func (r *memCampaignRepo) MarkFailed(_ context.Context, id string, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.transition(id, domain.CampaignFailed, domain.CampaignStarted)
	if err != nil {
		return false, nil
	}
	c.FailureReason = &reason
	c.FinishedAt = &at
	return true, nil
}

func (r *memCampaignRepo) NextPending(_ context.Context, id string) (*domain.NumberEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.get(id)
	if err != nil {
		return nil, err
	}
	for _, n := range c.Numbers {
		if n.Outcome == domain.OutcomePending {
			entry := n
			return &entry, nil
		}
	}
	return nil, nil
}

func (r *memCampaignRepo) RecordOutcome(_ context.Context, id string, position int, outcome domain.Outcome, errText *string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.get(id)
	if err != nil {
		return false, err
	}
	for i := range c.Numbers {
		n := &c.Numbers[i]
		if n.Position != position || n.Outcome != domain.OutcomePending {
			continue
		}
		n.Outcome = outcome
		n.Error = errText
		if outcome == domain.OutcomeSent {
			n.SentAt = &at
		}
		c.ProcessedCount++
		if outcome == domain.OutcomeFailed {
			c.ErrorCount++
		}
		return true, nil
	}
	return false, nil
}

func (r *memCampaignRepo) snapshot(id string) *domain.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneCampaign(r.campaigns[id])
}

func startedCampaign(id string, messagesPerHour int, numbers ...string) *domain.Campaign {
	entries := make([]domain.NumberEntry, 0, len(numbers))
	for i, n := range numbers {
		entries = append(entries, domain.NumberEntry{Position: i, PhoneNumber: n, Outcome: domain.OutcomePending})
	}
	return &domain.Campaign{
		ID:              id,
		Name:            "spring sale",
		Message:         "hello",
		MessagesPerHour: messagesPerHour,
		Status:          domain.CampaignStarted,
		Numbers:         entries,
		TotalCount:      len(entries),
		CreatedAt:       time.Unix(1_700_000_000, 0),
	}
}

type fakeGateway struct {
	sendFn func(ctx context.Context, msg gateway.Message) (*gateway.Result, error)
	calls  atomic.Int32
}

func (g *fakeGateway) Send(ctx context.Context, msg gateway.Message) (*gateway.Result, error) {
	g.calls.Add(1)
	if g.sendFn == nil {
		return &gateway.Result{StatusCode: 200, MessageID: "msg-" + msg.PhoneNumber}, nil
	}
	return g.sendFn(ctx, msg)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.CampaignEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event queue.CampaignEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) statuses() []domain.CampaignStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.CampaignStatus, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Status)
	}
	return out
}

type fakeLauncher struct {
	launchFn func(ctx context.Context, campaignID string) error
	mu       sync.Mutex
	launched []string
	stopped  []string
}

func (l *fakeLauncher) Launch(ctx context.Context, campaignID string) error {
	l.mu.Lock()
	l.launched = append(l.launched, campaignID)
	l.mu.Unlock()

	if l.launchFn != nil {
		return l.launchFn(ctx, campaignID)
	}
	return nil
}

func (l *fakeLauncher) Stop(campaignID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = append(l.stopped, campaignID)
}

type fakeLease struct {
	acquireFn func(ctx context.Context, campaignID string) (bool, error)
	renewFn   func(ctx context.Context, campaignID string) (bool, error)
	released  atomic.Int32
}

func (l *fakeLease) Acquire(ctx context.Context, campaignID string) (bool, error) {
	if l.acquireFn == nil {
		return true, nil
	}
	return l.acquireFn(ctx, campaignID)
}

func (l *fakeLease) Renew(ctx context.Context, campaignID string) (bool, error) {
	if l.renewFn == nil {
		return true, nil
	}
	return l.renewFn(ctx, campaignID)
}

func (l *fakeLease) Release(context.Context, string) error {
	l.released.Add(1)
	return nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, scope string) (bool, error)
}

func (l *fakeRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	if l.allowFn == nil {
		return true, nil
	}
	return l.allowFn(ctx, scope)
}


type fakeSettingsRepo struct {
	getFn  func(ctx context.Context) (*domain.GatewaySettings, error)
	saveFn func(ctx context.Context, s *domain.GatewaySettings) error
}

func (r *fakeSettingsRepo) GetGatewaySettings(ctx context.Context) (*domain.GatewaySettings, error) {
	if r.getFn == nil {
		return nil, domain.ErrNotFound
	}
	return r.getFn(ctx)
}

func (r *fakeSettingsRepo) SaveGatewaySettings(ctx context.Context, s *domain.GatewaySettings) error {
	if r.saveFn == nil {
		return nil
	}
	return r.saveFn(ctx, s)
}

type fakeChecker struct {
	checkFn func(ctx context.Context, settings domain.GatewaySettings, number string) (bool, error)
}

func (c *fakeChecker) CheckConnection(ctx context.Context, settings domain.GatewaySettings, number string) (bool, error) {
	return c.checkFn(ctx, settings, number)
}

// fakeClock advances only when the code under test sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}
