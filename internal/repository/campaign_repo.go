package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"gorm.io/gorm"
)

type ListParams struct {
	Status *domain.CampaignStatus
	Limit  int
	Offset int
}

// CampaignRepository is the campaign record store and outcome ledger.
type CampaignRepository interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	GetForDispatch(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, params ListParams) ([]domain.Campaign, int64, error)
	ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]domain.Campaign, error)
	GetStatus(ctx context.Context, id string) (domain.CampaignStatus, error)
	MarkStarted(ctx context.Context, id string, at time.Time) error
	MarkCancelled(ctx context.Context, id string, at time.Time) error
	MarkFinished(ctx context.Context, id string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) (bool, error)
	NextPending(ctx context.Context, id string) (*domain.NumberEntry, error)
	RecordOutcome(ctx context.Context, id string, position int, outcome domain.Outcome, errText *string, at time.Time) (bool, error)
}

type GormCampaignRepo struct {
	db *gorm.DB
}

func NewGormCampaignRepo(db *gorm.DB) *GormCampaignRepo {
	return &GormCampaignRepo{db: db}
}

// Create persists the campaign, its media and its frozen number list in one transaction.
func (r *GormCampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	model := campaignModelFromDomain(c)
	if model == nil {
		return errors.New("campaign is nil")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if media := mediaModelFromDomain(model.ID, c.Media, model.CreatedAt); media != nil {
			if err := tx.Create(media).Error; err != nil {
				return err
			}
		}
		numbers := numberModelsFromDomain(model.ID, c.Numbers)
		if len(numbers) > 0 {
			if err := tx.CreateInBatches(&numbers, 500).Error; err != nil {
				return err
			}
		}

		created := campaignModelToDomain(model)
		created.Media = c.Media
		created.Numbers = c.Numbers
		*c = *created
		return nil
	})
}

// GetByID reads the campaign and its ledger from one snapshot so counters
// always agree with the per-number outcomes.
func (r *GormCampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var campaign *domain.Campaign
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := loadCampaign(tx, id)
		if err != nil {
			return err
		}

		var numbers []CampaignNumberModel
		if err := tx.Where("campaign_id = ?", id).Order("position ASC").Find(&numbers).Error; err != nil {
			return err
		}
		c.Numbers = make([]domain.NumberEntry, 0, len(numbers))
		for i := range numbers {
			c.Numbers = append(c.Numbers, numberModelToDomain(&numbers[i]))
		}

		campaign = c
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return campaign, nil
}

// GetForDispatch loads the campaign and media without the ledger.
func (r *GormCampaignRepo) GetForDispatch(ctx context.Context, id string) (*domain.Campaign, error) {
	return loadCampaign(r.db.WithContext(ctx), id)
}

func loadCampaign(db *gorm.DB, id string) (*domain.Campaign, error) {
	var model CampaignModel
	err := db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c := campaignModelToDomain(&model)

	var media CampaignMediaModel
	err = db.Where("campaign_id = ?", id).Limit(1).Find(&media).Error
	if err != nil {
		return nil, err
	}
	if media.CampaignID != "" {
		c.Media = mediaModelToDomain(&media)
	}
	return c, nil
}

func (r *GormCampaignRepo) List(ctx context.Context, params ListParams) ([]domain.Campaign, int64, error) {
	query := r.db.WithContext(ctx).Model(&CampaignModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit < 1 {
		limit = 20
	}
	limit = min(limit, 100)
	offset := max(params.Offset, 0)

	var models []CampaignModel
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	campaigns := make([]domain.Campaign, 0, len(models))
	for i := range models {
		campaigns = append(campaigns, *campaignModelToDomain(&models[i]))
	}

	return campaigns, total, nil
}

func (r *GormCampaignRepo) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]domain.Campaign, error) {
	var models []CampaignModel
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("started_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	campaigns := make([]domain.Campaign, 0, len(models))
	for i := range models {
		campaigns = append(campaigns, *campaignModelToDomain(&models[i]))
	}
	return campaigns, nil
}

func (r *GormCampaignRepo) GetStatus(ctx context.Context, id string) (domain.CampaignStatus, error) {
	var model CampaignModel
	err := r.db.WithContext(ctx).Select("status").First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return model.Status, nil
}

func (r *GormCampaignRepo) MarkStarted(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id, []domain.CampaignStatus{domain.CampaignPending}, map[string]any{
		"status":     domain.CampaignStarted,
		"started_at": at,
		"updated_at": at,
	})
}

func (r *GormCampaignRepo) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id, []domain.CampaignStatus{domain.CampaignPending, domain.CampaignStarted}, map[string]any{
		"status":      domain.CampaignCancelled,
		"finished_at": at,
		"updated_at":  at,
	})
}

// MarkFinished reports false when the campaign already left started, e.g. a
// cancel that raced the last send.
func (r *GormCampaignRepo) MarkFinished(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status = ?", id, domain.CampaignStarted).
		Updates(map[string]any{
			"status":      domain.CampaignFinished,
			"finished_at": at,
			"updated_at":  at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormCampaignRepo) MarkFailed(ctx context.Context, id string, reason string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status = ?", id, domain.CampaignStarted).
		Updates(map[string]any{
			"status":         domain.CampaignFailed,
			"failure_reason": reason,
			"finished_at":    at,
			"updated_at":     at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormCampaignRepo) transition(ctx context.Context, id string, from []domain.CampaignStatus, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := r.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	return invalidTransition(current, updates["status"])
}

func invalidTransition(current domain.CampaignStatus, target any) error {
	return fmt.Errorf("%w: campaign is %s, cannot move to %v", domain.ErrInvalidState, current, target)
}

func (r *GormCampaignRepo) NextPending(ctx context.Context, id string) (*domain.NumberEntry, error) {
	var models []CampaignNumberModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND outcome = ?", id, domain.OutcomePending).
		Order("position ASC").
		Limit(1).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	entry := numberModelToDomain(&models[0])
	return &entry, nil
}

// RecordOutcome moves one entry out of pending and bumps the counters in the
// same transaction. It reports false when the entry was already resolved.
func (r *GormCampaignRepo) RecordOutcome(ctx context.Context, id string, position int, outcome domain.Outcome, errText *string, at time.Time) (bool, error) {
	if outcome == domain.OutcomePending {
		return false, errors.New("outcome must leave pending")
	}

	recorded := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"outcome": outcome, "error": errText}
		if outcome == domain.OutcomeSent {
			updates["sent_at"] = at
		}

		result := tx.Model(&CampaignNumberModel{}).
			Where("campaign_id = ? AND position = ? AND outcome = ?", id, position, domain.OutcomePending).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		counters := map[string]any{
			"processed_count": gorm.Expr("processed_count + 1"),
			"updated_at":      at,
		}
		if outcome == domain.OutcomeFailed {
			counters["error_count"] = gorm.Expr("error_count + 1")
		}
		if err := tx.Model(&CampaignModel{}).Where("id = ?", id).Updates(counters).Error; err != nil {
			return err
		}

		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}
