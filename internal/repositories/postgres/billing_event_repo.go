package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/launchkit/internal/models"
	"github.com/yoockh/launchkit/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BillingEventRepo interface {
	// Record stores ev once. inserted is false for a replayed event id.
	Record(ctx context.Context, ev *models.BillingEvent) (inserted bool, err error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	GetByID(ctx context.Context, id string) (*models.BillingEvent, error)
	ListUnprocessed(ctx context.Context, limit int) ([]models.BillingEvent, error)
}

type billingEventRepo struct {
	db *gorm.DB
}

func NewBillingEventRepo(db *gorm.DB) BillingEventRepo {
	return &billingEventRepo{db: db}
}

func (r *billingEventRepo) Record(ctx context.Context, ev *models.BillingEvent) (bool, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(ev)
	return res.RowsAffected > 0, res.Error
}

func (r *billingEventRepo) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.BillingEvent{}).
		Where("id = ?", id).
		Update("processed_at", at.UTC()).Error
}

func (r *billingEventRepo) GetByID(ctx context.Context, id string) (*models.BillingEvent, error) {
	var row models.BillingEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *billingEventRepo) ListUnprocessed(ctx context.Context, limit int) ([]models.BillingEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.BillingEvent
	err := r.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("received_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
