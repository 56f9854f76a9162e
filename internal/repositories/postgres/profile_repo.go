package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yoockh/launchkit/internal/models"
	"github.com/yoockh/launchkit/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileFilter narrows the admin listing. Admin nil means any role.
type ProfileFilter struct {
	Search string
	Admin  *bool
	Offset int
	Limit  int
}

type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByStripeCustomer(ctx context.Context, customerID string) (*models.Profile, error)
	// Insert creates the row; an existing row with the same id is kept.
	Insert(ctx context.Context, p *models.Profile) error
	UpdateColumns(ctx context.Context, id string, cols map[string]any) error
	// Delete removes the row; utils.ErrNotFound when there was none.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ProfileFilter) ([]models.Profile, int64, error)
	All(ctx context.Context) ([]models.Profile, error)
	Count(ctx context.Context) (int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
	CountUpdatedSince(ctx context.Context, since time.Time) (int64, error)
}

type profileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &p, err
}

func (r *profileRepo) GetByStripeCustomer(ctx context.Context, customerID string) (*models.Profile, error) {
	var p models.Profile
	err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &p, err
}

func (r *profileRepo) Insert(ctx context.Context, p *models.Profile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(p).Error
}

func (r *profileRepo) UpdateColumns(ctx context.Context, id string, cols map[string]any) error {
	if len(cols) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", id).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *profileRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Profile{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *profileRepo) filtered(ctx context.Context, f ProfileFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Profile{})
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + escapeLike(s) + "%"
		q = q.Where("email ILIKE ? OR name ILIKE ?", like, like)
	}
	if f.Admin != nil {
		q = q.Where("is_admin = ?", *f.Admin)
	}
	return q
}

func (r *profileRepo) List(ctx context.Context, f ProfileFilter) ([]models.Profile, int64, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}

	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Profile
	err := r.filtered(ctx, f).
		Order("created_at DESC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&rows).Error
	return rows, total, err
}

func (r *profileRepo) All(ctx context.Context) ([]models.Profile, error) {
	var rows []models.Profile
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

func (r *profileRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Profile{}).Count(&n).Error
	return n, err
}

func (r *profileRepo) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Profile{}).
		Where("created_at >= ?", since).
		Count(&n).Error
	return n, err
}

func (r *profileRepo) CountUpdatedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Profile{}).
		Where("updated_at >= ?", since).
		Count(&n).Error
	return n, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
