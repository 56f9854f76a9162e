package postgres

import (
	"context"
	"strings"

	"github.com/yoockh/launchkit/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WhitelistRepository holds the invitation list used in whitelist mode.
type WhitelistRepository interface {
	IsListed(ctx context.Context, email string) (bool, error)
	Add(ctx context.Context, email string) error
}

type whitelistRepo struct {
	db *gorm.DB
}

func NewWhitelistRepo(db *gorm.DB) WhitelistRepository {
	return &whitelistRepo{db: db}
}

func (r *whitelistRepo) IsListed(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WhitelistEntry{}).
		Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Count(&count).Error
	return count > 0, err
}

func (r *whitelistRepo) Add(ctx context.Context, email string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.WhitelistEntry{Email: strings.ToLower(strings.TrimSpace(email))}).Error
}
