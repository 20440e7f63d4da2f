package repositories

import (
	"context"
	"errors"
	"time"

	"taskify/backend/internal/models"

	"gorm.io/gorm"
)

type BlacklistRepository struct {
	db *gorm.DB
}

func NewBlacklistRepository(db *gorm.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// Add records a revoked token. Recording the same jti twice yields ErrAlreadyRevoked.
func (r *BlacklistRepository) Add(ctx context.Context, entry *models.BlacklistedToken) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyRevoked
		}
		return err
	}
	return nil
}

func (r *BlacklistRepository) Exists(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BlacklistedToken{}).Where("jti = ?", jti).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteExpired removes entries for tokens that expired before the given time.
func (r *BlacklistRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&models.BlacklistedToken{})
	return res.RowsAffected, res.Error
}
