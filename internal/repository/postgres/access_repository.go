package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"neighborsos/internal/models"
	"neighborsos/internal/util"
)

// AccessGrantRepository manages the early_access allow-list. The gate
// does a point read per request; no cache sits between, so an admin's
// add or remove is visible on the very next request.
type AccessGrantRepository struct {
	db *gorm.DB
}

func NewAccessGrantRepository(db *gorm.DB) *AccessGrantRepository {
	return &AccessGrantRepository{db: db}
}

func (r *AccessGrantRepository) Create(ctx context.Context, grant *models.AccessGrant) error {
	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	grant.CreatedAt = time.Now().UTC()

	if err := r.db.WithContext(ctx).Create(grant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("early access grant for %s: %w", grant.Email, ErrDuplicate)
		}
		util.Error("Failed to create access grant",
			zap.String("email", grant.Email),
			zap.Error(err))
		return fmt.Errorf("failed to create access grant: %w", err)
	}

	util.Info("Access grant created", zap.String("email", grant.Email))
	return nil
}

// Exists performs the gate's point read against the stored
// (lower-cased) email.
func (r *AccessGrantRepository) Exists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AccessGrant{}).
		Where("email = ?", email).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up access grant: %w", err)
	}
	return count > 0, nil
}

func (r *AccessGrantRepository) List(ctx context.Context) ([]models.AccessGrant, error) {
	var grants []models.AccessGrant
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list access grants: %w", err)
	}
	return grants, nil
}

func (r *AccessGrantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.AccessGrant{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete access grant: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	util.Info("Access grant deleted", zap.String("id", id.String()))
	return nil
}
