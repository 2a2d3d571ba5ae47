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

type CharityRepository struct {
	db *gorm.DB
}

func NewCharityRepository(db *gorm.DB) *CharityRepository {
	return &CharityRepository{db: db}
}

func (r *CharityRepository) Create(ctx context.Context, charity *models.Charity) error {
	if charity.ID == uuid.Nil {
		charity.ID = uuid.New()
	}
	charity.CreatedAt = time.Now().UTC()
	charity.Verified = false

	if err := r.db.WithContext(ctx).Create(charity).Error; err != nil {
		util.Error("Failed to create charity",
			zap.String("name", charity.Name),
			zap.Error(err))
		return fmt.Errorf("failed to create charity: %w", err)
	}

	util.Info("Charity application created",
		zap.String("charity_id", charity.ID.String()),
		zap.String("name", charity.Name))
	return nil
}

func (r *CharityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Charity, error) {
	var charity models.Charity
	err := r.db.WithContext(ctx).Take(&charity, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get charity: %w", err)
	}
	return &charity, nil
}

func (r *CharityRepository) ListByUser(ctx context.Context, userID string) ([]models.Charity, error) {
	var charities []models.Charity
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&charities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list charities by user: %w", err)
	}
	return charities, nil
}

// ListPending returns unverified applications newest-first, the order
// the review queue shows them in.
func (r *CharityRepository) ListPending(ctx context.Context) ([]models.Charity, error) {
	var charities []models.Charity
	err := r.db.WithContext(ctx).
		Where("verified = ?", false).
		Order("created_at DESC").
		Find(&charities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending charities: %w", err)
	}
	return charities, nil
}

func (r *CharityRepository) ListVerified(ctx context.Context) ([]models.Charity, error) {
	var charities []models.Charity
	err := r.db.WithContext(ctx).
		Where("verified = ?", true).
		Order("name").
		Find(&charities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list verified charities: %w", err)
	}
	return charities, nil
}

func (r *CharityRepository) SetVerified(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Charity{}).
		Where("id = ?", id).
		Update("verified", true)
	if res.Error != nil {
		return fmt.Errorf("failed to verify charity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CharityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Charity{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete charity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
