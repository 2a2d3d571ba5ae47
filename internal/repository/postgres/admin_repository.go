package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"neighborsos/internal/models"
)

// AdminRepository answers "is this resolved identity an operator".
type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) IsAdmin(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Admin{}).
		Where("email = ?", email).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up admin: %w", err)
	}
	return count > 0, nil
}
