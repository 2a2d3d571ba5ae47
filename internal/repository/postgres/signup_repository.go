package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"neighborsos/internal/models"
)

// EmailSignupRepository stores launch-notification requests from the
// holding page.
type EmailSignupRepository struct {
	db *gorm.DB
}

func NewEmailSignupRepository(db *gorm.DB) *EmailSignupRepository {
	return &EmailSignupRepository{db: db}
}

func (r *EmailSignupRepository) Create(ctx context.Context, signup *models.EmailSignup) error {
	if signup.ID == uuid.Nil {
		signup.ID = uuid.New()
	}
	signup.CreatedAt = time.Now().UTC()

	if err := r.db.WithContext(ctx).Create(signup).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("signup for %s: %w", signup.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to create email signup: %w", err)
	}
	return nil
}
