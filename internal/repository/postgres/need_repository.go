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

var (
	// ErrNeedUnavailable is returned when claiming a need that is
	// already fully claimed.
	ErrNeedUnavailable = errors.New("need is no longer available")
	// ErrQuantityExceeded is returned when a claim asks for more than
	// remains.
	ErrQuantityExceeded = errors.New("claim quantity exceeds remaining amount")
)

type NeedRepository struct {
	db *gorm.DB
}

func NewNeedRepository(db *gorm.DB) *NeedRepository {
	return &NeedRepository{db: db}
}

func (r *NeedRepository) Create(ctx context.Context, need *models.UrgentNeed) error {
	if need.ID == uuid.Nil {
		need.ID = uuid.New()
	}
	need.CreatedAt = time.Now().UTC()
	need.Status = models.NeedStatusAvailable

	if err := r.db.WithContext(ctx).Create(need).Error; err != nil {
		util.Error("Failed to create urgent need",
			zap.String("item", need.ItemName),
			zap.Error(err))
		return fmt.Errorf("failed to create urgent need: %w", err)
	}
	return nil
}

func (r *NeedRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.UrgentNeed, error) {
	var need models.UrgentNeed
	err := r.db.WithContext(ctx).
		Preload("Charity").
		Take(&need, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get urgent need: %w", err)
	}
	return &need, nil
}

// ListAvailable returns open needs most-urgent-first, joined with
// their charity. Category and charity-name filters are optional.
func (r *NeedRepository) ListAvailable(ctx context.Context, category, charityQuery string) ([]models.UrgentNeed, error) {
	q := r.db.WithContext(ctx).
		Preload("Charity").
		Where("status = ?", models.NeedStatusAvailable).
		Order("urgency_hours ASC")

	if category != "" && category != "all" {
		q = q.Where("category = ?", category)
	}
	if charityQuery != "" {
		q = q.Joins("JOIN charities ON charities.id = urgent_needs.charity_id").
			Where("LOWER(charities.name) LIKE ?", "%"+toLower(charityQuery)+"%")
	}

	var needs []models.UrgentNeed
	if err := q.Find(&needs).Error; err != nil {
		return nil, fmt.Errorf("failed to list urgent needs: %w", err)
	}
	return needs, nil
}

func (r *NeedRepository) ListByCharity(ctx context.Context, charityID uuid.UUID) ([]models.UrgentNeed, error) {
	var needs []models.UrgentNeed
	err := r.db.WithContext(ctx).
		Where("charity_id = ?", charityID).
		Order("created_at DESC").
		Find(&needs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list needs by charity: %w", err)
	}
	return needs, nil
}

// Claim atomically deducts quantity from a need and marks it claimed
// when nothing remains. The decrement is a single conditional UPDATE,
// so two donors racing on the same row cannot over-claim it.
func (r *NeedRepository) Claim(ctx context.Context, id uuid.UUID, donorEmail string, quantity int) (*models.UrgentNeed, error) {
	if quantity < 1 {
		return nil, ErrQuantityExceeded
	}

	var claimed models.UrgentNeed

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UrgentNeed{}).
			Where("id = ? AND status = ? AND quantity >= ?",
				id, models.NeedStatusAvailable, quantity).
			Update("quantity", gorm.Expr("quantity - ?", quantity))
		if res.Error != nil {
			return fmt.Errorf("failed to update urgent need: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Decide which precondition failed.
			var need models.UrgentNeed
			if err := tx.Take(&need, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return fmt.Errorf("failed to load urgent need: %w", err)
			}
			if need.Status != models.NeedStatusAvailable {
				return ErrNeedUnavailable
			}
			return ErrQuantityExceeded
		}

		var need models.UrgentNeed
		if err := tx.Take(&need, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to reload urgent need: %w", err)
		}
		if need.Quantity <= 0 {
			now := time.Now().UTC()
			need.Status = models.NeedStatusClaimed
			need.ClaimedAt = &now
			need.ClaimedByEmail = donorEmail
			if err := tx.Model(&models.UrgentNeed{}).
				Where("id = ?", id).
				Updates(map[string]interface{}{
					"status":           need.Status,
					"claimed_at":       need.ClaimedAt,
					"claimed_by_email": need.ClaimedByEmail,
				}).Error; err != nil {
				return fmt.Errorf("failed to mark need claimed: %w", err)
			}
		}

		claimed = need
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

func (r *NeedRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.UrgentNeed{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete urgent need: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
