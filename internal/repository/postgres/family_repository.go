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

var (
	// ErrFamilyAdopted is returned when sponsoring a family that is
	// already fully adopted.
	ErrFamilyAdopted = errors.New("family is already fully adopted")
	// ErrInvalidAmount is returned for non-positive sponsorship
	// amounts.
	ErrInvalidAmount = errors.New("sponsorship amount must be positive")
)

type FamilyRepository struct {
	db *gorm.DB
}

func NewFamilyRepository(db *gorm.DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

func (r *FamilyRepository) Create(ctx context.Context, family *models.Family) error {
	if family.ID == uuid.Nil {
		family.ID = uuid.New()
	}
	family.CreatedAt = time.Now().UTC()
	family.Status = models.FamilyStatusAvailable
	family.AmountCommitted = 0

	if err := r.db.WithContext(ctx).Create(family).Error; err != nil {
		return fmt.Errorf("failed to create family: %w", err)
	}
	return nil
}

func (r *FamilyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Family, error) {
	var family models.Family
	err := r.db.WithContext(ctx).
		Preload("Charity").
		Preload("Adoptions").
		Take(&family, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	return &family, nil
}

// ListOpen returns families still accepting sponsorships, most-funded
// last so the ones furthest from their goal surface first.
func (r *FamilyRepository) ListOpen(ctx context.Context) ([]models.Family, error) {
	var families []models.Family
	err := r.db.WithContext(ctx).
		Preload("Charity").
		Preload("Adoptions").
		Where("status <> ?", models.FamilyStatusFullyAdopted).
		Order("amount_committed / amount_needed ASC").
		Find(&families).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list families: %w", err)
	}
	return families, nil
}

func (r *FamilyRepository) ListByCharity(ctx context.Context, charityID uuid.UUID) ([]models.Family, error) {
	var families []models.Family
	err := r.db.WithContext(ctx).
		Preload("Adoptions").
		Where("charity_id = ?", charityID).
		Order("created_at DESC").
		Find(&families).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list families by charity: %w", err)
	}
	return families, nil
}

// Sponsor records a donor commitment and accumulates it into the
// family's total, flipping status to partially or fully adopted. The
// accumulate is a conditional UPDATE so racing donors cannot push the
// total past the goal.
func (r *FamilyRepository) Sponsor(ctx context.Context, familyID uuid.UUID, donorName, donorEmail string, amount float64) (*models.Family, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var sponsored models.Family

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Family{}).
			Where("id = ? AND status <> ? AND amount_committed + ? <= amount_needed",
				familyID, models.FamilyStatusFullyAdopted, amount).
			Update("amount_committed", gorm.Expr("amount_committed + ?", amount))
		if res.Error != nil {
			return fmt.Errorf("failed to update family total: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var family models.Family
			if err := tx.Take(&family, "id = ?", familyID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return fmt.Errorf("failed to load family: %w", err)
			}
			if family.Status == models.FamilyStatusFullyAdopted {
				return ErrFamilyAdopted
			}
			return ErrInvalidAmount
		}

		adoption := models.FamilyAdoption{
			ID:         uuid.New(),
			FamilyID:   familyID,
			DonorName:  donorName,
			DonorEmail: donorEmail,
			Amount:     amount,
			CreatedAt:  time.Now().UTC(),
		}
		if err := tx.Create(&adoption).Error; err != nil {
			return fmt.Errorf("failed to record adoption: %w", err)
		}

		var family models.Family
		if err := tx.Take(&family, "id = ?", familyID).Error; err != nil {
			return fmt.Errorf("failed to reload family: %w", err)
		}

		status := models.FamilyStatusPartiallyAdopted
		if family.AmountCommitted >= family.AmountNeeded {
			status = models.FamilyStatusFullyAdopted
		}
		if family.Status != status {
			if err := tx.Model(&models.Family{}).
				Where("id = ?", familyID).
				Update("status", status).Error; err != nil {
				return fmt.Errorf("failed to update family status: %w", err)
			}
			family.Status = status
		}

		sponsored = family
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sponsored, nil
}

func (r *FamilyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Family{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete family: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
