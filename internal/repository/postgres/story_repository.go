package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"neighborsos/internal/models"
)

type StoryRepository struct {
	db *gorm.DB
}

func NewStoryRepository(db *gorm.DB) *StoryRepository {
	return &StoryRepository{db: db}
}

func (r *StoryRepository) Create(ctx context.Context, story *models.SuccessStory) error {
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	story.CreatedAt = time.Now().UTC()

	if err := r.db.WithContext(ctx).Create(story).Error; err != nil {
		return fmt.Errorf("failed to create success story: %w", err)
	}
	return nil
}

func (r *StoryRepository) List(ctx context.Context) ([]models.SuccessStory, error) {
	var stories []models.SuccessStory
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&stories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list success stories: %w", err)
	}
	return stories, nil
}
