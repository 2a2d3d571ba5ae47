package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborsos/internal/events"
	"neighborsos/internal/mailer"
	"neighborsos/internal/models"
	"neighborsos/internal/repository/postgres"
	"neighborsos/internal/util"
)

var ErrCharityNotFound = errors.New("charity not found")

// CharityApplication is the self-service application form.
type CharityApplication struct {
	UserID              string `json:"user_id"`
	Name                string `json:"name"`
	ContactEmail        string `json:"contact_email"`
	Address             string `json:"address"`
	Phone               string `json:"phone"`
	ZipCode             string `json:"zip_code"`
	AutoResponseMessage string `json:"auto_response_message"`
}

// CharityService owns the charity lifecycle: application, review,
// approval or rejection, and the published success stories.
type CharityService struct {
	charities *postgres.CharityRepository
	stories   *postgres.StoryRepository
	publisher events.Publisher
	sender    mailer.Sender
}

func NewCharityService(
	charities *postgres.CharityRepository,
	stories *postgres.StoryRepository,
	publisher events.Publisher,
	sender mailer.Sender,
) *CharityService {
	return &CharityService{
		charities: charities,
		stories:   stories,
		publisher: publisher,
		sender:    sender,
	}
}

// Apply creates an unverified application. Organizations stay
// invisible to donors until an admin approves them.
func (s *CharityService) Apply(ctx context.Context, app CharityApplication) (*models.Charity, error) {
	email, err := util.SanitizeEmail(app.ContactEmail)
	if err != nil {
		return nil, ErrInvalidInput
	}
	name := util.SanitizeText(app.Name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	zip := ""
	if app.ZipCode != "" {
		if zip, err = util.SanitizeZipCode(app.ZipCode); err != nil {
			return nil, ErrInvalidInput
		}
	}
	phone := ""
	if app.Phone != "" {
		if phone, err = util.SanitizePhone(app.Phone); err != nil {
			return nil, ErrInvalidInput
		}
	}

	charity := &models.Charity{
		UserID:              app.UserID,
		Name:                name,
		ContactEmail:        email,
		Address:             util.SanitizeText(app.Address),
		Phone:               phone,
		ZipCode:             zip,
		AutoResponseMessage: util.SanitizeHTML(app.AutoResponseMessage),
	}
	if err := s.charities.Create(ctx, charity); err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, events.TypeCharityApplied, map[string]string{
		"charity_id": charity.ID.String(),
		"name":       charity.Name,
	}); err != nil {
		util.Warn("Failed to publish charity.applied event", zap.Error(err))
	}

	return charity, nil
}

// Approve verifies a charity, notifies it, and announces the event.
func (s *CharityService) Approve(ctx context.Context, id uuid.UUID) error {
	charity, err := s.charities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrCharityNotFound
		}
		return err
	}

	if err := s.charities.SetVerified(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrCharityNotFound
		}
		return err
	}

	if err := s.publisher.Publish(ctx, events.TypeCharityApproved, map[string]string{
		"charity_id": charity.ID.String(),
		"name":       charity.Name,
	}); err != nil {
		util.Warn("Failed to publish charity.approved event", zap.Error(err))
	}

	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your organization has been verified on NeighborSOS. "+
			"You can now post urgent needs and family sponsorships.</p>",
		charity.Name)
	if err := s.sender.Send([]string{charity.ContactEmail}, "Your NeighborSOS application was approved", body); err != nil {
		util.Warn("Failed to send approval email",
			zap.String("charity_id", id.String()),
			zap.Error(err))
	}

	util.Info("Charity approved",
		zap.String("charity_id", id.String()),
		zap.String("name", charity.Name))
	return nil
}

// Reject removes an application and tells the applicant.
func (s *CharityService) Reject(ctx context.Context, id uuid.UUID) error {
	charity, err := s.charities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrCharityNotFound
		}
		return err
	}

	if err := s.charities.Delete(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrCharityNotFound
		}
		return err
	}

	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>We could not verify your organization at this time. "+
			"Reply to this email if you believe this is a mistake.</p>",
		charity.Name)
	if err := s.sender.Send([]string{charity.ContactEmail}, "Your NeighborSOS application", body); err != nil {
		util.Warn("Failed to send rejection email",
			zap.String("charity_id", id.String()),
			zap.Error(err))
	}

	util.Info("Charity application rejected", zap.String("charity_id", id.String()))
	return nil
}

func (s *CharityService) ListPending(ctx context.Context) ([]models.Charity, error) {
	return s.charities.ListPending(ctx)
}

func (s *CharityService) ListVerified(ctx context.Context) ([]models.Charity, error) {
	return s.charities.ListVerified(ctx)
}

func (s *CharityService) ListMine(ctx context.Context, userID string) ([]models.Charity, error) {
	return s.charities.ListByUser(ctx, userID)
}

func (s *CharityService) GetByID(ctx context.Context, id uuid.UUID) (*models.Charity, error) {
	charity, err := s.charities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrCharityNotFound
		}
		return nil, err
	}
	return charity, nil
}

// PublishStory adds a success story to the landing page.
func (s *CharityService) PublishStory(ctx context.Context, title, story, charityName string) (*models.SuccessStory, error) {
	title = util.SanitizeText(title)
	story = util.SanitizeHTML(story)
	if title == "" || story == "" {
		return nil, ErrInvalidInput
	}

	record := &models.SuccessStory{
		Title:       title,
		Story:       story,
		CharityName: util.SanitizeText(charityName),
	}
	if err := s.stories.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *CharityService) ListStories(ctx context.Context) ([]models.SuccessStory, error) {
	return s.stories.List(ctx)
}
