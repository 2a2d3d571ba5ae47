package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborsos/internal/models"
	"neighborsos/internal/repository/postgres"
	"neighborsos/internal/util"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrAlreadyGranted   = errors.New("email already has early access")
	ErrGrantNotFound    = errors.New("access grant not found")
	ErrAlreadySignedUp  = errors.New("email already signed up")
	ErrPermissionDenied = errors.New("permission denied")
)

// AccessService manages the early-access allow-list and the holding
// page's launch-notification signups.
type AccessService struct {
	grants  *postgres.AccessGrantRepository
	admins  *postgres.AdminRepository
	signups *postgres.EmailSignupRepository
}

func NewAccessService(
	grants *postgres.AccessGrantRepository,
	admins *postgres.AdminRepository,
	signups *postgres.EmailSignupRepository,
) *AccessService {
	return &AccessService{
		grants:  grants,
		admins:  admins,
		signups: signups,
	}
}

// Grant adds an email to the allow-list. The email is normalized
// before storage so the gate's lower-cased lookup always matches.
func (s *AccessService) Grant(ctx context.Context, email, notes string) (*models.AccessGrant, error) {
	clean, err := util.SanitizeEmail(email)
	if err != nil {
		return nil, ErrInvalidInput
	}

	grant := &models.AccessGrant{
		Email: clean,
		Notes: util.SanitizeText(notes),
	}
	if err := s.grants.Create(ctx, grant); err != nil {
		if errors.Is(err, postgres.ErrDuplicate) {
			return nil, ErrAlreadyGranted
		}
		return nil, err
	}
	return grant, nil
}

func (s *AccessService) List(ctx context.Context) ([]models.AccessGrant, error) {
	return s.grants.List(ctx)
}

// Revoke removes a grant; the holder is locked out on their next
// request.
func (s *AccessService) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := s.grants.Delete(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrGrantNotFound
		}
		return err
	}
	return nil
}

// IsAdmin reports whether the resolved identity may use the management
// surface.
func (s *AccessService) IsAdmin(ctx context.Context, email string) (bool, error) {
	clean, err := util.SanitizeEmail(email)
	if err != nil {
		return false, nil
	}
	return s.admins.IsAdmin(ctx, clean)
}

// Signup records a launch-notification request from the holding page.
// A repeat signup is reported as a distinct error so the page can show
// "you're already on the list".
func (s *AccessService) Signup(ctx context.Context, email string) error {
	clean, err := util.SanitizeEmail(email)
	if err != nil {
		return ErrInvalidInput
	}

	if err := s.signups.Create(ctx, &models.EmailSignup{Email: clean}); err != nil {
		if errors.Is(err, postgres.ErrDuplicate) {
			return ErrAlreadySignedUp
		}
		return err
	}

	util.Info("Launch notification signup", zap.String("email", clean))
	return nil
}
