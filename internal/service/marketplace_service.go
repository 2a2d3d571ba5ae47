package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborsos/internal/events"
	"neighborsos/internal/geo"
	"neighborsos/internal/mailer"
	"neighborsos/internal/models"
	"neighborsos/internal/repository/postgres"
	"neighborsos/internal/util"
)

var (
	ErrNeedNotFound    = errors.New("urgent need not found")
	ErrNeedUnavailable = errors.New("urgent need is no longer available")
	ErrFamilyNotFound  = errors.New("family not found")
	ErrFamilyAdopted   = errors.New("family is already fully adopted")
	ErrInvalidAmount   = errors.New("invalid sponsorship amount")
	ErrInvalidQuantity = errors.New("invalid claim quantity")
	ErrCharityUnvetted = errors.New("charity is not verified")
)

// NeedIndexer mirrors needs into the search cluster. A nil indexer
// turns every search into the SQL fallback.
type NeedIndexer interface {
	Index(ctx context.Context, need *models.UrgentNeed)
	Remove(ctx context.Context, id uuid.UUID)
	Search(ctx context.Context, query string) ([]uuid.UUID, error)
}

// NeedRequest creates one urgent need.
type NeedRequest struct {
	CharityID    uuid.UUID `json:"charity_id"`
	ItemName     string    `json:"item_name"`
	Quantity     int       `json:"quantity"`
	Category     string    `json:"category"`
	UrgencyHours int       `json:"urgency_hours"`
	Notes        string    `json:"notes"`
}

// ClaimRequest is a donor's commitment to fulfill (part of) a need.
type ClaimRequest struct {
	NeedID     uuid.UUID `json:"need_id"`
	DonorEmail string    `json:"donor_email"`
	Quantity   int       `json:"quantity"`
}

// FamilyRequest creates one family sponsorship listing.
type FamilyRequest struct {
	CharityID     uuid.UUID `json:"charity_id"`
	FamilyName    string    `json:"family_name"`
	ChildrenCount int       `json:"children_count"`
	Wishlist      string    `json:"wishlist"`
	AmountNeeded  float64   `json:"amount_needed"`
}

// SponsorRequest is a donor's commitment toward a family.
type SponsorRequest struct {
	FamilyID   uuid.UUID `json:"family_id"`
	DonorName  string    `json:"donor_name"`
	DonorEmail string    `json:"donor_email"`
	Amount     float64   `json:"amount"`
}

// MarketplaceService owns the donor-facing flows: browsing and
// claiming urgent needs, and sponsoring families.
type MarketplaceService struct {
	needs     *postgres.NeedRepository
	families  *postgres.FamilyRepository
	charities *postgres.CharityRepository
	index     NeedIndexer
	locator   *geo.Locator
	publisher events.Publisher
	sender    mailer.Sender
}

func NewMarketplaceService(
	needs *postgres.NeedRepository,
	families *postgres.FamilyRepository,
	charities *postgres.CharityRepository,
	index NeedIndexer,
	locator *geo.Locator,
	publisher events.Publisher,
	sender mailer.Sender,
) *MarketplaceService {
	return &MarketplaceService{
		needs:     needs,
		families:  families,
		charities: charities,
		index:     index,
		locator:   locator,
		publisher: publisher,
		sender:    sender,
	}
}

// ListNeeds returns open needs. A free-text query goes through the
// search index when one is wired, falling back to SQL name filtering;
// a donor zip re-orders results nearest-first.
func (s *MarketplaceService) ListNeeds(ctx context.Context, category, query, donorZip string) ([]models.UrgentNeed, error) {
	needs, err := s.searchNeeds(ctx, category, query)
	if err != nil {
		return nil, err
	}

	if donorZip != "" && s.locator != nil {
		zip, err := util.SanitizeZipCode(donorZip)
		if err != nil {
			return nil, ErrInvalidInput
		}
		origin, err := s.locator.Lookup(ctx, zip)
		if err != nil {
			// Unresolvable donor zip degrades to the urgency order.
			util.Debug("Donor zip lookup failed",
				zap.String("zip", zip),
				zap.Error(err))
			return needs, nil
		}

		zips := make([]string, 0, len(needs))
		for _, n := range needs {
			if n.Charity != nil {
				zips = append(zips, n.Charity.ZipCode)
			}
		}
		points := s.locator.LookupAll(ctx, zips)
		geo.SortByDistance(needs, origin, points, func(n models.UrgentNeed) string {
			if n.Charity == nil {
				return ""
			}
			return n.Charity.ZipCode
		})
	}

	return needs, nil
}

func (s *MarketplaceService) searchNeeds(ctx context.Context, category, query string) ([]models.UrgentNeed, error) {
	if query == "" || s.index == nil {
		return s.needs.ListAvailable(ctx, category, query)
	}

	ids, err := s.index.Search(ctx, query)
	if err != nil {
		util.Warn("Search index unavailable, falling back to SQL", zap.Error(err))
		return s.needs.ListAvailable(ctx, category, query)
	}

	all, err := s.needs.ListAvailable(ctx, category, "")
	if err != nil {
		return nil, err
	}

	rank := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}
	matched := make([]models.UrgentNeed, 0, len(ids))
	for _, n := range all {
		if _, ok := rank[n.ID]; ok {
			matched = append(matched, n)
		}
	}
	return matched, nil
}

// CreateNeed posts a need for a verified charity.
func (s *MarketplaceService) CreateNeed(ctx context.Context, req NeedRequest) (*models.UrgentNeed, error) {
	charity, err := s.charities.GetByID(ctx, req.CharityID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrCharityNotFound
		}
		return nil, err
	}
	if !charity.Verified {
		return nil, ErrCharityUnvetted
	}

	itemName := util.SanitizeText(req.ItemName)
	if itemName == "" || req.Quantity < 1 {
		return nil, ErrInvalidInput
	}

	need := &models.UrgentNeed{
		CharityID:    req.CharityID,
		ItemName:     itemName,
		Quantity:     req.Quantity,
		Category:     util.SanitizeText(req.Category),
		UrgencyHours: req.UrgencyHours,
		Notes:        util.SanitizeText(req.Notes),
	}
	if err := s.needs.Create(ctx, need); err != nil {
		return nil, err
	}

	if s.index != nil {
		need.Charity = charity
		s.index.Index(ctx, need)
	}
	return need, nil
}

// ClaimNeed runs the donor claim flow: atomic decrement, confirmation
// email to the donor (including the charity's pickup details and
// auto-response), heads-up email to the charity, and the stream event.
func (s *MarketplaceService) ClaimNeed(ctx context.Context, req ClaimRequest) (*models.UrgentNeed, error) {
	donorEmail, err := util.SanitizeEmail(req.DonorEmail)
	if err != nil {
		return nil, ErrInvalidInput
	}

	need, err := s.needs.Claim(ctx, req.NeedID, donorEmail, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrNotFound):
			return nil, ErrNeedNotFound
		case errors.Is(err, postgres.ErrNeedUnavailable):
			return nil, ErrNeedUnavailable
		case errors.Is(err, postgres.ErrQuantityExceeded):
			return nil, ErrInvalidQuantity
		}
		return nil, err
	}

	charity, err := s.charities.GetByID(ctx, need.CharityID)
	if err != nil {
		util.Warn("Claimed need has no loadable charity",
			zap.String("need_id", need.ID.String()),
			zap.Error(err))
	} else {
		s.sendClaimEmails(need, charity, donorEmail, req.Quantity)
	}

	if err := s.publisher.Publish(ctx, events.TypeNeedClaimed, map[string]interface{}{
		"need_id":   need.ID.String(),
		"item_name": need.ItemName,
		"quantity":  req.Quantity,
		"remaining": need.Quantity,
	}); err != nil {
		util.Warn("Failed to publish need.claimed event", zap.Error(err))
	}

	if s.index != nil && need.Status == models.NeedStatusClaimed {
		s.index.Remove(ctx, need.ID)
	}

	return need, nil
}

func (s *MarketplaceService) sendClaimEmails(need *models.UrgentNeed, charity *models.Charity, donorEmail string, quantity int) {
	donorBody := fmt.Sprintf(
		"<p>Thank you for claiming <strong>%s</strong> (x%d) for %s.</p>"+
			"<p>Drop-off address: %s<br>Phone: %s</p>",
		need.ItemName, quantity, charity.Name, charity.Address, charity.Phone)
	if charity.AutoResponseMessage != "" {
		donorBody += fmt.Sprintf("<p>%s</p>", charity.AutoResponseMessage)
	}
	if err := s.sender.Send([]string{donorEmail}, "You claimed an urgent need", donorBody); err != nil {
		util.Warn("Failed to send donor claim email", zap.Error(err))
	}

	charityBody := fmt.Sprintf(
		"<p>A donor (%s) claimed <strong>%s</strong> (x%d). %d remaining.</p>",
		donorEmail, need.ItemName, quantity, need.Quantity)
	if err := s.sender.Send([]string{charity.ContactEmail}, "One of your needs was claimed", charityBody); err != nil {
		util.Warn("Failed to send charity claim email", zap.Error(err))
	}
}

func (s *MarketplaceService) DeleteNeed(ctx context.Context, id uuid.UUID) error {
	if err := s.needs.Delete(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrNeedNotFound
		}
		return err
	}
	if s.index != nil {
		s.index.Remove(ctx, id)
	}
	return nil
}

func (s *MarketplaceService) ListNeedsByCharity(ctx context.Context, charityID uuid.UUID) ([]models.UrgentNeed, error) {
	return s.needs.ListByCharity(ctx, charityID)
}

// ListFamilies returns families still accepting sponsorships.
func (s *MarketplaceService) ListFamilies(ctx context.Context) ([]models.Family, error) {
	return s.families.ListOpen(ctx)
}

func (s *MarketplaceService) CreateFamily(ctx context.Context, req FamilyRequest) (*models.Family, error) {
	charity, err := s.charities.GetByID(ctx, req.CharityID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrCharityNotFound
		}
		return nil, err
	}
	if !charity.Verified {
		return nil, ErrCharityUnvetted
	}

	familyName := util.SanitizeText(req.FamilyName)
	if familyName == "" || req.AmountNeeded <= 0 {
		return nil, ErrInvalidInput
	}

	family := &models.Family{
		CharityID:     req.CharityID,
		FamilyName:    familyName,
		ChildrenCount: req.ChildrenCount,
		Wishlist:      util.SanitizeText(req.Wishlist),
		AmountNeeded:  req.AmountNeeded,
	}
	if err := s.families.Create(ctx, family); err != nil {
		return nil, err
	}
	return family, nil
}

// SponsorFamily records a donor commitment, emails both sides, and
// announces the event.
func (s *MarketplaceService) SponsorFamily(ctx context.Context, req SponsorRequest) (*models.Family, error) {
	donorEmail, err := util.SanitizeEmail(req.DonorEmail)
	if err != nil {
		return nil, ErrInvalidInput
	}
	donorName := util.SanitizeText(req.DonorName)
	if donorName == "" {
		return nil, ErrInvalidInput
	}

	family, err := s.families.Sponsor(ctx, req.FamilyID, donorName, donorEmail, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrNotFound):
			return nil, ErrFamilyNotFound
		case errors.Is(err, postgres.ErrFamilyAdopted):
			return nil, ErrFamilyAdopted
		case errors.Is(err, postgres.ErrInvalidAmount):
			return nil, ErrInvalidAmount
		}
		return nil, err
	}

	if charity, err := s.charities.GetByID(ctx, family.CharityID); err == nil {
		donorBody := fmt.Sprintf(
			"<p>Thank you, %s! Your $%.2f commitment to the %s family was recorded.</p>"+
				"<p>%s will reach out with next steps.</p>",
			donorName, req.Amount, family.FamilyName, charity.Name)
		if err := s.sender.Send([]string{donorEmail}, "Your family sponsorship", donorBody); err != nil {
			util.Warn("Failed to send donor sponsorship email", zap.Error(err))
		}

		charityBody := fmt.Sprintf(
			"<p>%s (%s) committed $%.2f to the %s family. $%.2f of $%.2f is now committed.</p>",
			donorName, donorEmail, req.Amount, family.FamilyName,
			family.AmountCommitted, family.AmountNeeded)
		if err := s.sender.Send([]string{charity.ContactEmail}, "A family received a sponsorship", charityBody); err != nil {
			util.Warn("Failed to send charity sponsorship email", zap.Error(err))
		}
	}

	if err := s.publisher.Publish(ctx, events.TypeFamilySponsored, map[string]interface{}{
		"family_id": family.ID.String(),
		"amount":    req.Amount,
		"committed": family.AmountCommitted,
		"needed":    family.AmountNeeded,
		"status":    family.Status,
	}); err != nil {
		util.Warn("Failed to publish family.sponsored event", zap.Error(err))
	}

	return family, nil
}

func (s *MarketplaceService) DeleteFamily(ctx context.Context, id uuid.UUID) error {
	if err := s.families.Delete(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrFamilyNotFound
		}
		return err
	}
	return nil
}

func (s *MarketplaceService) ListFamiliesByCharity(ctx context.Context, charityID uuid.UUID) ([]models.Family, error) {
	return s.families.ListByCharity(ctx, charityID)
}
