package models

import (
	"time"

	"github.com/google/uuid"
)

// Need statuses.
const (
	NeedStatusAvailable = "available"
	NeedStatusClaimed   = "claimed"
)

// Family statuses.
const (
	FamilyStatusAvailable        = "available"
	FamilyStatusPartiallyAdopted = "partially_adopted"
	FamilyStatusFullyAdopted     = "fully_adopted"
)

// Charity is an organization that posts needs and families. New
// applications start unverified; an admin flips the flag.
type Charity struct {
	ID                  uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID              string    `json:"user_id" gorm:"index"`
	Name                string    `json:"name" gorm:"not null"`
	ContactEmail        string    `json:"contact_email" gorm:"not null"`
	Address             string    `json:"address"`
	Phone               string    `json:"phone"`
	ZipCode             string    `json:"zip_code"`
	AutoResponseMessage string    `json:"auto_response_message"`
	Verified            bool      `json:"verified" gorm:"default:false;index"`
	CreatedAt           time.Time `json:"created_at"`
}

func (Charity) TableName() string { return "charities" }

// UrgentNeed is a time-boxed item request from a charity.
type UrgentNeed struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	CharityID      uuid.UUID  `json:"charity_id" gorm:"type:uuid;index;not null"`
	Charity        *Charity   `json:"charity,omitempty" gorm:"foreignKey:CharityID"`
	ItemName       string     `json:"item_name" gorm:"not null"`
	Quantity       int        `json:"quantity" gorm:"not null"`
	Category       string     `json:"category" gorm:"default:other"`
	UrgencyHours   int        `json:"urgency_hours"`
	Notes          string     `json:"notes"`
	Status         string     `json:"status" gorm:"default:available;index"`
	ClaimedByEmail string     `json:"claimed_by_email,omitempty"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (UrgentNeed) TableName() string { return "urgent_needs" }

// Family is a holiday sponsorship listing. AmountCommitted accumulates
// across adoptions until it reaches AmountNeeded.
type Family struct {
	ID              uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	CharityID       uuid.UUID        `json:"charity_id" gorm:"type:uuid;index;not null"`
	Charity         *Charity         `json:"charity,omitempty" gorm:"foreignKey:CharityID"`
	FamilyName      string           `json:"family_name" gorm:"not null"`
	ChildrenCount   int              `json:"children_count"`
	Wishlist        string           `json:"wishlist"`
	AmountNeeded    float64          `json:"amount_needed" gorm:"not null"`
	AmountCommitted float64          `json:"amount_committed" gorm:"default:0"`
	Status          string           `json:"status" gorm:"default:available;index"`
	Adoptions       []FamilyAdoption `json:"adoptions,omitempty" gorm:"foreignKey:FamilyID"`
	CreatedAt       time.Time        `json:"created_at"`
}

func (Family) TableName() string { return "adopt_a_family" }

// FamilyAdoption records one donor's commitment toward a family.
type FamilyAdoption struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	FamilyID   uuid.UUID `json:"family_id" gorm:"type:uuid;index;not null"`
	DonorName  string    `json:"donor_name" gorm:"not null"`
	DonorEmail string    `json:"donor_email" gorm:"not null"`
	Amount     float64   `json:"amount" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (FamilyAdoption) TableName() string { return "family_adoptions" }

// AccessGrant is one allow-listed email. Presence in this table is the
// sole condition for passing the pre-launch gate. Email is stored
// lower-cased; the unique index makes duplicate grants an error the
// admin sees rather than a silent no-op.
type AccessGrant struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

func (AccessGrant) TableName() string { return "early_access" }

// Admin identifies an operator allowed onto the management surface.
type Admin struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (Admin) TableName() string { return "admins" }

// SuccessStory is published marketing content for the landing page.
type SuccessStory struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Title       string    `json:"title" gorm:"not null"`
	Story       string    `json:"story" gorm:"not null"`
	CharityName string    `json:"charity_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (SuccessStory) TableName() string { return "success_stories" }

// EmailSignup is a launch-notification request from the holding page.
type EmailSignup struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (EmailSignup) TableName() string { return "email_signups" }

// All lists every model registered for schema migration.
func All() []interface{} {
	return []interface{}{
		&Charity{},
		&UrgentNeed{},
		&Family{},
		&FamilyAdoption{},
		&AccessGrant{},
		&Admin{},
		&SuccessStory{},
		&EmailSignup{},
	}
}
