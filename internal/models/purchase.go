package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PurchaseStatusPending = "pending"
	PurchaseStatusUsed    = "used"
)

// PurchaseRecord tracks one purchase intent for a (user, beat) pair. The
// status machine is pending -> used with no reverse transition; ExpiresAt is
// only meaningful while pending, UsedAt is set exactly once.
type PurchaseRecord struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseKey string     `gorm:"size:64;uniqueIndex;not null" json:"purchase_key"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	BeatID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"beat_id"`
	Status      string     `gorm:"size:16;not null;default:'pending'" json:"status"`
	Price       float64    `gorm:"not null" json:"price"`
	ExpiresAt   time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`

	// Stripe checkout details
	StripeSessionID       string `json:"-"`
	StripePaymentIntentID string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Beat Beat `gorm:"foreignKey:BeatID" json:"beat,omitempty"`
}

func (p *PurchaseRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PurchaseKey == "" {
		p.PurchaseKey = uuid.New().String()
	}
	return nil
}
