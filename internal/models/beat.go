package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BeatType string

const (
	BeatTypeAudio BeatType = "audio"
	BeatTypeStyle BeatType = "style"
)

// Beat is the catalog record for a purchasable audio or style file. It owns
// exactly one stored object and at most one thumbnail object.
type Beat struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	ObjectID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"object_id"`
	ThumbnailObjectID *uuid.UUID `gorm:"type:uuid" json:"thumbnail_object_id,omitempty"`
	Title             string     `gorm:"size:255;not null" json:"title"`
	Description       string     `gorm:"size:2000" json:"description"`
	Price             float64    `gorm:"not null;default:0" json:"price"` // 0 means free
	Type              BeatType   `gorm:"size:16;not null" json:"type"`
	IsActive          bool       `gorm:"default:true" json:"is_active"`

	// Probed asynchronously after upload; zero values until the probe lands
	Duration int    `gorm:"default:0" json:"duration"`
	Waveform string `gorm:"type:text" json:"waveform,omitempty"`

	// Usage counters, incremented asynchronously off the request path
	Downloads      int64      `gorm:"default:0" json:"downloads"`
	Plays          int64      `gorm:"default:0" json:"plays"`
	Purchases      int64      `gorm:"default:0" json:"purchases"`
	Likes          int64      `gorm:"default:0" json:"likes"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Owner  User          `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Object *StoredObject `gorm:"foreignKey:ObjectID" json:"object,omitempty"`
}

func (b *Beat) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
