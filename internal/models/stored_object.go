package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoredObject is the metadata record for a chunked binary blob. The object
// only becomes visible once the final chunk has been committed; readers must
// never observe a partially written object.
type StoredObject struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Filename   string     `gorm:"size:255;not null" json:"filename"`
	MimeType   string     `gorm:"size:120" json:"mime_type"`
	Length     int64      `gorm:"not null" json:"length"`
	ChunkSize  int        `gorm:"not null" json:"chunk_size"`
	UploaderID *uuid.UUID `gorm:"type:uuid;index" json:"uploader_id,omitempty"`
	UploadedAt time.Time  `json:"uploaded_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (o *StoredObject) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// ObjectChunk holds one fixed-size block of an object's payload. Seq is the
// zero-based position; chunks of an object are contiguous with no gaps and
// their lengths sum to StoredObject.Length.
type ObjectChunk struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	ObjectID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_object_seq" json:"object_id"`
	Seq      int       `gorm:"not null;uniqueIndex:idx_object_seq" json:"seq"`
	Data     []byte    `gorm:"not null" json:"-"`
}

// TableName keeps the chunk table name short; it is by far the largest table.
func (ObjectChunk) TableName() string {
	return "object_chunks"
}
