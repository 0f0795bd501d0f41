package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog records admin actions and repeated purchase-key denials
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    *uuid.UUID `gorm:"type:uuid" json:"actor_id,omitempty"`
	Action     string     `gorm:"type:varchar(100);not null" json:"action"` // e.g., "delete_beat", "purchase_key_denied"
	TargetType string     `gorm:"type:varchar(50);not null" json:"target_type"` // e.g., "beat", "purchase", "user"
	TargetID   uuid.UUID  `gorm:"type:uuid;not null" json:"target_id"`
	Details    string     `gorm:"type:text" json:"details,omitempty"`
	IPAddress  string     `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
