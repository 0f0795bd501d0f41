package services

import (
	"encoding/json"
	"time"

	"github.com/beatvault/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// LogAction records an action to the audit log. Actor may be nil for
// unauthenticated events such as purchase-key denials.
func (s *AuditService) LogAction(actorID *uuid.UUID, action, targetType string, targetID uuid.UUID, details map[string]interface{}, ipAddress string) error {
	detailsJSON := ""
	if details != nil {
		if jsonBytes, err := json.Marshal(details); err == nil {
			detailsJSON = string(jsonBytes)
		}
	}

	entry := &models.AuditLog{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    detailsJSON,
		IPAddress:  ipAddress,
	}

	return s.db.Create(entry).Error
}

// GetActionCount counts how often an actor performed an action since a
// point in time. Used by the admin action rate limiter.
func (s *AuditService) GetActionCount(actorID uuid.UUID, action string, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.AuditLog{}).
		Where("actor_id = ? AND action = ? AND created_at > ?", actorID, action, since).
		Count(&count).Error
	return count, err
}

// GetRecentActions retrieves recent audit entries with pagination
func (s *AuditService) GetRecentActions(page, limit int, action string) ([]*models.AuditLog, int64, error) {
	var logs []*models.AuditLog
	var total int64

	query := s.db.Model(&models.AuditLog{})
	if action != "" {
		query = query.Where("action = ?", action)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
