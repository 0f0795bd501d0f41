package services

import (
	"github.com/beatvault/backend/internal/config"
	"github.com/beatvault/backend/internal/models"
	"github.com/beatvault/backend/pkg/crypto"
	"gorm.io/gorm"
)

type AdminService struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewAdminService(db *gorm.DB, cfg *config.Config) *AdminService {
	return &AdminService{db: db, cfg: cfg}
}

// CreateDefaultAdmin creates the default admin user if it doesn't exist
func (s *AdminService) CreateDefaultAdmin() error {
	var count int64
	if err := s.db.Model(&models.User{}).Where("username = ?", s.cfg.AdminUsername).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil // Admin already exists
	}

	hashedPassword, err := crypto.HashPassword(s.cfg.AdminPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	admin := &models.User{
		Username:    s.cfg.AdminUsername,
		Email:       s.cfg.AdminEmail,
		Password:    hashedPassword,
		DisplayName: "Administrator",
		IsAdmin:     true,
		IsActive:    true,
	}

	return s.db.Create(admin).Error
}
