package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beatvault/backend/internal/apperrors"
	"github.com/beatvault/backend/internal/config"
	"github.com/beatvault/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PurchaseService is the purchase ledger. Pending records expire after the
// configured TTL; used records keep authorizing retries for a short grace
// window after UsedAt. The pending->used transition is a single conditional
// update so concurrent consumers of the same key cannot both win it.
type PurchaseService struct {
	db       *gorm.DB
	cfg      *config.Config
	provider PaymentProvider
}

func NewPurchaseService(db *gorm.DB, cfg *config.Config, provider PaymentProvider) *PurchaseService {
	return &PurchaseService{db: db, cfg: cfg, provider: provider}
}

// Create opens a pending purchase record for a (user, beat) pair and, when a
// payment provider is configured, a checkout session for it.
func (s *PurchaseService) Create(ctx context.Context, userID uuid.UUID, beat *models.Beat) (*models.PurchaseRecord, string, error) {
	if beat.Price <= 0 {
		return nil, "", errors.New("beat is free, no purchase required")
	}
	if beat.OwnerID == userID {
		return nil, "", errors.New("cannot purchase your own beat")
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("user %s: %w", userID, apperrors.ErrNotFound)
		}
		return nil, "", err
	}

	record := &models.PurchaseRecord{
		UserID:    userID,
		BeatID:    beat.ID,
		Status:    models.PurchaseStatusPending,
		Price:     beat.Price,
		ExpiresAt: time.Now().UTC().Add(s.cfg.PurchasePendingTTL),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, "", err
	}

	checkoutURL := ""
	if s.provider != nil {
		url, err := s.provider.CreateCheckout(record, beat, &user)
		if err != nil {
			// Keep the ledger clean when checkout creation fails
			s.db.WithContext(ctx).Delete(record)
			return nil, "", err
		}
		checkoutURL = url
	}

	return record, checkoutURL, nil
}

// FindValid returns the record matching key/user/beat that is either still
// pending within its TTL or used within the grace window.
func (s *PurchaseService) FindValid(ctx context.Context, purchaseKey string, userID, beatID uuid.UUID) (*models.PurchaseRecord, error) {
	now := time.Now().UTC()
	graceFloor := now.Add(-s.cfg.PurchaseGraceWindow)

	var record models.PurchaseRecord
	err := s.db.WithContext(ctx).
		Where("purchase_key = ? AND user_id = ? AND beat_id = ?", purchaseKey, userID, beatID).
		Where("(status = ? AND expires_at > ?) OR (status = ? AND used_at > ?)",
			models.PurchaseStatusPending, now, models.PurchaseStatusUsed, graceFloor).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// MarkUsed performs the pending->used transition as an atomic conditional
// update. Zero rows affected means another request already transitioned the
// record, or it expired.
func (s *PurchaseService) MarkUsed(ctx context.Context, recordID uuid.UUID) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.PurchaseRecord{}).
		Where("id = ? AND status = ? AND expires_at > ?", recordID, models.PurchaseStatusPending, now).
		Updates(map[string]interface{}{
			"status":  models.PurchaseStatusUsed,
			"used_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrInvalidOrExpiredKey
	}
	return nil
}

// Consume validates and spends a purchase key in one step. The primary path
// is the conditional pending->used update; when that affects no rows, a
// recently used record still authorizes the download within the grace window
// so a client retrying after a slow response is not punished.
func (s *PurchaseService) Consume(ctx context.Context, purchaseKey string, userID, beatID uuid.UUID) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.PurchaseRecord{}).
		Where("purchase_key = ? AND user_id = ? AND beat_id = ? AND status = ? AND expires_at > ?",
			purchaseKey, userID, beatID, models.PurchaseStatusPending, now).
		Updates(map[string]interface{}{
			"status":  models.PurchaseStatusUsed,
			"used_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Lost the transition (or never had it): fall back to the grace window
	graceFloor := now.Add(-s.cfg.PurchaseGraceWindow)
	var count int64
	err := s.db.WithContext(ctx).Model(&models.PurchaseRecord{}).
		Where("purchase_key = ? AND user_id = ? AND beat_id = ? AND status = ? AND used_at > ?",
			purchaseKey, userID, beatID, models.PurchaseStatusUsed, graceFloor).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return apperrors.ErrInvalidOrExpiredKey
	}
	return nil
}

// CheckPaymentStatus polls the payment provider for a pending record.
// Without a configured provider every purchase counts as payable.
func (s *PurchaseService) CheckPaymentStatus(record *models.PurchaseRecord) bool {
	if s.provider == nil {
		return true
	}
	return s.provider.CheckPayment(record)
}

// ConfirmPayment attaches the payment intent after a successful webhook.
// Only pending records accept confirmation.
func (s *PurchaseService) ConfirmPayment(ctx context.Context, purchaseID uuid.UUID, paymentIntentID string) error {
	res := s.db.WithContext(ctx).Model(&models.PurchaseRecord{}).
		Where("id = ? AND status = ?", purchaseID, models.PurchaseStatusPending).
		Update("stripe_payment_intent_id", paymentIntentID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("purchase not found or already used")
	}
	return nil
}

// GetByID retrieves a purchase record with its beat
func (s *PurchaseService) GetByID(ctx context.Context, purchaseID uuid.UUID) (*models.PurchaseRecord, error) {
	var record models.PurchaseRecord
	if err := s.db.WithContext(ctx).Preload("Beat").First(&record, "id = ?", purchaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("purchase %s: %w", purchaseID, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &record, nil
}

// GetBySessionID looks a purchase up by its Stripe checkout session
func (s *PurchaseService) GetBySessionID(ctx context.Context, sessionID string) (*models.PurchaseRecord, error) {
	var record models.PurchaseRecord
	if err := s.db.WithContext(ctx).First(&record, "stripe_session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// GetUserPurchases retrieves all purchase records for a user, newest first
func (s *PurchaseService) GetUserPurchases(ctx context.Context, userID uuid.UUID) ([]*models.PurchaseRecord, error) {
	var records []*models.PurchaseRecord
	err := s.db.WithContext(ctx).Preload("Beat").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// CleanupStalePending deletes pending records that expired over an hour ago.
// Recently expired records are kept around for support lookups.
func (s *PurchaseService) CleanupStalePending() (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Hour)
	res := s.db.
		Where("status = ? AND expires_at < ?", models.PurchaseStatusPending, cutoff).
		Delete(&models.PurchaseRecord{})
	return res.RowsAffected, res.Error
}
