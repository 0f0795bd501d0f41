package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/beatvault/backend/internal/apperrors"
	"github.com/beatvault/backend/internal/config"
	"github.com/beatvault/backend/internal/models"
	"github.com/beatvault/backend/internal/pkg/audio"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BeatService is the catalog over stored objects: descriptive metadata,
// pricing, ownership and usage counters.
type BeatService struct {
	db          *gorm.DB
	cfg         *config.Config
	objectStore *ObjectStoreService
}

func NewBeatService(db *gorm.DB, cfg *config.Config, objectStore *ObjectStoreService) *BeatService {
	return &BeatService{db: db, cfg: cfg, objectStore: objectStore}
}

// CreateBeat registers a catalog record for an already committed object
func (s *BeatService) CreateBeat(ctx context.Context, ownerID, objectID uuid.UUID, thumbnailObjectID *uuid.UUID, title, description string, price float64, beatType models.BeatType) (*models.Beat, error) {
	if price < 0 {
		return nil, errors.New("price must not be negative")
	}
	if beatType != models.BeatTypeAudio && beatType != models.BeatTypeStyle {
		return nil, fmt.Errorf("invalid beat type: %s", beatType)
	}

	beat := &models.Beat{
		OwnerID:           ownerID,
		ObjectID:          objectID,
		ThumbnailObjectID: thumbnailObjectID,
		Title:             title,
		Description:       description,
		Price:             price,
		Type:              beatType,
		IsActive:          true,
	}
	if err := s.db.WithContext(ctx).Create(beat).Error; err != nil {
		return nil, fmt.Errorf("failed to create beat record: %w", err)
	}
	return beat, nil
}

// GetBeatByID looks a beat up by id. Direct-id lookups intentionally ignore
// the IsActive listing flag.
func (s *BeatService) GetBeatByID(ctx context.Context, beatID uuid.UUID) (*models.Beat, error) {
	var beat models.Beat
	if err := s.db.WithContext(ctx).Preload("Object").First(&beat, "id = ?", beatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("beat %s: %w", beatID, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &beat, nil
}

// GetActiveBeats returns active listings, newest first
func (s *BeatService) GetActiveBeats(limit, offset int) ([]models.Beat, int64, error) {
	var beats []models.Beat
	var total int64

	query := s.db.Model(&models.Beat{}).Where("is_active = ?", true)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Preload("Object").Order("created_at DESC").Limit(limit).Offset(offset).Find(&beats).Error; err != nil {
		return nil, 0, err
	}
	return beats, total, nil
}

// GetUserBeats returns all beats owned by a user, including inactive ones
func (s *BeatService) GetUserBeats(ctx context.Context, ownerID uuid.UUID) ([]models.Beat, error) {
	var beats []models.Beat
	err := s.db.WithContext(ctx).Preload("Object").
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&beats).Error
	return beats, err
}

// UpdateBeat applies metadata changes; only the owner or an admin may edit
func (s *BeatService) UpdateBeat(ctx context.Context, beatID, requesterID uuid.UUID, isAdmin bool, updates map[string]interface{}) (*models.Beat, error) {
	beat, err := s.GetBeatByID(ctx, beatID)
	if err != nil {
		return nil, err
	}
	if beat.OwnerID != requesterID && !isAdmin {
		return nil, apperrors.ErrForbidden
	}
	if price, ok := updates["price"].(float64); ok && price < 0 {
		return nil, errors.New("price must not be negative")
	}
	if len(updates) == 0 {
		return beat, nil
	}
	if err := s.db.WithContext(ctx).Model(beat).Updates(updates).Error; err != nil {
		return nil, err
	}
	return beat, nil
}

// DeleteBeat removes a beat and its owned objects. The main object deletion
// must succeed for the delete to count as successful; the thumbnail and the
// catalog row are cleaned up best-effort afterwards.
func (s *BeatService) DeleteBeat(ctx context.Context, beatID, requesterID uuid.UUID, isAdmin bool) error {
	beat, err := s.GetBeatByID(ctx, beatID)
	if err != nil {
		return err
	}
	if beat.OwnerID != requesterID && !isAdmin {
		return apperrors.ErrForbidden
	}

	if err := s.objectStore.Delete(ctx, beat.ObjectID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("failed to delete beat object: %w", err)
	}

	if beat.ThumbnailObjectID != nil {
		if err := s.objectStore.Delete(ctx, *beat.ThumbnailObjectID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("Failed to delete thumbnail object %s for beat %s: %v", *beat.ThumbnailObjectID, beatID, err)
		}
	}

	return s.db.WithContext(ctx).Delete(beat).Error
}

// ProbeAudio reads the beat's object back and extracts duration and waveform
// peaks via ffmpeg. Meant to run in its own goroutine after upload; a failed
// probe just leaves the fields at their zero values.
func (s *BeatService) ProbeAudio(beatID, objectID uuid.UUID, ext string) {
	ctx := context.Background()

	_, stream, err := s.objectStore.Get(ctx, objectID)
	if err != nil {
		log.Printf("[Probe] Cannot open object %s for beat %s: %v", objectID, beatID, err)
		return
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		log.Printf("[Probe] Cannot read object %s for beat %s: %v", objectID, beatID, err)
		return
	}

	result, err := audio.Probe(ctx, data, ext)
	if err != nil {
		log.Printf("[Probe] Probe failed for beat %s: %v", beatID, err)
		return
	}

	waveform, err := json.Marshal(result.Peaks)
	if err != nil {
		return
	}

	if res := s.db.Model(&models.Beat{}).Where("id = ?", beatID).UpdateColumns(map[string]interface{}{
		"duration": result.Duration,
		"waveform": string(waveform),
	}); res.Error != nil {
		log.Printf("[Probe] Cannot save probe result for beat %s: %v", beatID, res.Error)
	}
}

// IncrementDownloads bumps the download counter and last access time.
// Called fire-and-forget off the response path; failures are logged upstream.
func (s *BeatService) IncrementDownloads(beatID uuid.UUID) error {
	return s.touchCounter(beatID, "downloads")
}

// IncrementPlays bumps the play counter and last access time
func (s *BeatService) IncrementPlays(beatID uuid.UUID) error {
	return s.touchCounter(beatID, "plays")
}

// IncrementPurchases bumps the purchase counter
func (s *BeatService) IncrementPurchases(beatID uuid.UUID) error {
	return s.db.Model(&models.Beat{}).Where("id = ?", beatID).
		UpdateColumn("purchases", gorm.Expr("purchases + 1")).Error
}

// IncrementLikes bumps the like counter
func (s *BeatService) IncrementLikes(beatID uuid.UUID) error {
	return s.db.Model(&models.Beat{}).Where("id = ?", beatID).
		UpdateColumn("likes", gorm.Expr("likes + 1")).Error
}

func (s *BeatService) touchCounter(beatID uuid.UUID, column string) error {
	return s.db.Model(&models.Beat{}).Where("id = ?", beatID).
		UpdateColumns(map[string]interface{}{
			column:             gorm.Expr(column + " + 1"),
			"last_accessed_at": time.Now().UTC(),
		}).Error
}

// SetActive toggles the soft-delete listing flag
func (s *BeatService) SetActive(ctx context.Context, beatID, requesterID uuid.UUID, isAdmin bool, active bool) error {
	beat, err := s.GetBeatByID(ctx, beatID)
	if err != nil {
		return err
	}
	if beat.OwnerID != requesterID && !isAdmin {
		return apperrors.ErrForbidden
	}
	return s.db.WithContext(ctx).Model(beat).Update("is_active", active).Error
}
