package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/beatvault/backend/internal/config"
	"github.com/beatvault/backend/internal/models"
	"github.com/beatvault/backend/internal/services"
	"github.com/beatvault/backend/pkg/validation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BeatHandler struct {
	beatService    *services.BeatService
	objectStore    *services.ObjectStoreService
	archiveService *services.ArchiveService
	auditService   *services.AuditService
	cfg            *config.Config
}

func NewBeatHandler(beatService *services.BeatService, objectStore *services.ObjectStoreService, archiveService *services.ArchiveService, auditService *services.AuditService, cfg *config.Config) *BeatHandler {
	return &BeatHandler{
		beatService:    beatService,
		objectStore:    objectStore,
		archiveService: archiveService,
		auditService:   auditService,
		cfg:            cfg,
	}
}

// Upload handles beat creation with its audio file and optional thumbnail
// POST /beats
// Multipart form: file (required), thumbnail, title (required), description, price, type
func (h *BeatHandler) Upload(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	// Reject oversized bodies before buffering the form
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadSize+h.cfg.MaxThumbnailSize+1024*1024)

	title := c.PostForm("title")
	if title == "" {
		fail(c, http.StatusBadRequest, "title is required")
		return
	}
	description := c.PostForm("description")

	price := 0.0
	if priceStr := c.PostForm("price"); priceStr != "" {
		parsed, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || parsed < 0 {
			fail(c, http.StatusBadRequest, "price must be a non-negative number")
			return
		}
		price = parsed
	}

	beatType := models.BeatType(c.PostForm("type"))
	if beatType == "" {
		beatType = models.BeatTypeAudio
	}
	if beatType != models.BeatTypeAudio && beatType != models.BeatTypeStyle {
		fail(c, http.StatusBadRequest, "type must be audio or style")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > h.cfg.MaxUploadSize {
		fail(c, http.StatusBadRequest, fmt.Sprintf("file exceeds the %d MB upload limit", h.cfg.MaxUploadSize/(1024*1024)))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	// The file streams straight into chunk rows; it is never buffered whole
	obj, err := h.objectStore.Put(c.Request.Context(), file, validation.SanitizeFilename(header.Filename), mimeType, &userID)
	if err != nil {
		log.Printf("[Upload] Object write failed for user %s: %v", userID, err)
		failFromError(c, err)
		return
	}

	var thumbnailObjectID *uuid.UUID
	if thumbFile, thumbHeader, err := c.Request.FormFile("thumbnail"); err == nil {
		defer thumbFile.Close()
		if thumbHeader.Size > h.cfg.MaxThumbnailSize {
			h.cleanupObject(obj.ID)
			fail(c, http.StatusBadRequest, "thumbnail too large")
			return
		}
		thumbMime := thumbHeader.Header.Get("Content-Type")
		thumbObj, err := h.objectStore.Put(c.Request.Context(), thumbFile, validation.SanitizeFilename(thumbHeader.Filename), thumbMime, &userID)
		if err != nil {
			log.Printf("[Upload] Thumbnail write failed for user %s: %v", userID, err)
			h.cleanupObject(obj.ID)
			failFromError(c, err)
			return
		}
		thumbnailObjectID = &thumbObj.ID
	}

	beat, err := h.beatService.CreateBeat(c.Request.Context(), userID, obj.ID, thumbnailObjectID, title, description, price, beatType)
	if err != nil {
		h.cleanupObject(obj.ID)
		if thumbnailObjectID != nil {
			h.cleanupObject(*thumbnailObjectID)
		}
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	if h.archiveService != nil {
		go h.archiveService.MirrorObject(context.Background(), obj.ID)
	}

	if beatType == models.BeatTypeAudio {
		go h.beatService.ProbeAudio(beat.ID, obj.ID, filepath.Ext(header.Filename))
	}

	ip := c.ClientIP()
	go func() {
		if err := h.auditService.LogAction(&userID, "beat_upload", "beat", beat.ID, map[string]interface{}{
			"title": beat.Title,
			"size":  obj.Length,
		}, ip); err != nil {
			log.Printf("[Upload] Audit log failed: %v", err)
		}
	}()

	c.JSON(http.StatusCreated, beatResponse(beat))
}

// cleanupObject removes an orphaned object after a failed upload step
func (h *BeatHandler) cleanupObject(objectID uuid.UUID) {
	if err := h.objectStore.Delete(context.Background(), objectID); err != nil {
		log.Printf("[Upload] Failed to clean up orphaned object %s: %v", objectID, err)
	}
}

// List returns active beats, newest first
// GET /beats?page=1&limit=20
func (h *BeatHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	beats, total, err := h.beatService.GetActiveBeats(limit, offset)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to retrieve beats")
		return
	}

	beatList := make([]gin.H, len(beats))
	for i := range beats {
		beatList[i] = beatResponse(&beats[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"beats": beatList,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// Get returns a single beat by id. Inactive beats resolve too; listing
// visibility and direct lookup are separate concerns.
// GET /beats/:id
func (h *BeatHandler) Get(c *gin.Context) {
	beatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid beat ID")
		return
	}

	beat, err := h.beatService.GetBeatByID(c.Request.Context(), beatID)
	if err != nil {
		failFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, beatResponse(beat))
}

// MyBeats lists the authenticated user's own beats, including inactive ones
// GET /user/beats
func (h *BeatHandler) MyBeats(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	beats, err := h.beatService.GetUserBeats(c.Request.Context(), userID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to retrieve beats")
		return
	}

	beatList := make([]gin.H, len(beats))
	for i := range beats {
		beatList[i] = beatResponse(&beats[i])
	}

	c.JSON(http.StatusOK, gin.H{"beats": beatList})
}

// Update edits beat metadata; owner or admin only
// PUT /beats/:id
func (h *BeatHandler) Update(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	beatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid beat ID")
		return
	}

	var req struct {
		Title       *string  `json:"title"`
		Description *string  `json:"description"`
		Price       *float64 `json:"price"`
		IsActive    *bool    `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	beat, err := h.beatService.UpdateBeat(c.Request.Context(), beatID, userID, c.GetBool("isAdmin"), updates)
	if err != nil {
		failFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, beatResponse(beat))
}

// Delete removes a beat and its stored objects
// DELETE /beats/:id
func (h *BeatHandler) Delete(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	beatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid beat ID")
		return
	}

	beat, err := h.beatService.GetBeatByID(c.Request.Context(), beatID)
	if err != nil {
		failFromError(c, err)
		return
	}
	objectID := beat.ObjectID

	if err := h.beatService.DeleteBeat(c.Request.Context(), beatID, userID, c.GetBool("isAdmin")); err != nil {
		failFromError(c, err)
		return
	}

	if h.archiveService != nil {
		go h.archiveService.PurgeObject(context.Background(), objectID)
	}

	ip := c.ClientIP()
	go func() {
		if err := h.auditService.LogAction(&userID, "beat_delete", "beat", beatID, nil, ip); err != nil {
			log.Printf("[Delete] Audit log failed: %v", err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"message": "beat deleted successfully", "id": beatID})
}

// Like bumps the like counter. No per-user dedup, matching play counting.
// POST /beats/:id/like
func (h *BeatHandler) Like(c *gin.Context) {
	beatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid beat ID")
		return
	}

	if _, err := h.beatService.GetBeatByID(c.Request.Context(), beatID); err != nil {
		failFromError(c, err)
		return
	}

	go func() {
		if err := h.beatService.IncrementLikes(beatID); err != nil {
			log.Printf("[Like] Failed to increment likes for beat %s: %v", beatID, err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"message": "liked"})
}

// beatResponse is the shared beat JSON shape
func beatResponse(beat *models.Beat) gin.H {
	resp := gin.H{
		"id":          beat.ID,
		"owner_id":    beat.OwnerID,
		"title":       beat.Title,
		"description": beat.Description,
		"price":       beat.Price,
		"type":        beat.Type,
		"is_active":   beat.IsActive,
		"is_free":     beat.Price == 0,
		"duration":    beat.Duration,
		"downloads":   beat.Downloads,
		"plays":       beat.Plays,
		"purchases":   beat.Purchases,
		"likes":       beat.Likes,
		"created_at":  beat.CreatedAt,
		"updated_at":  beat.UpdatedAt,
	}
	if beat.Object != nil {
		resp["filename"] = beat.Object.Filename
		resp["mime_type"] = beat.Object.MimeType
		resp["size_bytes"] = beat.Object.Length
	}
	if beat.ThumbnailObjectID != nil {
		resp["thumbnail_url"] = fmt.Sprintf("/api/v1/objects/%s/thumbnail", beat.ID)
	}
	return resp
}
