package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beatvault/backend/internal/apperrors"
	"github.com/beatvault/backend/internal/services"
	"github.com/beatvault/backend/pkg/validation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DownloadHandler struct {
	beatService     *services.BeatService
	objectStore     *services.ObjectStoreService
	downloadService *services.DownloadService
	auditService    *services.AuditService
}

func NewDownloadHandler(beatService *services.BeatService, objectStore *services.ObjectStoreService, downloadService *services.DownloadService, auditService *services.AuditService) *DownloadHandler {
	return &DownloadHandler{
		beatService:     beatService,
		objectStore:     objectStore,
		downloadService: downloadService,
		auditService:    auditService,
	}
}

// TokenFromQuery copies a token query param into the Authorization header so
// <audio src="/stream?token=xxx"> works with the standard auth middleware
func TokenFromQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			token := c.Query("token")
			if token != "" {
				c.Request.Header.Set("Authorization", "Bearer "+token)
			}
		}
		c.Next()
	}
}

// Download serves the full beat file as an attachment
// GET /beats/:id/download?key=xxx
func (h *DownloadHandler) Download(c *gin.Context) {
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

	requester := requesterFromContext(c)
	purchaseKey := c.Query("key")

	if err := h.downloadService.Authorize(c.Request.Context(), beat, requester, purchaseKey); err != nil {
		h.logDenied(c, beatID, requester, err)
		failFromError(c, err)
		return
	}

	obj, stream, err := h.objectStore.Get(c.Request.Context(), beat.ObjectID)
	if err != nil {
		log.Printf("[Download] Cannot open object %s for beat %s: %v", beat.ObjectID, beatID, err)
		failFromError(c, err)
		return
	}
	defer stream.Close()

	filename := downloadFilename(beat.Title, obj.MimeType)

	c.Header("Content-Type", contentType(obj.MimeType))
	c.Header("Content-Length", strconv.FormatInt(obj.Length, 10))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Accept-Ranges", "bytes")

	go func() {
		if err := h.beatService.IncrementDownloads(beatID); err != nil {
			log.Printf("[Download] Failed to increment download count for beat %s: %v", beatID, err)
		}
	}()

	c.Writer.WriteHeader(http.StatusOK)
	io.Copy(c.Writer, stream) //nolint:errcheck
}

// Stream serves beat audio with Range support for seeking
// GET /beats/:id/stream?key=xxx
func (h *DownloadHandler) Stream(c *gin.Context) {
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

	requester := requesterFromContext(c)
	purchaseKey := c.Query("key")

	if err := h.downloadService.Authorize(c.Request.Context(), beat, requester, purchaseKey); err != nil {
		h.logDenied(c, beatID, requester, err)
		failFromError(c, err)
		return
	}

	length := int64(0)
	if beat.Object != nil {
		length = beat.Object.Length
	}

	rangeHeader := c.GetHeader("Range")
	start, end, hasRange := parseRangeHeader(rangeHeader, length)

	// Count a play only on the initial request, not on seek ranges
	if rangeHeader == "" || rangeHeader == "bytes=0-" {
		go func() {
			if err := h.beatService.IncrementPlays(beatID); err != nil {
				log.Printf("[Stream] Failed to increment play count for beat %s: %v", beatID, err)
			}
		}()
	}

	var startPtr, endPtr *int64
	if hasRange {
		startPtr, endPtr = &start, &end
	}

	obj, stream, effStart, effEnd, err := h.objectStore.StreamRange(c.Request.Context(), beat.ObjectID, startPtr, endPtr)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidRange) {
			c.Header("Content-Range", fmt.Sprintf("bytes */%d", length))
			fail(c, http.StatusRequestedRangeNotSatisfiable, "Requested range not satisfiable")
			return
		}
		failFromError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", contentType(obj.MimeType))
	c.Header("Accept-Ranges", "bytes")

	if hasRange {
		c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", effStart, effEnd, obj.Length))
		c.Header("Content-Length", strconv.FormatInt(effEnd-effStart+1, 10))
		c.Writer.WriteHeader(http.StatusPartialContent)
	} else {
		c.Header("Content-Length", strconv.FormatInt(obj.Length, 10))
		c.Writer.WriteHeader(http.StatusOK)
	}

	io.Copy(c.Writer, stream) //nolint:errcheck
}

// Thumbnail serves a beat's thumbnail image. Thumbnails are never
// purchase-gated.
// GET /beats/:id/thumbnail
func (h *DownloadHandler) Thumbnail(c *gin.Context) {
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
	if beat.ThumbnailObjectID == nil {
		fail(c, http.StatusNotFound, "Not found")
		return
	}

	obj, stream, err := h.objectStore.Get(c.Request.Context(), *beat.ThumbnailObjectID)
	if err != nil {
		failFromError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", contentType(obj.MimeType))
	c.Header("Content-Length", strconv.FormatInt(obj.Length, 10))
	c.Header("Cache-Control", "public, max-age=86400")

	c.Writer.WriteHeader(http.StatusOK)
	io.Copy(c.Writer, stream) //nolint:errcheck
}

// logDenied records purchase-gated denials for abuse review
func (h *DownloadHandler) logDenied(c *gin.Context, beatID uuid.UUID, requester *services.Requester, denyErr error) {
	var actorID *uuid.UUID
	if requester != nil {
		id := requester.ID
		actorID = &id
	}
	ip := c.ClientIP()
	go func() {
		if err := h.auditService.LogAction(actorID, "download_denied", "beat", beatID, map[string]interface{}{
			"reason": denyErr.Error(),
		}, ip); err != nil {
			log.Printf("[Download] Audit log failed: %v", err)
		}
	}()
}

// parseRangeHeader understands single-range bytes=a-b, bytes=a- and bytes=-n
// forms. Anything else falls back to full content. Returned bounds are
// inclusive and unclamped except for the suffix form.
func parseRangeHeader(header string, length int64) (int64, int64, bool) {
	if header == "" || !strings.HasPrefix(header, "bytes=") {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		// Multi-range requests are served as full content
		return 0, 0, false
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	startStr, endStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	// Suffix form: last n bytes
	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		start := length - n
		if start < 0 {
			start = 0
		}
		return start, length - 1, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}

	end := length - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, false
		}
	}

	return start, end, true
}

// downloadFilename derives the attachment filename from the beat title and
// the stored mime type. The mime-inferred extension is only appended when the
// sanitized title does not already carry one.
func downloadFilename(title, mimeType string) string {
	name := validation.SanitizeFilename(title)
	if name == "" {
		name = "download"
	}
	if filepath.Ext(name) == "" {
		name += validation.ExtensionForMime(mimeType)
	}
	return name
}

// contentType falls back to application/octet-stream for objects stored
// without a mime type
func contentType(mimeType string) string {
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
