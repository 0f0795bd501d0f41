package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beatvault/backend/internal/config"
	"github.com/beatvault/backend/internal/models"
	"github.com/beatvault/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type downloadFixture struct {
	db          *gorm.DB
	router      *gin.Engine
	objectStore *services.ObjectStoreService
	beatService *services.BeatService
	purchases   *services.PurchaseService
	owner       *models.User
	buyer       *models.User
	admin       *models.User
	freeBeat    *models.Beat
	paidBeat    *models.Beat
	payload     []byte
}

// identityFromHeader resolves the test identity from the X-Test-User header,
// standing in for the JWT middleware
func identityFromHeader(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetHeader("X-Test-User")
		if username == "" {
			c.Next()
			return
		}
		var user models.User
		if err := db.First(&user, "username = ?", username).Error; err == nil {
			c.Set("userID", user.ID)
			c.Set("isAdmin", user.IsAdmin)
		}
		c.Next()
	}
}

func newDownloadFixture(t *testing.T) *downloadFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.Migrate(db))

	cfg := &config.Config{
		ObjectChunkSize:     8,
		MaxUploadSize:       1 << 20,
		MaxThumbnailSize:    1 << 20,
		PurchasePendingTTL:  30 * time.Minute,
		PurchaseGraceWindow: 2 * time.Minute,
	}

	objectStore := services.NewObjectStoreService(db, cfg)
	beatService := services.NewBeatService(db, cfg, objectStore)
	purchaseService := services.NewPurchaseService(db, cfg, nil)
	downloadService := services.NewDownloadService(purchaseService)
	auditService := services.NewAuditService(db)

	f := &downloadFixture{db: db, objectStore: objectStore, beatService: beatService, purchases: purchaseService}

	mkUser := func(name string, admin bool) *models.User {
		u := &models.User{Username: name, Email: name + "@example.com", Password: "x", DisplayName: name, IsAdmin: admin, IsActive: true}
		require.NoError(t, db.Create(u).Error)
		return u
	}
	f.owner = mkUser("owner", false)
	f.buyer = mkUser("buyer", false)
	f.admin = mkUser("admin", true)

	f.payload = []byte("abcdefghijklmnopqrstuvwxyz0123456789") // 36 bytes
	ctx := context.Background()

	obj, err := objectStore.Put(ctx, bytes.NewReader(f.payload), "track.mp3", "audio/mpeg", &f.owner.ID)
	require.NoError(t, err)
	f.paidBeat, err = beatService.CreateBeat(ctx, f.owner.ID, obj.ID, nil, "Paid: Track<1>", "", 9.99, models.BeatTypeAudio)
	require.NoError(t, err)

	freeObj, err := objectStore.Put(ctx, bytes.NewReader(f.payload), "free.wav", "audio/wav", &f.owner.ID)
	require.NoError(t, err)
	f.freeBeat, err = beatService.CreateBeat(ctx, f.owner.ID, freeObj.ID, nil, "Free Track", "", 0, models.BeatTypeAudio)
	require.NoError(t, err)

	handler := NewDownloadHandler(beatService, objectStore, downloadService, auditService)

	router := gin.New()
	gated := router.Group("/api/v1/beats")
	gated.Use(identityFromHeader(db))
	{
		gated.GET("/:id/download", handler.Download)
		gated.GET("/:id/stream", handler.Stream)
	}
	f.router = router
	return f
}

func (f *downloadFixture) do(t *testing.T, path, asUser string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if asUser != "" {
		req.Header.Set("X-Test-User", asUser)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestDownloadFreeBeatAnonymous(t *testing.T) {
	f := newDownloadFixture(t)

	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/download", f.freeBeat.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, f.payload, w.Body.Bytes())
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprintf("%d", len(f.payload)), w.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="Free Track.wav"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
}

func TestDownloadPaidBeatAnonymousIs401(t *testing.T) {
	f := newDownloadFixture(t)

	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/download", f.paidBeat.ID), "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["message"])
}

func TestDownloadPaidBeatWithoutKeyIs403(t *testing.T) {
	f := newDownloadFixture(t)

	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/download", f.paidBeat.ID), "buyer", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDownloadOwnerAndAdminBypass(t *testing.T) {
	f := newDownloadFixture(t)

	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/download", f.paidBeat.ID), "owner", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, fmt.Sprintf("/api/v1/beats/%s/download", f.paidBeat.ID), "admin", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDownloadFilenameSanitized(t *testing.T) {
	f := newDownloadFixture(t)

	// Title contains < and > and the mime maps to .mp3
	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/download", f.paidBeat.ID), "owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="Paid Track1.mp3"`, w.Header().Get("Content-Disposition"))
}

func TestDownloadDefaultsContentType(t *testing.T) {
	f := newDownloadFixture(t)
	ctx := context.Background()

	// Objects stored without a mime type fall back to octet-stream on the way out
	obj, err := f.objectStore.Put(ctx, bytes.NewReader(f.payload), "raw", "", &f.owner.ID)
	require.NoError(t, err)
	beat, err := f.beatService.CreateBeat(ctx, f.owner.ID, obj.ID, nil, "Untyped", "", 0, models.BeatTypeStyle)
	require.NoError(t, err)

	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/download", beat.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Untyped.bin"`, w.Header().Get("Content-Disposition"))

	w = f.do(t, fmt.Sprintf("/api/v1/beats/%s/stream", beat.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
}

func TestDownloadWithPurchaseKey(t *testing.T) {
	f := newDownloadFixture(t)

	record, _, err := f.purchases.Create(context.Background(), f.buyer.ID, f.paidBeat)
	require.NoError(t, err)

	url := fmt.Sprintf("/api/v1/beats/%s/download?key=%s", f.paidBeat.ID, record.PurchaseKey)
	w := f.do(t, url, "buyer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, f.payload, w.Body.Bytes())

	// The key is spent now; after the grace window it stops authorizing
	require.NoError(t, f.db.Model(&models.PurchaseRecord{}).Where("id = ?", record.ID).
		Update("used_at", time.Now().UTC().Add(-3*time.Minute)).Error)
	w = f.do(t, url, "buyer", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// And it never worked for a different account
	w = f.do(t, url, "admin", nil)
	assert.Equal(t, http.StatusOK, w.Code) // admin bypasses the ledger
}

func TestDownloadUnknownBeat(t *testing.T) {
	f := newDownloadFixture(t)

	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/download", uuid.New()), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, "/api/v1/beats/not-a-uuid/download", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamFullContent(t *testing.T) {
	f := newDownloadFixture(t)

	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/stream", f.freeBeat.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, f.payload, w.Body.Bytes())
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Empty(t, w.Header().Get("Content-Range"))
}

func TestStreamRangeRequest(t *testing.T) {
	f := newDownloadFixture(t)

	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/stream", f.freeBeat.ID), "", map[string]string{
		"Range": "bytes=0-9",
	})
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, f.payload[:10], w.Body.Bytes())
	assert.Equal(t, fmt.Sprintf("bytes 0-9/%d", len(f.payload)), w.Header().Get("Content-Range"))
	assert.Equal(t, "10", w.Header().Get("Content-Length"))
}

func TestStreamRangeVariants(t *testing.T) {
	f := newDownloadFixture(t)
	length := len(f.payload)

	cases := []struct {
		name      string
		rangeHdr  string
		wantBody  string
		wantRange string
	}{
		{"open ended", fmt.Sprintf("bytes=%d-", length-6), string(f.payload[length-6:]), fmt.Sprintf("bytes %d-%d/%d", length-6, length-1, length)},
		{"suffix", "bytes=-4", string(f.payload[length-4:]), fmt.Sprintf("bytes %d-%d/%d", length-4, length-1, length)},
		{"end clamped", fmt.Sprintf("bytes=30-%d", length+100), string(f.payload[30:]), fmt.Sprintf("bytes 30-%d/%d", length-1, length)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/stream", f.freeBeat.ID), "", map[string]string{"Range": tc.rangeHdr})
			require.Equal(t, http.StatusPartialContent, w.Code)
			assert.Equal(t, tc.wantBody, w.Body.String())
			assert.Equal(t, tc.wantRange, w.Header().Get("Content-Range"))
		})
	}
}

func TestStreamMalformedRangeServesFullContent(t *testing.T) {
	f := newDownloadFixture(t)

	for _, hdr := range []string{"bytes=abc-def", "units=0-5", "bytes=1-2,5-9", "bytes=-"} {
		w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/stream", f.freeBeat.ID), "", map[string]string{"Range": hdr})
		assert.Equal(t, http.StatusOK, w.Code, "header %q", hdr)
		assert.Equal(t, f.payload, w.Body.Bytes(), "header %q", hdr)
	}
}

func TestStreamUnsatisfiableRange(t *testing.T) {
	f := newDownloadFixture(t)

	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/stream", f.freeBeat.ID), "", map[string]string{
		"Range": fmt.Sprintf("bytes=%d-", len(f.payload)),
	})
	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, fmt.Sprintf("bytes */%d", len(f.payload)), w.Header().Get("Content-Range"))
}

func TestStreamPaidBeatIsGated(t *testing.T) {
	f := newDownloadFixture(t)

	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/stream", f.paidBeat.ID), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, fmt.Sprintf("/api/v1/beats/%s/stream", f.paidBeat.ID), "buyer", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDownloadIncrementsCounter(t *testing.T) {
	f := newDownloadFixture(t)

	w := f.do(t, fmt.Sprintf("/api/v1/beats/%s/download", f.freeBeat.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The counter bump is fire-and-forget; give the goroutine a moment
	require.Eventually(t, func() bool {
		beat, err := f.beatService.GetBeatByID(context.Background(), f.freeBeat.ID)
		return err == nil && beat.Downloads == 1
	}, 2*time.Second, 10*time.Millisecond)
}
