package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/beatvault/backend/internal/apperrors"
	"github.com/beatvault/backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type beatFixture struct {
	db    *gorm.DB
	store *ObjectStoreService
	svc   *BeatService
	owner *models.User
	other *models.User
}

func newBeatFixture(t *testing.T) *beatFixture {
	t.Helper()
	db := newTestDB(t)
	cfg := newTestConfig()
	store := NewObjectStoreService(db, cfg)
	return &beatFixture{
		db:    db,
		store: store,
		svc:   NewBeatService(db, cfg, store),
		owner: createTestUser(t, db, "owner", false),
		other: createTestUser(t, db, "other", false),
	}
}

func (f *beatFixture) putObject(t *testing.T, data string) *models.StoredObject {
	t.Helper()
	obj, err := f.store.Put(context.Background(), bytes.NewReader([]byte(data)), "x.mp3", "audio/mpeg", &f.owner.ID)
	require.NoError(t, err)
	return obj
}

func TestCreateBeatValidation(t *testing.T) {
	f := newBeatFixture(t)
	ctx := context.Background()
	obj := f.putObject(t, "data")

	_, err := f.svc.CreateBeat(ctx, f.owner.ID, obj.ID, nil, "B", "", -1, models.BeatTypeAudio)
	assert.Error(t, err)

	_, err = f.svc.CreateBeat(ctx, f.owner.ID, obj.ID, nil, "B", "", 1, models.BeatType("video"))
	assert.Error(t, err)

	beat, err := f.svc.CreateBeat(ctx, f.owner.ID, obj.ID, nil, "B", "desc", 0, models.BeatTypeStyle)
	require.NoError(t, err)
	assert.True(t, beat.IsActive)
	assert.Equal(t, models.BeatTypeStyle, beat.Type)
}

func TestGetBeatByIDIgnoresActiveFlag(t *testing.T) {
	f := newBeatFixture(t)
	ctx := context.Background()
	obj := f.putObject(t, "data")

	beat, err := f.svc.CreateBeat(ctx, f.owner.ID, obj.ID, nil, "B", "", 1, models.BeatTypeAudio)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetActive(ctx, beat.ID, f.owner.ID, false, false))

	// Direct lookups resolve inactive beats; only listings filter them
	got, err := f.svc.GetBeatByID(ctx, beat.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.Object)
	assert.Equal(t, obj.ID, got.Object.ID)

	beats, total, err := f.svc.GetActiveBeats(10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, beats)
}

func TestUpdateBeatPermissions(t *testing.T) {
	f := newBeatFixture(t)
	ctx := context.Background()
	obj := f.putObject(t, "data")

	beat, err := f.svc.CreateBeat(ctx, f.owner.ID, obj.ID, nil, "B", "", 1, models.BeatTypeAudio)
	require.NoError(t, err)

	_, err = f.svc.UpdateBeat(ctx, beat.ID, f.other.ID, false, map[string]interface{}{"title": "hacked"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.UpdateBeat(ctx, beat.ID, f.owner.ID, false, map[string]interface{}{"price": -5.0})
	assert.Error(t, err)

	updated, err := f.svc.UpdateBeat(ctx, beat.ID, f.other.ID, true, map[string]interface{}{"title": "moderated"})
	require.NoError(t, err)
	assert.Equal(t, "moderated", updated.Title)
}

func TestDeleteBeatCascades(t *testing.T) {
	f := newBeatFixture(t)
	ctx := context.Background()
	obj := f.putObject(t, "main object")
	thumb := f.putObject(t, "thumb")

	beat, err := f.svc.CreateBeat(ctx, f.owner.ID, obj.ID, &thumb.ID, "B", "", 1, models.BeatTypeAudio)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteBeat(ctx, beat.ID, f.other.ID, false), apperrors.ErrForbidden)

	require.NoError(t, f.svc.DeleteBeat(ctx, beat.ID, f.owner.ID, false))

	_, err = f.svc.GetBeatByID(ctx, beat.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.store.GetMetadata(ctx, obj.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.store.GetMetadata(ctx, thumb.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCounters(t *testing.T) {
	f := newBeatFixture(t)
	ctx := context.Background()
	obj := f.putObject(t, "data")

	beat, err := f.svc.CreateBeat(ctx, f.owner.ID, obj.ID, nil, "B", "", 1, models.BeatTypeAudio)
	require.NoError(t, err)

	require.NoError(t, f.svc.IncrementDownloads(beat.ID))
	require.NoError(t, f.svc.IncrementDownloads(beat.ID))
	require.NoError(t, f.svc.IncrementPlays(beat.ID))
	require.NoError(t, f.svc.IncrementPurchases(beat.ID))
	require.NoError(t, f.svc.IncrementLikes(beat.ID))

	got, err := f.svc.GetBeatByID(ctx, beat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Downloads)
	assert.Equal(t, int64(1), got.Plays)
	assert.Equal(t, int64(1), got.Purchases)
	assert.Equal(t, int64(1), got.Likes)
	assert.NotNil(t, got.LastAccessedAt)
}

func TestCountersMissingBeatIsNoError(t *testing.T) {
	f := newBeatFixture(t)

	// Fire-and-forget increments on a vanished beat must not error
	assert.NoError(t, f.svc.IncrementDownloads(uuid.New()))
	assert.NoError(t, f.svc.IncrementPlays(uuid.New()))
}
