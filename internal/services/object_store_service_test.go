package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/beatvault/backend/internal/apperrors"
	"github.com/beatvault/backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newObjectStore(t *testing.T) (*ObjectStoreService, func() int64) {
	db := newTestDB(t)
	store := NewObjectStoreService(db, newTestConfig())
	chunkCount := func() int64 {
		var n int64
		require.NoError(t, db.Model(&models.ObjectChunk{}).Count(&n).Error)
		return n
	}
	return store, chunkCount
}

func TestPutAndGetRoundtrip(t *testing.T) {
	store, _ := newObjectStore(t)
	ctx := context.Background()

	payload := []byte("the quick brown fox jumps over the lazy dog")
	obj, err := store.Put(ctx, bytes.NewReader(payload), "fox.mp3", "audio/mpeg", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), obj.Length)
	assert.Equal(t, "fox.mp3", obj.Filename)

	got, stream, err := store.Get(ctx, obj.ID)
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, obj.ID, got.ID)
}

func TestPutEmptyObject(t *testing.T) {
	store, chunkCount := newObjectStore(t)
	ctx := context.Background()

	obj, err := store.Put(ctx, bytes.NewReader(nil), "empty.bin", "application/octet-stream", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), obj.Length)
	assert.Equal(t, int64(0), chunkCount())
}

func TestPutChunkBoundaries(t *testing.T) {
	store, chunkCount := newObjectStore(t)
	ctx := context.Background()

	// 20 bytes over 8-byte chunks: 8 + 8 + 4
	payload := []byte("01234567890123456789")
	obj, err := store.Put(ctx, bytes.NewReader(payload), "b.bin", "application/octet-stream", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(20), obj.Length)
	assert.Equal(t, int64(3), chunkCount())
}

type failingReader struct {
	data []byte
	pos  int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, errors.New("connection reset")
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func TestPutAbortLeavesNoTrace(t *testing.T) {
	store, chunkCount := newObjectStore(t)
	ctx := context.Background()

	// Enough data to commit several chunks before the reader fails
	r := &failingReader{data: bytes.Repeat([]byte("x"), 40)}
	_, err := store.Put(ctx, r, "broken.mp3", "audio/mpeg", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStorageWrite)

	// The rolled back transaction must leave neither metadata nor chunks
	var objects int64
	require.NoError(t, store.db.Model(&models.StoredObject{}).Count(&objects).Error)
	assert.Equal(t, int64(0), objects)
	assert.Equal(t, int64(0), chunkCount())
}

func TestGetMetadataNotFound(t *testing.T) {
	store, _ := newObjectStore(t)

	_, err := store.GetMetadata(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStreamRange(t *testing.T) {
	store, _ := newObjectStore(t)
	ctx := context.Background()

	payload := []byte("abcdefghijklmnopqrstuvwxyz") // 26 bytes, chunks of 8
	obj, err := store.Put(ctx, bytes.NewReader(payload), "alpha.bin", "application/octet-stream", nil)
	require.NoError(t, err)

	ptr := func(v int64) *int64 { return &v }

	tests := []struct {
		name     string
		start    *int64
		end      *int64
		want     string
		effStart int64
		effEnd   int64
	}{
		{"full object", nil, nil, "abcdefghijklmnopqrstuvwxyz", 0, 25},
		{"within one chunk", ptr(1), ptr(3), "bcd", 1, 3},
		{"across chunks", ptr(6), ptr(17), "ghijklmnopqr", 6, 17},
		{"open ended", ptr(20), nil, "uvwxyz", 20, 25},
		{"end clamped to length", ptr(24), ptr(1000), "yz", 24, 25},
		{"single byte", ptr(25), ptr(25), "z", 25, 25},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, stream, effStart, effEnd, err := store.StreamRange(ctx, obj.ID, tc.start, tc.end)
			require.NoError(t, err)
			defer stream.Close()

			assert.Equal(t, tc.effStart, effStart)
			assert.Equal(t, tc.effEnd, effEnd)

			data, err := io.ReadAll(stream)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(data))
		})
	}
}

func TestStreamRangeInvalid(t *testing.T) {
	store, _ := newObjectStore(t)
	ctx := context.Background()

	obj, err := store.Put(ctx, bytes.NewReader([]byte("0123456789")), "n.bin", "application/octet-stream", nil)
	require.NoError(t, err)

	ptr := func(v int64) *int64 { return &v }

	cases := []struct {
		name  string
		start *int64
		end   *int64
	}{
		{"start past end of object", ptr(10), nil},
		{"start way past end", ptr(100), ptr(200)},
		{"start after end", ptr(5), ptr(2)},
		{"negative start", ptr(-1), ptr(4)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, _, err := store.StreamRange(ctx, obj.ID, tc.start, tc.end)
			assert.ErrorIs(t, err, apperrors.ErrInvalidRange)
		})
	}
}

func TestReaderAfterClose(t *testing.T) {
	store, _ := newObjectStore(t)
	ctx := context.Background()

	obj, err := store.Put(ctx, bytes.NewReader([]byte("0123456789")), "c.bin", "application/octet-stream", nil)
	require.NoError(t, err)

	_, stream, err := store.Get(ctx, obj.ID)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	_, err = stream.Read(make([]byte, 4))
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	store, chunkCount := newObjectStore(t)
	ctx := context.Background()

	obj, err := store.Put(ctx, bytes.NewReader(bytes.Repeat([]byte("y"), 30)), "d.bin", "application/octet-stream", nil)
	require.NoError(t, err)
	require.Equal(t, int64(4), chunkCount())

	require.NoError(t, store.Delete(ctx, obj.ID))
	assert.Equal(t, int64(0), chunkCount())

	_, err = store.GetMetadata(ctx, obj.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	err = store.Delete(ctx, obj.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
