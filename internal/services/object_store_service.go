package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/beatvault/backend/internal/apperrors"
	"github.com/beatvault/backend/internal/config"
	"github.com/beatvault/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ObjectStoreService persists binary blobs as ordered fixed-size chunk rows.
// An object becomes visible only when its write transaction commits, so an
// interrupted upload leaves no retrievable trace.
type ObjectStoreService struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewObjectStoreService(db *gorm.DB, cfg *config.Config) *ObjectStoreService {
	return &ObjectStoreService{db: db, cfg: cfg}
}

// Put consumes r until exhaustion and writes it as an ordered chunk sequence.
// Length is the number of bytes actually read. Any read or write failure
// rolls the whole object back and returns ErrStorageWrite.
func (s *ObjectStoreService) Put(ctx context.Context, r io.Reader, filename, mimeType string, uploaderID *uuid.UUID) (*models.StoredObject, error) {
	obj := &models.StoredObject{
		Filename:   filename,
		MimeType:   mimeType,
		ChunkSize:  s.cfg.ObjectChunkSize,
		UploaderID: uploaderID,
		UploadedAt: time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(obj).Error; err != nil {
			return err
		}

		buf := make([]byte, s.cfg.ObjectChunkSize)
		var total int64
		seq := 0
		for {
			n, readErr := io.ReadFull(r, buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunk := &models.ObjectChunk{ObjectID: obj.ID, Seq: seq, Data: data}
				if err := tx.Create(chunk).Error; err != nil {
					return err
				}
				seq++
				total += int64(n)
			}
			if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
				break
			}
			if readErr != nil {
				return readErr
			}
		}

		obj.Length = total
		return tx.Model(obj).Update("length", total).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageWrite, err)
	}

	return obj, nil
}

// Get returns the object record and a stream over its full content
func (s *ObjectStoreService) Get(ctx context.Context, objectID uuid.UUID) (*models.StoredObject, io.ReadCloser, error) {
	obj, err := s.GetMetadata(ctx, objectID)
	if err != nil {
		return nil, nil, err
	}
	return obj, s.newReader(ctx, obj, 0, obj.Length-1), nil
}

// GetMetadata returns the object record without opening a stream
func (s *ObjectStoreService) GetMetadata(ctx context.Context, objectID uuid.UUID) (*models.StoredObject, error) {
	var obj models.StoredObject
	if err := s.db.WithContext(ctx).First(&obj, "id = ?", objectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("object %s: %w", objectID, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &obj, nil
}

// StreamRange returns a stream over [start, end] (inclusive). Nil start means
// the whole object; a nil or out-of-bounds end is clamped to length-1.
// A start beyond the last byte, or past end, is ErrInvalidRange.
func (s *ObjectStoreService) StreamRange(ctx context.Context, objectID uuid.UUID, start, end *int64) (*models.StoredObject, io.ReadCloser, int64, int64, error) {
	obj, err := s.GetMetadata(ctx, objectID)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	effStart := int64(0)
	effEnd := obj.Length - 1

	if start != nil {
		effStart = *start
		if end != nil && *end < effEnd {
			effEnd = *end
		}
		if effStart > obj.Length-1 || effStart > effEnd || effStart < 0 {
			return nil, nil, 0, 0, fmt.Errorf("bytes %d-%d of %d: %w", effStart, effEnd, obj.Length, apperrors.ErrInvalidRange)
		}
	}

	return obj, s.newReader(ctx, obj, effStart, effEnd), effStart, effEnd, nil
}

// Delete removes the object record and all of its chunks together.
// Returns ErrNotFound when no object exists with that id.
func (s *ObjectStoreService) Delete(ctx context.Context, objectID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.StoredObject{}, "id = ?", objectID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("object %s: %w", objectID, apperrors.ErrNotFound)
		}
		return tx.Where("object_id = ?", objectID).Delete(&models.ObjectChunk{}).Error
	})
}

func (s *ObjectStoreService) newReader(ctx context.Context, obj *models.StoredObject, start, end int64) *objectReader {
	return &objectReader{
		db:        s.db.WithContext(ctx),
		objectID:  obj.ID,
		chunkSize: int64(obj.ChunkSize),
		pos:       start,
		end:       end,
	}
}

// objectReader streams chunk rows lazily, one query per chunk, so a closed or
// abandoned reader holds no database resources between reads.
type objectReader struct {
	db        *gorm.DB
	objectID  uuid.UUID
	chunkSize int64
	pos       int64 // next absolute byte offset
	end       int64 // inclusive last byte
	buf       []byte
	closed    bool
}

func (r *objectReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, errors.New("object reader closed")
	}
	if len(r.buf) == 0 {
		if r.pos > r.end {
			return 0, io.EOF
		}
		seq := int(r.pos / r.chunkSize)
		var chunk models.ObjectChunk
		if err := r.db.Where("object_id = ? AND seq = ?", r.objectID, seq).First(&chunk).Error; err != nil {
			return 0, fmt.Errorf("%w: chunk %d of object %s: %v", apperrors.ErrStorageRead, seq, r.objectID, err)
		}
		offset := r.pos - int64(seq)*r.chunkSize
		if offset >= int64(len(chunk.Data)) {
			return 0, fmt.Errorf("%w: chunk %d of object %s shorter than expected", apperrors.ErrStorageRead, seq, r.objectID)
		}
		data := chunk.Data[offset:]
		if remaining := r.end - r.pos + 1; int64(len(data)) > remaining {
			data = data[:remaining]
		}
		r.buf = data
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	r.pos += int64(n)
	return n, nil
}

func (r *objectReader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}
