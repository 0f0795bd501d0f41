package services

import (
	"context"

	"github.com/beatvault/backend/internal/apperrors"
	"github.com/beatvault/backend/internal/models"
	"github.com/google/uuid"
)

// Requester is the resolved identity off the request context. A nil
// *Requester means the request carried no authenticated identity.
type Requester struct {
	ID      uuid.UUID
	IsAdmin bool
}

// purchaseLedger is the slice of the ledger the authorizer needs
type purchaseLedger interface {
	Consume(ctx context.Context, purchaseKey string, userID, beatID uuid.UUID) error
}

// DownloadService decides whether a download or stream of a beat may proceed.
// The decision is computed per request and never persisted.
type DownloadService struct {
	ledger purchaseLedger
}

func NewDownloadService(ledger purchaseLedger) *DownloadService {
	return &DownloadService{ledger: ledger}
}

// Authorize evaluates the access checks in fixed order, short-circuiting:
// free beats are open to anyone, then authentication, then owner/admin
// privilege, then the purchase key against the ledger. Consuming the key
// happens here, before any byte is streamed.
func (s *DownloadService) Authorize(ctx context.Context, beat *models.Beat, requester *Requester, purchaseKey string) error {
	if beat.Price == 0 {
		return nil
	}
	if requester == nil {
		return apperrors.ErrAuthRequired
	}
	if requester.ID == beat.OwnerID || requester.IsAdmin {
		return nil
	}
	if purchaseKey == "" {
		return apperrors.ErrPurchaseKeyRequired
	}
	return s.ledger.Consume(ctx, purchaseKey, requester.ID, beat.ID)
}
