package apperrors

import "errors"

var (
	// ErrNotFound covers absent objects, beats and purchase records.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRange is returned when a requested byte range starts past the
	// end of the object or start exceeds end.
	ErrInvalidRange = errors.New("invalid byte range")

	// ErrAuthRequired means the asset is paid and the request carried no
	// authenticated identity.
	ErrAuthRequired = errors.New("authentication required")

	// ErrPurchaseKeyRequired means the requester is authenticated but is
	// neither the owner nor an admin and supplied no purchase key.
	ErrPurchaseKeyRequired = errors.New("purchase key required")

	// ErrInvalidOrExpiredKey means the supplied purchase key matched no
	// pending record within its TTL and no used record within the grace window.
	ErrInvalidOrExpiredKey = errors.New("invalid or expired purchase key")

	// ErrForbidden covers ownership checks outside the purchase flow.
	ErrForbidden = errors.New("forbidden")

	// ErrStorageWrite wraps I/O failures while persisting an object.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrStorageRead wraps failures while streaming an object back.
	ErrStorageRead = errors.New("storage read failed")
)
