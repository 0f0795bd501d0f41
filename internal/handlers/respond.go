package handlers

import (
	"errors"
	"net/http"

	"github.com/beatvault/backend/internal/apperrors"
	"github.com/beatvault/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// fail writes the uniform error envelope
func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

// failFromError translates service errors to HTTP statuses. Unknown errors
// become a generic 500 so internals never leak to clients.
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		fail(c, http.StatusNotFound, "Not found")
	case errors.Is(err, apperrors.ErrAuthRequired):
		fail(c, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, apperrors.ErrPurchaseKeyRequired):
		fail(c, http.StatusForbidden, "Purchase key required")
	case errors.Is(err, apperrors.ErrInvalidOrExpiredKey):
		fail(c, http.StatusForbidden, "Invalid or expired purchase key")
	case errors.Is(err, apperrors.ErrForbidden):
		fail(c, http.StatusForbidden, "Not authorized")
	case errors.Is(err, apperrors.ErrInvalidRange):
		fail(c, http.StatusRequestedRangeNotSatisfiable, "Requested range not satisfiable")
	case errors.Is(err, apperrors.ErrStorageWrite), errors.Is(err, apperrors.ErrStorageRead):
		fail(c, http.StatusInternalServerError, "Storage failure")
	default:
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

// requesterFromContext builds the identity for the download authorizer.
// Returns nil when the request carried no authenticated user.
func requesterFromContext(c *gin.Context) *services.Requester {
	userIDInterface, exists := c.Get("userID")
	if !exists {
		return nil
	}
	userID, ok := userIDInterface.(uuid.UUID)
	if !ok {
		return nil
	}
	return &services.Requester{
		ID:      userID,
		IsAdmin: c.GetBool("isAdmin"),
	}
}

// mustUserID reads the authenticated user id set by the Auth middleware
func mustUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDInterface, exists := c.Get("userID")
	if !exists {
		fail(c, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	userID, ok := userIDInterface.(uuid.UUID)
	if !ok {
		fail(c, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	return userID, true
}
