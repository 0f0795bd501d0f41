package services

import (
	"github.com/beatvault/backend/internal/models"
)

// PaymentProvider defines the interface for payment providers
type PaymentProvider interface {
	// CreateCheckout creates a checkout session and returns the checkout URL
	CreateCheckout(purchase *models.PurchaseRecord, beat *models.Beat, user *models.User) (checkoutURL string, err error)

	// CheckPayment checks whether the provider has completed the payment
	CheckPayment(purchase *models.PurchaseRecord) bool

	// GetProviderName returns the name of the provider
	GetProviderName() string
}
