package services

import (
	"fmt"

	"github.com/beatvault/backend/internal/config"
	"github.com/beatvault/backend/internal/models"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"gorm.io/gorm"
)

// StripeProvider implements PaymentProvider for Stripe
type StripeProvider struct {
	cfg *config.Config
	db  *gorm.DB
}

// NewStripeProvider creates a new Stripe payment provider
func NewStripeProvider(cfg *config.Config, db *gorm.DB) *StripeProvider {
	stripe.Key = cfg.StripeSecretKey
	return &StripeProvider{
		cfg: cfg,
		db:  db,
	}
}

// GetProviderName returns "stripe"
func (p *StripeProvider) GetProviderName() string {
	return "stripe"
}

// CreateCheckout creates a Stripe checkout session for a beat purchase
func (p *StripeProvider) CreateCheckout(purchase *models.PurchaseRecord, beat *models.Beat, user *models.User) (string, error) {
	lineItems := []*stripe.CheckoutSessionLineItemParams{
		{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String("eur"),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(beat.Title),
					Description: stripe.String(fmt.Sprintf("%s license", beat.Type)),
				},
				UnitAmount: stripe.Int64(int64(purchase.Price * 100)),
			},
			Quantity: stripe.Int64(1),
		},
	}

	successURL := fmt.Sprintf("%s?purchase_id=%s&session_id={CHECKOUT_SESSION_ID}", p.cfg.StripeSuccessURL, purchase.ID.String())
	cancelURL := fmt.Sprintf("%s?purchase_id=%s", p.cfg.StripeCancelURL, purchase.ID.String())

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
		CustomerEmail:      stripe.String(user.Email),
		Metadata: map[string]string{
			"purchase_id": purchase.ID.String(),
			"user_id":     user.ID.String(),
			"beat_id":     beat.ID.String(),
		},
	}

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create Stripe session: %w", err)
	}

	purchase.StripeSessionID = sess.ID
	if err := p.db.Save(purchase).Error; err != nil {
		return "", fmt.Errorf("failed to save purchase: %w", err)
	}

	return sess.URL, nil
}

// CheckPayment checks if a Stripe payment was completed (for active polling).
// Stripe auto-captures, so we just check the session status.
func (p *StripeProvider) CheckPayment(purchase *models.PurchaseRecord) bool {
	if purchase.StripeSessionID == "" {
		return false
	}

	sess, err := session.Get(purchase.StripeSessionID, nil)
	if err != nil {
		return false
	}

	if sess.PaymentStatus == "paid" {
		paymentIntentID := ""
		if sess.PaymentIntent != nil {
			paymentIntentID = sess.PaymentIntent.ID
		}

		if err := p.db.Model(&models.PurchaseRecord{}).Where("id = ?", purchase.ID).
			Update("stripe_payment_intent_id", paymentIntentID).Error; err != nil {
			return false
		}
		return true
	}

	return false
}
