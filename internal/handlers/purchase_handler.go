package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/beatvault/backend/internal/config"
	"github.com/beatvault/backend/internal/models"
	"github.com/beatvault/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

type PurchaseHandler struct {
	purchaseService *services.PurchaseService
	beatService     *services.BeatService
	userService     *services.UserService
	receiptService  *services.ReceiptService
	emailService    *services.EmailService
	cfg             *config.Config
}

func NewPurchaseHandler(purchaseService *services.PurchaseService, beatService *services.BeatService, userService *services.UserService, receiptService *services.ReceiptService, emailService *services.EmailService, cfg *config.Config) *PurchaseHandler {
	return &PurchaseHandler{
		purchaseService: purchaseService,
		beatService:     beatService,
		userService:     userService,
		receiptService:  receiptService,
		emailService:    emailService,
		cfg:             cfg,
	}
}

// Create opens a pending purchase and, when Stripe is configured, a checkout
// session for it
// POST /purchases
func (h *PurchaseHandler) Create(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var req struct {
		BeatID string `json:"beat_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "beat_id is required")
		return
	}

	beatID, err := uuid.Parse(req.BeatID)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid beat ID")
		return
	}

	beat, err := h.beatService.GetBeatByID(c.Request.Context(), beatID)
	if err != nil {
		failFromError(c, err)
		return
	}

	record, checkoutURL, err := h.purchaseService.Create(c.Request.Context(), userID, beat)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	response := gin.H{
		"purchase": purchaseResponse(record),
	}
	if checkoutURL != "" {
		response["checkout_url"] = checkoutURL
	}

	c.JSON(http.StatusCreated, response)
}

// List returns the authenticated user's purchases, newest first
// GET /purchases
func (h *PurchaseHandler) List(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	records, err := h.purchaseService.GetUserPurchases(c.Request.Context(), userID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to retrieve purchases")
		return
	}

	list := make([]gin.H, len(records))
	for i, record := range records {
		entry := purchaseResponse(record)
		entry["beat_title"] = record.Beat.Title
		list[i] = entry
	}

	c.JSON(http.StatusOK, gin.H{"purchases": list})
}

// Get returns a single purchase. Pending records trigger a payment status
// poll so the frontend can show progress without waiting for the webhook.
// GET /purchases/:id
func (h *PurchaseHandler) Get(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	purchaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid purchase ID")
		return
	}

	record, err := h.purchaseService.GetByID(c.Request.Context(), purchaseID)
	if err != nil {
		failFromError(c, err)
		return
	}
	if record.UserID != userID && !c.GetBool("isAdmin") {
		fail(c, http.StatusForbidden, "Not authorized")
		return
	}

	response := purchaseResponse(record)
	if record.Status == models.PurchaseStatusPending {
		response["payment_confirmed"] = h.purchaseService.CheckPaymentStatus(record)
	}

	c.JSON(http.StatusOK, response)
}

// Receipt renders a PDF receipt with the purchase key as a QR code
// GET /purchases/:id/receipt
func (h *PurchaseHandler) Receipt(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	purchaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid purchase ID")
		return
	}

	record, err := h.purchaseService.GetByID(c.Request.Context(), purchaseID)
	if err != nil {
		failFromError(c, err)
		return
	}
	if record.UserID != userID && !c.GetBool("isAdmin") {
		fail(c, http.StatusForbidden, "Not authorized")
		return
	}

	pdf, err := h.receiptService.GeneratePurchaseReceiptPDF(record, &record.Beat)
	if err != nil {
		log.Printf("[Receipt] PDF generation failed for purchase %s: %v", purchaseID, err)
		fail(c, http.StatusInternalServerError, "Failed to generate receipt")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"receipt-%s.pdf\"", purchaseID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// HandleStripeWebhook processes Stripe webhook events
// POST /webhooks/stripe
func (h *PurchaseHandler) HandleStripeWebhook(c *gin.Context) {
	const MaxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Printf("ERROR: Failed to read Stripe webhook request body: %v", err)
		fail(c, http.StatusServiceUnavailable, "Error reading request body")
		return
	}

	signatureHeader := c.GetHeader("Stripe-Signature")

	event, err := webhook.ConstructEvent(payload, signatureHeader, h.cfg.StripeWebhookSecret)
	if err != nil {
		log.Printf("ERROR: Webhook signature verification failed: %v", err)
		fail(c, http.StatusBadRequest, "Invalid signature")
		return
	}

	log.Printf("INFO: Received Stripe event type: %s, ID: %s", event.Type, event.ID)

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			log.Printf("ERROR: Failed to parse webhook JSON for checkout.session.completed: %v", err)
			fail(c, http.StatusBadRequest, "Error parsing webhook JSON")
			return
		}

		purchaseIDStr, ok := session.Metadata["purchase_id"]
		if !ok {
			log.Printf("ERROR: purchase_id not found in metadata for session %s", session.ID)
			fail(c, http.StatusBadRequest, "Purchase ID not found in metadata")
			return
		}

		purchaseID, err := uuid.Parse(purchaseIDStr)
		if err != nil {
			log.Printf("ERROR: Invalid purchase_id format in metadata: %s", purchaseIDStr)
			fail(c, http.StatusBadRequest, "Invalid purchase ID")
			return
		}

		paymentIntentID := ""
		if session.PaymentIntent != nil {
			paymentIntentID = session.PaymentIntent.ID
		}

		log.Printf("INFO: Processing payment confirmation for PurchaseID: %s, PaymentIntentID: %s", purchaseID, paymentIntentID)

		if err := h.purchaseService.ConfirmPayment(c.Request.Context(), purchaseID, paymentIntentID); err != nil {
			log.Printf("ERROR: Failed to confirm payment for purchase %s: %v", purchaseID, err)
			fail(c, http.StatusInternalServerError, "Failed to confirm payment")
			return
		}

		h.afterPaymentConfirmed(purchaseID)

		log.Printf("SUCCESS: Payment confirmed for PurchaseID: %s", purchaseID)
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Payment confirmed"})
		return

	case "payment_intent.payment_failed":
		var paymentIntent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &paymentIntent); err != nil {
			log.Printf("ERROR: Failed to parse webhook JSON for payment_intent.payment_failed: %v", err)
			fail(c, http.StatusBadRequest, "Error parsing webhook JSON")
			return
		}
		var reason string
		if paymentIntent.LastPaymentError != nil {
			reason = paymentIntent.LastPaymentError.Msg
		}
		log.Printf("WARN: Payment failed for PaymentIntent %s. Reason: %s", paymentIntent.ID, reason)
		c.JSON(http.StatusOK, gin.H{"status": "success"})

	default:
		log.Printf("INFO: Unhandled Stripe event type: %s", event.Type)
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Unhandled event type"})
	}
}

// afterPaymentConfirmed bumps the purchase counter and emails the key
func (h *PurchaseHandler) afterPaymentConfirmed(purchaseID uuid.UUID) {
	go func() {
		record, err := h.purchaseService.GetByID(context.Background(), purchaseID)
		if err != nil {
			log.Printf("[Purchase] Cannot load confirmed purchase %s: %v", purchaseID, err)
			return
		}

		if err := h.beatService.IncrementPurchases(record.BeatID); err != nil {
			log.Printf("[Purchase] Failed to increment purchase count for beat %s: %v", record.BeatID, err)
		}

		user, err := h.userService.GetUserByID(record.UserID)
		if err != nil {
			return
		}
		if err := h.emailService.SendPurchaseConfirmation(user.Email, map[string]interface{}{
			"Name":        user.DisplayName,
			"BeatTitle":   record.Beat.Title,
			"Price":       fmt.Sprintf("%.2f", record.Price),
			"PurchaseKey": record.PurchaseKey,
		}); err != nil {
			log.Printf("[Purchase] Failed to send confirmation email to %s: %v", user.Email, err)
		}
	}()
}

// purchaseResponse is the shared purchase JSON shape
func purchaseResponse(record *models.PurchaseRecord) gin.H {
	return gin.H{
		"id":           record.ID,
		"purchase_key": record.PurchaseKey,
		"beat_id":      record.BeatID,
		"status":       record.Status,
		"price":        record.Price,
		"expires_at":   record.ExpiresAt,
		"used_at":      record.UsedAt,
		"created_at":   record.CreatedAt,
	}
}
