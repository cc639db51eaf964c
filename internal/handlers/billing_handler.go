package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classable/classable/internal/services"
	apperrors "github.com/classable/classable/pkg/errors"
	"github.com/classable/classable/pkg/response"
)

// maxWebhookBody bounds Stripe webhook payload size.
const maxWebhookBody = 1 << 20

// BillingHandler exposes checkout creation and the Stripe webhook endpoint.
type BillingHandler struct {
	billing *services.BillingService
}

func NewBillingHandler(billing *services.BillingService) *BillingHandler {
	return &BillingHandler{billing: billing}
}

type checkoutRequest struct {
	Plan string `json:"plan" validate:"required,max=50"`
}

// CreateCheckout handles POST /api/billing/checkout.
func (h *BillingHandler) CreateCheckout(c *gin.Context) {
	var req checkoutRequest
	if !bindAndValidate(c, &req) {
		return
	}

	url, err := h.billing.CreateCheckoutSession(c.Request.Context(), currentIdentity(c), req.Plan)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"checkout_url": url})
}

// GetSubscription handles GET /api/billing/subscription.
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	customer, err := h.billing.GetCustomer(c.Request.Context(), currentIdentity(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, customer)
}

// Webhook handles POST /webhooks/stripe. The endpoint is unauthenticated;
// the service verifies the Stripe signature instead.
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("unreadable payload"))
		return
	}

	err = h.billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusOK)
}
