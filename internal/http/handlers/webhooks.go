package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/guitaripod/pixie/internal/service"
)

// WebhookHandler receives payment provider callbacks. These stay raw
// chi handlers: signatures are computed over the exact request bytes,
// so the body must not pass through a JSON round trip first.
type WebhookHandler struct {
	purchaseSvc *service.PurchaseService
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(purchaseSvc *service.PurchaseService) *WebhookHandler {
	return &WebhookHandler{purchaseSvc: purchaseSvc}
}

// maxWebhookBody bounds webhook payloads at 64KiB.
const maxWebhookBody = 64 << 10

// Stripe handles POST /v1/stripe/webhook. Signature failures and
// events outside the replay window answer 401.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, badRequest("Failed to read request body"))
		return
	}

	err = h.purchaseSvc.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			writeError(w, unauthorized("Invalid webhook signature"))
			return
		}
		writeError(w, internalError())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Crypto handles POST /v1/credits/webhook/crypto.
func (h *WebhookHandler) Crypto(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, badRequest("Failed to read request body"))
		return
	}

	err = h.purchaseSvc.HandleCryptoWebhook(r.Context(), payload, r.Header.Get("x-nowpayments-sig"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			writeError(w, unauthorized("Invalid webhook signature"))
			return
		}
		writeError(w, internalError())
		return
	}
	w.WriteHeader(http.StatusOK)
}
