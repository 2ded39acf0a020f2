package handlers

import (
	"context"
	"net/http"

	"github.com/guitaripod/pixie/internal/config"
	"github.com/guitaripod/pixie/internal/models"
	"github.com/guitaripod/pixie/internal/service"
)

// CreditsHandler handles the credit balance, journal and purchases.
type CreditsHandler struct {
	creditSvc   *service.CreditService
	purchaseSvc *service.PurchaseService
	cfg         *config.Config
}

// NewCreditsHandler creates a new credits handler.
func NewCreditsHandler(creditSvc *service.CreditService, purchaseSvc *service.PurchaseService, cfg *config.Config) *CreditsHandler {
	return &CreditsHandler{creditSvc: creditSvc, purchaseSvc: purchaseSvc, cfg: cfg}
}

// BalanceOutput is the balance endpoint response.
type BalanceOutput struct {
	Body struct {
		Balance  int    `json:"balance"`
		Currency string `json:"currency"`
	}
}

// GetBalance handles GET /v1/credits/balance.
func (h *CreditsHandler) GetBalance(ctx context.Context, input *struct{}) (*BalanceOutput, error) {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}

	balance, err := h.creditSvc.GetBalance(ctx, user.ID)
	if err != nil {
		return nil, mapError(err)
	}

	out := &BalanceOutput{}
	out.Body.Balance = balance.Balance
	out.Body.Currency = "credits"
	return out, nil
}

// ListTransactionsInput is the journal paging input.
type ListTransactionsInput struct {
	Page    int `query:"page" minimum:"0"`
	PerPage int `query:"per_page" minimum:"0" maximum:"100"`
}

// ListTransactionsOutput is the journal page response.
type ListTransactionsOutput struct {
	Body struct {
		Transactions []*models.CreditTransaction `json:"transactions"`
		Page         int                         `json:"page"`
		PerPage      int                         `json:"per_page"`
	}
}

// ListTransactions handles GET /v1/credits/transactions.
func (h *CreditsHandler) ListTransactions(ctx context.Context, input *ListTransactionsInput) (*ListTransactionsOutput, error) {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}

	entries, page, perPage, err := h.creditSvc.ListTransactions(ctx, user.ID, input.Page, input.PerPage)
	if err != nil {
		return nil, mapError(err)
	}

	out := &ListTransactionsOutput{}
	out.Body.Transactions = entries
	out.Body.Page = page
	out.Body.PerPage = perPage
	return out, nil
}

// ListPacksOutput is the pack catalogue response. PaymentMethods tells
// clients which checkout flows this deployment supports.
type ListPacksOutput struct {
	Body struct {
		Packs          []config.CreditPack `json:"packs"`
		PaymentMethods struct {
			Stripe bool `json:"stripe"`
			Crypto bool `json:"crypto"`
		} `json:"payment_methods"`
	}
}

// ListPacks handles GET /v1/credits/packs.
func (h *CreditsHandler) ListPacks(ctx context.Context, input *struct{}) (*ListPacksOutput, error) {
	out := &ListPacksOutput{}
	out.Body.Packs = h.creditSvc.Packs()
	out.Body.PaymentMethods.Stripe = h.cfg.StripeEnabled()
	out.Body.PaymentMethods.Crypto = h.cfg.NOWPaymentsAPIKey != ""
	return out, nil
}

// EstimateInput is the cost estimate request.
type EstimateInput struct {
	Body struct {
		Quality string `json:"quality,omitempty"`
		Size    string `json:"size,omitempty"`
		N       int    `json:"n,omitempty" minimum:"0" maximum:"10"`
		IsEdit  bool   `json:"is_edit,omitempty"`
	}
}

// EstimateOutput is the cost estimate response.
type EstimateOutput struct {
	Body struct {
		EstimatedCredits int    `json:"estimated_credits"`
		EstimatedUSD     string `json:"estimated_usd"`
		Note             string `json:"note"`
	}
}

// Estimate handles POST /v1/credits/estimate. Public: clients show the
// price before asking the user to sign in.
func (h *CreditsHandler) Estimate(ctx context.Context, input *EstimateInput) (*EstimateOutput, error) {
	quality := input.Body.Quality
	if quality == "" {
		quality = "auto"
	}
	size := input.Body.Size
	if size == "" {
		size = "1024x1024"
	}
	n := input.Body.N
	if n <= 0 {
		n = 1
	}

	est := h.creditSvc.Estimate(quality, size, n, input.Body.IsEdit)
	out := &EstimateOutput{}
	out.Body.EstimatedCredits = est.Credits
	out.Body.EstimatedUSD = est.EstimatedUSD
	out.Body.Note = est.Note
	return out, nil
}

// PurchaseInput starts a purchase with an explicit payment backend.
type PurchaseInput struct {
	Body struct {
		PackID          string `json:"pack_id" doc:"Credit pack to purchase"`
		PaymentProvider string `json:"payment_provider" enum:"stripe,nowpayments"`
		PaymentCurrency string `json:"payment_currency,omitempty" doc:"Settlement coin for crypto payments, e.g. btc"`
	}
}

// PurchaseOutput is the backend-agnostic checkout response.
type PurchaseOutput struct {
	Body struct {
		PurchaseID      string `json:"purchase_id"`
		PaymentProvider string `json:"payment_provider"`
		CheckoutURL     string `json:"checkout_url"`
	}
}

// Purchase handles POST /v1/credits/purchase, dispatching to the named
// payment backend.
func (h *CreditsHandler) Purchase(ctx context.Context, input *PurchaseInput) (*PurchaseOutput, error) {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}

	out := &PurchaseOutput{}
	out.Body.PaymentProvider = input.Body.PaymentProvider

	switch input.Body.PaymentProvider {
	case "stripe":
		checkout, err := h.purchaseSvc.CreateStripeCheckout(ctx, user.ID, input.Body.PackID, "", "")
		if err != nil {
			return nil, mapError(err)
		}
		out.Body.PurchaseID = checkout.PurchaseID
		out.Body.CheckoutURL = checkout.CheckoutURL
	case "nowpayments":
		checkout, err := h.purchaseSvc.CreateCryptoPayment(ctx, user.ID, input.Body.PackID, input.Body.PaymentCurrency)
		if err != nil {
			return nil, mapError(err)
		}
		out.Body.PurchaseID = checkout.PurchaseID
		out.Body.CheckoutURL = checkout.PaymentURL
	default:
		return nil, badRequest("payment_provider must be stripe or nowpayments")
	}
	return out, nil
}

// StripePurchaseInput names the pack to buy with optional redirect
// overrides.
type StripePurchaseInput struct {
	Body struct {
		PackID     string `json:"pack_id" doc:"Credit pack to purchase"`
		SuccessURL string `json:"success_url,omitempty"`
		CancelURL  string `json:"cancel_url,omitempty"`
	}
}

// StripeCheckoutOutput is the Stripe checkout response.
type StripeCheckoutOutput struct {
	Body service.StripeCheckout
}

// PurchaseStripe handles POST /v1/credits/purchase/stripe.
func (h *CreditsHandler) PurchaseStripe(ctx context.Context, input *StripePurchaseInput) (*StripeCheckoutOutput, error) {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}

	checkout, err := h.purchaseSvc.CreateStripeCheckout(ctx, user.ID, input.Body.PackID, input.Body.SuccessURL, input.Body.CancelURL)
	if err != nil {
		return nil, mapError(err)
	}
	return &StripeCheckoutOutput{Body: *checkout}, nil
}

// CryptoPurchaseInput names the pack and optional settlement coin.
type CryptoPurchaseInput struct {
	Body struct {
		PackID          string `json:"pack_id" doc:"Credit pack to purchase"`
		PaymentCurrency string `json:"payment_currency,omitempty"`
	}
}

// CryptoCheckoutOutput is the crypto checkout response.
type CryptoCheckoutOutput struct {
	Body service.CryptoCheckout
}

// PurchaseCrypto handles POST /v1/credits/purchase/crypto.
func (h *CreditsHandler) PurchaseCrypto(ctx context.Context, input *CryptoPurchaseInput) (*CryptoCheckoutOutput, error) {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}

	checkout, err := h.purchaseSvc.CreateCryptoPayment(ctx, user.ID, input.Body.PackID, input.Body.PaymentCurrency)
	if err != nil {
		return nil, mapError(err)
	}
	return &CryptoCheckoutOutput{Body: *checkout}, nil
}

// PurchaseSuccess is the default Stripe success redirect target. It
// renders a minimal page; credits are granted by the webhook, not here.
func PurchaseSuccess(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body><h1>Payment received</h1><p>Your credits will appear shortly. You can close this window.</p></body></html>"))
}

// PurchaseCancel is the default Stripe cancel redirect target.
func PurchaseCancel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body><h1>Payment cancelled</h1><p>No charge was made. You can close this window.</p></body></html>"))
}

// PurchaseStatusInput addresses one purchase.
type PurchaseStatusInput struct {
	ID string `path:"id" doc:"Purchase id"`
}

// PurchaseStatusOutput is the purchase status response.
type PurchaseStatusOutput struct {
	Body models.CreditPurchase
}

// PurchaseStatus handles GET /v1/credits/purchase/{id}/status.
func (h *CreditsHandler) PurchaseStatus(ctx context.Context, input *PurchaseStatusInput) (*PurchaseStatusOutput, error) {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}

	purchase, err := h.purchaseSvc.GetPurchaseStatus(ctx, user.ID, input.ID)
	if err != nil {
		return nil, mapError(err)
	}
	if purchase == nil {
		return nil, notFound("Purchase not found: " + input.ID)
	}
	return &PurchaseStatusOutput{Body: *purchase}, nil
}

// RevenueCatInput is the store purchase validation request.
type RevenueCatInput struct {
	Body struct {
		PackID        string `json:"pack_id"`
		PurchaseToken string `json:"purchase_token"`
		ProductID     string `json:"product_id"`
		Platform      string `json:"platform" enum:"ios,android"`
	}
}

// RevenueCatOutput is the validated purchase response.
type RevenueCatOutput struct {
	Body struct {
		Purchase *models.CreditPurchase `json:"purchase"`
		Credits  int                    `json:"credits"`
	}
}

// ValidateRevenueCat handles POST /v1/credits/purchase/revenuecat/validate.
func (h *CreditsHandler) ValidateRevenueCat(ctx context.Context, input *RevenueCatInput) (*RevenueCatOutput, error) {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}

	purchase, err := h.purchaseSvc.ValidateRevenueCatPurchase(ctx, user.ID, input.Body.PackID, input.Body.PurchaseToken, input.Body.ProductID, input.Body.Platform)
	if err != nil {
		return nil, mapError(err)
	}

	out := &RevenueCatOutput{}
	out.Body.Purchase = purchase
	out.Body.Credits = purchase.Credits
	return out, nil
}
