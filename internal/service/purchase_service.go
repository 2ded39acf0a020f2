package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/guitaripod/pixie/internal/config"
	"github.com/guitaripod/pixie/internal/models"
	"github.com/guitaripod/pixie/internal/repository"
)

// cryptoFinalStatuses are the NOWPayments states that count as paid.
var cryptoFinalStatuses = map[string]bool{
	"finished":  true,
	"confirmed": true,
}

// PurchaseService sells credit packs across Stripe, crypto and the
// mobile app stores.
type PurchaseService struct {
	cfg         *config.Config
	repos       *repository.Repositories
	credits     *CreditService
	nowPayments *NOWPaymentsClient
	revenueCat  *RevenueCatClient
	logger      *slog.Logger
}

// NewPurchaseService creates a new purchase service.
func NewPurchaseService(cfg *config.Config, repos *repository.Repositories, credits *CreditService, logger *slog.Logger) *PurchaseService {
	if cfg.StripeEnabled() {
		stripe.Key = cfg.StripeSecretKey
	}
	return &PurchaseService{
		cfg:         cfg,
		repos:       repos,
		credits:     credits,
		nowPayments: NewNOWPaymentsClient(cfg.NOWPaymentsAPIKey, cfg.NOWPaymentsIPNSecret),
		revenueCat:  NewRevenueCatClient(cfg.RevenueCatAPIKey),
		logger:      logger,
	}
}

// StripeCheckout is the response to a checkout session request.
type StripeCheckout struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
	PurchaseID  string `json:"purchase_id"`
}

// newPurchase records a pending purchase row for a pack.
func (s *PurchaseService) newPurchase(ctx context.Context, userID string, pack config.CreditPack, provider string) (*models.CreditPurchase, error) {
	purchase := &models.CreditPurchase{
		ID:              uuid.NewString(),
		UserID:          userID,
		PackID:          pack.ID,
		Credits:         pack.TotalCredits(),
		AmountUSDCents:  pack.PriceUSDCents,
		PaymentProvider: provider,
		Status:          models.PurchaseStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.repos.Purchase.Create(ctx, purchase); err != nil {
		return nil, err
	}
	return purchase, nil
}

// CreateStripeCheckout opens a Stripe Checkout session for a pack.
// Empty success and cancel URLs fall back to the gateway's own pages.
func (s *PurchaseService) CreateStripeCheckout(ctx context.Context, userID, packID, successURL, cancelURL string) (*StripeCheckout, error) {
	if !s.cfg.StripeEnabled() {
		return nil, fmt.Errorf("%w: card payments are not configured", ErrInvalidRequest)
	}
	pack, ok := config.FindCreditPack(packID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPack, packID)
	}
	priceID := s.cfg.StripePriceIDs[pack.ID]
	if priceID == "" {
		return nil, fmt.Errorf("%w: no price configured for pack %s", ErrInvalidRequest, pack.ID)
	}

	purchase, err := s.newPurchase(ctx, userID, pack, "stripe")
	if err != nil {
		return nil, err
	}

	if successURL == "" {
		successURL = s.cfg.BaseURL + "/v1/credits/purchase/success?purchase_id=" + purchase.ID
	}
	if cancelURL == "" {
		cancelURL = s.cfg.BaseURL + "/v1/credits/purchase/cancel?purchase_id=" + purchase.ID
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		ExpiresAt:  stripe.Int64(time.Now().Add(30 * time.Minute).Unix()),
	}
	params.AddMetadata("purchase_id", purchase.ID)
	params.AddMetadata("pack_id", pack.ID)
	params.AddMetadata("pack_name", pack.Name)
	params.AddMetadata("credits", strconv.Itoa(pack.TotalCredits()))

	sess, err := session.New(params)
	if err != nil {
		if failErr := s.repos.Purchase.Fail(ctx, purchase.ID); failErr != nil {
			s.logger.Error("failed to mark purchase failed", "purchase_id", purchase.ID, "error", failErr)
		}
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	if err := s.repos.Purchase.SetPaymentID(ctx, purchase.ID, sess.ID); err != nil {
		return nil, err
	}

	s.logger.Info("stripe checkout created", "purchase_id", purchase.ID, "pack", pack.ID)
	return &StripeCheckout{
		CheckoutURL: sess.URL,
		SessionID:   sess.ID,
		PurchaseID:  purchase.ID,
	}, nil
}

// HandleStripeWebhook verifies and applies a Stripe webhook event.
func (s *PurchaseService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.cfg.StripeWebhookSecret)
	if err != nil {
		return fmt.Errorf("%w: invalid webhook signature", ErrInvalidRequest)
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("failed to parse checkout session: %w", err)
		}
		purchaseID := sess.Metadata["purchase_id"]
		if purchaseID == "" {
			s.logger.Warn("checkout session without purchase_id metadata", "session_id", sess.ID)
			return nil
		}
		return s.completePurchase(ctx, purchaseID)

	case "checkout.session.expired":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("failed to parse checkout session: %w", err)
		}
		if purchaseID := sess.Metadata["purchase_id"]; purchaseID != "" {
			if err := s.repos.Purchase.Fail(ctx, purchaseID); err != nil {
				s.logger.Error("failed to mark purchase failed", "purchase_id", purchaseID, "error", err)
			}
		}
	}
	return nil
}

// CryptoCheckout is the response to a crypto payment request.
type CryptoCheckout struct {
	PaymentURL string `json:"payment_url"`
	PurchaseID string `json:"purchase_id"`
}

// CreateCryptoPayment opens a NOWPayments invoice for a pack. The
// starter pack sits below crypto network minimums and is rejected.
// payCurrency optionally pins the settlement coin.
func (s *PurchaseService) CreateCryptoPayment(ctx context.Context, userID, packID, payCurrency string) (*CryptoCheckout, error) {
	if !s.nowPayments.Enabled() {
		return nil, fmt.Errorf("%w: crypto payments are not configured", ErrInvalidRequest)
	}
	pack, ok := config.FindCreditPack(packID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPack, packID)
	}
	if pack.ID == "starter" {
		return nil, fmt.Errorf("%w: the starter pack is not available for crypto payments due to minimum transaction amounts", ErrInvalidRequest)
	}

	purchase, err := s.newPurchase(ctx, userID, pack, "nowpayments")
	if err != nil {
		return nil, err
	}

	invoice, err := s.nowPayments.CreateInvoice(ctx,
		float64(pack.PriceUSDCents)/100,
		payCurrency,
		purchase.ID,
		fmt.Sprintf("%s pack (%d credits)", pack.Name, pack.TotalCredits()),
		s.cfg.BaseURL+"/v1/credits/webhook/crypto",
	)
	if err != nil {
		if failErr := s.repos.Purchase.Fail(ctx, purchase.ID); failErr != nil {
			s.logger.Error("failed to mark purchase failed", "purchase_id", purchase.ID, "error", failErr)
		}
		return nil, err
	}

	if err := s.repos.Purchase.SetPaymentID(ctx, purchase.ID, invoice.ID.String()); err != nil {
		return nil, err
	}

	s.logger.Info("crypto invoice created", "purchase_id", purchase.ID, "pack", pack.ID)
	return &CryptoCheckout{
		PaymentURL: invoice.InvoiceURL,
		PurchaseID: purchase.ID,
	}, nil
}

// HandleCryptoWebhook verifies and applies a NOWPayments IPN callback.
func (s *PurchaseService) HandleCryptoWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.nowPayments.VerifyIPN(payload, signature) {
		return fmt.Errorf("%w: invalid webhook signature", ErrInvalidRequest)
	}

	var ipn struct {
		OrderID       string `json:"order_id"`
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.Unmarshal(payload, &ipn); err != nil {
		return fmt.Errorf("failed to parse IPN payload: %w", err)
	}
	if ipn.OrderID == "" {
		return fmt.Errorf("%w: IPN without order_id", ErrInvalidRequest)
	}

	switch {
	case cryptoFinalStatuses[ipn.PaymentStatus]:
		return s.completePurchase(ctx, ipn.OrderID)
	case ipn.PaymentStatus == "failed" || ipn.PaymentStatus == "expired" || ipn.PaymentStatus == "refunded":
		if err := s.repos.Purchase.Fail(ctx, ipn.OrderID); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRevenueCatPurchase settles an App Store or Play Store
// purchase. The purchase token is the dedupe key; a replayed token on
// a completed purchase returns ErrDuplicatePurchase. RevenueCat must
// report the product as a one-time purchase from the claimed store, or
// as a non-expiring entitlement for it.
func (s *PurchaseService) ValidateRevenueCatPurchase(ctx context.Context, userID, packID, purchaseToken, productID, platform string) (*models.CreditPurchase, error) {
	if !s.revenueCat.Enabled() {
		return nil, fmt.Errorf("%w: store purchases are not configured", ErrInvalidRequest)
	}
	pack, ok := config.FindCreditPack(packID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPack, packID)
	}
	if purchaseToken == "" || productID == "" {
		return nil, fmt.Errorf("%w: purchase_token and product_id are required", ErrInvalidRequest)
	}
	if platform != "ios" && platform != "android" {
		return nil, fmt.Errorf("%w: invalid platform, must be 'ios' or 'android'", ErrInvalidRequest)
	}

	existing, err := s.repos.Purchase.GetByProviderPaymentID(ctx, "revenuecat", purchaseToken)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == models.PurchaseStatusCompleted {
		return nil, ErrDuplicatePurchase
	}

	purchase := existing
	if purchase == nil {
		purchase, err = s.newPurchase(ctx, userID, pack, "revenuecat")
		if err != nil {
			return nil, err
		}
		if err := s.repos.Purchase.SetPaymentID(ctx, purchase.ID, purchaseToken); err != nil {
			return nil, err
		}
	}

	valid, err := s.revenueCat.HasPurchase(ctx, purchaseToken, productID, platform)
	if err != nil {
		return nil, err
	}
	if !valid {
		// No point keeping a pending row for a purchase that does not
		// exist upstream.
		if delErr := s.repos.Purchase.Delete(ctx, purchase.ID); delErr != nil {
			s.logger.Error("failed to delete invalid purchase", "purchase_id", purchase.ID, "error", delErr)
		}
		return nil, fmt.Errorf("%w: purchase not found for this account", ErrInvalidRequest)
	}

	if err := s.completePurchase(ctx, purchase.ID); err != nil {
		return nil, err
	}
	return s.repos.Purchase.GetByID(ctx, purchase.ID)
}

// GetPurchaseStatus returns a purchase, first polling the payment
// provider when it is still pending.
func (s *PurchaseService) GetPurchaseStatus(ctx context.Context, userID, purchaseID string) (*models.CreditPurchase, error) {
	purchase, err := s.repos.Purchase.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase == nil || purchase.UserID != userID {
		return nil, nil
	}
	if purchase.Status != models.PurchaseStatusPending || purchase.PaymentID == "" {
		return purchase, nil
	}

	settled := false
	switch purchase.PaymentProvider {
	case "stripe":
		sess, err := session.Get(purchase.PaymentID, nil)
		if err != nil {
			s.logger.Warn("failed to poll stripe session", "purchase_id", purchase.ID, "error", err)
		} else if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			settled = true
		}
	case "nowpayments":
		status, err := s.nowPayments.PaymentStatus(ctx, purchase.PaymentID)
		if err != nil {
			s.logger.Warn("failed to poll crypto payment", "purchase_id", purchase.ID, "error", err)
		} else if cryptoFinalStatuses[status] {
			settled = true
		}
	}

	if settled {
		if err := s.completePurchase(ctx, purchase.ID); err != nil {
			return nil, err
		}
		return s.repos.Purchase.GetByID(ctx, purchase.ID)
	}
	return purchase, nil
}

// completePurchase settles a pending purchase and credits the buyer.
// The pending guard in the repository makes retries a no-op, so credits
// land exactly once no matter how many webhooks arrive.
func (s *PurchaseService) completePurchase(ctx context.Context, purchaseID string) error {
	purchase, err := s.repos.Purchase.GetByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if purchase == nil {
		return fmt.Errorf("%w: unknown purchase %s", ErrInvalidRequest, purchaseID)
	}

	completed, err := s.repos.Purchase.Complete(ctx, purchase.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !completed {
		return nil
	}

	packName := purchase.PackID
	if pack, ok := config.FindCreditPack(purchase.PackID); ok {
		packName = pack.Name
	}
	description := fmt.Sprintf("Purchased %s pack (%d credits)", packName, purchase.Credits)
	if _, err := s.credits.Add(ctx, purchase.UserID, purchase.Credits, models.TxTypePurchase, description, purchase.ID); err != nil {
		// The purchase row already reads completed, so a webhook retry
		// will not re-enter here. Operators grant the credits manually
		// from this log line.
		s.logger.Error("purchase completed but credits not granted",
			"purchase_id", purchase.ID,
			"user_id", purchase.UserID,
			"credits", purchase.Credits,
			"error", err,
		)
		return fmt.Errorf("failed to credit purchase %s: %w", purchase.ID, err)
	}

	s.logger.Info("purchase completed",
		"purchase_id", purchase.ID,
		"user_id", purchase.UserID,
		"credits", purchase.Credits,
		"provider", purchase.PaymentProvider,
	)
	return nil
}
