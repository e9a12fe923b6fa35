package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// SessionRequest describes one payable item on a hosted checkout page.
type SessionRequest struct {
	AmountMinor int64
	Description string
	Reference   string
	SuccessURL  string
	CancelURL   string
}

// ProviderSession is what the provider hands back for a created session.
type ProviderSession struct {
	ID          string
	URL         string
	AmountTotal int64
}

// Provider creates hosted checkout sessions.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*ProviderSession, error)
}

// StripeProvider creates Stripe Checkout sessions with a per-instance client.
// No package-level stripe.Key is set.
type StripeProvider struct {
	api      *client.API
	currency string
}

func NewStripeProvider(secretKey, currency string) (*StripeProvider, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeProvider{api: client.New(secretKey, nil), currency: currency}, nil
}

func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (*ProviderSession, error) {
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("checkout amount must be positive, got %d", req.AmountMinor)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(req.AmountMinor),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.Reference != "" {
		params.ClientReferenceID = stripe.String(req.Reference)
		params.AddMetadata("borrowing_id", req.Reference)
	}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return &ProviderSession{ID: s.ID, URL: s.URL, AmountTotal: s.AmountTotal}, nil
}
