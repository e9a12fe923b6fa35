package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarylending/internal/apperr"
	"librarylending/internal/models"
	"librarylending/internal/platform/logger"
)

type providerFunc func(ctx context.Context, req SessionRequest) (*ProviderSession, error)

func (f providerFunc) CreateSession(ctx context.Context, req SessionRequest) (*ProviderSession, error) {
	return f(ctx, req)
}

func borrowingFixture() *models.Borrowing {
	return &models.Borrowing{
		ID:                 uuid.MustParse("6f1c2a8e-8a4c-4b8f-9d51-1f3e5d7c9b20"),
		BorrowDate:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		ExpectedReturnDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Book: models.Book{
			Title:    "Dune",
			DailyFee: decimal.RequireFromString("0.25"),
		},
	}
}

func TestOpenRentalSession(t *testing.T) {
	var got SessionRequest
	p := providerFunc(func(_ context.Context, req SessionRequest) (*ProviderSession, error) {
		got = req
		return &ProviderSession{ID: "cs_test_1", URL: "https://pay.example/cs_test_1", AmountTotal: req.AmountMinor}, nil
	})
	o := NewOrchestrator(p, "https://library.example.com/", 2, logger.Nop())
	b := borrowingFixture()

	s, err := o.OpenRentalSession(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, int64(125), got.AmountMinor)
	assert.Equal(t, "Dune", got.Description)
	assert.Equal(t, b.ID.String(), got.Reference)
	assert.Equal(t, "https://library.example.com/payments/"+b.ID.String()+"/success_payment/?session_id={CHECKOUT_SESSION_ID}", got.SuccessURL)
	assert.Equal(t, "https://library.example.com/payments/"+b.ID.String()+"/cancel_payment/", got.CancelURL)

	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, models.PaymentTypePayment, s.Type)
	assert.Equal(t, int64(125), s.AmountTotal)
	assert.True(t, s.Amount.Equal(decimal.RequireFromString("1.25")))
}

func TestOpenFineSessionUsesMultiplier(t *testing.T) {
	var got SessionRequest
	p := providerFunc(func(_ context.Context, req SessionRequest) (*ProviderSession, error) {
		got = req
		return &ProviderSession{ID: "cs_fine", URL: "https://pay.example/cs_fine", AmountTotal: req.AmountMinor}, nil
	})
	o := NewOrchestrator(p, "http://localhost:8080", 3, logger.Nop())
	b := borrowingFixture()

	s, err := o.OpenFineSession(context.Background(), b, time.Date(2024, 3, 7, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// two days overdue: (2 + 1) * 0.25 * 3
	assert.Equal(t, int64(225), got.AmountMinor)
	assert.Equal(t, models.PaymentTypeFine, s.Type)
	assert.True(t, s.Amount.Equal(decimal.RequireFromString("2.25")))
}

func TestOpenFineSessionRejectsOnTime(t *testing.T) {
	called := false
	p := providerFunc(func(context.Context, SessionRequest) (*ProviderSession, error) {
		called = true
		return nil, nil
	})
	o := NewOrchestrator(p, "http://localhost:8080", 2, logger.Nop())

	_, err := o.OpenFineSession(context.Background(), borrowingFixture(), time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.False(t, called)
}

func TestProviderFailureIsPaymentProviderError(t *testing.T) {
	p := providerFunc(func(context.Context, SessionRequest) (*ProviderSession, error) {
		return nil, errors.New("connection reset")
	})
	o := NewOrchestrator(p, "http://localhost:8080", 2, logger.Nop())

	_, err := o.OpenRentalSession(context.Background(), borrowingFixture())
	require.Error(t, err)
	assert.Equal(t, apperr.KindPaymentProvider, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestProviderTotalIsAuthoritative(t *testing.T) {
	p := providerFunc(func(_ context.Context, req SessionRequest) (*ProviderSession, error) {
		return &ProviderSession{ID: "cs_tax", URL: "u", AmountTotal: req.AmountMinor + 10}, nil
	})
	o := NewOrchestrator(p, "http://localhost:8080", 2, logger.Nop())

	s, err := o.OpenRentalSession(context.Background(), borrowingFixture())
	require.NoError(t, err)
	assert.True(t, s.Amount.Equal(decimal.RequireFromString("1.35")))
}

func TestStripeProviderRequiresKey(t *testing.T) {
	_, err := NewStripeProvider("", "usd")
	require.Error(t, err)

	p, err := NewStripeProvider("sk_test_x", "")
	require.NoError(t, err)
	assert.Equal(t, "usd", p.currency)

	_, err = p.CreateSession(context.Background(), SessionRequest{AmountMinor: 0})
	require.Error(t, err)
}
