package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"librarylending/internal/apperr"
	"librarylending/internal/fees"
	"librarylending/internal/models"
	"librarylending/internal/platform/logger"
)

var tracer = otel.Tracer("librarylending/internal/checkout")

// Session is a checkout session opened for a borrowing.
type Session struct {
	ID          string
	URL         string
	Type        models.PaymentType
	AmountTotal int64
	Amount      decimal.Decimal
}

// Orchestrator prices a borrowing and opens the matching provider session.
type Orchestrator struct {
	provider       Provider
	baseURL        string
	fineMultiplier int
	log            *logger.Logger
}

func NewOrchestrator(provider Provider, baseURL string, fineMultiplier int, log *logger.Logger) *Orchestrator {
	if fineMultiplier < 1 {
		fineMultiplier = fees.DefaultFineMultiplier
	}
	return &Orchestrator{
		provider:       provider,
		baseURL:        strings.TrimRight(baseURL, "/"),
		fineMultiplier: fineMultiplier,
		log:            log.With("service", "CheckoutOrchestrator"),
	}
}

// SuccessURL is where the provider redirects after payment. The provider
// substitutes the literal {CHECKOUT_SESSION_ID} placeholder.
func (o *Orchestrator) SuccessURL(borrowingID fmt.Stringer) string {
	return fmt.Sprintf("%s/payments/%s/success_payment/?session_id={CHECKOUT_SESSION_ID}", o.baseURL, borrowingID)
}

func (o *Orchestrator) CancelURL(borrowingID fmt.Stringer) string {
	return fmt.Sprintf("%s/payments/%s/cancel_payment/", o.baseURL, borrowingID)
}

// OpenRentalSession charges the full rental period. b.Book must be loaded.
func (o *Orchestrator) OpenRentalSession(ctx context.Context, b *models.Borrowing) (*Session, error) {
	amount := fees.RentalAmount(b.BorrowDate, b.ExpectedReturnDate, b.Book.DailyFee)
	return o.open(ctx, b, models.PaymentTypePayment, amount, b.Book.Title)
}

// OpenFineSession charges the overdue fine as of today. b.Book must be loaded.
func (o *Orchestrator) OpenFineSession(ctx context.Context, b *models.Borrowing, today time.Time) (*Session, error) {
	amount := fees.FineAmount(b.ExpectedReturnDate, today, b.Book.DailyFee, o.fineMultiplier)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("borrowing %s is not overdue on %s", b.ID, today.Format(time.DateOnly))
	}
	return o.open(ctx, b, models.PaymentTypeFine, amount, "Fine: "+b.Book.Title)
}

func (o *Orchestrator) open(ctx context.Context, b *models.Borrowing, kind models.PaymentType, amount decimal.Decimal, description string) (*Session, error) {
	minor := fees.MinorUnits(amount)
	ctx, span := tracer.Start(ctx, "checkout.create_session",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("borrowing.id", b.ID.String()),
			attribute.String("payment.type", string(kind)),
			attribute.Int64("payment.amount_minor", minor),
		),
	)
	defer span.End()

	ps, err := o.provider.CreateSession(ctx, SessionRequest{
		AmountMinor: minor,
		Description: description,
		Reference:   b.ID.String(),
		SuccessURL:  o.SuccessURL(b.ID),
		CancelURL:   o.CancelURL(b.ID),
	})
	if err == nil && ps == nil {
		err = errors.New("provider returned no session")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session failed")
		o.log.Error("checkout session failed", "borrowing_id", b.ID, "type", kind, "amount_minor", minor, "error", err)
		return nil, apperr.PaymentProvider(err)
	}

	total := ps.AmountTotal
	if total == 0 {
		total = minor
	}
	span.SetAttributes(attribute.String("checkout.session_id", ps.ID))
	o.log.Info("checkout session opened", "borrowing_id", b.ID, "type", kind, "session", ps.ID, "amount_minor", total)
	return &Session{
		ID:          ps.ID,
		URL:         ps.URL,
		Type:        kind,
		AmountTotal: total,
		Amount:      fees.FromMinorUnits(total),
	}, nil
}
