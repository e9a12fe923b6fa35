package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"librarylending/internal/apperr"
	"librarylending/internal/models"
	"librarylending/internal/notify"
	"librarylending/internal/platform/logger"
	"librarylending/internal/repositories"
)

// ConfirmResult describes a processed success callback.
type ConfirmResult struct {
	Payment *models.Payment
	// AlreadyPaid is set when the callback was a repeat delivery and nothing changed.
	AlreadyPaid bool
	// Returned is set when a paid fine closed the borrowing.
	Returned bool
	// RefundDue is set when the money settles nothing and must be refunded.
	RefundDue bool
}

// PaymentService exposes the payment ledger and the provider callbacks.
type PaymentService interface {
	List(ctx context.Context, actor models.Actor, page repositories.Page) ([]models.Payment, int64, error)
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Payment, error)
	ConfirmSuccess(ctx context.Context, borrowingID uuid.UUID, sessionID string) (*ConfirmResult, error)
	Cancel(ctx context.Context, borrowingID uuid.UUID) error
}

type paymentService struct {
	db            *gorm.DB
	bookRepo      repositories.BookRepository
	borrowingRepo repositories.BorrowingRepository
	paymentRepo   repositories.PaymentRepository
	notifier      Notifier
	log           *logger.Logger
	now           Clock
}

func NewPaymentService(
	db *gorm.DB,
	bookRepo repositories.BookRepository,
	borrowingRepo repositories.BorrowingRepository,
	paymentRepo repositories.PaymentRepository,
	notifier Notifier,
	log *logger.Logger,
	now Clock,
) PaymentService {
	if now == nil {
		now = time.Now
	}
	return &paymentService{
		db:            db,
		bookRepo:      bookRepo,
		borrowingRepo: borrowingRepo,
		paymentRepo:   paymentRepo,
		notifier:      notifier,
		log:           log.With("service", "PaymentService"),
		now:           now,
	}
}

// List returns every payment to staff and only payments on their own
// borrowings to everyone else.
func (s *paymentService) List(ctx context.Context, actor models.Actor, page repositories.Page) ([]models.Payment, int64, error) {
	filter := repositories.PaymentFilter{Page: page}
	if !actor.IsStaff {
		own := actor.UserID
		filter.UserID = &own
	}
	return s.paymentRepo.List(s.db.WithContext(ctx), filter)
}

func (s *paymentService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Payment, error) {
	p, err := s.paymentRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if !actor.CanSee(p.Borrowing.UserID) {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

// ConfirmSuccess applies the provider's success redirect for a session.
//
// The payment is located by session id and must belong to borrowingID. A
// payment that is already settled is left untouched and reported as such, so
// repeated deliveries are harmless. Paying a FINE also performs the deferred
// return: the borrowing is closed and inventory restored in the same
// transaction.
//
// Money for a fine that can no longer settle the borrowing (superseded by a
// repriced fine, or the borrowing is already closed) is recorded as a refund
// candidate instead and reported through RefundDue.
func (s *paymentService) ConfirmSuccess(ctx context.Context, borrowingID uuid.UUID, sessionID string) (*ConfirmResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperr.Validation("session_id", "This query parameter is required.")
	}
	now := s.now()
	today := models.DateOf(now)

	result := &ConfirmResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.GetBySessionIDForUpdate(tx, sessionID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return ErrPaymentNotFound
			}
			return err
		}
		if payment.BorrowingID != borrowingID {
			return ErrPaymentNotFound
		}
		result.Payment = payment
		if payment.RefundDue || payment.Status == models.PaymentStatusPaid {
			result.AlreadyPaid = true
			result.RefundDue = payment.RefundDue
			return nil
		}
		if payment.Status == models.PaymentStatusSuperseded {
			return s.flagRefund(tx, payment, models.PaymentStatusSuperseded, now, result)
		}

		var borrowing *models.Borrowing
		if payment.Type == models.PaymentTypeFine {
			borrowing, err = s.borrowingRepo.GetByIDForUpdate(tx, payment.BorrowingID)
			if err != nil {
				return err
			}
			if !borrowing.IsActive() {
				return s.flagRefund(tx, payment, models.PaymentStatusPaid, now, result)
			}
		}

		if err := s.paymentRepo.MarkPaid(tx, payment.ID, now); err != nil {
			if errors.Is(err, repositories.ErrNotPending) {
				result.AlreadyPaid = true
				return nil
			}
			return err
		}
		paidAt := now.UTC()
		payment.Status = models.PaymentStatusPaid
		payment.MoneyToPay = decimal.Zero
		payment.PaidAt = &paidAt

		if borrowing != nil {
			if err := s.returnAfterFine(tx, borrowing, today); err != nil {
				return err
			}
			result.Returned = true
		}
		return s.notifier.Enqueue(tx, notify.EventPaymentPaid, newPaymentPayload(payment))
	})
	if err != nil {
		if apperr.KindOf(err) == "" {
			s.log.Error("confirm payment failed", "borrowing_id", borrowingID, "session", sessionID, "error", err)
		}
		return nil, err
	}

	switch {
	case result.AlreadyPaid:
		s.log.Info("duplicate success callback ignored", "payment_id", result.Payment.ID, "session", sessionID)
		return result, nil
	case result.RefundDue:
		s.log.Warn("payment received for a fine that no longer applies, refund due",
			"payment_id", result.Payment.ID,
			"borrowing_id", borrowingID,
			"status", result.Payment.Status,
			"amount", result.Payment.MoneyToPay.StringFixed(2),
			"session", sessionID,
		)
	default:
		s.log.Info("payment confirmed", "payment_id", result.Payment.ID, "type", result.Payment.Type, "borrowing_id", borrowingID, "returned", result.Returned)
	}
	s.notifier.Flush(ctx)
	return result, nil
}

// flagRefund records money received on a payment that settles nothing.
// The borrowing and inventory are left alone.
func (s *paymentService) flagRefund(tx *gorm.DB, payment *models.Payment, status models.PaymentStatus, now time.Time, result *ConfirmResult) error {
	if err := s.paymentRepo.MarkRefundDue(tx, payment.ID, status, now); err != nil {
		if errors.Is(err, repositories.ErrNotPending) {
			result.AlreadyPaid = true
			return nil
		}
		return err
	}
	paidAt := now.UTC()
	payment.Status = status
	payment.RefundDue = true
	payment.PaidAt = &paidAt
	result.RefundDue = true
	return s.notifier.Enqueue(tx, notify.EventRefundDue, newPaymentPayload(payment))
}

// returnAfterFine closes a borrowing whose fine has just been paid. Callers
// hold the borrowing row lock and have checked it is still active.
func (s *paymentService) returnAfterFine(tx *gorm.DB, b *models.Borrowing, today time.Time) error {
	if err := s.borrowingRepo.MarkReturned(tx, b.ID, today); err != nil {
		return err
	}
	if err := s.bookRepo.AdjustInventory(tx, b.BookID, 1); err != nil {
		return err
	}
	b.ActualReturnDate = &today
	return s.notifier.Enqueue(tx, notify.EventBorrowingReturned, newBorrowingPayload(b))
}

// Cancel handles the provider's cancel redirect. Nothing changes; the pending
// session stays payable until the provider expires it.
func (s *paymentService) Cancel(ctx context.Context, borrowingID uuid.UUID) error {
	if _, err := s.borrowingRepo.GetByID(s.db.WithContext(ctx), borrowingID); err != nil {
		if repositories.IsNotFound(err) {
			return ErrBorrowingNotFound
		}
		return err
	}
	s.log.Info("checkout canceled by user", "borrowing_id", borrowingID)
	return nil
}
