package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"librarylending/internal/apperr"
	"librarylending/internal/models"
	"librarylending/internal/notify"
	"librarylending/internal/platform/logger"
	"librarylending/internal/repositories"
)

// ReturnOutcome tells the caller whether a return closed the borrowing.
type ReturnOutcome string

const (
	ReturnCompleted    ReturnOutcome = "returned"
	ReturnFineRequired ReturnOutcome = "fine_required"
)

// BorrowResult is a new borrowing together with its pending rental payment.
type BorrowResult struct {
	Borrowing *models.Borrowing
	Payment   *models.Payment
}

// ReturnResult carries the fine payment when Outcome is ReturnFineRequired.
type ReturnResult struct {
	Outcome   ReturnOutcome
	Borrowing *models.Borrowing
	Fine      *models.Payment
}

// BorrowingQuery filters a listing. UserID is honoured for staff only.
type BorrowingQuery struct {
	UserID     *uuid.UUID
	ActiveOnly bool
	Page       repositories.Page
}

// BorrowingService defines the borrowing ledger operations.
type BorrowingService interface {
	Borrow(ctx context.Context, actor models.Actor, bookID uuid.UUID, expectedReturnDate time.Time) (*BorrowResult, error)
	Return(ctx context.Context, actor models.Actor, borrowingID uuid.UUID) (*ReturnResult, error)
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Borrowing, error)
	List(ctx context.Context, actor models.Actor, q BorrowingQuery) ([]models.Borrowing, int64, error)
	ListOverdue(ctx context.Context, actor models.Actor, page repositories.Page) ([]models.Borrowing, int64, error)
}

type borrowingService struct {
	db            *gorm.DB
	bookRepo      repositories.BookRepository
	borrowingRepo repositories.BorrowingRepository
	paymentRepo   repositories.PaymentRepository
	sessions      CheckoutSessions
	notifier      Notifier
	log           *logger.Logger
	now           Clock
}

// NewBorrowingService wires up all dependencies and returns a BorrowingService.
func NewBorrowingService(
	db *gorm.DB,
	bookRepo repositories.BookRepository,
	borrowingRepo repositories.BorrowingRepository,
	paymentRepo repositories.PaymentRepository,
	sessions CheckoutSessions,
	notifier Notifier,
	log *logger.Logger,
	now Clock,
) BorrowingService {
	if now == nil {
		now = time.Now
	}
	return &borrowingService{
		db:            db,
		bookRepo:      bookRepo,
		borrowingRepo: borrowingRepo,
		paymentRepo:   paymentRepo,
		sessions:      sessions,
		notifier:      notifier,
		log:           log.With("service", "BorrowingService"),
		now:           now,
	}
}

// ─── Borrow ───────────────────────────────────────────────────────────────────

// Borrow implements the transactional borrow flow.
//
// Steps (all in one transaction):
//  1. Lock the book row (FOR UPDATE) and reject an empty shelf.
//  2. Insert the borrowing with borrow_date = today.
//  3. Decrement inventory with a guarded update.
//  4. Open the rental checkout session and record a pending PAYMENT.
//  5. Store the borrowing.created notification.
//
// A provider failure rolls everything back. A failure after the provider call
// leaves an unrecorded session at the provider; it is logged for reconciliation.
func (s *borrowingService) Borrow(ctx context.Context, actor models.Actor, bookID uuid.UUID, expectedReturnDate time.Time) (*BorrowResult, error) {
	today := models.DateOf(s.now())
	expected := models.DateOf(expectedReturnDate)
	if expected.Before(today) {
		return nil, ErrExpectedReturnInPast
	}

	var result *BorrowResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, bookID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return ErrBookNotFound
			}
			return err
		}
		if book.Inventory <= 0 {
			s.log.Info("borrow rejected, out of stock", "book_id", bookID, "user_id", actor.UserID)
			return ErrOutOfStock
		}

		borrowing := &models.Borrowing{
			BookID:             book.ID,
			UserID:             actor.UserID,
			BorrowDate:         today,
			ExpectedReturnDate: expected,
			CreatedAt:          s.now().UTC(),
		}
		if err := s.borrowingRepo.Create(tx, borrowing); err != nil {
			s.log.Error("create borrowing failed", "book_id", bookID, "error", err)
			return err
		}
		if err := s.bookRepo.AdjustInventory(tx, book.ID, -1); err != nil {
			if errors.Is(err, repositories.ErrInventoryExhausted) {
				return ErrOutOfStock
			}
			return err
		}
		book.Inventory--
		borrowing.Book = *book

		session, err := s.sessions.OpenRentalSession(ctx, borrowing)
		if err != nil {
			return err
		}
		payment := &models.Payment{
			BorrowingID: borrowing.ID,
			Status:      models.PaymentStatusPending,
			Type:        models.PaymentTypePayment,
			SessionID:   session.ID,
			SessionURL:  session.URL,
			MoneyToPay:  session.Amount,
			CreatedAt:   s.now().UTC(),
		}
		if err := s.paymentRepo.Create(tx, payment); err != nil {
			s.log.Error("unrecorded checkout session", "session", session.ID, "borrowing_id", borrowing.ID, "error", err)
			return err
		}
		if err := s.notifier.Enqueue(tx, notify.EventBorrowingCreated, newBorrowingPayload(borrowing)); err != nil {
			return err
		}
		borrowing.Payments = []models.Payment{*payment}
		result = &BorrowResult{Borrowing: borrowing, Payment: payment}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == "" {
			s.log.Error("borrow transaction failed", "book_id", bookID, "user_id", actor.UserID, "error", err)
		}
		return nil, err
	}

	s.log.Info("borrowing created",
		"borrowing_id", result.Borrowing.ID,
		"book_id", bookID,
		"user_id", actor.UserID,
		"expected_return_date", expected.Format(time.DateOnly),
		"payment_id", result.Payment.ID,
	)
	s.notifier.Flush(ctx)
	return result, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// Return implements the transactional return flow.
//
// On time (today <= expected return date) the borrowing is closed and the copy
// goes back on the shelf. Late, the borrowing stays open and a FINE payment is
// opened instead; the success callback for that fine performs the return.
// A pending fine opened earlier the same day is handed back rather than
// opening a second session. A fine from an earlier day is superseded by the
// repriced one.
func (s *borrowingService) Return(ctx context.Context, actor models.Actor, borrowingID uuid.UUID) (*ReturnResult, error) {
	today := models.DateOf(s.now())

	var result *ReturnResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the borrowing row to prevent concurrent double-returns.
		borrowing, err := s.borrowingRepo.GetByIDForUpdate(tx, borrowingID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return ErrBorrowingNotFound
			}
			return err
		}
		if !actor.CanSee(borrowing.UserID) {
			return ErrBorrowingNotFound
		}
		if !borrowing.IsActive() {
			s.log.Warn("return rejected, already returned", "borrowing_id", borrowingID, "returned_on", borrowing.ActualReturnDate.Format(time.DateOnly))
			return ErrAlreadyReturned
		}

		if !borrowing.IsOverdue(today) {
			if err := s.closeBorrowing(tx, borrowing, today); err != nil {
				return err
			}
			result = &ReturnResult{Outcome: ReturnCompleted, Borrowing: borrowing}
			return nil
		}

		existing, err := s.paymentRepo.FindPending(tx, borrowing.ID, models.PaymentTypeFine)
		switch {
		case err == nil && models.DateOf(existing.CreatedAt).Equal(today):
			result = &ReturnResult{Outcome: ReturnFineRequired, Borrowing: borrowing, Fine: existing}
			return nil
		case err != nil && !repositories.IsNotFound(err):
			return err
		}

		session, err := s.sessions.OpenFineSession(ctx, borrowing, today)
		if err != nil {
			return err
		}
		fine := &models.Payment{
			BorrowingID: borrowing.ID,
			Status:      models.PaymentStatusPending,
			Type:        models.PaymentTypeFine,
			SessionID:   session.ID,
			SessionURL:  session.URL,
			MoneyToPay:  session.Amount,
			CreatedAt:   s.now().UTC(),
		}
		if err := s.paymentRepo.Create(tx, fine); err != nil {
			s.log.Error("unrecorded checkout session", "session", session.ID, "borrowing_id", borrowing.ID, "error", err)
			return err
		}
		// Older fines were priced for an earlier day; only the new one may settle the borrowing.
		superseded, err := s.paymentRepo.SupersedePending(tx, borrowing.ID, models.PaymentTypeFine, fine.ID)
		if err != nil {
			return err
		}
		if superseded > 0 {
			s.log.Info("stale fines superseded", "borrowing_id", borrowing.ID, "count", superseded, "payment_id", fine.ID)
		}
		if err := s.notifier.Enqueue(tx, notify.EventFineRequested, newPaymentPayload(fine)); err != nil {
			return err
		}
		result = &ReturnResult{Outcome: ReturnFineRequired, Borrowing: borrowing, Fine: fine}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == "" {
			s.log.Error("return transaction failed", "borrowing_id", borrowingID, "error", err)
		}
		return nil, err
	}

	switch result.Outcome {
	case ReturnCompleted:
		s.log.Info("borrowing returned", "borrowing_id", borrowingID, "book_id", result.Borrowing.BookID)
	case ReturnFineRequired:
		s.log.Info("fine required before return", "borrowing_id", borrowingID, "payment_id", result.Fine.ID, "amount", result.Fine.MoneyToPay.StringFixed(2))
	}
	s.notifier.Flush(ctx)
	return result, nil
}

// closeBorrowing stamps the return date and puts the copy back on the shelf.
// Callers hold the borrowing row lock.
func (s *borrowingService) closeBorrowing(tx *gorm.DB, b *models.Borrowing, today time.Time) error {
	if err := s.borrowingRepo.MarkReturned(tx, b.ID, today); err != nil {
		if errors.Is(err, repositories.ErrAlreadyReturned) {
			return ErrAlreadyReturned
		}
		return err
	}
	if err := s.bookRepo.AdjustInventory(tx, b.BookID, 1); err != nil {
		return err
	}
	b.ActualReturnDate = &today
	b.Book.Inventory++
	return s.notifier.Enqueue(tx, notify.EventBorrowingReturned, newBorrowingPayload(b))
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// Get returns a borrowing with its book and payments. Borrowings of other
// users are reported as missing to non-staff actors.
func (s *borrowingService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Borrowing, error) {
	b, err := s.borrowingRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, ErrBorrowingNotFound
		}
		return nil, err
	}
	if !actor.CanSee(b.UserID) {
		return nil, ErrBorrowingNotFound
	}
	return b, nil
}

// List scopes non-staff actors to their own borrowings regardless of the
// requested user, then applies the active filter.
func (s *borrowingService) List(ctx context.Context, actor models.Actor, q BorrowingQuery) ([]models.Borrowing, int64, error) {
	filter := repositories.BorrowingFilter{ActiveOnly: q.ActiveOnly, Page: q.Page}
	switch {
	case !actor.IsStaff:
		own := actor.UserID
		filter.UserID = &own
	case q.UserID != nil:
		filter.UserID = q.UserID
	}
	return s.borrowingRepo.List(s.db.WithContext(ctx), filter)
}

// ListOverdue returns active borrowings past their expected return date.
// It backs the external overdue scanner and is staff-only.
func (s *borrowingService) ListOverdue(ctx context.Context, actor models.Actor, page repositories.Page) ([]models.Borrowing, int64, error) {
	if !actor.IsStaff {
		return nil, 0, ErrStaffOnly
	}
	return s.borrowingRepo.ListOverdue(s.db.WithContext(ctx), s.now(), page)
}
