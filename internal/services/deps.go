package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"librarylending/internal/checkout"
	"librarylending/internal/models"
)

// CheckoutSessions opens provider sessions for a borrowing.
type CheckoutSessions interface {
	OpenRentalSession(ctx context.Context, b *models.Borrowing) (*checkout.Session, error)
	OpenFineSession(ctx context.Context, b *models.Borrowing, today time.Time) (*checkout.Session, error)
}

// Notifier records notifications inside a transaction and sends them after commit.
type Notifier interface {
	Enqueue(tx *gorm.DB, event string, payload any) error
	Flush(ctx context.Context)
}

// Clock returns the current time. Services derive "today" from it in UTC.
type Clock func() time.Time

type borrowingPayload struct {
	BorrowingID        uuid.UUID `json:"borrowing_id"`
	BookID             uuid.UUID `json:"book_id"`
	BookTitle          string    `json:"book_title"`
	UserID             uuid.UUID `json:"user_id"`
	BorrowDate         string    `json:"borrow_date"`
	ExpectedReturnDate string    `json:"expected_return_date"`
	ActualReturnDate   string    `json:"actual_return_date,omitempty"`
}

func newBorrowingPayload(b *models.Borrowing) borrowingPayload {
	p := borrowingPayload{
		BorrowingID:        b.ID,
		BookID:             b.BookID,
		BookTitle:          b.Book.Title,
		UserID:             b.UserID,
		BorrowDate:         b.BorrowDate.Format(time.DateOnly),
		ExpectedReturnDate: b.ExpectedReturnDate.Format(time.DateOnly),
	}
	if b.ActualReturnDate != nil {
		p.ActualReturnDate = b.ActualReturnDate.Format(time.DateOnly)
	}
	return p
}

type paymentPayload struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	BorrowingID uuid.UUID `json:"borrowing_id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Amount      string    `json:"amount"`
	SessionID   string    `json:"session_id"`
}

func newPaymentPayload(p *models.Payment) paymentPayload {
	return paymentPayload{
		PaymentID:   p.ID,
		BorrowingID: p.BorrowingID,
		Type:        string(p.Type),
		Status:      string(p.Status),
		Amount:      p.MoneyToPay.StringFixed(2),
		SessionID:   p.SessionID,
	}
}
