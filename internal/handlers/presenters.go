package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"librarylending/internal/models"
)

// Each operation picks its own response shape; models are never rendered directly.

const dateLayout = "2006-01-02"

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

type bookView struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Cover     string    `json:"cover"`
	Inventory int       `json:"inventory"`
	DailyFee  string    `json:"daily_fee"`
}

func newBookView(b *models.Book) bookView {
	return bookView{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		Cover:     string(b.Cover),
		Inventory: b.Inventory,
		DailyFee:  money(b.DailyFee),
	}
}

type borrowingView struct {
	ID                 uuid.UUID `json:"id"`
	Book               uuid.UUID `json:"book"`
	User               uuid.UUID `json:"user"`
	BorrowDate         string    `json:"borrow_date"`
	ExpectedReturnDate string    `json:"expected_return_date"`
	ActualReturnDate   *string   `json:"actual_return_date"`
}

func newBorrowingView(b *models.Borrowing) borrowingView {
	return borrowingView{
		ID:                 b.ID,
		Book:               b.BookID,
		User:               b.UserID,
		BorrowDate:         b.BorrowDate.Format(dateLayout),
		ExpectedReturnDate: b.ExpectedReturnDate.Format(dateLayout),
		ActualReturnDate:   formatDate(b.ActualReturnDate),
	}
}

// borrowingCreatedView is the borrow response: the new borrowing plus the
// rental payment the borrower is redirected to.
type borrowingCreatedView struct {
	borrowingView
	Payment paymentView `json:"payment"`
}

type borrowingListView struct {
	ID                 uuid.UUID `json:"id"`
	Book               bookView  `json:"book"`
	User               uuid.UUID `json:"user"`
	BorrowDate         string    `json:"borrow_date"`
	ExpectedReturnDate string    `json:"expected_return_date"`
	ActualReturnDate   *string   `json:"actual_return_date"`
	IsActive           bool      `json:"is_active"`
}

func newBorrowingListView(b *models.Borrowing) borrowingListView {
	return borrowingListView{
		ID:                 b.ID,
		Book:               newBookView(&b.Book),
		User:               b.UserID,
		BorrowDate:         b.BorrowDate.Format(dateLayout),
		ExpectedReturnDate: b.ExpectedReturnDate.Format(dateLayout),
		ActualReturnDate:   formatDate(b.ActualReturnDate),
		IsActive:           b.IsActive(),
	}
}

type borrowingDetailView struct {
	borrowingListView
	Payments []paymentView `json:"payments"`
}

func newBorrowingDetailView(b *models.Borrowing) borrowingDetailView {
	payments := make([]paymentView, 0, len(b.Payments))
	for i := range b.Payments {
		payments = append(payments, newPaymentView(&b.Payments[i]))
	}
	return borrowingDetailView{borrowingListView: newBorrowingListView(b), Payments: payments}
}

type paymentView struct {
	ID         uuid.UUID `json:"id"`
	Status     string    `json:"status"`
	Type       string    `json:"type"`
	Borrowing  uuid.UUID `json:"borrowing"`
	SessionURL string    `json:"session_url"`
	SessionID  string    `json:"session_id"`
	MoneyToPay string    `json:"money_to_pay"`
	RefundDue  bool      `json:"refund_due"`
}

func newPaymentView(p *models.Payment) paymentView {
	return paymentView{
		ID:         p.ID,
		Status:     string(p.Status),
		Type:       string(p.Type),
		Borrowing:  p.BorrowingID,
		SessionURL: p.SessionURL,
		SessionID:  p.SessionID,
		MoneyToPay: money(p.MoneyToPay),
		RefundDue:  p.RefundDue,
	}
}

type paymentDetailView struct {
	ID         uuid.UUID         `json:"id"`
	Status     string            `json:"status"`
	Type       string            `json:"type"`
	Borrowing  borrowingListView `json:"borrowing"`
	SessionURL string            `json:"session_url"`
	SessionID  string            `json:"session_id"`
	MoneyToPay string            `json:"money_to_pay"`
	RefundDue  bool              `json:"refund_due"`
	PaidAt     *time.Time        `json:"paid_at"`
	CreatedAt  time.Time         `json:"created_at"`
}

func newPaymentDetailView(p *models.Payment) paymentDetailView {
	return paymentDetailView{
		ID:         p.ID,
		Status:     string(p.Status),
		Type:       string(p.Type),
		Borrowing:  newBorrowingListView(&p.Borrowing),
		SessionURL: p.SessionURL,
		SessionID:  p.SessionID,
		MoneyToPay: money(p.MoneyToPay),
		RefundDue:  p.RefundDue,
		PaidAt:     p.PaidAt,
		CreatedAt:  p.CreatedAt,
	}
}

func mapViews[M any, V any](items []M, view func(*M) V) []V {
	out := make([]V, 0, len(items))
	for i := range items {
		out = append(out, view(&items[i]))
	}
	return out
}
