package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CoverType string

const (
	CoverHard CoverType = "HARD"
	CoverSoft CoverType = "SOFT"
)

func (c CoverType) Valid() bool {
	return c == CoverHard || c == CoverSoft
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	// PaymentStatusSuperseded marks a fine replaced by a repriced one. It can no longer settle the borrowing.
	PaymentStatusSuperseded PaymentStatus = "SUPERSEDED"
)

type PaymentType string

const (
	PaymentTypePayment PaymentType = "PAYMENT"
	PaymentTypeFine    PaymentType = "FINE"
)

// Actor is the authenticated principal a request runs on behalf of.
type Actor struct {
	UserID  uuid.UUID
	IsStaff bool
}

// CanSee reports whether the actor may read a record owned by ownerID.
func (a Actor) CanSee(ownerID uuid.UUID) bool {
	return a.IsStaff || a.UserID == ownerID
}

type Book struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string          `gorm:"size:255;not null" json:"title"`
	Author    string          `gorm:"size:255;not null" json:"author"`
	Cover     CoverType       `gorm:"size:4;not null" json:"cover"`
	Inventory int             `gorm:"not null;check:chk_books_inventory,inventory >= 0" json:"inventory"`
	DailyFee  decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"daily_fee"`
	CreatedAt time.Time       `json:"-"`
	UpdatedAt time.Time       `json:"-"`
}

func (b *Book) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type Borrowing struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BookID             uuid.UUID  `gorm:"type:uuid;not null;index" json:"book_id"`
	Book               Book       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	UserID             uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	BorrowDate         time.Time  `gorm:"type:date;not null" json:"borrow_date"`
	ExpectedReturnDate time.Time  `gorm:"type:date;not null;index" json:"expected_return_date"`
	ActualReturnDate   *time.Time `gorm:"type:date;index" json:"actual_return_date"`
	Payments           []Payment  `gorm:"foreignKey:BorrowingID" json:"-"`
	CreatedAt          time.Time  `gorm:"not null" json:"-"`
}

func (b *Borrowing) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the book has not been handed back yet.
func (b *Borrowing) IsActive() bool {
	return b.ActualReturnDate == nil
}

// IsOverdue reports whether an active borrowing is past its expected return date on today.
func (b *Borrowing) IsOverdue(today time.Time) bool {
	return b.IsActive() && DateOf(today).After(DateOf(b.ExpectedReturnDate))
}

type Payment struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BorrowingID uuid.UUID       `gorm:"type:uuid;not null;index" json:"borrowing_id"`
	Borrowing   Borrowing       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Status      PaymentStatus   `gorm:"size:16;not null;index" json:"status"`
	Type        PaymentType     `gorm:"size:16;not null" json:"type"`
	SessionID   string          `gorm:"size:255;not null;uniqueIndex" json:"session_id"`
	SessionURL  string          `gorm:"type:text;not null" json:"session_url"`
	MoneyToPay  decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"money_to_pay"`
	PaidAt      *time.Time      `json:"paid_at"`
	// RefundDue is set when money arrived for a fine that no longer applied.
	RefundDue bool      `gorm:"not null;default:false;index" json:"refund_due"`
	CreatedAt time.Time `gorm:"not null" json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// OutboxMessage is a notification written in the same transaction as the
// state change it describes and pushed to the work queue after commit.
type OutboxMessage struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Event        string         `gorm:"size:64;not null;index"`
	Payload      datatypes.JSON `gorm:"not null"`
	Attempts     int            `gorm:"not null;default:0"`
	LastError    string         `gorm:"type:text"`
	CreatedAt    time.Time      `gorm:"not null;index"`
	DispatchedAt *time.Time     `gorm:"index"`
}

func (m *OutboxMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// DateOf truncates t to midnight UTC. All borrowing dates are calendar days.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
