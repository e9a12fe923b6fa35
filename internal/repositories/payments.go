package repositories

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"librarylending/internal/models"
)

// PaymentFilter narrows a payment listing to the borrowings of one user when UserID is set.
type PaymentFilter struct {
	UserID *uuid.UUID
	Page   Page
}

type PaymentRepository interface {
	Create(db *gorm.DB, payment *models.Payment) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Payment, error)
	GetBySessionIDForUpdate(db *gorm.DB, sessionID string) (*models.Payment, error)
	FindPending(db *gorm.DB, borrowingID uuid.UUID, kind models.PaymentType) (*models.Payment, error)
	List(db *gorm.DB, filter PaymentFilter) ([]models.Payment, int64, error)
	MarkPaid(db *gorm.DB, id uuid.UUID, paidAt time.Time) error
	SupersedePending(db *gorm.DB, borrowingID uuid.UUID, kind models.PaymentType, keepID uuid.UUID) (int64, error)
	MarkRefundDue(db *gorm.DB, id uuid.UUID, status models.PaymentStatus, paidAt time.Time) error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(db *gorm.DB, payment *models.Payment) error {
	if db == nil {
		db = r.db
	}
	if err := db.Omit("Borrowing").Create(payment).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSession
		}
		return err
	}
	return nil
}

func (r *paymentRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Payment, error) {
	if db == nil {
		db = r.db
	}
	var p models.Payment
	if err := db.Preload("Borrowing.Book").First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) GetBySessionIDForUpdate(db *gorm.DB, sessionID string) (*models.Payment, error) {
	if db == nil {
		db = r.db
	}
	var p models.Payment
	if err := forUpdate(db).First(&p, "session_id = ?", sessionID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPending returns the newest pending payment of the given type on a borrowing.
func (r *paymentRepository) FindPending(db *gorm.DB, borrowingID uuid.UUID, kind models.PaymentType) (*models.Payment, error) {
	if db == nil {
		db = r.db
	}
	var p models.Payment
	err := db.
		Where("borrowing_id = ? AND type = ? AND status = ?", borrowingID, kind, models.PaymentStatusPending).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) List(db *gorm.DB, filter PaymentFilter) ([]models.Payment, int64, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Payment{})
	if filter.UserID != nil {
		q = q.Where("borrowing_id IN (?)",
			db.Model(&models.Borrowing{}).Select("id").Where("user_id = ?", *filter.UserID))
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Payment
	if err := filter.Page.apply(q.Order("created_at ASC, id ASC")).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// MarkPaid moves a pending payment to PAID and zeroes the amount owed.
// It matches only PENDING rows, so a replayed call reports ErrNotPending.
func (r *paymentRepository) MarkPaid(db *gorm.DB, id uuid.UUID, paidAt time.Time) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":       models.PaymentStatusPaid,
			"money_to_pay": decimal.Zero,
			"paid_at":      paidAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

// SupersedePending retires every other pending payment of kind on a borrowing
// and returns how many rows it touched.
func (r *paymentRepository) SupersedePending(db *gorm.DB, borrowingID uuid.UUID, kind models.PaymentType, keepID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Payment{}).
		Where("borrowing_id = ? AND type = ? AND status = ? AND id <> ?", borrowingID, kind, models.PaymentStatusPending, keepID).
		Update("status", models.PaymentStatusSuperseded)
	return res.RowsAffected, res.Error
}

// MarkRefundDue records money received for a payment that can no longer settle
// anything. The amount is kept as the sum to refund. Only unflagged PENDING or
// SUPERSEDED rows match; anything else reports ErrNotPending.
func (r *paymentRepository) MarkRefundDue(db *gorm.DB, id uuid.UUID, status models.PaymentStatus, paidAt time.Time) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Payment{}).
		Where("id = ? AND refund_due = ? AND status IN ?", id, false,
			[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusSuperseded}).
		Updates(map[string]interface{}{
			"status":     status,
			"refund_due": true,
			"paid_at":    paidAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}
