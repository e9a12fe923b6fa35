package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"librarylending/internal/models"
)

// BorrowingFilter narrows a borrowing listing. A nil UserID means every borrower.
type BorrowingFilter struct {
	UserID     *uuid.UUID
	ActiveOnly bool
	Page       Page
}

type BorrowingRepository interface {
	Create(db *gorm.DB, borrowing *models.Borrowing) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Borrowing, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Borrowing, error)
	List(db *gorm.DB, filter BorrowingFilter) ([]models.Borrowing, int64, error)
	ListOverdue(db *gorm.DB, today time.Time, page Page) ([]models.Borrowing, int64, error)
	CountActiveForBook(db *gorm.DB, bookID uuid.UUID) (int64, error)
	MarkReturned(db *gorm.DB, id uuid.UUID, returnedOn time.Time) error
}

type borrowingRepository struct {
	db *gorm.DB
}

func NewBorrowingRepository(db *gorm.DB) BorrowingRepository {
	return &borrowingRepository{db: db}
}

func (r *borrowingRepository) Create(db *gorm.DB, borrowing *models.Borrowing) error {
	if db == nil {
		db = r.db
	}
	return db.Omit("Book", "Payments").Create(borrowing).Error
}

func (r *borrowingRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	var b models.Borrowing
	err := db.
		Preload("Book").
		Preload("Payments", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetByIDForUpdate locks the borrowing row for the rest of the transaction.
// The book is loaded separately and is not locked.
func (r *borrowingRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	var b models.Borrowing
	if err := forUpdate(db).Preload("Book").First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *borrowingRepository) List(db *gorm.DB, filter BorrowingFilter) ([]models.Borrowing, int64, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Borrowing{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.ActiveOnly {
		q = q.Where("actual_return_date IS NULL")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Borrowing
	err := filter.Page.apply(q.Preload("Book").Order("created_at ASC, id ASC")).Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListOverdue returns active borrowings whose expected return date is before today.
func (r *borrowingRepository) ListOverdue(db *gorm.DB, today time.Time, page Page) ([]models.Borrowing, int64, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Borrowing{}).
		Where("actual_return_date IS NULL AND expected_return_date < ?", models.DateOf(today))
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Borrowing
	err := page.apply(q.Preload("Book").Order("expected_return_date ASC, created_at ASC")).Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *borrowingRepository) CountActiveForBook(db *gorm.DB, bookID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Borrowing{}).
		Where("book_id = ? AND actual_return_date IS NULL", bookID).
		Count(&n).Error
	return n, err
}

// MarkReturned sets the actual return date once. A second call matches no row
// and reports ErrAlreadyReturned.
func (r *borrowingRepository) MarkReturned(db *gorm.DB, id uuid.UUID, returnedOn time.Time) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Borrowing{}).
		Where("id = ? AND actual_return_date IS NULL", id).
		Update("actual_return_date", models.DateOf(returnedOn))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyReturned
	}
	return nil
}
