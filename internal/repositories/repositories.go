package repositories

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"librarylending/internal/models"
)

var (
	// ErrInventoryExhausted is returned when a decrement would take a book's inventory below zero.
	ErrInventoryExhausted = errors.New("book inventory exhausted")

	// ErrAlreadyReturned is returned when a borrowing already has an actual return date.
	ErrAlreadyReturned = errors.New("borrowing already returned")

	// ErrNotPending is returned when a payment has already left the PENDING state.
	ErrNotPending = errors.New("payment is not pending")

	// ErrDuplicateSession is returned when a payment row for the same checkout session exists.
	ErrDuplicateSession = errors.New("payment for this checkout session already recorded")
)

// Page limits a list query. A zero Limit returns every row.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(db *gorm.DB) *gorm.DB {
	if p.Limit > 0 {
		db = db.Limit(p.Limit).Offset(p.Offset)
	}
	return db
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isUniqueViolation recognises unique-constraint failures from either the
// translated gorm error or a raw PostgreSQL error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ─── Books ────────────────────────────────────────────────────────────────────

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	Update(db *gorm.DB, book *models.Book) error
	Delete(db *gorm.DB, id uuid.UUID) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	List(db *gorm.DB, page Page) ([]models.Book, int64, error)
	AdjustInventory(db *gorm.DB, id uuid.UUID, delta int) error
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) Update(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(book).
		Select("title", "author", "cover", "inventory", "daily_fee").
		Updates(book)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Book{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := forUpdate(db).First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) List(db *gorm.DB, page Page) ([]models.Book, int64, error) {
	if db == nil {
		db = r.db
	}
	var total int64
	if err := db.Model(&models.Book{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var books []models.Book
	if err := page.apply(db.Order("created_at ASC, id ASC")).Find(&books).Error; err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// AdjustInventory adds delta to the book's inventory. The update only matches
// while the result stays non-negative, so concurrent decrements can never
// drive inventory below zero even without a prior row lock.
func (r *bookRepository) AdjustInventory(db *gorm.DB, id uuid.UUID, delta int) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND inventory + ? >= 0", id, delta).
		UpdateColumn("inventory", gorm.Expr("inventory + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInventoryExhausted
	}
	return nil
}
