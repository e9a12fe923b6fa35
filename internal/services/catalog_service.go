package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"librarylending/internal/apperr"
	"librarylending/internal/models"
	"librarylending/internal/platform/logger"
	"librarylending/internal/repositories"
)

var maxDailyFee = decimal.RequireFromString("99999999.99")

// BookInput is a full book record as submitted by staff.
type BookInput struct {
	Title     string
	Author    string
	Cover     models.CoverType
	Inventory int
	DailyFee  decimal.Decimal
}

// BookPatch carries only the fields a partial update touches.
type BookPatch struct {
	Title     *string
	Author    *string
	Cover     *models.CoverType
	Inventory *int
	DailyFee  *decimal.Decimal
}

// CatalogService manages the book catalogue. Reads are public; writes are staff-only.
type CatalogService interface {
	CreateBook(ctx context.Context, actor models.Actor, in BookInput) (*models.Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error)
	ListBooks(ctx context.Context, page repositories.Page) ([]models.Book, int64, error)
	UpdateBook(ctx context.Context, actor models.Actor, id uuid.UUID, in BookInput) (*models.Book, error)
	PatchBook(ctx context.Context, actor models.Actor, id uuid.UUID, patch BookPatch) (*models.Book, error)
	DeleteBook(ctx context.Context, actor models.Actor, id uuid.UUID) error
}

type catalogService struct {
	db            *gorm.DB
	bookRepo      repositories.BookRepository
	borrowingRepo repositories.BorrowingRepository
	log           *logger.Logger
}

func NewCatalogService(
	db *gorm.DB,
	bookRepo repositories.BookRepository,
	borrowingRepo repositories.BorrowingRepository,
	log *logger.Logger,
) CatalogService {
	return &catalogService{
		db:            db,
		bookRepo:      bookRepo,
		borrowingRepo: borrowingRepo,
		log:           log.With("service", "CatalogService"),
	}
}

func (s *catalogService) CreateBook(ctx context.Context, actor models.Actor, in BookInput) (*models.Book, error) {
	if !actor.IsStaff {
		return nil, ErrStaffOnly
	}
	book := &models.Book{}
	applyInput(book, in)
	if err := validateBook(book); err != nil {
		return nil, err
	}
	if err := s.bookRepo.Create(s.db.WithContext(ctx), book); err != nil {
		s.log.Error("create book failed", "error", err)
		return nil, err
	}
	s.log.Info("book created", "book_id", book.ID, "title", book.Title, "inventory", book.Inventory)
	return book, nil
}

func (s *catalogService) GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return book, nil
}

func (s *catalogService) ListBooks(ctx context.Context, page repositories.Page) ([]models.Book, int64, error) {
	return s.bookRepo.List(s.db.WithContext(ctx), page)
}

func (s *catalogService) UpdateBook(ctx context.Context, actor models.Actor, id uuid.UUID, in BookInput) (*models.Book, error) {
	return s.mutate(ctx, actor, id, func(b *models.Book) { applyInput(b, in) })
}

func (s *catalogService) PatchBook(ctx context.Context, actor models.Actor, id uuid.UUID, patch BookPatch) (*models.Book, error) {
	return s.mutate(ctx, actor, id, func(b *models.Book) {
		if patch.Title != nil {
			b.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Author != nil {
			b.Author = strings.TrimSpace(*patch.Author)
		}
		if patch.Cover != nil {
			b.Cover = *patch.Cover
		}
		if patch.Inventory != nil {
			b.Inventory = *patch.Inventory
		}
		if patch.DailyFee != nil {
			b.DailyFee = *patch.DailyFee
		}
	})
}

// mutate locks the book row so staff edits serialise with borrows and returns.
func (s *catalogService) mutate(ctx context.Context, actor models.Actor, id uuid.UUID, apply func(*models.Book)) (*models.Book, error) {
	if !actor.IsStaff {
		return nil, ErrStaffOnly
	}
	var updated *models.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, id)
		if err != nil {
			if repositories.IsNotFound(err) {
				return ErrBookNotFound
			}
			return err
		}
		apply(book)
		if err := validateBook(book); err != nil {
			return err
		}
		if err := s.bookRepo.Update(tx, book); err != nil {
			return err
		}
		updated = book
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == "" {
			s.log.Error("update book failed", "book_id", id, "error", err)
		}
		return nil, err
	}
	s.log.Info("book updated", "book_id", id, "inventory", updated.Inventory)
	return updated, nil
}

// DeleteBook removes a book nobody currently holds. Historical borrowings keep
// the row alive through the foreign key, which surfaces as a conflict too.
func (s *catalogService) DeleteBook(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if !actor.IsStaff {
		return ErrStaffOnly
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByIDForUpdate(tx, id); err != nil {
			if repositories.IsNotFound(err) {
				return ErrBookNotFound
			}
			return err
		}
		active, err := s.borrowingRepo.CountActiveForBook(tx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrBookInUse
		}
		if err := s.bookRepo.Delete(tx, id); err != nil {
			if errors.Is(err, gorm.ErrForeignKeyViolated) {
				return ErrBookInUse
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("book deleted", "book_id", id)
	return nil
}

func applyInput(b *models.Book, in BookInput) {
	b.Title = strings.TrimSpace(in.Title)
	b.Author = strings.TrimSpace(in.Author)
	b.Cover = in.Cover
	b.Inventory = in.Inventory
	b.DailyFee = in.DailyFee
}

func validateBook(b *models.Book) error {
	fields := map[string]string{}
	if b.Title == "" {
		fields["title"] = "This field may not be blank."
	} else if utf8.RuneCountInString(b.Title) > 255 {
		fields["title"] = "Ensure this field has no more than 255 characters."
	}
	if b.Author == "" {
		fields["author"] = "This field may not be blank."
	} else if utf8.RuneCountInString(b.Author) > 255 {
		fields["author"] = "Ensure this field has no more than 255 characters."
	}
	if !b.Cover.Valid() {
		fields["cover"] = `"` + string(b.Cover) + `" is not a valid choice.`
	}
	if b.Inventory < 0 {
		fields["inventory"] = "Ensure this value is greater than or equal to 0."
	}
	switch {
	case !b.DailyFee.IsPositive():
		fields["daily_fee"] = "Ensure this value is greater than 0."
	case b.DailyFee.GreaterThan(maxDailyFee):
		fields["daily_fee"] = "Ensure that there are no more than 10 digits in total."
	case !b.DailyFee.Equal(b.DailyFee.Truncate(2)):
		fields["daily_fee"] = "Ensure that there are no more than 2 decimal places."
	}
	if len(fields) > 0 {
		return apperr.ValidationFields(fields)
	}
	return nil
}
