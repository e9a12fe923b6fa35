package services

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarylending/internal/apperr"
	"librarylending/internal/models"
	"librarylending/internal/repositories"
	"librarylending/internal/testutil"
)

func validInput() BookInput {
	return BookInput{
		Title:     "Kindred",
		Author:    "Octavia E. Butler",
		Cover:     models.CoverHard,
		Inventory: 4,
		DailyFee:  decimal.RequireFromString("0.50"),
	}
}

func TestCreateBook(t *testing.T) {
	f := newFixture(t)

	book, err := f.catalog.CreateBook(f.ctx, f.staff, validInput())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, book.ID)

	got, err := f.catalog.GetBook(f.ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kindred", got.Title)
	assert.Equal(t, models.CoverHard, got.Cover)
	assert.Equal(t, 4, got.Inventory)
	assert.True(t, got.DailyFee.Equal(decimal.RequireFromString("0.50")))
}

func TestCreateBookRequiresStaff(t *testing.T) {
	f := newFixture(t)
	_, err := f.catalog.CreateBook(f.ctx, f.alice, validInput())
	require.ErrorIs(t, err, ErrStaffOnly)
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestCreateBookValidation(t *testing.T) {
	f := newFixture(t)
	in := BookInput{
		Title:     "  ",
		Cover:     "PAPER",
		Inventory: -1,
		DailyFee:  decimal.RequireFromString("0.125"),
	}
	_, err := f.catalog.CreateBook(f.ctx, f.staff, in)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Contains(t, appErr.Fields, "title")
	assert.Contains(t, appErr.Fields, "author")
	assert.Contains(t, appErr.Fields, "cover")
	assert.Contains(t, appErr.Fields, "inventory")
	assert.Equal(t, "Ensure that there are no more than 2 decimal places.", appErr.Fields["daily_fee"])
	assert.Zero(t, f.count(t, &models.Book{}))
}

func TestCreateBookLengthCountsCharacters(t *testing.T) {
	f := newFixture(t)

	in := validInput()
	in.Title = strings.Repeat("é", 200)
	in.Author = strings.Repeat("日", 255)
	book, err := f.catalog.CreateBook(f.ctx, f.staff, in)
	require.NoError(t, err, "multi-byte text within 255 characters is accepted")
	assert.Equal(t, in.Title, book.Title)

	in.Title = strings.Repeat("é", 256)
	in.Author = "Octavia E. Butler"
	_, err = f.catalog.CreateBook(f.ctx, f.staff, in)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "Ensure this field has no more than 255 characters.", appErr.Fields["title"])
	assert.NotContains(t, appErr.Fields, "author")
	assert.Equal(t, int64(1), f.count(t, &models.Book{}))
}

func TestUpdateAndPatchBook(t *testing.T) {
	f := newFixture(t)
	book := testutil.SeedBook(t, f.db, 1, "0.10")

	in := validInput()
	updated, err := f.catalog.UpdateBook(f.ctx, f.staff, book.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Kindred", updated.Title)

	inv := 9
	patched, err := f.catalog.PatchBook(f.ctx, f.staff, book.ID, BookPatch{Inventory: &inv})
	require.NoError(t, err)
	assert.Equal(t, 9, patched.Inventory)
	assert.Equal(t, "Kindred", patched.Title)
	assert.Equal(t, 9, f.inventory(t, book.ID))

	neg := -3
	_, err = f.catalog.PatchBook(f.ctx, f.staff, book.ID, BookPatch{Inventory: &neg})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 9, f.inventory(t, book.ID))

	_, err = f.catalog.PatchBook(f.ctx, f.alice, book.ID, BookPatch{Inventory: &inv})
	assert.ErrorIs(t, err, ErrStaffOnly)

	_, err = f.catalog.UpdateBook(f.ctx, f.staff, uuid.New(), in)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestDeleteBook(t *testing.T) {
	f := newFixture(t)
	idle := testutil.SeedBook(t, f.db, 1, "0.10")
	lent := testutil.SeedBook(t, f.db, 1, "0.10")
	f.borrow(t, f.alice, lent.ID, 1)

	require.ErrorIs(t, f.catalog.DeleteBook(f.ctx, f.staff, lent.ID), ErrBookInUse)
	require.ErrorIs(t, f.catalog.DeleteBook(f.ctx, f.alice, idle.ID), ErrStaffOnly)
	require.NoError(t, f.catalog.DeleteBook(f.ctx, f.staff, idle.ID))
	require.ErrorIs(t, f.catalog.DeleteBook(f.ctx, f.staff, idle.ID), ErrBookNotFound)

	books, total, err := f.catalog.ListBooks(f.ctx, repositories.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, lent.ID, books[0].ID)
}
