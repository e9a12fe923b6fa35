package fees

import (
	"time"

	"github.com/shopspring/decimal"

	"librarylending/internal/models"
)

// DefaultFineMultiplier is applied to the daily fee for every overdue day.
const DefaultFineMultiplier = 2

var hundred = decimal.NewFromInt(100)

// DaysBetween returns the number of whole calendar days from one date to another.
// Both are truncated to midnight UTC first, so time of day never matters.
func DaysBetween(from, to time.Time) int {
	return int(models.DateOf(to).Sub(models.DateOf(from)).Hours() / 24)
}

// RentalAmount is the up-front charge for a borrowing. Both the first and the
// last day are billed.
func RentalAmount(borrowDate, expectedReturnDate time.Time, dailyFee decimal.Decimal) decimal.Decimal {
	days := DaysBetween(borrowDate, expectedReturnDate)
	if days < 0 {
		days = 0
	}
	return dailyFee.Mul(decimal.NewFromInt(int64(days + 1)))
}

// FineAmount is the overdue charge on a book handed back on today.
//
// Rules:
//   - No fine when today is on or before the expected return date.
//   - Otherwise (days overdue + 1) days are billed at dailyFee * multiplier.
func FineAmount(expectedReturnDate, today time.Time, dailyFee decimal.Decimal, multiplier int) decimal.Decimal {
	overdue := DaysBetween(expectedReturnDate, today)
	if overdue < 1 {
		return decimal.Zero
	}
	return dailyFee.
		Mul(decimal.NewFromInt(int64(overdue + 1))).
		Mul(decimal.NewFromInt(int64(multiplier)))
}

// MinorUnits converts an amount to integer cents, truncating any fraction of a cent.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Truncate(0).IntPart()
}

// FromMinorUnits converts integer cents back to a currency amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
