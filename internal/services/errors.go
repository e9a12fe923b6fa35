package services

import "librarylending/internal/apperr"

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrOutOfStock is returned when a borrow is attempted on a book with no inventory left.
	ErrOutOfStock = apperr.Validation("book", "This book is out of stock.")

	// ErrExpectedReturnInPast is returned when the expected return date precedes the borrow date.
	ErrExpectedReturnInPast = apperr.Validation("expected_return_date", "Expected return date cannot be earlier than today.")

	// ErrAlreadyReturned is returned when a return is attempted on a closed borrowing.
	ErrAlreadyReturned = apperr.Conflict("This borrowing has already been returned.")

	// ErrBookNotFound is returned when the referenced book does not exist.
	ErrBookNotFound = apperr.NotFound("Book not found.")

	// ErrBorrowingNotFound is returned when the borrowing does not exist or belongs to someone else.
	ErrBorrowingNotFound = apperr.NotFound("Borrowing not found.")

	// ErrPaymentNotFound is returned when the payment does not exist or belongs to someone else.
	ErrPaymentNotFound = apperr.NotFound("Payment not found.")

	// ErrBookInUse is returned when deleting a book that still has active borrowings.
	ErrBookInUse = apperr.Conflict("This book has active borrowings and cannot be deleted.")

	// ErrStaffOnly is returned when a non-staff actor calls a staff operation.
	ErrStaffOnly = apperr.Permission("You do not have permission to perform this action.")
)

const (
	MsgReturned        = "This book was successfully returned."
	MsgFineRequired    = "You must pay the fine before returning the book."
	MsgPaymentSuccess  = "Payment was successfully processed"
	MsgFineSuccess     = "Payment fine was successfully processed"
	MsgPaymentCanceled = "Payment can be paid later. The session is available for only 24h"
	MsgRefundDue       = "This fine no longer applies. The payment will be refunded."
)
