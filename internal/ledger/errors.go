// internal/ledger/errors.go
package ledger

import "errors"

// Lookup failures: the referenced entity does not exist.
var (
	ErrBookNotFound        = errors.New("book not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrFineNotFound        = errors.New("fine not found")
)

// Business-rule violations: the entities exist but the operation is not
// allowed in their current state. Each names exactly one violated rule.
var (
	ErrMemberNotActive     = errors.New("member is not active")
	ErrBorrowLimitExceeded = errors.New("member has reached the borrowing limit")
	ErrUnpaidFinesExist    = errors.New("member has unpaid fines")
	ErrBookUnavailable     = errors.New("book is not available")
	ErrAlreadyReturned     = errors.New("book already returned")
	ErrFineAlreadyPaid     = errors.New("fine already paid")

	// ErrCopiesBelowLoans rejects shrinking a book's total copies below
	// the number currently on loan.
	ErrCopiesBelowLoans = errors.New("total copies cannot drop below copies on loan")

	// ErrStatusNotSettable rejects caller attempts to set an
	// engine-owned book status.
	ErrStatusNotSettable = errors.New("book status is managed by circulation")
)

// Uniqueness violations on caller-supplied identity fields.
var (
	ErrDuplicateISBN             = errors.New("a book with this isbn already exists")
	ErrDuplicateEmail            = errors.New("a member with this email already exists")
	ErrDuplicateMembershipNumber = errors.New("a member with this membership number already exists")
)

// ErrInvalidArgument rejects malformed caller input before any state is
// touched.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrBusy is returned when lock acquisition fails under contention; the
// operation had no effect and may be retried by the caller.
var ErrBusy = errors.New("store is busy, retry")

// IsNotFound reports whether err is a lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrFineNotFound)
}

// IsPreconditionFailed reports whether err is a business-rule violation.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrMemberNotActive) ||
		errors.Is(err, ErrBorrowLimitExceeded) ||
		errors.Is(err, ErrUnpaidFinesExist) ||
		errors.Is(err, ErrBookUnavailable) ||
		errors.Is(err, ErrAlreadyReturned) ||
		errors.Is(err, ErrFineAlreadyPaid) ||
		errors.Is(err, ErrCopiesBelowLoans) ||
		errors.Is(err, ErrStatusNotSettable) ||
		errors.Is(err, ErrDuplicateISBN) ||
		errors.Is(err, ErrDuplicateEmail) ||
		errors.Is(err, ErrDuplicateMembershipNumber)
}
