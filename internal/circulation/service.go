// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"

	"libraledger/internal/ledger"
)

// Service defines the interface for the circulation engine and its
// read-only views.
type Service interface {
	// Borrow creates an active loan for the member on the book, enforcing
	// the member's standing, the borrowing limit, unpaid fines, and the
	// book's availability.
	Borrow(ctx context.Context, memberID, bookID uuid.UUID) (*ledger.Transaction, error)

	// Return closes a loan, assessing a fine when the book comes back
	// after its due date, and restores the book's availability.
	Return(ctx context.Context, transactionID uuid.UUID) (*ledger.Transaction, error)

	// PayFine settles an outstanding fine.
	PayFine(ctx context.Context, fineID uuid.UUID) (*ledger.Fine, error)

	ActiveLoans(ctx context.Context, memberID uuid.UUID) ([]*ledger.Transaction, error)
	OverdueTransactions(ctx context.Context) ([]*ledger.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error)
	ListTransactions(ctx context.Context) ([]*ledger.Transaction, error)
	GetFine(ctx context.Context, id uuid.UUID) (*ledger.Fine, error)
	ListFines(ctx context.Context) ([]*ledger.Fine, error)
}
