// internal/store/store.go
package store

import (
	"context"

	"github.com/google/uuid"

	"libraledger/internal/ledger"
)

// Tx is one atomic unit of work against the entity store. All reads that
// feed a write decision go through the ForUpdate getters, which acquire an
// exclusive row lock before returning the row (lock-then-read). Lock
// acquisition order is fixed across the codebase: the entry row
// (Transaction or Fine) first, then Member, then Book. No operation
// acquires locks against that order, so lock waits cannot cycle.
type Tx interface {
	MemberForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Member, error)
	BookForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Book, error)
	TransactionForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error)
	FineForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Fine, error)

	// Derived-state queries, consistent with the locks already held.
	CountMemberLoans(ctx context.Context, memberID uuid.UUID) (int, error)
	CountMemberOverdue(ctx context.Context, memberID uuid.UUID) (int, error)
	MemberHasUnpaidFines(ctx context.Context, memberID uuid.UUID) (bool, error)

	InsertTransaction(ctx context.Context, t *ledger.Transaction) error
	UpdateTransaction(ctx context.Context, t *ledger.Transaction) error
	InsertFine(ctx context.Context, f *ledger.Fine) error
	UpdateFine(ctx context.Context, f *ledger.Fine) error
	UpdateBook(ctx context.Context, b *ledger.Book) error
	UpdateBookCirculation(ctx context.Context, id uuid.UUID, availableCopies int, status ledger.BookStatus) error
	UpdateMemberStatus(ctx context.Context, id uuid.UUID, status ledger.MemberStatus) error
}

// Store is the entity store plus its transaction coordinator. Mutations of
// derived fields happen only inside Atomically; the plain methods are
// single-row CRUD and read-only views.
type Store interface {
	// Atomically runs fn inside a transaction. The transaction commits
	// when fn returns nil and rolls back when fn returns an error; partial
	// writes are never observable. Errors from fn are returned unchanged.
	Atomically(ctx context.Context, fn func(tx Tx) error) error

	InsertBook(ctx context.Context, b *ledger.Book) error
	GetBook(ctx context.Context, id uuid.UUID) (*ledger.Book, error)
	ListBooks(ctx context.Context) ([]*ledger.Book, error)
	ListAvailableBooks(ctx context.Context) ([]*ledger.Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error

	InsertMember(ctx context.Context, m *ledger.Member) error
	GetMember(ctx context.Context, id uuid.UUID) (*ledger.Member, error)
	ListMembers(ctx context.Context) ([]*ledger.Member, error)
	UpdateMember(ctx context.Context, m *ledger.Member) error
	DeleteMember(ctx context.Context, id uuid.UUID) error

	GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error)
	ListTransactions(ctx context.Context) ([]*ledger.Transaction, error)
	ListMemberLoans(ctx context.Context, memberID uuid.UUID) ([]*ledger.Transaction, error)
	ListOverdueTransactions(ctx context.Context) ([]*ledger.Transaction, error)

	GetFine(ctx context.Context, id uuid.UUID) (*ledger.Fine, error)
	ListFines(ctx context.Context) ([]*ledger.Fine, error)
}
