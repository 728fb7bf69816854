// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"

	"libraledger/internal/ledger"
)

// BookParams are the caller-settable fields of a book. Status and
// available copies are derived and never accepted from callers.
type BookParams struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	TotalCopies int    `json:"total_copies"`
}

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, params BookParams) (*ledger.Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*ledger.Book, error)
	ListBooks(ctx context.Context) ([]*ledger.Book, error)
	AvailableBooks(ctx context.Context) ([]*ledger.Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, params BookParams) (*ledger.Book, error)
	SetBookStatus(ctx context.Context, id uuid.UUID, status ledger.BookStatus) (*ledger.Book, error)
	RemoveBook(ctx context.Context, id uuid.UUID) error
}
