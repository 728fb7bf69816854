// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"libraledger/internal/ledger"
	"libraledger/internal/store"
)

// service implements the Service interface.
type service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a new catalog service instance.
func NewService(st store.Store) Service {
	return &service{store: st, now: time.Now}
}

func validateParams(params BookParams) error {
	if params.ISBN == "" || params.Title == "" {
		return fmt.Errorf("isbn and title are required: %w", ledger.ErrInvalidArgument)
	}
	if params.TotalCopies < 0 {
		return fmt.Errorf("total copies cannot be negative: %w", ledger.ErrInvalidArgument)
	}
	return nil
}

// AddBook creates a book with every copy available.
func (s *service) AddBook(ctx context.Context, params BookParams) (*ledger.Book, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	book := &ledger.Book{
		ID:              uuid.New(),
		ISBN:            params.ISBN,
		Title:           params.Title,
		Author:          params.Author,
		Category:        params.Category,
		Status:          ledger.BookAvailable,
		TotalCopies:     params.TotalCopies,
		AvailableCopies: params.TotalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.InsertBook(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*ledger.Book, error) {
	return s.store.GetBook(ctx, id)
}

func (s *service) ListBooks(ctx context.Context) ([]*ledger.Book, error) {
	return s.store.ListBooks(ctx)
}

func (s *service) AvailableBooks(ctx context.Context) ([]*ledger.Book, error) {
	return s.store.ListAvailableBooks(ctx)
}

// UpdateBook changes the caller-settable fields. Shrinking the total runs
// against the copies currently on loan, so the book row is locked while
// the new availability is derived.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, params BookParams) (*ledger.Book, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	var updated *ledger.Book
	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		book, err := tx.BookForUpdate(ctx, id)
		if err != nil {
			return err
		}

		onLoan := book.TotalCopies - book.AvailableCopies
		if params.TotalCopies < onLoan {
			return ledger.ErrCopiesBelowLoans
		}

		book.ISBN = params.ISBN
		book.Title = params.Title
		book.Author = params.Author
		book.Category = params.Category
		book.TotalCopies = params.TotalCopies
		book.AvailableCopies = params.TotalCopies - onLoan

		switch book.Status {
		case ledger.BookAvailable:
			if book.AvailableCopies == 0 {
				book.Status = ledger.BookBorrowed
			}
		case ledger.BookBorrowed:
			if book.AvailableCopies > 0 {
				book.Status = ledger.BookAvailable
			}
		case ledger.BookReserved, ledger.BookMaintenance:
			// Externally set states stay until cleared explicitly.
		}

		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}
		updated = book
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetBookStatus moves a book in or out of the externally managed states.
// Borrowed is engine-owned and cannot be requested; available resolves to
// borrowed when no copies are free.
func (s *service) SetBookStatus(ctx context.Context, id uuid.UUID, status ledger.BookStatus) (*ledger.Book, error) {
	switch status {
	case ledger.BookReserved, ledger.BookMaintenance, ledger.BookAvailable:
	case ledger.BookBorrowed:
		return nil, ledger.ErrStatusNotSettable
	default:
		return nil, fmt.Errorf("unknown book status %q: %w", status, ledger.ErrStatusNotSettable)
	}

	var updated *ledger.Book
	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		book, err := tx.BookForUpdate(ctx, id)
		if err != nil {
			return err
		}

		next := status
		if next == ledger.BookAvailable && book.AvailableCopies == 0 {
			next = ledger.BookBorrowed
		}
		if err := tx.UpdateBookCirculation(ctx, id, book.AvailableCopies, next); err != nil {
			return err
		}
		book.Status = next
		updated = book
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveBook deletes the book and, through the store's cascades, its
// transactions and their fines.
func (s *service) RemoveBook(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteBook(ctx, id)
}
