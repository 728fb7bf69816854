// internal/store/postgres_test.go
package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraledger/internal/ledger"
)

// setupTestPostgres connects to the database named by DATABASE_URL and
// skips the test when none is reachable.
func setupTestPostgres(t *testing.T) *Postgres {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres store tests")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pg := NewPostgres(db)
	require.NoError(t, pg.Migrate(context.Background()))

	_, err = db.Exec("TRUNCATE TABLE fines, transactions, books, members CASCADE")
	require.NoError(t, err)

	return pg
}

func TestPostgresBookRoundTrip(t *testing.T) {
	pg := setupTestPostgres(t)
	ctx := context.Background()

	book := testBook("isbn-pg-1")
	require.NoError(t, pg.InsertBook(ctx, book))

	got, err := pg.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.ISBN, got.ISBN)
	assert.Equal(t, 3, got.AvailableCopies)

	assert.ErrorIs(t, pg.InsertBook(ctx, testBook("isbn-pg-1")), ledger.ErrDuplicateISBN)

	books, err := pg.ListAvailableBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)

	require.NoError(t, pg.DeleteBook(ctx, book.ID))
	_, err = pg.GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, ledger.ErrBookNotFound)
}

func TestPostgresAtomicallyRollsBack(t *testing.T) {
	pg := setupTestPostgres(t)
	ctx := context.Background()

	book := testBook("isbn-pg-2")
	require.NoError(t, pg.InsertBook(ctx, book))

	boom := errors.New("boom")
	err := pg.Atomically(ctx, func(tx Tx) error {
		if err := tx.UpdateBookCirculation(ctx, book.ID, 0, ledger.BookBorrowed); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := pg.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableCopies)
	assert.Equal(t, ledger.BookAvailable, got.Status)
}

func TestPostgresLockThenReadAndCounts(t *testing.T) {
	pg := setupTestPostgres(t)
	ctx := context.Background()

	book := testBook("isbn-pg-3")
	member := testMember("pg@example.com", "M-PG-1")
	require.NoError(t, pg.InsertBook(ctx, book))
	require.NoError(t, pg.InsertMember(ctx, member))

	trID := uuid.New()
	err := pg.Atomically(ctx, func(tx Tx) error {
		m, err := tx.MemberForUpdate(ctx, member.ID)
		if err != nil {
			return err
		}
		b, err := tx.BookForUpdate(ctx, book.ID)
		if err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &ledger.Transaction{
			ID:         trID,
			BookID:     b.ID,
			MemberID:   m.ID,
			BorrowedAt: b.CreatedAt,
			DueDate:    b.CreatedAt.AddDate(0, 0, 14),
			Status:     ledger.TransactionOverdue,
		}); err != nil {
			return err
		}
		if err := tx.InsertFine(ctx, &ledger.Fine{
			ID:            uuid.New(),
			MemberID:      m.ID,
			TransactionID: trID,
			AmountCents:   150,
		}); err != nil {
			return err
		}

		loans, err := tx.CountMemberLoans(ctx, m.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, loans)
		overdue, err := tx.CountMemberOverdue(ctx, m.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, overdue)
		unpaid, err := tx.MemberHasUnpaidFines(ctx, m.ID)
		if err != nil {
			return err
		}
		assert.True(t, unpaid)
		return nil
	})
	require.NoError(t, err)

	overdue, err := pg.ListOverdueTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, trID, overdue[0].ID)

	// Deleting the member cascades to the transaction and its fine.
	require.NoError(t, pg.DeleteMember(ctx, member.ID))
	fines, err := pg.ListFines(ctx)
	require.NoError(t, err)
	assert.Empty(t, fines)
}
