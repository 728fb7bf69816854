// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libraledger/internal/ledger"
)

const (
	tableBooks        = "books"
	tableMembers      = "members"
	tableTransactions = "transactions"
	tableFines        = "fines"

	dialectPostgres = "postgres"
)

// Postgres codes that indicate lock contention rather than a fault.
const (
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// Postgres is the PostgreSQL-backed entity store. Row locks are taken with
// SELECT ... FOR UPDATE inside Atomically.
type Postgres struct {
	db          *sqlx.DB
	lockTimeout time.Duration
	tracer      trace.Tracer
}

// PostgresOption configures a Postgres store.
type PostgresOption func(*Postgres)

// WithLockTimeout bounds how long a transaction waits for a row lock.
// Exceeding it surfaces as ledger.ErrBusy; zero waits indefinitely.
func WithLockTimeout(d time.Duration) PostgresOption {
	return func(p *Postgres) {
		p.lockTimeout = d
	}
}

// NewPostgres creates a Postgres store on top of an open connection pool.
func NewPostgres(db *sqlx.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{
		db:     db,
		tracer: otel.Tracer("libraledger/store"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Migrate applies the schema. Uniqueness lives in the database so races on
// duplicate ISBNs or emails fail cleanly; cascading foreign keys implement
// entity ownership.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id UUID PRIMARY KEY,
			isbn TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			category TEXT NOT NULL,
			status TEXT NOT NULL,
			total_copies INT NOT NULL CHECK (total_copies >= 0),
			available_copies INT NOT NULL CHECK (available_copies >= 0 AND available_copies <= total_copies),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS members (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			membership_number TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			book_id UUID NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			member_id UUID NOT NULL REFERENCES members(id) ON DELETE CASCADE,
			borrowed_at TIMESTAMPTZ NOT NULL,
			due_date TIMESTAMPTZ NOT NULL,
			returned_at TIMESTAMPTZ,
			status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fines (
			id UUID PRIMARY KEY,
			member_id UUID NOT NULL REFERENCES members(id) ON DELETE CASCADE,
			transaction_id UUID NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
			amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
			paid_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_member_status ON transactions (member_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_fines_member_unpaid ON fines (member_id) WHERE paid_at IS NULL`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Atomically runs fn in a database transaction, committing on nil and
// rolling back on error.
func (p *Postgres) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	ctx, span := p.tracer.Start(ctx, "store.atomically")
	defer span.End()

	tx, err := p.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if p.lockTimeout > 0 {
		timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, timeout); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		span.SetAttributes(attribute.Bool("rolled_back", true))
		return mapContention(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// mapContention translates lock-contention failures into ledger.ErrBusy;
// everything else passes through untouched.
func mapContention(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqLockNotAvailable, pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%w: %v", ledger.ErrBusy, err)
		}
	}
	return err
}

// mapUniqueViolation translates unique-constraint failures into the
// ledger's duplicate errors, by constraint name.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		switch pqErr.Constraint {
		case "books_isbn_key":
			return ledger.ErrDuplicateISBN
		case "members_email_key":
			return ledger.ErrDuplicateEmail
		case "members_membership_number_key":
			return ledger.ErrDuplicateMembershipNumber
		}
	}
	return err
}

// pgTx implements Tx on a live database transaction.
type pgTx struct {
	tx *sqlx.Tx
}

func buildSelectForUpdate(table string, id uuid.UUID) (string, []interface{}, error) {
	return goqu.Dialect(dialectPostgres).
		From(table).
		Where(goqu.C("id").Eq(id.String())).
		ForUpdate(exp.Wait).
		Prepared(true).
		ToSQL()
}

func (t *pgTx) MemberForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Member, error) {
	query, args, err := buildSelectForUpdate(tableMembers, id)
	if err != nil {
		return nil, fmt.Errorf("build member lock query: %w", err)
	}
	var m ledger.Member
	if err := t.tx.GetContext(ctx, &m, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrMemberNotFound
		}
		return nil, fmt.Errorf("lock member: %w", err)
	}
	return &m, nil
}

func (t *pgTx) BookForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Book, error) {
	query, args, err := buildSelectForUpdate(tableBooks, id)
	if err != nil {
		return nil, fmt.Errorf("build book lock query: %w", err)
	}
	var b ledger.Book
	if err := t.tx.GetContext(ctx, &b, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrBookNotFound
		}
		return nil, fmt.Errorf("lock book: %w", err)
	}
	return &b, nil
}

func (t *pgTx) TransactionForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	query, args, err := buildSelectForUpdate(tableTransactions, id)
	if err != nil {
		return nil, fmt.Errorf("build transaction lock query: %w", err)
	}
	var tr ledger.Transaction
	if err := t.tx.GetContext(ctx, &tr, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("lock transaction: %w", err)
	}
	return &tr, nil
}

func (t *pgTx) FineForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Fine, error) {
	query, args, err := buildSelectForUpdate(tableFines, id)
	if err != nil {
		return nil, fmt.Errorf("build fine lock query: %w", err)
	}
	var f ledger.Fine
	if err := t.tx.GetContext(ctx, &f, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrFineNotFound
		}
		return nil, fmt.Errorf("lock fine: %w", err)
	}
	return &f, nil
}

func (t *pgTx) CountMemberLoans(ctx context.Context, memberID uuid.UUID) (int, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(tableTransactions).
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("member_id").Eq(memberID.String()),
			goqu.C("status").In(string(ledger.TransactionActive), string(ledger.TransactionOverdue)),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build loan count query: %w", err)
	}
	var count int
	if err := t.tx.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count member loans: %w", err)
	}
	return count, nil
}

func (t *pgTx) CountMemberOverdue(ctx context.Context, memberID uuid.UUID) (int, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(tableTransactions).
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("member_id").Eq(memberID.String()),
			goqu.C("status").Eq(string(ledger.TransactionOverdue)),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build overdue count query: %w", err)
	}
	var count int
	if err := t.tx.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count member overdue: %w", err)
	}
	return count, nil
}

func (t *pgTx) MemberHasUnpaidFines(ctx context.Context, memberID uuid.UUID) (bool, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(tableFines).
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("member_id").Eq(memberID.String()),
			goqu.C("paid_at").IsNull(),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build unpaid fines query: %w", err)
	}
	var count int
	if err := t.tx.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("check unpaid fines: %w", err)
	}
	return count > 0, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *ledger.Transaction) error {
	query := `
		INSERT INTO transactions (id, book_id, member_id, borrowed_at, due_date, returned_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.tx.ExecContext(ctx, query, tr.ID, tr.BookID, tr.MemberID, tr.BorrowedAt, tr.DueDate, tr.ReturnedAt, tr.Status)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateTransaction(ctx context.Context, tr *ledger.Transaction) error {
	query := `
		UPDATE transactions
		SET returned_at = $1, status = $2
		WHERE id = $3
	`
	_, err := t.tx.ExecContext(ctx, query, tr.ReturnedAt, tr.Status, tr.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func (t *pgTx) InsertFine(ctx context.Context, f *ledger.Fine) error {
	query := `
		INSERT INTO fines (id, member_id, transaction_id, amount_cents, paid_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.tx.ExecContext(ctx, query, f.ID, f.MemberID, f.TransactionID, f.AmountCents, f.PaidAt)
	if err != nil {
		return fmt.Errorf("insert fine: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateFine(ctx context.Context, f *ledger.Fine) error {
	query := `
		UPDATE fines
		SET paid_at = $1
		WHERE id = $2
	`
	_, err := t.tx.ExecContext(ctx, query, f.PaidAt, f.ID)
	if err != nil {
		return fmt.Errorf("update fine: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateBook(ctx context.Context, b *ledger.Book) error {
	query := `
		UPDATE books
		SET isbn = $1, title = $2, author = $3, category = $4, status = $5,
		    total_copies = $6, available_copies = $7, updated_at = NOW()
		WHERE id = $8
	`
	_, err := t.tx.ExecContext(ctx, query, b.ISBN, b.Title, b.Author, b.Category, b.Status, b.TotalCopies, b.AvailableCopies, b.ID)
	if err != nil {
		if dup := mapUniqueViolation(err); dup != err {
			return dup
		}
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateBookCirculation(ctx context.Context, id uuid.UUID, availableCopies int, status ledger.BookStatus) error {
	query := `
		UPDATE books
		SET available_copies = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := t.tx.ExecContext(ctx, query, availableCopies, status, id)
	if err != nil {
		return fmt.Errorf("update book circulation: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateMemberStatus(ctx context.Context, id uuid.UUID, status ledger.MemberStatus) error {
	query := `
		UPDATE members
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := t.tx.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update member status: %w", err)
	}
	return nil
}

// --- plain CRUD and read-only views ---

func (p *Postgres) InsertBook(ctx context.Context, b *ledger.Book) error {
	query := `
		INSERT INTO books (id, isbn, title, author, category, status, total_copies, available_copies, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := p.db.ExecContext(ctx, query, b.ID, b.ISBN, b.Title, b.Author, b.Category, b.Status, b.TotalCopies, b.AvailableCopies, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if dup := mapUniqueViolation(err); dup != err {
			return dup
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (p *Postgres) GetBook(ctx context.Context, id uuid.UUID) (*ledger.Book, error) {
	var b ledger.Book
	err := p.db.GetContext(ctx, &b, `SELECT * FROM books WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &b, nil
}

func (p *Postgres) ListBooks(ctx context.Context) ([]*ledger.Book, error) {
	var books []*ledger.Book
	err := p.db.SelectContext(ctx, &books, `SELECT * FROM books ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

func (p *Postgres) ListAvailableBooks(ctx context.Context) ([]*ledger.Book, error) {
	var books []*ledger.Book
	query := `SELECT * FROM books WHERE status = $1 AND available_copies > 0 ORDER BY created_at`
	err := p.db.SelectContext(ctx, &books, query, ledger.BookAvailable)
	if err != nil {
		return nil, fmt.Errorf("list available books: %w", err)
	}
	return books, nil
}

func (p *Postgres) DeleteBook(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrBookNotFound
	}
	return nil
}

func (p *Postgres) InsertMember(ctx context.Context, m *ledger.Member) error {
	query := `
		INSERT INTO members (id, name, email, membership_number, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.db.ExecContext(ctx, query, m.ID, m.Name, m.Email, m.MembershipNumber, m.Status, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if dup := mapUniqueViolation(err); dup != err {
			return dup
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (p *Postgres) GetMember(ctx context.Context, id uuid.UUID) (*ledger.Member, error) {
	var m ledger.Member
	err := p.db.GetContext(ctx, &m, `SELECT * FROM members WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

func (p *Postgres) ListMembers(ctx context.Context) ([]*ledger.Member, error) {
	var members []*ledger.Member
	err := p.db.SelectContext(ctx, &members, `SELECT * FROM members ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (p *Postgres) UpdateMember(ctx context.Context, m *ledger.Member) error {
	query := `
		UPDATE members
		SET name = $1, email = $2, membership_number = $3, updated_at = NOW()
		WHERE id = $4
	`
	res, err := p.db.ExecContext(ctx, query, m.Name, m.Email, m.MembershipNumber, m.ID)
	if err != nil {
		if dup := mapUniqueViolation(err); dup != err {
			return dup
		}
		return fmt.Errorf("update member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrMemberNotFound
	}
	return nil
}

func (p *Postgres) DeleteMember(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrMemberNotFound
	}
	return nil
}

func (p *Postgres) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	var tr ledger.Transaction
	err := p.db.GetContext(ctx, &tr, `SELECT * FROM transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &tr, nil
}

func (p *Postgres) ListTransactions(ctx context.Context) ([]*ledger.Transaction, error) {
	var trs []*ledger.Transaction
	err := p.db.SelectContext(ctx, &trs, `SELECT * FROM transactions ORDER BY borrowed_at`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return trs, nil
}

func (p *Postgres) ListMemberLoans(ctx context.Context, memberID uuid.UUID) ([]*ledger.Transaction, error) {
	var trs []*ledger.Transaction
	query := `
		SELECT * FROM transactions
		WHERE member_id = $1 AND status IN ($2, $3)
		ORDER BY borrowed_at
	`
	err := p.db.SelectContext(ctx, &trs, query, memberID, ledger.TransactionActive, ledger.TransactionOverdue)
	if err != nil {
		return nil, fmt.Errorf("list member loans: %w", err)
	}
	return trs, nil
}

func (p *Postgres) ListOverdueTransactions(ctx context.Context) ([]*ledger.Transaction, error) {
	var trs []*ledger.Transaction
	query := `SELECT * FROM transactions WHERE status = $1 ORDER BY borrowed_at`
	err := p.db.SelectContext(ctx, &trs, query, ledger.TransactionOverdue)
	if err != nil {
		return nil, fmt.Errorf("list overdue transactions: %w", err)
	}
	return trs, nil
}

func (p *Postgres) GetFine(ctx context.Context, id uuid.UUID) (*ledger.Fine, error) {
	var f ledger.Fine
	err := p.db.GetContext(ctx, &f, `SELECT * FROM fines WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrFineNotFound
		}
		return nil, fmt.Errorf("get fine: %w", err)
	}
	return &f, nil
}

func (p *Postgres) ListFines(ctx context.Context) ([]*ledger.Fine, error) {
	var fines []*ledger.Fine
	err := p.db.SelectContext(ctx, &fines, `SELECT * FROM fines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list fines: %w", err)
	}
	return fines, nil
}
