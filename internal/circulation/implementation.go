// internal/circulation/implementation.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libraledger/internal/ledger"
	"libraledger/internal/store"
)

// service implements the Service interface.
type service struct {
	store  store.Store
	policy ledger.Policy
	now    func() time.Time
	tracer trace.Tracer
}

// Option configures the circulation service.
type Option func(*service)

// WithClock replaces the wall clock. Tests use it to pin borrow and
// return times.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// NewService creates a circulation engine on top of the entity store.
func NewService(st store.Store, policy ledger.Policy, opts ...Option) Service {
	s := &service{
		store:  st,
		policy: policy,
		now:    time.Now,
		tracer: otel.Tracer("libraledger/circulation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Borrow runs the checkout as one atomic unit of work. The member row is
// locked before the book row; every decision reads locked rows, so two
// borrows racing for the last copy serialize and the loser sees zero
// available copies.
func (s *service) Borrow(ctx context.Context, memberID, bookID uuid.UUID) (*ledger.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.borrow",
		trace.WithAttributes(
			attribute.String("member.id", memberID.String()),
			attribute.String("book.id", bookID.String()),
		),
	)
	defer span.End()

	var created *ledger.Transaction
	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		member, err := tx.MemberForUpdate(ctx, memberID)
		if err != nil {
			return err
		}
		book, err := tx.BookForUpdate(ctx, bookID)
		if err != nil {
			return err
		}

		if member.Status != ledger.MemberActive {
			return ledger.ErrMemberNotActive
		}
		loans, err := tx.CountMemberLoans(ctx, memberID)
		if err != nil {
			return err
		}
		if loans >= s.policy.MaxBorrowedBooks {
			return ledger.ErrBorrowLimitExceeded
		}
		unpaid, err := tx.MemberHasUnpaidFines(ctx, memberID)
		if err != nil {
			return err
		}
		if unpaid {
			return ledger.ErrUnpaidFinesExist
		}
		if book.AvailableCopies == 0 || book.Status != ledger.BookAvailable {
			return ledger.ErrBookUnavailable
		}

		now := s.now().UTC()
		tr := &ledger.Transaction{
			ID:         uuid.New(),
			BookID:     bookID,
			MemberID:   memberID,
			BorrowedAt: now,
			DueDate:    now.AddDate(0, 0, s.policy.LoanPeriodDays),
			Status:     ledger.TransactionActive,
		}
		if err := tx.InsertTransaction(ctx, tr); err != nil {
			return err
		}

		available := book.AvailableCopies - 1
		status := book.Status
		if available == 0 {
			status = ledger.BookBorrowed
		}
		if err := tx.UpdateBookCirculation(ctx, bookID, available, status); err != nil {
			return err
		}

		created = tr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Return closes the loan. A transaction that has already been through a
// return, whether on time (returned) or late (overdue), cannot be
// returned again.
func (s *service) Return(ctx context.Context, transactionID uuid.UUID) (*ledger.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return",
		trace.WithAttributes(attribute.String("transaction.id", transactionID.String())),
	)
	defer span.End()

	var returned *ledger.Transaction
	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		tr, err := tx.TransactionForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		switch tr.Status {
		case ledger.TransactionReturned, ledger.TransactionOverdue:
			return ledger.ErrAlreadyReturned
		case ledger.TransactionActive:
		}

		member, err := tx.MemberForUpdate(ctx, tr.MemberID)
		if err != nil {
			return err
		}
		book, err := tx.BookForUpdate(ctx, tr.BookID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		tr.ReturnedAt = &now
		days := calendarDaysBetween(tr.DueDate, now)
		if days > 0 {
			tr.Status = ledger.TransactionOverdue
			fine := &ledger.Fine{
				ID:            uuid.New(),
				MemberID:      tr.MemberID,
				TransactionID: tr.ID,
				AmountCents:   s.policy.DailyFineCents * int64(days),
			}
			if err := tx.InsertFine(ctx, fine); err != nil {
				return err
			}
			span.SetAttributes(attribute.Int("overdue.days", days))
		} else {
			tr.Status = ledger.TransactionReturned
		}
		if err := tx.UpdateTransaction(ctx, tr); err != nil {
			return err
		}

		available := book.AvailableCopies + 1
		status := book.Status
		if available > 0 {
			status = ledger.BookAvailable
		}
		if err := tx.UpdateBookCirculation(ctx, tr.BookID, available, status); err != nil {
			return err
		}

		if err := s.recalculateMemberStatus(ctx, tx, member.ID); err != nil {
			return err
		}

		returned = tr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return returned, nil
}

// PayFine settles the fine and refreshes the member's standing.
func (s *service) PayFine(ctx context.Context, fineID uuid.UUID) (*ledger.Fine, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.pay_fine",
		trace.WithAttributes(attribute.String("fine.id", fineID.String())),
	)
	defer span.End()

	var paid *ledger.Fine
	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		fine, err := tx.FineForUpdate(ctx, fineID)
		if err != nil {
			return err
		}
		if fine.Paid() {
			return ledger.ErrFineAlreadyPaid
		}

		member, err := tx.MemberForUpdate(ctx, fine.MemberID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		fine.PaidAt = &now
		if err := tx.UpdateFine(ctx, fine); err != nil {
			return err
		}

		if err := s.recalculateMemberStatus(ctx, tx, member.ID); err != nil {
			return err
		}

		paid = fine
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// recalculateMemberStatus derives the member's standing from the overdue
// transaction count and unpaid fines. It is the only writer of
// Member.Status; recomputing with unchanged state is a no-op.
func (s *service) recalculateMemberStatus(ctx context.Context, tx store.Tx, memberID uuid.UUID) error {
	overdue, err := tx.CountMemberOverdue(ctx, memberID)
	if err != nil {
		return err
	}
	unpaid, err := tx.MemberHasUnpaidFines(ctx, memberID)
	if err != nil {
		return err
	}

	status := ledger.MemberActive
	if overdue >= s.policy.SuspensionOverdueThreshold || unpaid {
		status = ledger.MemberSuspended
	}
	return tx.UpdateMemberStatus(ctx, memberID, status)
}

func (s *service) ActiveLoans(ctx context.Context, memberID uuid.UUID) ([]*ledger.Transaction, error) {
	if _, err := s.store.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return s.store.ListMemberLoans(ctx, memberID)
}

func (s *service) OverdueTransactions(ctx context.Context) ([]*ledger.Transaction, error) {
	return s.store.ListOverdueTransactions(ctx)
}

func (s *service) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *service) ListTransactions(ctx context.Context) ([]*ledger.Transaction, error) {
	return s.store.ListTransactions(ctx)
}

func (s *service) GetFine(ctx context.Context, id uuid.UUID) (*ledger.Fine, error) {
	return s.store.GetFine(ctx, id)
}

func (s *service) ListFines(ctx context.Context) ([]*ledger.Fine, error) {
	return s.store.ListFines(ctx)
}

// calendarDaysBetween returns the number of calendar days from the date
// of `from` to the date of `to`, both taken in UTC. A loan due late on
// day D and returned early on day D+1 is one day overdue regardless of
// the elapsed hours.
func calendarDaysBetween(from, to time.Time) int {
	fy, fm, fd := from.UTC().Date()
	ty, tm, td := to.UTC().Date()
	f := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f) / (24 * time.Hour))
}
