// internal/ledger/domain.go
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// BookStatus is the circulation state of a book title.
type BookStatus string

const (
	BookAvailable   BookStatus = "available"
	BookBorrowed    BookStatus = "borrowed"
	BookReserved    BookStatus = "reserved"
	BookMaintenance BookStatus = "maintenance"
)

// Valid reports whether s is one of the known book statuses.
func (s BookStatus) Valid() bool {
	switch s {
	case BookAvailable, BookBorrowed, BookReserved, BookMaintenance:
		return true
	}
	return false
}

// MemberStatus is the standing of a library member.
type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberSuspended MemberStatus = "suspended"
)

func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActive, MemberSuspended:
		return true
	}
	return false
}

// TransactionStatus is the lifecycle state of a borrowing transaction.
// A transaction is created active and transitions exactly once to
// returned or overdue; it is never reopened.
type TransactionStatus string

const (
	TransactionActive   TransactionStatus = "active"
	TransactionReturned TransactionStatus = "returned"
	TransactionOverdue  TransactionStatus = "overdue"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionActive, TransactionReturned, TransactionOverdue:
		return true
	}
	return false
}

// Book represents a title in the catalog. Status and AvailableCopies are
// derived fields owned by the circulation engine; callers supply only the
// creation fields.
type Book struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	ISBN            string     `json:"isbn" db:"isbn"`
	Title           string     `json:"title" db:"title"`
	Author          string     `json:"author" db:"author"`
	Category        string     `json:"category" db:"category"`
	Status          BookStatus `json:"status" db:"status"`
	TotalCopies     int        `json:"total_copies" db:"total_copies"`
	AvailableCopies int        `json:"available_copies" db:"available_copies"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Member represents a library member. Status is recomputed by the
// circulation engine after every return and fine payment; it is never set
// directly by callers.
type Member struct {
	ID               uuid.UUID    `json:"id" db:"id"`
	Name             string       `json:"name" db:"name"`
	Email            string       `json:"email" db:"email"`
	MembershipNumber string       `json:"membership_number" db:"membership_number"`
	Status           MemberStatus `json:"status" db:"status"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`
}

// Transaction represents one borrowing of one book copy by one member.
type Transaction struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	BookID     uuid.UUID         `json:"book_id" db:"book_id"`
	MemberID   uuid.UUID         `json:"member_id" db:"member_id"`
	BorrowedAt time.Time         `json:"borrowed_at" db:"borrowed_at"`
	DueDate    time.Time         `json:"due_date" db:"due_date"`
	ReturnedAt *time.Time        `json:"returned_at,omitempty" db:"returned_at"`
	Status     TransactionStatus `json:"status" db:"status"`
}

// Fine is a monetary penalty tied one-to-one with a late-returned
// transaction. Amounts are kept in cents to avoid binary floating point.
type Fine struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	MemberID      uuid.UUID  `json:"member_id" db:"member_id"`
	TransactionID uuid.UUID  `json:"transaction_id" db:"transaction_id"`
	AmountCents   int64      `json:"amount_cents" db:"amount_cents"`
	PaidAt        *time.Time `json:"paid_at,omitempty" db:"paid_at"`
}

// Active reports whether the transaction counts against the member's
// borrowing limit. Overdue transactions keep counting even after the
// book comes back.
func (t Transaction) Active() bool {
	return t.Status == TransactionActive || t.Status == TransactionOverdue
}

// Paid reports whether the fine has been settled.
func (f Fine) Paid() bool { return f.PaidAt != nil }
