// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"libraledger/internal/ledger"
)

// Memory is an in-process entity store used by tests and the dev mode.
// A store-wide mutex serializes transactions, which gives the same
// observable guarantees as row locking: concurrent operations on the same
// rows never interleave. Writes are staged per transaction and applied to
// the base maps only on commit.
type Memory struct {
	mu           sync.Mutex
	books        map[uuid.UUID]ledger.Book
	members      map[uuid.UUID]ledger.Member
	transactions map[uuid.UUID]ledger.Transaction
	fines        map[uuid.UUID]ledger.Fine
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		books:        make(map[uuid.UUID]ledger.Book),
		members:      make(map[uuid.UUID]ledger.Member),
		transactions: make(map[uuid.UUID]ledger.Transaction),
		fines:        make(map[uuid.UUID]ledger.Fine),
	}
}

// Atomically runs fn with the store locked. Staged writes become visible
// only when fn returns nil; on error they are discarded.
func (m *Memory) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		base:         m,
		books:        make(map[uuid.UUID]ledger.Book),
		members:      make(map[uuid.UUID]ledger.Member),
		transactions: make(map[uuid.UUID]ledger.Transaction),
		fines:        make(map[uuid.UUID]ledger.Fine),
	}

	if err := fn(tx); err != nil {
		return err
	}

	for id, b := range tx.books {
		m.books[id] = b
	}
	for id, mb := range tx.members {
		m.members[id] = mb
	}
	for id, tr := range tx.transactions {
		m.transactions[id] = tr
	}
	for id, f := range tx.fines {
		m.fines[id] = f
	}
	return nil
}

// memTx stages writes on top of the base maps. Reads see staged rows
// first, so decisions inside a transaction observe its own writes.
type memTx struct {
	base         *Memory
	books        map[uuid.UUID]ledger.Book
	members      map[uuid.UUID]ledger.Member
	transactions map[uuid.UUID]ledger.Transaction
	fines        map[uuid.UUID]ledger.Fine
}

func (t *memTx) MemberForUpdate(_ context.Context, id uuid.UUID) (*ledger.Member, error) {
	if m, ok := t.members[id]; ok {
		return &m, nil
	}
	if m, ok := t.base.members[id]; ok {
		return &m, nil
	}
	return nil, ledger.ErrMemberNotFound
}

func (t *memTx) BookForUpdate(_ context.Context, id uuid.UUID) (*ledger.Book, error) {
	if b, ok := t.books[id]; ok {
		return &b, nil
	}
	if b, ok := t.base.books[id]; ok {
		return &b, nil
	}
	return nil, ledger.ErrBookNotFound
}

func (t *memTx) TransactionForUpdate(_ context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	if tr, ok := t.transactions[id]; ok {
		return &tr, nil
	}
	if tr, ok := t.base.transactions[id]; ok {
		return &tr, nil
	}
	return nil, ledger.ErrTransactionNotFound
}

func (t *memTx) FineForUpdate(_ context.Context, id uuid.UUID) (*ledger.Fine, error) {
	if f, ok := t.fines[id]; ok {
		return &f, nil
	}
	if f, ok := t.base.fines[id]; ok {
		return &f, nil
	}
	return nil, ledger.ErrFineNotFound
}

// eachTransaction visits every transaction, staged rows shadowing base rows.
func (t *memTx) eachTransaction(visit func(tr ledger.Transaction)) {
	for id, tr := range t.base.transactions {
		if staged, ok := t.transactions[id]; ok {
			visit(staged)
			continue
		}
		visit(tr)
	}
	for id, tr := range t.transactions {
		if _, ok := t.base.transactions[id]; !ok {
			visit(tr)
		}
	}
}

func (t *memTx) eachFine(visit func(f ledger.Fine)) {
	for id, f := range t.base.fines {
		if staged, ok := t.fines[id]; ok {
			visit(staged)
			continue
		}
		visit(f)
	}
	for id, f := range t.fines {
		if _, ok := t.base.fines[id]; !ok {
			visit(f)
		}
	}
}

func (t *memTx) CountMemberLoans(_ context.Context, memberID uuid.UUID) (int, error) {
	count := 0
	t.eachTransaction(func(tr ledger.Transaction) {
		if tr.MemberID == memberID && tr.Active() {
			count++
		}
	})
	return count, nil
}

func (t *memTx) CountMemberOverdue(_ context.Context, memberID uuid.UUID) (int, error) {
	count := 0
	t.eachTransaction(func(tr ledger.Transaction) {
		if tr.MemberID == memberID && tr.Status == ledger.TransactionOverdue {
			count++
		}
	})
	return count, nil
}

func (t *memTx) MemberHasUnpaidFines(_ context.Context, memberID uuid.UUID) (bool, error) {
	unpaid := false
	t.eachFine(func(f ledger.Fine) {
		if f.MemberID == memberID && !f.Paid() {
			unpaid = true
		}
	})
	return unpaid, nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr *ledger.Transaction) error {
	t.transactions[tr.ID] = *tr
	return nil
}

func (t *memTx) UpdateTransaction(_ context.Context, tr *ledger.Transaction) error {
	t.transactions[tr.ID] = *tr
	return nil
}

func (t *memTx) InsertFine(_ context.Context, f *ledger.Fine) error {
	t.fines[f.ID] = *f
	return nil
}

func (t *memTx) UpdateFine(_ context.Context, f *ledger.Fine) error {
	t.fines[f.ID] = *f
	return nil
}

func (t *memTx) UpdateBook(_ context.Context, b *ledger.Book) error {
	for id, other := range t.base.books {
		if _, staged := t.books[id]; staged {
			continue
		}
		if id != b.ID && other.ISBN == b.ISBN {
			return ledger.ErrDuplicateISBN
		}
	}
	for id, other := range t.books {
		if id != b.ID && other.ISBN == b.ISBN {
			return ledger.ErrDuplicateISBN
		}
	}
	t.books[b.ID] = *b
	return nil
}

func (t *memTx) UpdateBookCirculation(ctx context.Context, id uuid.UUID, availableCopies int, status ledger.BookStatus) error {
	b, err := t.BookForUpdate(ctx, id)
	if err != nil {
		return err
	}
	b.AvailableCopies = availableCopies
	b.Status = status
	t.books[id] = *b
	return nil
}

func (t *memTx) UpdateMemberStatus(ctx context.Context, id uuid.UUID, status ledger.MemberStatus) error {
	m, err := t.MemberForUpdate(ctx, id)
	if err != nil {
		return err
	}
	m.Status = status
	t.members[id] = *m
	return nil
}

// --- plain CRUD and read-only views ---

func (m *Memory) InsertBook(_ context.Context, b *ledger.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.books {
		if other.ISBN == b.ISBN {
			return ledger.ErrDuplicateISBN
		}
	}
	m.books[b.ID] = *b
	return nil
}

func (m *Memory) GetBook(_ context.Context, id uuid.UUID) (*ledger.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, ledger.ErrBookNotFound
	}
	return &b, nil
}

func (m *Memory) ListBooks(_ context.Context) ([]*ledger.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	books := make([]*ledger.Book, 0, len(m.books))
	for _, b := range m.books {
		b := b
		books = append(books, &b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].CreatedAt.Before(books[j].CreatedAt) })
	return books, nil
}

func (m *Memory) ListAvailableBooks(_ context.Context) ([]*ledger.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var books []*ledger.Book
	for _, b := range m.books {
		if b.Status == ledger.BookAvailable && b.AvailableCopies > 0 {
			b := b
			books = append(books, &b)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].CreatedAt.Before(books[j].CreatedAt) })
	return books, nil
}

func (m *Memory) DeleteBook(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return ledger.ErrBookNotFound
	}
	delete(m.books, id)
	// Cascade, matching the foreign keys in the Postgres schema.
	for trID, tr := range m.transactions {
		if tr.BookID == id {
			delete(m.transactions, trID)
			for fID, f := range m.fines {
				if f.TransactionID == trID {
					delete(m.fines, fID)
				}
			}
		}
	}
	return nil
}

func (m *Memory) InsertMember(_ context.Context, mb *ledger.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.members {
		if other.Email == mb.Email {
			return ledger.ErrDuplicateEmail
		}
		if other.MembershipNumber == mb.MembershipNumber {
			return ledger.ErrDuplicateMembershipNumber
		}
	}
	m.members[mb.ID] = *mb
	return nil
}

func (m *Memory) GetMember(_ context.Context, id uuid.UUID) (*ledger.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mb, ok := m.members[id]
	if !ok {
		return nil, ledger.ErrMemberNotFound
	}
	return &mb, nil
}

func (m *Memory) ListMembers(_ context.Context) ([]*ledger.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]*ledger.Member, 0, len(m.members))
	for _, mb := range m.members {
		mb := mb
		members = append(members, &mb)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	return members, nil
}

func (m *Memory) UpdateMember(_ context.Context, mb *ledger.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.members[mb.ID]
	if !ok {
		return ledger.ErrMemberNotFound
	}
	for id, other := range m.members {
		if id == mb.ID {
			continue
		}
		if other.Email == mb.Email {
			return ledger.ErrDuplicateEmail
		}
		if other.MembershipNumber == mb.MembershipNumber {
			return ledger.ErrDuplicateMembershipNumber
		}
	}
	// Status stays engine-owned.
	existing.Name = mb.Name
	existing.Email = mb.Email
	existing.MembershipNumber = mb.MembershipNumber
	m.members[mb.ID] = existing
	return nil
}

func (m *Memory) DeleteMember(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[id]; !ok {
		return ledger.ErrMemberNotFound
	}
	delete(m.members, id)
	for trID, tr := range m.transactions {
		if tr.MemberID == id {
			delete(m.transactions, trID)
		}
	}
	for fID, f := range m.fines {
		if f.MemberID == id {
			delete(m.fines, fID)
		}
	}
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.transactions[id]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	return &tr, nil
}

func (m *Memory) ListTransactions(_ context.Context) ([]*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trs := make([]*ledger.Transaction, 0, len(m.transactions))
	for _, tr := range m.transactions {
		tr := tr
		trs = append(trs, &tr)
	}
	sort.Slice(trs, func(i, j int) bool { return trs[i].BorrowedAt.Before(trs[j].BorrowedAt) })
	return trs, nil
}

func (m *Memory) ListMemberLoans(_ context.Context, memberID uuid.UUID) ([]*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var trs []*ledger.Transaction
	for _, tr := range m.transactions {
		if tr.MemberID == memberID && tr.Active() {
			tr := tr
			trs = append(trs, &tr)
		}
	}
	sort.Slice(trs, func(i, j int) bool { return trs[i].BorrowedAt.Before(trs[j].BorrowedAt) })
	return trs, nil
}

func (m *Memory) ListOverdueTransactions(_ context.Context) ([]*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var trs []*ledger.Transaction
	for _, tr := range m.transactions {
		if tr.Status == ledger.TransactionOverdue {
			tr := tr
			trs = append(trs, &tr)
		}
	}
	sort.Slice(trs, func(i, j int) bool { return trs[i].BorrowedAt.Before(trs[j].BorrowedAt) })
	return trs, nil
}

func (m *Memory) GetFine(_ context.Context, id uuid.UUID) (*ledger.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fines[id]
	if !ok {
		return nil, ledger.ErrFineNotFound
	}
	return &f, nil
}

func (m *Memory) ListFines(_ context.Context) ([]*ledger.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fines := make([]*ledger.Fine, 0, len(m.fines))
	for _, f := range m.fines {
		f := f
		fines = append(fines, &f)
	}
	sort.Slice(fines, func(i, j int) bool { return fines[i].ID.String() < fines[j].ID.String() })
	return fines, nil
}
