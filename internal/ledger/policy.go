// internal/ledger/policy.go
package ledger

// Policy holds the fixed circulation rules. Values are configuration, not
// code: the engine reads them from here so a deployment can tune them
// without touching transition logic.
type Policy struct {
	DailyFineCents             int64
	MaxBorrowedBooks           int
	LoanPeriodDays             int
	SuspensionOverdueThreshold int
}

// DefaultPolicy returns the standard circulation rules: 0.50 per overdue
// day, at most 3 concurrent loans, 14-day loan period, suspension at 3
// overdue transactions.
func DefaultPolicy() Policy {
	return Policy{
		DailyFineCents:             50,
		MaxBorrowedBooks:           3,
		LoanPeriodDays:             14,
		SuspensionOverdueThreshold: 3,
	}
}
