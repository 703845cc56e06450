/*
store.go - Persistence interface for catalog, roster, and loan ledger

PURPOSE:
  Defines the interface between the engine and the backing store. The
  backing technology is irrelevant to the core contract; the reference
  implementation is an in-memory keyed map (circulation/store), with a
  SQLite implementation for durability (store/sqlite).

OPEN-LOAN INDEX:
  The open loan for an (entry, account) pair is the hot lookup on every
  return. Implementations maintain a secondary index
  (entryID, accountID) -> loanID rather than scanning the ledger.

ATOMICITY:
  borrow/return mutate a loan, an entry, and an account together. The
  engine wraps each such sequence in WithTx; a failure inside fn leaves
  every entity in its pre-call state.

IMPLEMENTATIONS:
  - circulation/store/memory.go: In-memory reference store
  - store/sqlite/sqlite.go:      SQLite (WAL) store
*/
package circulation

import "context"

// =============================================================================
// STORE - keyed persistence for the three entity kinds
// =============================================================================

// Store is get/put/delete-by-identity for catalog entries, membership
// accounts, and loan records. Get methods return copies; callers mutate
// freely and persist with Put.
type Store interface {
	PutEntry(ctx context.Context, e CatalogEntry) error
	GetEntry(ctx context.Context, id EntryID) (*CatalogEntry, error)
	GetEntryByCode(ctx context.Context, code string) (*CatalogEntry, error)
	DeleteEntry(ctx context.Context, id EntryID) error
	ListEntries(ctx context.Context) ([]CatalogEntry, error)

	PutAccount(ctx context.Context, a MemberAccount) error
	GetAccount(ctx context.Context, id AccountID) (*MemberAccount, error)
	DeleteAccount(ctx context.Context, id AccountID) error
	ListAccounts(ctx context.Context) ([]MemberAccount, error)

	// Loans are never deleted, only rewritten in place.
	PutLoan(ctx context.Context, l LoanRecord) error
	GetLoan(ctx context.Context, id LoanID) (*LoanRecord, error)
	ListLoans(ctx context.Context) ([]LoanRecord, error)

	// OpenLoan returns the unique open (Active/Extended/Overdue) loan for
	// the pair, or ErrNotFound.
	OpenLoan(ctx context.Context, entryID EntryID, accountID AccountID) (*LoanRecord, error)

	// OpenLoansByEntry returns the open loans holding an entry. At most one
	// by invariant, but the store does not assume it.
	OpenLoansByEntry(ctx context.Context, entryID EntryID) ([]LoanRecord, error)

	// ReservationByEntry returns the Reserved loan on an entry, or
	// ErrNotFound.
	ReservationByEntry(ctx context.Context, entryID EntryID) (*LoanRecord, error)
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back, otherwise committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
