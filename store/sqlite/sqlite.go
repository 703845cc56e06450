/*
Package sqlite provides a SQLite-backed implementation of the circulation
store interfaces.

PURPOSE:
  Implements circulation.TxStore using SQLite. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  entries:  Catalog entries with availability and condition
  accounts: Membership accounts with borrowing state
  loans:    Full loan ledger; closed loans are kept forever

INDEXES:
  - idx_entries_code:       Unique lookup by catalog code
  - idx_loans_open_pair:    The (entry, account) -> open loan hot path,
                            partial over open statuses
  - idx_loans_reservation:  At most one reservation per entry
  - idx_loans_entry:        Open-loans-by-entry scan for removals

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.
  WAL mode keeps readers from blocking the single writer.

USAGE:
  st, err := sqlite.New("./data/circulation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  engine := circulation.NewEngine(st, notifier, nil, nil)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - circulation/store.go:          Interface definitions
  - circulation/store/memory.go:   In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/meridian/circulation-engine/circulation"
)

// Store implements circulation.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		title TEXT NOT NULL,
		author TEXT,
		category TEXT NOT NULL,
		available BOOLEAN NOT NULL DEFAULT TRUE,
		restricted BOOLEAN NOT NULL DEFAULT FALSE,
		condition TEXT NOT NULL,
		price TEXT NOT NULL DEFAULT '0',
		loan_history_json TEXT,
		total_loans INTEGER NOT NULL DEFAULT 0,
		added_at TEXT NOT NULL,
		last_modified TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_code ON entries(code);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		authorized BOOLEAN NOT NULL DEFAULT TRUE,
		suspended_until TEXT,
		suspension_reason TEXT,
		open_loan_ids_json TEXT,
		max_loans INTEGER NOT NULL,
		total_loans INTEGER NOT NULL DEFAULT 0,
		overdue_count INTEGER NOT NULL DEFAULT 0,
		fees_owed TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		status TEXT NOT NULL,
		borrowed_at TEXT NOT NULL,
		due_at TEXT NOT NULL,
		returned_at TEXT,
		extension_count INTEGER NOT NULL DEFAULT 0,
		late_fee TEXT NOT NULL DEFAULT '0',
		damage_fee TEXT NOT NULL DEFAULT '0',
		total_fee TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- The return hot path: at most one open loan per (entry, account).
	CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_open_pair
		ON loans(entry_id, account_id)
		WHERE status IN ('active', 'extended', 'overdue');

	-- At most one live reservation per entry.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_reservation
		ON loans(entry_id)
		WHERE status = 'reserved';

	CREATE INDEX IF NOT EXISTS idx_loans_entry ON loans(entry_id);
	CREATE INDEX IF NOT EXISTS idx_loans_account ON loans(account_id);
	CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);
	CREATE INDEX IF NOT EXISTS idx_loans_due_at ON loans(due_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CATALOG ENTRIES
// =============================================================================

func (s *Store) PutEntry(ctx context.Context, e circulation.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putEntry(ctx, s.db, e)
}

func putEntry(ctx context.Context, q queryer, e circulation.CatalogEntry) error {
	historyJSON, _ := json.Marshal(e.LoanHistory)

	query := `
		INSERT INTO entries
		(id, code, title, author, category, available, restricted, condition,
		 price, loan_history_json, total_loans, added_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			title = excluded.title,
			author = excluded.author,
			category = excluded.category,
			available = excluded.available,
			restricted = excluded.restricted,
			condition = excluded.condition,
			price = excluded.price,
			loan_history_json = excluded.loan_history_json,
			total_loans = excluded.total_loans,
			last_modified = excluded.last_modified
	`

	_, err := q.ExecContext(ctx, query,
		e.ID, e.Code, e.Title, e.Author, e.Category,
		e.AvailableForLoan, e.Restricted, e.Condition,
		e.Price.String(), string(historyJSON), e.TotalLoans,
		e.AddedAt.Format(time.RFC3339), e.LastModified.Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: entry code %q", circulation.ErrDuplicateKey, e.Code)
	}
	return err
}

const entryColumns = `id, code, title, author, category, available, restricted, condition,
	price, loan_history_json, total_loans, added_at, last_modified`

func (s *Store) GetEntry(ctx context.Context, id circulation.EntryID) (*circulation.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, q queryer, id circulation.EntryID) (*circulation.CatalogEntry, error) {
	row := q.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, &circulation.NotFoundError{Kind: "entry", ID: string(id)}
	}
	return e, err
}

func (s *Store) GetEntryByCode(ctx context.Context, code string) (*circulation.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntryByCode(ctx, s.db, code)
}

func getEntryByCode(ctx context.Context, q queryer, code string) (*circulation.CatalogEntry, error) {
	row := q.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE code = ?", code)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, &circulation.NotFoundError{Kind: "entry", ID: code}
	}
	return e, err
}

func (s *Store) DeleteEntry(ctx context.Context, id circulation.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteEntry(ctx, s.db, id)
}

func deleteEntry(ctx context.Context, q queryer, id circulation.EntryID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &circulation.NotFoundError{Kind: "entry", ID: string(id)}
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context) ([]circulation.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntries(ctx, s.db)
}

func listEntries(ctx context.Context, q queryer) ([]circulation.CatalogEntry, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+entryColumns+" FROM entries ORDER BY code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []circulation.CatalogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*circulation.CatalogEntry, error) {
	var (
		e           circulation.CatalogEntry
		author      sql.NullString
		price       string
		historyJSON sql.NullString
		addedAt     string
		modified    string
	)
	err := row.Scan(&e.ID, &e.Code, &e.Title, &author, &e.Category,
		&e.AvailableForLoan, &e.Restricted, &e.Condition,
		&price, &historyJSON, &e.TotalLoans, &addedAt, &modified)
	if err != nil {
		return nil, err
	}

	e.Author = author.String
	e.Price = mustDecimal(price)
	if historyJSON.Valid && historyJSON.String != "" {
		json.Unmarshal([]byte(historyJSON.String), &e.LoanHistory)
	}
	e.AddedAt, _ = time.Parse(time.RFC3339, addedAt)
	e.LastModified, _ = time.Parse(time.RFC3339, modified)
	return &e, nil
}

// =============================================================================
// MEMBERSHIP ACCOUNTS
// =============================================================================

func (s *Store) PutAccount(ctx context.Context, a circulation.MemberAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putAccount(ctx, s.db, a)
}

func putAccount(ctx context.Context, q queryer, a circulation.MemberAccount) error {
	openJSON, _ := json.Marshal(a.OpenLoanIDs)

	var suspendedUntil *string
	if a.SuspendedUntil != nil {
		t := a.SuspendedUntil.Format(time.RFC3339)
		suspendedUntil = &t
	}

	query := `
		INSERT INTO accounts
		(id, name, email, phone, authorized, suspended_until, suspension_reason,
		 open_loan_ids_json, max_loans, total_loans, overdue_count, fees_owed,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			authorized = excluded.authorized,
			suspended_until = excluded.suspended_until,
			suspension_reason = excluded.suspension_reason,
			open_loan_ids_json = excluded.open_loan_ids_json,
			max_loans = excluded.max_loans,
			total_loans = excluded.total_loans,
			overdue_count = excluded.overdue_count,
			fees_owed = excluded.fees_owed,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		a.ID, a.Name, a.Email, a.Phone, a.Authorized,
		suspendedUntil, a.SuspensionReason,
		string(openJSON), a.MaxLoansAllowed, a.TotalLoans, a.OverdueCount,
		a.FeesOwed.String(),
		a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

const accountColumns = `id, name, email, phone, authorized, suspended_until, suspension_reason,
	open_loan_ids_json, max_loans, total_loans, overdue_count, fees_owed, created_at, updated_at`

func (s *Store) GetAccount(ctx context.Context, id circulation.AccountID) (*circulation.MemberAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, q queryer, id circulation.AccountID) (*circulation.MemberAccount, error) {
	row := q.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, &circulation.NotFoundError{Kind: "account", ID: string(id)}
	}
	return a, err
}

func (s *Store) DeleteAccount(ctx context.Context, id circulation.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteAccount(ctx, s.db, id)
}

func deleteAccount(ctx context.Context, q queryer, id circulation.AccountID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &circulation.NotFoundError{Kind: "account", ID: string(id)}
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]circulation.MemberAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAccounts(ctx, s.db)
}

func listAccounts(ctx context.Context, q queryer) ([]circulation.MemberAccount, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []circulation.MemberAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func scanAccount(row rowScanner) (*circulation.MemberAccount, error) {
	var (
		a              circulation.MemberAccount
		email, phone   sql.NullString
		suspendedUntil sql.NullString
		suspendReason  sql.NullString
		openJSON       sql.NullString
		feesOwed       string
		createdAt      string
		updatedAt      string
	)
	err := row.Scan(&a.ID, &a.Name, &email, &phone, &a.Authorized,
		&suspendedUntil, &suspendReason, &openJSON,
		&a.MaxLoansAllowed, &a.TotalLoans, &a.OverdueCount, &feesOwed,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.Email = email.String
	a.Phone = phone.String
	a.SuspensionReason = suspendReason.String
	if suspendedUntil.Valid {
		t, _ := time.Parse(time.RFC3339, suspendedUntil.String)
		a.SuspendedUntil = &t
	}
	if openJSON.Valid && openJSON.String != "" {
		json.Unmarshal([]byte(openJSON.String), &a.OpenLoanIDs)
	}
	a.FeesOwed = mustDecimal(feesOwed)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &a, nil
}

// =============================================================================
// LOAN LEDGER
// =============================================================================

func (s *Store) PutLoan(ctx context.Context, l circulation.LoanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putLoan(ctx, s.db, l)
}

func putLoan(ctx context.Context, q queryer, l circulation.LoanRecord) error {
	var returnedAt *string
	if l.ReturnedAt != nil {
		t := l.ReturnedAt.Format(time.RFC3339)
		returnedAt = &t
	}

	query := `
		INSERT INTO loans
		(id, entry_id, account_id, status, borrowed_at, due_at, returned_at,
		 extension_count, late_fee, damage_fee, total_fee, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			borrowed_at = excluded.borrowed_at,
			due_at = excluded.due_at,
			returned_at = excluded.returned_at,
			extension_count = excluded.extension_count,
			late_fee = excluded.late_fee,
			damage_fee = excluded.damage_fee,
			total_fee = excluded.total_fee,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		l.ID, l.EntryID, l.AccountID, l.Status,
		l.BorrowedAt.Format(time.RFC3339), l.DueAt.Format(time.RFC3339), returnedAt,
		l.ExtensionCount,
		l.LateFee.String(), l.DamageFee.String(), l.TotalFee.String(),
		l.CreatedAt.Format(time.RFC3339), l.UpdatedAt.Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: open loan for entry %s", circulation.ErrDuplicateKey, l.EntryID)
	}
	return err
}

const loanColumns = `id, entry_id, account_id, status, borrowed_at, due_at, returned_at,
	extension_count, late_fee, damage_fee, total_fee, created_at, updated_at`

func (s *Store) GetLoan(ctx context.Context, id circulation.LoanID) (*circulation.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLoan(ctx, s.db, id)
}

func getLoan(ctx context.Context, q queryer, id circulation.LoanID) (*circulation.LoanRecord, error) {
	row := q.QueryRowContext(ctx, "SELECT "+loanColumns+" FROM loans WHERE id = ?", id)
	l, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, &circulation.NotFoundError{Kind: "loan", ID: string(id)}
	}
	return l, err
}

func (s *Store) ListLoans(ctx context.Context) ([]circulation.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLoans(ctx, s.db)
}

func listLoans(ctx context.Context, q queryer) ([]circulation.LoanRecord, error) {
	return queryLoans(ctx, q, "SELECT "+loanColumns+" FROM loans ORDER BY created_at ASC, id ASC")
}

func (s *Store) OpenLoan(ctx context.Context, entryID circulation.EntryID, accountID circulation.AccountID) (*circulation.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openLoan(ctx, s.db, entryID, accountID)
}

func openLoan(ctx context.Context, q queryer, entryID circulation.EntryID, accountID circulation.AccountID) (*circulation.LoanRecord, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+loanColumns+` FROM loans
		 WHERE entry_id = ? AND account_id = ? AND status IN ('active', 'extended', 'overdue')`,
		entryID, accountID)
	l, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, &circulation.NotFoundError{Kind: "loan", ID: fmt.Sprintf("%s/%s", entryID, accountID)}
	}
	return l, err
}

func (s *Store) OpenLoansByEntry(ctx context.Context, entryID circulation.EntryID) ([]circulation.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openLoansByEntry(ctx, s.db, entryID)
}

func openLoansByEntry(ctx context.Context, q queryer, entryID circulation.EntryID) ([]circulation.LoanRecord, error) {
	return queryLoans(ctx, q,
		"SELECT "+loanColumns+` FROM loans
		 WHERE entry_id = ? AND status IN ('active', 'extended', 'overdue')`,
		entryID)
}

func (s *Store) ReservationByEntry(ctx context.Context, entryID circulation.EntryID) (*circulation.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reservationByEntry(ctx, s.db, entryID)
}

func reservationByEntry(ctx context.Context, q queryer, entryID circulation.EntryID) (*circulation.LoanRecord, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE entry_id = ? AND status = 'reserved'",
		entryID)
	l, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, &circulation.NotFoundError{Kind: "reservation", ID: string(entryID)}
	}
	return l, err
}

func queryLoans(ctx context.Context, q queryer, query string, args ...any) ([]circulation.LoanRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []circulation.LoanRecord
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func scanLoan(row rowScanner) (*circulation.LoanRecord, error) {
	var (
		l          circulation.LoanRecord
		borrowedAt string
		dueAt      string
		returnedAt sql.NullString
		lateFee    string
		damageFee  string
		totalFee   string
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Status,
		&borrowedAt, &dueAt, &returnedAt, &l.ExtensionCount,
		&lateFee, &damageFee, &totalFee, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	l.BorrowedAt, _ = time.Parse(time.RFC3339, borrowedAt)
	l.DueAt, _ = time.Parse(time.RFC3339, dueAt)
	if returnedAt.Valid {
		t, _ := time.Parse(time.RFC3339, returnedAt.String)
		l.ReturnedAt = &t
	}
	l.LateFee = mustDecimal(lateFee)
	l.DamageFee = mustDecimal(damageFee)
	l.TotalFee = mustDecimal(totalFee)
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &l, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store circulation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore forwards every Store call into the open sql.Tx. The parent's
// mutex is already held for the duration of WithTx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) PutEntry(ctx context.Context, e circulation.CatalogEntry) error {
	return putEntry(ctx, ts.tx, e)
}

func (ts *txStore) GetEntry(ctx context.Context, id circulation.EntryID) (*circulation.CatalogEntry, error) {
	return getEntry(ctx, ts.tx, id)
}

func (ts *txStore) GetEntryByCode(ctx context.Context, code string) (*circulation.CatalogEntry, error) {
	return getEntryByCode(ctx, ts.tx, code)
}

func (ts *txStore) DeleteEntry(ctx context.Context, id circulation.EntryID) error {
	return deleteEntry(ctx, ts.tx, id)
}

func (ts *txStore) ListEntries(ctx context.Context) ([]circulation.CatalogEntry, error) {
	return listEntries(ctx, ts.tx)
}

func (ts *txStore) PutAccount(ctx context.Context, a circulation.MemberAccount) error {
	return putAccount(ctx, ts.tx, a)
}

func (ts *txStore) GetAccount(ctx context.Context, id circulation.AccountID) (*circulation.MemberAccount, error) {
	return getAccount(ctx, ts.tx, id)
}

func (ts *txStore) DeleteAccount(ctx context.Context, id circulation.AccountID) error {
	return deleteAccount(ctx, ts.tx, id)
}

func (ts *txStore) ListAccounts(ctx context.Context) ([]circulation.MemberAccount, error) {
	return listAccounts(ctx, ts.tx)
}

func (ts *txStore) PutLoan(ctx context.Context, l circulation.LoanRecord) error {
	return putLoan(ctx, ts.tx, l)
}

func (ts *txStore) GetLoan(ctx context.Context, id circulation.LoanID) (*circulation.LoanRecord, error) {
	return getLoan(ctx, ts.tx, id)
}

func (ts *txStore) ListLoans(ctx context.Context) ([]circulation.LoanRecord, error) {
	return listLoans(ctx, ts.tx)
}

func (ts *txStore) OpenLoan(ctx context.Context, entryID circulation.EntryID, accountID circulation.AccountID) (*circulation.LoanRecord, error) {
	return openLoan(ctx, ts.tx, entryID, accountID)
}

func (ts *txStore) OpenLoansByEntry(ctx context.Context, entryID circulation.EntryID) ([]circulation.LoanRecord, error) {
	return openLoansByEntry(ctx, ts.tx, entryID)
}

func (ts *txStore) ReservationByEntry(ctx context.Context, entryID circulation.EntryID) (*circulation.LoanRecord, error) {
	return reservationByEntry(ctx, ts.tx, entryID)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"loans", "accounts", "entries"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
