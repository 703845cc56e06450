// Package store provides the in-memory reference Store.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/meridian/circulation-engine/circulation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (reference/testing)
// =============================================================================

// Memory is a keyed-map store with the open-loan and reservation
// secondary indexes kept in step on every PutLoan.
type Memory struct {
	mu       sync.RWMutex
	entries  map[circulation.EntryID]circulation.CatalogEntry
	byCode   map[string]circulation.EntryID
	accounts map[circulation.AccountID]circulation.MemberAccount
	loans    map[circulation.LoanID]circulation.LoanRecord

	// (entry, account) -> open loan; entry -> reservation
	openLoans    map[pairKey]circulation.LoanID
	reservations map[circulation.EntryID]circulation.LoanID

	loanOrder []circulation.LoanID // insertion order for deterministic listings
}

type pairKey struct {
	Entry   circulation.EntryID
	Account circulation.AccountID
}

func NewMemory() *Memory {
	return &Memory{
		entries:      make(map[circulation.EntryID]circulation.CatalogEntry),
		byCode:       make(map[string]circulation.EntryID),
		accounts:     make(map[circulation.AccountID]circulation.MemberAccount),
		loans:        make(map[circulation.LoanID]circulation.LoanRecord),
		openLoans:    make(map[pairKey]circulation.LoanID),
		reservations: make(map[circulation.EntryID]circulation.LoanID),
	}
}

// =============================================================================
// CATALOG ENTRIES
// =============================================================================

func (m *Memory) PutEntry(_ context.Context, e circulation.CatalogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putEntryLocked(e)
}

func (m *Memory) putEntryLocked(e circulation.CatalogEntry) error {
	if old, ok := m.entries[e.ID]; ok && old.Code != e.Code {
		delete(m.byCode, old.Code)
	}
	m.entries[e.ID] = e
	m.byCode[e.Code] = e.ID
	return nil
}

func (m *Memory) GetEntry(_ context.Context, id circulation.EntryID) (*circulation.CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "entry", ID: string(id)}
	}
	cp := e
	return &cp, nil
}

func (m *Memory) GetEntryByCode(_ context.Context, code string) (*circulation.CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byCode[code]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "entry", ID: code}
	}
	cp := m.entries[id]
	return &cp, nil
}

func (m *Memory) DeleteEntry(_ context.Context, id circulation.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteEntryLocked(id)
}

func (m *Memory) deleteEntryLocked(id circulation.EntryID) error {
	e, ok := m.entries[id]
	if !ok {
		return &circulation.NotFoundError{Kind: "entry", ID: string(id)}
	}
	delete(m.entries, id)
	delete(m.byCode, e.Code)
	return nil
}

func (m *Memory) ListEntries(_ context.Context) ([]circulation.CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]circulation.CatalogEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

// =============================================================================
// MEMBERSHIP ACCOUNTS
// =============================================================================

func (m *Memory) PutAccount(_ context.Context, a circulation.MemberAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putAccountLocked(a)
}

func (m *Memory) putAccountLocked(a circulation.MemberAccount) error {
	// Copy the open-loan slice so callers can keep mutating theirs.
	a.OpenLoanIDs = append([]circulation.LoanID(nil), a.OpenLoanIDs...)
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id circulation.AccountID) (*circulation.MemberAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "account", ID: string(id)}
	}
	cp := a
	cp.OpenLoanIDs = append([]circulation.LoanID(nil), a.OpenLoanIDs...)
	return &cp, nil
}

func (m *Memory) DeleteAccount(_ context.Context, id circulation.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAccountLocked(id)
}

func (m *Memory) deleteAccountLocked(id circulation.AccountID) error {
	if _, ok := m.accounts[id]; !ok {
		return &circulation.NotFoundError{Kind: "account", ID: string(id)}
	}
	delete(m.accounts, id)
	return nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]circulation.MemberAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]circulation.MemberAccount, 0, len(m.accounts))
	for _, a := range m.accounts {
		cp := a
		cp.OpenLoanIDs = append([]circulation.LoanID(nil), a.OpenLoanIDs...)
		out = append(out, cp)
	}
	return out, nil
}

// =============================================================================
// LOAN LEDGER
// =============================================================================

func (m *Memory) PutLoan(_ context.Context, l circulation.LoanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLoanLocked(l)
}

func (m *Memory) putLoanLocked(l circulation.LoanRecord) error {
	if _, ok := m.loans[l.ID]; !ok {
		m.loanOrder = append(m.loanOrder, l.ID)
	}
	m.loans[l.ID] = l

	pair := pairKey{Entry: l.EntryID, Account: l.AccountID}
	if l.IsOpen() {
		m.openLoans[pair] = l.ID
	} else if m.openLoans[pair] == l.ID {
		delete(m.openLoans, pair)
	}

	if l.Status == circulation.LoanReserved {
		m.reservations[l.EntryID] = l.ID
	} else if m.reservations[l.EntryID] == l.ID {
		delete(m.reservations, l.EntryID)
	}
	return nil
}

func (m *Memory) GetLoan(_ context.Context, id circulation.LoanID) (*circulation.LoanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "loan", ID: string(id)}
	}
	cp := l
	return &cp, nil
}

func (m *Memory) ListLoans(_ context.Context) ([]circulation.LoanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]circulation.LoanRecord, 0, len(m.loans))
	for _, id := range m.loanOrder {
		out = append(out, m.loans[id])
	}
	return out, nil
}

func (m *Memory) OpenLoan(_ context.Context, entryID circulation.EntryID, accountID circulation.AccountID) (*circulation.LoanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.openLoans[pairKey{Entry: entryID, Account: accountID}]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "loan", ID: fmt.Sprintf("%s/%s", entryID, accountID)}
	}
	cp := m.loans[id]
	return &cp, nil
}

func (m *Memory) OpenLoansByEntry(_ context.Context, entryID circulation.EntryID) ([]circulation.LoanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []circulation.LoanRecord
	for pair, id := range m.openLoans {
		if pair.Entry == entryID {
			out = append(out, m.loans[id])
		}
	}
	return out, nil
}

func (m *Memory) ReservationByEntry(_ context.Context, entryID circulation.EntryID) (*circulation.LoanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.reservations[entryID]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "reservation", ID: string(entryID)}
	}
	cp := m.loans[id]
	return &cp, nil
}

// =============================================================================
// TRANSACTIONS - snapshot and rollback
// =============================================================================

// WithTx executes fn against a view of the store and rolls the whole
// store back to its pre-call snapshot if fn fails.
func (m *Memory) WithTx(ctx context.Context, fn func(circulation.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	entries      map[circulation.EntryID]circulation.CatalogEntry
	byCode       map[string]circulation.EntryID
	accounts     map[circulation.AccountID]circulation.MemberAccount
	loans        map[circulation.LoanID]circulation.LoanRecord
	openLoans    map[pairKey]circulation.LoanID
	reservations map[circulation.EntryID]circulation.LoanID
	loanOrder    []circulation.LoanID
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		entries:      make(map[circulation.EntryID]circulation.CatalogEntry, len(m.entries)),
		byCode:       make(map[string]circulation.EntryID, len(m.byCode)),
		accounts:     make(map[circulation.AccountID]circulation.MemberAccount, len(m.accounts)),
		loans:        make(map[circulation.LoanID]circulation.LoanRecord, len(m.loans)),
		openLoans:    make(map[pairKey]circulation.LoanID, len(m.openLoans)),
		reservations: make(map[circulation.EntryID]circulation.LoanID, len(m.reservations)),
		loanOrder:    append([]circulation.LoanID(nil), m.loanOrder...),
	}
	for k, v := range m.entries {
		s.entries[k] = v
	}
	for k, v := range m.byCode {
		s.byCode[k] = v
	}
	for k, v := range m.accounts {
		s.accounts[k] = v
	}
	for k, v := range m.loans {
		s.loans[k] = v
	}
	for k, v := range m.openLoans {
		s.openLoans[k] = v
	}
	for k, v := range m.reservations {
		s.reservations[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.entries = s.entries
	m.byCode = s.byCode
	m.accounts = s.accounts
	m.loans = s.loans
	m.openLoans = s.openLoans
	m.reservations = s.reservations
	m.loanOrder = s.loanOrder
}

// txView forwards to the parent without re-locking; the parent holds its
// own lock for the duration of WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) PutEntry(_ context.Context, e circulation.CatalogEntry) error {
	return tv.parent.putEntryLocked(e)
}

func (tv *txView) GetEntry(_ context.Context, id circulation.EntryID) (*circulation.CatalogEntry, error) {
	e, ok := tv.parent.entries[id]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "entry", ID: string(id)}
	}
	cp := e
	return &cp, nil
}

func (tv *txView) GetEntryByCode(_ context.Context, code string) (*circulation.CatalogEntry, error) {
	id, ok := tv.parent.byCode[code]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "entry", ID: code}
	}
	cp := tv.parent.entries[id]
	return &cp, nil
}

func (tv *txView) DeleteEntry(_ context.Context, id circulation.EntryID) error {
	return tv.parent.deleteEntryLocked(id)
}

func (tv *txView) ListEntries(ctx context.Context) ([]circulation.CatalogEntry, error) {
	out := make([]circulation.CatalogEntry, 0, len(tv.parent.entries))
	for _, e := range tv.parent.entries {
		out = append(out, e)
	}
	return out, nil
}

func (tv *txView) PutAccount(_ context.Context, a circulation.MemberAccount) error {
	return tv.parent.putAccountLocked(a)
}

func (tv *txView) GetAccount(_ context.Context, id circulation.AccountID) (*circulation.MemberAccount, error) {
	a, ok := tv.parent.accounts[id]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "account", ID: string(id)}
	}
	cp := a
	cp.OpenLoanIDs = append([]circulation.LoanID(nil), a.OpenLoanIDs...)
	return &cp, nil
}

func (tv *txView) DeleteAccount(_ context.Context, id circulation.AccountID) error {
	return tv.parent.deleteAccountLocked(id)
}

func (tv *txView) ListAccounts(ctx context.Context) ([]circulation.MemberAccount, error) {
	out := make([]circulation.MemberAccount, 0, len(tv.parent.accounts))
	for _, a := range tv.parent.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (tv *txView) PutLoan(_ context.Context, l circulation.LoanRecord) error {
	return tv.parent.putLoanLocked(l)
}

func (tv *txView) GetLoan(_ context.Context, id circulation.LoanID) (*circulation.LoanRecord, error) {
	l, ok := tv.parent.loans[id]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "loan", ID: string(id)}
	}
	cp := l
	return &cp, nil
}

func (tv *txView) ListLoans(ctx context.Context) ([]circulation.LoanRecord, error) {
	out := make([]circulation.LoanRecord, 0, len(tv.parent.loans))
	for _, id := range tv.parent.loanOrder {
		out = append(out, tv.parent.loans[id])
	}
	return out, nil
}

func (tv *txView) OpenLoan(_ context.Context, entryID circulation.EntryID, accountID circulation.AccountID) (*circulation.LoanRecord, error) {
	id, ok := tv.parent.openLoans[pairKey{Entry: entryID, Account: accountID}]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "loan", ID: fmt.Sprintf("%s/%s", entryID, accountID)}
	}
	cp := tv.parent.loans[id]
	return &cp, nil
}

func (tv *txView) OpenLoansByEntry(_ context.Context, entryID circulation.EntryID) ([]circulation.LoanRecord, error) {
	var out []circulation.LoanRecord
	for pair, id := range tv.parent.openLoans {
		if pair.Entry == entryID {
			out = append(out, tv.parent.loans[id])
		}
	}
	return out, nil
}

func (tv *txView) ReservationByEntry(_ context.Context, entryID circulation.EntryID) (*circulation.LoanRecord, error) {
	id, ok := tv.parent.reservations[entryID]
	if !ok {
		return nil, &circulation.NotFoundError{Kind: "reservation", ID: string(entryID)}
	}
	cp := tv.parent.loans[id]
	return &cp, nil
}
