/*
engine.go - The circulation engine orchestrator

PURPOSE:
  Owns the catalog, the member roster, and the loan ledger, and enforces
  every cross-entity invariant: one open loan per entry, loan caps per
  account, availability kept in lockstep with open loans, and the ordered
  eligibility checks on borrow.

BORROW FLOW:
  request ──▶ load entry + account ──▶ ordered eligibility checks
          ──▶ create loan, flip availability, update account open set
              (one Store.WithTx, all-or-nothing)

VALIDATION ORDER (fail-fast, no partial mutation):
  1. entry exists            -> NotFound
  2. account exists          -> NotFound
  3. entry not reserved by someone else -> Conflict
  4. entry available         -> Conflict
  5. entry not restricted    -> Conflict
  6. entry condition loanable-> Conflict
  7. account authorized      -> Unauthorized
  8. account not suspended   -> Unauthorized (SuspendedError)
  9. account under loan cap  -> LimitExceeded (LoanLimitError)

CONCURRENCY:
  Every mutating operation holds the engine mutex for its full duration,
  so "check eligibility, then mutate" is never interleaved. The sweep and
  reminder runs take the same mutex and therefore never observe a record
  mid-transition. Notification delivery happens after the transaction
  commits and is fire-and-forget.

SEE ALSO:
  - loan.go:  The state machine the engine drives
  - staff.go: Administrative mutations sharing the same engine
*/
package circulation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine orchestrates borrow/return/extend and the scheduled sweeps.
// Construct with NewEngine; the zero value is not usable.
type Engine struct {
	mu       sync.Mutex
	store    TxStore
	notifier Notifier
	clock    Clock
	policy   *PolicyTable
	fees     *FeeCalculator
}

// NewEngine wires an engine with explicit collaborators. A nil notifier
// defaults to NopNotifier, a nil clock to SystemClock, and a nil policy
// table to DefaultPolicyTable.
func NewEngine(store TxStore, notifier Notifier, clock Clock, policy *PolicyTable) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if policy == nil {
		policy = DefaultPolicyTable()
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		clock:    clock,
		policy:   policy,
		fees:     &FeeCalculator{Policy: policy},
	}
}

// Policy exposes the (immutable) policy table.
func (e *Engine) Policy() *PolicyTable { return e.policy }

// =============================================================================
// CATALOG OPERATIONS
// =============================================================================

// AddEntry registers a new catalog entry. The external code must be unique
// across the catalog.
func (e *Engine) AddEntry(ctx context.Context, entry CatalogEntry) (*CatalogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry.Code == "" || entry.Title == "" {
		return nil, fmt.Errorf("%w: code and title are required", ErrInvalidArgument)
	}
	if entry.ID == "" {
		entry.ID = EntryID(uuid.NewString())
	}
	if entry.Category == "" {
		entry.Category = CategoryGeneral
	}
	if entry.Condition == "" {
		entry.Condition = ConditionGood
	}

	if existing, err := e.store.GetEntry(ctx, entry.ID); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: entry %s", ErrDuplicateKey, entry.ID)
	} else if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if existing, err := e.store.GetEntryByCode(ctx, entry.Code); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: code %s", ErrDuplicateKey, entry.Code)
	} else if err != nil && !IsNotFound(err) {
		return nil, err
	}

	now := e.clock.Now()
	entry.AvailableForLoan = entry.Condition.Loanable() && !entry.Restricted
	entry.AddedAt = now
	entry.LastModified = now

	if err := e.store.PutEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveEntry deletes a catalog entry. Refused while any loan is open on
// it; the open-loan check is derived from the ledger, not the availability
// flag.
func (e *Engine) RemoveEntry(ctx context.Context, id EntryID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetEntry(ctx, id); err != nil {
		return err
	}
	open, err := e.store.OpenLoansByEntry(ctx, id)
	if err != nil {
		return err
	}
	if len(open) > 0 {
		return &ConflictError{Reason: fmt.Sprintf("entry %s is on loan", id)}
	}
	return e.store.DeleteEntry(ctx, id)
}

// =============================================================================
// ACCOUNT OPERATIONS
// =============================================================================

// RegisterAccount creates a membership account with the policy-default
// loan cap.
func (e *Engine) RegisterAccount(ctx context.Context, name, email, phone string) (*MemberAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidArgument)
	}

	now := e.clock.Now()
	account := MemberAccount{
		ID:              AccountID(uuid.NewString()),
		Name:            name,
		Email:           email,
		Phone:           phone,
		Authorized:      true,
		MaxLoansAllowed: e.policy.MaxLoansPerAccount,
		FeesOwed:        decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.PutAccount(ctx, account); err != nil {
		return nil, err
	}
	return &account, nil
}

// RemoveAccount deletes an account. Refused while the account holds open
// loans.
func (e *Engine) RemoveAccount(ctx context.Context, id AccountID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if len(account.OpenLoanIDs) > 0 {
		return &ConflictError{Reason: fmt.Sprintf("account %s has open loans", id)}
	}
	return e.store.DeleteAccount(ctx, id)
}

// =============================================================================
// BORROW / RETURN / EXTEND
// =============================================================================

// Borrow validates eligibility in strict order and, on success, creates an
// Active loan, flips the entry's availability, and appends to the
// account's open set in one transaction. If the borrowing account holds a
// reservation on the entry, the reservation is activated instead of a new
// loan being created.
func (e *Engine) Borrow(ctx context.Context, entryID EntryID, accountID AccountID) (*LoanRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var reservation *LoanRecord
	if r, err := e.store.ReservationByEntry(ctx, entryID); err == nil {
		if r.AccountID != accountID {
			return nil, &ConflictError{Reason: fmt.Sprintf("entry %s is reserved by another account", entryID)}
		}
		reservation = r
	} else if !IsNotFound(err) {
		return nil, err
	}

	if !entry.AvailableForLoan {
		return nil, &ConflictError{Reason: fmt.Sprintf("entry %s is not available for loan", entryID)}
	}
	if entry.Restricted {
		return nil, &ConflictError{Reason: fmt.Sprintf("entry %s is restricted", entryID)}
	}
	if !entry.Condition.Loanable() {
		return nil, &ConflictError{Reason: fmt.Sprintf("entry %s condition is %s", entryID, entry.Condition)}
	}
	if !account.Authorized {
		return nil, fmt.Errorf("%w: account %s is not authorized", ErrUnauthorized, accountID)
	}
	if account.IsSuspended(now) {
		return nil, &SuspendedError{AccountID: accountID, Until: *account.SuspendedUntil}
	}
	if len(account.OpenLoanIDs) >= account.MaxLoansAllowed {
		return nil, &LoanLimitError{AccountID: accountID, Open: len(account.OpenLoanIDs), Max: account.MaxLoansAllowed}
	}

	period := e.policy.LoanPeriod(entry.Category)
	var loan *LoanRecord
	if reservation != nil {
		loan = reservation
		if err := loan.activate(now, period); err != nil {
			return nil, err
		}
	} else {
		loan = newLoan(entryID, accountID, now, period)
	}

	entry.AvailableForLoan = false
	entry.LoanHistory = append(entry.LoanHistory, loan.ID)
	entry.TotalLoans++
	entry.LastModified = now

	account.OpenLoanIDs = append(account.OpenLoanIDs, loan.ID)
	account.TotalLoans++
	account.UpdatedAt = now

	err = e.store.WithTx(ctx, func(s Store) error {
		if err := s.PutLoan(ctx, *loan); err != nil {
			return err
		}
		if err := s.PutEntry(ctx, *entry); err != nil {
			return err
		}
		return s.PutAccount(ctx, *account)
	})
	if err != nil {
		return nil, err
	}

	e.notifier.Notify(accountID,
		fmt.Sprintf("You have borrowed %q. Please return by %s.", entry.Title, loan.DueAt.Format("2006-01-02")),
		NoticeLoanCreated)
	return loan, nil
}

// Return locates the unique open loan for the pair, closes it with the
// computed late fee, frees the item, and removes the loan from the
// account's open set.
func (e *Engine) Return(ctx context.Context, entryID EntryID, accountID AccountID) (*LoanRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLoanLocked(ctx, entryID, accountID, decimal.Zero, false)
}

// closeLoanLocked closes the open loan for the pair and writes the loan,
// entry, and account in one transaction. With damaged set, the entry is
// withdrawn as part of the same write; a failure anywhere leaves all three
// in their pre-call state.
func (e *Engine) closeLoanLocked(ctx context.Context, entryID EntryID, accountID AccountID, damageFee decimal.Decimal, damaged bool) (*LoanRecord, error) {
	now := e.clock.Now()

	loan, err := e.store.OpenLoan(ctx, entryID, accountID)
	if err != nil {
		return nil, err
	}
	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	wasOverdue := loan.Status == LoanOverdue || loan.IsPastDue(now)
	lateFee := e.fees.LateFee(loan.DueAt, now)
	if err := loan.close(now, lateFee, damageFee); err != nil {
		return nil, err
	}

	entry.AvailableForLoan = entry.Condition.Loanable() && !entry.Restricted
	if damaged {
		entry.Condition = ConditionDamaged
		entry.AvailableForLoan = false
	}
	entry.LastModified = now

	account.removeLoan(loan.ID)
	if wasOverdue {
		account.OverdueCount++
	}
	account.FeesOwed = account.FeesOwed.Add(loan.TotalFee)
	account.UpdatedAt = now

	err = e.store.WithTx(ctx, func(s Store) error {
		if err := s.PutLoan(ctx, *loan); err != nil {
			return err
		}
		if err := s.PutEntry(ctx, *entry); err != nil {
			return err
		}
		return s.PutAccount(ctx, *account)
	})
	if err != nil {
		return nil, err
	}

	if loan.TotalFee.IsPositive() {
		e.notifier.Notify(accountID,
			fmt.Sprintf("%q returned. Fees due: %s.", entry.Title, loan.TotalFee.StringFixed(2)),
			NoticeLoanReturned)
	} else {
		e.notifier.Notify(accountID,
			fmt.Sprintf("Thank you for returning %q on time.", entry.Title),
			NoticeLoanReturned)
	}
	return loan, nil
}

// Extend pushes a loan's due date out. A false result is a refusal
// (extension cap reached, or the loan is already past due), not an error;
// errors are reserved for a missing loan or a terminal record. A
// non-positive requestedDays takes the policy default.
func (e *Engine) Extend(ctx context.Context, loanID LoanID, requestedDays int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	days := requestedDays
	if days <= 0 {
		days = e.policy.ExtensionDays
	}

	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return false, err
	}

	ok, err := loan.extend(now, days, e.policy.MaxExtensionsPerLoan)
	if err != nil || !ok {
		return false, err
	}

	if err := e.store.PutLoan(ctx, *loan); err != nil {
		return false, err
	}

	e.notifier.Notify(loan.AccountID,
		fmt.Sprintf("Loan period extended. New due date: %s.", loan.DueAt.Format("2006-01-02")),
		NoticeExtensionApproved)
	return true, nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// Reserve places a hold on an entry. A reservation does not take the item
// out of circulation and does not count against the loan cap; it only
// guarantees that no other account can borrow the entry until the hold is
// activated or cancelled.
func (e *Engine) Reserve(ctx context.Context, entryID EntryID, accountID AccountID) (*LoanRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.ReservationByEntry(ctx, entryID); err == nil {
		return nil, &ConflictError{Reason: fmt.Sprintf("entry %s is already reserved", entryID)}
	} else if !IsNotFound(err) {
		return nil, err
	}
	if entry.Restricted {
		return nil, &ConflictError{Reason: fmt.Sprintf("entry %s is restricted", entryID)}
	}
	if !account.Authorized || account.IsSuspended(now) {
		return nil, fmt.Errorf("%w: account %s cannot place holds", ErrUnauthorized, accountID)
	}

	loan := newReservation(entryID, accountID, now)
	if err := e.store.PutLoan(ctx, *loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// CancelReservation voids a hold.
func (e *Engine) CancelReservation(ctx context.Context, loanID LoanID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}
	if err := loan.cancel(e.clock.Now()); err != nil {
		return err
	}
	return e.store.PutLoan(ctx, *loan)
}

// =============================================================================
// OVERDUE SWEEP AND REMINDERS
// =============================================================================

// ListOverdue returns every open loan past its due date, ascending by due
// date (ties broken by loan ID) so reminder runs are reproducible.
func (e *Engine) ListOverdue(ctx context.Context) ([]LoanRecord, error) {
	now := e.clock.Now()
	loans, err := e.store.ListLoans(ctx)
	if err != nil {
		return nil, err
	}
	var overdue []LoanRecord
	for _, l := range loans {
		if l.IsOpen() && l.DueAt.Before(now) {
			overdue = append(overdue, l)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		if !overdue[i].DueAt.Equal(overdue[j].DueAt) {
			return overdue[i].DueAt.Before(overdue[j].DueAt)
		}
		return overdue[i].ID < overdue[j].ID
	})
	return overdue, nil
}

// MarkOverdue sweeps the ledger and flips past-due open loans to Overdue,
// notifying the holder of each newly overdue loan. Idempotent: a second
// run with no elapsed time marks nothing and raises no transition error.
func (e *Engine) MarkOverdue(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	loans, err := e.store.ListLoans(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range loans {
		loan := loans[i]
		if !loan.IsOpen() {
			continue
		}
		flipped, err := loan.markOverdue(now)
		if err != nil {
			return count, err
		}
		if !flipped {
			continue
		}
		if err := e.store.PutLoan(ctx, loan); err != nil {
			return count, err
		}
		e.notifier.Notify(loan.AccountID,
			fmt.Sprintf("Your loan is %d days overdue. Late fees accrue at %s per day.",
				DaysLate(loan.DueAt, now), e.policy.LateFeePerDay.StringFixed(2)),
			NoticeOverdue)
		count++
	}
	return count, nil
}

// RunDueSoonReminders emits one reminder per loan per matching offset: a
// loan due in exactly N days gets a reminder when N is a configured
// offset.
//
// TODO: track fired offsets per loan so a sweep that runs more than once
// between offsets does not re-send the same reminder.
func (e *Engine) RunDueSoonReminders(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	loans, err := e.store.ListLoans(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, loan := range loans {
		if loan.Status != LoanActive && loan.Status != LoanExtended {
			continue
		}
		daysUntil := DaysUntil(now, loan.DueAt)
		for _, offset := range e.policy.ReminderOffsetsDays {
			if daysUntil != offset {
				continue
			}
			e.notifier.Notify(loan.AccountID,
				fmt.Sprintf("Your loan is due in %d day(s). Please return or extend it to avoid late fees.", daysUntil),
				NoticeDueSoon)
			count++
		}
	}
	return count, nil
}

// =============================================================================
// READ HELPERS
// =============================================================================

func (e *Engine) Entry(ctx context.Context, id EntryID) (*CatalogEntry, error) {
	return e.store.GetEntry(ctx, id)
}

func (e *Engine) Account(ctx context.Context, id AccountID) (*MemberAccount, error) {
	return e.store.GetAccount(ctx, id)
}

func (e *Engine) Loan(ctx context.Context, id LoanID) (*LoanRecord, error) {
	return e.store.GetLoan(ctx, id)
}

func (e *Engine) ListEntries(ctx context.Context) ([]CatalogEntry, error) {
	return e.store.ListEntries(ctx)
}

func (e *Engine) ListAccounts(ctx context.Context) ([]MemberAccount, error) {
	return e.store.ListAccounts(ctx)
}

// AccountLoans returns the account's open loans, due-date ascending.
func (e *Engine) AccountLoans(ctx context.Context, id AccountID) ([]LoanRecord, error) {
	account, err := e.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	var open []LoanRecord
	for _, loanID := range account.OpenLoanIDs {
		loan, err := e.store.GetLoan(ctx, loanID)
		if err != nil {
			return nil, err
		}
		open = append(open, *loan)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].DueAt.Before(open[j].DueAt) })
	return open, nil
}

// normalizeDay truncates a time to midnight UTC. Suspension windows are
// day-granular.
func normalizeDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
