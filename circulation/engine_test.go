package circulation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/circulation-engine/circulation"
	"github.com/meridian/circulation-engine/circulation/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) AdvanceDays(days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, days)
}

type sentNotice struct {
	AccountID circulation.AccountID
	Message   string
	Category  circulation.NotificationCategory
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (r *recordingNotifier) Notify(accountID circulation.AccountID, message string, category circulation.NotificationCategory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotice{AccountID: accountID, Message: message, Category: category})
}

func (r *recordingNotifier) byCategory(c circulation.NotificationCategory) []sentNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentNotice
	for _, n := range r.sent {
		if n.Category == c {
			out = append(out, n)
		}
	}
	return out
}

var testStart = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*circulation.Engine, *fakeClock, *recordingNotifier) {
	t.Helper()
	clock := newFakeClock(testStart)
	notifier := &recordingNotifier{}
	engine := circulation.NewEngine(store.NewMemory(), notifier, clock, nil)
	return engine, clock, notifier
}

func addTestEntry(t *testing.T, engine *circulation.Engine, code string) *circulation.CatalogEntry {
	t.Helper()
	entry, err := engine.AddEntry(context.Background(), circulation.CatalogEntry{
		Code:  code,
		Title: "The Go Programming Language",
		Price: decimal.RequireFromString("40.00"),
	})
	require.NoError(t, err)
	return entry
}

func registerTestAccount(t *testing.T, engine *circulation.Engine) *circulation.MemberAccount {
	t.Helper()
	account, err := engine.RegisterAccount(context.Background(), "Alex Reader", "alex@example.com", "")
	require.NoError(t, err)
	return account
}

// =============================================================================
// BORROW
// =============================================================================

func TestBorrow_HappyPath(t *testing.T) {
	// GIVEN: An available general entry and an authorized account
	// WHEN: The account borrows it
	// THEN: An Active loan exists, due 14 days out, and the entry is held

	engine, _, notifier := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)

	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	assert.Equal(t, circulation.LoanActive, loan.Status)
	assert.Equal(t, testStart.AddDate(0, 0, 14), loan.DueAt)

	got, err := engine.Entry(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, got.AvailableForLoan, "entry on loan must not be available")
	assert.Equal(t, 1, got.TotalLoans)

	acct, err := engine.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, []circulation.LoanID{loan.ID}, acct.OpenLoanIDs)

	assert.Len(t, notifier.byCategory(circulation.NoticeLoanCreated), 1)
}

func TestBorrow_ReferencePeriod(t *testing.T) {
	// Reference items circulate on the short 7-day period.
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	account := registerTestAccount(t, engine)

	entry, err := engine.AddEntry(ctx, circulation.CatalogEntry{
		Code:     "REF-001",
		Title:    "Oxford English Dictionary",
		Category: circulation.CategoryReference,
		Price:    decimal.RequireFromString("90.00"),
	})
	require.NoError(t, err)

	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, testStart.AddDate(0, 0, 7), loan.DueAt)
}

func TestBorrow_UnknownCategory_GeneralPeriod(t *testing.T) {
	// A category missing from the policy table borrows on the general
	// period rather than failing.
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	account := registerTestAccount(t, engine)

	entry, err := engine.AddEntry(ctx, circulation.CatalogEntry{
		Code:     "PER-001",
		Title:    "National Geographic, March 1998",
		Category: "periodical",
		Price:    decimal.RequireFromString("5.00"),
	})
	require.NoError(t, err)

	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, testStart.AddDate(0, 0, 14), loan.DueAt)
}

func TestBorrow_UnavailableEntry_Rejected(t *testing.T) {
	// GIVEN: An entry already on loan to another account
	// WHEN: A second account tries to borrow it
	// THEN: The request fails with a conflict and nothing is mutated

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	first := registerTestAccount(t, engine)
	second, err := engine.RegisterAccount(ctx, "Blake Reader", "blake@example.com", "")
	require.NoError(t, err)

	_, err = engine.Borrow(ctx, entry.ID, first.ID)
	require.NoError(t, err)

	_, err = engine.Borrow(ctx, entry.ID, second.ID)
	assert.ErrorIs(t, err, circulation.ErrConflict)

	acct, err := engine.Account(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, acct.OpenLoanIDs, "failed borrow must not touch the account")
}

func TestBorrow_LoanCapReached_Rejected(t *testing.T) {
	// GIVEN: An account at its loan cap
	// WHEN: It tries to borrow one more entry
	// THEN: The request fails with LoanLimitError

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	account := registerTestAccount(t, engine)
	require.NoError(t, engine.SetLoanCap(ctx, account.ID, 2))

	for _, code := range []string{"ISBN-001", "ISBN-002"} {
		entry := addTestEntry(t, engine, code)
		_, err := engine.Borrow(ctx, entry.ID, account.ID)
		require.NoError(t, err)
	}

	extra := addTestEntry(t, engine, "ISBN-003")
	_, err := engine.Borrow(ctx, extra.ID, account.ID)

	assert.ErrorIs(t, err, circulation.ErrLimitExceeded)
	var limitErr *circulation.LoanLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 2, limitErr.Open)
	assert.Equal(t, 2, limitErr.Max)
}

func TestBorrow_SuspendedAccount_Rejected(t *testing.T) {
	// GIVEN: A suspended account
	// WHEN: It tries to borrow
	// THEN: The request fails with SuspendedError until the window elapses

	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	require.NoError(t, engine.Suspend(ctx, account.ID, 7, "repeated late returns"))

	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	var susp *circulation.SuspendedError
	require.ErrorAs(t, err, &susp)
	assert.ErrorIs(t, err, circulation.ErrUnauthorized)

	// The window is re-evaluated on every attempt; once elapsed the borrow
	// goes through with no unsuspend action.
	clock.AdvanceDays(8)
	_, err = engine.Borrow(ctx, entry.ID, account.ID)
	assert.NoError(t, err)
}

func TestBorrow_UnknownEntities_NotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)

	_, err := engine.Borrow(ctx, "missing", account.ID)
	assert.True(t, circulation.IsNotFound(err))

	_, err = engine.Borrow(ctx, entry.ID, "missing")
	assert.True(t, circulation.IsNotFound(err))
}

// =============================================================================
// RETURN
// =============================================================================

func TestReturn_OnTime_NoFee(t *testing.T) {
	// GIVEN: An open loan
	// WHEN: It is returned before the due date
	// THEN: The loan closes with zero fees and the entry is available again

	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(10)
	loan, err := engine.Return(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	assert.Equal(t, circulation.LoanReturned, loan.Status)
	assert.True(t, loan.TotalFee.IsZero())
	require.NotNil(t, loan.ReturnedAt)

	got, err := engine.Entry(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, got.AvailableForLoan)

	acct, err := engine.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, acct.OpenLoanIDs)
	assert.Equal(t, 0, acct.OverdueCount)
}

func TestReturn_Late_ChargesBeyondGrace(t *testing.T) {
	// GIVEN: A loan 6 days past due with a 2-day grace period at 0.50/day
	// WHEN: It is returned
	// THEN: The late fee is (6-2)*0.50 = 2.00 and lands on the account

	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(20) // due at day 14
	loan, err := engine.Return(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	assert.Equal(t, "2.00", loan.LateFee.StringFixed(2))
	assert.Equal(t, "2.00", loan.TotalFee.StringFixed(2))

	acct, err := engine.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.00", acct.FeesOwed.StringFixed(2))
	assert.Equal(t, 1, acct.OverdueCount)
}

func TestReturn_VeryLate_FeeCapped(t *testing.T) {
	// GIVEN: A loan months past due
	// WHEN: It is returned
	// THEN: The late fee stops at the cap

	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(200)
	loan, err := engine.Return(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	assert.Equal(t, "25.00", loan.LateFee.StringFixed(2))
}

func TestReturn_NoOpenLoan_NotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)

	_, err := engine.Return(ctx, entry.ID, account.ID)
	assert.True(t, circulation.IsNotFound(err))
}

func TestReturn_Twice_SecondFails(t *testing.T) {
	// GIVEN: A loan already returned
	// WHEN: The same pair is returned again
	// THEN: The second return fails; the closed record is untouched

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	_, err = engine.Return(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	_, err = engine.Return(ctx, entry.ID, account.ID)
	assert.Error(t, err)
}

func TestBorrowReturnBorrow_RoundTrip(t *testing.T) {
	// GIVEN: An entry that has completed a full borrow/return cycle
	// WHEN: A different account borrows it
	// THEN: The second loan succeeds and both ledger records survive

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	first := registerTestAccount(t, engine)
	second, err := engine.RegisterAccount(ctx, "Blake Reader", "blake@example.com", "")
	require.NoError(t, err)

	loan1, err := engine.Borrow(ctx, entry.ID, first.ID)
	require.NoError(t, err)
	_, err = engine.Return(ctx, entry.ID, first.ID)
	require.NoError(t, err)

	loan2, err := engine.Borrow(ctx, entry.ID, second.ID)
	require.NoError(t, err)
	assert.NotEqual(t, loan1.ID, loan2.ID)

	got, err := engine.Entry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalLoans)
	assert.Len(t, got.LoanHistory, 2)
}

// =============================================================================
// EXTEND
// =============================================================================

func TestExtend_MovesDueDate(t *testing.T) {
	// GIVEN: An active loan
	// WHEN: The holder extends it
	// THEN: The due date moves out by the policy default and status is Extended

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	granted, err := engine.Extend(ctx, loan.ID, 0)
	require.NoError(t, err)
	assert.True(t, granted)

	got, err := engine.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanExtended, got.Status)
	assert.Equal(t, loan.DueAt.AddDate(0, 0, 7), got.DueAt)
	assert.Equal(t, 1, got.ExtensionCount)
}

func TestExtend_CapReached_Refused(t *testing.T) {
	// GIVEN: A loan already extended twice (the cap)
	// WHEN: A third extension is requested
	// THEN: It is refused (false, nil) and the due date does not move

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		granted, err := engine.Extend(ctx, loan.ID, 0)
		require.NoError(t, err)
		require.True(t, granted)
	}

	granted, err := engine.Extend(ctx, loan.ID, 0)
	assert.NoError(t, err)
	assert.False(t, granted, "third extension must be refused")

	got, err := engine.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ExtensionCount)
}

func TestExtend_PastDue_Refused(t *testing.T) {
	// GIVEN: A loan past its due date (not yet swept)
	// WHEN: The holder requests an extension
	// THEN: It is refused without error

	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(15)
	granted, err := engine.Extend(ctx, loan.ID, 0)
	assert.NoError(t, err)
	assert.False(t, granted)
}

func TestExtend_OverdueLoan_Refused(t *testing.T) {
	// GIVEN: A loan the sweep already flipped to Overdue
	// WHEN: The holder requests an extension
	// THEN: Refusal, not a transition error - same answer as an unswept
	// past-due loan

	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(15)
	_, err = engine.MarkOverdue(ctx)
	require.NoError(t, err)

	granted, err := engine.Extend(ctx, loan.ID, 0)
	assert.NoError(t, err)
	assert.False(t, granted)
}

func TestExtend_ReturnedLoan_TransitionError(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)
	_, err = engine.Return(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	_, err = engine.Extend(ctx, loan.ID, 0)
	var transErr *circulation.TransitionError
	assert.ErrorAs(t, err, &transErr)
}

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

func TestMarkOverdue_FlipsPastDueOnly(t *testing.T) {
	// GIVEN: One loan past due and one still current
	// WHEN: The sweep runs
	// THEN: Only the past-due loan flips and its holder is notified

	engine, clock, notifier := newTestEngine(t)
	ctx := context.Background()
	account := registerTestAccount(t, engine)

	early := addTestEntry(t, engine, "ISBN-001")
	earlyLoan, err := engine.Borrow(ctx, early.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(10)
	late := addTestEntry(t, engine, "ISBN-002")
	lateLoan, err := engine.Borrow(ctx, late.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(5) // first loan now 1 day past due, second 9 days out
	flipped, err := engine.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	got, err := engine.Loan(ctx, earlyLoan.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanOverdue, got.Status)

	got, err = engine.Loan(ctx, lateLoan.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanActive, got.Status)

	assert.Len(t, notifier.byCategory(circulation.NoticeOverdue), 1)
}

func TestMarkOverdue_Idempotent(t *testing.T) {
	// GIVEN: A sweep that already flipped a loan
	// WHEN: The sweep runs again with no elapsed time
	// THEN: Nothing flips and no duplicate notice is sent

	engine, clock, notifier := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(15)
	flipped, err := engine.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	flipped, err = engine.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, flipped)
	assert.Len(t, notifier.byCategory(circulation.NoticeOverdue), 1)
}

func TestListOverdue_SortedByDueDate(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()
	account := registerTestAccount(t, engine)

	first := addTestEntry(t, engine, "ISBN-001")
	firstLoan, err := engine.Borrow(ctx, first.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(3)
	second := addTestEntry(t, engine, "ISBN-002")
	secondLoan, err := engine.Borrow(ctx, second.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(30)
	overdue, err := engine.ListOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, firstLoan.ID, overdue[0].ID)
	assert.Equal(t, secondLoan.ID, overdue[1].ID)
}

// =============================================================================
// DUE-SOON REMINDERS
// =============================================================================

func TestDueSoonReminders_FireAtOffsets(t *testing.T) {
	// GIVEN: A loan due in exactly 3 days (a configured offset)
	// WHEN: The reminder pass runs
	// THEN: One due-soon notice fires; a pass at a non-offset distance
	// fires nothing

	engine, clock, notifier := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(11) // due in 3 days
	fired, err := engine.RunDueSoonReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	clock.AdvanceDays(1) // due in 2 days, not an offset
	fired, err = engine.RunDueSoonReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)

	clock.AdvanceDays(1) // due in 1 day
	fired, err = engine.RunDueSoonReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	assert.Len(t, notifier.byCategory(circulation.NoticeDueSoon), 2)
}

func TestDueSoonReminders_SkipOverdueLoans(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(15)
	_, err = engine.MarkOverdue(ctx)
	require.NoError(t, err)

	fired, err := engine.RunDueSoonReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func TestReserve_BlocksOtherAccounts(t *testing.T) {
	// GIVEN: An entry reserved by one account
	// WHEN: Another account tries to borrow it
	// THEN: Conflict; the holder's own borrow activates the reservation

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	holder := registerTestAccount(t, engine)
	other, err := engine.RegisterAccount(ctx, "Blake Reader", "blake@example.com", "")
	require.NoError(t, err)

	reservation, err := engine.Reserve(ctx, entry.ID, holder.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanReserved, reservation.Status)

	// A hold does not take the item out of circulation.
	got, err := engine.Entry(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, got.AvailableForLoan)

	_, err = engine.Borrow(ctx, entry.ID, other.ID)
	assert.ErrorIs(t, err, circulation.ErrConflict)

	loan, err := engine.Borrow(ctx, entry.ID, holder.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.ID, loan.ID, "borrow must activate the existing hold")
	assert.Equal(t, circulation.LoanActive, loan.Status)
}

func TestReserve_DoubleHold_Rejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	holder := registerTestAccount(t, engine)
	other, err := engine.RegisterAccount(ctx, "Blake Reader", "blake@example.com", "")
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, entry.ID, holder.ID)
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, entry.ID, other.ID)
	assert.ErrorIs(t, err, circulation.ErrConflict)
}

func TestCancelReservation_FreesTheEntry(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	holder := registerTestAccount(t, engine)
	other, err := engine.RegisterAccount(ctx, "Blake Reader", "blake@example.com", "")
	require.NoError(t, err)

	reservation, err := engine.Reserve(ctx, entry.ID, holder.ID)
	require.NoError(t, err)
	require.NoError(t, engine.CancelReservation(ctx, reservation.ID))

	got, err := engine.Loan(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanCancelled, got.Status)

	_, err = engine.Borrow(ctx, entry.ID, other.ID)
	assert.NoError(t, err, "cancelled hold must not block other accounts")
}

func TestCancelReservation_ActiveLoan_TransitionError(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	err = engine.CancelReservation(ctx, loan.ID)
	var transErr *circulation.TransitionError
	assert.ErrorAs(t, err, &transErr)
}

// =============================================================================
// CATALOG AND ROSTER GUARDS
// =============================================================================

func TestAddEntry_DuplicateCode_Rejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	addTestEntry(t, engine, "ISBN-001")

	_, err := engine.AddEntry(ctx, circulation.CatalogEntry{Code: "ISBN-001", Title: "Another"})
	assert.ErrorIs(t, err, circulation.ErrDuplicateKey)
}

func TestRemoveEntry_OnLoan_Rejected(t *testing.T) {
	// GIVEN: An entry currently on loan
	// WHEN: Staff tries to remove it from the catalog
	// THEN: Conflict; after the return the removal goes through

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	err = engine.RemoveEntry(ctx, entry.ID)
	assert.ErrorIs(t, err, circulation.ErrConflict)

	_, err = engine.Return(ctx, entry.ID, account.ID)
	require.NoError(t, err)
	assert.NoError(t, engine.RemoveEntry(ctx, entry.ID))
}

func TestRemoveAccount_WithOpenLoans_Rejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	err = engine.RemoveAccount(ctx, account.ID)
	assert.ErrorIs(t, err, circulation.ErrConflict)
}

func TestRegisterAccount_RequiresNameAndEmail(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RegisterAccount(ctx, "", "alex@example.com", "")
	assert.ErrorIs(t, err, circulation.ErrInvalidArgument)

	_, err = engine.RegisterAccount(ctx, "Alex Reader", "", "")
	assert.ErrorIs(t, err, circulation.ErrInvalidArgument)
}
