package circulation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/circulation-engine/circulation"
	"github.com/meridian/circulation-engine/circulation/store"
)

// =============================================================================
// SUSPENSIONS
// =============================================================================

func TestSuspend_RequiresDurationAndReason(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	account := registerTestAccount(t, engine)

	err := engine.Suspend(ctx, account.ID, -1, "late returns")
	assert.ErrorIs(t, err, circulation.ErrInvalidArgument)

	err = engine.Suspend(ctx, account.ID, 7, "")
	assert.ErrorIs(t, err, circulation.ErrInvalidArgument)
}

func TestSuspend_ZeroDays_PolicyDefaultWindow(t *testing.T) {
	// GIVEN: A suspension with no explicit duration
	// WHEN: The default 7-day window elapses
	// THEN: Borrowing works again without staff intervention

	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)

	require.NoError(t, engine.Suspend(ctx, account.ID, 0, "repeated late returns"))
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.ErrorIs(t, err, circulation.ErrUnauthorized)

	clock.AdvanceDays(8)
	_, err = engine.Borrow(ctx, entry.ID, account.ID)
	assert.NoError(t, err)
}

func TestSuspend_ThenUnsuspend(t *testing.T) {
	// GIVEN: A suspended account
	// WHEN: Staff lifts the suspension early
	// THEN: The account can borrow again immediately

	engine, _, notifier := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)

	require.NoError(t, engine.Suspend(ctx, account.ID, 7, "damaged returns"))
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.Error(t, err)

	require.NoError(t, engine.Unsuspend(ctx, account.ID))
	_, err = engine.Borrow(ctx, entry.ID, account.ID)
	assert.NoError(t, err)

	assert.Len(t, notifier.byCategory(circulation.NoticeAccountSuspended), 1)
	assert.Len(t, notifier.byCategory(circulation.NoticeAccountReinstated), 1)
}

func TestUnsuspend_NotSuspended_Conflict(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	account := registerTestAccount(t, engine)

	err := engine.Unsuspend(context.Background(), account.ID)
	assert.ErrorIs(t, err, circulation.ErrConflict)
}

// =============================================================================
// LOAN CAP OVERRIDE
// =============================================================================

func TestSetLoanCap_BelowOpenCount_Refused(t *testing.T) {
	// GIVEN: An account holding two open loans
	// WHEN: Staff tries to set the cap to one
	// THEN: Conflict; open loans are never invalidated retroactively

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	account := registerTestAccount(t, engine)
	for _, code := range []string{"ISBN-001", "ISBN-002"} {
		entry := addTestEntry(t, engine, code)
		_, err := engine.Borrow(ctx, entry.ID, account.ID)
		require.NoError(t, err)
	}

	err := engine.SetLoanCap(ctx, account.ID, 1)
	assert.ErrorIs(t, err, circulation.ErrConflict)

	assert.NoError(t, engine.SetLoanCap(ctx, account.ID, 2))
}

// =============================================================================
// RESTRICTIONS AND CONDITION
// =============================================================================

func TestRestrict_BlocksNewLoansOnly(t *testing.T) {
	// GIVEN: An entry on loan that staff then restricts
	// WHEN: The loan is returned
	// THEN: The open loan was untouched but the entry stays unavailable
	// until the restriction lifts

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	require.NoError(t, engine.Restrict(ctx, entry.ID, "archival review"))

	loan, err := engine.Return(ctx, entry.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanReturned, loan.Status)

	got, err := engine.Entry(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, got.AvailableForLoan)

	_, err = engine.Borrow(ctx, entry.ID, account.ID)
	assert.ErrorIs(t, err, circulation.ErrConflict)

	require.NoError(t, engine.Unrestrict(ctx, entry.ID))
	_, err = engine.Borrow(ctx, entry.ID, account.ID)
	assert.NoError(t, err)
}

func TestSetCondition_WithdrawsAndRestores(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)

	require.NoError(t, engine.SetCondition(ctx, entry.ID, circulation.ConditionInRepair))
	_, err := engine.Borrow(ctx, entry.ID, account.ID)
	assert.ErrorIs(t, err, circulation.ErrConflict)

	require.NoError(t, engine.SetCondition(ctx, entry.ID, circulation.ConditionGood))
	_, err = engine.Borrow(ctx, entry.ID, account.ID)
	assert.NoError(t, err)
}

func TestSetCondition_UnknownValue_Rejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	entry := addTestEntry(t, engine, "ISBN-001")

	err := engine.SetCondition(context.Background(), entry.ID, "pristine")
	assert.ErrorIs(t, err, circulation.ErrInvalidArgument)
}

// =============================================================================
// FORCE RETURN
// =============================================================================

func TestForceReturn_WithDamage(t *testing.T) {
	// GIVEN: An open loan on a 40.00 item
	// WHEN: Staff force-returns it graded moderate
	// THEN: A 20.00 damage fee lands on the loan and account, and the entry
	// is withdrawn as damaged

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	damage := circulation.DamageModerate
	closed, err := engine.ForceReturn(ctx, loan.ID, &damage)
	require.NoError(t, err)

	assert.Equal(t, circulation.LoanReturned, closed.Status)
	assert.Equal(t, "20.00", closed.DamageFee.StringFixed(2))

	got, err := engine.Entry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.ConditionDamaged, got.Condition)
	assert.False(t, got.AvailableForLoan)

	acct, err := engine.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", acct.FeesOwed.StringFixed(2))
}

func TestForceReturn_NoDamage_FreesEntry(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	closed, err := engine.ForceReturn(ctx, loan.ID, nil)
	require.NoError(t, err)
	assert.True(t, closed.DamageFee.IsZero())

	got, err := engine.Entry(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, got.AvailableForLoan)
}

// faultyStore injects entry-write failures into a memory store, both on
// direct puts and inside transactions.
type faultyStore struct {
	*store.Memory
	failEntryWrites bool
}

var errEntryWrite = errors.New("disk full")

func (f *faultyStore) PutEntry(ctx context.Context, e circulation.CatalogEntry) error {
	if f.failEntryWrites {
		return errEntryWrite
	}
	return f.Memory.PutEntry(ctx, e)
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(circulation.Store) error) error {
	return f.Memory.WithTx(ctx, func(s circulation.Store) error {
		return fn(&faultyTxStore{Store: s, parent: f})
	})
}

type faultyTxStore struct {
	circulation.Store
	parent *faultyStore
}

func (f *faultyTxStore) PutEntry(ctx context.Context, e circulation.CatalogEntry) error {
	if f.parent.failEntryWrites {
		return errEntryWrite
	}
	return f.Store.PutEntry(ctx, e)
}

func TestForceReturn_EntryWriteFailure_LeavesLoanOpen(t *testing.T) {
	// GIVEN: An open loan on a store whose entry writes start failing
	// WHEN: A damage-graded force-return hits the failure
	// THEN: The loan stays open, no fee lands anywhere, and the entry is
	// untouched - the error branch must not persist a partial close

	st := &faultyStore{Memory: store.NewMemory()}
	clock := newFakeClock(testStart)
	engine := circulation.NewEngine(st, nil, clock, nil)
	ctx := context.Background()

	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	st.failEntryWrites = true
	damage := circulation.DamageModerate
	_, err = engine.ForceReturn(ctx, loan.ID, &damage)
	require.ErrorIs(t, err, errEntryWrite)

	got, err := engine.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanActive, got.Status)
	assert.True(t, got.TotalFee.IsZero())

	acct, err := engine.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, acct.FeesOwed.IsZero())
	assert.Equal(t, []circulation.LoanID{loan.ID}, acct.OpenLoanIDs)

	ent, err := engine.Entry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.ConditionGood, ent.Condition)

	// The store recovers; the same force-return now completes
	st.failEntryWrites = false
	closed, err := engine.ForceReturn(ctx, loan.ID, &damage)
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanReturned, closed.Status)
	assert.Equal(t, "20.00", closed.DamageFee.StringFixed(2))
}

func TestForceReturn_ClosedLoan_TransitionError(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)
	_, err = engine.Return(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	_, err = engine.ForceReturn(ctx, loan.ID, nil)
	var transErr *circulation.TransitionError
	assert.ErrorAs(t, err, &transErr)
}

// =============================================================================
// FEE WAIVERS
// =============================================================================

func TestWaiveFees_RecognizedReason(t *testing.T) {
	// GIVEN: A loan closed with a 2.00 late fee
	// WHEN: Staff waives it citing a recognized reason
	// THEN: The loan and the account balance both drop to zero

	engine, clock, notifier := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	clock.AdvanceDays(20)
	_, err = engine.Return(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	require.NoError(t, engine.WaiveFees(ctx, loan.ID, "first offense, always returned on time before"))

	got, err := engine.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalFee.IsZero())

	acct, err := engine.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, acct.FeesOwed.IsZero())

	assert.Len(t, notifier.byCategory(circulation.NoticeFeesWaived), 1)
}

func TestWaiveFees_LargeFee_Refused(t *testing.T) {
	// GIVEN: A loan carrying a 20.00 damage fee
	// WHEN: Staff tries to waive it
	// THEN: Refused regardless of reason - above the waivable ceiling

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	damage := circulation.DamageModerate
	_, err = engine.ForceReturn(ctx, loan.ID, &damage)
	require.NoError(t, err)

	err = engine.WaiveFees(ctx, loan.ID, "first offense, genuinely sorry about this")
	assert.ErrorIs(t, err, circulation.ErrConflict)
}

func TestWaiveFees_NoFees_Conflict(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	entry := addTestEntry(t, engine, "ISBN-001")
	account := registerTestAccount(t, engine)
	loan, err := engine.Borrow(ctx, entry.ID, account.ID)
	require.NoError(t, err)
	_, err = engine.Return(ctx, entry.ID, account.ID)
	require.NoError(t, err)

	err = engine.WaiveFees(ctx, loan.ID, "first offense, nothing owed anyway")
	assert.ErrorIs(t, err, circulation.ErrConflict)
}
