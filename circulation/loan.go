/*
loan.go - Loan record state machine

PURPOSE:
  Implements the allowed transitions of a LoanRecord:

      Reserved ──▶ Active ──▶ Extended ──▶ Overdue
         │           │    ╲       │    ╱      │
         ▼           │     ╲      │   ╱       │
     Cancelled       └──────▶ Returned ◀──────┘

  Returned and Cancelled are terminal. Every disallowed transition returns
  a TransitionError; nothing silently no-ops.

  The transitions are unexported: the engine is the only caller, and it
  always persists the mutated record inside the same Store.WithTx that
  updates the entry and account.
*/
package circulation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// newLoan creates an Active loan. Eligibility was already validated by the
// engine; this only fills the record.
func newLoan(entryID EntryID, accountID AccountID, now time.Time, periodDays int) *LoanRecord {
	return &LoanRecord{
		ID:         LoanID(uuid.NewString()),
		EntryID:    entryID,
		AccountID:  accountID,
		BorrowedAt: now,
		DueAt:      now.AddDate(0, 0, periodDays),
		Status:     LoanActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// newReservation creates a Reserved loan holding the pair without taking
// the item out of circulation.
func newReservation(entryID EntryID, accountID AccountID, now time.Time) *LoanRecord {
	return &LoanRecord{
		ID:        LoanID(uuid.NewString()),
		EntryID:   entryID,
		AccountID: accountID,
		Status:    LoanReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// activate turns a reservation into an Active loan.
func (l *LoanRecord) activate(now time.Time, periodDays int) error {
	if l.Status != LoanReserved {
		return &TransitionError{LoanID: l.ID, From: l.Status, To: LoanActive}
	}
	l.Status = LoanActive
	l.BorrowedAt = now
	l.DueAt = now.AddDate(0, 0, periodDays)
	l.UpdatedAt = now
	return nil
}

// extend pushes the due date out by extensionDays.
//
// A refusal (cap reached, already past due) is reported as false with no
// error and no mutation; only a terminal or reserved record is an error.
func (l *LoanRecord) extend(now time.Time, extensionDays, maxExtensions int) (bool, error) {
	switch l.Status {
	case LoanActive, LoanExtended:
		// eligible below
	case LoanOverdue:
		// swept to Overdue already; same refusal as now > DueAt
		return false, nil
	default:
		return false, &TransitionError{LoanID: l.ID, From: l.Status, To: LoanExtended}
	}

	if l.ExtensionCount >= maxExtensions {
		return false, nil
	}
	if now.After(l.DueAt) {
		return false, nil
	}

	l.ExtensionCount++
	l.DueAt = l.DueAt.AddDate(0, 0, extensionDays)
	l.Status = LoanExtended
	l.UpdatedAt = now
	return true, nil
}

// markOverdue flips an open past-due loan to Overdue. Idempotent on a loan
// that is already Overdue; an error on a terminal or reserved one.
func (l *LoanRecord) markOverdue(now time.Time) (bool, error) {
	switch l.Status {
	case LoanOverdue:
		return false, nil
	case LoanActive, LoanExtended:
		if !l.IsPastDue(now) {
			return false, nil
		}
		l.Status = LoanOverdue
		l.UpdatedAt = now
		return true, nil
	default:
		return false, &TransitionError{LoanID: l.ID, From: l.Status, To: LoanOverdue}
	}
}

// close records the return. The caller computes the fees so that the
// engine and the staff force-return share one fee path.
func (l *LoanRecord) close(now time.Time, lateFee, damageFee decimal.Decimal) error {
	switch l.Status {
	case LoanActive, LoanExtended, LoanOverdue:
		// eligible below
	default:
		return &TransitionError{LoanID: l.ID, From: l.Status, To: LoanReturned}
	}

	returnedAt := now
	l.ReturnedAt = &returnedAt
	l.LateFee = lateFee
	l.DamageFee = damageFee
	l.TotalFee = lateFee.Add(damageFee)
	l.Status = LoanReturned
	l.UpdatedAt = now
	return nil
}

// cancel voids a reservation that was never activated.
func (l *LoanRecord) cancel(now time.Time) error {
	if l.Status != LoanReserved {
		return &TransitionError{LoanID: l.ID, From: l.Status, To: LoanCancelled}
	}
	l.Status = LoanCancelled
	l.UpdatedAt = now
	return nil
}
