/*
staff.go - Administrative overrides

PURPOSE:
  Single-entity staff mutations sharing the engine's state and mutex but
  needing only local validation: suspensions, restrictions, condition
  overrides, forced returns, and fee waivers.

  These do not run the borrow eligibility checks; a restriction placed
  while a loan is open blocks new loans without touching the open one.
*/
package circulation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT OVERRIDES
// =============================================================================

// Suspend blocks an account from borrowing for the given number of days.
// Zero days takes the policy default; negative durations are invalid.
// Requires a non-empty reason.
func (e *Engine) Suspend(ctx context.Context, id AccountID, days int, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if days < 0 {
		return fmt.Errorf("%w: suspension days must not be negative", ErrInvalidArgument)
	}
	if days == 0 {
		days = e.policy.DefaultSuspensionDays
	}
	if reason == "" {
		return fmt.Errorf("%w: suspension reason is required", ErrInvalidArgument)
	}

	account, err := e.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	until := normalizeDay(now).AddDate(0, 0, days)
	account.SuspendedUntil = &until
	account.SuspensionReason = reason
	account.UpdatedAt = now

	if err := e.store.PutAccount(ctx, *account); err != nil {
		return err
	}
	e.notifier.Notify(id,
		fmt.Sprintf("Your account has been suspended for %d days. Reason: %s", days, reason),
		NoticeAccountSuspended)
	return nil
}

// Unsuspend clears a suspension window early. A window that has already
// elapsed needs no action; CanBorrow re-evaluates it on every attempt.
func (e *Engine) Unsuspend(ctx context.Context, id AccountID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := e.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if account.SuspendedUntil == nil {
		return &ConflictError{Reason: fmt.Sprintf("account %s is not suspended", id)}
	}

	account.SuspendedUntil = nil
	account.SuspensionReason = ""
	account.UpdatedAt = e.clock.Now()

	if err := e.store.PutAccount(ctx, *account); err != nil {
		return err
	}
	e.notifier.Notify(id, "Your account suspension has been lifted.", NoticeAccountReinstated)
	return nil
}

// SetLoanCap overrides the per-account loan cap. Refused below the number
// of loans currently open.
func (e *Engine) SetLoanCap(ctx context.Context, id AccountID, max int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if max <= 0 {
		return fmt.Errorf("%w: loan cap must be positive", ErrInvalidArgument)
	}
	account, err := e.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if max < len(account.OpenLoanIDs) {
		return &ConflictError{Reason: fmt.Sprintf("account %s holds %d open loans", id, len(account.OpenLoanIDs))}
	}
	account.MaxLoansAllowed = max
	account.UpdatedAt = e.clock.Now()
	return e.store.PutAccount(ctx, *account)
}

// =============================================================================
// CATALOG OVERRIDES
// =============================================================================

// Restrict blocks new loans on an entry without affecting one already
// open. Requires a non-empty reason.
func (e *Engine) Restrict(ctx context.Context, id EntryID, reason string) error {
	return e.setRestricted(ctx, id, reason, true)
}

// Unrestrict lifts a restriction.
func (e *Engine) Unrestrict(ctx context.Context, id EntryID) error {
	return e.setRestricted(ctx, id, "lifted", false)
}

func (e *Engine) setRestricted(ctx context.Context, id EntryID, reason string, restricted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if reason == "" {
		return fmt.Errorf("%w: reason is required", ErrInvalidArgument)
	}
	entry, err := e.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}

	entry.Restricted = restricted
	// Availability stays false while a loan is open regardless of the flag.
	open, err := e.store.OpenLoansByEntry(ctx, id)
	if err != nil {
		return err
	}
	entry.AvailableForLoan = len(open) == 0 && !restricted && entry.Condition.Loanable()
	entry.LastModified = e.clock.Now()
	return e.store.PutEntry(ctx, *entry)
}

// SetCondition is the staff override for an entry's physical condition.
// Marking an entry damaged, lost, or in-repair withdraws it from
// circulation; restoring it to a loanable condition re-opens availability
// unless a loan is open or the entry is restricted.
func (e *Engine) SetCondition(ctx context.Context, id EntryID, condition Condition) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch condition {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor,
		ConditionDamaged, ConditionLost, ConditionInRepair:
	default:
		return fmt.Errorf("%w: unknown condition %q", ErrInvalidArgument, condition)
	}

	entry, err := e.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	open, err := e.store.OpenLoansByEntry(ctx, id)
	if err != nil {
		return err
	}

	entry.Condition = condition
	entry.AvailableForLoan = len(open) == 0 && !entry.Restricted && condition.Loanable()
	entry.LastModified = e.clock.Now()
	return e.store.PutEntry(ctx, *entry)
}

// =============================================================================
// LOAN OVERRIDES
// =============================================================================

// ForceReturn processes a return on a loan directly, with an optional
// damage fee graded by severity. Used when staff handle the item at the
// desk rather than the member closing the pair themselves.
func (e *Engine) ForceReturn(ctx context.Context, loanID LoanID, damage *DamageLevel) (*LoanRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !loan.IsOpen() {
		return nil, &TransitionError{LoanID: loan.ID, From: loan.Status, To: LoanReturned}
	}

	damageFee := decimal.Zero
	if damage != nil {
		entry, err := e.store.GetEntry(ctx, loan.EntryID)
		if err != nil {
			return nil, err
		}
		damageFee = e.fees.DamageFee(entry.Price, *damage)
	}

	// A graded return withdraws the damaged item inside the same
	// transaction as the close; a write failure leaves the loan open and
	// the account uncharged.
	return e.closeLoanLocked(ctx, loan.EntryID, loan.AccountID, damageFee, damage != nil)
}

// WaiveFees clears the fees on a closed loan and credits the account.
// Refused when the amount is outside the waivable rules for the given
// reason.
func (e *Engine) WaiveFees(ctx context.Context, loanID LoanID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}
	if loan.TotalFee.IsZero() {
		return &ConflictError{Reason: fmt.Sprintf("loan %s has no fees to waive", loanID)}
	}
	if !e.fees.CanWaive(loan.TotalFee, reason) {
		return fmt.Errorf("%w: fee of %s cannot be waived for %q", ErrConflict, loan.TotalFee.StringFixed(2), reason)
	}

	account, err := e.store.GetAccount(ctx, loan.AccountID)
	if err != nil {
		return err
	}

	account.FeesOwed = account.FeesOwed.Sub(loan.TotalFee)
	if account.FeesOwed.IsNegative() {
		account.FeesOwed = decimal.Zero
	}
	account.UpdatedAt = e.clock.Now()

	loan.LateFee = decimal.Zero
	loan.DamageFee = decimal.Zero
	loan.TotalFee = decimal.Zero
	loan.UpdatedAt = e.clock.Now()

	err = e.store.WithTx(ctx, func(s Store) error {
		if err := s.PutLoan(ctx, *loan); err != nil {
			return err
		}
		return s.PutAccount(ctx, *account)
	})
	if err != nil {
		return err
	}

	e.notifier.Notify(loan.AccountID, "Your fees have been waived.", NoticeFeesWaived)
	return nil
}
