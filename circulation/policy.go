/*
policy.go - The policy table governing circulation

PURPOSE:
  Static configuration for the whole engine: loan caps, extension caps,
  loan period per item category, the late fee schedule, reminder offsets,
  and suspension defaults. Loaded once at startup (directly or via the
  factory package from JSON) and never mutated afterwards.

DEFAULTS:
  The defaults mirror a typical small library:
  - 5 concurrent loans per account, 2 extensions per loan, 7-day extension
  - Periods: general 14d, reference 7d, children 21d, academic 30d
  - Late fee 0.50/day after a 2-day grace period, capped at 25.00
  - Due-soon reminders at 3 days and 1 day before the due date

SEE ALSO:
  - fees.go: Fee calculation against this table
  - factory/policy.go: JSON loading with defaults fill-in
*/
package circulation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY TABLE
// =============================================================================

// PolicyTable is the immutable business configuration. Treat as read-only
// after construction; the engine holds it by pointer but never writes it.
type PolicyTable struct {
	MaxLoansPerAccount   int
	MaxExtensionsPerLoan int
	ExtensionDays        int

	// Loan period in days per item category. Categories absent from the
	// map fall back to the general period.
	LoanPeriodDays map[Category]int

	GraceDays     int
	LateFeePerDay decimal.Decimal
	LateFeeCap    decimal.Decimal

	// Days before the due date at which a due-soon reminder fires.
	ReminderOffsetsDays []int

	DefaultSuspensionDays    int
	ReplacementProcessingFee decimal.Decimal
}

// DefaultPolicyTable returns the standard configuration.
func DefaultPolicyTable() *PolicyTable {
	return &PolicyTable{
		MaxLoansPerAccount:   5,
		MaxExtensionsPerLoan: 2,
		ExtensionDays:        7,
		LoanPeriodDays: map[Category]int{
			CategoryGeneral:   14,
			CategoryReference: 7,
			CategoryChildren:  21,
			CategoryAcademic:  30,
		},
		GraceDays:                2,
		LateFeePerDay:            decimal.RequireFromString("0.50"),
		LateFeeCap:               decimal.RequireFromString("25.00"),
		ReminderOffsetsDays:      []int{3, 1},
		DefaultSuspensionDays:    7,
		ReplacementProcessingFee: decimal.RequireFromString("5.00"),
	}
}

// LoanPeriod returns the loan period in days for a category.
func (p *PolicyTable) LoanPeriod(c Category) int {
	if d, ok := p.LoanPeriodDays[c]; ok {
		return d
	}
	return p.LoanPeriodDays[CategoryGeneral]
}

// Validate checks the table for nonsensical configuration.
func (p *PolicyTable) Validate() error {
	if p.MaxLoansPerAccount <= 0 {
		return fmt.Errorf("%w: max loans per account must be positive", ErrInvalidArgument)
	}
	if p.MaxExtensionsPerLoan < 0 {
		return fmt.Errorf("%w: max extensions must not be negative", ErrInvalidArgument)
	}
	if p.ExtensionDays <= 0 {
		return fmt.Errorf("%w: extension days must be positive", ErrInvalidArgument)
	}
	if _, ok := p.LoanPeriodDays[CategoryGeneral]; !ok {
		return fmt.Errorf("%w: general loan period is required", ErrInvalidArgument)
	}
	for c, d := range p.LoanPeriodDays {
		if d <= 0 {
			return fmt.Errorf("%w: loan period for %s must be positive", ErrInvalidArgument, c)
		}
	}
	if p.GraceDays < 0 {
		return fmt.Errorf("%w: grace days must not be negative", ErrInvalidArgument)
	}
	if p.LateFeePerDay.IsNegative() || p.LateFeeCap.IsNegative() {
		return fmt.Errorf("%w: fee schedule must not be negative", ErrInvalidArgument)
	}
	for _, off := range p.ReminderOffsetsDays {
		if off <= 0 {
			return fmt.Errorf("%w: reminder offsets must be positive", ErrInvalidArgument)
		}
	}
	return nil
}
