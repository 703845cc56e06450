/*
Package circulation provides the core library circulation engine.

PURPOSE:
  This package contains the domain model and orchestration logic for the
  borrow/return/extend lifecycle: catalog entries, membership accounts,
  loan records, the policy table that governs them, and the engine that
  enforces the cross-entity invariants.

KEY CONCEPTS IN THIS FILE (types.go):
  - CatalogEntry: A circulating item with availability and condition state
  - MemberAccount: A patron able to hold loans, subject to caps
  - LoanRecord: The transactional entity for one borrow-to-return cycle
  - Entry/Account/Loan IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Purity: No I/O in this package; persistence goes through Store
  2. Determinism: Time comes from an injected Clock, never time.Now()
  3. Precision: Uses decimal.Decimal for all fee amounts
  4. Type Safety: Strong typing for IDs prevents mixing entry/account/loan IDs

SEE ALSO:
  - policy.go: The policy table (limits, periods, fee schedule)
  - loan.go: Loan state machine transitions
  - engine.go: The circulation engine orchestrator
*/
package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntryID string
type AccountID string
type LoanID string

// =============================================================================
// ITEM CATEGORIES AND CONDITION
// =============================================================================

// Category determines the loan period for an item.
type Category string

const (
	CategoryGeneral   Category = "general"
	CategoryReference Category = "reference" // short loan period
	CategoryChildren  Category = "children"
	CategoryAcademic  Category = "academic"
)

// Condition is the physical state of a catalog entry.
type Condition string

const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
	ConditionDamaged   Condition = "damaged"
	ConditionLost      Condition = "lost"
	ConditionInRepair  Condition = "in_repair"
)

// Loanable reports whether an item in this condition may circulate.
// Damaged, lost, and in-repair items are withheld until staff intervene.
func (c Condition) Loanable() bool {
	switch c {
	case ConditionDamaged, ConditionLost, ConditionInRepair:
		return false
	default:
		return true
	}
}

// DamageLevel grades damage severity for fee purposes.
type DamageLevel string

const (
	DamageMinor    DamageLevel = "minor"    // light scratches, bent pages
	DamageModerate DamageLevel = "moderate" // torn pages, water damage
	DamageSevere   DamageLevel = "severe"   // unusable
)

// =============================================================================
// CATALOG ENTRY
// =============================================================================

// CatalogEntry is a circulating item and its physical/availability state.
//
// AvailableForLoan is redundant with the existence of an open loan on the
// entry; every mutation that touches both facts runs inside a single
// Store.WithTx so the two cannot drift.
type CatalogEntry struct {
	ID       EntryID
	Code     string // unique external code (ISBN, barcode)
	Title    string
	Author   string
	Category Category

	AvailableForLoan bool
	Restricted       bool
	Condition        Condition
	Price            decimal.Decimal // basis for damage/replacement fees

	// Past loans on this entry, reference only. The loan ledger owns the
	// records; this is a convenience trail for staff views.
	LoanHistory []LoanID

	TotalLoans   int
	AddedAt      time.Time
	LastModified time.Time
}

// =============================================================================
// MEMBERSHIP ACCOUNT
// =============================================================================

// MemberAccount is a patron with authorization/suspension state and the
// ordered set of currently-open loans.
//
// Invariant: len(OpenLoanIDs) <= MaxLoansAllowed at all times. The engine
// is the only writer of OpenLoanIDs.
type MemberAccount struct {
	ID    AccountID
	Name  string
	Email string
	Phone string

	Authorized       bool
	SuspendedUntil   *time.Time
	SuspensionReason string

	OpenLoanIDs     []LoanID
	MaxLoansAllowed int // defaults from the policy table, per-account override allowed

	TotalLoans   int
	OverdueCount int
	FeesOwed     decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsSuspended reports whether the account is suspended as of now.
// A suspension window that has elapsed is honored immediately; no explicit
// unsuspend action is needed.
func (a *MemberAccount) IsSuspended(now time.Time) bool {
	return a.SuspendedUntil != nil && now.Before(*a.SuspendedUntil)
}

// CanBorrow is the pure eligibility gate, re-evaluated on every attempt.
func (a *MemberAccount) CanBorrow(now time.Time) bool {
	return a.Authorized && !a.IsSuspended(now) && len(a.OpenLoanIDs) < a.MaxLoansAllowed
}

func (a *MemberAccount) holdsLoan(id LoanID) bool {
	for _, l := range a.OpenLoanIDs {
		if l == id {
			return true
		}
	}
	return false
}

func (a *MemberAccount) removeLoan(id LoanID) {
	for i, l := range a.OpenLoanIDs {
		if l == id {
			a.OpenLoanIDs = append(a.OpenLoanIDs[:i], a.OpenLoanIDs[i+1:]...)
			return
		}
	}
}

// =============================================================================
// LOAN RECORD
// =============================================================================

// LoanStatus is the loan state machine position. See loan.go for the
// allowed transitions.
type LoanStatus string

const (
	LoanReserved  LoanStatus = "reserved"
	LoanActive    LoanStatus = "active"
	LoanExtended  LoanStatus = "extended"
	LoanOverdue   LoanStatus = "overdue"
	LoanReturned  LoanStatus = "returned"
	LoanCancelled LoanStatus = "cancelled"
)

// LoanRecord tracks one borrow-to-return cycle. Created exclusively by the
// engine; never deleted, only closed in place.
type LoanRecord struct {
	ID        LoanID
	EntryID   EntryID
	AccountID AccountID

	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time

	ExtensionCount int
	Status         LoanStatus

	LateFee   decimal.Decimal
	DamageFee decimal.Decimal
	TotalFee  decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOpen reports whether the loan still holds the item.
func (l *LoanRecord) IsOpen() bool {
	switch l.Status {
	case LoanActive, LoanExtended, LoanOverdue:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the loan has reached a final state.
func (l *LoanRecord) IsTerminal() bool {
	return l.Status == LoanReturned || l.Status == LoanCancelled
}

// IsPastDue reports whether the loan is past its due date and unreturned.
func (l *LoanRecord) IsPastDue(now time.Time) bool {
	return l.ReturnedAt == nil && now.After(l.DueAt)
}
