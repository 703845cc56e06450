/*
fees.go - Fee calculation against the policy table

PURPOSE:
  Centralizes all fee math so the engine, staff actions, and API report
  identical amounts. All amounts are decimal.Decimal; float64 never touches
  money.

FORMULAS:
  Late fee:        min((daysLate - graceDays) * perDay, cap), floor 0
  Damage fee:      fraction of item price by severity (10% / 50% / 100%)
  Replacement:     item price + processing fee
*/
package circulation

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FEE CALCULATOR
// =============================================================================

// FeeCalculator computes fees from the policy table.
type FeeCalculator struct {
	Policy *PolicyTable
}

// LateFee computes the late fee for a return at returnedAt against dueAt.
// Days within the grace period are free; beyond it each day costs
// LateFeePerDay up to LateFeeCap.
func (fc *FeeCalculator) LateFee(dueAt, returnedAt time.Time) decimal.Decimal {
	daysLate := DaysLate(dueAt, returnedAt)
	chargeable := daysLate - fc.Policy.GraceDays
	if chargeable <= 0 {
		return decimal.Zero
	}
	fee := fc.Policy.LateFeePerDay.Mul(decimal.NewFromInt(int64(chargeable)))
	if fee.GreaterThan(fc.Policy.LateFeeCap) {
		return fc.Policy.LateFeeCap
	}
	return fee
}

// DamageFee computes the damage fee as a severity fraction of the item
// price. Unknown levels are charged as moderate.
func (fc *FeeCalculator) DamageFee(price decimal.Decimal, level DamageLevel) decimal.Decimal {
	var fraction decimal.Decimal
	switch level {
	case DamageMinor:
		fraction = decimal.RequireFromString("0.10")
	case DamageSevere:
		fraction = decimal.RequireFromString("1.00")
	default:
		fraction = decimal.RequireFromString("0.50")
	}
	return price.Mul(fraction).Round(2)
}

// ReplacementCost is the charge for a lost item.
func (fc *FeeCalculator) ReplacementCost(price decimal.Decimal) decimal.Decimal {
	return price.Add(fc.Policy.ReplacementProcessingFee).Round(2)
}

// CanWaive reports whether a fee may be waived without escalation.
// Small fees are always waivable, large fees never are, and mid-range
// fees need a recognized reason.
func (fc *FeeCalculator) CanWaive(amount decimal.Decimal, reason string) bool {
	minWaivable := decimal.RequireFromString("0.50")
	maxWaivable := decimal.RequireFromString("5.00")

	if amount.LessThan(minWaivable) {
		return true
	}
	if amount.GreaterThan(maxWaivable) {
		return false
	}
	reason = strings.ToLower(strings.TrimSpace(reason))
	if len(reason) < 10 {
		return false
	}
	for _, valid := range []string{
		"first offense",
		"technical error",
		"system issue",
		"emergency",
		"special circumstances",
	} {
		if strings.Contains(reason, valid) {
			return true
		}
	}
	return false
}
