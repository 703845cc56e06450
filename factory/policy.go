/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts JSON circulation policy definitions into a
  circulation.PolicyTable. This enables policy configuration without code
  changes - library staff can tune loan periods, fee rates, and caps in a
  JSON file and the factory builds the proper Go struct.

WHY JSON?
  - Non-developers can modify circulation rules
  - Easy integration with an admin UI
  - Version control for policy definitions

JSON SCHEMA:
  {
    "max_loans_per_account": 5,
    "max_extensions_per_loan": 2,
    "extension_days": 7,
    "loan_period_days": {
      "general": 14,
      "reference": 7,
      "children": 21,
      "academic": 30
    },
    "grace_days": 2,
    "late_fee_per_day": "0.50",
    "late_fee_cap": "25.00",
    "reminder_offsets_days": [3, 1],
    "default_suspension_days": 7,
    "replacement_processing_fee": "5.00"
  }

KEY FEATURES:
  - Omitted fields fall back to the built-in defaults
  - Validates the assembled table before returning it
  - Money fields are decimal strings, never floats

USAGE:
  table, err := factory.LoadPolicyTable("./policy.json")

SEE ALSO:
  - circulation/policy.go: PolicyTable definition and defaults
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/meridian/circulation-engine/circulation"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a policy table. Every field is
// optional; omitted fields keep their defaults.
type PolicyJSON struct {
	MaxLoansPerAccount       *int           `json:"max_loans_per_account,omitempty"`
	MaxExtensionsPerLoan     *int           `json:"max_extensions_per_loan,omitempty"`
	ExtensionDays            *int           `json:"extension_days,omitempty"`
	LoanPeriodDays           map[string]int `json:"loan_period_days,omitempty"`
	GraceDays                *int           `json:"grace_days,omitempty"`
	LateFeePerDay            *string        `json:"late_fee_per_day,omitempty"`
	LateFeeCap               *string        `json:"late_fee_cap,omitempty"`
	ReminderOffsetsDays      []int          `json:"reminder_offsets_days,omitempty"`
	DefaultSuspensionDays    *int           `json:"default_suspension_days,omitempty"`
	ReplacementProcessingFee *string        `json:"replacement_processing_fee,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// LoadPolicyTable reads a policy JSON file and merges it over the
// defaults. An empty path returns the default table unchanged.
func LoadPolicyTable(path string) (*circulation.PolicyTable, error) {
	if path == "" {
		return circulation.DefaultPolicyTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicyTable(data)
}

// ParsePolicyTable merges a JSON document over the default table and
// validates the result.
func ParsePolicyTable(data []byte) (*circulation.PolicyTable, error) {
	var pj PolicyJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return FromJSON(pj)
}

// FromJSON converts PolicyJSON to a validated PolicyTable.
func FromJSON(pj PolicyJSON) (*circulation.PolicyTable, error) {
	table := circulation.DefaultPolicyTable()

	if pj.MaxLoansPerAccount != nil {
		table.MaxLoansPerAccount = *pj.MaxLoansPerAccount
	}
	if pj.MaxExtensionsPerLoan != nil {
		table.MaxExtensionsPerLoan = *pj.MaxExtensionsPerLoan
	}
	if pj.ExtensionDays != nil {
		table.ExtensionDays = *pj.ExtensionDays
	}
	for name, days := range pj.LoanPeriodDays {
		category := circulation.Category(name)
		switch category {
		case circulation.CategoryGeneral, circulation.CategoryReference,
			circulation.CategoryChildren, circulation.CategoryAcademic:
			table.LoanPeriodDays[category] = days
		default:
			return nil, fmt.Errorf("unknown category %q in loan_period_days", name)
		}
	}
	if pj.GraceDays != nil {
		table.GraceDays = *pj.GraceDays
	}
	if pj.LateFeePerDay != nil {
		d, err := parseMoney("late_fee_per_day", *pj.LateFeePerDay)
		if err != nil {
			return nil, err
		}
		table.LateFeePerDay = d
	}
	if pj.LateFeeCap != nil {
		d, err := parseMoney("late_fee_cap", *pj.LateFeeCap)
		if err != nil {
			return nil, err
		}
		table.LateFeeCap = d
	}
	if pj.ReminderOffsetsDays != nil {
		table.ReminderOffsetsDays = append([]int(nil), pj.ReminderOffsetsDays...)
	}
	if pj.DefaultSuspensionDays != nil {
		table.DefaultSuspensionDays = *pj.DefaultSuspensionDays
	}
	if pj.ReplacementProcessingFee != nil {
		d, err := parseMoney("replacement_processing_fee", *pj.ReplacementProcessingFee)
		if err != nil {
			return nil, err
		}
		table.ReplacementProcessingFee = d
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// ToJSON converts a PolicyTable back to its JSON form, for admin views.
func ToJSON(table *circulation.PolicyTable) PolicyJSON {
	perDay := table.LateFeePerDay.StringFixed(2)
	cap := table.LateFeeCap.StringFixed(2)
	processing := table.ReplacementProcessingFee.StringFixed(2)

	periods := make(map[string]int, len(table.LoanPeriodDays))
	for category, days := range table.LoanPeriodDays {
		periods[string(category)] = days
	}

	return PolicyJSON{
		MaxLoansPerAccount:       &table.MaxLoansPerAccount,
		MaxExtensionsPerLoan:     &table.MaxExtensionsPerLoan,
		ExtensionDays:            &table.ExtensionDays,
		LoanPeriodDays:           periods,
		GraceDays:                &table.GraceDays,
		LateFeePerDay:            &perDay,
		LateFeeCap:               &cap,
		ReminderOffsetsDays:      append([]int(nil), table.ReminderOffsetsDays...),
		DefaultSuspensionDays:    &table.DefaultSuspensionDays,
		ReplacementProcessingFee: &processing,
	}
}

func parseMoney(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}
