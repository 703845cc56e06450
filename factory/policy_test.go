package factory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/circulation-engine/circulation"
	"github.com/meridian/circulation-engine/factory"
)

func TestLoadPolicyTable_EmptyPath_Defaults(t *testing.T) {
	table, err := factory.LoadPolicyTable("")
	require.NoError(t, err)

	assert.Equal(t, 5, table.MaxLoansPerAccount)
	assert.Equal(t, "0.50", table.LateFeePerDay.StringFixed(2))
	assert.Equal(t, []int{3, 1}, table.ReminderOffsetsDays)
}

func TestLoadPolicyTable_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_loans_per_account": 3}`), 0o644))

	table, err := factory.LoadPolicyTable(path)
	require.NoError(t, err)
	assert.Equal(t, 3, table.MaxLoansPerAccount)
}

func TestLoadPolicyTable_MissingFile(t *testing.T) {
	_, err := factory.LoadPolicyTable(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestParsePolicyTable_EmptyDocument_Defaults(t *testing.T) {
	table, err := factory.ParsePolicyTable([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 14, table.LoanPeriod(circulation.CategoryGeneral))
	assert.Equal(t, "25.00", table.LateFeeCap.StringFixed(2))
}

func TestParsePolicyTable_PartialOverride(t *testing.T) {
	// GIVEN: A document that only tunes two fields
	// WHEN: Parsing it
	// THEN: The named fields change and everything else keeps its default

	doc := `{
		"late_fee_per_day": "1.25",
		"loan_period_days": {"reference": 3}
	}`

	table, err := factory.ParsePolicyTable([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "1.25", table.LateFeePerDay.StringFixed(2))
	assert.Equal(t, 3, table.LoanPeriod(circulation.CategoryReference))

	assert.Equal(t, 14, table.LoanPeriod(circulation.CategoryGeneral))
	assert.Equal(t, 5, table.MaxLoansPerAccount)
	assert.Equal(t, 7, table.DefaultSuspensionDays)
}

func TestParsePolicyTable_UnknownCategory(t *testing.T) {
	_, err := factory.ParsePolicyTable([]byte(`{"loan_period_days": {"vinyl": 10}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vinyl")
}

func TestParsePolicyTable_BadMoney(t *testing.T) {
	_, err := factory.ParsePolicyTable([]byte(`{"late_fee_per_day": "fifty cents"}`))
	assert.Error(t, err)

	_, err = factory.ParsePolicyTable([]byte(`{"late_fee_cap": "-1.00"}`))
	assert.Error(t, err)
}

func TestParsePolicyTable_InvalidTableRejected(t *testing.T) {
	// Validation runs on the merged result, so a structurally valid
	// document can still produce a rejected table.
	_, err := factory.ParsePolicyTable([]byte(`{"max_loans_per_account": 0}`))
	assert.ErrorIs(t, err, circulation.ErrInvalidArgument)

	_, err = factory.ParsePolicyTable([]byte(`{"reminder_offsets_days": [3, 0]}`))
	assert.ErrorIs(t, err, circulation.ErrInvalidArgument)
}

func TestParsePolicyTable_MalformedJSON(t *testing.T) {
	_, err := factory.ParsePolicyTable([]byte(`{`))
	assert.Error(t, err)
}

func TestToJSON_RoundTrip(t *testing.T) {
	table, err := factory.ParsePolicyTable([]byte(`{"extension_days": 10, "grace_days": 0}`))
	require.NoError(t, err)

	pj := factory.ToJSON(table)
	back, err := factory.FromJSON(pj)
	require.NoError(t, err)

	assert.Equal(t, table.ExtensionDays, back.ExtensionDays)
	assert.Equal(t, table.GraceDays, back.GraceDays)
	assert.True(t, table.LateFeePerDay.Equal(back.LateFeePerDay))
	assert.Equal(t, table.LoanPeriodDays, back.LoanPeriodDays)
}
