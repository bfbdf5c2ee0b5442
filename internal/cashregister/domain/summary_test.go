package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func movement(t LogType, amount int64) CashRegisterLog {
	return CashRegisterLog{Type: t, Amount: decimal.NewFromInt(amount)}
}

func TestSummarizeAndReconcile(t *testing.T) {
	summary := Summarize(decimal.NewFromInt(1000), []CashRegisterLog{
		movement(LogTypeIncome, 500),
		movement(LogTypeOutcome, 200),
		movement(LogTypeOpening, 9999),
	})

	assert.Equal(t, "1000.00", summary.OpeningBalance.StringFixed(2))
	assert.Equal(t, "500.00", summary.TotalIncome.StringFixed(2))
	assert.Equal(t, "200.00", summary.TotalExpense.StringFixed(2))
	assert.Equal(t, "1300.00", summary.ExpectedBalance.StringFixed(2))
	assert.Nil(t, summary.Difference)

	closed := summary.Reconcile(decimal.NewFromInt(1250), 0, 50)
	require.NotNil(t, closed.Difference)
	assert.Equal(t, "-50.00", closed.Difference.StringFixed(2))
	assert.Equal(t, ClassificationWarning, closed.Classification)
	assert.Equal(t, "1300.00", closed.ExpectedBalance.StringFixed(2))
}

func TestManualMovementsCount(t *testing.T) {
	summary := Summarize(decimal.Zero, []CashRegisterLog{
		movement(LogTypeManualIn, 40),
		movement(LogTypeManualOut, 15),
	})
	assert.Equal(t, "25.00", summary.ExpectedBalance.StringFixed(2))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		diff string
		want Classification
	}{
		{"0", ClassificationBalanced},
		{"0.01", ClassificationWarning},
		{"-50", ClassificationWarning},
		{"50.01", ClassificationCritical},
		{"-120", ClassificationCritical},
	}
	for _, tc := range cases {
		t.Run(tc.diff, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(decimal.RequireFromString(tc.diff), 0, 50))
		})
	}
}

func TestSummaryMetadata(t *testing.T) {
	meta := Summarize(decimal.NewFromInt(10), nil).Reconcile(decimal.NewFromInt(10), 0, 50).Metadata()
	assert.Equal(t, "10.00", meta["expected_balance"])
	assert.Equal(t, "0.00", meta["difference"])
	assert.Equal(t, string(ClassificationBalanced), meta["classification"])
}
