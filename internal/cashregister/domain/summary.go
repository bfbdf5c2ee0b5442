package domain

import "github.com/shopspring/decimal"

// Summarize computes expected balance from the opening amount and the day's
// movements. Opening and closing entries in movements are ignored.
func Summarize(opening decimal.Decimal, movements []CashRegisterLog) Summary {
	income := decimal.Zero
	expense := decimal.Zero
	for _, m := range movements {
		if !m.Type.IsMovement() {
			continue
		}
		if m.Type.IsInflow() {
			income = income.Add(m.Amount)
		} else {
			expense = expense.Add(m.Amount)
		}
	}

	return Summary{
		OpeningBalance:  opening.Round(2),
		TotalIncome:     income.Round(2),
		TotalExpense:    expense.Round(2),
		ExpectedBalance: opening.Add(income).Sub(expense).Round(2),
	}
}

// Reconcile fills in the closing side of the summary. The difference is
// reported as is and never corrected.
func (s Summary) Reconcile(actual decimal.Decimal, warningThreshold, criticalThreshold float64) Summary {
	actual = actual.Round(2)
	diff := actual.Sub(s.ExpectedBalance).Round(2)
	s.ActualBalance = &actual
	s.Difference = &diff
	s.Classification = Classify(diff, warningThreshold, criticalThreshold)
	return s
}

// Classify grades a reconciliation difference by its magnitude.
func Classify(diff decimal.Decimal, warningThreshold, criticalThreshold float64) Classification {
	abs := diff.Abs()
	switch {
	case abs.LessThanOrEqual(decimal.NewFromFloat(warningThreshold)):
		return ClassificationBalanced
	case abs.LessThanOrEqual(decimal.NewFromFloat(criticalThreshold)):
		return ClassificationWarning
	default:
		return ClassificationCritical
	}
}

// Metadata flattens the summary for the closing log's JSON column.
func (s Summary) Metadata() map[string]any {
	out := map[string]any{
		"opening_balance":  s.OpeningBalance.StringFixed(2),
		"total_income":     s.TotalIncome.StringFixed(2),
		"total_expense":    s.TotalExpense.StringFixed(2),
		"expected_balance": s.ExpectedBalance.StringFixed(2),
	}
	if s.ActualBalance != nil {
		out["actual_balance"] = s.ActualBalance.StringFixed(2)
	}
	if s.Difference != nil {
		out["difference"] = s.Difference.StringFixed(2)
	}
	if s.Classification != "" {
		out["classification"] = string(s.Classification)
	}
	return out
}
