package domain

import "github.com/shopspring/decimal"

// DeriveStatus is the only place payment status is computed from amounts.
func DeriveStatus(total, paid decimal.Decimal) InvoiceStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return InvoiceStatusPaid
	case paid.IsPositive():
		return InvoiceStatusPartiallyPaid
	default:
		return InvoiceStatusUnpaid
	}
}

// Debt returns what is still owed on the given amounts.
func Debt(total, paid decimal.Decimal) decimal.Decimal {
	return total.Sub(paid).Round(2)
}

// CompletedSum adds up the payments that still count toward the invoice.
func CompletedSum(payments []Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentStatusCompleted {
			sum = sum.Add(p.Amount)
		}
	}
	return sum.Round(2)
}

// Remaining is the most a new payment may cover. It takes the larger of the
// recorded paid amount and the completed payments so a manual edit of
// amount_paid can never be used to overpay.
func Remaining(inv Invoice, completed decimal.Decimal) decimal.Decimal {
	covered := decimal.Max(inv.AmountPaid, completed)
	remaining := inv.TotalAmount.Sub(covered)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining.Round(2)
}
