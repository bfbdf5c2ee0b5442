package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	ruledomain "github.com/smallbiznis/salonbook/internal/commissionrule/domain"
)

var hundred = decimal.NewFromInt(100)

// Compute applies rule to an invoice total and returns the amount together
// with a sentence explaining how it was derived.
func Compute(rule ruledomain.CommissionRule, invoiceTotal decimal.Decimal) (decimal.Decimal, string) {
	var amount decimal.Decimal
	var justification string

	switch rule.Type {
	case ruledomain.CommissionTypeFixedAmount:
		amount = rule.FixedAmount.Round(2)
		justification = fmt.Sprintf("fixed %s under %s rule %s",
			amount.StringFixed(2), rule.RuleType, rule.ID)
	default:
		amount = invoiceTotal.Mul(rule.Rate).Div(hundred).Round(2)
		justification = fmt.Sprintf("%s%% of %s under %s rule %s",
			rule.Rate.String(), invoiceTotal.StringFixed(2), rule.RuleType, rule.ID)
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount, justification
}
