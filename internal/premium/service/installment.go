package service

import (
	"github.com/shopspring/decimal"
	premiumdomain "github.com/smallbiznis/medrate/internal/premium/domain"
)

var twelve = decimal.NewFromInt(12)

// Installment converts an annual amount to one billing period. This is the
// only place a premium is rounded.
func Installment(annual decimal.Decimal, frequency premiumdomain.BillingFrequency) (decimal.Decimal, error) {
	months, ok := frequency.Months()
	if !ok {
		return decimal.Zero, premiumdomain.ErrInvalidBillingFrequency
	}
	return annual.Mul(decimal.NewFromInt(int64(months))).Div(twelve).Round(2), nil
}

// splitEvenly shares total across n members at full precision; the last
// share absorbs the remainder so the parts sum exactly to total.
func splitEvenly(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	shares := make([]decimal.Decimal, n)
	share := total.Div(decimal.NewFromInt(int64(n)))
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[n-1] = total.Sub(allocated)
	return shares
}
