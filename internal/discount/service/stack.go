package service

import (
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
)

var hundred = decimal.NewFromInt(100)

// Stack resolves which candidates apply and what they are worth.
// Discounts and loading-type surcharges are stacked independently. Within
// each, candidates are walked by priority (lowest first, id breaks ties):
// the first is accepted unconditionally and each later one only when it
// and everything already accepted can stack. The discount sum is capped at
// the lowest max_total_discount among accepted discounts.
func Stack(candidates []discountdomain.Candidate, bases discountdomain.Bases) discountdomain.Outcome {
	var discounts, surcharges []discountdomain.Candidate
	for _, c := range candidates {
		if c.AdjustmentType == discountdomain.AdjustmentLoading {
			surcharges = append(surcharges, c)
		} else {
			discounts = append(discounts, c)
		}
	}

	outcome := discountdomain.Outcome{
		TotalDiscount:  decimal.Zero,
		TotalSurcharge: decimal.Zero,
		Adjustments:    make([]discountdomain.Adjustment, 0),
		AppliedRuleIDs: make([]snowflake.ID, 0),
	}

	acceptedDiscounts := accept(discounts)
	var ceiling decimal.NullDecimal
	for _, c := range acceptedDiscounts {
		amount := amountFor(c, bases)
		outcome.TotalDiscount = outcome.TotalDiscount.Add(amount)
		outcome.Adjustments = append(outcome.Adjustments, adjustment(c, amount))
		if c.MaxTotalDiscount.Valid && (!ceiling.Valid || c.MaxTotalDiscount.Decimal.LessThan(ceiling.Decimal)) {
			ceiling = c.MaxTotalDiscount
		}
	}
	if ceiling.Valid && outcome.TotalDiscount.GreaterThan(ceiling.Decimal) {
		outcome.TotalDiscount = ceiling.Decimal
	}

	for _, c := range accept(surcharges) {
		amount := amountFor(c, bases)
		outcome.TotalSurcharge = outcome.TotalSurcharge.Add(amount)
		outcome.Adjustments = append(outcome.Adjustments, adjustment(c, amount))
	}

	for _, adj := range outcome.Adjustments {
		if adj.RuleID != 0 {
			outcome.AppliedRuleIDs = append(outcome.AppliedRuleIDs, adj.RuleID)
		}
		if adj.PromoCodeID != nil {
			id := *adj.PromoCodeID
			outcome.PromoCodeID = &id
		}
	}
	return outcome
}

func accept(candidates []discountdomain.Candidate) []discountdomain.Candidate {
	sorted := append([]discountdomain.Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sortKey(sorted[i]) < sortKey(sorted[j])
	})

	accepted := make([]discountdomain.Candidate, 0, len(sorted))
	allStack := true
	for _, c := range sorted {
		if len(accepted) == 0 {
			accepted = append(accepted, c)
			allStack = c.CanStack
			continue
		}
		if !allStack || !c.CanStack {
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted
}

func sortKey(c discountdomain.Candidate) snowflake.ID {
	if c.RuleID != 0 {
		return c.RuleID
	}
	if c.PromoCodeID != nil {
		return *c.PromoCodeID
	}
	return 0
}

// amountFor never exceeds the basis it is computed against.
func amountFor(c discountdomain.Candidate, bases discountdomain.Bases) decimal.Decimal {
	basis := bases.For(c.AppliesTo)
	if !basis.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch c.ValueType {
	case discountdomain.ValuePercentage:
		amount = basis.Mul(c.Value).Div(hundred)
	default:
		amount = c.Value
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	if c.AdjustmentType != discountdomain.AdjustmentLoading && amount.GreaterThan(basis) {
		return basis
	}
	return amount
}

func adjustment(c discountdomain.Candidate, amount decimal.Decimal) discountdomain.Adjustment {
	return discountdomain.Adjustment{
		RuleID:         c.RuleID,
		PromoCodeID:    c.PromoCodeID,
		AdjustmentType: c.AdjustmentType,
		AppliesTo:      c.AppliesTo,
		Amount:         amount,
	}
}
