package service

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
	"github.com/stretchr/testify/assert"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func nullDec(v string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(v)) }

func pct(id snowflake.ID, priority int, canStack bool, value string) discountdomain.Candidate {
	return discountdomain.Candidate{
		RuleID:         id,
		AdjustmentType: discountdomain.AdjustmentDiscount,
		ValueType:      discountdomain.ValuePercentage,
		Value:          dec(value),
		AppliesTo:      discountdomain.AppliesToBasePremium,
		Priority:       priority,
		CanStack:       canStack,
	}
}

var thousand = discountdomain.Bases{BasePremium: dec("1000"), TotalPremium: dec("1000")}

func TestStackNonStackableFirstRuleVetoesRest(t *testing.T) {
	outcome := Stack([]discountdomain.Candidate{
		pct(2, 2, true, "5"),
		pct(1, 1, false, "10"),
	}, thousand)

	assert.True(t, outcome.TotalDiscount.Equal(dec("100")), "got %s", outcome.TotalDiscount)
	assert.Equal(t, []snowflake.ID{1}, outcome.AppliedRuleIDs)
}

func TestStackStackableRulesCombine(t *testing.T) {
	outcome := Stack([]discountdomain.Candidate{
		pct(1, 1, true, "10"),
		pct(2, 2, true, "5"),
	}, thousand)
	assert.True(t, outcome.TotalDiscount.Equal(dec("150")))
	assert.Equal(t, []snowflake.ID{1, 2}, outcome.AppliedRuleIDs)

	a := pct(1, 1, true, "10")
	a.MaxTotalDiscount = nullDec("140")
	b := pct(2, 2, true, "5")
	b.MaxTotalDiscount = nullDec("120")
	outcome = Stack([]discountdomain.Candidate{a, b}, thousand)
	assert.True(t, outcome.TotalDiscount.Equal(dec("120")))
}

func TestStackLaterNonStackableRuleIsSkipped(t *testing.T) {
	outcome := Stack([]discountdomain.Candidate{
		pct(1, 1, true, "10"),
		pct(2, 2, false, "20"),
		pct(3, 3, true, "5"),
	}, thousand)
	assert.True(t, outcome.TotalDiscount.Equal(dec("150")))
	assert.Equal(t, []snowflake.ID{1, 3}, outcome.AppliedRuleIDs)
}

func TestStackPriorityTieBreaksOnID(t *testing.T) {
	outcome := Stack([]discountdomain.Candidate{
		pct(9, 1, false, "20"),
		pct(4, 1, false, "10"),
	}, thousand)
	assert.Equal(t, []snowflake.ID{4}, outcome.AppliedRuleIDs)
}

func TestStackFixedNeverExceedsBasis(t *testing.T) {
	fixed := discountdomain.Candidate{
		RuleID:         1,
		AdjustmentType: discountdomain.AdjustmentDiscount,
		ValueType:      discountdomain.ValueFixed,
		Value:          dec("500"),
		AppliesTo:      discountdomain.AppliesToAddon,
		CanStack:       true,
	}
	outcome := Stack([]discountdomain.Candidate{fixed}, discountdomain.Bases{TotalPremium: dec("1000"), AddonPremium: dec("80")})
	assert.True(t, outcome.TotalDiscount.Equal(dec("80")))
}

func TestStackSurchargesReportedSeparately(t *testing.T) {
	surcharge := discountdomain.Candidate{
		RuleID:         5,
		AdjustmentType: discountdomain.AdjustmentLoading,
		ValueType:      discountdomain.ValuePercentage,
		Value:          dec("2"),
		AppliesTo:      discountdomain.AppliesToTotalPremium,
		Priority:       1,
	}
	outcome := Stack([]discountdomain.Candidate{pct(1, 1, false, "10"), surcharge}, thousand)
	assert.True(t, outcome.TotalDiscount.Equal(dec("100")))
	assert.True(t, outcome.TotalSurcharge.Equal(dec("20")))
	assert.ElementsMatch(t, []snowflake.ID{1, 5}, outcome.AppliedRuleIDs)
}

func TestStackEmpty(t *testing.T) {
	outcome := Stack(nil, thousand)
	assert.True(t, outcome.TotalDiscount.IsZero())
	assert.Empty(t, outcome.AppliedRuleIDs)
	assert.Nil(t, outcome.PromoCodeID)
}
