package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func nullDec(v string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(v)) }

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

func mustDecode(t *testing.T, rule loadingdomain.LoadingRule) loadingdomain.Rule {
	t.Helper()
	if rule.DurationType == "" {
		rule.DurationType = loadingdomain.DurationPermanent
	}
	decoded, err := loadingdomain.Decode(rule)
	require.NoError(t, err)
	return decoded
}

var quoteDate = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

func TestApplyLoadingsAdditiveWithClamp(t *testing.T) {
	rules := []loadingdomain.Rule{
		mustDecode(t, loadingdomain.LoadingRule{ID: 1, ConditionName: "Hypertension", ICDCode: strPtr("I10"), LoadingType: loadingdomain.LoadingTypePercentage, LoadingValue: nullDec("20"), MaxLoading: nullDec("150")}),
		mustDecode(t, loadingdomain.LoadingRule{ID: 2, ConditionName: "Asthma", ICDCode: strPtr("J45"), LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("50")}),
		mustDecode(t, loadingdomain.LoadingRule{ID: 3, ConditionName: "Migraine", ICDCode: strPtr("G43"), LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("5"), MinLoading: nullDec("25")}),
	}

	result := ApplyLoadings([]loadingdomain.Condition{
		{Name: "High blood pressure", ICDCode: "i10"},
		{Name: "Asthma", ICDCode: "J45"},
	}, rules, Input{BasePremium: dec("1000"), AsOf: quoteDate})

	assert.True(t, result.TotalLoading.Equal(dec("200")), "got %s", result.TotalLoading)
	assert.Equal(t, []snowflake.ID{1, 2}, result.AppliedRuleIDs)
	assert.Empty(t, result.ExcludedBenefitIDs)

	result = ApplyLoadings([]loadingdomain.Condition{{ICDCode: "G43"}}, rules, Input{BasePremium: dec("1000"), AsOf: quoteDate})
	assert.True(t, result.TotalLoading.Equal(dec("25")))
}

func TestApplyLoadingsMatching(t *testing.T) {
	rules := []loadingdomain.Rule{
		mustDecode(t, loadingdomain.LoadingRule{ID: 1, ConditionName: "Type 2 Diabetes", ICDCode: strPtr("E11"), RelatedICDCodes: []string{"e11.9", "E11.65"}, LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("100")}),
		mustDecode(t, loadingdomain.LoadingRule{ID: 2, ConditionName: "Diabetes", LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("70")}),
	}

	result := ApplyLoadings([]loadingdomain.Condition{{Name: "Diabetes", ICDCode: "E11.9"}}, rules, Input{AsOf: quoteDate})
	assert.Equal(t, []snowflake.ID{1}, result.AppliedRuleIDs, "code match wins over name match")

	result = ApplyLoadings([]loadingdomain.Condition{{Name: "  TYPE 2 diabetes "}}, rules, Input{AsOf: quoteDate})
	assert.Equal(t, []snowflake.ID{1}, result.AppliedRuleIDs)

	result = ApplyLoadings([]loadingdomain.Condition{{Name: "Eczema", ICDCode: "L30"}}, rules, Input{AsOf: quoteDate})
	assert.Empty(t, result.AppliedRuleIDs)
	assert.True(t, result.TotalLoading.IsZero())
}

func TestApplyLoadingsExclusionSupersedesLoading(t *testing.T) {
	rules := []loadingdomain.Rule{
		mustDecode(t, loadingdomain.LoadingRule{ID: 1, ConditionName: "Cataract", ICDCode: strPtr("H25"), LoadingType: loadingdomain.LoadingTypeExclusion, ExcludedBenefitIDs: []snowflake.ID{900, 901}}),
		mustDecode(t, loadingdomain.LoadingRule{ID: 2, ConditionName: "Cataract", ICDCode: strPtr("H25"), LoadingType: loadingdomain.LoadingTypePercentage, LoadingValue: nullDec("15")}),
		mustDecode(t, loadingdomain.LoadingRule{ID: 3, ConditionName: "Gout", ICDCode: strPtr("M10"), LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("40")}),
	}

	result := ApplyLoadings([]loadingdomain.Condition{
		{Name: "Cataract", ICDCode: "H25"},
		{Name: "Gout", ICDCode: "M10"},
	}, rules, Input{BasePremium: dec("1000"), AsOf: quoteDate})

	assert.True(t, result.TotalLoading.Equal(dec("40")))
	assert.Equal(t, []snowflake.ID{1, 3}, result.AppliedRuleIDs)
	assert.Equal(t, []snowflake.ID{900, 901}, result.ExcludedBenefitIDs)
}

func TestApplyLoadingsDurations(t *testing.T) {
	effective := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	rules := []loadingdomain.Rule{
		mustDecode(t, loadingdomain.LoadingRule{ID: 1, ConditionName: "Fracture", ICDCode: strPtr("S72"), LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("60"), DurationType: loadingdomain.DurationTimeLimited, DurationMonths: intPtr(12)}),
		mustDecode(t, loadingdomain.LoadingRule{ID: 2, ConditionName: "Obesity", ICDCode: strPtr("E66"), LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("30"), DurationType: loadingdomain.DurationReviewable}),
	}
	conditions := []loadingdomain.Condition{{ICDCode: "S72"}, {ICDCode: "E66"}}

	result := ApplyLoadings(conditions, rules, Input{EffectiveDate: effective, AsOf: effective.AddDate(0, 12, -1)})
	assert.True(t, result.TotalLoading.Equal(dec("90")))
	assert.Equal(t, []snowflake.ID{2}, result.ReviewRuleIDs)

	result = ApplyLoadings(conditions, rules, Input{EffectiveDate: effective, AsOf: effective.AddDate(0, 12, 0)})
	assert.True(t, result.TotalLoading.Equal(dec("30")))
	assert.Equal(t, []snowflake.ID{2}, result.AppliedRuleIDs)
}

func TestApplyLoadingsReplacingRuleWins(t *testing.T) {
	rules := []loadingdomain.Rule{
		mustDecode(t, loadingdomain.LoadingRule{ID: 1, ConditionName: "Heart disease", ICDCode: strPtr("I25"), LoadingType: loadingdomain.LoadingTypePercentage, LoadingValue: nullDec("10")}),
		mustDecode(t, loadingdomain.LoadingRule{ID: 2, ConditionName: "Heart disease", ICDCode: strPtr("I25"), LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("300"), ReplacesOthers: true}),
		mustDecode(t, loadingdomain.LoadingRule{ID: 3, ConditionName: "Heart failure", ICDCode: strPtr("I50"), LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("200"), ReplacesOthers: true}),
	}

	result := ApplyLoadings([]loadingdomain.Condition{{ICDCode: "I25"}, {ICDCode: "I50"}}, rules, Input{BasePremium: dec("1000"), AsOf: quoteDate})
	assert.True(t, result.TotalLoading.Equal(dec("300")))
	assert.Equal(t, []snowflake.ID{2}, result.AppliedRuleIDs)
}

func TestApplyLoadingsCountsRuleOnce(t *testing.T) {
	rules := []loadingdomain.Rule{
		mustDecode(t, loadingdomain.LoadingRule{ID: 1, ConditionName: "Diabetes", ICDCode: strPtr("E11"), RelatedICDCodes: []string{"E10"}, LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("100")}),
	}
	result := ApplyLoadings([]loadingdomain.Condition{{ICDCode: "E10"}, {ICDCode: "E11"}}, rules, Input{AsOf: quoteDate})
	assert.True(t, result.TotalLoading.Equal(dec("100")))
	assert.Equal(t, []snowflake.ID{1}, result.AppliedRuleIDs)
}

func TestDecodeRejectsInvalidRules(t *testing.T) {
	cases := map[string]loadingdomain.LoadingRule{
		"missing value":  {ConditionName: "x", LoadingType: loadingdomain.LoadingTypeFixed, DurationType: loadingdomain.DurationPermanent},
		"missing months": {ConditionName: "x", LoadingType: loadingdomain.LoadingTypeExclusion, DurationType: loadingdomain.DurationTimeLimited},
		"unknown type":   {ConditionName: "x", LoadingType: "multiplier", LoadingValue: nullDec("1"), DurationType: loadingdomain.DurationPermanent},
		"inverted clamp": {ConditionName: "x", LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("1"), MinLoading: nullDec("10"), MaxLoading: nullDec("5"), DurationType: loadingdomain.DurationPermanent},
		"no matcher":     {LoadingType: loadingdomain.LoadingTypeFixed, LoadingValue: nullDec("1"), DurationType: loadingdomain.DurationPermanent},
	}
	for name, rule := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadingdomain.Decode(rule)
			assert.ErrorIs(t, err, loadingdomain.ErrInvalidLoadingRule)
		})
	}
}
