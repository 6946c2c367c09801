package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/medrate/internal/clock"
	"github.com/smallbiznis/medrate/internal/config"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	"github.com/smallbiznis/medrate/internal/loading/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (loadingdomain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&loadingdomain.LoadingRule{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(quoteDate),
		Pricing: config.NewStaticPricingConfig(config.DefaultPricingConfig()),
		Repo:    repository.Provide(),
	})
	return svc, db
}

func TestApplyForMemberReadsLibrary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pct, err := svc.CreateRule(ctx, loadingdomain.CreateRuleRequest{
		ConditionName:   "Hypertension",
		ICDCode:         strPtr("I10"),
		RelatedICDCodes: []string{" i11 "},
		LoadingType:     loadingdomain.LoadingTypePercentage,
		LoadingValue:    nullDec("25"),
	})
	require.NoError(t, err)
	assert.Equal(t, loadingdomain.DurationPermanent, pct.DurationType)

	result, err := svc.ApplyForMember(ctx, loadingdomain.MemberRequest{
		Conditions:  []loadingdomain.Condition{{ICDCode: "I11"}},
		BasePremium: dec("400"),
	})
	require.NoError(t, err)
	assert.True(t, result.TotalLoading.Equal(dec("100")))
	assert.Equal(t, []snowflake.ID{pct.ID}, result.AppliedRuleIDs)

	exclusion, err := svc.CreateRule(ctx, loadingdomain.CreateRuleRequest{
		ConditionName:      "Hypertension",
		ICDCode:            strPtr("I10"),
		LoadingType:        loadingdomain.LoadingTypeExclusion,
		ExcludedBenefitIDs: []snowflake.ID{77},
		DurationType:       loadingdomain.DurationTimeLimited,
		DurationMonths:     intPtr(24),
	})
	require.NoError(t, err)

	result, err = svc.ApplyForMember(ctx, loadingdomain.MemberRequest{
		Conditions:    []loadingdomain.Condition{{ICDCode: "I10"}},
		BasePremium:   dec("400"),
		EffectiveDate: quoteDate.AddDate(-1, 0, 0),
	})
	require.NoError(t, err)
	assert.True(t, result.TotalLoading.IsZero())
	assert.Equal(t, []snowflake.ID{exclusion.ID}, result.AppliedRuleIDs)
	assert.Equal(t, []snowflake.ID{77}, result.ExcludedBenefitIDs)

	result, err = svc.ApplyForMember(ctx, loadingdomain.MemberRequest{
		Conditions:    []loadingdomain.Condition{{ICDCode: "I10"}},
		BasePremium:   dec("400"),
		EffectiveDate: quoteDate.AddDate(-3, 0, 0),
		AsOf:          quoteDate,
	})
	require.NoError(t, err)
	assert.True(t, result.TotalLoading.Equal(dec("100")), "expired exclusion no longer suppresses")
}

func TestCreateRuleValidates(t *testing.T) {
	svc, db := newTestService(t)
	_, err := svc.CreateRule(context.Background(), loadingdomain.CreateRuleRequest{
		ConditionName: "Asthma",
		LoadingType:   loadingdomain.LoadingTypePercentage,
	})
	assert.ErrorIs(t, err, loadingdomain.ErrInvalidLoadingRule)

	var count int64
	require.NoError(t, db.Model(&loadingdomain.LoadingRule{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestApplyForMemberWithoutConditions(t *testing.T) {
	svc, _ := newTestService(t)
	result, err := svc.ApplyForMember(context.Background(), loadingdomain.MemberRequest{BasePremium: dec("100"), AsOf: time.Now()})
	require.NoError(t, err)
	assert.True(t, result.TotalLoading.IsZero())
	assert.Empty(t, result.AppliedRuleIDs)
}
