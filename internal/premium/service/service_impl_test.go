package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	addondomain "github.com/smallbiznis/medrate/internal/addon/domain"
	"github.com/smallbiznis/medrate/internal/clock"
	"github.com/smallbiznis/medrate/internal/config"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	premiumdomain "github.com/smallbiznis/medrate/internal/premium/domain"
	ratecarddomain "github.com/smallbiznis/medrate/internal/ratecard/domain"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	testPlan      = snowflake.ID(10)
	testCard      = snowflake.ID(20)
	testInception = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
)

type stubRateCards struct {
	ratecarddomain.Service
	model       ratecarddomain.PricingModel
	prices      map[ratingdomain.MemberType]decimal.Decimal
	tierPrice   decimal.Decimal
	tierMembers int
}

func (s *stubRateCards) card() *ratecarddomain.RateCard {
	return &ratecarddomain.RateCard{ID: testCard, PlanID: testPlan, Currency: "KES", PricingModel: s.model}
}

func (s *stubRateCards) Get(_ context.Context, id snowflake.ID) (*ratecarddomain.RateCard, error) {
	if id != testCard {
		return nil, ratecarddomain.ErrNotFound
	}
	return s.card(), nil
}

func (s *stubRateCards) FindEffectiveForPlan(_ context.Context, planID snowflake.ID, _ time.Time) (*ratecarddomain.RateCard, error) {
	if planID != testPlan {
		return nil, ratecarddomain.ErrNoEffectiveRateCard
	}
	return s.card(), nil
}

func (s *stubRateCards) ResolveRate(_ context.Context, req ratecarddomain.ResolveRateRequest) (*ratecarddomain.RateMatch, error) {
	price, ok := s.prices[req.Member.MemberType]
	if !ok {
		return nil, ratingdomain.ErrNoRateMatch
	}
	entryID := snowflake.ID(100)
	return &ratecarddomain.RateMatch{
		RateCardID: req.RateCardID,
		Price:      price,
		EntryID:    &entryID,
		Age:        ratingdomain.AgeAt(req.Member.DateOfBirth, req.InceptionDate),
	}, nil
}

func (s *stubRateCards) ResolveTier(_ context.Context, req ratecarddomain.ResolveTierRequest) (*ratecarddomain.RateMatch, error) {
	s.tierMembers = req.MemberCount
	tierID := snowflake.ID(200)
	return &ratecarddomain.RateMatch{RateCardID: req.RateCardID, Price: s.tierPrice, TierID: &tierID}, nil
}

type stubAddons struct {
	addondomain.Service
	price decimal.Decimal
	last  addondomain.ResolveRequest
}

func (s *stubAddons) ResolveAddonPrice(_ context.Context, req addondomain.ResolveRequest) (*addondomain.PriceQuote, error) {
	s.last = req
	return &addondomain.PriceQuote{
		AddonID:     req.AddonID,
		RateID:      snowflake.ID(300),
		PricingType: addondomain.PricingTypeFixed,
		Price:       s.price,
	}, nil
}

type stubLoadings struct {
	loadingdomain.Service
	requests []loadingdomain.MemberRequest
}

// ApplyForMember loads 10% for every member carrying a condition.
func (s *stubLoadings) ApplyForMember(_ context.Context, req loadingdomain.MemberRequest) (*loadingdomain.Result, error) {
	s.requests = append(s.requests, req)
	result := &loadingdomain.Result{
		TotalLoading:       decimal.Zero,
		AppliedRuleIDs:     []snowflake.ID{},
		ExcludedBenefitIDs: []snowflake.ID{},
		ReviewRuleIDs:      []snowflake.ID{},
	}
	if len(req.Conditions) > 0 {
		result.TotalLoading = req.BasePremium.Mul(decimal.RequireFromString("0.1"))
		result.AppliedRuleIDs = []snowflake.ID{400}
		result.ReviewRuleIDs = []snowflake.ID{400}
	}
	return result, nil
}

type stubDiscounts struct {
	discountdomain.Service
	discount decimal.Decimal
	err      error
	last     discountdomain.ResolveRequest
}

func (s *stubDiscounts) ResolveDiscounts(_ context.Context, req discountdomain.ResolveRequest) (*discountdomain.Outcome, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &discountdomain.Outcome{
		TotalDiscount:  s.discount,
		TotalSurcharge: decimal.Zero,
		AppliedRuleIDs: []snowflake.ID{500},
	}, nil
}

type fixture struct {
	svc       premiumdomain.Service
	rateCards *stubRateCards
	addons    *stubAddons
	loadings  *stubLoadings
	discounts *stubDiscounts
}

func newFixture(taxRate float64) fixture {
	pricing := config.DefaultPricingConfig()
	pricing.TaxRate = taxRate

	f := fixture{
		rateCards: &stubRateCards{
			model: ratecarddomain.PricingModelPerMember,
			prices: map[ratingdomain.MemberType]decimal.Decimal{
				ratingdomain.MemberTypePrincipal: decimal.NewFromInt(400),
				ratingdomain.MemberTypeChild:     decimal.NewFromInt(150),
			},
		},
		addons:    &stubAddons{price: decimal.NewFromInt(50)},
		loadings:  &stubLoadings{},
		discounts: &stubDiscounts{discount: decimal.Zero},
	}
	f.svc = New(Params{
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC)),
		Pricing:   config.NewStaticPricingConfig(pricing),
		RateCards: f.rateCards,
		Addons:    f.addons,
		Loadings:  f.loadings,
		Discounts: f.discounts,
	})
	return f
}

func roster() []premiumdomain.MemberInput {
	return []premiumdomain.MemberInput{
		{
			ID:                 1,
			DateOfBirth:        time.Date(1985, time.June, 1, 0, 0, 0, 0, time.UTC),
			Gender:             ratingdomain.GenderFemale,
			MemberType:         ratingdomain.MemberTypePrincipal,
			Conditions:         []loadingdomain.Condition{{Name: "Hypertension", ICDCode: "I10"}},
			UnderwritingStatus: premiumdomain.StatusTerms,
		},
		{
			ID:                 2,
			DateOfBirth:        time.Date(2015, time.June, 1, 0, 0, 0, 0, time.UTC),
			Gender:             ratingdomain.GenderMale,
			MemberType:         ratingdomain.MemberTypeChild,
			UnderwritingStatus: "pending",
		},
	}
}

func TestCalculatePremiumAggregatesComponents(t *testing.T) {
	f := newFixture(0.1)
	f.discounts.discount = decimal.NewFromInt(59)

	breakdown, err := f.svc.CalculatePremium(context.Background(), premiumdomain.Request{
		PlanID:           testPlan,
		InceptionDate:    testInception,
		BillingFrequency: premiumdomain.BillingMonthly,
		Members:          roster(),
		AddonIDs:         []snowflake.ID{30},
		PromoCode:        "save10",
	})
	require.NoError(t, err)

	assert.Equal(t, premiumdomain.ModePreliminary, breakdown.Mode)
	assert.Equal(t, testCard, breakdown.RateCardID)
	require.Len(t, breakdown.Members, 2)
	assert.Equal(t, 39, breakdown.Members[0].Age)
	assert.Equal(t, "40", breakdown.Members[0].Loading.String())
	assert.Equal(t, "550", breakdown.BaseTotal.String())
	assert.Equal(t, "40", breakdown.LoadingTotal.String())
	assert.Equal(t, "50", breakdown.AddonTotal.String())
	assert.Equal(t, "640", breakdown.Subtotal.String())
	assert.Equal(t, "59", breakdown.DiscountTotal.String())
	assert.Equal(t, "58.1", breakdown.Tax.String())
	assert.Equal(t, "639.1", breakdown.AnnualTotal.String())
	assert.Equal(t, "53.26", breakdown.InstallmentAmount.String())
	assert.True(t, breakdown.RequiresReview)
	assert.Equal(t, []snowflake.ID{500}, breakdown.AppliedDiscountRuleIDs)

	assert.Equal(t, "550", f.addons.last.BasePremium.String())
	assert.Equal(t, "590", f.addons.last.TotalPremium.String())
	assert.Equal(t, 2, f.addons.last.MemberCount)

	assert.Equal(t, "save10", f.discounts.last.PromoCode)
	assert.Equal(t, "640", f.discounts.last.Bases.TotalPremium.String())
	assert.Equal(t, 2, f.discounts.last.Attributes.GroupSize)
	assert.Equal(t, "monthly", f.discounts.last.Attributes.BillingFrequency)

	for _, req := range f.loadings.requests {
		assert.Equal(t, testInception, req.AsOf)
		assert.Equal(t, testInception, req.EffectiveDate)
	}
}

func TestCalculatePremiumFinalModeExcludesUnclearedMembers(t *testing.T) {
	f := newFixture(0)

	breakdown, err := f.svc.CalculatePremium(context.Background(), premiumdomain.Request{
		PlanID:        testPlan,
		InceptionDate: testInception,
		Mode:          premiumdomain.ModeFinal,
		Members:       roster(),
	})
	require.NoError(t, err)

	require.Len(t, breakdown.Members, 1)
	assert.Equal(t, snowflake.ID(1), breakdown.Members[0].MemberID)
	assert.Equal(t, []snowflake.ID{2}, breakdown.ExcludedMemberIDs)
	assert.Equal(t, "440", breakdown.AnnualTotal.String())
	assert.Equal(t, premiumdomain.BillingAnnual, breakdown.BillingFrequency)
	assert.Equal(t, "440", breakdown.InstallmentAmount.String())
}

func TestCalculatePremiumSplitsTierAcrossMembers(t *testing.T) {
	f := newFixture(0)
	f.rateCards.model = ratecarddomain.PricingModelTiered
	f.rateCards.tierPrice = decimal.NewFromInt(1000)

	breakdown, err := f.svc.CalculatePremium(context.Background(), premiumdomain.Request{
		PlanID:        testPlan,
		InceptionDate: testInception,
		Members:       roster(),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, f.rateCards.tierMembers)
	require.NotNil(t, breakdown.TierID)
	assert.Equal(t, "500", breakdown.Members[0].BasePremium.String())
	assert.Equal(t, "500", breakdown.Members[1].BasePremium.String())
	assert.Equal(t, "50", breakdown.Members[0].Loading.String())
	assert.Equal(t, "1050", breakdown.AnnualTotal.String())
}

func TestCalculatePremiumNeverGoesNegative(t *testing.T) {
	f := newFixture(0)
	f.discounts.discount = decimal.NewFromInt(5000)

	breakdown, err := f.svc.CalculatePremium(context.Background(), premiumdomain.Request{
		PlanID:        testPlan,
		InceptionDate: testInception,
		Members:       roster(),
	})
	require.NoError(t, err)
	assert.True(t, breakdown.AnnualTotal.IsZero())
	assert.True(t, breakdown.InstallmentAmount.IsZero())
}

func TestCalculatePremiumFailures(t *testing.T) {
	otherCard := testCard
	cases := []struct {
		name    string
		mutate  func(*fixture, *premiumdomain.Request)
		wantErr error
	}{
		{
			name:    "unknown billing frequency",
			mutate:  func(_ *fixture, r *premiumdomain.Request) { r.BillingFrequency = "weekly" },
			wantErr: premiumdomain.ErrInvalidBillingFrequency,
		},
		{
			name:    "unknown mode",
			mutate:  func(_ *fixture, r *premiumdomain.Request) { r.Mode = "draft" },
			wantErr: premiumdomain.ErrInvalidMode,
		},
		{
			name:    "missing inception date",
			mutate:  func(_ *fixture, r *premiumdomain.Request) { r.InceptionDate = time.Time{} },
			wantErr: premiumdomain.ErrInvalidInceptionDate,
		},
		{
			name: "nobody cleared for final",
			mutate: func(_ *fixture, r *premiumdomain.Request) {
				r.Mode = premiumdomain.ModeFinal
				r.Members = r.Members[1:]
			},
			wantErr: premiumdomain.ErrNoPricedMembers,
		},
		{
			name: "rate card of another plan",
			mutate: func(_ *fixture, r *premiumdomain.Request) {
				r.PlanID = snowflake.ID(99)
				r.RateCardID = &otherCard
			},
			wantErr: premiumdomain.ErrRateCardPlanMismatch,
		},
		{
			name: "member without a rate",
			mutate: func(f *fixture, _ *premiumdomain.Request) {
				delete(f.rateCards.prices, ratingdomain.MemberTypeChild)
			},
			wantErr: ratingdomain.ErrNoRateMatch,
		},
		{
			name: "promo rejected",
			mutate: func(f *fixture, r *premiumdomain.Request) {
				r.PromoCode = "gone"
				f.discounts.err = discountdomain.ErrPromoExhausted
			},
			wantErr: discountdomain.ErrPromoExhausted,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(0)
			req := premiumdomain.Request{
				PlanID:        testPlan,
				InceptionDate: testInception,
				Members:       roster(),
			}
			tc.mutate(&f, &req)

			_, err := f.svc.CalculatePremium(context.Background(), req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
