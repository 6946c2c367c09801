package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	applicationdomain "github.com/smallbiznis/medrate/internal/application/domain"
	"github.com/smallbiznis/medrate/internal/application/repository"
	"github.com/smallbiznis/medrate/internal/clock"
	"github.com/smallbiznis/medrate/internal/config"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
	discountrepo "github.com/smallbiznis/medrate/internal/discount/repository"
	discountservice "github.com/smallbiznis/medrate/internal/discount/service"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	premiumdomain "github.com/smallbiznis/medrate/internal/premium/domain"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	testNow       = time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	testInception = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	testPlan      = snowflake.ID(10)
)

// stubPremium charges 100 a year for every member the mode prices.
type stubPremium struct {
	modes []premiumdomain.Mode
	err   error
}

func (s *stubPremium) CalculatePremium(_ context.Context, req premiumdomain.Request) (*premiumdomain.Breakdown, error) {
	s.modes = append(s.modes, req.Mode)
	if s.err != nil {
		return nil, s.err
	}
	priced := 0
	for _, member := range req.Members {
		if req.Mode == premiumdomain.ModeFinal && !premiumdomain.PricedInFinal(member.UnderwritingStatus) {
			continue
		}
		priced++
	}
	if priced == 0 {
		return nil, premiumdomain.ErrNoPricedMembers
	}
	annual := decimal.NewFromInt(int64(100 * priced))
	return &premiumdomain.Breakdown{
		Mode:              req.Mode,
		PlanID:            req.PlanID,
		AnnualTotal:       annual,
		InstallmentAmount: annual,
	}, nil
}

type fixture struct {
	db        *gorm.DB
	svc       applicationdomain.Service
	discounts discountdomain.Service
	premium   *stubPremium
	clock     *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&applicationdomain.Application{},
		&applicationdomain.ApplicationMember{},
		&applicationdomain.ApplicationAddon{},
		&applicationdomain.Transition{},
		&applicationdomain.Policy{},
		&discountdomain.DiscountRule{},
		&discountdomain.PromoCode{},
	))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(testNow)
	log := zap.NewNop()
	pricing := config.NewStaticPricingConfig(config.DefaultPricingConfig())

	discounts := discountservice.New(discountservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fake,
		Pricing: pricing,
		Repo:    discountrepo.Provide(),
	})
	premium := &stubPremium{}
	svc := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Pricing:   pricing,
		Repo:      repository.Provide(),
		Premium:   premium,
		Discounts: discounts,
	})
	return fixture{db: db, svc: svc, discounts: discounts, premium: premium, clock: fake}
}

func (f fixture) create(t *testing.T, promo string) *applicationdomain.Application {
	t.Helper()
	app, err := f.svc.Create(context.Background(), applicationdomain.CreateRequest{
		PlanID:        testPlan,
		InceptionDate: testInception,
		PromoCode:     promo,
		Members: []applicationdomain.MemberRequest{
			{
				MemberType:  ratingdomain.MemberTypePrincipal,
				DateOfBirth: time.Date(1985, time.June, 1, 0, 0, 0, 0, time.UTC),
				Gender:      ratingdomain.GenderFemale,
				Conditions:  []loadingdomain.Condition{{Name: "Asthma", ICDCode: "J45"}},
			},
			{
				MemberType:  ratingdomain.MemberTypeChild,
				DateOfBirth: time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC),
				Gender:      ratingdomain.GenderMale,
			},
		},
	})
	require.NoError(t, err)
	return app
}

func (f fixture) fire(t *testing.T, id snowflake.ID, event applicationdomain.Event, reason string) *applicationdomain.TransitionResult {
	t.Helper()
	result, err := f.svc.Transition(context.Background(), applicationdomain.TransitionRequest{
		ApplicationID: id,
		Event:         event,
		Actor:         "underwriter@example.com",
		Reason:        reason,
	})
	require.NoError(t, err, string(event))
	return result
}

func (f fixture) clearMembers(t *testing.T, app *applicationdomain.Application, final applicationdomain.MemberStatus) {
	t.Helper()
	for _, member := range app.Members {
		for _, status := range []applicationdomain.MemberStatus{applicationdomain.MemberInProgress, final} {
			_, err := f.svc.SetMemberStatus(context.Background(), applicationdomain.MemberStatusRequest{
				ApplicationID: app.ID,
				MemberID:      member.ID,
				Status:        status,
				Actor:         "underwriter@example.com",
			})
			require.NoError(t, err)
		}
	}
}

// accepted walks a fresh application to the accepted state.
func (f fixture) accepted(t *testing.T, promo string) *applicationdomain.Application {
	t.Helper()
	app := f.create(t, promo)
	f.fire(t, app.ID, applicationdomain.EventQuote, "")
	f.fire(t, app.ID, applicationdomain.EventSubmit, "")
	f.fire(t, app.ID, applicationdomain.EventStartUnderwriting, "")
	f.clearMembers(t, app, applicationdomain.MemberTerms)
	f.fire(t, app.ID, applicationdomain.EventApprove, "")
	return f.fire(t, app.ID, applicationdomain.EventAccept, "").Application
}

func TestTransitionApproveFromDraftIsInvalid(t *testing.T) {
	f := newFixture(t)
	app := f.create(t, "")

	_, err := f.svc.Transition(context.Background(), applicationdomain.TransitionRequest{
		ApplicationID: app.ID,
		Event:         applicationdomain.EventApprove,
		Actor:         "underwriter@example.com",
	})
	require.ErrorIs(t, err, applicationdomain.ErrInvalidStateTransition)

	var transitionErr *applicationdomain.InvalidStateTransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, "draft", transitionErr.Current)
	assert.Equal(t, "approved", transitionErr.Attempted)

	current, err := f.svc.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, applicationdomain.StatusDraft, current.Status)
}

func TestConvertTwiceIssuesOnePolicy(t *testing.T) {
	f := newFixture(t)
	app := f.accepted(t, "")

	first := f.fire(t, app.ID, applicationdomain.EventConvert, "")
	second := f.fire(t, app.ID, applicationdomain.EventConvert, "")

	require.NotNil(t, first.Policy)
	require.NotNil(t, second.Policy)
	assert.Equal(t, first.Policy.ID, second.Policy.ID)
	assert.Equal(t, first.Policy.PolicyNumber, second.Policy.PolicyNumber)
	assert.Contains(t, first.Policy.PolicyNumber, "POL-")
	assert.Equal(t, applicationdomain.StatusConverted, second.Application.Status)
	assert.Equal(t, "200", first.Policy.AnnualPremium.String())

	var policies int64
	require.NoError(t, f.db.Model(&applicationdomain.Policy{}).Count(&policies).Error)
	assert.Equal(t, int64(1), policies)

	journal, err := f.svc.ListTransitions(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, journal, 6)
	assert.Equal(t, applicationdomain.EventConvert, journal[5].Event)
	assert.Equal(t, applicationdomain.StatusAccepted, journal[5].FromStatus)
}

func TestQuoteRecomputedOnApproval(t *testing.T) {
	f := newFixture(t)
	app := f.accepted(t, "")

	assert.Equal(t, []premiumdomain.Mode{
		premiumdomain.ModePreliminary,
		premiumdomain.ModePreliminary,
		premiumdomain.ModeFinal,
	}, f.premium.modes)

	require.NotNil(t, app.PremiumMode)
	assert.Equal(t, "final", *app.PremiumMode)
	assert.Nil(t, app.ExpiresAt)
	assert.NotEmpty(t, app.PremiumBreakdown)
}

func TestQuoteRequiresMembers(t *testing.T) {
	f := newFixture(t)
	app, err := f.svc.Create(context.Background(), applicationdomain.CreateRequest{
		PlanID:        testPlan,
		InceptionDate: testInception,
	})
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), applicationdomain.TransitionRequest{
		ApplicationID: app.ID,
		Event:         applicationdomain.EventQuote,
		Actor:         "agent",
	})
	assert.ErrorIs(t, err, applicationdomain.ErrNoMembers)
}

func TestSubmitFailsOnPricingError(t *testing.T) {
	f := newFixture(t)
	app := f.create(t, "")
	f.fire(t, app.ID, applicationdomain.EventQuote, "")

	f.premium.err = ratingdomain.ErrNoRateMatch
	_, err := f.svc.Transition(context.Background(), applicationdomain.TransitionRequest{
		ApplicationID: app.ID,
		Event:         applicationdomain.EventSubmit,
		Actor:         "agent",
	})
	assert.ErrorIs(t, err, applicationdomain.ErrNotSubmittable)
	assert.ErrorIs(t, err, ratingdomain.ErrNoRateMatch)
}

func TestApproveRequiresClearedMembers(t *testing.T) {
	f := newFixture(t)
	app := f.create(t, "")
	f.fire(t, app.ID, applicationdomain.EventQuote, "")
	f.fire(t, app.ID, applicationdomain.EventSubmit, "")
	f.fire(t, app.ID, applicationdomain.EventStartUnderwriting, "")

	_, err := f.svc.Transition(context.Background(), applicationdomain.TransitionRequest{
		ApplicationID: app.ID,
		Event:         applicationdomain.EventApprove,
		Actor:         "underwriter@example.com",
	})
	assert.ErrorIs(t, err, applicationdomain.ErrMembersNotCleared)
}

func TestSetMemberStatusRules(t *testing.T) {
	f := newFixture(t)
	app := f.create(t, "")
	member := app.Members[0]

	_, err := f.svc.SetMemberStatus(context.Background(), applicationdomain.MemberStatusRequest{
		ApplicationID: app.ID,
		MemberID:      member.ID,
		Status:        applicationdomain.MemberInProgress,
		Actor:         "underwriter@example.com",
	})
	assert.ErrorIs(t, err, applicationdomain.ErrNotUnderwriting)

	f.fire(t, app.ID, applicationdomain.EventQuote, "")
	f.fire(t, app.ID, applicationdomain.EventSubmit, "")
	f.fire(t, app.ID, applicationdomain.EventStartUnderwriting, "")

	_, err = f.svc.SetMemberStatus(context.Background(), applicationdomain.MemberStatusRequest{
		ApplicationID: app.ID,
		MemberID:      member.ID,
		Status:        applicationdomain.MemberApproved,
		Actor:         "underwriter@example.com",
	})
	assert.ErrorIs(t, err, applicationdomain.ErrInvalidStateTransition)

	_, err = f.svc.SetMemberStatus(context.Background(), applicationdomain.MemberStatusRequest{
		ApplicationID: app.ID,
		MemberID:      snowflake.ID(1),
		Status:        applicationdomain.MemberInProgress,
		Actor:         "underwriter@example.com",
	})
	assert.ErrorIs(t, err, applicationdomain.ErrMemberNotFound)
}

func TestDecisionEventsRequireReason(t *testing.T) {
	f := newFixture(t)
	app := f.create(t, "")

	_, err := f.svc.Transition(context.Background(), applicationdomain.TransitionRequest{
		ApplicationID: app.ID,
		Event:         applicationdomain.EventCancel,
		Actor:         "agent",
	})
	require.ErrorIs(t, err, applicationdomain.ErrReasonRequired)

	result := f.fire(t, app.ID, applicationdomain.EventCancel, "customer withdrew")
	assert.Equal(t, applicationdomain.StatusCancelled, result.Application.Status)
	require.NotNil(t, result.Application.DecisionReason)
	assert.Equal(t, "customer withdrew", *result.Application.DecisionReason)

	_, err = f.svc.Transition(context.Background(), applicationdomain.TransitionRequest{
		ApplicationID: app.ID,
		Event:         applicationdomain.EventQuote,
		Actor:         "agent",
	})
	assert.ErrorIs(t, err, applicationdomain.ErrInvalidStateTransition)
}

func TestConvertRedeemsPromoWithinLimit(t *testing.T) {
	f := newFixture(t)
	percentage := discountdomain.ValuePercentage
	limit := 1
	_, err := f.discounts.CreatePromoCode(context.Background(), discountdomain.CreatePromoRequest{
		Code:       "welcome",
		ValueType:  &percentage,
		Value:      decimal.NewNullDecimal(decimal.NewFromInt(10)),
		UsageLimit: &limit,
		ValidFrom:  testNow.AddDate(-1, 0, 0),
	})
	require.NoError(t, err)

	first := f.accepted(t, "welcome")
	second := f.accepted(t, "WELCOME")

	converted := f.fire(t, first.ID, applicationdomain.EventConvert, "")
	require.NotNil(t, converted.Policy.PromoCodeID)

	_, err = f.svc.Transition(context.Background(), applicationdomain.TransitionRequest{
		ApplicationID: second.ID,
		Event:         applicationdomain.EventConvert,
		Actor:         "agent",
	})
	require.ErrorIs(t, err, discountdomain.ErrPromoExhausted)

	current, err := f.svc.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, applicationdomain.StatusAccepted, current.Status)

	var promo discountdomain.PromoCode
	require.NoError(t, f.db.Where("code = ?", "WELCOME").First(&promo).Error)
	assert.Equal(t, 1, promo.UsageCount)
}

func TestDeleteOnlyDrafts(t *testing.T) {
	f := newFixture(t)
	draft := f.create(t, "")
	require.NoError(t, f.svc.Delete(context.Background(), draft.ID))

	_, err := f.svc.Get(context.Background(), draft.ID)
	assert.ErrorIs(t, err, applicationdomain.ErrNotFound)

	var members int64
	require.NoError(t, f.db.Model(&applicationdomain.ApplicationMember{}).Where("application_id = ?", draft.ID).Count(&members).Error)
	assert.Zero(t, members)

	quoted := f.create(t, "")
	f.fire(t, quoted.ID, applicationdomain.EventQuote, "")
	assert.ErrorIs(t, f.svc.Delete(context.Background(), quoted.ID), applicationdomain.ErrNotDraft)
}

func TestExpireStaleMovesOpenQuotes(t *testing.T) {
	f := newFixture(t)
	draft := f.create(t, "")
	quoted := f.create(t, "")
	f.fire(t, quoted.ID, applicationdomain.EventQuote, "")
	submitted := f.create(t, "")
	f.fire(t, submitted.ID, applicationdomain.EventQuote, "")
	f.fire(t, submitted.ID, applicationdomain.EventSubmit, "")

	count, err := f.svc.ExpireStale(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, count)

	f.clock.Advance(config.DefaultPricingConfig().QuoteTTL + time.Hour)
	count, err = f.svc.ExpireStale(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for id, want := range map[snowflake.ID]applicationdomain.Status{
		draft.ID:     applicationdomain.StatusExpired,
		quoted.ID:    applicationdomain.StatusExpired,
		submitted.ID: applicationdomain.StatusSubmitted,
	} {
		app, err := f.svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, app.Status)
	}

	journal, err := f.svc.ListTransitions(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Len(t, journal, 1)
	assert.Equal(t, "system", journal[0].Actor)
	assert.Equal(t, applicationdomain.EventExpire, journal[0].Event)
}

func TestCreateValidatesMembers(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), applicationdomain.CreateRequest{
		PlanID:        testPlan,
		InceptionDate: testInception,
		Members: []applicationdomain.MemberRequest{{
			MemberType:  "cousin",
			DateOfBirth: time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC),
			Gender:      ratingdomain.GenderMale,
		}},
	})
	assert.ErrorIs(t, err, applicationdomain.ErrInvalidMember)

	_, err = f.svc.Create(context.Background(), applicationdomain.CreateRequest{
		PlanID:           testPlan,
		InceptionDate:    testInception,
		BillingFrequency: "weekly",
	})
	assert.ErrorIs(t, err, premiumdomain.ErrInvalidBillingFrequency)
}
