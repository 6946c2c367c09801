package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	addondomain "github.com/smallbiznis/medrate/internal/addon/domain"
	"github.com/smallbiznis/medrate/internal/clock"
	"github.com/smallbiznis/medrate/internal/config"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	"github.com/smallbiznis/medrate/internal/observability/metrics"
	"github.com/smallbiznis/medrate/internal/observability/tracing"
	premiumdomain "github.com/smallbiznis/medrate/internal/premium/domain"
	ratecarddomain "github.com/smallbiznis/medrate/internal/ratecard/domain"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const tracerName = "medrate/premium"

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Pricing   *config.PricingConfigHolder
	RateCards ratecarddomain.Service
	Addons    addondomain.Service
	Loadings  loadingdomain.Service
	Discounts discountdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	pricing   *config.PricingConfigHolder
	rateCards ratecarddomain.Service
	addons    addondomain.Service
	loadings  loadingdomain.Service
	discounts discountdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) premiumdomain.Service {
	return &Service{
		log:       p.Log.Named("premium.service"),
		clock:     p.Clock,
		pricing:   p.Pricing,
		rateCards: p.RateCards,
		addons:    p.Addons,
		loadings:  p.Loadings,
		discounts: p.Discounts,
		metrics:   p.Metrics,
	}
}

// CalculatePremium prices a roster end to end: base rate and loading per
// member, add-ons, discounts and surcharges, tax, then the installment.
// It has no side effects; promo codes are validated but not consumed.
func (s *Service) CalculatePremium(ctx context.Context, req premiumdomain.Request) (*premiumdomain.Breakdown, error) {
	started := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "premium.calculate")
	defer span.End()

	breakdown, err := s.calculate(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		safe := tracing.SafeError(err)
		span.RecordError(safe)
		span.SetStatus(codes.Error, safe.Error())
		s.log.Warn("premium calculation failed",
			zap.String("plan_id", req.PlanID.String()),
			zap.String("mode", string(req.Mode)),
			zap.Error(err),
		)
	}
	s.metrics.RecordQuote(ctx, string(req.Mode), outcome, time.Since(started))
	return breakdown, err
}

func (s *Service) calculate(ctx context.Context, req premiumdomain.Request) (*premiumdomain.Breakdown, error) {
	pricing := s.pricing.Get()

	mode := req.Mode
	if mode == "" {
		mode = premiumdomain.ModePreliminary
	}
	if mode != premiumdomain.ModePreliminary && mode != premiumdomain.ModeFinal {
		return nil, premiumdomain.ErrInvalidMode
	}
	frequency := req.BillingFrequency
	if frequency == "" {
		frequency = premiumdomain.BillingFrequency(pricing.DefaultBillingFrequency)
	}
	if _, ok := frequency.Months(); !ok {
		return nil, premiumdomain.ErrInvalidBillingFrequency
	}
	if req.InceptionDate.IsZero() {
		return nil, premiumdomain.ErrInvalidInceptionDate
	}
	inception := req.InceptionDate.UTC()

	priced := make([]premiumdomain.MemberInput, 0, len(req.Members))
	excluded := make([]snowflake.ID, 0)
	for _, member := range req.Members {
		if mode == premiumdomain.ModeFinal && !premiumdomain.PricedInFinal(member.UnderwritingStatus) {
			excluded = append(excluded, member.ID)
			continue
		}
		priced = append(priced, member)
	}
	if len(priced) == 0 {
		return nil, premiumdomain.ErrNoPricedMembers
	}

	card, err := s.rateCard(ctx, req, inception)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(tracing.SafeAttributes(
		attribute.String("quote.mode", string(mode)),
		attribute.String("rate_card.id", card.ID.String()),
		attribute.String("plan.id", req.PlanID.String()),
	)...)

	breakdown := &premiumdomain.Breakdown{
		Mode:              mode,
		PlanID:            req.PlanID,
		RateCardID:        card.ID,
		Currency:          card.Currency,
		PricingModel:      card.PricingModel,
		InceptionDate:     inception,
		BillingFrequency:  frequency,
		Members:           make([]premiumdomain.MemberLine, 0, len(priced)),
		ExcludedMemberIDs: excluded,
		Addons:            make([]premiumdomain.AddonLine, 0, len(req.AddonIDs)),
		CalculatedAt:      s.clock.Now(),
	}

	bases, err := s.basePremiums(ctx, card, priced, inception, breakdown)
	if err != nil {
		return nil, err
	}

	ratingMembers := make([]ratingdomain.Member, 0, len(priced))
	memberTypes := make([]string, 0, len(priced))
	baseTotal := decimal.Zero
	loadingTotal := decimal.Zero
	for i, member := range priced {
		line := &breakdown.Members[i]
		effective := inception
		if member.EffectiveDate != nil && !member.EffectiveDate.IsZero() {
			effective = member.EffectiveDate.UTC()
		}
		result, err := s.loadings.ApplyForMember(ctx, loadingdomain.MemberRequest{
			Conditions:    member.Conditions,
			BasePremium:   bases[i],
			EffectiveDate: effective,
			AsOf:          inception,
		})
		if err != nil {
			return nil, err
		}
		line.Loading = result.TotalLoading
		line.AppliedLoadingRuleIDs = result.AppliedRuleIDs
		line.ExcludedBenefitIDs = result.ExcludedBenefitIDs
		line.ReviewRuleIDs = result.ReviewRuleIDs
		if len(result.ReviewRuleIDs) > 0 {
			breakdown.RequiresReview = true
		}

		baseTotal = baseTotal.Add(line.BasePremium)
		loadingTotal = loadingTotal.Add(line.Loading)
		ratingMembers = append(ratingMembers, ratingdomain.Member{
			Age:        line.Age,
			Gender:     member.Gender,
			RegionCode: member.RegionCode,
			MemberType: member.MemberType,
		})
		memberTypes = append(memberTypes, string(member.MemberType))
	}

	addonTotal := decimal.Zero
	for _, addonID := range req.AddonIDs {
		quote, err := s.addons.ResolveAddonPrice(ctx, addondomain.ResolveRequest{
			AddonID:       addonID,
			PlanID:        req.PlanID,
			MemberCount:   len(priced),
			BasePremium:   baseTotal,
			TotalPremium:  baseTotal.Add(loadingTotal),
			Members:       ratingMembers,
			InceptionDate: inception,
		})
		if err != nil {
			return nil, err
		}
		breakdown.Addons = append(breakdown.Addons, premiumdomain.AddonLine{
			AddonID:     quote.AddonID,
			RateID:      quote.RateID,
			PricingType: quote.PricingType,
			Price:       quote.Price,
		})
		addonTotal = addonTotal.Add(quote.Price)
	}

	subtotal := baseTotal.Add(loadingTotal).Add(addonTotal)
	groupSize := req.GroupSize
	if groupSize <= 0 {
		groupSize = len(priced)
	}
	outcome, err := s.discounts.ResolveDiscounts(ctx, discountdomain.ResolveRequest{
		Attributes: discountdomain.PolicyAttributes{
			SchemeID:         req.SchemeID,
			PlanID:           req.PlanID,
			GroupSize:        groupSize,
			MemberCount:      len(priced),
			TotalPremium:     subtotal,
			BillingFrequency: string(frequency),
			MemberTypes:      memberTypes,
			AsOf:             breakdown.CalculatedAt,
		},
		Bases: discountdomain.Bases{
			BasePremium:  baseTotal,
			TotalPremium: subtotal,
			AddonPremium: addonTotal,
		},
		PromoCode:     req.PromoCode,
		ManualRuleIDs: req.ManualDiscountRuleIDs,
	})
	if err != nil {
		return nil, err
	}

	annual := subtotal.Sub(outcome.TotalDiscount).Add(outcome.TotalSurcharge)
	if annual.IsNegative() {
		annual = decimal.Zero
	}
	taxRate := decimal.NewFromFloat(pricing.TaxRate)
	tax := annual.Mul(taxRate)
	total := annual.Add(tax)

	installment, err := Installment(total, frequency)
	if err != nil {
		return nil, err
	}

	breakdown.BaseTotal = baseTotal
	breakdown.LoadingTotal = loadingTotal
	breakdown.AddonTotal = addonTotal
	breakdown.Subtotal = subtotal
	breakdown.DiscountTotal = outcome.TotalDiscount
	breakdown.SurchargeTotal = outcome.TotalSurcharge
	breakdown.AppliedDiscountRuleIDs = outcome.AppliedRuleIDs
	breakdown.PromoCodeID = outcome.PromoCodeID
	breakdown.PromoRemaining = outcome.PromoRemaining
	breakdown.TaxRate = taxRate
	breakdown.Tax = tax
	breakdown.AnnualTotal = total
	breakdown.InstallmentAmount = installment

	s.log.Debug("premium calculated",
		zap.String("plan_id", req.PlanID.String()),
		zap.String("rate_card_id", card.ID.String()),
		zap.String("mode", string(mode)),
		zap.Int("members", len(priced)),
		zap.String("annual_total", total.String()),
	)
	return breakdown, nil
}

func (s *Service) rateCard(ctx context.Context, req premiumdomain.Request, inception time.Time) (*ratecarddomain.RateCard, error) {
	if req.RateCardID == nil {
		return s.rateCards.FindEffectiveForPlan(ctx, req.PlanID, inception)
	}
	card, err := s.rateCards.Get(ctx, *req.RateCardID)
	if err != nil {
		return nil, err
	}
	if card.PlanID != req.PlanID {
		return nil, premiumdomain.ErrRateCardPlanMismatch
	}
	return card, nil
}

// basePremiums fills one member line per priced member and returns the
// base premium each line carries. A tiered card prices the roster once and
// shares the tier premium evenly across members.
func (s *Service) basePremiums(ctx context.Context, card *ratecarddomain.RateCard, members []premiumdomain.MemberInput, inception time.Time, breakdown *premiumdomain.Breakdown) ([]decimal.Decimal, error) {
	bases := make([]decimal.Decimal, 0, len(members))

	if card.PricingModel == ratecarddomain.PricingModelTiered {
		match, err := s.rateCards.ResolveTier(ctx, ratecarddomain.ResolveTierRequest{
			RateCardID:    card.ID,
			MemberCount:   len(members),
			InceptionDate: inception,
		})
		if err != nil {
			return nil, err
		}
		breakdown.TierID = match.TierID
		shares := splitEvenly(match.Price, len(members))
		for i, member := range members {
			breakdown.Members = append(breakdown.Members, premiumdomain.MemberLine{
				MemberID:    member.ID,
				MemberType:  member.MemberType,
				Age:         ratingdomain.AgeAt(member.DateOfBirth, inception),
				BasePremium: shares[i],
			})
			bases = append(bases, shares[i])
		}
		return bases, nil
	}

	for _, member := range members {
		match, err := s.rateCards.ResolveRate(ctx, ratecarddomain.ResolveRateRequest{
			RateCardID: card.ID,
			Member: ratecarddomain.MemberSnapshot{
				DateOfBirth: member.DateOfBirth,
				Gender:      member.Gender,
				RegionCode:  member.RegionCode,
				MemberType:  member.MemberType,
			},
			InceptionDate: inception,
		})
		if err != nil {
			return nil, err
		}
		breakdown.Members = append(breakdown.Members, premiumdomain.MemberLine{
			MemberID:    member.ID,
			MemberType:  member.MemberType,
			Age:         match.Age,
			BasePremium: match.Price,
			EntryID:     match.EntryID,
		})
		bases = append(bases, match.Price)
	}
	return bases, nil
}
