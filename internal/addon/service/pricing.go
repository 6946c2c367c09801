package service

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	addondomain "github.com/smallbiznis/medrate/internal/addon/domain"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
	ratingservice "github.com/smallbiznis/medrate/internal/rating/service"
)

var hundred = decimal.NewFromInt(100)

// PriceInput is everything a decoded Pricing may read.
type PriceInput struct {
	MemberCount  int
	BasePremium  decimal.Decimal
	TotalPremium decimal.Decimal
	Members      []ratingdomain.Member
}

// Price computes the annual add-on premium.
func Price(pricing addondomain.Pricing, in PriceInput) (decimal.Decimal, error) {
	switch p := pricing.(type) {
	case addondomain.FixedPricing:
		return p.Amount, nil
	case addondomain.PerMemberPricing:
		if in.MemberCount <= 0 {
			return decimal.Zero, addondomain.ErrInvalidMemberCount
		}
		return p.Amount.Mul(decimal.NewFromInt(int64(in.MemberCount))), nil
	case addondomain.PercentagePricing:
		basis := in.BasePremium
		if p.Basis == addondomain.BasisTotalPremium {
			basis = in.TotalPremium
		}
		return basis.Mul(p.Percentage).Div(hundred).Round(2), nil
	case addondomain.AgeRatedPricing:
		if len(in.Members) == 0 {
			return decimal.Zero, addondomain.ErrInvalidMemberCount
		}
		total := decimal.Zero
		for _, member := range in.Members {
			match, err := ratingservice.ResolveBand(p.Bands, member)
			if err != nil {
				return decimal.Zero, err
			}
			total = total.Add(match.Price)
		}
		return total, nil
	default:
		return decimal.Zero, addondomain.ErrUnsupportedPricingConfiguration
	}
}

// SelectRate picks the rate to charge at a date. Plan-specific rates beat
// global ones, then the latest effective_from wins.
func SelectRate(rates []addondomain.AddonRate, planID snowflake.ID, at time.Time) (addondomain.AddonRate, error) {
	var planScoped, global []addondomain.AddonRate
	for _, rate := range rates {
		if !rate.IsActive || !rate.EffectiveAt(at) {
			continue
		}
		switch {
		case rate.PlanID == nil:
			global = append(global, rate)
		case *rate.PlanID == planID:
			planScoped = append(planScoped, rate)
		}
	}

	candidates := planScoped
	if len(candidates) == 0 {
		candidates = global
	}
	if len(candidates) == 0 {
		return addondomain.AddonRate{}, addondomain.ErrNoActiveRate
	}

	best := candidates[0]
	tied := false
	for _, rate := range candidates[1:] {
		switch {
		case rate.EffectiveFrom.After(best.EffectiveFrom):
			best = rate
			tied = false
		case rate.EffectiveFrom.Equal(best.EffectiveFrom):
			tied = true
		}
	}
	if tied {
		return addondomain.AddonRate{}, addondomain.ErrAmbiguousAddonRate
	}
	return best, nil
}
