package domain

import (
	"github.com/shopspring/decimal"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
)

// Pricing is the decoded form of an AddonRate. The set of implementations
// is closed to this package.
type Pricing interface {
	Type() PricingType
	sealed()
}

type FixedPricing struct {
	Amount decimal.Decimal
}

type PerMemberPricing struct {
	Amount decimal.Decimal
}

type PercentagePricing struct {
	Percentage decimal.Decimal
	Basis      PercentageBasis
}

type AgeRatedPricing struct {
	Bands []ratingdomain.Band
}

func (FixedPricing) Type() PricingType      { return PricingTypeFixed }
func (PerMemberPricing) Type() PricingType  { return PricingTypePerMember }
func (PercentagePricing) Type() PricingType { return PricingTypePercentage }
func (AgeRatedPricing) Type() PricingType   { return PricingTypeAgeRated }

func (FixedPricing) sealed()      {}
func (PerMemberPricing) sealed()  {}
func (PercentagePricing) sealed() {}
func (AgeRatedPricing) sealed()   {}

// DecodePricing validates a stored rate against its pricing type.
func DecodePricing(snapshot RateSnapshot) (Pricing, error) {
	rate := snapshot.Rate
	switch rate.PricingType {
	case PricingTypeFixed:
		if !rate.Amount.Valid || rate.Amount.Decimal.IsNegative() {
			return nil, ErrUnsupportedPricingConfiguration
		}
		return FixedPricing{Amount: rate.Amount.Decimal}, nil
	case PricingTypePerMember:
		if !rate.Amount.Valid || rate.Amount.Decimal.IsNegative() {
			return nil, ErrUnsupportedPricingConfiguration
		}
		return PerMemberPricing{Amount: rate.Amount.Decimal}, nil
	case PricingTypePercentage:
		if !rate.Percentage.Valid || rate.Percentage.Decimal.IsNegative() {
			return nil, ErrUnsupportedPricingConfiguration
		}
		basis := BasisBasePremium
		if rate.PercentageBasis != nil {
			basis = PercentageBasis(*rate.PercentageBasis)
		}
		if basis != BasisBasePremium && basis != BasisTotalPremium {
			return nil, ErrUnsupportedPricingConfiguration
		}
		return PercentagePricing{Percentage: rate.Percentage.Decimal, Basis: basis}, nil
	case PricingTypeAgeRated:
		if len(snapshot.Bands) == 0 {
			return nil, ErrUnsupportedPricingConfiguration
		}
		bands := make([]ratingdomain.Band, 0, len(snapshot.Bands))
		for _, b := range snapshot.Bands {
			bands = append(bands, b.Band())
		}
		return AgeRatedPricing{Bands: bands}, nil
	default:
		return nil, ErrUnsupportedPricingConfiguration
	}
}
