package service

import (
	"strings"

	"github.com/shopspring/decimal"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
)

// ResolveBand returns the single most specific band for member. An exact
// member type outranks "any" member type, then exact gender, then exact
// region.
func ResolveBand(bands []ratingdomain.Band, member ratingdomain.Member) (ratingdomain.Match, error) {
	candidates := make([]ratingdomain.Band, 0, len(bands))
	for _, band := range bands {
		if member.Age < band.MinAge || member.Age > band.MaxAge {
			continue
		}
		if band.MemberType != "" && band.MemberType != member.MemberType {
			continue
		}
		if band.Gender != nil && *band.Gender != member.Gender {
			continue
		}
		if band.RegionCode != nil && !strings.EqualFold(*band.RegionCode, member.RegionCode) {
			continue
		}
		candidates = append(candidates, band)
	}
	if len(candidates) == 0 {
		return ratingdomain.Match{}, ratingdomain.ErrNoRateMatch
	}

	candidates = preferExact(candidates, func(b ratingdomain.Band) bool { return b.MemberType != "" })
	candidates = preferExact(candidates, func(b ratingdomain.Band) bool { return b.Gender != nil })
	candidates = preferExact(candidates, func(b ratingdomain.Band) bool { return b.RegionCode != nil })
	if len(candidates) > 1 {
		return ratingdomain.Match{}, ratingdomain.ErrAmbiguousRateMatch
	}

	return ratingdomain.Match{Price: candidates[0].Price, SourceID: candidates[0].ID}, nil
}

func preferExact(bands []ratingdomain.Band, exact func(ratingdomain.Band) bool) []ratingdomain.Band {
	specific := make([]ratingdomain.Band, 0, len(bands))
	for _, b := range bands {
		if exact(b) {
			specific = append(specific, b)
		}
	}
	if len(specific) == 0 {
		return bands
	}
	return specific
}

// ResolveTier prices a roster of count members. An open-ended tier charges
// its extra premium for every member above its minimum. When count is past
// every bounded tier, the largest bounded tier charges its extra premium for
// every member above its maximum.
func ResolveTier(tiers []ratingdomain.Tier, count int) (ratingdomain.Match, error) {
	if count <= 0 {
		return ratingdomain.Match{}, ratingdomain.ErrNoRateMatch
	}

	var containing []ratingdomain.Tier
	for _, tier := range tiers {
		if count < tier.MinMembers {
			continue
		}
		if tier.MaxMembers != nil && count > *tier.MaxMembers {
			continue
		}
		containing = append(containing, tier)
	}

	switch len(containing) {
	case 1:
		tier := containing[0]
		price := tier.Premium
		if tier.MaxMembers == nil && tier.ExtraMemberPremium.Valid && count > tier.MinMembers {
			price = price.Add(extra(tier.ExtraMemberPremium.Decimal, count-tier.MinMembers))
		}
		return ratingdomain.Match{Price: price, SourceID: tier.ID}, nil
	case 0:
	default:
		return ratingdomain.Match{}, ratingdomain.ErrAmbiguousRateMatch
	}

	var (
		largest *ratingdomain.Tier
		tied    bool
	)
	for i := range tiers {
		tier := tiers[i]
		if tier.MaxMembers == nil || *tier.MaxMembers >= count {
			continue
		}
		switch {
		case largest == nil || *tier.MaxMembers > *largest.MaxMembers:
			largest = &tiers[i]
			tied = false
		case *tier.MaxMembers == *largest.MaxMembers:
			tied = true
		}
	}
	if largest == nil || !largest.ExtraMemberPremium.Valid {
		return ratingdomain.Match{}, ratingdomain.ErrNoRateMatch
	}
	if tied {
		return ratingdomain.Match{}, ratingdomain.ErrAmbiguousRateMatch
	}

	price := largest.Premium.Add(extra(largest.ExtraMemberPremium.Decimal, count-*largest.MaxMembers))
	return ratingdomain.Match{Price: price, SourceID: largest.ID}, nil
}

func extra(perMember decimal.Decimal, members int) decimal.Decimal {
	return perMember.Mul(decimal.NewFromInt(int64(members)))
}
