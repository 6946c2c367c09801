package service

import (
	"strings"

	ratecarddomain "github.com/smallbiznis/medrate/internal/ratecard/domain"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
)

func validateEntries(entries []ratecarddomain.EntryInput) error {
	for i, e := range entries {
		if e.MinAge < 0 || e.MaxAge < e.MinAge {
			return ratecarddomain.ErrInvalidEntry
		}
		if _, ok := ratingdomain.ParseMemberType(e.MemberType); !ok {
			return ratecarddomain.ErrInvalidEntry
		}
		if g := normalizeGender(e.Gender); g != nil && !ratingdomain.Gender(*g).Valid() {
			return ratecarddomain.ErrInvalidEntry
		}
		if e.Price.IsNegative() {
			return ratecarddomain.ErrInvalidEntry
		}
		for _, other := range entries[:i] {
			if sameCell(e, other) && e.MinAge <= other.MaxAge && other.MinAge <= e.MaxAge {
				return ratecarddomain.ErrOverlappingEntries
			}
		}
	}
	return nil
}

// sameCell reports whether two entries compete at the same specificity.
func sameCell(a, b ratecarddomain.EntryInput) bool {
	if !strings.EqualFold(strings.TrimSpace(a.MemberType), strings.TrimSpace(b.MemberType)) {
		return false
	}
	return equalOptional(normalizeGender(a.Gender), normalizeGender(b.Gender)) &&
		equalOptional(normalizeRegion(a.RegionCode), normalizeRegion(b.RegionCode))
}

func validateTiers(tiers []ratecarddomain.TierInput) error {
	for _, t := range tiers {
		if strings.TrimSpace(t.TierName) == "" || t.MinMembers < 1 {
			return ratecarddomain.ErrInvalidTier
		}
		if t.MaxMembers != nil && *t.MaxMembers < t.MinMembers {
			return ratecarddomain.ErrInvalidTier
		}
		if t.TierPremium.IsNegative() {
			return ratecarddomain.ErrInvalidTier
		}
		if t.ExtraMemberPremium.Valid && t.ExtraMemberPremium.Decimal.IsNegative() {
			return ratecarddomain.ErrInvalidTier
		}
	}
	return nil
}

func normalizeGender(g *string) *string {
	if g == nil {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(*g))
	if v == "" {
		return nil
	}
	return &v
}

func normalizeRegion(r *string) *string {
	if r == nil {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(*r))
	if v == "" {
		return nil
	}
	return &v
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
