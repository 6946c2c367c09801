package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

// Loading is the decoded effect of a rule. The set of implementations is
// closed to this package.
type Loading interface {
	Type() LoadingType
	sealed()
}

type PercentageLoading struct {
	Percent decimal.Decimal
	Min     decimal.NullDecimal
	Max     decimal.NullDecimal
}

type FixedLoading struct {
	Amount decimal.Decimal
	Min    decimal.NullDecimal
	Max    decimal.NullDecimal
}

type ExclusionLoading struct {
	BenefitIDs []snowflake.ID
	Terms      string
}

func (PercentageLoading) Type() LoadingType { return LoadingTypePercentage }
func (FixedLoading) Type() LoadingType      { return LoadingTypeFixed }
func (ExclusionLoading) Type() LoadingType  { return LoadingTypeExclusion }

func (PercentageLoading) sealed() {}
func (FixedLoading) sealed()      {}
func (ExclusionLoading) sealed()  {}

type Duration struct {
	Type   DurationType
	Months int
}

// ExpiresAt returns the first instant a time_limited loading no longer
// applies for a member effective from start.
func (d Duration) ExpiresAt(start time.Time) (time.Time, bool) {
	if d.Type != DurationTimeLimited {
		return time.Time{}, false
	}
	return start.AddDate(0, d.Months, 0), true
}

// Rule is a validated LoadingRule ready for matching.
type Rule struct {
	ID             snowflake.ID
	ICDCodes       []string
	NameKey        string
	Loading        Loading
	Duration       Duration
	ReplacesOthers bool
}

// Matches reports whether a declared condition triggers the rule. ICD codes
// compare case-insensitively; byICD is false when only the name matched.
func (r Rule) Matches(c Condition) (matched bool, byICD bool) {
	code := strings.ToUpper(strings.TrimSpace(c.ICDCode))
	if code != "" {
		for _, icd := range r.ICDCodes {
			if icd == code {
				return true, true
			}
		}
	}
	if r.NameKey != "" && NameKey(c.Name) == r.NameKey {
		return true, false
	}
	return false, false
}

// NameKey normalises a condition name for fallback matching.
func NameKey(name string) string {
	return slug.Make(strings.TrimSpace(name))
}

// Decode validates a stored rule against its loading and duration types.
func Decode(rule LoadingRule) (Rule, error) {
	decoded := Rule{
		ID:             rule.ID,
		NameKey:        NameKey(rule.ConditionName),
		ReplacesOthers: rule.ReplacesOthers,
	}
	if rule.ICDCode != nil && strings.TrimSpace(*rule.ICDCode) != "" {
		decoded.ICDCodes = append(decoded.ICDCodes, strings.ToUpper(strings.TrimSpace(*rule.ICDCode)))
	}
	for _, code := range rule.RelatedICDCodes {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			decoded.ICDCodes = append(decoded.ICDCodes, code)
		}
	}
	if decoded.NameKey == "" && len(decoded.ICDCodes) == 0 {
		return Rule{}, ErrInvalidLoadingRule
	}
	if rule.MinLoading.Valid && rule.MaxLoading.Valid && rule.MinLoading.Decimal.GreaterThan(rule.MaxLoading.Decimal) {
		return Rule{}, ErrInvalidLoadingRule
	}

	switch rule.LoadingType {
	case LoadingTypePercentage:
		if !rule.LoadingValue.Valid || rule.LoadingValue.Decimal.IsNegative() {
			return Rule{}, ErrInvalidLoadingRule
		}
		decoded.Loading = PercentageLoading{Percent: rule.LoadingValue.Decimal, Min: rule.MinLoading, Max: rule.MaxLoading}
	case LoadingTypeFixed:
		if !rule.LoadingValue.Valid || rule.LoadingValue.Decimal.IsNegative() {
			return Rule{}, ErrInvalidLoadingRule
		}
		decoded.Loading = FixedLoading{Amount: rule.LoadingValue.Decimal, Min: rule.MinLoading, Max: rule.MaxLoading}
	case LoadingTypeExclusion:
		decoded.Loading = ExclusionLoading{BenefitIDs: append([]snowflake.ID(nil), rule.ExcludedBenefitIDs...), Terms: rule.ExclusionTerms}
	default:
		return Rule{}, ErrInvalidLoadingRule
	}

	switch rule.DurationType {
	case DurationPermanent, DurationReviewable:
		decoded.Duration = Duration{Type: rule.DurationType}
	case DurationTimeLimited:
		if rule.DurationMonths == nil || *rule.DurationMonths <= 0 {
			return Rule{}, ErrInvalidLoadingRule
		}
		decoded.Duration = Duration{Type: rule.DurationType, Months: *rule.DurationMonths}
	default:
		return Rule{}, ErrInvalidLoadingRule
	}
	return decoded, nil
}
