package service

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
)

var hundred = decimal.NewFromInt(100)

// Input is the member context a loading is computed against.
type Input struct {
	BasePremium   decimal.Decimal
	EffectiveDate time.Time
	AsOf          time.Time
}

type loaded struct {
	rule   loadingdomain.Rule
	amount decimal.Decimal
}

// ApplyLoadings computes one member's loading from the declared conditions
// and the active rule library. An exclusion matched by a condition
// suppresses every monetary loading matched by that same condition.
// Monetary loadings stack additively unless a matched rule replaces others,
// in which case only the largest replacing loading is charged.
func ApplyLoadings(conditions []loadingdomain.Condition, rules []loadingdomain.Rule, in Input) loadingdomain.Result {
	var (
		monetary []loaded
		applied  []snowflake.ID
		excluded []snowflake.ID
		counted  = make(map[snowflake.ID]bool)
		benefits = make(map[snowflake.ID]bool)
	)

	for _, condition := range conditions {
		matched := matchRules(condition, rules, in)

		suppressed := false
		for _, rule := range matched {
			if _, ok := rule.Loading.(loadingdomain.ExclusionLoading); ok {
				suppressed = true
				break
			}
		}

		for _, rule := range matched {
			switch l := rule.Loading.(type) {
			case loadingdomain.ExclusionLoading:
				if counted[rule.ID] {
					continue
				}
				counted[rule.ID] = true
				applied = append(applied, rule.ID)
				for _, id := range l.BenefitIDs {
					if !benefits[id] {
						benefits[id] = true
						excluded = append(excluded, id)
					}
				}
			case loadingdomain.PercentageLoading:
				if suppressed || counted[rule.ID] {
					continue
				}
				counted[rule.ID] = true
				amount := clamp(in.BasePremium.Mul(l.Percent).Div(hundred), l.Min, l.Max)
				monetary = append(monetary, loaded{rule: rule, amount: amount})
			case loadingdomain.FixedLoading:
				if suppressed || counted[rule.ID] {
					continue
				}
				counted[rule.ID] = true
				monetary = append(monetary, loaded{rule: rule, amount: clamp(l.Amount, l.Min, l.Max)})
			}
		}
	}

	total := decimal.Zero
	charged := stack(monetary)
	for _, item := range charged {
		total = total.Add(item.amount)
		applied = append(applied, item.rule.ID)
	}

	sortIDs(applied)
	sortIDs(excluded)

	reviewable := make(map[snowflake.ID]bool)
	for _, rule := range rules {
		if rule.Duration.Type == loadingdomain.DurationReviewable {
			reviewable[rule.ID] = true
		}
	}
	review := make([]snowflake.ID, 0)
	for _, id := range applied {
		if reviewable[id] {
			review = append(review, id)
		}
	}

	if applied == nil {
		applied = make([]snowflake.ID, 0)
	}
	if excluded == nil {
		excluded = make([]snowflake.ID, 0)
	}
	return loadingdomain.Result{
		TotalLoading:       total,
		AppliedRuleIDs:     applied,
		ExcludedBenefitIDs: excluded,
		ReviewRuleIDs:      review,
	}
}

// matchRules returns the live rules a condition triggers. ICD matches take
// precedence; the name is only consulted when no rule matched by code.
func matchRules(condition loadingdomain.Condition, rules []loadingdomain.Rule, in Input) []loadingdomain.Rule {
	var byICD, byName []loadingdomain.Rule
	for _, rule := range rules {
		if expired(rule, in) {
			continue
		}
		matched, icd := rule.Matches(condition)
		switch {
		case !matched:
		case icd:
			byICD = append(byICD, rule)
		default:
			byName = append(byName, rule)
		}
	}
	if len(byICD) > 0 {
		return byICD
	}
	return byName
}

func expired(rule loadingdomain.Rule, in Input) bool {
	start := in.EffectiveDate
	if start.IsZero() {
		start = in.AsOf
	}
	expiry, limited := rule.Duration.ExpiresAt(start)
	if !limited {
		return false
	}
	return !in.AsOf.Before(expiry)
}

func stack(items []loaded) []loaded {
	var best *loaded
	for i := range items {
		item := items[i]
		if !item.rule.ReplacesOthers {
			continue
		}
		if best == nil ||
			item.amount.GreaterThan(best.amount) ||
			(item.amount.Equal(best.amount) && item.rule.ID < best.rule.ID) {
			best = &items[i]
		}
	}
	if best == nil {
		return items
	}
	return []loaded{*best}
}

func clamp(amount decimal.Decimal, lower, upper decimal.NullDecimal) decimal.Decimal {
	if lower.Valid && amount.LessThan(lower.Decimal) {
		amount = lower.Decimal
	}
	if upper.Valid && amount.GreaterThan(upper.Decimal) {
		amount = upper.Decimal
	}
	return amount
}

func sortIDs(ids []snowflake.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
