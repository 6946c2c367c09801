package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
)

const (
	triggerMinGroupSize     = "min_group_size"
	triggerMaxGroupSize     = "max_group_size"
	triggerMinMembers       = "min_members"
	triggerMaxMembers       = "max_members"
	triggerMinPremium       = "min_premium"
	triggerBillingFrequency = "billing_frequency"
	triggerMemberTypes      = "member_types"
)

// EvaluateTriggers reports whether every declared predicate holds. A key
// it does not understand, or a value of the wrong shape, makes the rule
// ineligible; the offending key is returned for logging.
func EvaluateTriggers(triggers map[string]any, attrs discountdomain.PolicyAttributes) (bool, string) {
	keys := make([]string, 0, len(triggers))
	for k := range triggers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := triggers[key]
		var (
			ok  bool
			err error
		)
		switch key {
		case triggerMinGroupSize:
			ok, err = compareInt(raw, attrs.GroupSize, func(limit, v int64) bool { return v >= limit })
		case triggerMaxGroupSize:
			ok, err = compareInt(raw, attrs.GroupSize, func(limit, v int64) bool { return v <= limit })
		case triggerMinMembers:
			ok, err = compareInt(raw, attrs.MemberCount, func(limit, v int64) bool { return v >= limit })
		case triggerMaxMembers:
			ok, err = compareInt(raw, attrs.MemberCount, func(limit, v int64) bool { return v <= limit })
		case triggerMinPremium:
			var limit decimal.Decimal
			limit, err = toDecimal(raw)
			ok = err == nil && attrs.TotalPremium.GreaterThanOrEqual(limit)
		case triggerBillingFrequency:
			var allowed []string
			allowed, err = toStrings(raw)
			ok = err == nil && containsFold(allowed, attrs.BillingFrequency)
		case triggerMemberTypes:
			var required []string
			required, err = toStrings(raw)
			ok = err == nil
			for _, t := range required {
				if !containsFold(attrs.MemberTypes, t) {
					ok = false
					break
				}
			}
		default:
			return false, key
		}
		if err != nil {
			return false, key
		}
		if !ok {
			return false, ""
		}
	}
	return true, ""
}

func compareInt(raw any, value int, cmp func(limit, v int64) bool) (bool, error) {
	limit, err := toDecimal(raw)
	if err != nil {
		return false, err
	}
	if !limit.IsInteger() {
		return false, fmt.Errorf("non-integer limit %s", limit)
	}
	return cmp(limit.IntPart(), int64(value)), nil
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported trigger value %T", raw)
	}
}

func toStrings(raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("unsupported list item %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported trigger value %T", raw)
	}
}

func containsFold(values []string, target string) bool {
	target = strings.TrimSpace(target)
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}
