package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Service interface {
	CreateRule(ctx context.Context, req CreateRuleRequest) (*LoadingRule, error)
	ActiveRules(ctx context.Context) ([]Rule, error)
	ApplyForMember(ctx context.Context, req MemberRequest) (*Result, error)
}

type CreateRuleRequest struct {
	ConditionName      string              `json:"condition_name"`
	ICDCode            *string             `json:"icd_code,omitempty"`
	RelatedICDCodes    []string            `json:"related_icd_codes"`
	LoadingType        LoadingType         `json:"loading_type"`
	LoadingValue       decimal.NullDecimal `json:"loading_value"`
	MinLoading         decimal.NullDecimal `json:"min_loading"`
	MaxLoading         decimal.NullDecimal `json:"max_loading"`
	DurationType       DurationType        `json:"duration_type"`
	DurationMonths     *int                `json:"duration_months,omitempty"`
	ExcludedBenefitIDs []snowflake.ID      `json:"excluded_benefit_ids"`
	ExclusionTerms     string              `json:"exclusion_terms"`
	ReplacesOthers     bool                `json:"replaces_others"`
}

// MemberRequest prices loadings for one member. EffectiveDate starts the
// clock for time_limited rules; AsOf is the quote date.
type MemberRequest struct {
	Conditions    []Condition     `json:"conditions"`
	BasePremium   decimal.Decimal `json:"base_premium"`
	EffectiveDate time.Time       `json:"effective_date"`
	AsOf          time.Time       `json:"as_of"`
}

var (
	ErrInvalidLoadingRule = errors.New("invalid_loading_rule")
)
