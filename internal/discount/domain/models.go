package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type AdjustmentType string

const (
	AdjustmentDiscount AdjustmentType = "discount"
	AdjustmentLoading  AdjustmentType = "loading"
)

type ValueType string

const (
	ValuePercentage ValueType = "percentage"
	ValueFixed      ValueType = "fixed"
)

type ApplicationMethod string

const (
	MethodAutomatic ApplicationMethod = "automatic"
	MethodManual    ApplicationMethod = "manual"
	MethodPromoCode ApplicationMethod = "promo_code"
)

type AppliesTo string

const (
	AppliesToBasePremium  AppliesTo = "base_premium"
	AppliesToTotalPremium AppliesTo = "total_premium"
	AppliesToAddon        AppliesTo = "addon"
)

type DiscountRule struct {
	ID                snowflake.ID        `json:"id" gorm:"primaryKey"`
	Name              string              `json:"name" gorm:"type:text;not null"`
	AdjustmentType    AdjustmentType      `json:"adjustment_type" gorm:"type:text;not null"`
	ValueType         ValueType           `json:"value_type" gorm:"type:text;not null"`
	Value             decimal.Decimal     `json:"value" gorm:"type:numeric(14,4);not null"`
	ApplicationMethod ApplicationMethod   `json:"application_method" gorm:"type:text;not null"`
	AppliesTo         AppliesTo           `json:"applies_to" gorm:"type:text;not null"`
	SchemeID          *snowflake.ID       `json:"scheme_id,omitempty" gorm:"index"`
	PlanID            *snowflake.ID       `json:"plan_id,omitempty" gorm:"index"`
	TriggerRules      datatypes.JSONMap   `json:"trigger_rules" gorm:"type:jsonb;not null;default:'{}'"`
	Priority          int                 `json:"priority" gorm:"not null;default:0"`
	CanStack          bool                `json:"can_stack" gorm:"not null"`
	MaxTotalDiscount  decimal.NullDecimal `json:"max_total_discount" gorm:"type:numeric(14,4)"`
	EffectiveFrom     time.Time           `json:"effective_from" gorm:"not null"`
	EffectiveTo       *time.Time          `json:"effective_to,omitempty"`
	IsActive          bool                `json:"is_active" gorm:"not null"`
	CreatedAt         time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time           `json:"updated_at" gorm:"not null"`
}

func (DiscountRule) TableName() string { return "discount_rules" }

func (r DiscountRule) EffectiveAt(at time.Time) bool {
	if at.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || at.Before(*r.EffectiveTo)
}

// InScope reports whether the rule's scheme and plan scope admit the policy.
func (r DiscountRule) InScope(attrs PolicyAttributes) bool {
	if r.SchemeID != nil && (attrs.SchemeID == nil || *attrs.SchemeID != *r.SchemeID) {
		return false
	}
	if r.PlanID != nil && *r.PlanID != attrs.PlanID {
		return false
	}
	return true
}

// PromoCode either links a DiscountRule or carries its own value.
type PromoCode struct {
	ID             snowflake.ID        `json:"id" gorm:"primaryKey"`
	Code           string              `json:"code" gorm:"type:text;not null;uniqueIndex"`
	DiscountRuleID *snowflake.ID       `json:"discount_rule_id,omitempty" gorm:"index"`
	ValueType      *string             `json:"value_type,omitempty" gorm:"type:text"`
	Value          decimal.NullDecimal `json:"value" gorm:"type:numeric(14,4)"`
	AppliesTo      *string             `json:"applies_to,omitempty" gorm:"type:text"`
	UsageCount     int                 `json:"usage_count" gorm:"not null;default:0"`
	UsageLimit     *int                `json:"usage_limit,omitempty"`
	ValidFrom      time.Time           `json:"valid_from" gorm:"not null"`
	ValidUntil     *time.Time          `json:"valid_until,omitempty"`
	IsActive       bool                `json:"is_active" gorm:"not null"`
	CreatedAt      time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time           `json:"updated_at" gorm:"not null"`
}

func (PromoCode) TableName() string { return "promo_codes" }

func (p PromoCode) ValidAt(at time.Time) bool {
	if at.Before(p.ValidFrom) {
		return false
	}
	return p.ValidUntil == nil || !at.After(*p.ValidUntil)
}

func (p PromoCode) Exhausted() bool {
	return p.UsageLimit != nil && p.UsageCount >= *p.UsageLimit
}

// Remaining is nil for codes without a usage limit.
func (p PromoCode) Remaining() *int {
	if p.UsageLimit == nil {
		return nil
	}
	left := *p.UsageLimit - p.UsageCount
	if left < 0 {
		left = 0
	}
	return &left
}

// NormalizeCode is the stored form of a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PolicyAttributes are the facts trigger predicates are evaluated against.
type PolicyAttributes struct {
	SchemeID         *snowflake.ID   `json:"scheme_id,omitempty"`
	PlanID           snowflake.ID    `json:"plan_id"`
	GroupSize        int             `json:"group_size"`
	MemberCount      int             `json:"member_count"`
	TotalPremium     decimal.Decimal `json:"total_premium"`
	BillingFrequency string          `json:"billing_frequency"`
	MemberTypes      []string        `json:"member_types"`
	AsOf             time.Time       `json:"as_of"`
}

// Bases are the amounts an adjustment can be computed against.
type Bases struct {
	BasePremium  decimal.Decimal `json:"base_premium"`
	TotalPremium decimal.Decimal `json:"total_premium"`
	AddonPremium decimal.Decimal `json:"addon_premium"`
}

func (b Bases) For(target AppliesTo) decimal.Decimal {
	switch target {
	case AppliesToBasePremium:
		return b.BasePremium
	case AppliesToAddon:
		return b.AddonPremium
	default:
		return b.TotalPremium
	}
}

// Candidate is a rule or promo competing in stacking.
type Candidate struct {
	RuleID           snowflake.ID
	PromoCodeID      *snowflake.ID
	AdjustmentType   AdjustmentType
	ValueType        ValueType
	Value            decimal.Decimal
	AppliesTo        AppliesTo
	Priority         int
	CanStack         bool
	MaxTotalDiscount decimal.NullDecimal
}

func CandidateFromRule(rule DiscountRule) Candidate {
	return Candidate{
		RuleID:           rule.ID,
		AdjustmentType:   rule.AdjustmentType,
		ValueType:        rule.ValueType,
		Value:            rule.Value,
		AppliesTo:        rule.AppliesTo,
		Priority:         rule.Priority,
		CanStack:         rule.CanStack,
		MaxTotalDiscount: rule.MaxTotalDiscount,
	}
}

type Adjustment struct {
	RuleID         snowflake.ID    `json:"rule_id,omitempty"`
	PromoCodeID    *snowflake.ID   `json:"promo_code_id,omitempty"`
	AdjustmentType AdjustmentType  `json:"adjustment_type"`
	AppliesTo      AppliesTo       `json:"applies_to"`
	Amount         decimal.Decimal `json:"amount"`
}

// Outcome is the stacking result. TotalDiscount is already capped.
type Outcome struct {
	TotalDiscount  decimal.Decimal `json:"total_discount"`
	TotalSurcharge decimal.Decimal `json:"total_surcharge"`
	Adjustments    []Adjustment    `json:"adjustments"`
	AppliedRuleIDs []snowflake.ID  `json:"applied_rule_ids"`
	PromoCodeID    *snowflake.ID   `json:"promo_code_id,omitempty"`
	PromoRemaining *int            `json:"promo_remaining,omitempty"`
}
