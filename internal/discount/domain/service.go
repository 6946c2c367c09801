package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	CreateRule(ctx context.Context, req CreateRuleRequest) (*DiscountRule, error)
	CreatePromoCode(ctx context.Context, req CreatePromoRequest) (*PromoCode, error)
	ResolveDiscounts(ctx context.Context, req ResolveRequest) (*Outcome, error)
	// RedeemPromo consumes one use of code inside tx. A nil tx runs on the
	// service's own connection.
	RedeemPromo(ctx context.Context, tx *gorm.DB, code string) (*PromoCode, error)
}

type CreateRuleRequest struct {
	Name              string              `json:"name"`
	AdjustmentType    AdjustmentType      `json:"adjustment_type"`
	ValueType         ValueType           `json:"value_type"`
	Value             decimal.Decimal     `json:"value"`
	ApplicationMethod ApplicationMethod   `json:"application_method"`
	AppliesTo         AppliesTo           `json:"applies_to"`
	SchemeID          *snowflake.ID       `json:"scheme_id,omitempty"`
	PlanID            *snowflake.ID       `json:"plan_id,omitempty"`
	TriggerRules      map[string]any      `json:"trigger_rules"`
	Priority          int                 `json:"priority"`
	CanStack          bool                `json:"can_stack"`
	MaxTotalDiscount  decimal.NullDecimal `json:"max_total_discount"`
	EffectiveFrom     time.Time           `json:"effective_from"`
	EffectiveTo       *time.Time          `json:"effective_to,omitempty"`
}

type CreatePromoRequest struct {
	Code           string              `json:"code"`
	DiscountRuleID *snowflake.ID       `json:"discount_rule_id,omitempty"`
	ValueType      *ValueType          `json:"value_type,omitempty"`
	Value          decimal.NullDecimal `json:"value"`
	AppliesTo      *AppliesTo          `json:"applies_to,omitempty"`
	UsageLimit     *int                `json:"usage_limit,omitempty"`
	ValidFrom      time.Time           `json:"valid_from"`
	ValidUntil     *time.Time          `json:"valid_until,omitempty"`
}

type ResolveRequest struct {
	Attributes    PolicyAttributes `json:"attributes"`
	Bases         Bases            `json:"bases"`
	PromoCode     string           `json:"promo_code,omitempty"`
	ManualRuleIDs []snowflake.ID   `json:"manual_rule_ids,omitempty"`
}

var (
	ErrInvalidRule           = errors.New("invalid_discount_rule")
	ErrInvalidPromo          = errors.New("invalid_promo_definition")
	ErrRuleNotFound          = errors.New("discount_rule_not_found")
	ErrManualRuleNotEligible = errors.New("manual_rule_not_eligible")
	ErrInvalidPromoCode      = errors.New("invalid_promo_code")
	ErrPromoExpired          = errors.New("promo_expired")
	ErrPromoExhausted        = errors.New("promo_exhausted")
	ErrPromoNotApplicable    = errors.New("promo_not_applicable")
)
