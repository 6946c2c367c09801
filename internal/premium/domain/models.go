package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	addondomain "github.com/smallbiznis/medrate/internal/addon/domain"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	ratecarddomain "github.com/smallbiznis/medrate/internal/ratecard/domain"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
)

type BillingFrequency string

const (
	BillingMonthly    BillingFrequency = "monthly"
	BillingQuarterly  BillingFrequency = "quarterly"
	BillingSemiAnnual BillingFrequency = "semi_annual"
	BillingAnnual     BillingFrequency = "annual"
)

// Months is the number of months one installment covers.
func (f BillingFrequency) Months() (int, bool) {
	switch f {
	case BillingMonthly:
		return 1, true
	case BillingQuarterly:
		return 3, true
	case BillingSemiAnnual:
		return 6, true
	case BillingAnnual:
		return 12, true
	default:
		return 0, false
	}
}

func ParseBillingFrequency(value string) (BillingFrequency, bool) {
	f := BillingFrequency(strings.ToLower(strings.TrimSpace(value)))
	_, ok := f.Months()
	return f, ok
}

type Mode string

// ModePreliminary prices every member regardless of underwriting;
// ModeFinal prices only members underwriting has cleared.
const (
	ModePreliminary Mode = "preliminary"
	ModeFinal       Mode = "final"
)

// Underwriting outcomes that allow a member into the final premium.
const (
	StatusApproved = "approved"
	StatusTerms    = "terms"
)

func PricedInFinal(status string) bool {
	return status == StatusApproved || status == StatusTerms
}

// MemberInput is one insured person. EffectiveDate starts time-limited
// loadings and defaults to the inception date.
type MemberInput struct {
	ID                 snowflake.ID              `json:"id"`
	DateOfBirth        time.Time                 `json:"date_of_birth"`
	Gender             ratingdomain.Gender       `json:"gender"`
	RegionCode         string                    `json:"region_code"`
	MemberType         ratingdomain.MemberType   `json:"member_type"`
	Conditions         []loadingdomain.Condition `json:"conditions,omitempty"`
	UnderwritingStatus string                    `json:"underwriting_status,omitempty"`
	EffectiveDate      *time.Time                `json:"effective_date,omitempty"`
}

type Request struct {
	PlanID                snowflake.ID     `json:"plan_id"`
	SchemeID              *snowflake.ID    `json:"scheme_id,omitempty"`
	RateCardID            *snowflake.ID    `json:"rate_card_id,omitempty"`
	InceptionDate         time.Time        `json:"inception_date"`
	BillingFrequency      BillingFrequency `json:"billing_frequency"`
	Mode                  Mode             `json:"mode"`
	GroupSize             int              `json:"group_size"`
	Members               []MemberInput    `json:"members"`
	AddonIDs              []snowflake.ID   `json:"addon_ids,omitempty"`
	PromoCode             string           `json:"promo_code,omitempty"`
	ManualDiscountRuleIDs []snowflake.ID   `json:"manual_discount_rule_ids,omitempty"`
}

type MemberLine struct {
	MemberID              snowflake.ID            `json:"member_id"`
	MemberType            ratingdomain.MemberType `json:"member_type"`
	Age                   int                     `json:"age"`
	BasePremium           decimal.Decimal         `json:"base_premium"`
	Loading               decimal.Decimal         `json:"loading"`
	EntryID               *snowflake.ID           `json:"entry_id,omitempty"`
	AppliedLoadingRuleIDs []snowflake.ID          `json:"applied_loading_rule_ids"`
	ExcludedBenefitIDs    []snowflake.ID          `json:"excluded_benefit_ids"`
	ReviewRuleIDs         []snowflake.ID          `json:"review_rule_ids"`
}

type AddonLine struct {
	AddonID     snowflake.ID            `json:"addon_id"`
	RateID      snowflake.ID            `json:"rate_id"`
	PricingType addondomain.PricingType `json:"pricing_type"`
	Price       decimal.Decimal         `json:"price"`
}

// Breakdown is a priced quote. Every amount is annual except
// InstallmentAmount.
type Breakdown struct {
	Mode                   Mode                        `json:"mode"`
	PlanID                 snowflake.ID                `json:"plan_id"`
	RateCardID             snowflake.ID                `json:"rate_card_id"`
	Currency               string                      `json:"currency"`
	PricingModel           ratecarddomain.PricingModel `json:"pricing_model"`
	TierID                 *snowflake.ID               `json:"tier_id,omitempty"`
	InceptionDate          time.Time                   `json:"inception_date"`
	BillingFrequency       BillingFrequency            `json:"billing_frequency"`
	Members                []MemberLine                `json:"members"`
	ExcludedMemberIDs      []snowflake.ID              `json:"excluded_member_ids"`
	Addons                 []AddonLine                 `json:"addons"`
	BaseTotal              decimal.Decimal             `json:"base_total"`
	LoadingTotal           decimal.Decimal             `json:"loading_total"`
	AddonTotal             decimal.Decimal             `json:"addon_total"`
	Subtotal               decimal.Decimal             `json:"subtotal"`
	DiscountTotal          decimal.Decimal             `json:"discount_total"`
	SurchargeTotal         decimal.Decimal             `json:"surcharge_total"`
	AppliedDiscountRuleIDs []snowflake.ID              `json:"applied_discount_rule_ids"`
	PromoCodeID            *snowflake.ID               `json:"promo_code_id,omitempty"`
	PromoRemaining         *int                        `json:"promo_remaining,omitempty"`
	TaxRate                decimal.Decimal             `json:"tax_rate"`
	Tax                    decimal.Decimal             `json:"tax"`
	AnnualTotal            decimal.Decimal             `json:"annual_total"`
	InstallmentAmount      decimal.Decimal             `json:"installment_amount"`
	RequiresReview         bool                        `json:"requires_review"`
	CalculatedAt           time.Time                   `json:"calculated_at"`
}
