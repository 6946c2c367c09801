package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
)

type PricingType string

const (
	PricingTypeFixed      PricingType = "fixed"
	PricingTypePerMember  PricingType = "per_member"
	PricingTypePercentage PricingType = "percentage"
	PricingTypeAgeRated   PricingType = "age_rated"
)

type PercentageBasis string

const (
	BasisBasePremium  PercentageBasis = "base_premium"
	BasisTotalPremium PercentageBasis = "total_premium"
)

type Addon struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Code      string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	IsActive  bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Addon) TableName() string { return "addons" }

// AddonRate prices an add-on either globally (PlanID nil) or for one plan.
type AddonRate struct {
	ID              snowflake.ID        `json:"id" gorm:"primaryKey"`
	AddonID         snowflake.ID        `json:"addon_id" gorm:"not null;index"`
	PlanID          *snowflake.ID       `json:"plan_id,omitempty" gorm:"index"`
	PricingType     PricingType         `json:"pricing_type" gorm:"type:text;not null"`
	Amount          decimal.NullDecimal `json:"amount" gorm:"type:numeric(14,4)"`
	Percentage      decimal.NullDecimal `json:"percentage" gorm:"type:numeric(9,4)"`
	PercentageBasis *string             `json:"percentage_basis,omitempty" gorm:"type:text"`
	EffectiveFrom   time.Time           `json:"effective_from" gorm:"not null"`
	EffectiveTo     *time.Time          `json:"effective_to,omitempty"`
	IsActive        bool                `json:"is_active" gorm:"not null;default:false"`
	CreatedAt       time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time           `json:"updated_at" gorm:"not null"`
}

func (AddonRate) TableName() string { return "addon_rates" }

func (r AddonRate) EffectiveAt(at time.Time) bool {
	if at.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || at.Before(*r.EffectiveTo)
}

// AgeBand is one row of an age_rated add-on's own price table.
type AgeBand struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	AddonRateID snowflake.ID    `json:"addon_rate_id" gorm:"not null;index"`
	MinAge      int             `json:"min_age" gorm:"not null"`
	MaxAge      int             `json:"max_age" gorm:"not null"`
	Gender      *string         `json:"gender,omitempty" gorm:"type:text"`
	RegionCode  *string         `json:"region_code,omitempty" gorm:"type:text"`
	MemberType  *string         `json:"member_type,omitempty" gorm:"type:text"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(14,4);not null"`
}

func (AgeBand) TableName() string { return "addon_rate_bands" }

func (b AgeBand) Band() ratingdomain.Band {
	band := ratingdomain.Band{
		ID:         b.ID,
		MinAge:     b.MinAge,
		MaxAge:     b.MaxAge,
		RegionCode: b.RegionCode,
		Price:      b.Price,
	}
	if b.Gender != nil {
		g := ratingdomain.Gender(*b.Gender)
		band.Gender = &g
	}
	if b.MemberType != nil {
		band.MemberType = ratingdomain.MemberType(*b.MemberType)
	}
	return band
}

// RateSnapshot is a rate with its bands, as read for one calculation.
type RateSnapshot struct {
	Rate  AddonRate
	Bands []AgeBand
}
