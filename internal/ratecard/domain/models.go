package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
)

type PricingModel string

const (
	PricingModelPerMember PricingModel = "per_member"
	PricingModelTiered    PricingModel = "tiered"
)

type RateCard struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	PlanID       snowflake.ID `json:"plan_id" gorm:"not null;index"`
	Name         string       `json:"name" gorm:"type:text;not null"`
	Currency     string       `json:"currency" gorm:"type:text;not null"`
	PricingModel PricingModel `json:"pricing_model" gorm:"type:text;not null"`
	ValidFrom    time.Time    `json:"valid_from" gorm:"not null"`
	ValidUntil   *time.Time   `json:"valid_until,omitempty"`
	IsActive     bool         `json:"is_active" gorm:"not null;default:false"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (RateCard) TableName() string { return "rate_cards" }

// CoversDate reports whether at falls inside the card's validity window.
func (c RateCard) CoversDate(at time.Time) bool {
	if at.Before(c.ValidFrom) {
		return false
	}
	return c.ValidUntil == nil || !at.After(*c.ValidUntil)
}

type Entry struct {
	ID         snowflake.ID    `json:"id" gorm:"primaryKey"`
	RateCardID snowflake.ID    `json:"rate_card_id" gorm:"not null;index"`
	MinAge     int             `json:"min_age" gorm:"not null"`
	MaxAge     int             `json:"max_age" gorm:"not null"`
	Gender     *string         `json:"gender,omitempty" gorm:"type:text"`
	RegionCode *string         `json:"region_code,omitempty" gorm:"type:text"`
	MemberType string          `json:"member_type" gorm:"type:text;not null"`
	Price      decimal.Decimal `json:"price" gorm:"type:numeric(14,4);not null"`
	Position   int             `json:"position" gorm:"not null;default:0"`
}

func (Entry) TableName() string { return "rate_card_entries" }

func (e Entry) Band() ratingdomain.Band {
	band := ratingdomain.Band{
		ID:         e.ID,
		MinAge:     e.MinAge,
		MaxAge:     e.MaxAge,
		RegionCode: e.RegionCode,
		MemberType: ratingdomain.MemberType(e.MemberType),
		Price:      e.Price,
	}
	if e.Gender != nil {
		g := ratingdomain.Gender(*e.Gender)
		band.Gender = &g
	}
	return band
}

type Tier struct {
	ID                 snowflake.ID        `json:"id" gorm:"primaryKey"`
	RateCardID         snowflake.ID        `json:"rate_card_id" gorm:"not null;index"`
	TierName           string              `json:"tier_name" gorm:"type:text;not null"`
	MinMembers         int                 `json:"min_members" gorm:"not null"`
	MaxMembers         *int                `json:"max_members,omitempty"`
	TierPremium        decimal.Decimal     `json:"tier_premium" gorm:"type:numeric(14,4);not null"`
	ExtraMemberPremium decimal.NullDecimal `json:"extra_member_premium" gorm:"type:numeric(14,4)"`
	Position           int                 `json:"position" gorm:"not null;default:0"`
}

func (Tier) TableName() string { return "rate_card_tiers" }

func (t Tier) RatingTier() ratingdomain.Tier {
	return ratingdomain.Tier{
		ID:                 t.ID,
		Name:               t.TierName,
		MinMembers:         t.MinMembers,
		MaxMembers:         t.MaxMembers,
		Premium:            t.TierPremium,
		ExtraMemberPremium: t.ExtraMemberPremium,
	}
}

// Snapshot is the immutable price table used for one calculation.
type Snapshot struct {
	Card    RateCard
	Entries []Entry
	Tiers   []Tier
}

func (s Snapshot) Bands() []ratingdomain.Band {
	bands := make([]ratingdomain.Band, 0, len(s.Entries))
	for _, e := range s.Entries {
		bands = append(bands, e.Band())
	}
	return bands
}

func (s Snapshot) RatingTiers() []ratingdomain.Tier {
	tiers := make([]ratingdomain.Tier, 0, len(s.Tiers))
	for _, t := range s.Tiers {
		tiers = append(tiers, t.RatingTier())
	}
	return tiers
}
