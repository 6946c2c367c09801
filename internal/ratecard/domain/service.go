package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*RateCard, error)
	Get(ctx context.Context, id snowflake.ID) (*RateCard, error)
	SyncEntries(ctx context.Context, req SyncRequest) (*Snapshot, error)
	Activate(ctx context.Context, req ActivateRequest) (*RateCard, error)
	ResolveRate(ctx context.Context, req ResolveRateRequest) (*RateMatch, error)
	ResolveTier(ctx context.Context, req ResolveTierRequest) (*RateMatch, error)
	FindEffectiveForPlan(ctx context.Context, planID snowflake.ID, at time.Time) (*RateCard, error)
}

type CreateRequest struct {
	PlanID       snowflake.ID `json:"plan_id"`
	Name         string       `json:"name"`
	Currency     string       `json:"currency"`
	PricingModel PricingModel `json:"pricing_model"`
	ValidFrom    time.Time    `json:"valid_from"`
	ValidUntil   *time.Time   `json:"valid_until,omitempty"`
}

type EntryInput struct {
	MinAge     int             `json:"min_age"`
	MaxAge     int             `json:"max_age"`
	Gender     *string         `json:"gender,omitempty"`
	RegionCode *string         `json:"region_code,omitempty"`
	MemberType string          `json:"member_type"`
	Price      decimal.Decimal `json:"price"`
}

type TierInput struct {
	TierName           string              `json:"tier_name"`
	MinMembers         int                 `json:"min_members"`
	MaxMembers         *int                `json:"max_members,omitempty"`
	TierPremium        decimal.Decimal     `json:"tier_premium"`
	ExtraMemberPremium decimal.NullDecimal `json:"extra_member_premium"`
}

// SyncRequest replaces the card's entire entry and tier set.
type SyncRequest struct {
	RateCardID snowflake.ID `json:"-"`
	Entries    []EntryInput `json:"entries"`
	Tiers      []TierInput  `json:"tiers"`
}

type ActivateRequest struct {
	RateCardID snowflake.ID `json:"-"`
	At         *time.Time   `json:"at,omitempty"`
}

// MemberSnapshot carries raw member attributes; age is derived from the
// inception date.
type MemberSnapshot struct {
	DateOfBirth time.Time               `json:"date_of_birth"`
	Gender      ratingdomain.Gender     `json:"gender"`
	RegionCode  string                  `json:"region_code"`
	MemberType  ratingdomain.MemberType `json:"member_type"`
}

type ResolveRateRequest struct {
	RateCardID    snowflake.ID   `json:"rate_card_id"`
	Member        MemberSnapshot `json:"member"`
	InceptionDate time.Time      `json:"inception_date"`
}

type ResolveTierRequest struct {
	RateCardID    snowflake.ID `json:"rate_card_id"`
	MemberCount   int          `json:"member_count"`
	InceptionDate time.Time    `json:"inception_date"`
}

type RateMatch struct {
	RateCardID snowflake.ID    `json:"rate_card_id"`
	Price      decimal.Decimal `json:"price"`
	EntryID    *snowflake.ID   `json:"entry_id,omitempty"`
	TierID     *snowflake.ID   `json:"tier_id,omitempty"`
	Age        int             `json:"age"`
}

var (
	ErrNotFound             = errors.New("rate_card_not_found")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidPricingModel  = errors.New("invalid_pricing_model")
	ErrInvalidValidity      = errors.New("invalid_validity_window")
	ErrInvalidEntry         = errors.New("invalid_rate_card_entry")
	ErrOverlappingEntries   = errors.New("overlapping_rate_card_entries")
	ErrInvalidTier          = errors.New("invalid_rate_card_tier")
	ErrEmptyRateCard        = errors.New("empty_rate_card")
	ErrNotEffective         = errors.New("rate_card_not_effective")
	ErrNoEffectiveRateCard  = errors.New("no_effective_rate_card")
	ErrInvalidMemberProfile = errors.New("invalid_member_profile")
)
