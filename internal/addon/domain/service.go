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
	CreateAddon(ctx context.Context, req CreateAddonRequest) (*Addon, error)
	CreateRate(ctx context.Context, req CreateRateRequest) (*RateSnapshot, error)
	ActivateRate(ctx context.Context, req ActivateRateRequest) (*AddonRate, error)
	ListRates(ctx context.Context, addonID snowflake.ID) ([]AddonRate, error)
	ResolveAddonPrice(ctx context.Context, req ResolveRequest) (*PriceQuote, error)
}

type CreateAddonRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type BandInput struct {
	MinAge     int             `json:"min_age"`
	MaxAge     int             `json:"max_age"`
	Gender     *string         `json:"gender,omitempty"`
	RegionCode *string         `json:"region_code,omitempty"`
	MemberType *string         `json:"member_type,omitempty"`
	Price      decimal.Decimal `json:"price"`
}

type CreateRateRequest struct {
	AddonID         snowflake.ID        `json:"-"`
	PlanID          *snowflake.ID       `json:"plan_id,omitempty"`
	PricingType     PricingType         `json:"pricing_type"`
	Amount          decimal.NullDecimal `json:"amount"`
	Percentage      decimal.NullDecimal `json:"percentage"`
	PercentageBasis *string             `json:"percentage_basis,omitempty"`
	EffectiveFrom   time.Time           `json:"effective_from"`
	EffectiveTo     *time.Time          `json:"effective_to,omitempty"`
	Bands           []BandInput         `json:"bands"`
}

type ActivateRateRequest struct {
	RateID snowflake.ID `json:"-"`
	At     *time.Time   `json:"at,omitempty"`
}

// ResolveRequest prices one add-on for a roster. Members are only read by
// age_rated rates; MemberCount defaults to len(Members).
type ResolveRequest struct {
	AddonID       snowflake.ID          `json:"addon_id"`
	PlanID        snowflake.ID          `json:"plan_id"`
	MemberCount   int                   `json:"member_count"`
	BasePremium   decimal.Decimal       `json:"base_premium"`
	TotalPremium  decimal.Decimal       `json:"total_premium"`
	Members       []ratingdomain.Member `json:"members,omitempty"`
	InceptionDate time.Time             `json:"inception_date"`
}

type PriceQuote struct {
	AddonID     snowflake.ID    `json:"addon_id"`
	RateID      snowflake.ID    `json:"rate_id"`
	PricingType PricingType     `json:"pricing_type"`
	Price       decimal.Decimal `json:"price"`
}

var (
	ErrAddonNotFound                   = errors.New("addon_not_found")
	ErrRateNotFound                    = errors.New("addon_rate_not_found")
	ErrInvalidAddon                    = errors.New("invalid_addon")
	ErrInvalidRate                     = errors.New("invalid_addon_rate")
	ErrInvalidMemberCount              = errors.New("invalid_member_count")
	ErrNoActiveRate                    = errors.New("no_active_rate")
	ErrUnsupportedPricingConfiguration = errors.New("unsupported_pricing_configuration")
	ErrAmbiguousAddonRate              = errors.New("ambiguous_addon_rate")
)
