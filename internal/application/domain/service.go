package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Application, error)
	Get(ctx context.Context, id snowflake.ID) (*Application, error)
	Delete(ctx context.Context, id snowflake.ID) error
	Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
	SetMemberStatus(ctx context.Context, req MemberStatusRequest) (*ApplicationMember, error)
	ListTransitions(ctx context.Context, id snowflake.ID) ([]Transition, error)
	// ExpireStale moves draft and quoted applications whose quote window
	// has closed to expired and returns how many were moved.
	ExpireStale(ctx context.Context, limit int) (int, error)
}

type MemberRequest struct {
	MemberType    ratingdomain.MemberType   `json:"member_type"`
	DateOfBirth   time.Time                 `json:"date_of_birth"`
	Gender        ratingdomain.Gender       `json:"gender"`
	RegionCode    string                    `json:"region_code"`
	Conditions    []loadingdomain.Condition `json:"conditions"`
	EffectiveDate *time.Time                `json:"effective_date,omitempty"`
}

type CreateRequest struct {
	PlanID                snowflake.ID    `json:"plan_id"`
	SchemeID              *snowflake.ID   `json:"scheme_id,omitempty"`
	RateCardID            *snowflake.ID   `json:"rate_card_id,omitempty"`
	InceptionDate         time.Time       `json:"inception_date"`
	BillingFrequency      string          `json:"billing_frequency"`
	GroupSize             int             `json:"group_size"`
	Members               []MemberRequest `json:"members"`
	AddonIDs              []snowflake.ID  `json:"addon_ids"`
	PromoCode             string          `json:"promo_code,omitempty"`
	ManualDiscountRuleIDs []snowflake.ID  `json:"manual_discount_rule_ids"`
}

type TransitionRequest struct {
	ApplicationID snowflake.ID `json:"-"`
	Event         Event        `json:"event"`
	Actor         string       `json:"actor"`
	Reason        string       `json:"reason,omitempty"`
}

// TransitionResult carries the policy when the event was a conversion.
type TransitionResult struct {
	Application *Application `json:"application"`
	Policy      *Policy      `json:"policy,omitempty"`
}

type MemberStatusRequest struct {
	ApplicationID snowflake.ID `json:"-"`
	MemberID      snowflake.ID `json:"-"`
	Status        MemberStatus `json:"status"`
	Actor         string       `json:"actor"`
}

var (
	ErrNotFound             = errors.New("application_not_found")
	ErrMemberNotFound       = errors.New("application_member_not_found")
	ErrInvalidApplication   = errors.New("invalid_application")
	ErrInvalidMember        = errors.New("invalid_application_member")
	ErrInvalidEvent         = errors.New("invalid_event")
	ErrInvalidActor         = errors.New("invalid_actor")
	ErrReasonRequired       = errors.New("reason_required")
	ErrNoMembers            = errors.New("application_has_no_members")
	ErrNotSubmittable       = errors.New("application_not_submittable")
	ErrMembersNotCleared    = errors.New("members_not_cleared")
	ErrNotDraft             = errors.New("application_not_draft")
	ErrNotUnderwriting      = errors.New("application_not_in_underwriting")
	ErrConversionInProgress = errors.New("conversion_in_progress")
)
