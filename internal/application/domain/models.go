package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft        Status = "draft"
	StatusQuoted       Status = "quoted"
	StatusSubmitted    Status = "submitted"
	StatusUnderwriting Status = "underwriting"
	StatusApproved     Status = "approved"
	StatusDeclined     Status = "declined"
	StatusReferred     Status = "referred"
	StatusAccepted     Status = "accepted"
	StatusConverted    Status = "converted"
	StatusExpired      Status = "expired"
	StatusCancelled    Status = "cancelled"
)

type Event string

const (
	EventQuote             Event = "quote"
	EventSubmit            Event = "submit"
	EventStartUnderwriting Event = "start_underwriting"
	EventApprove           Event = "approve"
	EventDecline           Event = "decline"
	EventRefer             Event = "refer"
	EventAccept            Event = "accept"
	EventConvert           Event = "convert"
	EventCancel            Event = "cancel"
	EventExpire            Event = "expire"
)

type MemberStatus string

const (
	MemberPending    MemberStatus = "pending"
	MemberInProgress MemberStatus = "in_progress"
	MemberApproved   MemberStatus = "approved"
	MemberDeclined   MemberStatus = "declined"
	MemberReferred   MemberStatus = "referred"
	MemberTerms      MemberStatus = "terms"
)

// Application is the aggregate root of an underwriting case. Members and
// Addons are loaded alongside it and are not gorm associations.
type Application struct {
	ID                    snowflake.ID                      `json:"id" gorm:"primaryKey"`
	PlanID                snowflake.ID                      `json:"plan_id" gorm:"not null;index"`
	SchemeID              *snowflake.ID                     `json:"scheme_id,omitempty"`
	RateCardID            *snowflake.ID                     `json:"rate_card_id,omitempty"`
	Status                Status                            `json:"status" gorm:"type:text;not null;index"`
	InceptionDate         time.Time                         `json:"inception_date" gorm:"not null"`
	BillingFrequency      string                            `json:"billing_frequency" gorm:"type:text;not null"`
	GroupSize             int                               `json:"group_size" gorm:"not null;default:0"`
	PromoCode             *string                           `json:"promo_code,omitempty" gorm:"type:text"`
	ManualDiscountRuleIDs datatypes.JSONSlice[snowflake.ID] `json:"manual_discount_rule_ids" gorm:"type:jsonb;not null;default:'[]'"`
	AnnualPremium         decimal.NullDecimal               `json:"annual_premium" gorm:"type:numeric(14,4)"`
	InstallmentAmount     decimal.NullDecimal               `json:"installment_amount" gorm:"type:numeric(14,4)"`
	PremiumMode           *string                           `json:"premium_mode,omitempty" gorm:"type:text"`
	PremiumBreakdown      datatypes.JSON                    `json:"premium_breakdown,omitempty" gorm:"type:jsonb"`
	DecisionReason        *string                           `json:"decision_reason,omitempty" gorm:"type:text"`
	QuotedAt              *time.Time                        `json:"quoted_at,omitempty"`
	ExpiresAt             *time.Time                        `json:"expires_at,omitempty" gorm:"index"`
	CreatedAt             time.Time                         `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time                         `json:"updated_at" gorm:"not null"`

	Members []ApplicationMember `json:"members" gorm:"-"`
	Addons  []ApplicationAddon  `json:"addons" gorm:"-"`
}

func (Application) TableName() string { return "applications" }

type ApplicationMember struct {
	ID                 snowflake.ID                                 `json:"id" gorm:"primaryKey"`
	ApplicationID      snowflake.ID                                 `json:"application_id" gorm:"not null;index"`
	MemberType         ratingdomain.MemberType                      `json:"member_type" gorm:"type:text;not null"`
	DateOfBirth        time.Time                                    `json:"date_of_birth" gorm:"not null"`
	Gender             ratingdomain.Gender                          `json:"gender" gorm:"type:text;not null"`
	RegionCode         string                                       `json:"region_code" gorm:"type:text;not null;default:''"`
	Conditions         datatypes.JSONSlice[loadingdomain.Condition] `json:"conditions" gorm:"type:jsonb;not null;default:'[]'"`
	UnderwritingStatus MemberStatus                                 `json:"underwriting_status" gorm:"type:text;not null"`
	EffectiveDate      *time.Time                                   `json:"effective_date,omitempty"`
	CreatedAt          time.Time                                    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time                                    `json:"updated_at" gorm:"not null"`
}

func (ApplicationMember) TableName() string { return "application_members" }

type ApplicationAddon struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	ApplicationID snowflake.ID `json:"application_id" gorm:"not null;index"`
	AddonID       snowflake.ID `json:"addon_id" gorm:"not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
}

func (ApplicationAddon) TableName() string { return "application_addons" }

// Transition is one entry of an application's workflow journal.
type Transition struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	ApplicationID snowflake.ID `json:"application_id" gorm:"not null;index"`
	FromStatus    Status       `json:"from_status" gorm:"type:text;not null"`
	ToStatus      Status       `json:"to_status" gorm:"type:text;not null"`
	Event         Event        `json:"event" gorm:"type:text;not null"`
	Actor         string       `json:"actor" gorm:"type:text;not null"`
	Reason        *string      `json:"reason,omitempty" gorm:"type:text"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
}

func (Transition) TableName() string { return "application_transitions" }

// Policy is created exactly once per application on conversion.
type Policy struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	PolicyNumber      string          `json:"policy_number" gorm:"type:text;not null;uniqueIndex"`
	ApplicationID     snowflake.ID    `json:"application_id" gorm:"not null;uniqueIndex"`
	PlanID            snowflake.ID    `json:"plan_id" gorm:"not null"`
	InceptionDate     time.Time       `json:"inception_date" gorm:"not null"`
	BillingFrequency  string          `json:"billing_frequency" gorm:"type:text;not null"`
	AnnualPremium     decimal.Decimal `json:"annual_premium" gorm:"type:numeric(14,4);not null"`
	InstallmentAmount decimal.Decimal `json:"installment_amount" gorm:"type:numeric(14,4);not null"`
	PromoCodeID       *snowflake.ID   `json:"promo_code_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
}

func (Policy) TableName() string { return "policies" }
