package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type LoadingType string

const (
	LoadingTypePercentage LoadingType = "percentage"
	LoadingTypeFixed      LoadingType = "fixed"
	LoadingTypeExclusion  LoadingType = "exclusion"
)

type DurationType string

const (
	DurationPermanent   DurationType = "permanent"
	DurationTimeLimited DurationType = "time_limited"
	DurationReviewable  DurationType = "reviewable"
)

// LoadingRule is one entry of the underwriting loading library.
type LoadingRule struct {
	ID                 snowflake.ID                      `json:"id" gorm:"primaryKey"`
	ConditionName      string                            `json:"condition_name" gorm:"type:text;not null"`
	ICDCode            *string                           `json:"icd_code,omitempty" gorm:"type:text;index"`
	RelatedICDCodes    datatypes.JSONSlice[string]       `json:"related_icd_codes" gorm:"type:jsonb;not null;default:'[]'"`
	LoadingType        LoadingType                       `json:"loading_type" gorm:"type:text;not null"`
	LoadingValue       decimal.NullDecimal               `json:"loading_value" gorm:"type:numeric(14,4)"`
	MinLoading         decimal.NullDecimal               `json:"min_loading" gorm:"type:numeric(14,4)"`
	MaxLoading         decimal.NullDecimal               `json:"max_loading" gorm:"type:numeric(14,4)"`
	DurationType       DurationType                      `json:"duration_type" gorm:"type:text;not null"`
	DurationMonths     *int                              `json:"duration_months,omitempty"`
	ExcludedBenefitIDs datatypes.JSONSlice[snowflake.ID] `json:"excluded_benefit_ids" gorm:"type:jsonb;not null;default:'[]'"`
	ExclusionTerms     string                            `json:"exclusion_terms" gorm:"type:text;not null;default:''"`
	ReplacesOthers     bool                              `json:"replaces_others" gorm:"not null;default:false"`
	IsActive           bool                              `json:"is_active" gorm:"not null"`
	CreatedAt          time.Time                         `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time                         `json:"updated_at" gorm:"not null"`
}

func (LoadingRule) TableName() string { return "loading_rules" }

// Condition is a pre-existing condition declared for a member.
type Condition struct {
	Name    string `json:"name"`
	ICDCode string `json:"icd_code,omitempty"`
}

// Result is the loading outcome for one member.
type Result struct {
	TotalLoading       decimal.Decimal `json:"total_loading"`
	AppliedRuleIDs     []snowflake.ID  `json:"applied_rule_ids"`
	ExcludedBenefitIDs []snowflake.ID  `json:"excluded_benefit_ids"`
	ReviewRuleIDs      []snowflake.ID  `json:"review_rule_ids"`
}
