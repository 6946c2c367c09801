package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

type MemberType string

const (
	MemberTypePrincipal MemberType = "principal"
	MemberTypeSpouse    MemberType = "spouse"
	MemberTypeChild     MemberType = "child"
	MemberTypeParent    MemberType = "parent"
)

func (t MemberType) Valid() bool {
	switch t {
	case MemberTypePrincipal, MemberTypeSpouse, MemberTypeChild, MemberTypeParent:
		return true
	default:
		return false
	}
}

// ParseMemberType accepts any casing.
func ParseMemberType(value string) (MemberType, bool) {
	t := MemberType(strings.ToLower(strings.TrimSpace(value)))
	return t, t.Valid()
}

// Member is the rating-relevant snapshot of an insured person.
type Member struct {
	Age        int
	Gender     Gender
	RegionCode string
	MemberType MemberType
}

// Band is one cell of an age/gender/region price matrix. Nil Gender or
// RegionCode, or an empty MemberType, means the band applies to any value.
type Band struct {
	ID         snowflake.ID
	MinAge     int
	MaxAge     int
	Gender     *Gender
	RegionCode *string
	MemberType MemberType
	Price      decimal.Decimal
}

// Tier prices a roster by its size. A nil MaxMembers is open-ended.
type Tier struct {
	ID                 snowflake.ID
	Name               string
	MinMembers         int
	MaxMembers         *int
	Premium            decimal.Decimal
	ExtraMemberPremium decimal.NullDecimal
}

// Match is a resolved price with the row that produced it.
type Match struct {
	Price    decimal.Decimal `json:"price"`
	SourceID snowflake.ID    `json:"source_id"`
}

// AgeAt returns completed years between dob and at.
func AgeAt(dob, at time.Time) int {
	dob = dob.UTC()
	at = at.UTC()
	if at.Before(dob) {
		return 0
	}
	age := at.Year() - dob.Year()
	if at.Month() < dob.Month() || (at.Month() == dob.Month() && at.Day() < dob.Day()) {
		age--
	}
	return age
}
