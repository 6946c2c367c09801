package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Kind string

const (
	KindRateCard  Kind = "rate_card"
	KindAddonRate Kind = "addon_rate"
)

// Version is one effective-dated activation of a resource inside its scope.
// EffectiveTo is nil while the version is current.
type Version struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	Kind          Kind         `json:"kind" gorm:"type:text;not null;index:idx_resource_versions_scope,priority:1"`
	ScopeKey      string       `json:"scope_key" gorm:"type:text;not null;index:idx_resource_versions_scope,priority:2"`
	ResourceID    snowflake.ID `json:"resource_id" gorm:"not null;index"`
	EffectiveFrom time.Time    `json:"effective_from" gorm:"not null"`
	EffectiveTo   *time.Time   `json:"effective_to,omitempty"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
}

func (Version) TableName() string { return "resource_versions" }

// Target names the row to activate and the sibling set it competes with.
// Scope columns are matched by equality; a nil value matches NULL.
type Target struct {
	Kind  Kind
	Table string
	Scope map[string]any
	ID    snowflake.ID
	At    time.Time
}

// ScopeKey renders a scope as a stable "col=value" list. Nil values render
// as "*".
func ScopeKey(scope map[string]any) string {
	keys := make([]string, 0, len(scope))
	for k := range scope {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := scope[k]
		if v == nil {
			parts = append(parts, k+"=*")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}
