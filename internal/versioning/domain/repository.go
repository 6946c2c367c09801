package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	LockActiveSiblings(ctx context.Context, db *gorm.DB, table string, scope map[string]any) ([]snowflake.ID, error)
	DeactivateSiblings(ctx context.Context, db *gorm.DB, table string, scope map[string]any, keepID snowflake.ID, at time.Time) (int64, error)
	ActivateRow(ctx context.Context, db *gorm.DB, table string, id snowflake.ID, at time.Time) (int64, error)
	FindOpenVersion(ctx context.Context, db *gorm.DB, kind Kind, scopeKey string) (*Version, error)
	CloseOpenVersions(ctx context.Context, db *gorm.DB, kind Kind, scopeKey string, at time.Time) error
	InsertVersion(ctx context.Context, db *gorm.DB, version *Version) error
	FindEffectiveAt(ctx context.Context, db *gorm.DB, kind Kind, scopeKey string, at time.Time) (*Version, error)
	ListHistory(ctx context.Context, db *gorm.DB, kind Kind, scopeKey string) ([]Version, error)
}
