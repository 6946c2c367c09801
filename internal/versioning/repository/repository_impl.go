package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	versioningdomain "github.com/smallbiznis/medrate/internal/versioning/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() versioningdomain.Repository {
	return &repo{}
}

func (r *repo) LockActiveSiblings(ctx context.Context, db *gorm.DB, table string, scope map[string]any) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Table(table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(scope).
		Where("is_active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) DeactivateSiblings(ctx context.Context, db *gorm.DB, table string, scope map[string]any, keepID snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Table(table).
		Where(scope).
		Where("is_active = ? AND id <> ?", true, keepID).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repo) ActivateRow(ctx context.Context, db *gorm.DB, table string, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Table(table).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":  true,
			"updated_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repo) FindOpenVersion(ctx context.Context, db *gorm.DB, kind versioningdomain.Kind, scopeKey string) (*versioningdomain.Version, error) {
	var version versioningdomain.Version
	err := db.WithContext(ctx).Raw(
		`SELECT id, kind, scope_key, resource_id, effective_from, effective_to, created_at
		 FROM resource_versions
		 WHERE kind = ? AND scope_key = ? AND effective_to IS NULL
		 ORDER BY effective_from DESC
		 LIMIT 1`,
		kind, scopeKey,
	).Scan(&version).Error
	if err != nil {
		return nil, err
	}
	if version.ID == 0 {
		return nil, nil
	}
	return &version, nil
}

func (r *repo) CloseOpenVersions(ctx context.Context, db *gorm.DB, kind versioningdomain.Kind, scopeKey string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE resource_versions SET effective_to = ?
		 WHERE kind = ? AND scope_key = ? AND effective_to IS NULL`,
		at, kind, scopeKey,
	).Error
}

func (r *repo) InsertVersion(ctx context.Context, db *gorm.DB, version *versioningdomain.Version) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO resource_versions (id, kind, scope_key, resource_id, effective_from, effective_to, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		version.ID,
		version.Kind,
		version.ScopeKey,
		version.ResourceID,
		version.EffectiveFrom,
		version.EffectiveTo,
		version.CreatedAt,
	).Error
}

func (r *repo) FindEffectiveAt(ctx context.Context, db *gorm.DB, kind versioningdomain.Kind, scopeKey string, at time.Time) (*versioningdomain.Version, error) {
	var version versioningdomain.Version
	err := db.WithContext(ctx).Raw(
		`SELECT id, kind, scope_key, resource_id, effective_from, effective_to, created_at
		 FROM resource_versions
		 WHERE kind = ? AND scope_key = ?
		   AND effective_from <= ?
		   AND (effective_to IS NULL OR effective_to > ?)
		 ORDER BY effective_from DESC
		 LIMIT 1`,
		kind, scopeKey, at, at,
	).Scan(&version).Error
	if err != nil {
		return nil, err
	}
	if version.ID == 0 {
		return nil, nil
	}
	return &version, nil
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, kind versioningdomain.Kind, scopeKey string) ([]versioningdomain.Version, error) {
	var versions []versioningdomain.Version
	err := db.WithContext(ctx).
		Where("kind = ? AND scope_key = ?", kind, scopeKey).
		Order("effective_from ASC, id ASC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}
