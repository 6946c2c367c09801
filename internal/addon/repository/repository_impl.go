package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	addondomain "github.com/smallbiznis/medrate/internal/addon/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() addondomain.Repository {
	return &repo{}
}

func (r *repo) InsertAddon(ctx context.Context, db *gorm.DB, addon *addondomain.Addon) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO addons (id, code, name, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		addon.ID,
		addon.Code,
		addon.Name,
		addon.IsActive,
		addon.CreatedAt,
		addon.UpdatedAt,
	).Error
}

func (r *repo) FindAddonByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*addondomain.Addon, error) {
	var addon addondomain.Addon
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, is_active, created_at, updated_at
		 FROM addons
		 WHERE id = ?`,
		id,
	).Scan(&addon).Error
	if err != nil {
		return nil, err
	}
	if addon.ID == 0 {
		return nil, nil
	}
	return &addon, nil
}

func (r *repo) InsertRate(ctx context.Context, db *gorm.DB, rate *addondomain.AddonRate) error {
	return db.WithContext(ctx).Create(rate).Error
}

func (r *repo) InsertBands(ctx context.Context, db *gorm.DB, bands []addondomain.AgeBand) error {
	if len(bands) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(bands, 200).Error
}

func (r *repo) FindRateByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*addondomain.AddonRate, error) {
	var rate addondomain.AddonRate
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repo) FindRateByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*addondomain.AddonRate, error) {
	var rate addondomain.AddonRate
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repo) ListRates(ctx context.Context, db *gorm.DB, addonID snowflake.ID) ([]addondomain.AddonRate, error) {
	var rates []addondomain.AddonRate
	err := db.WithContext(ctx).
		Where("addon_id = ?", addonID).
		Order("effective_from DESC, id DESC").
		Find(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repo) ListActiveRates(ctx context.Context, db *gorm.DB, addonID, planID snowflake.ID) ([]addondomain.AddonRate, error) {
	var rates []addondomain.AddonRate
	err := db.WithContext(ctx).
		Where("addon_id = ? AND is_active = ?", addonID, true).
		Where("(plan_id IS NULL OR plan_id = ?)", planID).
		Order("effective_from DESC, id DESC").
		Find(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repo) ListBands(ctx context.Context, db *gorm.DB, rateIDs []snowflake.ID) ([]addondomain.AgeBand, error) {
	if len(rateIDs) == 0 {
		return nil, nil
	}
	var bands []addondomain.AgeBand
	err := db.WithContext(ctx).
		Where("addon_rate_id IN ?", rateIDs).
		Order("min_age ASC, id ASC").
		Find(&bands).Error
	if err != nil {
		return nil, err
	}
	return bands, nil
}
