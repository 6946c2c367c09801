package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertAddon(ctx context.Context, db *gorm.DB, addon *Addon) error
	FindAddonByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Addon, error)
	InsertRate(ctx context.Context, db *gorm.DB, rate *AddonRate) error
	InsertBands(ctx context.Context, db *gorm.DB, bands []AgeBand) error
	FindRateByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AddonRate, error)
	FindRateByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AddonRate, error)
	ListRates(ctx context.Context, db *gorm.DB, addonID snowflake.ID) ([]AddonRate, error)
	// ListActiveRates returns active rates for the add-on that are either
	// global or scoped to planID.
	ListActiveRates(ctx context.Context, db *gorm.DB, addonID, planID snowflake.ID) ([]AddonRate, error)
	ListBands(ctx context.Context, db *gorm.DB, rateIDs []snowflake.ID) ([]AgeBand, error)
}
