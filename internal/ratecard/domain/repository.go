package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, card *RateCard) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RateCard, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RateCard, error)
	FindActiveByPlan(ctx context.Context, db *gorm.DB, planID snowflake.ID) (*RateCard, error)
	ListEntries(ctx context.Context, db *gorm.DB, rateCardID snowflake.ID) ([]Entry, error)
	ListTiers(ctx context.Context, db *gorm.DB, rateCardID snowflake.ID) ([]Tier, error)
	DeleteEntries(ctx context.Context, db *gorm.DB, rateCardID snowflake.ID) error
	DeleteTiers(ctx context.Context, db *gorm.DB, rateCardID snowflake.ID) error
	InsertEntries(ctx context.Context, db *gorm.DB, entries []Entry) error
	InsertTiers(ctx context.Context, db *gorm.DB, tiers []Tier) error
}
