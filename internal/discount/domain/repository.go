package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertRule(ctx context.Context, db *gorm.DB, rule *DiscountRule) error
	FindRuleByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*DiscountRule, error)
	ListActiveRules(ctx context.Context, db *gorm.DB) ([]DiscountRule, error)
	InsertPromo(ctx context.Context, db *gorm.DB, promo *PromoCode) error
	FindPromoByCode(ctx context.Context, db *gorm.DB, code string) (*PromoCode, error)
	// Redeem increments usage_count only while the code is active and
	// under its limit. It reports the number of rows changed.
	Redeem(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
}
