package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() discountdomain.Repository {
	return &repo{}
}

func (r *repo) InsertRule(ctx context.Context, db *gorm.DB, rule *discountdomain.DiscountRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) FindRuleByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*discountdomain.DiscountRule, error) {
	var rule discountdomain.DiscountRule
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, nil
	}
	return &rule, nil
}

func (r *repo) ListActiveRules(ctx context.Context, db *gorm.DB) ([]discountdomain.DiscountRule, error) {
	var rules []discountdomain.DiscountRule
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority ASC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) InsertPromo(ctx context.Context, db *gorm.DB, promo *discountdomain.PromoCode) error {
	return db.WithContext(ctx).Create(promo).Error
}

func (r *repo) FindPromoByCode(ctx context.Context, db *gorm.DB, code string) (*discountdomain.PromoCode, error) {
	var promo discountdomain.PromoCode
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, discount_rule_id, value_type, value, applies_to, usage_count, usage_limit,
			valid_from, valid_until, is_active, created_at, updated_at
		 FROM promo_codes
		 WHERE code = ?`,
		code,
	).Scan(&promo).Error
	if err != nil {
		return nil, err
	}
	if promo.ID == 0 {
		return nil, nil
	}
	return &promo, nil
}

func (r *repo) Redeem(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE promo_codes
		 SET usage_count = usage_count + 1, updated_at = ?
		 WHERE id = ? AND is_active = ? AND (usage_limit IS NULL OR usage_count < usage_limit)`,
		at, id, true,
	)
	return result.RowsAffected, result.Error
}
