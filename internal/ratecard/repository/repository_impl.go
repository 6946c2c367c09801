package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ratecarddomain "github.com/smallbiznis/medrate/internal/ratecard/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() ratecarddomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, card *ratecarddomain.RateCard) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO rate_cards (
			id, plan_id, name, currency, pricing_model, valid_from, valid_until, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		card.ID,
		card.PlanID,
		card.Name,
		card.Currency,
		card.PricingModel,
		card.ValidFrom,
		card.ValidUntil,
		card.IsActive,
		card.CreatedAt,
		card.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ratecarddomain.RateCard, error) {
	var card ratecarddomain.RateCard
	err := db.WithContext(ctx).Raw(
		`SELECT id, plan_id, name, currency, pricing_model, valid_from, valid_until, is_active, created_at, updated_at
		 FROM rate_cards
		 WHERE id = ?`,
		id,
	).Scan(&card).Error
	if err != nil {
		return nil, err
	}
	if card.ID == 0 {
		return nil, nil
	}
	return &card, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ratecarddomain.RateCard, error) {
	var card ratecarddomain.RateCard
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&card).Error
	if err != nil {
		return nil, err
	}
	if card.ID == 0 {
		return nil, nil
	}
	return &card, nil
}

func (r *repo) FindActiveByPlan(ctx context.Context, db *gorm.DB, planID snowflake.ID) (*ratecarddomain.RateCard, error) {
	var card ratecarddomain.RateCard
	err := db.WithContext(ctx).Raw(
		`SELECT id, plan_id, name, currency, pricing_model, valid_from, valid_until, is_active, created_at, updated_at
		 FROM rate_cards
		 WHERE plan_id = ? AND is_active = ?
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		planID, true,
	).Scan(&card).Error
	if err != nil {
		return nil, err
	}
	if card.ID == 0 {
		return nil, nil
	}
	return &card, nil
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, rateCardID snowflake.ID) ([]ratecarddomain.Entry, error) {
	var entries []ratecarddomain.Entry
	err := db.WithContext(ctx).
		Where("rate_card_id = ?", rateCardID).
		Order("position ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListTiers(ctx context.Context, db *gorm.DB, rateCardID snowflake.ID) ([]ratecarddomain.Tier, error) {
	var tiers []ratecarddomain.Tier
	err := db.WithContext(ctx).
		Where("rate_card_id = ?", rateCardID).
		Order("position ASC, id ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *repo) DeleteEntries(ctx context.Context, db *gorm.DB, rateCardID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM rate_card_entries WHERE rate_card_id = ?`, rateCardID).Error
}

func (r *repo) DeleteTiers(ctx context.Context, db *gorm.DB, rateCardID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM rate_card_tiers WHERE rate_card_id = ?`, rateCardID).Error
}

func (r *repo) InsertEntries(ctx context.Context, db *gorm.DB, entries []ratecarddomain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(entries, 200).Error
}

func (r *repo) InsertTiers(ctx context.Context, db *gorm.DB, tiers []ratecarddomain.Tier) error {
	if len(tiers) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(tiers, 200).Error
}
