package repository

import (
	"context"

	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() loadingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *loadingdomain.LoadingRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]loadingdomain.LoadingRule, error) {
	var rules []loadingdomain.LoadingRule
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
