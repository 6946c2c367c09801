package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *LoadingRule) error
	ListActive(ctx context.Context, db *gorm.DB) ([]LoadingRule, error)
}
