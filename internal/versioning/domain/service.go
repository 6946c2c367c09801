package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Guard owns the "exactly one active row per scope" invariant for
// versioned pricing resources.
type Guard interface {
	// Activate runs inside the caller's transaction so the sibling
	// deactivation commits or rolls back with the caller's own writes.
	Activate(ctx context.Context, tx *gorm.DB, target Target) (*Version, error)
	EffectiveAt(ctx context.Context, kind Kind, scopeKey string, at time.Time) (*Version, error)
	History(ctx context.Context, kind Kind, scopeKey string) ([]Version, error)
}

var (
	ErrTransactionRequired = errors.New("transaction_required")
	ErrInvalidTarget       = errors.New("invalid_version_target")
	ErrTargetNotFound      = errors.New("version_target_not_found")
	ErrBackdatedActivation = errors.New("backdated_activation")
)
