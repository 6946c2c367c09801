package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/medrate/internal/clock"
	versioningdomain "github.com/smallbiznis/medrate/internal/versioning/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  versioningdomain.Repository
}

type Guard struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  versioningdomain.Repository
}

func New(p Params) versioningdomain.Guard {
	return &Guard{
		db:    p.DB,
		log:   p.Log.Named("versioning.guard"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (g *Guard) Activate(ctx context.Context, tx *gorm.DB, target versioningdomain.Target) (*versioningdomain.Version, error) {
	if tx == nil {
		return nil, versioningdomain.ErrTransactionRequired
	}
	if target.Kind == "" || strings.TrimSpace(target.Table) == "" || target.ID == 0 || len(target.Scope) == 0 {
		return nil, versioningdomain.ErrInvalidTarget
	}

	at := target.At
	if at.IsZero() {
		at = g.clock.Now()
	}
	at = at.UTC()
	scopeKey := versioningdomain.ScopeKey(target.Scope)

	activeIDs, err := g.repo.LockActiveSiblings(ctx, tx, target.Table, target.Scope)
	if err != nil {
		return nil, err
	}

	open, err := g.repo.FindOpenVersion(ctx, tx, target.Kind, scopeKey)
	if err != nil {
		return nil, err
	}
	if open != nil && open.ResourceID == target.ID && len(activeIDs) == 1 && activeIDs[0] == target.ID {
		return open, nil
	}
	if open != nil && at.Before(open.EffectiveFrom) {
		return nil, versioningdomain.ErrBackdatedActivation
	}

	deactivated, err := g.repo.DeactivateSiblings(ctx, tx, target.Table, target.Scope, target.ID, at)
	if err != nil {
		return nil, err
	}

	affected, err := g.repo.ActivateRow(ctx, tx, target.Table, target.ID, at)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, versioningdomain.ErrTargetNotFound
	}

	if err := g.repo.CloseOpenVersions(ctx, tx, target.Kind, scopeKey, at); err != nil {
		return nil, err
	}

	version := &versioningdomain.Version{
		ID:            g.genID.Generate(),
		Kind:          target.Kind,
		ScopeKey:      scopeKey,
		ResourceID:    target.ID,
		EffectiveFrom: at,
		CreatedAt:     g.clock.Now(),
	}
	if err := g.repo.InsertVersion(ctx, tx, version); err != nil {
		return nil, err
	}

	g.log.Info("resource activated",
		zap.String("kind", string(target.Kind)),
		zap.String("scope", scopeKey),
		zap.String("resource_id", target.ID.String()),
		zap.Int64("deactivated", deactivated),
	)
	return version, nil
}

func (g *Guard) EffectiveAt(ctx context.Context, kind versioningdomain.Kind, scopeKey string, at time.Time) (*versioningdomain.Version, error) {
	return g.repo.FindEffectiveAt(ctx, g.db, kind, scopeKey, at.UTC())
}

func (g *Guard) History(ctx context.Context, kind versioningdomain.Kind, scopeKey string) ([]versioningdomain.Version, error) {
	return g.repo.ListHistory(ctx, g.db, kind, scopeKey)
}
