package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/medrate/internal/cache"
	"github.com/smallbiznis/medrate/internal/clock"
	"github.com/smallbiznis/medrate/internal/config"
	"github.com/smallbiznis/medrate/internal/observability/metrics"
	ratecarddomain "github.com/smallbiznis/medrate/internal/ratecard/domain"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
	ratingservice "github.com/smallbiznis/medrate/internal/rating/service"
	versioningdomain "github.com/smallbiznis/medrate/internal/versioning/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Pricing *config.PricingConfigHolder
	Repo    ratecarddomain.Repository
	Guard   versioningdomain.Guard
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	pricing   *config.PricingConfigHolder
	repo      ratecarddomain.Repository
	guard     versioningdomain.Guard
	metrics   *metrics.Metrics
	snapshots cache.Cache[snowflake.ID, ratecarddomain.Snapshot]
}

func New(p Params) ratecarddomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("ratecard.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		pricing:   p.Pricing,
		repo:      p.Repo,
		guard:     p.Guard,
		metrics:   p.Metrics,
		snapshots: cache.NewTTLCache[snowflake.ID, ratecarddomain.Snapshot](),
	}
}

func (s *Service) Create(ctx context.Context, req ratecarddomain.CreateRequest) (*ratecarddomain.RateCard, error) {
	if req.PlanID == 0 {
		return nil, ratecarddomain.ErrInvalidPlan
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ratecarddomain.ErrInvalidName
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, ratecarddomain.ErrInvalidCurrency
	}
	model := req.PricingModel
	if model == "" {
		model = ratecarddomain.PricingModelPerMember
	}
	if model != ratecarddomain.PricingModelPerMember && model != ratecarddomain.PricingModelTiered {
		return nil, ratecarddomain.ErrInvalidPricingModel
	}
	if req.ValidFrom.IsZero() {
		return nil, ratecarddomain.ErrInvalidValidity
	}
	validFrom := req.ValidFrom.UTC()
	var validUntil *time.Time
	if req.ValidUntil != nil {
		until := req.ValidUntil.UTC()
		if until.Before(validFrom) {
			return nil, ratecarddomain.ErrInvalidValidity
		}
		validUntil = &until
	}

	now := s.clock.Now()
	card := &ratecarddomain.RateCard{
		ID:           s.genID.Generate(),
		PlanID:       req.PlanID,
		Name:         name,
		Currency:     currency,
		PricingModel: model,
		ValidFrom:    validFrom,
		ValidUntil:   validUntil,
		IsActive:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*ratecarddomain.RateCard, error) {
	card, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ratecarddomain.ErrNotFound
	}
	return card, nil
}

// SyncEntries swaps the full entry and tier set in one transaction; on any
// failure the previous set stays in place.
func (s *Service) SyncEntries(ctx context.Context, req ratecarddomain.SyncRequest) (*ratecarddomain.Snapshot, error) {
	if err := validateEntries(req.Entries); err != nil {
		return nil, err
	}
	if err := validateTiers(req.Tiers); err != nil {
		return nil, err
	}

	var snapshot *ratecarddomain.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		card, err := s.repo.FindByIDForUpdate(ctx, tx, req.RateCardID)
		if err != nil {
			return err
		}
		if card == nil {
			return ratecarddomain.ErrNotFound
		}

		entries := make([]ratecarddomain.Entry, 0, len(req.Entries))
		for i, in := range req.Entries {
			entries = append(entries, ratecarddomain.Entry{
				ID:         s.genID.Generate(),
				RateCardID: card.ID,
				MinAge:     in.MinAge,
				MaxAge:     in.MaxAge,
				Gender:     normalizeGender(in.Gender),
				RegionCode: normalizeRegion(in.RegionCode),
				MemberType: strings.ToLower(strings.TrimSpace(in.MemberType)),
				Price:      in.Price,
				Position:   i,
			})
		}
		tiers := make([]ratecarddomain.Tier, 0, len(req.Tiers))
		for i, in := range req.Tiers {
			tiers = append(tiers, ratecarddomain.Tier{
				ID:                 s.genID.Generate(),
				RateCardID:         card.ID,
				TierName:           strings.TrimSpace(in.TierName),
				MinMembers:         in.MinMembers,
				MaxMembers:         in.MaxMembers,
				TierPremium:        in.TierPremium,
				ExtraMemberPremium: in.ExtraMemberPremium,
				Position:           i,
			})
		}

		if err := s.repo.DeleteEntries(ctx, tx, card.ID); err != nil {
			return err
		}
		if err := s.repo.DeleteTiers(ctx, tx, card.ID); err != nil {
			return err
		}
		if err := s.repo.InsertEntries(ctx, tx, entries); err != nil {
			return err
		}
		if err := s.repo.InsertTiers(ctx, tx, tiers); err != nil {
			return err
		}

		snapshot = &ratecarddomain.Snapshot{Card: *card, Entries: entries, Tiers: tiers}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.snapshots.Delete(req.RateCardID)
	s.log.Info("rate card synced",
		zap.String("rate_card_id", req.RateCardID.String()),
		zap.Int("entries", len(snapshot.Entries)),
		zap.Int("tiers", len(snapshot.Tiers)),
	)
	return snapshot, nil
}

func (s *Service) Activate(ctx context.Context, req ratecarddomain.ActivateRequest) (*ratecarddomain.RateCard, error) {
	at := s.clock.Now()
	if req.At != nil && !req.At.IsZero() {
		at = req.At.UTC()
	}

	var activated *ratecarddomain.RateCard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		card, err := s.repo.FindByIDForUpdate(ctx, tx, req.RateCardID)
		if err != nil {
			return err
		}
		if card == nil {
			return ratecarddomain.ErrNotFound
		}

		entries, err := s.repo.ListEntries(ctx, tx, card.ID)
		if err != nil {
			return err
		}
		tiers, err := s.repo.ListTiers(ctx, tx, card.ID)
		if err != nil {
			return err
		}
		switch card.PricingModel {
		case ratecarddomain.PricingModelTiered:
			if len(tiers) == 0 {
				return ratecarddomain.ErrEmptyRateCard
			}
		default:
			if len(entries) == 0 {
				return ratecarddomain.ErrEmptyRateCard
			}
		}

		if _, err := s.guard.Activate(ctx, tx, versioningdomain.Target{
			Kind:  versioningdomain.KindRateCard,
			Table: ratecarddomain.RateCard{}.TableName(),
			Scope: planScope(card.PlanID),
			ID:    card.ID,
			At:    at,
		}); err != nil {
			return err
		}

		card.IsActive = true
		card.UpdatedAt = at
		activated = card
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.snapshots.Purge()
	return activated, nil
}

func (s *Service) ResolveRate(ctx context.Context, req ratecarddomain.ResolveRateRequest) (*ratecarddomain.RateMatch, error) {
	if !req.Member.MemberType.Valid() || req.Member.DateOfBirth.IsZero() {
		return nil, ratecarddomain.ErrInvalidMemberProfile
	}
	snapshot, err := s.snapshot(ctx, req.RateCardID)
	if err != nil {
		return nil, err
	}
	if !snapshot.Card.CoversDate(req.InceptionDate) {
		return nil, ratecarddomain.ErrNotEffective
	}

	member := ratingdomain.Member{
		Age:        ratingdomain.AgeAt(req.Member.DateOfBirth, req.InceptionDate),
		Gender:     req.Member.Gender,
		RegionCode: strings.TrimSpace(req.Member.RegionCode),
		MemberType: req.Member.MemberType,
	}
	match, err := ratingservice.ResolveBand(snapshot.Bands(), member)
	if err != nil {
		s.recordFailure(ctx, err)
		s.log.Warn("rate resolution failed",
			zap.String("rate_card_id", req.RateCardID.String()),
			zap.Int("age", member.Age),
			zap.String("member_type", string(member.MemberType)),
			zap.Error(err),
		)
		return nil, err
	}

	entryID := match.SourceID
	return &ratecarddomain.RateMatch{
		RateCardID: snapshot.Card.ID,
		Price:      match.Price,
		EntryID:    &entryID,
		Age:        member.Age,
	}, nil
}

func (s *Service) ResolveTier(ctx context.Context, req ratecarddomain.ResolveTierRequest) (*ratecarddomain.RateMatch, error) {
	snapshot, err := s.snapshot(ctx, req.RateCardID)
	if err != nil {
		return nil, err
	}
	if !req.InceptionDate.IsZero() && !snapshot.Card.CoversDate(req.InceptionDate) {
		return nil, ratecarddomain.ErrNotEffective
	}

	match, err := ratingservice.ResolveTier(snapshot.RatingTiers(), req.MemberCount)
	if err != nil {
		s.recordFailure(ctx, err)
		s.log.Warn("tier resolution failed",
			zap.String("rate_card_id", req.RateCardID.String()),
			zap.Int("member_count", req.MemberCount),
			zap.Error(err),
		)
		return nil, err
	}

	tierID := match.SourceID
	return &ratecarddomain.RateMatch{
		RateCardID: snapshot.Card.ID,
		Price:      match.Price,
		TierID:     &tierID,
	}, nil
}

// FindEffectiveForPlan answers from the activation history so a quote dated
// before a newer activation still prices against the card live at that date.
func (s *Service) FindEffectiveForPlan(ctx context.Context, planID snowflake.ID, at time.Time) (*ratecarddomain.RateCard, error) {
	version, err := s.guard.EffectiveAt(ctx, versioningdomain.KindRateCard, versioningdomain.ScopeKey(planScope(planID)), at)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, ratecarddomain.ErrNoEffectiveRateCard
	}

	card, err := s.repo.FindByID(ctx, s.db, version.ResourceID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ratecarddomain.ErrNoEffectiveRateCard
	}
	return card, nil
}

func (s *Service) snapshot(ctx context.Context, id snowflake.ID) (ratecarddomain.Snapshot, error) {
	if cached, ok := s.snapshots.Get(id); ok {
		return cached, nil
	}

	card, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return ratecarddomain.Snapshot{}, err
	}
	if card == nil {
		return ratecarddomain.Snapshot{}, ratecarddomain.ErrNotFound
	}
	entries, err := s.repo.ListEntries(ctx, s.db, id)
	if err != nil {
		return ratecarddomain.Snapshot{}, err
	}
	tiers, err := s.repo.ListTiers(ctx, s.db, id)
	if err != nil {
		return ratecarddomain.Snapshot{}, err
	}

	snapshot := ratecarddomain.Snapshot{Card: *card, Entries: entries, Tiers: tiers}
	s.snapshots.Set(id, snapshot, s.pricing.Get().ReferenceCacheTTL)
	return snapshot, nil
}

func (s *Service) recordFailure(ctx context.Context, err error) {
	reason := "error"
	switch {
	case errors.Is(err, ratingdomain.ErrNoRateMatch):
		reason = "no_rate_match"
	case errors.Is(err, ratingdomain.ErrAmbiguousRateMatch):
		reason = "ambiguous_rate_match"
	}
	s.metrics.RecordResolveFailure(ctx, "rate_card", reason)
}

func planScope(planID snowflake.ID) map[string]any {
	return map[string]any{"plan_id": planID}
}
