package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	addondomain "github.com/smallbiznis/medrate/internal/addon/domain"
	"github.com/smallbiznis/medrate/internal/cache"
	"github.com/smallbiznis/medrate/internal/clock"
	"github.com/smallbiznis/medrate/internal/config"
	"github.com/smallbiznis/medrate/internal/observability/metrics"
	ratingdomain "github.com/smallbiznis/medrate/internal/rating/domain"
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
	Repo    addondomain.Repository
	Guard   versioningdomain.Guard
	Metrics *metrics.Metrics `optional:"true"`
}

type rateKey struct {
	addonID snowflake.ID
	planID  snowflake.ID
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	pricing *config.PricingConfigHolder
	repo    addondomain.Repository
	guard   versioningdomain.Guard
	metrics *metrics.Metrics
	rates   cache.Cache[rateKey, []addondomain.RateSnapshot]
}

func New(p Params) addondomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("addon.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		pricing: p.Pricing,
		repo:    p.Repo,
		guard:   p.Guard,
		metrics: p.Metrics,
		rates:   cache.NewTTLCache[rateKey, []addondomain.RateSnapshot](),
	}
}

func (s *Service) CreateAddon(ctx context.Context, req addondomain.CreateAddonRequest) (*addondomain.Addon, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	name := strings.TrimSpace(req.Name)
	if code == "" || name == "" {
		return nil, addondomain.ErrInvalidAddon
	}

	now := s.clock.Now()
	addon := &addondomain.Addon{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertAddon(ctx, s.db, addon); err != nil {
		return nil, err
	}
	return addon, nil
}

// CreateRate stores an inactive rate. The rate must decode to a supported
// pricing configuration before it is written.
func (s *Service) CreateRate(ctx context.Context, req addondomain.CreateRateRequest) (*addondomain.RateSnapshot, error) {
	if req.EffectiveFrom.IsZero() {
		return nil, addondomain.ErrInvalidRate
	}
	effectiveFrom := req.EffectiveFrom.UTC()
	var effectiveTo *time.Time
	if req.EffectiveTo != nil {
		to := req.EffectiveTo.UTC()
		if !to.After(effectiveFrom) {
			return nil, addondomain.ErrInvalidRate
		}
		effectiveTo = &to
	}

	now := s.clock.Now()
	rate := addondomain.AddonRate{
		ID:              s.genID.Generate(),
		AddonID:         req.AddonID,
		PlanID:          req.PlanID,
		PricingType:     req.PricingType,
		Amount:          req.Amount,
		Percentage:      req.Percentage,
		PercentageBasis: req.PercentageBasis,
		EffectiveFrom:   effectiveFrom,
		EffectiveTo:     effectiveTo,
		IsActive:        false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	bands := make([]addondomain.AgeBand, 0, len(req.Bands))
	for _, in := range req.Bands {
		if in.MinAge < 0 || in.MaxAge < in.MinAge || in.Price.IsNegative() {
			return nil, addondomain.ErrInvalidRate
		}
		if in.MemberType != nil {
			if _, ok := ratingdomain.ParseMemberType(*in.MemberType); !ok {
				return nil, addondomain.ErrInvalidRate
			}
			normalized := strings.ToLower(strings.TrimSpace(*in.MemberType))
			in.MemberType = &normalized
		}
		bands = append(bands, addondomain.AgeBand{
			ID:          s.genID.Generate(),
			AddonRateID: rate.ID,
			MinAge:      in.MinAge,
			MaxAge:      in.MaxAge,
			Gender:      upperOptional(in.Gender),
			RegionCode:  upperOptional(in.RegionCode),
			MemberType:  in.MemberType,
			Price:       in.Price,
		})
	}
	snapshot := addondomain.RateSnapshot{Rate: rate, Bands: bands}
	if _, err := addondomain.DecodePricing(snapshot); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		addon, err := s.repo.FindAddonByID(ctx, tx, req.AddonID)
		if err != nil {
			return err
		}
		if addon == nil {
			return addondomain.ErrAddonNotFound
		}
		if err := s.repo.InsertRate(ctx, tx, &snapshot.Rate); err != nil {
			return err
		}
		return s.repo.InsertBands(ctx, tx, snapshot.Bands)
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *Service) ActivateRate(ctx context.Context, req addondomain.ActivateRateRequest) (*addondomain.AddonRate, error) {
	at := s.clock.Now()
	if req.At != nil && !req.At.IsZero() {
		at = req.At.UTC()
	}

	var activated *addondomain.AddonRate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rate, err := s.repo.FindRateByIDForUpdate(ctx, tx, req.RateID)
		if err != nil {
			return err
		}
		if rate == nil {
			return addondomain.ErrRateNotFound
		}

		if _, err := s.guard.Activate(ctx, tx, versioningdomain.Target{
			Kind:  versioningdomain.KindAddonRate,
			Table: addondomain.AddonRate{}.TableName(),
			Scope: rateScope(*rate),
			ID:    rate.ID,
			At:    at,
		}); err != nil {
			return err
		}

		rate.IsActive = true
		rate.UpdatedAt = at
		activated = rate
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.rates.Purge()
	return activated, nil
}

func (s *Service) ListRates(ctx context.Context, addonID snowflake.ID) ([]addondomain.AddonRate, error) {
	return s.repo.ListRates(ctx, s.db, addonID)
}

func (s *Service) ResolveAddonPrice(ctx context.Context, req addondomain.ResolveRequest) (*addondomain.PriceQuote, error) {
	memberCount := req.MemberCount
	if memberCount <= 0 {
		memberCount = len(req.Members)
	}
	if memberCount <= 0 {
		return nil, addondomain.ErrInvalidMemberCount
	}
	at := req.InceptionDate
	if at.IsZero() {
		at = s.clock.Now()
	}

	snapshots, err := s.activeRates(ctx, req.AddonID, req.PlanID)
	if err != nil {
		return nil, err
	}
	rates := make([]addondomain.AddonRate, 0, len(snapshots))
	for _, snap := range snapshots {
		rates = append(rates, snap.Rate)
	}

	selected, err := SelectRate(rates, req.PlanID, at)
	if err != nil {
		return nil, s.fail(ctx, req, err)
	}
	var snapshot addondomain.RateSnapshot
	for _, snap := range snapshots {
		if snap.Rate.ID == selected.ID {
			snapshot = snap
			break
		}
	}

	pricing, err := addondomain.DecodePricing(snapshot)
	if err != nil {
		return nil, s.fail(ctx, req, err)
	}
	price, err := Price(pricing, PriceInput{
		MemberCount:  memberCount,
		BasePremium:  req.BasePremium,
		TotalPremium: req.TotalPremium,
		Members:      req.Members,
	})
	if err != nil {
		return nil, s.fail(ctx, req, err)
	}

	return &addondomain.PriceQuote{
		AddonID:     req.AddonID,
		RateID:      selected.ID,
		PricingType: pricing.Type(),
		Price:       price,
	}, nil
}

func (s *Service) activeRates(ctx context.Context, addonID, planID snowflake.ID) ([]addondomain.RateSnapshot, error) {
	key := rateKey{addonID: addonID, planID: planID}
	if cached, ok := s.rates.Get(key); ok {
		return cached, nil
	}

	rates, err := s.repo.ListActiveRates(ctx, s.db, addonID, planID)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(rates))
	for _, rate := range rates {
		ids = append(ids, rate.ID)
	}
	bands, err := s.repo.ListBands(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byRate := make(map[snowflake.ID][]addondomain.AgeBand, len(rates))
	for _, band := range bands {
		byRate[band.AddonRateID] = append(byRate[band.AddonRateID], band)
	}

	snapshots := make([]addondomain.RateSnapshot, 0, len(rates))
	for _, rate := range rates {
		snapshots = append(snapshots, addondomain.RateSnapshot{Rate: rate, Bands: byRate[rate.ID]})
	}
	s.rates.Set(key, snapshots, s.pricing.Get().ReferenceCacheTTL)
	return snapshots, nil
}

func (s *Service) fail(ctx context.Context, req addondomain.ResolveRequest, err error) error {
	reason := "error"
	switch {
	case errors.Is(err, addondomain.ErrNoActiveRate):
		reason = "no_active_rate"
	case errors.Is(err, addondomain.ErrUnsupportedPricingConfiguration):
		reason = "unsupported_pricing_configuration"
	case errors.Is(err, addondomain.ErrAmbiguousAddonRate):
		reason = "ambiguous_addon_rate"
	case errors.Is(err, ratingdomain.ErrNoRateMatch):
		reason = "no_rate_match"
	}
	s.metrics.RecordResolveFailure(ctx, "addon", reason)
	s.log.Warn("addon price resolution failed",
		zap.String("addon_id", req.AddonID.String()),
		zap.String("plan_id", req.PlanID.String()),
		zap.Error(err),
	)
	return err
}

// rateScope keys activation by (addon, plan). A global rate competes only
// with other global rates of the same add-on.
func rateScope(rate addondomain.AddonRate) map[string]any {
	scope := map[string]any{"addon_id": rate.AddonID}
	if rate.PlanID != nil {
		scope["plan_id"] = *rate.PlanID
	} else {
		scope["plan_id"] = nil
	}
	return scope
}

func upperOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.ToUpper(strings.TrimSpace(*value))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
