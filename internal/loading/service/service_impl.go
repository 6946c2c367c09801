package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/medrate/internal/cache"
	"github.com/smallbiznis/medrate/internal/clock"
	"github.com/smallbiznis/medrate/internal/config"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const libraryKey = "active"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Pricing *config.PricingConfigHolder
	Repo    loadingdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	pricing *config.PricingConfigHolder
	repo    loadingdomain.Repository
	library cache.Cache[string, []loadingdomain.Rule]
}

func New(p Params) loadingdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("loading.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		pricing: p.Pricing,
		repo:    p.Repo,
		library: cache.NewTTLCache[string, []loadingdomain.Rule](),
	}
}

func (s *Service) CreateRule(ctx context.Context, req loadingdomain.CreateRuleRequest) (*loadingdomain.LoadingRule, error) {
	related := make(datatypes.JSONSlice[string], 0, len(req.RelatedICDCodes))
	for _, code := range req.RelatedICDCodes {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			related = append(related, code)
		}
	}
	benefits := make(datatypes.JSONSlice[snowflake.ID], 0, len(req.ExcludedBenefitIDs))
	benefits = append(benefits, req.ExcludedBenefitIDs...)

	now := s.clock.Now()
	rule := &loadingdomain.LoadingRule{
		ID:                 s.genID.Generate(),
		ConditionName:      strings.TrimSpace(req.ConditionName),
		ICDCode:            req.ICDCode,
		RelatedICDCodes:    related,
		LoadingType:        req.LoadingType,
		LoadingValue:       req.LoadingValue,
		MinLoading:         req.MinLoading,
		MaxLoading:         req.MaxLoading,
		DurationType:       req.DurationType,
		DurationMonths:     req.DurationMonths,
		ExcludedBenefitIDs: benefits,
		ExclusionTerms:     strings.TrimSpace(req.ExclusionTerms),
		ReplacesOthers:     req.ReplacesOthers,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if rule.DurationType == "" {
		rule.DurationType = loadingdomain.DurationPermanent
	}
	if _, err := loadingdomain.Decode(*rule); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, s.db, rule); err != nil {
		return nil, err
	}
	s.library.Purge()
	return rule, nil
}

// ActiveRules returns the decoded active library. A stored rule that no
// longer decodes fails the read rather than being skipped.
func (s *Service) ActiveRules(ctx context.Context) ([]loadingdomain.Rule, error) {
	if cached, ok := s.library.Get(libraryKey); ok {
		return cached, nil
	}

	rows, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	rules := make([]loadingdomain.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := loadingdomain.Decode(row)
		if err != nil {
			s.log.Error("invalid loading rule in library",
				zap.String("loading_rule_id", row.ID.String()),
				zap.String("loading_type", string(row.LoadingType)),
				zap.Error(err),
			)
			return nil, err
		}
		rules = append(rules, rule)
	}

	s.library.Set(libraryKey, rules, s.pricing.Get().ReferenceCacheTTL)
	return rules, nil
}

func (s *Service) ApplyForMember(ctx context.Context, req loadingdomain.MemberRequest) (*loadingdomain.Result, error) {
	if len(req.Conditions) == 0 {
		result := ApplyLoadings(nil, nil, Input{})
		return &result, nil
	}
	rules, err := s.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	result := ApplyLoadings(req.Conditions, rules, Input{
		BasePremium:   req.BasePremium,
		EffectiveDate: req.EffectiveDate,
		AsOf:          asOf,
	})
	return &result, nil
}
