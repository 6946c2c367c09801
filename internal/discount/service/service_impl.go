package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/medrate/internal/cache"
	"github.com/smallbiznis/medrate/internal/clock"
	"github.com/smallbiznis/medrate/internal/config"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
	"github.com/smallbiznis/medrate/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const rulesKey = "active"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Pricing *config.PricingConfigHolder
	Repo    discountdomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	pricing *config.PricingConfigHolder
	repo    discountdomain.Repository
	metrics *metrics.Metrics
	rules   cache.Cache[string, []discountdomain.DiscountRule]
}

func New(p Params) discountdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("discount.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		pricing: p.Pricing,
		repo:    p.Repo,
		metrics: p.Metrics,
		rules:   cache.NewTTLCache[string, []discountdomain.DiscountRule](),
	}
}

func (s *Service) CreateRule(ctx context.Context, req discountdomain.CreateRuleRequest) (*discountdomain.DiscountRule, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.Value.IsNegative() || req.EffectiveFrom.IsZero() {
		return nil, discountdomain.ErrInvalidRule
	}
	adjustment := req.AdjustmentType
	if adjustment == "" {
		adjustment = discountdomain.AdjustmentDiscount
	}
	if adjustment != discountdomain.AdjustmentDiscount && adjustment != discountdomain.AdjustmentLoading {
		return nil, discountdomain.ErrInvalidRule
	}
	if !validValueType(req.ValueType) {
		return nil, discountdomain.ErrInvalidRule
	}
	switch req.ApplicationMethod {
	case discountdomain.MethodAutomatic, discountdomain.MethodManual, discountdomain.MethodPromoCode:
	default:
		return nil, discountdomain.ErrInvalidRule
	}
	appliesTo := req.AppliesTo
	if appliesTo == "" {
		appliesTo = discountdomain.AppliesToTotalPremium
	}
	if !validAppliesTo(appliesTo) {
		return nil, discountdomain.ErrInvalidRule
	}
	triggers := datatypes.JSONMap{}
	for key, value := range req.TriggerRules {
		if _, unknown := EvaluateTriggers(map[string]any{key: value}, discountdomain.PolicyAttributes{}); unknown != "" {
			return nil, fmt.Errorf("%w: trigger %s", discountdomain.ErrInvalidRule, unknown)
		}
		triggers[key] = value
	}
	effectiveFrom := req.EffectiveFrom.UTC()
	var effectiveTo *time.Time
	if req.EffectiveTo != nil {
		to := req.EffectiveTo.UTC()
		if !to.After(effectiveFrom) {
			return nil, discountdomain.ErrInvalidRule
		}
		effectiveTo = &to
	}

	now := s.clock.Now()
	rule := &discountdomain.DiscountRule{
		ID:                s.genID.Generate(),
		Name:              name,
		AdjustmentType:    adjustment,
		ValueType:         req.ValueType,
		Value:             req.Value,
		ApplicationMethod: req.ApplicationMethod,
		AppliesTo:         appliesTo,
		SchemeID:          req.SchemeID,
		PlanID:            req.PlanID,
		TriggerRules:      triggers,
		Priority:          req.Priority,
		CanStack:          req.CanStack,
		MaxTotalDiscount:  req.MaxTotalDiscount,
		EffectiveFrom:     effectiveFrom,
		EffectiveTo:       effectiveTo,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertRule(ctx, s.db, rule); err != nil {
		return nil, err
	}
	s.rules.Purge()
	return rule, nil
}

func (s *Service) CreatePromoCode(ctx context.Context, req discountdomain.CreatePromoRequest) (*discountdomain.PromoCode, error) {
	code := discountdomain.NormalizeCode(req.Code)
	if code == "" || req.ValidFrom.IsZero() {
		return nil, discountdomain.ErrInvalidPromo
	}
	if req.UsageLimit != nil && *req.UsageLimit < 0 {
		return nil, discountdomain.ErrInvalidPromo
	}

	now := s.clock.Now()
	promo := &discountdomain.PromoCode{
		ID:             s.genID.Generate(),
		Code:           code,
		DiscountRuleID: req.DiscountRuleID,
		UsageLimit:     req.UsageLimit,
		ValidFrom:      req.ValidFrom.UTC(),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.ValidUntil != nil {
		until := req.ValidUntil.UTC()
		if until.Before(promo.ValidFrom) {
			return nil, discountdomain.ErrInvalidPromo
		}
		promo.ValidUntil = &until
	}

	if req.DiscountRuleID != nil {
		rule, err := s.repo.FindRuleByID(ctx, s.db, *req.DiscountRuleID)
		if err != nil {
			return nil, err
		}
		if rule == nil {
			return nil, discountdomain.ErrRuleNotFound
		}
	} else {
		if req.ValueType == nil || !validValueType(*req.ValueType) || !req.Value.Valid || req.Value.Decimal.IsNegative() {
			return nil, discountdomain.ErrInvalidPromo
		}
		valueType := string(*req.ValueType)
		appliesTo := discountdomain.AppliesToTotalPremium
		if req.AppliesTo != nil {
			appliesTo = *req.AppliesTo
		}
		if !validAppliesTo(appliesTo) {
			return nil, discountdomain.ErrInvalidPromo
		}
		target := string(appliesTo)
		promo.ValueType = &valueType
		promo.Value = req.Value
		promo.AppliesTo = &target
	}

	if err := s.repo.InsertPromo(ctx, s.db, promo); err != nil {
		return nil, err
	}
	return promo, nil
}

// ResolveDiscounts gathers eligible automatic rules, requested manual rules
// and the supplied promo code, then stacks them. It never consumes the promo.
func (s *Service) ResolveDiscounts(ctx context.Context, req discountdomain.ResolveRequest) (*discountdomain.Outcome, error) {
	attrs := req.Attributes
	if attrs.AsOf.IsZero() {
		attrs.AsOf = s.clock.Now()
	}

	rules, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]discountdomain.DiscountRule, len(rules))
	for _, rule := range rules {
		byID[rule.ID] = rule
	}

	candidates := make(map[snowflake.ID]discountdomain.Candidate)
	order := make([]snowflake.ID, 0)
	add := func(c discountdomain.Candidate) {
		if _, ok := candidates[c.RuleID]; !ok {
			order = append(order, c.RuleID)
		}
		candidates[c.RuleID] = c
	}

	for _, rule := range rules {
		if rule.ApplicationMethod != discountdomain.MethodAutomatic {
			continue
		}
		if s.eligible(rule, attrs) {
			add(discountdomain.CandidateFromRule(rule))
		}
	}

	for _, id := range req.ManualRuleIDs {
		rule, ok := byID[id]
		if !ok || rule.ApplicationMethod != discountdomain.MethodManual || !s.eligible(rule, attrs) {
			return nil, fmt.Errorf("%w: %s", discountdomain.ErrManualRuleNotEligible, id)
		}
		add(discountdomain.CandidateFromRule(rule))
	}

	var promo *discountdomain.PromoCode
	if strings.TrimSpace(req.PromoCode) != "" {
		promo, err = s.usablePromo(ctx, s.db, req.PromoCode, attrs.AsOf)
		if err != nil {
			return nil, err
		}
		promoID := promo.ID
		if promo.DiscountRuleID != nil {
			rule, ok := byID[*promo.DiscountRuleID]
			if !ok {
				return nil, discountdomain.ErrInvalidPromoCode
			}
			if !rule.EffectiveAt(attrs.AsOf) {
				return nil, discountdomain.ErrPromoExpired
			}
			if !s.eligible(rule, attrs) {
				return nil, discountdomain.ErrPromoNotApplicable
			}
			candidate := discountdomain.CandidateFromRule(rule)
			candidate.PromoCodeID = &promoID
			add(candidate)
		} else {
			add(promoCandidate(*promo))
		}
	}

	list := make([]discountdomain.Candidate, 0, len(order))
	for _, id := range order {
		list = append(list, candidates[id])
	}
	outcome := Stack(list, req.Bases)
	if promo != nil && outcome.PromoCodeID != nil {
		outcome.PromoRemaining = promo.Remaining()
	}

	s.log.Debug("discounts resolved",
		zap.Int("candidates", len(list)),
		zap.Int("applied", len(outcome.AppliedRuleIDs)),
		zap.String("total_discount", outcome.TotalDiscount.String()),
		zap.String("total_surcharge", outcome.TotalSurcharge.String()),
	)
	return &outcome, nil
}

// RedeemPromo is the only writer of usage_count. The increment is a single
// guarded UPDATE so concurrent redemptions can never pass usage_limit.
func (s *Service) RedeemPromo(ctx context.Context, tx *gorm.DB, code string) (*discountdomain.PromoCode, error) {
	db := tx
	if db == nil {
		db = s.db
	}
	now := s.clock.Now()

	promo, err := s.usablePromo(ctx, db, code, now)
	if err != nil {
		s.recordRedemption(ctx, err)
		return nil, err
	}

	affected, err := s.repo.Redeem(ctx, db, promo.ID, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		current, err := s.repo.FindPromoByCode(ctx, db, promo.Code)
		if err != nil {
			return nil, err
		}
		err = discountdomain.ErrPromoExhausted
		if current == nil || !current.IsActive {
			err = discountdomain.ErrInvalidPromoCode
		}
		s.recordRedemption(ctx, err)
		return nil, err
	}

	promo.UsageCount++
	promo.UpdatedAt = now
	s.recordRedemption(ctx, nil)
	s.log.Info("promo code redeemed",
		zap.String("promo_code_id", promo.ID.String()),
		zap.Int("usage_count", promo.UsageCount),
	)
	return promo, nil
}

func (s *Service) usablePromo(ctx context.Context, db *gorm.DB, code string, at time.Time) (*discountdomain.PromoCode, error) {
	promo, err := s.repo.FindPromoByCode(ctx, db, discountdomain.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	switch {
	case promo == nil || !promo.IsActive:
		return nil, discountdomain.ErrInvalidPromoCode
	case !promo.ValidAt(at):
		return nil, discountdomain.ErrPromoExpired
	case promo.Exhausted():
		return nil, discountdomain.ErrPromoExhausted
	}
	return promo, nil
}

func (s *Service) eligible(rule discountdomain.DiscountRule, attrs discountdomain.PolicyAttributes) bool {
	if !rule.EffectiveAt(attrs.AsOf) || !rule.InScope(attrs) {
		return false
	}
	ok, unknown := EvaluateTriggers(rule.TriggerRules, attrs)
	if unknown != "" {
		s.log.Warn("discount rule has unsupported trigger",
			zap.String("discount_rule_id", rule.ID.String()),
			zap.String("trigger", unknown),
		)
	}
	return ok
}

func (s *Service) activeRules(ctx context.Context) ([]discountdomain.DiscountRule, error) {
	if cached, ok := s.rules.Get(rulesKey); ok {
		return cached, nil
	}
	rules, err := s.repo.ListActiveRules(ctx, s.db)
	if err != nil {
		return nil, err
	}
	s.rules.Set(rulesKey, rules, s.pricing.Get().ReferenceCacheTTL)
	return rules, nil
}

func (s *Service) recordRedemption(ctx context.Context, err error) {
	outcome := "redeemed"
	switch err {
	case nil:
	case discountdomain.ErrPromoExhausted:
		outcome = "exhausted"
	case discountdomain.ErrPromoExpired:
		outcome = "expired"
	default:
		outcome = "invalid"
	}
	s.metrics.RecordPromoRedemption(ctx, outcome)
}

// promoCandidate prices a code that carries its own value. It is evaluated
// ahead of every rule and stacks freely.
func promoCandidate(promo discountdomain.PromoCode) discountdomain.Candidate {
	promoID := promo.ID
	candidate := discountdomain.Candidate{
		PromoCodeID:    &promoID,
		AdjustmentType: discountdomain.AdjustmentDiscount,
		ValueType:      discountdomain.ValuePercentage,
		Value:          promo.Value.Decimal,
		AppliesTo:      discountdomain.AppliesToTotalPremium,
		Priority:       0,
		CanStack:       true,
	}
	if promo.ValueType != nil {
		candidate.ValueType = discountdomain.ValueType(*promo.ValueType)
	}
	if promo.AppliesTo != nil {
		candidate.AppliesTo = discountdomain.AppliesTo(*promo.AppliesTo)
	}
	return candidate
}

func validValueType(v discountdomain.ValueType) bool {
	return v == discountdomain.ValuePercentage || v == discountdomain.ValueFixed
}

func validAppliesTo(v discountdomain.AppliesTo) bool {
	switch v {
	case discountdomain.AppliesToBasePremium, discountdomain.AppliesToTotalPremium, discountdomain.AppliesToAddon:
		return true
	default:
		return false
	}
}
