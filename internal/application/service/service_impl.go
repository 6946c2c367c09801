package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	applicationdomain "github.com/smallbiznis/medrate/internal/application/domain"
	"github.com/smallbiznis/medrate/internal/clock"
	"github.com/smallbiznis/medrate/internal/config"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	"github.com/smallbiznis/medrate/internal/lock"
	"github.com/smallbiznis/medrate/internal/observability/metrics"
	premiumdomain "github.com/smallbiznis/medrate/internal/premium/domain"
	"github.com/smallbiznis/medrate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	systemActor     = "system"
	convertLockTTL  = 30 * time.Second
	convertLockBase = "medrate:application:convert:"
)

var errAlreadyConverted = errors.New("already_converted")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Pricing   *config.PricingConfigHolder
	Repo      applicationdomain.Repository
	Premium   premiumdomain.Service
	Discounts discountdomain.Service
	Locker    *lock.Locker     `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	pricing   *config.PricingConfigHolder
	repo      applicationdomain.Repository
	premium   premiumdomain.Service
	discounts discountdomain.Service
	locker    *lock.Locker
	metrics   *metrics.Metrics
}

func New(p Params) applicationdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("application.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		pricing:   p.Pricing,
		repo:      p.Repo,
		premium:   p.Premium,
		discounts: p.Discounts,
		locker:    p.Locker,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req applicationdomain.CreateRequest) (*applicationdomain.Application, error) {
	if req.PlanID == 0 || req.InceptionDate.IsZero() || req.GroupSize < 0 {
		return nil, applicationdomain.ErrInvalidApplication
	}
	inception := req.InceptionDate.UTC()

	frequency := strings.TrimSpace(req.BillingFrequency)
	if frequency == "" {
		frequency = s.pricing.Get().DefaultBillingFrequency
	}
	parsed, ok := premiumdomain.ParseBillingFrequency(frequency)
	if !ok {
		return nil, premiumdomain.ErrInvalidBillingFrequency
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.pricing.Get().QuoteTTL)
	app := &applicationdomain.Application{
		ID:                    s.genID.Generate(),
		PlanID:                req.PlanID,
		SchemeID:              req.SchemeID,
		RateCardID:            req.RateCardID,
		Status:                applicationdomain.StatusDraft,
		InceptionDate:         inception,
		BillingFrequency:      string(parsed),
		GroupSize:             req.GroupSize,
		ManualDiscountRuleIDs: datatypes.NewJSONSlice(nonNilIDs(req.ManualDiscountRuleIDs)),
		ExpiresAt:             &expiresAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if code := strings.TrimSpace(req.PromoCode); code != "" {
		normalized := discountdomain.NormalizeCode(code)
		app.PromoCode = &normalized
	}

	members := make([]applicationdomain.ApplicationMember, 0, len(req.Members))
	for _, in := range req.Members {
		member, err := s.newMember(app.ID, inception, in, now)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	addons := make([]applicationdomain.ApplicationAddon, 0, len(req.AddonIDs))
	seen := make(map[snowflake.ID]struct{}, len(req.AddonIDs))
	for _, addonID := range req.AddonIDs {
		if _, dup := seen[addonID]; dup || addonID == 0 {
			continue
		}
		seen[addonID] = struct{}{}
		addons = append(addons, applicationdomain.ApplicationAddon{
			ID:            s.genID.Generate(),
			ApplicationID: app.ID,
			AddonID:       addonID,
			CreatedAt:     now,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, app); err != nil {
			return err
		}
		if err := s.repo.InsertMembers(ctx, tx, members); err != nil {
			return err
		}
		return s.repo.InsertAddons(ctx, tx, addons)
	})
	if err != nil {
		return nil, err
	}

	app.Members = members
	app.Addons = addons
	s.log.Info("application created",
		zap.String("application_id", app.ID.String()),
		zap.String("plan_id", app.PlanID.String()),
		zap.Int("members", len(members)),
	)
	return app, nil
}

func (s *Service) newMember(applicationID snowflake.ID, inception time.Time, in applicationdomain.MemberRequest, now time.Time) (applicationdomain.ApplicationMember, error) {
	if !in.MemberType.Valid() || !in.Gender.Valid() {
		return applicationdomain.ApplicationMember{}, applicationdomain.ErrInvalidMember
	}
	if in.DateOfBirth.IsZero() || in.DateOfBirth.After(inception) {
		return applicationdomain.ApplicationMember{}, applicationdomain.ErrInvalidMember
	}
	var effective *time.Time
	if in.EffectiveDate != nil && !in.EffectiveDate.IsZero() {
		value := in.EffectiveDate.UTC()
		effective = &value
	}
	conditions := in.Conditions
	if conditions == nil {
		conditions = []loadingdomain.Condition{}
	}
	return applicationdomain.ApplicationMember{
		ID:                 s.genID.Generate(),
		ApplicationID:      applicationID,
		MemberType:         in.MemberType,
		DateOfBirth:        in.DateOfBirth.UTC(),
		Gender:             in.Gender,
		RegionCode:         strings.ToUpper(strings.TrimSpace(in.RegionCode)),
		Conditions:         datatypes.NewJSONSlice(conditions),
		UnderwritingStatus: applicationdomain.MemberPending,
		EffectiveDate:      effective,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*applicationdomain.Application, error) {
	return s.load(ctx, s.db, id)
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id snowflake.ID) (*applicationdomain.Application, error) {
	app, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, applicationdomain.ErrNotFound
	}
	if app.Members, err = s.repo.ListMembers(ctx, db, id); err != nil {
		return nil, err
	}
	if app.Addons, err = s.repo.ListAddons(ctx, db, id); err != nil {
		return nil, err
	}
	return app, nil
}

// Delete removes a draft application together with its members, add-ons
// and journal.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		app, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if app == nil {
			return applicationdomain.ErrNotFound
		}
		if app.Status != applicationdomain.StatusDraft {
			return applicationdomain.ErrNotDraft
		}
		return s.repo.Delete(ctx, tx, id)
	})
}

func (s *Service) ListTransitions(ctx context.Context, id snowflake.ID) ([]applicationdomain.Transition, error) {
	app, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, applicationdomain.ErrNotFound
	}
	return s.repo.ListTransitions(ctx, s.db, id)
}

func (s *Service) Transition(ctx context.Context, req applicationdomain.TransitionRequest) (*applicationdomain.TransitionResult, error) {
	if !req.Event.Valid() {
		return nil, applicationdomain.ErrInvalidEvent
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, applicationdomain.ErrInvalidActor
	}
	reason := strings.TrimSpace(req.Reason)
	if req.Event.RequiresReason() && reason == "" {
		return nil, applicationdomain.ErrReasonRequired
	}

	if req.Event == applicationdomain.EventConvert {
		return s.convert(ctx, req.ApplicationID, actor)
	}

	app, err := s.load(ctx, s.db, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	from := app.Status
	to, err := applicationdomain.Next(from, req.Event)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	switch req.Event {
	case applicationdomain.EventQuote:
		if len(app.Members) == 0 {
			return nil, applicationdomain.ErrNoMembers
		}
		if err := s.price(ctx, app, premiumdomain.ModePreliminary); err != nil {
			return nil, err
		}
		expiresAt := now.Add(s.pricing.Get().QuoteTTL)
		app.QuotedAt = &now
		app.ExpiresAt = &expiresAt
	case applicationdomain.EventSubmit:
		if err := s.price(ctx, app, premiumdomain.ModePreliminary); err != nil {
			return nil, fmt.Errorf("%w: %w", applicationdomain.ErrNotSubmittable, err)
		}
		app.ExpiresAt = nil
	case applicationdomain.EventApprove:
		for _, member := range app.Members {
			if !member.UnderwritingStatus.Cleared() {
				return nil, applicationdomain.ErrMembersNotCleared
			}
		}
		if err := s.price(ctx, app, premiumdomain.ModeFinal); err != nil {
			return nil, err
		}
	case applicationdomain.EventDecline, applicationdomain.EventRefer, applicationdomain.EventCancel:
		app.DecisionReason = &reason
	}

	app.Status = to
	app.UpdatedAt = now
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.commit(ctx, tx, app, from, req.Event, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(ctx, app.ID, from, to, actor)
	return &applicationdomain.TransitionResult{Application: app}, nil
}

// commit writes the new state only if no concurrent transition moved the
// application first, then appends the journal entry.
func (s *Service) commit(ctx context.Context, tx *gorm.DB, app *applicationdomain.Application, from applicationdomain.Status, event applicationdomain.Event, actor, reason string) error {
	affected, err := s.repo.UpdateStatus(ctx, tx, app, from)
	if err != nil {
		return err
	}
	if affected == 0 {
		current, err := s.repo.FindByID(ctx, tx, app.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return applicationdomain.ErrNotFound
		}
		return &applicationdomain.InvalidStateTransitionError{
			Subject:   "application",
			Current:   string(current.Status),
			Attempted: string(app.Status),
		}
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	return s.repo.InsertTransition(ctx, tx, &applicationdomain.Transition{
		ID:            s.genID.Generate(),
		ApplicationID: app.ID,
		FromStatus:    from,
		ToStatus:      app.Status,
		Event:         event,
		Actor:         actor,
		Reason:        reasonPtr,
		CreatedAt:     app.UpdatedAt,
	})
}

// price runs the premium calculation and stores the breakdown on app.
func (s *Service) price(ctx context.Context, app *applicationdomain.Application, mode premiumdomain.Mode) error {
	breakdown, err := s.premium.CalculatePremium(ctx, premiumRequest(app, mode))
	if err != nil {
		return err
	}
	raw, err := json.Marshal(breakdown)
	if err != nil {
		return err
	}
	modeValue := string(mode)
	app.AnnualPremium = decimal.NewNullDecimal(breakdown.AnnualTotal)
	app.InstallmentAmount = decimal.NewNullDecimal(breakdown.InstallmentAmount)
	app.PremiumMode = &modeValue
	app.PremiumBreakdown = datatypes.JSON(raw)
	return nil
}

func premiumRequest(app *applicationdomain.Application, mode premiumdomain.Mode) premiumdomain.Request {
	members := make([]premiumdomain.MemberInput, 0, len(app.Members))
	for _, member := range app.Members {
		members = append(members, premiumdomain.MemberInput{
			ID:                 member.ID,
			DateOfBirth:        member.DateOfBirth,
			Gender:             member.Gender,
			RegionCode:         member.RegionCode,
			MemberType:         member.MemberType,
			Conditions:         member.Conditions,
			UnderwritingStatus: string(member.UnderwritingStatus),
			EffectiveDate:      member.EffectiveDate,
		})
	}
	addonIDs := make([]snowflake.ID, 0, len(app.Addons))
	for _, addon := range app.Addons {
		addonIDs = append(addonIDs, addon.AddonID)
	}
	req := premiumdomain.Request{
		PlanID:                app.PlanID,
		SchemeID:              app.SchemeID,
		RateCardID:            app.RateCardID,
		InceptionDate:         app.InceptionDate,
		BillingFrequency:      premiumdomain.BillingFrequency(app.BillingFrequency),
		Mode:                  mode,
		GroupSize:             app.GroupSize,
		Members:               members,
		AddonIDs:              addonIDs,
		ManualDiscountRuleIDs: app.ManualDiscountRuleIDs,
	}
	if app.PromoCode != nil {
		req.PromoCode = *app.PromoCode
	}
	return req
}

// convert issues the policy for an accepted application. A repeated
// conversion returns the policy issued the first time.
func (s *Service) convert(ctx context.Context, id snowflake.ID, actor string) (*applicationdomain.TransitionResult, error) {
	if s.locker != nil {
		key := convertLockBase + id.String()
		token, ok, err := s.locker.TryLock(ctx, key, convertLockTTL)
		switch {
		case err != nil:
			s.log.Warn("convert lock unavailable, relying on row lock",
				zap.String("application_id", id.String()),
				zap.Error(err),
			)
		case !ok:
			return nil, applicationdomain.ErrConversionInProgress
		default:
			defer func() {
				if err := s.locker.Release(context.Background(), key, token); err != nil {
					s.log.Warn("convert lock release failed", zap.String("application_id", id.String()), zap.Error(err))
				}
			}()
		}
	}

	var (
		app    *applicationdomain.Application
		policy *applicationdomain.Policy
	)
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		app, err = s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if app == nil {
			return applicationdomain.ErrNotFound
		}
		if app.Status == applicationdomain.StatusConverted {
			return errAlreadyConverted
		}
		if _, err := applicationdomain.Next(app.Status, applicationdomain.EventConvert); err != nil {
			return err
		}
		if !app.AnnualPremium.Valid || !app.InstallmentAmount.Valid {
			return applicationdomain.ErrInvalidApplication
		}

		policy = &applicationdomain.Policy{
			ID:                s.genID.Generate(),
			PolicyNumber:      "POL-" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
			ApplicationID:     app.ID,
			PlanID:            app.PlanID,
			InceptionDate:     app.InceptionDate,
			BillingFrequency:  app.BillingFrequency,
			AnnualPremium:     app.AnnualPremium.Decimal,
			InstallmentAmount: app.InstallmentAmount.Decimal,
			CreatedAt:         now,
		}
		if app.PromoCode != nil {
			promo, err := s.discounts.RedeemPromo(ctx, tx, *app.PromoCode)
			if err != nil {
				return err
			}
			policy.PromoCodeID = &promo.ID
		}
		if err := s.repo.InsertPolicy(ctx, tx, policy); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errAlreadyConverted
			}
			return err
		}

		from := app.Status
		app.Status = applicationdomain.StatusConverted
		app.UpdatedAt = now
		return s.commit(ctx, tx, app, from, applicationdomain.EventConvert, actor, "")
	})

	if errors.Is(err, errAlreadyConverted) {
		existing, err := s.load(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		issued, err := s.repo.FindPolicyByApplication(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if issued == nil {
			return nil, applicationdomain.ErrNotFound
		}
		s.log.Info("conversion replayed",
			zap.String("application_id", id.String()),
			zap.String("policy_number", issued.PolicyNumber),
		)
		return &applicationdomain.TransitionResult{Application: existing, Policy: issued}, nil
	}
	if err != nil {
		return nil, err
	}

	s.recordTransition(ctx, app.ID, applicationdomain.StatusAccepted, applicationdomain.StatusConverted, actor)
	s.log.Info("policy issued",
		zap.String("application_id", app.ID.String()),
		zap.String("policy_number", policy.PolicyNumber),
	)
	converted, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &applicationdomain.TransitionResult{Application: converted, Policy: policy}, nil
}

func (s *Service) SetMemberStatus(ctx context.Context, req applicationdomain.MemberStatusRequest) (*applicationdomain.ApplicationMember, error) {
	if !req.Status.Valid() {
		return nil, applicationdomain.ErrInvalidMember
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, applicationdomain.ErrInvalidActor
	}

	var updated *applicationdomain.ApplicationMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		app, err := s.repo.FindByIDForUpdate(ctx, tx, req.ApplicationID)
		if err != nil {
			return err
		}
		if app == nil {
			return applicationdomain.ErrNotFound
		}
		if app.Status != applicationdomain.StatusUnderwriting {
			return applicationdomain.ErrNotUnderwriting
		}

		members, err := s.repo.ListMembers(ctx, tx, app.ID)
		if err != nil {
			return err
		}
		for i := range members {
			if members[i].ID == req.MemberID {
				updated = &members[i]
				break
			}
		}
		if updated == nil {
			return applicationdomain.ErrMemberNotFound
		}
		if err := applicationdomain.NextMember(updated.UnderwritingStatus, req.Status); err != nil {
			return err
		}
		updated.UnderwritingStatus = req.Status
		updated.UpdatedAt = s.clock.Now()
		return s.repo.UpdateMemberStatus(ctx, tx, updated)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("member underwriting status changed",
		zap.String("application_id", req.ApplicationID.String()),
		zap.String("member_id", req.MemberID.String()),
		zap.String("status", string(req.Status)),
		zap.String("actor", actor),
	)
	return updated, nil
}

func (s *Service) ExpireStale(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	now := s.clock.Now()
	stale, err := s.repo.ListStale(ctx, s.db, []applicationdomain.Status{
		applicationdomain.StatusDraft,
		applicationdomain.StatusQuoted,
	}, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		app := &stale[i]
		from := app.Status
		app.Status = applicationdomain.StatusExpired
		app.UpdatedAt = now
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.commit(ctx, tx, app, from, applicationdomain.EventExpire, systemActor, "")
		})
		if errors.Is(err, applicationdomain.ErrInvalidStateTransition) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
		s.recordTransition(ctx, app.ID, from, applicationdomain.StatusExpired, systemActor)
	}
	return expired, nil
}

func (s *Service) recordTransition(ctx context.Context, id snowflake.ID, from, to applicationdomain.Status, actor string) {
	s.metrics.RecordTransition(ctx, string(from), string(to))
	s.log.Info("application transitioned",
		zap.String("application_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor),
	)
}

func nonNilIDs(ids []snowflake.ID) []snowflake.ID {
	if ids == nil {
		return []snowflake.ID{}
	}
	return ids
}
