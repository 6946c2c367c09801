package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	applicationdomain "github.com/smallbiznis/medrate/internal/application/domain"
	"github.com/smallbiznis/medrate/pkg/db/option"
	"github.com/smallbiznis/medrate/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

var (
	staleSortColumns   = map[string]bool{"expires_at": true}
	journalSortColumns = map[string]bool{"id": true}
)

func Provide() applicationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, app *applicationdomain.Application) error {
	return db.WithContext(ctx).Create(app).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*applicationdomain.Application, error) {
	var app applicationdomain.Application
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&app).Error
	if err != nil {
		return nil, err
	}
	if app.ID == 0 {
		return nil, nil
	}
	return &app, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*applicationdomain.Application, error) {
	var app applicationdomain.Application
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&app).Error
	if err != nil {
		return nil, err
	}
	if app.ID == 0 {
		return nil, nil
	}
	return &app, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, app *applicationdomain.Application, from applicationdomain.Status) (int64, error) {
	result := db.WithContext(ctx).
		Model(&applicationdomain.Application{}).
		Where("id = ? AND status = ?", app.ID, from).
		Updates(map[string]any{
			"status":             app.Status,
			"annual_premium":     app.AnnualPremium,
			"installment_amount": app.InstallmentAmount,
			"premium_mode":       app.PremiumMode,
			"premium_breakdown":  app.PremiumBreakdown,
			"decision_reason":    app.DecisionReason,
			"quoted_at":          app.QuotedAt,
			"expires_at":         app.ExpiresAt,
			"updated_at":         app.UpdatedAt,
		})
	return result.RowsAffected, result.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM application_addons WHERE application_id = ?`, id).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).Exec(`DELETE FROM application_members WHERE application_id = ?`, id).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).Exec(`DELETE FROM application_transitions WHERE application_id = ?`, id).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(`DELETE FROM applications WHERE id = ?`, id).Error
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, statuses []applicationdomain.Status, before time.Time, limit int) ([]applicationdomain.Application, error) {
	var apps []applicationdomain.Application
	stmt := db.WithContext(ctx)
	for _, opt := range []option.QueryOption{
		option.ApplyOperator(option.Condition{Field: "status", Operator: option.IN, Value: statuses}),
		option.ApplyOperator(option.Condition{Field: "expires_at", Operator: option.LTE, Value: before}),
		option.WithSortBy(option.QuerySortBy{Allow: staleSortColumns, SortBy: "expires_at"}),
		option.WithLimit(limit),
	} {
		stmt = opt.Apply(stmt)
	}
	if err := stmt.Order("id ASC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *repo) InsertMembers(ctx context.Context, db *gorm.DB, members []applicationdomain.ApplicationMember) error {
	if len(members) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(members, 200).Error
}

func (r *repo) ListMembers(ctx context.Context, db *gorm.DB, applicationID snowflake.ID) ([]applicationdomain.ApplicationMember, error) {
	var members []applicationdomain.ApplicationMember
	err := db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("id ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repo) UpdateMemberStatus(ctx context.Context, db *gorm.DB, member *applicationdomain.ApplicationMember) error {
	return db.WithContext(ctx).Exec(
		`UPDATE application_members
		 SET underwriting_status = ?, updated_at = ?
		 WHERE id = ?`,
		member.UnderwritingStatus,
		member.UpdatedAt,
		member.ID,
	).Error
}

func (r *repo) InsertAddons(ctx context.Context, db *gorm.DB, addons []applicationdomain.ApplicationAddon) error {
	if len(addons) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(addons, 200).Error
}

func (r *repo) ListAddons(ctx context.Context, db *gorm.DB, applicationID snowflake.ID) ([]applicationdomain.ApplicationAddon, error) {
	var addons []applicationdomain.ApplicationAddon
	err := db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("id ASC").
		Find(&addons).Error
	if err != nil {
		return nil, err
	}
	return addons, nil
}

func (r *repo) InsertTransition(ctx context.Context, db *gorm.DB, transition *applicationdomain.Transition) error {
	return repository.ProvideStore[applicationdomain.Transition](db).Create(ctx, transition)
}

// ListTransitions returns the journal oldest first; snowflake ids follow
// insertion order even when timestamps collide.
func (r *repo) ListTransitions(ctx context.Context, db *gorm.DB, applicationID snowflake.ID) ([]applicationdomain.Transition, error) {
	rows, err := repository.ProvideStore[applicationdomain.Transition](db).Find(ctx,
		&applicationdomain.Transition{ApplicationID: applicationID},
		option.WithSortBy(option.QuerySortBy{Allow: journalSortColumns, SortBy: "id"}),
	)
	if err != nil {
		return nil, err
	}
	transitions := make([]applicationdomain.Transition, 0, len(rows))
	for _, row := range rows {
		transitions = append(transitions, *row)
	}
	return transitions, nil
}

func (r *repo) InsertPolicy(ctx context.Context, db *gorm.DB, policy *applicationdomain.Policy) error {
	return repository.ProvideStore[applicationdomain.Policy](db).Create(ctx, policy)
}

func (r *repo) FindPolicyByApplication(ctx context.Context, db *gorm.DB, applicationID snowflake.ID) (*applicationdomain.Policy, error) {
	return repository.ProvideStore[applicationdomain.Policy](db).FindOne(ctx,
		&applicationdomain.Policy{ApplicationID: applicationID},
	)
}
