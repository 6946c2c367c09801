package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, app *Application) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Application, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Application, error)
	// UpdateStatus moves the application only if it is still in from and
	// returns the number of rows changed.
	UpdateStatus(ctx context.Context, db *gorm.DB, app *Application, from Status) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ListStale(ctx context.Context, db *gorm.DB, statuses []Status, before time.Time, limit int) ([]Application, error)

	InsertMembers(ctx context.Context, db *gorm.DB, members []ApplicationMember) error
	ListMembers(ctx context.Context, db *gorm.DB, applicationID snowflake.ID) ([]ApplicationMember, error)
	UpdateMemberStatus(ctx context.Context, db *gorm.DB, member *ApplicationMember) error

	InsertAddons(ctx context.Context, db *gorm.DB, addons []ApplicationAddon) error
	ListAddons(ctx context.Context, db *gorm.DB, applicationID snowflake.ID) ([]ApplicationAddon, error)

	InsertTransition(ctx context.Context, db *gorm.DB, transition *Transition) error
	ListTransitions(ctx context.Context, db *gorm.DB, applicationID snowflake.ID) ([]Transition, error)

	InsertPolicy(ctx context.Context, db *gorm.DB, policy *Policy) error
	FindPolicyByApplication(ctx context.Context, db *gorm.DB, applicationID snowflake.ID) (*Policy, error)
}
