package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	addondomain "github.com/smallbiznis/medrate/internal/addon/domain"
	applicationdomain "github.com/smallbiznis/medrate/internal/application/domain"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	ratecarddomain "github.com/smallbiznis/medrate/internal/ratecard/domain"
	versioningdomain "github.com/smallbiznis/medrate/internal/versioning/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres migrations. The partial
// unique indexes they create back the one-active-version rule at the
// storage level.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted type, for dialects without SQL migrations.
func Models() []any {
	return []any{
		&ratecarddomain.RateCard{},
		&ratecarddomain.Entry{},
		&ratecarddomain.Tier{},
		&versioningdomain.Version{},
		&addondomain.Addon{},
		&addondomain.AddonRate{},
		&addondomain.AgeBand{},
		&loadingdomain.LoadingRule{},
		&discountdomain.DiscountRule{},
		&discountdomain.PromoCode{},
		&applicationdomain.Application{},
		&applicationdomain.ApplicationMember{},
		&applicationdomain.ApplicationAddon{},
		&applicationdomain.Transition{},
		&applicationdomain.Policy{},
	}
}

// AutoMigrate creates the schema from the gorm models.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}
