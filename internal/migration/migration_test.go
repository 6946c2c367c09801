package migration

import (
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestActiveVersionIndexesArePartial(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_rating_catalog.up.sql")
	require.NoError(t, err)
	sql := string(raw)

	assert.Contains(t, sql, "ON rate_cards (plan_id) WHERE is_active")
	assert.Contains(t, sql, "ON addon_rates (addon_id, plan_id) WHERE is_active AND plan_id IS NOT NULL")
	assert.Contains(t, sql, "ON addon_rates (addon_id) WHERE is_active AND plan_id IS NULL")
}

func TestAutoMigrateCreatesEveryTable(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{
		"rate_cards", "rate_card_entries", "rate_card_tiers", "resource_versions",
		"addons", "addon_rates", "addon_rate_bands", "loading_rules",
		"discount_rules", "promo_codes", "applications", "application_members",
		"application_addons", "application_transitions", "policies",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}
