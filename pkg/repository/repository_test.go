package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/medrate/pkg/db/option"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type quoteNote struct {
	ID         int64     `gorm:"primaryKey"`
	Label      string    `gorm:"type:text"`
	Amount     int       `gorm:"not null"`
	ValidFrom  time.Time `gorm:"not null"`
	ValidUntil *time.Time
	CreatedAt  time.Time
}

func setupStore(t *testing.T) (*gorm.DB, Repository[quoteNote]) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&quoteNote{}))
	return conn, ProvideStore[quoteNote](conn)
}

func TestStoreCreateAndFind(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.BatchCreate(ctx, []*quoteNote{
		{ID: 1, Label: "a", Amount: 10, ValidFrom: base, CreatedAt: base},
		{ID: 2, Label: "b", Amount: 20, ValidFrom: base, CreatedAt: base.Add(time.Hour)},
		{ID: 3, Label: "c", Amount: 30, ValidFrom: base, CreatedAt: base.Add(2 * time.Hour)},
	}))

	found, err := store.FindOne(ctx, &quoteNote{Label: "b"})
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, int64(2), found.ID)

	missing, err := store.FindOne(ctx, &quoteNote{Label: "zzz"})
	require.NoError(t, err)
	require.Nil(t, missing)

	rows, err := store.Find(ctx, &quoteNote{},
		option.ApplyOperator(option.Condition{Field: "amount", Operator: option.GTE, Value: 20}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"amount": true}, SortBy: "amount", OrderBy: "desc"}),
		option.WithLimit(1),
	)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(3), rows[0].ID)

	count, err := store.Count(ctx, &quoteNote{})
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestStoreEffectiveWindow(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, &quoteNote{ID: 1, Label: "old", Amount: 1, ValidFrom: jan, ValidUntil: &mar}))
	require.NoError(t, store.Create(ctx, &quoteNote{ID: 2, Label: "new", Amount: 2, ValidFrom: mar}))

	rows, err := store.Find(ctx, &quoteNote{}, option.EffectiveAt("valid_from", "valid_until", mar))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "new", rows[0].Label)

	rows, err = store.Find(ctx, &quoteNote{}, option.EffectiveAt("valid_from", "valid_until", jan.AddDate(0, 1, 0)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "old", rows[0].Label)
}

func TestStoreUpdateDeleteAndTrx(t *testing.T) {
	conn, store := setupStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, &quoteNote{ID: 1, Label: "a", Amount: 1, ValidFrom: now}))
	require.NoError(t, store.Update(ctx, "1", map[string]any{"amount": 5}))

	found, err := store.FindOne(ctx, &quoteNote{ID: 1})
	require.NoError(t, err)
	require.Equal(t, 5, found.Amount)

	errRollback := errors.New("rollback")
	err = conn.Transaction(func(tx *gorm.DB) error {
		if err := store.WithTrx(tx).Create(ctx, &quoteNote{ID: 2, Label: "b", Amount: 2, ValidFrom: now}); err != nil {
			return err
		}
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	count, err := store.Count(ctx, &quoteNote{})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	require.NoError(t, store.Delete(ctx, "1"))
	count, err = store.Count(ctx, &quoteNote{})
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}
