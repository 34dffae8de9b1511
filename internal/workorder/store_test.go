// internal/workorder/store_test.go
package workorder

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rfms-invoicing/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// one connection, or each pooled conn gets its own empty in-memory db
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.SyncConfig{},
		&models.WorkOrder{},
		&models.WorkOrderLine{},
		&models.CrewDevice{},
	))
	t.Cleanup(func() { sqlDB.Close() })
	return NewStore(db)
}

func testOrder(doc, crew, fingerprint string, lines ...models.WorkOrderLine) *models.WorkOrder {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return &models.WorkOrder{
		DocNumber:     doc,
		CrewCode:      crew,
		ScheduledDate: &date,
		Status:        models.WorkOrderStatusScheduled,
		Fingerprint:   fingerprint,
		Lines:         lines,
	}
}

func line(seq int, code, qty, price string) models.WorkOrderLine {
	return models.WorkOrderLine{
		Seq:         seq,
		ProductCode: code,
		Quantity:    decimal.RequireFromString(qty),
		UnitPrice:   decimal.RequireFromString(price),
	}
}

func TestStore_UpsertCreatesThenIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := store.Upsert(ctx, testOrder("WO-1", "CREW-A", "fp-1", line(1, "CPT", "10", "2.50")))
	require.NoError(t, err)
	assert.Equal(t, UpsertCreated, result)

	// same fingerprint — second pass must not touch the row
	result, err = store.Upsert(ctx, testOrder("WO-1", "CREW-A", "fp-1", line(1, "CPT", "10", "2.50")))
	require.NoError(t, err)
	assert.Equal(t, UpsertUnchanged, result)

	wo, err := store.GetByDocNumber(ctx, "WO-1")
	require.NoError(t, err)
	require.Len(t, wo.Lines, 1)
	assert.Equal(t, "CPT", wo.Lines[0].ProductCode)
}

func TestStore_UpsertReplacesLinesWholesale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, testOrder("WO-2", "CREW-A", "fp-1",
		line(1, "CPT", "10", "2.50"),
		line(2, "PAD", "10", "0.80"),
		line(3, "TRIM", "4", "1.20"),
	))
	require.NoError(t, err)

	// remote dropped two lines and changed the remaining one
	result, err := store.Upsert(ctx, testOrder("WO-2", "CREW-A", "fp-2",
		line(1, "CPT", "12", "2.50"),
	))
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, result)

	wo, err := store.GetByDocNumber(ctx, "WO-2")
	require.NoError(t, err)
	require.Len(t, wo.Lines, 1, "stale lines must not survive a re-sync")
	assert.Equal(t, "12", wo.Lines[0].Quantity.String())

	var orphans int64
	require.NoError(t, store.db.Model(&models.WorkOrderLine{}).Count(&orphans).Error)
	assert.Equal(t, int64(1), orphans)
}

func TestStore_UpsertMovesCrewReassignment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, testOrder("WO-3", "CREW-A", "fp-1"))
	require.NoError(t, err)

	result, err := store.Upsert(ctx, testOrder("WO-3", "CREW-B", "fp-2"))
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, result)

	wo, err := store.GetByDocNumber(ctx, "WO-3")
	require.NoError(t, err)
	assert.Equal(t, "CREW-B", wo.CrewCode)

	from := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	orders, err := store.ListByCrewWindow(ctx, "CREW-A", from, to)
	require.NoError(t, err)
	assert.Empty(t, orders, "the order follows its crew, no duplicate left behind")
}

func TestStore_ListByCrewWindowBounds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mkOrder := func(doc string, day int) *models.WorkOrder {
		date := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
		return &models.WorkOrder{
			DocNumber: doc, CrewCode: "CREW-A", ScheduledDate: &date,
			Status: models.WorkOrderStatusScheduled, Fingerprint: "fp-" + doc,
		}
	}
	for doc, day := range map[string]int{"WO-IN1": 15, "WO-IN2": 21, "WO-BEFORE": 14, "WO-AFTER": 22} {
		_, err := store.Upsert(ctx, mkOrder(doc, day))
		require.NoError(t, err)
	}

	from := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	orders, err := store.ListByCrewWindow(ctx, "CREW-A", from, from.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, orders, 2, "window is inclusive start, exclusive end")
	assert.Equal(t, "WO-IN1", orders[0].DocNumber)
	assert.Equal(t, "WO-IN2", orders[1].DocNumber)
}

func TestStore_GetByDocNumberNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByDocNumber(context.Background(), "WO-MISSING")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStore_SyncMarkRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetSyncMark(ctx, "last_sync:CREW-A:2024-01-15")
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "never-synced key reads as zero time")

	first := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetSyncMark(ctx, "last_sync:CREW-A:2024-01-15", first))

	got, err = store.GetSyncMark(ctx, "last_sync:CREW-A:2024-01-15")
	require.NoError(t, err)
	assert.True(t, got.Equal(first))

	// overwrite, not duplicate
	second := first.Add(time.Hour)
	require.NoError(t, store.SetSyncMark(ctx, "last_sync:CREW-A:2024-01-15", second))
	got, err = store.GetSyncMark(ctx, "last_sync:CREW-A:2024-01-15")
	require.NoError(t, err)
	assert.True(t, got.Equal(second))
}

func TestStore_CrewDeviceLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterCrewDevice(ctx, "CREW-A", "tok-1"))
	require.NoError(t, store.RegisterCrewDevice(ctx, "CREW-A", "tok-2"))
	// re-registering the same token is a no-op
	require.NoError(t, store.RegisterCrewDevice(ctx, "CREW-A", "tok-1"))

	tokens, err := store.CrewTokens(ctx, "CREW-A")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tok-1", "tok-2"}, tokens)

	// a device handed to another crew moves, never duplicates
	require.NoError(t, store.RegisterCrewDevice(ctx, "CREW-B", "tok-2"))
	tokens, err = store.CrewTokens(ctx, "CREW-A")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-1"}, tokens)
	tokens, err = store.CrewTokens(ctx, "CREW-B")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-2"}, tokens)

	require.NoError(t, store.UnregisterCrewDevice(ctx, "tok-1"))
	tokens, err = store.CrewTokens(ctx, "CREW-A")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}
