package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	githubsqlite "github.com/glebarez/sqlite"
	"github.com/ruleta-labs/spintrack/internal/roulette"
	"gorm.io/gorm"
)

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(githubsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&ResultRecord{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestStore(t *testing.T, db *gorm.DB, appID string) *ResultStore {
	t.Helper()
	store, err := NewResultStore(StoreConfig{Database: db, AppID: appID})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store
}

func pendingAt(number string, ts time.Time) roulette.PendingResult {
	sector, _ := roulette.Classify(number)
	return roulette.PendingResult{
		Number:    number,
		Sector:    sector,
		Timestamp: ts,
		UserID:    "user-1",
	}
}

func TestCreateAndQueryOrdersByTimestamp(t *testing.T) {
	db := newTestDatabase(t)
	store := newTestStore(t, db, "app-1")
	ctx := context.Background()

	base := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	if _, err := store.Create(ctx, pendingAt("17", base.Add(2*time.Minute))); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.Create(ctx, pendingAt("0", base)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.Create(ctx, pendingAt("00", base.Add(time.Minute))); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	results, err := store.Query(ctx, roulette.DayWindow(base))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	numbers := []string{results[0].Number, results[1].Number, results[2].Number}
	if numbers[0] != "0" || numbers[1] != "00" || numbers[2] != "17" {
		t.Fatalf("unexpected order: %v", numbers)
	}
	if results[0].Sector != roulette.SectorC {
		t.Fatalf("unexpected sector for 0: %s", results[0].Sector)
	}
	if !results[0].Timestamp.Equal(base) {
		t.Fatalf("timestamp mismatch: %v", results[0].Timestamp)
	}
	if results[0].UserID != "user-1" {
		t.Fatalf("unexpected user id: %s", results[0].UserID)
	}
}

func TestQueryWindowIsHalfOpen(t *testing.T) {
	db := newTestDatabase(t)
	store := newTestStore(t, db, "app-1")
	ctx := context.Background()

	dayStart := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)
	nextDay := dayStart.AddDate(0, 0, 1)
	if _, err := store.Create(ctx, pendingAt("5", dayStart)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.Create(ctx, pendingAt("6", nextDay)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	window := roulette.TimeWindow{Start: dayStart, End: nextDay}
	count, err := store.CountInWindow(ctx, window)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly the start-of-day record, got %d", count)
	}
}

func TestRecordsAreScopedByAppID(t *testing.T) {
	db := newTestDatabase(t)
	first := newTestStore(t, db, "app-1")
	second := newTestStore(t, db, "app-2")
	ctx := context.Background()

	ts := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	if _, err := first.Create(ctx, pendingAt("17", ts)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	results, err := second.Query(ctx, roulette.DayWindow(ts))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected tenant isolation, got %d results", len(results))
	}
}

func TestUpdateNumberRewritesNumberAndSector(t *testing.T) {
	db := newTestDatabase(t)
	store := newTestStore(t, db, "app-1")
	ctx := context.Background()

	ts := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	id, err := store.Create(ctx, pendingAt("17", ts))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := store.UpdateNumber(ctx, id, "5", roulette.SectorD); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	results, err := store.Query(ctx, roulette.DayWindow(ts))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 1 || results[0].Number != "5" || results[0].Sector != roulette.SectorD {
		t.Fatalf("unexpected record after update: %#v", results)
	}
	if !results[0].Timestamp.Equal(ts) {
		t.Fatalf("timestamp must survive the edit, got %v", results[0].Timestamp)
	}
}

func TestUpdateNumberUnknownID(t *testing.T) {
	db := newTestDatabase(t)
	store := newTestStore(t, db, "app-1")

	err := store.UpdateNumber(context.Background(), "missing", "5", roulette.SectorD)
	if !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got: %v", err)
	}
}

func TestSubscribeDeliversInitialAndChangedSets(t *testing.T) {
	db := newTestDatabase(t)
	store := newTestStore(t, db, "app-1")
	ctx := context.Background()

	ts := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	if _, err := store.Create(ctx, pendingAt("17", ts)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	deliveries := make(chan []roulette.Result, 8)
	cancel, err := store.Subscribe(roulette.DayWindow(ts),
		func(results []roulette.Result) { deliveries <- results },
		func(err error) { t.Errorf("unexpected subscription error: %v", err) },
	)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	initial := waitDelivery(t, deliveries)
	if len(initial) != 1 {
		t.Fatalf("expected the current set on subscribe, got %d results", len(initial))
	}

	if _, err := store.Create(ctx, pendingAt("5", ts.Add(time.Minute))); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	updated := waitDeliveryOfSize(t, deliveries, 2)
	if updated[0].Number != "17" || updated[1].Number != "5" {
		t.Fatalf("unexpected delivery order: %#v", updated)
	}
}

func TestSubscribeIgnoresWritesOutsideWindow(t *testing.T) {
	db := newTestDatabase(t)
	store := newTestStore(t, db, "app-1")
	ctx := context.Background()

	day := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	deliveries := make(chan []roulette.Result, 8)
	cancel, err := store.Subscribe(roulette.DayWindow(day),
		func(results []roulette.Result) { deliveries <- results },
		nil,
	)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	waitDelivery(t, deliveries)

	if _, err := store.Create(ctx, pendingAt("17", day.AddDate(0, 0, 2))); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	select {
	case results := <-deliveries:
		t.Fatalf("unexpected delivery for out-of-window write: %#v", results)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeCancelStopsDeliveries(t *testing.T) {
	db := newTestDatabase(t)
	store := newTestStore(t, db, "app-1")
	ctx := context.Background()

	day := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	deliveries := make(chan []roulette.Result, 8)
	cancel, err := store.Subscribe(roulette.DayWindow(day),
		func(results []roulette.Result) { deliveries <- results },
		nil,
	)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	waitDelivery(t, deliveries)
	cancel()

	if _, err := store.Create(ctx, pendingAt("17", day)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	select {
	case results := <-deliveries:
		t.Fatalf("unexpected delivery after cancel: %#v", results)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestProbeSucceedsAgainstMigratedSchema(t *testing.T) {
	db := newTestDatabase(t)
	store := newTestStore(t, db, "app-1")

	if err := store.Probe(context.Background()); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
}

func waitDelivery(t *testing.T, deliveries <-chan []roulette.Result) []roulette.Result {
	t.Helper()
	select {
	case results := <-deliveries:
		return results
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

// waitDeliveryOfSize skips deliveries until one carries the expected result
// count; coalesced notifications may re-deliver the previous set first.
func waitDeliveryOfSize(t *testing.T, deliveries <-chan []roulette.Result, size int) []roulette.Result {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case results := <-deliveries:
			if len(results) == size {
				return results
			}
		case <-deadline:
			t.Fatalf("timed out waiting for delivery of %d results", size)
			return nil
		}
	}
}
