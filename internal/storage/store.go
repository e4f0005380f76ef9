package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ruleta-labs/spintrack/internal/roulette"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("storage: database handle is required")
	errMissingAppID    = errors.New("storage: app id is required")
	// ErrResultNotFound indicates an edit targeted an unknown identifier.
	ErrResultNotFound = errors.New("storage: result not found")
)

// probeEpoch is the lower timestamp bound used by the connectivity probe; any
// read past it exercises the same table and index as real queries.
var probeEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// StoreConfig wires the sqlite-backed result store.
type StoreConfig struct {
	Database   *gorm.DB
	AppID      string
	IDProvider IDProvider
	Logger     *zap.Logger
}

// ResultStore persists spin outcomes under a tenant scope and feeds live
// window subscriptions. It implements roulette.Store.
type ResultStore struct {
	db     *gorm.DB
	appID  string
	ids    IDProvider
	feed   *changeFeed
	logger *zap.Logger
}

// NewResultStore validates dependencies and builds a ResultStore.
func NewResultStore(cfg StoreConfig) (*ResultStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, errMissingAppID
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultStore{
		db:     cfg.Database,
		appID:  cfg.AppID,
		ids:    ids,
		feed:   newChangeFeed(),
		logger: logger,
	}, nil
}

// Create writes one result in a single insert and notifies window
// subscribers.
func (s *ResultStore) Create(ctx context.Context, pending roulette.PendingResult) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", roulette.NewStoreError(roulette.FailureUnknown, err)
	}
	record := ResultRecord{
		ResultID:     id,
		AppID:        s.appID,
		Number:       pending.Number,
		Sector:       string(pending.Sector),
		RecordedAtMS: pending.Timestamp.UnixMilli(),
		UserID:       pending.UserID,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", wrapStoreError(err)
	}
	s.feed.notify(pending.Timestamp)
	return id, nil
}

// Query returns the window's records ordered by timestamp ascending.
func (s *ResultStore) Query(ctx context.Context, window roulette.TimeWindow) ([]roulette.Result, error) {
	var records []ResultRecord
	err := s.windowQuery(ctx, window).
		Order("recorded_at_ms ASC").
		Find(&records).Error
	if err != nil {
		return nil, wrapStoreError(err)
	}
	results := make([]roulette.Result, 0, len(records))
	for _, record := range records {
		results = append(results, record.toResult())
	}
	return results, nil
}

// CountInWindow reports how many records fall inside the window.
func (s *ResultStore) CountInWindow(ctx context.Context, window roulette.TimeWindow) (int, error) {
	var count int64
	if err := s.windowQuery(ctx, window).Count(&count).Error; err != nil {
		return 0, wrapStoreError(err)
	}
	return int(count), nil
}

// UpdateNumber rewrites a record's number and sector, leaving the timestamp
// untouched so spin ordering is stable across edits.
func (s *ResultStore) UpdateNumber(ctx context.Context, id string, number string, sector roulette.Sector) error {
	var record ResultRecord
	err := s.db.WithContext(ctx).
		Where("result_id = ? AND app_id = ?", id, s.appID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrResultNotFound
	}
	if err != nil {
		return wrapStoreError(err)
	}

	err = s.db.WithContext(ctx).
		Model(&ResultRecord{}).
		Where("result_id = ? AND app_id = ?", id, s.appID).
		Updates(map[string]interface{}{"number": number, "sector": string(sector)}).Error
	if err != nil {
		return wrapStoreError(err)
	}

	s.feed.notify(time.UnixMilli(record.RecordedAtMS).UTC())
	return nil
}

// Subscribe delivers the full current matching set immediately and after
// every change touching the window, until the returned cancel is called.
func (s *ResultStore) Subscribe(window roulette.TimeWindow, onChange func([]roulette.Result), onError func(error)) (func(), error) {
	cancel := s.feed.subscribe(window, s.Query, onChange, onError)
	return cancel, nil
}

// Probe performs a lightweight bounded read to classify the backend as
// reachable.
func (s *ResultStore) Probe(ctx context.Context) error {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&ResultRecord{}).
		Where("app_id = ? AND recorded_at_ms > ?", s.appID, probeEpoch.UnixMilli()).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return wrapStoreError(err)
	}
	return nil
}

func (s *ResultStore) windowQuery(ctx context.Context, window roulette.TimeWindow) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&ResultRecord{}).
		Where("app_id = ? AND recorded_at_ms >= ? AND recorded_at_ms < ?",
			s.appID, window.Start.UnixMilli(), window.End.UnixMilli())
}

// wrapStoreError maps driver failures onto the categories the UI reports.
func wrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var storeErr *roulette.StoreError
	if errors.As(err, &storeErr) {
		return err
	}

	kind := roulette.FailureUnknown
	message := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gorm.ErrInvalidDB):
		kind = roulette.FailureUnavailable
	case strings.Contains(message, "database is locked") || strings.Contains(message, "busy"):
		kind = roulette.FailureUnavailable
	case strings.Contains(message, "readonly") || strings.Contains(message, "access"):
		kind = roulette.FailurePermissionDenied
	case strings.Contains(message, "no such table") || strings.Contains(message, "no such index"):
		kind = roulette.FailureFailedPrecondition
	}
	return roulette.NewStoreError(kind, err)
}
