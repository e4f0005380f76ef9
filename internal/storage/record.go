package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/ruleta-labs/spintrack/internal/roulette"
)

// ResultRecord is the persisted form of a spin outcome. Records are keyed
// under the tenant app identifier; spin ranks are never stored.
type ResultRecord struct {
	ResultID     string `gorm:"column:result_id;primaryKey;size:190;not null"`
	AppID        string `gorm:"column:app_id;size:190;not null;index:idx_results_app_time,priority:1"`
	Number       string `gorm:"column:number;size:4;not null"`
	Sector       string `gorm:"column:sector;size:4;not null"`
	RecordedAtMS int64  `gorm:"column:recorded_at_ms;not null;index:idx_results_app_time,priority:2"`
	UserID       string `gorm:"column:user_id;size:190;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ResultRecord) TableName() string {
	return "roulette_results"
}

func (r ResultRecord) toResult() roulette.Result {
	return roulette.Result{
		ID:        r.ResultID,
		Number:    r.Number,
		Sector:    roulette.Sector(r.Sector),
		Timestamp: time.UnixMilli(r.RecordedAtMS).UTC(),
		UserID:    r.UserID,
	}
}

// IDProvider issues record identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
