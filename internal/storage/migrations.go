package storage

import (
	"errors"
	"time"

	"github.com/ruleta-labs/spintrack/internal/roulette"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRepairSectorLabels = "2026-07-21_repair_sector_labels"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairSectorLabels, apply: repairSectorLabels},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// repairSectorLabels re-derives the sector column from the number column for
// any row where the pair drifted apart; sector is functionally dependent on
// number and an inconsistent pair breaks aggregation.
func repairSectorLabels(db *gorm.DB) error {
	var records []ResultRecord
	if err := db.Find(&records).Error; err != nil {
		return err
	}
	for _, record := range records {
		sector, ok := roulette.Classify(record.Number)
		if !ok || string(sector) == record.Sector {
			continue
		}
		err := db.Model(&ResultRecord{}).
			Where("result_id = ?", record.ResultID).
			Update("sector", string(sector)).Error
		if err != nil {
			return err
		}
	}
	return nil
}
