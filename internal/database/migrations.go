package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CurrentSchemaVersion is the newest schema version this build understands.
const CurrentSchemaVersion = 3

const (
	migrationCreateDocumentStores = "create_document_stores"
	migrationCreateFolderStore    = "create_folder_store"
	migrationNanosecondTimestamps = "store_nanosecond_timestamps"

	nanosPerMilli = 1000000
)

type migrationRecord struct {
	Version          int    `gorm:"column:version;primaryKey;autoIncrement:false"`
	Name             string `gorm:"column:name;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "schema_migrations"
}

type migrationDefinition struct {
	version int
	name    string
	apply   func(*gorm.DB) error
}

var schemaMigrations = []migrationDefinition{
	{version: 1, name: migrationCreateDocumentStores, apply: createDocumentStores},
	{version: 2, name: migrationCreateFolderStore, apply: createFolderStore},
	{version: 3, name: migrationNanosecondTimestamps, apply: storeNanosecondTimestamps},
}

// schemaVersion reports the highest version recorded in the migration ledger, zero for a fresh store.
func schemaVersion(db *gorm.DB) (int, error) {
	if !db.Migrator().HasTable(&migrationRecord{}) {
		return 0, nil
	}
	var version int
	if err := db.Model(&migrationRecord{}).Select("COALESCE(MAX(version), 0)").Scan(&version).Error; err != nil {
		return 0, err
	}
	return version, nil
}

// applyMigrations brings the schema up to targetVersion. Each step runs in its own transaction together
// with its ledger entry, so a failed step leaves the previous version intact.
func applyMigrations(db *gorm.DB, targetVersion int, clock func() time.Time, logger *zap.Logger) (int, error) {
	if err := db.AutoMigrate(&migrationRecord{}); err != nil {
		return 0, err
	}

	current, err := schemaVersion(db)
	if err != nil {
		return 0, err
	}
	if current > CurrentSchemaVersion {
		return current, fmt.Errorf("schema version %d is newer than supported version %d", current, CurrentSchemaVersion)
	}

	for _, migration := range schemaMigrations {
		if migration.version <= current || migration.version > targetVersion {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{
				Version:          migration.version,
				Name:             migration.name,
				AppliedAtSeconds: clock().UTC().Unix(),
			}).Error
		})
		if err != nil {
			return current, fmt.Errorf("migration %d (%s): %w", migration.version, migration.name, err)
		}
		current = migration.version
		if logger != nil {
			logger.Info("schema migration applied",
				zap.Int("version", migration.version),
				zap.String("migration", migration.name))
		}
	}
	return current, nil
}

func createDocumentStores(db *gorm.DB) error {
	migrator := db.Migrator()
	if !migrator.HasTable(&BinaryRecord{}) {
		if err := migrator.CreateTable(&BinaryRecord{}); err != nil {
			return err
		}
	}
	if !migrator.HasTable(&documentRecordV1{}) {
		if err := migrator.CreateTable(&documentRecordV1{}); err != nil {
			return err
		}
	}
	return nil
}

func createFolderStore(db *gorm.DB) error {
	migrator := db.Migrator()
	if !migrator.HasTable(&FolderRecord{}) {
		if err := migrator.CreateTable(&FolderRecord{}); err != nil {
			return err
		}
	}
	if !migrator.HasColumn(&DocumentRecord{}, "FolderID") {
		if err := migrator.AddColumn(&DocumentRecord{}, "FolderID"); err != nil {
			return err
		}
	}
	if !migrator.HasIndex(&DocumentRecord{}, IndexFolderID) {
		if err := migrator.CreateIndex(&DocumentRecord{}, IndexFolderID); err != nil {
			return err
		}
	}
	return nil
}

// storeNanosecondTimestamps adds full precision timestamp columns and fills them from the millisecond
// columns of existing rows.
func storeNanosecondTimestamps(db *gorm.DB) error {
	migrator := db.Migrator()
	if !migrator.HasColumn(&DocumentRecord{}, "UploadedAtNanos") {
		if err := migrator.AddColumn(&DocumentRecord{}, "UploadedAtNanos"); err != nil {
			return err
		}
	}
	if !migrator.HasColumn(&FolderRecord{}, "CreatedAtNanos") {
		if err := migrator.AddColumn(&FolderRecord{}, "CreatedAtNanos"); err != nil {
			return err
		}
	}
	if err := db.Exec(
		"UPDATE metadata SET upload_timestamp_ns = upload_timestamp_ms * ? WHERE upload_timestamp_ns IS NULL OR upload_timestamp_ns = 0",
		nanosPerMilli,
	).Error; err != nil {
		return err
	}
	return db.Exec(
		"UPDATE folders SET created_at_ns = created_at_ms * ? WHERE created_at_ns IS NULL OR created_at_ns = 0",
		nanosPerMilli,
	).Error
}
