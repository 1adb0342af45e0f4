package storage

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the local SQLite database at path and runs AutoMigrate
// against the four persisted entities. One *gorm.DB is opened once at
// program start and threaded into every repository constructor.
func Open(path string) (*gorm.DB, error) {
	gormLog := gormlogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}

	if err := AutoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// AutoMigrateAll creates/updates the tables for all persisted entities.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&DocumentRow{},
		&ExecutionRow{},
		&CascadeRunRow{},
		&AgentRow{},
	)
}
