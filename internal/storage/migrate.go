package storage

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open dials Postgres. The caller picks the URL for its environment.
func Open(url string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Migrate syncs the schema and logs which tables were newly created.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("syncing tables")

	before, err := db.Migrator().GetTables()
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	if err := db.AutoMigrate(&MessageRecord{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	after, err := db.Migrator().GetTables()
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	known := make(map[string]bool, len(before))
	for _, t := range before {
		known[t] = true
	}
	var created []string
	for _, t := range after {
		if !known[t] {
			created = append(created, t)
		}
	}

	if len(created) > 0 {
		logger.Info("new tables created", zap.Strings("tables", created))
	} else {
		logger.Info("no new tables created")
	}
	return nil
}
