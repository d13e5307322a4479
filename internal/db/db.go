package db

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
)

// Init opens the postgres connection and applies migrations.
func Init(databaseURL string) (*gorm.DB, error) {
	gormDB, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(gormDB); err != nil {
		return nil, err
	}

	log.Info().Msg("connected to the database")
	return gormDB, nil
}

// Migrate applies schema migrations. The initial migration creates every
// table this service owns plus the composite index the matcher query leans
// on. Spaces and mod files are owned by the content service; they are
// auto-migrated here only so local and test databases are self-contained.
func Migrate(gormDB *gorm.DB) error {
	m := gormigrate.New(gormDB, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202405010001_initial",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&models.Workload{},
					&models.PlayerSession{},
					&models.Space{},
					&models.ModFile{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					&models.ModFile{},
					&models.Space{},
					&models.PlayerSession{},
					&models.Workload{},
				)
			},
		},
		{
			// At most one open session per (workload, user), enforced at the
			// schema level so concurrent connect reports cannot both insert.
			ID: "202405010002_open_session_unique",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_open_pair ON player_sessions (workload_id, user_id) WHERE disconnected_at IS NULL").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_sessions_open_pair").Error
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
