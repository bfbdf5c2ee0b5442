package migration

import (
	"github.com/smallbiznis/salonbook/internal/config"
	"github.com/smallbiznis/salonbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module migrates the schema before anything else touches the database.
// Postgres gets the versioned SQL files; the other dialects are built from
// the models.
var Module = fx.Module("migration",
	fx.Invoke(migrateOnStart),
)

func migrateOnStart(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")
	if conn.Dialector.Name() != db.TypePostgres {
		log.Info("running gorm auto migrate", zap.String("dialect", conn.Dialector.Name()))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	version, err := RunMigrations(sqlDB)
	if err != nil {
		return err
	}
	log.Info("schema migrated", zap.Uint("version", version), zap.String("database", cfg.DBName))
	return nil
}
