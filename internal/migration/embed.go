package migration

import "embed"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const (
	migrationsDir   = "migrations"
	migrationsTable = "salonbook_schema_migrations"
)
