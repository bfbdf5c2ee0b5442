package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/salonbook/internal/audit/domain"
	cashdomain "github.com/smallbiznis/salonbook/internal/cashregister/domain"
	commissiondomain "github.com/smallbiznis/salonbook/internal/commission/domain"
	ruledomain "github.com/smallbiznis/salonbook/internal/commissionrule/domain"
	"github.com/smallbiznis/salonbook/internal/events"
	invoicedomain "github.com/smallbiznis/salonbook/internal/invoice/domain"
	referencedomain "github.com/smallbiznis/salonbook/internal/reference/domain"
	"gorm.io/gorm"
)

// Models lists every table owned by the settlement engine in dependency order.
func Models() []any {
	return []any{
		&referencedomain.Branch{},
		&referencedomain.Customer{},
		&referencedomain.Staff{},
		&referencedomain.SalonService{},
		&referencedomain.Appointment{},
		&invoicedomain.Invoice{},
		&invoicedomain.Payment{},
		&ruledomain.CommissionRule{},
		&commissiondomain.StaffCommission{},
		&commissiondomain.SweepCheck{},
		&cashdomain.CashRegisterLog{},
		&events.DomainEvent{},
		&auditdomain.AuditLog{},
	}
}

// RunMigrations applies the embedded postgres migrations and returns the
// schema version the database ends on.
func RunMigrations(db *sql.DB) (uint, error) {
	if db == nil {
		return 0, errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return 0, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return 0, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return 0, fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}

	// migrator.Close would also close the shared *sql.DB.
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := migrator.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

const (
	onceDayIndex  = "ux_cash_logs_once_per_day"
	onceDayColumn = "once_per_day_type"
)

// AutoMigrate builds the schema from the models for sqlite and mysql and
// adds the unique index that allows one opening and one closing per branch
// and business date.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	var err error
	switch db.Dialector.Name() {
	case "sqlite":
		err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ` + onceDayIndex + `
			ON cash_register_logs (branch_id, business_date, type)
			WHERE type IN ('OPENING', 'CLOSING')`).Error
	case "mysql":
		err = generatedOnceDayIndex(db)
	}
	if err != nil {
		return fmt.Errorf("create cash log index: %w", err)
	}
	return nil
}

// generatedOnceDayIndex covers engines without partial indexes. The
// generated column is NULL for every other log type and unique indexes
// ignore NULLs.
func generatedOnceDayIndex(db *gorm.DB) error {
	m := db.Migrator()
	model := &cashdomain.CashRegisterLog{}
	if !m.HasColumn(model, onceDayColumn) {
		err := db.Exec(`ALTER TABLE cash_register_logs ADD COLUMN ` + onceDayColumn + ` VARCHAR(16)
			GENERATED ALWAYS AS (CASE WHEN type IN ('OPENING', 'CLOSING') THEN type END) VIRTUAL`).Error
		if err != nil {
			return err
		}
	}
	if m.HasIndex(model, onceDayIndex) {
		return nil
	}
	return db.Exec(`CREATE UNIQUE INDEX ` + onceDayIndex +
		` ON cash_register_logs (branch_id, business_date, ` + onceDayColumn + `)`).Error
}
