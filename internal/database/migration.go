package database

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"hostplane/internal/common"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type MigrateOpts struct {
	Connection  *sql.DB
	ServiceLogs chan<- common.ServiceLog
}

func MigrateMysql(opts MigrateOpts) error {
	driver, err := mysql.WithInstance(opts.Connection, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("failed to create mysql driver: %w", err)
	}
	opts.ServiceLogs <- common.ServiceLogf(common.LogLevelDebug, "established database connection")

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create iofs source: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator instance: %w", err)
	}

	version, isDirty, err := migrator.Version()
	if err != nil {
		if !strings.Contains(err.Error(), "no migration") {
			return fmt.Errorf("failed to get version of current migration: %s", err)
		}
	}
	if isDirty {
		return fmt.Errorf("failed to get a clean slate to run migrations on (current dirty version: %v)", version)
	}
	opts.ServiceLogs <- common.ServiceLogf(common.LogLevelDebug, "migrator version: %v (dirty: %v)", version, isDirty)

	if err := migrator.Up(); err != nil {
		if strings.Contains(err.Error(), "no change") {
			opts.ServiceLogs <- common.ServiceLogf(common.LogLevelDebug, "no change detected")
			return nil
		}
		return fmt.Errorf("failed to migrate: %s", err)
	}
	return nil
}
