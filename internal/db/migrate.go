package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/csi.monitor/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema means an earlier migration stopped part way. It needs a
// manual fix (and `migrate force`) before the monitor will open the file.
var ErrDirtySchema = errors.New("database schema is dirty")

// SchemaVersion describes where the database sits relative to the
// migrations compiled into this binary.
type SchemaVersion struct {
	Current uint `json:"current"`
	Latest  uint `json:"latest"`
	Dirty   bool `json:"dirty"`
}

// Pending reports whether migrations remain to be applied.
func (v SchemaVersion) Pending() bool { return v.Current < v.Latest }

// migrateLog adapts monitoring's logger to migrate.Logger.
type migrateLog struct{ logf func(string, ...interface{}) }

func (l migrateLog) Printf(format string, v ...interface{}) { l.logf(format, v...) }
func (l migrateLog) Verbose() bool                          { return false }

// withMigrate hands fn a migrate instance over db's connection pool. The
// instance is never closed, since that would close the shared *sql.DB.
func (db *DB) withMigrate(fn func(*migrate.Migrate) error) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	m.Log = migrateLog{monitoring.Prefixed("migrate")}
	return fn(m)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// MigrateUp applies every pending migration. A dirty schema is refused.
func (db *DB) MigrateUp() error {
	return db.withMigrate(func(m *migrate.Migrate) error {
		if _, dirty, err := m.Version(); err == nil && dirty {
			return ErrDirtySchema
		}
		if err := ignoreNoChange(m.Up()); err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back the newest applied migration.
func (db *DB) MigrateDown() error {
	return db.withMigrate(func(m *migrate.Migrate) error {
		if err := ignoreNoChange(m.Steps(-1)); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		return nil
	})
}

// MigrateVersion returns the applied version and dirty flag. An
// unmigrated database reads as version 0.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	err = db.withMigrate(func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			version, dirty, err = 0, false, nil
		}
		return err
	})
	return version, dirty, err
}

// Schema combines MigrateVersion with the newest embedded migration.
func (db *DB) Schema() (SchemaVersion, error) {
	cur, dirty, err := db.MigrateVersion()
	if err != nil {
		return SchemaVersion{}, err
	}
	latest, err := latestMigration(migrationsFS)
	if err != nil {
		return SchemaVersion{}, err
	}
	return SchemaVersion{Current: cur, Latest: latest, Dirty: dirty}, nil
}

// latestMigration returns the highest version among the up migrations in
// fsys, or 0 if there are none.
func latestMigration(fsys fs.FS) (uint, error) {
	src, err := iofs.New(fsys, "migrations")
	if err != nil {
		return 0, err
	}
	defer src.Close()

	v, err := src.First()
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, err
		}
		v = next
	}
}
