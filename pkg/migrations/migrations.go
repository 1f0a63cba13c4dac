package migrations

import (
	"os"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/shovel-house/shovel-api/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MigrateStore applies every pending goose migration found in the
// configured folder.
func MigrateStore(db *gorm.DB, cfg *config.Config) error {
	goose.SetLogger(&logger{})

	migrationFolder := cfg.Service.MigrationFolder
	fi, err := os.Stat(migrationFolder)
	if err != nil {
		return errors.Wrap(err, "failed to open migration folder")
	}

	if !fi.Mode().IsDir() {
		return errors.Errorf("failed to open migration folder: %s is not a folder", migrationFolder)
	}

	goose.SetBaseFS(os.DirFS(migrationFolder))

	if err := goose.SetDialect(dialect(cfg.Database.Type)); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get sql db")
	}

	return errors.Wrap(goose.Up(sqlDB, "."), "failed to apply migrations")
}

func dialect(dbType string) string {
	if dbType == "pgsql" {
		return "postgres"
	}
	return "sqlite3"
}

/*
logger implements goose.Logger interface

	type Logger interface {
		Fatalf(format string, v ...interface{})
		Printf(format string, v ...interface{})
	}
*/
type logger struct{}

func (m *logger) Printf(format string, v ...interface{}) { zap.S().Named("migrations").Infof(format, v...) }
func (m *logger) Fatalf(format string, v ...interface{}) { zap.S().Named("migrations").Fatalf(format, v...) }
