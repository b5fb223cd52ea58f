package database

import (
	"context"
	"database/sql"
	"fmt"
	catalogdb "ms-booking/internal/catalog/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	ledgerdb "ms-booking/internal/ledger/db"
	"ms-booking/internal/logger"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// Open connects to the configured database and brings its schema up to date:
// embedded migrations for postgres, bun-generated tables for sqlite.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return openSQLite(ctx, cfg, log)
	case DriverPostgres, "":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	sqldb, err := connect(ctx, "postgres", cfg.DSN(), log)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	log.Info("DATABASE", fmt.Sprintf("✅ PostgreSQL connection successful (%s:%s/%s)", cfg.Host, cfg.Port, cfg.Database))

	if cfg.AutoMigrate {
		if err := migrate(cfg, log); err != nil {
			sqldb.Close()
			return nil, err
		}
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func migrate(cfg config.DatabaseConfig, log *logger.Logger) error {
	migrationDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	runner := migrations.NewRunner(migrationDB, log)
	defer runner.Close()

	if err := runner.MigrateUp(); err != nil {
		return err
	}
	return nil
}

func openSQLite(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	sqldb, err := connect(ctx, sqliteshim.ShimName, cfg.SQLitePath, log)
	if err != nil {
		return nil, err
	}
	// One writer at a time; sqlite serializes anyway.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if err := catalogdb.CreateSchema(ctx, bunDB); err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("create screenings schema: %w", err)
	}
	if err := ledgerdb.CreateSchema(ctx, bunDB); err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("create bookings schema: %w", err)
	}
	log.Info("DATABASE", fmt.Sprintf("✅ SQLite ready at %s", cfg.SQLitePath))
	return bunDB, nil
}

func connect(ctx context.Context, driver, dsn string, log *logger.Logger) (*sql.DB, error) {
	var err error
	for i := 0; i < connectAttempts; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to %s (attempt %d/%d)", driver, i+1, connectAttempts))

		var sqldb *sql.DB
		sqldb, err = sql.Open(driver, dsn)
		if err == nil {
			if err = sqldb.PingContext(ctx); err == nil {
				return sqldb, nil
			}
			sqldb.Close()
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to %s: %v", driver, err))
		if i < connectAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(connectDelay):
			}
		}
	}
	return nil, fmt.Errorf("connect to %s after %d attempts: %w", driver, connectAttempts, err)
}
