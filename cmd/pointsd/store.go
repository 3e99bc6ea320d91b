package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/starpoints/internal/config"
	"github.com/MarkoPoloResearchLab/starpoints/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/starpoints/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/starpoints/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// openStore returns the configured ledger store and a cleanup func that releases its connections.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (points.Store, func(), error) {
	driver, sqlitePath, err := resolveDriver(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	switch driver {
	case driverMemory:
		logger.Warn("using in-memory store; claims and receipts are lost on restart")
		return memstore.New(), func() {}, nil
	case driverSQLite:
		return openSQLite(ctx, sqlitePath)
	case driverPostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
}

func openSQLite(ctx context.Context, path string) (points.Store, func(), error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY under load.
	sqlDB.SetMaxOpenConns(1)
	cleanup := func() { _ = sqlDB.Close() }
	store := gormstore.New(db)
	if err := store.AutoMigrate(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("auto migrate: %w", err)
	}
	return store, cleanup, nil
}

func openPostgres(ctx context.Context, cfg config.Config) (points.Store, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := pgstore.Migrate(pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if cfg.StoreDriver == config.StoreDriverPgx {
		return pgstore.New(pool), pool.Close, nil
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	cleanup := func() {
		_ = sqlDB.Close()
		pool.Close()
	}
	return gormstore.New(db), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" || trimmed == config.DatabaseMemory {
		return driverMemory, "", nil
	}
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(trimmed, "sqlite://") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "starpoints.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(trimmed)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
