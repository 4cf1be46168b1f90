// Package gormstore persists paired connections through gorm.
// It supports an embedded SQLite file for single-device use and PostgreSQL for shared deployments.
package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/errors"
	"github.com/turtacn/authenticator/pkg/logger"
)

// DBConnection manages the gorm handle and its connection pool.
type DBConnection struct {
	db     *gorm.DB
	config *config.DatabaseConfig
	logger logger.Logger
}

// NewDBConnection opens the configured database, applies the schema and performs an initial ping.
//
// Parameters:
//   - ctx: Context for the initial health check
//   - cfg: Database configuration selecting the driver and pool settings
//   - log: Logger instance for connection lifecycle events
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil {
		return nil, errors.ErrInvalidRequest("database configuration is required")
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	log = log.WithComponent("DBConnection")

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "Opening connection store", logger.Fields{
		"driver":    cfg.Driver,
		"host":      cfg.Host,
		"database":  cfg.Database,
		"max_conns": cfg.MaxOpenConns,
	})

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		log.Error(ctx, "Failed to open connection store", err)
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to access database pool")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	conn := &DBConnection{db: db, config: cfg, logger: log}
	if err := conn.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := db.WithContext(ctx).AutoMigrate(&ConnectionRecord{}); err != nil {
		_ = sqlDB.Close()
		log.Error(ctx, "Failed to migrate connection store", err)
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to migrate database")
	}
	return conn, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to create database directory")
			}
		}
		return sqlite.Open(cfg.GetDSN()), nil
	case config.DriverPostgres:
		return postgres.Open(cfg.GetDSN()), nil
	default:
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("unsupported database driver %q", cfg.Driver))
	}
}

// DB returns the gorm handle used by the repositories.
func (c *DBConnection) DB() *gorm.DB {
	return c.db
}

// Ping verifies database connectivity.
func (c *DBConnection) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to access database pool")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		c.logger.Error(ctx, "Database ping failed", err)
		return errors.Wrap(err, constants.ErrCodeInternal, "database unreachable")
	}
	if latency := time.Since(start); latency > 100*time.Millisecond {
		c.logger.Warn(ctx, "High database latency detected", logger.Fields{
			"latency_ms":   latency.Milliseconds(),
			"threshold_ms": 100,
		})
	}
	return nil
}

// HealthCheck pings the database and reports pool statistics.
func (c *DBConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to access database pool")
	}
	stats := sqlDB.Stats()
	info := map[string]interface{}{
		"status":           "healthy",
		"driver":           c.config.Driver,
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration_ms": stats.WaitDuration.Milliseconds(),
	}
	if c.config.MaxOpenConns > 0 && stats.InUse >= c.config.MaxOpenConns {
		info["warning"] = "connection_pool_near_limit"
	}
	return info, nil
}

// Close shuts down the connection pool.
func (c *DBConnection) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.logger.Info(context.Background(), "Closing connection store")
	return sqlDB.Close()
}
