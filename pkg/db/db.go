package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"

	"github.com/smallbiznis/receiptpoints/internal/observability/logger"
)

const defaultDSN = "file::memory:?cache=shared"

// Open connects to the pure-Go sqlite driver. A shared in-memory DSN keeps
// every pooled connection on the same database for the life of the process.
func Open(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = defaultDSN
	}

	gormCfg := logger.DefaultGormLoggerConfig()
	gormCfg.Expected = IsDuplicateKeyErr

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.NewGormLogger(log, gormCfg),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.Instrument {
		if err := instrument(conn, cfg.Name); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}

	return conn, nil
}

func instrument(conn *gorm.DB, name string) error {
	if name == "" {
		name = "receipts"
	}
	if err := conn.Use(otelgorm.NewPlugin(
		otelgorm.WithDBName(name),
		otelgorm.WithoutQueryVariables(),
	)); err != nil {
		return fmt.Errorf("attach tracing plugin: %w", err)
	}
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          name,
		RefreshInterval: 15,
	})); err != nil {
		return fmt.Errorf("attach metrics plugin: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(conn *gorm.DB) error {
	if conn == nil {
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
