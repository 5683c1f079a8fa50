package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-service/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotConfigured is returned when no database URL is set.
var ErrNotConfigured = errors.New("database not configured")

// NotConfiguredHint tells an operator how to enable the store.
const NotConfiguredHint = "Database not configured. Please set DATABASE_URL (or SUPABASE_DB_URL / POSTGRES_URL) environment variable."

// Connector hands out a shared *gorm.DB.
type Connector interface {
	DB(ctx context.Context) (*gorm.DB, error)
}

// migrateTimeout bounds schema migration on first connect.
const migrateTimeout = 30 * time.Second

// LazyPostgres opens the connection pool on first use and reuses it after.
// Only a successful open is kept; a failed attempt is retried on the next call.
type LazyPostgres struct {
	dsn         string
	logger      *zap.Logger
	autoMigrate bool
	open        func(dsn string, autoMigrate bool) (*gorm.DB, error)

	mu sync.Mutex
	db *gorm.DB
}

// NewLazyPostgres returns a Connector for dsn. An empty dsn yields
// ErrNotConfigured on every call.
func NewLazyPostgres(dsn string, autoMigrate bool, logger *zap.Logger) *LazyPostgres {
	return &LazyPostgres{dsn: dsn, autoMigrate: autoMigrate, logger: logger, open: open}
}

// Configured reports whether a database URL is present.
func (p *LazyPostgres) Configured() bool { return p.dsn != "" }

// DB returns the shared pool, connecting first if needed. The open is not tied
// to ctx so a caller that goes away cannot poison the pool for later requests.
func (p *LazyPostgres) DB(_ context.Context) (*gorm.DB, error) {
	if p.dsn == "" {
		return nil, ErrNotConfigured
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return p.db, nil
	}

	db, err := p.open(p.dsn, p.autoMigrate)
	if err != nil {
		p.logger.Error("Failed to connect to PostgreSQL", zap.Error(err))
		return nil, err
	}
	p.logger.Info("Connected to PostgreSQL successfully")
	p.db = db
	return db, nil
}

// Close releases the pool if it was opened.
func (p *LazyPostgres) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

func open(dsn string, autoMigrate bool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: dsn,
		// Supabase's transaction pooler rejects server-side prepared statements.
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if autoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
		defer cancel()
		if err := db.WithContext(ctx).AutoMigrate(&models.Order{}, &models.DigitalAccess{}); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return db, nil
}

// Static wraps an already-open handle, mainly for tests.
type Static struct{ Handle *gorm.DB }

func (s Static) DB(context.Context) (*gorm.DB, error) {
	if s.Handle == nil {
		return nil, ErrNotConfigured
	}
	return s.Handle, nil
}
