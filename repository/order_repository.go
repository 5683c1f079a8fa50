package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/database"
	"storefront-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrStorageUnavailable means no backing store is configured.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrStorageWrite means the store rejected or failed an insert.
	ErrStorageWrite = errors.New("storage write failed")
)

// SaveResult is the stored order plus whether it already existed.
type SaveResult struct {
	Order     *models.Order
	Duplicate bool
}

// OrderRepository is the append-only persistence gateway for orders and
// digital access grants.
type OrderRepository interface {
	SaveOrder(ctx context.Context, order *models.Order) (*SaveResult, error)
	CreateDigitalAccess(ctx context.Context, grant *models.DigitalAccess) error
	Ping(ctx context.Context) error
}

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	conn database.Connector
}

// NewGormOrderRepository creates a new GormOrderRepository.
func NewGormOrderRepository(conn database.Connector) OrderRepository {
	return &GormOrderRepository{conn: conn}
}

// SaveOrder inserts order unless a row with the same session id exists, in
// which case the existing row is returned with Duplicate set.
func (r *GormOrderRepository) SaveOrder(ctx context.Context, order *models.Order) (*SaveResult, error) {
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}
	if order.Currency == "" {
		order.Currency = "usd"
	}

	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "stripe_session_id"}}, DoNothing: true}).
		Create(order)
	if res.Error != nil {
		return nil, fmt.Errorf("%w: insert order: %w", ErrStorageWrite, res.Error)
	}
	if res.RowsAffected > 0 {
		return &SaveResult{Order: order}, nil
	}

	var existing models.Order
	if err := db.WithContext(ctx).Where("stripe_session_id = ?", order.SessionID).First(&existing).Error; err != nil {
		return nil, fmt.Errorf("%w: load existing order: %w", ErrStorageWrite, err)
	}
	return &SaveResult{Order: &existing, Duplicate: true}, nil
}

func (r *GormOrderRepository) CreateDigitalAccess(ctx context.Context, grant *models.DigitalAccess) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Create(grant).Error; err != nil {
		return fmt.Errorf("%w: insert digital access: %w", ErrStorageWrite, err)
	}
	return nil
}

// Ping checks the store is reachable.
func (r *GormOrderRepository) Ping(ctx context.Context) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormOrderRepository) db(ctx context.Context) (*gorm.DB, error) {
	db, err := r.conn.DB(ctx)
	if errors.Is(err, database.ErrNotConfigured) {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrStorageWrite, err)
	}
	return db, nil
}
