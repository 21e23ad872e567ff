package storage

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
)

// SQLStorage implements the core.AlertStorage interface with a relational backend
type SQLStorage struct {
	db *gorm.DB
}

// FromSQL creates a new SQL storage instance with the given dialect
func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (core.AlertStorage, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&core.Alert{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &SQLStorage{db: db}, nil
}

// SaveAlert stores or replaces an alert
func (s *SQLStorage) SaveAlert(alert *core.Alert) error {
	result := s.db.Save(alert)
	if result.Error != nil {
		return fmt.Errorf("failed to save alert: %w", result.Error)
	}
	return nil
}

// DeleteAlert removes an alert; removing an unknown id is not an error
func (s *SQLStorage) DeleteAlert(id string) error {
	result := s.db.Delete(&core.Alert{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete alert: %w", result.Error)
	}
	return nil
}

// Alerts retrieves alerts from the database based on provided filters
func (s *SQLStorage) Alerts(filters ...core.AlertFilter) ([]*core.Alert, error) {
	alerts := make([]*core.Alert, 0)

	result := s.db.Find(&alerts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", result.Error)
	}

	return lo.Filter(alerts, func(alert *core.Alert, _ int) bool {
		for _, filter := range filters {
			if !filter(*alert) {
				return false
			}
		}
		return true
	}), nil
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
