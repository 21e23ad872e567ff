package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/buntdb"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
)

// BuntStorage implements the core.AlertStorage interface using BuntDB
type BuntStorage struct {
	db *buntdb.DB
}

// FromMemory creates an in-memory storage
func FromMemory() (core.AlertStorage, error) {
	return NewBuntStorage(":memory:")
}

// FromFile creates a file-based storage
func FromFile(file string) (core.AlertStorage, error) {
	return NewBuntStorage(file)
}

// NewBuntStorage creates a new BuntDB storage instance
func NewBuntStorage(sourceFile string) (core.AlertStorage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	err = db.CreateIndex("symbol_index", "*", buntdb.IndexJSON("symbol"))
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &BuntStorage{db: db}, nil
}

// SaveAlert stores or replaces an alert
func (b *BuntStorage) SaveAlert(alert *core.Alert) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		content, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}

		_, _, err = tx.Set(alert.ID, string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to store alert: %w", err)
		}

		return nil
	})
}

// DeleteAlert removes an alert; removing an unknown id is not an error
func (b *BuntStorage) DeleteAlert(id string) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(id)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
}

// Alerts retrieves alerts from the database based on provided filters
func (b *BuntStorage) Alerts(filters ...core.AlertFilter) ([]*core.Alert, error) {
	alerts := make([]*core.Alert, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		err := tx.Ascend("symbol_index", func(_, value string) bool {
			var alert core.Alert
			if err := json.Unmarshal([]byte(value), &alert); err != nil {
				return true // skip malformed entries, continue iteration
			}

			for _, filter := range filters {
				if !filter(alert) {
					return true
				}
			}

			alerts = append(alerts, &alert)
			return true
		})

		if err != nil {
			return fmt.Errorf("failed to iterate over alerts: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return alerts, nil
}

// Close closes the database connection
func (b *BuntStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
