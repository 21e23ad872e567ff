package core

import (
	"fmt"
	"strings"
	"time"
)

// AlertCondition defines when a price alert fires
type AlertCondition string

const (
	// PriceAbove fires when the price reaches or exceeds the target
	PriceAbove AlertCondition = "price_above"
	// PriceBelow fires when the price reaches or falls below the target
	PriceBelow AlertCondition = "price_below"
	// Breakout fires when the price strictly exceeds the target level
	Breakout AlertCondition = "breakout"
)

// ParseCondition validates a raw condition string
func ParseCondition(s string) (AlertCondition, error) {
	switch AlertCondition(s) {
	case PriceAbove, PriceBelow, Breakout:
		return AlertCondition(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCondition, s)
}

// Alert is a one-shot price alert. Once triggered it is removed from
// the active set.
type Alert struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	Symbol      string         `json:"symbol"`
	Condition   AlertCondition `json:"alert_type"`
	TargetPrice float64        `json:"target_price"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
	Triggered   bool           `json:"triggered"`
}

// AlertFilter is a predicate used to narrow alert queries
type AlertFilter func(alert Alert) bool

// WithSymbol filters alerts by symbol, case-insensitively
func WithSymbol(symbol string) AlertFilter {
	return func(alert Alert) bool {
		return strings.EqualFold(alert.Symbol, symbol)
	}
}

// WithCondition filters alerts by condition
func WithCondition(condition AlertCondition) AlertFilter {
	return func(alert Alert) bool {
		return alert.Condition == condition
	}
}
