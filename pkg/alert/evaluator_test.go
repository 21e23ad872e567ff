package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
)

func TestEvaluate_Conditions(t *testing.T) {
	tests := []struct {
		name      string
		condition core.AlertCondition
		target    float64
		price     float64
		triggered bool
	}{
		{"above at target", core.PriceAbove, 100, 100, true},
		{"above just below", core.PriceAbove, 100, 99.999, false},
		{"above over target", core.PriceAbove, 100, 100.5, true},
		{"below at target", core.PriceBelow, 100, 100, true},
		{"below just above", core.PriceBelow, 100, 100.001, false},
		{"below under target", core.PriceBelow, 100, 95, true},
		{"breakout at level", core.Breakout, 100, 100, false},
		{"breakout over level", core.Breakout, 100, 100.01, true},
		{"breakout under level", core.Breakout, 100, 99, false},
		{"unknown condition", core.AlertCondition("bogus"), 100, 200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := core.Alert{Symbol: "BTCUSDT", Condition: tt.condition, TargetPrice: tt.target}
			require.Equal(t, tt.triggered, Evaluate(a, tt.price))
		})
	}
}

func TestFormatMessage_Above(t *testing.T) {
	a := core.Alert{
		Symbol:      "BTCUSDT",
		Condition:   core.PriceAbove,
		TargetPrice: 50000,
		Description: "resistance flip",
	}
	at := time.Date(2024, 5, 1, 13, 37, 5, 0, time.UTC)

	msg := FormatMessage(a, 50123.45, at)
	require.Contains(t, msg, "BTCUSDT: $50,123.45")
	require.Contains(t, msg, "Target: $50,000.00")
	require.Contains(t, msg, "ABOVE TARGET")
	require.Contains(t, msg, "13:37:05")
	require.Contains(t, msg, "resistance flip")
}

func TestFormatMessage_BreakoutUsesLevel(t *testing.T) {
	a := core.Alert{Symbol: "ETHUSDT", Condition: core.Breakout, TargetPrice: 3000}

	msg := FormatMessage(a, 3001.5, time.Now())
	require.Contains(t, msg, "BREAKOUT ALERT")
	require.Contains(t, msg, "Level: $3,000.00")
	require.Contains(t, msg, "No description")
}

func TestFormatPrice(t *testing.T) {
	require.Equal(t, "1,234,567.89", formatPrice(1234567.891))
	require.Equal(t, "999.00", formatPrice(999))
	require.Equal(t, "0.50", formatPrice(0.5))
}
