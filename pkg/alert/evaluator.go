package alert

import "github.com/ghiemer/crypto-analyzer-gpt/pkg/core"

// Evaluate reports whether the alert condition holds at the given
// price. It is a pure decision function; all side effects (cooldown,
// notification, removal) belong to the registry.
//
// Breakout differs from PriceAbove only in strictness: the target
// itself does not trigger a breakout.
func Evaluate(a core.Alert, price float64) bool {
	switch a.Condition {
	case core.PriceAbove:
		return price >= a.TargetPrice
	case core.PriceBelow:
		return price <= a.TargetPrice
	case core.Breakout:
		return price > a.TargetPrice
	default:
		return false
	}
}
