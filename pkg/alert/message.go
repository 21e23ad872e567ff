package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
)

// FormatMessage renders the user-visible notification text for a
// triggered alert. The layout (symbol, current price, target/level,
// status tag, time, description) is part of the product contract.
func FormatMessage(a core.Alert, price float64, at time.Time) string {
	description := a.Description
	if description == "" {
		description = "No description"
	}
	ts := at.Format("15:04:05")

	switch a.Condition {
	case core.PriceAbove:
		return fmt.Sprintf(
			"🚀 PRICE ALERT 🚀\n\n%s: $%s\nTarget: $%s\nStatus: 📈 ABOVE TARGET\n\nTime: %s\n\n%s",
			a.Symbol, formatPrice(price), formatPrice(a.TargetPrice), ts, description)
	case core.PriceBelow:
		return fmt.Sprintf(
			"📉 PRICE ALERT 📉\n\n%s: $%s\nTarget: $%s\nStatus: 📉 BELOW TARGET\n\nTime: %s\n\n%s",
			a.Symbol, formatPrice(price), formatPrice(a.TargetPrice), ts, description)
	case core.Breakout:
		return fmt.Sprintf(
			"🚀 BREAKOUT ALERT 🚀\n\n%s: $%s\nLevel: $%s\nStatus: ⚡ BREAKOUT\n\nTime: %s\n\n%s",
			a.Symbol, formatPrice(price), formatPrice(a.TargetPrice), ts, description)
	}

	return fmt.Sprintf("Alert: %s @ $%s", a.Symbol, formatPrice(price))
}

// formatPrice formats a price with thousands separators and two
// decimal places, e.g. 50000 -> "50,000.00".
func formatPrice(v float64) string {
	s := fmt.Sprintf("%.2f", v)

	intPart, fracPart, _ := strings.Cut(s, ".")
	sign := ""
	if strings.HasPrefix(intPart, "-") {
		sign, intPart = "-", intPart[1:]
	}

	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}

	return sign + sb.String() + "." + fracPart
}
