package types

import (
	"github.com/shopspring/decimal"
)

// RatePeriod is one user-defined time-of-use window with its prices.
// Start and End are wall-clock "HH:MM" strings. An End of "00:00" is read
// as end of day, so "00:00"-"00:00" covers the whole day.
type RatePeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`

	// Buy is the import price in cents per kWh.
	Buy decimal.Decimal `json:"buy"`
	// Sell is the export (feed-in) price in cents per kWh.
	Sell decimal.Decimal `json:"sell"`
}
