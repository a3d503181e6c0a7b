// Package tariff expands user-defined rate periods into the vendor's
// tariff_content_v2 document. Building is pure: no clock, no I/O, and all
// non-fatal findings come back as Diagnostics for the caller to log.
//
// Two behaviors are deliberate quirks of the document format and are kept
// as-is rather than corrected:
//   - overlapping periods resolve by last-in-input-order on the minutes they
//     stamp, and
//   - slot prices are looked up only at each slot's start minute, so a
//     period whose boundaries are not on a half-hour mark can miss slots
//     entirely.
package tariff

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ratewriter/ratewriter/pkg/types"
)

// DefaultPlanName is used when the caller does not name the plan.
const DefaultPlanName = "Custom TOU (RateWriter)"

const (
	tariffCode  = "RATEWRITER:CUSTOM"
	utilityName = "Custom"
	currency    = "AUD"

	slotMinutes   = 30
	slotCount     = 48
	minutesPerDay = 1440
)

// ValidationError reports an unusable rate period. Index is the position in
// the submitted list, or -1 for list-level problems.
type ValidationError struct {
	Index int
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return e.Msg
	}
	return fmt.Sprintf("rate period %d: %s %s", e.Index, e.Field, e.Msg)
}

// Diagnostic is a non-fatal finding from a build, such as a slot no period
// covers. Callers decide whether and how to surface them.
type Diagnostic struct {
	Slot    string
	Message string
}

func (d Diagnostic) String() string {
	return d.Slot + ": " + d.Message
}

type slotPrice struct {
	buy  float64
	sell float64
}

// parseClock converts an "HH:MM" string to minutes since midnight. Only the
// shape is validated; out-of-range values pass through unchecked.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q (expected HH:MM)", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (expected HH:MM)", s)
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (expected HH:MM)", s)
	}
	return hours*60 + mins, nil
}

// centsToDollars converts a cents/kWh price to dollars rounded to 6 places.
func centsToDollars(cents decimal.Decimal) float64 {
	return cents.Div(decimal.NewFromInt(100)).Round(6).InexactFloat64()
}

// Build expands the given rate periods into a complete tariff document.
//
// Every period stamps prices at minute marks start, start+30, start+60 and
// so on, strictly below its end; an end of "00:00" is read as end of day.
// Later periods overwrite earlier ones on contested marks. The 48 half-hour
// slots then each take the price stamped at exactly their start minute; a
// slot nothing stamped gets 0.0 and a Diagnostic.
func Build(periods []types.RatePeriod, planName string) (types.TariffDocument, []Diagnostic, error) {
	if len(periods) == 0 {
		return types.TariffDocument{}, nil, &ValidationError{Index: -1, Msg: "no rate periods given"}
	}
	if planName == "" {
		planName = DefaultPlanName
	}

	minutePrices := make(map[int]slotPrice)
	for i, p := range periods {
		startMin, err := parseClock(p.Start)
		if err != nil {
			return types.TariffDocument{}, nil, &ValidationError{Index: i, Field: "start", Msg: err.Error()}
		}
		endMin, err := parseClock(p.End)
		if err != nil {
			return types.TariffDocument{}, nil, &ValidationError{Index: i, Field: "end", Msg: err.Error()}
		}
		if endMin == 0 {
			endMin = minutesPerDay
		}

		price := slotPrice{
			buy:  centsToDollars(p.Buy),
			sell: centsToDollars(p.Sell),
		}
		for m := startMin; m < endMin; m += slotMinutes {
			minutePrices[m] = price
		}
	}

	buyRates := make(map[string]float64, slotCount)
	sellRates := make(map[string]float64, slotCount)
	touPeriods := make(map[string]types.TOUPeriod, slotCount)
	var diags []Diagnostic

	for slot := 0; slot < slotCount; slot++ {
		minute := slot * slotMinutes
		hour, min := minute/60, minute%60
		key := fmt.Sprintf("PERIOD_%02d_%02d", hour, min)

		price, ok := minutePrices[minute]
		if !ok {
			diags = append(diags, Diagnostic{Slot: key, Message: "no rate covers this slot, defaulting to 0"})
		}
		buyRates[key] = price.buy
		sellRates[key] = price.sell

		endMinute := minute + slotMinutes
		endHour := endMinute / 60
		if endHour >= 24 {
			endHour = 0
		}
		touPeriods[key] = types.TOUPeriod{
			Name:          key,
			FromDayOfWeek: 0,
			ToDayOfWeek:   6,
			FromHour:      hour,
			FromMinute:    min,
			ToHour:        endHour,
			ToMinute:      endMinute % 60,
		}
	}

	// Both directions share the season table: a single always-active season
	// carrying the 48 periods, plus a structurally required inert one.
	seasons := map[string]types.Season{
		"Summer": {
			FromDay:    1,
			ToDay:      31,
			FromMonth:  1,
			ToMonth:    12,
			TOUPeriods: touPeriods,
		},
		"Winter": {TOUPeriods: map[string]types.TOUPeriod{}},
	}

	doc := types.TariffDocument{
		Version:       1,
		Code:          tariffCode,
		Name:          planName,
		Utility:       utilityName,
		Currency:      currency,
		DailyCharges:  []types.DailyCharge{{Name: "Charge"}},
		DemandCharges: inertCharges(),
		EnergyCharges: types.ChargeGroup{
			All:    types.ChargeRates{Rates: map[string]float64{"ALL": 0}},
			Summer: types.ChargeRates{Rates: buyRates},
		},
		Seasons: seasons,
		SellTariff: types.SellTariff{
			Name:          planName + " (Sell)",
			Utility:       utilityName,
			DailyCharges:  []types.DailyCharge{{Name: "Charge"}},
			DemandCharges: inertCharges(),
			EnergyCharges: types.ChargeGroup{
				All:    types.ChargeRates{Rates: map[string]float64{"ALL": 0}},
				Summer: types.ChargeRates{Rates: sellRates},
			},
			Seasons: seasons,
		},
	}
	return doc, diags, nil
}

func inertCharges() types.ChargeGroup {
	return types.ChargeGroup{
		All: types.ChargeRates{Rates: map[string]float64{"ALL": 0}},
	}
}
