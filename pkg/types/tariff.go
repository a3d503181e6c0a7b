package types

// TariffDocument is the tariff_content_v2 document the vendor stores against
// an energy site. The field set and JSON names mirror the vendor's schema
// exactly, including parts this service always emits as fixed values.
type TariffDocument struct {
	Version  int    `json:"version"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Utility  string `json:"utility"`
	Currency string `json:"currency"`

	DailyCharges  []DailyCharge `json:"daily_charges"`
	DemandCharges ChargeGroup   `json:"demand_charges"`
	EnergyCharges ChargeGroup   `json:"energy_charges"`

	Seasons map[string]Season `json:"seasons"`

	SellTariff SellTariff `json:"sell_tariff"`
}

// SellTariff is the embedded export-price document. The vendor schema omits
// version, code and currency here; only the buy document carries them.
type SellTariff struct {
	Name    string `json:"name"`
	Utility string `json:"utility"`

	DailyCharges  []DailyCharge `json:"daily_charges"`
	DemandCharges ChargeGroup   `json:"demand_charges"`
	EnergyCharges ChargeGroup   `json:"energy_charges"`

	Seasons map[string]Season `json:"seasons"`
}

// DailyCharge is a named fixed daily charge. The vendor requires at least
// one entry even when the charge itself is not used.
type DailyCharge struct {
	Name string `json:"name"`
}

// ChargeGroup splits charges into the vendor's ALL/Summer/Winter buckets.
type ChargeGroup struct {
	All    ChargeRates `json:"ALL"`
	Summer ChargeRates `json:"Summer"`
	Winter ChargeRates `json:"Winter"`
}

// ChargeRates maps a period key (or "ALL") to a price in dollars per kWh.
// A zero value marshals as an empty object, matching the vendor's schema
// for unused buckets.
type ChargeRates struct {
	Rates map[string]float64 `json:"rates,omitempty"`
}

// Season is one entry in the seasons map. This service spans the whole year
// with a single active "Summer" season; "Winter" is emitted all-zero with an
// empty (but present) tou_periods object.
type Season struct {
	FromDay    int                  `json:"fromDay"`
	ToDay      int                  `json:"toDay"`
	FromMonth  int                  `json:"fromMonth"`
	ToMonth    int                  `json:"toMonth"`
	TOUPeriods map[string]TOUPeriod `json:"tou_periods"`
}

// TOUPeriod describes when one half-hour period applies during the week.
type TOUPeriod struct {
	Name          string `json:"name"`
	FromDayOfWeek int    `json:"fromDayOfWeek"`
	ToDayOfWeek   int    `json:"toDayOfWeek"`
	FromHour      int    `json:"fromHour"`
	FromMinute    int    `json:"fromMinute"`
	ToHour        int    `json:"toHour"`
	ToMinute      int    `json:"toMinute"`
}

// StoredTariff is the slice of a site_info readback this service compares
// against what it sent: the Summer buy rates keyed by period.
type StoredTariff struct {
	Rates map[string]float64
}

// BuyRates returns the document's active buy rates keyed by period. The map
// is the document's own; callers must not mutate it.
func (d TariffDocument) BuyRates() map[string]float64 {
	return d.EnergyCharges.Summer.Rates
}
