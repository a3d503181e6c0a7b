package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTariffDocumentJSON(t *testing.T) {
	doc := TariffDocument{
		Version:      1,
		Code:         "RATEWRITER:CUSTOM",
		Name:         "Plan",
		Utility:      "Custom",
		Currency:     "AUD",
		DailyCharges: []DailyCharge{{Name: "Charge"}},
		DemandCharges: ChargeGroup{
			All: ChargeRates{Rates: map[string]float64{"ALL": 0}},
		},
		EnergyCharges: ChargeGroup{
			All:    ChargeRates{Rates: map[string]float64{"ALL": 0}},
			Summer: ChargeRates{Rates: map[string]float64{"PERIOD_00_00": 0.25}},
		},
		Seasons: map[string]Season{
			"Summer": {
				FromDay: 1, ToDay: 31, FromMonth: 1, ToMonth: 12,
				TOUPeriods: map[string]TOUPeriod{
					"PERIOD_00_00": {Name: "PERIOD_00_00", ToDayOfWeek: 6, ToMinute: 30},
				},
			},
			"Winter": {TOUPeriods: map[string]TOUPeriod{}},
		},
		SellTariff: SellTariff{
			Name:    "Plan (Sell)",
			Utility: "Custom",
			Seasons: map[string]Season{},
		},
	}

	b, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))

	t.Run("empty buckets marshal as empty objects", func(t *testing.T) {
		var demand map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw["demand_charges"], &demand))
		assert.JSONEq(t, `{"rates":{"ALL":0}}`, string(demand["ALL"]))
		assert.JSONEq(t, `{}`, string(demand["Summer"]), "unused Summer bucket should be an empty object")
		assert.JSONEq(t, `{}`, string(demand["Winter"]), "unused Winter bucket should be an empty object")
	})

	t.Run("sell tariff has no version, code or currency", func(t *testing.T) {
		var sell map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw["sell_tariff"], &sell))
		assert.NotContains(t, sell, "version")
		assert.NotContains(t, sell, "code")
		assert.NotContains(t, sell, "currency")
		assert.Contains(t, sell, "name")
		assert.Contains(t, sell, "utility")
	})

	t.Run("winter season keeps an empty tou_periods object", func(t *testing.T) {
		var seasons map[string]map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw["seasons"], &seasons))
		assert.JSONEq(t, `{}`, string(seasons["Winter"]["tou_periods"]))
	})

	t.Run("round-trips", func(t *testing.T) {
		var got TariffDocument
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, doc, got)
	})
}

func TestMaskSiteID(t *testing.T) {
	assert.Equal(t, "1234***", MaskSiteID("123456789"))
	assert.Equal(t, "1234***", MaskSiteID("1234"))
	assert.Equal(t, "12***", MaskSiteID("12"), "short IDs keep what they have")
	assert.Equal(t, "***", MaskSiteID(""))
}

func TestSiteConfigJSONHidesToken(t *testing.T) {
	b, err := json.Marshal(SiteConfig{
		SiteID:      "abc123",
		Token:       "secret",
		PlanName:    "Plan",
		SealedToken: []byte{1, 2, 3},
	})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret", "plaintext token must never serialize")
	assert.Contains(t, string(b), "sealed_token", "sealed token persists with the config")

	var got SiteConfig
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Empty(t, got.Token, "plaintext token does not survive a round-trip")
	assert.Equal(t, []byte{1, 2, 3}, got.SealedToken)
}
