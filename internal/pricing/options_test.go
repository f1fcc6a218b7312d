package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azurestay/booking/internal/model"
	"github.com/azurestay/booking/internal/pricing"
)

func f(v float64) *float64 { return &v }

func TestNormalizeResolvesAliases(t *testing.T) {
	raw := []pricing.RawOption{
		{OptionID: "opt-1", Name: "Breakfast", Price: f(12), Quantity: f(2), PricingType: "per_day"},
		{LegacyID: "opt-2", OptionName: "Parking", UnitPrice: f(8), Qty: f(1)},
		{ID: "opt-3", Title: "Late checkout", Price: f(25)},
	}

	opts, err := pricing.Normalize(raw)
	require.NoError(t, err)
	require.Len(t, opts, 3)

	assert.Equal(t, model.ReservationOption{OptionID: "opt-1", Name: "Breakfast", Price: 12, Quantity: 2, PricingType: "per_day"}, opts[0])
	assert.Equal(t, model.ReservationOption{OptionID: "opt-2", Name: "Parking", Price: 8, Quantity: 1, PricingType: "fixed"}, opts[1])
	// Missing quantity defaults to 1, unknown pricing type to fixed.
	assert.Equal(t, model.ReservationOption{OptionID: "opt-3", Name: "Late checkout", Price: 25, Quantity: 1, PricingType: "fixed"}, opts[2])
}

func TestNormalizeUnknownPricingTypeFallsBack(t *testing.T) {
	opts, err := pricing.Normalize([]pricing.RawOption{
		{Name: "Spa", Price: f(30), Quantity: f(1), PricingType: "per_week"},
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed", opts[0].PricingType)
}

func TestNormalizeRejectsBadEntries(t *testing.T) {
	cases := []struct {
		name string
		raw  pricing.RawOption
	}{
		{"empty name", pricing.RawOption{Price: f(10), Quantity: f(1)}},
		{"whitespace name", pricing.RawOption{Name: "   ", Price: f(10), Quantity: f(1)}},
		{"negative price", pricing.RawOption{Name: "Breakfast", Price: f(-1), Quantity: f(1)}},
		{"zero quantity", pricing.RawOption{Name: "Breakfast", Price: f(10), Quantity: f(0)}},
		{"fractional quantity", pricing.RawOption{Name: "Breakfast", Price: f(10), Quantity: f(1.5)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := pricing.Normalize([]pricing.RawOption{tc.raw})
			var invalid *pricing.InvalidOptionError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestTotalPerDayAndFixed(t *testing.T) {
	opts := []model.ReservationOption{
		{Name: "Breakfast", Price: 10, Quantity: 2, PricingType: "per_day"},
		{Name: "Welcome basket", Price: 5, Quantity: 3, PricingType: "fixed"},
	}
	// per_day: 10 * 3 nights * 2 = 60; fixed: 5 * 3 = 15.
	assert.Equal(t, 75.0, pricing.Total(opts, 3, 2))
}

func TestTotalPerGuest(t *testing.T) {
	opts := []model.ReservationOption{
		{Name: "City tour", Price: 20, Quantity: 1, PricingType: "per_guest"},
	}
	assert.Equal(t, 80.0, pricing.Total(opts, 5, 4))
}

func TestTotalDefaultsNightsAndGuests(t *testing.T) {
	opts := []model.ReservationOption{
		{Name: "Breakfast", Price: 10, Quantity: 1, PricingType: "per_day"},
		{Name: "Tour", Price: 10, Quantity: 1, PricingType: "per_guest"},
	}
	assert.Equal(t, 20.0, pricing.Total(opts, 0, -3))
}

func TestTotalRoundsToCents(t *testing.T) {
	opts := []model.ReservationOption{
		{Name: "Tax", Price: 0.333, Quantity: 1, PricingType: "per_day"},
	}
	assert.Equal(t, 1.0, pricing.Total(opts, 3, 1))
}
