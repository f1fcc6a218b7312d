// Package pricing normalizes and prices the add-on options attached to
// a booking request. Callers send options in several historical shapes
// (different field names for id, name, price and quantity); everything
// is folded into model.ReservationOption by Normalize before it touches
// the database.
package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/azurestay/booking/internal/model"
)

// Pricing types accepted on an option. Anything else falls back to
// fixed.
const (
	PricingFixed    = "fixed"
	PricingPerDay   = "per_day"
	PricingPerGuest = "per_guest"
)

// RawOption carries one add-on entry exactly as a caller sent it. Each
// logical field has the aliases different frontends have used over
// time; Normalize resolves them in the documented priority order.
type RawOption struct {
	OptionID string `json:"optionId"`
	LegacyID string `json:"_id"`
	ID       string `json:"id"`

	Name       string `json:"name"`
	OptionName string `json:"optionName"`
	Title      string `json:"title"`

	Price     *float64 `json:"price"`
	UnitPrice *float64 `json:"unitPrice"`

	Quantity *float64 `json:"quantity"`
	Qty      *float64 `json:"qty"`

	PricingType string `json:"pricingType"`
}

// InvalidOptionError signals a malformed option entry. Handlers map it
// to a 400 response.
type InvalidOptionError struct {
	Reason string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid reservation option: %s", e.Reason)
}

// Normalize resolves field aliases, applies defaults and validates each
// entry. Quantity defaults to 1 when absent, price to 0; an unknown
// pricing type becomes fixed. It fails on an empty name, a negative
// price, or a quantity that is not a whole number >= 1.
func Normalize(raw []RawOption) ([]model.ReservationOption, error) {
	normalized := make([]model.ReservationOption, 0, len(raw))
	for _, opt := range raw {
		id := firstNonEmpty(opt.OptionID, opt.LegacyID, opt.ID)
		name := strings.TrimSpace(firstNonEmpty(opt.Name, opt.OptionName, opt.Title))

		pricingType := opt.PricingType
		switch pricingType {
		case PricingFixed, PricingPerDay, PricingPerGuest:
		default:
			pricingType = PricingFixed
		}

		price := 0.0
		if opt.Price != nil {
			price = *opt.Price
		} else if opt.UnitPrice != nil {
			price = *opt.UnitPrice
		}

		quantity := 1.0
		if opt.Quantity != nil {
			quantity = *opt.Quantity
		} else if opt.Qty != nil {
			quantity = *opt.Qty
		}

		if name == "" {
			return nil, &InvalidOptionError{Reason: "name is required"}
		}
		if math.IsNaN(price) || price < 0 {
			return nil, &InvalidOptionError{Reason: "price must be >= 0"}
		}
		if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity != math.Trunc(quantity) || quantity < 1 {
			return nil, &InvalidOptionError{Reason: "quantity must be >= 1"}
		}

		normalized = append(normalized, model.ReservationOption{
			OptionID:    id,
			Name:        name,
			Price:       price,
			Quantity:    int(quantity),
			PricingType: pricingType,
		})
	}
	return normalized, nil
}

// Total computes the combined add-on price for a stay. Fixed options
// contribute price*quantity, per_day options scale by nights and
// per_guest by guests. The sum is rounded to two decimal places.
// Nights and guests below 1 are treated as 1.
func Total(opts []model.ReservationOption, nights, guests int) float64 {
	if nights < 1 {
		nights = 1
	}
	if guests < 1 {
		guests = 1
	}
	total := 0.0
	for _, o := range opts {
		switch o.PricingType {
		case PricingPerDay:
			total += o.Price * float64(nights) * float64(o.Quantity)
		case PricingPerGuest:
			total += o.Price * float64(guests) * float64(o.Quantity)
		default:
			total += o.Price * float64(o.Quantity)
		}
	}
	return math.Round(total*100) / 100
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
