package store

import (
	"github.com/safar/fishmart/internal/apperr"
	"github.com/shopspring/decimal"
)

var (
	TaxRate     = decimal.RequireFromString("0.07")
	DeliveryFee = decimal.RequireFromString("255.00")

	// MaxAmount is the largest value the NUMERIC(12, 2) money columns hold.
	MaxAmount = decimal.RequireFromString("9999999999.99")
)

var errAmountTooLarge = apperr.Invalid("Order total exceeds the maximum allowed amount")

type Totals struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

type PricedLine struct {
	Price    decimal.Decimal
	Quantity int
}

// ComputeTotals prices a cart. Tax is rounded half-up to cents before it
// is added, so total always equals subtotal + tax + delivery fee exactly.
func ComputeTotals(lines []PricedLine) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	tax := subtotal.Mul(TaxRate).Round(2)

	return Totals{
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: DeliveryFee,
		Total:       subtotal.Add(tax).Add(DeliveryFee),
	}
}

// InRange reports whether every amount fits the money columns. Total is
// the largest of them.
func (t Totals) InRange() bool {
	return !t.Total.GreaterThan(MaxAmount)
}
