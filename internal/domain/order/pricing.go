package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/foodmarket/internal/domain/cart"
)

// FeeSchedule is the flat set of charges added to every order regardless of
// its size.
type FeeSchedule struct {
	Delivery decimal.Decimal
	Service  decimal.Decimal
	Tax      decimal.Decimal
	Tip      decimal.Decimal
	Donation decimal.Decimal
}

// DefaultFees returns the stock fee schedule.
func DefaultFees() FeeSchedule {
	return FeeSchedule{
		Delivery: decimal.NewFromInt(30),
		Service:  decimal.NewFromInt(40),
		Tax:      decimal.NewFromInt(300),
		Tip:      decimal.NewFromInt(400),
		Donation: decimal.NewFromInt(2),
	}
}

// Price computes the charges for items. Total is always the plain sum of the
// subtotal and every fee.
func (f FeeSchedule) Price(items []cart.Item) Charges {
	subtotal := cart.Subtotal(items)
	return Charges{
		Subtotal:    subtotal,
		DeliveryFee: f.Delivery,
		ServiceFee:  f.Service,
		Tax:         f.Tax,
		Tip:         f.Tip,
		Donation:    f.Donation,
		Total:       subtotal.Add(f.Delivery).Add(f.Service).Add(f.Tax).Add(f.Tip).Add(f.Donation),
	}
}

// Sum recomputes the total from the individual fields.
func (c Charges) Sum() decimal.Decimal {
	return c.Subtotal.Add(c.DeliveryFee).Add(c.ServiceFee).Add(c.Tax).Add(c.Tip).Add(c.Donation)
}
