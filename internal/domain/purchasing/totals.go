package purchasing

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places money is rounded to when persisted or displayed
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// LineInput holds the fields a line total is derived from
type LineInput struct {
	Quantity           decimal.Decimal
	UnitPrice          decimal.Decimal
	DiscountAmount     decimal.Decimal
	DiscountPercentage decimal.NullDecimal
}

// TaxedLine is a line total with the tax rate applied to it
type TaxedLine struct {
	LineTotal decimal.Decimal
	TaxRate   decimal.Decimal
}

// Totals are the order-level financial figures, unrounded
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

// CalculateLineTotal returns quantity*unit_price minus the line discount, never below zero.
// A present discount percentage always wins over the fixed discount amount.
func CalculateLineTotal(in LineInput) decimal.Decimal {
	base := in.Quantity.Mul(in.UnitPrice)

	var discount decimal.Decimal
	if in.DiscountPercentage.Valid {
		discount = base.Mul(in.DiscountPercentage.Decimal).Div(hundred)
	} else {
		discount = in.DiscountAmount
	}

	total := base.Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// CalculatePOTotals sums line totals and per-line tax, then applies the order discount.
// Tax is computed on each line's post-discount total, not on the order subtotal.
func CalculatePOTotals(lines []TaxedLine, discountAmount decimal.Decimal, discountPercentage decimal.NullDecimal) Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal)
		tax = tax.Add(l.LineTotal.Mul(l.TaxRate).Div(hundred))
	}

	discount := discountAmount
	if discountPercentage.Valid {
		discount = subtotal.Mul(discountPercentage.Decimal).Div(hundred)
	}

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxAmount:      tax,
		TotalAmount:    subtotal.Sub(discount).Add(tax),
	}
}

// Rounded returns the totals rounded to MoneyPlaces
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:       RoundMoney(t.Subtotal),
		DiscountAmount: RoundMoney(t.DiscountAmount),
		TaxAmount:      RoundMoney(t.TaxAmount),
		TotalAmount:    RoundMoney(t.TotalAmount),
	}
}

// RoundMoney rounds half away from zero to MoneyPlaces
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Percentage wraps a percentage value as a present optional
func Percentage(v decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(v)
}

// NoPercentage is the absent optional percentage
func NoPercentage() decimal.NullDecimal {
	return decimal.NullDecimal{}
}
