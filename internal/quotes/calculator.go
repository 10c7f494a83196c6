package quotes

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ItemBreakdown holds the intermediate amounts of one item at full precision.
type ItemBreakdown struct {
	Subtotal      float64 `json:"subtotal"`
	AfterDiscount float64 `json:"after_discount"`
	Total         float64 `json:"total"`
}

// ComputeItem applies quantity, then discount, then tax on the discounted
// amount. Items lacking quantity or unit price contribute zero. Percentages
// are applied as given.
func ComputeItem(item Item) ItemBreakdown {
	if item.Quantity == nil || item.UnitPrice == nil {
		return ItemBreakdown{}
	}
	subtotal := float64(*item.Quantity) * *item.UnitPrice
	afterDiscount := subtotal
	if item.DiscountPercent != nil {
		afterDiscount = subtotal * (1 - *item.DiscountPercent/100)
	}
	total := afterDiscount
	if item.TaxPercent != nil {
		total = afterDiscount * (1 + *item.TaxPercent/100)
	}
	return ItemBreakdown{Subtotal: subtotal, AfterDiscount: afterDiscount, Total: total}
}

// CalculateTotal sums item totals, skipping items flagged for deletion.
func CalculateTotal(items []Item) float64 {
	_, total := Breakdown(items)
	return total
}

// Breakdown returns per-item amounts (zero for deleted items) and the total.
func Breakdown(items []Item) ([]ItemBreakdown, float64) {
	lines := make([]ItemBreakdown, len(items))
	var total float64
	for i, item := range items {
		if item.ToDelete {
			continue
		}
		lines[i] = ComputeItem(item)
		total += lines[i].Total
	}
	return lines, total
}

// Round2 rounds to cents, half away from zero. Display only.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders v with two decimals and thousands grouping.
func FormatAmount(v float64) string {
	return amountPrinter.Sprintf("%.2f", Round2(v))
}
