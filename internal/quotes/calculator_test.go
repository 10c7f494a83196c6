package quotes

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func TestComputeItemDiscountThenTax(t *testing.T) {
	item := Item{Description: "design", Quantity: intp(2), UnitPrice: floatp(100), DiscountPercent: floatp(10), TaxPercent: floatp(20)}
	got := ComputeItem(item)
	assert.InDelta(t, 200.0, got.Subtotal, 1e-9)
	assert.InDelta(t, 180.0, got.AfterDiscount, 1e-9)
	assert.InDelta(t, 216.0, got.Total, 1e-9)
}

func TestCalculateTotalSkipsDeletedItems(t *testing.T) {
	items := []Item{
		{Description: "a", Quantity: intp(1), UnitPrice: floatp(50)},
		{Description: "b", Quantity: intp(3), UnitPrice: floatp(20), TaxPercent: floatp(10)},
		{Description: "c", Quantity: intp(5), UnitPrice: floatp(999), ToDelete: true},
	}
	total := CalculateTotal(items)
	assert.InDelta(t, 116.0, total, 1e-9)
	assert.Equal(t, 116.0, Round2(total))
}

func TestCalculateTotalMissingValuesContributeZero(t *testing.T) {
	items := []Item{
		{Description: "no qty", UnitPrice: floatp(10)},
		{Description: "no price", Quantity: intp(4)},
		{Description: "ok", Quantity: intp(1), UnitPrice: floatp(7.5)},
	}
	assert.Equal(t, 7.5, CalculateTotal(items))
}

func TestCalculateTotalEmpty(t *testing.T) {
	assert.Equal(t, 0.0, CalculateTotal(nil))
	assert.Equal(t, 0.0, CalculateTotal([]Item{}))
}

func TestCalculateTotalWithoutAdjustmentsIsExact(t *testing.T) {
	for _, tc := range []struct {
		qty   int
		price float64
	}{{1, 0.1}, {3, 19.99}, {7, 1234.5678}, {10, 0.3}} {
		item := Item{Description: "x", Quantity: intp(tc.qty), UnitPrice: floatp(tc.price), DiscountPercent: floatp(0), TaxPercent: floatp(0)}
		assert.Equal(t, float64(tc.qty)*tc.price, ComputeItem(item).Total)
	}
}

func TestCalculateTotalPermutationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	items := make([]Item, 12)
	for i := range items {
		items[i] = Item{
			Description:     "line",
			Quantity:        intp(rng.Intn(20) + 1),
			UnitPrice:       floatp(float64(rng.Intn(100000)) / 100),
			DiscountPercent: floatp(float64(rng.Intn(50))),
			TaxPercent:      floatp(float64(rng.Intn(25))),
			ToDelete:        rng.Intn(5) == 0,
		}
	}
	want := CalculateTotal(items)
	for i := 0; i < 20; i++ {
		shuffled := append([]Item(nil), items...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.InDelta(t, want, CalculateTotal(shuffled), 1e-6)
	}
}

func TestBreakdownZeroForDeleted(t *testing.T) {
	lines, total := Breakdown([]Item{
		{Description: "keep", Quantity: intp(2), UnitPrice: floatp(10)},
		{Description: "drop", Quantity: intp(2), UnitPrice: floatp(10), ToDelete: true},
	})
	assert.Len(t, lines, 2)
	assert.Equal(t, 20.0, lines[0].Total)
	assert.Equal(t, ItemBreakdown{}, lines[1])
	assert.Equal(t, 20.0, total)
}

func TestRound2AndFormatAmount(t *testing.T) {
	assert.Equal(t, 0.13, Round2(0.125))
	assert.Equal(t, -0.13, Round2(-0.125))
	assert.Equal(t, "1,234,567.89", FormatAmount(1234567.891))
	assert.Equal(t, "216.00", FormatAmount(216.00000000000003))
}
