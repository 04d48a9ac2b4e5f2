package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBatchCost_SumsSnapshotValueAndOverheads(t *testing.T) {
	ingredients := []IngredientCost{
		{Quantity: dec("50"), UnitCost: dec("8.5")},  // 425
		{Quantity: dec("10"), UnitCost: dec("120")},  // 1200
		{Quantity: dec("2.5"), UnitCost: dec("40")},  // 100
	}
	got := BatchCost(ingredients, dec("300"), dec("75"))
	want := dec("2100")
	if !got.Equal(want) {
		t.Fatalf("BatchCost = %s, want %s", got, want)
	}
}

func TestBatchCost_NoIngredients_IsOverheadsOnly(t *testing.T) {
	got := BatchCost(nil, dec("100"), dec("50"))
	if !got.Equal(dec("150")) {
		t.Fatalf("BatchCost = %s, want 150", got)
	}
}

func TestWeightedAverageCost_FirstBatchIntoEmptyItem(t *testing.T) {
	// Crediting n units worth n*c into an empty item must land exactly on c.
	n := dec("95")
	c := dec("12.5")
	got := WeightedAverageCost(decimal.Zero, decimal.Zero, n, n.Mul(c))
	if !got.Equal(c) {
		t.Fatalf("cost = %s, want %s", got, c)
	}
}

func TestWeightedAverageCost_BlendsSecondBatch(t *testing.T) {
	// 100 units at 10 already on hand, incoming 50 units worth 750 (unit 15):
	// (100*10 + 750) / 150 = 11.6667
	got := WeightedAverageCost(dec("100"), dec("10"), dec("50"), dec("750"))
	want := dec("11.6667")
	if !got.Equal(want) {
		t.Fatalf("cost = %s, want %s", got, want)
	}
}

func TestWeightedAverageCost_TwoBatchRoundTrip(t *testing.T) {
	// (n*c + m*c2) / (n+m)
	n, c := dec("40"), dec("25")
	m, c2 := dec("60"), dec("30")

	first := WeightedAverageCost(decimal.Zero, decimal.Zero, n, n.Mul(c))
	second := WeightedAverageCost(n, first, m, m.Mul(c2))

	want := n.Mul(c).Add(m.Mul(c2)).DivRound(n.Add(m), 4)
	if !second.Equal(want) {
		t.Fatalf("cost = %s, want %s", second, want)
	}
}

func TestWeightedAverageCost_ZeroDenominatorIsZero(t *testing.T) {
	got := WeightedAverageCost(decimal.Zero, dec("99"), decimal.Zero, dec("500"))
	if !got.IsZero() {
		t.Fatalf("cost = %s, want 0", got)
	}
}
