package workflow

import "github.com/shopspring/decimal"

// IngredientCost is one line of a run's consumption snapshot: the quantity
// consumed and the raw material's unit cost at the moment of consumption.
type IngredientCost struct {
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// BatchCost values one production batch: snapshot ingredient value plus fixed
// overheads. Ingredient unit costs are the ones captured at start; later cost
// changes on the raw material never move a batch's cost basis.
func BatchCost(ingredients []IngredientCost, labourCost, powerCost decimal.Decimal) decimal.Decimal {
	total := labourCost.Add(powerCost)
	for _, ing := range ingredients {
		total = total.Add(ing.Quantity.Mul(ing.UnitCost))
	}
	return total
}

// WeightedAverageCost blends an incoming batch into the existing stock value.
// A zero denominator (empty item receiving a zero batch) defines the cost as zero.
func WeightedAverageCost(currentQty, currentCost, incomingQty, incomingTotalCost decimal.Decimal) decimal.Decimal {
	denominator := currentQty.Add(incomingQty)
	if denominator.IsZero() {
		return decimal.Zero
	}
	existingValue := currentQty.Mul(currentCost)
	return existingValue.Add(incomingTotalCost).DivRound(denominator, 4)
}
