package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/pipeworks/factory_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func testCtx() context.Context {
	return utils.SetBusinessIdInContext(context.Background(), "test-business")
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestStartRun_RejectsBadInputBeforePosting(t *testing.T) {
	ctx := testCtx()
	logger := quietLogger()

	cases := []struct {
		name  string
		input *StartRunInput
	}{
		{"zero quantity", &StartRunInput{
			ProductMasterId:  1,
			QuantityProduced: decimal.Zero,
			Ingredients:      []IngredientInput{{RawMaterialId: 1, Quantity: dec("5")}},
		}},
		{"negative quantity", &StartRunInput{
			ProductMasterId:  1,
			QuantityProduced: dec("-10"),
			Ingredients:      []IngredientInput{{RawMaterialId: 1, Quantity: dec("5")}},
		}},
		{"no ingredients", &StartRunInput{
			ProductMasterId:  1,
			QuantityProduced: dec("10"),
		}},
		{"zero ingredient quantity", &StartRunInput{
			ProductMasterId:  1,
			QuantityProduced: dec("10"),
			Ingredients:      []IngredientInput{{RawMaterialId: 1, Quantity: decimal.Zero}},
		}},
		{"negative labour cost", &StartRunInput{
			ProductMasterId:  1,
			QuantityProduced: dec("10"),
			LabourCost:       dec("-1"),
			Ingredients:      []IngredientInput{{RawMaterialId: 1, Quantity: dec("5")}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := StartRun(ctx, logger, tc.input)
			if !errors.Is(err, ErrInvalidQuantity) {
				t.Fatalf("expected ErrInvalidQuantity, got %v", err)
			}
		})
	}
}

func TestStartRun_RequiresBusinessId(t *testing.T) {
	_, err := StartRun(context.Background(), quietLogger(), &StartRunInput{
		ProductMasterId:  1,
		QuantityProduced: dec("10"),
		Ingredients:      []IngredientInput{{RawMaterialId: 1, Quantity: dec("5")}},
	})
	if err == nil {
		t.Fatal("expected error without business id in context")
	}
}

func TestMoveRunToCuring_RejectsNegativeCuringQty(t *testing.T) {
	_, err := MoveRunToCuring(testCtx(), quietLogger(), 1, &MoveToCuringInput{
		CuringLocationId: 1,
		CuringQty:        dec("-5"),
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestCompleteRunCuring_RejectsDamagedExceedingPassed(t *testing.T) {
	_, err := CompleteRunCuring(testCtx(), quietLogger(), 1, &CompleteCuringInput{
		PassedQty:  dec("100"),
		DamagedQty: dec("101"),
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestCompleteRunCuring_RejectsNegativeQuantities(t *testing.T) {
	_, err := CompleteRunCuring(testCtx(), quietLogger(), 1, &CompleteCuringInput{
		PassedQty: dec("-1"),
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}

	_, err = CompleteRunCuring(testCtx(), quietLogger(), 1, &CompleteCuringInput{
		PassedQty:  dec("10"),
		DamagedQty: dec("-1"),
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestAllocateSecondary_RejectsNegativeRequestedQty(t *testing.T) {
	_, err := AllocateSecondary(testCtx(), quietLogger(), 1, &AllocateSecondaryInput{
		RequestedQty:          dec("-20"),
		SepticProductMasterId: 2,
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}
