package workflow

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

func TestIsTransientStorageErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"deadlock", &mysqlDriver.MySQLError{Number: 1213}, true},
		{"lock wait timeout", &mysqlDriver.MySQLError{Number: 1205}, true},
		{"duplicate entry", &mysqlDriver.MySQLError{Number: 1062}, false},
		{"wrapped deadlock", fmt.Errorf("tx failed: %w", &mysqlDriver.MySQLError{Number: 1213}), true},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransientStorageErr(tc.err); got != tc.want {
				t.Fatalf("IsTransientStorageErr(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsDuplicateKeyErr(t *testing.T) {
	if !isDuplicateKeyErr(&mysqlDriver.MySQLError{Number: 1062}) {
		t.Fatal("1062 should be a duplicate key error")
	}
	if isDuplicateKeyErr(&mysqlDriver.MySQLError{Number: 1213}) {
		t.Fatal("1213 is not a duplicate key error")
	}
	if isDuplicateKeyErr(errors.New("duplicate-ish")) {
		t.Fatal("plain error is not a duplicate key error")
	}
}

func TestTypedErrorsMatchWithErrorsIs(t *testing.T) {
	err := insufficientStockError("Cement", dec("10"), dec("50"))
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	err = invalidQuantityError("damaged quantity exceeds passed quantity")
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}

	err = notFoundError("production run", 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err.Error() != "not found: production run 42" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
