package workflow

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

// Transition failures are typed so the API boundary can map them to HTTP
// statuses. All of them mean "nothing was committed".
var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyTerminal     = errors.New("production run is already completed")
	ErrInvalidState        = errors.New("transition not allowed from current status")
	ErrTransientConflict   = errors.New("transient storage conflict")
)

func insufficientStockError(itemName string, available, requested decimal.Decimal) error {
	return fmt.Errorf("%w: %s has %s, requested %s", ErrInsufficientStock, itemName, available, requested)
}

func invalidQuantityError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuantity, reason)
}

func notFoundError(kind string, id int) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
}

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDuplicateEntry
	}
	return false
}

// IsTransientStorageErr reports whether the error is a MySQL deadlock or
// lock-wait timeout, i.e. safe to retry the whole transaction.
func IsTransientStorageErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDeadlock || mysqlErr.Number == mysqlErrLockWaitTimeout
	}
	return false
}
