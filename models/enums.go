package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

type ProductionRunStatus string

const (
	RunStatusStarted   ProductionRunStatus = "Started"
	RunStatusOnCuring  ProductionRunStatus = "On Curing"
	RunStatusCompleted ProductionRunStatus = "Completed"
)

// ParseProductionRunStatus normalizes stored/submitted status strings.
// Legacy records written as "Planned" are read as Started.
func ParseProductionRunStatus(s string) (ProductionRunStatus, error) {
	switch s {
	case "Started", "Planned":
		return RunStatusStarted, nil
	case "On Curing":
		return RunStatusOnCuring, nil
	case "Completed":
		return RunStatusCompleted, nil
	default:
		return "", errors.New("invalid production run status")
	}
}

func (s *ProductionRunStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		parsed, err := ParseProductionRunStatus(string(v))
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	case string:
		parsed, err := ParseProductionRunStatus(v)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ProductionRunStatus", value)
	}
}

func (s ProductionRunStatus) Value() (driver.Value, error) {
	return string(s), nil
}

type MoldStatus string

const (
	MoldStatusAvailable    MoldStatus = "Available"
	MoldStatusInProduction MoldStatus = "In Production"
)

func (s *MoldStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		*s = MoldStatus(v)
	case string:
		*s = MoldStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into MoldStatus", value)
	}
	if *s != MoldStatusAvailable && *s != MoldStatusInProduction {
		return errors.New("invalid mold status")
	}
	return nil
}

func (s MoldStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Raw-material categories and finished-goods categories are disjoint sets;
// production consumes from the former and credits the latter.
var rawMaterialCategories = map[string]struct{}{
	"Raw Materials": {},
	"Cement":        {},
	"Sand":          {},
	"Dust":          {},
	"Aggregate":     {},
	"Steel":         {},
	"Fly Ash":       {},
	"Admixtures":    {},
	"Chemicals":     {},
}

var finishedGoodCategories = map[string]struct{}{
	"RCC Pipes":           {},
	"Septic Tank Products": {},
}

func IsRawMaterialCategory(category string) bool {
	_, ok := rawMaterialCategories[category]
	return ok
}

func IsFinishedGoodCategory(category string) bool {
	_, ok := finishedGoodCategories[category]
	return ok
}

type LocationType string

const (
	LocationTypeCasting LocationType = "Casting"
	LocationTypeCuring  LocationType = "Curing"
	LocationTypeStock   LocationType = "Stock"
	LocationTypeSeptic  LocationType = "Septic"
)

func ParseLocationType(s string) (LocationType, error) {
	switch LocationType(s) {
	case LocationTypeCasting, LocationTypeCuring, LocationTypeStock, LocationTypeSeptic:
		return LocationType(s), nil
	default:
		return "", errors.New("invalid location type")
	}
}

// StockDocType identifies the document that produced a stock movement row.
type StockDocType string

const (
	StockDocTypeOpening      StockDocType = "OPENING"
	StockDocTypeSupply       StockDocType = "SUPPLY"
	StockDocTypeProdStart    StockDocType = "PROD_START"
	StockDocTypeProdComplete StockDocType = "PROD_COMPLETE"
	StockDocTypeAllocate     StockDocType = "ALLOCATE"
	StockDocTypeRebuild      StockDocType = "REBUILD"
)

type ProductionEventType string

const (
	EventTypeRunStarted       ProductionEventType = "RunStarted"
	EventTypeRunMovedToCuring ProductionEventType = "RunMovedToCuring"
	EventTypeRunCompleted     ProductionEventType = "RunCompleted"
	EventTypeRunAllocated     ProductionEventType = "RunAllocated"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)
