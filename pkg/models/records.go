package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConditionRecord is one row of the append-only condition-transition log.
// The most recent record for a machine is its active condition; the Last*
// fields mirror the immediately preceding record.
type ConditionRecord struct {
	ID               int64
	MachineID        int64
	CurrentTimestamp time.Time
	CurrentCondition Condition
	CurrentKwh       decimal.Decimal
	LastTimestamp    *time.Time
	LastCondition    *Condition
	LastKwh          *decimal.Decimal
}

// LogHistoryRecord is one row of the per-cycle raw value log.
// Contacts are stored as rounded integers, analog values as decimal strings.
type LogHistoryRecord struct {
	ID           int64
	MachineID    int64
	Timestamp    time.Time
	OnContact    *int64
	AlarmContact *int64
	Temperature  *decimal.Decimal
	Kwh          *decimal.Decimal
	CapstanSpeed *decimal.Decimal
}

// DailySummary is the per-machine per-day roll-up of hours and energy.
// Date is midnight UTC of the local (WIB) calendar day.
type DailySummary struct {
	MachineID       int64
	Date            time.Time
	TotalHours      float64
	TotalKwh        decimal.Decimal
	HeatingUpHours  float64
	HeatingUpKwh    decimal.Decimal
	IddleHours      float64
	IddleKwh        decimal.Decimal
	ProductionHours float64
	ProductionKwh   decimal.Decimal
	IsOneBlock      bool
}
