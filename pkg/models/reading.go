package models

import "time"

// Canonical parameter value keys. Some fleets carry the historical
// "capstand_speed" spelling in their mappings; readers accept both,
// everything the worker writes uses "capstan_speed".
const (
	KeyKwh             = "kwh"
	KeyTemperature     = "temperature"
	KeyOnContact       = "on_contact"
	KeyAlarmContact    = "alarm_contact"
	KeyCapstanSpeed    = "capstan_speed"
	KeyCapstanSpeedAlt = "capstand_speed"
)

// SensorReading is the outcome of one sensor read within a cycle.
type SensorReading struct {
	MachineID   int64
	MachineName string
	Role        SensorRole
	Timestamp   time.Time
	Values      map[string]float64
	Success     bool
	Err         string
}

// MachineReading aggregates the five sensor readings of one machine
// at a single cycle. Nil fields mean the value was not collected.
type MachineReading struct {
	MachineID    int64
	MachineName  string
	Timestamp    time.Time
	Kwh          *float64
	Temperature  *float64
	OnContact    *float64
	AlarmContact *float64
	CapstanSpeed *float64
}

// Condition is the inferred operational state of a machine.
type Condition string

const (
	ConditionOff        Condition = "MachineOFF"
	ConditionHeatingUp  Condition = "HeatingUp"
	ConditionIddle      Condition = "Iddle"
	ConditionProduction Condition = "MachineProduction"
	ConditionUnknown    Condition = "UNKNOWN"
)
