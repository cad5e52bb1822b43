package models

import "fmt"

// Encoding identifies the numeric encoding of a parameter's register block.
type Encoding string

const (
	EncodingFloat32BE Encoding = "float32-be"
	EncodingFloat32LE Encoding = "float32-le"
	EncodingInt16BE   Encoding = "int16-be"
	EncodingInt16LE   Encoding = "int16-le"
	EncodingUint16BE  Encoding = "uint16-be"
	EncodingUint16LE  Encoding = "uint16-le"
	EncodingInt32BE   Encoding = "int32-be"
	EncodingInt32LE   Encoding = "int32-le"
	EncodingUint32BE  Encoding = "uint32-be"
	EncodingUint32LE  Encoding = "uint32-le"
)

// SensorRole identifies which of the five instrument channels a sensor covers.
type SensorRole string

const (
	RolePowerMeter   SensorRole = "power_meter"
	RoleTemperature  SensorRole = "temperature"
	RoleOnContact    SensorRole = "on_contact"
	RoleAlarmContact SensorRole = "alarm_contact"
	RoleCapstanSpeed SensorRole = "capstan_speed"
)

// RoleOrder is the canonical ordering of sensor roles within a gateway group.
var RoleOrder = []SensorRole{
	RolePowerMeter,
	RoleTemperature,
	RoleOnContact,
	RoleAlarmContact,
	RoleCapstanSpeed,
}

// GatewayEndpoint is a Modbus TCP gateway address.
type GatewayEndpoint struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

// Key returns the pool key for the endpoint.
func (e GatewayEndpoint) Key() string {
	return fmt.Sprintf("%s:%d", e.IP, e.Port)
}

// ParameterMapping describes one register block of a sensor.
// Length is in 16-bit registers; the wire buffer is 2*Length bytes.
type ParameterMapping struct {
	Name     string   `json:"name"`
	Save     bool     `json:"save"`
	Address  uint16   `json:"address"`
	Length   uint16   `json:"length"`
	Formula  float64  `json:"formula"`
	Encoding Encoding `json:"encoding"`
}

// Sensor is one Modbus unit behind a gateway.
type Sensor struct {
	SlaveID uint8              `json:"slave_id"`
	Gateway GatewayEndpoint    `json:"gateway"`
	Params  []ParameterMapping `json:"params"`
}

// Machine is one production machine with its five instrument channels.
// An enabled machine has all five roles populated.
type Machine struct {
	ID           int64                 `json:"id"`
	Name         string                `json:"name"`
	Enabled      bool                  `json:"enabled"`
	PowerMeterID int64                 `json:"power_meter_id"`
	Sensors      map[SensorRole]Sensor `json:"sensors"`
}

// SensorTask is the per-cycle unit of work for one sensor read.
type SensorTask struct {
	MachineID   int64
	MachineName string
	Role        SensorRole
	SlaveID     uint8
	Params      []ParameterMapping
}

// GatewayGroup is the ordered list of sensor tasks that share one gateway.
type GatewayGroup struct {
	Endpoint GatewayEndpoint
	Tasks    []SensorTask
}

// GeneralConfig is the worker-wide configuration row.
type GeneralConfig struct {
	LogFreqMinutes int
	LicenseKey     string
}
