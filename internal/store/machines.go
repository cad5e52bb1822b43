package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
)

// ErrConfigMissing is returned when the general configuration row is absent.
var ErrConfigMissing = errors.New("general configuration row missing")

// MachineStore reads the fleet configuration. The worker treats it as
// read-only and re-queries every cycle.
type MachineStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewMachineStore creates a machine configuration store.
func NewMachineStore(db *sql.DB, logger logging.Logger) *MachineStore {
	return &MachineStore{db: db, logger: logger}
}

// ListEnabledMachines returns every enabled machine with its nested sensor,
// parameter, and gateway records.
func (s *MachineStore) ListEnabledMachines(ctx context.Context) ([]models.Machine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.name, m.power_meter_id,
		       s.role, s.slave_id, s.gateway_ip, s.gateway_port,
		       p.name, p.save, p.address, p.length, p.formula, p.encoding
		FROM machines m
		JOIN sensors s ON s.machine_id = m.id
		JOIN sensor_params p ON p.sensor_id = s.id
		WHERE m.enabled = true
		ORDER BY m.id, s.role, p.sort_order
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	index := make(map[int64]int)
	machines := make([]models.Machine, 0)

	for rows.Next() {
		var (
			machineID    int64
			machineName  string
			powerMeterID int64
			role         string
			slaveID      int
			gatewayIP    string
			gatewayPort  int
			param        models.ParameterMapping
			encoding     string
		)
		if err := rows.Scan(
			&machineID, &machineName, &powerMeterID,
			&role, &slaveID, &gatewayIP, &gatewayPort,
			&param.Name, &param.Save, &param.Address, &param.Length, &param.Formula, &encoding,
		); err != nil {
			return nil, fmt.Errorf("failed to scan machine row: %w", err)
		}
		param.Encoding = models.Encoding(encoding)

		i, ok := index[machineID]
		if !ok {
			i = len(machines)
			index[machineID] = i
			machines = append(machines, models.Machine{
				ID:           machineID,
				Name:         machineName,
				Enabled:      true,
				PowerMeterID: powerMeterID,
				Sensors:      make(map[models.SensorRole]models.Sensor),
			})
		}

		sensorRole := models.SensorRole(role)
		sensor, ok := machines[i].Sensors[sensorRole]
		if !ok {
			sensor = models.Sensor{
				SlaveID: uint8(slaveID),
				Gateway: models.GatewayEndpoint{IP: gatewayIP, Port: uint16(gatewayPort)},
			}
		}
		sensor.Params = append(sensor.Params, param)
		machines[i].Sensors[sensorRole] = sensor
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate machine rows: %w", err)
	}

	return machines, nil
}

// GetGeneralConfig returns the single worker-wide configuration row.
func (s *MachineStore) GetGeneralConfig(ctx context.Context) (*models.GeneralConfig, error) {
	var cfg models.GeneralConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT log_freq, license_key FROM general_config LIMIT 1
	`).Scan(&cfg.LogFreqMinutes, &cfg.LicenseKey)
	if err == sql.ErrNoRows {
		return nil, ErrConfigMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query general config: %w", err)
	}
	return &cfg, nil
}
