package modbus

import (
	"context"
	"time"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
)

// DefaultMaxRetries is the number of whole-sensor read attempts.
const DefaultMaxRetries = 3

// ReadSensor performs one pass over the task's saved parameters. A parameter
// that fails to read or parse is logged and skipped; the sensor counts as
// successful when at least one value was collected.
func ReadSensor(client Client, task models.SensorTask, logger logging.Logger) models.SensorReading {
	reading := models.SensorReading{
		MachineID:   task.MachineID,
		MachineName: task.MachineName,
		Role:        task.Role,
		Timestamp:   time.Now(),
		Values:      make(map[string]float64),
	}

	client.SetSlave(task.SlaveID)

	for _, param := range task.Params {
		if !param.Save {
			continue
		}

		buf, err := client.ReadHoldingRegisters(param.Address, param.Length)
		if err != nil {
			logger.WithError(err).WithFields(logging.Fields{
				"machine": task.MachineName,
				"role":    task.Role,
				"param":   param.Name,
				"address": param.Address,
			}).Warn("Register read failed")
			continue
		}

		value, err := ParseRegisters(buf, param.Encoding)
		if err != nil {
			logger.WithError(err).WithFields(logging.Fields{
				"machine": task.MachineName,
				"role":    task.Role,
				"param":   param.Name,
			}).Warn("Register parse failed")
			continue
		}

		reading.Values[param.Name] = value * param.Formula
	}

	reading.Success = len(reading.Values) > 0
	return reading
}

// ReadSensorWithRetry retries the whole sensor read with linear backoff
// (attempt x 1s) between tries; a cancelled context cuts the backoff short.
// Exhaustion returns a failed reading with Err populated instead of an error.
func ReadSensorWithRetry(ctx context.Context, client Client, task models.SensorTask, maxRetries int, logger logging.Logger) models.SensorReading {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var reading models.SensorReading
	for attempt := 1; attempt <= maxRetries; attempt++ {
		reading = ReadSensor(client, task, logger)
		if reading.Success {
			return reading
		}
		if attempt < maxRetries {
			if !waitRetry(ctx, time.Duration(attempt)*time.Second) {
				break
			}
		}
	}

	reading.Err = "no parameter values collected after retries"
	logger.WithFields(logging.Fields{
		"machine":  task.MachineName,
		"role":     task.Role,
		"slave_id": task.SlaveID,
		"attempts": maxRetries,
	}).Error("Sensor read exhausted retries")

	return reading
}

// waitRetry sleeps the backoff or returns false when the context is done.
func waitRetry(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
