package poller

import (
	"github.com/fhmmla/oee-be/pkg/models"
)

// AggregateReadings merges the per-sensor readings of each machine into one
// MachineReading per machine. Only successful readings contribute; the
// machine timestamp is the first successful reading's timestamp and the
// values union is last-writer-wins per key. Machines keep discovery order.
func AggregateReadings(readings []models.SensorReading) []models.MachineReading {
	type acc struct {
		reading models.MachineReading
		values  map[string]float64
	}

	index := make(map[int64]int)
	order := make([]*acc, 0)

	for _, r := range readings {
		if !r.Success {
			continue
		}

		i, ok := index[r.MachineID]
		if !ok {
			i = len(order)
			index[r.MachineID] = i
			order = append(order, &acc{
				reading: models.MachineReading{
					MachineID:   r.MachineID,
					MachineName: r.MachineName,
					Timestamp:   r.Timestamp,
				},
				values: make(map[string]float64),
			})
		}
		for k, v := range r.Values {
			order[i].values[k] = v
		}
	}

	out := make([]models.MachineReading, 0, len(order))
	for _, a := range order {
		a.reading.Kwh = lookupValue(a.values, models.KeyKwh)
		a.reading.Temperature = lookupValue(a.values, models.KeyTemperature)
		a.reading.OnContact = lookupValue(a.values, models.KeyOnContact)
		a.reading.AlarmContact = lookupValue(a.values, models.KeyAlarmContact)
		a.reading.CapstanSpeed = lookupValue(a.values, models.KeyCapstanSpeed, models.KeyCapstanSpeedAlt)
		out = append(out, a.reading)
	}
	return out
}

// lookupValue returns the first key present in the values map. Extra keys
// cover historical spelling drift in parameter mappings.
func lookupValue(values map[string]float64, keys ...string) *float64 {
	for _, key := range keys {
		if v, ok := values[key]; ok {
			value := v
			return &value
		}
	}
	return nil
}
