package poller

import (
	"github.com/fhmmla/oee-be/pkg/models"
)

// GroupByGateway folds the fleet into per-gateway task lists. Every enabled
// machine contributes five tasks, one per role in canonical order; groups
// keep machine discovery order, and appear in order of first use.
func GroupByGateway(machines []models.Machine) []models.GatewayGroup {
	index := make(map[string]int)
	groups := make([]models.GatewayGroup, 0)

	for _, machine := range machines {
		if !machine.Enabled {
			continue
		}
		for _, role := range models.RoleOrder {
			sensor, ok := machine.Sensors[role]
			if !ok {
				continue
			}
			task := models.SensorTask{
				MachineID:   machine.ID,
				MachineName: machine.Name,
				Role:        role,
				SlaveID:     sensor.SlaveID,
				Params:      sensor.Params,
			}

			key := sensor.Gateway.Key()
			i, ok := index[key]
			if !ok {
				i = len(groups)
				index[key] = i
				groups = append(groups, models.GatewayGroup{Endpoint: sensor.Gateway})
			}
			groups[i].Tasks = append(groups[i].Tasks, task)
		}
	}

	return groups
}
