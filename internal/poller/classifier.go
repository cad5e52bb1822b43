package poller

import (
	"math"

	"github.com/fhmmla/oee-be/pkg/models"
)

// Classify derives the machine condition from an aggregated reading and the
// dwell predicate. Pure: same inputs always yield the same condition.
// Missing values count as 0; contact values are rounded before comparison.
func Classify(reading models.MachineReading, hot bool) models.Condition {
	on := roundedOrZero(reading.OnContact)
	alarm := roundedOrZero(reading.AlarmContact)
	speed := roundedOrZero(reading.CapstanSpeed)

	switch {
	case on == 0:
		return models.ConditionOff
	case on == 1 && !hot:
		return models.ConditionHeatingUp
	case on == 1 && hot && alarm == 0:
		return models.ConditionIddle
	case on == 1 && hot && alarm == 1 && speed == 1:
		return models.ConditionProduction
	case on == 1 && hot && alarm == 1 && speed == 0:
		return models.ConditionIddle
	default:
		return models.ConditionUnknown
	}
}

func roundedOrZero(v *float64) int {
	if v == nil {
		return 0
	}
	return int(math.Round(*v))
}
