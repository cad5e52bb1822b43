package poller

import (
	"sync"

	"github.com/fhmmla/oee-be/pkg/models"
)

// latestReadings is the cycle-to-cron handoff: the cycle writes the raw
// readings of its last pass, the snapshot cron reads them.
type latestReadings struct {
	mu       sync.RWMutex
	readings []models.SensorReading
}

func newLatestReadings() *latestReadings {
	return &latestReadings{}
}

func (l *latestReadings) set(readings []models.SensorReading) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readings = readings
}

func (l *latestReadings) get() []models.SensorReading {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.SensorReading, len(l.readings))
	copy(out, l.readings)
	return out
}
