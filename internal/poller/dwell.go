package poller

import (
	"context"
	"sync"
	"time"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
)

const (
	// DwellThreshold is the temperature a machine must hold to count as hot.
	DwellThreshold = 300.0
	// DwellDuration is how long the temperature must stay at or above the
	// threshold for the dwell predicate to hold.
	DwellDuration = time.Hour
	// dwellWindow bounds the log-history lookback for the active hot segment.
	dwellWindow = 90 * time.Minute
)

// HistorySource supplies log history rows for the dwell lookback.
type HistorySource interface {
	FindInRange(ctx context.Context, machineID int64, from, to time.Time) ([]models.LogHistoryRecord, error)
}

// ConditionSource supplies the most recent persisted condition per machine.
type ConditionSource interface {
	FindLatest(ctx context.Context, machineID int64) (*models.ConditionRecord, error)
}

type dwellState struct {
	heatingUpSince *time.Time
	lastFetch      time.Time
}

// DwellTracker evaluates the predicate "temperature >= 300 continuously for
// at least one hour" per machine, reading the active hot segment back out of
// log history so the answer survives worker restarts.
type DwellTracker struct {
	history    HistorySource
	conditions ConditionSource
	logger     logging.Logger

	mu    sync.Mutex
	state map[int64]*dwellState

	now func() time.Time
}

// NewDwellTracker creates a dwell tracker backed by the given stores.
func NewDwellTracker(history HistorySource, conditions ConditionSource, logger logging.Logger) *DwellTracker {
	return &DwellTracker{
		history:    history,
		conditions: conditions,
		logger:     logger,
		state:      make(map[int64]*dwellState),
		now:        time.Now,
	}
}

// Warm primes the per-machine cache at worker start.
func (d *DwellTracker) Warm(ctx context.Context, machineIDs []int64) {
	for _, id := range machineIDs {
		since, _, err := d.lookupSegment(ctx, id)
		if err != nil {
			d.logger.WithError(err).WithField("machine_id", id).Warn("Dwell warm-up lookup failed")
			continue
		}
		d.setState(id, since)
	}
}

// Evaluate reports whether the machine's temperature has been at or above
// the threshold continuously for at least DwellDuration.
func (d *DwellTracker) Evaluate(ctx context.Context, machineID int64, currentTemperature float64) bool {
	if currentTemperature < DwellThreshold {
		d.setState(machineID, nil)
		return false
	}

	since, sawHot, err := d.lookupSegment(ctx, machineID)
	if err != nil {
		// Fall back to the cached segment; a read-through refresh happens
		// on the next cycle.
		d.logger.WithError(err).WithField("machine_id", machineID).Warn("Dwell history lookup failed, using cached state")
		since = d.cachedSince(machineID)
		sawHot = since != nil
	}

	if since == nil {
		if !sawHot && d.lastConditionImpliesHot(ctx, machineID) {
			// The predicate was already satisfied before a data gap;
			// a transient restart must not regress the machine to HeatingUp.
			return true
		}
		d.setState(machineID, nil)
		return false
	}

	d.setState(machineID, since)
	return d.now().Sub(*since) >= DwellDuration
}

// lookupSegment walks the last 90 minutes of log history in ascending order
// and returns the start of the currently active hot segment. sawHot reports
// whether any qualifying sample existed in the window at all.
func (d *DwellTracker) lookupSegment(ctx context.Context, machineID int64) (since *time.Time, sawHot bool, err error) {
	now := d.now()
	rows, err := d.history.FindInRange(ctx, machineID, now.Add(-dwellWindow), now)
	if err != nil {
		return nil, false, err
	}

	for _, row := range rows {
		if row.Temperature == nil {
			continue
		}
		temp, _ := row.Temperature.Float64()
		if temp >= DwellThreshold {
			sawHot = true
			if since == nil {
				ts := row.Timestamp
				since = &ts
			}
		} else {
			since = nil
		}
	}
	return since, sawHot, nil
}

func (d *DwellTracker) lastConditionImpliesHot(ctx context.Context, machineID int64) bool {
	latest, err := d.conditions.FindLatest(ctx, machineID)
	if err != nil {
		d.logger.WithError(err).WithField("machine_id", machineID).Warn("Dwell fallback condition lookup failed")
		return false
	}
	if latest == nil {
		return false
	}
	return latest.CurrentCondition == models.ConditionProduction ||
		latest.CurrentCondition == models.ConditionIddle
}

func (d *DwellTracker) setState(machineID int64, since *time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state[machineID] = &dwellState{heatingUpSince: since, lastFetch: d.now()}
}

func (d *DwellTracker) cachedSince(machineID int64) *time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.state[machineID]; ok {
		return s.heatingUpSince
	}
	return nil
}
