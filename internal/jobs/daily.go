package jobs

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
)

// MachineSource enumerates the enabled fleet for roll-up.
type MachineSource interface {
	ListEnabledMachines(ctx context.Context) ([]models.Machine, error)
}

// ConditionRangeSource supplies condition records inside a day window.
type ConditionRangeSource interface {
	FindInRange(ctx context.Context, machineID int64, from, to time.Time) ([]models.ConditionRecord, error)
}

// SummaryWriter upserts daily summary rows.
type SummaryWriter interface {
	Upsert(ctx context.Context, summary models.DailySummary) error
}

// Calculator rolls up per-condition run-hours and energy for one calendar
// day (local time) per machine, including the shared-power-meter split.
type Calculator struct {
	machines   MachineSource
	conditions ConditionRangeSource
	summaries  SummaryWriter
	logger     logging.Logger
	loc        *time.Location
	now        func() time.Time
}

// NewCalculator creates a daily roll-up calculator.
func NewCalculator(machines MachineSource, conditions ConditionRangeSource, summaries SummaryWriter, loc *time.Location, logger logging.Logger) *Calculator {
	return &Calculator{
		machines:   machines,
		conditions: conditions,
		summaries:  summaries,
		logger:     logger,
		loc:        loc,
		now:        time.Now,
	}
}

// RunPreviousDay rolls up the previous local calendar day (H-1).
func (c *Calculator) RunPreviousDay(ctx context.Context) error {
	day := c.now().In(c.loc).AddDate(0, 0, -1)
	return c.RunForDay(ctx, day)
}

// RunForDay rolls up the local calendar day containing the given time.
func (c *Calculator) RunForDay(ctx context.Context, day time.Time) error {
	local := day.In(c.loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	to := from.Add(24*time.Hour - time.Millisecond)
	// Stored as midnight UTC of the local day so a query by date string
	// matches the local day.
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	machines, err := c.machines.ListEnabledMachines(ctx)
	if err != nil {
		return err
	}

	c.logger.WithFields(logging.Fields{
		"date":     date.Format("2006-01-02"),
		"machines": len(machines),
	}).Info("Daily roll-up started")

	recordsByMachine := make(map[int64][]models.ConditionRecord, len(machines))
	for _, machine := range machines {
		records, err := c.conditions.FindInRange(ctx, machine.ID, from, to)
		if err != nil {
			c.logger.WithError(err).WithField("machine_id", machine.ID).Error("Daily roll-up: condition fetch failed")
			continue
		}
		recordsByMachine[machine.ID] = records
	}

	for _, machine := range machines {
		records, ok := recordsByMachine[machine.ID]
		if !ok {
			continue
		}

		summary := summarizeDay(machine.ID, date, records)

		if peers := sharingPeers(machines, machine); len(peers) > 0 &&
			summary.ProductionHours > 0 &&
			anyPeerProduced(peers, recordsByMachine) {
			// Two production blocks on one meter: halve the energy,
			// never the hours.
			summary.IsOneBlock = false
			summary.TotalKwh = halve(summary.TotalKwh)
			summary.HeatingUpKwh = halve(summary.HeatingUpKwh)
			summary.IddleKwh = halve(summary.IddleKwh)
			summary.ProductionKwh = halve(summary.ProductionKwh)
		}

		if err := c.summaries.Upsert(ctx, summary); err != nil {
			c.logger.WithError(err).WithField("machine_id", machine.ID).Error("Daily roll-up: summary upsert failed")
		}
	}

	return nil
}

// summarizeDay computes the per-condition totals for one machine's day.
func summarizeDay(machineID int64, date time.Time, records []models.ConditionRecord) models.DailySummary {
	hours, kwh := rollUpDay(records)

	heating := hours[models.ConditionHeatingUp].Hours()
	iddle := hours[models.ConditionIddle].Hours()
	production := hours[models.ConditionProduction].Hours()

	totalKwh := kwh[models.ConditionHeatingUp].
		Add(kwh[models.ConditionIddle]).
		Add(kwh[models.ConditionProduction])

	return models.DailySummary{
		MachineID:       machineID,
		Date:            date,
		TotalHours:      heating + iddle + production,
		TotalKwh:        totalKwh,
		HeatingUpHours:  heating,
		HeatingUpKwh:    kwh[models.ConditionHeatingUp],
		IddleHours:      iddle,
		IddleKwh:        kwh[models.ConditionIddle],
		ProductionHours: production,
		ProductionKwh:   kwh[models.ConditionProduction],
		IsOneBlock:      true,
	}
}

// rollUpDay attributes durations and segment energy to conditions over a
// chronologically ordered day of records.
//
// Duration: slice i runs from records[i].CurrentTimestamp (or the day's
// lead-in, records[0].LastTimestamp, for the first slice) to
// records[i+1].CurrentTimestamp and belongs to records[i]'s condition.
// The last record contributes no duration.
//
// Energy: kWh is cumulative, so a maximal run of one condition consumes the
// meter delta between its entry boundary and its exit boundary. The entry
// boundary is the first record's LastKwh (energy accumulated since the prior
// snapshot belongs to the segment); the exit boundary is the following
// record's LastKwh, or the run's own final CurrentKwh at the end of the day.
func rollUpDay(records []models.ConditionRecord) (map[models.Condition]time.Duration, map[models.Condition]decimal.Decimal) {
	hours := map[models.Condition]time.Duration{
		models.ConditionHeatingUp:  0,
		models.ConditionIddle:      0,
		models.ConditionProduction: 0,
	}
	kwh := map[models.Condition]decimal.Decimal{
		models.ConditionHeatingUp:  decimal.Zero,
		models.ConditionIddle:      decimal.Zero,
		models.ConditionProduction: decimal.Zero,
	}

	for i := 0; i+1 < len(records); i++ {
		current := records[i]
		next := records[i+1]

		start := current.CurrentTimestamp
		if i == 0 && current.LastTimestamp != nil {
			start = *current.LastTimestamp
		}
		if _, counted := hours[current.CurrentCondition]; counted {
			hours[current.CurrentCondition] += next.CurrentTimestamp.Sub(start)
		}
	}

	for i := 0; i < len(records); {
		condition := records[i].CurrentCondition
		j := i
		for j+1 < len(records) && records[j+1].CurrentCondition == condition {
			j++
		}

		if _, counted := kwh[condition]; counted {
			entry := records[i].CurrentKwh
			if records[i].LastKwh != nil {
				entry = *records[i].LastKwh
			}
			exit := records[j].CurrentKwh
			if j+1 < len(records) && records[j+1].LastKwh != nil {
				exit = *records[j+1].LastKwh
			}
			kwh[condition] = kwh[condition].Add(exit.Sub(entry))
		}

		i = j + 1
	}

	return hours, kwh
}

func sharingPeers(machines []models.Machine, current models.Machine) []models.Machine {
	peers := make([]models.Machine, 0)
	for _, m := range machines {
		if m.PowerMeterID == current.PowerMeterID && m.ID != current.ID {
			peers = append(peers, m)
		}
	}
	return peers
}

func anyPeerProduced(peers []models.Machine, recordsByMachine map[int64][]models.ConditionRecord) bool {
	for _, peer := range peers {
		for _, rec := range recordsByMachine[peer.ID] {
			if rec.CurrentCondition == models.ConditionProduction {
				return true
			}
		}
	}
	return false
}

func halve(d decimal.Decimal) decimal.Decimal {
	return d.Div(decimal.NewFromInt(2))
}
