package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
)

var wib = time.FixedZone("WIB", 7*3600)

type fakeMachineSource struct {
	machines []models.Machine
}

func (f *fakeMachineSource) ListEnabledMachines(_ context.Context) ([]models.Machine, error) {
	return f.machines, nil
}

type fakeConditionSource struct {
	records map[int64][]models.ConditionRecord
}

func (f *fakeConditionSource) FindInRange(_ context.Context, machineID int64, _, _ time.Time) ([]models.ConditionRecord, error) {
	return f.records[machineID], nil
}

type fakeSummaryWriter struct {
	written []models.DailySummary
}

func (f *fakeSummaryWriter) Upsert(_ context.Context, summary models.DailySummary) error {
	f.written = append(f.written, summary)
	return nil
}

func record(cond models.Condition, cur time.Time, curKwh string, lastKwh *string) models.ConditionRecord {
	rec := models.ConditionRecord{
		MachineID:        1,
		CurrentTimestamp: cur,
		CurrentCondition: cond,
		CurrentKwh:       decimal.RequireFromString(curKwh),
	}
	if lastKwh != nil {
		d := decimal.RequireFromString(*lastKwh)
		rec.LastKwh = &d
	}
	return rec
}

func sptr(s string) *string {
	return &s
}

// machineDay is a production day with an idle gap in the middle:
// Production 08-10, Iddle 10-12, Production 12-14, last record at 14:00.
func machineDay(day time.Time) []models.ConditionRecord {
	at := func(hour int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, wib)
	}
	return []models.ConditionRecord{
		record(models.ConditionProduction, at(8), "100", sptr("98")),
		record(models.ConditionIddle, at(10), "110", sptr("110")),
		record(models.ConditionProduction, at(12), "115", sptr("115")),
		record(models.ConditionProduction, at(14), "125", sptr("120")),
	}
}

func TestRunForDaySingleMachine(t *testing.T) {
	day := time.Date(2026, 8, 23, 12, 0, 0, 0, wib)
	machines := &fakeMachineSource{machines: []models.Machine{
		{ID: 1, Name: "SCR-01", Enabled: true, PowerMeterID: 100},
	}}
	conditions := &fakeConditionSource{records: map[int64][]models.ConditionRecord{
		1: machineDay(day),
	}}
	summaries := &fakeSummaryWriter{}

	calc := NewCalculator(machines, conditions, summaries, wib, logging.NewLogger())
	require.NoError(t, calc.RunForDay(context.Background(), day))

	require.Len(t, summaries.written, 1)
	summary := summaries.written[0]

	assert.Equal(t, int64(1), summary.MachineID)
	assert.Equal(t, time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC), summary.Date)

	assert.InDelta(t, 4, summary.ProductionHours, 1e-9)
	assert.InDelta(t, 2, summary.IddleHours, 1e-9)
	assert.InDelta(t, 0, summary.HeatingUpHours, 1e-9)
	assert.InDelta(t, 6, summary.TotalHours, 1e-9)

	assert.Equal(t, "22", summary.ProductionKwh.String())
	assert.Equal(t, "5", summary.IddleKwh.String())
	assert.Equal(t, "0", summary.HeatingUpKwh.String())
	assert.Equal(t, "27", summary.TotalKwh.String())
	assert.True(t, summary.IsOneBlock)
}

func TestRunForDaySharedMeterSplitsEnergy(t *testing.T) {
	day := time.Date(2026, 8, 23, 12, 0, 0, 0, wib)
	at := func(hour int) time.Time {
		return time.Date(2026, 8, 23, hour, 0, 0, 0, wib)
	}

	machines := &fakeMachineSource{machines: []models.Machine{
		{ID: 1, Name: "SCR-01", Enabled: true, PowerMeterID: 100},
		{ID: 2, Name: "SCR-02", Enabled: true, PowerMeterID: 100},
	}}
	conditions := &fakeConditionSource{records: map[int64][]models.ConditionRecord{
		1: machineDay(day),
		2: {
			record(models.ConditionProduction, at(9), "50", sptr("40")),
			record(models.ConditionOff, at(11), "60", sptr("60")),
		},
	}}
	summaries := &fakeSummaryWriter{}

	calc := NewCalculator(machines, conditions, summaries, wib, logging.NewLogger())
	require.NoError(t, calc.RunForDay(context.Background(), day))
	require.Len(t, summaries.written, 2)

	first := summaries.written[0]
	assert.False(t, first.IsOneBlock)
	// Hours are wall clock, the split never touches them.
	assert.InDelta(t, 4, first.ProductionHours, 1e-9)
	assert.InDelta(t, 2, first.IddleHours, 1e-9)
	assert.Equal(t, "11", first.ProductionKwh.String())
	assert.Equal(t, "2.5", first.IddleKwh.String())
	assert.Equal(t, "13.5", first.TotalKwh.String())

	second := summaries.written[1]
	assert.False(t, second.IsOneBlock)
	assert.InDelta(t, 2, second.ProductionHours, 1e-9)
	assert.Equal(t, "10", second.ProductionKwh.String())
}

func TestRunForDayDistinctMetersDoNotSplit(t *testing.T) {
	day := time.Date(2026, 8, 23, 12, 0, 0, 0, wib)
	at := func(hour int) time.Time {
		return time.Date(2026, 8, 23, hour, 0, 0, 0, wib)
	}

	machines := &fakeMachineSource{machines: []models.Machine{
		{ID: 1, Name: "SCR-01", Enabled: true, PowerMeterID: 100},
		{ID: 2, Name: "SCR-02", Enabled: true, PowerMeterID: 200},
	}}
	conditions := &fakeConditionSource{records: map[int64][]models.ConditionRecord{
		1: machineDay(day),
		2: {
			record(models.ConditionProduction, at(9), "50", sptr("40")),
			record(models.ConditionOff, at(11), "60", sptr("60")),
		},
	}}
	summaries := &fakeSummaryWriter{}

	calc := NewCalculator(machines, conditions, summaries, wib, logging.NewLogger())
	require.NoError(t, calc.RunForDay(context.Background(), day))
	require.Len(t, summaries.written, 2)

	assert.True(t, summaries.written[0].IsOneBlock)
	assert.Equal(t, "22", summaries.written[0].ProductionKwh.String())
	assert.True(t, summaries.written[1].IsOneBlock)
}

func TestRunForDaySharedMeterIdlePeerDoesNotSplit(t *testing.T) {
	day := time.Date(2026, 8, 23, 12, 0, 0, 0, wib)
	at := func(hour int) time.Time {
		return time.Date(2026, 8, 23, hour, 0, 0, 0, wib)
	}

	machines := &fakeMachineSource{machines: []models.Machine{
		{ID: 1, Name: "SCR-01", Enabled: true, PowerMeterID: 100},
		{ID: 2, Name: "SCR-02", Enabled: true, PowerMeterID: 100},
	}}
	conditions := &fakeConditionSource{records: map[int64][]models.ConditionRecord{
		1: machineDay(day),
		// Peer never reached production that day.
		2: {
			record(models.ConditionHeatingUp, at(9), "50", sptr("40")),
			record(models.ConditionOff, at(11), "60", sptr("60")),
		},
	}}
	summaries := &fakeSummaryWriter{}

	calc := NewCalculator(machines, conditions, summaries, wib, logging.NewLogger())
	require.NoError(t, calc.RunForDay(context.Background(), day))
	require.Len(t, summaries.written, 2)

	assert.True(t, summaries.written[0].IsOneBlock)
	assert.Equal(t, "22", summaries.written[0].ProductionKwh.String())
}

func TestRunForDayEmptyDayWritesZeroRow(t *testing.T) {
	day := time.Date(2026, 8, 23, 12, 0, 0, 0, wib)
	machines := &fakeMachineSource{machines: []models.Machine{
		{ID: 1, Name: "SCR-01", Enabled: true, PowerMeterID: 100},
	}}
	conditions := &fakeConditionSource{records: map[int64][]models.ConditionRecord{1: {}}}
	summaries := &fakeSummaryWriter{}

	calc := NewCalculator(machines, conditions, summaries, wib, logging.NewLogger())
	require.NoError(t, calc.RunForDay(context.Background(), day))

	require.Len(t, summaries.written, 1)
	summary := summaries.written[0]
	assert.InDelta(t, 0, summary.TotalHours, 1e-9)
	assert.Equal(t, "0", summary.TotalKwh.String())
	assert.True(t, summary.IsOneBlock)
}

func TestRollUpDayExcludesOffTime(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2026, 8, 23, hour, 0, 0, 0, wib)
	}
	records := []models.ConditionRecord{
		record(models.ConditionOff, at(6), "90", nil),
		record(models.ConditionProduction, at(8), "100", sptr("98")),
		record(models.ConditionOff, at(10), "110", sptr("110")),
	}

	hours, kwh := rollUpDay(records)
	// The 06-08 off stretch counts toward nothing.
	assert.Equal(t, 2*time.Hour, hours[models.ConditionProduction])
	assert.Equal(t, "12", kwh[models.ConditionProduction].String())
	assert.Equal(t, time.Duration(0), hours[models.ConditionIddle])
}

func TestRunPreviousDayTargetsYesterday(t *testing.T) {
	machines := &fakeMachineSource{machines: []models.Machine{
		{ID: 1, Name: "SCR-01", Enabled: true, PowerMeterID: 100},
	}}
	conditions := &fakeConditionSource{records: map[int64][]models.ConditionRecord{1: {}}}
	summaries := &fakeSummaryWriter{}

	calc := NewCalculator(machines, conditions, summaries, wib, logging.NewLogger())
	calc.now = func() time.Time {
		return time.Date(2026, 8, 24, 1, 0, 0, 0, wib)
	}

	require.NoError(t, calc.RunPreviousDay(context.Background()))
	require.Len(t, summaries.written, 1)
	assert.Equal(t, time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC), summaries.written[0].Date)
}
