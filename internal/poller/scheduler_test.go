package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhmmla/oee-be/internal/modbus"
	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
	"github.com/fhmmla/oee-be/pkg/monitoring"
)

type fakeMachineSource struct {
	machines []models.Machine
}

func (f *fakeMachineSource) ListEnabledMachines(_ context.Context) ([]models.Machine, error) {
	return f.machines, nil
}

type fakeConfigSource struct {
	cfg *models.GeneralConfig
}

func (f *fakeConfigSource) GetGeneralConfig(_ context.Context) (*models.GeneralConfig, error) {
	return f.cfg, nil
}

type fakeLicense struct{}

func (fakeLicense) Validate(_ string, _ int) error { return nil }

type fakePool struct{}

func (fakePool) Acquire(_ models.GatewayEndpoint) (modbus.Client, error) { return nil, nil }
func (fakePool) MarkDisconnected(_ models.GatewayEndpoint)               {}

type recordedCall struct {
	machineID     int64
	condition     models.Condition
	kwh           decimal.Decimal
	forceSnapshot bool
	skipHistory   bool
}

type fakeRecorder struct {
	calls []recordedCall
}

func (f *fakeRecorder) Record(_ context.Context, machineID int64, condition models.Condition, kwh decimal.Decimal, _ time.Time, _ *models.MachineReading, forceSnapshot, skipLogHistory bool) (bool, error) {
	f.calls = append(f.calls, recordedCall{machineID, condition, kwh, forceSnapshot, skipLogHistory})
	return true, nil
}

type fakeHistoryWriter struct {
	fakeHistory
	batches [][]models.MachineReading
}

func (f *fakeHistoryWriter) SaveBatch(_ context.Context, readings []models.MachineReading) error {
	f.batches = append(f.batches, readings)
	return nil
}

func newTestScheduler(recorder *fakeRecorder, history *fakeHistoryWriter) *Scheduler {
	logger := logging.NewLogger()
	dwell := NewDwellTracker(history, &fakeConditions{}, logger)
	return NewScheduler(
		&fakeMachineSource{},
		&fakeConfigSource{cfg: &models.GeneralConfig{LogFreqMinutes: 15}},
		fakeLicense{},
		fakePool{},
		dwell,
		recorder,
		history,
		monitoring.NewMetrics(prometheus.NewRegistry()),
		logger,
		Config{},
	)
}

// stubClient answers every register read with an encoded 1.0.
type stubClient struct{}

func (stubClient) SetSlave(_ byte) {}

func (stubClient) ReadHoldingRegisters(_, _ uint16) ([]byte, error) {
	return modbus.EncodeValue(1.0, models.EncodingFloat32BE)
}

// selectivePool serves clients for known gateways and refuses the rest.
type selectivePool struct {
	clients map[string]modbus.Client

	mu     sync.Mutex
	marked []string
}

func (p *selectivePool) Acquire(endpoint models.GatewayEndpoint) (modbus.Client, error) {
	if client, ok := p.clients[endpoint.Key()]; ok {
		return client, nil
	}
	return nil, modbus.ErrGatewayUnreachable
}

func (p *selectivePool) MarkDisconnected(endpoint models.GatewayEndpoint) {
	p.mu.Lock()
	p.marked = append(p.marked, endpoint.Key())
	p.mu.Unlock()
}

func TestRunCycleDeadGatewayDoesNotLoseHealthyReadings(t *testing.T) {
	healthy := models.GatewayEndpoint{IP: "10.0.0.5", Port: 502}
	dead := models.GatewayEndpoint{IP: "10.0.0.6", Port: 502}
	machines := []models.Machine{
		fullMachine(1, "SCR-01", healthy, 1),
		fullMachine(2, "SCR-02", dead, 1),
	}

	pool := &selectivePool{clients: map[string]modbus.Client{healthy.Key(): stubClient{}}}
	recorder := &fakeRecorder{}
	history := &fakeHistoryWriter{}
	logger := logging.NewLogger()
	s := NewScheduler(
		&fakeMachineSource{machines: machines},
		&fakeConfigSource{cfg: &models.GeneralConfig{LogFreqMinutes: 15}},
		fakeLicense{},
		pool,
		NewDwellTracker(history, &fakeConditions{}, logger),
		recorder,
		history,
		monitoring.NewMetrics(prometheus.NewRegistry()),
		logger,
		Config{SensorSpacing: time.Millisecond, CycleYield: time.Millisecond},
	)

	s.runCycle(context.Background())

	// The reachable gateway's machine still gets classified and recorded.
	require.Len(t, recorder.calls, 1)
	assert.Equal(t, int64(1), recorder.calls[0].machineID)

	// The dead gateway is faulted for reconnection, not retried inline.
	require.Len(t, pool.marked, 1)
	assert.Equal(t, dead.Key(), pool.marked[0])

	// Cached readings cover only the reachable gateway's sensors.
	assert.Len(t, s.LatestReadings(), len(models.RoleOrder))
}

func TestSnapshotForcesRecordsAndWritesHistory(t *testing.T) {
	recorder := &fakeRecorder{}
	history := &fakeHistoryWriter{}
	s := newTestScheduler(recorder, history)

	ts := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	s.latest.set([]models.SensorReading{
		{MachineID: 1, MachineName: "SCR-01", Role: models.RolePowerMeter, Timestamp: ts,
			Values: map[string]float64{models.KeyKwh: 1200}, Success: true},
		{MachineID: 1, MachineName: "SCR-01", Role: models.RoleOnContact, Timestamp: ts,
			Values: map[string]float64{models.KeyOnContact: 0}, Success: true},
	})

	s.Snapshot(context.Background())

	require.Len(t, history.batches, 1)
	require.Len(t, history.batches[0], 1)
	assert.Equal(t, int64(1), history.batches[0][0].MachineID)

	require.Len(t, recorder.calls, 1)
	call := recorder.calls[0]
	assert.Equal(t, int64(1), call.machineID)
	assert.Equal(t, models.ConditionOff, call.condition)
	assert.True(t, call.kwh.Equal(decimal.NewFromInt(1200)))
	// Snapshots always insert and never double-write log history.
	assert.True(t, call.forceSnapshot)
	assert.True(t, call.skipHistory)
}

func TestSnapshotWithoutCachedReadingsIsNoop(t *testing.T) {
	recorder := &fakeRecorder{}
	history := &fakeHistoryWriter{}
	s := newTestScheduler(recorder, history)

	s.Snapshot(context.Background())

	assert.Empty(t, history.batches)
	assert.Empty(t, recorder.calls)
}
