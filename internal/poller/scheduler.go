package poller

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/fhmmla/oee-be/internal/modbus"
	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
	"github.com/fhmmla/oee-be/pkg/monitoring"
)

// MachineSource enumerates the enabled fleet.
type MachineSource interface {
	ListEnabledMachines(ctx context.Context) ([]models.Machine, error)
}

// ConfigSource supplies the worker-wide configuration row.
type ConfigSource interface {
	GetGeneralConfig(ctx context.Context) (*models.GeneralConfig, error)
}

// LicenseChecker validates the license blob against the fleet size.
type LicenseChecker interface {
	Validate(licenseKey string, enabledMachines int) error
}

// ClientPool hands out per-gateway Modbus clients.
type ClientPool interface {
	Acquire(endpoint models.GatewayEndpoint) (modbus.Client, error)
	MarkDisconnected(endpoint models.GatewayEndpoint)
}

// ConditionRecorder appends condition transitions with change detection.
type ConditionRecorder interface {
	Record(ctx context.Context, machineID int64, condition models.Condition, kwh decimal.Decimal, ts time.Time, reading *models.MachineReading, forceSnapshot, skipLogHistory bool) (bool, error)
}

// HistoryWriter persists per-cycle snapshots of raw sensor values.
type HistoryWriter interface {
	SaveBatch(ctx context.Context, readings []models.MachineReading) error
}

// Config tunes the polling scheduler.
type Config struct {
	SensorSpacing    time.Duration // pause between sensor reads on one gateway (default 50ms)
	CycleYield       time.Duration // pause between cycles (default 100ms)
	RetryPause       time.Duration // pause after license/config failures (default 5s)
	MaxSensorRetries int           // whole-sensor read attempts (default 3)
}

func (c Config) withDefaults() Config {
	if c.SensorSpacing == 0 {
		c.SensorSpacing = 50 * time.Millisecond
	}
	if c.CycleYield == 0 {
		c.CycleYield = 100 * time.Millisecond
	}
	if c.RetryPause == 0 {
		c.RetryPause = 5 * time.Second
	}
	if c.MaxSensorRetries == 0 {
		c.MaxSensorRetries = modbus.DefaultMaxRetries
	}
	return c
}

// Scheduler drives the continuous polling cycle: fan out one sequential
// reader per gateway, aggregate to per-machine readings, classify, record.
type Scheduler struct {
	machines   MachineSource
	config     ConfigSource
	license    LicenseChecker
	pool       ClientPool
	dwell      *DwellTracker
	conditions ConditionRecorder
	history    HistoryWriter
	metrics    *monitoring.Metrics
	logger     logging.Logger
	cfg        Config

	latest *latestReadings
}

// NewScheduler wires the polling scheduler from its collaborators.
func NewScheduler(
	machines MachineSource,
	config ConfigSource,
	license LicenseChecker,
	pool ClientPool,
	dwell *DwellTracker,
	conditions ConditionRecorder,
	history HistoryWriter,
	metrics *monitoring.Metrics,
	logger logging.Logger,
	cfg Config,
) *Scheduler {
	return &Scheduler{
		machines:   machines,
		config:     config,
		license:    license,
		pool:       pool,
		dwell:      dwell,
		conditions: conditions,
		history:    history,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		latest:     newLatestReadings(),
	}
}

// Run executes polling cycles until the context is cancelled. Transient
// errors pause and retry; they never terminate the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Polling scheduler started")

	for {
		if ctx.Err() != nil {
			s.logger.Info("Polling scheduler stopped")
			return
		}
		s.runCycle(ctx)
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	started := time.Now()

	cfg, err := s.config.GetGeneralConfig(ctx)
	if err != nil {
		s.logger.WithError(err).Error("General configuration unavailable")
		sleepCtx(ctx, s.cfg.RetryPause)
		return
	}

	machines, err := s.machines.ListEnabledMachines(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Machine enumeration failed")
		sleepCtx(ctx, s.cfg.RetryPause)
		return
	}
	if len(machines) == 0 {
		s.logger.Warn("No enabled machines configured")
		sleepCtx(ctx, s.cfg.RetryPause)
		return
	}

	if err := s.license.Validate(cfg.LicenseKey, len(machines)); err != nil {
		s.logger.WithError(err).Error("License validation failed")
		sleepCtx(ctx, s.cfg.RetryPause)
		return
	}

	groups := GroupByGateway(machines)
	readings := s.collect(ctx, groups)

	for _, reading := range AggregateReadings(readings) {
		if err := s.applyReading(ctx, reading, false, false); err != nil {
			s.logger.WithError(err).WithField("machine_id", reading.MachineID).Error("Condition record failed")
		}
	}

	s.latest.set(readings)

	s.metrics.CyclesTotal.Inc()
	s.metrics.CycleDuration.Observe(time.Since(started).Seconds())

	sleepCtx(ctx, s.cfg.CycleYield)
}

// collect fans out one sequential reader per gateway group. Failures on one
// gateway never cancel the others; a failed gateway is marked disconnected.
func (s *Scheduler) collect(ctx context.Context, groups []models.GatewayGroup) []models.SensorReading {
	out := make([]models.SensorReading, 0, totalTasks(groups))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			readings, err := s.readGroup(gctx, group)
			if err != nil {
				s.logger.WithError(err).WithField("gateway", group.Endpoint.Key()).Error("Gateway unreachable, skipping this cycle")
				s.pool.MarkDisconnected(group.Endpoint)
				s.metrics.GatewayUp.WithLabelValues(group.Endpoint.Key()).Set(0)
				return nil
			}
			s.metrics.GatewayUp.WithLabelValues(group.Endpoint.Key()).Set(1)
			mu.Lock()
			out = append(out, readings...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// readGroup reads each sensor of a gateway group in order. At most one
// register read is in flight per gateway; the Modbus client carries mutable
// slave-id state, so the sequential walk is the serialization.
func (s *Scheduler) readGroup(ctx context.Context, group models.GatewayGroup) ([]models.SensorReading, error) {
	client, err := s.pool.Acquire(group.Endpoint)
	if err != nil {
		return nil, err
	}

	readings := make([]models.SensorReading, 0, len(group.Tasks))
	for i, task := range group.Tasks {
		if ctx.Err() != nil {
			return readings, nil
		}
		if i > 0 {
			sleepCtx(ctx, s.cfg.SensorSpacing)
		}
		reading := modbus.ReadSensorWithRetry(ctx, client, task, s.cfg.MaxSensorRetries, s.logger)
		if !reading.Success {
			s.metrics.SensorReadFailures.WithLabelValues(group.Endpoint.Key()).Inc()
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

// applyReading classifies one aggregated reading and records the condition.
func (s *Scheduler) applyReading(ctx context.Context, reading models.MachineReading, forceSnapshot, skipLogHistory bool) error {
	temperature := 0.0
	if reading.Temperature != nil {
		temperature = *reading.Temperature
	}
	hot := s.dwell.Evaluate(ctx, reading.MachineID, temperature)
	condition := Classify(reading, hot)

	kwh := decimal.Zero
	if reading.Kwh != nil {
		kwh = decimal.NewFromFloat(*reading.Kwh)
	}

	inserted, err := s.conditions.Record(ctx, reading.MachineID, condition, kwh, reading.Timestamp, &reading, forceSnapshot, skipLogHistory)
	if err != nil {
		return err
	}
	if inserted {
		s.metrics.ConditionChanges.WithLabelValues(string(condition)).Inc()
	}
	return nil
}

// Snapshot forces a condition record for every machine of the last cycle and
// bulk-writes log history. It is driven by the snapshot cron and serves as a
// heartbeat for daily accounting.
func (s *Scheduler) Snapshot(ctx context.Context) {
	readings := s.latest.get()
	if len(readings) == 0 {
		s.logger.Warn("Snapshot skipped: no cached readings yet")
		return
	}

	aggregated := AggregateReadings(readings)
	if err := s.history.SaveBatch(ctx, aggregated); err != nil {
		s.logger.WithError(err).Error("Log history batch write failed")
	}

	for _, reading := range aggregated {
		if err := s.applyReading(ctx, reading, true, true); err != nil {
			s.logger.WithError(err).WithField("machine_id", reading.MachineID).Error("Snapshot condition record failed")
		}
	}

	s.metrics.SnapshotRuns.Inc()
	s.logger.WithField("machines", len(aggregated)).Info("Snapshot recorded")
}

// LatestReadings returns the cached raw readings of the last cycle.
func (s *Scheduler) LatestReadings() []models.SensorReading {
	return s.latest.get()
}

func totalTasks(groups []models.GatewayGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Tasks)
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
