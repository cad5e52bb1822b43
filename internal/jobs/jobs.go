package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
	"github.com/fhmmla/oee-be/pkg/monitoring"
)

const (
	// DefaultLogFreqMinutes is used when general config carries no usable
	// snapshot frequency.
	DefaultLogFreqMinutes = 15

	// dailySchedule fires the roll-up for the previous day.
	dailySchedule = "0 1 * * *"

	// watchInterval is how often the snapshot frequency is re-read from
	// general config.
	watchInterval = 60 * time.Second
)

// ConfigSource re-reads general config for the frequency watcher.
type ConfigSource interface {
	GetGeneralConfig(ctx context.Context) (*models.GeneralConfig, error)
}

// SnapshotRunner persists the latest cached readings on the snapshot cron.
type SnapshotRunner interface {
	Snapshot(ctx context.Context)
}

// Manager owns the background cron loops: periodic snapshots, the daily
// roll-up, and the watcher that restarts the snapshot loop when the
// configured frequency changes.
type Manager struct {
	config     ConfigSource
	snapshots  SnapshotRunner
	calculator *Calculator
	metrics    *monitoring.Metrics
	logger     logging.Logger
	loc        *time.Location

	mu           sync.Mutex
	logFreq      int
	snapshotStop chan struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a job manager. Schedules are evaluated in loc.
func NewManager(config ConfigSource, snapshots SnapshotRunner, calculator *Calculator, metrics *monitoring.Metrics, loc *time.Location, logger logging.Logger) *Manager {
	return &Manager{
		config:     config,
		snapshots:  snapshots,
		calculator: calculator,
		metrics:    metrics,
		logger:     logger,
		loc:        loc,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the background jobs. It does not block.
func (m *Manager) Start(ctx context.Context) error {
	freq := m.loadLogFreq(ctx)

	m.mu.Lock()
	m.logFreq = freq
	m.mu.Unlock()

	if err := m.startSnapshotLoop(ctx, freq); err != nil {
		return err
	}

	daily, err := ParseSchedule(dailySchedule, m.loc)
	if err != nil {
		return fmt.Errorf("failed to parse daily schedule: %w", err)
	}
	m.wg.Add(2)
	go m.runLoop(ctx, nil, daily, "daily_rollup", m.runDaily)
	go m.watchFrequency(ctx)

	m.logger.WithFields(logging.Fields{
		"log_freq_minutes": freq,
		"daily_schedule":   dailySchedule,
	}).Info("Background jobs started")
	return nil
}

// Stop signals all loops and waits for them to exit.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("Background jobs stopped")
}

func (m *Manager) loadLogFreq(ctx context.Context) int {
	cfg, err := m.config.GetGeneralConfig(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Failed to load general config, using default snapshot frequency")
		return DefaultLogFreqMinutes
	}
	// Minute steps only go up to 59; anything outside the range would be an
	// unschedulable cron expression, so it falls back instead of killing the
	// snapshot heartbeat.
	if cfg.LogFreqMinutes <= 0 || cfg.LogFreqMinutes > 59 {
		if cfg.LogFreqMinutes != 0 {
			m.logger.WithField("log_freq_minutes", cfg.LogFreqMinutes).Warn("Configured snapshot frequency out of range, using default")
		}
		return DefaultLogFreqMinutes
	}
	return cfg.LogFreqMinutes
}

func (m *Manager) startSnapshotLoop(ctx context.Context, freq int) error {
	sched, err := ParseSchedule(fmt.Sprintf("*/%d * * * *", freq), m.loc)
	if err != nil {
		return fmt.Errorf("failed to parse snapshot schedule: %w", err)
	}

	stop := make(chan struct{})
	m.mu.Lock()
	m.snapshotStop = stop
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runLoop(ctx, stop, sched, "snapshot", func(ctx context.Context) {
		m.snapshots.Snapshot(ctx)
	})
	return nil
}

// runLoop sleeps until the schedule's next fire time and invokes fn, until
// the context, the manager, or the loop-specific stop channel says otherwise.
func (m *Manager) runLoop(ctx context.Context, stop <-chan struct{}, sched Schedule, name string, fn func(context.Context)) {
	defer m.wg.Done()

	for {
		next := sched.Next(time.Now().In(m.loc))
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-m.stopCh:
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			m.logger.WithField("job", name).Info("Job loop restarting")
			return
		case <-timer.C:
			m.logger.WithField("job", name).Debug("Job fired")
			fn(ctx)
		}
	}
}

func (m *Manager) runDaily(ctx context.Context) {
	if err := m.calculator.RunPreviousDay(ctx); err != nil {
		m.logger.WithError(err).Error("Daily roll-up failed")
		m.metrics.DailyRollups.WithLabelValues("error").Inc()
		return
	}
	m.metrics.DailyRollups.WithLabelValues("success").Inc()
}

// watchFrequency re-reads the configured snapshot frequency and restarts the
// snapshot loop when it changes.
func (m *Manager) watchFrequency(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			freq := m.loadLogFreq(ctx)

			m.mu.Lock()
			current := m.logFreq
			stop := m.snapshotStop
			m.mu.Unlock()

			if freq == current {
				continue
			}

			m.logger.WithFields(logging.Fields{
				"old_minutes": current,
				"new_minutes": freq,
			}).Info("Snapshot frequency changed, restarting snapshot loop")

			// Start the replacement loop first; the old one keeps the
			// heartbeat alive if the new schedule fails to parse.
			if err := m.startSnapshotLoop(ctx, freq); err != nil {
				m.logger.WithError(err).Error("Failed to restart snapshot loop, keeping previous frequency")
				continue
			}
			close(stop)
			m.mu.Lock()
			m.logFreq = freq
			m.mu.Unlock()
		}
	}
}
