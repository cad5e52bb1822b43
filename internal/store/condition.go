package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
)

// DedupWindow guards against races between the polling loop and the snapshot
// cron: a record with the same condition inside this window is dropped.
const DedupWindow = 5 * time.Second

// ConditionStore is the append-only condition-transition log.
type ConditionStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewConditionStore creates a condition store.
func NewConditionStore(db *sql.DB, logger logging.Logger) *ConditionStore {
	return &ConditionStore{db: db, logger: logger}
}

// Record appends a condition row when the condition changed or a snapshot is
// forced. Returns whether a row was inserted. On a change with a reading
// attached, a log history row is written for the same moment unless the
// caller already handles log history itself.
func (s *ConditionStore) Record(
	ctx context.Context,
	machineID int64,
	condition models.Condition,
	kwh decimal.Decimal,
	ts time.Time,
	reading *models.MachineReading,
	forceSnapshot bool,
	skipLogHistory bool,
) (bool, error) {
	latest, err := s.FindLatest(ctx, machineID)
	if err != nil {
		return false, err
	}

	changed := latest == nil || latest.CurrentCondition != condition
	if !changed && !forceSnapshot {
		return false, nil
	}

	if latest != nil && latest.CurrentCondition == condition && ts.Sub(latest.CurrentTimestamp) < DedupWindow {
		return false, nil
	}

	var (
		lastTs        interface{}
		lastCondition interface{}
		lastKwh       interface{}
	)
	if latest != nil {
		lastTs = latest.CurrentTimestamp
		lastCondition = string(latest.CurrentCondition)
		lastKwh = latest.CurrentKwh.String()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO condition_records
			(machine_id, current_ts, current_condition, current_kwh, last_ts, last_condition, last_kwh)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, machineID, ts, string(condition), kwh.String(), lastTs, lastCondition, lastKwh)
	if err != nil {
		return false, fmt.Errorf("failed to insert condition record: %w", err)
	}

	if changed {
		s.logger.WithFields(logging.Fields{
			"machine_id": machineID,
			"condition":  condition,
			"kwh":        kwh.String(),
		}).Info("Condition transition recorded")
	}

	// Condition changes are implicit measurement anchors: keep a raw value
	// row for the same moment.
	if changed && reading != nil && !skipLogHistory {
		rec := LogRecordFromReading(*reading)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO log_history (machine_id, ts, on_contact, alarm_contact, temperature, kwh, capstan_speed)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, rec.MachineID, rec.Timestamp,
			nullableInt(rec.OnContact), nullableInt(rec.AlarmContact),
			nullableDecimal(rec.Temperature), nullableDecimal(rec.Kwh), nullableDecimal(rec.CapstanSpeed))
		if err != nil {
			return true, fmt.Errorf("failed to insert transition log history row: %w", err)
		}
	}

	return true, nil
}

// FindLatest returns the most recent condition record for a machine, or nil
// when the machine has none yet.
func (s *ConditionStore) FindLatest(ctx context.Context, machineID int64) (*models.ConditionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, machine_id, current_ts, current_condition, current_kwh, last_ts, last_condition, last_kwh
		FROM condition_records
		WHERE machine_id = $1
		ORDER BY current_ts DESC
		LIMIT 1
	`, machineID)

	rec, err := scanConditionRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest condition: %w", err)
	}
	return rec, nil
}

// FindInRange returns condition records inside [from, to] ordered ascending.
func (s *ConditionStore) FindInRange(ctx context.Context, machineID int64, from, to time.Time) ([]models.ConditionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, machine_id, current_ts, current_condition, current_kwh, last_ts, last_condition, last_kwh
		FROM condition_records
		WHERE machine_id = $1 AND current_ts >= $2 AND current_ts <= $3
		ORDER BY current_ts ASC
	`, machineID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query conditions in range: %w", err)
	}
	defer rows.Close()

	records := make([]models.ConditionRecord, 0)
	for rows.Next() {
		rec, err := scanConditionRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan condition row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate condition rows: %w", err)
	}
	return records, nil
}

func scanConditionRecord(scan func(dest ...interface{}) error) (*models.ConditionRecord, error) {
	var (
		rec           models.ConditionRecord
		condition     string
		kwh           decimal.Decimal
		lastTs        sql.NullTime
		lastCondition sql.NullString
		lastKwh       decimal.NullDecimal
	)
	if err := scan(&rec.ID, &rec.MachineID, &rec.CurrentTimestamp, &condition, &kwh,
		&lastTs, &lastCondition, &lastKwh); err != nil {
		return nil, err
	}
	rec.CurrentCondition = models.Condition(condition)
	rec.CurrentKwh = kwh
	if lastTs.Valid {
		rec.LastTimestamp = &lastTs.Time
	}
	if lastCondition.Valid {
		c := models.Condition(lastCondition.String)
		rec.LastCondition = &c
	}
	if lastKwh.Valid {
		rec.LastKwh = &lastKwh.Decimal
	}
	return &rec, nil
}
