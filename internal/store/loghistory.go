package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
)

// decimalPlaces is the fixed-point precision of persisted analog values.
const decimalPlaces = 3

// LogHistoryStore appends per-cycle snapshots of raw sensor values.
type LogHistoryStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewLogHistoryStore creates a log history store.
func NewLogHistoryStore(db *sql.DB, logger logging.Logger) *LogHistoryStore {
	return &LogHistoryStore{db: db, logger: logger}
}

// SaveBatch inserts one row per machine in a single bulk write.
func (s *LogHistoryStore) SaveBatch(ctx context.Context, readings []models.MachineReading) error {
	if len(readings) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(readings))
	args := make([]interface{}, 0, len(readings)*7)
	for i, reading := range readings {
		rec := LogRecordFromReading(reading)
		base := i * 7
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		args = append(args,
			rec.MachineID, rec.Timestamp,
			nullableInt(rec.OnContact), nullableInt(rec.AlarmContact),
			nullableDecimal(rec.Temperature), nullableDecimal(rec.Kwh), nullableDecimal(rec.CapstanSpeed),
		)
	}

	query := `
		INSERT INTO log_history (machine_id, ts, on_contact, alarm_contact, temperature, kwh, capstan_speed)
		VALUES ` + strings.Join(placeholders, ", ")

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert log history batch: %w", err)
	}

	s.logger.WithField("machines", len(readings)).Debug("Log history batch written")
	return nil
}

// FindInRange returns log history for one machine ordered ascending by time.
func (s *LogHistoryStore) FindInRange(ctx context.Context, machineID int64, from, to time.Time) ([]models.LogHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, machine_id, ts, on_contact, alarm_contact, temperature, kwh, capstan_speed
		FROM log_history
		WHERE machine_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`, machineID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query log history: %w", err)
	}
	defer rows.Close()

	records := make([]models.LogHistoryRecord, 0)
	for rows.Next() {
		var (
			rec          models.LogHistoryRecord
			onContact    sql.NullInt64
			alarmContact sql.NullInt64
			temperature  decimal.NullDecimal
			kwh          decimal.NullDecimal
			capstanSpeed decimal.NullDecimal
		)
		if err := rows.Scan(&rec.ID, &rec.MachineID, &rec.Timestamp,
			&onContact, &alarmContact, &temperature, &kwh, &capstanSpeed); err != nil {
			return nil, fmt.Errorf("failed to scan log history row: %w", err)
		}
		if onContact.Valid {
			rec.OnContact = &onContact.Int64
		}
		if alarmContact.Valid {
			rec.AlarmContact = &alarmContact.Int64
		}
		if temperature.Valid {
			rec.Temperature = &temperature.Decimal
		}
		if kwh.Valid {
			rec.Kwh = &kwh.Decimal
		}
		if capstanSpeed.Valid {
			rec.CapstanSpeed = &capstanSpeed.Decimal
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate log history rows: %w", err)
	}
	return records, nil
}

// LogRecordFromReading coerces an aggregated reading into its persisted
// shape: contacts as rounded integers, analog values as fixed-point decimals.
func LogRecordFromReading(reading models.MachineReading) models.LogHistoryRecord {
	rec := models.LogHistoryRecord{
		MachineID: reading.MachineID,
		Timestamp: reading.Timestamp,
	}
	if reading.OnContact != nil {
		v := int64(math.Round(*reading.OnContact))
		rec.OnContact = &v
	}
	if reading.AlarmContact != nil {
		v := int64(math.Round(*reading.AlarmContact))
		rec.AlarmContact = &v
	}
	if reading.Temperature != nil {
		d := decimal.NewFromFloat(*reading.Temperature).Round(decimalPlaces)
		rec.Temperature = &d
	}
	if reading.Kwh != nil {
		d := decimal.NewFromFloat(*reading.Kwh).Round(decimalPlaces)
		rec.Kwh = &d
	}
	if reading.CapstanSpeed != nil {
		d := decimal.NewFromFloat(*reading.CapstanSpeed).Round(decimalPlaces)
		rec.CapstanSpeed = &d
	}
	return rec
}

func nullableInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableDecimal(v *decimal.Decimal) interface{} {
	if v == nil {
		return nil
	}
	return v.String()
}
