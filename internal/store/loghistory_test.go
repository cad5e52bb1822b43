package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
)

func newLogHistoryStore(t *testing.T) (*LogHistoryStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLogHistoryStore(db, logging.NewLogger()), mock
}

func TestSaveBatchWritesOneRowPerMachine(t *testing.T) {
	store, mock := newLogHistoryStore(t)
	ts := time.Date(2026, 8, 24, 8, 15, 0, 0, time.UTC)

	on := 1.0
	alarm := 0.0
	temp := 315.25
	kwh := 1234.5678
	speed := 1.0
	readings := []models.MachineReading{
		{MachineID: 1, Timestamp: ts, OnContact: &on, AlarmContact: &alarm, Temperature: &temp, Kwh: &kwh, CapstanSpeed: &speed},
		{MachineID: 2, Timestamp: ts, OnContact: &on},
	}

	mock.ExpectExec(`(?s)INSERT INTO log_history.*VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\), \(\$8, \$9, \$10, \$11, \$12, \$13, \$14\)`).
		WithArgs(
			int64(1), ts, int64(1), int64(0), "315.25", "1234.568", "1",
			int64(2), ts, int64(1), nil, nil, nil, nil,
		).
		WillReturnResult(sqlmock.NewResult(1, 2))

	err := store.SaveBatch(context.Background(), readings)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveBatchEmptyIsNoop(t *testing.T) {
	store, mock := newLogHistoryStore(t)
	require.NoError(t, store.SaveBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindInRangeScansNullableColumns(t *testing.T) {
	store, mock := newLogHistoryStore(t)
	from := time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC)
	to := from.Add(90 * time.Minute)

	mock.ExpectQuery(`(?s)SELECT .* FROM log_history.*ORDER BY ts ASC`).
		WithArgs(int64(1), from, to).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "machine_id", "ts", "on_contact", "alarm_contact", "temperature", "kwh", "capstan_speed",
		}).
			AddRow(1, 1, from.Add(15*time.Minute), 1, 0, "310.5", "1200", "1").
			AddRow(2, 1, from.Add(30*time.Minute), nil, nil, nil, nil, nil))

	records, err := store.FindInRange(context.Background(), 1, from, to)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NotNil(t, records[0].Temperature)
	assert.True(t, records[0].Temperature.Equal(decimal.RequireFromString("310.5")))
	require.NotNil(t, records[0].OnContact)
	assert.Equal(t, int64(1), *records[0].OnContact)

	assert.Nil(t, records[1].Temperature)
	assert.Nil(t, records[1].OnContact)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRecordFromReadingRoundsContacts(t *testing.T) {
	on := 0.98
	alarm := 0.02
	temp := 315.123456

	rec := LogRecordFromReading(models.MachineReading{
		MachineID: 7, Timestamp: time.Now(),
		OnContact: &on, AlarmContact: &alarm, Temperature: &temp,
	})

	require.NotNil(t, rec.OnContact)
	assert.Equal(t, int64(1), *rec.OnContact)
	require.NotNil(t, rec.AlarmContact)
	assert.Equal(t, int64(0), *rec.AlarmContact)
	require.NotNil(t, rec.Temperature)
	assert.Equal(t, "315.123", rec.Temperature.String())
	assert.Nil(t, rec.Kwh)
	assert.Nil(t, rec.CapstanSpeed)
}
