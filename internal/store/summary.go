package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
)

// SummaryStore persists the per-machine per-day roll-ups.
type SummaryStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSummaryStore creates a daily summary store.
func NewSummaryStore(db *sql.DB, logger logging.Logger) *SummaryStore {
	return &SummaryStore{db: db, logger: logger}
}

// Upsert writes one summary row per (machine, date); re-runs overwrite.
func (s *SummaryStore) Upsert(ctx context.Context, summary models.DailySummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_summaries
			(machine_id, date, total_hours, total_kwh,
			 heating_up_hours, heating_up_kwh, iddle_hours, iddle_kwh,
			 production_hours, production_kwh, is_one_block)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (machine_id, date) DO UPDATE SET
			total_hours = EXCLUDED.total_hours,
			total_kwh = EXCLUDED.total_kwh,
			heating_up_hours = EXCLUDED.heating_up_hours,
			heating_up_kwh = EXCLUDED.heating_up_kwh,
			iddle_hours = EXCLUDED.iddle_hours,
			iddle_kwh = EXCLUDED.iddle_kwh,
			production_hours = EXCLUDED.production_hours,
			production_kwh = EXCLUDED.production_kwh,
			is_one_block = EXCLUDED.is_one_block
	`, summary.MachineID, summary.Date,
		summary.TotalHours, summary.TotalKwh.String(),
		summary.HeatingUpHours, summary.HeatingUpKwh.String(),
		summary.IddleHours, summary.IddleKwh.String(),
		summary.ProductionHours, summary.ProductionKwh.String(),
		summary.IsOneBlock)
	if err != nil {
		return fmt.Errorf("failed to upsert daily summary: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"machine_id": summary.MachineID,
		"date":       summary.Date.Format("2006-01-02"),
		"total_kwh":  summary.TotalKwh.String(),
	}).Info("Daily summary written")
	return nil
}

// Find returns the summary for one machine and date, or nil when absent.
func (s *SummaryStore) Find(ctx context.Context, machineID int64, date time.Time) (*models.DailySummary, error) {
	var summary models.DailySummary
	err := s.db.QueryRowContext(ctx, `
		SELECT machine_id, date, total_hours, total_kwh,
		       heating_up_hours, heating_up_kwh, iddle_hours, iddle_kwh,
		       production_hours, production_kwh, is_one_block
		FROM daily_summaries
		WHERE machine_id = $1 AND date = $2
	`, machineID, date).Scan(
		&summary.MachineID, &summary.Date, &summary.TotalHours, &summary.TotalKwh,
		&summary.HeatingUpHours, &summary.HeatingUpKwh, &summary.IddleHours, &summary.IddleKwh,
		&summary.ProductionHours, &summary.ProductionKwh, &summary.IsOneBlock)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summary: %w", err)
	}
	return &summary, nil
}
