package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/models"
)

type fakeConfigSource struct {
	cfg *models.GeneralConfig
	err error
}

func (f *fakeConfigSource) GetGeneralConfig(_ context.Context) (*models.GeneralConfig, error) {
	return f.cfg, f.err
}

func TestLoadLogFreq(t *testing.T) {
	tests := []struct {
		name     string
		source   *fakeConfigSource
		expected int
	}{
		{"configured value", &fakeConfigSource{cfg: &models.GeneralConfig{LogFreqMinutes: 30}}, 30},
		{"zero falls back to default", &fakeConfigSource{cfg: &models.GeneralConfig{LogFreqMinutes: 0}}, DefaultLogFreqMinutes},
		{"negative falls back to default", &fakeConfigSource{cfg: &models.GeneralConfig{LogFreqMinutes: -5}}, DefaultLogFreqMinutes},
		{"59 is the highest schedulable step", &fakeConfigSource{cfg: &models.GeneralConfig{LogFreqMinutes: 59}}, 59},
		{"60 is not a valid minute step", &fakeConfigSource{cfg: &models.GeneralConfig{LogFreqMinutes: 60}}, DefaultLogFreqMinutes},
		{"hourly-scale value falls back to default", &fakeConfigSource{cfg: &models.GeneralConfig{LogFreqMinutes: 120}}, DefaultLogFreqMinutes},
		{"query error falls back to default", &fakeConfigSource{err: errors.New("connection refused")}, DefaultLogFreqMinutes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.source, nil, nil, nil, time.UTC, logging.NewLogger())
			assert.Equal(t, tt.expected, m.loadLogFreq(context.Background()))
		})
	}
}
