package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-service/internal/domain"
	"market-data-service/internal/storage/memory"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func seedObservation(t *testing.T, store *memory.ObservationStore, dataType domain.DataType, d time.Time, average float64) {
	t.Helper()
	err := store.Insert(context.Background(), &domain.Observation{
		Date:     d,
		DataType: dataType,
		Average:  average,
	})
	require.NoError(t, err)
}

func TestPercentChange(t *testing.T) {
	change, err := PercentChange(290.0, 300.0)
	require.NoError(t, err)
	assert.InDelta(t, 3.4483, change, 0.0001)

	change, err = PercentChange(300.0, 290.0)
	require.NoError(t, err)
	assert.InDelta(t, -3.3333, change, 0.0001)

	_, err = PercentChange(0, 100.0)
	assert.ErrorIs(t, err, ErrZeroBase)
}

func TestChangeBetween(t *testing.T) {
	store := memory.NewObservationStore()
	seedObservation(t, store, domain.DataTypeCPI, date(2023, time.January, 1), 290.0)
	seedObservation(t, store, domain.DataTypeCPI, date(2024, time.January, 1), 300.0)

	result, err := ChangeBetween(context.Background(), store, domain.DataTypeCPI,
		date(2023, time.January, 1), date(2024, time.January, 1))
	require.NoError(t, err)
	assert.InDelta(t, 3.4483, result.Percent, 0.0001)
	assert.Equal(t, date(2023, time.January, 1), result.Earlier.Date)
	assert.Equal(t, date(2024, time.January, 1), result.Later.Date)
}

// The sign of the change follows argument roles even when the caller
// passes the later period first.
func TestChangeBetween_ArgumentOrderFixesSign(t *testing.T) {
	store := memory.NewObservationStore()
	seedObservation(t, store, domain.DataTypeCPI, date(2023, time.January, 1), 290.0)
	seedObservation(t, store, domain.DataTypeCPI, date(2024, time.January, 1), 300.0)

	result, err := ChangeBetween(context.Background(), store, domain.DataTypeCPI,
		date(2024, time.January, 1), date(2023, time.January, 1))
	require.NoError(t, err)
	assert.InDelta(t, -3.3333, result.Percent, 0.0001)
}

func TestChangeBetween_MissingPeriod(t *testing.T) {
	store := memory.NewObservationStore()
	seedObservation(t, store, domain.DataTypeCPI, date(2024, time.January, 1), 300.0)

	_, err := ChangeBetween(context.Background(), store, domain.DataTypeCPI,
		date(2023, time.January, 1), date(2024, time.January, 1))
	assert.ErrorIs(t, err, ErrMissingPeriod)
}

func TestYearOverYear(t *testing.T) {
	store := memory.NewObservationStore()
	// No row exactly one year back; the December 2022 row is the base.
	seedObservation(t, store, domain.DataTypeCPI, date(2022, time.December, 1), 288.0)
	seedObservation(t, store, domain.DataTypeCPI, date(2024, time.January, 1), 300.0)

	result, err := YearOverYear(context.Background(), store, domain.DataTypeCPI)
	require.NoError(t, err)
	assert.Equal(t, date(2022, time.December, 1), result.Earlier.Date)
	assert.Equal(t, date(2024, time.January, 1), result.Later.Date)
	assert.InDelta(t, 4.1667, result.Percent, 0.0001)
}

func TestYearOverYear_Errors(t *testing.T) {
	store := memory.NewObservationStore()

	_, err := YearOverYear(context.Background(), store, domain.DataTypeCPI)
	assert.ErrorIs(t, err, ErrNoObservations)

	// Only one observation: nothing at or before a year prior.
	seedObservation(t, store, domain.DataTypeCPI, date(2024, time.January, 1), 300.0)
	_, err = YearOverYear(context.Background(), store, domain.DataTypeCPI)
	assert.ErrorIs(t, err, ErrMissingPeriod)
}

func TestSeriesStats(t *testing.T) {
	assert.Equal(t, Stats{}, SeriesStats(nil))

	observations := []*domain.Observation{
		{Average: 290.0},
		{Average: 310.0},
		{Average: 300.0},
	}
	stats := SeriesStats(observations)
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 290.0, stats.Min, 0.0001)
	assert.InDelta(t, 310.0, stats.Max, 0.0001)
	assert.InDelta(t, 300.0, stats.Mean, 0.0001)
}
