// Package analytics derives figures from stored observations: period-over-period
// change rates (inflation for index series) and simple range statistics.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-data-service/internal/domain"
	"market-data-service/internal/storage"
)

// Errors returned by analytics functions.
var (
	ErrZeroBase       = errors.New("percent change from zero base")
	ErrMissingPeriod  = errors.New("no observation for requested period")
	ErrNoObservations = errors.New("no observations available")
)

// ChangeResult reports the percent change between two observations of a series.
// For an index series like CPI over a one-year span this is the inflation rate.
type ChangeResult struct {
	DataType domain.DataType     `json:"data_type"`
	Earlier  *domain.Observation `json:"earlier"`
	Later    *domain.Observation `json:"later"`
	Percent  float64             `json:"percent"`
}

// PercentChange returns ((to-from)/from)*100.
func PercentChange(from, to float64) (float64, error) {
	if from == 0 {
		return 0, ErrZeroBase
	}
	return (to - from) / from * 100, nil
}

// ChangeBetween compares a series at two explicit dates. The earlier and
// later roles are fixed by argument position, not by whatever order the
// store returns rows in, so the sign of the result is always meaningful.
func ChangeBetween(ctx context.Context, store storage.ObservationStore, dataType domain.DataType, earlier, later time.Time) (*ChangeResult, error) {
	observations, err := store.GetAtDates(ctx, dataType, []time.Time{earlier, later})
	if err != nil {
		return nil, fmt.Errorf("fetch comparison periods: %w", err)
	}
	if len(observations) != 2 {
		return nil, ErrMissingPeriod
	}

	return changeResult(dataType, observations[0], observations[1])
}

// YearOverYear compares the latest observation of a series against the
// observation at or before one year prior. The at-or-before lookup absorbs
// publication gaps: monthly series rarely have a row exactly 365 days back.
func YearOverYear(ctx context.Context, store storage.ObservationStore, dataType domain.DataType) (*ChangeResult, error) {
	latest, err := store.GetLatest(ctx, dataType)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoObservations
		}
		return nil, fmt.Errorf("fetch latest observation: %w", err)
	}

	base, err := store.GetLatestAt(ctx, dataType, latest.Date.AddDate(-1, 0, 0))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMissingPeriod
		}
		return nil, fmt.Errorf("fetch base observation: %w", err)
	}

	return changeResult(dataType, base, latest)
}

// changeResult assembles a ChangeResult from an earlier/later pair.
func changeResult(dataType domain.DataType, earlier, later *domain.Observation) (*ChangeResult, error) {
	percent, err := PercentChange(earlier.Average, later.Average)
	if err != nil {
		return nil, err
	}
	return &ChangeResult{
		DataType: dataType,
		Earlier:  earlier,
		Later:    later,
		Percent:  percent,
	}, nil
}

// Stats summarizes the averages of a range query result.
type Stats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// SeriesStats computes min, max and mean of the averages in a range result.
func SeriesStats(observations []*domain.Observation) Stats {
	if len(observations) == 0 {
		return Stats{}
	}

	stats := Stats{
		Count: len(observations),
		Min:   observations[0].Average,
		Max:   observations[0].Average,
	}

	var sum float64
	for _, o := range observations {
		if o.Average < stats.Min {
			stats.Min = o.Average
		}
		if o.Average > stats.Max {
			stats.Max = o.Average
		}
		sum += o.Average
	}
	stats.Mean = sum / float64(stats.Count)
	return stats
}
