package storage

import (
	"context"
	"time"

	"market-data-service/internal/domain"
)

// UpsertOutcome describes what an Upsert call did to the store.
type UpsertOutcome int

const (
	// UpsertUnchanged means a row for (data_type, date) already existed
	// with the same average, high and low; nothing was written.
	UpsertUnchanged UpsertOutcome = iota

	// UpsertInserted means a new row was created.
	UpsertInserted

	// UpsertUpdated means an existing row was revised in place.
	// Upstream sources revise published figures (BLS does this routinely,
	// and spot quotes drift their intraday range), so values and raw_data
	// are replaced when any of average, high or low differ.
	UpsertUpdated
)

// String returns the outcome name for logs and metrics labels.
func (o UpsertOutcome) String() string {
	switch o {
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// ObservationStore provides access to market_data storage.
// At most one observation exists per (data_type, date) pair.
type ObservationStore interface {
	// Insert adds a new observation and fills in its ID and CreatedAt.
	// Returns ErrDuplicateKey if (data_type, date) exists.
	Insert(ctx context.Context, o *domain.Observation) error

	// Upsert inserts a new observation, or revises the existing row for
	// (data_type, date) when any of average, high or low differ.
	// Returns the outcome.
	Upsert(ctx context.Context, o *domain.Observation) (UpsertOutcome, error)

	// GetLatest retrieves the most recent observation for a series,
	// ordered by date DESC with ties broken by id DESC.
	// Returns ErrNotFound if the series has no rows.
	GetLatest(ctx context.Context, dataType domain.DataType) (*domain.Observation, error)

	// GetLatestAt retrieves the most recent observation with date <= at.
	// Returns ErrNotFound if no observation exists at or before that time.
	GetLatestAt(ctx context.Context, dataType domain.DataType, at time.Time) (*domain.Observation, error)

	// GetRange retrieves observations with date >= since, ordered by date ASC.
	// An empty series yields an empty slice, not an error.
	GetRange(ctx context.Context, dataType domain.DataType, since time.Time) ([]*domain.Observation, error)

	// GetAtDates retrieves the observations matching the given dates,
	// returned in the same order as the input. Dates with no matching
	// row are skipped.
	GetAtDates(ctx context.Context, dataType domain.DataType, dates []time.Time) ([]*domain.Observation, error)

	// GetByTypeAndDate retrieves a single observation by its natural key.
	// Returns ErrNotFound if not exists.
	GetByTypeAndDate(ctx context.Context, dataType domain.DataType, date time.Time) (*domain.Observation, error)

	// ListDataTypes summarizes all series present in the store,
	// ordered by data type.
	ListDataTypes(ctx context.Context) ([]*domain.DataTypeCount, error)
}
