package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"market-data-service/internal/domain"
	"market-data-service/internal/storage"
)

// ObservationStore implements storage.ObservationStore using PostgreSQL.
type ObservationStore struct {
	pool *Pool
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(pool *Pool) *ObservationStore {
	return &ObservationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

const observationColumns = "id, date, data_type, high, low, average, raw_data, created_at"

// Insert adds a new observation. Returns ErrDuplicateKey if (data_type, date) exists.
func (s *ObservationStore) Insert(ctx context.Context, o *domain.Observation) error {
	if err := validateObservation(o); err != nil {
		return err
	}

	query := `
		INSERT INTO market_data (date, data_type, high, low, average, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := s.pool.QueryRow(ctx, query,
		o.Date,
		o.DataType,
		o.High,
		o.Low,
		o.Average,
		o.RawData,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// Upsert inserts a new observation or revises the existing row for
// (data_type, date) when any of its figures moved. BLS revises published
// averages; metal spot quotes drift their intraday high and low even
// while the price holds, so all three values gate the update and
// raw_data is replaced alongside them. A row whose figures all match is
// left untouched.
func (s *ObservationStore) Upsert(ctx context.Context, o *domain.Observation) (storage.UpsertOutcome, error) {
	if err := validateObservation(o); err != nil {
		return storage.UpsertUnchanged, err
	}

	// xmax = 0 distinguishes a fresh insert from a conflict-update.
	query := `
		INSERT INTO market_data (date, data_type, high, low, average, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (data_type, date) DO UPDATE
		SET high = EXCLUDED.high,
		    low = EXCLUDED.low,
		    average = EXCLUDED.average,
		    raw_data = EXCLUDED.raw_data
		WHERE (market_data.average, market_data.high, market_data.low)
		      IS DISTINCT FROM (EXCLUDED.average, EXCLUDED.high, EXCLUDED.low)
		RETURNING id, created_at, (xmax = 0) AS inserted
	`

	var inserted bool
	err := s.pool.QueryRow(ctx, query,
		o.Date,
		o.DataType,
		o.High,
		o.Low,
		o.Average,
		o.RawData,
	).Scan(&o.ID, &o.CreatedAt, &inserted)
	if err != nil {
		if isNotFoundError(err) {
			// Conflict row already carries these figures.
			return storage.UpsertUnchanged, nil
		}
		return storage.UpsertUnchanged, fmt.Errorf("upsert observation: %w", err)
	}

	if inserted {
		return storage.UpsertInserted, nil
	}
	return storage.UpsertUpdated, nil
}

// GetLatest retrieves the most recent observation for a series.
// Ties on date are broken by id DESC so the result is deterministic.
func (s *ObservationStore) GetLatest(ctx context.Context, dataType domain.DataType) (*domain.Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM market_data
		WHERE data_type = $1
		ORDER BY date DESC, id DESC
		LIMIT 1
	`

	o, err := scanObservationRow(s.pool.QueryRow(ctx, query, dataType))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest observation: %w", err)
	}
	return o, nil
}

// GetLatestAt retrieves the most recent observation with date <= at.
func (s *ObservationStore) GetLatestAt(ctx context.Context, dataType domain.DataType, at time.Time) (*domain.Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM market_data
		WHERE data_type = $1 AND date <= $2
		ORDER BY date DESC, id DESC
		LIMIT 1
	`

	o, err := scanObservationRow(s.pool.QueryRow(ctx, query, dataType, at))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get observation at or before %s: %w", at.Format(time.RFC3339), err)
	}
	return o, nil
}

// GetRange retrieves observations with date >= since, ordered by date ASC.
func (s *ObservationStore) GetRange(ctx context.Context, dataType domain.DataType, since time.Time) ([]*domain.Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM market_data
		WHERE data_type = $1 AND date >= $2
		ORDER BY date ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, dataType, since)
	if err != nil {
		return nil, fmt.Errorf("get observations by range: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetAtDates retrieves the observations matching the given dates.
// The store returns matches in whatever order the planner produces, so
// results are reordered here to follow the input; callers comparing two
// periods rely on that order.
func (s *ObservationStore) GetAtDates(ctx context.Context, dataType domain.DataType, dates []time.Time) ([]*domain.Observation, error) {
	if len(dates) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + observationColumns + `
		FROM market_data
		WHERE data_type = $1 AND date = ANY($2)
	`

	rows, err := s.pool.Query(ctx, query, dataType, dates)
	if err != nil {
		return nil, fmt.Errorf("get observations at dates: %w", err)
	}
	defer rows.Close()

	matched, err := scanObservations(rows)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*domain.Observation, len(matched))
	for _, o := range matched {
		byDate[dateKey(o.Date)] = o
	}

	result := make([]*domain.Observation, 0, len(dates))
	for _, d := range dates {
		if o, ok := byDate[dateKey(d)]; ok {
			result = append(result, o)
		}
	}
	return result, nil
}

// GetByTypeAndDate retrieves a single observation by its natural key.
func (s *ObservationStore) GetByTypeAndDate(ctx context.Context, dataType domain.DataType, date time.Time) (*domain.Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM market_data
		WHERE data_type = $1 AND date = $2
	`

	o, err := scanObservationRow(s.pool.QueryRow(ctx, query, dataType, date))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get observation by type and date: %w", err)
	}
	return o, nil
}

// ListDataTypes summarizes all series present in the store.
func (s *ObservationStore) ListDataTypes(ctx context.Context) ([]*domain.DataTypeCount, error) {
	query := `
		SELECT data_type, COUNT(*), MAX(date)
		FROM market_data
		GROUP BY data_type
		ORDER BY data_type ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list data types: %w", err)
	}
	defer rows.Close()

	var counts []*domain.DataTypeCount
	for rows.Next() {
		var c domain.DataTypeCount
		if err := rows.Scan(&c.DataType, &c.Count, &c.LatestDate); err != nil {
			return nil, fmt.Errorf("scan data type count: %w", err)
		}
		counts = append(counts, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data type counts: %w", err)
	}
	return counts, nil
}

// validateObservation rejects observations that cannot form a valid row.
func validateObservation(o *domain.Observation) error {
	if o == nil || o.DataType == "" || o.Date.IsZero() {
		return storage.ErrInvalidInput
	}
	if !o.WithinBounds() {
		return storage.ErrInvalidInput
	}
	return nil
}

// dateKey normalizes a timestamp for map lookups across time zones.
func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}

// scanObservationRow scans a single row into an Observation.
func scanObservationRow(row pgx.Row) (*domain.Observation, error) {
	var o domain.Observation
	err := row.Scan(
		&o.ID,
		&o.Date,
		&o.DataType,
		&o.High,
		&o.Low,
		&o.Average,
		&o.RawData,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// scanObservations scans multiple rows into a slice of Observation.
func scanObservations(rows pgx.Rows) ([]*domain.Observation, error) {
	var observations []*domain.Observation

	for rows.Next() {
		var o domain.Observation

		err := rows.Scan(
			&o.ID,
			&o.Date,
			&o.DataType,
			&o.High,
			&o.Low,
			&o.Average,
			&o.RawData,
			&o.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}

		observations = append(observations, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}

	return observations, nil
}
