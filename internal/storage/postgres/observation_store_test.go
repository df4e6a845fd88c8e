package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-service/internal/domain"
	"market-data-service/internal/storage"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func testObservation(dataType domain.DataType, d time.Time, average float64) *domain.Observation {
	return &domain.Observation{
		Date:     d,
		DataType: dataType,
		High:     ptr(average),
		Low:      ptr(average),
		Average:  average,
		RawData:  json.RawMessage(`{"source":"test"}`),
	}
}

func TestObservationStore_Insert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	o := testObservation(domain.DataTypeCPI, date(2024, time.January, 1), 300.0)
	require.NoError(t, store.Insert(ctx, o))
	assert.NotZero(t, o.ID)
	assert.False(t, o.CreatedAt.IsZero())

	retrieved, err := store.GetByTypeAndDate(ctx, domain.DataTypeCPI, date(2024, time.January, 1))
	require.NoError(t, err)
	assert.Equal(t, o.ID, retrieved.ID)
	assert.InDelta(t, 300.0, retrieved.Average, 0.0001)
	require.NotNil(t, retrieved.High)
	assert.InDelta(t, 300.0, *retrieved.High, 0.0001)
	assert.JSONEq(t, `{"source":"test"}`, string(retrieved.RawData))

	// Duplicate (data_type, date) is rejected.
	err = store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2024, time.January, 1), 301.0))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Same date for a different series is fine.
	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeGold, date(2024, time.January, 1), 2050.0)))
}

func TestObservationStore_InsertInvalid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.Observation{DataType: domain.DataTypeCPI}), storage.ErrInvalidInput)

	err := store.Insert(ctx, &domain.Observation{
		Date:     date(2024, time.January, 1),
		DataType: domain.DataTypeCPI,
		High:     ptr(10.0),
		Low:      ptr(5.0),
		Average:  20.0,
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestObservationStore_Upsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	o := testObservation(domain.DataTypeCPI, date(2024, time.January, 1), 300.0)
	outcome, err := store.Upsert(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertInserted, outcome)
	firstID := o.ID

	// Same figure again: no write performed.
	outcome, err = store.Upsert(ctx, testObservation(domain.DataTypeCPI, date(2024, time.January, 1), 300.0))
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertUnchanged, outcome)

	// Revised figure: the existing row is updated.
	revised := testObservation(domain.DataTypeCPI, date(2024, time.January, 1), 300.5)
	outcome, err = store.Upsert(ctx, revised)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertUpdated, outcome)
	assert.Equal(t, firstID, revised.ID)

	retrieved, err := store.GetByTypeAndDate(ctx, domain.DataTypeCPI, date(2024, time.January, 1))
	require.NoError(t, err)
	assert.Equal(t, firstID, retrieved.ID)
	assert.InDelta(t, 300.5, retrieved.Average, 0.0001)
}

// A spot quote can hold its price while the intraday range moves; the
// drifted high and low must still be written.
func TestObservationStore_UpsertRangeDrift(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	first := &domain.Observation{
		Date:     date(2024, time.February, 15),
		DataType: domain.DataTypeGold,
		High:     ptr(2060.0),
		Low:      ptr(2045.0),
		Average:  2052.0,
	}
	outcome, err := store.Upsert(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertInserted, outcome)

	drifted := &domain.Observation{
		Date:     date(2024, time.February, 15),
		DataType: domain.DataTypeGold,
		High:     ptr(2071.0),
		Low:      ptr(2041.0),
		Average:  2052.0,
	}
	outcome, err = store.Upsert(ctx, drifted)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertUpdated, outcome)
	assert.Equal(t, first.ID, drifted.ID)

	retrieved, err := store.GetByTypeAndDate(ctx, domain.DataTypeGold, date(2024, time.February, 15))
	require.NoError(t, err)
	require.NotNil(t, retrieved.High)
	assert.InDelta(t, 2071.0, *retrieved.High, 0.0001)
	require.NotNil(t, retrieved.Low)
	assert.InDelta(t, 2041.0, *retrieved.Low, 0.0001)
}

func TestObservationStore_GetLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	_, err := store.GetLatest(ctx, domain.DataTypeCPI)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2023, time.December, 1), 297.0)))
	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2024, time.January, 1), 300.0)))
	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeGold, date(2024, time.February, 1), 2050.0)))

	latest, err := store.GetLatest(ctx, domain.DataTypeCPI)
	require.NoError(t, err)
	assert.Equal(t, domain.DataTypeCPI, latest.DataType)
	assert.Equal(t, date(2024, time.January, 1), latest.Date)
}

func TestObservationStore_GetLatestAt(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2023, time.January, 1), 290.0)))
	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2023, time.June, 1), 295.0)))
	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2024, time.January, 1), 300.0)))

	o, err := store.GetLatestAt(ctx, domain.DataTypeCPI, date(2023, time.September, 15))
	require.NoError(t, err)
	assert.Equal(t, date(2023, time.June, 1), o.Date)

	o, err = store.GetLatestAt(ctx, domain.DataTypeCPI, date(2023, time.January, 1))
	require.NoError(t, err)
	assert.Equal(t, date(2023, time.January, 1), o.Date)

	_, err = store.GetLatestAt(ctx, domain.DataTypeCPI, date(2022, time.January, 1))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestObservationStore_GetRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	empty, err := store.GetRange(ctx, domain.DataTypeCPI, date(2020, time.January, 1))
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2024, time.January, 1), 300.0)))
	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2022, time.January, 1), 280.0)))
	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2023, time.January, 1), 290.0)))
	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2019, time.January, 1), 255.0)))

	result, err := store.GetRange(ctx, domain.DataTypeCPI, date(2020, time.January, 1))
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, date(2022, time.January, 1), result[0].Date)
	assert.Equal(t, date(2023, time.January, 1), result[1].Date)
	assert.Equal(t, date(2024, time.January, 1), result[2].Date)
}

func TestObservationStore_GetAtDates(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2023, time.January, 1), 290.0)))
	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2024, time.January, 1), 300.0)))

	// Results follow the order the dates were requested in.
	result, err := store.GetAtDates(ctx, domain.DataTypeCPI, []time.Time{
		date(2024, time.January, 1),
		date(2023, time.January, 1),
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.InDelta(t, 300.0, result[0].Average, 0.0001)
	assert.InDelta(t, 290.0, result[1].Average, 0.0001)

	// Dates with no observation are skipped.
	result, err = store.GetAtDates(ctx, domain.DataTypeCPI, []time.Time{
		date(2023, time.January, 1),
		date(1999, time.January, 1),
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, date(2023, time.January, 1), result[0].Date)
}

func TestObservationStore_ListDataTypes(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeGold, date(2024, time.March, 1), 2050.0)))
	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2023, time.January, 1), 290.0)))
	require.NoError(t, store.Insert(ctx, testObservation(domain.DataTypeCPI, date(2024, time.January, 1), 300.0)))

	counts, err := store.ListDataTypes(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)

	assert.Equal(t, domain.DataTypeCPI, counts[0].DataType)
	assert.Equal(t, int64(2), counts[0].Count)
	assert.Equal(t, date(2024, time.January, 1), counts[0].LatestDate)

	assert.Equal(t, domain.DataTypeGold, counts[1].DataType)
	assert.Equal(t, int64(1), counts[1].Count)
}

func TestObservationStore_NilRawData(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	o := &domain.Observation{
		Date:     date(2024, time.April, 1),
		DataType: domain.DataTypeSilver,
		Average:  27.5,
	}
	require.NoError(t, store.Insert(ctx, o))

	retrieved, err := store.GetByTypeAndDate(ctx, domain.DataTypeSilver, date(2024, time.April, 1))
	require.NoError(t, err)
	assert.Nil(t, retrieved.High)
	assert.Nil(t, retrieved.Low)
	assert.Empty(t, retrieved.RawData)
}
