package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"market-data-service/internal/domain"
	"market-data-service/internal/storage"
)

// Publisher receives observations as they are inserted. The change feed
// hub satisfies this; a nil publisher disables publishing.
type Publisher interface {
	Publish(o domain.Observation)
}

// ObservationStore is an in-memory implementation of storage.ObservationStore.
// Used by tests and the --use-memory mode.
type ObservationStore struct {
	mu        sync.RWMutex
	data      map[string]*domain.Observation // keyed by (data_type, date)
	nextID    int64
	publisher Publisher
}

// NewObservationStore creates a new in-memory observation store.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{
		data:   make(map[string]*domain.Observation),
		nextID: 1,
	}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

// SetPublisher wires a change feed publisher. Inserts made after this
// call are published; revisions and no-ops are not.
func (s *ObservationStore) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// observationKey generates a unique key for a (data_type, date) pair.
func observationKey(dataType domain.DataType, date time.Time) string {
	return fmt.Sprintf("%s|%s", dataType, date.UTC().Format("2006-01-02T15:04:05"))
}

// Insert adds a new observation. Returns ErrDuplicateKey if (data_type, date) exists.
func (s *ObservationStore) Insert(_ context.Context, o *domain.Observation) error {
	if err := validateObservation(o); err != nil {
		return err
	}

	s.mu.Lock()
	key := observationKey(o.DataType, o.Date)
	if _, exists := s.data[key]; exists {
		s.mu.Unlock()
		return storage.ErrDuplicateKey
	}

	o.ID = s.nextID
	s.nextID++
	o.CreatedAt = time.Now().UTC()

	stored := *o
	s.data[key] = &stored
	publisher := s.publisher
	s.mu.Unlock()

	if publisher != nil {
		publisher.Publish(stored)
	}
	return nil
}

// Upsert inserts a new observation, or revises the existing row when any
// of average, high or low differ. High and low gate the update so metal
// quotes whose intraday range drifted at a held price are refreshed.
func (s *ObservationStore) Upsert(_ context.Context, o *domain.Observation) (storage.UpsertOutcome, error) {
	if err := validateObservation(o); err != nil {
		return storage.UpsertUnchanged, err
	}

	s.mu.Lock()
	key := observationKey(o.DataType, o.Date)

	if existing, ok := s.data[key]; ok {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
		if existing.Average == o.Average &&
			floatPtrEqual(existing.High, o.High) &&
			floatPtrEqual(existing.Low, o.Low) {
			s.mu.Unlock()
			return storage.UpsertUnchanged, nil
		}
		existing.High = o.High
		existing.Low = o.Low
		existing.Average = o.Average
		existing.RawData = o.RawData
		s.mu.Unlock()
		return storage.UpsertUpdated, nil
	}

	o.ID = s.nextID
	s.nextID++
	o.CreatedAt = time.Now().UTC()

	stored := *o
	s.data[key] = &stored
	publisher := s.publisher
	s.mu.Unlock()

	if publisher != nil {
		publisher.Publish(stored)
	}
	return storage.UpsertInserted, nil
}

// GetLatest retrieves the most recent observation for a series.
// Ties on date are broken by id DESC.
func (s *ObservationStore) GetLatest(_ context.Context, dataType domain.DataType) (*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Observation
	for _, o := range s.data {
		if o.DataType != dataType {
			continue
		}
		if latest == nil || o.Date.After(latest.Date) ||
			(o.Date.Equal(latest.Date) && o.ID > latest.ID) {
			latest = o
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}
	result := *latest
	return &result, nil
}

// GetLatestAt retrieves the most recent observation with date <= at.
func (s *ObservationStore) GetLatestAt(_ context.Context, dataType domain.DataType, at time.Time) (*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Observation
	for _, o := range s.data {
		if o.DataType != dataType || o.Date.After(at) {
			continue
		}
		if latest == nil || o.Date.After(latest.Date) ||
			(o.Date.Equal(latest.Date) && o.ID > latest.ID) {
			latest = o
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}
	result := *latest
	return &result, nil
}

// GetRange retrieves observations with date >= since, ordered by date ASC.
func (s *ObservationStore) GetRange(_ context.Context, dataType domain.DataType, since time.Time) ([]*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Observation
	for _, o := range s.data {
		if o.DataType == dataType && !o.Date.Before(since) {
			observationCopy := *o
			result = append(result, &observationCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// GetAtDates retrieves the observations matching the given dates,
// in input order. Missing dates are skipped.
func (s *ObservationStore) GetAtDates(_ context.Context, dataType domain.DataType, dates []time.Time) ([]*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Observation, 0, len(dates))
	for _, d := range dates {
		if o, ok := s.data[observationKey(dataType, d)]; ok {
			observationCopy := *o
			result = append(result, &observationCopy)
		}
	}
	return result, nil
}

// GetByTypeAndDate retrieves a single observation by its natural key.
func (s *ObservationStore) GetByTypeAndDate(_ context.Context, dataType domain.DataType, date time.Time) (*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.data[observationKey(dataType, date)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	result := *o
	return &result, nil
}

// ListDataTypes summarizes all series present in the store.
func (s *ObservationStore) ListDataTypes(_ context.Context) ([]*domain.DataTypeCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := make(map[domain.DataType]*domain.DataTypeCount)
	for _, o := range s.data {
		c, ok := byType[o.DataType]
		if !ok {
			c = &domain.DataTypeCount{DataType: o.DataType}
			byType[o.DataType] = c
		}
		c.Count++
		if o.Date.After(c.LatestDate) {
			c.LatestDate = o.Date
		}
	}

	counts := make([]*domain.DataTypeCount, 0, len(byType))
	for _, c := range byType {
		counts = append(counts, c)
	}
	sort.Slice(counts, func(i, j int) bool {
		return counts[i].DataType < counts[j].DataType
	})
	return counts, nil
}

// floatPtrEqual compares two optional figures, nil meaning absent.
func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
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
