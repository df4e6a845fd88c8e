// Package ingestion keeps the market_data store current. On a fixed
// cadence it pulls BLS series and metal spot prices upstream and upserts
// them: new periods insert, revised figures update, everything else is a
// no-op.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"market-data-service/internal/domain"
	"market-data-service/internal/ingestion/bls"
	"market-data-service/internal/ingestion/metals"
	"market-data-service/internal/logger"
	"market-data-service/internal/observability"
	"market-data-service/internal/storage"
)

// BLSSeriesIDs maps data types to their BLS series identifiers.
var BLSSeriesIDs = map[domain.DataType]string{
	domain.DataTypeCPI:          "CUUR0000SA0", // CPI-U, all items, U.S. city average
	domain.DataTypeUnemployment: "LNS14000000", // unemployment rate, seasonally adjusted
	domain.DataTypeGasPrice:     "APU000074714", // gasoline, unleaded regular, per gallon
	domain.DataTypeImportIndex:  "EIUIR",       // import price index, all commodities
	domain.DataTypeExportIndex:  "EIUIQ",       // export price index, all commodities
}

// MetalNames maps data types to metals.dev metal identifiers.
var MetalNames = map[domain.DataType]string{
	domain.DataTypeGold:   "gold",
	domain.DataTypeSilver: "silver",
}

// BLSFetcher fetches BLS timeseries points.
type BLSFetcher interface {
	FetchSeries(ctx context.Context, seriesID string, startYear, endYear int) ([]bls.DataPoint, error)
}

// MetalsFetcher fetches metal spot prices.
type MetalsFetcher interface {
	FetchSpot(ctx context.Context, metal string) (*metals.Spot, error)
}

// Config selects which series a runner ingests and how often.
type Config struct {
	// Interval between scheduled runs.
	Interval time.Duration
	// BLSSeries maps data types to BLS series IDs.
	BLSSeries map[domain.DataType]string
	// Metals lists metal data types to quote daily.
	Metals []domain.DataType
}

// DefaultConfig ingests the series the service has historically tracked:
// CPI monthly plus gold and silver daily, twice a day.
func DefaultConfig() Config {
	return Config{
		Interval: 12 * time.Hour,
		BLSSeries: map[domain.DataType]string{
			domain.DataTypeCPI: BLSSeriesIDs[domain.DataTypeCPI],
		},
		Metals: []domain.DataType{domain.DataTypeGold, domain.DataTypeSilver},
	}
}

// Summary tallies what a run did.
type Summary struct {
	Inserted  int
	Updated   int
	Unchanged int
	Skipped   int // points that are not storable (e.g. annual averages)
	Errors    int // series that failed entirely
}

// add folds an upsert outcome into the summary.
func (s *Summary) add(outcome storage.UpsertOutcome) {
	switch outcome {
	case storage.UpsertInserted:
		s.Inserted++
	case storage.UpsertUpdated:
		s.Updated++
	default:
		s.Unchanged++
	}
}

// merge accumulates another summary.
func (s *Summary) merge(other Summary) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Skipped += other.Skipped
	s.Errors += other.Errors
}

// Runner executes ingestion runs against a store.
type Runner struct {
	cfg     Config
	store   storage.ObservationStore
	bls     BLSFetcher
	metals  MetalsFetcher
	log     *logger.Entry
	metrics *observability.Metrics
	now     func() time.Time
}

// NewRunner creates a runner. metalsClient may be nil when no metal series
// are configured; metrics may be nil.
func NewRunner(cfg Config, store storage.ObservationStore, blsClient BLSFetcher, metalsClient MetalsFetcher, log *logger.Entry, metrics *observability.Metrics) *Runner {
	return &Runner{
		cfg:     cfg,
		store:   store,
		bls:     blsClient,
		metals:  metalsClient,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// RunOnce ingests every configured series for the current year. A failing
// series is logged and counted; the run continues with the rest.
func (r *Runner) RunOnce(ctx context.Context) Summary {
	var summary Summary
	currentYear := r.now().UTC().Year()

	for dataType, seriesID := range r.cfg.BLSSeries {
		s, err := r.ingestBLSSeries(ctx, dataType, seriesID, currentYear, currentYear)
		summary.merge(s)
		if err != nil {
			summary.Errors++
			r.seriesError(dataType, err)
		}
	}

	for _, dataType := range r.cfg.Metals {
		if err := r.ingestMetal(ctx, dataType, &summary); err != nil {
			summary.Errors++
			r.seriesError(dataType, err)
		}
	}

	r.finishRun(summary)
	return summary
}

// Backfill ingests the configured BLS series across a year range. Metal
// spot providers only quote current prices, so metals are excluded.
func (r *Runner) Backfill(ctx context.Context, startYear, endYear int) (Summary, error) {
	if startYear > endYear {
		return Summary{}, fmt.Errorf("start year %d after end year %d", startYear, endYear)
	}

	var summary Summary
	for dataType, seriesID := range r.cfg.BLSSeries {
		s, err := r.ingestBLSSeries(ctx, dataType, seriesID, startYear, endYear)
		summary.merge(s)
		if err != nil {
			summary.Errors++
			r.seriesError(dataType, err)
		}
	}

	r.finishRun(summary)
	return summary, nil
}

// RunEvery runs immediately, then on every interval tick until ctx is done.
func (r *Runner) RunEvery(ctx context.Context) error {
	interval := r.cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}

	r.logSummary(r.RunOnce(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.logSummary(r.RunOnce(ctx))
		}
	}
}

// ingestBLSSeries fetches one BLS series and upserts its monthly points.
func (r *Runner) ingestBLSSeries(ctx context.Context, dataType domain.DataType, seriesID string, startYear, endYear int) (Summary, error) {
	var summary Summary

	points, err := r.bls.FetchSeries(ctx, seriesID, startYear, endYear)
	if err != nil {
		return summary, fmt.Errorf("fetch %s (%s): %w", dataType, seriesID, err)
	}

	for _, p := range points {
		if !p.Monthly() {
			summary.Skipped++
			continue
		}
		date, err := p.Date()
		if err != nil {
			summary.Skipped++
			continue
		}
		value, err := p.FloatValue()
		if err != nil {
			summary.Skipped++
			continue
		}

		// BLS publishes a single figure per period; high and low carry it too.
		o := &domain.Observation{
			Date:     date,
			DataType: dataType,
			High:     &value,
			Low:      &value,
			Average:  value,
			RawData:  p.Raw,
		}

		outcome, err := r.store.Upsert(ctx, o)
		if err != nil {
			return summary, fmt.Errorf("upsert %s %s: %w", dataType, date.Format("2006-01-02"), err)
		}
		summary.add(outcome)
		r.countUpsert(dataType, outcome)
	}

	return summary, nil
}

// ingestMetal fetches one metal's spot quote and upserts today's row.
func (r *Runner) ingestMetal(ctx context.Context, dataType domain.DataType, summary *Summary) error {
	if r.metals == nil {
		return fmt.Errorf("metals client not configured")
	}
	metal, ok := MetalNames[dataType]
	if !ok {
		return fmt.Errorf("no metal mapped for data type %s", dataType)
	}

	spot, err := r.metals.FetchSpot(ctx, metal)
	if err != nil {
		return fmt.Errorf("fetch %s spot: %w", metal, err)
	}

	o := &domain.Observation{
		Date:     spot.Date,
		DataType: dataType,
		High:     &spot.High,
		Low:      &spot.Low,
		Average:  spot.Price,
		RawData:  spot.Raw,
	}

	outcome, err := r.store.Upsert(ctx, o)
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", dataType, spot.Date.Format("2006-01-02"), err)
	}
	summary.add(outcome)
	r.countUpsert(dataType, outcome)
	return nil
}

// seriesError logs and counts a failed series.
func (r *Runner) seriesError(dataType domain.DataType, err error) {
	r.log.WithError(err).WithField("data_type", dataType).Error("series ingestion failed")
	if r.metrics != nil {
		r.metrics.IngestionSeriesErrors.WithLabelValues(string(dataType)).Inc()
	}
}

// countUpsert records an upsert outcome metric.
func (r *Runner) countUpsert(dataType domain.DataType, outcome storage.UpsertOutcome) {
	if r.metrics != nil {
		r.metrics.ObservationsUpserted.WithLabelValues(string(dataType), outcome.String()).Inc()
	}
}

// finishRun records run-level metrics.
func (r *Runner) finishRun(summary Summary) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if summary.Errors > 0 {
		status = "partial"
	}
	r.metrics.IngestionRunsTotal.WithLabelValues(status).Inc()
	if summary.Errors == 0 {
		r.metrics.LastSuccessfulIngestion.Set(float64(r.now().Unix()))
	}
}

// logSummary reports a completed run.
func (r *Runner) logSummary(summary Summary) {
	r.log.WithFields(logger.Fields{
		"inserted":  summary.Inserted,
		"updated":   summary.Updated,
		"unchanged": summary.Unchanged,
		"skipped":   summary.Skipped,
		"errors":    summary.Errors,
	}).Info("ingestion run complete")
}
