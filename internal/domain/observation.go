package domain

import (
	"encoding/json"
	"time"
)

// DataType identifies which economic series an observation belongs to.
type DataType string

// Known data types. BLS series are monthly, metal spot prices are daily.
const (
	DataTypeCPI          DataType = "cpi"
	DataTypeGold         DataType = "gold"
	DataTypeSilver       DataType = "silver"
	DataTypeGasPrice     DataType = "gas_price"
	DataTypeUnemployment DataType = "unemployment"
	DataTypeImportIndex  DataType = "import_index"
	DataTypeExportIndex  DataType = "export_index"
)

// KnownDataTypes returns all data types this service understands,
// in stable order.
func KnownDataTypes() []DataType {
	return []DataType{
		DataTypeCPI,
		DataTypeGold,
		DataTypeSilver,
		DataTypeGasPrice,
		DataTypeUnemployment,
		DataTypeImportIndex,
		DataTypeExportIndex,
	}
}

// Valid reports whether dt is one of the known data types.
func (dt DataType) Valid() bool {
	for _, known := range KnownDataTypes() {
		if dt == known {
			return true
		}
	}
	return false
}

// Observation represents a single period's measurement of an economic series.
// Corresponds to a row of the market_data table in PostgreSQL.
type Observation struct {
	ID        int64           `json:"id"`         // store-assigned, immutable
	Date      time.Time       `json:"date"`       // period the observation covers
	DataType  DataType        `json:"data_type"`  // series discriminator
	High      *float64        `json:"high"`       // period high (nullable)
	Low       *float64        `json:"low"`        // period low (nullable)
	Average   float64         `json:"average"`    // primary value consumers read
	RawData   json.RawMessage `json:"raw_data,omitempty"` // verbatim upstream payload, for audit
	CreatedAt time.Time       `json:"created_at"`
}

// WithinBounds reports whether Average lies inside [Low, High].
// Observations with missing bounds are trivially in bounds.
func (o *Observation) WithinBounds() bool {
	if o.Low != nil && o.Average < *o.Low {
		return false
	}
	if o.High != nil && o.Average > *o.High {
		return false
	}
	return true
}

// SeriesPoint is the (date, average) pair produced by range queries for charting.
type SeriesPoint struct {
	Date    time.Time `json:"date"`
	Average float64   `json:"average"`
}

// SeriesPoints projects observations onto chartable points, preserving order.
func SeriesPoints(observations []*Observation) []SeriesPoint {
	points := make([]SeriesPoint, 0, len(observations))
	for _, o := range observations {
		points = append(points, SeriesPoint{Date: o.Date, Average: o.Average})
	}
	return points
}

// DataTypeCount summarizes one series: how many observations it holds
// and the most recent period covered. Stale LatestDate is the visible
// symptom of a stalled ingestion job.
type DataTypeCount struct {
	DataType   DataType  `json:"data_type"`
	Count      int64     `json:"count"`
	LatestDate time.Time `json:"latest_date"`
}
