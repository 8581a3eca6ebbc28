package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Scope narrows the ledger read for one report and overrides reporting
// defaults. Zero values fall back to the reporting config.
type Scope struct {
	CustomerID  snowflake.ID
	ContractID  snowflake.ID
	IgnoreZeros *bool
	Exclusion   ExclusionScope
}

type PointRequest struct {
	Scope
	Date      time.Time
	Timeframe Timeframe
	Sample    SampleDay
}

type RangeRequest struct {
	Scope
	Start     time.Time
	End       time.Time
	Timeframe Timeframe
	Sample    SampleDay
}

// Meta describes the build behind a response.
type Meta struct {
	RunID          string         `json:"run_id"`
	Currency       string         `json:"currency"`
	ExclusionScope ExclusionScope `json:"exclusion_scope"`
	LoadedAt       time.Time      `json:"loaded_at"`
	Anomalies      []Anomaly      `json:"anomalies,omitempty"`
}

type TableResponse struct {
	Meta
	Rows        []Row        `json:"rows"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`
	Skipped     int          `json:"skipped_non_recurring"`
}

type CustomerTableResponse struct {
	Meta
	Table CustomerTable `json:"table"`
}

type MatrixResponse struct {
	Meta
	Timeframe Timeframe `json:"timeframe,omitempty"`
	Matrix    Matrix    `json:"matrix"`
}

type ChangeTableResponse struct {
	Meta
	Changes ChangeTable `json:"changes"`
}

type SeriesResponse struct {
	Meta
	Points []SeriesPoint `json:"points"`
}

type MRRResponse struct {
	Meta
	Sample SampleDay     `json:"sample"`
	Months []MRRMovement `json:"months"`
}

type RetentionResponse struct {
	Meta
	Retention Retention `json:"retention"`
}

// Report bundles the tables of the exported ARR report.
type Report struct {
	Meta
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Changes   ChangeTable   `json:"changes"`
	Customers CustomerTable `json:"customers"`
	Bookings  Matrix        `json:"bookings"`
	Retention Retention     `json:"retention"`
}

type Service interface {
	Table(ctx context.Context, scope Scope) (TableResponse, error)
	CustomerARR(ctx context.Context, req PointRequest) (CustomerTableResponse, error)
	CustomerCARR(ctx context.Context, req PointRequest) (CustomerTableResponse, error)
	CustomerARRByPeriod(ctx context.Context, req RangeRequest) (MatrixResponse, error)
	NewARR(ctx context.Context, req PointRequest) (CustomerTableResponse, error)
	Changes(ctx context.Context, req RangeRequest) (ChangeTableResponse, error)
	Bookings(ctx context.Context, req RangeRequest) (MatrixResponse, error)
	BookingsSummary(ctx context.Context, req RangeRequest) (CustomerTableResponse, error)
	Series(ctx context.Context, req RangeRequest) (SeriesResponse, error)
	Revenue(ctx context.Context, req RangeRequest) (MatrixResponse, error)
	MRRMetrics(ctx context.Context, req RangeRequest) (MRRResponse, error)
	Retention(ctx context.Context, req PointRequest) (RetentionResponse, error)
	Report(ctx context.Context, req RangeRequest) (Report, error)
}
