package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// StartRule names which rule picked a segment's ARR start date.
type StartRule string

const (
	StartRuleOverride     StartRule = "override"
	StartRuleBookingDate  StartRule = "booking_date"
	StartRuleSegmentStart StartRule = "segment_start"
)

// Row is one entry of the ARR table. ARREndDate may have been moved by the
// renewal adjuster; SegmentEndDate keeps the contracted end.
type Row struct {
	SegmentID             snowflake.ID `json:"segment_id"`
	ContractID            snowflake.ID `json:"contract_id"`
	RenewalFromContractID snowflake.ID `json:"renewal_from_contract_id,omitempty"`
	CustomerName          string       `json:"customer_name"`
	ContractDate          time.Time    `json:"contract_date"`
	SegmentStartDate      time.Time    `json:"segment_start_date"`
	SegmentEndDate        time.Time    `json:"segment_end_date"`
	ARRStartDate          time.Time    `json:"arr_start_date"`
	ARREndDate            time.Time    `json:"arr_end_date"`
	ARR                   int64        `json:"arr"`
	ContractMonths        int          `json:"contract_months"`
	StartRule             StartRule    `json:"start_rule"`
	LengthVarianceAlert   bool         `json:"length_variance_alert"`
}

// IsRenewal reports whether the row's contract renews another contract.
func (r Row) IsRenewal() bool {
	return r.RenewalFromContractID != 0
}

// ActiveOn reports whether date falls inside [ARRStartDate, ARREndDate].
func (r Row) ActiveOn(date time.Time) bool {
	return !date.Before(r.ARRStartDate) && !date.After(r.ARREndDate)
}

// Overlaps reports whether the row's ARR range intersects [start, end].
func (r Row) Overlaps(start, end time.Time) bool {
	return !r.ARRStartDate.After(end) && !r.ARREndDate.Before(start)
}

// ExclusionScope controls when a renewed predecessor drops out of
// point-in-time ARR.
type ExclusionScope string

const (
	// ExclusionGlobal drops any contract that some other contract renews, on
	// every date, including dates before the renewal existed.
	ExclusionGlobal ExclusionScope = "global"
	// ExclusionActive drops a predecessor only on dates where one of its
	// renewing rows is itself active.
	ExclusionActive ExclusionScope = "active"
)

func (s ExclusionScope) Valid() bool {
	return s == ExclusionGlobal || s == ExclusionActive
}

type AnomalyKind string

const (
	AnomalyUnresolvedRenewal AnomalyKind = "unresolved_renewal"
	AnomalyUnresolvedChurn   AnomalyKind = "unresolved_churn"
	AnomalySkippedSegment    AnomalyKind = "skipped_segment"
	AnomalyLengthVariance    AnomalyKind = "length_variance"
)

// Anomaly is a warning-level finding that does not fail a build.
type Anomaly struct {
	Kind       AnomalyKind  `json:"kind"`
	SegmentID  snowflake.ID `json:"segment_id,omitempty"`
	ContractID snowflake.ID `json:"contract_id,omitempty"`
	Date       *time.Time   `json:"date,omitempty"`
	Message    string       `json:"message"`
}

// Adjustment records one end-date change made by the renewal adjuster.
type Adjustment struct {
	SegmentID           snowflake.ID   `json:"segment_id"`
	ContractID          snowflake.ID   `json:"contract_id"`
	RenewingContractIDs []snowflake.ID `json:"renewing_contract_ids"`
	PreviousEndDate     time.Time      `json:"previous_end_date"`
	AdjustedEndDate     time.Time      `json:"adjusted_end_date"`
}

// BuildReport summarizes one ARR table build.
type BuildReport struct {
	RunID               string         `json:"run_id"`
	Rows                int            `json:"rows"`
	SkippedNonRecurring int            `json:"skipped_non_recurring"`
	Adjustments         []Adjustment   `json:"adjustments,omitempty"`
	Anomalies           []Anomaly      `json:"anomalies,omitempty"`
	ExclusionScope      ExclusionScope `json:"exclusion_scope"`
}

// Timeframe is the granularity of period-based reports.
type Timeframe string

const (
	TimeframeMonth   Timeframe = "M"
	TimeframeQuarter Timeframe = "Q"
)

// Period is an inclusive date window.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// Movement is the ARR movement classified inside one period.
type Movement struct {
	New         int64 `json:"new"`
	Expansion   int64 `json:"expansion"`
	Contraction int64 `json:"contraction"`
	Churn       int64 `json:"churn"`
}

// Net is the signed ARR change implied by the movement.
func (m Movement) Net() int64 {
	return m.New + m.Expansion - m.Contraction - m.Churn
}

// ChangeColumn is one period of the ARR change table.
type ChangeColumn struct {
	Period    Period `json:"period"`
	Beginning int64  `json:"beginning_arr"`
	Movement
	Ending int64 `json:"ending_arr"`
}

// ChangeTable is the period-indexed Beginning/New/Expansion/Contraction/
// Churn/Ending table.
type ChangeTable struct {
	Timeframe Timeframe      `json:"timeframe"`
	Columns   []ChangeColumn `json:"columns"`
	Anomalies []Anomaly      `json:"anomalies,omitempty"`
}

// CustomerAmount is one line of a per-customer table.
type CustomerAmount struct {
	Customer string `json:"customer"`
	Amount   int64  `json:"amount"`
}

// CustomerTable is a customer-to-amount table with a total row.
type CustomerTable struct {
	Date  time.Time        `json:"date"`
	Label string           `json:"label,omitempty"`
	Rows  []CustomerAmount `json:"rows"`
	Total int64            `json:"total"`
}

// MatrixRow is one customer across every column of a Matrix.
type MatrixRow struct {
	Customer string  `json:"customer"`
	Values   []int64 `json:"values"`
}

// Matrix is a customer by period table.
type Matrix struct {
	Columns []string    `json:"columns"`
	Dates   []time.Time `json:"dates"`
	Rows    []MatrixRow `json:"rows"`
	Totals  []int64     `json:"totals"`
}

// SeriesPoint is one month-end sample of bookings, ARR and CARR.
type SeriesPoint struct {
	Date     time.Time `json:"date"`
	Bookings int64     `json:"bookings"`
	ARR      int64     `json:"arr"`
	CARR     int64     `json:"carr"`
}

// MRRMovement is the customer-level month-over-month MRR breakdown.
type MRRMovement struct {
	Date        time.Time `json:"date"`
	New         int64     `json:"new_mrr"`
	Churn       int64     `json:"churn_mrr"`
	Expansion   int64     `json:"expansion_mrr"`
	Contraction int64     `json:"contraction_mrr"`
	Starting    int64     `json:"starting_mrr"`
	Ending      int64     `json:"ending_mrr"`
}

// Retention is the trailing twelve month retention summary.
type Retention struct {
	Date                 time.Time `json:"date"`
	WindowStart          time.Time `json:"window_start"`
	BeginningARR         int64     `json:"beginning_arr"`
	Churn                int64     `json:"churn"`
	Contraction          int64     `json:"contraction"`
	GrossDollarRetention int64     `json:"gross_dollar_retention"`
	Expansion            int64     `json:"expansion"`
	NetDollarRetention   int64     `json:"net_dollar_retention"`
	GrossRetentionRate   *float64  `json:"gross_retention_rate,omitempty"`
	NetRetentionRate     *float64  `json:"net_retention_rate,omitempty"`
}

// SampleDay picks which day of a month the revenue matrix samples.
type SampleDay string

const (
	SampleMid SampleDay = "mid"
	SampleEnd SampleDay = "end"
)
