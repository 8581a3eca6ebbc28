package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/saasops/internal/arr/domain"
)

// Table is the ARR table for one build. It is filled once, adjusted for
// renewals, and then only read. It is not safe for concurrent mutation.
type Table struct {
	rows       []*domain.Row
	bySegment  map[snowflake.ID]*domain.Row
	byContract map[snowflake.ID][]*domain.Row
	byCustomer map[string][]*domain.Row
	// predecessor contract id -> contract ids that renew it
	renewedBy map[snowflake.ID][]snowflake.ID
	exclusion domain.ExclusionScope
	anomalies []domain.Anomaly
}

type TableOption func(*Table)

// WithExclusionScope sets how renewed predecessors drop out of ActiveAt.
func WithExclusionScope(scope domain.ExclusionScope) TableOption {
	return func(t *Table) {
		if scope.Valid() {
			t.exclusion = scope
		}
	}
}

func NewTable(opts ...TableOption) *Table {
	t := &Table{
		bySegment:  make(map[snowflake.ID]*domain.Row),
		byContract: make(map[snowflake.ID][]*domain.Row),
		byCustomer: make(map[string][]*domain.Row),
		renewedBy:  make(map[snowflake.ID][]snowflake.ID),
		exclusion:  domain.ExclusionGlobal,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddRow inserts one resolved row.
func (t *Table) AddRow(row domain.Row) error {
	if _, exists := t.bySegment[row.SegmentID]; exists {
		return fmt.Errorf("%w: segment %d", domain.ErrDuplicateSegment, row.SegmentID)
	}
	r := row
	if r.IsRenewal() && r.RenewalFromContractID == r.ContractID {
		t.anomalies = append(t.anomalies, domain.Anomaly{
			Kind:       domain.AnomalyUnresolvedRenewal,
			SegmentID:  r.SegmentID,
			ContractID: r.ContractID,
			Message:    fmt.Sprintf("contract %d renews itself, treated as not a renewal", r.ContractID),
		})
		r.RenewalFromContractID = 0
	}
	t.rows = append(t.rows, &r)
	t.bySegment[r.SegmentID] = &r
	t.byContract[r.ContractID] = append(t.byContract[r.ContractID], &r)
	t.byCustomer[r.CustomerName] = append(t.byCustomer[r.CustomerName], &r)

	if r.IsRenewal() && !containsID(t.renewedBy[r.RenewalFromContractID], r.ContractID) {
		successors := append(t.renewedBy[r.RenewalFromContractID], r.ContractID)
		sort.Slice(successors, func(i, j int) bool { return successors[i] < successors[j] })
		t.renewedBy[r.RenewalFromContractID] = successors
	}
	return nil
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) ExclusionScope() domain.ExclusionScope { return t.exclusion }

// Anomalies returns what AddRow found wrong with the rows it accepted.
func (t *Table) Anomalies() []domain.Anomaly {
	out := make([]domain.Anomaly, len(t.anomalies))
	copy(out, t.anomalies)
	return out
}

// Rows returns copies of every row in insertion order.
func (t *Table) Rows() []domain.Row {
	return copyRows(t.rows)
}

func (t *Table) Row(segmentID snowflake.ID) (domain.Row, bool) {
	r, ok := t.bySegment[segmentID]
	if !ok {
		return domain.Row{}, false
	}
	return *r, true
}

func (t *Table) ContractRows(contractID snowflake.ID) []domain.Row {
	return copyRows(t.byContract[contractID])
}

func (t *Table) CustomerRows(customer string) []domain.Row {
	return copyRows(t.byCustomer[customer])
}

// Customers returns every customer name in the table, sorted.
func (t *Table) Customers() []string {
	names := make([]string, 0, len(t.byCustomer))
	for name := range t.byCustomer {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RenewedBy returns the contracts that renew contractID, sorted by id.
func (t *Table) RenewedBy(contractID snowflake.ID) []snowflake.ID {
	ids := t.renewedBy[contractID]
	out := make([]snowflake.ID, len(ids))
	copy(out, ids)
	return out
}

// IsRenewed reports whether any contract in the table renews contractID.
func (t *Table) IsRenewed(contractID snowflake.ID) bool {
	return len(t.renewedBy[contractID]) > 0
}

// HasContract reports whether the contract has at least one row.
func (t *Table) HasContract(contractID snowflake.ID) bool {
	return len(t.byContract[contractID]) > 0
}

// ActiveAt returns rows whose ARR range contains date, without renewed
// predecessors.
func (t *Table) ActiveAt(date time.Time) []domain.Row {
	date = Date(date)
	out := make([]domain.Row, 0)
	for _, r := range t.rows {
		if !r.ActiveOn(date) {
			continue
		}
		if t.excluded(r.ContractID, date) {
			continue
		}
		out = append(out, *r)
	}
	return out
}

func (t *Table) excluded(contractID snowflake.ID, date time.Time) bool {
	successors := t.renewedBy[contractID]
	if len(successors) == 0 {
		return false
	}
	if t.exclusion == domain.ExclusionGlobal {
		return true
	}
	for _, succ := range successors {
		for _, r := range t.byContract[succ] {
			if r.ActiveOn(date) {
				return true
			}
		}
	}
	return false
}

// Overlapping returns every row whose ARR range intersects [start, end].
func (t *Table) Overlapping(start, end time.Time) []domain.Row {
	start, end = Date(start), Date(end)
	out := make([]domain.Row, 0)
	for _, r := range t.rows {
		if r.Overlaps(start, end) {
			out = append(out, *r)
		}
	}
	return out
}

// ContractedAt returns the rows counted in CARR on date: booked on or before
// date and not yet past their ARR end. A renewed predecessor stops counting
// once a renewal has been booked strictly before date.
func (t *Table) ContractedAt(date time.Time) []domain.Row {
	date = Date(date)
	out := make([]domain.Row, 0)
	for _, r := range t.rows {
		if date.Before(r.ContractDate) || date.After(r.ARREndDate) {
			continue
		}
		if booked, ok := t.earliestRenewalBooking(r.ContractID); ok && booked.Before(date) {
			continue
		}
		out = append(out, *r)
	}
	return out
}

func (t *Table) earliestRenewalBooking(contractID snowflake.ID) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, succ := range t.renewedBy[contractID] {
		for _, r := range t.byContract[succ] {
			if !found || r.ContractDate.Before(earliest) {
				earliest = r.ContractDate
				found = true
			}
		}
	}
	return earliest, found
}

// successorStart is the earliest ARR start among rows renewing contractID.
func (t *Table) successorStart(contractID snowflake.ID) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, succ := range t.renewedBy[contractID] {
		for _, r := range t.byContract[succ] {
			if !found || r.ARRStartDate.Before(earliest) {
				earliest = r.ARRStartDate
				found = true
			}
		}
	}
	return earliest, found
}

// latestRow picks the contract row with the latest ARR end, breaking ties
// on the highest segment id.
func (t *Table) latestRow(contractID snowflake.ID) (domain.Row, bool) {
	var best *domain.Row
	for _, r := range t.byContract[contractID] {
		if best == nil ||
			r.ARREndDate.After(best.ARREndDate) ||
			(r.ARREndDate.Equal(best.ARREndDate) && r.SegmentID > best.SegmentID) {
			best = r
		}
	}
	if best == nil {
		return domain.Row{}, false
	}
	return *best, true
}

func sumARR(rows []domain.Row) int64 {
	var total int64
	for _, r := range rows {
		total += r.ARR
	}
	return total
}

func copyRows(rows []*domain.Row) []domain.Row {
	out := make([]domain.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out
}

func containsID(ids []snowflake.ID, id snowflake.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
