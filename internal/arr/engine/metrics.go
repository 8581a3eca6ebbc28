package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/saasops/internal/arr/domain"
)

// CarryForward holds churn decisions deferred to the next period: contracts
// whose ARR ended exactly on the previous period's closing day, keyed to
// that end date. The zero value is empty. ClassifyPeriod never mutates the
// value it is given.
type CarryForward struct {
	pending map[snowflake.ID]time.Time
}

func (c CarryForward) Len() int { return len(c.pending) }

func (c CarryForward) Contains(contractID snowflake.ID) bool {
	_, ok := c.pending[contractID]
	return ok
}

// ContractIDs returns the deferred contracts sorted by id.
func (c CarryForward) ContractIDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c CarryForward) holds(r *domain.Row) bool {
	end, ok := c.pending[r.ContractID]
	return ok && end.Equal(r.ARREndDate)
}

// PeriodResult is the movement classified in one period.
type PeriodResult struct {
	Period    domain.Period
	Movement  domain.Movement
	Anomalies []domain.Anomaly
}

// ClassifyPeriod sorts the ARR movement of one period into New, Expansion,
// Contraction and Churn. Periods must be classified in chronological order,
// each call receiving the CarryForward returned by the previous one.
func ClassifyPeriod(t *Table, period domain.Period, carry CarryForward) (PeriodResult, CarryForward) {
	start, end := Date(period.Start), Date(period.End)
	result := PeriodResult{Period: period}
	next := CarryForward{pending: make(map[snowflake.ID]time.Time)}

	for _, r := range t.rows {
		carried := carry.holds(r)
		if !carried && !r.Overlaps(start, end) {
			continue
		}

		if !r.ARRStartDate.Before(start) {
			classifyStart(t, r, &result)
		}

		if r.ARREndDate.After(end) {
			continue
		}
		if carried {
			result.Movement.Churn += r.ARR
			continue
		}
		if succStart, ok := t.successorStart(r.ContractID); ok && daysBetween(r.ARREndDate, succStart) <= 1 {
			continue
		}
		if r.ARREndDate.Equal(end) {
			next.pending[r.ContractID] = r.ARREndDate
			continue
		}
		result.Movement.Churn += r.ARR
	}

	return result, next
}

func classifyStart(t *Table, r *domain.Row, result *PeriodResult) {
	if !r.IsRenewal() {
		result.Movement.New += r.ARR
		return
	}
	prior, ok := t.latestRow(r.RenewalFromContractID)
	if !ok {
		result.Movement.New += r.ARR
		result.Anomalies = append(result.Anomalies, domain.Anomaly{
			Kind:       domain.AnomalyUnresolvedRenewal,
			SegmentID:  r.SegmentID,
			ContractID: r.ContractID,
			Message: fmt.Sprintf("renewed contract %d has no ARR rows, counted as new",
				r.RenewalFromContractID),
		})
		return
	}
	switch {
	case r.ARR > prior.ARR:
		result.Movement.Expansion += r.ARR - prior.ARR
	case r.ARR < prior.ARR:
		result.Movement.Contraction += prior.ARR - r.ARR
	}
}

// BuildChangeTable classifies each period in order and chains the totals.
// Beginning ARR of the first period is the point-in-time ARR on the day
// before it starts, so it follows the table's exclusion scope: under global
// scope a renewed predecessor live on that day is not counted. Every later
// period begins at the previous Ending.
// Contracts still deferred after the last period are reported as
// unresolved churn.
func BuildChangeTable(t *Table, periods []domain.Period) (domain.ChangeTable, error) {
	if len(periods) == 0 {
		return domain.ChangeTable{}, domain.ErrNoPeriods
	}
	for i := 1; i < len(periods); i++ {
		if !addDays(periods[i-1].End, 1).Equal(Date(periods[i].Start)) {
			return domain.ChangeTable{}, fmt.Errorf("%w: %s does not follow %s",
				domain.ErrPeriodOutOfSequence, periods[i].Label, periods[i-1].Label)
		}
	}

	table := domain.ChangeTable{Columns: make([]domain.ChangeColumn, 0, len(periods))}
	beginning := sumARR(t.ActiveAt(addDays(periods[0].Start, -1)))
	var carry CarryForward
	for _, p := range periods {
		var res PeriodResult
		res, carry = ClassifyPeriod(t, p, carry)
		table.Columns = append(table.Columns, domain.ChangeColumn{
			Period:    p,
			Beginning: beginning,
			Movement:  res.Movement,
			Ending:    beginning + res.Movement.Net(),
		})
		table.Anomalies = append(table.Anomalies, res.Anomalies...)
		beginning += res.Movement.Net()
	}

	last := Date(periods[len(periods)-1].End)
	for _, id := range carry.ContractIDs() {
		date := carry.pending[id]
		table.Anomalies = append(table.Anomalies, domain.Anomaly{
			Kind:       domain.AnomalyUnresolvedChurn,
			ContractID: id,
			Date:       &date,
			Message: fmt.Sprintf("contract %d ends on %s with no renewal, churn undecided at range end",
				id, last.Format(time.DateOnly)),
		})
	}
	return table, nil
}
