package engine

import (
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/saasops/internal/arr/domain"
)

// AdjustRenewals closes gaps between renewed contracts and their renewals by
// moving the predecessor's ARR end to the day before the earliest renewing
// row starts. Gaps of one day or less and overlaps are left alone.
//
// Passes repeat until nothing moves, so chains resolve regardless of row
// order and a second call returns no adjustments.
func AdjustRenewals(t *Table) ([]domain.Adjustment, []domain.Anomaly) {
	var (
		adjustments []domain.Adjustment
		anomalies   []domain.Anomaly
	)

	predecessors := make([]snowflake.ID, 0, len(t.renewedBy))
	for id := range t.renewedBy {
		predecessors = append(predecessors, id)
	}
	sort.Slice(predecessors, func(i, j int) bool { return predecessors[i] < predecessors[j] })

	for _, pred := range predecessors {
		if t.HasContract(pred) {
			continue
		}
		for _, succ := range t.renewedBy[pred] {
			anomalies = append(anomalies, domain.Anomaly{
				Kind:       domain.AnomalyUnresolvedRenewal,
				ContractID: succ,
				Message:    fmt.Sprintf("contract %d renews contract %d which has no ARR rows", succ, pred),
			})
		}
	}

	// ARR start dates never move, so every tail row settles on the day before
	// its successor starts and the loop ends.
	for changed := true; changed; {
		changed = false
		for _, pred := range predecessors {
			succStart, ok := t.successorStart(pred)
			if !ok {
				continue
			}
			tail := t.tailRows(pred)
			for _, r := range tail {
				if daysBetween(r.ARREndDate, succStart) <= 1 {
					continue
				}
				adjusted := addDays(succStart, -1)
				adjustments = append(adjustments, domain.Adjustment{
					SegmentID:           r.SegmentID,
					ContractID:          r.ContractID,
					RenewingContractIDs: t.RenewedBy(pred),
					PreviousEndDate:     r.ARREndDate,
					AdjustedEndDate:     adjusted,
				})
				r.ARREndDate = adjusted
				changed = true
			}
		}
	}

	return adjustments, anomalies
}

// tailRows returns the rows of a contract sharing its latest ARR end date.
func (t *Table) tailRows(contractID snowflake.ID) []*domain.Row {
	rows := t.byContract[contractID]
	if len(rows) == 0 {
		return nil
	}
	latest := rows[0].ARREndDate
	for _, r := range rows[1:] {
		if r.ARREndDate.After(latest) {
			latest = r.ARREndDate
		}
	}
	out := make([]*domain.Row, 0, 1)
	for _, r := range rows {
		if r.ARREndDate.Equal(latest) {
			out = append(out, r)
		}
	}
	return out
}
