package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/smallbiznis/saasops/internal/arr/domain"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
)

type BuildOptions struct {
	// AllowPartial skips segments that fail to resolve and records them as
	// anomalies instead of failing the build.
	AllowPartial bool
	Exclusion    domain.ExclusionScope
}

// Build resolves every segment of the feed into a fresh ARR table and runs
// the renewal adjuster over it. Unless AllowPartial is set, any segment
// failure fails the build and no table is returned.
func Build(segments []ledgerdomain.SegmentRow, opts BuildOptions) (*Table, domain.BuildReport, error) {
	exclusion := opts.Exclusion
	if exclusion == "" {
		exclusion = domain.ExclusionGlobal
	}
	if !exclusion.Valid() {
		return nil, domain.BuildReport{}, fmt.Errorf("%w: %q", domain.ErrInvalidExclusion, exclusion)
	}

	table := NewTable(WithExclusionScope(exclusion))
	report := domain.BuildReport{
		RunID:          uuid.NewString(),
		ExclusionScope: exclusion,
	}

	var errs []error
	for _, seg := range segments {
		resolved, err := Resolve(seg)
		if err == nil && resolved.Recurring {
			err = table.AddRow(resolved.Row)
		}
		if err != nil {
			if !opts.AllowPartial {
				errs = append(errs, err)
				continue
			}
			report.Anomalies = append(report.Anomalies, domain.Anomaly{
				Kind:       domain.AnomalySkippedSegment,
				SegmentID:  seg.SegmentID,
				ContractID: seg.ContractID,
				Message:    err.Error(),
			})
			continue
		}
		if !resolved.Recurring {
			report.SkippedNonRecurring++
			continue
		}
		if resolved.Row.LengthVarianceAlert {
			report.Anomalies = append(report.Anomalies, domain.Anomaly{
				Kind:       domain.AnomalyLengthVariance,
				SegmentID:  seg.SegmentID,
				ContractID: seg.ContractID,
				Message: fmt.Sprintf("segment runs %d days, not close to %d whole months",
					daysBetween(seg.SegmentStartDate, seg.SegmentEndDate), resolved.Row.ContractMonths),
			})
		}
	}
	if len(errs) > 0 {
		return nil, report, errors.Join(errs...)
	}

	report.Anomalies = append(report.Anomalies, table.Anomalies()...)
	adjustments, anomalies := AdjustRenewals(table)
	report.Adjustments = adjustments
	report.Anomalies = append(report.Anomalies, anomalies...)
	report.Rows = table.Len()
	return table, report, nil
}
