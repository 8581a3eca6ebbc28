package engine

import (
	"fmt"
	"time"

	"github.com/smallbiznis/saasops/internal/arr/domain"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
)

type startRule struct {
	rule    domain.StartRule
	matches func(seg ledgerdomain.SegmentRow) bool
	date    func(seg ledgerdomain.SegmentRow) time.Time
}

// Evaluated top to bottom; the first match wins. The last rule is the
// complement of the second, so a segment with both dates always matches.
var startRules = [...]startRule{
	{
		rule:    domain.StartRuleOverride,
		matches: func(seg ledgerdomain.SegmentRow) bool { return seg.ARROverrideStartDate != nil },
		date:    func(seg ledgerdomain.SegmentRow) time.Time { return Date(*seg.ARROverrideStartDate) },
	},
	{
		rule: domain.StartRuleBookingDate,
		matches: func(seg ledgerdomain.SegmentRow) bool {
			return seg.ContractDate.Before(seg.SegmentStartDate)
		},
		date: func(seg ledgerdomain.SegmentRow) time.Time { return Date(seg.ContractDate) },
	},
	{
		rule: domain.StartRuleSegmentStart,
		matches: func(seg ledgerdomain.SegmentRow) bool {
			return !seg.SegmentStartDate.After(seg.ContractDate)
		},
		date: func(seg ledgerdomain.SegmentRow) time.Time { return Date(seg.SegmentStartDate) },
	},
}

// ResolveStart picks the ARR recognition start date of a segment.
func ResolveStart(seg ledgerdomain.SegmentRow) (time.Time, domain.StartRule, error) {
	for i, r := range startRules {
		if i > 0 && (seg.ContractDate.IsZero() || seg.SegmentStartDate.IsZero()) {
			return time.Time{}, "", fmt.Errorf("%w: segment %d has no booking or start date", domain.ErrDataIntegrity, seg.SegmentID)
		}
		if r.matches(seg) {
			return r.date(seg), r.rule, nil
		}
	}
	return time.Time{}, "", fmt.Errorf("%w: no start rule matched segment %d", domain.ErrDataIntegrity, seg.SegmentID)
}

// Resolved is a segment with its ARR attributes computed.
type Resolved struct {
	Segment   ledgerdomain.SegmentRow
	Recurring bool
	Row       domain.Row
}

// Resolve computes the ARR start, end and value of one segment.
// Non-recurring segments come back with Recurring false and no dates.
func Resolve(seg ledgerdomain.SegmentRow) (Resolved, error) {
	if !seg.Type.IsRecurring() {
		return Resolved{Segment: seg}, nil
	}
	if seg.SegmentStartDate.IsZero() || seg.SegmentEndDate.IsZero() {
		return Resolved{}, fmt.Errorf("%w: segment %d is missing service dates", domain.ErrDataIntegrity, seg.SegmentID)
	}
	if seg.SegmentEndDate.Before(seg.SegmentStartDate) {
		return Resolved{}, fmt.Errorf("%w: segment %d ends before it starts", domain.ErrDataIntegrity, seg.SegmentID)
	}

	start, rule, err := ResolveStart(seg)
	if err != nil {
		return Resolved{}, err
	}
	if start.After(Date(seg.SegmentEndDate)) {
		return Resolved{}, fmt.Errorf("%w: segment %d ARR starts after it ends", domain.ErrDataIntegrity, seg.SegmentID)
	}
	value, err := CalculateValue(seg.SegmentValue, seg.SegmentStartDate, seg.SegmentEndDate)
	if err != nil {
		return Resolved{}, fmt.Errorf("segment %d: %w", seg.SegmentID, err)
	}

	return Resolved{
		Segment:   seg,
		Recurring: true,
		Row: domain.Row{
			SegmentID:             seg.SegmentID,
			ContractID:            seg.ContractID,
			RenewalFromContractID: seg.RenewsContract(),
			CustomerName:          seg.CustomerName,
			ContractDate:          Date(seg.ContractDate),
			SegmentStartDate:      Date(seg.SegmentStartDate),
			SegmentEndDate:        Date(seg.SegmentEndDate),
			ARRStartDate:          start,
			ARREndDate:            value.EndDate,
			ARR:                   value.ARR,
			ContractMonths:        value.ContractMonths,
			StartRule:             rule,
			LengthVarianceAlert:   value.LengthVarianceAlert,
		},
	}, nil
}
