package domain

import "errors"

var (
	ErrDataIntegrity       = errors.New("data_integrity")
	ErrDegenerateSegment   = errors.New("degenerate_segment_length")
	ErrDuplicateSegment    = errors.New("duplicate_segment")
	ErrInvalidTimeframe    = errors.New("invalid_timeframe")
	ErrInvalidRange        = errors.New("invalid_range")
	ErrInvalidDate         = errors.New("invalid_date")
	ErrInvalidSampleDay    = errors.New("invalid_sample_day")
	ErrInvalidExclusion    = errors.New("invalid_exclusion_scope")
	ErrNoPeriods           = errors.New("no_periods_in_range")
	ErrPeriodOutOfSequence = errors.New("period_out_of_sequence")
)

// IsValidationError reports whether err is caused by caller input rather
// than by ledger data.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidTimeframe),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidSampleDay),
		errors.Is(err, ErrInvalidExclusion),
		errors.Is(err, ErrNoPeriods):
		return true
	default:
		return false
	}
}

// IsDataError reports whether err comes from inconsistent ledger data.
func IsDataError(err error) bool {
	return errors.Is(err, ErrDataIntegrity) ||
		errors.Is(err, ErrDegenerateSegment) ||
		errors.Is(err, ErrDuplicateSegment)
}
