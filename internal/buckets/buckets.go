// Package buckets defines named percentile ranges and their resolution
// to row-index intervals over a ranked sequence.
package buckets

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrConfiguration indicates a malformed or overlapping percentile bucket set.
	ErrConfiguration = errors.New("invalid percentile buckets")

	// ErrInvariant indicates computed index bounds outside [0, rowCount].
	// This is a defect in bound computation, not a user error.
	ErrInvariant = errors.New("bucket bound invariant violated")
)

// Range is a named percentile range in percentage units [0, 100].
type Range struct {
	Label string
	Start float64
	End   float64
}

// Interval is the half-open row-index interval [Lower, Upper) a range
// resolves to for a given row count.
type Interval struct {
	Lower int64
	Upper int64
}

// Len returns the number of row indices covered by the interval.
func (iv Interval) Len() int64 {
	return iv.Upper - iv.Lower
}

// FromConfig converts a label-keyed bucket configuration into a slice of
// ranges sorted by label, so processing order is deterministic.
func FromConfig(cfg map[string][2]float64) []Range {
	ranges := make([]Range, 0, len(cfg))
	for label, bounds := range cfg {
		ranges = append(ranges, Range{Label: label, Start: bounds[0], End: bounds[1]})
	}
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].Label < ranges[j].Label
	})
	return ranges
}

// Validate checks the whole bucket set before any row is read:
// bounds within [0, 100], start strictly below end, and no overlap
// between ranges once sorted by start. Ranges may share an exact
// boundary value; the half-open index convention in Interval resolution
// keeps the shared boundary row on one side only.
//
// Validate is pure and runs once per configuration.
func Validate(ranges []Range) error {
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	last := Range{Start: -1, End: -1}
	for _, r := range sorted {
		if r.Start < 0 {
			return fmt.Errorf("%w: bucket %q range [%g, %g]: lower bound must be greater or equal to 0",
				ErrConfiguration, r.Label, r.Start, r.End)
		}
		if r.End > 100 {
			return fmt.Errorf("%w: bucket %q range [%g, %g]: higher bound must be lower or equal to 100",
				ErrConfiguration, r.Label, r.Start, r.End)
		}
		if r.Start >= r.End {
			return fmt.Errorf("%w: bucket %q range [%g, %g]: higher bound must be greater than lower bound",
				ErrConfiguration, r.Label, r.Start, r.End)
		}
		if r.Start < last.End {
			return fmt.Errorf("%w: bucket %q range [%g, %g] is overlapping with bucket %q range [%g, %g]",
				ErrConfiguration, last.Label, last.Start, last.End, r.Label, r.Start, r.End)
		}
		last = r
	}
	return nil
}

// Resolve computes the half-open index interval [lower, upper) the range
// covers over a sequence of rowCount rows. The exact 0 and 100 endpoints
// bypass the floor arithmetic so floating-point truncation can never
// exclude the first or last row.
func (r Range) Resolve(rowCount int64) (Interval, error) {
	var lower, upper int64
	if r.Start == 0 {
		lower = 0
	} else {
		lower = int64(r.Start / 100 * float64(rowCount))
	}
	if r.End == 100 {
		upper = rowCount
	} else {
		upper = int64(r.End / 100 * float64(rowCount))
	}

	if lower < 0 || lower > upper || upper > rowCount {
		return Interval{}, fmt.Errorf("%w: bucket %q resolved to [%d, %d) over %d rows",
			ErrInvariant, r.Label, lower, upper, rowCount)
	}
	return Interval{Lower: lower, Upper: upper}, nil
}
