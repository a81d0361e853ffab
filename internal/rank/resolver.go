// Package rank materializes an ordered row source into a ranked
// sequence that percentile ranges can be resolved against.
package rank

import (
	"context"
	"fmt"
	"time"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/source"
)

// Sequence is a fully materialized ranked sequence. The index of a row
// name is its rank.
type Sequence struct {
	names       []string
	maxSortTime time.Time
}

// Len returns the number of ranked rows.
func (s *Sequence) Len() int64 {
	return int64(len(s.names))
}

// Name returns the row name at the given rank.
func (s *Sequence) Name(rank int64) string {
	return s.names[rank]
}

// RepresentativeTime is the maximum timestamp observed across the
// sequence's sort keys. The zero time means no sort key carried a date.
func (s *Sequence) RepresentativeTime() time.Time {
	return s.maxSortTime
}

// Resolve drains the source and builds the ranked sequence, folding the
// representative timestamp as it goes.
func Resolve(ctx context.Context, src source.RowSource) (*Sequence, error) {
	rows, errc := src.Stream(ctx)

	seq := &Sequence{}
	for row := range rows {
		seq.names = append(seq.names, row.Name)
		if row.SortTime.After(seq.maxSortTime) {
			seq.maxSortTime = row.SortTime
		}
	}
	if err := <-errc; err != nil {
		return nil, fmt.Errorf("streaming ordered rows: %w", err)
	}
	return seq, nil
}

// FromNames builds a sequence directly from ordered names. Used by
// tests and by callers that already rank in memory.
func FromNames(names []string, maxSortTime time.Time) *Sequence {
	return &Sequence{names: names, maxSortTime: maxSortTime}
}
