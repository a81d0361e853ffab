package rank

import (
	"context"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/source"
)

func TestResolvePreservesOrder(t *testing.T) {
	src := &source.SliceSource{Rows: []source.Row{
		{Name: "c"},
		{Name: "a"},
		{Name: "b"},
	}}

	seq, err := Resolve(context.Background(), src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if seq.Len() != 3 {
		t.Fatalf("Len = %d, want 3", seq.Len())
	}
	// Source order is rank order; Resolve never sorts.
	for rank, want := range []string{"c", "a", "b"} {
		if got := seq.Name(int64(rank)); got != want {
			t.Fatalf("Name(%d) = %q, want %q", rank, got, want)
		}
	}
}

func TestResolveRepresentativeTime(t *testing.T) {
	newest := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &source.SliceSource{Rows: []source.Row{
		{Name: "a", SortTime: newest.Add(-48 * time.Hour)},
		{Name: "b", SortTime: newest},
		{Name: "c", SortTime: newest.Add(-time.Minute)},
	}}

	seq, err := Resolve(context.Background(), src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !seq.RepresentativeTime().Equal(newest) {
		t.Fatalf("RepresentativeTime = %v, want %v", seq.RepresentativeTime(), newest)
	}
}

func TestResolveEmptySequence(t *testing.T) {
	seq, err := Resolve(context.Background(), &source.SliceSource{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if seq.Len() != 0 {
		t.Fatalf("Len = %d, want 0", seq.Len())
	}
	if !seq.RepresentativeTime().IsZero() {
		t.Fatalf("RepresentativeTime = %v, want zero", seq.RepresentativeTime())
	}
}
