package tables

import (
	"testing"
	"time"
)

func TestToCellRowsPayloads(t *testing.T) {
	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []Row{
		{Name: "r1", Cells: []Cell{
			{Column: "b", Value: Bool(true), At: at},
			{Column: "i", Value: Int(-7), At: at},
			{Column: "f", Value: Float(2.5), At: at},
			{Column: "s", Value: String("hello"), At: at},
			{Column: "undated", Value: Int(1)},
		}},
	}
	cfg := ParquetConfig{Dataset: "d", DatasetVersion: "v1", RunID: "run-1"}

	cellRows := ToCellRows(rows, cfg, at)
	if len(cellRows) != 5 {
		t.Fatalf("got %d cell rows, want 5", len(cellRows))
	}

	byColumn := make(map[string]CellRow)
	for _, cr := range cellRows {
		byColumn[cr.Column] = cr
	}

	if cr := byColumn["b"]; Kind(cr.ValueKind) != KindBool || !cr.BoolValue {
		t.Fatalf("b = %+v", cr)
	}
	if cr := byColumn["i"]; Kind(cr.ValueKind) != KindInt || cr.IntValue != -7 {
		t.Fatalf("i = %+v", cr)
	}
	if cr := byColumn["f"]; Kind(cr.ValueKind) != KindFloat || cr.DoubleValue != 2.5 {
		t.Fatalf("f = %+v", cr)
	}
	if cr := byColumn["s"]; Kind(cr.ValueKind) != KindString || cr.StringValue != "hello" {
		t.Fatalf("s = %+v", cr)
	}

	if cr := byColumn["s"]; cr.ValueTS != at.UnixMilli() {
		t.Fatalf("s value_ts = %d, want %d", cr.ValueTS, at.UnixMilli())
	}
	// Cells whose sort key carried no date keep a zero value_ts.
	if cr := byColumn["undated"]; cr.ValueTS != 0 {
		t.Fatalf("undated value_ts = %d, want 0", cr.ValueTS)
	}

	for _, cr := range cellRows {
		if cr.RowName != "r1" || cr.Dataset != "d" || cr.RunID != "run-1" {
			t.Fatalf("metadata not propagated: %+v", cr)
		}
	}
}

func TestValueRender(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Null(), "null"},
		{Bool(true), "true"},
		{Bool(false), "false"},
		{Int(42), "42"},
		{Float(1.25), "1.25"},
		{String("x"), "x"},
	}
	for _, c := range cases {
		if got := c.v.Render(); got != c.want {
			t.Fatalf("Render(%+v) = %q, want %q", c.v, got, c.want)
		}
	}
}
