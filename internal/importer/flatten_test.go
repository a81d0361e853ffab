package importer

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/tables"
)

func decodeObject(t *testing.T, line string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(line)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		t.Fatalf("decoding %q: %v", line, err)
	}
	return obj
}

func cellMap(t *testing.T, cells []tables.Cell) map[string]tables.Value {
	t.Helper()
	out := make(map[string]tables.Value, len(cells))
	for _, c := range cells {
		if _, dup := out[c.Column]; dup {
			t.Fatalf("duplicate column %q", c.Column)
		}
		out[c.Column] = c.Value
	}
	return out
}

func TestFlattenScalars(t *testing.T) {
	at := time.Now().UTC()
	obj := decodeObject(t, `{"name":"alice","age":30,"score":1.5,"active":true,"gone":null}`)

	cells, err := flatten(obj, at)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	got := cellMap(t, cells)

	if len(got) != 4 {
		t.Fatalf("got %d cells, want 4 (null dropped)", len(got))
	}
	if v := got["name"]; v.Kind != tables.KindString || v.Str != "alice" {
		t.Fatalf("name = %+v", v)
	}
	if v := got["age"]; v.Kind != tables.KindInt || v.Int != 30 {
		t.Fatalf("age = %+v", v)
	}
	if v := got["score"]; v.Kind != tables.KindFloat || v.Float != 1.5 {
		t.Fatalf("score = %+v", v)
	}
	if v := got["active"]; v.Kind != tables.KindBool || !v.Bool {
		t.Fatalf("active = %+v", v)
	}
	for _, c := range cells {
		if !c.At.Equal(at) {
			t.Fatalf("cell %q timestamp = %v, want %v", c.Column, c.At, at)
		}
	}
}

func TestFlattenNestedObjects(t *testing.T) {
	obj := decodeObject(t, `{"a":{"b":{"c":1},"d":"x"}}`)
	cells, err := flatten(obj, time.Time{})
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	got := cellMap(t, cells)

	if v := got["a.b.c"]; v.Kind != tables.KindInt || v.Int != 1 {
		t.Fatalf("a.b.c = %+v", v)
	}
	if v := got["a.d"]; v.Str != "x" {
		t.Fatalf("a.d = %+v", v)
	}
}

func TestFlattenAtomicArray(t *testing.T) {
	obj := decodeObject(t, `{"tags":["red","blue",7]}`)
	cells, err := flatten(obj, time.Time{})
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	got := cellMap(t, cells)

	for _, col := range []string{"tags.red", "tags.blue", "tags.7"} {
		v, ok := got[col]
		if !ok {
			t.Fatalf("missing column %q in %v", col, got)
		}
		if v.Kind != tables.KindBool || !v.Bool {
			t.Fatalf("%s = %+v, want true", col, v)
		}
	}
}

func TestFlattenMixedArraySerialized(t *testing.T) {
	obj := decodeObject(t, `{"items":[{"id":1},"x"]}`)
	cells, err := flatten(obj, time.Time{})
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	got := cellMap(t, cells)

	v, ok := got["items"]
	if !ok {
		t.Fatalf("missing items column in %v", got)
	}
	if v.Kind != tables.KindString {
		t.Fatalf("items kind = %v, want string", v.Kind)
	}
	var round []any
	if err := json.Unmarshal([]byte(v.Str), &round); err != nil {
		t.Fatalf("items is not valid JSON: %v", err)
	}
}

func TestFlattenLargeIntegerStaysExact(t *testing.T) {
	obj := decodeObject(t, `{"n":9007199254740993}`)
	cells, err := flatten(obj, time.Time{})
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	got := cellMap(t, cells)
	if v := got["n"]; v.Kind != tables.KindInt || v.Int != 9007199254740993 {
		t.Fatalf("n = %+v, want exact int", v)
	}
}
