package importer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/tables"
)

// flatten converts a decoded JSON object into sparse cells with dotted
// column paths. Nulls produce no cell. Arrays of atomic values become
// one boolean cell per element, named "<path>.<element>"; arrays
// containing objects or nested arrays are kept as a JSON string.
func flatten(obj map[string]any, at time.Time) ([]tables.Cell, error) {
	cells := make([]tables.Cell, 0, len(obj))
	for key, val := range obj {
		var err error
		cells, err = emplace(cells, key, val, at)
		if err != nil {
			return nil, err
		}
	}
	return cells, nil
}

func emplace(cells []tables.Cell, path string, val any, at time.Time) ([]tables.Cell, error) {
	switch v := val.(type) {
	case nil:
		return cells, nil
	case bool:
		return append(cells, tables.Cell{Column: path, Value: tables.Bool(v), At: at}), nil
	case string:
		return append(cells, tables.Cell{Column: path, Value: tables.String(v), At: at}), nil
	case json.Number:
		return append(cells, tables.Cell{Column: path, Value: numberValue(v), At: at}), nil
	case float64:
		return append(cells, tables.Cell{Column: path, Value: tables.Float(v), At: at}), nil
	case map[string]any:
		for key, nested := range v {
			var err error
			cells, err = emplace(cells, path+"."+key, nested, at)
			if err != nil {
				return nil, err
			}
		}
		return cells, nil
	case []any:
		return emplaceArray(cells, path, v, at)
	default:
		return nil, fmt.Errorf("column %q: unsupported JSON value type %T", path, val)
	}
}

func emplaceArray(cells []tables.Cell, path string, arr []any, at time.Time) ([]tables.Cell, error) {
	if allAtomic(arr) {
		for _, elem := range arr {
			cells = append(cells, tables.Cell{
				Column: path + "." + renderAtom(elem),
				Value:  tables.Bool(true),
				At:     at,
			})
		}
		return cells, nil
	}

	raw, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("column %q: serializing array: %w", path, err)
	}
	return append(cells, tables.Cell{Column: path, Value: tables.String(string(raw)), At: at}), nil
}

func allAtomic(arr []any) bool {
	for _, elem := range arr {
		switch elem.(type) {
		case nil, bool, string, json.Number, float64:
		default:
			return false
		}
	}
	return true
}

func renderAtom(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// numberValue preserves integer values exactly; anything else becomes a
// double.
func numberValue(n json.Number) tables.Value {
	if i, err := n.Int64(); err == nil {
		return tables.Int(i)
	}
	f, _ := n.Float64()
	return tables.Float(f)
}
