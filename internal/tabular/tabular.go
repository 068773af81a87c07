// Package tabular is the byte codec for cached query results. A ResultSet
// carries column names, column order and per-cell type (null, number or
// text), and its encoded form is self-describing JSON, so payloads written
// before a process restart remain decodable after it.
package tabular

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the type tag of a single cell.
type Kind uint8

const (
	Null Kind = iota
	Number
	Text
)

// Value is one cell of a ResultSet.
type Value struct {
	Kind   Kind
	Number float64
	Text   string
}

// NullValue is the canonical null cell.
var NullValue = Value{Kind: Null}

// Num builds a numeric cell.
func Num(f float64) Value { return Value{Kind: Number, Number: f} }

// Str builds a text cell.
func Str(s string) Value { return Value{Kind: Text, Text: s} }

// MarshalJSON encodes the cell as a bare JSON null, number or string. JSON
// distinguishes the three kinds natively, which keeps the wire form
// self-describing without a side schema.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case Null:
		return []byte("null"), nil
	case Number:
		return json.Marshal(v.Number)
	case Text:
		return json.Marshal(v.Text)
	}
	return nil, fmt.Errorf("tabular: unknown value kind %d", v.Kind)
}

// UnmarshalJSON decodes a bare JSON null, number or string back into a cell.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = NullValue
	case float64:
		*v = Num(t)
	case string:
		*v = Str(t)
	default:
		return fmt.Errorf("tabular: cell type %T is not null, number or text", raw)
	}
	return nil
}

// ResultSet is an ordered tabular query result.
type ResultSet struct {
	Columns []string  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}

// Encode serialises the result set for caching.
func (rs *ResultSet) Encode() ([]byte, error) {
	b, err := json.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("encode result set: %w", err)
	}
	return b, nil
}

// Decode rebuilds a result set from its encoded form.
func Decode(data []byte) (*ResultSet, error) {
	var rs ResultSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("decode result set: %w", err)
	}
	return &rs, nil
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int { return len(rs.Rows) }

// Index returns the position of a named column, or -1.
func (rs *ResultSet) Index(column string) int {
	for i, c := range rs.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// FromRows drains a *sql.Rows into a ResultSet. Integer, float, string, byte
// and time values collapse onto the three cell kinds; both engines give back
// the same kinds for the schema's column types.
func FromRows(rows *sql.Rows) (*ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	rs := &ResultSet{Columns: cols}

	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]Value, len(cols))
		for i, cell := range raw {
			v, err := fromDriver(cell)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", cols[i], err)
			}
			row[i] = v
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return rs, nil
}

func fromDriver(cell interface{}) (Value, error) {
	switch t := cell.(type) {
	case nil:
		return NullValue, nil
	case int64:
		return Num(float64(t)), nil
	case float64:
		return Num(t), nil
	case bool:
		if t {
			return Num(1), nil
		}
		return Num(0), nil
	case string:
		return Str(t), nil
	case []byte:
		return Str(string(t)), nil
	case time.Time:
		return Str(t.UTC().Format(time.RFC3339)), nil
	}
	return Value{}, fmt.Errorf("unsupported driver value %T", cell)
}
