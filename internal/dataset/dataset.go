// Package dataset holds the column-oriented table model the host ingests and
// feeds to chart transforms.
package dataset

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/embedviz/vizframe/errs"
)

type valueKind uint8

const (
	kindNull valueKind = iota
	kindNumber
	kindText
)

// Value is one table cell: a number, a piece of text, or null. Numbers are
// held as decimals so ingested values survive round trips exactly.
type Value struct {
	kind   valueKind
	number decimal.Decimal
	text   string
}

// Number builds a numeric cell.
func Number(d decimal.Decimal) Value { return Value{kind: kindNumber, number: d} }

// Text builds a text cell.
func Text(s string) Value { return Value{kind: kindText, text: s} }

// Null builds an empty cell.
func Null() Value { return Value{} }

// IsNull reports whether the cell is empty.
func (v Value) IsNull() bool { return v.kind == kindNull }

// Decimal returns the cell's numeric value. Text cells that parse as decimals
// count as numeric, matching how loosely typed source tables arrive.
func (v Value) Decimal() (decimal.Decimal, bool) {
	switch v.kind {
	case kindNumber:
		return v.number, true
	case kindText:
		d, err := decimal.NewFromString(strings.TrimSpace(v.text))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

// String renders the cell for display.
func (v Value) String() string {
	switch v.kind {
	case kindNumber:
		return v.number.String()
	case kindText:
		return v.text
	default:
		return ""
	}
}

// UnmarshalJSON accepts numbers, strings, nulls, and booleans (as text).
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*v = Value{}
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value{kind: kindText, text: s}
		return nil
	case trimmed == "true" || trimmed == "false":
		*v = Value{kind: kindText, text: trimmed}
		return nil
	default:
		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return fmt.Errorf("parse numeric cell %q: %w", trimmed, err)
		}
		*v = Value{kind: kindNumber, number: d}
		return nil
	}
}

// MarshalJSON re-emits numbers unquoted so ingested tables round trip.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindNumber:
		return []byte(v.number.String()), nil
	case kindText:
		return json.Marshal(v.text)
	default:
		return []byte("null"), nil
	}
}

// Column is a named sequence of cells.
type Column struct {
	Name   string  `json:"name"`
	Values []Value `json:"values"`
}

// Table is a column-oriented dataset.
type Table struct {
	Columns []Column `json:"columns"`
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnNames lists column names in table order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// RowCount returns the length of the longest column.
func (t Table) RowCount() int {
	rows := 0
	for _, col := range t.Columns {
		if len(col.Values) > rows {
			rows = len(col.Values)
		}
	}
	return rows
}

// NumericValues extracts the named column as float64s. Cells that are not
// numeric (nulls, unparsable text) are skipped. The second return is false
// only when the column does not exist.
func (t Table) NumericValues(name string) ([]float64, bool) {
	col, ok := t.Column(name)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(col.Values))
	for _, v := range col.Values {
		d, ok := v.Decimal()
		if !ok {
			continue
		}
		out = append(out, d.InexactFloat64())
	}
	return out, true
}

// Validate rejects tables with unusable column layouts.
func (t Table) Validate() error {
	if len(t.Columns) == 0 {
		return errs.New("dataset", errs.CodeInvalid,
			errs.WithMessage("table has no columns"))
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for i, col := range t.Columns {
		name := strings.TrimSpace(col.Name)
		if name == "" {
			return errs.New("dataset", errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("column %d has no name", i)))
		}
		if name != col.Name {
			return errs.New("dataset", errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("column %q has surrounding whitespace", col.Name)))
		}
		if _, dup := seen[name]; dup {
			return errs.New("dataset", errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("duplicate column %q", name)))
		}
		seen[name] = struct{}{}
	}
	return nil
}
