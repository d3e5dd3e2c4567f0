package dataset

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

func TestTableDecodeAndNumericExtraction(t *testing.T) {
	raw := []byte(`{"columns":[
		{"name":"rolls","values":[1, "2", null, "notanumber", 3.5, true]},
		{"name":"label","values":["a","b","c","d","e","f"]}
	]}`)
	var table Table
	if err := json.Unmarshal(raw, &table); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := table.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if table.RowCount() != 6 {
		t.Errorf("row count: %d", table.RowCount())
	}

	values, ok := table.NumericValues("rolls")
	if !ok {
		t.Fatal("rolls column should exist")
	}
	want := []float64{1, 2, 3.5}
	if len(values) != len(want) {
		t.Fatalf("numeric values: %v", values)
	}
	for i, v := range values {
		if v != want[i] {
			t.Errorf("value %d: got %v want %v", i, v, want[i])
		}
	}

	if _, ok := table.NumericValues("absent"); ok {
		t.Error("missing column should report false")
	}
}

func TestValueRoundTripKeepsNumbersUnquoted(t *testing.T) {
	raw := []byte(`{"name":"n","values":[1,2.25,"3",null,"x"]}`)
	var col Column
	if err := json.Unmarshal(raw, &col); err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := json.Marshal(col)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"name":"n","values":[1,2.25,"3",null,"x"]}`
	if string(out) != want {
		t.Errorf("round trip:\n got %s\nwant %s", out, want)
	}
}

func TestDecimalExactness(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`123456789.123456789`), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	d, ok := v.Decimal()
	if !ok {
		t.Fatal("expected numeric cell")
	}
	if d.String() != "123456789.123456789" {
		t.Errorf("precision lost: %s", d.String())
	}
	if !d.Equal(decimal.RequireFromString("123456789.123456789")) {
		t.Errorf("decimal mismatch: %s", d)
	}
}

func TestValidateRejectsBadColumns(t *testing.T) {
	cases := []struct {
		name  string
		table Table
	}{
		{"no columns", Table{}},
		{"unnamed", Table{Columns: []Column{{Name: ""}}}},
		{"whitespace", Table{Columns: []Column{{Name: " a "}}}},
		{"duplicate", Table{Columns: []Column{{Name: "a"}, {Name: "a"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.table.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}
