package schema

import (
	"testing"
)

const histogramDoc = `{
  "$schema": "https://vega.github.io/schema/vega-lite/v4.0.json",
  "title": {"text": "Histogram of rolls", "fontSize": 20},
  "data": {"values": [
    {"min": 1, "max": 2, "n": 3},
    {"min": 2, "max": 3, "n": 5}
  ]},
  "mark": "bar",
  "encoding": {
    "x": {"field": "min", "bin": "binned", "type": "quantitative",
          "axis": {"title": "rolls", "values": [1, 2, 3]}},
    "x2": {"field": "max", "type": "quantitative"},
    "y": {"field": "n", "type": "quantitative"},
    "color": {"value": "#FBAA6D"}
  }
}`

func TestDecodeDocumentHistogram(t *testing.T) {
	doc, err := DecodeDocument([]byte(histogramDoc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.TitleText() != "Histogram of rolls" {
		t.Errorf("title: %q", doc.TitleText())
	}
	if doc.Mark != MarkBar {
		t.Errorf("mark: %q", doc.Mark)
	}
	bins := doc.Bins()
	if len(bins) != 2 {
		t.Fatalf("bins: %d", len(bins))
	}
	if bins[1] != (Bin{Min: 2, Max: 3, N: 5}) {
		t.Errorf("second bin: %+v", bins[1])
	}
	if doc.Encoding == nil || doc.Encoding.Color == nil || doc.Encoding.Color.Value != "#FBAA6D" {
		t.Errorf("color channel: %+v", doc.Encoding)
	}
	if got := doc.Encoding.X.Axis.Values; len(got) != 3 || got[0] != 1 {
		t.Errorf("axis values: %v", got)
	}
	if err := doc.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestDecodeDocumentNullBody(t *testing.T) {
	doc, err := DecodeDocument([]byte("null"))
	if err != nil {
		t.Fatalf("null body should decode: %v", err)
	}
	if !doc.IsZero() {
		t.Errorf("expected zero document, got %+v", doc)
	}
}

func TestDecodeDocumentMalformed(t *testing.T) {
	if _, err := DecodeDocument([]byte(`{"mark": `)); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := DecodeDocument([]byte(`[]`)); err == nil {
		t.Fatal("expected decode error for array body")
	}
}

func TestTitleStringShorthand(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"title": "Plain", "mark": "point"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.TitleText() != "Plain" {
		t.Errorf("title: %q", doc.TitleText())
	}
}

func TestValidateRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  ChartDocument
	}{
		{"no mark", ChartDocument{}},
		{"unknown mark", ChartDocument{Mark: "arc"}},
		{"bar without bins", ChartDocument{Mark: MarkBar}},
		{"inverted bounds", ChartDocument{
			Mark: MarkBar,
			Data: &DataValues{Values: []Bin{{Min: 5, Max: 1, N: 2}}},
		}},
		{"negative count", ChartDocument{
			Mark: MarkBar,
			Data: &DataValues{Values: []Bin{{Min: 0, Max: 1, N: -1}}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.doc.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc, err := DecodeDocument([]byte(histogramDoc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	clone := doc.Clone()
	clone.Data.Values[0].N = 99
	clone.Encoding.X.Axis.Values[0] = -1
	clone.Title.Text = "changed"

	if doc.Data.Values[0].N != 3 {
		t.Errorf("bin mutated through clone: %+v", doc.Data.Values[0])
	}
	if doc.Encoding.X.Axis.Values[0] != 1 {
		t.Errorf("axis values mutated through clone: %v", doc.Encoding.X.Axis.Values)
	}
	if doc.TitleText() != "Histogram of rolls" {
		t.Errorf("title mutated through clone: %q", doc.TitleText())
	}
}
