package histogram

import (
	"testing"

	"github.com/embedviz/vizframe/internal/dataset"
	"github.com/embedviz/vizframe/internal/schema"
	"github.com/shopspring/decimal"
)

func rollsTable(t *testing.T) dataset.Table {
	t.Helper()
	values := make([]dataset.Value, 0, 6)
	for i := 1; i <= 6; i++ {
		values = append(values, dataset.Number(decimal.NewFromInt(int64(i))))
	}
	return dataset.Table{Columns: []dataset.Column{{Name: "rolls", Values: values}}}
}

func TestRenderHistogramDocument(t *testing.T) {
	doc, note := Render(rollsTable(t), Params{Column: "rolls", NBuckets: 6})
	if note != "" {
		t.Fatalf("unexpected note: %q", note)
	}
	if doc.Mark != schema.MarkBar {
		t.Fatalf("mark: %q", doc.Mark)
	}
	if doc.TitleText() != "Histogram of rolls" {
		t.Errorf("title: %q", doc.TitleText())
	}
	bins := doc.Bins()
	if len(bins) != 6 {
		t.Fatalf("bins: %v", bins)
	}
	if bins[0].Min != 1 || bins[0].Max != 2 || bins[0].N != 1 {
		t.Errorf("first bin: %+v", bins[0])
	}
	if bins[5].Min != 6 || bins[5].Max != 7 || bins[5].N != 1 {
		t.Errorf("last bin: %+v", bins[5])
	}
	if doc.Encoding.Color.Value != "#FBAA6D" {
		t.Errorf("bar color: %q", doc.Encoding.Color.Value)
	}
	axis := doc.Encoding.X.Axis
	if axis.Title != "rolls" || len(axis.Values) != 7 || axis.TickCount != 7 {
		t.Errorf("x axis: %+v", axis)
	}
	if err := doc.Validate(); err != nil {
		t.Errorf("rendered document should validate: %v", err)
	}
}

func TestRenderCustomTitle(t *testing.T) {
	doc, note := Render(rollsTable(t), Params{Column: "rolls", NBuckets: 6, Title: "Die rolls"})
	if note != "" {
		t.Fatalf("unexpected note: %q", note)
	}
	if doc.TitleText() != "Die rolls" {
		t.Errorf("title: %q", doc.TitleText())
	}
}

func TestRenderWithoutColumnSelection(t *testing.T) {
	doc, note := Render(rollsTable(t), Params{NBuckets: 6})
	if note != NoteNoColumn {
		t.Fatalf("note: %q", note)
	}
	if doc.Mark != schema.MarkPoint {
		t.Errorf("mark: %q", doc.Mark)
	}
	if err := doc.Validate(); err != nil {
		t.Errorf("message document should validate: %v", err)
	}
}

func TestRenderMissingColumn(t *testing.T) {
	_, note := Render(rollsTable(t), Params{Column: "absent", NBuckets: 6})
	if note != NoteNoColumn {
		t.Fatalf("note: %q", note)
	}
}

func TestRenderNotEnoughDistinctValues(t *testing.T) {
	same := dataset.Table{Columns: []dataset.Column{{
		Name: "flat",
		Values: []dataset.Value{
			dataset.Number(decimal.NewFromInt(4)),
			dataset.Number(decimal.NewFromInt(4)),
		},
	}}}
	_, note := Render(same, Params{Column: "flat", NBuckets: 4})
	if note != NoteNotEnoughValues {
		t.Fatalf("note: %q", note)
	}

	textOnly := dataset.Table{Columns: []dataset.Column{{
		Name:   "words",
		Values: []dataset.Value{dataset.Text("a"), dataset.Text("b")},
	}}}
	_, note = Render(textOnly, Params{Column: "words", NBuckets: 4})
	if note != NoteNotEnoughValues {
		t.Fatalf("note: %q", note)
	}
}
