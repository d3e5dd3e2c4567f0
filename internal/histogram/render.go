package histogram

import (
	"github.com/embedviz/vizframe/internal/dataset"
	"github.com/embedviz/vizframe/internal/schema"
)

// Notes returned beside the message document.
const (
	NoteNoColumn        = "Please choose a number column"
	NoteNotEnoughValues = "Please choose a number column with at least two distinct values"
)

// Render computes the histogram document for a table. When the inputs cannot
// be binned it returns the message document along with a user-facing note;
// the note is empty on success.
func Render(table dataset.Table, p Params) (schema.ChartDocument, string) {
	if p.Column == "" {
		return MessageDocument(), NoteNoColumn
	}
	raw, ok := table.NumericValues(p.Column)
	if !ok {
		return MessageDocument(), NoteNoColumn
	}

	values := SafeValues(raw)
	if len(values) == 0 {
		return MessageDocument(), NoteNotEnoughValues
	}
	counts, ticks, err := Histogram(values, ClampBuckets(p.NBuckets))
	if err != nil {
		return MessageDocument(), NoteNotEnoughValues
	}

	return BuildDocument(p.Column, p.Title, counts, ticks), ""
}
