package histogram

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/embedviz/vizframe/internal/schema"
)

const (
	schemaURL  = "https://vega.github.io/schema/vega-lite/v4.0.json"
	barColor   = "#FBAA6D"
	titleColor = "#383838"
	titleFont  = "Nunito Sans, Helvetica, sans-serif"

	correctionPrompt = "Please correct the error in this step's data or parameters"
)

var messageConfig = json.RawMessage(`{"style":{"cell":{"stroke":"transparent"}}}`)

func boolPtr(b bool) *bool { return &b }

// BuildDocument assembles the bar-chart document for binned counts. Counts
// and ticks come from Histogram; title defaults to "Histogram of <column>".
func BuildDocument(column, title string, counts []int64, ticks []float64) schema.ChartDocument {
	bins := make([]schema.Bin, len(counts))
	for i, n := range counts {
		bins[i] = schema.Bin{Min: ticks[i], Max: ticks[i+1], N: n}
	}
	if title == "" {
		title = fmt.Sprintf("Histogram of %s", column)
	}
	return schema.ChartDocument{
		Schema: schemaURL,
		Title: &schema.Title{
			Text:       title,
			Offset:     15,
			Color:      titleColor,
			Font:       titleFont,
			FontSize:   20,
			FontWeight: "normal",
		},
		Data: &schema.DataValues{Values: bins},
		Mark: schema.MarkBar,
		Encoding: &schema.Encoding{
			X: &schema.PositionChannel{
				Field: "min",
				Bin:   "binned",
				Type:  "quantitative",
				Scale: &schema.Scale{Zero: boolPtr(false)},
				Axis: &schema.Axis{
					Title:        column,
					Grid:         boolPtr(false),
					TickCount:    len(ticks),
					Values:       append([]float64(nil), ticks...),
					TickSize:     3,
					TitlePadding: 20,
				},
			},
			X2: &schema.PositionChannel{Field: "max", Type: "quantitative"},
			Y: &schema.PositionChannel{
				Field: "n",
				Type:  "quantitative",
				Axis: &schema.Axis{
					Title:        "Frequency",
					Domain:       boolPtr(false),
					TitlePadding: 20,
				},
			},
			Color: &schema.ColorChannel{Value: barColor},
		},
	}
}

// MessageDocument is the chart shown in place of a histogram when the inputs
// cannot be binned; the actionable message travels beside it as the render
// note.
func MessageDocument() schema.ChartDocument {
	return schema.ChartDocument{
		Title: &schema.Title{
			Text:       correctionPrompt,
			Offset:     15,
			Color:      titleColor,
			Font:       titleFont,
			FontSize:   15,
			FontWeight: "normal",
			Anchor:     "middle",
		},
		Mark:   schema.MarkPoint,
		Config: append(json.RawMessage(nil), messageConfig...),
	}
}
