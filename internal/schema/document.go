// Package schema defines chart documents, render specs, and the bridge wire protocol.
package schema

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Mark kinds understood by render engines.
const (
	MarkBar   = "bar"
	MarkPoint = "point"
)

// Title describes the chart heading block.
type Title struct {
	Text       string `json:"text"`
	Offset     int    `json:"offset,omitempty"`
	Color      string `json:"color,omitempty"`
	Font       string `json:"font,omitempty"`
	FontSize   int    `json:"fontSize,omitempty"`
	FontWeight string `json:"fontWeight,omitempty"`
	Anchor     string `json:"anchor,omitempty"`
}

// UnmarshalJSON accepts both the object form and the plain-string shorthand.
func (t *Title) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*t = Title{Text: text}
		return nil
	}
	type plain Title
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Title(p)
	return nil
}

// Bin is one histogram bucket: values in [Min, Max) counted N times.
type Bin struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	N   int64   `json:"n"`
}

// DataValues holds the inline data table of a document.
type DataValues struct {
	Values []Bin `json:"values"`
}

// Scale configures an encoding channel's scale.
type Scale struct {
	Zero *bool `json:"zero,omitempty"`
}

// Axis configures tick rendering for an encoding channel.
type Axis struct {
	Title        string    `json:"title,omitempty"`
	Grid         *bool     `json:"grid,omitempty"`
	TickCount    int       `json:"tickCount,omitempty"`
	Values       []float64 `json:"values,omitempty"`
	TickSize     int       `json:"tickSize,omitempty"`
	TitlePadding int       `json:"titlePadding,omitempty"`
	Domain       *bool     `json:"domain,omitempty"`
}

// PositionChannel binds a data field to a spatial encoding.
type PositionChannel struct {
	Field string `json:"field,omitempty"`
	Bin   string `json:"bin,omitempty"`
	Type  string `json:"type,omitempty"`
	Scale *Scale `json:"scale,omitempty"`
	Axis  *Axis  `json:"axis,omitempty"`
}

// ColorChannel fixes the mark color.
type ColorChannel struct {
	Value string `json:"value,omitempty"`
}

// Encoding maps data fields to visual channels.
type Encoding struct {
	X     *PositionChannel `json:"x,omitempty"`
	X2    *PositionChannel `json:"x2,omitempty"`
	Y     *PositionChannel `json:"y,omitempty"`
	Color *ColorChannel    `json:"color,omitempty"`
}

// ChartDocument is the chart description fetched from a data source locator
// and handed to a render engine. The shape follows Vega-Lite v4 restricted to
// the features this system emits.
type ChartDocument struct {
	Schema   string          `json:"$schema,omitempty"`
	Title    *Title          `json:"title,omitempty"`
	Data     *DataValues     `json:"data,omitempty"`
	Mark     string          `json:"mark,omitempty"`
	Encoding *Encoding       `json:"encoding,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Clone returns a deep copy safe to mutate independently.
func (d ChartDocument) Clone() ChartDocument {
	out := d
	if d.Title != nil {
		title := *d.Title
		out.Title = &title
	}
	if d.Data != nil {
		data := DataValues{Values: append([]Bin(nil), d.Data.Values...)}
		out.Data = &data
	}
	if d.Encoding != nil {
		enc := Encoding{}
		if d.Encoding.X != nil {
			enc.X = clonePosition(d.Encoding.X)
		}
		if d.Encoding.X2 != nil {
			enc.X2 = clonePosition(d.Encoding.X2)
		}
		if d.Encoding.Y != nil {
			enc.Y = clonePosition(d.Encoding.Y)
		}
		if d.Encoding.Color != nil {
			color := *d.Encoding.Color
			enc.Color = &color
		}
		out.Encoding = &enc
	}
	if len(d.Config) > 0 {
		out.Config = append(json.RawMessage(nil), d.Config...)
	}
	return out
}

func clonePosition(ch *PositionChannel) *PositionChannel {
	out := *ch
	if ch.Scale != nil {
		scale := *ch.Scale
		if ch.Scale.Zero != nil {
			zero := *ch.Scale.Zero
			scale.Zero = &zero
		}
		out.Scale = &scale
	}
	if ch.Axis != nil {
		axis := *ch.Axis
		axis.Values = append([]float64(nil), ch.Axis.Values...)
		if ch.Axis.Grid != nil {
			grid := *ch.Axis.Grid
			axis.Grid = &grid
		}
		if ch.Axis.Domain != nil {
			domain := *ch.Axis.Domain
			axis.Domain = &domain
		}
		out.Axis = &axis
	}
	return &out
}

// IsZero reports whether the document carries nothing at all, as produced by
// decoding a JSON null body.
func (d ChartDocument) IsZero() bool {
	return d.Schema == "" && d.Title == nil && d.Data == nil &&
		d.Mark == "" && d.Encoding == nil && len(d.Config) == 0
}

// TitleText returns the heading text, empty when no title block exists.
func (d ChartDocument) TitleText() string {
	if d.Title == nil {
		return ""
	}
	return d.Title.Text
}

// Bins returns the inline histogram buckets, nil when the document carries none.
func (d ChartDocument) Bins() []Bin {
	if d.Data == nil {
		return nil
	}
	return d.Data.Values
}

// Validate reports whether the document is drawable by a render engine.
func (d ChartDocument) Validate() error {
	switch d.Mark {
	case MarkBar:
		if d.Data == nil || len(d.Data.Values) == 0 {
			return fmt.Errorf("bar document carries no bins")
		}
		for i, bin := range d.Data.Values {
			if bin.Max < bin.Min {
				return fmt.Errorf("bin %d bounds inverted: [%v, %v)", i, bin.Min, bin.Max)
			}
			if bin.N < 0 {
				return fmt.Errorf("bin %d count negative: %d", i, bin.N)
			}
		}
	case MarkPoint:
		// Message documents draw a caption only.
	case "":
		return fmt.Errorf("document has no mark")
	default:
		return fmt.Errorf("unsupported mark %q", d.Mark)
	}
	return nil
}

// DecodeDocument parses a fetched body into a ChartDocument.
func DecodeDocument(body []byte) (ChartDocument, error) {
	var doc ChartDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return ChartDocument{}, fmt.Errorf("decode chart document: %w", err)
	}
	return doc, nil
}
