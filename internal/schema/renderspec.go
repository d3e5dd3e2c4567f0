package schema

// SpecState tags the variant a RenderSpec holds.
type SpecState uint8

const (
	// SpecLoading is the placeholder shown while a fetch is in flight.
	SpecLoading SpecState = iota
	// SpecEmpty is the blank chart used when fetching or parsing failed.
	SpecEmpty
	// SpecData wraps a fetched chart document.
	SpecData
)

// String implements fmt.Stringer for log output.
func (s SpecState) String() string {
	switch s {
	case SpecLoading:
		return "loading"
	case SpecEmpty:
		return "empty"
	case SpecData:
		return "data"
	default:
		return "unknown"
	}
}

// RenderSpec is what the surface manager draws: a loading placeholder, the
// empty chart, or a concrete document. Values are immutable; build them with
// the constructors only.
type RenderSpec struct {
	state    SpecState
	document ChartDocument
}

// Loading returns the loading placeholder spec.
func Loading() RenderSpec {
	return RenderSpec{state: SpecLoading}
}

// Empty returns the empty chart spec.
func Empty() RenderSpec {
	return RenderSpec{state: SpecEmpty}
}

// Data wraps a chart document in a render spec.
func Data(doc ChartDocument) RenderSpec {
	return RenderSpec{state: SpecData, document: doc.Clone()}
}

// State returns the variant tag.
func (r RenderSpec) State() SpecState { return r.state }

// Document returns the wrapped document and whether one is present.
func (r RenderSpec) Document() (ChartDocument, bool) {
	if r.state != SpecData {
		return ChartDocument{}, false
	}
	return r.document.Clone(), true
}
