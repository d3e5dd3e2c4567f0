package schema

import "testing"

func TestRenderSpecConstructors(t *testing.T) {
	if got := Loading().State(); got != SpecLoading {
		t.Errorf("loading state: %v", got)
	}
	if got := Empty().State(); got != SpecEmpty {
		t.Errorf("empty state: %v", got)
	}
	doc := ChartDocument{Mark: MarkPoint}
	spec := Data(doc)
	if spec.State() != SpecData {
		t.Errorf("data state: %v", spec.State())
	}
	if _, ok := Loading().Document(); ok {
		t.Error("loading spec should carry no document")
	}
	if _, ok := Empty().Document(); ok {
		t.Error("empty spec should carry no document")
	}
	if got, ok := spec.Document(); !ok || got.Mark != MarkPoint {
		t.Errorf("data spec document: %+v ok=%v", got, ok)
	}
}

func TestRenderSpecDocumentIsolated(t *testing.T) {
	doc := ChartDocument{
		Mark: MarkBar,
		Data: &DataValues{Values: []Bin{{Min: 0, Max: 1, N: 4}}},
	}
	spec := Data(doc)

	doc.Data.Values[0].N = 100
	got, _ := spec.Document()
	if got.Data.Values[0].N != 4 {
		t.Errorf("spec shares caller's document: %+v", got.Data.Values[0])
	}

	got.Data.Values[0].N = 50
	again, _ := spec.Document()
	if again.Data.Values[0].N != 4 {
		t.Errorf("spec shares returned document: %+v", again.Data.Values[0])
	}
}

func TestSpecStateString(t *testing.T) {
	cases := map[SpecState]string{
		SpecLoading:   "loading",
		SpecEmpty:     "empty",
		SpecData:      "data",
		SpecState(99): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("state %d: got %q want %q", state, got, want)
		}
	}
}
