// Package term draws chart documents into terminal panels. Every Create
// paints a complete panel string and hands it to the engine's sink; the
// returned handle marks the painted panel until it is disposed.
package term

import (
	"sync/atomic"

	"github.com/embedviz/vizframe/internal/schema"
	"github.com/embedviz/vizframe/internal/surface"
)

// Sink receives each painted panel. Terminal programs typically forward it
// into their event loop.
type Sink func(panel string)

// Engine renders specs as styled text panels.
type Engine struct {
	sink Sink
}

// NewEngine constructs an engine delivering panels to sink.
func NewEngine(sink Sink) *Engine {
	if sink == nil {
		sink = func(string) {}
	}
	return &Engine{sink: sink}
}

// Create paints the spec at the given size and emits the panel.
func (e *Engine) Create(spec schema.RenderSpec, size surface.Size) (surface.Handle, error) {
	var content string
	switch spec.State() {
	case schema.SpecLoading:
		content = loadingPanel(size)
	case schema.SpecData:
		doc, _ := spec.Document()
		content = documentPanel(doc, size)
	default:
		content = emptyPanel(size)
	}
	e.sink(content)
	return &panel{}, nil
}

// panel is one painted surface. The terminal holds no per-panel resources,
// so disposal just retires the handle.
type panel struct {
	released atomic.Bool
}

func (p *panel) Dispose() {
	p.released.Store(true)
}
