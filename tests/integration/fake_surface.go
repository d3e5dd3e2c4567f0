// Package integration exercises the host-to-frame loop over real HTTP and
// websocket connections: dataset ingest, document fetch, push delivery, and
// surface renewal.
package integration

import (
	"sync"
	"time"

	"github.com/embedviz/vizframe/internal/schema"
	"github.com/embedviz/vizframe/internal/surface"
)

// RenderCall is one surface creation observed by the recording engine.
type RenderCall struct {
	Spec schema.RenderSpec
	Size surface.Size
}

// RecordingSurface implements surface.Engine and keeps every render a
// session applies, in order.
type RecordingSurface struct {
	mu       sync.Mutex
	calls    []RenderCall
	disposed int
}

func NewRecordingSurface() *RecordingSurface {
	return &RecordingSurface{}
}

func (s *RecordingSurface) Create(spec schema.RenderSpec, size surface.Size) (surface.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, RenderCall{Spec: spec, Size: size})
	return &recordedPanel{surface: s}, nil
}

// Calls returns a copy of the renders observed so far.
func (s *RecordingSurface) Calls() []RenderCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RenderCall(nil), s.calls...)
}

// Disposed returns how many panels have been released.
func (s *RecordingSurface) Disposed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// WaitFor polls until some observed render satisfies the predicate or the
// timeout lapses.
func (s *RecordingSurface) WaitFor(timeout time.Duration, predicate func(RenderCall) bool) (RenderCall, bool) {
	deadline := time.Now().Add(timeout)
	for {
		for _, call := range s.Calls() {
			if predicate(call) {
				return call, true
			}
		}
		if time.Now().After(deadline) {
			return RenderCall{}, false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type recordedPanel struct {
	surface *RecordingSurface
	once    sync.Once
}

func (p *recordedPanel) Dispose() {
	p.once.Do(func() {
		p.surface.mu.Lock()
		p.surface.disposed++
		p.surface.mu.Unlock()
	})
}
