// Package surface manages the lifecycle of rendered chart surfaces: at most
// one surface is live, and replacement is transactional.
package surface

import (
	"sync"

	"github.com/embedviz/vizframe/config"
	"github.com/embedviz/vizframe/errs"
	"github.com/embedviz/vizframe/internal/schema"
)

// Size is a container measurement in terminal cells.
type Size struct {
	Width  int
	Height int
}

// Handle is one rendered surface. Dispose releases whatever the engine holds
// for it; callers never wait on it.
type Handle interface {
	Dispose()
}

// Engine turns render specs into surfaces. Implementations are opaque to the
// manager; all it relies on is Create and Handle.Dispose.
type Engine interface {
	Create(spec schema.RenderSpec, size Size) (Handle, error)
}

// Manager owns the live surface. Render swaps it: the previous handle is
// issued disposal on every path, including engine failures, before any new
// surface is installed.
type Manager struct {
	engine  Engine
	padding config.Padding

	mu      sync.Mutex
	current Handle
}

// NewManager constructs a manager drawing through engine with the given
// container padding.
func NewManager(engine Engine, padding config.Padding) *Manager {
	m := new(Manager)
	m.engine = engine
	m.padding = padding
	return m
}

// Render draws spec into the container measured by the caller at call time.
// The effective drawing area is the container minus padding, floored at zero.
// Engine errors propagate; the previous surface is gone either way.
func (m *Manager) Render(spec schema.RenderSpec, container Size) error {
	effective := m.effectiveSize(container)

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev := m.current; prev != nil {
		m.current = nil
		go prev.Dispose()
	}

	handle, err := m.engine.Create(spec, effective)
	if err != nil {
		return errs.New("surface", errs.CodeRender,
			errs.WithMessage("create surface"), errs.WithCause(err))
	}
	m.current = handle
	return nil
}

// Close disposes the live surface, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()
	if prev != nil {
		go prev.Dispose()
	}
}

func (m *Manager) effectiveSize(container Size) Size {
	w := container.Width - m.padding.Horizontal()
	h := container.Height - m.padding.Vertical()
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return Size{Width: w, Height: h}
}
