// Package session wires one embedded frame together: the fetch coordinator,
// the render surface, and the subscription bridge. Every piece of mutable
// state lives on the Session, so a process can run any number of independent
// frames.
package session

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/embedviz/vizframe/config"
	"github.com/embedviz/vizframe/errs"
	"github.com/embedviz/vizframe/internal/bridge"
	"github.com/embedviz/vizframe/internal/fetch"
	"github.com/embedviz/vizframe/internal/observability"
	"github.com/embedviz/vizframe/internal/schema"
	"github.com/embedviz/vizframe/internal/surface"
)

// Option customizes session construction.
type Option func(*options)

type options struct {
	client *http.Client
	log    observability.Logger
}

// WithHTTPClient injects the HTTP client used for chart document fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

// WithLogger overrides the process-default logger.
func WithLogger(log observability.Logger) Option {
	return func(o *options) { o.log = log }
}

// Session orchestrates one frame. It holds the current data-source locator,
// the last applied render spec, and the container size, and it is the only
// caller of the surface manager.
type Session struct {
	settings config.FrameSettings
	log      observability.Logger

	surface *surface.Manager
	coord   *fetch.Coordinator
	bridge  *bridge.Bridge

	mu          sync.Mutex
	ctx         context.Context
	locator     string
	lastApplied schema.RenderSpec
	size        surface.Size
	started     bool
	closed      bool
}

// New constructs a session rendering through engine. Nothing happens until
// Start.
func New(settings config.FrameSettings, engine surface.Engine, opts ...Option) *Session {
	o := options{log: observability.Log()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = observability.Log()
	}

	s := &Session{
		settings:    settings,
		log:         o.log,
		surface:     surface.NewManager(engine, settings.Padding),
		locator:     strings.TrimSpace(settings.DataURL),
		lastApplied: schema.Empty(),
	}
	s.coord = fetch.NewCoordinator(o.client, settings.FetchTimeout, o.log, s.applyOutcome)
	return s
}

// Start renders the loading placeholder, issues the first load for the
// configured data URL, and brings up the subscription bridge when an origin
// is configured. The bridge connects in the background, so a parent that is
// down at startup delays nothing; its reconnect loop keeps trying for the
// session's whole life.
func (s *Session) Start(ctx context.Context, size surface.Size) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errs.New("session", errs.CodeUnavailable, errs.WithMessage("session closed"))
	}
	if s.started {
		s.mu.Unlock()
		return errs.New("session", errs.CodeConflict, errs.WithMessage("session already started"))
	}
	if s.locator == "" {
		s.mu.Unlock()
		return errs.New("session", errs.CodeInvalid,
			errs.WithMessage("data url required"),
			errs.WithRemediation("set frame.dataUrl or pass -data-url"))
	}
	s.started = true
	s.ctx = ctx
	s.size = size
	s.bridge = bridge.New(ctx, s.settings.Origin, s.settings.HandshakeTimeout, s.log, s.SetDataURL)
	s.loadLocked(s.locator)
	s.mu.Unlock()

	if s.bridge.Active() {
		go func() {
			if err := s.bridge.Start(); err != nil {
				s.log.Error("subscription bridge not established",
					observability.Field{Key: "origin", Value: s.settings.Origin},
					observability.Field{Key: "error", Value: err})
			}
		}()
	}
	return nil
}

// SetDataURL switches the session to a new data-source locator. Locators are
// compared exactly, byte for byte; an equal locator is a complete no-op. The
// bridge calls this for every validated parent message, and hosts embedding
// the session directly may call it too.
func (s *Session) SetDataURL(locator string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.started || locator == "" || locator == s.locator {
		return
	}
	s.locator = locator
	s.loadLocked(locator)
}

// Resize re-renders the last applied spec at a freshly measured container
// size. It never fetches and never resets the view to the loading
// placeholder.
func (s *Session) Resize(size surface.Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.size = size
	if !s.started {
		return
	}
	if err := s.surface.Render(s.lastApplied, size); err != nil {
		s.log.Error("render after resize",
			observability.Field{Key: "error", Value: err})
	}
}

// Locator returns the currently held data-source locator.
func (s *Session) Locator() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locator
}

// Close stops the bridge, cancels any in-flight fetch, and disposes the live
// surface. Closing twice is harmless.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	br := s.bridge
	s.mu.Unlock()

	if br != nil {
		br.Close()
	}
	s.coord.Stop()
	s.surface.Close()
}

// loadLocked applies the loading placeholder and claims a new fetch
// generation while the lock is held. A predecessor completing concurrently
// blocks on the same lock and finds itself superseded once it gets in.
func (s *Session) loadLocked(locator string) {
	s.lastApplied = schema.Loading()
	if err := s.surface.Render(s.lastApplied, s.size); err != nil {
		s.log.Error("render loading placeholder",
			observability.Field{Key: "error", Value: err})
	}
	s.coord.Load(s.ctx, locator)
}

// applyOutcome is the single point where fetch results meet the surface. The
// generation gate decides authority: anything but the latest issued load is
// discarded without a trace, no matter when it completes.
func (s *Session) applyOutcome(out fetch.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if out.Generation != s.coord.Latest() {
		return
	}
	s.lastApplied = out.Spec
	if err := s.surface.Render(out.Spec, s.size); err != nil {
		s.log.Error("render fetched document",
			observability.Field{Key: "locator", Value: out.Locator},
			observability.Field{Key: "error", Value: err})
	}
}
