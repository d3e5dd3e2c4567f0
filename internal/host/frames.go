package host

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/embedviz/vizframe/config"
	"github.com/embedviz/vizframe/internal/observability"
	"github.com/embedviz/vizframe/internal/schema"
)

const (
	subscribeReadTimeout = 10 * time.Second
	frameReadLimit       = 64 * 1024
)

// Frames tracks subscribed frame connections. A frame registers by sending
// the subscribe handshake as its first message; anything else ends the
// connection before it is registered.
type Frames struct {
	log   observability.Logger
	rate  rate.Limit
	burst int

	mu    sync.Mutex
	conns map[uuid.UUID]*frameConn

	subscribed metric.Int64Counter
	dropped    metric.Int64Counter
}

type frameConn struct {
	id      uuid.UUID
	conn    *websocket.Conn
	limiter *rate.Limiter
}

// NewFrames constructs the registry with per-connection push limits.
func NewFrames(push config.PushSettings, log observability.Logger) *Frames {
	if log == nil {
		log = observability.Log()
	}
	f := &Frames{
		log:   log,
		rate:  rate.Limit(push.Rate),
		burst: push.Burst,
		conns: make(map[uuid.UUID]*frameConn),
	}
	meter := otel.Meter("host")
	f.subscribed, _ = meter.Int64Counter("vizframe.host.frames.subscribed",
		metric.WithDescription("Frame subscriptions accepted"),
		metric.WithUnit("{frame}"))
	f.dropped, _ = meter.Int64Counter("vizframe.host.frames.dropped",
		metric.WithDescription("Frame connections dropped by the host"),
		metric.WithUnit("{frame}"))
	return f
}

// Count returns the number of subscribed frames.
func (f *Frames) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// HandleSubscribe upgrades the request and runs the subscription for the
// life of the connection.
func (f *Frames) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		f.log.Debug("frame websocket accept failed",
			observability.Field{Key: "error", Value: err.Error()})
		return
	}
	conn.SetReadLimit(frameReadLimit)

	if !f.awaitSubscribe(r.Context(), conn) {
		_ = conn.Close(websocket.StatusPolicyViolation, "subscribe required")
		return
	}

	fc := &frameConn{
		id:      uuid.New(),
		conn:    conn,
		limiter: rate.NewLimiter(f.rate, f.burst),
	}
	f.mu.Lock()
	f.conns[fc.id] = fc
	f.mu.Unlock()
	if f.subscribed != nil {
		f.subscribed.Add(r.Context(), 1)
	}
	f.log.Debug("frame subscribed",
		observability.Field{Key: "frame", Value: fc.id.String()})

	// Frames speak first only to subscribe; later inbound messages carry no
	// meaning today and are ignored unread.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			break
		}
	}
	f.remove(fc)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	f.log.Debug("frame disconnected",
		observability.Field{Key: "frame", Value: fc.id.String()})
}

// awaitSubscribe reads the first message and reports whether it is the
// subscribe handshake.
func (f *Frames) awaitSubscribe(ctx context.Context, conn *websocket.Conn) bool {
	readCtx, cancel := context.WithTimeout(ctx, subscribeReadTimeout)
	defer cancel()

	typ, data, err := conn.Read(readCtx)
	if err != nil || typ != websocket.MessageText {
		return false
	}
	msg, err := schema.DecodeMessage(data)
	if err != nil {
		return false
	}
	_, ok := msg.(schema.SubscribeToDataURL)
	return ok
}

// snapshot returns the current connections for fanout.
func (f *Frames) snapshot() []*frameConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*frameConn, 0, len(f.conns))
	for _, fc := range f.conns {
		out = append(out, fc)
	}
	return out
}

// drop deregisters and closes a connection the publisher gave up on.
func (f *Frames) drop(ctx context.Context, fc *frameConn, reason string) {
	f.remove(fc)
	_ = fc.conn.Close(websocket.StatusPolicyViolation, reason)
	if f.dropped != nil {
		f.dropped.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	f.log.Debug("frame dropped",
		observability.Field{Key: "frame", Value: fc.id.String()},
		observability.Field{Key: "reason", Value: reason})
}

func (f *Frames) remove(fc *frameConn) {
	f.mu.Lock()
	if current, ok := f.conns[fc.id]; ok && current == fc {
		delete(f.conns, fc.id)
	}
	f.mu.Unlock()
}

// CloseAll tears down every subscription, used at shutdown.
func (f *Frames) CloseAll() {
	for _, fc := range f.snapshot() {
		f.remove(fc)
		_ = fc.conn.Close(websocket.StatusGoingAway, "host shutting down")
	}
}
