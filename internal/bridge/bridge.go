// Package bridge maintains the subscription connection between an embedded
// frame and its parent context. An active bridge dials the parent's origin,
// announces the subscription handshake exactly once per established
// connection before reading, and turns validated set-data-url messages into
// locator updates. Everything else that arrives is dropped without effect.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/embedviz/vizframe/internal/observability"
	"github.com/embedviz/vizframe/internal/schema"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	handshakeWriteTimeout   = 5 * time.Second
	maxReconnectInterval    = 30 * time.Second
	bridgeReadLimit         = 64 * 1024
)

// Bridge is the cross-context subscription client. Its state is fixed at
// construction: with an origin it is active and keeps one connection to the
// parent alive for its whole life; without one it is inactive and never
// dials or processes a message.
type Bridge struct {
	origin    string
	dialURL   string
	timeout   time.Duration
	log       observability.Logger
	onDataURL func(string)

	ctx    context.Context
	cancel context.CancelFunc

	conn   *websocket.Conn
	connMu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once

	reconnects  metric.Int64Counter
	msgsApplied metric.Int64Counter
	msgsDropped metric.Int64Counter
}

// New constructs a bridge for the given parent origin. An empty origin yields
// an inactive bridge. Validated set-data-url payloads are handed to onDataURL;
// the callback runs on the bridge's read goroutine.
func New(ctx context.Context, origin string, handshakeTimeout time.Duration, log observability.Logger, onDataURL func(string)) *Bridge {
	if ctx == nil {
		ctx = context.Background()
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	if log == nil {
		log = observability.Log()
	}
	origin = strings.TrimSpace(origin)

	bridgeCtx, cancel := context.WithCancel(ctx)
	b := &Bridge{
		origin:    origin,
		timeout:   handshakeTimeout,
		log:       log,
		onDataURL: onDataURL,
		ctx:       bridgeCtx,
		cancel:    cancel,
		ready:     make(chan struct{}),
	}
	if origin != "" {
		b.dialURL = strings.TrimSuffix(origin, "/") + schema.FrameEndpoint
	}

	meter := otel.Meter("bridge")
	b.reconnects, _ = meter.Int64Counter("vizframe.bridge.connects",
		metric.WithDescription("Number of connection attempts to the parent context"),
		metric.WithUnit("{attempt}"))
	b.msgsApplied, _ = meter.Int64Counter("vizframe.bridge.messages.applied",
		metric.WithDescription("Number of validated set-data-url messages applied"),
		metric.WithUnit("{message}"))
	b.msgsDropped, _ = meter.Int64Counter("vizframe.bridge.messages.dropped",
		metric.WithDescription("Number of inbound messages dropped"),
		metric.WithUnit("{message}"))
	return b
}

// Active reports whether an origin was configured at construction.
func (b *Bridge) Active() bool {
	return b.origin != ""
}

// Start launches the connection loop and waits for the first subscription to
// be announced. A timeout here is not fatal to the caller: the loop keeps
// dialing in the background, so a parent that comes up late is still reached.
// Starting an inactive bridge is a no-op.
func (b *Bridge) Start() error {
	if !b.Active() {
		return nil
	}

	go func() {
		if err := b.connect(); err != nil && !errors.Is(err, context.Canceled) {
			b.log.Error("bridge connection loop ended",
				observability.Field{Key: "origin", Value: b.origin},
				observability.Field{Key: "error", Value: err})
		}
	}()

	select {
	case <-b.ready:
		return nil
	case <-time.After(b.timeout):
		return fmt.Errorf("timeout waiting for subscription to %s", b.origin)
	case <-b.ctx.Done():
		return fmt.Errorf("bridge context done: %w", b.ctx.Err())
	}
}

// Close tears down the connection and stops reconnecting. Safe on an
// inactive bridge.
func (b *Bridge) Close() {
	b.cancel()
	b.connMu.Lock()
	if b.conn != nil {
		_ = b.conn.Close(websocket.StatusNormalClosure, "shutdown")
		b.conn = nil
	}
	b.connMu.Unlock()
}

// connect keeps a single subscription connection alive until the bridge
// context terminates. Each session dials, announces the subscription before
// any read, then reads until the connection fails; sessions are separated by
// exponential backoff.
func (b *Bridge) connect() error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxReconnectInterval

	for {
		select {
		case <-b.ctx.Done():
			return context.Canceled
		default:
		}

		conn, _, err := websocket.Dial(b.ctx, b.dialURL, nil)
		if err != nil {
			b.reconnects.Add(b.ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
			b.log.Debug("bridge dial failed",
				observability.Field{Key: "url", Value: b.dialURL},
				observability.Field{Key: "error", Value: err})
			if err := b.sleep(backoffCfg); err != nil {
				return err
			}
			continue
		}

		conn.SetReadLimit(bridgeReadLimit)

		if err := b.announce(conn); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			b.reconnects.Add(b.ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
			b.log.Debug("bridge subscribe failed",
				observability.Field{Key: "url", Value: b.dialURL},
				observability.Field{Key: "error", Value: err})
			if err := b.sleep(backoffCfg); err != nil {
				return err
			}
			continue
		}

		b.connMu.Lock()
		b.conn = conn
		b.connMu.Unlock()

		b.reconnects.Add(b.ctx, 1, metric.WithAttributes(attribute.String("result", "success")))
		b.readyOnce.Do(func() {
			close(b.ready)
		})
		backoffCfg.Reset()

		err = b.readLoop(b.ctx, conn)

		b.connMu.Lock()
		if b.conn == conn {
			b.conn = nil
		}
		b.connMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")

		if err != nil && !errors.Is(err, context.Canceled) {
			b.log.Debug("bridge connection lost",
				observability.Field{Key: "url", Value: b.dialURL},
				observability.Field{Key: "error", Value: err})
		}

		if err := b.sleep(backoffCfg); err != nil {
			return err
		}
	}
}

// announce sends the subscription handshake. It runs before the connection is
// installed and before the first read, so on every connection the handshake
// precedes all inbound processing.
func (b *Bridge) announce(conn *websocket.Conn) error {
	payload, err := schema.EncodeMessage(schema.SubscribeToDataURL{})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(b.ctx, handshakeWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return context.Canceled
			}
			if errors.Is(err, net.ErrClosed) {
				return context.Canceled
			}
			if status := websocket.CloseStatus(err); status != -1 {
				if status == websocket.StatusNormalClosure {
					return context.Canceled
				}
				return fmt.Errorf("read: remote closed with status %d", status)
			}
			return fmt.Errorf("read: %w", err)
		}

		if msgType != websocket.MessageText {
			b.drop("binary")
			continue
		}

		b.handle(conn, data)
	}
}

// handle validates provenance and applies one inbound payload. Both checks
// are strict: the payload must have arrived on the current subscription
// connection, and its declared origin must equal the configured one byte for
// byte. Anything that fails is dropped without a log line; the channel is
// shared and noise on it is expected.
func (b *Bridge) handle(conn *websocket.Conn, data []byte) {
	b.connMu.Lock()
	current := b.conn
	b.connMu.Unlock()
	if conn != current {
		b.drop("connection")
		return
	}

	msg, err := schema.DecodeMessage(data)
	if err != nil {
		if errors.Is(err, schema.ErrUnknownKind) {
			b.drop("unknown-kind")
		} else {
			b.drop("malformed")
		}
		return
	}

	set, ok := msg.(schema.SetDataURL)
	if !ok {
		b.drop("kind")
		return
	}
	if set.Origin != b.origin {
		b.drop("origin")
		return
	}

	b.msgsApplied.Add(b.ctx, 1)
	if b.onDataURL != nil {
		b.onDataURL(set.DataURL)
	}
}

func (b *Bridge) drop(reason string) {
	b.msgsDropped.Add(b.ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (b *Bridge) sleep(backoffCfg *backoff.ExponentialBackOff) error {
	sleep := backoffCfg.NextBackOff()
	if sleep == backoff.Stop {
		sleep = maxReconnectInterval
	}
	select {
	case <-b.ctx.Done():
		return context.Canceled
	case <-time.After(sleep):
		return nil
	}
}
