package host

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/embedviz/vizframe/internal/observability"
	"github.com/embedviz/vizframe/internal/schema"
)

const (
	pushWriteTimeout     = 5 * time.Second
	defaultFanoutWorkers = 8
)

// Publisher fans dataset updates out to subscribed frames. Every push
// carries the host's advertised origin and the revision-addressed data URL,
// so a frame applies it only when the origin matches its configuration.
type Publisher struct {
	frames  *Frames
	origin  string
	workers int
	log     observability.Logger

	sent    metric.Int64Counter
	skipped metric.Int64Counter
}

// NewPublisher constructs a publisher stamping the advertised origin.
func NewPublisher(frames *Frames, advertisedOrigin string, fanoutWorkers int, log observability.Logger) *Publisher {
	if log == nil {
		log = observability.Log()
	}
	if fanoutWorkers <= 0 {
		fanoutWorkers = defaultFanoutWorkers
	}
	p := &Publisher{
		frames:  frames,
		origin:  strings.TrimSuffix(strings.TrimSpace(advertisedOrigin), "/"),
		workers: fanoutWorkers,
		log:     log,
	}
	meter := otel.Meter("host")
	p.sent, _ = meter.Int64Counter("vizframe.host.pushes.sent",
		metric.WithDescription("Data URL updates delivered to frames"),
		metric.WithUnit("{message}"))
	p.skipped, _ = meter.Int64Counter("vizframe.host.pushes.skipped",
		metric.WithDescription("Data URL updates not delivered"),
		metric.WithUnit("{message}"))
	return p
}

// Origin returns the advertised origin pushes are stamped with.
func (p *Publisher) Origin() string {
	return p.origin
}

// DataURL builds the revision-addressed locator for a dataset.
func (p *Publisher) DataURL(slug string, revision uint64) string {
	return fmt.Sprintf("%s/data/%s/%d.json", p.origin, slug, revision)
}

// Publish notifies every subscribed frame of a new dataset revision. Slow
// and broken connections are dropped from the registry; delivery is
// best-effort and returns once every send attempt completes.
func (p *Publisher) Publish(ctx context.Context, slug string, revision uint64) {
	conns := p.frames.snapshot()
	if len(conns) == 0 {
		return
	}
	payload, err := schema.EncodeMessage(schema.SetDataURL{
		Origin:  p.origin,
		DataURL: p.DataURL(slug, revision),
	})
	if err != nil {
		p.log.Error("encode data url push",
			observability.Field{Key: "slug", Value: slug},
			observability.Field{Key: "error", Value: err.Error()})
		return
	}

	workers := pool.New().WithMaxGoroutines(p.workers)
	for _, fc := range conns {
		workers.Go(func() {
			if !fc.limiter.Allow() {
				p.frames.drop(ctx, fc, "push rate exceeded")
				p.skip(ctx, "rate-limited")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, pushWriteTimeout)
			err := fc.conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				p.frames.drop(ctx, fc, "write failed")
				p.skip(ctx, "write-failed")
				return
			}
			if p.sent != nil {
				p.sent.Add(ctx, 1)
			}
		})
	}
	workers.Wait()

	p.log.Debug("dataset update published",
		observability.Field{Key: "slug", Value: slug},
		observability.Field{Key: "revision", Value: revision},
		observability.Field{Key: "frames", Value: len(conns)})
}

func (p *Publisher) skip(ctx context.Context, reason string) {
	if p.skipped == nil {
		return
	}
	p.skipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}
