// Package fetch issues chart-document requests and arbitrates which outcome
// may be applied: only the latest issued load is authoritative, regardless of
// completion order.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/embedviz/vizframe/errs"
	"github.com/embedviz/vizframe/internal/observability"
	"github.com/embedviz/vizframe/internal/schema"
)

const defaultTimeout = 10 * time.Second

// Outcome is one completed load: the generation it was issued under and the
// spec it normalized to. Receivers must compare Generation against Latest
// before applying.
type Outcome struct {
	Generation uint64
	Locator    string
	Spec       schema.RenderSpec
}

// Coordinator owns the in-flight fetch. Each Load claims the next generation,
// cancels its predecessor, and delivers its outcome asynchronously.
type Coordinator struct {
	client  *http.Client
	timeout time.Duration
	log     observability.Logger
	deliver func(Outcome)

	gen atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc

	loadsIssued   metric.Int64Counter
	loadsFailed   metric.Int64Counter
	loadsStale    metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

// NewCoordinator constructs a coordinator delivering outcomes through the
// given callback. A nil client gets a cookie-jarred default so data sources
// see the credentials they set on earlier responses.
func NewCoordinator(client *http.Client, timeout time.Duration, log observability.Logger, deliver func(Outcome)) *Coordinator {
	if client == nil {
		client = DefaultClient(timeout)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = observability.Log()
	}

	c := new(Coordinator)
	c.client = client
	c.timeout = timeout
	c.log = log
	c.deliver = deliver

	meter := otel.Meter("fetch")
	c.loadsIssued, _ = meter.Int64Counter("vizframe.fetch.loads.issued",
		metric.WithDescription("Number of loads issued"),
		metric.WithUnit("{load}"))
	c.loadsFailed, _ = meter.Int64Counter("vizframe.fetch.loads.failed",
		metric.WithDescription("Number of authoritative loads that normalized to the empty spec"),
		metric.WithUnit("{load}"))
	c.loadsStale, _ = meter.Int64Counter("vizframe.fetch.loads.superseded",
		metric.WithDescription("Number of loads superseded before completion"),
		metric.WithUnit("{load}"))
	c.fetchDuration, _ = meter.Float64Histogram("vizframe.fetch.duration",
		metric.WithDescription("Chart document fetch duration"),
		metric.WithUnit("ms"))
	return c
}

// DefaultClient builds the HTTP client used when none is injected: a cookie
// jar for credentialed same-origin requests and a hard timeout.
func DefaultClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	jar, _ := cookiejar.New(nil)
	client := new(http.Client)
	client.Jar = jar
	client.Timeout = timeout
	return client
}

// Latest returns the most recently issued generation. It is the sole
// authority callers consult before applying an outcome.
func (c *Coordinator) Latest() uint64 { return c.gen.Load() }

// Load claims the next generation, cancels any in-flight predecessor, and
// fetches the locator in the background. The claimed generation is returned;
// the outcome arrives through the deliver callback.
func (c *Coordinator) Load(ctx context.Context, locator string) uint64 {
	gen := c.gen.Add(1)
	fctx, cancel := context.WithTimeout(ctx, c.timeout)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	c.loadsIssued.Add(ctx, 1)
	go c.run(fctx, cancel, gen, locator)
	return gen
}

// Stop cancels any in-flight fetch. Further loads are permitted; Stop only
// clears the current one.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, gen uint64, locator string) {
	defer cancel()

	started := time.Now()
	spec, err := c.fetch(ctx, locator)
	c.fetchDuration.Record(context.Background(), float64(time.Since(started))/float64(time.Millisecond),
		metric.WithAttributes(attribute.Bool("failed", err != nil)))

	if err != nil {
		if gen != c.gen.Load() || errors.Is(err, context.Canceled) {
			// Superseded while in flight: the outcome loses the generation
			// race anyway, and stale failures are nobody's business.
			c.loadsStale.Add(context.Background(), 1)
		} else {
			c.loadsFailed.Add(context.Background(), 1)
			c.log.Error("chart document fetch failed",
				observability.Field{Key: "locator", Value: locator},
				observability.Field{Key: "error", Value: err.Error()})
		}
	}

	c.deliver(Outcome{Generation: gen, Locator: locator, Spec: spec})
}

// fetch normalizes every failure to the empty spec; the error reports what
// happened for logging only.
func (c *Coordinator) fetch(ctx context.Context, locator string) (schema.RenderSpec, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return schema.Empty(), errs.New("fetch", errs.CodeInvalid,
			errs.WithMessage("build request"), errs.WithCause(err))
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return schema.Empty(), errs.New("fetch", errs.CodeNetwork,
			errs.WithMessage("request chart document"), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return schema.Empty(), errs.New("fetch", errs.CodeNetwork,
			errs.WithMessage("chart document request rejected"),
			errs.WithHTTP(resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return schema.Empty(), errs.New("fetch", errs.CodeNetwork,
			errs.WithMessage("read chart document"), errs.WithCause(err))
	}
	doc, err := schema.DecodeDocument(body)
	if err != nil {
		return schema.Empty(), errs.New("fetch", errs.CodeDecode,
			errs.WithMessage("parse chart document"), errs.WithCause(err))
	}
	if doc.IsZero() {
		// A null document is a valid way for a source to say "nothing".
		return schema.Empty(), nil
	}
	return schema.Data(doc), nil
}
