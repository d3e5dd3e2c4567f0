package host

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/embedviz/vizframe/config"
	"github.com/embedviz/vizframe/errs"
	"github.com/embedviz/vizframe/internal/dataset"
	"github.com/embedviz/vizframe/internal/observability"
	"github.com/embedviz/vizframe/internal/store"
)

// Option configures optional service collaborators.
type Option func(*options)

type options struct {
	log observability.Logger
}

// WithLogger overrides the process logger.
func WithLogger(log observability.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// Service owns the host's moving parts: the dataset catalog, the transform
// registry, subscribed frames, and the publisher that notifies them.
type Service struct {
	catalog    store.Catalog
	transforms *Registry
	frames     *Frames
	publisher  *Publisher
	log        observability.Logger
}

// NewService wires the host service around a catalog and transform registry.
func NewService(settings config.HostSettings, catalog store.Catalog, transforms *Registry, opts ...Option) *Service {
	o := options{log: observability.Log()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	frames := NewFrames(settings.Push, o.log)
	publisher := NewPublisher(frames, settings.AdvertisedOrigin, settings.Push.FanoutWorkers, o.log)
	return &Service{
		catalog:    catalog,
		transforms: transforms,
		frames:     frames,
		publisher:  publisher,
		log:        o.log,
	}
}

// Frames exposes the subscription registry.
func (s *Service) Frames() *Frames {
	return s.frames
}

// Publisher exposes the update publisher.
func (s *Service) Publisher() *Publisher {
	return s.publisher
}

// Close tears down frame subscriptions and transform instances.
func (s *Service) Close() {
	s.frames.CloseAll()
	s.transforms.Close()
}

// datasetRequest is the ingest payload for create and update operations.
// Update treats an absent table, params, or transform as "keep the stored
// value".
type datasetRequest struct {
	Slug      string          `json:"slug"`
	Transform string          `json:"transform"`
	Table     dataset.Table   `json:"table"`
	Params    json.RawMessage `json:"params"`
}

// createDataset ingests a table, runs its transform, and stores revision 1.
func (s *Service) createDataset(ctx context.Context, req datasetRequest) (store.Record, error) {
	if err := store.ValidateSlug(req.Slug); err != nil {
		return store.Record{}, err
	}
	if err := req.Table.Validate(); err != nil {
		return store.Record{}, err
	}
	transform := req.Transform
	if transform == "" {
		transform = TransformHistogram
	}
	doc, note, err := s.transforms.Apply(transform, req.Table, req.Params)
	if err != nil {
		return store.Record{}, err
	}

	record, err := s.catalog.Put(ctx, store.Record{
		ID:        uuid.New(),
		Slug:      req.Slug,
		Transform: transform,
		Table:     req.Table,
		Params:    req.Params,
		Document:  doc,
		Note:      note,
	})
	if err != nil {
		return store.Record{}, err
	}
	s.log.Info("dataset created",
		observability.Field{Key: "slug", Value: record.Slug},
		observability.Field{Key: "transform", Value: record.Transform})
	return record, nil
}

// updateDataset re-transforms a dataset, bumps its revision, and pushes the
// new data URL to every subscribed frame.
func (s *Service) updateDataset(ctx context.Context, slug string, req datasetRequest) (store.Record, error) {
	if req.Slug != "" && req.Slug != slug {
		return store.Record{}, errs.New("host", errs.CodeInvalid,
			errs.WithMessage("dataset slug mismatch"),
			errs.WithMetaField("slug", slug))
	}
	current, err := s.catalog.Get(ctx, slug)
	if err != nil {
		return store.Record{}, err
	}

	table := req.Table
	if len(table.Columns) == 0 {
		table = current.Table
	}
	params := req.Params
	if len(params) == 0 {
		params = current.Params
	}
	transform := req.Transform
	if transform == "" {
		transform = current.Transform
	}
	if err := table.Validate(); err != nil {
		return store.Record{}, err
	}
	doc, note, err := s.transforms.Apply(transform, table, params)
	if err != nil {
		return store.Record{}, err
	}

	record, err := s.catalog.CompareAndSwap(ctx, current.Revision, store.Record{
		ID:        current.ID,
		Slug:      slug,
		Transform: transform,
		Table:     table,
		Params:    params,
		Document:  doc,
		Note:      note,
	})
	if err != nil {
		return store.Record{}, err
	}

	s.publisher.Publish(ctx, record.Slug, record.Revision)
	s.log.Info("dataset updated",
		observability.Field{Key: "slug", Value: record.Slug},
		observability.Field{Key: "revision", Value: record.Revision})
	return record, nil
}
