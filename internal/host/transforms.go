// Package host implements the parent context service: the dataset catalog
// API, the frame subscription endpoint, and update push delivery.
package host

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/embedviz/vizframe/errs"
	"github.com/embedviz/vizframe/internal/dataset"
	"github.com/embedviz/vizframe/internal/histogram"
	"github.com/embedviz/vizframe/internal/jsmodule"
	"github.com/embedviz/vizframe/internal/schema"
)

// TransformHistogram is the built-in transform every host carries.
const TransformHistogram = "histogram"

// Registry resolves transform names to implementations: the native histogram
// plus any JavaScript modules loaded from the module directory.
type Registry struct {
	loader *jsmodule.Loader

	mu        sync.Mutex
	instances map[string]*moduleInstance
}

type moduleInstance struct {
	hash string
	inst *jsmodule.Instance
}

// NewRegistry constructs a registry. A nil loader leaves only the built-in
// transform available.
func NewRegistry(loader *jsmodule.Loader) *Registry {
	return &Registry{
		loader:    loader,
		instances: make(map[string]*moduleInstance),
	}
}

// Refresh reloads the JavaScript module catalog from disk.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.loader == nil {
		return nil
	}
	return r.loader.Refresh(ctx)
}

// Names lists selectable transforms, the built-in first.
func (r *Registry) Names() []string {
	names := []string{TransformHistogram}
	if r.loader != nil {
		for _, summary := range r.loader.List() {
			names = append(names, summary.Name)
		}
	}
	sort.Strings(names[1:])
	return names
}

// Modules lists the loaded JavaScript module catalog.
func (r *Registry) Modules() []jsmodule.ModuleSummary {
	if r.loader == nil {
		return nil
	}
	return r.loader.List()
}

// Apply runs the named transform over the table. The returned note is
// user-facing guidance when the inputs cannot produce a chart; the document
// is always drawable.
func (r *Registry) Apply(name string, table dataset.Table, params json.RawMessage) (schema.ChartDocument, string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == TransformHistogram {
		return r.applyHistogram(table, params)
	}
	if r.loader == nil {
		return schema.ChartDocument{}, "", unknownTransform(name)
	}
	module, err := r.loader.Get(name)
	if errors.Is(err, jsmodule.ErrModuleNotFound) {
		return schema.ChartDocument{}, "", unknownTransform(name)
	}
	if err != nil {
		return schema.ChartDocument{}, "", err
	}

	inst, err := r.instanceFor(name, module)
	if err != nil {
		return schema.ChartDocument{}, "", errs.New("host/transforms", errs.CodeRender,
			errs.WithMessage("transform module failed to start"),
			errs.WithMetaField("transform", name),
			errs.WithCause(err))
	}
	doc, note, err := inst.Render(table, params)
	if err != nil {
		return schema.ChartDocument{}, "", errs.New("host/transforms", errs.CodeRender,
			errs.WithMessage("transform failed"),
			errs.WithMetaField("transform", name),
			errs.WithCause(err))
	}
	if doc.IsZero() {
		return histogram.MessageDocument(), note, nil
	}
	return doc, note, nil
}

func (r *Registry) applyHistogram(table dataset.Table, params json.RawMessage) (schema.ChartDocument, string, error) {
	if len(params) == 0 {
		params = []byte("{}")
	}
	p, err := histogram.DecodeParams(params)
	if err != nil {
		return schema.ChartDocument{}, "", errs.New("host/transforms", errs.CodeInvalid,
			errs.WithMessage("invalid histogram params"),
			errs.WithCause(err))
	}
	doc, note := histogram.Render(table, p)
	return doc, note, nil
}

// instanceFor returns a live VM for the module, recycling the cached one
// when a refresh replaced the module's content.
func (r *Registry) instanceFor(name string, module *jsmodule.Module) (*jsmodule.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cached, ok := r.instances[name]
	if ok && cached.hash == module.Hash {
		return cached.inst, nil
	}
	if ok {
		cached.inst.Close()
		delete(r.instances, name)
	}
	inst, err := jsmodule.NewInstance(module)
	if err != nil {
		return nil, err
	}
	r.instances[name] = &moduleInstance{hash: module.Hash, inst: inst}
	return inst, nil
}

// Close stops every cached module instance.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, cached := range r.instances {
		cached.inst.Close()
		delete(r.instances, name)
	}
}

func unknownTransform(name string) error {
	return errs.New("host/transforms", errs.CodeInvalid,
		errs.WithMessage("unknown transform"),
		errs.WithMetaField("transform", name))
}
