package jsmodule

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	json "github.com/goccy/go-json"

	"github.com/embedviz/vizframe/internal/dataset"
	"github.com/embedviz/vizframe/internal/schema"
)

// Instance is an isolated VM for one transform module. All execution funnels
// through a single goroutine, so modules never see concurrent calls.
type Instance struct {
	module *Module
	rt     *goja.Runtime
	export *goja.Object
	queue  chan func(*goja.Runtime)
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewInstance creates a fresh runtime for the provided module.
func NewInstance(module *Module) (*Instance, error) {
	if module == nil {
		return nil, fmt.Errorf("module instance: module required")
	}
	rt := goja.New()
	export, err := runModule(rt, module.Program)
	if err != nil {
		return nil, fmt.Errorf("module instance: execute %s: %w", module.Path, err)
	}
	instance := &Instance{
		module: module,
		rt:     rt,
		export: export,
		queue:  make(chan func(*goja.Runtime)),
	}
	instance.wg.Add(1)
	go instance.loop()
	return instance, nil
}

func (i *Instance) loop() {
	defer i.wg.Done()
	for cb := range i.queue {
		cb(i.rt)
	}
}

type result struct {
	value goja.Value
	err   error
}

// Execute runs fn on the instance goroutine and waits for its result. A JS
// panic inside fn is converted to an error rather than taking the process
// down; one broken module must not stop the host serving the rest.
func (i *Instance) Execute(fn func(rt *goja.Runtime, exports *goja.Object) (goja.Value, error)) (goja.Value, error) {
	if i == nil {
		return nil, fmt.Errorf("module instance: nil receiver")
	}
	if fn == nil {
		return nil, fmt.Errorf("module instance: callback required")
	}

	wait := make(chan result, 1)

	i.mu.RLock()
	if i.closed {
		i.mu.RUnlock()
		return nil, fmt.Errorf("module instance: closed")
	}
	i.queue <- func(rt *goja.Runtime) {
		defer func() {
			if rec := recover(); rec != nil {
				wait <- result{err: fmt.Errorf("module panic: %v", rec)}
			}
		}()
		val, err := fn(rt, i.export)
		wait <- result{value: val, err: err}
	}
	i.mu.RUnlock()

	outcome := <-wait
	return outcome.value, outcome.err
}

type renderResult struct {
	Document map[string]any `json:"document"`
	Note     string         `json:"note"`
}

// Render invokes the module's render export with the table and raw transform
// params. The module returns {document, note}: a chart document, a
// user-facing note explaining why no chart could be built, or both.
func (i *Instance) Render(table dataset.Table, params json.RawMessage) (schema.ChartDocument, string, error) {
	var res renderResult
	_, err := i.Execute(func(rt *goja.Runtime, exports *goja.Object) (goja.Value, error) {
		raw := exports.Get("render")
		if raw == nil || goja.IsUndefined(raw) || goja.IsNull(raw) {
			return nil, ErrRenderMissing
		}
		callable, ok := goja.AssertFunction(raw)
		if !ok {
			return nil, fmt.Errorf("module instance: render export not callable")
		}

		p := map[string]any{}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("module instance: decode params: %w", err)
			}
		}

		value, err := callable(goja.Undefined(), rt.ToValue(tableValue(table)), rt.ToValue(p))
		if err != nil {
			return nil, fmt.Errorf("module instance: render: %w", err)
		}
		if err := rt.ExportTo(value, &res); err != nil {
			return nil, fmt.Errorf("module instance: render result invalid: %w", err)
		}
		return value, nil
	})
	if err != nil {
		return schema.ChartDocument{}, "", err
	}

	if res.Document == nil {
		if strings.TrimSpace(res.Note) == "" {
			return schema.ChartDocument{}, "", fmt.Errorf("module instance: render returned neither document nor note")
		}
		return schema.ChartDocument{}, res.Note, nil
	}

	data, err := json.Marshal(res.Document)
	if err != nil {
		return schema.ChartDocument{}, "", fmt.Errorf("module instance: encode document: %w", err)
	}
	doc, err := schema.DecodeDocument(data)
	if err != nil {
		return schema.ChartDocument{}, "", fmt.Errorf("module instance: decode document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return schema.ChartDocument{}, "", fmt.Errorf("module instance: document invalid: %w", err)
	}
	return doc, res.Note, nil
}

// Close stops the instance goroutine. Pending Execute calls finish first.
func (i *Instance) Close() {
	if i == nil {
		return
	}
	i.once.Do(func() {
		i.mu.Lock()
		i.closed = true
		close(i.queue)
		i.mu.Unlock()
		i.wg.Wait()
	})
}

// tableValue converts a table into the plain structure modules receive:
// {columns: [{name, values}]} with numbers as floats, text as strings, and
// nulls as null. Text cells that parse as numbers arrive as numbers, the same
// reading the native transforms use.
func tableValue(table dataset.Table) map[string]any {
	columns := make([]any, 0, len(table.Columns))
	for _, col := range table.Columns {
		values := make([]any, len(col.Values))
		for idx, cell := range col.Values {
			values[idx] = cellValue(cell)
		}
		columns = append(columns, map[string]any{"name": col.Name, "values": values})
	}
	return map[string]any{"columns": columns}
}

func cellValue(v dataset.Value) any {
	if v.IsNull() {
		return nil
	}
	if d, ok := v.Decimal(); ok {
		return d.InexactFloat64()
	}
	return v.String()
}
