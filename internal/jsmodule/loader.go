// Package jsmodule loads chart transform modules written in JavaScript. A
// module exports metadata and a render(table, params) function; the loader
// compiles and validates modules from a directory, and instances execute them
// in isolated VMs.
package jsmodule

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Metadata describes a transform module.
type Metadata struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// Module is one compiled transform: the program plus everything needed to
// list and instantiate it.
type Module struct {
	Name     string
	Filename string
	Path     string
	Hash     string
	Metadata Metadata
	Program  *goja.Program
	Size     int64
}

// ModuleSummary exposes immutable module details for listing APIs.
type ModuleSummary struct {
	Name     string   `json:"name"`
	File     string   `json:"file"`
	Hash     string   `json:"hash"`
	Size     int64    `json:"size"`
	Metadata Metadata `json:"metadata"`
}

// Loader manages transform modules sourced from a directory.
type Loader struct {
	mu     sync.RWMutex
	root   string
	byName map[string]*Module
}

// NewLoader constructs a loader rooted at the provided directory, creating it
// when absent.
func NewLoader(root string) (*Loader, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("module loader: root directory required")
	}
	clean := filepath.Clean(trimmed)
	if err := os.MkdirAll(clean, 0o750); err != nil {
		return nil, fmt.Errorf("module loader: ensure directory %q: %w", clean, err)
	}
	return &Loader{
		root:   clean,
		byName: make(map[string]*Module),
	}, nil
}

// Root returns the filesystem root used by the loader.
func (l *Loader) Root() string {
	if l == nil {
		return ""
	}
	return l.root
}

// Refresh replaces the in-memory catalog with the modules currently on disk.
// A module that fails to compile or validate fails the whole refresh, so a
// bad upload never silently shadows a working catalog.
func (l *Loader) Refresh(ctx context.Context) error {
	if l == nil {
		return fmt.Errorf("module loader: nil receiver")
	}
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return fmt.Errorf("module loader: read directory %q: %w", l.root, err)
	}

	next := make(map[string]*Module)
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return fmt.Errorf("module loader: refresh canceled: %w", ctx.Err())
		default:
		}

		if entry.IsDir() || !isJavaScriptFile(entry.Name()) {
			continue
		}
		fullPath := filepath.Join(l.root, entry.Name())
		module, err := compileModule(fullPath, entry)
		if err != nil {
			return fmt.Errorf("module loader: compile %q: %w", fullPath, err)
		}
		lower := strings.ToLower(module.Name)
		if _, exists := next[lower]; exists {
			return fmt.Errorf("module loader: duplicate module name %q", module.Name)
		}
		next[lower] = module
	}

	l.mu.Lock()
	l.byName = next
	l.mu.Unlock()
	return nil
}

// List returns the loaded module catalog sorted by name.
func (l *Loader) List() []ModuleSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ModuleSummary, 0, len(l.byName))
	for _, module := range l.byName {
		out = append(out, ModuleSummary{
			Name:     module.Name,
			File:     module.Filename,
			Hash:     module.Hash,
			Size:     module.Size,
			Metadata: module.Metadata,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Get returns the named module for instantiation.
func (l *Loader) Get(name string) (*Module, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	module, ok := l.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrModuleNotFound
	}
	return module, nil
}

func isJavaScriptFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".js") || strings.HasSuffix(lower, ".mjs")
}

func compileModule(fullPath string, entry fs.DirEntry) (*Module, error) {
	// #nosec G304 -- fullPath originates from os.ReadDir and filepath.Join within loader root.
	source, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	prog, err := goja.Compile(fullPath, string(source), true)
	if err != nil {
		return nil, err
	}

	meta, err := inspectModule(prog)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(source)
	return &Module{
		Name:     meta.Name,
		Filename: entry.Name(),
		Path:     fullPath,
		Hash:     hex.EncodeToString(sum[:]),
		Metadata: meta,
		Program:  prog,
		Size:     fileSize(entry),
	}, nil
}

// inspectModule runs the program in a throwaway VM and checks the exports a
// transform must have: metadata with a name, and a callable render.
func inspectModule(program *goja.Program) (Metadata, error) {
	rt := goja.New()
	exports, err := runModule(rt, program)
	if err != nil {
		return Metadata{}, err
	}

	raw := exports.Get("metadata")
	if raw == nil || goja.IsUndefined(raw) || goja.IsNull(raw) {
		return Metadata{}, fmt.Errorf("metadata export missing")
	}
	var meta Metadata
	if err := rt.ExportTo(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("metadata export invalid: %w", err)
	}
	meta.Name = strings.ToLower(strings.TrimSpace(meta.Name))
	if meta.Name == "" {
		return Metadata{}, fmt.Errorf("metadata name required")
	}

	render := exports.Get("render")
	if render == nil || goja.IsUndefined(render) || goja.IsNull(render) {
		return Metadata{}, ErrRenderMissing
	}
	if _, ok := goja.AssertFunction(render); !ok {
		return Metadata{}, fmt.Errorf("render export not callable")
	}
	return meta, nil
}

// runModule executes a program under CommonJS-style module/exports globals
// and returns the exports object.
func runModule(rt *goja.Runtime, program *goja.Program) (*goja.Object, error) {
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	module := rt.NewObject()
	exports := rt.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("module", module); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("console", buildConsole(rt)); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}

	if _, err := rt.RunProgram(program); err != nil {
		return nil, fmt.Errorf("module run: %w", err)
	}

	value := module.Get("exports")
	object := value.ToObject(rt)
	if object == nil {
		return nil, fmt.Errorf("module exports must be an object")
	}
	return object, nil
}

func buildConsole(rt *goja.Runtime) *goja.Object {
	console := rt.NewObject()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = console.Set("log", noop)
	_ = console.Set("error", noop)
	_ = console.Set("warn", noop)
	_ = console.Set("info", noop)
	return console
}

func fileSize(entry fs.DirEntry) int64 {
	info, err := entry.Info()
	if err != nil {
		return 0
	}
	return info.Size()
}
