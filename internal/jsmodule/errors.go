package jsmodule

import "errors"

// ErrModuleNotFound reports a transform module absent from the loader.
var ErrModuleNotFound = errors.New("transform module not found")

// ErrRenderMissing is returned when a module lacks a callable render export.
var ErrRenderMissing = errors.New("render export missing")
