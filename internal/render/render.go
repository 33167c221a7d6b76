// Package render turns a selected template plus a role-assigned dataset
// into an SVG fragment. Four backends exist: native Go builders, two
// script-based HTML engines rendered in headless Chrome, and d2 scripts
// compiled in-process.
package render

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RhNO3-lx/chartgen/internal/model"
)

// ErrRenderBackend wraps failures inside a rendering backend.
var ErrRenderBackend = errors.New("render backend failed")

// ErrRasterOutput reports that a script engine produced raster content
// instead of vector output. A raster chart cannot be masked or restyled,
// so this is always a hard failure, never silently accepted.
var ErrRasterOutput = errors.New("script engine produced raster output")

// Result is a rendered chart fragment with its realized dimensions,
// which may differ from the requested ones (d2 sizes to content).
type Result struct {
	SVG    string
	Width  int
	Height int
}

// Renderer renders one template against one dataset.
type Renderer interface {
	Render(ctx context.Context, tmpl *model.TemplateDescriptor, ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (*Result, error)
}

// Dispatcher routes by template engine.
type Dispatcher struct {
	Headless *HeadlessRenderer
	Vector   *VectorSpecRenderer
}

// NewDispatcher wires the default backends.
func NewDispatcher(headless *HeadlessRenderer) *Dispatcher {
	return &Dispatcher{Headless: headless, Vector: &VectorSpecRenderer{}}
}

// Render implements Renderer.
func (d *Dispatcher) Render(ctx context.Context, tmpl *model.TemplateDescriptor, ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (*Result, error) {
	width, height = clampDims(tmpl, width, height)
	switch tmpl.Engine {
	case model.EngineProcedural:
		if tmpl.Render == nil {
			return nil, fmt.Errorf("%w: procedural template %s has no render func", ErrRenderBackend, tmpl.Key())
		}
		svg, err := tmpl.Render(ds, pal, width, height)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRenderBackend, tmpl.Key(), err)
		}
		return &Result{SVG: svg, Width: width, Height: height}, nil
	case model.EngineScriptA, model.EngineScriptB:
		if d.Headless == nil {
			return nil, fmt.Errorf("%w: no headless renderer configured for %s", ErrRenderBackend, tmpl.Key())
		}
		return d.Headless.Render(ctx, tmpl, ds, pal, width, height)
	case model.EngineVectorSpec:
		return d.Vector.Render(ctx, tmpl, ds, pal, width, height)
	}
	return nil, fmt.Errorf("%w: unknown engine %s", ErrRenderBackend, tmpl.Engine)
}

// clampDims honors the template's declared minimum and fixed sizes.
func clampDims(tmpl *model.TemplateDescriptor, width, height int) (int, int) {
	req := &tmpl.Requirements
	if req.Width > 0 {
		width = req.Width
	}
	if req.Height > 0 {
		height = req.Height
	}
	if req.MinWidth > 0 && width < req.MinWidth {
		width = req.MinWidth
	}
	if req.MinHeight > 0 && height < req.MinHeight {
		height = req.MinHeight
	}
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 600
	}
	return width, height
}

// ContainsRasterFallback detects raster payloads inside supposedly
// vector output: embedded PNG/JPEG data URIs or a canvas element left by
// a script engine that fell back to bitmap rendering.
func ContainsRasterFallback(svg string) bool {
	lower := strings.ToLower(svg)
	return strings.Contains(lower, "data:image/png") ||
		strings.Contains(lower, "data:image/jpeg") ||
		strings.Contains(lower, "<canvas")
}
