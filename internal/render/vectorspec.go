package render

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2layouts/d2elklayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	d2log "oss.terrastruct.com/d2/lib/log"
	"oss.terrastruct.com/d2/lib/textmeasure"

	"github.com/RhNO3-lx/chartgen/internal/model"
)

// VectorSpecRenderer compiles d2 script templates in-process. No browser
// involved; the d2 compiler emits SVG directly, sized to content.
type VectorSpecRenderer struct {
	Layout string // "dagre" (default) or "elk"
}

// d2Row is one dataset row flattened for the script template.
type d2Row struct {
	Label string
	Value string
	Color string
}

type d2Data struct {
	Rows       []d2Row
	Background string
	TextColor  string
}

// Render executes the template into d2 source, compiles it and renders
// SVG. Realized dimensions come from the compiled diagram, not from the
// request; d2 sizes diagrams to their content.
func (v *VectorSpecRenderer) Render(ctx context.Context, tmpl *model.TemplateDescriptor, ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (*Result, error) {
	script, err := v.buildScript(tmpl, ds, pal)
	if err != nil {
		return nil, err
	}

	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return nil, fmt.Errorf("%w: text ruler: %v", ErrRenderBackend, err)
	}

	compileOpts := &d2lib.CompileOptions{
		LayoutResolver: func(engine string) (d2graph.LayoutGraph, error) {
			if engine == "elk" || v.Layout == "elk" {
				return d2elklayout.DefaultLayout, nil
			}
			return d2dagrelayout.DefaultLayout, nil
		},
		Ruler: ruler,
	}
	renderOpts := &d2svg.RenderOpts{}

	d2ctx := d2log.Stderr(ctx)
	diagram, _, err := d2lib.Compile(d2ctx, script, compileOpts, renderOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling %s: %v", ErrRenderBackend, tmpl.Key(), err)
	}
	if renderOpts.Scale == nil {
		scale := 1.0
		renderOpts.Scale = &scale
	}
	out, err := d2svg.Render(diagram, renderOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering %s: %v", ErrRenderBackend, tmpl.Key(), err)
	}

	svg := string(out)
	rw, rh := svgDimensions(svg, width, height)
	return &Result{SVG: svg, Width: rw, Height: rh}, nil
}

func (v *VectorSpecRenderer) buildScript(tmpl *model.TemplateDescriptor, ds *model.DatasetDescriptor, pal *model.Palette) (string, error) {
	raw, err := os.ReadFile(tmpl.Path)
	if err != nil {
		return "", fmt.Errorf("%w: reading template %s: %v", ErrRenderBackend, tmpl.Path, err)
	}
	funcs := template.FuncMap{
		"sub": func(a, b int) int { return a - b },
		"add": func(a, b int) int { return a + b },
	}
	t, err := template.New(tmpl.ChartName).Funcs(funcs).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("%w: parsing template %s: %v", ErrRenderBackend, tmpl.Path, err)
	}

	data := d2Data{Background: pal.BackgroundColor, TextColor: pal.TextColor}
	xc, okX := ds.ColumnByRole("x")
	yc, okY := ds.ColumnByRole("y")
	if okX && okY {
		labels := ds.Strings(xc.Name)
		values := ds.Numbers(yc.Name)
		for i := range labels {
			row := d2Row{Label: sanitizeD2(labels[i]), Color: fieldColor(pal, labels[i], i)}
			if i < len(values) {
				row.Value = trimNumber(values[i])
			}
			data.Rows = append(data.Rows, row)
		}
	}

	var out strings.Builder
	if err := t.Execute(&out, data); err != nil {
		return "", fmt.Errorf("%w: executing template %s: %v", ErrRenderBackend, tmpl.Path, err)
	}
	return out.String(), nil
}

// sanitizeD2 strips characters that would break d2 identifier syntax.
func sanitizeD2(s string) string {
	r := strings.NewReplacer("{", "", "}", "", ";", "", ":", " ", "\n", " ", `"`, "'")
	return strings.TrimSpace(r.Replace(s))
}
