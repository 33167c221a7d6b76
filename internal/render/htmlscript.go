package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/RhNO3-lx/chartgen/internal/model"
)

// pageData is the context an HTML script template executes against. The
// JSON fields are pre-encoded so the template drops them straight into
// the embedded chart script.
type pageData struct {
	Width      int
	Height     int
	Background string
	TextColor  string

	LabelsJSON template.JS // x role values
	ValuesJSON template.JS // y role values
	RowsJSON   template.JS // full rows for multi-role templates
	ColorsJSON template.JS // per-label colors, x order
	Title      string
}

// BuildScriptPage loads the template file and executes it into a
// self-contained HTML page. The chart script inside must render with
// animation disabled so a single screenshot captures the final state.
func BuildScriptPage(tmpl *model.TemplateDescriptor, ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (string, error) {
	raw, err := os.ReadFile(tmpl.Path)
	if err != nil {
		return "", fmt.Errorf("%w: reading template %s: %v", ErrRenderBackend, tmpl.Path, err)
	}

	t, err := template.New(tmpl.ChartName).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("%w: parsing template %s: %v", ErrRenderBackend, tmpl.Path, err)
	}

	data, err := buildPageData(ds, pal, width, height)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRenderBackend, tmpl.Key(), err)
	}

	var out strings.Builder
	if err := t.Execute(&out, data); err != nil {
		return "", fmt.Errorf("%w: executing template %s: %v", ErrRenderBackend, tmpl.Path, err)
	}
	return out.String(), nil
}

func buildPageData(ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (*pageData, error) {
	d := &pageData{
		Width:      width,
		Height:     height,
		Background: pal.BackgroundColor,
		TextColor:  pal.TextColor,
	}

	if xc, ok := ds.ColumnByRole("x"); ok {
		labels := ds.Strings(xc.Name)
		if err := encodeJS(&d.LabelsJSON, labels); err != nil {
			return nil, err
		}
		colors := make([]string, len(labels))
		for i, l := range labels {
			colors[i] = fieldColor(pal, l, i)
		}
		if err := encodeJS(&d.ColorsJSON, colors); err != nil {
			return nil, err
		}
	}
	if yc, ok := ds.ColumnByRole("y"); ok {
		if err := encodeJS(&d.ValuesJSON, ds.Numbers(yc.Name)); err != nil {
			return nil, err
		}
	}
	if err := encodeJS(&d.RowsJSON, ds.Rows); err != nil {
		return nil, err
	}
	return d, nil
}

func encodeJS(dst *template.JS, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding chart data: %w", err)
	}
	*dst = template.JS(b)
	return nil
}
