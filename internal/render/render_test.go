package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhNO3-lx/chartgen/internal/model"
)

func testPalette() *model.Palette {
	return &model.Palette{
		BackgroundColor: "#ffffff",
		TextColor:       "#222222",
		Field:           map[string]string{"north": "#4e79a7"},
		Other:           map[string]string{},
	}
}

func xyDataset(values ...float64) *model.DatasetDescriptor {
	ds := &model.DatasetDescriptor{
		Columns: []model.Column{
			{Name: "region", DataType: model.Categorical, Role: "x"},
			{Name: "sales", DataType: model.Numerical, Role: "y"},
		},
	}
	regions := []string{"north", "south", "east", "west"}
	for i, v := range values {
		ds.Rows = append(ds.Rows, map[string]interface{}{
			"region": regions[i%len(regions)], "sales": v,
		})
	}
	return ds
}

func findBuiltin(t *testing.T, name string) *model.TemplateDescriptor {
	t.Helper()
	for _, tmpl := range BuiltinTemplates() {
		if tmpl.ChartName == name {
			return tmpl
		}
	}
	t.Fatalf("builtin template %s not found", name)
	return nil
}

func TestBuiltinTemplatesWellFormed(t *testing.T) {
	for _, tmpl := range BuiltinTemplates() {
		assert.Equal(t, model.EngineProcedural, tmpl.Engine)
		assert.NotNil(t, tmpl.Render, tmpl.ChartName)
		roles, err := tmpl.Requirements.ResolveRoles()
		require.NoError(t, err, tmpl.ChartName)
		assert.NotEmpty(t, roles, tmpl.ChartName)
	}
}

func TestVerticalBarOutput(t *testing.T) {
	tmpl := findBuiltin(t, "vertical_bar")
	svg, err := tmpl.Render(xyDataset(10, 20, 5), testPalette(), 800, 600)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.Contains(t, svg, `class="background"`)
	assert.Contains(t, svg, "north")
	// Palette color assignment flows through.
	assert.Contains(t, svg, "#4e79a7")
	assert.False(t, ContainsRasterFallback(svg))
}

func TestAllBuiltinsRenderCleanSVG(t *testing.T) {
	pal := testPalette()
	bubble := &model.DatasetDescriptor{
		Columns: []model.Column{
			{Name: "a", DataType: model.Numerical, Role: "x"},
			{Name: "b", DataType: model.Numerical, Role: "y"},
			{Name: "c", DataType: model.Numerical, Role: "size"},
		},
		Rows: []map[string]interface{}{
			{"a": 1.0, "b": 2.0, "c": 3.0},
			{"a": -4.0, "b": 5.0, "c": 6.0},
		},
	}
	grouped := &model.DatasetDescriptor{
		Columns: []model.Column{
			{Name: "q", DataType: model.Categorical, Role: "x"},
			{Name: "v", DataType: model.Numerical, Role: "y"},
			{Name: "p", DataType: model.Categorical, Role: "group"},
		},
		Rows: []map[string]interface{}{
			{"q": "Q1", "v": 4.0, "p": "widget"},
			{"q": "Q1", "v": 6.0, "p": "gadget"},
			{"q": "Q2", "v": 5.0, "p": "widget"},
			{"q": "Q2", "v": 2.0, "p": "gadget"},
		},
	}

	for _, tmpl := range BuiltinTemplates() {
		var ds *model.DatasetDescriptor
		switch {
		case strings.Contains(tmpl.ChartName, "bubble"):
			ds = bubble
		case strings.Contains(tmpl.ChartName, "grouped"):
			ds = grouped
		case strings.Contains(tmpl.ChartName, "scatterplot"):
			ds = bubble
		case strings.Contains(tmpl.ChartName, "dual"):
			ds = xyDataset(5, -3, 8)
		default:
			ds = xyDataset(10, 20, 5)
		}
		svg, err := tmpl.Render(ds, pal, 800, 600)
		require.NoError(t, err, tmpl.ChartName)
		assert.True(t, strings.HasPrefix(svg, "<svg"), tmpl.ChartName)
		assert.True(t, strings.HasSuffix(svg, "</svg>"), tmpl.ChartName)
	}
}

func TestPieRejectsNegativeSlices(t *testing.T) {
	tmpl := findBuiltin(t, "basic_pie")
	_, err := tmpl.Render(xyDataset(5, -2), testPalette(), 600, 600)
	assert.Error(t, err)
}

func TestRenderMissingRole(t *testing.T) {
	tmpl := findBuiltin(t, "vertical_bar")
	ds := xyDataset(1, 2)
	ds.Columns[0].Role = ""
	_, err := tmpl.Render(ds, testPalette(), 800, 600)
	assert.Error(t, err)
}

func TestContainsRasterFallback(t *testing.T) {
	assert.True(t, ContainsRasterFallback(`<svg><image href="data:image/png;base64,AAAA"/></svg>`))
	assert.True(t, ContainsRasterFallback(`<div><canvas width="10"></canvas></div>`))
	assert.False(t, ContainsRasterFallback(`<svg><rect width="10" height="10"/></svg>`))
}

func TestClampDims(t *testing.T) {
	tmpl := &model.TemplateDescriptor{Requirements: model.Requirements{MinWidth: 500, MinHeight: 500}}
	w, h := clampDims(tmpl, 300, 800)
	assert.Equal(t, 500, w)
	assert.Equal(t, 800, h)

	fixed := &model.TemplateDescriptor{Requirements: model.Requirements{Width: 640, Height: 480}}
	w, h = clampDims(fixed, 300, 800)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestDispatcherUnknownProcedural(t *testing.T) {
	d := NewDispatcher(nil)
	tmpl := &model.TemplateDescriptor{Engine: model.EngineProcedural, ChartName: "ghost"}
	_, err := d.Render(context.Background(), tmpl, xyDataset(1), testPalette(), 800, 600)
	assert.ErrorIs(t, err, ErrRenderBackend)
}

func TestBuildScriptPage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chart.html")
	page := `<html><body><script>
var labels = {{.LabelsJSON}};
var values = {{.ValuesJSON}};
var bg = '{{.Background}}';
</script></body></html>`
	require.NoError(t, os.WriteFile(path, []byte(page), 0o644))

	tmpl := &model.TemplateDescriptor{
		Engine: model.EngineScriptA, ChartType: "bar", ChartName: "chart", Path: path,
	}
	out, err := BuildScriptPage(tmpl, xyDataset(10, 20), testPalette(), 800, 600)
	require.NoError(t, err)
	assert.Contains(t, out, `["north","south"]`)
	assert.Contains(t, out, "[10,20]")
	assert.Contains(t, out, "#ffffff")
}

func TestSVGDimensions(t *testing.T) {
	w, h := svgDimensions(`<svg width="640" height="480"><rect/></svg>`, 100, 100)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	w, h = svgDimensions(`<svg viewBox="0 0 10 10"/>`, 100, 200)
	assert.Equal(t, 100, w)
	assert.Equal(t, 200, h)
}
