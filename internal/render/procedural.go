package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/RhNO3-lx/chartgen/internal/model"
)

const (
	chartFont       = "Arial, sans-serif"
	axisFontSize    = 12.0
	labelFontSize   = 12.0
	plotMarginLeft  = 60.0
	plotMarginRight = 20.0
	plotMarginTop   = 20.0
	plotMarginBot   = 40.0
)

// bounds tracks the extent of drawn content so the final viewBox hugs
// the ink instead of trusting the nominal canvas.
type bounds struct {
	minX, maxX, minY, maxY float64
	isSet                  bool
}

func (b *bounds) updatePoint(x, y float64) {
	if !b.isSet {
		b.minX, b.maxX = x, x
		b.minY, b.maxY = y, y
		b.isSet = true
		return
	}
	b.minX = math.Min(b.minX, x)
	b.maxX = math.Max(b.maxX, x)
	b.minY = math.Min(b.minY, y)
	b.maxY = math.Max(b.maxY, y)
}

func (b *bounds) updateRect(x, y, w, h float64) {
	if w > 0 && h > 0 {
		b.updatePoint(x, y)
		b.updatePoint(x+w, y+h)
	}
}

// canvas accumulates SVG elements for one chart.
type canvas struct {
	body strings.Builder
	b    bounds
	w, h float64
	pal  *model.Palette
}

func newCanvas(pal *model.Palette, width, height int) *canvas {
	return &canvas{w: float64(width), h: float64(height), pal: pal}
}

func (c *canvas) rect(x, y, w, h float64, fill string) {
	fmt.Fprintf(&c.body, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`+"\n", x, y, w, h, fill)
	c.b.updateRect(x, y, w, h)
}

func (c *canvas) circle(cx, cy, r float64, fill string) {
	fmt.Fprintf(&c.body, `<circle cx="%.1f" cy="%.1f" r="%.1f" fill="%s"/>`+"\n", cx, cy, r, fill)
	c.b.updateRect(cx-r, cy-r, 2*r, 2*r)
}

func (c *canvas) line(x1, y1, x2, y2 float64, stroke string, width float64) {
	fmt.Fprintf(&c.body, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="%.1f"/>`+"\n", x1, y1, x2, y2, stroke, width)
	c.b.updatePoint(x1, y1)
	c.b.updatePoint(x2, y2)
}

func (c *canvas) path(d, fill, stroke string, width float64) {
	fmt.Fprintf(&c.body, `<path d="%s" fill="%s" stroke="%s" stroke-width="%.1f"/>`+"\n", d, fill, stroke, width)
}

func (c *canvas) text(x, y float64, s, anchor string, size float64) {
	fmt.Fprintf(&c.body,
		`<text x="%.1f" y="%.1f" font-family="%s" font-size="%.0f" fill="%s" text-anchor="%s">%s</text>`+"\n",
		x, y, chartFont, size, c.pal.TextColor, anchor, escapeXML(s))
	// Approximate glyph extent for bounds purposes.
	tw := float64(len([]rune(s))) * size * 0.6
	switch anchor {
	case "middle":
		c.b.updateRect(x-tw/2, y-size, tw, size)
	case "end":
		c.b.updateRect(x-tw, y-size, tw, size)
	default:
		c.b.updateRect(x, y-size, tw, size)
	}
}

// finish wraps the accumulated body in an svg element with a background
// rect carrying the conventional class so downstream stages recognize it.
func (c *canvas) finish() string {
	var out strings.Builder
	fmt.Fprintf(&out, `<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">`+"\n", c.w, c.h, c.w, c.h)
	fmt.Fprintf(&out, `<rect class="background" x="0" y="0" width="%.0f" height="%.0f" fill="%s"/>`+"\n", c.w, c.h, c.pal.BackgroundColor)
	out.WriteString(c.body.String())
	out.WriteString("</svg>")
	return out.String()
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

var defaultSeries = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2", "#59a14f",
	"#edc948", "#b07aa1", "#ff9da7", "#9c755f", "#bab0ac",
}

// fieldColor prefers the palette's per-value assignment and rotates
// through the default series otherwise.
func fieldColor(pal *model.Palette, value string, i int) string {
	if c, ok := pal.Field[value]; ok {
		return c
	}
	return defaultSeries[i%len(defaultSeries)]
}

func otherColor(pal *model.Palette, key, fallback string) string {
	if c, ok := pal.Other[key]; ok {
		return c
	}
	return fallback
}

// seriesData pulls the x labels and y values by role.
func seriesData(ds *model.DatasetDescriptor) (labels []string, values []float64, err error) {
	xc, ok := ds.ColumnByRole("x")
	if !ok {
		return nil, nil, fmt.Errorf("no column assigned role x")
	}
	yc, ok := ds.ColumnByRole("y")
	if !ok {
		return nil, nil, fmt.Errorf("no column assigned role y")
	}
	labels = ds.Strings(xc.Name)
	values = ds.Numbers(yc.Name)
	if len(labels) == 0 || len(values) != len(labels) {
		return nil, nil, fmt.Errorf("x/y length mismatch: %d labels, %d values", len(labels), len(values))
	}
	return labels, values, nil
}

func valueExtent(values []float64) (min, max float64) {
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return min, max
}

// --- chart builders ---

func renderVerticalBar(ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (string, error) {
	labels, values, err := seriesData(ds)
	if err != nil {
		return "", err
	}
	c := newCanvas(pal, width, height)
	plotW := c.w - plotMarginLeft - plotMarginRight
	plotH := c.h - plotMarginTop - plotMarginBot
	_, maxV := valueExtent(values)
	if maxV <= 0 {
		maxV = 1
	}

	slot := plotW / float64(len(values))
	barW := slot * 0.7
	axisColor := otherColor(pal, "axis", pal.TextColor)
	c.line(plotMarginLeft, plotMarginTop+plotH, plotMarginLeft+plotW, plotMarginTop+plotH, axisColor, 1)

	for i, v := range values {
		h := v / maxV * plotH
		x := plotMarginLeft + float64(i)*slot + (slot-barW)/2
		y := plotMarginTop + plotH - h
		c.rect(x, y, barW, h, fieldColor(pal, labels[i], i))
		c.text(x+barW/2, plotMarginTop+plotH+16, labels[i], "middle", axisFontSize)
		c.text(x+barW/2, y-4, trimNumber(v), "middle", labelFontSize)
	}
	return c.finish(), nil
}

func renderHorizontalBar(ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (string, error) {
	labels, values, err := seriesData(ds)
	if err != nil {
		return "", err
	}
	c := newCanvas(pal, width, height)
	plotW := c.w - plotMarginLeft - plotMarginRight - 40
	plotH := c.h - plotMarginTop - plotMarginBot
	_, maxV := valueExtent(values)
	if maxV <= 0 {
		maxV = 1
	}

	slot := plotH / float64(len(values))
	barH := slot * 0.7
	for i, v := range values {
		w := v / maxV * plotW
		y := plotMarginTop + float64(i)*slot + (slot-barH)/2
		c.rect(plotMarginLeft, y, w, barH, fieldColor(pal, labels[i], i))
		c.text(plotMarginLeft-6, y+barH/2+4, labels[i], "end", axisFontSize)
		c.text(plotMarginLeft+w+6, y+barH/2+4, trimNumber(v), "start", labelFontSize)
	}
	return c.finish(), nil
}

func renderDualDirectionBar(ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (string, error) {
	labels, values, err := seriesData(ds)
	if err != nil {
		return "", err
	}
	c := newCanvas(pal, width, height)
	plotW := c.w - plotMarginLeft - plotMarginRight
	plotH := c.h - plotMarginTop - plotMarginBot
	minV, maxV := valueExtent(values)
	span := math.Max(maxV, 0) - math.Min(minV, 0)
	if span <= 0 {
		span = 1
	}
	zeroY := plotMarginTop + math.Max(maxV, 0)/span*plotH

	slot := plotW / float64(len(values))
	barW := slot * 0.7
	posColor := otherColor(pal, "positive", "#59a14f")
	negColor := otherColor(pal, "negative", "#e15759")
	c.line(plotMarginLeft, zeroY, plotMarginLeft+plotW, zeroY, pal.TextColor, 1)

	for i, v := range values {
		h := math.Abs(v) / span * plotH
		x := plotMarginLeft + float64(i)*slot + (slot-barW)/2
		if v >= 0 {
			c.rect(x, zeroY-h, barW, h, posColor)
			c.text(x+barW/2, zeroY-h-4, trimNumber(v), "middle", labelFontSize)
			c.text(x+barW/2, zeroY+14, labels[i], "middle", axisFontSize)
		} else {
			c.rect(x, zeroY, barW, h, negColor)
			c.text(x+barW/2, zeroY+h+14, trimNumber(v), "middle", labelFontSize)
			c.text(x+barW/2, zeroY-6, labels[i], "middle", axisFontSize)
		}
	}
	return c.finish(), nil
}

func renderGroupedBar(ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (string, error) {
	xc, ok := ds.ColumnByRole("x")
	if !ok {
		return "", fmt.Errorf("no column assigned role x")
	}
	yc, ok := ds.ColumnByRole("y")
	if !ok {
		return "", fmt.Errorf("no column assigned role y")
	}
	gc, ok := ds.ColumnByRole("group")
	if !ok {
		return "", fmt.Errorf("no column assigned role group")
	}

	cats := ds.DistinctStrings(xc.Name)
	groups := ds.DistinctStrings(gc.Name)
	value := make(map[string]map[string]float64, len(cats))
	maxV := 0.0
	for _, row := range ds.Rows {
		cat := fmt.Sprintf("%v", row[xc.Name])
		grp := fmt.Sprintf("%v", row[gc.Name])
		v, _ := rowFloat(row[yc.Name])
		if value[cat] == nil {
			value[cat] = make(map[string]float64)
		}
		value[cat][grp] = v
		maxV = math.Max(maxV, v)
	}
	if maxV <= 0 {
		maxV = 1
	}

	c := newCanvas(pal, width, height)
	plotW := c.w - plotMarginLeft - plotMarginRight
	plotH := c.h - plotMarginTop - plotMarginBot
	slot := plotW / float64(len(cats))
	barW := slot * 0.8 / float64(len(groups))
	c.line(plotMarginLeft, plotMarginTop+plotH, plotMarginLeft+plotW, plotMarginTop+plotH, pal.TextColor, 1)

	for ci, cat := range cats {
		base := plotMarginLeft + float64(ci)*slot + slot*0.1
		for gi, grp := range groups {
			v := value[cat][grp]
			h := v / maxV * plotH
			c.rect(base+float64(gi)*barW, plotMarginTop+plotH-h, barW*0.9, h, fieldColor(pal, grp, gi))
		}
		c.text(base+slot*0.4, plotMarginTop+plotH+16, cat, "middle", axisFontSize)
	}
	// Legend along the top edge.
	lx := plotMarginLeft
	for gi, grp := range groups {
		c.rect(lx, 4, 10, 10, fieldColor(pal, grp, gi))
		c.text(lx+14, 13, grp, "start", axisFontSize)
		lx += 24 + float64(len(grp))*axisFontSize*0.6
	}
	return c.finish(), nil
}

func renderPie(ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (string, error) {
	return renderRing(ds, pal, width, height, 0)
}

func renderDonut(ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (string, error) {
	return renderRing(ds, pal, width, height, 0.55)
}

// renderRing draws a pie (innerRatio 0) or donut slice fan with labels
// pushed outside the radius.
func renderRing(ds *model.DatasetDescriptor, pal *model.Palette, width, height int, innerRatio float64) (string, error) {
	labels, values, err := seriesData(ds)
	if err != nil {
		return "", err
	}
	total := 0.0
	for _, v := range values {
		if v < 0 {
			return "", fmt.Errorf("negative slice value %g", v)
		}
		total += v
	}
	if total <= 0 {
		return "", fmt.Errorf("slice values sum to zero")
	}

	c := newCanvas(pal, width, height)
	cx, cy := c.w/2, c.h/2
	r := math.Min(c.w, c.h)/2 - 50
	inner := r * innerRatio

	angle := -math.Pi / 2
	for i, v := range values {
		sweep := v / total * 2 * math.Pi
		c.path(ringSlicePath(cx, cy, r, inner, angle, angle+sweep), fieldColor(pal, labels[i], i), pal.BackgroundColor, 1)
		mid := angle + sweep/2
		lx := cx + (r+18)*math.Cos(mid)
		ly := cy + (r+18)*math.Sin(mid)
		anchor := "start"
		if math.Cos(mid) < -0.1 {
			anchor = "end"
		} else if math.Abs(math.Cos(mid)) <= 0.1 {
			anchor = "middle"
		}
		c.text(lx, ly, fmt.Sprintf("%s (%s)", labels[i], trimNumber(v)), anchor, labelFontSize)
		angle += sweep
	}
	c.b.updateRect(cx-r, cy-r, 2*r, 2*r)
	return c.finish(), nil
}

func ringSlicePath(cx, cy, r, inner, a0, a1 float64) string {
	large := 0
	if a1-a0 > math.Pi {
		large = 1
	}
	x0, y0 := cx+r*math.Cos(a0), cy+r*math.Sin(a0)
	x1, y1 := cx+r*math.Cos(a1), cy+r*math.Sin(a1)
	if inner <= 0 {
		return fmt.Sprintf("M %.1f %.1f L %.1f %.1f A %.1f %.1f 0 %d 1 %.1f %.1f Z",
			cx, cy, x0, y0, r, r, large, x1, y1)
	}
	ix0, iy0 := cx+inner*math.Cos(a1), cy+inner*math.Sin(a1)
	ix1, iy1 := cx+inner*math.Cos(a0), cy+inner*math.Sin(a0)
	return fmt.Sprintf("M %.1f %.1f A %.1f %.1f 0 %d 1 %.1f %.1f L %.1f %.1f A %.1f %.1f 0 %d 0 %.1f %.1f Z",
		x0, y0, r, r, large, x1, y1, ix0, iy0, inner, inner, large, ix1, iy1)
}

func renderLine(ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (string, error) {
	labels, values, err := seriesData(ds)
	if err != nil {
		return "", err
	}
	c := newCanvas(pal, width, height)
	plotW := c.w - plotMarginLeft - plotMarginRight
	plotH := c.h - plotMarginTop - plotMarginBot
	minV, maxV := valueExtent(values)
	if maxV == minV {
		maxV = minV + 1
	}

	lineColor := otherColor(pal, "line", defaultSeries[0])
	step := plotW / math.Max(1, float64(len(values)-1))
	var d strings.Builder
	for i, v := range values {
		x := plotMarginLeft + float64(i)*step
		y := plotMarginTop + (maxV-v)/(maxV-minV)*plotH
		if i == 0 {
			fmt.Fprintf(&d, "M %.1f %.1f", x, y)
		} else {
			fmt.Fprintf(&d, " L %.1f %.1f", x, y)
		}
		c.circle(x, y, 3, lineColor)
		// Thin labels on long series to avoid collision.
		if len(labels) <= 12 || i%(len(labels)/12+1) == 0 {
			c.text(x, plotMarginTop+plotH+16, labels[i], "middle", axisFontSize)
		}
	}
	c.path(d.String(), "none", lineColor, 2)
	c.line(plotMarginLeft, plotMarginTop+plotH, plotMarginLeft+plotW, plotMarginTop+plotH, pal.TextColor, 1)
	return c.finish(), nil
}

func renderScatter(ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (string, error) {
	xc, ok := ds.ColumnByRole("x")
	if !ok {
		return "", fmt.Errorf("no column assigned role x")
	}
	yc, ok := ds.ColumnByRole("y")
	if !ok {
		return "", fmt.Errorf("no column assigned role y")
	}
	xs := ds.Numbers(xc.Name)
	ys := ds.Numbers(yc.Name)
	if len(xs) == 0 || len(xs) != len(ys) {
		return "", fmt.Errorf("x/y length mismatch: %d vs %d", len(xs), len(ys))
	}

	c := newCanvas(pal, width, height)
	plotW := c.w - plotMarginLeft - plotMarginRight
	plotH := c.h - plotMarginTop - plotMarginBot
	minX, maxX := valueExtent(xs)
	minY, maxY := valueExtent(ys)
	if maxX == minX {
		maxX = minX + 1
	}
	if maxY == minY {
		maxY = minY + 1
	}

	dotColor := otherColor(pal, "dot", defaultSeries[0])
	c.line(plotMarginLeft, plotMarginTop+plotH, plotMarginLeft+plotW, plotMarginTop+plotH, pal.TextColor, 1)
	c.line(plotMarginLeft, plotMarginTop, plotMarginLeft, plotMarginTop+plotH, pal.TextColor, 1)
	for i := range xs {
		px := plotMarginLeft + (xs[i]-minX)/(maxX-minX)*plotW
		py := plotMarginTop + (maxY-ys[i])/(maxY-minY)*plotH
		c.circle(px, py, 4, dotColor)
	}
	return c.finish(), nil
}

func renderBubble(ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (string, error) {
	xc, ok := ds.ColumnByRole("x")
	if !ok {
		return "", fmt.Errorf("no column assigned role x")
	}
	yc, ok := ds.ColumnByRole("y")
	if !ok {
		return "", fmt.Errorf("no column assigned role y")
	}
	sc, ok := ds.ColumnByRole("size")
	if !ok {
		return "", fmt.Errorf("no column assigned role size")
	}
	xs, ys, sizes := ds.Numbers(xc.Name), ds.Numbers(yc.Name), ds.Numbers(sc.Name)
	if len(xs) == 0 || len(xs) != len(ys) || len(xs) != len(sizes) {
		return "", fmt.Errorf("x/y/size length mismatch")
	}

	c := newCanvas(pal, width, height)
	plotW := c.w - plotMarginLeft - plotMarginRight
	plotH := c.h - plotMarginTop - plotMarginBot
	minX, maxX := valueExtent(xs)
	minY, maxY := valueExtent(ys)
	_, maxS := valueExtent(sizes)
	if maxX == minX {
		maxX = minX + 1
	}
	if maxY == minY {
		maxY = minY + 1
	}
	if maxS <= 0 {
		maxS = 1
	}

	for i := range xs {
		px := plotMarginLeft + (xs[i]-minX)/(maxX-minX)*plotW
		py := plotMarginTop + (maxY-ys[i])/(maxY-minY)*plotH
		r := 4 + math.Sqrt(math.Max(0, sizes[i])/maxS)*22
		c.circle(px, py, r, fieldColor(pal, "", i))
	}
	return c.finish(), nil
}

func rowFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func trimNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// hugeRange admits any non-negative magnitude a chart can sensibly show.
var hugeRange = []float64{0, 1e12}
var signedRange = []float64{-1e12, 1e12}

func req(fields []string, types map[string]model.TypeList, ranges map[string][]float64) model.Requirements {
	return model.Requirements{
		RequiredFields:      model.FieldGroups{fields},
		RequiredFieldsType:  types,
		RequiredFieldsRange: ranges,
	}
}

// BuiltinTemplates returns the native chart builders the registry merges
// with the on-disk templates.
func BuiltinTemplates() []*model.TemplateDescriptor {
	catOrTime := model.TypeList{model.Categorical, model.Temporal}
	num := model.TypeList{model.Numerical}

	xy := func(xTypes model.TypeList, xRange, yRange []float64) model.Requirements {
		return req([]string{"x", "y"},
			map[string]model.TypeList{"x": xTypes, "y": num},
			map[string][]float64{"x": xRange, "y": yRange})
	}

	groupedReq := req([]string{"x", "y", "group"},
		map[string]model.TypeList{"x": catOrTime, "y": num, "group": catOrTime},
		map[string][]float64{"x": {1, 12}, "y": hugeRange, "group": {2, 6}})
	groupedReq.Hierarchy = []string{"group"}

	bubbleReq := req([]string{"x", "y", "size"},
		map[string]model.TypeList{"x": num, "y": num, "size": num},
		map[string][]float64{"x": signedRange, "y": signedRange, "size": hugeRange})

	darkBar := xy(catOrTime, []float64{1, 12}, hugeRange)
	darkBar.Background = model.ThemeDark

	templates := []*model.TemplateDescriptor{
		{Engine: model.EngineProcedural, ChartType: "bar", ChartName: "vertical_bar",
			Requirements: xy(catOrTime, []float64{1, 12}, hugeRange), Render: renderVerticalBar},
		{Engine: model.EngineProcedural, ChartType: "bar", ChartName: "vertical_bar_dark",
			Requirements: darkBar, Render: renderVerticalBar},
		{Engine: model.EngineProcedural, ChartType: "bar", ChartName: "horizontal_bar",
			Requirements: xy(catOrTime, []float64{1, 15}, hugeRange), Render: renderHorizontalBar},
		{Engine: model.EngineProcedural, ChartType: "bar", ChartName: "dual_direction_bar",
			Requirements: xy(catOrTime, []float64{1, 12}, signedRange), Render: renderDualDirectionBar},
		{Engine: model.EngineProcedural, ChartType: "bar", ChartName: "grouped_bar",
			Requirements: groupedReq, Render: renderGroupedBar},
		{Engine: model.EngineProcedural, ChartType: "pie", ChartName: "basic_pie",
			Requirements: xy(catOrTime, []float64{2, 8}, hugeRange), Render: renderPie},
		{Engine: model.EngineProcedural, ChartType: "donut", ChartName: "basic_donut",
			Requirements: xy(catOrTime, []float64{2, 8}, hugeRange), Render: renderDonut},
		{Engine: model.EngineProcedural, ChartType: "line", ChartName: "basic_line",
			Requirements: xy(catOrTime, []float64{2, 60}, signedRange), Render: renderLine},
		{Engine: model.EngineProcedural, ChartType: "scatter", ChartName: "scatterplot",
			Requirements: req([]string{"x", "y"},
				map[string]model.TypeList{"x": num, "y": num},
				map[string][]float64{"x": signedRange, "y": signedRange}),
			Render: renderScatter},
		{Engine: model.EngineProcedural, ChartType: "scatter", ChartName: "bubble",
			Requirements: bubbleReq, Render: renderBubble},
	}
	return templates
}
